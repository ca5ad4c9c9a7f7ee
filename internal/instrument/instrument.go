// File: internal/instrument/instrument.go

// Package instrument tags JSX elements in component sources with the source
// location they were written at and whether their children render computed
// content. The visual edit agent reads these attributes back from the DOM.
package instrument

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"go.uber.org/zap"
)

const (
	// AttrSourceLocation holds "<filename>:<line>:<column>".
	AttrSourceLocation = "data-source-location"
	// AttrDynamicContent holds the string "true" or "false".
	AttrDynamicContent = "data-dynamic-content"
)

// Options configures which module ids the Instrumentor accepts.
type Options struct {
	// Extensions lists accepted file extensions including the dot.
	Extensions []string
	// Exclude lists id fragments that disqualify a module, e.g. "node_modules".
	Exclude []string
}

// DefaultOptions matches component sources and skips vendored code and the
// agent's own sources.
func DefaultOptions() Options {
	return Options{
		Extensions: []string{".js", ".jsx", ".ts", ".tsx"},
		Exclude:    []string{"node_modules", "visual-edit-agent"},
	}
}

// Result describes the outcome of one Transform call.
type Result struct {
	Code string
	// Changed is true when at least one element was tagged.
	Changed bool
	// Elements counts the elements tagged by this call.
	Elements int
	// Skipped counts elements left alone because they were already tagged.
	Skipped int
	// Fallback is true when the original code was returned because the
	// source could not be parsed or walked.
	Fallback bool
}

// Instrumentor is a stateless per-file transform, safe for concurrent use.
type Instrumentor struct {
	logger *zap.Logger
	opts   Options
}

// New creates an Instrumentor.
func New(logger *zap.Logger, opts Options) *Instrumentor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultOptions().Extensions
	}
	return &Instrumentor{logger: logger.Named("instrument"), opts: opts}
}

// ShouldTransform reports whether id is a component source this transform
// applies to.
func (in *Instrumentor) ShouldTransform(id string) bool {
	clean := stripQuery(id)
	for _, fragment := range in.opts.Exclude {
		if fragment != "" && strings.Contains(clean, fragment) {
			return false
		}
	}
	ext := extOf(clean)
	for _, allowed := range in.opts.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// languageFor picks the grammar for a module id. Plain .ts gets the
// TypeScript grammar so angle-bracket type assertions still parse.
func languageFor(id string) *sitter.Language {
	switch extOf(id) {
	case ".tsx":
		return tsx.GetLanguage()
	case ".ts", ".mts", ".cts":
		return typescript.GetLanguage()
	default:
		return javascript.GetLanguage()
	}
}

// Transform tags every untagged, non-fragment element in code. It never
// fails: on any parse or walk problem the original code comes back with
// Fallback set and a warning logged.
func (in *Instrumentor) Transform(ctx context.Context, code, id string) (res Result) {
	res = Result{Code: code}
	log := in.logger.With(zap.String("id", id))

	defer func() {
		if r := recover(); r != nil {
			log.Warn("Failed to add source location to JSX; returning original source", zap.Any("panic", r))
			res = Result{Code: code, Fallback: true}
		}
	}()

	out, err := in.transform(ctx, []byte(code), id)
	if err != nil {
		log.Warn("Failed to add source location to JSX; returning original source", zap.Error(err))
		return Result{Code: code, Fallback: true}
	}
	if out.Elements > 0 || out.Skipped > 0 {
		log.Debug("Instrumented module", zap.Int("tagged", out.Elements), zap.Int("already_tagged", out.Skipped))
	}
	return out
}

// edit is an insertion of text at a byte offset of the original source.
type edit struct {
	offset uint32
	text   string
}

func (in *Instrumentor) transform(ctx context.Context, src []byte, id string) (Result, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(languageFor(id))

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return Result{}, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return Result{}, fmt.Errorf("parse: syntax error near %s", firstErrorLocation(root))
	}

	w := &walker{
		filename: DeriveFilename(id),
		source:   src,
		cls:      &classifier{source: src},
	}
	w.walk(root)

	res := Result{Code: string(src), Elements: len(w.edits), Skipped: w.skipped}
	if len(w.edits) == 0 {
		return res, nil
	}
	res.Code = applyEdits(src, w.edits)
	res.Changed = true
	return res, nil
}

// walker collects attribute insertions for every element in document order.
type walker struct {
	filename string
	source   []byte
	cls      *classifier
	edits    []edit
	skipped  int
}

func (w *walker) walk(n *sitter.Node) {
	if n == nil || n.IsNull() {
		return
	}

	// Fragments have no attachment point and are only descended into.
	if kindOf(n) == kindElement {
		w.tag(n)
	}

	cursor := sitter.NewTreeCursor(n)
	defer cursor.Close()
	if cursor.GoToFirstChild() {
		for {
			w.walk(cursor.CurrentNode())
			if !cursor.GoToNextSibling() {
				break
			}
		}
	}
}

// tag records the attribute insertion for one element.
func (w *walker) tag(element *sitter.Node) {
	opening := element
	if element.Type() == "jsx_element" {
		opening = element.ChildByFieldName("open_tag")
	}
	if opening == nil {
		return
	}
	name := opening.ChildByFieldName("name")
	if name == nil {
		return
	}
	if hasAttribute(opening, w.source, AttrSourceLocation) {
		w.skipped++
		return
	}

	line, column := w.position(opening)
	dynamic := w.cls.hasDynamicContent(element)

	insertAt := name.EndByte()
	if next := name.NextSibling(); next != nil && next.Type() == "type_arguments" {
		insertAt = next.EndByte()
	}

	w.edits = append(w.edits, edit{
		offset: insertAt,
		text: fmt.Sprintf(` %s="%s:%d:%d" %s="%s"`,
			AttrSourceLocation, w.filename, line, column,
			AttrDynamicContent, strconv.FormatBool(dynamic)),
	})
}

// position returns the 1-based line and 1-based character column of n.
func (w *walker) position(n *sitter.Node) (int, int) {
	start := n.StartPoint()
	lineStart := int(n.StartByte()) - int(start.Column)
	if lineStart < 0 {
		lineStart = 0
	}
	column := utf8.RuneCount(w.source[lineStart:n.StartByte()]) + 1
	return int(start.Row) + 1, column
}

// hasAttribute reports whether an opening or self-closing element carries an
// attribute with the given name.
func hasAttribute(opening *sitter.Node, source []byte, attr string) bool {
	for _, child := range namedChildren(opening) {
		if child.Type() != "jsx_attribute" {
			continue
		}
		for _, part := range namedChildren(child) {
			if isAttributeName(part) {
				if part.Content(source) == attr {
					return true
				}
				break
			}
		}
	}
	return false
}

func applyEdits(src []byte, edits []edit) string {
	sorted := append([]edit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].offset < sorted[j].offset })

	var b strings.Builder
	extra := 0
	for _, e := range sorted {
		extra += len(e.text)
	}
	b.Grow(len(src) + extra)

	prev := uint32(0)
	for _, e := range sorted {
		b.Write(src[prev:e.offset])
		b.WriteString(e.text)
		prev = e.offset
	}
	b.Write(src[prev:])
	return b.String()
}

// firstErrorLocation finds the first ERROR or missing node for the log line.
func firstErrorLocation(root *sitter.Node) string {
	var found *sitter.Node
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if found != nil || n == nil {
			return
		}
		if n.Type() == "ERROR" || n.IsMissing() {
			found = n
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(root)
	if found == nil {
		return "unknown position"
	}
	p := found.StartPoint()
	return fmt.Sprintf("line %d, column %d", p.Row+1, p.Column+1)
}
