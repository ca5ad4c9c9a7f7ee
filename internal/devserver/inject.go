// File: internal/devserver/inject.go
package devserver

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Injection lists the scripts added to served HTML. Empty fields are
// skipped.
type Injection struct {
	// ErrorScript is appended as a classic script to <head> so it is in place
	// before the app runs.
	ErrorScript string
	// CSSRuntimeURL is appended as a classic script at the end of <head>.
	CSSRuntimeURL string
	// HMRScript is appended as a module script to <head>.
	HMRScript string
	// AgentScript is appended as a module script to <body>.
	AgentScript string
}

// Empty reports whether the injection adds nothing.
func (in Injection) Empty() bool {
	return in.ErrorScript == "" && in.CSSRuntimeURL == "" && in.HMRScript == "" && in.AgentScript == ""
}

// InjectHTML adds the configured scripts to an HTML document. A script whose
// src is already present anywhere in the document is not added again, so
// injecting twice yields the same document as injecting once.
func InjectHTML(src string, in Injection) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	head := findElement(doc, atom.Head)
	body := findElement(doc, atom.Body)
	if head == nil || body == nil {
		return "", fmt.Errorf("document has no head or body")
	}

	present := scriptSources(doc)
	add := func(parent *html.Node, src string, module bool) {
		if src == "" || present[src] {
			return
		}
		parent.AppendChild(scriptNode(src, module))
		present[src] = true
	}

	add(head, in.ErrorScript, false)
	add(head, in.HMRScript, true)
	add(head, in.CSSRuntimeURL, false)
	add(body, in.AgentScript, true)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

func scriptNode(src string, module bool) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Script,
		Data:     "script",
	}
	if module {
		n.Attr = append(n.Attr, html.Attribute{Key: "type", Val: "module"})
	}
	n.Attr = append(n.Attr, html.Attribute{Key: "src", Val: src})
	return n
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func scriptSources(doc *html.Node) map[string]bool {
	out := make(map[string]bool)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Script {
			for _, a := range n.Attr {
				if a.Key == "src" {
					out[a.Val] = true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}
