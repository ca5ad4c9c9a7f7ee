// File: internal/instrument/classify.go

// Node kind classification and the dynamic-content scan over JSX children.
package instrument

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// nodeKind is the closed set of syntax shapes the dynamic-content rule
// distinguishes. Everything the grammar produces maps onto exactly one kind.
type nodeKind int

const (
	kindOther nodeKind = iota
	kindElement
	kindFragment
	kindExpressionContainer
	kindTemplateLiteral
	kindMember
	kindCall
	kindConditional
	kindIdentifier
	kindLiteral
)

func (k nodeKind) String() string {
	switch k {
	case kindElement:
		return "element"
	case kindFragment:
		return "fragment"
	case kindExpressionContainer:
		return "expression-container"
	case kindTemplateLiteral:
		return "template-literal"
	case kindMember:
		return "member"
	case kindCall:
		return "call"
	case kindConditional:
		return "conditional"
	case kindIdentifier:
		return "identifier"
	case kindLiteral:
		return "literal"
	default:
		return "other"
	}
}

// stateLikeNames are substrings that mark a bare identifier as probably
// holding render-time data. The list is part of the output contract.
var stateLikeNames = []string{"props", "state", "data", "item", "value", "text", "content"}

// kindOf maps a tree-sitter node onto a nodeKind.
func kindOf(n *sitter.Node) nodeKind {
	switch n.Type() {
	case "jsx_element":
		if isFragment(n) {
			return kindFragment
		}
		return kindElement
	case "jsx_self_closing_element":
		return kindElement
	case "jsx_expression":
		return kindExpressionContainer
	case "template_string":
		return kindTemplateLiteral
	case "member_expression", "subscript_expression":
		return kindMember
	case "call_expression":
		return kindCall
	case "ternary_expression":
		return kindConditional
	case "identifier", "shorthand_property_identifier":
		return kindIdentifier
	case "string", "number", "true", "false", "null", "regex":
		return kindLiteral
	default:
		return kindOther
	}
}

// isLiteralKind reports whether k counts as a literal for the container rule.
// Template strings are literals here; their substitutions are caught when the
// scan descends into them.
func isLiteralKind(k nodeKind) bool {
	return k == kindLiteral || k == kindTemplateLiteral
}

// isFragment reports whether a jsx_element is written as <>...</>.
func isFragment(n *sitter.Node) bool {
	open := n.ChildByFieldName("open_tag")
	return open != nil && open.ChildByFieldName("name") == nil
}

// namedChildren returns the named children of n, skipping comments.
func namedChildren(n *sitter.Node) []*sitter.Node {
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		child := n.NamedChild(i)
		if child == nil || child.Type() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

// containerExpression returns the expression wrapped by a jsx_expression with
// parentheses removed, or nil for an empty container like {} or {/* note */}.
func containerExpression(n *sitter.Node) *sitter.Node {
	children := namedChildren(n)
	if len(children) == 0 {
		return nil
	}
	expr := children[0]
	for expr.Type() == "parenthesized_expression" {
		inner := namedChildren(expr)
		if len(inner) == 0 {
			break
		}
		expr = inner[0]
	}
	return expr
}

type classifier struct {
	source []byte
}

// hasDynamicContent scans the children of an element (never its own
// attributes) and reports whether any of them renders computed content.
func (c *classifier) hasDynamicContent(element *sitter.Node) bool {
	if element.Type() != "jsx_element" {
		// Self-closing elements have no children.
		return false
	}
	open := element.ChildByFieldName("open_tag")
	closeTag := element.ChildByFieldName("close_tag")
	for _, child := range namedChildren(element) {
		if sameNode(child, open) || sameNode(child, closeTag) {
			continue
		}
		if c.isDynamic(child) {
			return true
		}
	}
	return false
}

// isDynamic applies the rule to n and then to its descendants, stopping at
// the first match.
func (c *classifier) isDynamic(n *sitter.Node) bool {
	switch kindOf(n) {
	case kindExpressionContainer:
		expr := containerExpression(n)
		if expr == nil {
			return false
		}
		if expr.Type() == "spread_element" {
			// {...props} is a spread, not a container; scan what is spread.
			return c.scanChildren(expr)
		}
		if !isLiteralKind(kindOf(expr)) {
			return true
		}
		return c.isDynamic(expr)
	case kindTemplateLiteral:
		for _, child := range namedChildren(n) {
			if child.Type() == "template_substitution" {
				return true
			}
		}
		return false
	case kindMember, kindCall, kindConditional:
		return true
	case kindIdentifier:
		name := n.Content(c.source)
		for _, s := range stateLikeNames {
			if strings.Contains(name, s) {
				return true
			}
		}
		return false
	case kindLiteral:
		return false
	case kindElement, kindFragment, kindOther:
		return c.scanChildren(n)
	}
	return false
}

// scanChildren recurses into the named children of n. Tag names, closing
// tags and attribute names are markup, not expressions, and are skipped.
func (c *classifier) scanChildren(n *sitter.Node) bool {
	var skip *sitter.Node
	switch n.Type() {
	case "jsx_closing_element":
		return false
	case "jsx_opening_element", "jsx_self_closing_element":
		skip = n.ChildByFieldName("name")
	}

	for _, child := range namedChildren(n) {
		if sameNode(child, skip) {
			continue
		}
		if n.Type() == "jsx_attribute" && isAttributeName(child) {
			continue
		}
		if c.isDynamic(child) {
			return true
		}
	}
	return false
}

func isAttributeName(n *sitter.Node) bool {
	switch n.Type() {
	case "property_identifier", "jsx_namespace_name", "identifier":
		return true
	}
	return false
}

// sameNode compares two nodes by type and byte span.
func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Type() == b.Type() && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}
