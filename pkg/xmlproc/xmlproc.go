// Package xmlproc parses inbound XML bytes into a namespace-aware DOM,
// evaluates XPath 1.0 expressions against a document or element context,
// and serializes a document back to canonical bytes.
//
// DOM and XPath evaluation are built on antchfx/xmlquery and antchfx/xpath,
// which implement XPath 1.0 over a lazily-navigable tree; encoding/xml's
// decoder (which xmlquery wraps) never resolves external entities or
// fetches external DTDs, so parse is XXE-safe by construction with no
// extra configuration required.
package xmlproc

import (
	"bytes"
	"strings"

	"github.com/antchfx/xmlquery"

	xgerrors "github.com/b2bgate/xmlgate/internal/errors"
)

// Document is the root of a parsed XML tree.
type Document struct {
	root *xmlquery.Node
}

// Element is any node in the tree (the document root included), used as
// the context for relative XPath evaluation.
type Element struct {
	node *xmlquery.Node
}

// Parse decodes bytes into a Document. Malformed or empty input raises a
// ParseError.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, xgerrors.NewParseError("empty document", nil)
	}
	node, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, xgerrors.NewParseError("malformed XML", err)
	}
	if firstElement(node) == nil {
		return nil, xgerrors.NewParseError("document has no root element", nil)
	}
	return &Document{root: node}, nil
}

func firstElement(n *xmlquery.Node) *xmlquery.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
	}
	return nil
}

// Root returns the document's root element as an Element context.
func (d *Document) Root() *Element {
	return &Element{node: firstElement(d.root)}
}

// Context returns the document node itself as an evaluation context, used
// for expressions like "//Foo" that are meant to search the whole tree.
func (d *Document) Context() *Element {
	return &Element{node: d.root}
}

// RawRoot exposes the underlying xmlquery document node for packages (such
// as pkg/schema) that need to walk the full tree for checks XPath alone
// cannot express, such as namespace-prefix declaration auditing.
func (d *Document) RawRoot() *xmlquery.Node {
	return d.root
}

// RawNode exposes the underlying xmlquery node behind an Element.
func (e *Element) RawNode() *xmlquery.Node {
	if e == nil {
		return nil
	}
	return e.node
}

// RootLocalName returns the local name of the document's root element.
func (d *Document) RootLocalName() string {
	r := d.Root()
	if r == nil || r.node == nil {
		return ""
	}
	return localName(r.node.Data)
}

// RootNamespaceURI returns the namespace URI bound to the root element's
// prefix, or "" if the root element is unprefixed/unbound.
func (d *Document) RootNamespaceURI() string {
	r := d.Root()
	if r == nil || r.node == nil {
		return ""
	}
	return r.node.NamespaceURI
}

func localName(qualified string) string {
	if i := strings.IndexByte(qualified, ':'); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}

// EvalString evaluates xpathExpr against ctx and returns the string value
// of the first match, or nil if there is no match (never an empty string
// standing in for "no match").
func EvalString(ctx *Element, xpathExpr string) (*string, error) {
	if ctx == nil || ctx.node == nil {
		return nil, nil
	}
	node, err := xmlquery.Query(ctx.node, xpathExpr)
	if err != nil {
		return nil, xgerrors.NewParseError("invalid XPath expression: "+xpathExpr, err)
	}
	if node == nil {
		return nil, nil
	}
	text := strings.TrimSpace(node.InnerText())
	return &text, nil
}

// EvalNodes evaluates xpathExpr against ctx and returns every matching
// element, in document order.
func EvalNodes(ctx *Element, xpathExpr string) ([]*Element, error) {
	if ctx == nil || ctx.node == nil {
		return nil, nil
	}
	nodes, err := xmlquery.QueryAll(ctx.node, xpathExpr)
	if err != nil {
		return nil, xgerrors.NewParseError("invalid XPath expression: "+xpathExpr, err)
	}
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &Element{node: n})
	}
	return out, nil
}

// LocalName returns the element's unprefixed tag name.
func (e *Element) LocalName() string {
	if e == nil || e.node == nil {
		return ""
	}
	return localName(e.node.Data)
}

// RelativePath derives the XPath of childXPath relative to parentXPath.
// Both are absolute-style XPath strings sharing parentXPath as a prefix;
// the common prefix is stripped and the result is re-rooted at ".".
func RelativePath(childXPath, parentXPath string) string {
	child := strings.TrimSpace(childXPath)
	parent := strings.TrimSpace(parentXPath)
	if parent == "" || !strings.HasPrefix(child, parent) {
		return child
	}
	rest := strings.TrimPrefix(child, parent)
	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		return "."
	}
	return "./" + rest
}

// ParentPath returns xpathExpr with its final "/step" removed. Expressions
// with no "/" return ".".
func ParentPath(xpathExpr string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(xpathExpr), "/")
	idx := strings.LastIndexByte(trimmed, '/')
	if idx < 0 {
		return "."
	}
	parent := trimmed[:idx]
	if parent == "" {
		return "/"
	}
	return parent
}

// Serialize renders the document back to canonical XML bytes.
func Serialize(d *Document) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(d.root.OutputXML(false))
	return buf.Bytes(), nil
}
