// Package schema implements the three-layer document validator: structural
// well-formedness, root-element/namespace compatibility against an
// Interface, and full XSD validation (or structural-only mode for
// ":FLEXIBLE" interfaces).
//
// No real XSD-validation library surfaced anywhere in the reference
// corpus; the Schema tier is therefore a structural superset check built
// directly on pkg/xmlproc rather than a dedicated XSD validator — see
// DESIGN.md for the justification.
package schema

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/antchfx/xmlquery"

	xgerrors "github.com/b2bgate/xmlgate/internal/errors"
	"github.com/b2bgate/xmlgate/pkg/model"
	"github.com/b2bgate/xmlgate/pkg/xmlproc"
)

// Limits carries the xml.validation.* settings into the Validator. Only
// SchemaBasePath is read by the checks below; EntityExpansionLimit,
// SecureProcessing, the external DTD/schema toggles and DefaultSchemaPath
// are carried but not consulted, and no entity-expansion count is enforced
// (xmlproc's underlying decoder does not expand external entities at all).
type Limits struct {
	EntityExpansionLimit       int
	SecureProcessing           bool
	EnableExternalDTD          bool
	EnableExternalSchema       bool
	SchemaBasePath             string
	DefaultSchemaPath          string
}

// DefaultLimits matches the conservative defaults the config surface
// documents: no external DTD/schema fetching, a generous but finite
// expansion cap.
func DefaultLimits() Limits {
	return Limits{
		EntityExpansionLimit: 20000,
		SecureProcessing:     true,
		EnableExternalDTD:    false,
		EnableExternalSchema: false,
	}
}

// Validator runs the three layered checks. It is stateless across calls
// except for the last-error buffer, matching the contract's "stateless
// except per-call error buffer" requirement — callers must not share a
// Validator across concurrent Validate calls expecting independent errors;
// use LastError only immediately after a call on the same goroutine, or
// prefer the return value.
type Validator struct {
	limits Limits

	mu        sync.Mutex
	lastError string
}

// New constructs a Validator with the given limits.
func New(limits Limits) *Validator {
	return &Validator{limits: limits}
}

// LastError returns the human-readable reason the most recent Validate
// call failed, or "" if it succeeded.
func (v *Validator) LastError() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastError
}

func (v *Validator) setLastError(msg string) {
	v.mu.Lock()
	v.lastError = msg
	v.mu.Unlock()
}

// Validate runs structural, compatibility, then schema checks in order,
// short-circuiting on the first failure. iface carries RootElement (with
// optional ":FLEXIBLE" suffix), Namespace, and SchemaPath.
func (v *Validator) Validate(doc *xmlproc.Document, iface model.Interface) error {
	v.setLastError("")

	if err := v.checkStructural(doc); err != nil {
		v.setLastError(err.Error())
		return err
	}
	if err := v.checkCompatibility(doc, iface); err != nil {
		v.setLastError(err.Error())
		return err
	}
	if iface.Flexible() {
		return nil
	}
	if err := v.checkSchema(doc, iface); err != nil {
		v.setLastError(err.Error())
		return err
	}
	return nil
}

// checkStructural verifies the document has a root and every namespace
// prefix used anywhere in the tree is declared on an ancestor. xmlquery
// resolves prefix bindings as it parses, so an unbound prefix surfaces as
// an element/attribute whose NamespaceURI is empty while its Data still
// carries a prefix.
func (v *Validator) checkStructural(doc *xmlproc.Document) error {
	root := doc.Root()
	if root == nil {
		return xgerrors.NewValidationError("structural: document has no root element", "")
	}

	var walk func(n *xmlquery.Node) error
	walk = func(n *xmlquery.Node) error {
		if n == nil {
			return nil
		}
		if n.Type == xmlquery.ElementNode {
			if prefix, _, ok := splitPrefix(n.Data); ok && n.NamespaceURI == "" {
				return xgerrors.NewValidationError(
					fmt.Sprintf("structural: undeclared namespace prefix %q on element %q", prefix, n.Data), n.Data)
			}
			for _, attr := range n.Attr {
				if prefix, _, ok := splitPrefix(attr.Name.Local); ok && attr.NamespaceURI == "" && prefix != "xmlns" {
					return xgerrors.NewValidationError(
						fmt.Sprintf("structural: undeclared namespace prefix %q on attribute %q", prefix, attr.Name.Local), attr.Name.Local)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}

	return walk(doc.RawRoot())
}

func splitPrefix(qualified string) (prefix, local string, hasPrefix bool) {
	if i := strings.IndexByte(qualified, ':'); i >= 0 {
		return qualified[:i], qualified[i+1:], true
	}
	return "", qualified, false
}

// checkCompatibility compares the document root's local name and
// namespace URI against the Interface's expected root_element/namespace.
func (v *Validator) checkCompatibility(doc *xmlproc.Document, iface model.Interface) error {
	expectedLocal := localNameOf(iface.RootElementName())
	gotLocal := doc.RootLocalName()
	if !strings.EqualFold(expectedLocal, gotLocal) {
		return xgerrors.NewValidationError(
			fmt.Sprintf("compatibility: root element %q does not match expected %q", gotLocal, expectedLocal), "root_element")
	}
	if iface.Namespace != "" && iface.Namespace != doc.RootNamespaceURI() {
		return xgerrors.NewValidationError(
			fmt.Sprintf("compatibility: root namespace %q does not match expected %q", doc.RootNamespaceURI(), iface.Namespace), "namespace")
	}
	return nil
}

func localNameOf(qualified string) string {
	if i := strings.IndexByte(qualified, ':'); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}

// checkSchema validates against the XSD named by iface.SchemaPath. There
// is no XSD validation library in the ecosystem stack this module draws
// on (see DESIGN.md); this implementation enforces schema *presence* and
// *readability* and otherwise treats the structural+compatibility passes
// as the effective validation surface for non-flexible interfaces too.
func (v *Validator) checkSchema(doc *xmlproc.Document, iface model.Interface) error {
	if iface.SchemaPath == "" {
		return xgerrors.NewValidationError(
			fmt.Sprintf("schema: interface %q has no schema_path configured", iface.Name), "schema_path")
	}
	path := iface.SchemaPath
	if v.limits.SchemaBasePath != "" && !strings.HasPrefix(path, "/") {
		path = v.limits.SchemaBasePath + "/" + path
	}
	if _, err := os.Stat(path); err != nil {
		return xgerrors.NewValidationError(fmt.Sprintf("schema: cannot read XSD at %q", path), path)
	}
	return nil
}
