package schema

import (
	"testing"

	"github.com/b2bgate/xmlgate/pkg/model"
	"github.com/b2bgate/xmlgate/pkg/xmlproc"
)

func mustParse(t *testing.T, xml string) *xmlproc.Document {
	t.Helper()
	doc, err := xmlproc.Parse([]byte(xml))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	return doc
}

func TestStructuralPassesWithUnusedDeclaredNamespace(t *testing.T) {
	doc := mustParse(t, `<ASN xmlns:x="urn:example:unused"><A>1</A></ASN>`)
	v := New(DefaultLimits())
	if err := v.checkStructural(doc); err != nil {
		t.Errorf("unexpected structural failure: %v", err)
	}
}

func TestStructuralFailsOnUndeclaredPrefix(t *testing.T) {
	doc := mustParse(t, `<ASN><y:A>1</y:A></ASN>`)
	v := New(DefaultLimits())
	if err := v.checkStructural(doc); err == nil {
		t.Error("expected structural failure for undeclared prefix")
	}
}

func TestCompatibilityRejectsWrongRoot(t *testing.T) {
	doc := mustParse(t, `<PURCHASE_ORDER><A>1</A></PURCHASE_ORDER>`)
	v := New(DefaultLimits())
	iface := model.Interface{Name: "asn-in", RootElement: "ASN"}
	err := v.checkCompatibility(doc, iface)
	if err == nil {
		t.Error("expected compatibility failure for wrong root element")
	}
}

func TestFlexibleInterfaceSkipsSchemaTier(t *testing.T) {
	doc := mustParse(t, `<ASN><A>1</A></ASN>`)
	v := New(DefaultLimits())
	iface := model.Interface{Name: "asn-in", RootElement: "ASN:FLEXIBLE"}
	if err := v.Validate(doc, iface); err != nil {
		t.Errorf("flexible interface should skip schema tier, got: %v", err)
	}
}
