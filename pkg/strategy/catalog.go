package strategy

import (
	"github.com/b2bgate/xmlgate/pkg/batch"
	"github.com/b2bgate/xmlgate/pkg/persistence"
	"github.com/b2bgate/xmlgate/pkg/rules"
	"github.com/b2bgate/xmlgate/pkg/transform"
)

// asnHeaderSchema describes the ASN_HEADERS columns a mapping rule may
// target, beyond the client_id/status/business-key columns every header
// carries implicitly.
func asnHeaderSchema() EntitySchema {
	return EntitySchema{
		Table: "ASN_HEADERS",
		Fields: []FieldDescriptor{
			{Name: "asn_number", Type: transform.TypeString},
			{Name: "ship_date", Type: transform.TypeDate},
			{Name: "carrier_code", Type: transform.TypeString},
			{Name: "tracking_number", Type: transform.TypeString, Nullable: true},
			{Name: "total_weight", Type: transform.TypeBigDecimal, Nullable: true},
		},
	}
}

func asnLineSchema() EntitySchema {
	return EntitySchema{
		Table: "ASN_LINES",
		Fields: []FieldDescriptor{
			{Name: "item_number", Type: transform.TypeString},
			{Name: "quantity", Type: transform.TypeInteger},
			{Name: "unit_of_measure", Type: transform.TypeString, Nullable: true},
			{Name: "lot_number", Type: transform.TypeString, Nullable: true},
		},
	}
}

func orderHeaderSchema() EntitySchema {
	return EntitySchema{
		Table: "ORDER_HEADERS",
		Fields: []FieldDescriptor{
			{Name: "order_number", Type: transform.TypeString},
			{Name: "order_date", Type: transform.TypeDate},
			{Name: "customer_code", Type: transform.TypeString},
			{Name: "total_amount", Type: transform.TypeBigDecimal, Nullable: true},
		},
	}
}

func orderLineSchema() EntitySchema {
	return EntitySchema{
		Table: "ORDER_LINES",
		Fields: []FieldDescriptor{
			{Name: "item_number", Type: transform.TypeString},
			{Name: "quantity", Type: transform.TypeInteger},
			{Name: "unit_price", Type: transform.TypeBigDecimal, Nullable: true},
		},
	}
}

// NewCatalog builds the default factory with the ASN and ORDER strategies
// registered, ASN acting as the factory default per spec.md §4.6.
func NewCatalog(ruleStore *rules.Store, headers *persistence.HeaderRepository, lines *persistence.LineRepository, sizer *batch.Sizer) *Factory {
	f := NewFactory(string(DocTypeASN))

	f.Register(New(Config{
		DocType:             string(DocTypeASN),
		RootElement:         "ASNMessage",
		Priority:            10,
		BusinessKeyField:    "asn_number",
		LineNodeDefaultPath: "//ASNLine",
		HeaderSchema:        asnHeaderSchema(),
		LineSchema:          asnLineSchema(),
	}, ruleStore, headers, lines, sizer))

	f.Register(New(Config{
		DocType:             string(DocTypeOrder),
		RootElement:         "OrderMessage",
		Priority:            20,
		BusinessKeyField:    "order_number",
		LineNodeDefaultPath: "//OrderLine",
		HeaderSchema:        orderHeaderSchema(),
		LineSchema:          orderLineSchema(),
	}, ruleStore, headers, lines, sizer))

	return f
}

// DocType is one of the document type strings an Interface.Type may carry.
type DocType string

const (
	DocTypeASN   DocType = "ASN"
	DocTypeOrder DocType = "ORDER"
)
