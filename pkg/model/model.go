// Package model defines the core entities exchanged between the ingestion
// pipeline's components: clients, interfaces, mapping rules, document
// header/line rows, the processed-file ledger, and the in-flight message
// envelope carried on the bus.
package model

import "time"

// ClientStatus is the lifecycle state of a tenant.
type ClientStatus string

const (
	ClientActive   ClientStatus = "ACTIVE"
	ClientInactive ClientStatus = "INACTIVE"
)

// Client is a tenant that owns Interfaces and the documents ingested
// through them.
type Client struct {
	ID     int64
	Code   string
	Name   string
	Status ClientStatus
}

// Priority orders documents through the worker pool's priority queues.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
	PriorityLow    Priority = "LOW"
)

// Interface is a per-client definition of an inbound document format.
// The triple (ClientID, RootElement, Namespace) is what an incoming XML
// document is matched against.
type Interface struct {
	ID          int64
	ClientID    int64
	Name        string
	Type        string // e.g. "ASN", "ORDER"
	RootElement string
	Namespace   string
	SchemaPath  string
	Active      bool
	Priority    Priority
}

// Flexible reports whether RootElement carries the ":FLEXIBLE" suffix that
// downgrades schema validation to structural-only mode.
func (i Interface) Flexible() bool {
	const suffix = ":FLEXIBLE"
	return len(i.RootElement) > len(suffix) && i.RootElement[len(i.RootElement)-len(suffix):] == suffix
}

// RootElementName returns RootElement with any ":FLEXIBLE" suffix stripped.
func (i Interface) RootElementName() string {
	if i.Flexible() {
		return i.RootElement[:len(i.RootElement)-len(":FLEXIBLE")]
	}
	return i.RootElement
}

// TargetLevel identifies whether a MappingRule fills a header field or a
// line field.
type TargetLevel string

const (
	LevelHeader TargetLevel = "HEADER"
	LevelLine   TargetLevel = "LINE"
)

// MappingRule is a one-line contract from an XPath location in the source
// document to a target column on a header or line entity.
type MappingRule struct {
	ID             int64
	ClientID       int64
	InterfaceID    int64
	Name           string
	SourceField    string // XPath expression
	TargetField    string // snake_case DB column name
	TargetLevel    TargetLevel
	TableName      string
	Transformation string // pipe-separated chain, may be empty
	DefaultValue   *string
	Required       bool
	IsActive       bool
	Priority       int
	DataType       string
	ValidationRule *string
}

// ByPriorityThenID sorts mapping rules by Priority ascending, then ID
// ascending, the stable ordering §4.5 of the ingestion contract requires.
type ByPriorityThenID []MappingRule

func (r ByPriorityThenID) Len() int      { return len(r) }
func (r ByPriorityThenID) Swap(i, j int) { r[i], r[j] = r[j], r[i] }
func (r ByPriorityThenID) Less(i, j int) bool {
	if r[i].Priority != r[j].Priority {
		return r[i].Priority < r[j].Priority
	}
	return r[i].ID < r[j].ID
}

// DocumentHeader is the persisted header row for one ASN or ORDER document.
// Fields is a field-descriptor-driven bag: concrete strategies know which
// keys are meaningful for their table, keeping the mapping-rule engine
// data-driven without runtime reflection (see pkg/strategy).
type DocumentHeader struct {
	ID          int64
	ClientID    int64
	InterfaceID int64
	Table       string // "ASN_HEADERS" or "ORDER_HEADERS"
	BusinessKey string // e.g. asn_number / order_number value
	Status      string
	Fields      map[string]any
}

// DocumentLine is one repeating line item owned by a DocumentHeader.
type DocumentLine struct {
	ID         int64
	HeaderID   int64
	ClientID   int64
	LineNumber int
	Table      string // "ASN_LINES" or "ORDER_LINES"
	Fields     map[string]any
}

// ProcessedFileStatus is the terminal/non-terminal state of an ingestion
// ledger row.
type ProcessedFileStatus string

const (
	StatusProcessing ProcessedFileStatus = "PROCESSING"
	StatusSuccess    ProcessedFileStatus = "SUCCESS"
	StatusError      ProcessedFileStatus = "ERROR"
)

// ProcessedFile is the ingestion ledger row for one inbound message. It is
// created in PROCESSING at pipeline entry and transitions exactly once to
// SUCCESS or ERROR.
type ProcessedFile struct {
	ID           int64
	FileName     string
	ClientID     int64
	InterfaceID  int64
	Status       ProcessedFileStatus
	ErrorMessage string
	Content      []byte
	ProcessedAt  *time.Time
}

// MessageEnvelope is the in-flight record carried on the message bus for
// one inbound file. It is never persisted by the core.
type MessageEnvelope struct {
	FileBytes   []byte
	FileName    string
	ClientID    int64
	InterfaceID int64
	Priority    Priority
	EnqueuedAt  time.Time
}
