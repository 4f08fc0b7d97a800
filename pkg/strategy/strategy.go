// Package strategy implements the document processing strategy (C6): one
// strategy per document type, registered in a factory keyed by uppercase
// type, each turning a validated DOM into a persisted header plus its
// line entities using mapping rules.
//
// Field mapping is data-driven through an explicit per-entity
// FieldDescriptor table rather than runtime reflection (design note:
// "reflection-driven field mapping ... is a portability hazard"), keeping
// nullability/type rules visible and avoiding any struct-tag introspection.
package strategy

import (
	"context"
	"log/slog"
	"strings"
	"time"

	xgerrors "github.com/b2bgate/xmlgate/internal/errors"
	"github.com/b2bgate/xmlgate/pkg/batch"
	"github.com/b2bgate/xmlgate/pkg/model"
	"github.com/b2bgate/xmlgate/pkg/persistence"
	"github.com/b2bgate/xmlgate/pkg/rules"
	"github.com/b2bgate/xmlgate/pkg/transform"
	"github.com/b2bgate/xmlgate/pkg/xmlproc"
)

// FieldDescriptor describes one column a mapping rule can target, in
// place of introspecting a language-level struct at runtime.
type FieldDescriptor struct {
	Name     string
	Type     transform.TargetType
	Nullable bool
}

// EntitySchema is the field-descriptor table for one header or line table.
type EntitySchema struct {
	Table  string
	Fields []FieldDescriptor
}

func (s EntitySchema) fieldType(name, fallbackDataType string) transform.TargetType {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Type
		}
	}
	if fallbackDataType != "" {
		return transform.TargetType(fallbackDataType)
	}
	return transform.TypeString
}

// Strategy implements one document type's header+line extraction and
// persistence. It satisfies the C6 contract: Process, RootElement,
// DocumentType, Priority.
type Strategy struct {
	docType             string
	rootElement         string
	priority            int
	businessKeyField    string
	lineNodeDefaultPath string

	headerSchema EntitySchema
	lineSchema   EntitySchema

	ruleStore *rules.Store
	headers   *persistence.HeaderRepository
	lines     *persistence.LineRepository
	sizer     *batch.Sizer
}

// Config bundles a strategy's static shape plus its runtime dependencies.
type Config struct {
	DocType             string
	RootElement         string
	Priority            int
	BusinessKeyField    string
	LineNodeDefaultPath string
	HeaderSchema        EntitySchema
	LineSchema          EntitySchema
}

// New constructs a Strategy from cfg and the shared runtime dependencies.
func New(cfg Config, ruleStore *rules.Store, headers *persistence.HeaderRepository, lines *persistence.LineRepository, sizer *batch.Sizer) *Strategy {
	return &Strategy{
		docType:             cfg.DocType,
		rootElement:         cfg.RootElement,
		priority:            cfg.Priority,
		businessKeyField:    cfg.BusinessKeyField,
		lineNodeDefaultPath: cfg.LineNodeDefaultPath,
		headerSchema:        cfg.HeaderSchema,
		lineSchema:          cfg.LineSchema,
		ruleStore:           ruleStore,
		headers:             headers,
		lines:               lines,
		sizer:               sizer,
	}
}

func (s *Strategy) RootElement() string  { return s.rootElement }
func (s *Strategy) DocumentType() string { return s.docType }
func (s *Strategy) Priority() int        { return s.priority }

// Process builds the header and its lines from doc, persists both inside
// tx, and returns the committed header. Any HEADER-rule failure aborts the
// whole document. For LINE rules, only a required rule's failure aborts
// the line (and so the whole document, since the strategy must never
// commit a header whose lines failed required-field validation); a
// non-required LINE rule's failure is logged and skipped, per spec.md
// §4.6 step 6.
func (s *Strategy) Process(ctx context.Context, tx *persistence.Tx, doc *xmlproc.Document, client model.Client, iface model.Interface) (model.DocumentHeader, error) {
	activeRules, err := s.ruleStore.ActiveByInterface(ctx, iface.ID)
	if err != nil {
		return model.DocumentHeader{}, err
	}
	headerRules := rules.HeaderRules(activeRules)
	lineRules := rules.LineRules(activeRules)

	header := model.DocumentHeader{
		ClientID:    client.ID,
		InterfaceID: iface.ID,
		Table:       s.headerSchema.Table,
		Status:      "PROCESSING",
		Fields:      make(map[string]any),
	}

	for _, rule := range headerRules {
		val, err := s.evalAndTransform(doc.Context(), rule, s.headerSchema)
		if err != nil {
			return model.DocumentHeader{}, err
		}
		header.Fields[rule.TargetField] = val
		if rule.TargetField == s.businessKeyField {
			if str, ok := val.(string); ok {
				header.BusinessKey = str
			}
		}
	}

	header, err = s.headers.CreateHeader(ctx, tx, header)
	if err != nil {
		return model.DocumentHeader{}, err
	}

	lineNodeXPath := s.determineLineNodeXPath(lineRules)
	lineNodes, err := xmlproc.EvalNodes(doc.Context(), lineNodeXPath)
	if err != nil {
		return model.DocumentHeader{}, err
	}

	lines := make([]model.DocumentLine, 0, len(lineNodes))
	for i, node := range lineNodes {
		line := model.DocumentLine{
			HeaderID:   header.ID,
			ClientID:   client.ID,
			LineNumber: i + 1,
			Table:      s.lineSchema.Table,
			Fields:     make(map[string]any),
		}
		for _, rule := range lineRules {
			val, err := s.evalAndTransform(node, rule, s.lineSchema)
			if err != nil {
				if rule.Required {
					return model.DocumentHeader{}, err
				}
				// Non-required LINE rules are logged and skipped per
				// spec.md §4.6 step 6; only a required rule's failure
				// aborts the line.
				slog.Default().Warn("strategy.line_rule.skipped",
					"target_field", rule.TargetField, "source_field", rule.SourceField, "error", err)
				continue
			}
			line.Fields[rule.TargetField] = val
		}
		lines = append(lines, line)
	}

	if len(lines) > 0 {
		batchSize := s.sizer.CurrentSize()
		persistStart := time.Now()
		err := s.lines.CreateLines(ctx, tx, batchSize, lines)
		s.sizer.ObservePersist(time.Since(persistStart))
		if err != nil {
			return model.DocumentHeader{}, err
		}
	}

	header.Status = "SUCCESS"
	return header, nil
}

// evalAndTransform evaluates rule.SourceField against ctx, falls back to
// rule.DefaultValue when there is no match, applies the transformation
// chain, and coerces to the field's descriptor type. A required rule that
// still resolves to nil raises a ValidationError carrying the field path.
func (s *Strategy) evalAndTransform(ctx *xmlproc.Element, rule model.MappingRule, schema EntitySchema) (any, error) {
	matched, err := xmlproc.EvalString(ctx, rule.SourceField)
	if err != nil {
		return nil, err
	}

	var raw string
	switch {
	case matched != nil && *matched != "":
		raw = *matched
	case rule.DefaultValue != nil:
		raw = *rule.DefaultValue
	default:
		raw = ""
	}

	targetType := schema.fieldType(rule.TargetField, rule.DataType)
	val, err := transform.TransformAndConvert(raw, rule.Transformation, targetType)
	if err != nil {
		return nil, err
	}

	if val == nil && rule.Required {
		return nil, xgerrors.NewValidationError("required field has no value", rule.SourceField)
	}
	return val, nil
}

// determineLineNodeXPath prefers the common parent of every LINE rule's
// source_field, falling back to the strategy-specific default when rules
// disagree or there are none.
func (s *Strategy) determineLineNodeXPath(lineRules []model.MappingRule) string {
	if len(lineRules) == 0 {
		return s.lineNodeDefaultPath
	}

	parents := make(map[string]bool)
	for _, r := range lineRules {
		parents[xmlproc.ParentPath(r.SourceField)] = true
	}
	if len(parents) == 1 {
		for p := range parents {
			if p != "." && p != "/" {
				return p
			}
		}
	}
	return s.lineNodeDefaultPath
}

// Factory dispatches to a registered Strategy by uppercased document
// type, returning the configured default on an unknown type.
type Factory struct {
	strategies map[string]*Strategy
	defaultKey string
}

// NewFactory constructs an empty factory. defaultKey names the strategy
// (by its DocType) returned for unrecognized Interface.Type values.
func NewFactory(defaultKey string) *Factory {
	return &Factory{strategies: make(map[string]*Strategy), defaultKey: strings.ToUpper(defaultKey)}
}

// Register installs s under its uppercased DocumentType.
func (f *Factory) Register(s *Strategy) {
	f.strategies[strings.ToUpper(s.DocumentType())] = s
}

// For returns the strategy registered for docType, or the factory's
// default if docType is unrecognized.
func (f *Factory) For(docType string) *Strategy {
	if s, ok := f.strategies[strings.ToUpper(docType)]; ok {
		return s
	}
	return f.strategies[f.defaultKey]
}
