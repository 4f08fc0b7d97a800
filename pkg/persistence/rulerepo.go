package persistence

import (
	"context"

	xgerrors "github.com/b2bgate/xmlgate/internal/errors"
	"github.com/b2bgate/xmlgate/pkg/model"
)

// RuleRepository is the SQL-backed implementation of pkg/rules.Repository,
// reading the mapping_rules table this module's migrations create.
type RuleRepository struct {
	db *DB
}

// NewRuleRepository constructs a repository reading against db directly;
// mapping rules are configuration, not part of any pipeline transaction,
// so unlike header/line writes this never threads the orchestrator's *Tx.
func NewRuleRepository(db *DB) *RuleRepository {
	return &RuleRepository{db: db}
}

type mappingRuleRow struct {
	ID             int64   `db:"id"`
	ClientID       int64   `db:"client_id"`
	InterfaceID    int64   `db:"interface_id"`
	Name           string  `db:"name"`
	SourceField    string  `db:"source_field"`
	TargetField    string  `db:"target_field"`
	TargetLevel    string  `db:"target_level"`
	TableName      string  `db:"table_name"`
	Transformation *string `db:"transformation"`
	DefaultValue   *string `db:"default_value"`
	Required       bool    `db:"required"`
	IsActive       bool    `db:"is_active"`
	Priority       int     `db:"priority"`
	DataType       string  `db:"data_type"`
	ValidationRule *string `db:"validation_rule"`
}

func (row mappingRuleRow) toModel() model.MappingRule {
	transformation := ""
	if row.Transformation != nil {
		transformation = *row.Transformation
	}
	return model.MappingRule{
		ID: row.ID, ClientID: row.ClientID, InterfaceID: row.InterfaceID, Name: row.Name,
		SourceField: row.SourceField, TargetField: row.TargetField,
		TargetLevel: model.TargetLevel(row.TargetLevel), TableName: row.TableName,
		Transformation: transformation, DefaultValue: row.DefaultValue, Required: row.Required,
		IsActive: row.IsActive, Priority: row.Priority, DataType: row.DataType, ValidationRule: row.ValidationRule,
	}
}

// ActiveByInterface returns every active HEADER and LINE rule for
// interfaceID, in no particular order (pkg/rules.Store sorts by priority
// then id after caching).
func (r *RuleRepository) ActiveByInterface(ctx context.Context, interfaceID int64) ([]model.MappingRule, error) {
	var rows []mappingRuleRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, client_id, interface_id, name, source_field, target_field, target_level,
		        table_name, transformation, default_value, required, is_active, priority, data_type, validation_rule
		 FROM mapping_rules WHERE interface_id = $1 AND is_active = TRUE`, interfaceID)
	if err != nil {
		return nil, xgerrors.NewPersistenceError("loading mapping rules by interface", err)
	}
	return toMappingRules(rows), nil
}

// ByClientInterfaceTable scopes the same read to one physical table, used
// by callers needing just the header or just the line rule set directly.
func (r *RuleRepository) ByClientInterfaceTable(ctx context.Context, clientID, interfaceID int64, table string) ([]model.MappingRule, error) {
	var rows []mappingRuleRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, client_id, interface_id, name, source_field, target_field, target_level,
		        table_name, transformation, default_value, required, is_active, priority, data_type, validation_rule
		 FROM mapping_rules
		 WHERE client_id = $1 AND interface_id = $2 AND table_name = $3 AND is_active = TRUE`,
		clientID, interfaceID, table)
	if err != nil {
		return nil, xgerrors.NewPersistenceError("loading mapping rules by table", err)
	}
	return toMappingRules(rows), nil
}

func toMappingRules(rows []mappingRuleRow) []model.MappingRule {
	out := make([]model.MappingRule, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out
}
