package persistence

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

// insertReturningID renders a deterministic "INSERT INTO table (...)
// VALUES (...) RETURNING id" statement from cols (sorted for reproducible
// SQL across runs), binds it against q's named-parameter dialect, and
// scans the returned id.
func insertReturningID(ctx context.Context, q Querier, table string, cols map[string]any) (int64, error) {
	names := make([]string, 0, len(cols))
	for k := range cols {
		names = append(names, k)
	}
	sort.Strings(names)

	placeholders := make([]string, len(names))
	for i, n := range names {
		placeholders[i] = ":" + n
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		table, strings.Join(names, ", "), strings.Join(placeholders, ", "),
	)

	bound, args, err := sqlx.Named(query, cols)
	if err != nil {
		return 0, fmt.Errorf("binding named parameters: %w", err)
	}
	bound = q.Rebind(bound)

	var id int64
	if err := q.QueryRowContext(ctx, bound, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
