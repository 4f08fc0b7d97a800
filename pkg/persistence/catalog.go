package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	xgerrors "github.com/b2bgate/xmlgate/internal/errors"
	"github.com/b2bgate/xmlgate/pkg/breaker"
	"github.com/b2bgate/xmlgate/pkg/model"
)

// CatalogRepository reads the clients and interfaces tables: the static
// per-tenant configuration the orchestrator resolves an envelope against.
type CatalogRepository struct {
	breakers *breaker.Registry
}

// NewCatalogRepository constructs a repository wrapping all I/O in the
// "repository" breaker.
func NewCatalogRepository(breakers *breaker.Registry) *CatalogRepository {
	return &CatalogRepository{breakers: breakers}
}

type clientRow struct {
	ID     int64  `db:"id"`
	Code   string `db:"code"`
	Name   string `db:"name"`
	Status string `db:"status"`
}

type interfaceRow struct {
	ID          int64  `db:"id"`
	ClientID    int64  `db:"client_id"`
	Name        string `db:"name"`
	Type        string `db:"type"`
	RootElement string `db:"root_element"`
	Namespace   string `db:"namespace"`
	SchemaPath  string `db:"schema_path"`
	Active      bool   `db:"active"`
	Priority    string `db:"priority"`
}

// ClientByID looks up a tenant by id. A missing or inactive row is a
// ConfigurationError: the envelope references a tenant the catalog no
// longer recognizes as eligible for ingestion.
func (r *CatalogRepository) ClientByID(ctx context.Context, db *DB, clientID int64) (model.Client, error) {
	result, err := r.breakers.Execute(ctx, "repository", func(ctx context.Context) (any, error) {
		var row clientRow
		err := db.GetContext(ctx, &row,
			`SELECT id, code, name, status FROM clients WHERE id = $1`, clientID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, xgerrors.NewConfigurationError("client not found", "client_id="+strconv.FormatInt(clientID, 10))
		}
		if err != nil {
			return nil, xgerrors.NewPersistenceError("looking up client", err)
		}
		if model.ClientStatus(row.Status) != model.ClientActive {
			return nil, xgerrors.NewConfigurationError("client is inactive", "client_id="+strconv.FormatInt(clientID, 10))
		}
		return model.Client{ID: row.ID, Code: row.Code, Name: row.Name, Status: model.ClientStatus(row.Status)}, nil
	}, func() (any, error) {
		return nil, xgerrors.NewCircuitOpenError("repository")
	})
	if err != nil {
		return model.Client{}, err
	}
	return result.(model.Client), nil
}

// InterfaceByID looks up an interface definition by id. A missing or
// inactive row is a ConfigurationError, per spec.md §4.10 step 1.
func (r *CatalogRepository) InterfaceByID(ctx context.Context, db *DB, interfaceID int64) (model.Interface, error) {
	result, err := r.breakers.Execute(ctx, "repository", func(ctx context.Context) (any, error) {
		var row interfaceRow
		err := db.GetContext(ctx, &row,
			`SELECT id, client_id, name, type, root_element, namespace, schema_path, active, priority
			 FROM interfaces WHERE id = $1`, interfaceID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, xgerrors.NewConfigurationError("interface not found", "interface_id="+strconv.FormatInt(interfaceID, 10))
		}
		if err != nil {
			return nil, xgerrors.NewPersistenceError("looking up interface", err)
		}
		if !row.Active {
			return nil, xgerrors.NewConfigurationError("interface is inactive", "interface_id="+strconv.FormatInt(interfaceID, 10))
		}
		return model.Interface{
			ID: row.ID, ClientID: row.ClientID, Name: row.Name, Type: row.Type,
			RootElement: row.RootElement, Namespace: row.Namespace, SchemaPath: row.SchemaPath,
			Active: row.Active, Priority: model.Priority(row.Priority),
		}, nil
	}, func() (any, error) {
		return nil, xgerrors.NewCircuitOpenError("repository")
	})
	if err != nil {
		return model.Interface{}, err
	}
	return result.(model.Interface), nil
}

// Resolver binds a CatalogRepository to one *DB, satisfying
// pkg/pipeline.InterfaceResolver without exposing the connection pool to
// the orchestrator directly.
type Resolver struct {
	db      *DB
	catalog *CatalogRepository
}

// NewResolver constructs a pipeline-facing Resolver.
func NewResolver(db *DB, catalog *CatalogRepository) *Resolver {
	return &Resolver{db: db, catalog: catalog}
}

func (r *Resolver) InterfaceByID(ctx context.Context, interfaceID int64) (model.Interface, error) {
	return r.catalog.InterfaceByID(ctx, r.db, interfaceID)
}

func (r *Resolver) ClientByID(ctx context.Context, clientID int64) (model.Client, error) {
	return r.catalog.ClientByID(ctx, r.db, clientID)
}
