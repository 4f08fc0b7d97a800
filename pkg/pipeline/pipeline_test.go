package pipeline

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	xgerrors "github.com/b2bgate/xmlgate/internal/errors"
	"github.com/b2bgate/xmlgate/pkg/breaker"
	"github.com/b2bgate/xmlgate/pkg/model"
	"github.com/b2bgate/xmlgate/pkg/persistence"
	"github.com/b2bgate/xmlgate/pkg/schema"
	"github.com/b2bgate/xmlgate/pkg/strategy"
)

type fakeResolver struct {
	iface      model.Interface
	ifaceErr   error
	client     model.Client
	clientErr  error
}

func (f fakeResolver) InterfaceByID(ctx context.Context, interfaceID int64) (model.Interface, error) {
	return f.iface, f.ifaceErr
}

func (f fakeResolver) ClientByID(ctx context.Context, clientID int64) (model.Client, error) {
	return f.client, f.clientErr
}

func newTestDB(t *testing.T) (*persistence.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return &persistence.DB{DB: sqlx.NewDb(db, "pgx")}, mock
}

func TestProcessRejectsUnknownInterface(t *testing.T) {
	db, _ := newTestDB(t)
	resolver := fakeResolver{ifaceErr: xgerrors.NewConfigurationError("interface not found", "interface_id=9")}
	orch := New(db, resolver, schema.New(schema.DefaultLimits()), strategy.NewFactory("ASN"),
		persistence.NewProcessedFileRepository(breaker.NewRegistry()))

	_, err := orch.Process(context.Background(), model.MessageEnvelope{InterfaceID: 9, ClientID: 1})
	require.Error(t, err)
}

func TestProcessMarksErrorOnParseFailure(t *testing.T) {
	db, mock := newTestDB(t)
	resolver := fakeResolver{
		iface:  model.Interface{ID: 1, ClientID: 1, Type: "ASN", RootElement: "ASN"},
		client: model.Client{ID: 1, Code: "ACME"},
	}
	orch := New(db, resolver, schema.New(schema.DefaultLimits()), strategy.NewFactory("ASN"),
		persistence.NewProcessedFileRepository(breaker.NewRegistry()))

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO processed_files")).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "file_name", "client_id", "interface_id", "status", "error_message", "content", "processed_at"},
		).AddRow(int64(1), "bad.xml", int64(1), int64(1), "PROCESSING", nil, nil, nil))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE processed_files")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := orch.Process(context.Background(), model.MessageEnvelope{
		FileBytes: []byte(""), FileName: "bad.xml", ClientID: 1, InterfaceID: 1,
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
