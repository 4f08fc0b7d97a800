package persistence

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/b2bgate/xmlgate/pkg/breaker"
	"github.com/b2bgate/xmlgate/pkg/model"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "pgx"), mock
}

func TestCreateHeaderInsertsAndReturnsID(t *testing.T) {
	sqlxDB, mock := newMockDB(t)
	defer sqlxDB.Close()

	mock.ExpectBegin()
	tx, err := sqlxDB.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(
		"INSERT INTO ASN_HEADERS (asn_number, client_id, status) VALUES ($1, $2, $3) RETURNING id",
	)).WithArgs("ASN-1", int64(7), "PROCESSING").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(99)))

	repo := NewHeaderRepository(breaker.NewRegistry())
	got, err := repo.CreateHeader(context.Background(), tx, model.DocumentHeader{
		ClientID:    7,
		Table:       "ASN_HEADERS",
		BusinessKey: "ASN-1",
		Status:      "PROCESSING",
		Fields:      map[string]any{"asn_number": "ASN-1"},
	})
	require.NoError(t, err)
	require.Equal(t, int64(99), got.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateHeaderRejectsMissingBusinessKey(t *testing.T) {
	repo := NewHeaderRepository(breaker.NewRegistry())
	_, err := repo.CreateHeader(context.Background(), nil, model.DocumentHeader{ClientID: 1})
	require.Error(t, err)
}

func TestCreateLinesRejectsMixedHeaders(t *testing.T) {
	repo := NewLineRepository(breaker.NewRegistry())
	lines := []model.DocumentLine{
		{HeaderID: 1, ClientID: 1, LineNumber: 1},
		{HeaderID: 2, ClientID: 1, LineNumber: 2},
	}
	err := repo.CreateLines(context.Background(), nil, 10, lines)
	require.Error(t, err)
}

func TestCreateLinesRejectsDuplicateLineNumbers(t *testing.T) {
	repo := NewLineRepository(breaker.NewRegistry())
	lines := []model.DocumentLine{
		{HeaderID: 1, ClientID: 1, LineNumber: 1},
		{HeaderID: 1, ClientID: 1, LineNumber: 1},
	}
	err := repo.CreateLines(context.Background(), nil, 10, lines)
	require.Error(t, err)
}

func TestCreateLinesRejectsEmptyBatch(t *testing.T) {
	repo := NewLineRepository(breaker.NewRegistry())
	err := repo.CreateLines(context.Background(), nil, 10, nil)
	require.Error(t, err)
}
