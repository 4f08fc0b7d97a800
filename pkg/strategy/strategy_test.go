package strategy

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/b2bgate/xmlgate/pkg/batch"
	"github.com/b2bgate/xmlgate/pkg/breaker"
	"github.com/b2bgate/xmlgate/pkg/model"
	"github.com/b2bgate/xmlgate/pkg/persistence"
	"github.com/b2bgate/xmlgate/pkg/rules"
	"github.com/b2bgate/xmlgate/pkg/transform"
	"github.com/b2bgate/xmlgate/pkg/xmlproc"
)

type fakeRepo struct {
	rules []model.MappingRule
}

func (f fakeRepo) ActiveByInterface(ctx context.Context, interfaceID int64) ([]model.MappingRule, error) {
	return f.rules, nil
}

func (f fakeRepo) ByClientInterfaceTable(ctx context.Context, clientID, interfaceID int64, table string) ([]model.MappingRule, error) {
	return f.rules, nil
}

type zeroSampler struct{}

func (zeroSampler) QueueDepth() int     { return 0 }
func (zeroSampler) SystemLoad() float64 { return 0 }

func TestFactoryFallsBackToDefaultForUnknownType(t *testing.T) {
	store := rules.New(fakeRepo{}, nil, 0)
	headers := persistence.NewHeaderRepository(breaker.NewRegistry())
	lines := persistence.NewLineRepository(breaker.NewRegistry())
	sizer := batch.New(batch.DefaultConfig(), zeroSampler{})

	f := NewCatalog(store, headers, lines, sizer)

	got := f.For("SOMETHING_UNKNOWN")
	require.NotNil(t, got)
	require.Equal(t, string(DocTypeASN), got.DocumentType())
}

func TestFactoryDispatchesByUppercasedType(t *testing.T) {
	store := rules.New(fakeRepo{}, nil, 0)
	headers := persistence.NewHeaderRepository(breaker.NewRegistry())
	lines := persistence.NewLineRepository(breaker.NewRegistry())
	sizer := batch.New(batch.DefaultConfig(), zeroSampler{})

	f := NewCatalog(store, headers, lines, sizer)

	got := f.For("order")
	require.Equal(t, string(DocTypeOrder), got.DocumentType())
}

func TestDetermineLineNodeXPathUsesCommonParent(t *testing.T) {
	s := New(Config{
		DocType:             string(DocTypeASN),
		LineNodeDefaultPath: "//ASNLine",
		HeaderSchema:        asnHeaderSchema(),
		LineSchema:          asnLineSchema(),
	}, nil, nil, nil, nil)

	got := s.determineLineNodeXPath([]model.MappingRule{
		{SourceField: "//Lines/Line/ItemNumber"},
		{SourceField: "//Lines/Line/Quantity"},
	})
	require.Equal(t, "//Lines/Line", got)
}

func TestDetermineLineNodeXPathFallsBackWhenRulesDisagree(t *testing.T) {
	s := New(Config{
		DocType:             string(DocTypeASN),
		LineNodeDefaultPath: "//ASNLine",
	}, nil, nil, nil, nil)

	got := s.determineLineNodeXPath([]model.MappingRule{
		{SourceField: "//A/X"},
		{SourceField: "//B/Y"},
	})
	require.Equal(t, "//ASNLine", got)
}

func TestEvalAndTransformRaisesOnRequiredMiss(t *testing.T) {
	s := New(Config{HeaderSchema: asnHeaderSchema()}, nil, nil, nil, nil)
	doc, err := xmlproc.Parse([]byte(`<Root><Other>x</Other></Root>`))
	require.NoError(t, err)

	_, err = s.evalAndTransform(doc.Context(), model.MappingRule{
		SourceField: "//Missing", TargetField: "asn_number", Required: true,
	}, s.headerSchema)
	require.Error(t, err)
}

func TestEvalAndTransformAppliesDefaultValue(t *testing.T) {
	s := New(Config{HeaderSchema: asnHeaderSchema()}, nil, nil, nil, nil)
	doc, err := xmlproc.Parse([]byte(`<Root><Other>x</Other></Root>`))
	require.NoError(t, err)

	def := "UNKNOWN_CARRIER"
	val, err := s.evalAndTransform(doc.Context(), model.MappingRule{
		SourceField: "//Missing", TargetField: "carrier_code", DefaultValue: &def,
	}, s.headerSchema)
	require.NoError(t, err)
	require.Equal(t, "UNKNOWN_CARRIER", val)
}

// newTestProcessStrategy builds a minimal ASN-shaped strategy plus a
// sqlmock-backed *persistence.DB, for exercising Process end-to-end.
func newTestProcessStrategy(t *testing.T, lineRules []model.MappingRule) (*Strategy, *persistence.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	allRules := append([]model.MappingRule{
		{SourceField: "//Header/AsnNumber", TargetField: "asn_number", TargetLevel: model.LevelHeader, Required: true, IsActive: true},
	}, lineRules...)

	store := rules.New(fakeRepo{rules: allRules}, nil, 0)
	headers := persistence.NewHeaderRepository(breaker.NewRegistry())
	lines := persistence.NewLineRepository(breaker.NewRegistry())
	sizer := batch.New(batch.DefaultConfig(), zeroSampler{})

	s := New(Config{
		DocType:             string(DocTypeASN),
		RootElement:         "ASNMessage",
		BusinessKeyField:    "asn_number",
		LineNodeDefaultPath: "//ASNLine",
		HeaderSchema: EntitySchema{
			Table:  "ASN_HEADERS",
			Fields: []FieldDescriptor{{Name: "asn_number", Type: transform.TypeString}},
		},
		LineSchema: EntitySchema{
			Table: "ASN_LINES",
			Fields: []FieldDescriptor{
				{Name: "item_number", Type: transform.TypeString},
				{Name: "weight", Type: transform.TypeBigDecimal, Nullable: true},
			},
		},
	}, store, headers, lines, sizer)

	return s, &persistence.DB{DB: sqlx.NewDb(db, "pgx")}, mock
}

func TestProcessSkipsNonRequiredLineRuleFailureAndContinues(t *testing.T) {
	lineRules := []model.MappingRule{
		{SourceField: "//Lines/Line/ItemNumber", TargetField: "item_number", TargetLevel: model.LevelLine, Required: true, IsActive: true},
		{SourceField: "//Lines/Line/Weight", TargetField: "weight", TargetLevel: model.LevelLine, Required: false, IsActive: true},
	}
	s, db, mock := newTestProcessStrategy(t, lineRules)

	doc, err := xmlproc.Parse([]byte(`<ASNMessage>
		<Header><AsnNumber>ASN1</AsnNumber></Header>
		<Lines><Line><ItemNumber>I1</ItemNumber><Weight>heavy</Weight></Line></Lines>
	</ASNMessage>`))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO ASN_HEADERS")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec(regexp.QuoteMeta("SAVEPOINT")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO ASN_LINES")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec(regexp.QuoteMeta("RELEASE SAVEPOINT")).WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.BeginTx(context.Background())
	require.NoError(t, err)

	header, err := s.Process(context.Background(), tx, doc, model.Client{ID: 1}, model.Interface{ID: 1})
	require.NoError(t, err)
	require.Equal(t, "SUCCESS", header.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessAbortsOnRequiredLineRuleFailure(t *testing.T) {
	lineRules := []model.MappingRule{
		{SourceField: "//Lines/Line/ItemNumber", TargetField: "item_number", TargetLevel: model.LevelLine, Required: true, IsActive: true},
		{SourceField: "//Lines/Line/Weight", TargetField: "weight", TargetLevel: model.LevelLine, Required: false, IsActive: true},
	}
	s, db, mock := newTestProcessStrategy(t, lineRules)

	// ItemNumber is absent, so the required line rule fails to resolve.
	doc, err := xmlproc.Parse([]byte(`<ASNMessage>
		<Header><AsnNumber>ASN1</AsnNumber></Header>
		<Lines><Line><Weight>heavy</Weight></Line></Lines>
	</ASNMessage>`))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO ASN_HEADERS")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	tx, err := db.BeginTx(context.Background())
	require.NoError(t, err)

	_, err = s.Process(context.Background(), tx, doc, model.Client{ID: 1}, model.Interface{ID: 1})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
