package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/b2bgate/xmlgate/pkg/model"
)

type fakeRepo struct {
	calls int
	rules []model.MappingRule
}

func (f *fakeRepo) ActiveByInterface(ctx context.Context, interfaceID int64) ([]model.MappingRule, error) {
	f.calls++
	return f.rules, nil
}

func (f *fakeRepo) ByClientInterfaceTable(ctx context.Context, clientID, interfaceID int64, table string) ([]model.MappingRule, error) {
	f.calls++
	return f.rules, nil
}

func TestActiveByInterfaceOrdersByPriorityThenID(t *testing.T) {
	repo := &fakeRepo{rules: []model.MappingRule{
		{ID: 2, Priority: 1, IsActive: true},
		{ID: 1, Priority: 1, IsActive: true},
		{ID: 3, Priority: 0, IsActive: true},
	}}
	store := New(repo, nil, 0)

	got, err := store.ActiveByInterface(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, int64(3), got[0].ID)
	require.Equal(t, int64(1), got[1].ID)
	require.Equal(t, int64(2), got[2].ID)
}

func TestActiveByInterfaceCachesWithinTTL(t *testing.T) {
	repo := &fakeRepo{rules: []model.MappingRule{{ID: 1, IsActive: true}}}
	store := New(repo, nil, 0)

	_, err := store.ActiveByInterface(context.Background(), 1)
	require.NoError(t, err)
	_, err = store.ActiveByInterface(context.Background(), 1)
	require.NoError(t, err)

	require.Equal(t, 1, repo.calls, "second call within TTL should be served from cache")
}

func TestActiveByInterfaceEmptyEscalatesToConfigurationError(t *testing.T) {
	repo := &fakeRepo{rules: nil}
	store := New(repo, nil, 0)

	_, err := store.ActiveByInterface(context.Background(), 1)
	require.Error(t, err)
}
