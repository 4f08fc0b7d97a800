// Package rules implements the mapping-rule store (C5): reads of active
// MappingRule rows filtered by client/interface/table, ordered by
// priority then id, backed by a short-TTL read-through cache since admin
// writes are out of scope for this core (spec.md §5 bounds staleness to
// <= 60s).
package rules

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	xgerrors "github.com/b2bgate/xmlgate/internal/errors"
	"github.com/b2bgate/xmlgate/pkg/breaker"
	"github.com/b2bgate/xmlgate/pkg/model"
)

// Repository is the persistence-facing read surface the store wraps.
type Repository interface {
	ActiveByInterface(ctx context.Context, interfaceID int64) ([]model.MappingRule, error)
	ByClientInterfaceTable(ctx context.Context, clientID, interfaceID int64, table string) ([]model.MappingRule, error)
}

// DefaultTTL is the cache staleness bound the concurrency model allows.
const DefaultTTL = 60 * time.Second

type cacheEntry struct {
	rules     []model.MappingRule
	expiresAt time.Time
}

// Store is the mapping-rule read path used by pkg/strategy. All
// repository access is wrapped by the "repository" circuit breaker.
type Store struct {
	repo     Repository
	breakers *breaker.Registry
	ttl      time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New constructs a Store. breakers may be nil in tests, in which case
// calls go straight to repo with no resilience wrapping.
func New(repo Repository, breakers *breaker.Registry, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{repo: repo, breakers: breakers, ttl: ttl, cache: make(map[string]cacheEntry)}
}

// ActiveByInterface returns every active rule for interfaceID across both
// HEADER and LINE levels, sorted by priority then id.
func (s *Store) ActiveByInterface(ctx context.Context, interfaceID int64) ([]model.MappingRule, error) {
	key := cacheKey("iface", interfaceID, 0, "")
	if rules, ok := s.fromCache(key); ok {
		return rules, nil
	}

	rules, err := s.load(ctx, key, func(ctx context.Context) ([]model.MappingRule, error) {
		return s.repo.ActiveByInterface(ctx, interfaceID)
	})
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, xgerrors.NewConfigurationError(
			"no active mapping rules for interface", "interface_id="+strconv.FormatInt(interfaceID, 10))
	}
	return rules, nil
}

// ByClientInterfaceTable returns active rules scoped to one table (header
// or line table name), sorted by priority then id.
func (s *Store) ByClientInterfaceTable(ctx context.Context, clientID, interfaceID int64, table string) ([]model.MappingRule, error) {
	key := cacheKey("table", interfaceID, clientID, table)
	if rules, ok := s.fromCache(key); ok {
		return rules, nil
	}
	return s.load(ctx, key, func(ctx context.Context) ([]model.MappingRule, error) {
		return s.repo.ByClientInterfaceTable(ctx, clientID, interfaceID, table)
	})
}

func (s *Store) fromCache(key string) ([]model.MappingRule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.rules, true
}

func (s *Store) load(ctx context.Context, key string, fetch func(context.Context) ([]model.MappingRule, error)) ([]model.MappingRule, error) {
	var rules []model.MappingRule

	if s.breakers == nil {
		r, err := fetch(ctx)
		if err != nil {
			return nil, xgerrors.NewPersistenceError("loading mapping rules", err)
		}
		rules = r
	} else {
		res, err := s.breakers.Execute(ctx, "repository", func(ctx context.Context) (any, error) {
			return fetch(ctx)
		}, func() (any, error) {
			return []model.MappingRule(nil), nil
		})
		if err != nil {
			return nil, err
		}
		rules, _ = res.([]model.MappingRule)
	}

	sort.Sort(model.ByPriorityThenID(rules))

	s.mu.Lock()
	s.cache[key] = cacheEntry{rules: rules, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()

	return rules, nil
}

func cacheKey(kind string, interfaceID, clientID int64, table string) string {
	return kind + ":" + strconv.FormatInt(interfaceID, 10) + ":" + strconv.FormatInt(clientID, 10) + ":" + table
}

// HeaderRules filters rules to HEADER level only.
func HeaderRules(rules []model.MappingRule) []model.MappingRule {
	return filterLevel(rules, model.LevelHeader)
}

// LineRules filters rules to LINE level only.
func LineRules(rules []model.MappingRule) []model.MappingRule {
	return filterLevel(rules, model.LevelLine)
}

func filterLevel(rules []model.MappingRule, level model.TargetLevel) []model.MappingRule {
	out := make([]model.MappingRule, 0, len(rules))
	for _, r := range rules {
		if r.TargetLevel == level && r.IsActive {
			out = append(out, r)
		}
	}
	return out
}
