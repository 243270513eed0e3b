package ledger

import (
	"sync"

	"go.uber.org/zap"

	"github.com/finbooks/ledger/internal/clock"
	"github.com/finbooks/ledger/internal/identity"
	"github.com/finbooks/ledger/internal/interfaces"
)

// Service is the posting and balance-consistency engine. It holds the
// storage collaborator plus a mutex per ledger: commits to one ledger are
// serialized in process so validation always runs against the state it
// will be applied to, while separate ledgers commit independently.
type Service struct {
	store     interfaces.Store
	clock     interfaces.Clock
	identity  interfaces.Identity
	publisher interfaces.EventPublisher
	cache     interfaces.BalanceCache
	logger    *zap.Logger

	muMap map[string]*sync.Mutex
	mapMu sync.Mutex
}

// Option configures optional collaborators on a Service.
type Option func(*Service)

// WithClock replaces the default monotonic system clock.
func WithClock(c interfaces.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithIdentity replaces the default context-backed identity collaborator.
func WithIdentity(id interfaces.Identity) Option {
	return func(s *Service) { s.identity = id }
}

// WithPublisher enables best-effort event publishing after commits.
func WithPublisher(p interfaces.EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithCache enables the materialized current-balance cache.
func WithCache(c interfaces.BalanceCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates the engine on top of a storage implementation.
func NewService(store interfaces.Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		clock:    clock.NewSystem(),
		identity: identity.FromContext{},
		logger:   zap.NewNop(),
		muMap:    make(map[string]*sync.Mutex),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ledgerLock returns the commit lock for a ledger, creating it on first
// use.
func (s *Service) ledgerLock(ledgerID string) *sync.Mutex {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()

	if _, exists := s.muMap[ledgerID]; !exists {
		s.muMap[ledgerID] = &sync.Mutex{}
	}

	return s.muMap[ledgerID]
}
