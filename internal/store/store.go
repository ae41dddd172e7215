// Package store persists the marketplace in PostgreSQL, or in process memory
// when no database is reachable. Every exported operation behaves the same in
// both modes; memory mode serialises writes behind a single lock.
package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"techverse/marketplace/internal/auth"
	"techverse/marketplace/internal/inventory"
)

// Storage modes reported by Mode.
const (
	ModePostgres = "postgres"
	ModeMemory   = "memory"
)

// Options tune a Store. Zero values select the defaults.
type Options struct {
	CacheTTL          time.Duration
	LowStockThreshold int
	Logger            zerolog.Logger
}

// Store is the data layer shared by every HTTP handler and CLI command.
type Store struct {
	db       *sql.DB
	log      zerolog.Logger
	lowStock int

	listCache *listCache[Page[Product]]

	mu  sync.RWMutex
	mem *memory
}

var _ auth.SessionStore = (*Store)(nil)

// New returns a store backed by db, or an in-memory store when db is nil.
func New(db *sql.DB, opts Options) *Store {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 45 * time.Second
	}
	if opts.LowStockThreshold <= 0 {
		opts.LowStockThreshold = inventory.DefaultLowThreshold
	}
	s := &Store{
		db:        db,
		log:       opts.Logger,
		lowStock:  opts.LowStockThreshold,
		listCache: newListCache[Page[Product]](opts.CacheTTL),
	}
	if db == nil {
		s.mem = newMemory()
	}
	return s
}

// Mode reports whether the store runs against postgres or memory.
func (s *Store) Mode() string {
	if s.db == nil {
		return ModeMemory
	}
	return ModePostgres
}

// Ping checks database connectivity. Memory mode is always healthy.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Close releases the database pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// inTx runs fn inside a database transaction, committing when fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(mapDBError(err), "commit transaction")
	}
	return nil
}

// stockStatus classifies a variant's quantity with its own threshold, falling
// back to the store-wide default.
func (s *Store) stockStatus(qty, threshold int) string {
	if threshold <= 0 {
		threshold = s.lowStock
	}
	return inventory.Status(qty, threshold)
}

type memory struct {
	users      map[string]User
	sessions   map[string]auth.Session
	addresses  map[string]Address
	categories map[string]Category
	brands     map[string]Brand
	products   map[string]Product
	variants   map[string]Variant
	images     map[string]ProductImage
	attributes map[string]ProductAttribute
	reviews    map[string]Review
	baskets    map[string]Basket
	items      map[string]BasketItem
	orders     map[string]Order
	orderItems map[string]OrderItem
	movements  map[string]StockMovement
	returns    map[string]Return
	messages   map[string]ContactMessage
}

func newMemory() *memory {
	return &memory{
		users:      make(map[string]User),
		sessions:   make(map[string]auth.Session),
		addresses:  make(map[string]Address),
		categories: make(map[string]Category),
		brands:     make(map[string]Brand),
		products:   make(map[string]Product),
		variants:   make(map[string]Variant),
		images:     make(map[string]ProductImage),
		attributes: make(map[string]ProductAttribute),
		reviews:    make(map[string]Review),
		baskets:    make(map[string]Basket),
		items:      make(map[string]BasketItem),
		orders:     make(map[string]Order),
		orderItems: make(map[string]OrderItem),
		movements:  make(map[string]StockMovement),
		returns:    make(map[string]Return),
		messages:   make(map[string]ContactMessage),
	}
}
