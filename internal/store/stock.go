package store

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"techverse/marketplace/internal/inventory"
)

// StockMovement is an audit row for one change to a variant's stock.
type StockMovement struct {
	ID        string    `json:"id"`
	VariantID string    `json:"product_variant_id"`
	Change    int       `json:"change"`
	Type      string    `json:"type"`
	Note      string    `json:"note,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newMovement(variantID string, change int, typ, note, actorID string) StockMovement {
	return StockMovement{
		ID:        newID("mov"),
		VariantID: variantID,
		Change:    change,
		Type:      typ,
		Note:      note,
		CreatedBy: actorID,
		CreatedAt: time.Now().UTC(),
	}
}

func insertMovement(ctx context.Context, tx *sql.Tx, m StockMovement) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO stock_movements (id, product_variant_id, change, type, note, created_by, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, m.VariantID, m.Change, m.Type, nilIfEmpty(m.Note), nilIfEmpty(m.CreatedBy), m.CreatedAt)
	return wrapf(err, "insert stock movement")
}

// StockEntry is a variant as shown on the stock dashboard.
type StockEntry struct {
	Variant
	ProductName string `json:"product_name"`
	OwnerID     string `json:"owner_id"`
}

// StockFilter narrows ListStock. An empty OwnerID lists every seller's stock.
type StockFilter struct {
	OwnerID string
	Status  string
}

// ListStock returns variants with their stock status, ordered by product name.
func (s *Store) ListStock(ctx context.Context, f StockFilter) ([]StockEntry, error) {
	if f.Status != "" && !inventory.ValidStatus(f.Status) {
		return nil, invalidf("invalid stock status %q", f.Status)
	}
	out := make([]StockEntry, 0)
	keep := func(e StockEntry) {
		if f.Status == "" || e.StockStatus == f.Status {
			out = append(out, e)
		}
	}
	if s.db == nil {
		s.mu.RLock()
		for _, v := range s.mem.variants {
			p, ok := s.mem.products[v.ProductID]
			if !ok || (f.OwnerID != "" && p.UserID != f.OwnerID) {
				continue
			}
			keep(StockEntry{Variant: s.withStatus(v), ProductName: p.Name, OwnerID: p.UserID})
		}
		s.mu.RUnlock()
		sort.Slice(out, func(i, j int) bool {
			if out[i].ProductName != out[j].ProductName {
				return strings.ToLower(out[i].ProductName) < strings.ToLower(out[j].ProductName)
			}
			if out[i].IsDefault != out[j].IsDefault {
				return out[i].IsDefault
			}
			return out[i].ID < out[j].ID
		})
		return out, nil
	}

	w := &where{}
	if f.OwnerID != "" {
		w.and("p.user_id = " + w.arg(f.OwnerID))
	}
	rows, err := s.db.QueryContext(ctx, `SELECT v.id, v.product_id, v.sku, v.variant_label, v.price, v.stock_qty, v.low_stock_threshold,
		v.is_default, v.created_at, v.updated_at, p.name, p.user_id
		FROM product_variants v JOIN products p ON p.id = v.product_id `+w.String()+`
		ORDER BY lower(p.name), v.is_default DESC, v.id`, w.args...)
	if err != nil {
		return nil, wrapf(err, "list stock")
	}
	defer rows.Close()
	for rows.Next() {
		var e StockEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.SKU, &e.Label, &e.Price, &e.StockQty, &e.LowStockThreshold,
			&e.IsDefault, &e.CreatedAt, &e.UpdatedAt, &e.ProductName, &e.OwnerID); err != nil {
			return nil, wrapf(err, "scan stock")
		}
		e.Variant = s.withStatus(e.Variant)
		keep(e)
	}
	return out, wrapf(rows.Err(), "list stock")
}

// GetStock returns a single variant's stock entry.
func (s *Store) GetStock(ctx context.Context, variantID string) (StockEntry, error) {
	v, err := s.GetVariant(ctx, variantID)
	if err != nil {
		return StockEntry{}, err
	}
	p, err := s.GetProduct(ctx, v.ProductID)
	if err != nil {
		return StockEntry{}, err
	}
	return StockEntry{Variant: v, ProductName: p.Name, OwnerID: p.UserID}, nil
}

// StockAdjustment is a manual stock change.
type StockAdjustment struct {
	Change int    `json:"change"`
	Type   string `json:"type"`
	Note   string `json:"note"`
}

func (a *StockAdjustment) normalize() error {
	a.Type = strings.ToLower(strings.TrimSpace(a.Type))
	a.Note = strings.TrimSpace(a.Note)
	if a.Type == "" {
		a.Type = inventory.MovementAdjustment
	}
	switch {
	case a.Change == 0:
		return invalidf("change must not be zero")
	case !inventory.ManualMovement(a.Type):
		return invalidf("type must be one of restock, adjustment or return")
	case tooLong(a.Note, 255):
		return invalidf("note must be at most 255 characters")
	}
	return nil
}

// AdjustStock applies a manual change to a variant's stock and records it.
// A change that would leave the stock negative is a conflict.
func (s *Store) AdjustStock(ctx context.Context, variantID, actorID string, adj StockAdjustment) (Variant, StockMovement, error) {
	if err := adj.normalize(); err != nil {
		return Variant{}, StockMovement{}, err
	}
	m := newMovement(variantID, adj.Change, adj.Type, adj.Note, actorID)
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		v, ok := s.mem.variants[variantID]
		if !ok {
			return Variant{}, StockMovement{}, ErrNotFound
		}
		if v.StockQty+adj.Change < 0 {
			return Variant{}, StockMovement{}, conflictf("stock cannot go below zero (current %d)", v.StockQty)
		}
		v.StockQty += adj.Change
		v.UpdatedAt = m.CreatedAt
		s.mem.variants[variantID] = v
		s.mem.movements[m.ID] = m
		s.listCache.purge()
		return s.withStatus(v), m, nil
	}

	var out Variant
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		v, err := scanVariant(tx.QueryRowContext(ctx, `SELECT `+variantColumns+` FROM product_variants WHERE id=$1 FOR UPDATE`, variantID))
		if err != nil {
			return wrapf(err, "load variant %s", variantID)
		}
		if v.StockQty+adj.Change < 0 {
			return conflictf("stock cannot go below zero (current %d)", v.StockQty)
		}
		v.StockQty += adj.Change
		v.UpdatedAt = m.CreatedAt
		if _, err := tx.ExecContext(ctx, `UPDATE product_variants SET stock_qty=$2, updated_at=$3 WHERE id=$1`, v.ID, v.StockQty, v.UpdatedAt); err != nil {
			return wrapf(err, "update stock")
		}
		out = v
		return insertMovement(ctx, tx, m)
	})
	if err != nil {
		return Variant{}, StockMovement{}, err
	}
	s.listCache.purge()
	return s.withStatus(out), m, nil
}

// MovementFilter narrows ListMovements. An empty VariantID lists every movement.
type MovementFilter struct {
	VariantID string
	Cursor    string
	Limit     int
}

func movementKey(m StockMovement) (time.Time, string) { return m.CreatedAt, m.ID }

// ListMovements returns stock movements, newest first.
func (s *Store) ListMovements(ctx context.Context, f MovementFilter) (Page[StockMovement], error) {
	limit := clampLimit(f.Limit)
	if s.db == nil {
		s.mu.RLock()
		items := make([]StockMovement, 0)
		for _, m := range s.mem.movements {
			if f.VariantID == "" || m.VariantID == f.VariantID {
				items = append(items, m)
			}
		}
		s.mu.RUnlock()
		return paginate(items, movementKey, f.Cursor, limit)
	}
	w := &where{}
	if f.VariantID != "" {
		w.and("product_variant_id = " + w.arg(f.VariantID))
	}
	if err := w.keyset("", f.Cursor); err != nil {
		return Page[StockMovement]{}, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, product_variant_id, change, type, note, created_by, created_at FROM stock_movements `+
		w.String()+` ORDER BY created_at DESC, id DESC LIMIT `+w.arg(limit+1), w.args...)
	if err != nil {
		return Page[StockMovement]{}, wrapf(err, "list stock movements")
	}
	defer rows.Close()
	items := make([]StockMovement, 0, limit+1)
	for rows.Next() {
		var m StockMovement
		var note, by sql.NullString
		if err := rows.Scan(&m.ID, &m.VariantID, &m.Change, &m.Type, &note, &by, &m.CreatedAt); err != nil {
			return Page[StockMovement]{}, wrapf(err, "scan stock movement")
		}
		m.Note, m.CreatedBy = note.String, by.String
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return Page[StockMovement]{}, wrapf(err, "list stock movements")
	}
	return cutPage(items, movementKey, limit), nil
}
