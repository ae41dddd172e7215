package store

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"techverse/marketplace/internal/inventory"
)

// Variant is a purchasable SKU of a product carrying its own price and stock.
type Variant struct {
	ID                string          `json:"id"`
	ProductID         string          `json:"product_id"`
	SKU               string          `json:"sku"`
	Label             string          `json:"variant_label"`
	Price             decimal.Decimal `json:"price"`
	StockQty          int             `json:"stock_qty"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	IsDefault         bool            `json:"is_default"`
	StockStatus       string          `json:"stock_status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type VariantInput struct {
	SKU               *string          `json:"sku,omitempty"`
	Label             *string          `json:"variant_label,omitempty"`
	Price             *decimal.Decimal `json:"price,omitempty"`
	StockQty          *int             `json:"stock_qty,omitempty"`
	LowStockThreshold *int             `json:"low_stock_threshold,omitempty"`
}

func (in VariantInput) empty() bool {
	return in.SKU == nil && in.Label == nil && in.Price == nil && in.StockQty == nil && in.LowStockThreshold == nil
}

func (in VariantInput) apply(v *Variant) {
	if in.SKU != nil {
		v.SKU = strings.TrimSpace(*in.SKU)
	}
	if in.Label != nil {
		v.Label = strings.TrimSpace(*in.Label)
	}
	if in.Price != nil {
		v.Price = in.Price.Round(2)
	}
	if in.StockQty != nil {
		v.StockQty = *in.StockQty
	}
	if in.LowStockThreshold != nil {
		v.LowStockThreshold = *in.LowStockThreshold
	}
}

func validateVariant(v Variant) error {
	switch {
	case v.Label == "":
		return invalidf("variant_label is required")
	case tooLong(v.Label, 100):
		return invalidf("variant_label must be at most 100 characters")
	case v.SKU == "" || tooLong(v.SKU, 64):
		return invalidf("sku must be 1 to 64 characters")
	case v.Price.IsNegative():
		return invalidf("price must not be negative")
	case v.StockQty < 0:
		return invalidf("stock_qty must not be negative")
	case v.LowStockThreshold < 0:
		return invalidf("low_stock_threshold must not be negative")
	}
	return nil
}

func (s *Store) withStatus(v Variant) Variant {
	v.StockStatus = s.stockStatus(v.StockQty, v.LowStockThreshold)
	return v
}

// CreateVariant adds a variant to a product. Opening stock is recorded as a
// restock movement by actorID.
func (s *Store) CreateVariant(ctx context.Context, productID, actorID string, in VariantInput) (Variant, error) {
	if in.Price == nil {
		return Variant{}, invalidf("price is required")
	}
	now := time.Now().UTC()
	v := Variant{ID: newID("var"), ProductID: productID, CreatedAt: now, UpdatedAt: now}
	in.apply(&v)
	if v.SKU == "" {
		v.SKU = generateSKU()
	}
	if err := validateVariant(v); err != nil {
		return Variant{}, err
	}
	var opening *StockMovement
	if v.StockQty > 0 {
		m := newMovement(v.ID, v.StockQty, inventory.MovementRestock, "Initial stock", actorID)
		opening = &m
	}

	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.mem.products[productID]; !ok {
			return Variant{}, ErrNotFound
		}
		if s.mem.skuTaken(v.SKU) {
			return Variant{}, conflictf("sku %q already exists", v.SKU)
		}
		s.mem.variants[v.ID] = v
		if opening != nil {
			s.mem.movements[opening.ID] = *opening
		}
		s.listCache.purge()
		return s.withStatus(v), nil
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id=$1)`, productID).Scan(&exists); err != nil {
			return wrapf(err, "check product")
		}
		if !exists {
			return ErrNotFound
		}
		if err := insertVariant(ctx, tx, v); err != nil {
			return err
		}
		if opening != nil {
			return insertMovement(ctx, tx, *opening)
		}
		return nil
	})
	if err != nil {
		return Variant{}, err
	}
	s.listCache.purge()
	return s.withStatus(v), nil
}

func insertVariant(ctx context.Context, tx *sql.Tx, v Variant) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO product_variants (id, product_id, sku, variant_label, price, stock_qty, low_stock_threshold, is_default, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		v.ID, v.ProductID, v.SKU, v.Label, v.Price, v.StockQty, v.LowStockThreshold, v.IsDefault, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		if isConflict(mapDBError(err)) {
			return conflictf("sku %q already exists", v.SKU)
		}
		return wrapf(err, "insert variant")
	}
	return nil
}

const variantColumns = `id, product_id, sku, variant_label, price, stock_qty, low_stock_threshold, is_default, created_at, updated_at`

func scanVariant(row scanner) (Variant, error) {
	var v Variant
	err := row.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Label, &v.Price, &v.StockQty, &v.LowStockThreshold, &v.IsDefault, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func (s *Store) GetVariant(ctx context.Context, id string) (Variant, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		v, ok := s.mem.variants[id]
		if !ok {
			return Variant{}, ErrNotFound
		}
		return s.withStatus(v), nil
	}
	v, err := scanVariant(s.db.QueryRowContext(ctx, `SELECT `+variantColumns+` FROM product_variants WHERE id=$1`, id))
	if err != nil {
		return Variant{}, wrapf(err, "get variant %s", id)
	}
	return s.withStatus(v), nil
}

// DefaultVariant returns the variant created alongside the product.
func (s *Store) DefaultVariant(ctx context.Context, productID string) (Variant, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		v, ok := s.mem.defaultVariant(productID)
		if !ok {
			return Variant{}, ErrNotFound
		}
		return s.withStatus(v), nil
	}
	v, err := scanVariant(s.db.QueryRowContext(ctx,
		`SELECT `+variantColumns+` FROM product_variants WHERE product_id=$1 AND is_default`, productID))
	if err != nil {
		return Variant{}, wrapf(err, "default variant of %s", productID)
	}
	return s.withStatus(v), nil
}

// ListVariants returns a product's variants, default first.
func (s *Store) ListVariants(ctx context.Context, productID string) ([]Variant, error) {
	out := make([]Variant, 0)
	if s.db == nil {
		s.mu.RLock()
		for _, v := range s.mem.variants {
			if v.ProductID == productID {
				out = append(out, s.withStatus(v))
			}
		}
		s.mu.RUnlock()
		sort.Slice(out, func(i, j int) bool {
			if out[i].IsDefault != out[j].IsDefault {
				return out[i].IsDefault
			}
			return out[i].ID < out[j].ID
		})
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+variantColumns+` FROM product_variants WHERE product_id=$1 ORDER BY is_default DESC, id`, productID)
	if err != nil {
		return nil, wrapf(err, "list variants")
	}
	defer rows.Close()
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, wrapf(err, "scan variant")
		}
		out = append(out, s.withStatus(v))
	}
	return out, wrapf(rows.Err(), "list variants")
}

// UpdateVariant patches a variant. A stock change is recorded as an
// adjustment; a price change on the default variant is mirrored on the product.
func (s *Store) UpdateVariant(ctx context.Context, id, actorID string, in VariantInput) (Variant, error) {
	if in.empty() {
		return Variant{}, errEmptyUpdate
	}
	now := time.Now().UTC()
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		v, ok := s.mem.variants[id]
		if !ok {
			return Variant{}, ErrNotFound
		}
		before := v
		in.apply(&v)
		if err := validateVariant(v); err != nil {
			return Variant{}, err
		}
		if !strings.EqualFold(v.SKU, before.SKU) && s.mem.skuTaken(v.SKU) {
			return Variant{}, conflictf("sku %q already exists", v.SKU)
		}
		v.UpdatedAt = now
		if v.StockQty != before.StockQty {
			m := newMovement(v.ID, v.StockQty-before.StockQty, inventory.MovementAdjustment, "Variant stock updated", actorID)
			s.mem.movements[m.ID] = m
		}
		if v.IsDefault && !v.Price.Equal(before.Price) {
			if p, ok := s.mem.products[v.ProductID]; ok {
				p.Price = v.Price
				p.UpdatedAt = now
				s.mem.products[p.ID] = p
			}
		}
		s.mem.variants[id] = v
		s.listCache.purge()
		return s.withStatus(v), nil
	}

	var out Variant
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		v, err := scanVariant(tx.QueryRowContext(ctx, `SELECT `+variantColumns+` FROM product_variants WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return wrapf(err, "load variant %s", id)
		}
		before := v
		in.apply(&v)
		if err := validateVariant(v); err != nil {
			return err
		}
		v.UpdatedAt = now
		_, err = tx.ExecContext(ctx,
			`UPDATE product_variants SET sku=$2, variant_label=$3, price=$4, stock_qty=$5, low_stock_threshold=$6, updated_at=$7 WHERE id=$1`,
			v.ID, v.SKU, v.Label, v.Price, v.StockQty, v.LowStockThreshold, v.UpdatedAt)
		if err != nil {
			if isConflict(mapDBError(err)) {
				return conflictf("sku %q already exists", v.SKU)
			}
			return wrapf(err, "update variant %s", id)
		}
		if v.StockQty != before.StockQty {
			m := newMovement(v.ID, v.StockQty-before.StockQty, inventory.MovementAdjustment, "Variant stock updated", actorID)
			if err := insertMovement(ctx, tx, m); err != nil {
				return err
			}
		}
		if v.IsDefault && !v.Price.Equal(before.Price) {
			if _, err := tx.ExecContext(ctx, `UPDATE products SET price=$2, updated_at=$3 WHERE id=$1`, v.ProductID, v.Price, now); err != nil {
				return wrapf(err, "sync product price")
			}
		}
		out = v
		return nil
	})
	if err != nil {
		return Variant{}, err
	}
	s.listCache.purge()
	return s.withStatus(out), nil
}

// DeleteVariant removes a non-default variant.
func (s *Store) DeleteVariant(ctx context.Context, id string) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		v, ok := s.mem.variants[id]
		if !ok {
			return ErrNotFound
		}
		if v.IsDefault {
			return conflictf("the default variant cannot be deleted")
		}
		for iid, it := range s.mem.items {
			if it.VariantID == id {
				delete(s.mem.items, iid)
			}
		}
		delete(s.mem.variants, id)
		s.listCache.purge()
		return nil
	}
	v, err := s.GetVariant(ctx, id)
	if err != nil {
		return err
	}
	if v.IsDefault {
		return conflictf("the default variant cannot be deleted")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM product_variants WHERE id=$1 AND NOT is_default`, id)
	if err != nil {
		return wrapf(err, "delete variant %s", id)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	s.listCache.purge()
	return nil
}
