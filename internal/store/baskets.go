package store

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"techverse/marketplace/internal/basket"
)

// Basket is a user's cart. Each user has at most one, created on first use.
type Basket struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BasketItem is a variant quantity held in a basket.
type BasketItem struct {
	ID        string    `json:"id"`
	BasketID  string    `json:"basket_id"`
	VariantID string    `json:"product_variant_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CartLine is a basket item priced at the variant's current price.
type CartLine struct {
	ProductID    string          `json:"product_id"`
	VariantID    string          `json:"variant_id"`
	Name         string          `json:"name"`
	VariantLabel string          `json:"variant_label"`
	ImageURL     string          `json:"image_url,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	Available    int             `json:"available"`
	LineTotal    decimal.Decimal `json:"line_total"`
	addedAt      time.Time
}

// Cart is the priced view of a basket.
type Cart struct {
	BasketID string          `json:"basket_id,omitempty"`
	Items    []CartLine      `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
	TotalQty int             `json:"total_qty"`
}

// BasketSummary is one row of the admin basket listing.
type BasketSummary struct {
	Basket
	Username  string          `json:"username"`
	ItemCount int             `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

func buildCart(basketID string, lines []CartLine) Cart {
	sort.Slice(lines, func(i, j int) bool {
		if !lines[i].addedAt.Equal(lines[j].addedAt) {
			return lines[i].addedAt.Before(lines[j].addedAt)
		}
		return lines[i].VariantID < lines[j].VariantID
	})
	priced := make([]basket.Line, 0, len(lines))
	for i := range lines {
		l := basket.Line{VariantID: lines[i].VariantID, Name: lines[i].Name, UnitPrice: lines[i].Price, Quantity: lines[i].Quantity}
		lines[i].LineTotal = basket.LineTotal(l)
		priced = append(priced, l)
	}
	if lines == nil {
		lines = []CartLine{}
	}
	return Cart{
		BasketID: basketID,
		Items:    lines,
		Subtotal: basket.Subtotal(priced),
		TotalQty: basket.TotalQuantity(priced),
	}
}

func (m *memory) basketOf(userID string) (Basket, bool) {
	for _, b := range m.baskets {
		if b.UserID == userID {
			return b, true
		}
	}
	return Basket{}, false
}

func (m *memory) ensureBasket(userID string, now time.Time) Basket {
	if b, ok := m.basketOf(userID); ok {
		return b
	}
	b := Basket{ID: newID("bsk"), UserID: userID, CreatedAt: now, UpdatedAt: now}
	m.baskets[b.ID] = b
	return b
}

// basketLines returns the basket's items as basket lines in insertion order,
// together with the stored items keyed by variant.
func (m *memory) basketLines(basketID string) ([]basket.Line, map[string]BasketItem) {
	byVariant := make(map[string]BasketItem)
	items := make([]BasketItem, 0)
	for _, it := range m.items {
		if it.BasketID == basketID {
			items = append(items, it)
			byVariant[it.VariantID] = it
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	lines := make([]basket.Line, 0, len(items))
	for _, it := range items {
		v := m.variants[it.VariantID]
		lines = append(lines, basket.Line{VariantID: it.VariantID, UnitPrice: v.Price, Quantity: it.Quantity})
	}
	return lines, byVariant
}

// syncBasket writes lines back as the basket's items.
func (m *memory) syncBasket(basketID string, lines []basket.Line, existing map[string]BasketItem, now time.Time) {
	keep := make(map[string]bool, len(lines))
	for _, l := range lines {
		keep[l.VariantID] = true
		it, ok := existing[l.VariantID]
		if !ok {
			it = BasketItem{ID: newID("bki"), BasketID: basketID, VariantID: l.VariantID, CreatedAt: now}
		}
		if it.Quantity != l.Quantity || !ok {
			it.Quantity = l.Quantity
			it.UpdatedAt = now
			m.items[it.ID] = it
		}
	}
	for variantID, it := range existing {
		if !keep[variantID] {
			delete(m.items, it.ID)
		}
	}
	if b, ok := m.baskets[basketID]; ok {
		b.UpdatedAt = now
		m.baskets[basketID] = b
	}
}

func (s *Store) cartLocked(userID string) Cart {
	b, ok := s.mem.basketOf(userID)
	if !ok {
		return buildCart("", nil)
	}
	lines := make([]CartLine, 0)
	for _, it := range s.mem.items {
		if it.BasketID != b.ID {
			continue
		}
		v := s.mem.variants[it.VariantID]
		p := s.mem.products[v.ProductID]
		lines = append(lines, CartLine{
			ProductID:    p.ID,
			VariantID:    v.ID,
			Name:         p.Name,
			VariantLabel: v.Label,
			ImageURL:     p.ImageURL,
			Price:        v.Price,
			Quantity:     it.Quantity,
			Available:    v.StockQty,
			addedAt:      it.CreatedAt,
		})
	}
	return buildCart(b.ID, lines)
}

// GetCart returns the user's priced basket. A user without a basket gets an
// empty cart.
func (s *Store) GetCart(ctx context.Context, userID string) (Cart, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.cartLocked(userID), nil
	}
	var basketID sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT id FROM baskets WHERE user_id=$1`, userID).Scan(&basketID)
	if err != nil && !isNotFound(mapDBError(err)) {
		return Cart{}, wrapf(err, "load basket")
	}
	if !basketID.Valid {
		return buildCart("", nil), nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT p.id, v.id, p.name, v.variant_label, p.image_url, v.price, bi.quantity, v.stock_qty, bi.created_at
		FROM basket_items bi
		JOIN product_variants v ON v.id = bi.product_variant_id
		JOIN products p ON p.id = v.product_id
		WHERE bi.basket_id = $1`, basketID.String)
	if err != nil {
		return Cart{}, wrapf(err, "load basket items")
	}
	defer rows.Close()
	lines := make([]CartLine, 0)
	for rows.Next() {
		var l CartLine
		var image sql.NullString
		if err := rows.Scan(&l.ProductID, &l.VariantID, &l.Name, &l.VariantLabel, &image, &l.Price, &l.Quantity, &l.Available, &l.addedAt); err != nil {
			return Cart{}, wrapf(err, "scan basket item")
		}
		l.ImageURL = image.String
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return Cart{}, wrapf(err, "load basket items")
	}
	return buildCart(basketID.String, lines), nil
}

func (s *Store) ensureBasketTx(ctx context.Context, tx *sql.Tx, userID string, now time.Time) (string, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO baskets (id, user_id, created_at, updated_at) VALUES ($1,$2,$3,$3) ON CONFLICT (user_id) DO NOTHING`,
		newID("bsk"), userID, now)
	if err != nil {
		return "", wrapf(err, "create basket")
	}
	var id string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM baskets WHERE user_id=$1 FOR UPDATE`, userID).Scan(&id); err != nil {
		return "", wrapf(err, "load basket")
	}
	return id, nil
}

// AddToCart puts qty units of a variant in the user's basket, topping up an
// existing line. The variant's product must be active and unsold.
func (s *Store) AddToCart(ctx context.Context, userID, variantID string, qty int) (Cart, error) {
	if qty < 1 {
		return Cart{}, invalidf("quantity must be at least 1")
	}
	now := time.Now().UTC()
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		v, ok := s.mem.variants[variantID]
		if !ok {
			return Cart{}, ErrNotFound
		}
		if p := s.mem.products[v.ProductID]; !p.Purchasable() {
			return Cart{}, conflictf("%s is not available", p.Name)
		}
		b := s.mem.ensureBasket(userID, now)
		lines, existing := s.mem.basketLines(b.ID)
		lines = basket.AddItem(lines, variantID, "", v.Price, qty)
		s.mem.syncBasket(b.ID, lines, existing, now)
		return s.cartLocked(userID), nil
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var name string
		var active, sold bool
		err := tx.QueryRowContext(ctx, `SELECT p.name, p.is_active, p.is_sold FROM product_variants v JOIN products p ON p.id = v.product_id WHERE v.id=$1`, variantID).
			Scan(&name, &active, &sold)
		if err != nil {
			return wrapf(err, "load variant %s", variantID)
		}
		if !active || sold {
			return conflictf("%s is not available", name)
		}
		basketID, err := s.ensureBasketTx(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO basket_items (id, basket_id, product_variant_id, quantity, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$5)
			ON CONFLICT (basket_id, product_variant_id) DO UPDATE SET quantity = basket_items.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`,
			newID("bki"), basketID, variantID, qty, now)
		if err != nil {
			return wrapf(err, "add basket item")
		}
		_, err = tx.ExecContext(ctx, `UPDATE baskets SET updated_at=$2 WHERE id=$1`, basketID, now)
		return wrapf(err, "touch basket")
	})
	if err != nil {
		return Cart{}, err
	}
	return s.GetCart(ctx, userID)
}

// UpdateCartItem sets the quantity of a variant already in the basket; zero
// or less removes the line.
func (s *Store) UpdateCartItem(ctx context.Context, userID, variantID string, qty int) (Cart, error) {
	now := time.Now().UTC()
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		b, ok := s.mem.basketOf(userID)
		if !ok {
			return Cart{}, ErrNotFound
		}
		lines, existing := s.mem.basketLines(b.ID)
		if _, ok := existing[variantID]; !ok {
			return Cart{}, ErrNotFound
		}
		s.mem.syncBasket(b.ID, basket.UpdateQuantity(lines, variantID, qty), existing, now)
		return s.cartLocked(userID), nil
	}

	var res sql.Result
	var err error
	if qty <= 0 {
		res, err = s.db.ExecContext(ctx, `DELETE FROM basket_items WHERE product_variant_id=$2
			AND basket_id = (SELECT id FROM baskets WHERE user_id=$1)`, userID, variantID)
	} else {
		res, err = s.db.ExecContext(ctx, `UPDATE basket_items SET quantity=$3, updated_at=$4 WHERE product_variant_id=$2
			AND basket_id = (SELECT id FROM baskets WHERE user_id=$1)`, userID, variantID, qty, now)
	}
	if err != nil {
		return Cart{}, wrapf(err, "update basket item")
	}
	if err := expectAffected(res); err != nil {
		return Cart{}, err
	}
	return s.GetCart(ctx, userID)
}

// RemoveCartItem drops a variant from the basket.
func (s *Store) RemoveCartItem(ctx context.Context, userID, variantID string) (Cart, error) {
	return s.UpdateCartItem(ctx, userID, variantID, 0)
}

// ClearCart empties the user's basket.
func (s *Store) ClearCart(ctx context.Context, userID string) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if b, ok := s.mem.basketOf(userID); ok {
			s.mem.clearBasket(b.ID)
		}
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM basket_items WHERE basket_id = (SELECT id FROM baskets WHERE user_id=$1)`, userID)
	return wrapf(err, "clear basket")
}

func (m *memory) clearBasket(basketID string) {
	for id, it := range m.items {
		if it.BasketID == basketID {
			delete(m.items, id)
		}
	}
}

// ListBaskets summarises every basket for the admin dashboard, most recently
// touched first.
func (s *Store) ListBaskets(ctx context.Context) ([]BasketSummary, error) {
	out := make([]BasketSummary, 0)
	if s.db == nil {
		s.mu.RLock()
		for _, b := range s.mem.baskets {
			cart := s.cartLocked(b.UserID)
			out = append(out, BasketSummary{
				Basket:    b,
				Username:  s.mem.users[b.UserID].Username,
				ItemCount: cart.TotalQty,
				Subtotal:  cart.Subtotal,
			})
		}
		s.mu.RUnlock()
		sort.Slice(out, func(i, j int) bool {
			if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
				return out[i].UpdatedAt.After(out[j].UpdatedAt)
			}
			return out[i].ID > out[j].ID
		})
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT b.id, b.user_id, b.created_at, b.updated_at, u.username,
		COALESCE(SUM(bi.quantity), 0), COALESCE(SUM(bi.quantity * v.price), 0)
		FROM baskets b
		JOIN users u ON u.id = b.user_id
		LEFT JOIN basket_items bi ON bi.basket_id = b.id
		LEFT JOIN product_variants v ON v.id = bi.product_variant_id
		GROUP BY b.id, u.username
		ORDER BY b.updated_at DESC, b.id DESC`)
	if err != nil {
		return nil, wrapf(err, "list baskets")
	}
	defer rows.Close()
	for rows.Next() {
		var bs BasketSummary
		if err := rows.Scan(&bs.ID, &bs.UserID, &bs.CreatedAt, &bs.UpdatedAt, &bs.Username, &bs.ItemCount, &bs.Subtotal); err != nil {
			return nil, wrapf(err, "scan basket")
		}
		out = append(out, bs)
	}
	return out, wrapf(rows.Err(), "list baskets")
}
