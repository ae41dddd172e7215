package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"techverse/marketplace/internal/basket"
	"techverse/marketplace/internal/inventory"
)

// CheckoutRequest names where the order ships. AddressID, when set, must be
// one of the caller's saved addresses and overrides ShippingAddress.
type CheckoutRequest struct {
	ShippingAddress string `json:"shipping_address"`
	AddressID       string `json:"address_id"`
	PaymentMethod   string `json:"payment_method"`
}

// checkoutLine is a basket item joined with its variant and product.
type checkoutLine struct {
	VariantID   string
	ProductID   string
	Name        string
	Label       string
	Price       decimal.Decimal
	StockQty    int
	Quantity    int
	Purchasable bool
}

func itemLabel(name, variantLabel string) string {
	if variantLabel == "" || strings.EqualFold(variantLabel, "Default") {
		return name
	}
	return name + " (" + variantLabel + ")"
}

// planCheckout validates every line against current stock. Nothing is
// written; a failure leaves the basket and stock untouched.
func planCheckout(lines []checkoutLine) ([]inventory.Line, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyBasket
	}
	stock := make(map[string]int, len(lines))
	byVariant := make(map[string]checkoutLine, len(lines))
	req := make([]inventory.Line, 0, len(lines))
	for _, l := range lines {
		if !l.Purchasable {
			return nil, conflictf("%s is no longer available", l.Name)
		}
		stock[l.VariantID] = l.StockQty
		byVariant[l.VariantID] = l
		req = append(req, inventory.Line{VariantID: l.VariantID, Quantity: l.Quantity})
	}
	if err := inventory.CheckStock(stock, req); err != nil {
		var short *inventory.ShortageError
		if errors.As(err, &short) {
			l := byVariant[short.VariantID]
			return nil, &StockError{
				VariantID: short.VariantID,
				Label:     itemLabel(l.Name, l.Label),
				Requested: short.Requested,
				Available: short.Available,
			}
		}
		return nil, &InputError{Msg: err.Error()}
	}
	return req, nil
}

func (s *Store) shippingAddress(ctx context.Context, userID string, req *CheckoutRequest) error {
	req.AddressID = strings.TrimSpace(req.AddressID)
	req.ShippingAddress = strings.TrimSpace(req.ShippingAddress)
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	if req.AddressID != "" {
		a, err := s.GetAddress(ctx, userID, req.AddressID)
		if isNotFound(err) {
			return invalidf("address_id does not name one of your addresses")
		}
		if err != nil {
			return err
		}
		req.ShippingAddress = a.Format()
	}
	switch {
	case req.ShippingAddress == "":
		return invalidf("shipping_address is required")
	case tooLong(req.ShippingAddress, 255):
		return invalidf("shipping_address must be at most 255 characters")
	case tooLong(req.PaymentMethod, 50):
		return invalidf("payment_method must be at most 50 characters")
	}
	return nil
}

func buildOrder(userID string, req CheckoutRequest, lines []checkoutLine, now time.Time) Order {
	o := Order{
		ID:              newID("ord"),
		UserID:          userID,
		Status:          StatusPending,
		ShippingAddress: req.ShippingAddress,
		AddressID:       req.AddressID,
		PaymentMethod:   req.PaymentMethod,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	priced := make([]basket.Line, 0, len(lines))
	for i, l := range lines {
		it := OrderItem{
			ID:           newID("oit"),
			OrderID:      o.ID,
			VariantID:    l.VariantID,
			ProductID:    l.ProductID,
			Name:         l.Name,
			VariantLabel: l.Label,
			UnitPrice:    l.Price,
			Quantity:     l.Quantity,
			CreatedAt:    now.Add(time.Duration(i) * time.Microsecond),
		}
		bl := basket.Line{VariantID: l.VariantID, Name: l.Name, UnitPrice: l.Price, Quantity: l.Quantity}
		it.LineTotal = basket.LineTotal(bl)
		priced = append(priced, bl)
		o.Items = append(o.Items, it)
	}
	o.Total = basket.Subtotal(priced)
	return o
}

// Checkout turns the user's basket into a pending order. Within one
// transaction it checks stock for every line, records the order and its
// items at current variant prices, decrements stock with a sale movement per
// line and empties the basket. Any shortage aborts with a *StockError and
// changes nothing.
func (s *Store) Checkout(ctx context.Context, userID string, req CheckoutRequest) (Order, error) {
	if err := s.shippingAddress(ctx, userID, &req); err != nil {
		return Order{}, err
	}
	now := time.Now().UTC()

	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		b, ok := s.mem.basketOf(userID)
		if !ok {
			return Order{}, ErrEmptyBasket
		}
		items := make([]BasketItem, 0)
		for _, it := range s.mem.items {
			if it.BasketID == b.ID {
				items = append(items, it)
			}
		}
		sortBasketItems(items)
		lines := make([]checkoutLine, 0, len(items))
		for _, it := range items {
			v, ok := s.mem.variants[it.VariantID]
			if !ok {
				continue
			}
			p := s.mem.products[v.ProductID]
			lines = append(lines, checkoutLine{
				VariantID: v.ID, ProductID: p.ID, Name: p.Name, Label: v.Label, Price: v.Price,
				StockQty: v.StockQty, Quantity: it.Quantity, Purchasable: p.Purchasable(),
			})
		}
		planned, err := planCheckout(lines)
		if err != nil {
			return Order{}, err
		}
		stock := make(map[string]int, len(lines))
		for _, l := range lines {
			stock[l.VariantID] = l.StockQty
		}
		after := inventory.ApplyOrder(stock, planned)

		o := buildOrder(userID, req, lines, now)
		s.mem.orders[o.ID] = withoutItems(o)
		for _, it := range o.Items {
			s.mem.orderItems[it.ID] = it
			m := newMovement(it.VariantID, -it.Quantity, inventory.MovementSale, "Order #"+o.ID, userID)
			s.mem.movements[m.ID] = m
		}
		for id, qty := range after {
			v := s.mem.variants[id]
			v.StockQty = qty
			v.UpdatedAt = now
			s.mem.variants[id] = v
		}
		s.mem.clearBasket(b.ID)
		s.listCache.purge()
		return o, nil
	}

	var out Order
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var basketID string
		err := tx.QueryRowContext(ctx, `SELECT id FROM baskets WHERE user_id=$1 FOR UPDATE`, userID).Scan(&basketID)
		if isNotFound(mapDBError(err)) {
			return ErrEmptyBasket
		}
		if err != nil {
			return wrapf(err, "lock basket")
		}
		lines, err := lockCheckoutLines(ctx, tx, basketID)
		if err != nil {
			return err
		}
		if _, err := planCheckout(lines); err != nil {
			return err
		}

		o := buildOrder(userID, req, lines, now)
		_, err = tx.ExecContext(ctx, `INSERT INTO orders (id, user_id, status, total, shipping_address, address_id, payment_method, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			o.ID, o.UserID, o.Status, o.Total, o.ShippingAddress, nilIfEmpty(o.AddressID), nilIfEmpty(o.PaymentMethod), o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return wrapf(err, "insert order")
		}
		for _, it := range o.Items {
			_, err := tx.ExecContext(ctx, `INSERT INTO order_items (id, order_id, product_variant_id, product_id, name, variant_label, unit_price, quantity, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				it.ID, it.OrderID, it.VariantID, it.ProductID, it.Name, it.VariantLabel, it.UnitPrice, it.Quantity, it.CreatedAt)
			if err != nil {
				return wrapf(err, "insert order item")
			}
			res, err := tx.ExecContext(ctx, `UPDATE product_variants SET stock_qty = stock_qty - $2, updated_at=$3 WHERE id=$1 AND stock_qty >= $2`,
				it.VariantID, it.Quantity, now)
			if err != nil {
				return wrapf(err, "decrement stock")
			}
			if n, err := res.RowsAffected(); err != nil || n == 0 {
				return &StockError{VariantID: it.VariantID, Label: itemLabel(it.Name, it.VariantLabel), Requested: it.Quantity}
			}
			if err := insertMovement(ctx, tx, newMovement(it.VariantID, -it.Quantity, inventory.MovementSale, "Order #"+o.ID, userID)); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM basket_items WHERE basket_id=$1`, basketID); err != nil {
			return wrapf(err, "clear basket")
		}
		out = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.listCache.purge()
	return out, nil
}

func lockCheckoutLines(ctx context.Context, tx *sql.Tx, basketID string) ([]checkoutLine, error) {
	rows, err := tx.QueryContext(ctx, `SELECT v.id, p.id, p.name, v.variant_label, v.price, v.stock_qty, bi.quantity, (p.is_active AND NOT p.is_sold)
		FROM basket_items bi
		JOIN product_variants v ON v.id = bi.product_variant_id
		JOIN products p ON p.id = v.product_id
		WHERE bi.basket_id = $1
		ORDER BY bi.created_at, bi.id
		FOR UPDATE OF v`, basketID)
	if err != nil {
		return nil, wrapf(err, "lock basket lines")
	}
	defer rows.Close()
	lines := make([]checkoutLine, 0)
	for rows.Next() {
		var l checkoutLine
		if err := rows.Scan(&l.VariantID, &l.ProductID, &l.Name, &l.Label, &l.Price, &l.StockQty, &l.Quantity, &l.Purchasable); err != nil {
			return nil, wrapf(err, "scan basket line")
		}
		lines = append(lines, l)
	}
	return lines, wrapf(rows.Err(), "lock basket lines")
}
