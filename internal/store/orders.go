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

// Order statuses.
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusShipped   = "shipped"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

func normalizeStatus(status string) string {
	switch s := strings.ToLower(strings.TrimSpace(status)); s {
	case StatusPending, StatusPaid, StatusShipped, StatusCompleted, StatusCancelled:
		return s
	default:
		return ""
	}
}

// Order is a completed checkout.
type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Status          string          `json:"status"`
	Total           decimal.Decimal `json:"total"`
	ShippingAddress string          `json:"shipping_address"`
	AddressID       string          `json:"address_id,omitempty"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	Items           []OrderItem     `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderItem snapshots a basket line at checkout time.
type OrderItem struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"order_id"`
	VariantID    string          `json:"product_variant_id"`
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	VariantLabel string          `json:"variant_label"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	LineTotal    decimal.Decimal `json:"line_total"`
	CreatedAt    time.Time       `json:"created_at"`
}

func withoutItems(o Order) Order {
	o.Items = nil
	return o
}

func sortBasketItems(items []BasketItem) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

func (m *memory) itemsOf(orderID string) []OrderItem {
	out := make([]OrderItem, 0)
	for _, it := range m.orderItems {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// OrderFilter narrows ListOrders. An empty UserID lists every order.
type OrderFilter struct {
	UserID string
	Status string
	Cursor string
	Limit  int
}

func orderKey(o Order) (time.Time, string) { return o.CreatedAt, o.ID }

const orderColumns = `id, user_id, status, total, shipping_address, address_id, payment_method, created_at, updated_at`

func scanOrder(row scanner) (Order, error) {
	var o Order
	var addressID, payment sql.NullString
	if err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.Total, &o.ShippingAddress, &addressID, &payment, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	o.AddressID = addressID.String
	o.PaymentMethod = payment.String
	return o, nil
}

const orderItemColumns = `id, order_id, product_variant_id, product_id, name, variant_label, unit_price, quantity, created_at`

func scanOrderItem(row scanner) (OrderItem, error) {
	var it OrderItem
	if err := row.Scan(&it.ID, &it.OrderID, &it.VariantID, &it.ProductID, &it.Name, &it.VariantLabel, &it.UnitPrice, &it.Quantity, &it.CreatedAt); err != nil {
		return OrderItem{}, err
	}
	it.LineTotal = it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
	return it, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadOrderItems(ctx context.Context, q queryer, orderIDs []string) (map[string][]OrderItem, error) {
	out := make(map[string][]OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := q.QueryContext(ctx, `SELECT `+orderItemColumns+` FROM order_items WHERE order_id = ANY($1) ORDER BY created_at, id`, orderIDs)
	if err != nil {
		return nil, wrapf(err, "load order items")
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanOrderItem(rows)
		if err != nil {
			return nil, wrapf(err, "scan order item")
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, wrapf(rows.Err(), "load order items")
}

// ListOrders returns a page of orders with their items, newest first.
func (s *Store) ListOrders(ctx context.Context, f OrderFilter) (Page[Order], error) {
	limit := clampLimit(f.Limit)
	status := ""
	if f.Status != "" {
		if status = normalizeStatus(f.Status); status == "" {
			return Page[Order]{}, invalidf("invalid order status %q", f.Status)
		}
	}
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		items := make([]Order, 0)
		for _, o := range s.mem.orders {
			if (f.UserID == "" || o.UserID == f.UserID) && (status == "" || o.Status == status) {
				items = append(items, o)
			}
		}
		page, err := paginate(items, orderKey, f.Cursor, limit)
		if err != nil {
			return Page[Order]{}, err
		}
		for i := range page.Items {
			page.Items[i].Items = s.mem.itemsOf(page.Items[i].ID)
		}
		return page, nil
	}

	w := &where{}
	if f.UserID != "" {
		w.and("user_id = " + w.arg(f.UserID))
	}
	if status != "" {
		w.and("status = " + w.arg(status))
	}
	if err := w.keyset("", f.Cursor); err != nil {
		return Page[Order]{}, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders `+w.String()+
		` ORDER BY created_at DESC, id DESC LIMIT `+w.arg(limit+1), w.args...)
	if err != nil {
		return Page[Order]{}, wrapf(err, "list orders")
	}
	orders := make([]Order, 0, limit+1)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return Page[Order]{}, wrapf(err, "scan order")
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Page[Order]{}, wrapf(err, "list orders")
	}
	page := cutPage(orders, orderKey, limit)
	ids := make([]string, 0, len(page.Items))
	for _, o := range page.Items {
		ids = append(ids, o.ID)
	}
	byOrder, err := loadOrderItems(ctx, s.db, ids)
	if err != nil {
		return Page[Order]{}, err
	}
	for i := range page.Items {
		page.Items[i].Items = byOrder[page.Items[i].ID]
		if page.Items[i].Items == nil {
			page.Items[i].Items = []OrderItem{}
		}
	}
	return page, nil
}

// GetOrder loads an order with its items.
func (s *Store) GetOrder(ctx context.Context, id string) (Order, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		o, ok := s.mem.orders[id]
		if !ok {
			return Order{}, ErrNotFound
		}
		o.Items = s.mem.itemsOf(id)
		return o, nil
	}
	o, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return Order{}, wrapf(err, "get order %s", id)
	}
	byOrder, err := loadOrderItems(ctx, s.db, []string{id})
	if err != nil {
		return Order{}, err
	}
	o.Items = byOrder[id]
	if o.Items == nil {
		o.Items = []OrderItem{}
	}
	return o, nil
}

// restocksOnCancel reports whether cancelling from status returns the goods
// to stock; later stages have already left the warehouse.
func restocksOnCancel(status string) bool {
	return status == StatusPending || status == StatusPaid
}

// checkTransition rejects moves out of cancelled and moves that take a
// shipped or completed order back to pending or paid. Goods that have left
// the warehouse are only ever restocked through returns.
func checkTransition(from, next string) error {
	switch {
	case from == StatusCancelled:
		return conflictf("cancelled orders cannot be reopened")
	case !restocksOnCancel(from) && restocksOnCancel(next):
		return conflictf("%s orders cannot move back to %s", from, next)
	}
	return nil
}

// UpdateOrderStatus moves an order to status. Cancelling a pending or paid
// order puts its items back in stock; a cancelled order cannot be reopened
// and a shipped one cannot return to pending or paid.
func (s *Store) UpdateOrderStatus(ctx context.Context, id, status, actorID string) (Order, error) {
	next := normalizeStatus(status)
	if next == "" {
		return Order{}, invalidf("status must be one of pending, paid, shipped, completed or cancelled")
	}
	now := time.Now().UTC()

	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		o, ok := s.mem.orders[id]
		if !ok {
			return Order{}, ErrNotFound
		}
		if o.Status == next {
			o.Items = s.mem.itemsOf(id)
			return o, nil
		}
		if err := checkTransition(o.Status, next); err != nil {
			return Order{}, err
		}
		items := s.mem.itemsOf(id)
		if next == StatusCancelled && restocksOnCancel(o.Status) {
			for _, it := range items {
				v, ok := s.mem.variants[it.VariantID]
				if !ok {
					continue
				}
				v.StockQty += it.Quantity
				v.UpdatedAt = now
				s.mem.variants[v.ID] = v
				m := newMovement(v.ID, it.Quantity, inventory.MovementCancellation, "Order #"+id+" cancelled", actorID)
				s.mem.movements[m.ID] = m
			}
			s.listCache.purge()
		}
		o.Status = next
		o.UpdatedAt = now
		s.mem.orders[id] = o
		o.Items = items
		return o, nil
	}

	var out Order
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		o, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return wrapf(err, "load order %s", id)
		}
		byOrder, err := loadOrderItems(ctx, tx, []string{id})
		if err != nil {
			return err
		}
		o.Items = byOrder[id]
		if o.Items == nil {
			o.Items = []OrderItem{}
		}
		if o.Status == next {
			out = o
			return nil
		}
		if err := checkTransition(o.Status, next); err != nil {
			return err
		}
		if next == StatusCancelled && restocksOnCancel(o.Status) {
			for _, it := range o.Items {
				res, err := tx.ExecContext(ctx, `UPDATE product_variants SET stock_qty = stock_qty + $2, updated_at=$3 WHERE id=$1`,
					it.VariantID, it.Quantity, now)
				if err != nil {
					return wrapf(err, "restock variant %s", it.VariantID)
				}
				if n, _ := res.RowsAffected(); n == 0 {
					continue
				}
				m := newMovement(it.VariantID, it.Quantity, inventory.MovementCancellation, "Order #"+id+" cancelled", actorID)
				if err := insertMovement(ctx, tx, m); err != nil {
					return err
				}
			}
		}
		o.Status = next
		o.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`, id, o.Status, o.UpdatedAt); err != nil {
			return wrapf(err, "update order %s", id)
		}
		out = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if next == StatusCancelled {
		s.listCache.purge()
	}
	return out, nil
}
