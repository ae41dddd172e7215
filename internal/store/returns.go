package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"techverse/marketplace/internal/inventory"
)

// Return request statuses.
const (
	ReturnRequested = "requested"
	ReturnApproved  = "approved"
	ReturnRejected  = "rejected"
	ReturnRefunded  = "refunded"
)

// returnTransitions lists the statuses each return status may move to.
var returnTransitions = map[string][]string{
	ReturnRequested: {ReturnApproved, ReturnRejected},
	ReturnApproved:  {ReturnRefunded},
}

func returnTransitionAllowed(from, to string) bool {
	for _, s := range returnTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Return is a customer's request to send back an order item.
type Return struct {
	ID          string    `json:"id"`
	OrderItemID string    `json:"order_item_id"`
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	Reason      string    `json:"reason"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func openReturn(status string) bool {
	return status == ReturnRequested || status == ReturnApproved
}

// CreateReturn opens a return for an item of one of userID's shipped or
// completed orders. Only one open return per item is allowed.
func (s *Store) CreateReturn(ctx context.Context, userID, orderItemID, reason string) (Return, error) {
	reason = strings.TrimSpace(reason)
	switch {
	case strings.TrimSpace(orderItemID) == "":
		return Return{}, invalidf("order_item_id is required")
	case reason == "":
		return Return{}, invalidf("reason is required")
	case tooLong(reason, 1000):
		return Return{}, invalidf("reason must be at most 1000 characters")
	}
	now := time.Now().UTC()
	r := Return{ID: newID("ret"), OrderItemID: orderItemID, UserID: userID, Reason: reason, Status: ReturnRequested, CreatedAt: now, UpdatedAt: now}
	check := func(orderOwner, orderStatus string, open bool) error {
		switch {
		case orderOwner != userID:
			return ErrNotFound
		case orderStatus != StatusShipped && orderStatus != StatusCompleted:
			return conflictf("returns are only accepted for shipped or completed orders")
		case open:
			return conflictf("a return is already open for this item")
		}
		return nil
	}

	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		it, ok := s.mem.orderItems[orderItemID]
		if !ok {
			return Return{}, ErrNotFound
		}
		o := s.mem.orders[it.OrderID]
		open := false
		for _, other := range s.mem.returns {
			if other.OrderItemID == orderItemID && openReturn(other.Status) {
				open = true
				break
			}
		}
		if err := check(o.UserID, o.Status, open); err != nil {
			return Return{}, err
		}
		s.mem.returns[r.ID] = r
		r.OrderID, r.ProductName, r.Quantity = o.ID, itemLabel(it.Name, it.VariantLabel), it.Quantity
		return r, nil
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var owner, status, orderID, name, label string
		var qty int
		var open bool
		err := tx.QueryRowContext(ctx, `SELECT o.user_id, o.status, o.id, oi.name, oi.variant_label, oi.quantity,
			EXISTS(SELECT 1 FROM returns r WHERE r.order_item_id = oi.id AND r.status IN ('requested','approved'))
			FROM order_items oi JOIN orders o ON o.id = oi.order_id
			WHERE oi.id = $1
			FOR UPDATE OF oi`, orderItemID).Scan(&owner, &status, &orderID, &name, &label, &qty, &open)
		if err != nil {
			return wrapf(err, "load order item %s", orderItemID)
		}
		if err := check(owner, status, open); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO returns (id, order_item_id, user_id, reason, status, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			r.ID, r.OrderItemID, r.UserID, r.Reason, r.Status, r.CreatedAt, r.UpdatedAt)
		if err != nil {
			return wrapf(err, "insert return")
		}
		r.OrderID, r.ProductName, r.Quantity = orderID, itemLabel(name, label), qty
		return nil
	})
	if err != nil {
		return Return{}, err
	}
	return r, nil
}

const returnColumns = `r.id, r.order_item_id, oi.order_id, r.user_id, oi.name, oi.variant_label, oi.quantity, r.reason, r.status, r.created_at, r.updated_at`

func scanReturn(row scanner) (Return, error) {
	var r Return
	var name, label string
	if err := row.Scan(&r.ID, &r.OrderItemID, &r.OrderID, &r.UserID, &name, &label, &r.Quantity, &r.Reason, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Return{}, err
	}
	r.ProductName = itemLabel(name, label)
	return r, nil
}

func (m *memory) decorateReturn(r Return) Return {
	if it, ok := m.orderItems[r.OrderItemID]; ok {
		r.OrderID, r.ProductName, r.Quantity = it.OrderID, itemLabel(it.Name, it.VariantLabel), it.Quantity
	}
	return r
}

func (s *Store) GetReturn(ctx context.Context, id string) (Return, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		r, ok := s.mem.returns[id]
		if !ok {
			return Return{}, ErrNotFound
		}
		return s.mem.decorateReturn(r), nil
	}
	r, err := scanReturn(s.db.QueryRowContext(ctx, `SELECT `+returnColumns+` FROM returns r JOIN order_items oi ON oi.id = r.order_item_id WHERE r.id=$1`, id))
	if err != nil {
		return Return{}, wrapf(err, "get return %s", id)
	}
	return r, nil
}

func returnKey(r Return) (time.Time, string) { return r.CreatedAt, r.ID }

// ListReturns returns a page of returns, newest first. An empty userID lists
// every user's returns.
func (s *Store) ListReturns(ctx context.Context, userID, cursor string, limit int) (Page[Return], error) {
	limit = clampLimit(limit)
	if s.db == nil {
		s.mu.RLock()
		items := make([]Return, 0)
		for _, r := range s.mem.returns {
			if userID == "" || r.UserID == userID {
				items = append(items, s.mem.decorateReturn(r))
			}
		}
		s.mu.RUnlock()
		return paginate(items, returnKey, cursor, limit)
	}
	w := &where{}
	if userID != "" {
		w.and("r.user_id = " + w.arg(userID))
	}
	if err := w.keyset("r.", cursor); err != nil {
		return Page[Return]{}, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+returnColumns+` FROM returns r JOIN order_items oi ON oi.id = r.order_item_id `+
		w.String()+` ORDER BY r.created_at DESC, r.id DESC LIMIT `+w.arg(limit+1), w.args...)
	if err != nil {
		return Page[Return]{}, wrapf(err, "list returns")
	}
	defer rows.Close()
	items := make([]Return, 0, limit+1)
	for rows.Next() {
		r, err := scanReturn(rows)
		if err != nil {
			return Page[Return]{}, wrapf(err, "scan return")
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return Page[Return]{}, wrapf(err, "list returns")
	}
	return cutPage(items, returnKey, limit), nil
}

// UpdateReturnStatus moves a return along requested → approved|rejected and
// approved → refunded. Approval puts the item back in stock.
func (s *Store) UpdateReturnStatus(ctx context.Context, id, status, actorID string) (Return, error) {
	next := strings.ToLower(strings.TrimSpace(status))
	switch next {
	case ReturnRequested, ReturnApproved, ReturnRejected, ReturnRefunded:
	default:
		return Return{}, invalidf("status must be one of requested, approved, rejected or refunded")
	}
	now := time.Now().UTC()

	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		r, ok := s.mem.returns[id]
		if !ok {
			return Return{}, ErrNotFound
		}
		if r.Status == next {
			return s.mem.decorateReturn(r), nil
		}
		if !returnTransitionAllowed(r.Status, next) {
			return Return{}, conflictf("a %s return cannot become %s", r.Status, next)
		}
		if next == ReturnApproved {
			it := s.mem.orderItems[r.OrderItemID]
			if v, ok := s.mem.variants[it.VariantID]; ok {
				v.StockQty += it.Quantity
				v.UpdatedAt = now
				s.mem.variants[v.ID] = v
				m := newMovement(v.ID, it.Quantity, inventory.MovementReturn, "Return #"+r.ID, actorID)
				s.mem.movements[m.ID] = m
				s.listCache.purge()
			}
		}
		r.Status = next
		r.UpdatedAt = now
		s.mem.returns[id] = r
		return s.mem.decorateReturn(r), nil
	}

	var out Return
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		r, err := scanReturn(tx.QueryRowContext(ctx, `SELECT `+returnColumns+` FROM returns r JOIN order_items oi ON oi.id = r.order_item_id WHERE r.id=$1 FOR UPDATE OF r`, id))
		if err != nil {
			return wrapf(err, "load return %s", id)
		}
		if r.Status == next {
			out = r
			return nil
		}
		if !returnTransitionAllowed(r.Status, next) {
			return conflictf("a %s return cannot become %s", r.Status, next)
		}
		if next == ReturnApproved {
			var variantID string
			if err := tx.QueryRowContext(ctx, `SELECT product_variant_id FROM order_items WHERE id=$1`, r.OrderItemID).Scan(&variantID); err != nil {
				return wrapf(err, "load order item")
			}
			res, err := tx.ExecContext(ctx, `UPDATE product_variants SET stock_qty = stock_qty + $2, updated_at=$3 WHERE id=$1`, variantID, r.Quantity, now)
			if err != nil {
				return wrapf(err, "restock variant %s", variantID)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				if err := insertMovement(ctx, tx, newMovement(variantID, r.Quantity, inventory.MovementReturn, "Return #"+r.ID, actorID)); err != nil {
					return err
				}
			}
		}
		r.Status = next
		r.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, `UPDATE returns SET status=$2, updated_at=$3 WHERE id=$1`, r.ID, r.Status, r.UpdatedAt); err != nil {
			return wrapf(err, "update return %s", id)
		}
		out = r
		return nil
	})
	if err != nil {
		return Return{}, err
	}
	if next == ReturnApproved {
		s.listCache.purge()
	}
	return out, nil
}
