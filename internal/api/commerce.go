package api

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"techverse/marketplace/internal/metrics"
	"techverse/marketplace/internal/store"
)

// ---------------------------------------------------------------------------
// Stock
// ---------------------------------------------------------------------------

func (s *Server) listStock(w http.ResponseWriter, r *http.Request, u store.User) {
	f := store.StockFilter{Status: strings.ToLower(query(r, "status"))}
	if !u.IsAdmin() {
		f.OwnerID = u.ID
	} else {
		f.OwnerID = query(r, "owner_id")
	}
	list, err := s.store.ListStock(r.Context(), f)
	if err != nil {
		s.writeError(w, r, "stock", err)
		return
	}
	writeItems(w, "stock", list)
}

func (s *Server) ownedStock(w http.ResponseWriter, r *http.Request, u store.User, variantID string) (store.StockEntry, bool) {
	e, err := s.store.GetStock(r.Context(), variantID)
	if err != nil {
		s.writeError(w, r, "variant", err)
		return store.StockEntry{}, false
	}
	if !canManage(u, e.OwnerID) {
		s.writeError(w, r, "variant", errForbidden)
		return store.StockEntry{}, false
	}
	return e, true
}

func (s *Server) getStock(w http.ResponseWriter, r *http.Request, u store.User) {
	e, ok := s.ownedStock(w, r, u, r.PathValue("variant_id"))
	if !ok {
		return
	}
	writeItem(w, http.StatusOK, "stock", "read", e)
}

func (s *Server) adjustStock(w http.ResponseWriter, r *http.Request, u store.User) {
	e, ok := s.ownedStock(w, r, u, r.PathValue("variant_id"))
	if !ok {
		return
	}
	var adj store.StockAdjustment
	if err := decodeJSON(w, r, &adj); err != nil {
		decodeFailed(w, err)
		return
	}
	v, m, err := s.store.AdjustStock(r.Context(), e.ID, u.ID, adj)
	if err != nil {
		s.writeError(w, r, "variant", err)
		return
	}
	s.metrics.StockAdjusted(m.Type)
	hlogFrom(r).Info().
		Str("variant_id", v.ID).
		Int("change", m.Change).
		Str("type", m.Type).
		Int("stock_qty", v.StockQty).
		Msg("stock adjusted")
	writeJSON(w, http.StatusOK, map[string]any{
		"item":        v,
		"movement":    m,
		"event_topic": topic("stock", "adjusted"),
	})
}

func (s *Server) listMovements(w http.ResponseWriter, r *http.Request, u store.User) {
	variantID := query(r, "variant_id")
	if variantID == "" && !u.IsAdmin() {
		badRequest(w, "variant_id is required")
		return
	}
	if variantID != "" {
		if _, ok := s.ownedStock(w, r, u, variantID); !ok {
			return
		}
	}
	page, err := s.store.ListMovements(r.Context(), store.MovementFilter{
		VariantID: variantID,
		Cursor:    query(r, "cursor"),
		Limit:     intParam(r, "limit", 50, 1, 200),
	})
	if err != nil {
		s.writeError(w, r, "stock_movement", err)
		return
	}
	writePage(w, "stock_movement", page)
}

// ---------------------------------------------------------------------------
// Cart
// ---------------------------------------------------------------------------

type addToCartRequest struct {
	VariantID      string `json:"product_variant_id"`
	VariantIDShort string `json:"variant_id"`
	ProductID      string `json:"product_id"`
	Quantity       *int   `json:"quantity"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

func (s *Server) writeCart(w http.ResponseWriter, action string, cart store.Cart) {
	writeJSON(w, http.StatusOK, map[string]any{
		"basket_id":   cart.BasketID,
		"items":       cart.Items,
		"subtotal":    cart.Subtotal,
		"total_qty":   cart.TotalQty,
		"event_topic": topic("cart", action),
	})
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request, u store.User) {
	cart, err := s.store.GetCart(r.Context(), u.ID)
	if err != nil {
		s.writeError(w, r, "cart", err)
		return
	}
	s.writeCart(w, "read", cart)
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request, u store.User) {
	var req addToCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		decodeFailed(w, err)
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	variantID := firstNonEmpty(req.VariantID, req.VariantIDShort)
	if variantID == "" {
		if req.ProductID == "" {
			badRequest(w, "product_variant_id or product_id is required")
			return
		}
		p, err := s.store.GetProduct(r.Context(), req.ProductID)
		if err != nil {
			s.writeError(w, r, "product", err)
			return
		}
		v, err := s.store.DefaultVariant(r.Context(), p.ID)
		if err != nil {
			s.writeError(w, r, "variant", err)
			return
		}
		variantID = v.ID
	}
	cart, err := s.store.AddToCart(r.Context(), u.ID, variantID, qty)
	if err != nil {
		s.writeError(w, r, "variant", err)
		return
	}
	s.writeCart(w, "item_added", cart)
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request, u store.User) {
	var req quantityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		decodeFailed(w, err)
		return
	}
	if req.Quantity == nil {
		badRequest(w, "quantity is required")
		return
	}
	cart, err := s.store.UpdateCartItem(r.Context(), u.ID, r.PathValue("variant_id"), *req.Quantity)
	if err != nil {
		s.writeError(w, r, "cart item", err)
		return
	}
	s.writeCart(w, "item_updated", cart)
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request, u store.User) {
	cart, err := s.store.RemoveCartItem(r.Context(), u.ID, r.PathValue("variant_id"))
	if err != nil {
		s.writeError(w, r, "cart item", err)
		return
	}
	s.writeCart(w, "item_removed", cart)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request, u store.User) {
	if err := s.store.ClearCart(r.Context(), u.ID); err != nil {
		s.writeError(w, r, "cart", err)
		return
	}
	cart, err := s.store.GetCart(r.Context(), u.ID)
	if err != nil {
		s.writeError(w, r, "cart", err)
		return
	}
	s.writeCart(w, "cleared", cart)
}

func (s *Server) listBaskets(w http.ResponseWriter, r *http.Request, _ store.User) {
	list, err := s.store.ListBaskets(r.Context())
	if err != nil {
		s.writeError(w, r, "basket", err)
		return
	}
	writeItems(w, "basket", list)
}

// ---------------------------------------------------------------------------
// Checkout and orders
// ---------------------------------------------------------------------------

func checkoutOutcome(err error) string {
	var (
		stock *store.StockError
		input *store.InputError
	)
	switch {
	case err == nil:
		return metrics.CheckoutPlaced
	case errors.As(err, &stock):
		return metrics.CheckoutOutOfStock
	case errors.Is(err, store.ErrEmptyBasket):
		return metrics.CheckoutEmptyBasket
	case errors.As(err, &input), errors.Is(err, store.ErrConflict):
		return metrics.CheckoutInvalid
	default:
		return metrics.CheckoutFailed
	}
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request, u store.User) {
	var req store.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		decodeFailed(w, err)
		return
	}
	o, err := s.store.Checkout(r.Context(), u.ID, req)
	s.metrics.Checkout(checkoutOutcome(err))
	if err != nil {
		s.writeError(w, r, "order", err)
		return
	}
	hlogFrom(r).Info().
		Str("order_id", o.ID).
		Str("total", o.Total.StringFixed(2)).
		Int("items", len(o.Items)).
		Msg("order placed")
	writeItem(w, http.StatusCreated, "order", "created", o)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request, u store.User) {
	f := store.OrderFilter{
		UserID: u.ID,
		Status: query(r, "status"),
		Cursor: query(r, "cursor"),
		Limit:  intParam(r, "limit", 20, 1, 200),
	}
	if u.IsAdmin() {
		f.UserID = query(r, "user_id")
	}
	page, err := s.store.ListOrders(r.Context(), f)
	if err != nil {
		s.writeError(w, r, "order", err)
		return
	}
	writePage(w, "order", page)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request, u store.User) {
	o, err := s.store.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "order", err)
		return
	}
	if !canManage(u, o.UserID) {
		s.writeError(w, r, "order", errForbidden)
		return
	}
	writeItem(w, http.StatusOK, "order", "read", o)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) updateOrder(w http.ResponseWriter, r *http.Request, u store.User) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		decodeFailed(w, err)
		return
	}
	o, err := s.store.UpdateOrderStatus(r.Context(), r.PathValue("id"), req.Status, u.ID)
	if err != nil {
		s.writeError(w, r, "order", err)
		return
	}
	hlogFrom(r).Info().Str("order_id", o.ID).Str("status", o.Status).Msg("order status changed")
	writeItem(w, http.StatusOK, "order", "updated", o)
}

// ---------------------------------------------------------------------------
// Returns
// ---------------------------------------------------------------------------

type returnRequest struct {
	OrderItemID string `json:"order_item_id"`
	Reason      string `json:"reason"`
}

func (s *Server) createReturn(w http.ResponseWriter, r *http.Request, u store.User) {
	var req returnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		decodeFailed(w, err)
		return
	}
	if strings.TrimSpace(req.OrderItemID) == "" {
		badRequest(w, "order_item_id is required")
		return
	}
	ret, err := s.store.CreateReturn(r.Context(), u.ID, req.OrderItemID, req.Reason)
	if err != nil {
		s.writeError(w, r, "order item", err)
		return
	}
	writeItem(w, http.StatusCreated, "return", "created", ret)
}

func (s *Server) listReturns(w http.ResponseWriter, r *http.Request, u store.User) {
	userID := u.ID
	if u.IsAdmin() {
		userID = query(r, "user_id")
	}
	page, err := s.store.ListReturns(r.Context(), userID, query(r, "cursor"), intParam(r, "limit", 20, 1, 200))
	if err != nil {
		s.writeError(w, r, "return", err)
		return
	}
	writePage(w, "return", page)
}

func (s *Server) getReturn(w http.ResponseWriter, r *http.Request, u store.User) {
	ret, err := s.store.GetReturn(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "return", err)
		return
	}
	if !canManage(u, ret.UserID) {
		s.writeError(w, r, "return", errForbidden)
		return
	}
	writeItem(w, http.StatusOK, "return", "read", ret)
}

func (s *Server) updateReturn(w http.ResponseWriter, r *http.Request, u store.User) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		decodeFailed(w, err)
		return
	}
	ret, err := s.store.UpdateReturnStatus(r.Context(), r.PathValue("id"), req.Status, u.ID)
	if err != nil {
		s.writeError(w, r, "return", err)
		return
	}
	writeItem(w, http.StatusOK, "return", "updated", ret)
}

// ---------------------------------------------------------------------------
// Contact
// ---------------------------------------------------------------------------

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (s *Server) createContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		decodeFailed(w, err)
		return
	}
	msg, err := s.store.CreateContactMessage(r.Context(), store.ContactMessage{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
	})
	if err != nil {
		s.writeError(w, r, "contact_message", err)
		return
	}
	writeItem(w, http.StatusCreated, "contact_message", "created", msg)
}

func (s *Server) listContact(w http.ResponseWriter, r *http.Request, _ store.User) {
	page, err := s.store.ListContactMessages(r.Context(), query(r, "cursor"), intParam(r, "limit", 20, 1, 200))
	if err != nil {
		s.writeError(w, r, "contact_message", err)
		return
	}
	writePage(w, "contact_message", page)
}
