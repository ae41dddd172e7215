package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techverse/marketplace/internal/inventory"
)

func TestCartAddUpdateRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := mustUser(t, s, "seller@example.com", RoleCustomer)
	buyer := mustUser(t, s, "buyer@example.com", "")
	mug := mustProduct(t, s, seller.ID, "Mug", "4.50", 10)
	pen := mustProduct(t, s, seller.ID, "Pen", "1.20", 10)
	mugV := mustDefaultVariant(t, s, mug.ID)
	penV := mustDefaultVariant(t, s, pen.ID)

	empty, err := s.GetCart(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.True(t, empty.Subtotal.IsZero())

	_, err = s.AddToCart(ctx, buyer.ID, mugV.ID, 1)
	require.NoError(t, err)
	_, err = s.AddToCart(ctx, buyer.ID, penV.ID, 3)
	require.NoError(t, err)
	cart, err := s.AddToCart(ctx, buyer.ID, mugV.ID, 2)
	require.NoError(t, err)

	require.Len(t, cart.Items, 2)
	assert.Equal(t, mugV.ID, cart.Items[0].VariantID)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, "13.5", cart.Items[0].LineTotal.String())
	assert.Equal(t, "17.1", cart.Subtotal.String())
	assert.Equal(t, 6, cart.TotalQty)

	cart, err = s.UpdateCartItem(ctx, buyer.ID, penV.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "14.7", cart.Subtotal.String())

	cart, err = s.RemoveCartItem(ctx, buyer.ID, mugV.ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, penV.ID, cart.Items[0].VariantID)

	_, err = s.UpdateCartItem(ctx, buyer.ID, mugV.ID, 2)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.AddToCart(ctx, buyer.ID, "var_missing", 1)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.AddToCart(ctx, buyer.ID, mugV.ID, 0)
	var in *InputError
	require.ErrorAs(t, err, &in)

	sold := true
	_, err = s.UpdateProduct(ctx, mug.ID, seller.ID, ProductUpdate{IsSold: &sold})
	require.NoError(t, err)
	_, err = s.AddToCart(ctx, buyer.ID, mugV.ID, 1)
	require.ErrorIs(t, err, ErrConflict)

	baskets, err := s.ListBaskets(ctx)
	require.NoError(t, err)
	require.Len(t, baskets, 1)
	assert.Equal(t, "buyer", baskets[0].Username)
	assert.Equal(t, 1, baskets[0].ItemCount)

	require.NoError(t, s.ClearCart(ctx, buyer.ID))
	cart, err = s.GetCart(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestCheckoutCreatesOrderAndDecrementsStock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := mustUser(t, s, "seller@example.com", RoleCustomer)
	buyer := mustUser(t, s, "buyer@example.com", "")
	p := mustProduct(t, s, seller.ID, "Keyboard", "25.00", 5)
	v := mustDefaultVariant(t, s, p.ID)

	_, err := s.AddToCart(ctx, buyer.ID, v.ID, 2)
	require.NoError(t, err)

	o, err := s.Checkout(ctx, buyer.ID, CheckoutRequest{ShippingAddress: " 1 Main St, Leeds ", PaymentMethod: "card"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "1 Main St, Leeds", o.ShippingAddress)
	assert.Equal(t, "50", o.Total.String())
	require.Len(t, o.Items, 1)
	assert.Equal(t, v.ID, o.Items[0].VariantID)
	assert.Equal(t, "Keyboard", o.Items[0].Name)
	assert.Equal(t, 2, o.Items[0].Quantity)

	after := mustDefaultVariant(t, s, p.ID)
	assert.Equal(t, 3, after.StockQty)

	moves, err := s.ListMovements(ctx, MovementFilter{VariantID: v.ID})
	require.NoError(t, err)
	require.NotEmpty(t, moves.Items)
	assert.Equal(t, inventory.MovementSale, moves.Items[0].Type)
	assert.Equal(t, -2, moves.Items[0].Change)
	assert.Equal(t, "Order #"+o.ID, moves.Items[0].Note)

	cart, err := s.GetCart(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Total.String(), got.Total.String())
	require.Len(t, got.Items, 1)

	mine, err := s.ListOrders(ctx, OrderFilter{UserID: buyer.ID})
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)
	theirs, err := s.ListOrders(ctx, OrderFilter{UserID: seller.ID})
	require.NoError(t, err)
	assert.Empty(t, theirs.Items)
}

func TestCheckoutInsufficientStockChangesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := mustUser(t, s, "seller@example.com", RoleCustomer)
	buyer := mustUser(t, s, "buyer@example.com", "")
	plenty := mustProduct(t, s, seller.ID, "Cable", "3", 10)
	scarce := mustProduct(t, s, seller.ID, "Monitor", "150", 1)
	plentyV := mustDefaultVariant(t, s, plenty.ID)
	scarceV := mustDefaultVariant(t, s, scarce.ID)

	_, err := s.AddToCart(ctx, buyer.ID, plentyV.ID, 2)
	require.NoError(t, err)
	_, err = s.AddToCart(ctx, buyer.ID, scarceV.ID, 2)
	require.NoError(t, err)

	_, err = s.Checkout(ctx, buyer.ID, CheckoutRequest{ShippingAddress: "1 Main St"})
	var stockErr *StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "insufficient stock for Monitor", stockErr.Error())
	assert.Equal(t, 2, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)

	assert.Equal(t, 10, mustDefaultVariant(t, s, plenty.ID).StockQty)
	assert.Equal(t, 1, mustDefaultVariant(t, s, scarce.ID).StockQty)
	cart, err := s.GetCart(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
	orders, err := s.ListOrders(ctx, OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders.Items)
}

func TestCheckoutValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := mustUser(t, s, "seller@example.com", RoleCustomer)
	buyer := mustUser(t, s, "buyer@example.com", "")

	_, err := s.Checkout(ctx, buyer.ID, CheckoutRequest{ShippingAddress: "1 Main St"})
	require.ErrorIs(t, err, ErrEmptyBasket)

	p := mustProduct(t, s, seller.ID, "Lamp", "12", 3)
	_, err = s.AddToCart(ctx, buyer.ID, mustDefaultVariant(t, s, p.ID).ID, 1)
	require.NoError(t, err)

	_, err = s.Checkout(ctx, buyer.ID, CheckoutRequest{})
	var in *InputError
	require.ErrorAs(t, err, &in)
	assert.Equal(t, "shipping_address is required", in.Msg)

	_, err = s.Checkout(ctx, buyer.ID, CheckoutRequest{AddressID: "adr_unknown"})
	require.ErrorAs(t, err, &in)

	line1, city, country := "9 Elm Row", "Bath", "UK"
	addr, err := s.CreateAddress(ctx, buyer.ID, AddressInput{Line1: &line1, City: &city, Country: &country})
	require.NoError(t, err)
	o, err := s.Checkout(ctx, buyer.ID, CheckoutRequest{AddressID: addr.ID})
	require.NoError(t, err)
	assert.Equal(t, "9 Elm Row, Bath, UK", o.ShippingAddress)
	assert.Equal(t, addr.ID, o.AddressID)
}

func TestCancelOrderRestocks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	admin := mustUser(t, s, "admin@example.com", RoleAdmin)
	seller := mustUser(t, s, "seller@example.com", RoleCustomer)
	buyer := mustUser(t, s, "buyer@example.com", "")
	p := mustProduct(t, s, seller.ID, "Drone", "200", 4)
	v := mustDefaultVariant(t, s, p.ID)

	_, err := s.AddToCart(ctx, buyer.ID, v.ID, 3)
	require.NoError(t, err)
	o, err := s.Checkout(ctx, buyer.ID, CheckoutRequest{ShippingAddress: "1 Main St"})
	require.NoError(t, err)
	assert.Equal(t, 1, mustDefaultVariant(t, s, p.ID).StockQty)

	paid, err := s.UpdateOrderStatus(ctx, o.ID, "PAID", admin.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)

	cancelled, err := s.UpdateOrderStatus(ctx, o.ID, StatusCancelled, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, 4, mustDefaultVariant(t, s, p.ID).StockQty)

	moves, err := s.ListMovements(ctx, MovementFilter{VariantID: v.ID})
	require.NoError(t, err)
	assert.Equal(t, inventory.MovementCancellation, moves.Items[0].Type)
	assert.Equal(t, 3, moves.Items[0].Change)

	_, err = s.UpdateOrderStatus(ctx, o.ID, StatusPending, admin.ID)
	require.ErrorIs(t, err, ErrConflict)
	_, err = s.UpdateOrderStatus(ctx, o.ID, "lost", admin.ID)
	var in *InputError
	require.ErrorAs(t, err, &in)
}

func TestCancelShippedOrderKeepsStock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := mustUser(t, s, "seller@example.com", RoleCustomer)
	buyer := mustUser(t, s, "buyer@example.com", "")
	p := mustProduct(t, s, seller.ID, "Tent", "80", 2)
	v := mustDefaultVariant(t, s, p.ID)

	_, err := s.AddToCart(ctx, buyer.ID, v.ID, 1)
	require.NoError(t, err)
	o, err := s.Checkout(ctx, buyer.ID, CheckoutRequest{ShippingAddress: "1 Main St"})
	require.NoError(t, err)
	_, err = s.UpdateOrderStatus(ctx, o.ID, StatusShipped, seller.ID)
	require.NoError(t, err)
	_, err = s.UpdateOrderStatus(ctx, o.ID, StatusCancelled, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, mustDefaultVariant(t, s, p.ID).StockQty)
}

func TestShippedOrderCannotMoveBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	admin := mustUser(t, s, "admin@example.com", RoleAdmin)
	seller := mustUser(t, s, "seller@example.com", RoleCustomer)
	buyer := mustUser(t, s, "buyer@example.com", "")
	p := mustProduct(t, s, seller.ID, "Kettle", "35", 10)
	v := mustDefaultVariant(t, s, p.ID)

	_, err := s.AddToCart(ctx, buyer.ID, v.ID, 3)
	require.NoError(t, err)
	o, err := s.Checkout(ctx, buyer.ID, CheckoutRequest{ShippingAddress: "1 Main St"})
	require.NoError(t, err)
	_, err = s.UpdateOrderStatus(ctx, o.ID, StatusShipped, admin.ID)
	require.NoError(t, err)

	r, err := s.CreateReturn(ctx, buyer.ID, o.Items[0].ID, "wrong colour")
	require.NoError(t, err)
	_, err = s.UpdateReturnStatus(ctx, r.ID, ReturnApproved, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, mustDefaultVariant(t, s, p.ID).StockQty)

	for _, back := range []string{StatusPending, StatusPaid} {
		_, err = s.UpdateOrderStatus(ctx, o.ID, back, admin.ID)
		require.ErrorIs(t, err, ErrConflict, back)
	}

	completed, err := s.UpdateOrderStatus(ctx, o.ID, StatusCompleted, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
	_, err = s.UpdateOrderStatus(ctx, o.ID, StatusPending, admin.ID)
	require.ErrorIs(t, err, ErrConflict)

	_, err = s.UpdateOrderStatus(ctx, o.ID, StatusCancelled, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, mustDefaultVariant(t, s, p.ID).StockQty)
}

func TestReturnsLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	admin := mustUser(t, s, "admin@example.com", RoleAdmin)
	seller := mustUser(t, s, "seller@example.com", RoleCustomer)
	buyer := mustUser(t, s, "buyer@example.com", "")
	stranger := mustUser(t, s, "stranger@example.com", "")
	p := mustProduct(t, s, seller.ID, "Blender", "60", 5)
	v := mustDefaultVariant(t, s, p.ID)

	_, err := s.AddToCart(ctx, buyer.ID, v.ID, 2)
	require.NoError(t, err)
	o, err := s.Checkout(ctx, buyer.ID, CheckoutRequest{ShippingAddress: "1 Main St"})
	require.NoError(t, err)
	itemID := o.Items[0].ID

	_, err = s.CreateReturn(ctx, buyer.ID, itemID, "broken")
	require.ErrorIs(t, err, ErrConflict, "pending orders cannot be returned")

	_, err = s.UpdateOrderStatus(ctx, o.ID, StatusShipped, admin.ID)
	require.NoError(t, err)

	_, err = s.CreateReturn(ctx, stranger.ID, itemID, "broken")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.CreateReturn(ctx, buyer.ID, itemID, "  ")
	var in *InputError
	require.ErrorAs(t, err, &in)

	r, err := s.CreateReturn(ctx, buyer.ID, itemID, "arrived broken")
	require.NoError(t, err)
	assert.Equal(t, ReturnRequested, r.Status)
	assert.Equal(t, o.ID, r.OrderID)
	assert.Equal(t, "Blender", r.ProductName)

	_, err = s.CreateReturn(ctx, buyer.ID, itemID, "again")
	require.ErrorIs(t, err, ErrConflict)

	_, err = s.UpdateReturnStatus(ctx, r.ID, ReturnRefunded, admin.ID)
	require.ErrorIs(t, err, ErrConflict)

	approved, err := s.UpdateReturnStatus(ctx, r.ID, ReturnApproved, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, ReturnApproved, approved.Status)
	assert.Equal(t, 5, mustDefaultVariant(t, s, p.ID).StockQty)

	moves, err := s.ListMovements(ctx, MovementFilter{VariantID: v.ID})
	require.NoError(t, err)
	assert.Equal(t, inventory.MovementReturn, moves.Items[0].Type)

	mine, err := s.ListReturns(ctx, buyer.ID, "", 0)
	require.NoError(t, err)
	assert.Len(t, mine.Items, 1)
	none, err := s.ListReturns(ctx, stranger.ID, "", 0)
	require.NoError(t, err)
	assert.Empty(t, none.Items)
}

func TestContactMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateContactMessage(ctx, ContactMessage{Name: "Gus", Email: "bad", Message: "hi"})
	var in *InputError
	require.ErrorAs(t, err, &in)

	m, err := s.CreateContactMessage(ctx, ContactMessage{Name: "Gus", Email: "Gus@Example.com", Subject: "Hello", Message: "Where is my order?"})
	require.NoError(t, err)
	assert.Equal(t, "gus@example.com", m.Email)

	page, err := s.ListContactMessages(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, m.ID, page.Items[0].ID)
}
