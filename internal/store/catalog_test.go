package store

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techverse/marketplace/internal/inventory"
)

func TestCreateProductResolvesTaxonomy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := mustUser(t, s, "seller@example.com", RoleCustomer)

	p, err := s.CreateProduct(ctx, seller.ID, NewProduct{Name: "Plain Mug", Price: decimal.NewFromInt(4)})
	require.NoError(t, err)
	cat, err := s.GetCategory(ctx, p.CategoryID)
	require.NoError(t, err)
	assert.Equal(t, "Uncategorized", cat.Name)
	brand, err := s.GetBrand(ctx, p.BrandID)
	require.NoError(t, err)
	assert.Equal(t, "Generic", brand.Name)

	phone, err := s.CreateProduct(ctx, seller.ID, NewProduct{Name: "Phone", Category: "smart phones", Price: decimal.NewFromInt(300)})
	require.NoError(t, err)
	smart, err := s.GetCategory(ctx, "smart-phones")
	require.NoError(t, err)
	assert.Equal(t, "Smart Phones", smart.Name)
	assert.Equal(t, smart.ID, phone.CategoryID)
	assert.Equal(t, brand.ID, phone.BrandID, "first brand is reused when none is given")

	again, err := s.CreateProduct(ctx, seller.ID, NewProduct{Name: "Phone", Category: "Smart Phones"})
	require.NoError(t, err)
	assert.Equal(t, smart.ID, again.CategoryID)
	assert.NotEqual(t, phone.Slug, again.Slug, "slug collisions get a suffix")
	assert.Contains(t, again.Slug, "phone-")
}

func TestCreateProductMakesDefaultVariant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := mustUser(t, s, "seller@example.com", RoleCustomer)

	p, err := s.CreateProduct(ctx, seller.ID, NewProduct{
		Name:       "Laptop",
		SKU:        "LAP-1",
		Price:      decimal.RequireFromString("999.999"),
		Stock:      7,
		ImagePaths: []string{"/media/a.png", "https://cdn.example.com/b.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, p.Stock)
	assert.Equal(t, "1000", p.Price.String())
	assert.Equal(t, "/media/a.png", p.ImageURL)

	d, err := s.ProductDetail(ctx, p.Slug)
	require.NoError(t, err)
	require.Len(t, d.Variants, 1)
	v := d.Variants[0]
	assert.True(t, v.IsDefault)
	assert.Equal(t, "Default", v.Label)
	assert.Equal(t, "LAP-1", v.SKU)
	assert.Equal(t, 7, v.StockQty)
	assert.Equal(t, inventory.InStock, v.StockStatus)
	require.Len(t, d.Images, 2)
	assert.True(t, d.Images[0].IsPrimary)
	assert.Equal(t, "/media/a.png", d.Images[0].ImagePath)

	moves, err := s.ListMovements(ctx, MovementFilter{VariantID: v.ID})
	require.NoError(t, err)
	require.Len(t, moves.Items, 1)
	assert.Equal(t, inventory.MovementRestock, moves.Items[0].Type)

	_, err = s.CreateProduct(ctx, seller.ID, NewProduct{Name: "Clone", SKU: "lap-1"})
	require.ErrorIs(t, err, ErrConflict)
	_, err = s.CreateProduct(ctx, seller.ID, NewProduct{Name: ""})
	var in *InputError
	require.ErrorAs(t, err, &in)
}

func TestUpdateProductPropagatesToDefaultVariant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := mustUser(t, s, "seller@example.com", RoleCustomer)
	p := mustProduct(t, s, seller.ID, "Speaker", "50", 10)

	stock := 4
	price := decimal.RequireFromString("45.50")
	sold := true
	updated, err := s.UpdateProduct(ctx, p.ID, seller.ID, ProductUpdate{Stock: &stock, Price: &price, IsSold: &sold})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Stock)
	assert.True(t, updated.IsSold)
	assert.True(t, updated.Price.Equal(price))

	v := mustDefaultVariant(t, s, p.ID)
	assert.Equal(t, 4, v.StockQty)
	assert.True(t, v.Price.Equal(price))
	assert.Equal(t, inventory.LowStock, v.StockStatus)

	moves, err := s.ListMovements(ctx, MovementFilter{VariantID: v.ID})
	require.NoError(t, err)
	require.Len(t, moves.Items, 2)
	assert.Equal(t, inventory.MovementAdjustment, moves.Items[0].Type)
	assert.Equal(t, -6, moves.Items[0].Change)
	assert.Equal(t, seller.ID, moves.Items[0].CreatedBy)

	_, err = s.UpdateProduct(ctx, p.ID, seller.ID, ProductUpdate{})
	var in *InputError
	require.ErrorAs(t, err, &in)
}

func TestListProductsPaginatesAndCaches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := mustUser(t, s, "seller@example.com", RoleCustomer)
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		mustProduct(t, s, seller.ID, "Item "+name, "1", 1)
	}

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := s.ListProducts(ctx, ProductFilter{PublicOnly: true, Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		for _, p := range page.Items {
			assert.False(t, seen[p.ID], "duplicate %s", p.ID)
			seen[p.ID] = true
		}
		pages++
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, 3, pages)

	first, err := s.ListProducts(ctx, ProductFilter{PublicOnly: true, Limit: 2})
	require.NoError(t, err)
	assert.True(t, first.Cached)

	newest := mustProduct(t, s, seller.ID, "Item F", "1", 1)
	fresh, err := s.ListProducts(ctx, ProductFilter{PublicOnly: true, Limit: 2})
	require.NoError(t, err)
	assert.False(t, fresh.Cached, "writes purge the listing cache")
	assert.Equal(t, newest.ID, fresh.Items[0].ID)
}

func TestListProductsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := mustUser(t, s, "seller@example.com", RoleCustomer)
	other := mustUser(t, s, "other@example.com", RoleCustomer)

	lamp, err := s.CreateProduct(ctx, seller.ID, NewProduct{Name: "Desk Lamp", Description: "Warm LED light", Category: "Home & Garden"})
	require.NoError(t, err)
	mustProduct(t, s, seller.ID, "Headphones", "20", 3)
	sold := mustProduct(t, s, other.ID, "Old Radio", "5", 1)
	yes := true
	_, err = s.UpdateProduct(ctx, sold.ID, other.ID, ProductUpdate{IsSold: &yes})
	require.NoError(t, err)

	public, err := s.ListProducts(ctx, ProductFilter{PublicOnly: true})
	require.NoError(t, err)
	assert.Len(t, public.Items, 2)

	mine, err := s.ListProducts(ctx, ProductFilter{OwnerID: other.ID})
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)
	assert.Equal(t, sold.ID, mine.Items[0].ID)

	byCategory, err := s.ListProducts(ctx, ProductFilter{PublicOnly: true, CategoryID: "home-garden"})
	require.NoError(t, err)
	require.Len(t, byCategory.Items, 1)
	assert.Equal(t, lamp.ID, byCategory.Items[0].ID)

	byQuery, err := s.ListProducts(ctx, ProductFilter{PublicOnly: true, Query: "led"})
	require.NoError(t, err)
	require.Len(t, byQuery.Items, 1)
	assert.Equal(t, lamp.ID, byQuery.Items[0].ID)

	plan, err := s.ExplainProducts(ctx, ProductFilter{PublicOnly: true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"mode": ModeMemory, "note": "no SQL plan available"}, plan)
}

func TestDeleteProductRemovesChildren(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := mustUser(t, s, "seller@example.com", RoleCustomer)
	buyer := mustUser(t, s, "buyer@example.com", "")
	p, err := s.CreateProduct(ctx, seller.ID, NewProduct{Name: "Camera", Stock: 2, ImagePaths: []string{"/media/cam.png"}})
	require.NoError(t, err)
	name, value := "Resolution", "24MP"
	_, err = s.CreateAttribute(ctx, p.ID, AttributeInput{Name: &name, Value: &value})
	require.NoError(t, err)
	v := mustDefaultVariant(t, s, p.ID)
	_, err = s.AddToCart(ctx, buyer.ID, v.ID, 1)
	require.NoError(t, err)

	paths, err := s.DeleteProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/media/cam.png"}, paths)

	_, err = s.GetProduct(ctx, p.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetVariant(ctx, v.ID)
	require.ErrorIs(t, err, ErrNotFound)
	cart, err := s.GetCart(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	_, err = s.DeleteProduct(ctx, p.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTaxonomyCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	name := "Audio"
	c, err := s.CreateCategory(ctx, TaxonomyInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "audio", c.Slug)

	_, err = s.CreateCategory(ctx, TaxonomyInput{Name: &name})
	require.ErrorIs(t, err, ErrConflict)

	renamed := "Hi-Fi Audio"
	c, err = s.UpdateCategory(ctx, c.ID, TaxonomyInput{Name: &renamed})
	require.NoError(t, err)
	assert.Equal(t, "hi-fi-audio", c.Slug)

	seller := mustUser(t, s, "seller@example.com", RoleCustomer)
	_, err = s.CreateProduct(ctx, seller.ID, NewProduct{Name: "Amp", Category: "hi-fi-audio"})
	require.NoError(t, err)
	require.ErrorIs(t, s.DeleteCategory(ctx, c.ID), ErrConflict)

	brandName, desc := "Acme", "Everything"
	b, err := s.CreateBrand(ctx, TaxonomyInput{Name: &brandName, Description: &desc})
	require.NoError(t, err)
	list, err := s.ListBrands(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, list)
	require.NoError(t, s.DeleteBrand(ctx, b.ID))
	require.ErrorIs(t, s.DeleteBrand(ctx, b.ID), ErrNotFound)
}

func TestVariantsAndImages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := mustUser(t, s, "seller@example.com", RoleCustomer)
	p := mustProduct(t, s, seller.ID, "T-Shirt", "15", 0)

	label := "Large"
	price := decimal.NewFromInt(17)
	qty := 3
	large, err := s.CreateVariant(ctx, p.ID, seller.ID, VariantInput{Label: &label, Price: &price, StockQty: &qty})
	require.NoError(t, err)
	assert.Equal(t, inventory.LowStock, large.StockStatus)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock, "product stock sums its variants")

	def := mustDefaultVariant(t, s, p.ID)
	assert.Equal(t, inventory.OutOfStock, def.StockStatus)
	require.ErrorIs(t, s.DeleteVariant(ctx, def.ID), ErrConflict)

	newPrice := decimal.NewFromInt(12)
	_, err = s.UpdateVariant(ctx, def.ID, seller.ID, VariantInput{Price: &newPrice})
	require.NoError(t, err)
	got, err = s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(newPrice), "default variant price mirrors onto the product")

	negative := -1
	_, err = s.UpdateVariant(ctx, large.ID, seller.ID, VariantInput{StockQty: &negative})
	var in *InputError
	require.ErrorAs(t, err, &in)
	require.NoError(t, s.DeleteVariant(ctx, large.ID))

	imgs, err := s.AddProductImages(ctx, p.ID, []string{"/media/front.png", "/media/back.png"})
	require.NoError(t, err)
	require.Len(t, imgs, 2)
	assert.True(t, imgs[0].IsPrimary)

	removed, err := s.DeleteProductImage(ctx, imgs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "/media/front.png", removed.ImagePath)
	got, err = s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "/media/back.png", got.ImageURL)
	rest, err := s.ListProductImages(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.True(t, rest[0].IsPrimary)
}

func TestReviewsOnePerUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := mustUser(t, s, "seller@example.com", RoleCustomer)
	alice := mustUser(t, s, "alice@example.com", "")
	bob := mustUser(t, s, "bob@example.com", "")
	p := mustProduct(t, s, seller.ID, "Kettle", "30", 5)
	rate := func(n int) *int { return &n }

	r, err := s.CreateReview(ctx, p.ID, alice.ID, ReviewInput{Rating: rate(5)})
	require.NoError(t, err)
	assert.Equal(t, "alice", r.Username)
	_, err = s.CreateReview(ctx, p.ID, alice.ID, ReviewInput{Rating: rate(1)})
	require.ErrorIs(t, err, ErrConflict)
	_, err = s.CreateReview(ctx, p.ID, bob.ID, ReviewInput{Rating: rate(6)})
	var in *InputError
	require.ErrorAs(t, err, &in)
	_, err = s.CreateReview(ctx, p.ID, bob.ID, ReviewInput{Rating: rate(2)})
	require.NoError(t, err)

	sum, err := s.ReviewSummary(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Count)
	assert.InDelta(t, 3.5, sum.Average, 0.001)

	page, err := s.ListReviews(ctx, p.ID, "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	require.NoError(t, s.DeleteReview(ctx, r.ID))
	_, err = s.GetReview(ctx, r.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAdjustStock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := mustUser(t, s, "seller@example.com", RoleCustomer)
	p := mustProduct(t, s, seller.ID, "Router", "80", 2)
	v := mustDefaultVariant(t, s, p.ID)

	_, _, err := s.AdjustStock(ctx, v.ID, seller.ID, StockAdjustment{Change: -3})
	require.ErrorIs(t, err, ErrConflict)

	_, _, err = s.AdjustStock(ctx, v.ID, seller.ID, StockAdjustment{Change: 1, Type: "sale"})
	var in *InputError
	require.ErrorAs(t, err, &in)

	updated, m, err := s.AdjustStock(ctx, v.ID, seller.ID, StockAdjustment{Change: 10, Type: "Restock", Note: "delivery"})
	require.NoError(t, err)
	assert.Equal(t, 12, updated.StockQty)
	assert.Equal(t, inventory.MovementRestock, m.Type)
	assert.Equal(t, "delivery", m.Note)

	entries, err := s.ListStock(ctx, StockFilter{OwnerID: seller.ID, Status: inventory.InStock})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Router", entries[0].ProductName)

	none, err := s.ListStock(ctx, StockFilter{Status: inventory.OutOfStock})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = s.ListStock(ctx, StockFilter{Status: "plenty"})
	require.ErrorAs(t, err, &in)
}

func TestSeedIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	data, err := DefaultSeed()
	require.NoError(t, err)

	res, err := s.Seed(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Categories: 2, Brands: 1}, res)

	res, err = s.Seed(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{}, res)

	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Electronics", cats[0].Name)
	assert.Equal(t, "home-garden", cats[1].Slug)
}
