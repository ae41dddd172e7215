package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"techverse/marketplace/internal/store"
)

type createProductRequest struct {
	Name         string           `json:"name"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Desc         string           `json:"desc"`
	SKU          string           `json:"sku"`
	Category     string           `json:"category"`
	Brand        string           `json:"brand"`
	Price        *decimal.Decimal `json:"price"`
	PriceCents   *decimal.Decimal `json:"price_cents"`
	Quantity     *int             `json:"quantity"`
	Stock        *int             `json:"stock"`
	TrackingLink string           `json:"tracking_link"`
	Images       []string         `json:"images"`
	ImageURLs    []string         `json:"image_urls"`
}

func (req createProductRequest) toNewProduct() store.NewProduct {
	in := store.NewProduct{
		Name:         firstNonEmpty(req.Name, req.Title),
		Description:  firstNonEmpty(req.Description, req.Desc),
		SKU:          req.SKU,
		Category:     req.Category,
		Brand:        req.Brand,
		TrackingLink: req.TrackingLink,
	}
	switch {
	case req.Price != nil:
		in.Price = *req.Price
	case req.PriceCents != nil:
		in.Price = req.PriceCents.Div(decimal.NewFromInt(100))
	}
	switch {
	case req.Quantity != nil:
		in.Stock = *req.Quantity
	case req.Stock != nil:
		in.Stock = *req.Stock
	}
	return in
}

func (req createProductRequest) imageRefs() []string {
	if len(req.Images) > 0 {
		return req.Images
	}
	return req.ImageURLs
}

type imagesRequest struct {
	Images    []string `json:"images"`
	ImageURLs []string `json:"image_urls"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func productFilter(r *http.Request) store.ProductFilter {
	return store.ProductFilter{
		CategoryID: query(r, "category"),
		BrandID:    query(r, "brand"),
		Query:      query(r, "q"),
		PublicOnly: true,
		Cursor:     query(r, "cursor"),
		Limit:      intParam(r, "limit", 20, 1, 200),
	}
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	page, err := s.store.ListProducts(r.Context(), productFilter(r))
	if err != nil {
		s.writeError(w, r, "product", err)
		return
	}
	writePage(w, "product", page)
}

func (s *Server) explainProducts(w http.ResponseWriter, r *http.Request) {
	plan, err := s.store.ExplainProducts(r.Context(), productFilter(r))
	if err != nil {
		s.writeError(w, r, "product", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan": plan, "event_topic": topic("product", "explain.generated")})
}

func (s *Server) myProducts(w http.ResponseWriter, r *http.Request, u store.User) {
	page, err := s.store.ListProducts(r.Context(), store.ProductFilter{
		OwnerID: u.ID,
		Cursor:  query(r, "cursor"),
		Limit:   intParam(r, "limit", 50, 1, 200),
	})
	if err != nil {
		s.writeError(w, r, "product", err)
		return
	}
	writePage(w, "product", page)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.ProductDetail(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "product", err)
		return
	}
	writeItem(w, http.StatusOK, "product", "read", d)
}

func (s *Server) saveImages(refs []string) ([]string, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	if len(refs) > maxImagesPerRequest {
		return nil, &store.InputError{Msg: fmt.Sprintf("at most %d images per request", maxImagesPerRequest)}
	}
	if s.media == nil {
		for _, ref := range refs {
			if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
				return nil, &store.InputError{Msg: "image uploads are not enabled"}
			}
		}
		return refs, nil
	}
	paths, err := s.media.SaveAll(refs)
	if err != nil {
		return nil, &store.InputError{Msg: err.Error()}
	}
	return paths, nil
}

func (s *Server) discardImages(r *http.Request, paths []string) {
	if s.media == nil {
		return
	}
	for _, p := range paths {
		if err := s.media.Remove(p); err != nil {
			hlogFrom(r).Warn().Err(err).Str("path", p).Msg("remove stored image")
		}
	}
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request, u store.User) {
	var req createProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		decodeFailed(w, err)
		return
	}
	in := req.toNewProduct()
	if strings.TrimSpace(in.Name) == "" {
		badRequest(w, "name is required")
		return
	}
	paths, err := s.saveImages(req.imageRefs())
	if err != nil {
		s.writeError(w, r, "product", err)
		return
	}
	in.ImagePaths = paths
	p, err := s.store.CreateProduct(r.Context(), u.ID, in)
	if err != nil {
		s.discardImages(r, paths)
		s.writeError(w, r, "product", err)
		return
	}
	d, err := s.store.ProductDetail(r.Context(), p.ID)
	if err != nil {
		s.writeError(w, r, "product", err)
		return
	}
	writeItem(w, http.StatusCreated, "product", "created", d)
}

// ownedProduct loads a product and checks u may manage it.
func (s *Server) ownedProduct(w http.ResponseWriter, r *http.Request, u store.User, ref string) (store.Product, bool) {
	p, err := s.store.GetProduct(r.Context(), ref)
	if err != nil {
		s.writeError(w, r, "product", err)
		return store.Product{}, false
	}
	if !canManage(u, p.UserID) {
		s.writeError(w, r, "product", errForbidden)
		return store.Product{}, false
	}
	return p, true
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request, u store.User) {
	p, ok := s.ownedProduct(w, r, u, r.PathValue("id"))
	if !ok {
		return
	}
	var in store.ProductUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		decodeFailed(w, err)
		return
	}
	updated, err := s.store.UpdateProduct(r.Context(), p.ID, u.ID, in)
	if err != nil {
		s.writeError(w, r, "product", err)
		return
	}
	writeItem(w, http.StatusOK, "product", "updated", updated)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request, u store.User) {
	p, ok := s.ownedProduct(w, r, u, r.PathValue("id"))
	if !ok {
		return
	}
	paths, err := s.store.DeleteProduct(r.Context(), p.ID)
	if err != nil {
		s.writeError(w, r, "product", err)
		return
	}
	s.discardImages(r, paths)
	writeDeleted(w, "product", p.ID)
}

// ---------------------------------------------------------------------------
// Images
// ---------------------------------------------------------------------------

func (s *Server) listImages(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "product", err)
		return
	}
	list, err := s.store.ListProductImages(r.Context(), p.ID)
	if err != nil {
		s.writeError(w, r, "product_image", err)
		return
	}
	writeItems(w, "product_image", list)
}

func (s *Server) addImages(w http.ResponseWriter, r *http.Request, u store.User) {
	p, ok := s.ownedProduct(w, r, u, r.PathValue("id"))
	if !ok {
		return
	}
	var req imagesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		decodeFailed(w, err)
		return
	}
	refs := req.Images
	if len(refs) == 0 {
		refs = req.ImageURLs
	}
	paths, err := s.saveImages(refs)
	if err != nil {
		s.writeError(w, r, "product_image", err)
		return
	}
	images, err := s.store.AddProductImages(r.Context(), p.ID, paths)
	if err != nil {
		s.discardImages(r, paths)
		s.writeError(w, r, "product_image", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"items": images, "event_topic": topic("product_image", "created")})
}

func (s *Server) deleteImage(w http.ResponseWriter, r *http.Request, u store.User) {
	img, err := s.store.GetProductImage(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "product_image", err)
		return
	}
	if _, ok := s.ownedProduct(w, r, u, img.ProductID); !ok {
		return
	}
	if _, err := s.store.DeleteProductImage(r.Context(), img.ID); err != nil {
		s.writeError(w, r, "product_image", err)
		return
	}
	s.discardImages(r, []string{img.ImagePath})
	writeDeleted(w, "product_image", img.ID)
}

// ---------------------------------------------------------------------------
// Attributes
// ---------------------------------------------------------------------------

func (s *Server) listAttributes(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "product", err)
		return
	}
	list, err := s.store.ListAttributes(r.Context(), p.ID)
	if err != nil {
		s.writeError(w, r, "product_attribute", err)
		return
	}
	writeItems(w, "product_attribute", list)
}

func (s *Server) createAttribute(w http.ResponseWriter, r *http.Request, u store.User) {
	p, ok := s.ownedProduct(w, r, u, r.PathValue("id"))
	if !ok {
		return
	}
	var in store.AttributeInput
	if err := decodeJSON(w, r, &in); err != nil {
		decodeFailed(w, err)
		return
	}
	a, err := s.store.CreateAttribute(r.Context(), p.ID, in)
	if err != nil {
		s.writeError(w, r, "product_attribute", err)
		return
	}
	writeItem(w, http.StatusCreated, "product_attribute", "created", a)
}

func (s *Server) ownedAttribute(w http.ResponseWriter, r *http.Request, u store.User) (store.ProductAttribute, bool) {
	a, err := s.store.GetAttribute(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "product_attribute", err)
		return store.ProductAttribute{}, false
	}
	if _, ok := s.ownedProduct(w, r, u, a.ProductID); !ok {
		return store.ProductAttribute{}, false
	}
	return a, true
}

func (s *Server) updateAttribute(w http.ResponseWriter, r *http.Request, u store.User) {
	a, ok := s.ownedAttribute(w, r, u)
	if !ok {
		return
	}
	var in store.AttributeInput
	if err := decodeJSON(w, r, &in); err != nil {
		decodeFailed(w, err)
		return
	}
	updated, err := s.store.UpdateAttribute(r.Context(), a.ID, in)
	if err != nil {
		s.writeError(w, r, "product_attribute", err)
		return
	}
	writeItem(w, http.StatusOK, "product_attribute", "updated", updated)
}

func (s *Server) deleteAttribute(w http.ResponseWriter, r *http.Request, u store.User) {
	a, ok := s.ownedAttribute(w, r, u)
	if !ok {
		return
	}
	if err := s.store.DeleteAttribute(r.Context(), a.ID); err != nil {
		s.writeError(w, r, "product_attribute", err)
		return
	}
	writeDeleted(w, "product_attribute", a.ID)
}

// ---------------------------------------------------------------------------
// Variants
// ---------------------------------------------------------------------------

func (s *Server) listVariants(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "product", err)
		return
	}
	list, err := s.store.ListVariants(r.Context(), p.ID)
	if err != nil {
		s.writeError(w, r, "variant", err)
		return
	}
	writeItems(w, "variant", list)
}

func (s *Server) createVariant(w http.ResponseWriter, r *http.Request, u store.User) {
	p, ok := s.ownedProduct(w, r, u, r.PathValue("id"))
	if !ok {
		return
	}
	var in store.VariantInput
	if err := decodeJSON(w, r, &in); err != nil {
		decodeFailed(w, err)
		return
	}
	v, err := s.store.CreateVariant(r.Context(), p.ID, u.ID, in)
	if err != nil {
		s.writeError(w, r, "variant", err)
		return
	}
	writeItem(w, http.StatusCreated, "variant", "created", v)
}

func (s *Server) getVariant(w http.ResponseWriter, r *http.Request) {
	v, err := s.store.GetVariant(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "variant", err)
		return
	}
	writeItem(w, http.StatusOK, "variant", "read", v)
}

func (s *Server) ownedVariant(w http.ResponseWriter, r *http.Request, u store.User, id string) (store.Variant, bool) {
	v, err := s.store.GetVariant(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "variant", err)
		return store.Variant{}, false
	}
	if _, ok := s.ownedProduct(w, r, u, v.ProductID); !ok {
		return store.Variant{}, false
	}
	return v, true
}

func (s *Server) updateVariant(w http.ResponseWriter, r *http.Request, u store.User) {
	v, ok := s.ownedVariant(w, r, u, r.PathValue("id"))
	if !ok {
		return
	}
	var in store.VariantInput
	if err := decodeJSON(w, r, &in); err != nil {
		decodeFailed(w, err)
		return
	}
	updated, err := s.store.UpdateVariant(r.Context(), v.ID, u.ID, in)
	if err != nil {
		s.writeError(w, r, "variant", err)
		return
	}
	writeItem(w, http.StatusOK, "variant", "updated", updated)
}

func (s *Server) deleteVariant(w http.ResponseWriter, r *http.Request, u store.User) {
	v, ok := s.ownedVariant(w, r, u, r.PathValue("id"))
	if !ok {
		return
	}
	if err := s.store.DeleteVariant(r.Context(), v.ID); err != nil {
		s.writeError(w, r, "variant", err)
		return
	}
	writeDeleted(w, "variant", v.ID)
}

// ---------------------------------------------------------------------------
// Reviews
// ---------------------------------------------------------------------------

func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "product", err)
		return
	}
	page, err := s.store.ListReviews(r.Context(), p.ID, query(r, "cursor"), intParam(r, "limit", 20, 1, 200))
	if err != nil {
		s.writeError(w, r, "review", err)
		return
	}
	writePage(w, "review", page)
}

func (s *Server) createReview(w http.ResponseWriter, r *http.Request, u store.User) {
	p, err := s.store.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "product", err)
		return
	}
	var in store.ReviewInput
	if err := decodeJSON(w, r, &in); err != nil {
		decodeFailed(w, err)
		return
	}
	rv, err := s.store.CreateReview(r.Context(), p.ID, u.ID, in)
	if err != nil {
		s.writeError(w, r, "review", err)
		return
	}
	writeItem(w, http.StatusCreated, "review", "created", rv)
}

func (s *Server) ownedReview(w http.ResponseWriter, r *http.Request, u store.User) (store.Review, bool) {
	rv, err := s.store.GetReview(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "review", err)
		return store.Review{}, false
	}
	if !canManage(u, rv.UserID) {
		s.writeError(w, r, "review", errForbidden)
		return store.Review{}, false
	}
	return rv, true
}

func (s *Server) updateReview(w http.ResponseWriter, r *http.Request, u store.User) {
	rv, ok := s.ownedReview(w, r, u)
	if !ok {
		return
	}
	var in store.ReviewInput
	if err := decodeJSON(w, r, &in); err != nil {
		decodeFailed(w, err)
		return
	}
	updated, err := s.store.UpdateReview(r.Context(), rv.ID, in)
	if err != nil {
		s.writeError(w, r, "review", err)
		return
	}
	writeItem(w, http.StatusOK, "review", "updated", updated)
}

func (s *Server) deleteReview(w http.ResponseWriter, r *http.Request, u store.User) {
	rv, ok := s.ownedReview(w, r, u)
	if !ok {
		return
	}
	if err := s.store.DeleteReview(r.Context(), rv.ID); err != nil {
		s.writeError(w, r, "review", err)
		return
	}
	writeDeleted(w, "review", rv.ID)
}
