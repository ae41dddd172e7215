// Package api exposes the marketplace over JSON HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"techverse/marketplace/internal/auth"
	"techverse/marketplace/internal/media"
	"techverse/marketplace/internal/metrics"
	"techverse/marketplace/internal/store"
)

const serviceName = "techverse-marketplace"

// Options wires a Server's collaborators and settings.
type Options struct {
	Store    *store.Store
	Sessions auth.SessionStore
	Media    *media.Store
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger

	ModuleName    string
	SessionTTL    time.Duration
	SessionCookie string
	CookieSecure  bool
	AdminCode     string
}

// Server handles every /api route plus health, metrics and media.
type Server struct {
	store    *store.Store
	sessions auth.SessionStore
	media    *media.Store
	metrics  *metrics.Metrics
	log      zerolog.Logger

	module     string
	sessionTTL time.Duration
	cookie     string
	secure     bool
	adminCode  string

	mux *http.ServeMux
}

// New builds a Server. A nil Sessions falls back to the store's session table.
func New(opts Options) *Server {
	if opts.Sessions == nil {
		opts.Sessions = opts.Store
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(opts.Store.Mode())
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 2 * time.Hour
	}
	if opts.SessionCookie == "" {
		opts.SessionCookie = "techverse_session"
	}
	if opts.ModuleName == "" {
		opts.ModuleName = "Tech-Verse"
	}
	s := &Server{
		store:      opts.Store,
		sessions:   opts.Sessions,
		media:      opts.Media,
		metrics:    opts.Metrics,
		log:        opts.Logger,
		module:     opts.ModuleName,
		sessionTTL: opts.SessionTTL,
		cookie:     opts.SessionCookie,
		secure:     opts.CookieSecure,
		adminCode:  opts.AdminCode,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the mux wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.authenticate(h)
	h = s.instrument(h)
	h = s.recoverer(h)
	h = withLogging(s.log, h)
	return withServerDefaults(h)
}

func (s *Server) routes() {
	m := s.mux

	m.HandleFunc("GET /healthz", s.health)
	m.Handle("GET /metrics", s.metrics.Handler())
	if s.media != nil {
		m.Handle("GET "+media.URLPrefix, s.media.Handler())
	}

	m.HandleFunc("POST /api/register", s.register)
	m.HandleFunc("POST /api/login", s.login)
	m.HandleFunc("POST /api/logout", s.logout)
	m.HandleFunc("GET /api/user", s.requireUser(s.currentUserHandler))

	m.HandleFunc("GET /api/addresses", s.requireUser(s.listAddresses))
	m.HandleFunc("POST /api/addresses", s.requireUser(s.createAddress))
	m.HandleFunc("GET /api/addresses/{id}", s.requireUser(s.getAddress))
	m.HandleFunc("PATCH /api/addresses/{id}", s.requireUser(s.updateAddress))
	m.HandleFunc("PUT /api/addresses/{id}", s.requireUser(s.updateAddress))
	m.HandleFunc("DELETE /api/addresses/{id}", s.requireUser(s.deleteAddress))

	m.HandleFunc("GET /api/categories", s.listCategories)
	m.HandleFunc("GET /api/categories/{id}", s.getCategory)
	m.HandleFunc("POST /api/categories", s.requireAdmin(s.createCategory))
	m.HandleFunc("PATCH /api/categories/{id}", s.requireAdmin(s.updateCategory))
	m.HandleFunc("PUT /api/categories/{id}", s.requireAdmin(s.updateCategory))
	m.HandleFunc("DELETE /api/categories/{id}", s.requireAdmin(s.deleteCategory))

	m.HandleFunc("GET /api/brands", s.listBrands)
	m.HandleFunc("GET /api/brands/{id}", s.getBrand)
	m.HandleFunc("POST /api/brands", s.requireAdmin(s.createBrand))
	m.HandleFunc("PATCH /api/brands/{id}", s.requireAdmin(s.updateBrand))
	m.HandleFunc("PUT /api/brands/{id}", s.requireAdmin(s.updateBrand))
	m.HandleFunc("DELETE /api/brands/{id}", s.requireAdmin(s.deleteBrand))

	m.HandleFunc("GET /api/products", s.listProducts)
	m.HandleFunc("GET /api/products/_explain", s.explainProducts)
	m.HandleFunc("GET /api/my-products", s.requireUser(s.myProducts))
	m.HandleFunc("POST /api/products", s.requireUser(s.createProduct))
	m.HandleFunc("GET /api/products/{id}", s.getProduct)
	m.HandleFunc("PATCH /api/products/{id}", s.requireUser(s.updateProduct))
	m.HandleFunc("PUT /api/products/{id}", s.requireUser(s.updateProduct))
	m.HandleFunc("DELETE /api/products/{id}", s.requireUser(s.deleteProduct))

	m.HandleFunc("GET /api/products/{id}/images", s.listImages)
	m.HandleFunc("POST /api/products/{id}/images", s.requireUser(s.addImages))
	m.HandleFunc("DELETE /api/product-images/{id}", s.requireUser(s.deleteImage))

	m.HandleFunc("GET /api/products/{id}/attributes", s.listAttributes)
	m.HandleFunc("POST /api/products/{id}/attributes", s.requireUser(s.createAttribute))
	m.HandleFunc("PATCH /api/product-attributes/{id}", s.requireUser(s.updateAttribute))
	m.HandleFunc("PUT /api/product-attributes/{id}", s.requireUser(s.updateAttribute))
	m.HandleFunc("DELETE /api/product-attributes/{id}", s.requireUser(s.deleteAttribute))

	m.HandleFunc("GET /api/products/{id}/variants", s.listVariants)
	m.HandleFunc("POST /api/products/{id}/variants", s.requireUser(s.createVariant))
	m.HandleFunc("GET /api/variants/{id}", s.getVariant)
	m.HandleFunc("PATCH /api/variants/{id}", s.requireUser(s.updateVariant))
	m.HandleFunc("PUT /api/variants/{id}", s.requireUser(s.updateVariant))
	m.HandleFunc("DELETE /api/variants/{id}", s.requireUser(s.deleteVariant))

	m.HandleFunc("GET /api/products/{id}/reviews", s.listReviews)
	m.HandleFunc("POST /api/products/{id}/reviews", s.requireUser(s.createReview))
	m.HandleFunc("PATCH /api/reviews/{id}", s.requireUser(s.updateReview))
	m.HandleFunc("PUT /api/reviews/{id}", s.requireUser(s.updateReview))
	m.HandleFunc("DELETE /api/reviews/{id}", s.requireUser(s.deleteReview))

	m.HandleFunc("GET /api/stock", s.requireUser(s.listStock))
	m.HandleFunc("GET /api/stock/{variant_id}", s.requireUser(s.getStock))
	m.HandleFunc("POST /api/stock/{variant_id}/adjust", s.requireUser(s.adjustStock))
	m.HandleFunc("GET /api/stock-movements", s.requireUser(s.listMovements))

	m.HandleFunc("GET /api/cart", s.requireUser(s.getCart))
	m.HandleFunc("POST /api/cart/add", s.requireUser(s.addToCart))
	m.HandleFunc("PATCH /api/cart/items/{variant_id}", s.requireUser(s.updateCartItem))
	m.HandleFunc("DELETE /api/cart/items/{variant_id}", s.requireUser(s.removeCartItem))
	m.HandleFunc("DELETE /api/cart", s.requireUser(s.clearCart))
	m.HandleFunc("GET /api/baskets", s.requireAdmin(s.listBaskets))

	m.HandleFunc("POST /api/checkout", s.requireUser(s.checkout))
	m.HandleFunc("GET /api/orders", s.requireUser(s.listOrders))
	m.HandleFunc("GET /api/orders/{id}", s.requireUser(s.getOrder))
	m.HandleFunc("PATCH /api/orders/{id}", s.requireAdmin(s.updateOrder))

	m.HandleFunc("POST /api/returns", s.requireUser(s.createReturn))
	m.HandleFunc("GET /api/returns", s.requireUser(s.listReturns))
	m.HandleFunc("GET /api/returns/{id}", s.requireUser(s.getReturn))
	m.HandleFunc("PATCH /api/returns/{id}", s.requireAdmin(s.updateReturn))

	m.HandleFunc("POST /api/contact", s.createContact)
	m.HandleFunc("GET /api/contact", s.requireAdmin(s.listContact))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		hlogFrom(r).Warn().Err(err).Msg("health check ping failed")
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"service": serviceName,
		"module":  s.module,
		"mode":    s.store.Mode(),
	})
}
