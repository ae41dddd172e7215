package api

import (
	"net/http"

	"techverse/marketplace/internal/store"
)

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListCategories(r.Context())
	if err != nil {
		s.writeError(w, r, "category", err)
		return
	}
	writeItems(w, "category", list)
}

func (s *Server) getCategory(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCategory(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "category", err)
		return
	}
	writeItem(w, http.StatusOK, "category", "read", c)
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request, _ store.User) {
	var in store.TaxonomyInput
	if err := decodeJSON(w, r, &in); err != nil {
		decodeFailed(w, err)
		return
	}
	c, err := s.store.CreateCategory(r.Context(), in)
	if err != nil {
		s.writeError(w, r, "category", err)
		return
	}
	writeItem(w, http.StatusCreated, "category", "created", c)
}

func (s *Server) updateCategory(w http.ResponseWriter, r *http.Request, _ store.User) {
	var in store.TaxonomyInput
	if err := decodeJSON(w, r, &in); err != nil {
		decodeFailed(w, err)
		return
	}
	c, err := s.store.UpdateCategory(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, "category", err)
		return
	}
	writeItem(w, http.StatusOK, "category", "updated", c)
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request, _ store.User) {
	id := r.PathValue("id")
	if err := s.store.DeleteCategory(r.Context(), id); err != nil {
		s.writeError(w, r, "category", err)
		return
	}
	writeDeleted(w, "category", id)
}

func (s *Server) listBrands(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListBrands(r.Context())
	if err != nil {
		s.writeError(w, r, "brand", err)
		return
	}
	writeItems(w, "brand", list)
}

func (s *Server) getBrand(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.GetBrand(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "brand", err)
		return
	}
	writeItem(w, http.StatusOK, "brand", "read", b)
}

func (s *Server) createBrand(w http.ResponseWriter, r *http.Request, _ store.User) {
	var in store.TaxonomyInput
	if err := decodeJSON(w, r, &in); err != nil {
		decodeFailed(w, err)
		return
	}
	b, err := s.store.CreateBrand(r.Context(), in)
	if err != nil {
		s.writeError(w, r, "brand", err)
		return
	}
	writeItem(w, http.StatusCreated, "brand", "created", b)
}

func (s *Server) updateBrand(w http.ResponseWriter, r *http.Request, _ store.User) {
	var in store.TaxonomyInput
	if err := decodeJSON(w, r, &in); err != nil {
		decodeFailed(w, err)
		return
	}
	b, err := s.store.UpdateBrand(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, "brand", err)
		return
	}
	writeItem(w, http.StatusOK, "brand", "updated", b)
}

func (s *Server) deleteBrand(w http.ResponseWriter, r *http.Request, _ store.User) {
	id := r.PathValue("id")
	if err := s.store.DeleteBrand(r.Context(), id); err != nil {
		s.writeError(w, r, "brand", err)
		return
	}
	writeDeleted(w, "brand", id)
}
