package http

import (
	"net/http"
)

type categoryResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type createCategoryRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.ListCategories(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryResponse{ID: c.ID, Name: c.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	category, err := s.store.CreateCategory(r.Context(), req.Name)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, categoryResponse{ID: category.ID, Name: category.Name})
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
