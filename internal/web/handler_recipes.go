package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/brokechef/fridgechef/internal/domain"
	"github.com/brokechef/fridgechef/internal/service"
)

const (
	maxRecipeBody    = 1 << 20
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// apiError is the error body of the upload and CRUD endpoints.
type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (s *Server) writeAPIError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, apiError{Message: msg, Code: code}, s.logger)
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	default:
		return "INTERNAL_ERROR"
	}
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func (s *Server) handleCreateRecipe(w http.ResponseWriter, r *http.Request) {
	var in domain.RecipeInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRecipeBody)).Decode(&in); err != nil {
		s.writeAPIError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid recipe body.")
		return
	}

	recipe, err := s.service.CreateRecipe(r.Context(), in)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRecipe) {
			s.writeAPIError(w, http.StatusBadRequest, "VALIDATION_ERROR", domain.Message(err, "Invalid recipe."))
			return
		}
		s.logger.Error("create recipe failed", "error", err)
		s.writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create recipe.")
		return
	}
	writeJSON(w, http.StatusCreated, recipe, s.logger)
}

func (s *Server) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	limit, offset := defaultPageLimit, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeAPIError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid limit.")
			return
		}
		limit = min(n, maxPageLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeAPIError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid offset.")
			return
		}
		offset = n
	}

	recipes, err := s.service.ListRecipes(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list recipes failed", "error", err)
		s.writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list recipes.")
		return
	}
	if recipes == nil {
		recipes = []*domain.Recipe{}
	}
	writeJSON(w, http.StatusOK, recipes, s.logger)
}

func (s *Server) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeAPIError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid recipe id.")
		return
	}
	recipe, err := s.service.GetRecipe(r.Context(), id)
	if err != nil {
		s.writeRecipeLookupError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, recipe, s.logger)
}

func (s *Server) handleDeleteRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeAPIError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid recipe id.")
		return
	}
	if err := s.service.DeleteRecipe(r.Context(), id); err != nil {
		s.writeRecipeLookupError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeRecipeLookupError(w http.ResponseWriter, id int64, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		s.writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "Recipe not found.")
		return
	}
	s.logger.Error("recipe lookup failed", "recipe_id", id, "error", err)
	s.writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load recipe.")
}
