package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/recipesnap/apiserver/internal/services"
	"github.com/sirupsen/logrus"
)

// CatalogueHandler serves the shared ingredient and tag catalogues.
type CatalogueHandler struct {
	tags        *services.TagService
	ingredients *services.IngredientService
	log         logrus.FieldLogger
}

func NewCatalogueHandler(tags *services.TagService, ingredients *services.IngredientService, log logrus.FieldLogger) *CatalogueHandler {
	return &CatalogueHandler{tags: tags, ingredients: ingredients, log: log}
}

// TagRouter registers tag routes.
func TagRouter(r chi.Router, handler *CatalogueHandler, auth *AuthHandler) {
	r.With(auth.OptionalUser).Get("/", handler.ListTags)
	r.With(auth.RequireUser).Post("/", handler.CreateTag)
	r.With(auth.RequireUser).Delete("/{tagID}", handler.DeleteTag)
}

// IngredientRouter registers ingredient routes.
func IngredientRouter(r chi.Router, handler *CatalogueHandler) {
	r.Get("/", handler.ListIngredients)
}

func (h *CatalogueHandler) ListIngredients(w http.ResponseWriter, r *http.Request) {
	items, err := h.ingredients.ListIngredients(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "ingredient")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ListTags returns every tag, or only the caller's with ?mine=true.
func (h *CatalogueHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	mine, err := parseBoolQuery(r, "mine")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var ownerID *int
	if mine {
		if ownerID = currentUserID(r.Context()); ownerID == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}

	items, err := h.tags.ListTags(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, h.log, err, "tag")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CatalogueHandler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tag, err := h.tags.CreateTag(r.Context(), req.Name, currentUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, err, "tag")
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

func (h *CatalogueHandler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "tagID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.tags.DeleteTag(r.Context(), id); err != nil {
		writeServiceError(w, h.log, err, "tag")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type TagRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}
