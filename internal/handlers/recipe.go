package handlers

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/recipesnap/apiserver/internal/services"
	"github.com/recipesnap/apiserver/types"
	"github.com/sirupsen/logrus"
)

const (
	maxFormMemory     = 1 << 20
	formFieldTitle    = "title"
	formFieldSteps    = "steps"
	formFieldFavorite = "favorite"
	formFieldImageURL = "image_url"
	formFieldIngred   = "ingredients"
	formFieldTags     = "tags"
)

// RecipeHandler provides HTTP handlers for recipes.
type RecipeHandler struct {
	recipes *services.RecipeService
	log     logrus.FieldLogger
}

func NewRecipeHandler(recipes *services.RecipeService, log logrus.FieldLogger) *RecipeHandler {
	return &RecipeHandler{recipes: recipes, log: log}
}

// RecipeRouter registers recipe routes. Reads are public; writes need a
// session.
func RecipeRouter(r chi.Router, handler *RecipeHandler, auth *AuthHandler) {
	r.With(auth.OptionalUser).Get("/", handler.ListRecipes)
	r.With(auth.RequireUser).Post("/", handler.CreateRecipe)
	r.Route("/{recipeID}", func(r chi.Router) {
		r.Get("/", handler.GetRecipe)
		r.With(auth.RequireUser).Put("/", handler.UpdateRecipe)
		r.With(auth.RequireUser).Delete("/", handler.DeleteRecipe)
		r.With(auth.RequireUser).Post("/favorite", handler.ToggleFavorite)
	})
}

// ListRecipes supports ?favorite=true, ?mine=true and page/limit. Without
// page or limit every matching recipe is returned and limit reports 0.
func (h *RecipeHandler) ListRecipes(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !hasPagination(r) {
		limit, offset = 0, 0
	}
	favorite, err := parseBoolQuery(r, "favorite")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mine, err := parseBoolQuery(r, "mine")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := types.RecipeFilter{FavoriteOnly: favorite, Offset: offset, Limit: limit}
	if mine {
		filter.OwnerID = currentUserID(r.Context())
		if filter.OwnerID == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}

	items, total, err := h.recipes.ListRecipes(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.log, err, "recipe")
		return
	}

	writeJSON(w, http.StatusOK, RecipeListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *RecipeHandler) GetRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "recipeID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recipe, err := h.recipes.GetRecipe(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err, "recipe")
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

func (h *RecipeHandler) CreateRecipe(w http.ResponseWriter, r *http.Request) {
	input, err := parseRecipeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.recipes.CreateRecipe(r.Context(), input, currentUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, err, "recipe")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *RecipeHandler) UpdateRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "recipeID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	input, err := parseRecipeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.recipes.UpdateRecipe(r.Context(), id, input, currentUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, err, "recipe")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *RecipeHandler) DeleteRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "recipeID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.recipes.DeleteRecipe(r.Context(), id); err != nil {
		writeServiceError(w, h.log, err, "recipe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RecipeHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "recipeID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recipe, err := h.recipes.ToggleFavorite(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err, "recipe")
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

// RecipeRequest is the JSON body for create and update.
type RecipeRequest struct {
	Title       string   `json:"title" validate:"required,max=255"`
	Steps       string   `json:"steps" validate:"required"`
	Favorite    bool     `json:"favorite"`
	ImageURL    *string  `json:"image_url"`
	Ingredients []string `json:"ingredients" validate:"dive,max=255"`
	Tags        []string `json:"tags" validate:"dive,max=255"`
}

// RecipeListResponse is the paginated list response payload.
type RecipeListResponse struct {
	Items []types.Recipe `json:"items"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Total int            `json:"total"`
}

// parseRecipeRequest accepts a JSON body or a form post whose ingredients
// and tags fields are comma separated.
func parseRecipeRequest(r *http.Request) (types.RecipeInput, error) {
	var req RecipeRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := parseRecipeForm(r, &req); err != nil {
			return types.RecipeInput{}, err
		}
		if err := validateStruct(&req); err != nil {
			return types.RecipeInput{}, err
		}
	default:
		if err := decodeJSON(r, &req); err != nil {
			return types.RecipeInput{}, err
		}
	}

	return types.RecipeInput{
		Title:       req.Title,
		Steps:       req.Steps,
		Favorite:    req.Favorite,
		ImageURL:    req.ImageURL,
		Ingredients: req.Ingredients,
		Tags:        req.Tags,
	}, nil
}

func parseRecipeForm(r *http.Request, req *RecipeRequest) error {
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		err = r.ParseMultipartForm(maxFormMemory)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return errors.New("invalid form")
	}

	req.Title = r.FormValue(formFieldTitle)
	req.Steps = r.FormValue(formFieldSteps)
	req.Ingredients = splitList(r.FormValue(formFieldIngred))
	req.Tags = splitList(r.FormValue(formFieldTags))
	if raw := strings.TrimSpace(r.FormValue(formFieldFavorite)); raw == "on" {
		req.Favorite = true
	} else if raw != "" {
		favorite, err := strconv.ParseBool(raw)
		if err != nil {
			return errors.New("invalid favorite")
		}
		req.Favorite = favorite
	}
	if raw := r.FormValue(formFieldImageURL); raw != "" {
		req.ImageURL = &raw
	}
	return nil
}
