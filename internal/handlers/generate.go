package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/recipesnap/apiserver/internal/services"
	"github.com/sirupsen/logrus"
)

const (
	maxUploadBytes   = 10 << 20
	maxUploadMemory  = 12 << 20
	formFieldImage   = "image"
	formFieldFileAlt = "file"
)

// GenerateHandler exposes the AI-assisted flows.
type GenerateHandler struct {
	generator *services.GenerationService
	log       logrus.FieldLogger
}

func NewGenerateHandler(generator *services.GenerationService, log logrus.FieldLogger) *GenerateHandler {
	return &GenerateHandler{generator: generator, log: log}
}

// GenerateRouter registers generation routes. Saving a composed recipe
// needs a session; the rest is open.
func GenerateRouter(r chi.Router, handler *GenerateHandler, auth *AuthHandler) {
	r.Post("/ingredients", handler.ExtractIngredients)
	r.Post("/recipe", handler.GenerateRecipe)
	r.Post("/image", handler.GenerateImage)
	r.With(auth.OptionalUser).Post("/compose", handler.Compose)
}

func (h *GenerateHandler) ExtractIngredients(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadMemory)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	upload, err := uploadFromForm(r.MultipartForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.generator.ExtractIngredients(r.Context(), upload)
	if err != nil {
		writeServiceError(w, h.log, err, "ingredients")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *GenerateHandler) GenerateRecipe(w http.ResponseWriter, r *http.Request) {
	var req GenerateRecipeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	draft, err := h.generator.GenerateRecipe(r.Context(), req.Ingredients)
	if err != nil {
		writeServiceError(w, h.log, err, "recipe")
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (h *GenerateHandler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req GenerateImageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ref, err := h.generator.GenerateImage(r.Context(), req.Title, req.Ingredients)
	if err != nil {
		writeServiceError(w, h.log, err, "image")
		return
	}
	writeJSON(w, http.StatusOK, GenerateImageResponse{
		Title:       req.Title,
		Ingredients: req.Ingredients,
		ImageURL:    ref,
	})
}

func (h *GenerateHandler) Compose(w http.ResponseWriter, r *http.Request) {
	var req ComposeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ownerID := currentUserID(r.Context())
	if req.Save && ownerID == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := h.generator.Compose(r.Context(), req.Ingredients, req.Tags, req.Save, ownerID)
	if err != nil {
		writeServiceError(w, h.log, err, "recipe")
		return
	}

	status := http.StatusOK
	if result.Recipe != nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

type GenerateRecipeRequest struct {
	Ingredients []string `json:"ingredients" validate:"required,min=1,dive,max=255"`
}

type GenerateImageRequest struct {
	Title       string   `json:"title" validate:"required,max=255"`
	Ingredients []string `json:"ingredients" validate:"dive,max=255"`
}

type GenerateImageResponse struct {
	Title       string   `json:"title"`
	Ingredients []string `json:"ingredients"`
	ImageURL    string   `json:"image_url"`
}

type ComposeRequest struct {
	Ingredients []string `json:"ingredients" validate:"required,min=1,dive,max=255"`
	Tags        []string `json:"tags" validate:"dive,max=255"`
	Save        bool     `json:"save"`
}

func uploadFromForm(form *multipart.Form) (services.Upload, error) {
	if form == nil {
		return services.Upload{}, errors.New("missing form data")
	}

	files := form.File[formFieldImage]
	if len(files) == 0 {
		files = form.File[formFieldFileAlt]
	}
	if len(files) == 0 {
		return services.Upload{}, errors.New("image file is required")
	}
	if len(files) > 1 {
		return services.Upload{}, errors.New("only one image file is allowed")
	}

	header := files[0]
	file, err := header.Open()
	if err != nil {
		return services.Upload{}, fmt.Errorf("failed to read image: %w", err)
	}
	data, err := readFileLimited(file, maxUploadBytes)
	_ = file.Close()
	if err != nil {
		return services.Upload{}, err
	}

	return services.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
