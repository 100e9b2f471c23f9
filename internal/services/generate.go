package services

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/recipesnap/apiserver/internal/ai"
	"github.com/recipesnap/apiserver/internal/store"
	"github.com/recipesnap/apiserver/types"
	"github.com/sirupsen/logrus"
)

// IngredientExtractor detects ingredients in a photo.
type IngredientExtractor interface {
	ExtractIngredients(ctx context.Context, image []byte, contentType string) ([]string, error)
}

// RecipeWriter drafts recipe text for a list of ingredients.
type RecipeWriter interface {
	WriteRecipe(ctx context.Context, ingredients []string) (string, error)
}

// ImageGenerator renders a photo of the finished dish.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, title string, ingredients []string) ([]byte, error)
}

// ImageStore persists image bytes and returns a reference clients can load.
type ImageStore interface {
	SaveImage(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Persistent() bool
}

var allowedUploadExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Upload is a user-supplied food photo.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Extraction is the result of analysing an upload. UploadURL is empty when
// uploads are not persisted.
type Extraction struct {
	Ingredients []string `json:"ingredients"`
	UploadURL   string   `json:"upload_url,omitempty"`
}

// Draft is generated recipe text with its parsed title.
type Draft struct {
	Title       string   `json:"title"`
	Text        string   `json:"text"`
	Ingredients []string `json:"ingredients"`
}

// Composition is a draft plus its image and, when saved, the stored recipe.
type Composition struct {
	Draft
	ImageURL string        `json:"image_url"`
	Recipe   *types.Recipe `json:"recipe,omitempty"`
}

// GenerationService orchestrates the AI adapters. It never holds a database
// transaction while a provider call is running.
type GenerationService struct {
	extractor IngredientExtractor
	writer    RecipeWriter
	images    ImageGenerator
	store     ImageStore
	recipes   *RecipeService
	now       func() time.Time
	log       logrus.FieldLogger
}

func NewGenerationService(
	extractor IngredientExtractor,
	writer RecipeWriter,
	images ImageGenerator,
	imageStore ImageStore,
	recipes *RecipeService,
	log logrus.FieldLogger,
) *GenerationService {
	return &GenerationService{
		extractor: extractor,
		writer:    writer,
		images:    images,
		store:     imageStore,
		recipes:   recipes,
		now:       time.Now,
		log:       log,
	}
}

// ExtractIngredients validates the upload, optionally keeps a copy, and asks
// the vision adapter for ingredient names.
func (s *GenerationService) ExtractIngredients(ctx context.Context, upload Upload) (Extraction, error) {
	ext := strings.ToLower(filepath.Ext(upload.Filename))
	defaultType, ok := allowedUploadExts[ext]
	if !ok {
		return Extraction{}, invalid("image", "must be a .jpg, .jpeg or .png file")
	}
	if len(upload.Data) == 0 {
		return Extraction{}, invalid("image", "is empty")
	}
	contentType := upload.ContentType
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(upload.Data)
		if !strings.HasPrefix(contentType, "image/") {
			contentType = defaultType
		}
	}

	var result Extraction
	if s.store.Persistent() {
		key := fmt.Sprintf("uploads/%d_%s", s.now().Unix(), sanitizeFilename(upload.Filename))
		url, err := s.store.SaveImage(ctx, key, upload.Data, contentType)
		if err != nil {
			return Extraction{}, fmt.Errorf("store upload: %w", err)
		}
		result.UploadURL = url
	}

	names, err := s.extractor.ExtractIngredients(ctx, upload.Data, contentType)
	if err != nil {
		return Extraction{}, err
	}
	result.Ingredients = store.NormalizeNames(names)

	s.log.WithFields(logrus.Fields{
		"filename":    upload.Filename,
		"ingredients": len(result.Ingredients),
	}).Info("ingredients extracted")
	return result, nil
}

// GenerateRecipe drafts a recipe for the given ingredients.
func (s *GenerationService) GenerateRecipe(ctx context.Context, ingredients []string) (Draft, error) {
	ingredients = store.NormalizeNames(ingredients)
	if len(ingredients) == 0 {
		return Draft{}, invalid("ingredients", "at least one ingredient is required")
	}

	text, err := s.writer.WriteRecipe(ctx, ingredients)
	if err != nil {
		return Draft{}, err
	}
	return Draft{Title: ai.ParseTitle(text), Text: text, Ingredients: ingredients}, nil
}

// GenerateImage renders and stores a dish photo, returning its reference.
func (s *GenerationService) GenerateImage(ctx context.Context, title string, ingredients []string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid("title", "is required")
	}
	ingredients = store.NormalizeNames(ingredients)

	data, err := s.images.GenerateImage(ctx, title, ingredients)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("generated/%s_%s.png", slugify(title), uuid.NewString())
	ref, err := s.store.SaveImage(ctx, key, data, "image/png")
	if err != nil {
		return "", fmt.Errorf("store generated image: %w", err)
	}
	return ref, nil
}

// Compose drafts a recipe and its image. With save set, the result is stored
// as a recipe once every provider call has returned.
func (s *GenerationService) Compose(ctx context.Context, ingredients, tags []string, save bool, ownerID *int) (Composition, error) {
	draft, err := s.GenerateRecipe(ctx, ingredients)
	if err != nil {
		return Composition{}, err
	}

	imageURL, err := s.GenerateImage(ctx, draft.Title, draft.Ingredients)
	if err != nil {
		return Composition{}, err
	}

	result := Composition{Draft: draft, ImageURL: imageURL}
	if !save {
		return result, nil
	}

	recipe, err := s.recipes.CreateRecipe(ctx, types.RecipeInput{
		Title:       draft.Title,
		Steps:       draft.Text,
		ImageURL:    &imageURL,
		Ingredients: draft.Ingredients,
		Tags:        tags,
	}, ownerID)
	if err != nil {
		return Composition{}, err
	}
	result.Recipe = &recipe
	return result, nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "upload"
	}
	return name
}

func slugify(title string) string {
	slug := strings.ToLower(unsafeNameChars.ReplaceAllString(title, "-"))
	slug = strings.Trim(strings.ReplaceAll(slug, ".", "-"), "-_")
	if slug == "" {
		return "dish"
	}
	if len(slug) > 48 {
		slug = slug[:48]
	}
	return slug
}
