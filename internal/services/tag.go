package services

import (
	"context"
	"strings"

	"github.com/recipesnap/apiserver/types"
	"github.com/sirupsen/logrus"
)

// TagRepository defines persistence operations for tags.
type TagRepository interface {
	List(ctx context.Context, ownerID *int) ([]types.Tag, error)
	FindOrCreate(ctx context.Context, name string, ownerID *int) (types.Tag, error)
	Delete(ctx context.Context, id int) error
}

// TagService encapsulates tag use-cases.
type TagService struct {
	repo TagRepository
	log  logrus.FieldLogger
}

func NewTagService(repo TagRepository, log logrus.FieldLogger) *TagService {
	return &TagService{repo: repo, log: log}
}

// CreateTag returns the tag with the given name, creating it when needed.
func (s *TagService) CreateTag(ctx context.Context, name string, ownerID *int) (types.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Tag{}, invalid("name", "is required")
	}
	tag, err := s.repo.FindOrCreate(ctx, name, ownerID)
	if err != nil {
		return types.Tag{}, err
	}
	s.log.WithField("tag_id", tag.ID).Infof("tag %q ready", tag.Name)
	return tag, nil
}

// DeleteTag is idempotent: deleting an unknown id is not an error.
func (s *TagService) DeleteTag(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}

func (s *TagService) ListTags(ctx context.Context, ownerID *int) ([]types.Tag, error) {
	return s.repo.List(ctx, ownerID)
}

// IngredientRepository defines read access to the ingredient catalogue.
type IngredientRepository interface {
	List(ctx context.Context) ([]types.Ingredient, error)
}

// IngredientService exposes the shared ingredient catalogue.
type IngredientService struct {
	repo IngredientRepository
}

func NewIngredientService(repo IngredientRepository) *IngredientService {
	return &IngredientService{repo: repo}
}

func (s *IngredientService) ListIngredients(ctx context.Context) ([]types.Ingredient, error) {
	return s.repo.List(ctx)
}
