package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/recipesnap/apiserver/types"
	"github.com/sirupsen/logrus"
)

// RecipeRepository defines persistence operations for recipes.
type RecipeRepository interface {
	List(ctx context.Context, filter types.RecipeFilter) ([]types.Recipe, int, error)
	Get(ctx context.Context, id int) (types.Recipe, error)
	Create(ctx context.Context, input types.RecipeInput, ownerID *int) (types.Recipe, error)
	Update(ctx context.Context, id int, input types.RecipeInput, actorID *int) (types.Recipe, error)
	Delete(ctx context.Context, id int) error
	ToggleFavorite(ctx context.Context, id int) (types.Recipe, error)
}

// EventPublisher receives recipe events after their write committed.
type EventPublisher interface {
	PublishRecipeEvent(ctx context.Context, event types.RecipeEvent) error
}

// RecipeService encapsulates recipe use-cases.
type RecipeService struct {
	repo   RecipeRepository
	events EventPublisher
	log    logrus.FieldLogger
}

// NewRecipeService wires the service. events may be nil.
func NewRecipeService(repo RecipeRepository, events EventPublisher, log logrus.FieldLogger) *RecipeService {
	return &RecipeService{repo: repo, events: events, log: log}
}

func (s *RecipeService) CreateRecipe(ctx context.Context, input types.RecipeInput, ownerID *int) (types.Recipe, error) {
	input, err := normalizeRecipeInput(input)
	if err != nil {
		return types.Recipe{}, err
	}

	recipe, err := s.repo.Create(ctx, input, ownerID)
	if err != nil {
		return types.Recipe{}, err
	}

	s.log.WithFields(logrus.Fields{
		"recipe_id":   recipe.ID,
		"ingredients": len(recipe.Ingredients),
	}).Infof("recipe %q created", recipe.Title)
	s.publish(ctx, types.RecipeCreated, recipe)
	return recipe, nil
}

func (s *RecipeService) ListRecipes(ctx context.Context, filter types.RecipeFilter) ([]types.Recipe, int, error) {
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Limit < 0 {
		filter.Limit = 0
	}
	return s.repo.List(ctx, filter)
}

func (s *RecipeService) GetRecipe(ctx context.Context, id int) (types.Recipe, error) {
	return s.repo.Get(ctx, id)
}

// UpdateRecipe fully replaces the editable fields and both link sets.
func (s *RecipeService) UpdateRecipe(ctx context.Context, id int, input types.RecipeInput, actorID *int) (types.Recipe, error) {
	input, err := normalizeRecipeInput(input)
	if err != nil {
		return types.Recipe{}, err
	}

	recipe, err := s.repo.Update(ctx, id, input, actorID)
	if err != nil {
		return types.Recipe{}, err
	}

	s.log.WithField("recipe_id", recipe.ID).Info("recipe updated")
	s.publish(ctx, types.RecipeUpdated, recipe)
	return recipe, nil
}

func (s *RecipeService) DeleteRecipe(ctx context.Context, id int) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.log.WithField("recipe_id", id).Info("recipe deleted")
	s.publish(ctx, types.RecipeDeleted, types.Recipe{ID: id})
	return nil
}

func (s *RecipeService) ToggleFavorite(ctx context.Context, id int) (types.Recipe, error) {
	recipe, err := s.repo.ToggleFavorite(ctx, id)
	if err != nil {
		return types.Recipe{}, err
	}

	s.log.WithFields(logrus.Fields{"recipe_id": id, "favorite": recipe.Favorite}).Info("recipe favorite toggled")
	s.publish(ctx, types.RecipeFavorited, recipe)
	return recipe, nil
}

// publish never fails the caller: the write already committed.
func (s *RecipeService) publish(ctx context.Context, kind types.RecipeEventType, recipe types.Recipe) {
	if s.events == nil {
		return
	}
	event := types.RecipeEvent{
		ID:         uuid.NewString(),
		Type:       kind,
		RecipeID:   recipe.ID,
		UserID:     recipe.UserID,
		Title:      recipe.Title,
		Favorite:   recipe.Favorite,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.events.PublishRecipeEvent(ctx, event); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"recipe_id": recipe.ID,
			"type":      kind,
		}).Warn("failed to publish recipe event")
	}
}

func normalizeRecipeInput(input types.RecipeInput) (types.RecipeInput, error) {
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return input, invalid("title", "is required")
	}
	input.Steps = strings.TrimSpace(input.Steps)
	if input.Steps == "" {
		return input, invalid("steps", "is required")
	}
	if input.ImageURL != nil {
		trimmed := strings.TrimSpace(*input.ImageURL)
		if trimmed == "" {
			input.ImageURL = nil
		} else {
			input.ImageURL = &trimmed
		}
	}
	return input, nil
}
