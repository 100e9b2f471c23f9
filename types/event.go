package types

import "time"

// RecipeEventType names a recipe lifecycle change.
type RecipeEventType string

const (
	RecipeCreated   RecipeEventType = "recipe.created"
	RecipeUpdated   RecipeEventType = "recipe.updated"
	RecipeDeleted   RecipeEventType = "recipe.deleted"
	RecipeFavorited RecipeEventType = "recipe.favorited"
)

// RecipeEvent is published after a recipe write commits.
type RecipeEvent struct {
	// ID uniquely identifies the event for consumers that deduplicate.
	ID string `json:"id"`

	Type     RecipeEventType `json:"type"`
	RecipeID int             `json:"recipe_id"`

	// UserID is the owner of the recipe, when it has one.
	UserID *int `json:"user_id,omitempty"`

	// Title and Favorite describe the recipe after the change. They are
	// empty for deletions.
	Title    string `json:"title,omitempty"`
	Favorite bool   `json:"favorite"`

	OccurredAt time.Time `json:"occurred_at"`
}
