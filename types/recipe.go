package types

import "time"

// Recipe represents a saved dish: its title, free-text steps, an optional
// image, and the ingredients and tags linked to it.
type Recipe struct {
	// ID is the unique identifier of the recipe.
	ID int `json:"id" gorm:"primaryKey"`

	// Title is the human-readable name of the dish.
	Title string `json:"title" gorm:"not null"`

	// Steps holds the preparation instructions as free text.
	Steps string `json:"steps" gorm:"type:text;not null"`

	// ImageURL is an opaque reference to the recipe image. Depending on the
	// storage backend it is a public URL, a local static path or a data URL.
	ImageURL *string `json:"image_url,omitempty" gorm:"column:image_url;type:text"`

	// Favorite marks the recipe as a favorite of its owner.
	Favorite bool `json:"favorite" gorm:"not null;default:false"`

	// UserID references the owning user. Recipes created anonymously or
	// whose owner was deleted have no owner.
	UserID *int `json:"user_id,omitempty" gorm:"index"`

	// Owner is only declared so the schema carries the foreign key.
	Owner *User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL"`

	// Ingredients is the set of ingredients linked through recipeingredientlink.
	Ingredients []Ingredient `json:"ingredients" gorm:"many2many:recipeingredientlink"`

	// Tags is the set of tags linked through recipetag.
	Tags []Tag `json:"tags" gorm:"many2many:recipetag"`

	// CreatedAt is the timestamp at which the recipe was created.
	// It never changes afterwards.
	CreatedAt time.Time `json:"created_at" gorm:"not null"`

	// UpdatedAt is refreshed by every mutating write, including favorite
	// toggles and ingredient or tag replacement.
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Recipe) TableName() string { return "recipe" }

// Ingredient is a label shared between recipes. Names are unique and
// compared case-sensitively.
type Ingredient struct {
	ID   int    `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"size:255;not null;uniqueIndex"`
}

func (Ingredient) TableName() string { return "ingredient" }

// Tag is a label attached to recipes, optionally created by a user.
type Tag struct {
	ID     int    `json:"id" gorm:"primaryKey"`
	Name   string `json:"name" gorm:"size:255;not null;uniqueIndex"`
	UserID *int   `json:"user_id,omitempty" gorm:"index"`
	Owner  *User  `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL"`
}

func (Tag) TableName() string { return "tag" }

// RecipeIngredientLink is one row of the recipe/ingredient join table.
// The existence of a row denotes membership.
type RecipeIngredientLink struct {
	RecipeID     int `gorm:"primaryKey"`
	IngredientID int `gorm:"primaryKey"`
}

func (RecipeIngredientLink) TableName() string { return "recipeingredientlink" }

// RecipeTag is one row of the recipe/tag join table.
type RecipeTag struct {
	RecipeID int `gorm:"primaryKey"`
	TagID    int `gorm:"primaryKey"`
}

func (RecipeTag) TableName() string { return "recipetag" }

// RecipeInput carries the writable fields of a recipe as submitted by a
// client. Ingredient and tag names are resolved to rows by the store.
type RecipeInput struct {
	Title       string
	Steps       string
	Favorite    bool
	ImageURL    *string
	Ingredients []string
	Tags        []string
}

// RecipeFilter narrows a recipe listing. A zero Limit means no limit.
type RecipeFilter struct {
	FavoriteOnly bool
	OwnerID      *int
	Offset       int
	Limit        int
}
