package store

import (
	"context"
	"time"

	"github.com/recipesnap/apiserver/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecipeRepository handles persistence for recipes and their link rows.
// Every write runs in one transaction bound to the caller's context.
type RecipeRepository struct {
	db        *gorm.DB
	tagPolicy TagPolicy
}

func NewRecipeRepository(db *gorm.DB, tagPolicy TagPolicy) *RecipeRepository {
	return &RecipeRepository{db: db, tagPolicy: tagPolicy}
}

func (r *RecipeRepository) List(ctx context.Context, filter types.RecipeFilter) ([]types.Recipe, int, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		if filter.FavoriteOnly {
			db = db.Where("favorite = ?", true)
		}
		if filter.OwnerID != nil {
			db = db.Where("user_id = ?", *filter.OwnerID)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&types.Recipe{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := withLinks(r.db.WithContext(ctx)).Scopes(scope).Order("id ASC")
	if filter.Limit > 0 {
		query = query.Offset(filter.Offset).Limit(filter.Limit)
	}

	recipes := make([]types.Recipe, 0)
	if err := query.Find(&recipes).Error; err != nil {
		return nil, 0, err
	}
	return recipes, int(total), nil
}

func (r *RecipeRepository) Get(ctx context.Context, id int) (types.Recipe, error) {
	return loadRecipe(r.db.WithContext(ctx), id)
}

// Create inserts the recipe, resolving ingredient names (find-or-create) and
// tag names (per the repository's tag policy) inside the same transaction.
func (r *RecipeRepository) Create(ctx context.Context, input types.RecipeInput, ownerID *int) (types.Recipe, error) {
	var created types.Recipe
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		recipe := types.Recipe{
			Title:     input.Title,
			Steps:     input.Steps,
			Favorite:  input.Favorite,
			ImageURL:  input.ImageURL,
			UserID:    ownerID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Omit(clause.Associations).Create(&recipe).Error; err != nil {
			return err
		}
		if err := r.replaceLinks(tx, recipe.ID, input, ownerID); err != nil {
			return err
		}

		var err error
		created, err = loadRecipe(tx, recipe.ID)
		return err
	})
	if err != nil {
		return types.Recipe{}, err
	}
	return created, nil
}

// Update overwrites title, steps and favorite and replaces both link sets.
// A nil ImageURL keeps the stored image. actorID owns any tags created.
func (r *RecipeRepository) Update(ctx context.Context, id int, input types.RecipeInput, actorID *int) (types.Recipe, error) {
	var updated types.Recipe
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]any{
			"title":      input.Title,
			"steps":      input.Steps,
			"favorite":   input.Favorite,
			"updated_at": time.Now().UTC(),
		}
		if input.ImageURL != nil {
			fields["image_url"] = *input.ImageURL
		}

		res := tx.Model(&types.Recipe{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		if err := r.replaceLinks(tx, id, input, actorID); err != nil {
			return err
		}

		var err error
		updated, err = loadRecipe(tx, id)
		return err
	})
	if err != nil {
		return types.Recipe{}, err
	}
	return updated, nil
}

// Delete removes the recipe and its link rows. Ingredient and tag rows stay.
func (r *RecipeRepository) Delete(ctx context.Context, id int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("recipe_id = ?", id).Delete(&types.RecipeIngredientLink{}).Error; err != nil {
			return err
		}
		if err := tx.Where("recipe_id = ?", id).Delete(&types.RecipeTag{}).Error; err != nil {
			return err
		}

		res := tx.Delete(&types.Recipe{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ToggleFavorite flips the favorite flag in a single statement.
func (r *RecipeRepository) ToggleFavorite(ctx context.Context, id int) (types.Recipe, error) {
	var toggled types.Recipe
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&types.Recipe{}).Where("id = ?", id).Updates(map[string]any{
			"favorite":   gorm.Expr("NOT favorite"),
			"updated_at": time.Now().UTC(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		var err error
		toggled, err = loadRecipe(tx, id)
		return err
	})
	if err != nil {
		return types.Recipe{}, err
	}
	return toggled, nil
}

func (r *RecipeRepository) replaceLinks(tx *gorm.DB, recipeID int, input types.RecipeInput, ownerID *int) error {
	ingredients, err := resolveIngredients(tx, input.Ingredients)
	if err != nil {
		return err
	}
	if err := tx.Where("recipe_id = ?", recipeID).Delete(&types.RecipeIngredientLink{}).Error; err != nil {
		return err
	}
	if len(ingredients) > 0 {
		links := make([]types.RecipeIngredientLink, 0, len(ingredients))
		for _, ingredient := range ingredients {
			links = append(links, types.RecipeIngredientLink{RecipeID: recipeID, IngredientID: ingredient.ID})
		}
		if err := tx.Create(&links).Error; err != nil {
			return err
		}
	}

	tags, err := resolveTags(tx, input.Tags, r.tagPolicy, ownerID)
	if err != nil {
		return err
	}
	if err := tx.Where("recipe_id = ?", recipeID).Delete(&types.RecipeTag{}).Error; err != nil {
		return err
	}
	if len(tags) > 0 {
		links := make([]types.RecipeTag, 0, len(tags))
		for _, tag := range tags {
			links = append(links, types.RecipeTag{RecipeID: recipeID, TagID: tag.ID})
		}
		if err := tx.Create(&links).Error; err != nil {
			return err
		}
	}
	return nil
}

func withLinks(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Ingredients", func(db *gorm.DB) *gorm.DB { return db.Order("ingredient.id") }).
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tag.id") })
}

func loadRecipe(db *gorm.DB, id int) (types.Recipe, error) {
	var recipe types.Recipe
	if err := withLinks(db).Take(&recipe, id).Error; err != nil {
		return types.Recipe{}, mapNotFound(err)
	}
	return recipe, nil
}
