package store

import (
	"context"

	"github.com/recipesnap/apiserver/types"
	"gorm.io/gorm"
)

// IngredientRepository exposes the shared ingredient catalogue.
type IngredientRepository struct {
	db *gorm.DB
}

func NewIngredientRepository(db *gorm.DB) *IngredientRepository {
	return &IngredientRepository{db: db}
}

func (r *IngredientRepository) List(ctx context.Context) ([]types.Ingredient, error) {
	ingredients := make([]types.Ingredient, 0)
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&ingredients).Error; err != nil {
		return nil, err
	}
	return ingredients, nil
}
