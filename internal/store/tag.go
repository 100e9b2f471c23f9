package store

import (
	"context"
	"time"

	"github.com/recipesnap/apiserver/types"
	"gorm.io/gorm"
)

// TagRepository handles persistence for tags.
type TagRepository struct {
	db *gorm.DB
}

func NewTagRepository(db *gorm.DB) *TagRepository {
	return &TagRepository{db: db}
}

func (r *TagRepository) List(ctx context.Context, ownerID *int) ([]types.Tag, error) {
	query := r.db.WithContext(ctx).Order("id ASC")
	if ownerID != nil {
		query = query.Where("user_id = ?", *ownerID)
	}
	tags := make([]types.Tag, 0)
	if err := query.Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// FindOrCreate returns the tag with the given name, creating it when absent.
func (r *TagRepository) FindOrCreate(ctx context.Context, name string, ownerID *int) (types.Tag, error) {
	var tag types.Tag
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		tag, err = findOrCreateByName(tx, name, func() types.Tag {
			return types.Tag{Name: name, UserID: ownerID}
		})
		return err
	})
	return tag, err
}

// Delete removes the tag and detaches it from every recipe. Deleting a tag
// that does not exist succeeds.
func (r *TagRepository) Delete(ctx context.Context, id int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tagged := tx.Model(&types.RecipeTag{}).Select("recipe_id").Where("tag_id = ?", id)
		if err := tx.Model(&types.Recipe{}).
			Where("id IN (?)", tagged).
			Update("updated_at", time.Now().UTC()).Error; err != nil {
			return err
		}
		if err := tx.Where("tag_id = ?", id).Delete(&types.RecipeTag{}).Error; err != nil {
			return err
		}
		return tx.Delete(&types.Tag{}, id).Error
	})
}
