package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/recipesnap/apiserver/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TagPolicy decides what happens to unknown tag names submitted with a recipe.
type TagPolicy string

const (
	// TagPolicyExisting attaches only tags that already exist and drops the rest.
	TagPolicyExisting TagPolicy = "existing"
	// TagPolicyCreate find-or-creates tags the same way ingredients are resolved.
	TagPolicyCreate TagPolicy = "create"
)

func ParseTagPolicy(raw string) (TagPolicy, error) {
	switch TagPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", TagPolicyExisting:
		return TagPolicyExisting, nil
	case TagPolicyCreate:
		return TagPolicyCreate, nil
	default:
		return "", fmt.Errorf("unknown tag attach policy %q", raw)
	}
}

// NormalizeNames trims every name, drops empty ones and removes repeats,
// keeping the first occurrence order. Comparison is case-sensitive.
func NormalizeNames(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func resolveIngredients(tx *gorm.DB, names []string) ([]types.Ingredient, error) {
	names = NormalizeNames(names)
	ingredients := make([]types.Ingredient, 0, len(names))
	for _, name := range names {
		ingredient, err := findOrCreateByName(tx, name, func() types.Ingredient {
			return types.Ingredient{Name: name}
		})
		if err != nil {
			return nil, fmt.Errorf("resolve ingredient %q: %w", name, err)
		}
		ingredients = append(ingredients, ingredient)
	}
	return ingredients, nil
}

func resolveTags(tx *gorm.DB, names []string, policy TagPolicy, ownerID *int) ([]types.Tag, error) {
	names = NormalizeNames(names)
	if len(names) == 0 {
		return nil, nil
	}

	if policy != TagPolicyCreate {
		var tags []types.Tag
		if err := tx.Where("name IN ?", names).Order("id").Find(&tags).Error; err != nil {
			return nil, err
		}
		return tags, nil
	}

	tags := make([]types.Tag, 0, len(names))
	for _, name := range names {
		tag, err := findOrCreateByName(tx, name, func() types.Tag {
			return types.Tag{Name: name, UserID: ownerID}
		})
		if err != nil {
			return nil, fmt.Errorf("resolve tag %q: %w", name, err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// findOrCreateByName looks a row up by its unique name and inserts it when
// missing.
func findOrCreateByName[T any](tx *gorm.DB, name string, build func() T) (T, error) {
	var row T
	err := tx.Where("name = ?", name).Take(&row).Error
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return row, err
	}
	return insertOrFetchByName(tx, name, build)
}

// insertOrFetchByName inserts build() unless a row with the same name
// exists. An insert that loses a race against another transaction inserts
// nothing, and the winner's row is fetched instead.
func insertOrFetchByName[T any](tx *gorm.DB, name string, build func() T) (T, error) {
	row := build()
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil && !isUniqueViolation(res.Error) {
		return row, res.Error
	}
	if res.Error == nil && res.RowsAffected > 0 {
		return row, nil
	}

	var existing T
	if err := tx.Where("name = ?", name).Take(&existing).Error; err != nil {
		return existing, err
	}
	return existing, nil
}
