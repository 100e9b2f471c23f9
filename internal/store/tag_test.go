package store_test

import (
	"context"
	"testing"

	"github.com/recipesnap/apiserver/internal/store"
	"github.com/recipesnap/apiserver/internal/testutil"
	"github.com/recipesnap/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagRepositoryFindOrCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	repo := store.NewTagRepository(gdb)

	first, err := repo.FindOrCreate(ctx, "dinner", nil)
	require.NoError(t, err)
	second, err := repo.FindOrCreate(ctx, "dinner", nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.EqualValues(t, 1, testutil.CountRows(t, gdb, "tag"))
}

func TestTagRepositoryListByOwner(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	repo := store.NewTagRepository(gdb)

	user, err := store.NewUserRepository(gdb).Create(ctx, types.User{Username: "u", Email: "u@x.com", PasswordHash: "h"})
	require.NoError(t, err)

	_, err = repo.FindOrCreate(ctx, "shared", nil)
	require.NoError(t, err)
	mine, err := repo.FindOrCreate(ctx, "mine", &user.ID)
	require.NoError(t, err)

	all, err := repo.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	owned, err := repo.List(ctx, &user.ID)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, mine.ID, owned[0].ID)
}

func TestTagRepositoryDeleteDetachesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	tags := store.NewTagRepository(gdb)
	recipes := store.NewRecipeRepository(gdb, store.TagPolicyExisting)

	tag, err := tags.FindOrCreate(ctx, "weeknight", nil)
	require.NoError(t, err)
	recipe, err := recipes.Create(ctx, types.RecipeInput{Title: "Pasta", Steps: "boil", Tags: []string{"weeknight"}}, nil)
	require.NoError(t, err)
	require.Len(t, recipe.Tags, 1)

	require.NoError(t, tags.Delete(ctx, tag.ID))
	require.NoError(t, tags.Delete(ctx, tag.ID))
	require.NoError(t, tags.Delete(ctx, 4242))

	reloaded, err := recipes.Get(ctx, recipe.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Tags)
	assert.False(t, reloaded.UpdatedAt.Before(recipe.UpdatedAt))
	assert.EqualValues(t, 0, testutil.CountRows(t, gdb, "recipetag"))
}
