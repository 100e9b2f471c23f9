package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/recipesnap/apiserver/config"
	"github.com/recipesnap/apiserver/internal/ai"
	"github.com/recipesnap/apiserver/internal/handlers"
	"github.com/recipesnap/apiserver/internal/logging"
	"github.com/recipesnap/apiserver/internal/services"
	"github.com/recipesnap/apiserver/internal/storage"
	"github.com/recipesnap/apiserver/internal/store"
	"github.com/recipesnap/apiserver/internal/testutil"
	"github.com/recipesnap/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAI struct {
	ingredients []string
	recipeText  string
	err         error
}

func (s *stubAI) ExtractIngredients(context.Context, []byte, string) ([]string, error) {
	return s.ingredients, s.err
}

func (s *stubAI) WriteRecipe(context.Context, []string) (string, error) {
	return s.recipeText, s.err
}

func (s *stubAI) GenerateImage(context.Context, string, []string) ([]byte, error) {
	return []byte("png"), s.err
}

type testAPI struct {
	t      *testing.T
	router http.Handler
	ai     *stubAI
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gdb := testutil.NewDB(t)
	log := logging.Discard()

	authSvc, err := services.NewAuthService(store.NewUserRepository(gdb), "test-secret", time.Hour, log)
	require.NoError(t, err)
	recipes := services.NewRecipeService(store.NewRecipeRepository(gdb, store.TagPolicyExisting), nil, log)
	tags := services.NewTagService(store.NewTagRepository(gdb), log)
	ingredients := services.NewIngredientService(store.NewIngredientRepository(gdb))
	provider := &stubAI{ingredients: []string{"トマト", "玉ねぎ"}, recipeText: "料理名: Tomato Soup\n手順: simmer"}
	generator := services.NewGenerationService(provider, provider, provider, storage.NewImageStore(nil, log), recipes, log)

	auth := handlers.NewAuthHandler(authSvc, config.AuthConfig{CookieName: "recipe_session"}, log)
	catalogue := handlers.NewCatalogueHandler(tags, ingredients, log)

	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) { handlers.AuthRouter(r, auth) })
	r.Route("/recipes", func(r chi.Router) { handlers.RecipeRouter(r, handlers.NewRecipeHandler(recipes, log), auth) })
	r.Route("/tags", func(r chi.Router) { handlers.TagRouter(r, catalogue, auth) })
	r.Route("/ingredients", func(r chi.Router) { handlers.IngredientRouter(r, catalogue) })
	r.Route("/generate", func(r chi.Router) { handlers.GenerateRouter(r, handlers.NewGenerateHandler(generator, log), auth) })

	return &testAPI{t: t, router: r, ai: provider}
}

func (a *testAPI) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) signup(username string) string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/auth/signup", map[string]string{
		"username": username, "email": username + "@example.com", "password": "pw1",
	}, "")
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp handlers.AuthResponse
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestSignupLoginMe(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/auth/signup", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "pw1",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	signup := decode[handlers.AuthResponse](t, rec)
	assert.NotEmpty(t, signup.Token)
	assert.Equal(t, "alice", signup.User.Username)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = api.do(http.MethodPost, "/auth/login", map[string]string{"username": "alice", "password": "pw1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[handlers.AuthResponse](t, rec)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "recipe_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	rec = api.do(http.MethodGet, "/auth/me", nil, login.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[types.User](t, rec)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, "a@x.com", me.Email)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(cookies[0])
	cookieRec := httptest.NewRecorder()
	api.router.ServeHTTP(cookieRec, req)
	assert.Equal(t, http.StatusOK, cookieRec.Code)

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/auth/me", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/auth/me", nil, "garbage").Code)
}

func TestSignupErrors(t *testing.T) {
	api := newTestAPI(t)
	api.signup("alice")

	rec := api.do(http.MethodPost, "/auth/signup", map[string]string{
		"username": "alice", "email": "other@example.com", "password": "pw",
	}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodPost, "/auth/signup", map[string]string{
		"username": "bob", "email": "not-an-email", "password": "pw",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/auth/signup", map[string]string{
		"username": "carol", "email": "carol@example.com", "password": strings.Repeat("p", 73),
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "password")

	rec = api.do(http.MethodPost, "/auth/login", map[string]string{"username": "alice", "password": "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutClearsCookie(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/auth/logout", nil, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "", cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestRecipeCRUD(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup("alice")

	body := map[string]any{
		"title":       "Tomato Soup",
		"steps":       "Simmer.",
		"ingredients": []string{"tomato", "onion"},
	}
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodPost, "/recipes/", body, "").Code)

	rec := api.do(http.MethodPost, "/recipes/", body, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[types.Recipe](t, rec)
	assert.Len(t, created.Ingredients, 2)
	require.NotNil(t, created.UserID)

	path := "/recipes/" + strconv.Itoa(created.ID)
	rec = api.do(http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Tomato Soup", decode[types.Recipe](t, rec).Title)

	rec = api.do(http.MethodPut, path, map[string]any{
		"title": "Onion Soup", "steps": "Caramelize.", "ingredients": []string{"onion"},
	}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[types.Recipe](t, rec)
	assert.Equal(t, "Onion Soup", updated.Title)
	assert.Len(t, updated.Ingredients, 1)

	rec = api.do(http.MethodPost, path+"/favorite", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[types.Recipe](t, rec).Favorite)

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, path, nil, token).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, path, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodDelete, path, nil, token).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/recipes/abc", nil, "").Code)
}

func TestCreateRecipeValidation(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup("alice")

	rec := api.do(http.MethodPost, "/recipes/", map[string]any{"title": "", "steps": "x"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/recipes/", map[string]any{"title": "   ", "steps": "x"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "title")
}

func TestCreateRecipeFromForm(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup("alice")

	form := url.Values{
		"title":       {"Salad"},
		"steps":       {"Toss."},
		"ingredients": {"lettuce, tomato、cucumber"},
		"favorite":    {"on"},
	}
	req := httptest.NewRequest(http.MethodPost, "/recipes/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	recipe := decode[types.Recipe](t, rec)
	assert.Len(t, recipe.Ingredients, 3)
	assert.True(t, recipe.Favorite)
}

const defaultPageSize = 20

func TestListRecipes(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signup("alice")
	bob := api.signup("bob")

	for i, token := range []string{alice, alice, bob} {
		rec := api.do(http.MethodPost, "/recipes/", map[string]any{"title": "R" + strconv.Itoa(i), "steps": "s"}, token)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := api.do(http.MethodGet, "/recipes/?page=1&limit=2", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[handlers.RecipeListResponse](t, rec)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, "R0", page.Items[0].Title)

	for i := 3; i < defaultPageSize+2; i++ {
		rec := api.do(http.MethodPost, "/recipes/", map[string]any{"title": "R" + strconv.Itoa(i), "steps": "s"}, alice)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec = api.do(http.MethodGet, "/recipes/", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[handlers.RecipeListResponse](t, rec)
	assert.Equal(t, defaultPageSize+2, all.Total)
	assert.Len(t, all.Items, defaultPageSize+2)
	assert.Zero(t, all.Limit)

	rec = api.do(http.MethodGet, "/recipes/?page=1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[handlers.RecipeListResponse](t, rec).Items, defaultPageSize)

	rec = api.do(http.MethodGet, "/recipes/?mine=true", nil, bob)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[handlers.RecipeListResponse](t, rec).Total)

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/recipes/?mine=true", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/recipes/?limit=0", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/recipes/?favorite=maybe", nil, "").Code)
}

func TestTagsAndIngredients(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup("alice")

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodPost, "/tags/", map[string]string{"name": "quick"}, "").Code)

	rec := api.do(http.MethodPost, "/tags/", map[string]string{"name": "quick"}, token)
	require.Equal(t, http.StatusCreated, rec.Code)
	tag := decode[types.Tag](t, rec)

	rec = api.do(http.MethodPost, "/recipes/", map[string]any{
		"title": "Toast", "steps": "Toast.", "ingredients": []string{"bread"}, "tags": []string{"quick"},
	}, token)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, decode[types.Recipe](t, rec).Tags, 1)

	rec = api.do(http.MethodGet, "/tags/?mine=true", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]types.Tag](t, rec), 1)

	rec = api.do(http.MethodGet, "/ingredients/", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]types.Ingredient](t, rec), 1)

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/tags/"+strconv.Itoa(tag.ID), nil, token).Code)
	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/tags/"+strconv.Itoa(tag.ID), nil, token).Code)
}

func multipartUpload(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestGenerateIngredients(t *testing.T) {
	api := newTestAPI(t)

	body, contentType := multipartUpload(t, "image", "dinner.jpg", []byte{0xff, 0xd8, 0xff, 0xe0})
	req := httptest.NewRequest(http.MethodPost, "/generate/ingredients", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[services.Extraction](t, rec)
	assert.Equal(t, []string{"トマト", "玉ねぎ"}, result.Ingredients)

	body, contentType = multipartUpload(t, "image", "dinner.gif", []byte("GIF89a"))
	req = httptest.NewRequest(http.MethodPost, "/generate/ingredients", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateUpstreamFailureIsBadGateway(t *testing.T) {
	api := newTestAPI(t)
	api.ai.err = &ai.UpstreamError{Op: ai.OpRecipe, StatusCode: 500, Err: errors.New("boom")}

	rec := api.do(http.MethodPost, "/generate/recipe", map[string]any{"ingredients": []string{"卵"}}, "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGenerateRecipeAndImage(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/generate/recipe", map[string]any{"ingredients": []string{}}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/generate/recipe", map[string]any{"ingredients": []string{"tomato"}}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Tomato Soup", decode[services.Draft](t, rec).Title)

	rec = api.do(http.MethodPost, "/generate/image", map[string]any{"title": "Tomato Soup", "ingredients": []string{"tomato"}}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	img := decode[handlers.GenerateImageResponse](t, rec)
	assert.True(t, strings.HasPrefix(img.ImageURL, "data:image/png;base64,"))
}

func TestComposeSaveNeedsSession(t *testing.T) {
	api := newTestAPI(t)
	body := map[string]any{"ingredients": []string{"tomato", "onion"}, "save": true}

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodPost, "/generate/compose", body, "").Code)

	token := api.signup("alice")
	rec := api.do(http.MethodPost, "/generate/compose", body, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decode[services.Composition](t, rec)
	require.NotNil(t, result.Recipe)
	assert.Equal(t, "Tomato Soup", result.Recipe.Title)
	require.NotNil(t, result.Recipe.ImageURL)
	assert.Equal(t, result.ImageURL, *result.Recipe.ImageURL)

	rec = api.do(http.MethodPost, "/generate/compose", map[string]any{"ingredients": []string{"egg"}}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[services.Composition](t, rec).Recipe)
}
