package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"visual-search-be/internal/dto"
	"visual-search-be/internal/pkg/logger"
	"visual-search-be/internal/pkg/serverutils"
	"visual-search-be/pkg/apperrors"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "controller-test-secret"

type searchServiceStub struct {
	owner uuid.UUID
	req   *dto.SearchRequest
}

func (s *searchServiceStub) Search(ctx context.Context, ownerId uuid.UUID, req *dto.SearchRequest) (*dto.SearchResponse, error) {
	s.owner = ownerId
	s.req = req
	return &dto.SearchResponse{
		Results:      []dto.SearchResult{{ItemId: uuid.New(), Score: 0.03, Category: "furniture"}},
		TotalResults: 1,
		ToolsUsed:    []dto.ToolUsage{{Tool: "keyword", Detail: "returned 1 candidates"}},
	}, nil
}

type itemServiceStub struct {
	upload *dto.UploadItemRequest
	err    error
}

func (s *itemServiceStub) Upload(ctx context.Context, ownerId uuid.UUID, req *dto.UploadItemRequest) (*dto.UploadItemResponse, error) {
	s.upload = req
	if s.err != nil {
		return nil, s.err
	}
	return &dto.UploadItemResponse{Id: uuid.New(), ContentType: "image/png"}, nil
}

func (s *itemServiceStub) List(ctx context.Context, ownerId uuid.UUID, req *dto.ListItemsRequest) (*dto.ListItemsResponse, error) {
	return &dto.ListItemsResponse{Items: []dto.ItemSummary{}, Limit: req.Limit}, nil
}

func (s *itemServiceStub) Show(ctx context.Context, ownerId uuid.UUID, id uuid.UUID) (*dto.ShowItemResponse, error) {
	return nil, apperrors.ErrNotFound
}

func (s *itemServiceStub) Delete(ctx context.Context, ownerId uuid.UUID, id uuid.UUID) error {
	return nil
}

func (s *itemServiceStub) Reanalyze(ctx context.Context, ownerId uuid.UUID, id uuid.UUID, req *dto.ReanalyzeRequest) (*dto.ReanalyzeResponse, error) {
	return &dto.ReanalyzeResponse{Id: id, Provider: req.Provider, Model: req.Model}, nil
}

func newApp(t *testing.T, search *searchServiceStub, items *itemServiceStub) *fiber.App {
	t.Helper()
	t.Setenv("JWT_SECRET", testSecret)
	app := fiber.New(fiber.Config{ErrorHandler: serverutils.ErrorHandler(logger.NewNopLogger())})
	api := app.Group("/api")
	NewSearchController(search).RegisterRoutes(api)
	NewItemController(items).RegisterRoutes(api)
	return app
}

func bearer(t *testing.T, owner uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": owner.String()})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestSearch_ReturnsRawPayload(t *testing.T) {
	search := &searchServiceStub{}
	app := newApp(t, search, &itemServiceStub{})
	owner := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/api/search/v1",
		bytes.NewBufferString(`{"query":"modern furniture","top_k":5,"mode":"hybrid","include_answer":true}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, owner))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	assert.NotContains(t, body, "success")
	assert.EqualValues(t, 1, body["total_results"])
	assert.Len(t, body["results"], 1)
	assert.Equal(t, owner, search.owner)
	assert.Equal(t, 5, search.req.TopK)
	assert.True(t, search.req.IncludeAnswer)
}

func TestSearch_RequiresTokenAndQuery(t *testing.T) {
	app := newApp(t, &searchServiceStub{}, &itemServiceStub{})

	req := httptest.NewRequest(http.MethodPost, "/api/search/v1", bytes.NewBufferString(`{"query":"lamp"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/api/search/v1", bytes.NewBufferString(`{"top_k":3}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, uuid.New()))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, decode(t, resp)["success"])
}

func TestItemUpload_ReadsMultipartFile(t *testing.T) {
	items := &itemServiceStub{}
	app := newApp(t, &searchServiceStub{}, items)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "chair.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/item/v1", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", bearer(t, uuid.New()))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NotNil(t, items.upload)
	assert.Equal(t, "chair.png", items.upload.Filename)
	assert.Equal(t, []byte("\x89PNG fake"), items.upload.Data)
}

func TestItemUpload_MissingFileIsBadRequest(t *testing.T) {
	items := &itemServiceStub{}
	app := newApp(t, &searchServiceStub{}, items)

	req := httptest.NewRequest(http.MethodPost, "/api/item/v1", bytes.NewBufferString(""))
	req.Header.Set("Authorization", bearer(t, uuid.New()))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Nil(t, items.upload)
}

func TestItemUpload_ServiceInputErrorIsBadRequest(t *testing.T) {
	items := &itemServiceStub{err: apperrors.Input(apperrors.ErrUnsupportedImage)}
	app := newApp(t, &searchServiceStub{}, items)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, _ = part.Write([]byte("plain text"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/item/v1", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", bearer(t, uuid.New()))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestItemShow_NotFoundAndBadID(t *testing.T) {
	app := newApp(t, &searchServiceStub{}, &itemServiceStub{})
	auth := bearer(t, uuid.New())

	req := httptest.NewRequest(http.MethodGet, "/api/item/v1/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", auth)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/api/item/v1/not-a-uuid", nil)
	req.Header.Set("Authorization", auth)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestItemReanalyze_PassesOverride(t *testing.T) {
	app := newApp(t, &searchServiceStub{}, &itemServiceStub{})
	id := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/api/item/v1/"+id.String()+"/reanalyze",
		bytes.NewBufferString(`{"provider":"anthropic","model":"claude-3-5-sonnet-latest"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, uuid.New()))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	data := decode(t, resp)["data"].(map[string]interface{})
	assert.Equal(t, "anthropic", data["provider"])

	req = httptest.NewRequest(http.MethodPost, "/api/item/v1/"+id.String()+"/reanalyze",
		bytes.NewBufferString(`{"provider":"gemini"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, uuid.New()))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
