package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ekoi/dataverse-archiver/internal/store"
	"github.com/ekoi/dataverse-archiver/pkg/models"
)

// --- mock key store ---

type mockKeyStore struct {
	created   *models.APIKey
	createErr error
	listed    []*models.APIKey
	revoked   []uuid.UUID
	revokeErr error
}

func (m *mockKeyStore) Ping(_ context.Context) error { return nil }
func (m *mockKeyStore) UpsertDatasetVersion(_ context.Context, _, _ string) (*models.DatasetVersion, error) {
	return nil, nil
}
func (m *mockKeyStore) GetDatasetVersion(_ context.Context, _, _ string) (*models.DatasetVersion, error) {
	return nil, store.ErrNotFound
}
func (m *mockKeyStore) RecordArchiveState(_ context.Context, _, _, _ string) error { return nil }
func (m *mockKeyStore) RecordArchived(_ context.Context, _, _, _, _, _ string) (bool, error) {
	return false, nil
}
func (m *mockKeyStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = key
	return nil
}
func (m *mockKeyStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (m *mockKeyStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (m *mockKeyStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error) {
	return m.listed, nil
}
func (m *mockKeyStore) RevokeAPIKey(_ context.Context, id uuid.UUID) error {
	if m.revokeErr != nil {
		return m.revokeErr
	}
	m.revoked = append(m.revoked, id)
	return nil
}

// --- create ---

func TestCreateKeyHandler_Success(t *testing.T) {
	ms := &mockKeyStore{}
	h := NewCreateKeyHandler(ms)

	b, _ := json.Marshal(map[string]any{"name": "ci-key", "scopes": []string{"archive", "admin"}})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/admin/keys", bytes.NewReader(b))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	data := parseData(t, rec)
	rawKey, _ := data["raw_key"].(string)
	if len(rawKey) < 8 {
		t.Fatalf("expected raw key in response, got %q", rawKey)
	}
	if data["key_prefix"] != rawKey[:8] {
		t.Errorf("prefix should be the first 8 chars of the raw key")
	}
	if _, hasHash := data["key_hash"]; hasHash {
		t.Error("key hash must never appear in a response")
	}

	// Stored hash verifies against the returned raw key.
	if ms.created == nil {
		t.Fatal("expected key to be stored")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(ms.created.KeyHash), []byte(rawKey)); err != nil {
		t.Errorf("stored hash does not match returned raw key: %v", err)
	}
	if ms.created.CreatedAt.IsZero() {
		t.Error("created_at should be set")
	}
}

func TestCreateKeyHandler_DefaultScope(t *testing.T) {
	ms := &mockKeyStore{}
	h := NewCreateKeyHandler(ms)

	b, _ := json.Marshal(map[string]any{"name": "plain"})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/admin/keys", bytes.NewReader(b))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if len(ms.created.Scopes) != 1 || ms.created.Scopes[0] != "archive" {
		t.Errorf("expected default archive scope, got %v", ms.created.Scopes)
	}
}

func TestCreateKeyHandler_MissingName(t *testing.T) {
	h := NewCreateKeyHandler(&mockKeyStore{})

	b, _ := json.Marshal(map[string]any{"scopes": []string{"archive"}})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/admin/keys", bytes.NewReader(b))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateKeyHandler_DuplicateName(t *testing.T) {
	h := NewCreateKeyHandler(&mockKeyStore{createErr: store.ErrDuplicateKey})

	b, _ := json.Marshal(map[string]any{"name": "dup"})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/admin/keys", bytes.NewReader(b))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if code := parseErr(t, rec); code != "DUPLICATE_KEY" {
		t.Errorf("unexpected error code: %s", code)
	}
}

// --- revoke ---

func revokeRequest(id string) *http.Request {
	r := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/keys/"+id, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("keyID", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestRevokeKeyHandler_Success(t *testing.T) {
	ms := &mockKeyStore{}
	h := NewRevokeKeyHandler(ms)

	id := uuid.New()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, revokeRequest(id.String()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(ms.revoked) != 1 || ms.revoked[0] != id {
		t.Errorf("expected revoke of %s, got %v", id, ms.revoked)
	}
}

func TestRevokeKeyHandler_InvalidID(t *testing.T) {
	h := NewRevokeKeyHandler(&mockKeyStore{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, revokeRequest("not-a-uuid"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRevokeKeyHandler_NotFound(t *testing.T) {
	h := NewRevokeKeyHandler(&mockKeyStore{revokeErr: store.ErrNotFound})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, revokeRequest(uuid.New().String()))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
