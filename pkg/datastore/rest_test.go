package datastore_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/catalogkit/pkg/datastore"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) *datastore.RESTStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return datastore.NewRESTStore(datastore.RESTConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
	})
}

func TestRESTStore_Insert(t *testing.T) {
	t.Parallel()

	t.Run("posts row and decodes representation", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/subscriptions", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

			var row map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&row))
			row["id"] = "sub-1"

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode([]map[string]any{row})
		})

		row, err := store.Insert(context.Background(), "subscriptions", datastore.Row{"store_id": "st-1"})
		require.NoError(t, err)
		assert.Equal(t, "sub-1", row["id"])
		assert.Equal(t, "st-1", row["store_id"])
	})

	t.Run("conflict maps to ErrConflict", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		})

		_, err := store.Insert(context.Background(), "subscriptions", datastore.Row{"id": "dup"})
		assert.ErrorIs(t, err, datastore.ErrConflict)
	})
}

func TestRESTStore_Update(t *testing.T) {
	t.Parallel()

	t.Run("patches with eq filter", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPatch, r.Method)
			assert.Equal(t, "eq.sub-1", r.URL.Query().Get("id"))

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode([]map[string]any{{"id": "sub-1", "status": "active"}})
		})

		rows, err := store.Update(context.Background(), "subscriptions",
			datastore.Match{"id": "sub-1"}, datastore.Row{"status": "active"})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "active", rows[0]["status"])
	})

	t.Run("empty representation maps to ErrNotFound", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("[]"))
		})

		_, err := store.Update(context.Background(), "subscriptions",
			datastore.Match{"id": "missing"}, datastore.Row{"status": "active"})
		assert.ErrorIs(t, err, datastore.ErrNotFound)
	})
}

func TestRESTStore_Select(t *testing.T) {
	t.Parallel()

	t.Run("builds order and limit params", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "version.asc", r.URL.Query().Get("order"))
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			assert.Equal(t, "eq.sub-1", r.URL.Query().Get("subscription_id"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"version":1},{"version":2}]`))
		})

		rows, err := store.Select(context.Background(), "subscription_events",
			datastore.Match{"subscription_id": "sub-1"},
			datastore.WithOrderAsc("version"), datastore.WithLimit(5))
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})
}

func TestRESTStore_ErrorClassification(t *testing.T) {
	t.Parallel()

	t.Run("server error is temporary", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := store.Select(context.Background(), "subscriptions", nil)
		se, ok := datastore.IsStoreError(err)
		require.True(t, ok)
		assert.True(t, se.Temporary())
	})

	t.Run("bad request is permanent", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})

		_, err := store.Select(context.Background(), "subscriptions", nil)
		se, ok := datastore.IsStoreError(err)
		require.True(t, ok)
		assert.False(t, se.Temporary())
	})

	t.Run("rate limiting is temporary", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := store.Select(context.Background(), "subscriptions", nil)
		se, ok := datastore.IsStoreError(err)
		require.True(t, ok)
		assert.True(t, se.Temporary())
	})

	t.Run("transport failure is temporary", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := srv.URL
		srv.Close()

		store := datastore.NewRESTStore(datastore.RESTConfig{BaseURL: url})
		_, err := store.Select(context.Background(), "subscriptions", nil)
		se, ok := datastore.IsStoreError(err)
		require.True(t, ok)
		assert.True(t, se.Temporary())
	})
}

func TestRESTStore_Upsert(t *testing.T) {
	t.Parallel()

	t.Run("probe miss inserts", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			switch r.Method {
			case http.MethodGet:
				_, _ = w.Write([]byte("[]"))
			case http.MethodPost:
				_ = json.NewEncoder(w).Encode([]map[string]any{{"id": "snap-1"}})
			default:
				t.Errorf("unexpected method %s", r.Method)
			}
		})

		row, err := store.Upsert(context.Background(), "snapshots",
			datastore.Match{"subscription_id": "sub-1"},
			datastore.Row{"subscription_id": "sub-1"})
		require.NoError(t, err)
		assert.Equal(t, "snap-1", row["id"])
	})

	t.Run("probe hit updates", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			switch r.Method {
			case http.MethodGet:
				_, _ = w.Write([]byte(`[{"id":"snap-1"}]`))
			case http.MethodPatch:
				_ = json.NewEncoder(w).Encode([]map[string]any{{"id": "snap-1", "status": "active"}})
			default:
				t.Errorf("unexpected method %s", r.Method)
			}
		})

		row, err := store.Upsert(context.Background(), "snapshots",
			datastore.Match{"subscription_id": "sub-1"},
			datastore.Row{"subscription_id": "sub-1", "status": "active"})
		require.NoError(t, err)
		assert.Equal(t, "active", row["status"])
	})
}
