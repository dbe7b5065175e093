package records

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kapu/persona-avatar-bot-go/internal/domain"
	"github.com/kapu/persona-avatar-bot-go/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRepository(t *testing.T, handler http.HandlerFunc) *Repository {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), ClientConfig{
		BaseURL:     server.URL + "/v0/base/personas",
		Token:       "secret-token",
		Timeout:     2 * time.Second,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)

	return NewRepository(client, "Avatar", 2, zap.NewNop())
}

func TestListAllFollowsCursorUntilExhausted(t *testing.T) {
	var pages []string
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/v0/base/personas", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("pageSize"))

		offset := r.URL.Query().Get("offset")
		pages = append(pages, offset)

		w.Header().Set("Content-Type", "application/json")
		switch offset {
		case "":
			_, _ = io.WriteString(w, `{"records":[
				{"id":"rec1","fields":{"Name":"Ada Lovelace","Avatar":"https://x.org/ada.jpg"}},
				{"id":"rec2","fields":{"Name":"Zeus","Avatar":[{"url":"https://x.org/zeus.jpg"}]}}
			],"offset":"page2"}`)
		case "page2":
			_, _ = io.WriteString(w, `{"records":[{"id":"rec3","fields":{"Name":"Coach Carter","Title":"Life Coach"}}]}`)
		default:
			t.Fatalf("unexpected offset %q", offset)
		}
	})

	var got []*domain.PersonaRecord
	for rec, err := range repo.ListAll(context.Background()) {
		require.NoError(t, err)
		got = append(got, rec)
	}

	require.Len(t, got, 3)
	assert.Equal(t, []string{"", "page2"}, pages)
	assert.Equal(t, "Ada Lovelace", got[0].Name)
	assert.IsType(t, domain.AttachmentList{}, got[1].Avatar)
	assert.Equal(t, "Life Coach", got[2].Title)
	assert.IsType(t, domain.NoAvatar{}, got[2].Avatar)
}

func TestListAllIsRestartable(t *testing.T) {
	var calls int32
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = io.WriteString(w, `{"records":[{"id":"rec1","fields":{"Name":"A"}}]}`)
	})

	for range 2 {
		count := 0
		for _, err := range repo.ListAll(context.Background()) {
			require.NoError(t, err)
			count++
		}
		assert.Equal(t, 1, count)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestListAllSurfacesPageError(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "" {
			_, _ = io.WriteString(w, `{"records":[{"id":"rec1","fields":{"Name":"A"}}],"offset":"next"}`)
			return
		}
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	var (
		records int
		lastErr error
	)
	for rec, err := range repo.ListAll(context.Background()) {
		if err != nil {
			lastErr = err
			continue
		}
		require.NotNil(t, rec)
		records++
	}

	assert.Equal(t, 1, records)
	require.Error(t, lastErr)
	assert.True(t, errors.IsTransport(lastErr))
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"records":[]}`)
	})

	for _, err := range repo.ListAll(context.Background()) {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestUpdateAvatarPatchesSingleField(t *testing.T) {
	var (
		method string
		path   string
		body   patchRequest
	)
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, `{"id":"rec9","fields":{}}`)
	})

	err := repo.UpdateAvatar(context.Background(), "rec9", "https://cdn.example.org/avatars/a-1.jpg?v=1")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, method)
	assert.Equal(t, "/v0/base/personas/rec9", path)
	assert.Equal(t, map[string]any{"Avatar": "https://cdn.example.org/avatars/a-1.jpg?v=1"}, body.Fields)
}

func TestUpdateFailureIsPersistenceError(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"INVALID_VALUE"}`, http.StatusUnprocessableEntity)
	})

	err := repo.UpdateAvatar(context.Background(), "rec9", "https://x")
	require.Error(t, err)
	assert.True(t, errors.IsPersistence(err))
	assert.True(t, errors.IsTransport(err))
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), ClientConfig{BaseURL: "https://x"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}
