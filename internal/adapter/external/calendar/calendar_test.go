package calendar

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diaguru-scheduler/internal/calendargateway"
	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/platform/httpclient"
)

type staticTokens struct {
	token        string
	refreshCalls int
	refreshTo    string
}

func (s *staticTokens) Token(ctx context.Context, ownerID string) (string, error) {
	return s.token, nil
}

func (s *staticTokens) Refresh(ctx context.Context, ownerID string) (string, error) {
	s.refreshCalls++
	s.token = s.refreshTo
	return s.refreshTo, nil
}

func newClient(url string, tokens TokenSource) *Client {
	hc := httpclient.New(httpclient.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return NewClient(hc, url, tokens)
}

func TestDelete_RetriesOnceAfterPreconditionFailed(t *testing.T) {
	var deleteCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete:
			deleteCalls++
			if r.Header.Get("If-Match") == "stale" {
				w.WriteHeader(http.StatusPreconditionFailed)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"ev1","etag":"fresh","start":"2024-06-01T10:00:00Z","end":"2024-06-01T10:30:00Z"}`))
		}
	}))
	defer srv.Close()

	c := newClient(srv.URL, &staticTokens{token: "tok"})
	err := c.Delete(context.Background(), "user1", "ev1", "stale")
	require.NoError(t, err)
	assert.Equal(t, 2, deleteCalls)
}

func TestDoAuthed_RefreshesTokenOnceOn401(t *testing.T) {
	var gotTokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTokens = append(gotTokens, r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") == "Bearer old" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ev1","etag":"e1","start":"2024-06-01T10:00:00Z","end":"2024-06-01T10:30:00Z"}`))
	}))
	defer srv.Close()

	tokens := &staticTokens{token: "old", refreshTo: "new"}
	c := newClient(srv.URL, tokens)
	ev, err := c.Get(context.Background(), "user1", "ev1")
	require.NoError(t, err)
	assert.Equal(t, "ev1", ev.ID)
	assert.Equal(t, 1, tokens.refreshCalls)
	require.Len(t, gotTokens, 2)
	assert.Equal(t, "Bearer new", gotTokens[1])
}

func TestDoAuthed_PersistentAuthFailureNeedsReconnect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &staticTokens{token: "old", refreshTo: "still-bad"}
	c := newClient(srv.URL, tokens)
	_, err := c.Get(context.Background(), "user1", "ev1")
	require.Error(t, err)
}

func TestCreate_SendsOwnedEventProperties(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ev2","etag":"e2","start":"2024-06-01T10:00:00Z","end":"2024-06-01T10:30:00Z"}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL, &staticTokens{token: "tok"})
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	ev, err := c.Create(context.Background(), "user1", domain.CalendarEvent{
		Summary: "[DG] write report", Start: start, End: start.Add(30 * time.Minute),
		Properties: domain.OwnedEventProperties("c1", "a1", 12.5, "plan1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "ev2", ev.ID)
	assert.Contains(t, gotBody, `"capture_id":"c1"`)
	assert.Contains(t, gotBody, `"diaGuru":"true"`)
}

func TestList_ParsesEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"events":[{"id":"ev1","start":"2024-06-01T10:00:00Z","end":"2024-06-01T10:30:00Z"}]}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL, &staticTokens{token: "tok"})
	events, err := c.List(context.Background(), "user1", time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ev1", events[0].ID)
}

func TestBuildSummary_TruncatesTo200(t *testing.T) {
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}
	s := calendargateway.BuildSummary(string(long))
	assert.Len(t, s, 200)
}
