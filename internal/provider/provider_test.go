package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/npezzotti/go-tuneroom/internal/store"
	"github.com/npezzotti/go-tuneroom/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockTokenStore struct {
	mock.Mock
}

func (m *mockTokenStore) SetAuth(ctx context.Context, userId string, tokens store.TokenPair) error {
	args := m.Called(ctx, userId, tokens)
	return args.Error(0)
}

func newTestProviderClient(t *testing.T, tokens TokenStore, accountsURL, apiURL string) *Client {
	c := NewClient("client-id", "client-secret", tokens, testutil.TestLogger(t))
	c.accountsURL = accountsURL
	c.apiURL = apiURL
	return c
}

func TestAuthorizeURL(t *testing.T) {
	c := newTestProviderClient(t, &mockTokenStore{}, "https://accounts.example.com", "")

	raw := c.AuthorizeURL("state-abc", "http://localhost:8080/authorize")
	u, err := url.Parse(raw)
	assert.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-abc", q.Get("state"))
	assert.Equal(t, "http://localhost:8080/authorize", q.Get("redirect_uri"))
	assert.Contains(t, q.Get("scope"), "streaming")
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/token", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok, "expected basic auth")
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)

		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "auth-code", r.Form.Get("code"))

		json.NewEncoder(w).Encode(AccessToken{AccessToken: "at", RefreshToken: "rt"})
	}))
	defer srv.Close()

	c := newTestProviderClient(t, &mockTokenStore{}, srv.URL, "")

	token, err := c.ExchangeCode(context.Background(), "auth-code", "http://localhost:8080/authorize")
	assert.NoError(t, err)
	assert.Equal(t, "at", token.AccessToken)
	assert.Equal(t, "rt", token.RefreshToken)
}

func TestTrack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tracks/abc", r.URL.Path, "expected the URI prefix to be stripped")
		assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(Track{Id: "abc", URI: "spotify:track:abc", DurationMs: 180_000})
	}))
	defer srv.Close()

	c := newTestProviderClient(t, &mockTokenStore{}, "", srv.URL)

	track, err := c.Track(context.Background(), "spotify:user:alice",
		store.TokenPair{AccessToken: "at", RefreshToken: "rt"}, "spotify:track:abc")
	assert.NoError(t, err)
	assert.Equal(t, int64(180_000), track.DurationMs)
}

func TestDoWithRefreshRetriesOnce(t *testing.T) {
	var trackCalls, tokenCalls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/token":
			tokenCalls++
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
			assert.Equal(t, "rt", r.Form.Get("refresh_token"))
			// No refresh_token in the response: the old one stays valid.
			json.NewEncoder(w).Encode(AccessToken{AccessToken: "at2"})
		case "/tracks/abc":
			trackCalls++
			if r.Header.Get("Authorization") != "Bearer at2" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(Track{Id: "abc", DurationMs: 90_000})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	tokens := &mockTokenStore{}
	tokens.On("SetAuth", mock.Anything, "spotify:user:alice",
		store.TokenPair{AccessToken: "at2", RefreshToken: "rt"}).Return(nil)

	c := newTestProviderClient(t, tokens, srv.URL, srv.URL)

	track, err := c.Track(context.Background(), "spotify:user:alice",
		store.TokenPair{AccessToken: "expired", RefreshToken: "rt"}, "abc")
	assert.NoError(t, err)
	assert.Equal(t, int64(90_000), track.DurationMs)
	assert.Equal(t, 2, trackCalls, "expected exactly one retry")
	assert.Equal(t, 1, tokenCalls, "expected exactly one refresh")
	tokens.AssertExpectations(t)
}

func TestPlay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/me/player/play", r.URL.Path)
		assert.Equal(t, "dev-a", r.URL.Query().Get("device_id"))

		var req playRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"spotify:track:abc"}, req.URIs)
		assert.Equal(t, int64(8000), req.PositionMs)

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestProviderClient(t, &mockTokenStore{}, "", srv.URL)

	err := c.Play(context.Background(), "spotify:user:alice",
		store.TokenPair{AccessToken: "at"}, "dev-a", "spotify:track:abc", 8000)
	assert.NoError(t, err)
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "lofi", r.URL.Query().Get("q"))
		assert.Equal(t, "track", r.URL.Query().Get("type"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))

		json.NewEncoder(w).Encode(SearchResult{Tracks: SearchResultTracks{Items: []Track{
			{
				Name:    "Lofi Song",
				URI:     "spotify:track:abc",
				Artists: []Artist{{Name: "Some Artist"}},
				Album: Album{Images: []Image{
					{URL: "https://img/large", Width: 640, Height: 640},
					{URL: "https://img/small", Width: 64, Height: 64},
				}},
			},
		}}})
	}))
	defer srv.Close()

	c := newTestProviderClient(t, &mockTokenStore{}, "", srv.URL)

	tracks, err := c.Search(context.Background(), "spotify:user:alice",
		store.TokenPair{AccessToken: "at"}, "lofi", 5)
	assert.NoError(t, err)
	assert.Len(t, tracks, 1)
	assert.Equal(t, "Lofi Song", tracks[0].Name)
	assert.Equal(t, []string{"Some Artist"}, tracks[0].Artists)
	assert.Equal(t, "https://img/small", tracks[0].Cover, "expected the smallest cover to be picked")
}

func TestShortenTrack(t *testing.T) {
	track := Track{
		Name:       "Song",
		URI:        "spotify:track:abc",
		PreviewURL: "https://preview",
		Artists:    []Artist{{Name: "A"}, {Name: "B"}},
		Album: Album{Images: []Image{
			{URL: "https://img/medium", Width: 300, Height: 300},
			{URL: "https://img/small", Width: 64, Height: 64},
			{URL: "https://img/large", Width: 640, Height: 640},
		}},
	}

	short := ShortenTrack(&track)
	assert.Equal(t, []string{"A", "B"}, short.Artists)
	assert.Equal(t, "https://img/small", short.Cover)
	assert.Equal(t, "https://preview", short.PreviewURL)
}
