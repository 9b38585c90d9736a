package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/npezzotti/go-tuneroom/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	defaultAccountsURL = "https://accounts.spotify.com"
	defaultApiURL      = "https://api.spotify.com/v1"

	// authScopes are the provider permissions a session needs to drive
	// playback from the browser player.
	authScopes = "user-modify-playback-state streaming"
)

// TokenStore persists refreshed credentials so a transparently renewed
// token survives the request that triggered the renewal.
type TokenStore interface {
	SetAuth(ctx context.Context, userId string, tokens store.TokenPair) error
}

// Client talks to the external music provider. All authenticated calls
// retry once with a refreshed token after an authorization failure.
type Client struct {
	clientId     string
	clientSecret string
	http         *http.Client
	tokens       TokenStore
	log          *logrus.Logger

	accountsURL string
	apiURL      string
}

func NewClient(clientId, clientSecret string, tokens TokenStore, logger *logrus.Logger) *Client {
	return &Client{
		clientId:     clientId,
		clientSecret: clientSecret,
		http:         &http.Client{Timeout: 10 * time.Second},
		tokens:       tokens,
		log:          logger,
		accountsURL:  defaultAccountsURL,
		apiURL:       defaultApiURL,
	}
}

// AuthorizeURL builds the provider's user-consent URL for the OAuth
// authorization-code flow.
func (c *Client) AuthorizeURL(state, redirectURL string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.clientId)
	q.Set("redirect_uri", redirectURL)
	q.Set("state", state)
	q.Set("scope", authScopes)
	q.Set("show_dialog", "true")

	return fmt.Sprintf("%s/authorize?%s", c.accountsURL, q.Encode())
}

// ExchangeCode trades an authorization code for a token pair.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURL string) (AccessToken, error) {
	form := url.Values{}
	form.Set("code", code)
	form.Set("redirect_uri", redirectURL)
	form.Set("grant_type", "authorization_code")

	return c.tokenRequest(ctx, form)
}

// refresh renews the token pair and persists it. The provider may omit
// a new refresh token, in which case the old one stays valid.
func (c *Client) refresh(ctx context.Context, userId string, tokens store.TokenPair) (store.TokenPair, error) {
	form := url.Values{}
	form.Set("refresh_token", tokens.RefreshToken)
	form.Set("grant_type", "refresh_token")

	token, err := c.tokenRequest(ctx, form)
	if err != nil {
		return store.TokenPair{}, fmt.Errorf("refresh token: %w", err)
	}

	renewed := store.TokenPair{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if renewed.RefreshToken == "" {
		renewed.RefreshToken = tokens.RefreshToken
	}

	if err := c.tokens.SetAuth(ctx, userId, renewed); err != nil {
		return store.TokenPair{}, fmt.Errorf("persist refreshed token: %w", err)
	}

	c.log.WithField("user_id", userId).Info("refreshed provider token")
	return renewed, nil
}

func (c *Client) tokenRequest(ctx context.Context, form url.Values) (AccessToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.accountsURL+"/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return AccessToken{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientId, c.clientSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return AccessToken{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return AccessToken{}, fmt.Errorf("token request: unexpected status %d", resp.StatusCode)
	}

	var token AccessToken
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return AccessToken{}, fmt.Errorf("decode token response: %w", err)
	}
	return token, nil
}

// doWithRefresh performs an authenticated request, refreshing the token
// pair and retrying exactly once on a 401.
func (c *Client) doWithRefresh(ctx context.Context, userId string, tokens store.TokenPair,
	build func(accessToken string) (*http.Request, error)) (*http.Response, error) {

	req, err := build(tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	renewed, err := c.refresh(ctx, userId, tokens)
	if err != nil {
		return nil, err
	}

	req, err = build(renewed.AccessToken)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// Me fetches the authenticated user's identity.
func (c *Client) Me(ctx context.Context, accessToken string) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/me", nil)
	if err != nil {
		return User{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("me request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return User{}, fmt.Errorf("me request: unexpected status %d", resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return User{}, fmt.Errorf("decode me response: %w", err)
	}
	return user, nil
}

// Track fetches track metadata. Accepts either a bare id or a provider
// URI of the form spotify:track:<id>.
func (c *Client) Track(ctx context.Context, userId string, tokens store.TokenPair, trackId string) (*Track, error) {
	parts := strings.Split(trackId, ":")
	shortId := parts[len(parts)-1]

	resp, err := c.doWithRefresh(ctx, userId, tokens, func(accessToken string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/tracks/"+shortId, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("track request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("track request: unexpected status %d", resp.StatusCode)
	}

	var track Track
	if err := json.NewDecoder(resp.Body).Decode(&track); err != nil {
		return nil, fmt.Errorf("decode track response: %w", err)
	}
	return &track, nil
}

type playRequest struct {
	URIs       []string `json:"uris"`
	PositionMs int64    `json:"position_ms"`
}

// Play starts a track on the user's device at the given offset.
func (c *Client) Play(ctx context.Context, userId string, tokens store.TokenPair, deviceId, trackUri string, positionMs int64) error {
	body, err := json.Marshal(playRequest{
		URIs:       []string{trackUri},
		PositionMs: positionMs,
	})
	if err != nil {
		return err
	}

	resp, err := c.doWithRefresh(ctx, userId, tokens, func(accessToken string) (*http.Request, error) {
		endpoint := fmt.Sprintf("%s/me/player/play?device_id=%s", c.apiURL, url.QueryEscape(deviceId))
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, strings.NewReader(string(body)))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("play request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("play request: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Search queries the provider for tracks matching q.
func (c *Client) Search(ctx context.Context, userId string, tokens store.TokenPair, query string, limit int) ([]ShortTrack, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("type", "track")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	resp, err := c.doWithRefresh(ctx, userId, tokens, func(accessToken string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/search?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request: unexpected status %d", resp.StatusCode)
	}

	var result SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	tracks := make([]ShortTrack, 0, len(result.Tracks.Items))
	for i := range result.Tracks.Items {
		tracks = append(tracks, ShortenTrack(&result.Tracks.Items[i]))
	}
	return tracks, nil
}
