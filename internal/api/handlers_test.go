package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/npezzotti/go-tuneroom/internal/provider"
	"github.com/npezzotti/go-tuneroom/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func requestAs(r *http.Request, userId string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIdKey, userId))
}

func TestCreateRoom(t *testing.T) {
	t.Run("creates the room owned by the caller", func(t *testing.T) {
		db := &store.MockRepository{}
		db.On("CreateRoom", mock.Anything, store.Room{
			Id:    "lofi",
			Title: "Lofi Beats",
			Owner: "spotify:user:alice",
		}).Return(nil)

		s := newTestApiServer(t, db, &mockMusicProvider{})

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader(`{"id":"lofi","title":"Lofi Beats"}`))
		s.createRoom(w, requestAs(r, "spotify:user:alice"))

		assert.Equal(t, http.StatusCreated, w.Code)
		db.AssertExpectations(t)
	})

	t.Run("validation failures list every violation", func(t *testing.T) {
		db := &store.MockRepository{}
		db.On("CreateRoom", mock.Anything, mock.Anything).
			Return(store.ValidationErrors{"room id must not be empty", "room title must not be empty"})

		s := newTestApiServer(t, db, &mockMusicProvider{})

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader(`{"id":"","title":""}`))
		s.createRoom(w, requestAs(r, "spotify:user:alice"))

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp ApiError
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Len(t, resp.Errors, 2, "expected both violations to be reported")
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		s := newTestApiServer(t, &store.MockRepository{}, &mockMusicProvider{})

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader("{"))
		s.createRoom(w, requestAs(r, "spotify:user:alice"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListRooms(t *testing.T) {
	t.Run("returns all rooms", func(t *testing.T) {
		db := &store.MockRepository{}
		db.On("ListRooms", mock.Anything).Return([]store.Room{
			{Id: "lofi", Title: "Lofi Beats", Owner: "spotify:user:alice"},
		}, nil)

		s := newTestApiServer(t, db, &mockMusicProvider{})

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
		s.listRooms(w, requestAs(r, "spotify:user:alice"))

		assert.Equal(t, http.StatusOK, w.Code)

		var rooms []store.Room
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&rooms))
		assert.Len(t, rooms, 1)
		assert.Equal(t, "lofi", rooms[0].Id)
	})

	t.Run("no rooms is an empty list", func(t *testing.T) {
		db := &store.MockRepository{}
		db.On("ListRooms", mock.Anything).Return([]store.Room(nil), nil)

		s := newTestApiServer(t, db, &mockMusicProvider{})

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
		s.listRooms(w, requestAs(r, "spotify:user:alice"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", w.Body.String())
	})
}

func TestGetRoom(t *testing.T) {
	t.Run("returns the room", func(t *testing.T) {
		db := &store.MockRepository{}
		db.On("GetRoom", mock.Anything, "lofi").
			Return(store.Room{Id: "lofi", Title: "Lofi Beats", Owner: "spotify:user:alice"}, nil)

		s := newTestApiServer(t, db, &mockMusicProvider{})

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/room?id=lofi", nil)
		s.getRoom(w, requestAs(r, "spotify:user:alice"))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown room is not found", func(t *testing.T) {
		db := &store.MockRepository{}
		db.On("GetRoom", mock.Anything, "nope").Return(store.Room{}, store.ErrNotFound)

		s := newTestApiServer(t, db, &mockMusicProvider{})

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/room?id=nope", nil)
		s.getRoom(w, requestAs(r, "spotify:user:alice"))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestToken(t *testing.T) {
	t.Run("returns the caller's access token", func(t *testing.T) {
		db := &store.MockRepository{}
		db.On("GetAuth", mock.Anything, "spotify:user:alice").
			Return(store.TokenPair{AccessToken: "at", RefreshToken: "rt"}, nil)

		s := newTestApiServer(t, db, &mockMusicProvider{})

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/token", nil)
		s.token(w, requestAs(r, "spotify:user:alice"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"access_token":"at"}`, w.Body.String())
	})

	t.Run("no stored credentials is unauthorized", func(t *testing.T) {
		db := &store.MockRepository{}
		db.On("GetAuth", mock.Anything, "spotify:user:alice").
			Return(store.TokenPair{}, store.ErrNotFound)

		s := newTestApiServer(t, db, &mockMusicProvider{})

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/token", nil)
		s.token(w, requestAs(r, "spotify:user:alice"))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestSearch(t *testing.T) {
	t.Run("returns matching tracks", func(t *testing.T) {
		tokens := store.TokenPair{AccessToken: "at"}

		db := &store.MockRepository{}
		db.On("GetAuth", mock.Anything, "spotify:user:alice").Return(tokens, nil)

		mp := &mockMusicProvider{}
		mp.On("Search", mock.Anything, "spotify:user:alice", tokens, "lofi", searchResultLimit).
			Return([]provider.ShortTrack{{Name: "Lofi Song", URI: "spotify:track:abc"}}, nil)

		s := newTestApiServer(t, db, mp)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/search?q=lofi", nil)
		s.search(w, requestAs(r, "spotify:user:alice"))

		assert.Equal(t, http.StatusOK, w.Code)

		var tracks []provider.ShortTrack
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&tracks))
		assert.Len(t, tracks, 1)
		mp.AssertExpectations(t)
	})

	t.Run("missing query is a bad request", func(t *testing.T) {
		s := newTestApiServer(t, &store.MockRepository{}, &mockMusicProvider{})

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/search", nil)
		s.search(w, requestAs(r, "spotify:user:alice"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("provider failure is an internal error", func(t *testing.T) {
		db := &store.MockRepository{}
		db.On("GetAuth", mock.Anything, "spotify:user:alice").Return(store.TokenPair{AccessToken: "at"}, nil)

		mp := &mockMusicProvider{}
		mp.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("rate limited"))

		s := newTestApiServer(t, db, mp)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/search?q=lofi", nil)
		s.search(w, requestAs(r, "spotify:user:alice"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
