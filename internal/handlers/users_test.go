package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

func setupUserRouter(handler *UserHandler, me *models.User, subject string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if subject != "" {
			c.Set("subject", subject)
		}
		if me != nil {
			c.Set("userID", me.ID)
			c.Set("currentUser", *me)
		}
		c.Next()
	})
	r.POST("/users/sync", handler.SyncUser)
	r.PUT("/users/presence", handler.SetPresence)
	r.GET("/users/me", handler.Me)
	r.GET("/users", handler.ListUsers)
	r.GET("/users/:user_id", handler.GetUser)
	return r
}

func TestSyncUserSuccess(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewUserHandler(userRepo, nil)
	router := setupUserRouter(handler, nil, "ext_1")

	userRepo.On("UpsertLogin", mock.Anything, "ext_1", "Alice", "alice@example.com", (*string)(nil)).
		Return(models.User{ID: 1, ExternalID: "ext_1", Name: "Alice", IsOnline: true}, nil).Once()

	body := bytes.NewBufferString(`{"name":"Alice","email":"alice@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/users/sync", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Alice", resp["name"])
	assert.Equal(t, true, resp["is_online"])
	userRepo.AssertExpectations(t)
}

func TestSyncUserNoSubject(t *testing.T) {
	handler := NewUserHandler(new(mocks.UserRepositoryMock), nil)
	router := setupUserRouter(handler, nil, "")

	body := bytes.NewBufferString(`{"name":"Alice","email":"alice@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/users/sync", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSyncUserMissingName(t *testing.T) {
	handler := NewUserHandler(new(mocks.UserRepositoryMock), nil)
	router := setupUserRouter(handler, nil, "ext_1")

	req := httptest.NewRequest(http.MethodPost, "/users/sync", bytes.NewBufferString(`{"email":"alice@example.com"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncUserWithoutEmail(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewUserHandler(userRepo, nil)
	router := setupUserRouter(handler, nil, "ext_1")

	userRepo.On("UpsertLogin", mock.Anything, "ext_1", "Alice", "", (*string)(nil)).
		Return(models.User{ID: 1, ExternalID: "ext_1", Name: "Alice"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/users/sync", bytes.NewBufferString(`{"name":"Alice"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	userRepo.AssertExpectations(t)
}

func TestSetPresenceSuccess(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewUserHandler(userRepo, nil)
	me := models.User{ID: 1, ExternalID: "ext_1"}
	router := setupUserRouter(handler, &me, "ext_1")

	userRepo.On("SetPresence", mock.Anything, 1, false).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/users/presence", bytes.NewBufferString(`{"is_online":false}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	userRepo.AssertExpectations(t)
}

func TestSetPresenceUnknownUserNoop(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewUserHandler(userRepo, nil)
	router := setupUserRouter(handler, nil, "ext_new")

	req := httptest.NewRequest(http.MethodPut, "/users/presence", bytes.NewBufferString(`{"is_online":true}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	userRepo.AssertNotCalled(t, "SetPresence", mock.Anything, mock.Anything, mock.Anything)
}

func TestSetPresenceMissingFlag(t *testing.T) {
	handler := NewUserHandler(new(mocks.UserRepositoryMock), nil)
	me := models.User{ID: 1}
	router := setupUserRouter(handler, &me, "ext_1")

	req := httptest.NewRequest(http.MethodPut, "/users/presence", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeUnknownUserReturnsNull(t *testing.T) {
	handler := NewUserHandler(new(mocks.UserRepositoryMock), nil)
	router := setupUserRouter(handler, nil, "ext_new")

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", rec.Body.String())
}

func TestListUsersPassesSearch(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewUserHandler(userRepo, nil)
	me := models.User{ID: 1}
	router := setupUserRouter(handler, &me, "ext_1")

	userRepo.On("ListOthers", mock.Anything, 1, "bo").
		Return([]models.User{{ID: 2, Name: "Bob"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/users?search=bo", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Users []models.User `json:"users"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Users, 1)
	assert.Equal(t, "Bob", resp.Users[0].Name)
	userRepo.AssertExpectations(t)
}

func TestListUsersUnknownUserEmpty(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewUserHandler(userRepo, nil)
	router := setupUserRouter(handler, nil, "ext_new")

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Users []models.User `json:"users"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Users)
	userRepo.AssertNotCalled(t, "ListOthers", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetUserNotFound(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewUserHandler(userRepo, nil)
	router := setupUserRouter(handler, nil, "ext_1")

	userRepo.On("GetByID", mock.Anything, 42).Return(models.User{}, repositories.ErrUserNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/users/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	userRepo.AssertExpectations(t)
}
