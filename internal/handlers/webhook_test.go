package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/mocks"
)

func setupWebhookRouter(handler *WebhookHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/identity", handler.HandleIdentityEvent)
	return r
}

func TestWebhookUserCreated(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewWebhookHandler(userRepo, "", nil)
	router := setupWebhookRouter(handler)

	userRepo.On("UpsertFromEvent", mock.Anything, "ext_9", "Ada Lovelace", "ada@example.com", mock.Anything).
		Return(nil).Once()

	body := `{"type":"user.created","data":{"id":"ext_9","first_name":"Ada","last_name":"Lovelace","email_addresses":[{"email_address":"ada@example.com"}]}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	userRepo.AssertExpectations(t)
}

func TestWebhookUserDeleted(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewWebhookHandler(userRepo, "", nil)
	router := setupWebhookRouter(handler)

	userRepo.On("DeleteByExternalID", mock.Anything, "ext_9").Return(nil).Once()

	body := `{"type":"user.deleted","data":{"id":"ext_9"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	userRepo.AssertExpectations(t)
}

func TestWebhookUnknownTypeAcknowledged(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewWebhookHandler(userRepo, "", nil)
	router := setupWebhookRouter(handler)

	body := `{"type":"session.created","data":{"id":"sess_1"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	userRepo.AssertNotCalled(t, "UpsertFromEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	userRepo.AssertNotCalled(t, "DeleteByExternalID", mock.Anything, mock.Anything)
}

func TestWebhookSchemaRejection(t *testing.T) {
	handler := NewWebhookHandler(new(mocks.UserRepositoryMock), "", nil)
	router := setupWebhookRouter(handler)

	body := `{"type":"user.created","data":{}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookBadSignature(t *testing.T) {
	secret := "whsec_" + base64.StdEncoding.EncodeToString([]byte("topsecret"))
	handler := NewWebhookHandler(new(mocks.UserRepositoryMock), secret, nil)
	router := setupWebhookRouter(handler)

	body := `{"type":"user.deleted","data":{"id":"ext_9"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", bytes.NewBufferString(body))
	req.Header.Set("svix-id", "msg_1")
	req.Header.Set("svix-timestamp", "1700000000")
	req.Header.Set("svix-signature", "v1,bm90LXRoZS1yaWdodC1zaWc=")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookValidSignature(t *testing.T) {
	rawKey := []byte("topsecret")
	secret := "whsec_" + base64.StdEncoding.EncodeToString(rawKey)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewWebhookHandler(userRepo, secret, nil)
	router := setupWebhookRouter(handler)

	userRepo.On("DeleteByExternalID", mock.Anything, "ext_9").Return(nil).Once()

	body := `{"type":"user.deleted","data":{"id":"ext_9"}}`
	mac := hmac.New(sha256.New, rawKey)
	mac.Write([]byte("msg_1.1700000000." + body))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", bytes.NewBufferString(body))
	req.Header.Set("svix-id", "msg_1")
	req.Header.Set("svix-timestamp", "1700000000")
	req.Header.Set("svix-signature", "v1,"+sig)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	userRepo.AssertExpectations(t)
}

func TestVerifySignatureMultipleEntries(t *testing.T) {
	rawKey := []byte("k")
	secret := base64.StdEncoding.EncodeToString(rawKey)
	body := []byte("payload")

	mac := hmac.New(sha256.New, rawKey)
	mac.Write([]byte("id.ts."))
	mac.Write(body)
	good := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	header := "v1,invalid v1," + good
	assert.True(t, verifySignature(secret, "id", "ts", header, body))
	assert.False(t, verifySignature(secret, "id", "ts", "v1,invalid", body))
	assert.False(t, verifySignature(secret, "", "ts", header, body))
}

func TestDisplayName(t *testing.T) {
	s := func(v string) *string { return &v }

	assert.Equal(t, "Ada Lovelace", displayName(s("Ada"), s("Lovelace"), s("ada")))
	assert.Equal(t, "Ada", displayName(s("Ada"), nil, nil))
	assert.Equal(t, "ada", displayName(nil, nil, s("ada")))
	assert.Equal(t, "ada", displayName(s("  "), s(""), s("ada")))
	assert.Equal(t, "Unknown", displayName(nil, nil, nil))
	assert.Equal(t, "Unknown", displayName(s(""), s(""), s(" ")))
}
