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
	"messenger-service/internal/ws"
)

func setupMessageRouter(handler *MessageHandler, me *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if me != nil {
			c.Set("subject", me.ExternalID)
			c.Set("userID", me.ID)
			c.Set("currentUser", *me)
		}
		c.Next()
	})
	r.POST("/conversations/:conversation_id/messages", handler.PostMessage)
	r.GET("/conversations/:conversation_id/messages", handler.ListMessages)
	r.DELETE("/messages/:message_id", handler.DeleteMessage)
	r.POST("/messages/:message_id/reactions", handler.ToggleReaction)
	return r
}

func TestPostMessageSuccess(t *testing.T) {
	convoRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	hub := ws.NewHub()
	handler := NewMessageHandler(convoRepo, messageRepo, new(mocks.UserRepositoryMock), hub, nil)
	me := models.User{ID: 1, Name: "Alice"}
	router := setupMessageRouter(handler, &me)

	convoRepo.On("Get", mock.Anything, 5).Return(models.Conversation{ID: 5}, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, 5, 1, "hi").
		Return(models.Message{ID: 7, ConversationID: 5, SenderID: 1, Content: "hi"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/5/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp models.MessageView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 7, resp.ID)
	require.NotNil(t, resp.Sender)
	assert.Equal(t, "Alice", resp.Sender.Name)
	assert.NotNil(t, resp.Reactions)
	convoRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestPostMessageBlankContent(t *testing.T) {
	handler := NewMessageHandler(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock), ws.NewHub(), nil)
	me := models.User{ID: 1}
	router := setupMessageRouter(handler, &me)

	req := httptest.NewRequest(http.MethodPost, "/conversations/5/messages", bytes.NewBufferString(`{"content":"   "}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessageConversationMissing(t *testing.T) {
	convoRepo := new(mocks.ConversationRepositoryMock)
	handler := NewMessageHandler(convoRepo, new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock), ws.NewHub(), nil)
	me := models.User{ID: 1}
	router := setupMessageRouter(handler, &me)

	convoRepo.On("Get", mock.Anything, 404).
		Return(models.Conversation{}, repositories.ErrConversationNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/404/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	convoRepo.AssertExpectations(t)
}

func TestListMessagesEnrichment(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewMessageHandler(new(mocks.ConversationRepositoryMock), messageRepo, userRepo, ws.NewHub(), nil)
	me := models.User{ID: 1}
	router := setupMessageRouter(handler, &me)

	messageRepo.On("ListMessages", mock.Anything, 5).Return([]models.Message{
		{ID: 1, ConversationID: 5, SenderID: 1, Content: "hello"},
		{ID: 2, ConversationID: 5, SenderID: 2, Content: "secret", IsDeleted: true},
	}, nil).Once()
	messageRepo.On("ListReactions", mock.Anything, 5).Return([]models.ReactionRow{
		{MessageID: 1, UserID: 2, Emoji: "👍"},
		{MessageID: 1, UserID: 1, Emoji: "👍"},
	}, nil).Once()
	userRepo.On("BulkUsers", mock.Anything, []int{1, 2}).
		Return([]models.User{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.MessageView `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 2)

	first := resp.Messages[0]
	require.Len(t, first.Reactions, 1)
	assert.Equal(t, "👍", first.Reactions[0].Emoji)
	assert.Equal(t, []int{2, 1}, first.Reactions[0].UserIDs)

	// deleted rows keep their stored content; rendering is the client's call
	deleted := resp.Messages[1]
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, "secret", deleted.Content)

	messageRepo.AssertExpectations(t)
	userRepo.AssertExpectations(t)
}

func TestDeleteMessageOnlySender(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(new(mocks.ConversationRepositoryMock), messageRepo, new(mocks.UserRepositoryMock), ws.NewHub(), nil)
	me := models.User{ID: 1}
	router := setupMessageRouter(handler, &me)

	messageRepo.On("GetMessage", mock.Anything, 7).
		Return(models.Message{ID: 7, ConversationID: 5, SenderID: 2}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/messages/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "SoftDeleteMessage", mock.Anything, mock.Anything)
}

func TestDeleteMessageSuccess(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(new(mocks.ConversationRepositoryMock), messageRepo, new(mocks.UserRepositoryMock), ws.NewHub(), nil)
	me := models.User{ID: 1}
	router := setupMessageRouter(handler, &me)

	messageRepo.On("GetMessage", mock.Anything, 7).
		Return(models.Message{ID: 7, ConversationID: 5, SenderID: 1}, nil).Once()
	messageRepo.On("SoftDeleteMessage", mock.Anything, 7).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/messages/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestToggleReactionReturnsMergedState(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(new(mocks.ConversationRepositoryMock), messageRepo, new(mocks.UserRepositoryMock), ws.NewHub(), nil)
	me := models.User{ID: 1}
	router := setupMessageRouter(handler, &me)

	messageRepo.On("GetMessage", mock.Anything, 7).
		Return(models.Message{ID: 7, ConversationID: 5, SenderID: 2}, nil).Once()
	messageRepo.On("ToggleReaction", mock.Anything, 7, 1, "❤️").Return(nil).Once()
	messageRepo.On("ListMessageReactions", mock.Anything, 7).Return([]models.ReactionRow{
		{MessageID: 7, UserID: 1, Emoji: "❤️"},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/7/reactions", bytes.NewBufferString(`{"emoji":"❤️"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		MessageID int                    `json:"message_id"`
		Reactions []models.ReactionGroup `json:"reactions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 7, resp.MessageID)
	require.Len(t, resp.Reactions, 1)
	assert.Equal(t, []int{1}, resp.Reactions[0].UserIDs)
	messageRepo.AssertExpectations(t)
}

func TestToggleReactionMessageMissing(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(new(mocks.ConversationRepositoryMock), messageRepo, new(mocks.UserRepositoryMock), ws.NewHub(), nil)
	me := models.User{ID: 1}
	router := setupMessageRouter(handler, &me)

	messageRepo.On("GetMessage", mock.Anything, 404).
		Return(models.Message{}, repositories.ErrMessageNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/404/reactions", bytes.NewBufferString(`{"emoji":"👍"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestGroupReactionsOrdering(t *testing.T) {
	rows := []models.ReactionRow{
		{MessageID: 7, UserID: 3, Emoji: "😂"},
		{MessageID: 7, UserID: 1, Emoji: "❤️"},
		{MessageID: 7, UserID: 2, Emoji: "😂"},
	}
	groups := groupReactions(rows)
	require.Len(t, groups, 2)
	assert.Equal(t, "😂", groups[0].Emoji)
	assert.Equal(t, []int{3, 2}, groups[0].UserIDs)
	assert.Equal(t, "❤️", groups[1].Emoji)
	assert.Equal(t, []int{1}, groups[1].UserIDs)
}

func TestGroupReactionsEmpty(t *testing.T) {
	assert.Empty(t, groupReactions(nil))
}
