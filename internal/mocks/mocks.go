package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"messenger-service/internal/models"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetByExternalID(ctx context.Context, externalID string) (models.User, error) {
	args := m.Called(ctx, externalID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetByID(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) BulkUsers(ctx context.Context, ids []int) ([]models.User, error) {
	args := m.Called(ctx, ids)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) ListOthers(ctx context.Context, excludeUserID int, search string) ([]models.User, error) {
	args := m.Called(ctx, excludeUserID, search)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) UpsertLogin(ctx context.Context, externalID, name, email string, avatarURL *string) (models.User, error) {
	args := m.Called(ctx, externalID, name, email, avatarURL)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) UpsertFromEvent(ctx context.Context, externalID, name, email string, avatarURL *string) error {
	args := m.Called(ctx, externalID, name, email, avatarURL)
	return args.Error(0)
}

func (m *UserRepositoryMock) DeleteByExternalID(ctx context.Context, externalID string) error {
	args := m.Called(ctx, externalID)
	return args.Error(0)
}

func (m *UserRepositoryMock) SetPresence(ctx context.Context, userID int, online bool) error {
	args := m.Called(ctx, userID, online)
	return args.Error(0)
}

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) FindDirectConversation(ctx context.Context, userID, otherUserID int) (models.Conversation, error) {
	args := m.Called(ctx, userID, otherUserID)
	var convo models.Conversation
	if val := args.Get(0); val != nil {
		convo = val.(models.Conversation)
	}
	return convo, args.Error(1)
}

func (m *ConversationRepositoryMock) CreateDirect(ctx context.Context, userID, otherUserID int) (models.Conversation, error) {
	args := m.Called(ctx, userID, otherUserID)
	var convo models.Conversation
	if val := args.Get(0); val != nil {
		convo = val.(models.Conversation)
	}
	return convo, args.Error(1)
}

func (m *ConversationRepositoryMock) CreateGroup(ctx context.Context, ownerID int, name string, memberIDs []int) (models.Conversation, error) {
	args := m.Called(ctx, ownerID, name, memberIDs)
	var convo models.Conversation
	if val := args.Get(0); val != nil {
		convo = val.(models.Conversation)
	}
	return convo, args.Error(1)
}

func (m *ConversationRepositoryMock) Get(ctx context.Context, conversationID int) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var convo models.Conversation
	if val := args.Get(0); val != nil {
		convo = val.(models.Conversation)
	}
	return convo, args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID int) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) ParticipantIDs(ctx context.Context, conversationID int) ([]int, error) {
	args := m.Called(ctx, conversationID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID, userID int) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, conversationID, senderID int, content string) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, conversationID int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDeleteMessage(ctx context.Context, messageID int) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) ToggleReaction(ctx context.Context, messageID, userID int, emoji string) error {
	args := m.Called(ctx, messageID, userID, emoji)
	return args.Error(0)
}

func (m *MessageRepositoryMock) ListReactions(ctx context.Context, conversationID int) ([]models.ReactionRow, error) {
	args := m.Called(ctx, conversationID)
	var rows []models.ReactionRow
	if val := args.Get(0); val != nil {
		rows = val.([]models.ReactionRow)
	}
	return rows, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessageReactions(ctx context.Context, messageID int) ([]models.ReactionRow, error) {
	args := m.Called(ctx, messageID)
	var rows []models.ReactionRow
	if val := args.Get(0); val != nil {
		rows = val.([]models.ReactionRow)
	}
	return rows, args.Error(1)
}

func (m *MessageRepositoryMock) CountUnread(ctx context.Context, conversationID, userID int) (int, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Int(0), args.Error(1)
}

type PresenceRepositoryMock struct {
	mock.Mock
}

func (m *PresenceRepositoryMock) UpsertTyping(ctx context.Context, conversationID, userID int, at time.Time) error {
	args := m.Called(ctx, conversationID, userID, at)
	return args.Error(0)
}

func (m *PresenceRepositoryMock) ListTyping(ctx context.Context, conversationID int) ([]models.TypingIndicator, error) {
	args := m.Called(ctx, conversationID)
	var list []models.TypingIndicator
	if val := args.Get(0); val != nil {
		list = val.([]models.TypingIndicator)
	}
	return list, args.Error(1)
}

func (m *PresenceRepositoryMock) UpsertReadReceipt(ctx context.Context, conversationID, userID int, at time.Time) (models.ReadReceipt, error) {
	args := m.Called(ctx, conversationID, userID, at)
	var receipt models.ReadReceipt
	if val := args.Get(0); val != nil {
		receipt = val.(models.ReadReceipt)
	}
	return receipt, args.Error(1)
}
