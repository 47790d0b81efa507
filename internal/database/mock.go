package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockConversationRepository struct {
	mock.Mock
}

func (m *MockConversationRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockConversationRepository) GetAccountById(userId string) (User, error) {
	args := m.Called(userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockConversationRepository) GetListing(listingId string) (Listing, error) {
	args := m.Called(listingId)
	return args.Get(0).(Listing), args.Error(1)
}
func (m *MockConversationRepository) ListConversations(userId string, page, limit int) ([]ConversationSummary, error) {
	args := m.Called(userId, page, limit)
	return args.Get(0).([]ConversationSummary), args.Error(1)
}
func (m *MockConversationRepository) GetConversation(conversationId, userId string) (ConversationSummary, error) {
	args := m.Called(conversationId, userId)
	return args.Get(0).(ConversationSummary), args.Error(1)
}
func (m *MockConversationRepository) ConversationIDsForUser(userId string) ([]string, error) {
	args := m.Called(userId)
	return args.Get(0).([]string), args.Error(1)
}
func (m *MockConversationRepository) IsParticipant(conversationId, userId string) (bool, error) {
	args := m.Called(conversationId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockConversationRepository) ListMessages(conversationId, userId string, page, limit int, before time.Time) ([]Message, error) {
	args := m.Called(conversationId, userId, page, limit, before)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockConversationRepository) StartConversation(userId, listingId, content string) (StartResult, error) {
	args := m.Called(userId, listingId, content)
	return args.Get(0).(StartResult), args.Error(1)
}
func (m *MockConversationRepository) CreateMessage(conversationId, userId, content string) (Message, error) {
	args := m.Called(conversationId, userId, content)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockConversationRepository) MarkConversationRead(conversationId, userId string) (int, error) {
	args := m.Called(conversationId, userId)
	return args.Int(0), args.Error(1)
}
func (m *MockConversationRepository) DeleteConversation(conversationId, userId string) error {
	args := m.Called(conversationId, userId)
	return args.Error(0)
}
func (m *MockConversationRepository) UnreadCount(userId string) (int, error) {
	args := m.Called(userId)
	return args.Int(0), args.Error(1)
}
