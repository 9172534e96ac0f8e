package services

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/conversa/conversa-backend/internal/errdefs"
	"github.com/conversa/conversa-backend/internal/providers"
	"github.com/conversa/conversa-backend/internal/repository"
)

const maxTitleLen = 48

// ConversationService owns conversation and message persistence. Appends to
// the same conversation are mutually exclusive, so history read after an
// append always reflects every earlier append.
type ConversationService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	appendLocks   *keyedMutex
	logger        *logrus.Logger
}

// NewConversationService creates a new conversation service
func NewConversationService(conversations repository.ConversationRepository, messages repository.MessageRepository, logger *logrus.Logger) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		appendLocks:   newKeyedMutex(),
		logger:        logger,
	}
}

// Resolve returns the identified conversation after an ownership check, or
// lazily creates one titled from the first message when id is empty. The
// second return reports whether a conversation was created.
func (s *ConversationService) Resolve(ctx context.Context, ownerID uuid.UUID, id string, firstMessage string) (*repository.Conversation, bool, error) {
	if id != "" {
		conversation, err := s.conversations.Get(ctx, ownerID, id)
		if err != nil {
			return nil, false, err
		}
		return conversation, false, nil
	}

	conversation := &repository.Conversation{
		OwnerID: ownerID,
		Title:   titleFromMessage(firstMessage),
	}
	if err := s.conversations.Create(ctx, conversation); err != nil {
		return nil, false, err
	}

	s.logger.WithFields(logrus.Fields{
		"conversation_id": conversation.ID,
		"user_id":         ownerID,
	}).Debug("conversation created")

	return conversation, true, nil
}

// Append durably appends a message to a conversation. TokenCount and model
// are recorded for assistant messages only; callers pass nil/"" otherwise.
func (s *ConversationService) Append(ctx context.Context, conversationID string, role repository.Role, content string, tokenCount *int, modelName string) (*repository.Message, error) {
	if content == "" {
		return nil, errdefs.Validationf("message content must not be empty")
	}
	if _, err := repository.ParseRole(string(role)); err != nil {
		return nil, err
	}

	message := &repository.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	if tokenCount != nil {
		message.TokenCount = sql.NullInt32{Int32: int32(*tokenCount), Valid: true}
	}
	if modelName != "" {
		message.ModelName = sql.NullString{String: modelName, Valid: true}
	}

	unlock := s.appendLocks.lock(conversationID)
	defer unlock()

	if err := s.messages.Append(ctx, message); err != nil {
		return nil, err
	}
	if err := s.conversations.Touch(ctx, conversationID); err != nil {
		s.logger.WithError(err).WithField("conversation_id", conversationID).Warn("failed to touch conversation")
	}

	return message, nil
}

// History returns at most limit most-recent messages, oldest first, in
// provider format. Ownership must already be resolved by the caller.
func (s *ConversationService) History(ctx context.Context, conversationID string, limit int) ([]providers.Message, error) {
	messages, err := s.messages.ListRecent(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}

	history := make([]providers.Message, len(messages))
	for i, msg := range messages {
		history[i] = providers.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	return history, nil
}

// List returns the user's conversations, most recently active first
func (s *ConversationService) List(ctx context.Context, ownerID uuid.UUID) ([]*repository.Conversation, error) {
	return s.conversations.List(ctx, ownerID)
}

// Messages returns every message of an owned conversation in order
func (s *ConversationService) Messages(ctx context.Context, ownerID uuid.UUID, conversationID string) ([]repository.Message, error) {
	if _, err := s.conversations.Get(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}
	return s.messages.ListByConversation(ctx, conversationID)
}

// Delete removes an owned conversation and, by cascade, its messages
func (s *ConversationService) Delete(ctx context.Context, ownerID uuid.UUID, conversationID string) error {
	return s.conversations.Delete(ctx, ownerID, conversationID)
}

// titleFromMessage derives a conversation title from its first user message.
func titleFromMessage(message string) string {
	title := strings.TrimSpace(message)
	if title == "" {
		return "New conversation"
	}
	if runes := []rune(title); len(runes) > maxTitleLen {
		title = strings.TrimSpace(string(runes[:maxTitleLen])) + "…"
	}
	return title
}
