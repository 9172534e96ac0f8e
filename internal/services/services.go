package services

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/conversa/conversa-backend/internal/providers"
	"github.com/conversa/conversa-backend/internal/repository"
	"github.com/conversa/conversa-backend/internal/tokens"
)

// Services aggregates the completion pipeline's service layer.
type Services struct {
	Conversations *ConversationService
	Gateway       Gateway
	Usage         repository.UsageRepository
}

// NewServices wires the service layer together
func NewServices(
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	usageRepo repository.UsageRepository,
	provider providers.Provider,
	providerTimeout time.Duration,
	historyLimit int,
	logger *logrus.Logger,
) *Services {
	conversations := NewConversationService(conversationRepo, messageRepo, logger)
	gateway := NewCompletionGateway(
		conversations,
		usageRepo,
		provider,
		tokens.NewEstimator(),
		providerTimeout,
		historyLimit,
		logger,
	)

	return &Services{
		Conversations: conversations,
		Gateway:       gateway,
		Usage:         usageRepo,
	}
}
