package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/conversa/conversa-backend/internal/errdefs"
	"github.com/conversa/conversa-backend/internal/providers"
	"github.com/conversa/conversa-backend/internal/repository"
	"github.com/conversa/conversa-backend/internal/tokens"
)

// CompletionGateway implements Gateway. It is mode-agnostic glue: the
// drivers (REST handler, streaming session, async worker) differ only in how
// they consume the provider's output.
type CompletionGateway struct {
	conversations *ConversationService
	usage         repository.UsageRepository
	provider      providers.Provider
	estimator     *tokens.Estimator
	timeout       time.Duration
	historyLimit  int
	logger        *logrus.Logger
}

// NewCompletionGateway creates a new completion gateway
func NewCompletionGateway(
	conversations *ConversationService,
	usage repository.UsageRepository,
	provider providers.Provider,
	estimator *tokens.Estimator,
	timeout time.Duration,
	historyLimit int,
	logger *logrus.Logger,
) *CompletionGateway {
	return &CompletionGateway{
		conversations: conversations,
		usage:         usage,
		provider:      provider,
		estimator:     estimator,
		timeout:       timeout,
		historyLimit:  historyLimit,
		logger:        logger,
	}
}

// Prepare resolves the conversation, appends the user message, and builds
// the provider request from bounded history. The user message is durable
// before any provider call, so a downstream failure never loses the request.
func (g *CompletionGateway) Prepare(ctx context.Context, req TurnRequest) (*Turn, error) {
	if req.UserID == uuid.Nil {
		return nil, errdefs.Validationf("user id is required")
	}
	if req.Message == "" {
		return nil, errdefs.Validationf("message must not be empty")
	}

	conversation, created, err := g.conversations.Resolve(ctx, req.UserID, req.ConversationID, req.Message)
	if err != nil {
		return nil, err
	}

	userMessage, err := g.conversations.Append(ctx, conversation.ID, repository.RoleUser, req.Message, nil, "")
	if err != nil {
		return nil, err
	}

	history, err := g.conversations.History(ctx, conversation.ID, g.historyLimit)
	if err != nil {
		return nil, err
	}

	return &Turn{
		Conversation: conversation,
		Created:      created,
		UserMessage:  userMessage,
		Request: providers.CompletionRequest{
			Messages:    history,
			Model:       req.Options.Model,
			MaxTokens:   req.Options.MaxTokens,
			Temperature: req.Options.Temperature,
		},
	}, nil
}

// Resume rebuilds a Turn whose user message is already persisted.
func (g *CompletionGateway) Resume(ctx context.Context, userID uuid.UUID, conversationID string, opts ModelOptions) (*Turn, error) {
	conversation, err := g.conversations.conversations.Get(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	history, err := g.conversations.History(ctx, conversation.ID, g.historyLimit)
	if err != nil {
		return nil, err
	}

	return &Turn{
		Conversation: conversation,
		Request: providers.CompletionRequest{
			Messages:    history,
			Model:       opts.Model,
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
		},
	}, nil
}

// Complete runs a full synchronous turn end to end.
func (g *CompletionGateway) Complete(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	turn, err := g.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return g.CompleteTurn(ctx, turn)
}

// CompleteTurn calls the provider synchronously for a prepared turn and
// persists the result.
func (g *CompletionGateway) CompleteTurn(ctx context.Context, turn *Turn) (*TurnResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.provider.Complete(callCtx, turn.Request)
	if err != nil {
		return nil, classify(callCtx, "completion", err)
	}

	message, accounted, err := g.Finish(ctx, turn, resp.Content, resp.Usage.TotalTokens, resp.Model)
	if err != nil {
		return nil, err
	}

	return &TurnResult{
		ConversationID: turn.Conversation.ID,
		Message:        message,
		Content:        resp.Content,
		Model:          resp.Model,
		FinishReason:   resp.FinishReason,
		Tokens:         accounted,
	}, nil
}

// Stream starts the provider stream for a prepared turn. The returned
// cancel aborts the upstream request; stopping a stream must cancel the
// provider call, not just stop consuming locally.
func (g *CompletionGateway) Stream(ctx context.Context, turn *Turn) (<-chan providers.StreamChunk, context.Context, context.CancelFunc, error) {
	streamCtx, cancel := context.WithTimeout(ctx, g.timeout)

	request := turn.Request
	request.Stream = true

	chunks, err := g.provider.StreamComplete(streamCtx, request)
	if err != nil {
		cancel()
		return nil, nil, nil, classify(streamCtx, "stream", err)
	}

	return chunks, streamCtx, cancel, nil
}

// Finish appends the assistant message and increments usage. Callers invoke
// it exactly once per successful turn; stopped or errored turns never reach
// it, so they contribute nothing to the counter.
func (g *CompletionGateway) Finish(ctx context.Context, turn *Turn, content string, reportedTokens int, model string) (*repository.Message, int, error) {
	accounted := reportedTokens
	if accounted <= 0 {
		accounted = g.estimator.Count(model, content)
	}

	message, err := g.conversations.Append(ctx, turn.Conversation.ID, repository.RoleAssistant, content, &accounted, model)
	if err != nil {
		return nil, 0, err
	}

	if err := g.usage.Increment(ctx, turn.Conversation.OwnerID, accounted); err != nil {
		return nil, 0, err
	}

	g.logger.WithFields(logrus.Fields{
		"conversation_id": turn.Conversation.ID,
		"user_id":         turn.Conversation.OwnerID,
		"tokens":          accounted,
		"model":           model,
	}).Info("completion finished")

	return message, accounted, nil
}

// Embed computes an embedding for the user's text.
func (g *CompletionGateway) Embed(ctx context.Context, req EmbedRequest) (*providers.EmbeddingResponse, error) {
	if req.Text == "" {
		return nil, errdefs.Validationf("text must not be empty")
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.provider.Embed(callCtx, providers.EmbeddingRequest{
		Text:  req.Text,
		Model: req.Model,
	})
	if err != nil {
		return nil, classify(callCtx, "embedding", err)
	}

	return resp, nil
}

// classify normalizes provider failures: a blown deadline becomes a
// TimeoutError, anything not already in the taxonomy a ProviderError.
func classify(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errdefs.Timeout(op)
	}
	if errdefs.IsTimeout(err) || errdefs.IsProvider(err) {
		return err
	}
	return errdefs.Provider(err)
}
