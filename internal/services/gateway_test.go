package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/conversa/conversa-backend/internal/errdefs"
	"github.com/conversa/conversa-backend/internal/providers"
	"github.com/conversa/conversa-backend/internal/repository"
	"github.com/conversa/conversa-backend/internal/tokens"
)

func TestCompletionGatewayImplementsInterface(t *testing.T) {
	var _ Gateway = (*CompletionGateway)(nil)
}

type gatewayFixture struct {
	gateway  *CompletionGateway
	provider *stubProvider
	messages *memMessageRepo
	usage    *memUsageRepo
}

func newGatewayFixture(provider *stubProvider) *gatewayFixture {
	conversations := newMemConversationRepo()
	messages := newMemMessageRepo()
	usage := newMemUsageRepo()
	svc := NewConversationService(conversations, messages, testLogger())
	gateway := NewCompletionGateway(svc, usage, provider, tokens.NewEstimator(), time.Minute, 20, testLogger())
	return &gatewayFixture{gateway: gateway, provider: provider, messages: messages, usage: usage}
}

func TestCompleteSyncHappyPath(t *testing.T) {
	fx := newGatewayFixture(&stubProvider{})
	user := uuid.New()

	result, err := fx.gateway.Complete(context.Background(), TurnRequest{
		UserID:  user,
		Message: "Hi",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.ConversationID)
	assert.Equal(t, "hello from stub", result.Content)
	assert.Equal(t, "stub-model", result.Model)
	assert.Equal(t, 12, result.Tokens)

	all, err := fx.messages.ListByConversation(context.Background(), result.ConversationID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, repository.RoleUser, all[0].Role)
	assert.Equal(t, repository.RoleAssistant, all[1].Role)
	require.True(t, all[1].TokenCount.Valid)

	// Usage counter equals the assistant message's token count.
	assert.Equal(t, int64(all[1].TokenCount.Int32), fx.usage.total(user))
}

func TestCompleteValidatesInput(t *testing.T) {
	fx := newGatewayFixture(&stubProvider{})

	_, err := fx.gateway.Complete(context.Background(), TurnRequest{UserID: uuid.New(), Message: ""})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))

	_, err = fx.gateway.Complete(context.Background(), TurnRequest{Message: "no user"})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
}

func TestProviderFailureKeepsUserMessage(t *testing.T) {
	boom := errdefs.Provider(errors.New("upstream down"))
	fx := newGatewayFixture(&stubProvider{
		completeFn: func(providers.CompletionRequest) (*providers.CompletionResponse, error) {
			return nil, boom
		},
	})
	user := uuid.New()

	_, err := fx.gateway.Complete(context.Background(), TurnRequest{UserID: user, Message: "Hi"})
	require.Error(t, err)
	assert.True(t, errdefs.IsProvider(err))

	// The user's message is durable; only the response was lost.
	require.Len(t, fx.messages.messages, 1)
	assert.Equal(t, repository.RoleUser, fx.messages.messages[0].Role)
	assert.Zero(t, fx.usage.total(user))
}

func TestPrepareBoundsHistory(t *testing.T) {
	fx := newGatewayFixture(&stubProvider{})
	user := uuid.New()

	turn, err := fx.gateway.Prepare(context.Background(), TurnRequest{UserID: user, Message: "first"})
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		_, err := fx.gateway.Prepare(context.Background(), TurnRequest{
			UserID:         user,
			ConversationID: turn.Conversation.ID,
			Message:        "again",
		})
		require.NoError(t, err)
	}

	last, err := fx.gateway.Prepare(context.Background(), TurnRequest{
		UserID:         user,
		ConversationID: turn.Conversation.ID,
		Message:        "latest",
	})
	require.NoError(t, err)

	assert.Len(t, last.Request.Messages, 20)
	assert.Equal(t, "latest", last.Request.Messages[len(last.Request.Messages)-1].Content)
}

func TestResumeRebuildsTurnWithoutAppending(t *testing.T) {
	fx := newGatewayFixture(&stubProvider{})
	user := uuid.New()

	turn, err := fx.gateway.Prepare(context.Background(), TurnRequest{UserID: user, Message: "queued message"})
	require.NoError(t, err)
	countBefore := len(fx.messages.messages)

	resumed, err := fx.gateway.Resume(context.Background(), user, turn.Conversation.ID, ModelOptions{Model: "stub-model"})
	require.NoError(t, err)

	assert.Len(t, fx.messages.messages, countBefore)
	require.NotEmpty(t, resumed.Request.Messages)
	assert.Equal(t, "queued message", resumed.Request.Messages[len(resumed.Request.Messages)-1].Content)
}

func TestResumeChecksOwnership(t *testing.T) {
	fx := newGatewayFixture(&stubProvider{})
	user := uuid.New()

	turn, err := fx.gateway.Prepare(context.Background(), TurnRequest{UserID: user, Message: "mine"})
	require.NoError(t, err)

	_, err = fx.gateway.Resume(context.Background(), uuid.New(), turn.Conversation.ID, ModelOptions{})
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestStreamSetsStreamFlag(t *testing.T) {
	provider := &stubProvider{chunks: []providers.StreamChunk{{Delta: "hi", FinishReason: "stop"}}}
	fx := newGatewayFixture(provider)

	turn, err := fx.gateway.Prepare(context.Background(), TurnRequest{UserID: uuid.New(), Message: "Hi"})
	require.NoError(t, err)

	chunks, streamCtx, cancel, err := fx.gateway.Stream(context.Background(), turn)
	require.NoError(t, err)
	defer cancel()

	// The stream context is bounded by the provider timeout.
	_, hasDeadline := streamCtx.Deadline()
	assert.True(t, hasDeadline)

	for range chunks {
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.True(t, provider.lastRequest.Stream)
}

func TestFinishEstimatesWhenUnreported(t *testing.T) {
	fx := newGatewayFixture(&stubProvider{})
	user := uuid.New()

	turn, err := fx.gateway.Prepare(context.Background(), TurnRequest{UserID: user, Message: "Hi"})
	require.NoError(t, err)

	message, accounted, err := fx.gateway.Finish(context.Background(), turn, "a streamed answer with several words in it", 0, "gpt-4o-mini")
	require.NoError(t, err)

	assert.Greater(t, accounted, 0)
	require.True(t, message.TokenCount.Valid)
	assert.Equal(t, int32(accounted), message.TokenCount.Int32)
	assert.Equal(t, int64(accounted), fx.usage.total(user))
}

func TestEmbed(t *testing.T) {
	fx := newGatewayFixture(&stubProvider{})

	resp, err := fx.gateway.Embed(context.Background(), EmbedRequest{UserID: uuid.New(), Text: "embed me"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, resp.Vector)
	assert.Equal(t, 3, resp.Tokens)

	_, err = fx.gateway.Embed(context.Background(), EmbedRequest{UserID: uuid.New(), Text: ""})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
}

func TestClassifyTimeout(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	err := classify(ctx, "completion", errors.New("canceled"))
	assert.True(t, errdefs.IsTimeout(err))
	assert.True(t, errdefs.Retryable(err))
}
