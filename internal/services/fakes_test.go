package services

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/conversa/conversa-backend/internal/errdefs"
	"github.com/conversa/conversa-backend/internal/providers"
	"github.com/conversa/conversa-backend/internal/repository"
)

// In-memory fakes for the repository interfaces. The message fake computes
// the next sequence number with a deliberate read-then-write gap so that a
// missing per-conversation lock shows up as duplicate sequence numbers.

type memConversationRepo struct {
	mu            sync.Mutex
	conversations map[string]*repository.Conversation
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{conversations: make(map[string]*repository.Conversation)}
}

func (r *memConversationRepo) Create(ctx context.Context, conversation *repository.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conversation.ID == "" {
		conversation.ID = uuid.New().String()
	}
	conversation.CreatedAt = time.Now()
	conversation.UpdatedAt = conversation.CreatedAt
	clone := *conversation
	r.conversations[conversation.ID] = &clone
	return nil
}

func (r *memConversationRepo) Get(ctx context.Context, ownerID uuid.UUID, id string) (*repository.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversation, ok := r.conversations[id]
	if !ok || conversation.OwnerID != ownerID {
		return nil, errdefs.NotFound("conversation")
	}
	clone := *conversation
	return &clone, nil
}

func (r *memConversationRepo) List(ctx context.Context, ownerID uuid.UUID) ([]*repository.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*repository.Conversation
	for _, conversation := range r.conversations {
		if conversation.OwnerID == ownerID {
			clone := *conversation
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memConversationRepo) Touch(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conversation, ok := r.conversations[id]; ok {
		conversation.UpdatedAt = time.Now()
	}
	return nil
}

func (r *memConversationRepo) Delete(ctx context.Context, ownerID uuid.UUID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversation, ok := r.conversations[id]
	if !ok || conversation.OwnerID != ownerID {
		return errdefs.NotFound("conversation")
	}
	delete(r.conversations, id)
	return nil
}

type memMessageRepo struct {
	mu       sync.Mutex
	messages []repository.Message
	lastSeq  map[string]int64
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{lastSeq: make(map[string]int64)}
}

func (r *memMessageRepo) Append(ctx context.Context, message *repository.Message) error {
	r.mu.Lock()
	next := r.lastSeq[message.ConversationID] + 1
	r.mu.Unlock()

	// Widen the read-then-write window; only the service's per-conversation
	// lock keeps concurrent appends from colliding here.
	runtime.Gosched()

	r.mu.Lock()
	defer r.mu.Unlock()
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	message.Seq = next
	message.CreatedAt = time.Now()
	r.lastSeq[message.ConversationID] = next
	r.messages = append(r.messages, *message)
	return nil
}

func (r *memMessageRepo) Get(ctx context.Context, id string) (*repository.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		if r.messages[i].ID == id {
			clone := r.messages[i]
			return &clone, nil
		}
	}
	return nil, errdefs.NotFound("message")
}

func (r *memMessageRepo) ListRecent(ctx context.Context, conversationID string, limit int) ([]repository.Message, error) {
	all, _ := r.ListByConversation(ctx, conversationID)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (r *memMessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]repository.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.Message
	for _, message := range r.messages {
		if message.ConversationID == conversationID {
			out = append(out, message)
		}
	}
	return out, nil
}

type memUsageRepo struct {
	mu     sync.Mutex
	totals map[uuid.UUID]int64
}

func newMemUsageRepo() *memUsageRepo {
	return &memUsageRepo{totals: make(map[uuid.UUID]int64)}
}

func (r *memUsageRepo) Increment(ctx context.Context, userID uuid.UUID, tokens int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals[userID] += int64(tokens)
	return nil
}

func (r *memUsageRepo) Stats(ctx context.Context, userID uuid.UUID) (*repository.UsageStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &repository.UsageStats{TotalTokens: r.totals[userID]}, nil
}

func (r *memUsageRepo) total(userID uuid.UUID) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totals[userID]
}

// stubProvider returns canned responses and records cancellation.
type stubProvider struct {
	mu          sync.Mutex
	completeFn  func(req providers.CompletionRequest) (*providers.CompletionResponse, error)
	chunks      []providers.StreamChunk
	embedResp   *providers.EmbeddingResponse
	embedErr    error
	lastRequest providers.CompletionRequest
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	p.mu.Lock()
	p.lastRequest = req
	p.mu.Unlock()
	if p.completeFn != nil {
		return p.completeFn(req)
	}
	return &providers.CompletionResponse{
		Content:      "hello from stub",
		Model:        "stub-model",
		FinishReason: "stop",
		Usage:        providers.Usage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12},
	}, nil
}

func (p *stubProvider) StreamComplete(ctx context.Context, req providers.CompletionRequest) (<-chan providers.StreamChunk, error) {
	p.mu.Lock()
	p.lastRequest = req
	chunks := p.chunks
	p.mu.Unlock()

	out := make(chan providers.StreamChunk)
	go func() {
		defer close(out)
		for _, chunk := range chunks {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.FinishReason != "" {
				return
			}
		}
		<-ctx.Done()
	}()
	return out, nil
}

func (p *stubProvider) Embed(ctx context.Context, req providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	if p.embedResp != nil {
		return p.embedResp, nil
	}
	return &providers.EmbeddingResponse{Vector: []float32{0.1, 0.2}, Model: "stub-embed", Tokens: 3}, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}
