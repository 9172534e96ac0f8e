package openai

import (
	"context"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"
	"github.com/conversa/conversa-backend/internal/config"
	"github.com/conversa/conversa-backend/internal/errdefs"
	"github.com/conversa/conversa-backend/internal/providers"
)

// Provider implements providers.Provider on the OpenAI API. It also speaks
// to OpenAI-compatible servers when a base URL is configured.
type Provider struct {
	config config.ProviderConfig
	client *openai.Client
}

// NewProvider creates a new OpenAI provider
func NewProvider(cfg config.ProviderConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{
		config: cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "openai"
}

// Complete performs a non-streaming completion
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	openAIReq := p.convertRequest(req)
	openAIReq.Stream = false

	resp, err := p.client.CreateChatCompletion(ctx, openAIReq)
	if err != nil {
		return nil, wrapErr(ctx, "completion", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errdefs.Provider(errors.New("completion returned no choices"))
	}

	choice := resp.Choices[0]
	return &providers.CompletionResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// StreamComplete performs a streaming completion. The goroutine stops as
// soon as ctx is cancelled, which also aborts the upstream HTTP request.
func (p *Provider) StreamComplete(ctx context.Context, req providers.CompletionRequest) (<-chan providers.StreamChunk, error) {
	openAIReq := p.convertRequest(req)
	openAIReq.Stream = true

	stream, err := p.client.CreateChatCompletionStream(ctx, openAIReq)
	if err != nil {
		return nil, wrapErr(ctx, "stream", err)
	}

	chunks := make(chan providers.StreamChunk)

	go func() {
		defer close(chunks)
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				// A deliberate cancellation by the consumer is not an
				// upstream failure; closing the channel is enough.
				if errors.Is(ctx.Err(), context.Canceled) {
					return
				}

				msg := err.Error()
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
					msg = errdefs.Timeout("stream").Error()
				}

				select {
				case chunks <- providers.StreamChunk{Error: msg}:
				case <-ctx.Done():
				}
				return
			}

			if len(response.Choices) == 0 {
				continue
			}

			choice := response.Choices[0]
			chunk := providers.StreamChunk{
				Delta:        choice.Delta.Content,
				Model:        response.Model,
				FinishReason: string(choice.FinishReason),
			}

			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}

			if chunk.FinishReason != "" {
				return
			}
		}
	}()

	return chunks, nil
}

// Embed computes an embedding vector for the given text
func (p *Provider) Embed(ctx context.Context, req providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	model := req.Model
	if model == "" {
		model = p.config.EmbeddingModel
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{req.Text},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, wrapErr(ctx, "embedding", err)
	}

	if len(resp.Data) == 0 {
		return nil, errdefs.Provider(errors.New("embedding returned no data"))
	}

	return &providers.EmbeddingResponse{
		Vector: resp.Data[0].Embedding,
		Model:  string(resp.Model),
		Tokens: resp.Usage.TotalTokens,
	}, nil
}

// convertRequest converts internal request to OpenAI request
func (p *Provider) convertRequest(req providers.CompletionRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	model := req.Model
	if model == "" {
		model = p.config.DefaultModel
	}

	openAIReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   req.Stream,
	}

	if req.Temperature != nil {
		openAIReq.Temperature = *req.Temperature
	}

	if req.MaxTokens != nil {
		openAIReq.MaxTokens = *req.MaxTokens
	}

	return openAIReq
}

// wrapErr classifies an upstream failure: a blown deadline is a
// TimeoutError, everything else a ProviderError.
func wrapErr(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errdefs.Timeout(op)
	}
	return errdefs.Provider(err)
}
