package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
	"github.com/kirillkom/medhelp-assistant/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
}

func New(baseURL, genModel, embedModel string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Ping checks that the model server answers and has both configured models pulled.
func (c *Client) Ping(ctx context.Context) error {
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := c.getJSON(ctx, "/api/tags", &tags, "tags"); err != nil {
		return toDomainError("ollama tags", "", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	for _, model := range []string{c.genModel, c.embedModel} {
		if !hasModel(names, model) {
			return domain.WrapError(domain.ErrUnavailable, "ollama tags",
				fmt.Errorf("model %q is not pulled on the ollama server", model))
		}
	}
	return nil
}

// Generator implements chat completion over /api/chat.
type Generator struct {
	client   *Client
	executor *resilience.Executor
}

// NewGenerator wraps client. executor may be nil.
func NewGenerator(client *Client, executor *resilience.Executor) *Generator {
	return &Generator{client: client, executor: executor}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

func (g *Generator) Generate(ctx context.Context, messages []domain.ChatMessage, opts domain.GenerationOptions) (string, error) {
	if len(messages) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "ollama chat", fmt.Errorf("no messages"))
	}

	req := chatRequest{
		Model:    g.client.genModel,
		Messages: make([]chatMessage, 0, len(messages)),
		Stream:   false,
		Options: map[string]any{
			"temperature": opts.Temperature,
		},
	}
	if opts.MaxTokens > 0 {
		req.Options["num_predict"] = opts.MaxTokens
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	var resp chatResponse
	err := run(ctx, g.executor, "ollama.chat", func(callCtx context.Context) error {
		resp = chatResponse{}
		return g.client.postJSON(callCtx, "/api/chat", req, &resp, "chat")
	})
	if err != nil {
		return "", toDomainError("ollama chat", g.client.genModel, err)
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

// Embedder builds query vectors over /api/embed.
type Embedder struct {
	client   *Client
	executor *resilience.Executor
}

// NewEmbedder wraps client. executor may be nil.
func NewEmbedder(client *Client, executor *resilience.Executor) *Embedder {
	return &Embedder{client: client, executor: executor}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := run(ctx, e.executor, "ollama.embed", func(callCtx context.Context) error {
		response.Embeddings = nil
		return e.client.postJSON(callCtx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, toDomainError("ollama embed", e.client.embedModel, err)
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func run(ctx context.Context, executor *resilience.Executor, operation string, fn func(context.Context) error) error {
	if executor == nil {
		return fn(ctx)
	}
	return executor.Execute(ctx, operation, fn, classifyError)
}
