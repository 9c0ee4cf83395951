package narrative

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAIClient talks to an OpenAI-compatible chat completions API
type OpenAIClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

var (
	_ Completer    = (*OpenAIClient)(nil)
	_ KeyValidator = (*OpenAIClient)(nil)
)

func NewOpenAIClient(baseURL string, timeout time.Duration) *OpenAIClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &OpenAIClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

func (c *OpenAIClient) client(apiKey string) openai.Client {
	return openai.NewClient(
		option.WithBaseURL(c.baseURL),
		option.WithAPIKey(strings.TrimSpace(apiKey)),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(c.timeout),
	)
}

func (c *OpenAIClient) Complete(ctx context.Context, apiKey, model, system, user string) (string, error) {
	client := c.client(apiKey)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", translate(err)
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// ValidateKey lists models with the key; a 401/403 means the key is unusable
func (c *OpenAIClient) ValidateKey(ctx context.Context, apiKey string) error {
	if strings.TrimSpace(apiKey) == "" {
		return ErrInvalidKey
	}

	client := c.client(apiKey)
	if _, err := client.Models.List(ctx); err != nil {
		err = translate(err)
		if Classify(err) == ClassAuth {
			return fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return fmt.Errorf("failed to validate API key: %w", err)
	}
	return nil
}

func translate(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	}
	return err
}
