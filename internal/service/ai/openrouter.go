package ai

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kapu/ai-hair-salon-go/internal/constants"
	"github.com/kapu/ai-hair-salon-go/internal/extract"
	"github.com/kapu/ai-hair-salon-go/pkg/errors"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

const providerOpenRouter = "openrouter"

type OpenRouterConfig struct {
	APIKey        string
	BaseURL       string
	Referer       string
	Title         string
	AnalysisModel string
	ImageModel    string
	HTTPClient    *http.Client
}

// OpenRouterProvider talks to the OpenAI-compatible chat completion endpoint of
// OpenRouter with a multimodal (text + image_url) user message.
type OpenRouterProvider struct {
	client        *openai.Client
	analysisModel string
	imageModel    string
	logger        *zap.Logger
}

func NewOpenRouterProvider(cfg OpenRouterConfig, logger *zap.Logger) (*OpenRouterProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = constants.CollaboratorConfig.OpenRouterURL
	}
	referer := cfg.Referer
	if referer == "" {
		referer = constants.CollaboratorConfig.AppReferer
	}
	title := cfg.Title
	if title == "" {
		title = constants.CollaboratorConfig.AppTitle
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/"),
		option.WithHeader("HTTP-Referer", referer),
		option.WithHeader("X-Title", title),
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	client := openai.NewClient(opts...)
	return &OpenRouterProvider{
		client:        &client,
		analysisModel: firstNonEmpty(cfg.AnalysisModel, constants.CollaboratorConfig.AnalysisModel),
		imageModel:    firstNonEmpty(cfg.ImageModel, constants.CollaboratorConfig.ImageModel),
		logger:        logger,
	}, nil
}

func (p *OpenRouterProvider) Name() string {
	return providerOpenRouter
}

func (p *OpenRouterProvider) Analyze(ctx context.Context, req Request) (string, error) {
	msg, err := p.complete(ctx, p.analysisModel, req)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

func (p *OpenRouterProvider) Generate(ctx context.Context, req Request) (extract.GenerationMessage, error) {
	msg, err := p.complete(ctx, p.imageModel, req)
	if err != nil {
		return extract.GenerationMessage{}, err
	}

	// images is an OpenRouter extension the SDK does not model, so it is read
	// back from the raw message.
	raw := msg.RawJSON()
	if raw == "" {
		return extract.GenerationMessage{Content: msg.Content}, nil
	}
	out, err := extract.DecodeGenerationMessage([]byte(raw))
	if err != nil {
		p.logger.Warn("Could not decode raw generation message", zap.Error(err))
		return extract.GenerationMessage{Content: msg.Content}, nil
	}
	return out, nil
}

func (p *OpenRouterProvider) complete(ctx context.Context, model string, req Request) (openai.ChatCompletionMessage, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(req.Prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: req.Image.DataURI,
				}),
			}),
		},
	}

	p.logger.Debug("Calling OpenRouter",
		zap.String("model", model),
		zap.Int("image_bytes", req.Image.Size),
	)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		status := 0
		var apiErr *openai.Error
		if stderrors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		p.logger.Error("OpenRouter request failed", zap.String("model", model), zap.Int("status", status), zap.Error(err))
		return openai.ChatCompletionMessage{}, errors.NewAPIError("OpenRouter request failed", providerOpenRouter, status, err)
	}

	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, errors.NewAPIError("no choices in OpenRouter response", providerOpenRouter, 0, nil)
	}

	p.logger.Debug("OpenRouter response received",
		zap.String("model", model),
		zap.Int("length", len(resp.Choices[0].Message.Content)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
