package ai

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/kapu/ai-hair-salon-go/internal/constants"
	"github.com/kapu/ai-hair-salon-go/internal/domain"
	"github.com/kapu/ai-hair-salon-go/internal/extract"
	"github.com/kapu/ai-hair-salon-go/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const providerGemini = "gemini"

// GeminiProvider calls the Gemini API directly. Generated inline images are
// turned into data URIs and presented as the images list, so the same
// extractor handles both providers.
type GeminiProvider struct {
	client        *genai.Client
	analysisModel string
	imageModel    string
	logger        *zap.Logger
}

func NewGeminiProvider(ctx context.Context, apiKey, analysisModel, imageModel string, logger *zap.Logger) (*GeminiProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client:        client,
		analysisModel: firstNonEmpty(analysisModel, constants.CollaboratorConfig.GeminiAnalysis),
		imageModel:    firstNonEmpty(imageModel, constants.CollaboratorConfig.GeminiImage),
		logger:        logger,
	}, nil
}

func (g *GeminiProvider) Name() string {
	return providerGemini
}

func (g *GeminiProvider) Analyze(ctx context.Context, req Request) (string, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	resp, err := g.generate(ctx, g.analysisModel, req, config)
	if err != nil {
		return "", err
	}
	return extractTextFromGeminiResponse(resp), nil
}

func (g *GeminiProvider) Generate(ctx context.Context, req Request) (extract.GenerationMessage, error) {
	config := &genai.GenerateContentConfig{}
	config.ResponseModalities = append(config.ResponseModalities, "TEXT", "IMAGE")

	resp, err := g.generate(ctx, g.imageModel, req, config)
	if err != nil {
		return extract.GenerationMessage{}, err
	}
	return messageFromGeminiResponse(resp), nil
}

func (g *GeminiProvider) generate(ctx context.Context, model string, req Request, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if g.client == nil {
		return nil, fmt.Errorf("gemini client not initialized")
	}

	contents, err := geminiContents(req)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("Calling Gemini",
		zap.String("model", model),
		zap.Int("image_bytes", req.Image.Size),
	)

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		status := 0
		var apiErr genai.APIError
		if stderrors.As(err, &apiErr) {
			status = apiErr.Code
		}
		g.logger.Error("Gemini generation failed", zap.String("model", model), zap.Int("status", status), zap.Error(err))
		return nil, errors.NewAPIError("Gemini request failed", providerGemini, status, err)
	}
	return resp, nil
}

func geminiContents(req Request) ([]*genai.Content, error) {
	mimeType, data, err := domain.ParseDataURI(req.Image.DataURI)
	if err != nil {
		return nil, errors.NewValidationError("source image is not a data URI", "image", nil)
	}

	parts := []*genai.Part{
		genai.NewPartFromText(req.Prompt),
		genai.NewPartFromBytes(data, mimeType),
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil
}

func extractTextFromGeminiResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return ""
	}

	var texts []string
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			texts = append(texts, part.Text)
		}
	}

	return strings.Join(texts, "")
}

// messageFromGeminiResponse maps the first candidate onto the chat-completion
// shape: text parts become content, inline image parts become data-URI entries
// of images.
func messageFromGeminiResponse(resp *genai.GenerateContentResponse) extract.GenerationMessage {
	msg := extract.GenerationMessage{Content: extractTextFromGeminiResponse(resp)}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return msg
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		if !strings.HasPrefix(part.InlineData.MIMEType, "image/") {
			continue
		}
		uri := "data:" + part.InlineData.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(part.InlineData.Data)
		raw, err := json.Marshal(uri)
		if err != nil {
			continue
		}
		msg.Images = append(msg.Images, raw)
	}
	return msg
}
