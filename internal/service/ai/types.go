package ai

import (
	"context"

	"github.com/kapu/ai-hair-salon-go/internal/domain"
	"github.com/kapu/ai-hair-salon-go/internal/extract"
)

// Request is the payload of both collaborator calls: the photo, the rendered
// instruction and the client context it was rendered from.
type Request struct {
	Image        domain.SourceImage
	Prompt       string
	Demographics domain.Demographics
}

// Analyzer returns the raw text content of the analysis answer.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (string, error)
}

// Generator returns the message carrying the generated image.
type Generator interface {
	Generate(ctx context.Context, req Request) (extract.GenerationMessage, error)
}

// Provider is one upstream model vendor serving both calls.
type Provider interface {
	Analyzer
	Generator
	Name() string
}
