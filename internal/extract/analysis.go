package extract

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kapu/ai-hair-salon-go/internal/domain"
)

// codeFence matches an opening ```json fence (with its newline) or a closing
// ``` fence (with the newline before it).
var codeFence = regexp.MustCompile("```json\\n?|\\n?```")

// StripCodeFences removes markdown code fences the model sometimes wraps JSON in.
func StripCodeFences(text string) string {
	return strings.TrimSpace(codeFence.ReplaceAllString(text, ""))
}

// ParseAnalysis turns the analysis collaborator's message content into an
// AnalysisResult. It never fails: text that is not a JSON object comes back as
// the hair summary of a degraded result.
func ParseAnalysis(content string) domain.AnalysisResult {
	cleaned := StripCodeFences(content)
	if cleaned == "" {
		return domain.FallbackAnalysis("", domain.DegradationEmpty)
	}

	if !strings.HasPrefix(cleaned, "{") {
		return domain.FallbackAnalysis(cleaned, domain.DegradationParse)
	}

	var result domain.AnalysisResult
	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	if err := dec.Decode(&result); err != nil {
		return domain.FallbackAnalysis(cleaned, domain.DegradationParse)
	}
	if dec.More() {
		return domain.FallbackAnalysis(cleaned, domain.DegradationParse)
	}

	// The payload must not be able to claim it is degraded.
	result.Degradation = domain.DegradationNone
	return result
}
