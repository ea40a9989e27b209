package domain

import (
	"bytes"
	"encoding/json"
)

// Degradation explains why an AnalysisResult is a fallback instead of the
// collaborator's structured answer.
type Degradation string

const (
	DegradationNone       Degradation = ""
	DegradationParse      Degradation = "parse_failed"
	DegradationEmpty      Degradation = "empty_response"
	DegradationCallFailed Degradation = "call_failed"
)

// AnalysisUnavailable is the summary shown when there is no analysis text at all.
const AnalysisUnavailable = "Analysis unavailable."

// AnalysisResult is the canonical aesthetic/hair analysis. Every field is
// optional; renderers skip the sections whose inputs are absent.
type AnalysisResult struct {
	AestheticScore          Number      `json:"aestheticScore,omitempty"`
	AestheticIntro          string      `json:"aestheticIntro,omitempty"`
	FeatureScores           ScoreMap    `json:"featureScores,omitempty"`
	PotentialScores         ScoreMap    `json:"potentialScores,omitempty"`
	NorwoodStage            Stage       `json:"norwoodStage,omitempty"`
	HairLossExplanation     string      `json:"hairLossExplanation,omitempty"`
	HairStyleRecommendation string      `json:"hairStyleRecommendation,omitempty"`
	HairHealth              string      `json:"hairHealth,omitempty"`
	HairSummary             string      `json:"hairSummary,omitempty"`
	Degradation             Degradation `json:"degradation,omitempty"`
}

// UnmarshalJSON accepts any JSON object. Text fields that arrive as another
// type keep their compact JSON text, so one odd field never costs the scores.
func (a *AnalysisResult) UnmarshalJSON(b []byte) error {
	var wire struct {
		AestheticScore          Number    `json:"aestheticScore"`
		AestheticIntro          looseText `json:"aestheticIntro"`
		FeatureScores           ScoreMap  `json:"featureScores"`
		PotentialScores         ScoreMap  `json:"potentialScores"`
		NorwoodStage            Stage     `json:"norwoodStage"`
		HairLossExplanation     looseText `json:"hairLossExplanation"`
		HairStyleRecommendation looseText `json:"hairStyleRecommendation"`
		HairHealth              looseText `json:"hairHealth"`
		HairSummary             looseText `json:"hairSummary"`
		Degradation             looseText `json:"degradation"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	*a = AnalysisResult{
		AestheticScore:          wire.AestheticScore,
		AestheticIntro:          string(wire.AestheticIntro),
		FeatureScores:           wire.FeatureScores,
		PotentialScores:         wire.PotentialScores,
		NorwoodStage:            wire.NorwoodStage,
		HairLossExplanation:     string(wire.HairLossExplanation),
		HairStyleRecommendation: string(wire.HairStyleRecommendation),
		HairHealth:              string(wire.HairHealth),
		HairSummary:             string(wire.HairSummary),
		Degradation:             Degradation(wire.Degradation),
	}
	return nil
}

// looseText decodes a JSON string as-is, null as empty and anything else as
// its compact JSON text.
type looseText string

func (t *looseText) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		*t = ""
		return nil
	case bytes.HasPrefix(trimmed, []byte(`"`)):
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*t = looseText(s)
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return err
	}
	*t = looseText(buf.String())
	return nil
}

func (a AnalysisResult) Degraded() bool {
	return a.Degradation != DegradationNone
}

// HasRadar reports whether both score maps are present and comparable.
func (a AnalysisResult) HasRadar() bool {
	return len(a.FeatureScores) > 0 && len(a.PotentialScores) > 0 && a.FeatureScores.SameKeys(a.PotentialScores)
}

// FallbackAnalysis wraps free text as a degraded result. Empty text becomes the
// fixed placeholder sentence.
func FallbackAnalysis(text string, reason Degradation) AnalysisResult {
	if text == "" {
		text = AnalysisUnavailable
		if reason == DegradationParse {
			reason = DegradationEmpty
		}
	}
	return AnalysisResult{HairSummary: text, Degradation: reason}
}

// Progress is one narrator step shown while a transform is running.
type Progress struct {
	Status   string  `json:"status"`
	Detail   string  `json:"detail"`
	Percent  float64 `json:"percent"`
	Terminal bool    `json:"terminal"`
}
