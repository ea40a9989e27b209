package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kapu/ai-hair-salon-go/internal/constants"
	"github.com/kapu/ai-hair-salon-go/internal/domain"
	"github.com/kapu/ai-hair-salon-go/internal/prompt"
	"github.com/kapu/ai-hair-salon-go/internal/render"
	"github.com/kapu/ai-hair-salon-go/internal/session"
	"github.com/kapu/ai-hair-salon-go/pkg/errors"
)

//go:embed templates/*.tmpl
var reportTemplateFS embed.FS

const reportTemplate = "report.html.tmpl"

const HTMLContentType = "text/html; charset=utf-8"

var (
	reportTemplates *template.Template
	reportOnce      sync.Once
	reportErr       error
)

const (
	defaultIntro      = "Analysis generated based on professional facial anthropometric standards."
	defaultHairStyle  = "Detailed styling advice provided above."
	defaultHairLoss   = "Analysis of hairline and density."
	defaultHairHealth = "Analysis of hair quality."
)

// Artifact is a downloadable file.
type Artifact struct {
	Filename    string
	ContentType string
	Body        []byte
	// RedirectURL is set instead of Body when the image lives at a remote URL.
	RedirectURL string
}

type reportView struct {
	Title       string
	ScoreText   string
	ScoreFill   float64
	BeforeImage template.URL
	AfterImage  template.URL
	Intro       string
	Summary     string
	Features    []string
	Radar       template.HTML
	Severity    template.HTML
	HairStyle   string
	HairLoss    string
	HairHealth  string
	GeneratedAt string
}

// Report renders the self-contained HTML protocol for a finished session. It
// depends only on the snapshot and makes no network calls.
func Report(snap session.Snapshot, now time.Time) (Artifact, error) {
	body, err := View(snap, now)
	if err != nil {
		return Artifact{}, err
	}

	return Artifact{
		Filename:    fmt.Sprintf("%s-%d.html", constants.ReportConfig.Kind, now.UnixMilli()),
		ContentType: HTMLContentType,
		Body:        body,
	}, nil
}

// View renders the report page with its radar and severity fragments for
// display in the results screen.
func View(snap session.Snapshot, now time.Time) ([]byte, error) {
	if missing := missingForReport(snap); len(missing) > 0 {
		return nil, errors.NewExportPreconditionError(missing)
	}

	reportOnce.Do(func() {
		reportTemplates, reportErr = template.New("report").ParseFS(reportTemplateFS, "templates/*.tmpl")
	})
	if reportErr != nil {
		return nil, fmt.Errorf("parse report template: %w", reportErr)
	}

	var buf bytes.Buffer
	if err := reportTemplates.ExecuteTemplate(&buf, reportTemplate, buildView(snap, now)); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// Image returns the generated image as a download. Data URIs are decoded;
// remote images are handed back as a redirect target and never fetched.
func Image(snap session.Snapshot, now time.Time) (Artifact, error) {
	if snap.Generated == nil || snap.Generated.Ref == "" {
		return Artifact{}, errors.NewExportPreconditionError([]string{"generatedImage"})
	}

	img := *snap.Generated
	ext := img.Extension()
	if ext == "" {
		ext = constants.ReportConfig.DefaultImgExt
	}
	filename := fmt.Sprintf("%s-%d.%s", constants.ReportConfig.ImagePrefix, now.UnixMilli(), ext)

	if !img.IsDataURI() {
		if !isRemoteURL(img.Ref) {
			return Artifact{}, errors.NewExportPreconditionError([]string{"generatedImage"})
		}
		return Artifact{Filename: filename, RedirectURL: img.Ref}, nil
	}

	mimeType, data, err := domain.ParseDataURI(img.Ref)
	if err != nil {
		precondErr := errors.NewExportPreconditionError([]string{"generatedImage"})
		precondErr.WithCause(err)
		return Artifact{}, precondErr
	}
	return Artifact{Filename: filename, ContentType: mimeType, Body: data}, nil
}

func missingForReport(snap session.Snapshot) []string {
	var missing []string
	if snap.Source == nil || snap.Source.DataURI == "" {
		missing = append(missing, "sourceImage")
	}
	if snap.Generated == nil || snap.Generated.Ref == "" {
		missing = append(missing, "generatedImage")
	}
	if snap.Analysis == nil {
		missing = append(missing, "analysis")
	}
	return missing
}

func buildView(snap session.Snapshot, now time.Time) reportView {
	a := *snap.Analysis
	title := "Client"
	if snap.Demographics != nil {
		title = snap.Demographics.Title()
	}

	features := a.FeatureScores.Keys()
	if len(features) == 0 {
		features = prompt.DefaultFeatures
	}

	score := float64(a.AestheticScore)
	return reportView{
		Title:       title,
		ScoreText:   strconv.FormatFloat(score, 'f', -1, 64),
		ScoreFill:   ScoreFill(score),
		BeforeImage: safeImageURL(snap.Source.DataURI),
		AfterImage:  safeImageURL(snap.Generated.Ref),
		Intro:       orDefault(a.AestheticIntro, defaultIntro),
		Summary:     a.HairSummary,
		Features:    features,
		Radar:       render.Radar(a.FeatureScores, a.PotentialScores),
		Severity:    render.SeverityScale(a.NorwoodStage),
		HairStyle:   orDefault(a.HairStyleRecommendation, defaultHairStyle),
		HairLoss:    orDefault(a.HairLossExplanation, defaultHairLoss),
		HairHealth:  orDefault(a.HairHealth, defaultHairHealth),
		GeneratedAt: now.Format("2006-01-02"),
	}
}

// ScoreFill is the score bar width in percent, clamped to [0,100].
func ScoreFill(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// safeImageURL passes through only http(s) URLs and image data URIs; anything
// else renders as an empty src.
func safeImageURL(ref string) template.URL {
	if isRemoteURL(ref) || strings.HasPrefix(ref, "data:image/") {
		return template.URL(ref)
	}
	return ""
}

func isRemoteURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
