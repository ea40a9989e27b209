package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"github.com/kapu/ai-hair-salon-go/internal/constants"
	"github.com/kapu/ai-hair-salon-go/internal/domain"
	"github.com/kapu/ai-hair-salon-go/internal/util"
	"github.com/kapu/ai-hair-salon-go/pkg/errors"
	"go.uber.org/zap"
)

// GenerationMessage is choices[0].message of the generation response, reduced to
// the two fields that may carry the image.
type GenerationMessage struct {
	Content string
	Images  []json.RawMessage
}

type rawGenerationMessage struct {
	Content json.RawMessage   `json:"content"`
	Images  []json.RawMessage `json:"images"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// DecodeGenerationMessage reads a chat-completion message object. content may
// be a string or a list of typed parts; text parts are concatenated.
func DecodeGenerationMessage(raw []byte) (GenerationMessage, error) {
	var msg rawGenerationMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return GenerationMessage{}, err
	}

	out := GenerationMessage{Images: msg.Images}
	content := bytes.TrimSpace(msg.Content)
	switch {
	case len(content) == 0 || bytes.Equal(content, []byte("null")):
	case content[0] == '"':
		if err := json.Unmarshal(content, &out.Content); err != nil {
			return GenerationMessage{}, err
		}
	case content[0] == '[':
		var parts []contentPart
		if err := json.Unmarshal(content, &parts); err == nil {
			var sb strings.Builder
			for _, p := range parts {
				if p.Type == "text" || p.Type == "" {
					sb.WriteString(p.Text)
				}
			}
			out.Content = sb.String()
		}
	}
	return out, nil
}

type imageEntryKind int

const (
	entryUnrecognized imageEntryKind = iota
	entryBareString
	entryURLField
	entryNestedURL
)

func (k imageEntryKind) String() string {
	switch k {
	case entryBareString:
		return "bare_string"
	case entryURLField:
		return "url_field"
	case entryNestedURL:
		return "nested_image_url"
	default:
		return "unrecognized"
	}
}

type imageEntry struct {
	kind imageEntryKind
	ref  string
}

type imageObject struct {
	URL      json.RawMessage `json:"url"`
	ImageURL json.RawMessage `json:"image_url"`
}

// classifyImageEntry decides which of the known shapes an images[] element has.
// Empty strings count as absent, the same as a missing field.
func classifyImageEntry(raw json.RawMessage) imageEntry {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return imageEntry{kind: entryUnrecognized}
	}

	switch trimmed[0] {
	case '"':
		if s := decodeString(trimmed); s != "" {
			return imageEntry{kind: entryBareString, ref: s}
		}
	case '{':
		var obj imageObject
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return imageEntry{kind: entryUnrecognized}
		}
		if s := decodeString(obj.URL); s != "" {
			return imageEntry{kind: entryURLField, ref: s}
		}
		var nested imageObject
		if len(obj.ImageURL) > 0 && json.Unmarshal(obj.ImageURL, &nested) == nil {
			if s := decodeString(nested.URL); s != "" {
				return imageEntry{kind: entryNestedURL, ref: s}
			}
		}
	}
	return imageEntry{kind: entryUnrecognized}
}

func decodeString(raw json.RawMessage) string {
	if len(raw) == 0 || raw[0] != '"' {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

var markdownLink = regexp.MustCompile(`\((https?://.*?)\)`)

func isDirectImageRef(s string) bool {
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "data:image")
}

// ExtractImage resolves the generated image reference, trying in order: the
// first images[] entry, a content string that is itself a URL or data URI, and
// a markdown (url) reference inside content. No match is a GenerationError.
func ExtractImage(msg GenerationMessage, logger *zap.Logger) (domain.GeneratedImage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(msg.Images) > 0 {
		entry := classifyImageEntry(msg.Images[0])
		if entry.kind != entryUnrecognized {
			logger.Debug("Image resolved from images list", zap.String("shape", entry.kind.String()))
			return domain.GeneratedImage{Ref: entry.ref}, nil
		}
		logger.Warn("Unexpected image format in images list",
			zap.String("entry", util.TruncateString(string(msg.Images[0]), constants.CollaboratorConfig.PreviewMaxRunes)),
		)
	}

	content := strings.TrimSpace(msg.Content)
	if content != "" {
		if isDirectImageRef(content) {
			logger.Debug("Image resolved from content")
			return domain.GeneratedImage{Ref: content}, nil
		}

		logger.Warn("Content is text, not an image URL",
			zap.String("content", util.Preview(content, constants.CollaboratorConfig.PreviewMaxRunes)),
		)
		if m := markdownLink.FindStringSubmatch(content); len(m) > 1 && m[1] != "" {
			logger.Debug("Image resolved from markdown reference")
			return domain.GeneratedImage{Ref: m[1]}, nil
		}
	}

	return domain.GeneratedImage{}, errors.NewGenerationError("No image generated", "extract", nil)
}
