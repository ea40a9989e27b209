package domain

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/kapu/ai-hair-salon-go/pkg/errors"
)

// SourceImage is the user's photo held as a data URI.
type SourceImage struct {
	DataURI  string `json:"-"`
	MIMEType string `json:"mimeType"`
	Size     int    `json:"size"`
}

// UploadPolicy bounds what a SourceImage may be.
type UploadPolicy struct {
	MaxBytes     int64
	AllowedTypes []string
}

func (p UploadPolicy) allows(mimeType string) bool {
	for _, t := range p.AllowedTypes {
		if strings.EqualFold(t, mimeType) {
			return true
		}
	}
	return false
}

func (p UploadPolicy) check(mimeType string, size int) error {
	if !p.allows(mimeType) {
		return errors.NewValidationError("Please upload a valid image file (JPG, PNG, or WebP)", "mimeType", mimeType)
	}
	if size == 0 {
		return errors.NewValidationError("Image file is empty", "size", size)
	}
	if p.MaxBytes > 0 && int64(size) > p.MaxBytes {
		return errors.NewValidationError(
			fmt.Sprintf("File size must be less than %dMB", p.MaxBytes/(1024*1024)),
			"size", size,
		)
	}
	return nil
}

// NewSourceImage encodes raw bytes into a SourceImage after policy checks.
func NewSourceImage(data []byte, mimeType string, policy UploadPolicy) (SourceImage, error) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if err := policy.check(mimeType, len(data)); err != nil {
		return SourceImage{}, err
	}
	return SourceImage{
		DataURI:  "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		MIMEType: mimeType,
		Size:     len(data),
	}, nil
}

// ParseSourceImage accepts an already encoded data URI.
func ParseSourceImage(dataURI string, policy UploadPolicy) (SourceImage, error) {
	mimeType, data, err := ParseDataURI(dataURI)
	if err != nil {
		return SourceImage{}, errors.NewValidationError("image must be a data URI", "image", nil)
	}
	return NewSourceImage(data, mimeType, policy)
}

// GeneratedImage is the reference returned by the generation collaborator: an
// http(s) URL or a data URI.
type GeneratedImage struct {
	Ref string `json:"ref"`
}

func (g GeneratedImage) IsDataURI() bool {
	return strings.HasPrefix(g.Ref, "data:")
}

// Extension guesses a file extension from the MIME type of a data URI or the
// path of a URL. Empty when nothing can be inferred.
func (g GeneratedImage) Extension() string {
	if g.IsDataURI() {
		mimeType, _, err := ParseDataURI(g.Ref)
		if err != nil {
			return ""
		}
		return extensionForMIME(mimeType)
	}
	u, err := url.Parse(g.Ref)
	if err != nil {
		return ""
	}
	path := u.Path
	if idx := strings.LastIndexByte(path, '.'); idx >= 0 && idx < len(path)-1 {
		ext := strings.ToLower(path[idx+1:])
		switch ext {
		case "png", "jpg", "jpeg", "webp", "gif":
			return ext
		}
	}
	return ""
}

func extensionForMIME(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return ""
	}
}

// ParseDataURI splits "data:<mime>[;base64],<payload>" into its MIME type and
// decoded bytes.
func ParseDataURI(s string) (string, []byte, error) {
	if !strings.HasPrefix(s, "data:") {
		return "", nil, fmt.Errorf("not a data URI")
	}
	header, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return "", nil, fmt.Errorf("data URI has no payload separator")
	}

	params := strings.Split(header, ";")
	mimeType := strings.ToLower(strings.TrimSpace(params[0]))
	if mimeType == "" {
		mimeType = "text/plain"
	}

	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
		}
		return mimeType, data, nil
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("invalid data URI payload: %w", err)
	}
	return mimeType, []byte(decoded), nil
}
