// Package imagegen generates images with a hosted text-to-image model and caches
// the results by prompt.
package imagegen

import (
	"bytes"
	"crypto/md5" //nolint:gosec // cache key only, not a security boundary
	"encoding/hex"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/tphakala/iconforge/internal/errors"
)

// Size is the requested output resolution
type Size string

const (
	Size1024x1024 Size = "1024x1024"
	Size1792x1024 Size = "1792x1024"
	Size1024x1792 Size = "1024x1792"
)

// Quality controls the output compression
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityHD       Quality = "hd"
)

// Style is a rendering hint kept with the record. The model ignores it but it
// still separates cache entries.
type Style string

const (
	StyleVivid   Style = "vivid"
	StyleNatural Style = "natural"
)

// MaxPromptLength is the longest accepted prompt in characters
const MaxPromptLength = 4000

// Dimensions returns the pixel width and height for the size.
// Unknown sizes fall back to 1024x1024.
func (s Size) Dimensions() (width, height int) {
	switch s {
	case Size1792x1024:
		return 1792, 1024
	case Size1024x1792:
		return 1024, 1792
	default:
		return 1024, 1024
	}
}

func (s Size) valid() bool {
	return s == Size1024x1024 || s == Size1792x1024 || s == Size1024x1792
}

// OutputQuality returns the encoder quality sent to the model
func (q Quality) OutputQuality() int {
	if q == QualityHD {
		return 100
	}
	return 80
}

func (q Quality) valid() bool {
	return q == QualityStandard || q == QualityHD
}

func (s Style) valid() bool {
	return s == StyleVivid || s == StyleNatural
}

// Params describes one image generation request
type Params struct {
	Prompt  string
	Size    Size
	Quality Quality
	Style   Style
	N       int
}

// WithDefaults returns a copy with empty fields set to their defaults
func (p Params) WithDefaults() Params {
	if p.Size == "" {
		p.Size = Size1024x1024
	}
	if p.Quality == "" {
		p.Quality = QualityStandard
	}
	if p.Style == "" {
		p.Style = StyleVivid
	}
	if p.N < 1 {
		p.N = 1
	}
	return p
}

// Validate checks the prompt and enum fields. Call on defaulted params.
func (p Params) Validate() error {
	prompt := strings.TrimSpace(p.Prompt)
	switch {
	case prompt == "":
		return errors.ValidationError("Prompt cannot be empty")
	case utf8.RuneCountInString(p.Prompt) > MaxPromptLength:
		return errors.ValidationError("Prompt is too long (max 4000 characters)")
	case !p.Size.valid():
		return errors.ValidationError("Size must be one of: 1024x1024, 1792x1024, 1024x1792")
	case !p.Quality.valid():
		return errors.ValidationError("Quality must be either standard or hd")
	case !p.Style.valid():
		return errors.ValidationError("Style must be either vivid or natural")
	}
	return nil
}

// cacheKeyPayload fixes the JSON field order of the cache key
type cacheKeyPayload struct {
	Prompt  string  `json:"prompt"`
	Size    Size    `json:"size"`
	Quality Quality `json:"quality"`
	Style   Style   `json:"style"`
}

// CacheKey returns the result cache key for params. Prompts differing only in
// case or surrounding whitespace share a key.
func CacheKey(p Params) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(cacheKeyPayload{
		Prompt:  strings.ToLower(strings.TrimSpace(p.Prompt)),
		Size:    p.Size,
		Quality: p.Quality,
		Style:   p.Style,
	})
	sum := md5.Sum(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))) //nolint:gosec // see import
	return "image:" + hex.EncodeToString(sum[:])
}
