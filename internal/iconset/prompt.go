// Package iconset builds icon prompts from a style preset and a brand palette and
// generates a set of icons from them.
package iconset

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tphakala/iconforge/internal/errors"
)

// Style is a preset visual style
type Style string

// Preset styles
const (
	StyleSticker  Style = "Sticker"
	StylePastels  Style = "Pastels"
	StyleBusiness Style = "Business"
	StyleCartoon  Style = "Cartoon"
	Style3DModel  Style = "3D Model"
	StyleGradient Style = "Gradient"
)

// Styles lists the presets in display order
var Styles = []Style{StyleSticker, StylePastels, StyleBusiness, StyleCartoon, Style3DModel, StyleGradient}

var styleEnhancements = map[Style]string{
	StyleSticker:  "as a single sticker design with bold outlines and vibrant colors, one item only",
	StylePastels:  "in soft pastel colors with gentle gradients, one single item only",
	StyleBusiness: "in a professional corporate style with clean lines, one single item only",
	StyleCartoon:  "as a single cartoon illustration with playful style, one item only",
	Style3DModel:  "as a single detailed 3D rendered object, one item only",
	StyleGradient: "with smooth gradient colors and minimalist design, one single item only",
}

// Enhancement returns the phrase appended to prompts for this style
func (s Style) Enhancement() string {
	return styleEnhancements[s]
}

// ParseStyle resolves a style name case-insensitively. "3d", "3d-model" and
// "3D Model" all select Style3DModel.
func ParseStyle(name string) (Style, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	switch normalized {
	case "3d", "3d-model", "3d_model", "3dmodel":
		return Style3DModel, nil
	}
	for _, s := range Styles {
		if strings.ToLower(string(s)) == normalized {
			return s, nil
		}
	}
	return "", errors.ValidationError(fmt.Sprintf("Style must be one of: %s", styleNames()))
}

func styleNames() string {
	names := make([]string, len(Styles))
	for i, s := range Styles {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// MaxColors is the number of palette colors used in a prompt
const MaxColors = 4

// MaxPromptLength is the longest accepted icon subject, in characters
const MaxPromptLength = 200

var hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// NormalizeColors keeps the first MaxColors entries that are #RRGGBB colors
func NormalizeColors(colors []string) []string {
	out := make([]string, 0, MaxColors)
	for _, c := range colors {
		if len(out) == MaxColors {
			break
		}
		c = strings.TrimSpace(c)
		if hexColorPattern.MatchString(c) {
			out = append(out, c)
		}
	}
	return out
}

func colorEnhancement(colors []string) string {
	if len(colors) == 0 {
		return ""
	}
	return " using color palette: " + strings.Join(colors, ", ")
}

const promptTemplate = "ONE single %s icon only %s%s, ONLY ONE object, simple flat icon, " +
	"isolated on transparent background, NO multiple items, NO collections, just one single item, " +
	"vector style, clean, minimalist, professional icon design, transparent PNG, centered, " +
	"no shadows, no background, THERE SHOULD BE ONLY ONE ICON IN THE IMAGE THAT YOU GENERATED. " +
	"NOT MULTIPLE OR EVEN ICON PACK"

// Request describes an icon set
type Request struct {
	Prompt string   `json:"prompt"`
	Style  string   `json:"style"`
	Colors []string `json:"colors"`
}

// Validate checks the prompt and style
func (r Request) Validate() error {
	prompt := strings.TrimSpace(r.Prompt)
	if prompt == "" {
		return errors.ValidationError("Prompt is required")
	}
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		return errors.ValidationError(fmt.Sprintf("Prompt must be at most %d characters", MaxPromptLength))
	}
	if _, err := ParseStyle(r.Style); err != nil {
		return err
	}
	return nil
}

// BuildPrompt renders the icon prompt for a validated request
func BuildPrompt(req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	style, _ := ParseStyle(req.Style)
	colors := NormalizeColors(req.Colors)

	return fmt.Sprintf(promptTemplate,
		strings.TrimSpace(req.Prompt),
		style.Enhancement(),
		colorEnhancement(colors)), nil
}
