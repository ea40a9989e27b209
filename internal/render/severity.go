package render

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/kapu/ai-hair-salon-go/internal/constants"
	"github.com/kapu/ai-hair-salon-go/internal/domain"
)

const (
	strokeDark  = "#34495e"
	strokeLight = "#ccc"
)

// SeverityIcon describes one icon of the staged hair-loss scale.
type SeverityIcon struct {
	Index         int
	Active        bool
	PrimaryStroke string
	// DensityCurveY is the control point of the density line; 0 means no line.
	DensityCurveY int
}

// LayoutSeverity computes the seven icons for stage. The primary line is dark
// for every index at or above the stage. ok is false for an out-of-range stage.
func LayoutSeverity(stage domain.Stage) ([]SeverityIcon, bool) {
	if !stage.Valid() {
		return nil, false
	}

	icons := make([]SeverityIcon, constants.ReportConfig.SeverityIcons)
	for n := range icons {
		i := n + 1
		icon := SeverityIcon{
			Index:         i,
			Active:        i == int(stage),
			PrimaryStroke: strokeLight,
		}
		if i >= int(stage) {
			icon.PrimaryStroke = strokeDark
		}
		if i > 1 {
			icon.DensityCurveY = 30 + i*5
		}
		icons[n] = icon
	}
	return icons, true
}

// SeverityScale renders the seven-icon scale, or empty markup for an
// out-of-range stage.
func SeverityScale(stage domain.Stage) template.HTML {
	icons, ok := LayoutSeverity(stage)
	if !ok {
		return ""
	}

	var sb strings.Builder
	for _, icon := range icons {
		class := "loss-stage"
		if icon.Active {
			class += " active"
		}
		fmt.Fprintf(&sb, `<div class="%s" data-stage="%d">`, class, icon.Index)
		sb.WriteString(`<svg width="40" height="40" viewBox="0 0 100 100" xmlns="http://www.w3.org/2000/svg">`)
		sb.WriteString(`<circle cx="50" cy="50" r="45" fill="none" stroke="#ccc" stroke-width="2"/>`)
		fmt.Fprintf(&sb, `<path class="primary" d="M20 40 Q50 20 80 40" fill="none" stroke="%s" stroke-width="4"/>`, icon.PrimaryStroke)
		if icon.DensityCurveY > 0 {
			fmt.Fprintf(&sb, `<path class="density" d="M25 45 Q50 %d 75 45" fill="none" stroke="%s" stroke-width="3"/>`, icon.DensityCurveY, strokeDark)
		}
		sb.WriteString(`</svg>`)
		fmt.Fprintf(&sb, `<span class="stage-label">%d</span></div>`, icon.Index)
	}
	return template.HTML(sb.String())
}
