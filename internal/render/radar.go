package render

import (
	"fmt"
	"html/template"
	"math"
	"strconv"
	"strings"

	"github.com/kapu/ai-hair-salon-go/internal/constants"
	"github.com/kapu/ai-hair-salon-go/internal/domain"
)

const maxFeatureScore = 10.0

// Point is an SVG user-space coordinate.
type Point struct {
	X float64
	Y float64
}

// RadarLayout is the geometry of one radar chart, kept separate from markup so
// it can be checked numerically.
type RadarLayout struct {
	Size      float64
	Center    Point
	Radius    float64
	Rings     []float64
	Spokes    []Point
	Labels    []string
	Potential []Point
	Current   []Point
}

// LayoutRadar computes the chart for current vs potential scores. Axes follow
// the key order of current. ok is false when there is nothing comparable to draw.
func LayoutRadar(current, potential domain.ScoreMap, size float64) (RadarLayout, bool) {
	if len(current) == 0 || len(potential) == 0 || !current.SameKeys(potential) {
		return RadarLayout{}, false
	}
	if size <= 0 {
		size = constants.ReportConfig.RadarSize
	}

	n := len(current)
	center := Point{X: size / 2, Y: size / 2}
	radius := size * constants.ReportConfig.RadarRatio

	layout := RadarLayout{
		Size:      size,
		Center:    center,
		Radius:    radius,
		Rings:     make([]float64, 0, 5),
		Spokes:    make([]Point, n),
		Labels:    current.Keys(),
		Potential: make([]Point, n),
		Current:   make([]Point, n),
	}

	for i := 1; i <= 5; i++ {
		layout.Rings = append(layout.Rings, radius/5*float64(i))
	}

	for i, fs := range current {
		angle := axisAngle(i, n)
		layout.Spokes[i] = polar(center, radius, angle)
		layout.Current[i] = polar(center, radius*clampScore(float64(fs.Value))/maxFeatureScore, angle)

		pv, _ := potential.Value(fs.Name)
		layout.Potential[i] = polar(center, radius*clampScore(pv)/maxFeatureScore, angle)
	}

	return layout, true
}

// Radar renders the radar chart SVG, or empty markup when the maps are not
// comparable.
func Radar(current, potential domain.ScoreMap) template.HTML {
	layout, ok := LayoutRadar(current, potential, constants.ReportConfig.RadarSize)
	if !ok {
		return ""
	}

	var sb strings.Builder
	size := formatCoord(layout.Size)
	cx, cy := formatCoord(layout.Center.X), formatCoord(layout.Center.Y)

	fmt.Fprintf(&sb, `<svg viewBox="0 0 %s %s" class="radar-svg" xmlns="http://www.w3.org/2000/svg">`, size, size)
	for _, r := range layout.Rings {
		fmt.Fprintf(&sb, `<circle cx="%s" cy="%s" r="%s" fill="none" stroke="#dfe6e9" stroke-width="1"/>`, cx, cy, formatCoord(r))
	}
	for i, p := range layout.Spokes {
		fmt.Fprintf(&sb, `<line x1="%s" y1="%s" x2="%s" y2="%s" stroke="#dfe6e9" stroke-width="1"><title>%s</title></line>`,
			cx, cy, formatCoord(p.X), formatCoord(p.Y), template.HTMLEscapeString(layout.Labels[i]))
	}
	fmt.Fprintf(&sb, `<polygon class="radar-potential" points="%s" fill="var(--radar-potential)" stroke="var(--radar-potential-stroke)" stroke-width="2"/>`, pointList(layout.Potential))
	fmt.Fprintf(&sb, `<polygon class="radar-current" points="%s" fill="var(--radar-client)" stroke="var(--radar-client-stroke)" stroke-width="2"/>`, pointList(layout.Current))
	sb.WriteString(`</svg>`)

	return template.HTML(sb.String())
}

func axisAngle(i, n int) float64 {
	return 2*math.Pi*float64(i)/float64(n) - math.Pi/2
}

func polar(center Point, r, angle float64) Point {
	return Point{
		X: center.X + math.Cos(angle)*r,
		Y: center.Y + math.Sin(angle)*r,
	}
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > maxFeatureScore {
		return maxFeatureScore
	}
	return v
}

func pointList(points []Point) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = formatCoord(p.X) + "," + formatCoord(p.Y)
	}
	return strings.Join(parts, " ")
}

// formatCoord rounds to 2 decimals so cos/sin noise does not leak into markup.
func formatCoord(v float64) string {
	r := math.Round(v*100) / 100
	if r == 0 {
		r = 0 // normalise -0
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}
