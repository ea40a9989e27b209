package render

import (
	"strings"
	"testing"

	"github.com/kapu/ai-hair-salon-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scores(names []string, value domain.Number) domain.ScoreMap {
	m := make(domain.ScoreMap, len(names))
	for i, n := range names {
		m[i] = domain.FeatureScore{Name: n, Value: value}
	}
	return m
}

func TestLayoutRadarFullScoresSitOnOuterRing(t *testing.T) {
	names := []string{"Hair", "Eyes", "Jaw", "Skin"}
	layout, ok := LayoutRadar(scores(names, 10), scores(names, 10), 300)
	require.True(t, ok)

	assert.InDelta(t, 120.0, layout.Radius, 1e-9)
	require.Len(t, layout.Rings, 5)
	for i, r := range []float64{24, 48, 72, 96, 120} {
		assert.InDelta(t, r, layout.Rings[i], 1e-9)
	}

	want := []Point{{150, 30}, {270, 150}, {150, 270}, {30, 150}}
	for i, p := range layout.Current {
		assert.InDelta(t, want[i].X, p.X, 1e-9)
		assert.InDelta(t, want[i].Y, p.Y, 1e-9)
		assert.InDelta(t, layout.Spokes[i].X, p.X, 1e-9)
		assert.InDelta(t, layout.Spokes[i].Y, p.Y, 1e-9)
	}
}

func TestLayoutRadarZeroScoresSitAtCenter(t *testing.T) {
	names := []string{"Hair", "Eyes", "Jaw", "Skin"}
	layout, ok := LayoutRadar(scores(names, 0), scores(names, 5), 300)
	require.True(t, ok)

	for _, p := range layout.Current {
		assert.InDelta(t, 150, p.X, 1e-9)
		assert.InDelta(t, 150, p.Y, 1e-9)
	}
}

func TestLayoutRadarClampsAndKeepsOrder(t *testing.T) {
	current := domain.ScoreMap{{Name: "Nose", Value: 14}, {Name: "Chin", Value: -2}}
	potential := domain.ScoreMap{{Name: "Chin", Value: 10}, {Name: "Nose", Value: 10}}

	layout, ok := LayoutRadar(current, potential, 300)
	require.True(t, ok)
	assert.Equal(t, []string{"Nose", "Chin"}, layout.Labels)
	assert.InDelta(t, 30, layout.Current[0].Y, 1e-9)
	assert.InDelta(t, 150, layout.Current[1].Y, 1e-9)
	// Chin is the second axis, pointing down.
	assert.InDelta(t, 270, layout.Potential[1].Y, 1e-9)
}

func TestRadarDegenerateInputsRenderNothing(t *testing.T) {
	a := domain.ScoreMap{{Name: "Hair", Value: 5}}
	b := domain.ScoreMap{{Name: "Eyes", Value: 5}}

	assert.Empty(t, Radar(nil, a))
	assert.Empty(t, Radar(a, domain.ScoreMap{}))
	assert.Empty(t, Radar(a, b))
}

func TestRadarDrawsPotentialBeneathCurrent(t *testing.T) {
	names := []string{"Hair", "Eyes", "Jaw"}
	svg := string(Radar(scores(names, 4), scores(names, 9)))

	require.NotEmpty(t, svg)
	assert.Equal(t, 5, strings.Count(svg, "<circle"))
	assert.Equal(t, 3, strings.Count(svg, "<line"))
	potential := strings.Index(svg, "radar-potential")
	current := strings.Index(svg, "radar-current")
	assert.True(t, potential >= 0 && current > potential)
}

func TestRadarEscapesLabels(t *testing.T) {
	names := []string{"<b>Hair</b>", "Eyes", "Jaw"}
	svg := string(Radar(scores(names, 4), scores(names, 9)))
	assert.Contains(t, svg, "&lt;b&gt;Hair&lt;/b&gt;")
}

func TestLayoutSeverityStageThree(t *testing.T) {
	icons, ok := LayoutSeverity(3)
	require.True(t, ok)
	require.Len(t, icons, 7)

	active := 0
	for _, icon := range icons {
		if icon.Active {
			active++
			assert.Equal(t, 3, icon.Index)
		}
		if icon.Index < 3 {
			assert.Equal(t, strokeLight, icon.PrimaryStroke, "icon %d", icon.Index)
		} else {
			assert.Equal(t, strokeDark, icon.PrimaryStroke, "icon %d", icon.Index)
		}
	}
	assert.Equal(t, 1, active)
	assert.Zero(t, icons[0].DensityCurveY)
	assert.Equal(t, 40, icons[1].DensityCurveY)
	assert.Equal(t, 65, icons[6].DensityCurveY)
}

func TestSeverityScaleMarkup(t *testing.T) {
	html := string(SeverityScale(3))
	assert.Equal(t, 7, strings.Count(html, `<div class="loss-stage`))
	assert.Equal(t, 1, strings.Count(html, `loss-stage active`))
	assert.Equal(t, 6, strings.Count(html, `class="density"`))
	assert.Contains(t, html, `<div class="loss-stage active" data-stage="3">`)

	assert.Empty(t, SeverityScale(0))
	assert.Empty(t, SeverityScale(8))
}
