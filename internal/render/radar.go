package render

import (
	"fmt"
	"math"
	"strings"

	"github.com/yanivvds/portfolio-assistant/internal/model"
)

const (
	radarSize   = 260.0
	radarRadius = 90.0
	radarRings  = 4
)

// Point is a 2D coordinate in SVG user space.
type Point struct {
	X, Y float64
}

// RadarPoints places score i at angle 2πi/n − π/2 (the first axis points up)
// and radius rmax·score/100. Scores are clamped to 0..100.
func RadarPoints(scores []float64, center Point, rmax float64) []Point {
	n := len(scores)
	pts := make([]Point, n)
	for i, s := range scores {
		s = math.Max(0, math.Min(100, s))
		angle := 2*math.Pi*float64(i)/float64(n) - math.Pi/2
		r := rmax * s / 100
		pts[i] = Point{
			X: center.X + r*math.Cos(angle),
			Y: center.Y + r*math.Sin(angle),
		}
	}
	return pts
}

func svgPoints(pts []Point) string {
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = fmt.Sprintf("%.2f,%.2f", p.X, p.Y)
	}
	return strings.Join(parts, " ")
}

type radarAxis struct {
	X, Y   float64
	LX, LY float64
	Label  string
	Anchor string
}

type skillBar struct {
	Label string
	Score float64
}

type skillsView struct {
	Radar   bool
	Size    float64
	Center  Point
	Polygon string
	Rings   []string
	Axes    []radarAxis
	Bars    []skillBar
}

// buildSkills lays out the radar. Fewer than three skills cannot form a
// polygon, so only the bars are drawn.
func buildSkills(skills []model.Skill) skillsView {
	v := skillsView{
		Size:   radarSize,
		Center: Point{radarSize / 2, radarSize / 2},
	}

	scores := make([]float64, len(skills))
	full := make([]float64, len(skills))
	for i, s := range skills {
		scores[i] = s.Score.Clamped()
		full[i] = 100
		v.Bars = append(v.Bars, skillBar{Label: s.Label, Score: scores[i]})
	}
	if len(skills) < 3 {
		return v
	}

	v.Radar = true
	v.Polygon = svgPoints(RadarPoints(scores, v.Center, radarRadius))

	for ring := 1; ring <= radarRings; ring++ {
		v.Rings = append(v.Rings, svgPoints(RadarPoints(full, v.Center, radarRadius*float64(ring)/radarRings)))
	}

	ends := RadarPoints(full, v.Center, radarRadius)
	labels := RadarPoints(full, v.Center, radarRadius+18)
	for i, s := range skills {
		anchor := "middle"
		switch {
		case labels[i].X > v.Center.X+1:
			anchor = "start"
		case labels[i].X < v.Center.X-1:
			anchor = "end"
		}
		v.Axes = append(v.Axes, radarAxis{
			X: ends[i].X, Y: ends[i].Y,
			LX: labels[i].X, LY: labels[i].Y,
			Label:  s.Label,
			Anchor: anchor,
		})
	}
	return v
}
