package viz

import (
	"fmt"
	"math"
	"strings"
)

type Point struct{ X, Y float64 }

// Ellipse is an axis-aligned obstacle outline.
type Ellipse struct {
	Center Point
	RX, RY float64
}

type Scene struct {
	Path      []Point
	Obstacles []Ellipse
	Goal      *Point
}

const ellipseSegments = 64

func (e Ellipse) outline() []Point {
	pts := make([]Point, ellipseSegments+1)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / ellipseSegments
		pts[i] = Point{e.Center.X + e.RX*math.Cos(a), e.Center.Y + e.RY*math.Sin(a)}
	}
	return pts
}

// bounds covers every element of the scene with 10% padding.
func (s Scene) bounds() (minX, maxX, minY, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	include := func(p Point) {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return
		}
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	for _, p := range s.Path {
		include(p)
	}
	for _, o := range s.Obstacles {
		include(Point{o.Center.X - o.RX, o.Center.Y - o.RY})
		include(Point{o.Center.X + o.RX, o.Center.Y + o.RY})
	}
	if s.Goal != nil {
		include(*s.Goal)
	}
	if math.IsInf(minX, 1) {
		return -1, 1, -1, 1
	}

	rangeX, rangeY := maxX-minX, maxY-minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	return minX - 0.1*rangeX, maxX + 0.1*rangeX, minY - 0.1*rangeY, maxY + 0.1*rangeY
}

// projection maps world coordinates to a width x height raster with y up.
func (s Scene) projection(width, height float64) func(Point) (float64, float64) {
	minX, maxX, minY, maxY := s.bounds()
	return func(p Point) (float64, float64) {
		x := (p.X - minX) / (maxX - minX) * (width - 1)
		y := (height - 1) - (p.Y-minY)/(maxY-minY)*(height-1)
		return x, y
	}
}

// Braille renders the scene on a canvas of w x h characters.
func (s Scene) Braille(w, h int) string {
	c := NewCanvas(w, h)
	proj := s.projection(float64(c.PixelWidth()), float64(c.PixelHeight()))
	polyline := func(pts []Point) {
		for i := 1; i < len(pts); i++ {
			x0, y0 := proj(pts[i-1])
			x1, y1 := proj(pts[i])
			if math.IsNaN(x0+y0+x1+y1) {
				continue
			}
			c.DrawLine(int(math.Round(x0)), int(math.Round(y0)), int(math.Round(x1)), int(math.Round(y1)))
		}
		if len(pts) == 1 {
			x, y := proj(pts[0])
			c.Set(int(math.Round(x)), int(math.Round(y)))
		}
	}

	for _, o := range s.Obstacles {
		polyline(o.outline())
	}
	polyline(s.Path)
	if s.Goal != nil {
		gx, gy := proj(*s.Goal)
		x, y := int(math.Round(gx)), int(math.Round(gy))
		c.DrawLine(x-2, y-2, x+2, y+2)
		c.DrawLine(x-2, y+2, x+2, y-2)
	}
	return c.String()
}

// SVG renders the scene as a standalone SVG document.
func (s Scene) SVG(width, height int) string {
	proj := s.projection(float64(width), float64(height))
	minX, maxX, minY, maxY := s.bounds()
	sx := float64(width-1) / (maxX - minX)
	sy := float64(height-1) / (maxY - minY)

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	for _, o := range s.Obstacles {
		cx, cy := proj(o.Center)
		fmt.Fprintf(&sb, `<ellipse cx="%.1f" cy="%.1f" rx="%.1f" ry="%.1f" fill="#ff5f5f" fill-opacity="0.25" stroke="#ff5f5f"/>
`, cx, cy, o.RX*sx, o.RY*sy)
	}

	if len(s.Path) > 1 {
		sb.WriteString(`<path fill="none" stroke="#00ff88" stroke-width="1.5" d="`)
		move := true
		for _, p := range s.Path {
			x, y := proj(p)
			if math.IsNaN(x) || math.IsNaN(y) {
				move = true
				continue
			}
			if move {
				fmt.Fprintf(&sb, "M%.1f,%.1f", x, y)
				move = false
			} else {
				fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
			}
		}
		sb.WriteString("\"/>\n")
	}

	if s.Goal != nil {
		gx, gy := proj(*s.Goal)
		fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="4" fill="#00ffff"/>
`, gx, gy)
	}

	sb.WriteString("</svg>\n")
	return sb.String()
}
