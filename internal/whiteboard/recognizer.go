package whiteboard

import (
	"math"
	"sort"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Shape string

const (
	ShapeRectangle    Shape = "rectangle"
	ShapeEllipse      Shape = "ellipse"
	ShapeTriangle     Shape = "triangle"
	ShapeUnrecognized Shape = "unrecognized"
)

const ellipseSegments = 32

// Recognition is a classified stroke plus the idealized points that should
// replace it. Points is nil when the stroke is unrecognized.
type Recognition struct {
	Shape  Shape   `json:"shape"`
	Ratio  float64 `json:"ratio"`
	Points []Point `json:"points,omitempty"`
}

// Recognize classifies a freehand stroke by how much of its bounding box
// the stroke's convex hull fills. A hull that fills most of the box is a
// rectangle, a rounded one an ellipse, a sparse one a triangle; anything
// thinner stays a freehand line.
func Recognize(stroke []Point) Recognition {
	if len(stroke) < 3 {
		return Recognition{Shape: ShapeUnrecognized}
	}

	hull := convexHull(stroke)
	if len(hull) < 3 {
		return Recognition{Shape: ShapeUnrecognized}
	}

	minX, minY, maxX, maxY := bounds(stroke)
	boxArea := (maxX - minX) * (maxY - minY)
	if boxArea == 0 {
		return Recognition{Shape: ShapeUnrecognized}
	}

	ratio := polygonArea(hull) / boxArea
	switch {
	case ratio > 0.80:
		return Recognition{
			Shape:  ShapeRectangle,
			Ratio:  ratio,
			Points: rectanglePoints(minX, minY, maxX, maxY),
		}
	case ratio > 0.66:
		return Recognition{
			Shape:  ShapeEllipse,
			Ratio:  ratio,
			Points: ellipsePoints(minX, minY, maxX, maxY),
		}
	case ratio > 0.35:
		return Recognition{
			Shape:  ShapeTriangle,
			Ratio:  ratio,
			Points: trianglePoints(minX, minY, maxX, maxY),
		}
	default:
		return Recognition{Shape: ShapeUnrecognized, Ratio: ratio}
	}
}

// convexHull is Andrew's monotone chain, returning the hull counterclockwise
// without the closing point.
func convexHull(points []Point) []Point {
	pts := make([]Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})

	n := len(pts)
	if n < 3 {
		return pts
	}

	hull := make([]Point, 0, 2*n)
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := n - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// polygonArea is the shoelace formula over an ordered ring.
func polygonArea(ring []Point) float64 {
	var sum float64
	for i := 0; i < len(ring); i++ {
		j := (i + 1) % len(ring)
		sum += ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
	}
	return math.Abs(sum) / 2
}

func bounds(points []Point) (minX, minY, maxX, maxY float64) {
	minX, minY = points[0].X, points[0].Y
	maxX, maxY = minX, minY
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return
}

func rectanglePoints(minX, minY, maxX, maxY float64) []Point {
	return []Point{
		{X: minX, Y: minY},
		{X: maxX, Y: minY},
		{X: maxX, Y: maxY},
		{X: minX, Y: maxY},
		{X: minX, Y: minY},
	}
}

func ellipsePoints(minX, minY, maxX, maxY float64) []Point {
	cx := (minX + maxX) / 2
	cy := (minY + maxY) / 2
	rx := (maxX - minX) / 2
	ry := (maxY - minY) / 2

	points := make([]Point, 0, ellipseSegments+1)
	for i := 0; i <= ellipseSegments; i++ {
		theta := 2 * math.Pi * float64(i) / ellipseSegments
		points = append(points, Point{
			X: cx + rx*math.Cos(theta),
			Y: cy + ry*math.Sin(theta),
		})
	}
	return points
}

func trianglePoints(minX, minY, maxX, maxY float64) []Point {
	return []Point{
		{X: (minX + maxX) / 2, Y: minY},
		{X: maxX, Y: maxY},
		{X: minX, Y: maxY},
		{X: (minX + maxX) / 2, Y: minY},
	}
}
