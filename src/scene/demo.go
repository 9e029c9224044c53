package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	red   = mgl32.Vec3{1, 0, 0}
	green = mgl32.Vec3{0, 1, 0}
	blue  = mgl32.Vec3{0, 0, 1}
)

// Triangle is the demo's single triangle.
func Triangle() []Vertex {
	return []Vertex{
		{Position: mgl32.Vec2{0, -0.5}, Color: red},
		{Position: mgl32.Vec2{0.5, 0.5}, Color: green},
		{Position: mgl32.Vec2{-0.5, 0.5}, Color: blue},
	}
}

// Sierpinski appends 3^depth triangles subdividing (left, right, top).
func Sierpinski(vertices []Vertex, depth int, left, right, top mgl32.Vec2) []Vertex {
	if depth <= 0 {
		return append(vertices,
			Vertex{Position: top, Color: red},
			Vertex{Position: right, Color: green},
			Vertex{Position: left, Color: blue},
		)
	}
	leftTop := left.Add(top).Mul(0.5)
	rightTop := right.Add(top).Mul(0.5)
	leftRight := left.Add(right).Mul(0.5)
	vertices = Sierpinski(vertices, depth-1, left, leftRight, leftTop)
	vertices = Sierpinski(vertices, depth-1, leftRight, right, rightTop)
	return Sierpinski(vertices, depth-1, leftTop, rightTop, top)
}

// DemoVertices is Triangle for depth zero, otherwise a Sierpinski gasket
// filling clip space.
func DemoVertices(depth int) []Vertex {
	if depth <= 0 {
		return Triangle()
	}
	n := 3 * int(math.Pow(3, float64(depth)))
	return Sierpinski(make([]Vertex, 0, n), depth, mgl32.Vec2{-1, 1}, mgl32.Vec2{1, 1}, mgl32.Vec2{0, -1})
}

// AddDemo adds the demo object: a green, squashed triangle turned a quarter
// turn and nudged right.
func (s *Scene) AddDemo(model Model) *GameObject {
	o := s.Add(model)
	o.Color = mgl32.Vec3{0.1, 0.8, 0.1}
	o.Transform.Translation = mgl32.Vec2{0.2, 0}
	o.Transform.Scale = mgl32.Vec2{2, 0.5}
	o.Transform.Rotation = 0.25 * 2 * math.Pi
	return o
}
