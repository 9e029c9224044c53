// Package scene holds the 2D game objects drawn by the app's render system.
package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"swapline/src/render"
)

// Model is vertex data on the GPU that can record its own draw.
type Model interface {
	Bind(cmd render.CommandBuffer)
	Draw(cmd render.CommandBuffer)
}

type ID uint32

type GameObject struct {
	id        ID
	Model     Model
	Color     mgl32.Vec3
	Transform Transform2D
}

func (o *GameObject) ID() ID { return o.id }

// Scene owns game objects in creation order. IDs increase monotonically and
// are never reused within a scene.
type Scene struct {
	nextID  ID
	objects []*GameObject
}

func New() *Scene {
	return &Scene{}
}

// Add creates an object with an identity transform.
func (s *Scene) Add(model Model) *GameObject {
	o := &GameObject{
		id:        s.nextID,
		Model:     model,
		Transform: Transform2D{Scale: mgl32.Vec2{1, 1}},
	}
	s.nextID++
	s.objects = append(s.objects, o)
	return o
}

func (s *Scene) Objects() []*GameObject { return s.objects }

func (s *Scene) Len() int { return len(s.objects) }

// Transform2D places an object: scale, then rotate, then translate.
type Transform2D struct {
	Translation mgl32.Vec2
	Scale       mgl32.Vec2
	// Rotation in radians.
	Rotation float32
}

// Mat2 is rotation * scale; translation is applied separately as an offset.
func (t Transform2D) Mat2() mgl32.Mat2 {
	scale := mgl32.Mat2{t.Scale.X(), 0, 0, t.Scale.Y()}
	return mgl32.Rotate2D(t.Rotation).Mul2(scale)
}

// Rotate adds delta radians, wrapping into [0, 2π).
func (t *Transform2D) Rotate(delta float32) {
	r := math.Mod(float64(t.Rotation+delta), 2*math.Pi)
	if r < 0 {
		r += 2 * math.Pi
	}
	t.Rotation = float32(r)
}
