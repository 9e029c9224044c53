package scene

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// Vertex matches the vertex shader inputs: position at location 0 and
// colour at location 1.
type Vertex struct {
	Position mgl32.Vec2
	Color    mgl32.Vec3
}

var (
	VertexStride         = uint32(unsafe.Sizeof(Vertex{}))
	VertexPositionOffset = uint32(unsafe.Offsetof(Vertex{}.Position))
	VertexColorOffset    = uint32(unsafe.Offsetof(Vertex{}.Color))
)

// VertexBytes views vertices as the packed bytes uploaded to a vertex
// buffer. The result aliases vertices.
func VertexBytes(vertices []Vertex) []byte {
	if len(vertices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), len(vertices)*int(VertexStride))
}

// PushConstants is the push constant block shared by both shader stages.
// Its layout follows the GLSL block: mat2 at 0, vec2 at 16 and a vec3
// aligned to 16 at 32.
type PushConstants struct {
	Transform mgl32.Mat2
	Offset    mgl32.Vec2
	_         [2]float32
	Color     mgl32.Vec3
	_         float32
}

var PushConstantsSize = uint32(unsafe.Sizeof(PushConstants{}))

func NewPushConstants(o *GameObject) PushConstants {
	return PushConstants{
		Transform: o.Transform.Mat2(),
		Offset:    o.Transform.Translation,
		Color:     o.Color,
	}
}

func (p *PushConstants) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), PushConstantsSize)
}
