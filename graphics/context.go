// Package graphics defines the GPU context contract the pipeline renders
// against. The embedding application owns the context lifecycle; the pipeline
// only draws into whatever surface is current.
package graphics

// Context defines the interface for an OpenGL context.
type Context interface {
	MakeCurrent()
	Shutdown()
	ShouldClose() bool
	EndFrame()
	// GetFramebufferSize returns the drawable size in pixels.
	GetFramebufferSize() (int, int)
	// Time returns seconds since context creation.
	Time() float64
	// IsGLES reports whether the context consumes GLSL ES rather than
	// desktop GLSL.
	IsGLES() bool
}
