package pipeline

import (
	"fmt"

	gl "github.com/go-gl/gl/v4.1-core/gl"

	"github.com/spotUP/retroshade/preset"
)

// Target is an off-screen color buffer for one pass. Feedback passes carry a
// two-element FBO/texture pair indexed by a frame parity bit: the pass writes
// tex[parity] while tex[1-parity] holds the previous frame. Non-feedback
// passes allocate a single buffer and ignore parity.
type Target struct {
	fbo [2]uint32
	tex [2]uint32

	double bool
	parity int

	width  int
	height int

	internalFormat int32
	filterLinear   bool
	wrap           preset.WrapMode
}

func targetFormat(decl preset.PassDecl) int32 {
	switch {
	case decl.FloatFramebuffer:
		return gl.RGBA16F
	case decl.SRGBFramebuffer:
		return gl.SRGB8_ALPHA8
	default:
		return gl.RGBA8
	}
}

func newTarget(width, height int, decl preset.PassDecl, double bool) (*Target, error) {
	t := &Target{
		double:         double,
		width:          width,
		height:         height,
		internalFormat: targetFormat(decl),
		filterLinear:   decl.FilterLinear,
		wrap:           decl.Wrap,
	}

	count := 1
	if double {
		count = 2
	}
	for i := 0; i < count; i++ {
		var fbo, texture uint32
		gl.GenTextures(1, &texture)
		gl.BindTexture(gl.TEXTURE_2D, texture)
		gl.TexImage2D(gl.TEXTURE_2D, 0, t.internalFormat, int32(width), int32(height), 0, gl.RGBA, texelType(t.internalFormat), nil)
		applyTexParams(t.filterLinear, t.wrap, false)

		gl.GenFramebuffers(1, &fbo)
		gl.BindFramebuffer(gl.FRAMEBUFFER, fbo)
		gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, texture, 0)
		if gl.CheckFramebufferStatus(gl.FRAMEBUFFER) != gl.FRAMEBUFFER_COMPLETE {
			gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
			return nil, fmt.Errorf("pipeline: framebuffer %d of render target is not complete", i)
		}

		t.fbo[i] = fbo
		t.tex[i] = texture
	}
	if !double {
		t.fbo[1] = t.fbo[0]
		t.tex[1] = t.tex[0]
	}

	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return t, nil
}

func texelType(internalFormat int32) uint32 {
	if internalFormat == gl.RGBA16F {
		return gl.FLOAT
	}
	return gl.UNSIGNED_BYTE
}

// SetParity selects which buffer of a feedback pair is written this frame.
// The renderer flips parity once per frame, never mid-frame.
func (t *Target) SetParity(parity int) {
	t.parity = parity & 1
}

// BindForWriting binds the current write-side FBO and sets the viewport.
func (t *Target) BindForWriting() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo[t.parity])
	gl.Viewport(0, 0, int32(t.width), int32(t.height))
}

// CurrentTexture is this frame's output, valid once the pass has drawn.
func (t *Target) CurrentTexture() uint32 {
	return t.tex[t.parity]
}

// FeedbackTexture is the previous frame's output.
func (t *Target) FeedbackTexture() uint32 {
	return t.tex[1-t.parity]
}

// Resize reallocates texture storage. Previous-frame contents are lost, which
// matches feedback semantics across a resolution change.
func (t *Target) Resize(width, height int) {
	if width == t.width && height == t.height {
		return
	}
	t.width, t.height = width, height
	count := 1
	if t.double {
		count = 2
	}
	for i := 0; i < count; i++ {
		gl.BindTexture(gl.TEXTURE_2D, t.tex[i])
		gl.TexImage2D(gl.TEXTURE_2D, 0, t.internalFormat, int32(width), int32(height), 0, gl.RGBA, texelType(t.internalFormat), nil)
	}
	gl.BindTexture(gl.TEXTURE_2D, 0)
}

func (t *Target) Destroy() {
	count := int32(1)
	if t.double {
		count = 2
	}
	gl.DeleteFramebuffers(count, &t.fbo[0])
	gl.DeleteTextures(count, &t.tex[0])
}

func wrapModeGL(w preset.WrapMode) int32 {
	switch w {
	case preset.WrapClampToBorder:
		return gl.CLAMP_TO_BORDER
	case preset.WrapRepeat:
		return gl.REPEAT
	case preset.WrapMirroredRepeat:
		return gl.MIRRORED_REPEAT
	default:
		return gl.CLAMP_TO_EDGE
	}
}

func applyTexParams(linear bool, wrap preset.WrapMode, mipmap bool) {
	var minFilter, magFilter int32 = gl.NEAREST, gl.NEAREST
	if linear {
		minFilter, magFilter = gl.LINEAR, gl.LINEAR
	}
	if mipmap {
		minFilter = gl.LINEAR_MIPMAP_LINEAR
	}
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, minFilter)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, magFilter)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, wrapModeGL(wrap))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, wrapModeGL(wrap))
}
