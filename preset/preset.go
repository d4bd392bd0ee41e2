// Package preset parses the declarative pass-chain description that drives the
// pipeline: an ordered list of shader passes plus parameter overrides and named
// texture assets, in the line-oriented "key = value" form CRT preset files use.
package preset

import "fmt"

// ScaleType selects how a pass's render target is sized.
type ScaleType int

const (
	// ScaleSource sizes relative to the previous pass's output (the raw input
	// for pass 0).
	ScaleSource ScaleType = iota
	// ScaleViewport sizes relative to the final display size.
	ScaleViewport
	// ScaleAbsolute uses literal pixel dimensions.
	ScaleAbsolute
)

func (s ScaleType) String() string {
	switch s {
	case ScaleSource:
		return "source"
	case ScaleViewport:
		return "viewport"
	case ScaleAbsolute:
		return "absolute"
	}
	return fmt.Sprintf("ScaleType(%d)", int(s))
}

// WrapMode is the texture coordinate wrapping policy for a pass's output.
type WrapMode int

const (
	WrapClampToEdge WrapMode = iota
	WrapClampToBorder
	WrapRepeat
	WrapMirroredRepeat
)

func (w WrapMode) String() string {
	switch w {
	case WrapClampToEdge:
		return "clamp_to_edge"
	case WrapClampToBorder:
		return "clamp_to_border"
	case WrapRepeat:
		return "repeat"
	case WrapMirroredRepeat:
		return "mirrored_repeat"
	}
	return fmt.Sprintf("WrapMode(%d)", int(w))
}

// PassDecl is one pass as declared by the preset. Index positions are
// contiguous from zero; execution order is index order.
type PassDecl struct {
	Index      int
	SourcePath string

	ScaleTypeX ScaleType
	ScaleTypeY ScaleType
	ScaleX     float64
	ScaleY     float64

	FilterLinear     bool
	Wrap             WrapMode
	FloatFramebuffer bool
	SRGBFramebuffer  bool

	// Feedback is set when the preset forces a previous-frame pair for this
	// pass. Sampler-based detection happens later, once shader sources are
	// compiled; this flag only ever goes from false to true.
	Feedback bool

	// Alias, when non-empty, is the handle other passes use to sample this
	// pass's output (and "<Alias>Feedback" for its previous frame).
	Alias string
}

// TextureDecl is a named static texture asset referenced by sampler name.
type TextureDecl struct {
	Name   string
	Path   string
	Linear bool
	Wrap   WrapMode
	Mipmap bool
}

// Preset is the parsed aggregate: the unit of load/unload.
type Preset struct {
	// Path is the top-level preset file this was parsed from, when known.
	Path string

	Passes []PassDecl

	// ParameterOverrides are "name = value" entries applied after shader
	// compilation registers the declared parameters.
	ParameterOverrides map[string]float64

	// Textures holds named texture declarations in declaration order.
	Textures []TextureDecl
}

// TextureByName returns the named texture declaration, if present.
func (p *Preset) TextureByName(name string) (TextureDecl, bool) {
	for _, t := range p.Textures {
		if t.Name == name {
			return t, true
		}
	}
	return TextureDecl{}, false
}

// PassByAlias returns the index of the pass carrying the given alias, or -1.
func (p *Preset) PassByAlias(alias string) int {
	for i := range p.Passes {
		if p.Passes[i].Alias == alias {
			return i
		}
	}
	return -1
}
