package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotUP/retroshade/preset"
	"github.com/spotUP/retroshade/shader"
)

func pass(i int, mutate func(*preset.PassDecl)) preset.PassDecl {
	d := preset.PassDecl{
		Index:      i,
		ScaleTypeX: preset.ScaleSource,
		ScaleTypeY: preset.ScaleSource,
		ScaleX:     1.0,
		ScaleY:     1.0,
	}
	if mutate != nil {
		mutate(&d)
	}
	return d
}

func prog(samplers ...string) *shader.Program {
	return &shader.Program{Samplers: samplers}
}

func TestResolveSizingWalk(t *testing.T) {
	p := &preset.Preset{Passes: []preset.PassDecl{
		pass(0, func(d *preset.PassDecl) { d.ScaleX, d.ScaleY = 0.5, 0.5 }),
		pass(1, nil),
		pass(2, func(d *preset.PassDecl) {
			d.ScaleTypeX, d.ScaleTypeY = preset.ScaleViewport, preset.ScaleViewport
		}),
	}}
	programs := []*shader.Program{prog("Source"), prog("Source"), prog("Source")}

	plan, err := Resolve(p, programs, 800, 600, 800, 600)
	require.NoError(t, err)

	assert.Equal(t, 400, plan.Passes[0].Width)
	assert.Equal(t, 300, plan.Passes[0].Height)
	// Source scale chains off the previous pass's output.
	assert.Equal(t, 400, plan.Passes[1].Width)
	assert.Equal(t, 300, plan.Passes[1].Height)
	// Terminal pass draws the viewport.
	assert.True(t, plan.Passes[2].ToScreen)
	assert.Equal(t, 800, plan.Passes[2].Width)
	assert.Equal(t, 600, plan.Passes[2].Height)
}

func TestResolveAbsoluteScale(t *testing.T) {
	p := &preset.Preset{Passes: []preset.PassDecl{
		pass(0, func(d *preset.PassDecl) {
			d.ScaleTypeX, d.ScaleTypeY = preset.ScaleAbsolute, preset.ScaleAbsolute
			d.ScaleX, d.ScaleY = 256, 224
		}),
		pass(1, nil),
	}}
	programs := []*shader.Program{prog("Source"), prog("Source")}

	plan, err := Resolve(p, programs, 1920, 1080, 1920, 1080)
	require.NoError(t, err)
	assert.Equal(t, 256, plan.Passes[0].Width)
	assert.Equal(t, 224, plan.Passes[0].Height)
}

func TestResolveMixedScaleAxes(t *testing.T) {
	p := &preset.Preset{Passes: []preset.PassDecl{
		pass(0, func(d *preset.PassDecl) {
			d.ScaleTypeY = preset.ScaleViewport
			d.ScaleX, d.ScaleY = 2.0, 1.0
		}),
		pass(1, nil),
	}}
	programs := []*shader.Program{prog("Source"), prog("Source")}

	plan, err := Resolve(p, programs, 320, 240, 1280, 960)
	require.NoError(t, err)
	assert.Equal(t, 640, plan.Passes[0].Width)
	assert.Equal(t, 960, plan.Passes[0].Height)
}

func TestResolveSourceBindingForFirstPassIsOriginal(t *testing.T) {
	p := &preset.Preset{Passes: []preset.PassDecl{pass(0, nil)}}
	plan, err := Resolve(p, []*shader.Program{prog("Source", "Original")}, 320, 240, 640, 480)
	require.NoError(t, err)

	require.Len(t, plan.Passes[0].Bindings, 2)
	assert.Equal(t, BindOriginal, plan.Passes[0].Bindings[0].Kind)
	assert.Equal(t, BindOriginal, plan.Passes[0].Bindings[1].Kind)
	assert.Equal(t, 0, plan.Passes[0].Bindings[0].Unit)
	assert.Equal(t, 1, plan.Passes[0].Bindings[1].Unit)
}

func TestResolveChainBindings(t *testing.T) {
	p := &preset.Preset{Passes: []preset.PassDecl{
		pass(0, func(d *preset.PassDecl) { d.Alias = "Glow" }),
		pass(1, nil),
		pass(2, nil),
	}}
	programs := []*shader.Program{
		prog("Source"),
		prog("Source", "Original"),
		prog("Source", "Glow", "Pass1"),
	}

	plan, err := Resolve(p, programs, 320, 240, 640, 480)
	require.NoError(t, err)

	b := plan.Passes[2].Bindings
	require.Len(t, b, 3)
	assert.Equal(t, BindPassOutput, b[0].Kind)
	assert.Equal(t, 1, b[0].PassIndex)
	assert.Equal(t, BindPassOutput, b[1].Kind)
	assert.Equal(t, 0, b[1].PassIndex)
	assert.Equal(t, BindPassOutput, b[2].Kind)
	assert.Equal(t, 1, b[2].PassIndex)
}

func TestResolveNamedTextureBinding(t *testing.T) {
	p := &preset.Preset{
		Passes:   []preset.PassDecl{pass(0, nil)},
		Textures: []preset.TextureDecl{{Name: "Bezel", Path: "bezel.png"}},
	}
	plan, err := Resolve(p, []*shader.Program{prog("Source", "Bezel")}, 320, 240, 640, 480)
	require.NoError(t, err)

	b := plan.Passes[0].Bindings[1]
	assert.Equal(t, BindTexture, b.Kind)
	assert.Equal(t, "Bezel", b.TextureName)
}

func TestResolveFeedbackFromOwnSampler(t *testing.T) {
	p := &preset.Preset{Passes: []preset.PassDecl{pass(0, nil)}}
	plan, err := Resolve(p, []*shader.Program{prog("Source", "Feedback")}, 320, 240, 640, 480)
	require.NoError(t, err)

	require.True(t, plan.Passes[0].Feedback)
	b := plan.Passes[0].Bindings[1]
	assert.Equal(t, BindFeedback, b.Kind)
	assert.Equal(t, 0, b.PassIndex)
}

func TestResolveFeedbackFromAliasSampler(t *testing.T) {
	p := &preset.Preset{Passes: []preset.PassDecl{
		pass(0, func(d *preset.PassDecl) { d.Alias = "Accum" }),
		pass(1, nil),
	}}
	programs := []*shader.Program{
		prog("Source"),
		prog("Source", "AccumFeedback"),
	}
	plan, err := Resolve(p, programs, 320, 240, 640, 480)
	require.NoError(t, err)

	assert.True(t, plan.Passes[0].Feedback, "alias feedback reference marks the producing pass")
	assert.False(t, plan.Passes[1].Feedback)
	b := plan.Passes[1].Bindings[1]
	assert.Equal(t, BindFeedback, b.Kind)
	assert.Equal(t, 0, b.PassIndex)
}

func TestResolveTextureShadowingSuppressesFeedbackInference(t *testing.T) {
	p := &preset.Preset{
		Passes: []preset.PassDecl{
			pass(0, func(d *preset.PassDecl) { d.Alias = "Glow" }),
			pass(1, nil),
		},
		Textures: []preset.TextureDecl{{Name: "GlowFeedback", Path: "glow.png"}},
	}
	programs := []*shader.Program{
		prog("Source"),
		prog("Source", "GlowFeedback"),
	}
	plan, err := Resolve(p, programs, 320, 240, 640, 480)
	require.NoError(t, err)

	// The slot binds the texture, so no pass needs a ping-pong pair.
	assert.False(t, plan.Passes[0].Feedback)
	b := plan.Passes[1].Bindings[1]
	assert.Equal(t, BindTexture, b.Kind)
	assert.Equal(t, "GlowFeedback", b.TextureName)
}

func TestResolvePresetFeedbackFlagHonored(t *testing.T) {
	p := &preset.Preset{Passes: []preset.PassDecl{
		pass(0, func(d *preset.PassDecl) { d.Feedback = true }),
		pass(1, nil),
	}}
	plan, err := Resolve(p, []*shader.Program{prog("Source"), prog("Source")}, 320, 240, 640, 480)
	require.NoError(t, err)
	assert.True(t, plan.Passes[0].Feedback)
}

func TestResolveUnresolvedSlot(t *testing.T) {
	p := &preset.Preset{Passes: []preset.PassDecl{pass(0, nil)}}
	_, err := Resolve(p, []*shader.Program{prog("Source", "NoSuchThing")}, 320, 240, 640, 480)

	var uerr *UnresolvedBindingError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, 0, uerr.Pass)
	assert.Equal(t, "NoSuchThing", uerr.Slot)
}

func TestResolveForwardAliasReferenceFails(t *testing.T) {
	p := &preset.Preset{Passes: []preset.PassDecl{
		pass(0, nil),
		pass(1, func(d *preset.PassDecl) { d.Alias = "Later" }),
	}}
	programs := []*shader.Program{prog("Source", "Later"), prog("Source")}
	_, err := Resolve(p, programs, 320, 240, 640, 480)

	var uerr *UnresolvedBindingError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, 0, uerr.Pass)
	assert.Equal(t, "Later", uerr.Slot)
}

func TestResolveForwardPassReferenceFails(t *testing.T) {
	p := &preset.Preset{Passes: []preset.PassDecl{pass(0, nil), pass(1, nil)}}
	programs := []*shader.Program{prog("Source", "Pass1"), prog("Source")}
	_, err := Resolve(p, programs, 320, 240, 640, 480)

	var uerr *UnresolvedBindingError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "Pass1", uerr.Slot)
}

func TestResolveProgramCountMismatch(t *testing.T) {
	p := &preset.Preset{Passes: []preset.PassDecl{pass(0, nil), pass(1, nil)}}
	_, err := Resolve(p, []*shader.Program{prog("Source")}, 320, 240, 640, 480)

	var rerr *ResolveError
	require.ErrorAs(t, err, &rerr)
}

func TestResolveEmptyPreset(t *testing.T) {
	_, err := Resolve(&preset.Preset{}, nil, 320, 240, 640, 480)
	var rerr *ResolveError
	require.ErrorAs(t, err, &rerr)
}

func TestResizeRecomputesViewportScaledPasses(t *testing.T) {
	p := &preset.Preset{Passes: []preset.PassDecl{
		pass(0, func(d *preset.PassDecl) {
			d.ScaleTypeX, d.ScaleTypeY = preset.ScaleAbsolute, preset.ScaleAbsolute
			d.ScaleX, d.ScaleY = 512, 512
		}),
		pass(1, nil),
	}}
	plan, err := Resolve(p, []*shader.Program{prog("Source"), prog("Source")}, 320, 240, 640, 480)
	require.NoError(t, err)

	plan.resize(320, 240, 1920, 1080)

	// Absolute sizing is unaffected by the viewport change.
	assert.Equal(t, 512, plan.Passes[0].Width)
	assert.Equal(t, 1920, plan.Passes[1].Width)
	assert.Equal(t, 1080, plan.Passes[1].Height)
}

func TestTargetParityModel(t *testing.T) {
	// Exercises the parity arithmetic without GL: a double target's
	// feedback side must always be the opposite buffer of the write side.
	target := &Target{double: true, tex: [2]uint32{10, 20}}

	target.SetParity(0)
	assert.Equal(t, uint32(10), target.CurrentTexture())
	assert.Equal(t, uint32(20), target.FeedbackTexture())

	target.SetParity(1)
	assert.Equal(t, uint32(20), target.CurrentTexture())
	assert.Equal(t, uint32(10), target.FeedbackTexture())

	// Frame N writes tex[p]; frame N+1 reads it back as feedback.
	target.SetParity(2 & 1)
	writtenFrameN := target.CurrentTexture()
	target.SetParity(3 & 1)
	assert.Equal(t, writtenFrameN, target.FeedbackTexture())
}
