package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	o, err := Parse([]string{"-preset", "crt.slangp", "-input", "frame.png"})
	require.NoError(t, err)
	assert.Equal(t, "crt.slangp", o.PresetPath)
	assert.Equal(t, 1280, o.Width)
	assert.Equal(t, 720, o.Height)
	assert.False(t, o.Record)
	assert.Empty(t, o.Params)
}

func TestParseRepeatedParamOverrides(t *testing.T) {
	o, err := Parse([]string{
		"-preset", "crt.slangp", "-input", "frame.png",
		"-param", "CURVATURE=0.5",
		"-param", "SCANLINE_STRENGTH=0.25",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{
		"CURVATURE":         0.5,
		"SCANLINE_STRENGTH": 0.25,
	}, o.Params)
}

func TestParseRejectsMalformedOverride(t *testing.T) {
	_, err := Parse([]string{"-preset", "p", "-input", "i", "-param", "CURVATURE"})
	assert.Error(t, err)

	_, err = Parse([]string{"-preset", "p", "-input", "i", "-param", "CURVATURE=abc"})
	assert.Error(t, err)
}

func TestParseRequiresPresetAndInput(t *testing.T) {
	_, err := Parse([]string{"-input", "frame.png"})
	assert.Error(t, err)

	_, err = Parse([]string{"-preset", "crt.slangp"})
	assert.Error(t, err)
}
