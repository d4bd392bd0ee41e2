package shader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const crtSource = `
#pragma parameter CURVATURE "Screen Curvature" 0.10 0.0 0.5 0.01
#pragma parameter SCANLINE_WEIGHT "Scanline Weight" 6.0 0.5 15.0 0.5

uniform sampler2D Source;
uniform sampler2D Original;
uniform sampler2D Bezel;

void main() {
    vec2 uv = vTexCoord;
    FragColor = texture(Source, uv) * texture(Bezel, uv);
}
`

func TestParseSourceParametersAndSamplers(t *testing.T) {
	src, err := ParseSource(crtSource, "crt.slang")
	require.NoError(t, err)

	require.Len(t, src.Parameters, 2)
	p := src.Parameters[0]
	assert.Equal(t, "CURVATURE", p.Name)
	assert.Equal(t, "Screen Curvature", p.DisplayName)
	assert.Equal(t, 0.10, p.Default)
	assert.Equal(t, 0.0, p.Min)
	assert.Equal(t, 0.5, p.Max)
	assert.Equal(t, 0.01, p.Step)

	assert.Equal(t, []string{"Source", "Original", "Bezel"}, src.Samplers)

	// Pragmas are stripped, samplers stay.
	assert.NotContains(t, src.FragmentBody, "#pragma parameter")
	assert.Contains(t, src.FragmentBody, "uniform sampler2D Source;")
	assert.Empty(t, src.VertexBody)
}

func TestParseSourceStageSplit(t *testing.T) {
	text := `
uniform sampler2D Source;

#pragma stage vertex
void main() { vTexCoord = Position * 0.5 + 0.5; gl_Position = vec4(Position, 0.0, 1.0); }

#pragma stage fragment
void main() { FragColor = texture(Source, vTexCoord); }
`
	src, err := ParseSource(text, "warp.slang")
	require.NoError(t, err)
	assert.Contains(t, src.VertexBody, "gl_Position")
	assert.Contains(t, src.FragmentBody, "FragColor")
	// Shared prefix is present in both stages.
	assert.Contains(t, src.VertexBody, "uniform sampler2D Source;")
	assert.Contains(t, src.FragmentBody, "uniform sampler2D Source;")
}

func TestParseSourceMalformedParameter(t *testing.T) {
	_, err := ParseSource(`#pragma parameter FOO "Foo" 1.0 banana 2.0`, "foo.slang")
	var derr *DirectiveError
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Msg, "FOO")
}

func TestParseSourceParameterMinAboveMax(t *testing.T) {
	_, err := ParseSource(`#pragma parameter FOO "Foo" 1.0 2.0 1.0`, "foo.slang")
	var derr *DirectiveError
	require.ErrorAs(t, err, &derr)
}

func TestParseSourceUnknownPragmaIgnored(t *testing.T) {
	src, err := ParseSource("#pragma format R8G8B8A8\nvoid main() { FragColor = vec4(1.0); }\n", "x.slang")
	require.NoError(t, err)
	assert.Contains(t, src.FragmentBody, "#pragma format")
}

func TestSamplerDeduplication(t *testing.T) {
	text := "uniform sampler2D Source;\nuniform sampler2D Source;\nuniform sampler2D Feedback;\n"
	src, err := ParseSource(text, "x.slang")
	require.NoError(t, err)
	assert.Equal(t, []string{"Source", "Feedback"}, src.Samplers)
}

func TestLoadSourceResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib", "gamma.inc"),
		[]byte("vec3 toLinear(vec3 c) { return pow(c, vec3(2.2)); }\n"), 0o644))
	main := `#include "lib/gamma.inc"
uniform sampler2D Source;
void main() { FragColor = vec4(toLinear(texture(Source, vTexCoord).rgb), 1.0); }
`
	path := filepath.Join(dir, "main.slang")
	require.NoError(t, os.WriteFile(path, []byte(main), 0o644))

	src, err := LoadSource(path)
	require.NoError(t, err)
	assert.Contains(t, src.FragmentBody, "toLinear")
	assert.NotContains(t, src.FragmentBody, "#include")
}

func TestLoadSourceDuplicateIncludeElided(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "common.inc"), []byte("float marker;\n"), 0o644))
	main := "#include \"common.inc\"\n#include \"common.inc\"\nvoid main() {}\n"
	path := filepath.Join(dir, "main.slang")
	require.NoError(t, os.WriteFile(path, []byte(main), 0o644))

	src, err := LoadSource(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(src.FragmentBody, "float marker;"))
}

func TestLoadSourceCyclicInclude(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.inc")
	b := filepath.Join(dir, "b.inc")
	require.NoError(t, os.WriteFile(a, []byte("#include \"b.inc\"\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("#include \"a.inc\"\n"), 0o644))

	_, err := LoadSource(a)
	var cyc *CyclicIncludeError
	require.ErrorAs(t, err, &cyc)
}

func TestParametersFromIncludedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "params.inc"),
		[]byte("#pragma parameter SHARED_GAIN \"Gain\" 1.0 0.0 2.0 0.1\n"), 0o644))
	main := "#include \"params.inc\"\nvoid main() { FragColor = vec4(SHARED_GAIN); }\n"
	path := filepath.Join(dir, "main.slang")
	require.NoError(t, os.WriteFile(path, []byte(main), 0o644))

	src, err := LoadSource(path)
	require.NoError(t, err)
	require.Len(t, src.Parameters, 1)
	assert.Equal(t, "SHARED_GAIN", src.Parameters[0].Name)
}
