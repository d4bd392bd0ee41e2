package shader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
	gst "github.com/richinsley/goshadertranslator"

	"github.com/spotUP/retroshade/params"
)

// CompileError reports a stage that failed to parse, translate, compile or
// link. Pass is the chain index the source was compiled for.
type CompileError struct {
	Pass    int
	Stage   string
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("shader: pass %d: %s stage: %s", e.Pass, e.Stage, e.Message)
}

// Program is the linked GPU artifact for one pass, with uniform locations
// resolved through the translator's name mapping.
type Program struct {
	Handle uint32

	// Samplers mirrors Source.Samplers; SamplerLocs[i] is the uniform
	// location for Samplers[i], or -1 when the translator dropped it as
	// inactive.
	Samplers    []string
	SamplerLocs []int32

	// ParameterNames lists the tunables this program consumes, with
	// ParamLocs parallel to it.
	ParameterNames []string
	ParamLocs      []int32

	SourceSizeLoc   int32
	OriginalSizeLoc int32
	OutputSizeLoc   int32
	FrameCountLoc   int32
}

// Release deletes the GL program. Safe on a zero handle.
func (p *Program) Release() {
	if p.Handle != 0 {
		gl.DeleteProgram(p.Handle)
		p.Handle = 0
	}
}

// Compiler translates portable pass sources to the context's native GLSL and
// links them. The translator instance is expensive to start and is reused
// across preset loads; the parameter registry is not, since parameters live
// and die with their preset.
type Compiler struct {
	translator *gst.ShaderTranslator
	gles       bool
}

// NewCompiler starts the embedded translator.
func NewCompiler(gles bool) (*Compiler, error) {
	tr, err := gst.NewShaderTranslator(context.Background())
	if err != nil {
		return nil, fmt.Errorf("shader: starting translator: %w", err)
	}
	return &Compiler{translator: tr, gles: gles}, nil
}

// CompileFile loads, translates and links one pass source. Parameters are
// registered with reg only after the whole program links: a failing pass
// contributes nothing to the registry.
func (c *Compiler) CompileFile(path string, passIndex int, reg *params.Registry) (*Program, error) {
	src, err := LoadSource(path)
	if err != nil {
		return nil, &CompileError{Pass: passIndex, Stage: "fragment", Message: err.Error()}
	}
	return c.Compile(src, passIndex, reg)
}

// Compile translates and links an already-parsed source.
func (c *Compiler) Compile(src *Source, passIndex int, reg *params.Registry) (*Program, error) {
	outputFormat := gst.OutputFormatGLSL410
	if c.gles {
		outputFormat = gst.OutputFormatESSL
	}

	fsPortable := fragmentPreamble(src.Parameters) + src.FragmentBody
	fsShader, err := c.translator.TranslateShader(fsPortable, "fragment", gst.ShaderSpecWebGL2, outputFormat)
	if err != nil {
		return nil, &CompileError{Pass: passIndex, Stage: "fragment", Message: err.Error()}
	}

	var vsCode string
	var vsVars map[string]gst.ShaderVariable
	if src.VertexBody == "" {
		vsCode = defaultVertexShader(mappedName(fsShader.Variables, "vTexCoord"), c.gles)
	} else {
		vsPortable := vertexPreamble(src.Parameters) + src.VertexBody
		vsShader, err := c.translator.TranslateShader(vsPortable, "vertex", gst.ShaderSpecWebGL2, outputFormat)
		if err != nil {
			return nil, &CompileError{Pass: passIndex, Stage: "vertex", Message: err.Error()}
		}
		vsCode = vsShader.Code
		vsVars = vsShader.Variables
	}

	handle, err := linkProgram(vsCode, fsShader.Code, attribBindings(vsVars))
	if err != nil {
		stage := "link"
		var serr *stageError
		if errors.As(err, &serr) {
			stage = serr.stage
		}
		return nil, &CompileError{Pass: passIndex, Stage: stage, Message: err.Error()}
	}

	prog := &Program{
		Handle:   handle,
		Samplers: append([]string(nil), src.Samplers...),
	}
	gl.UseProgram(handle)

	prog.SourceSizeLoc = uniformLocation(fsShader.Variables, handle, "SourceSize")
	prog.OriginalSizeLoc = uniformLocation(fsShader.Variables, handle, "OriginalSize")
	prog.OutputSizeLoc = uniformLocation(fsShader.Variables, handle, "OutputSize")
	prog.FrameCountLoc = uniformLocation(fsShader.Variables, handle, "FrameCount")

	prog.SamplerLocs = make([]int32, len(src.Samplers))
	for i, slot := range src.Samplers {
		prog.SamplerLocs[i] = uniformLocation(fsShader.Variables, handle, slot)
	}

	// The program linked; now the pass's parameters become part of the
	// global set. Registration is idempotent so passes may share tunables.
	prog.ParameterNames = make([]string, len(src.Parameters))
	prog.ParamLocs = make([]int32, len(src.Parameters))
	for i, d := range src.Parameters {
		reg.Register(params.Parameter{
			Name:        d.Name,
			DisplayName: d.DisplayName,
			Default:     d.Default,
			Min:         d.Min,
			Max:         d.Max,
			Step:        d.Step,
		})
		prog.ParameterNames[i] = d.Name
		prog.ParamLocs[i] = uniformLocation(fsShader.Variables, handle, d.Name)
	}

	return prog, nil
}

// fragmentPreamble supplies the built-in uniforms, the injected parameter
// uniforms and the stage interface every portable fragment body sees.
func fragmentPreamble(parameters []ParameterDirective) string {
	var sb strings.Builder
	sb.WriteString(`#version 300 es
precision highp float;
precision highp int;

uniform vec4 SourceSize;
uniform vec4 OriginalSize;
uniform vec4 OutputSize;
uniform int FrameCount;
`)
	for _, p := range parameters {
		fmt.Fprintf(&sb, "uniform float %s;\n", p.Name)
	}
	sb.WriteString(`
in vec2 vTexCoord;
out vec4 FragColor;
`)
	return sb.String()
}

func vertexPreamble(parameters []ParameterDirective) string {
	var sb strings.Builder
	sb.WriteString(`#version 300 es
precision highp float;

uniform vec4 SourceSize;
uniform vec4 OriginalSize;
uniform vec4 OutputSize;
uniform int FrameCount;
`)
	for _, p := range parameters {
		fmt.Fprintf(&sb, "uniform float %s;\n", p.Name)
	}
	sb.WriteString(`
in vec2 Position;
out vec2 vTexCoord;
`)
	return sb.String()
}

// defaultVertexShader is generated natively (not translated); texCoordName
// must match the fragment stage's mapped varying name.
func defaultVertexShader(texCoordName string, gles bool) string {
	version := "#version 410 core"
	if gles {
		version = "#version 300 es\nprecision highp float;"
	}
	return fmt.Sprintf(`%s
layout (location = 0) in vec2 in_vert;
out vec2 %s;
void main() {
    %s = in_vert * 0.5 + 0.5;
    gl_Position = vec4(in_vert, 0.0, 1.0);
}
`, version, texCoordName, texCoordName)
}

// mappedName returns the translator's output name for a declared variable,
// falling back to the original when the translator kept it verbatim.
func mappedName(vars map[string]gst.ShaderVariable, name string) string {
	if v, ok := vars[name]; ok && v.MappedName != "" {
		return v.MappedName
	}
	return name
}

func uniformLocation(vars map[string]gst.ShaderVariable, program uint32, name string) int32 {
	v, ok := vars[name]
	if !ok {
		return -1
	}
	return gl.GetUniformLocation(program, gl.Str(v.MappedName+"\x00"))
}

// attribBindings pins the position attribute to location 0 so translated
// vertex stages stay compatible with the shared quad VAO.
func attribBindings(vsVars map[string]gst.ShaderVariable) map[uint32]string {
	if vsVars == nil {
		return nil
	}
	v, ok := vsVars["Position"]
	if !ok {
		return nil
	}
	return map[uint32]string{0: v.MappedName}
}

type stageError struct {
	stage string
	msg   string
}

func (e *stageError) Error() string { return e.msg }

func linkProgram(vertexSource, fragmentSource string, attribs map[uint32]string) (uint32, error) {
	vertexShader, err := compileStage(vertexSource, gl.VERTEX_SHADER, "vertex")
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(vertexShader)

	fragmentShader, err := compileStage(fragmentSource, gl.FRAGMENT_SHADER, "fragment")
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(fragmentShader)

	program := gl.CreateProgram()
	gl.AttachShader(program, vertexShader)
	gl.AttachShader(program, fragmentShader)
	for loc, name := range attribs {
		gl.BindAttribLocation(program, loc, gl.Str(name+"\x00"))
	}
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		infoLog := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(infoLog))
		gl.DeleteProgram(program)
		return 0, &stageError{stage: "link", msg: fmt.Sprintf("failed to link program: %v", infoLog)}
	}

	return program, nil
}

func compileStage(source string, shaderType uint32, stage string) (uint32, error) {
	handle := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(handle, 1, csources, nil)
	free()
	gl.CompileShader(handle)

	var status int32
	gl.GetShaderiv(handle, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(handle, gl.INFO_LOG_LENGTH, &logLength)
		infoLog := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(handle, logLength, nil, gl.Str(infoLog))
		gl.DeleteShader(handle)
		return 0, &stageError{stage: stage, msg: fmt.Sprintf("failed to compile %s shader: %v", stage, infoLog)}
	}
	return handle, nil
}
