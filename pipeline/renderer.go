package pipeline

import (
	"errors"
	"fmt"
	"sync"

	gl "github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/spotUP/retroshade/graphics"
	"github.com/spotUP/retroshade/params"
	"github.com/spotUP/retroshade/preset"
	"github.com/spotUP/retroshade/shader"
)

// State tracks the pipeline lifecycle. Render is only meaningful in
// StateReady; anywhere else it reports ErrNotReady so the caller presents the
// raw input instead.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateLoadFailed
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateLoadFailed:
		return "load-failed"
	case StateDisposed:
		return "disposed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// PipelineError wraps any parse, compile or resolve failure surfaced by
// LoadPreset.
type PipelineError struct {
	Path string
	Err  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline: loading %s: %v", e.Path, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// RenderFailure reports a GPU-level error raised while executing the chain.
// The frame's output is unusable; callers present the raw input instead.
type RenderFailure struct {
	Pass int
	Code uint32
}

func (e *RenderFailure) Error() string {
	return fmt.Sprintf("pipeline: GL error 0x%04x during pass %d", e.Code, e.Pass)
}

var (
	// ErrNotReady signals that no pipeline is loaded; present the input
	// unprocessed.
	ErrNotReady = errors.New("pipeline: not ready")

	// ErrLoadInProgress rejects a LoadPreset call made while another load
	// is still running. Loads never interleave.
	ErrLoadInProgress = errors.New("pipeline: load already in progress")

	// ErrDisposed rejects any operation on a disposed renderer.
	ErrDisposed = errors.New("pipeline: renderer is disposed")
)

var glInitOnce sync.Once

var quadVertices = []float32{
	-1.0, 1.0, -1.0, -1.0, 1.0, -1.0,
	-1.0, 1.0, 1.0, -1.0, 1.0, 1.0,
}

// Renderer owns the live execution plan and the GPU resources behind it.
// All methods must run on the thread that owns the GL context; parameter
// updates are the only operation safe to trigger from a host UI goroutine
// (they funnel through the mutex-guarded registry).
type Renderer struct {
	ctx      graphics.Context
	log      *zap.Logger
	compiler *shader.Compiler

	state    State
	plan     *ExecutionPlan
	registry *params.Registry

	inputWidth  int
	inputHeight int

	quadVAO     uint32
	quadVBO     uint32
	blitProgram uint32

	frameIndex int
}

// NewRenderer initializes GL state for the given context. width and height
// describe the live input texture the host will supply each frame.
func NewRenderer(ctx graphics.Context, width, height int, logger *zap.Logger) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx.MakeCurrent()
	var initErr error
	glInitOnce.Do(func() {
		initErr = gl.Init()
	})
	if initErr != nil {
		return nil, fmt.Errorf("pipeline: initializing OpenGL: %w", initErr)
	}

	compiler, err := shader.NewCompiler(ctx.IsGLES())
	if err != nil {
		return nil, err
	}

	r := &Renderer{
		ctx:         ctx,
		log:         logger,
		compiler:    compiler,
		state:       StateUnloaded,
		registry:    params.New(),
		inputWidth:  width,
		inputHeight: height,
	}

	gl.GenVertexArrays(1, &r.quadVAO)
	gl.GenBuffers(1, &r.quadVBO)
	gl.BindVertexArray(r.quadVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.quadVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(quadVertices)*4, gl.Ptr(quadVertices), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 2*4, gl.PtrOffset(0))
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)

	r.blitProgram, err = shader.CompileNative(
		shader.BlitVertexSource(ctx.IsGLES()),
		shader.BlitFragmentSource(ctx.IsGLES()),
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline: building blit program: %w", err)
	}

	return r, nil
}

// State returns the current lifecycle state.
func (r *Renderer) State() State { return r.state }

// Params exposes the live preset's parameter registry for host UI. The
// registry is replaced wholesale on every successful LoadPreset.
func (r *Renderer) Params() *params.Registry { return r.registry }

// LoadPreset parses, compiles and resolves the preset at path, then swaps it
// in atomically. On any failure the previously loaded pipeline, if any, stays
// fully intact and renderable.
func (r *Renderer) LoadPreset(path string) error {
	switch r.state {
	case StateDisposed:
		return ErrDisposed
	case StateLoading:
		return ErrLoadInProgress
	}
	prev := r.state
	r.state = StateLoading

	registry := params.New()
	plan, err := r.buildPipeline(path, registry)
	if err != nil {
		if prev == StateReady {
			r.state = StateReady
		} else {
			r.state = StateLoadFailed
		}
		r.log.Warn("preset load failed", zap.String("path", path), zap.Error(err))
		return &PipelineError{Path: path, Err: err}
	}

	if r.plan != nil {
		r.plan.destroy()
	}
	r.plan = plan
	r.registry = registry
	r.frameIndex = 0
	r.state = StateReady

	r.log.Info("preset loaded",
		zap.String("path", path),
		zap.Int("passes", len(plan.Passes)),
		zap.Int("parameters", registry.Len()))
	return nil
}

func (r *Renderer) buildPipeline(path string, registry *params.Registry) (*ExecutionPlan, error) {
	pr, err := preset.ParseFile(path)
	if err != nil {
		return nil, err
	}

	programs := make([]*shader.Program, 0, len(pr.Passes))
	releasePrograms := func() {
		for _, prog := range programs {
			prog.Release()
		}
	}
	for i := range pr.Passes {
		prog, err := r.compiler.CompileFile(pr.Passes[i].SourcePath, i, registry)
		if err != nil {
			releasePrograms()
			return nil, err
		}
		programs = append(programs, prog)
	}

	viewportW, viewportH := r.ctx.GetFramebufferSize()
	plan, err := Resolve(pr, programs, r.inputWidth, r.inputHeight, viewportW, viewportH)
	if err != nil {
		releasePrograms()
		return nil, err
	}

	if err := r.allocate(plan, pr); err != nil {
		plan.destroy()
		return nil, err
	}

	for name, value := range pr.ParameterOverrides {
		if err := registry.Set(name, value); err != nil {
			// Overrides for tunables no shader declares are harmless;
			// surface them, don't fail the load.
			r.log.Warn("preset overrides undeclared parameter", zap.String("name", name))
		}
	}
	return plan, nil
}

// allocate creates the plan's render targets and named textures. The
// terminal pass renders to the framebuffer and normally needs no target,
// unless it is a feedback pass: then it draws into its pair and the result is
// blitted to the screen so the previous frame stays sampleable.
func (r *Renderer) allocate(plan *ExecutionPlan, pr *preset.Preset) error {
	for _, pass := range plan.Passes {
		if pass.ToScreen && !pass.Feedback {
			continue
		}
		target, err := newTarget(pass.Width, pass.Height, pass.Decl, pass.Feedback)
		if err != nil {
			return err
		}
		pass.target = target
	}

	plan.textures = make(map[string]*ImageTexture, len(pr.Textures))
	for _, decl := range pr.Textures {
		tex, err := loadImageTexture(decl)
		if err != nil {
			return err
		}
		plan.textures[decl.Name] = tex
	}
	return nil
}

// UpdateParameters bulk-applies values into the registry. Values take effect
// on the next Render call; uniforms are re-read every frame.
func (r *Renderer) UpdateParameters(values map[string]float64) error {
	for name, v := range values {
		if err := r.registry.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

// Render executes the plan against the given input texture, drawing the
// terminal pass to the visible framebuffer. On error the framebuffer content
// is undefined and the caller must present the raw input instead (BlitInput).
func (r *Renderer) Render(inputTexture uint32, inputW, inputH int) error {
	viewportW, viewportH := r.ctx.GetFramebufferSize()
	return r.renderTo(0, viewportW, viewportH, inputTexture, inputW, inputH)
}

func (r *Renderer) renderTo(destFBO uint32, viewportW, viewportH int, inputTexture uint32, inputW, inputH int) error {
	if r.state != StateReady {
		return ErrNotReady
	}
	plan := r.plan

	if inputW != plan.InputWidth || inputH != plan.InputHeight ||
		viewportW != plan.ViewportWidth || viewportH != plan.ViewportHeight {
		plan.resize(inputW, inputH, viewportW, viewportH)
	}

	parity := r.frameIndex & 1
	for _, pass := range plan.Passes {
		if pass.target != nil {
			pass.target.SetParity(parity)
		}
	}

	values, _ := r.registry.Snapshot()

	prevW, prevH := inputW, inputH
	for i, pass := range plan.Passes {
		if pass.target != nil {
			pass.target.BindForWriting()
		} else {
			gl.BindFramebuffer(gl.FRAMEBUFFER, destFBO)
			gl.Viewport(0, 0, int32(viewportW), int32(viewportH))
		}
		gl.ClearColor(0, 0, 0, 1)
		gl.Clear(gl.COLOR_BUFFER_BIT)

		gl.UseProgram(pass.Program.Handle)
		r.setBuiltinUniforms(pass, prevW, prevH, inputW, inputH)
		r.setParameterUniforms(pass, values)
		r.bindSlots(pass, inputTexture)

		gl.BindVertexArray(r.quadVAO)
		gl.DrawArrays(gl.TRIANGLES, 0, 6)
		unbindSlots(pass)

		if code := gl.GetError(); code != gl.NO_ERROR {
			gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
			return &RenderFailure{Pass: i, Code: code}
		}
		prevW, prevH = pass.Width, pass.Height
	}

	// A feedback terminal pass drew into its pair; present it.
	last := plan.Passes[len(plan.Passes)-1]
	if last.target != nil {
		r.blitTo(destFBO, viewportW, viewportH, last.target.CurrentTexture())
	}

	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	r.frameIndex++
	return nil
}

func (r *Renderer) setBuiltinUniforms(pass *PassPlan, sourceW, sourceH, inputW, inputH int) {
	prog := pass.Program
	if prog.SourceSizeLoc != -1 {
		gl.Uniform4f(prog.SourceSizeLoc, float32(sourceW), float32(sourceH), 1/float32(sourceW), 1/float32(sourceH))
	}
	if prog.OriginalSizeLoc != -1 {
		gl.Uniform4f(prog.OriginalSizeLoc, float32(inputW), float32(inputH), 1/float32(inputW), 1/float32(inputH))
	}
	if prog.OutputSizeLoc != -1 {
		gl.Uniform4f(prog.OutputSizeLoc, float32(pass.Width), float32(pass.Height), 1/float32(pass.Width), 1/float32(pass.Height))
	}
	if prog.FrameCountLoc != -1 {
		gl.Uniform1i(prog.FrameCountLoc, int32(r.frameIndex))
	}
}

func (r *Renderer) setParameterUniforms(pass *PassPlan, values map[string]float64) {
	prog := pass.Program
	for i, name := range prog.ParameterNames {
		if prog.ParamLocs[i] == -1 {
			continue
		}
		gl.Uniform1f(prog.ParamLocs[i], float32(values[name]))
	}
}

func (r *Renderer) bindSlots(pass *PassPlan, inputTexture uint32) {
	plan := r.plan
	for _, b := range pass.Bindings {
		var tex uint32
		switch b.Kind {
		case BindOriginal:
			tex = inputTexture
		case BindPassOutput:
			tex = plan.Passes[b.PassIndex].target.CurrentTexture()
		case BindFeedback:
			tex = plan.Passes[b.PassIndex].target.FeedbackTexture()
		case BindTexture:
			tex = plan.textures[b.TextureName].TextureID()
		}

		gl.ActiveTexture(gl.TEXTURE0 + uint32(b.Unit))
		gl.BindTexture(gl.TEXTURE_2D, tex)
		if b.Kind != BindTexture {
			// filter_linear/wrap_mode describe how this pass samples its
			// chain inputs; asset textures carry their own parameters.
			applyTexParams(pass.Decl.FilterLinear, pass.Decl.Wrap, false)
		}
		if loc := pass.Program.SamplerLocs[b.Unit]; loc != -1 {
			gl.Uniform1i(loc, int32(b.Unit))
		}
	}
}

func unbindSlots(pass *PassPlan) {
	for _, b := range pass.Bindings {
		gl.ActiveTexture(gl.TEXTURE0 + uint32(b.Unit))
		gl.BindTexture(gl.TEXTURE_2D, 0)
	}
}

// BlitInput presents a texture directly to the visible framebuffer. This is
// the fallback path when no pipeline is loaded or a frame failed mid-chain.
func (r *Renderer) BlitInput(texture uint32) {
	viewportW, viewportH := r.ctx.GetFramebufferSize()
	r.blitTo(0, viewportW, viewportH, texture)
}

func (r *Renderer) blitTo(destFBO uint32, viewportW, viewportH int, texture uint32) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, destFBO)
	gl.Viewport(0, 0, int32(viewportW), int32(viewportH))
	gl.Clear(gl.COLOR_BUFFER_BIT)
	gl.UseProgram(r.blitProgram)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, texture)
	gl.BindVertexArray(r.quadVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 6)
	gl.BindTexture(gl.TEXTURE_2D, 0)
}

// Dispose releases every GPU resource deterministically. Safe to call on an
// already-disposed or never-loaded renderer.
func (r *Renderer) Dispose() {
	if r.state == StateDisposed {
		return
	}
	if r.plan != nil {
		r.plan.destroy()
		r.plan = nil
	}
	if r.blitProgram != 0 {
		gl.DeleteProgram(r.blitProgram)
		r.blitProgram = 0
	}
	if r.quadVAO != 0 {
		gl.DeleteVertexArrays(1, &r.quadVAO)
		gl.DeleteBuffers(1, &r.quadVBO)
		r.quadVAO = 0
	}
	r.registry = params.New()
	r.state = StateDisposed
}
