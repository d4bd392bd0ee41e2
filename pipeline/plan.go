// Package pipeline resolves a parsed preset and its compiled passes into a
// concrete execution plan (target sizes, feedback pairs, per-slot binding
// tables) and executes that plan once per frame against a live input texture.
package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spotUP/retroshade/preset"
	"github.com/spotUP/retroshade/shader"
)

// Reserved sampler slot names. Anything else resolves through pass aliases,
// "PassN" references or preset texture declarations.
const (
	slotOriginal = "Original"
	slotSource   = "Source"
	slotFeedback = "Feedback"

	feedbackSuffix = "Feedback"
	passPrefix     = "Pass"
)

// BindingKind says which concrete texture a sampler slot reads.
type BindingKind int

const (
	// BindOriginal is the live input frame.
	BindOriginal BindingKind = iota
	// BindPassOutput is the current-frame output of an earlier pass.
	BindPassOutput
	// BindFeedback is the previous-frame output of a feedback pass.
	BindFeedback
	// BindTexture is a named static texture asset.
	BindTexture
)

// Binding maps one declared sampler slot to its source. Unit doubles as the
// texture unit index, following slot declaration order.
type Binding struct {
	Slot string
	Unit int
	Kind BindingKind

	// PassIndex identifies the producing pass for BindPassOutput and
	// BindFeedback.
	PassIndex int

	// TextureName identifies the asset for BindTexture.
	TextureName string
}

// PassPlan is one pass with its resolved output size and binding table.
type PassPlan struct {
	Decl    preset.PassDecl
	Program *shader.Program

	Width  int
	Height int

	// Feedback passes carry a ping-pong target pair so their previous
	// frame stays readable while the current one is written.
	Feedback bool

	// ToScreen marks the terminal pass, which renders to the visible
	// framebuffer instead of an off-screen target.
	ToScreen bool

	Bindings []Binding

	target *Target
}

// ExecutionPlan is the resolved, ready-to-run form of a preset.
type ExecutionPlan struct {
	Passes []*PassPlan

	InputWidth  int
	InputHeight int

	ViewportWidth  int
	ViewportHeight int

	textures map[string]*ImageTexture
}

// UnresolvedBindingError reports a sampler slot that matched no known source.
// This is a load-time failure, never a per-frame one.
type UnresolvedBindingError struct {
	Pass int
	Slot string
}

func (e *UnresolvedBindingError) Error() string {
	return fmt.Sprintf("pipeline: pass %d: sampler slot %q cannot be bound to any source", e.Pass, e.Slot)
}

// ResolveError reports a structural problem with the chain itself.
type ResolveError struct {
	Msg string
}

func (e *ResolveError) Error() string {
	return "pipeline: " + e.Msg
}

// Resolve computes target sizes, feedback allocation and binding tables for
// the chain. programs must parallel p.Passes. The result owns no GPU
// resources yet; the renderer allocates them when it adopts the plan.
func Resolve(p *preset.Preset, programs []*shader.Program, inputW, inputH, viewportW, viewportH int) (*ExecutionPlan, error) {
	if len(programs) != len(p.Passes) {
		return nil, &ResolveError{Msg: fmt.Sprintf("%d passes but %d compiled programs", len(p.Passes), len(programs))}
	}
	if len(p.Passes) == 0 {
		return nil, &ResolveError{Msg: "preset declares no passes"}
	}
	if inputW <= 0 || inputH <= 0 || viewportW <= 0 || viewportH <= 0 {
		return nil, &ResolveError{Msg: fmt.Sprintf("degenerate sizes: input %dx%d viewport %dx%d", inputW, inputH, viewportW, viewportH)}
	}

	plan := &ExecutionPlan{
		InputWidth:     inputW,
		InputHeight:    inputH,
		ViewportWidth:  viewportW,
		ViewportHeight: viewportH,
	}
	for i := range p.Passes {
		plan.Passes = append(plan.Passes, &PassPlan{
			Decl:     p.Passes[i],
			Program:  programs[i],
			Feedback: p.Passes[i].Feedback,
		})
	}

	markFeedback(plan, p)
	sizePasses(plan)

	for i, pass := range plan.Passes {
		bindings, err := resolveBindings(p, plan, i, pass.Program.Samplers)
		if err != nil {
			return nil, err
		}
		pass.Bindings = bindings
	}
	return plan, nil
}

// markFeedback infers feedback passes from sampler declarations: a pass's own
// "Feedback" slot, or any pass sampling "<Alias>Feedback".
func markFeedback(plan *ExecutionPlan, p *preset.Preset) {
	for i, pass := range plan.Passes {
		for _, slot := range pass.Program.Samplers {
			if slot == slotFeedback {
				plan.Passes[i].Feedback = true
				continue
			}
			// A preset texture shadows the slot (resolveNamedSlot binds the
			// texture), so it must not imply a feedback pair either.
			if _, ok := p.TextureByName(slot); ok {
				continue
			}
			if alias, ok := strings.CutSuffix(slot, feedbackSuffix); ok && alias != "" {
				if j := p.PassByAlias(alias); j >= 0 {
					plan.Passes[j].Feedback = true
				}
			}
		}
	}
}

// sizePasses walks the chain applying each pass's scale policy. The terminal
// pass always runs at viewport size since it draws to the framebuffer.
func sizePasses(plan *ExecutionPlan) {
	prevW, prevH := plan.InputWidth, plan.InputHeight
	for i, pass := range plan.Passes {
		if i == len(plan.Passes)-1 {
			pass.ToScreen = true
			pass.Width, pass.Height = plan.ViewportWidth, plan.ViewportHeight
		} else {
			pass.Width = scaleDim(pass.Decl.ScaleTypeX, pass.Decl.ScaleX, prevW, plan.ViewportWidth)
			pass.Height = scaleDim(pass.Decl.ScaleTypeY, pass.Decl.ScaleY, prevH, plan.ViewportHeight)
		}
		prevW, prevH = pass.Width, pass.Height
	}
}

func scaleDim(st preset.ScaleType, scale float64, source, viewport int) int {
	var v int
	switch st {
	case preset.ScaleViewport:
		v = int(float64(viewport)*scale + 0.5)
	case preset.ScaleAbsolute:
		v = int(scale + 0.5)
	default:
		v = int(float64(source)*scale + 0.5)
	}
	if v < 1 {
		v = 1
	}
	return v
}

func resolveBindings(p *preset.Preset, plan *ExecutionPlan, passIndex int, slots []string) ([]Binding, error) {
	bindings := make([]Binding, 0, len(slots))
	for unit, slot := range slots {
		b := Binding{Slot: slot, Unit: unit}
		switch {
		case slot == slotOriginal:
			b.Kind = BindOriginal

		case slot == slotSource:
			if passIndex == 0 {
				b.Kind = BindOriginal
			} else {
				b.Kind = BindPassOutput
				b.PassIndex = passIndex - 1
			}

		case slot == slotFeedback:
			b.Kind = BindFeedback
			b.PassIndex = passIndex

		default:
			resolved, err := resolveNamedSlot(p, plan, passIndex, slot, &b)
			if err != nil {
				return nil, err
			}
			if !resolved {
				return nil, &UnresolvedBindingError{Pass: passIndex, Slot: slot}
			}
		}
		bindings = append(bindings, b)
	}
	return bindings, nil
}

func resolveNamedSlot(p *preset.Preset, plan *ExecutionPlan, passIndex int, slot string, b *Binding) (bool, error) {
	// Preset texture declarations shadow everything else: a preset that
	// names a texture "GlowFeedback" means that texture.
	if _, ok := p.TextureByName(slot); ok {
		b.Kind = BindTexture
		b.TextureName = slot
		return true, nil
	}

	if j := p.PassByAlias(slot); j >= 0 {
		if j >= passIndex {
			return false, &UnresolvedBindingError{Pass: passIndex, Slot: slot}
		}
		b.Kind = BindPassOutput
		b.PassIndex = j
		return true, nil
	}

	if alias, ok := strings.CutSuffix(slot, feedbackSuffix); ok && alias != "" {
		if j := p.PassByAlias(alias); j >= 0 {
			b.Kind = BindFeedback
			b.PassIndex = j
			return true, nil
		}
	}

	if rest, ok := strings.CutPrefix(slot, passPrefix); ok {
		if n, err := strconv.Atoi(rest); err == nil {
			if n < 0 || n >= passIndex {
				return false, &UnresolvedBindingError{Pass: passIndex, Slot: slot}
			}
			b.Kind = BindPassOutput
			b.PassIndex = n
			return true, nil
		}
	}

	return false, nil
}

// resize recomputes the sizing walk for new input/viewport dimensions and
// resizes allocated targets in place. Binding tables are unaffected.
func (plan *ExecutionPlan) resize(inputW, inputH, viewportW, viewportH int) {
	plan.InputWidth, plan.InputHeight = inputW, inputH
	plan.ViewportWidth, plan.ViewportHeight = viewportW, viewportH
	sizePasses(plan)
	for _, pass := range plan.Passes {
		if pass.target != nil {
			pass.target.Resize(pass.Width, pass.Height)
		}
	}
}

// destroy releases every GPU resource the plan owns. Programs are owned by
// their passes, targets by the plan, textures by the plan.
func (plan *ExecutionPlan) destroy() {
	for _, pass := range plan.Passes {
		if pass.target != nil {
			pass.target.Destroy()
			pass.target = nil
		}
		if pass.Program != nil {
			pass.Program.Release()
		}
	}
	for _, tex := range plan.textures {
		tex.Destroy()
	}
	plan.textures = nil
}
