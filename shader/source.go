package shader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Source is one pass's shader source after include resolution and directive
// extraction, still in the portable form (not yet translated or linked).
type Source struct {
	Path string

	// VertexBody is the user vertex stage, empty when the source declares
	// only a fragment stage and the standard full-screen-quad vertex shader
	// should be used.
	VertexBody string

	// FragmentBody is the user fragment stage with parameter pragmas
	// stripped. Sampler declarations stay in place; they are valid GLSL.
	FragmentBody string

	// Parameters are the tunables this source declares, in source order.
	Parameters []ParameterDirective

	// Samplers are the declared texture slot names in source order. This
	// ordering is the binding contract the resolver fills in.
	Samplers []string
}

// CyclicIncludeError reports an #include chain that loops back on itself.
type CyclicIncludeError struct {
	Path string
}

func (e *CyclicIncludeError) Error() string {
	return fmt.Sprintf("shader: cyclic include of %q", e.Path)
}

// LoadSource reads a shader source file, resolves #include directives
// relative to the including file, and extracts directives.
func LoadSource(path string) (*Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	text, err := expandIncludes(abs, map[string]bool{}, map[string]bool{})
	if err != nil {
		return nil, err
	}
	src, err := ParseSource(text, abs)
	if err != nil {
		return nil, err
	}
	src.Path = abs
	return src, nil
}

// expandIncludes performs textual inclusion depth-first. A file already on
// the active stack is a cycle; a file included twice through different
// branches is elided, matching the usual header-guard behavior.
func expandIncludes(path string, stack, included map[string]bool) (string, error) {
	if stack[path] {
		return "", &CyclicIncludeError{Path: path}
	}
	stack[path] = true
	defer delete(stack, path)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("shader: reading %s: %w", path, err)
	}

	var sb strings.Builder
	for lineNo, line := range strings.Split(string(data), "\n") {
		d, err := scanLine(path, lineNo+1, line)
		if err != nil {
			return "", err
		}
		inc, ok := d.(IncludeDirective)
		if !ok {
			sb.WriteString(line)
			sb.WriteString("\n")
			continue
		}

		incPath := inc.Path
		if !filepath.IsAbs(incPath) {
			incPath = filepath.Join(filepath.Dir(path), incPath)
		}
		incPath = filepath.Clean(incPath)
		if included[incPath] {
			continue
		}
		included[incPath] = true
		expanded, err := expandIncludes(incPath, stack, included)
		if err != nil {
			return "", err
		}
		sb.WriteString(expanded)
	}
	return sb.String(), nil
}

// ParseSource extracts directives from already-expanded source text. path is
// used only for error messages.
func ParseSource(text, path string) (*Source, error) {
	src := &Source{}
	seenSampler := make(map[string]bool)

	// Code before any #pragma stage is shared between stages.
	var shared, vertex, fragment strings.Builder
	current := &shared
	sawStage := false

	for lineNo, line := range strings.Split(text, "\n") {
		d, err := scanLine(path, lineNo+1, line)
		if err != nil {
			return nil, err
		}
		switch d := d.(type) {
		case ParameterDirective:
			src.Parameters = append(src.Parameters, d)
			// Stripped: the compiler injects the uniform declaration.
			continue
		case StageDirective:
			sawStage = true
			if d.Stage == "vertex" {
				current = &vertex
			} else {
				current = &fragment
			}
			continue
		case SamplerDirective:
			if !seenSampler[d.Slot] {
				seenSampler[d.Slot] = true
				src.Samplers = append(src.Samplers, d.Slot)
			}
		case IncludeDirective:
			// Includes surviving to this point mean ParseSource was called
			// on raw text; treat the line as opaque code.
		}
		current.WriteString(line)
		current.WriteString("\n")
	}

	if !sawStage {
		src.FragmentBody = shared.String()
		return src, nil
	}
	src.VertexBody = strings.TrimSpace(vertex.String())
	if src.VertexBody != "" {
		src.VertexBody = shared.String() + vertex.String()
	}
	src.FragmentBody = shared.String() + fragment.String()
	return src, nil
}
