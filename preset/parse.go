package preset

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ParseError reports malformed preset text.
type ParseError struct {
	Path string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("preset: line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("preset %s: line %d: %s", e.Path, e.Line, e.Msg)
}

// MalformedFieldError reports a per-pass field whose value failed to parse.
type MalformedFieldError struct {
	Pass  int
	Field string
	Value string
}

func (e *MalformedFieldError) Error() string {
	return fmt.Sprintf("preset: pass %d: malformed field %q: %q", e.Pass, e.Field, e.Value)
}

// CyclicIncludeError reports a #reference chain that loops back on itself.
type CyclicIncludeError struct {
	Path string
}

func (e *CyclicIncludeError) Error() string {
	return fmt.Sprintf("preset: cyclic include of %q", e.Path)
}

// ParseFile reads and parses a preset file, resolving relative paths and
// nested #reference inclusions against the file's directory.
func ParseFile(path string) (*Preset, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	p, err := parseFile(abs, map[string]bool{})
	if err != nil {
		return nil, err
	}
	p.Path = abs
	return p, nil
}

// Parse parses preset text. basePath is the directory used to resolve
// relative shader, texture and #reference paths.
func Parse(text, basePath string) (*Preset, error) {
	return parseText(text, "", basePath, map[string]bool{})
}

func parseFile(path string, stack map[string]bool) (*Preset, error) {
	if stack[path] {
		return nil, &CyclicIncludeError{Path: path}
	}
	stack[path] = true
	defer delete(stack, path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("preset: reading %s: %w", path, err)
	}
	return parseText(string(data), path, filepath.Dir(path), stack)
}

func parseText(text, path, basePath string, stack map[string]bool) (*Preset, error) {
	out := &Preset{ParameterOverrides: make(map[string]float64)}
	kv := make(map[string]string)

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if ref, ok := strings.CutPrefix(line, "#reference"); ok {
				refPath := unquote(strings.TrimSpace(ref))
				if refPath == "" {
					return nil, &ParseError{Path: path, Line: lineNo, Msg: "#reference without a path"}
				}
				sub, err := parseFile(resolvePath(basePath, refPath), stack)
				if err != nil {
					return nil, err
				}
				appendPreset(out, sub)
			}
			// Any other # line is a comment.
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, &ParseError{Path: path, Line: lineNo, Msg: fmt.Sprintf("expected key = value, got %q", line)}
		}
		kv[strings.TrimSpace(key)] = unquote(strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("preset: reading text: %w", err)
	}

	passes, err := buildPasses(kv, path, basePath)
	if err != nil {
		return nil, err
	}
	textures, err := buildTextures(kv, basePath)
	if err != nil {
		return nil, err
	}
	overrides, err := buildOverrides(kv)
	if err != nil {
		return nil, err
	}

	own := &Preset{Passes: passes, Textures: textures, ParameterOverrides: overrides}
	appendPreset(out, own)

	if err := checkAliases(out, path); err != nil {
		return nil, err
	}
	return out, nil
}

// appendPreset splices sub's flattened pass chain onto dst, re-indexing so the
// combined chain stays contiguous. Later parameter overrides win; textures
// merge by name with the first declaration kept.
func appendPreset(dst, sub *Preset) {
	base := len(dst.Passes)
	for _, pass := range sub.Passes {
		pass.Index = base + pass.Index
		dst.Passes = append(dst.Passes, pass)
	}
	for name, v := range sub.ParameterOverrides {
		dst.ParameterOverrides[name] = v
	}
	for _, t := range sub.Textures {
		if _, exists := dst.TextureByName(t.Name); !exists {
			dst.Textures = append(dst.Textures, t)
		}
	}
}

func buildPasses(kv map[string]string, path, basePath string) ([]PassDecl, error) {
	countStr, ok := kv["shaders"]
	if !ok {
		// A preset with no passes of its own is legal when it only carries
		// references, textures or overrides.
		if _, stray := firstShaderKey(kv); stray {
			return nil, &ParseError{Path: path, Line: 0, Msg: "shaderN declared without a shaders count"}
		}
		return nil, nil
	}
	count, err := strconv.Atoi(countStr)
	if err != nil || count < 0 {
		return nil, &MalformedFieldError{Pass: -1, Field: "shaders", Value: countStr}
	}

	// Contiguity: every index below the count must be declared, and no index
	// at or above it may be.
	for key := range kv {
		var idx int
		if n, _ := fmt.Sscanf(key, "shader%d", &idx); n == 1 && key == fmt.Sprintf("shader%d", idx) {
			if idx >= count {
				return nil, &ParseError{Path: path, Line: 0,
					Msg: fmt.Sprintf("pass indices are not contiguous: shader%d declared but shaders = %d", idx, count)}
			}
		}
	}

	passes := make([]PassDecl, 0, count)
	for i := 0; i < count; i++ {
		src, ok := kv[fmt.Sprintf("shader%d", i)]
		if !ok {
			return nil, &ParseError{Path: path, Line: 0,
				Msg: fmt.Sprintf("pass indices are not contiguous: shader%d missing", i)}
		}
		pass := PassDecl{
			Index:      i,
			SourcePath: resolvePath(basePath, src),
			ScaleTypeX: ScaleSource,
			ScaleTypeY: ScaleSource,
			ScaleX:     1.0,
			ScaleY:     1.0,
		}
		if err := applyPassFields(&pass, kv, i); err != nil {
			return nil, err
		}
		passes = append(passes, pass)
	}
	return passes, nil
}

func applyPassFields(pass *PassDecl, kv map[string]string, i int) error {
	if v, ok := kv[fmt.Sprintf("scale_type%d", i)]; ok {
		st, err := parseScaleType(v, i, fmt.Sprintf("scale_type%d", i))
		if err != nil {
			return err
		}
		pass.ScaleTypeX, pass.ScaleTypeY = st, st
	}
	if v, ok := kv[fmt.Sprintf("scale_type_x%d", i)]; ok {
		st, err := parseScaleType(v, i, fmt.Sprintf("scale_type_x%d", i))
		if err != nil {
			return err
		}
		pass.ScaleTypeX = st
	}
	if v, ok := kv[fmt.Sprintf("scale_type_y%d", i)]; ok {
		st, err := parseScaleType(v, i, fmt.Sprintf("scale_type_y%d", i))
		if err != nil {
			return err
		}
		pass.ScaleTypeY = st
	}

	if v, ok := kv[fmt.Sprintf("scale%d", i)]; ok {
		f, err := parsePassFloat(v, i, fmt.Sprintf("scale%d", i))
		if err != nil {
			return err
		}
		pass.ScaleX, pass.ScaleY = f, f
	}
	if v, ok := kv[fmt.Sprintf("scale_x%d", i)]; ok {
		f, err := parsePassFloat(v, i, fmt.Sprintf("scale_x%d", i))
		if err != nil {
			return err
		}
		pass.ScaleX = f
	}
	if v, ok := kv[fmt.Sprintf("scale_y%d", i)]; ok {
		f, err := parsePassFloat(v, i, fmt.Sprintf("scale_y%d", i))
		if err != nil {
			return err
		}
		pass.ScaleY = f
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{fmt.Sprintf("filter_linear%d", i), &pass.FilterLinear},
		{fmt.Sprintf("float_framebuffer%d", i), &pass.FloatFramebuffer},
		{fmt.Sprintf("srgb_framebuffer%d", i), &pass.SRGBFramebuffer},
		{fmt.Sprintf("feedback%d", i), &pass.Feedback},
	}
	for _, b := range bools {
		if v, ok := kv[b.key]; ok {
			parsed, err := parsePassBool(v, i, b.key)
			if err != nil {
				return err
			}
			*b.dst = parsed
		}
	}

	if v, ok := kv[fmt.Sprintf("wrap_mode%d", i)]; ok {
		w, err := parseWrapMode(v, i, fmt.Sprintf("wrap_mode%d", i))
		if err != nil {
			return err
		}
		pass.Wrap = w
	}
	if v, ok := kv[fmt.Sprintf("alias%d", i)]; ok {
		pass.Alias = v
	}
	return nil
}

func buildTextures(kv map[string]string, basePath string) ([]TextureDecl, error) {
	list, ok := kv["textures"]
	if !ok {
		return nil, nil
	}
	var out []TextureDecl
	for _, name := range splitList(list) {
		path, ok := kv[name]
		if !ok {
			return nil, &MalformedFieldError{Pass: -1, Field: name, Value: ""}
		}
		decl := TextureDecl{
			Name: name,
			Path: resolvePath(basePath, path),
			Wrap: WrapClampToEdge,
		}
		if v, ok := kv[name+"_linear"]; ok {
			b, err := parsePassBool(v, -1, name+"_linear")
			if err != nil {
				return nil, err
			}
			decl.Linear = b
		}
		if v, ok := kv[name+"_mipmap"]; ok {
			b, err := parsePassBool(v, -1, name+"_mipmap")
			if err != nil {
				return nil, err
			}
			decl.Mipmap = b
		}
		if v, ok := kv[name+"_wrap_mode"]; ok {
			w, err := parseWrapMode(v, -1, name+"_wrap_mode")
			if err != nil {
				return nil, err
			}
			decl.Wrap = w
		}
		out = append(out, decl)
	}
	return out, nil
}

func buildOverrides(kv map[string]string) (map[string]float64, error) {
	out := make(map[string]float64)
	list, ok := kv["parameters"]
	if !ok {
		return out, nil
	}
	for _, name := range splitList(list) {
		v, ok := kv[name]
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, &MalformedFieldError{Pass: -1, Field: name, Value: v}
		}
		out[name] = f
	}
	return out, nil
}

func checkAliases(p *Preset, path string) error {
	seen := make(map[string]int)
	for i := range p.Passes {
		alias := p.Passes[i].Alias
		if alias == "" {
			continue
		}
		if prev, dup := seen[alias]; dup {
			return &ParseError{Path: path, Line: 0,
				Msg: fmt.Sprintf("alias %q declared by both pass %d and pass %d", alias, prev, i)}
		}
		seen[alias] = i
	}
	return nil
}

func firstShaderKey(kv map[string]string) (string, bool) {
	for key := range kv {
		var idx int
		if n, _ := fmt.Sscanf(key, "shader%d", &idx); n == 1 && key == fmt.Sprintf("shader%d", idx) {
			return key, true
		}
	}
	return "", false
}

func parseScaleType(v string, pass int, field string) (ScaleType, error) {
	switch v {
	case "source":
		return ScaleSource, nil
	case "viewport":
		return ScaleViewport, nil
	case "absolute":
		return ScaleAbsolute, nil
	}
	return 0, &MalformedFieldError{Pass: pass, Field: field, Value: v}
}

func parseWrapMode(v string, pass int, field string) (WrapMode, error) {
	switch v {
	case "clamp_to_edge":
		return WrapClampToEdge, nil
	case "clamp_to_border":
		return WrapClampToBorder, nil
	case "repeat":
		return WrapRepeat, nil
	case "mirrored_repeat":
		return WrapMirroredRepeat, nil
	}
	return 0, &MalformedFieldError{Pass: pass, Field: field, Value: v}
}

func parsePassFloat(v string, pass int, field string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &MalformedFieldError{Pass: pass, Field: field, Value: v}
	}
	return f, nil
}

func parsePassBool(v string, pass int, field string) (bool, error) {
	switch strings.ToLower(v) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, &MalformedFieldError{Pass: pass, Field: field, Value: v}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ";") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	return v
}

func resolvePath(basePath, p string) string {
	if filepath.IsAbs(p) || basePath == "" {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(basePath, p))
}
