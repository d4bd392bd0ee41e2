// Package shader turns one pass's portable shader source into a linked GPU
// program plus the parameters and texture slots it declares. Sources are
// written against GLSL ES 3.00 with a small directive convention on top:
// #pragma parameter, #pragma stage and #include.
package shader

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Directive is one recognized line of shader metadata. Each kind is a distinct
// variant so downstream code switches on type instead of re-parsing strings.
type Directive interface {
	directiveLine() int
}

// ParameterDirective declares a tunable:
//
//	#pragma parameter NAME "Display Name" default min max step
type ParameterDirective struct {
	Line        int
	Name        string
	DisplayName string
	Default     float64
	Min         float64
	Max         float64
	Step        float64
}

func (d ParameterDirective) directiveLine() int { return d.Line }

// IncludeDirective pulls in a shared snippet file relative to the including
// source: #include "path".
type IncludeDirective struct {
	Line int
	Path string
}

func (d IncludeDirective) directiveLine() int { return d.Line }

// StageDirective splits the file into stages: #pragma stage vertex|fragment.
type StageDirective struct {
	Line  int
	Stage string
}

func (d StageDirective) directiveLine() int { return d.Line }

// SamplerDirective records a texture slot declaration in source order:
// uniform sampler2D Slot;
type SamplerDirective struct {
	Line int
	Slot string
}

func (d SamplerDirective) directiveLine() int { return d.Line }

// DirectiveError reports a recognized directive whose arguments are malformed.
type DirectiveError struct {
	Path string
	Line int
	Msg  string
}

func (e *DirectiveError) Error() string {
	return fmt.Sprintf("shader %s: line %d: %s", e.Path, e.Line, e.Msg)
}

var (
	paramRe   = regexp.MustCompile(`^\s*#pragma\s+parameter\s+([A-Za-z_][A-Za-z0-9_]*)\s+"([^"]*)"\s+(.*)$`)
	stageRe   = regexp.MustCompile(`^\s*#pragma\s+stage\s+(vertex|fragment)\s*$`)
	includeRe = regexp.MustCompile(`^\s*#include\s+"([^"]+)"\s*$`)
	samplerRe = regexp.MustCompile(`^\s*uniform\s+sampler2D\s+([A-Za-z_][A-Za-z0-9_]*)\s*;`)
)

// scanLine classifies a single source line. It returns (nil, nil) for plain
// code lines. Unknown #pragma forms are ignored for forward compatibility.
func scanLine(path string, lineNo int, line string) (Directive, error) {
	if m := paramRe.FindStringSubmatch(line); m != nil {
		fields := strings.Fields(m[3])
		if len(fields) < 3 || len(fields) > 4 {
			return nil, &DirectiveError{Path: path, Line: lineNo,
				Msg: fmt.Sprintf("parameter %s: want default min max [step], got %q", m[1], m[3])}
		}
		nums := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, &DirectiveError{Path: path, Line: lineNo,
					Msg: fmt.Sprintf("parameter %s: bad number %q", m[1], f)}
			}
			nums[i] = v
		}
		d := ParameterDirective{
			Line:        lineNo,
			Name:        m[1],
			DisplayName: m[2],
			Default:     nums[0],
			Min:         nums[1],
			Max:         nums[2],
		}
		if len(nums) == 4 {
			d.Step = nums[3]
		}
		if d.Min > d.Max {
			return nil, &DirectiveError{Path: path, Line: lineNo,
				Msg: fmt.Sprintf("parameter %s: min %v exceeds max %v", d.Name, d.Min, d.Max)}
		}
		return d, nil
	}
	if m := stageRe.FindStringSubmatch(line); m != nil {
		return StageDirective{Line: lineNo, Stage: m[1]}, nil
	}
	if m := includeRe.FindStringSubmatch(line); m != nil {
		return IncludeDirective{Line: lineNo, Path: m[1]}, nil
	}
	if m := samplerRe.FindStringSubmatch(line); m != nil {
		return SamplerDirective{Line: lineNo, Slot: m[1]}, nil
	}
	return nil, nil
}
