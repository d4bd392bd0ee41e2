package options

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// Options collects the viewer's command-line configuration.
type Options struct {
	PresetPath string
	InputImage string
	Width      int
	Height     int

	// Record switches from the interactive window to offline encoding.
	Record     bool
	Duration   float64
	FPS        int
	OutputFile string
	FFmpegPath string

	// Params holds name=value overrides applied after the preset loads.
	Params map[string]float64

	Verbose bool
}

// Parse reads flags from args (without the program name). The -param flag is
// repeatable.
func Parse(args []string) (*Options, error) {
	o := &Options{Params: map[string]float64{}}
	var paramFlags paramList

	fs := flag.NewFlagSet("retroshade", flag.ContinueOnError)
	fs.StringVar(&o.PresetPath, "preset", "", "Preset file to load (.slangp)")
	fs.StringVar(&o.InputImage, "input", "", "Input image to run the chain against")
	fs.IntVar(&o.Width, "width", 1280, "Window or output width")
	fs.IntVar(&o.Height, "height", 720, "Window or output height")
	fs.BoolVar(&o.Record, "record", false, "Enable recording mode")
	fs.Float64Var(&o.Duration, "duration", 10.0, "Duration to record in seconds")
	fs.IntVar(&o.FPS, "fps", 60, "Frames per second for recording")
	fs.StringVar(&o.OutputFile, "output", "output.mp4", "Output file name for recording")
	fs.StringVar(&o.FFmpegPath, "ffmpeg", "", "Path to ffmpeg executable")
	fs.Var(&paramFlags, "param", "Parameter override as name=value (repeatable)")
	fs.BoolVar(&o.Verbose, "verbose", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if o.PresetPath == "" {
		return nil, fmt.Errorf("options: -preset is required")
	}
	if o.InputImage == "" {
		return nil, fmt.Errorf("options: -input is required")
	}
	if o.Width <= 0 || o.Height <= 0 {
		return nil, fmt.Errorf("options: invalid size %dx%d", o.Width, o.Height)
	}

	for _, raw := range paramFlags {
		name, value, err := parseParamOverride(raw)
		if err != nil {
			return nil, err
		}
		o.Params[name] = value
	}
	return o, nil
}

func parseParamOverride(raw string) (string, float64, error) {
	name, valueStr, ok := strings.Cut(raw, "=")
	if !ok || name == "" {
		return "", 0, fmt.Errorf("options: -param %q is not name=value", raw)
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return "", 0, fmt.Errorf("options: -param %q: %v", raw, err)
	}
	return name, value, nil
}

// paramList is a repeatable flag value.
type paramList []string

func (p *paramList) String() string { return strings.Join(*p, ",") }

func (p *paramList) Set(v string) error {
	*p = append(*p, v)
	return nil
}
