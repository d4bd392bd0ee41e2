package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"go.uber.org/zap"

	"github.com/spotUP/retroshade/glfwcontext"
	"github.com/spotUP/retroshade/options"
	"github.com/spotUP/retroshade/pipeline"
)

func init() {
	runtime.LockOSThread()
}

func buildLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func main() {
	opts, err := options.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := buildLogger(opts.Verbose)
	defer logger.Sync()

	if err := glfwcontext.InitGraphics(); err != nil {
		logger.Fatal("initializing graphics", zap.Error(err))
	}
	defer glfwcontext.TerminateGraphics()

	ctx, err := glfwcontext.New(opts.Width, opts.Height, "retroshade", !opts.Record)
	if err != nil {
		logger.Fatal("creating window", zap.Error(err))
	}
	defer ctx.Shutdown()
	ctx.MakeCurrent()

	r, err := pipeline.NewRenderer(ctx, opts.Width, opts.Height, logger)
	if err != nil {
		logger.Fatal("creating renderer", zap.Error(err))
	}
	defer r.Dispose()

	input, err := pipeline.LoadInputImage(opts.InputImage)
	if err != nil {
		logger.Fatal("loading input image", zap.Error(err))
	}
	defer input.Destroy()
	inputW, inputH := input.Size()

	if err := r.LoadPreset(opts.PresetPath); err != nil {
		if opts.Record {
			logger.Fatal("loading preset", zap.Error(err))
		}
		// Interactive mode keeps running and presents the raw input.
		logger.Error("loading preset", zap.Error(err))
	}

	for name, value := range opts.Params {
		if err := r.Params().Set(name, value); err != nil {
			logger.Warn("parameter override ignored", zap.String("name", name), zap.Error(err))
		}
	}

	ctx.RegisterKeyCallback(glfw.KeyR, func() {
		r.Params().ResetAll()
		logger.Info("parameters reset to defaults")
	})

	if opts.Record {
		err := r.Record(input.TextureID(), inputW, inputH, pipeline.RecordOptions{
			Duration:   opts.Duration,
			FPS:        opts.FPS,
			OutputFile: opts.OutputFile,
			FFmpegPath: opts.FFmpegPath,
		})
		if err != nil {
			logger.Fatal("recording", zap.Error(err))
		}
		logger.Info("recording finished", zap.String("output", opts.OutputFile))
		return
	}

	for !ctx.ShouldClose() {
		if err := r.Render(input.TextureID(), inputW, inputH); err != nil {
			r.BlitInput(input.TextureID())
			logger.Debug("frame fell back to raw input", zap.Error(err))
		}
		ctx.EndFrame()
	}
}
