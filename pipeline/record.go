package pipeline

import (
	"fmt"
	"io"

	gl "github.com/go-gl/gl/v4.1-core/gl"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

// RecordOptions controls offscreen capture.
type RecordOptions struct {
	Duration   float64
	FPS        int
	OutputFile string
	FFmpegPath string
}

// Record renders the loaded chain offscreen for the requested duration and
// pipes raw RGBA frames to ffmpeg for encoding. The input texture is static
// for the whole capture; animation comes from FrameCount-driven shaders and
// feedback accumulation.
func (r *Renderer) Record(inputTexture uint32, inputW, inputH int, opts RecordOptions) error {
	if r.state != StateReady {
		return ErrNotReady
	}
	if opts.FPS <= 0 || opts.Duration <= 0 {
		return fmt.Errorf("pipeline: record needs positive fps and duration, got %d fps over %gs", opts.FPS, opts.Duration)
	}

	width, height := r.ctx.GetFramebufferSize()

	// Capture FBO: the terminal pass draws here instead of the screen.
	var fbo, tex uint32
	gl.GenFramebuffers(1, &fbo)
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(width), int32(height), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.BindFramebuffer(gl.FRAMEBUFFER, fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, tex, 0)
	if gl.CheckFramebufferStatus(gl.FRAMEBUFFER) != gl.FRAMEBUFFER_COMPLETE {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		return fmt.Errorf("pipeline: capture framebuffer is not complete")
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	defer func() {
		gl.DeleteFramebuffers(1, &fbo)
		gl.DeleteTextures(1, &tex)
	}()

	pipeReader, pipeWriter := io.Pipe()
	ffmpegCmd := ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"f":         "rawvideo",
		"pix_fmt":   "rgba",
		"s":         fmt.Sprintf("%dx%d", width, height),
		"framerate": opts.FPS,
	}).
		Output(opts.OutputFile, ffmpeg.KwArgs{
			"c:v":     "libx264",
			"pix_fmt": "yuv420p",
			"r":       opts.FPS,
		}).
		OverWriteOutput().
		WithInput(pipeReader).
		ErrorToStdOut()
	if opts.FFmpegPath != "" {
		ffmpegCmd = ffmpegCmd.SetFfmpegPath(opts.FFmpegPath)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- ffmpegCmd.Run()
	}()

	totalFrames := int(opts.Duration * float64(opts.FPS))
	rowSize := width * 4
	pixels := make([]byte, rowSize*height)
	flipped := make([]byte, rowSize*height)

	r.log.Info("recording",
		zap.Int("frames", totalFrames),
		zap.Int("fps", opts.FPS),
		zap.String("output", opts.OutputFile))

	var renderErr error
	for frame := 0; frame < totalFrames; frame++ {
		if err := r.renderTo(fbo, width, height, inputTexture, inputW, inputH); err != nil {
			renderErr = err
			break
		}

		gl.BindFramebuffer(gl.FRAMEBUFFER, fbo)
		gl.ReadPixels(0, 0, int32(width), int32(height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pixels))
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)

		// GL reads bottom-up; rawvideo wants top-down.
		for y := 0; y < height; y++ {
			copy(flipped[y*rowSize:(y+1)*rowSize], pixels[(height-1-y)*rowSize:])
		}
		if _, err := pipeWriter.Write(flipped); err != nil {
			renderErr = fmt.Errorf("pipeline: writing frame %d to encoder: %w", frame, err)
			break
		}
	}

	pipeWriter.Close()
	encodeErr := <-errc
	if renderErr != nil {
		return renderErr
	}
	if encodeErr != nil {
		return fmt.Errorf("pipeline: encoding: %w", encodeErr)
	}
	return nil
}
