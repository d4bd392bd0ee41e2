package pipeline

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"

	gl "github.com/go-gl/gl/v4.1-core/gl"

	"github.com/spotUP/retroshade/preset"
)

// ImageTexture is a static named texture asset declared by the preset.
type ImageTexture struct {
	name      string
	textureID uint32
	width     int
	height    int
}

// loadImageTexture decodes the declared image file and uploads it. Images are
// flipped so row 0 lands at the GL origin, keeping UV orientation consistent
// with pass outputs.
func loadImageTexture(decl preset.TextureDecl) (*ImageTexture, error) {
	f, err := os.Open(decl.Path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: texture %q: %w", decl.Name, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("pipeline: texture %q: decoding %s: %w", decl.Name, decl.Path, err)
	}

	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, image.Point{}, draw.Src)
	rgba = vflip(rgba)

	width := rgba.Rect.Dx()
	height := rgba.Rect.Dy()

	var textureID uint32
	gl.GenTextures(1, &textureID)
	gl.BindTexture(gl.TEXTURE_2D, textureID)
	applyTexParams(decl.Linear, decl.Wrap, decl.Mipmap)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(width), int32(height), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(rgba.Pix))
	if decl.Mipmap {
		gl.GenerateMipmap(gl.TEXTURE_2D)
	}
	gl.BindTexture(gl.TEXTURE_2D, 0)

	return &ImageTexture{
		name:      decl.Name,
		textureID: textureID,
		width:     width,
		height:    height,
	}, nil
}

// LoadInputImage uploads an image file as a linear-filtered clamped texture,
// suitable as the chain's live input. Requires a current GL context.
func LoadInputImage(path string) (*ImageTexture, error) {
	return loadImageTexture(preset.TextureDecl{
		Name:   "input",
		Path:   path,
		Linear: true,
		Wrap:   preset.WrapClampToEdge,
	})
}

func (t *ImageTexture) TextureID() uint32 { return t.textureID }
func (t *ImageTexture) Size() (int, int)  { return t.width, t.height }

func (t *ImageTexture) Destroy() {
	gl.DeleteTextures(1, &t.textureID)
}

// vflip vertically flips an RGBA image in row-sized copies.
func vflip(src *image.RGBA) *image.RGBA {
	bounds := src.Bounds()
	flipped := image.NewRGBA(bounds)
	height := bounds.Dy()
	rowSize := bounds.Dx() * 4
	for y := 0; y < height; y++ {
		srcRow := src.Pix[((height-1)-y)*src.Stride:]
		dstRow := flipped.Pix[y*flipped.Stride:]
		copy(dstRow, srcRow[:rowSize])
	}
	return flipped
}
