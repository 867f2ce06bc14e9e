package placeholder

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
)

// DefaultImageSize is the edge length of placeholder images in pixels.
const DefaultImageSize = 64

// ImageGenerator writes solid-color PNG images.
type ImageGenerator struct {
	size int
}

// NewImageGenerator returns a placeholder image backend producing size x size
// images. Non-positive sizes use DefaultImageSize.
func NewImageGenerator(size int) *ImageGenerator {
	if size <= 0 {
		size = DefaultImageSize
	}
	return &ImageGenerator{size: size}
}

// Name implements backend.ImageGenerator.
func (g *ImageGenerator) Name() string { return "placeholder" }

// ProduceImage writes a solid-color image whose color is derived from prompt.
func (g *ImageGenerator) ProduceImage(ctx context.Context, prompt, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return WriteSolidPNG(outputPath, g.size, ColorFor(prompt))
}

// ColorFor maps a prompt to a stable, muted color.
func ColorFor(prompt string) color.RGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(prompt))
	sum := h.Sum32()
	return color.RGBA{
		R: 64 + uint8(sum%128),
		G: 64 + uint8((sum>>8)%128),
		B: 64 + uint8((sum>>16)%128),
		A: 255,
	}
}

// WriteSolidPNG writes a size x size PNG filled with c, creating parent directories.
func WriteSolidPNG(outputPath string, size int, c color.Color) error {
	if size <= 0 {
		size = DefaultImageSize
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode placeholder image: %w", err)
	}
	return f.Close()
}
