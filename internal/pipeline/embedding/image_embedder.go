package embedding

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/ternarybob/arbor"
	"golang.org/x/image/draw"

	"github.com/vaultpress/buildworker/internal/interfaces"
	"github.com/vaultpress/buildworker/internal/models"
)

// LocalImageEmbedder derives a fixed-size embedding from a downsampled
// luminance/chroma grid of decoded image bytes. It requires no external service, so it is always
// Ready; it exists as the graceful-degradation path when no cloud image
// embedding backend is configured.
type LocalImageEmbedder struct {
	dimension int
	logger    arbor.ILogger
}

var _ interfaces.ImageEmbedder = (*LocalImageEmbedder)(nil)

func NewLocalImageEmbedder(dimension int, logger arbor.ILogger) *LocalImageEmbedder {
	return &LocalImageEmbedder{dimension: dimension, logger: logger}
}

func (e *LocalImageEmbedder) Ready() bool    { return true }
func (e *LocalImageEmbedder) Dimension() int { return e.dimension }

// Embed downsamples the image to a small grid and flattens per-pixel
// luminance/chroma into the target dimension, giving a cheap but stable
// similarity signal across derivatives of the same source image.
func (e *LocalImageEmbedder) Embed(ctx context.Context, imageBytes []byte) (models.Embedding, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	side := gridSide(e.dimension)
	thumb := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.CatmullRom.Scale(thumb, thumb.Bounds(), img, img.Bounds(), draw.Over, nil)

	vec := make([]float32, e.dimension)
	idx := 0
	for y := 0; y < side && idx < e.dimension; y++ {
		for x := 0; x < side && idx < e.dimension; x++ {
			r, g, b, _ := thumb.At(x, y).RGBA()
			rf, gf, bf := float32(r)/65535.0, float32(g)/65535.0, float32(b)/65535.0
			// Cells cycle through luminance, blue-difference and red-difference chroma.
			switch idx % 3 {
			case 0:
				vec[idx] = 0.299*rf + 0.587*gf + 0.114*bf
			case 1:
				vec[idx] = -0.168736*rf - 0.331264*gf + 0.5*bf
			default:
				vec[idx] = 0.5*rf - 0.418688*gf - 0.081312*bf
			}
			idx++
		}
	}

	return normalize(vec), nil
}

func gridSide(dimension int) int {
	side := 1
	for side*side < dimension {
		side++
	}
	return side
}
