package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/chai2010/webp"
	"github.com/ternarybob/arbor"
	"golang.org/x/image/draw"

	"github.com/vaultpress/buildworker/internal/interfaces"
	"github.com/vaultpress/buildworker/internal/models"
)

// sizeTargets maps each configured suffix to its target width. Height is
// derived from the source aspect ratio.
var sizeTargets = map[models.DerivativeSuffix]int{
	models.SuffixXS:   320,
	models.SuffixSM:   640,
	models.SuffixMD:   1024,
	models.SuffixLG:   1600,
	models.SuffixXL:   2048,
	models.Suffix2XL:  2560,
}

// Processor generates size/format derivatives for image bytes, encoding
// each configured format with its matching encoder (webp, jpeg).
type Processor struct {
	sizes     []models.DerivativeSuffix
	formats   []string
	quality   int
	requireMD bool
	logger    arbor.ILogger
}

var _ interfaces.ImageProcessor = (*Processor)(nil)

// New constructs a Processor for the given ordered list of size suffixes
// and output formats (e.g. "webp", "jpeg").
func New(sizes []models.DerivativeSuffix, formats []string, quality int, requireMD bool, logger arbor.ILogger) *Processor {
	return &Processor{sizes: sizes, formats: formats, quality: quality, requireMD: requireMD, logger: logger}
}

func (p *Processor) Ready() bool { return true }

func (p *Processor) Process(ctx context.Context, hash string, raw []byte, outDir, publicPrefix string) ([]models.MediaDerivative, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}

	bounds := src.Bounds()
	srcWidth := bounds.Dx()
	srcHeight := bounds.Dy()

	var derivatives []models.MediaDerivative
	haveMD := false

	for _, suffix := range p.sizes {
		targetWidth, ok := sizeTargets[suffix]
		if !ok {
			continue
		}
		// Never upscale: omit any derivative wider than the source.
		if targetWidth > srcWidth {
			continue
		}

		targetHeight := int(float64(srcHeight) * (float64(targetWidth) / float64(srcWidth)))
		if targetHeight < 1 {
			targetHeight = 1
		}

		resized := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), src, bounds, draw.Over, nil)

		for _, format := range p.formats {
			derivative, err := p.encode(resized, hash, suffix, format, targetWidth, targetHeight, outDir, publicPrefix)
			if err != nil {
				return nil, err
			}
			derivatives = append(derivatives, derivative)
			if suffix == models.SuffixMD {
				haveMD = true
			}
		}
	}

	if p.requireMD && !haveMD {
		return nil, fmt.Errorf("required md derivative omitted: source width %d is smaller than the md target", srcWidth)
	}

	return derivatives, nil
}

func (p *Processor) encode(img image.Image, hash string, suffix models.DerivativeSuffix, format string, width, height int, outDir, publicPrefix string) (models.MediaDerivative, error) {
	filename := fmt.Sprintf("%s-%s.%s", hash, suffix, format)
	outputPath := filepath.Join(outDir, filename)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return models.MediaDerivative{}, fmt.Errorf("mkdir %s: %w", outDir, err)
	}

	var buf bytes.Buffer
	switch format {
	case "webp":
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(p.quality)}); err != nil {
			return models.MediaDerivative{}, fmt.Errorf("encode %s: %w", filename, err)
		}
	case "jpeg", "jpg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.quality}); err != nil {
			return models.MediaDerivative{}, fmt.Errorf("encode %s: %w", filename, err)
		}
	default:
		return models.MediaDerivative{}, fmt.Errorf("encode %s: unsupported output format %q", filename, format)
	}

	if err := os.WriteFile(outputPath, buf.Bytes(), 0o644); err != nil {
		return models.MediaDerivative{}, fmt.Errorf("write %s: %w", outputPath, err)
	}

	return models.MediaDerivative{
		SizeSuffix: suffix,
		Width:      width,
		Height:     height,
		Format:     format,
		Quality:    p.quality,
		OutputPath: outputPath,
		PublicURL:  fmt.Sprintf("%s/%s", publicPrefix, filename),
		ByteSize:   int64(buf.Len()),
	}, nil
}
