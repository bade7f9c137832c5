package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"time"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

const (
	MountMargin    = 50
	captionRunes   = 14
	exportLayout   = "20060102-150405"
	ExportMimeType = "image/png"
)

var MountColor = color.RGBA{R: 205, G: 170, B: 125, A: 255}

// Mount pastes the image onto a silk-coloured canvas with an even margin on
// every side and re-encodes it as PNG.
func Mount(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := img.Bounds()
	canvas := imaging.New(b.Dx()+2*MountMargin, b.Dy()+2*MountMargin, MountColor)
	canvas = imaging.Paste(canvas, img, image.Pt(MountMargin, MountMargin))

	return encodePNG(canvas)
}

// Thumbnail scales the image to fit in a maxSide square.
func Thumbnail(data []byte, maxSide int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return encodePNG(imaging.Fit(img, maxSide, maxSide, imaging.Lanczos))
}

// Thumbnails builds one thumbnail per input, preserving order.
func Thumbnails(ctx context.Context, images [][]byte, maxSide int) ([][]byte, error) {
	out := make([][]byte, len(images))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(4)

	for i, data := range images {
		i, data := i, data
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			thumb, err := Thumbnail(data, maxSide)
			if err != nil {
				return fmt.Errorf("thumbnail %d: %w", i+1, err)
			}
			out[i] = thumb
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ExportName is the file name offered when a work is saved.
func ExportName(t time.Time) string {
	return t.Format(exportLayout) + ".png"
}

// Caption shortens a poem for gallery tiles.
func Caption(poem string) string {
	if utf8.RuneCountInString(poem) <= captionRunes {
		return poem
	}
	return string([]rune(poem)[:captionRunes]) + "..."
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
