package imaging

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/disintegration/imaging"
)

// EnsurePNG returns data unchanged when it already is a PNG and re-encodes
// it otherwise, so exported files always match their .png name.
func EnsurePNG(data []byte) ([]byte, error) {
	if http.DetectContentType(data) == ExportMimeType {
		return data, nil
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return encodePNG(img)
}
