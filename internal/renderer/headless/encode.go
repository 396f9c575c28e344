package headless

import (
	"bytes"
	"fmt"

	"github.com/sunshineplan/imgconv"

	"github.com/JakeFAU/shotapi/internal/capture"
)

// toJPEG re-encodes a PNG capture as JPEG at the given quality.
func toJPEG(png []byte, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = capture.DefaultQuality
	}
	img, err := imgconv.Decode(bytes.NewReader(png))
	if err != nil {
		return nil, fmt.Errorf("decode capture: %w", err)
	}
	var buf bytes.Buffer
	err = imgconv.Write(&buf, img, &imgconv.FormatOption{
		Format:       imgconv.JPEG,
		EncodeOption: []imgconv.EncodeOption{imgconv.Quality(quality)},
	})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
