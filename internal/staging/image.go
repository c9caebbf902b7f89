package staging

import (
	"bytes"
	"image"

	// Registered decoders for image admission. Stdlib covers the common web
	// formats; x/image adds the rest of what back-office cameras and scans
	// produce.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// sniffImage verifies the payload decodes as an image and returns its
// dimensions. Only the header is decoded, not the full pixel data.
func sniffImage(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
