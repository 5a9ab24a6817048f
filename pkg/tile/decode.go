package tile

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
)

var (
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
	jpegMagic = []byte{0xFF, 0xD8}
)

// Decode detects the image format of tile bytes and decodes them. Empty
// input, unknown formats and tiles that are not Size x Size fail with
// ErrTileDecode.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty tile data", ErrTileDecode)
	}

	var (
		img image.Image
		err error
	)
	switch {
	case bytes.HasPrefix(data, pngMagic):
		img, err = png.Decode(bytes.NewReader(data))
	case bytes.HasPrefix(data, jpegMagic):
		img, err = jpeg.Decode(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: unrecognized image format", ErrTileDecode)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTileDecode, err)
	}

	if b := img.Bounds(); b.Dx() != Size || b.Dy() != Size {
		return nil, fmt.Errorf("%w: got %dx%d tile, not %d", ErrTileDecode, b.Dx(), b.Dy(), Size)
	}
	return img, nil
}

// CheckHeader reads only the image header of tile bytes and fails with
// ErrTileDecode when the format is unknown or the tile is not Size x Size.
func CheckHeader(data []byte) error {
	var (
		cfg image.Config
		err error
	)
	switch {
	case bytes.HasPrefix(data, pngMagic):
		cfg, err = png.DecodeConfig(bytes.NewReader(data))
	case bytes.HasPrefix(data, jpegMagic):
		cfg, err = jpeg.DecodeConfig(bytes.NewReader(data))
	default:
		return fmt.Errorf("%w: unrecognized image format", ErrTileDecode)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTileDecode, err)
	}
	if cfg.Width != Size || cfg.Height != Size {
		return fmt.Errorf("%w: got %dx%d tile, not %d", ErrTileDecode, cfg.Width, cfg.Height, Size)
	}
	return nil
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WritePNG writes img to filename, or to stdout when filename is empty.
func WritePNG(filename string, img image.Image) (err error) {
	var output io.Writer = os.Stdout

	if filename != "" {
		file, cerr := os.Create(filename)
		if cerr != nil {
			return cerr
		}
		defer func() {
			if cerr := file.Close(); err == nil {
				err = cerr
			}
		}()
		output = file
	}

	return png.Encode(output, img)
}
