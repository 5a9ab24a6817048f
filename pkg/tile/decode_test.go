package tile

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func solidTile(c color.Color, size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestDecode(t *testing.T) {
	good, err := EncodePNG(solidTile(color.RGBA{10, 20, 30, 255}, Size))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	small, err := EncodePNG(solidTile(color.White, 64))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	testCases := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"valid png", good, false},
		{"empty", []byte{}, true},
		{"garbage", []byte("hello world"), true},
		{"truncated png", good[:40], true},
		{"wrong size", small, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			img, err := Decode(tc.data)
			if tc.wantErr {
				if !errors.Is(err, ErrTileDecode) {
					t.Fatalf("expected ErrTileDecode, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			r, g, b, _ := img.At(5, 5).RGBA()
			if r>>8 != 10 || g>>8 != 20 || b>>8 != 30 {
				t.Errorf("unexpected pixel %d %d %d", r>>8, g>>8, b>>8)
			}
		})
	}
}

func TestCheckHeader(t *testing.T) {
	good, err := EncodePNG(solidTile(color.Black, Size))
	if err != nil {
		t.Fatal(err)
	}
	small, err := EncodePNG(solidTile(color.Black, 32))
	if err != nil {
		t.Fatal(err)
	}

	if err := CheckHeader(good); err != nil {
		t.Errorf("unexpected error for valid tile: %v", err)
	}
	for name, data := range map[string][]byte{
		"empty":      nil,
		"garbage":    []byte("<html>rate limited</html>"),
		"wrong size": small,
		"cut header": good[:12],
	} {
		if err := CheckHeader(data); !errors.Is(err, ErrTileDecode) {
			t.Errorf("%s: expected ErrTileDecode, got %v", name, err)
		}
	}
}

func TestWritePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.png")
	if err := WritePNG(path, solidTile(color.Gray{Y: 77}, Size)); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	img, err := Decode(data)
	if err != nil {
		t.Fatalf("written file does not decode: %v", err)
	}
	if img.Bounds().Dx() != Size {
		t.Errorf("expected width %d, got %d", Size, img.Bounds().Dx())
	}

	if err := WritePNG(filepath.Join(t.TempDir(), "missing", "map.png"), img); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestWritePNG_DeviceFull(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("no /dev/full")
	}
	if err := WritePNG("/dev/full", solidTile(color.White, 64)); err == nil {
		t.Error("expected error writing to a full device")
	}
}
