package poster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/kiesman99/posterize/internal/config"
	"github.com/kiesman99/posterize/internal/tilecache"
	"github.com/kiesman99/posterize/pkg/tile"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	originX = 8715
	originY = 5681
)

// tileServer serves mid-grey tiles. The tile east of the origin always fails
// and the one south of it returns a body that is not an image.
func tileServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	gray := image.NewRGBA(image.Rect(0, 0, tile.Size, tile.Size))
	for i := range gray.Pix {
		gray.Pix[i] = 128
	}
	png, err := tile.EncodePNG(gray)
	if err != nil {
		t.Fatal(err)
	}

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case fmt.Sprintf("/14/%d/%d.png", originX+1, originY):
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		case fmt.Sprintf("/14/%d/%d.png", originX, originY+1):
			w.Write([]byte("<html>not a tile</html>"))
		default:
			w.Header().Set("Content-Type", "image/png")
			w.Write(png)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

// testConfig covers a 2x2 tile box at zoom 14 and renders it small.
func testConfig(url, cacheDir string) config.Render {
	ox, oy := tile.TileOrigin(tile.NewCoordinate(14, originX, originY))

	cfg := config.Defaults()
	cfg.Location = config.Location{
		Name:         "test",
		TopLeft:      tile.PixelToPoint(ox+100.5, oy+50.5, 14),
		BottomRight:  tile.PixelToPoint(ox+400.5, oy+300.5, 14),
		MarkerPolicy: config.MarkerAlways,
		Zoom:         14,
	}
	cfg.Providers = map[string]tile.Provider{
		"test": {URL: url + "/{z}/{x}/{y}.png", MinZoom: 0, MaxZoom: 20},
	}
	cfg.Style.Provider = "test"
	cfg.Style.Marker.Kind = "circle"
	cfg.Canvas = config.Canvas{
		Size:   config.SizeMM{Width: 60, Height: 80},
		Border: config.SizeMM{Width: 5, Height: 5},
		DPI:    50,
	}
	cfg.Cache.Dir = cacheDir
	cfg.Fetch.Attempts = 2
	return cfg
}

func TestRender_EndToEnd(t *testing.T) {
	srv, hits := tileServer(t)
	cacheDir := t.TempDir()
	cfg := testConfig(srv.URL, cacheDir)

	var progress atomic.Int32
	p, err := New(cfg, WithLogger(quietLogger), WithProgress(func(done, total int) { progress.Add(1) }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	g := p.Grid()
	if g.Cols != 2 || g.Rows != 3 {
		t.Fatalf("expected a 2x3 grid, got %s", g)
	}

	res, err := p.Render(context.Background())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if want := cfg.Canvas.OutputSize(); res.Size != want || res.Image.Bounds().Size() != want {
		t.Errorf("expected output %v, got %v (image %v)", want, res.Size, res.Image.Bounds())
	}
	if int(progress.Load()) != g.Len() {
		t.Errorf("expected %d progress reports, got %d", g.Len(), progress.Load())
	}

	holes := res.Report.Holes()
	if len(holes) != 2 {
		t.Fatalf("expected 2 holes, got %d", len(holes))
	}
	if !errors.Is(holes[0].Err, tile.ErrTileFetchExhausted) {
		t.Errorf("expected exhausted fetch for %v, got %v", holes[0].Coord, holes[0].Err)
	}
	if !errors.Is(holes[1].Err, tile.ErrTileDecode) {
		t.Errorf("expected decode error for %v, got %v", holes[1].Coord, holes[1].Err)
	}

	var te *tile.TileError
	if !errors.As(res.Report.Err(), &te) || te.TotalTiles != 6 || te.SuccessfulTiles != 4 {
		t.Errorf("unexpected report error %v", res.Report.Err())
	}

	// 4 good tiles, 2 attempts at the failing one, 1 at the bad body.
	if got := hits.Load(); got != 7 {
		t.Errorf("expected 7 requests, got %d", got)
	}

	cached := filepath.Join(cacheDir, "test", "14", fmt.Sprint(originY), fmt.Sprintf("%d.png", originX))
	if _, err := os.Stat(cached); err != nil {
		t.Errorf("expected cached tile: %v", err)
	}
	bad := filepath.Join(cacheDir, "test", "14", fmt.Sprint(originY+1), fmt.Sprintf("%d.png", originX))
	if _, err := os.Stat(bad); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("bad tile should not be cached, stat: %v", err)
	}

	// The marker is drawn at the box centre in translucent red.
	c := res.Image.RGBAAt(res.Size.X/2, res.Size.Y/3)
	if c.R <= c.G {
		t.Errorf("expected red marker near the centre, got %v", c)
	}
}

func TestRender_SecondRunUsesCache(t *testing.T) {
	srv, hits := tileServer(t)
	cfg := testConfig(srv.URL, t.TempDir())

	p, err := New(cfg, WithLogger(quietLogger))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Render(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := hits.Load()

	res, err := p.Render(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Report.CacheHits != 4 {
		t.Errorf("expected 4 cache hits, got %d", res.Report.CacheHits)
	}
	// Only the two holes are requested again.
	if got := hits.Load() - first; got != 3 {
		t.Errorf("expected 3 requests on second run, got %d", got)
	}
}

func TestRender_Stylized(t *testing.T) {
	srv, _ := tileServer(t)
	cfg := testConfig(srv.URL, "")
	cfg.Cache.Enabled = false
	cfg.Location.MarkerPolicy = config.MarkerNever
	cfg.Style.BoostContrast = false
	cfg.Style.Foreground = "#ffffff"
	cfg.Style.Background = "#000000"

	p, err := New(cfg, WithLogger(quietLogger), WithStore(tilecache.Nop{}))
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.Render(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// Top left of the crop lies in the origin tile: grey 128 stays grey.
	c := res.Image.RGBAAt(2, 2)
	if c.R < 120 || c.R > 136 || c.R != c.G || c.G != c.B {
		t.Errorf("expected mid grey, got %v", c)
	}
	// Holes are white before colorizing and come out as the foreground.
	hole := res.Image.RGBAAt(res.Size.X-3, 2)
	if hole != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("expected hole in foreground colour, got %v", hole)
	}
}

func TestNew_Errors(t *testing.T) {
	t.Run("canvas too large", func(t *testing.T) {
		cfg := testConfig("http://localhost", t.TempDir())
		cfg.MaxPixels = 1000

		_, err := New(cfg)
		if !errors.Is(err, tile.ErrCanvasTooLarge) {
			t.Errorf("expected ErrCanvasTooLarge, got %v", err)
		}
	})

	t.Run("output too large", func(t *testing.T) {
		cfg := testConfig("http://localhost", t.TempDir())
		cfg.Canvas.Size = config.SizeMM{Width: 20000, Height: 20000}
		cfg.Canvas.DPI = config.MaxDPI

		_, err := New(cfg)
		if !errors.Is(err, tile.ErrCanvasTooLarge) {
			t.Errorf("expected ErrCanvasTooLarge, got %v", err)
		}
	})

	t.Run("unsupported zoom", func(t *testing.T) {
		cfg := testConfig("http://localhost", t.TempDir())
		cfg.Style.Provider = tile.Toner.Name
		cfg.Location.Zoom = 10

		_, err := New(cfg)
		if !errors.Is(err, tile.ErrUnsupportedZoom) {
			t.Errorf("expected ErrUnsupportedZoom, got %v", err)
		}
	})

	t.Run("missing icon", func(t *testing.T) {
		cfg := testConfig("http://localhost", t.TempDir())
		cfg.Style.Marker.Kind = "icon"
		cfg.Style.Marker.Icon = filepath.Join(t.TempDir(), "missing.png")

		if _, err := New(cfg); err == nil {
			t.Error("expected error for missing icon file")
		}
	})
}

func TestRender_Cancelled(t *testing.T) {
	srv, hits := tileServer(t)
	p, err := New(testConfig(srv.URL, t.TempDir()), WithLogger(quietLogger))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Render(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("expected no requests, got %d", hits.Load())
	}
}
