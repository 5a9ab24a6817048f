package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/posterize/internal/config"
	"github.com/kiesman99/posterize/internal/poster"
	"github.com/kiesman99/posterize/pkg/tile"
)

var (
	cfgFile string
	version = "1.0.0"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "posterize",
	Short: "Render print-ready poster maps from raster map tiles",
	Long: `posterize downloads the map tiles covering a bounding box, stitches them,
recolours them as a duotone, optionally marks a location and crops and resizes
the result to the map area of a printed canvas.

Tiles are cached on disk, so repeated renders of the same area only fetch
tiles that are missing. Tiles that cannot be downloaded are left blank and
reported instead of failing the render.

Examples:
  # Munich at zoom 14 on the default 22.5x30cm canvas at 300 DPI
  posterize --bbox 48.20,11.50,48.10,11.65 --zoom 14 -o munich.png

  # Mark home with a pin, white on dark blue, printed at 150 DPI
  posterize --bbox 48.20,11.50,48.10,11.65 --zoom 15 --marker 48.137,11.575 \
    --marker-kind icon --foreground "#ffffff" --background "#1d2b4a" --dpi 150 -o home.png

  # Everything from a config file
  posterize --config munich.yaml -o munich.png

  # Start HTTP server
  posterize serve --port 8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Nothing to render without a location
		if cmd.Flags().NFlag() == 0 && viper.ConfigFileUsed() == "" {
			return cmd.Help()
		}
		return runRender(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	defaults := config.Defaults()

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.posterize.yaml)")
	rootCmd.PersistentFlags().String("log-level", defaults.Log.Level, "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", defaults.Log.Format, "log format (text|json)")
	rootCmd.PersistentFlags().String("cache-dir", defaults.Cache.Dir, "tile cache directory")
	rootCmd.PersistentFlags().Bool("no-cache", false, "neither read nor write the tile cache")
	rootCmd.PersistentFlags().Int("attempts", defaults.Fetch.Attempts, "download attempts per tile")
	rootCmd.PersistentFlags().Duration("tile-timeout", defaults.Fetch.Timeout, "timeout of a single tile request")
	rootCmd.PersistentFlags().Duration("backoff", defaults.Fetch.Backoff, "delay before the first retry, doubled after each failure")
	rootCmd.PersistentFlags().String("user-agent", defaults.Fetch.UserAgent, "HTTP User-Agent header")

	// Output options
	rootCmd.Flags().StringP("output", "o", "map.png", "output PNG file (empty: stdout)")
	rootCmd.Flags().Bool("progress", true, "show a download progress bar")

	// Location options
	rootCmd.Flags().String("bbox", "", "bounding box as 'top-lat,left-lon,bottom-lat,right-lon'")
	rootCmd.Flags().String("name", "", "location name")
	rootCmd.Flags().IntP("zoom", "z", 0, "zoom level (required)")
	rootCmd.Flags().String("marker", "", "marker position as 'lat,lon'")
	rootCmd.Flags().String("marker-policy", string(defaults.Location.MarkerPolicy), "when to draw the marker (always|never|if-present)")

	// Style options
	rootCmd.Flags().StringP("provider", "p", defaults.Style.Provider, "tile provider name")
	rootCmd.Flags().String("foreground", defaults.Style.Foreground, "colour of white map areas")
	rootCmd.Flags().String("background", defaults.Style.Background, "colour of black map areas")
	rootCmd.Flags().Bool("boost-contrast", defaults.Style.BoostContrast, "push light greys towards black before colouring")
	rootCmd.Flags().Float64("contrast-scale", defaults.Style.ContrastScale, "strength of the contrast boost")
	rootCmd.Flags().String("marker-kind", defaults.Style.Marker.Kind, "marker look (none|circle|icon)")
	rootCmd.Flags().Float64("marker-size", defaults.Style.Marker.SizeMM, "printed marker width in mm")
	rootCmd.Flags().Float64("marker-opacity", defaults.Style.Marker.Opacity, "marker icon opacity (0..1)")
	rootCmd.Flags().String("marker-icon", "", "PNG icon used instead of the built-in pin")

	// Canvas options
	rootCmd.Flags().IntP("dpi", "d", defaults.Canvas.DPI, "print resolution")

	// Bind flags to viper
	for key, flag := range map[string]string{
		"log.level":        "log-level",
		"log.format":       "log-format",
		"cache.dir":        "cache-dir",
		"fetch.attempts":   "attempts",
		"fetch.timeout":    "tile-timeout",
		"fetch.backoff":    "backoff",
		"fetch.user_agent": "user-agent",
	} {
		viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
	}
	for key, flag := range map[string]string{
		"output":                 "output",
		"progress":               "progress",
		"location.name":          "name",
		"location.zoom":          "zoom",
		"location.marker_policy": "marker-policy",
		"style.provider":         "provider",
		"style.foreground":       "foreground",
		"style.background":       "background",
		"style.boost_contrast":   "boost-contrast",
		"style.contrast_scale":   "contrast-scale",
		"style.marker.kind":      "marker-kind",
		"style.marker.size_mm":   "marker-size",
		"style.marker.opacity":   "marker-opacity",
		"style.marker.icon":      "marker-icon",
		"canvas.dpi":             "dpi",
	} {
		viper.BindPFlag(key, rootCmd.Flags().Lookup(flag))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".posterize" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".posterize")
	}

	viper.SetEnvPrefix("posterize")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// applyFlagOverrides moves flags that do not map onto a single config key
// into viper.
func applyFlagOverrides(cmd *cobra.Command) error {
	if bbox, _ := cmd.Flags().GetString("bbox"); bbox != "" {
		box, err := tile.ParseBoundingBox(bbox)
		if err != nil {
			return err
		}
		viper.Set("location.top_left", pointMap(box.TopLeft))
		viper.Set("location.bottom_right", pointMap(box.BottomRight))
	}
	if marker, _ := cmd.Flags().GetString("marker"); marker != "" {
		p, err := parsePoint(marker)
		if err != nil {
			return fmt.Errorf("invalid marker: %w", err)
		}
		viper.Set("location.marker", pointMap(p))
	}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		viper.Set("cache.enabled", false)
	}
	return nil
}

func pointMap(p tile.GeoPoint) map[string]interface{} {
	return map[string]interface{}{"lat": p.Lat, "lon": p.Lon}
}

func parsePoint(s string) (tile.GeoPoint, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return tile.GeoPoint{}, fmt.Errorf("point must be in format 'lat,lon'")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return tile.GeoPoint{}, fmt.Errorf("invalid lat: %v", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return tile.GeoPoint{}, fmt.Errorf("invalid lon: %v", err)
	}
	return tile.GeoPoint{Lat: lat, Lon: lon}, nil
}

func runRender(cmd *cobra.Command, args []string) error {
	output := viper.GetString("output")

	// Check if output is to terminal
	if output == "" {
		if stat, _ := os.Stdout.Stat(); (stat.Mode() & os.ModeCharDevice) != 0 {
			return fmt.Errorf("didn't specify output file and standard output is a terminal")
		}
	}

	if err := applyFlagOverrides(cmd); err != nil {
		return err
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger := config.NewLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	center := cfg.Location.BoundingBox().Center()
	lat, lon := tile.FormatDMS(center)
	logger.Info("location",
		"name", cfg.Location.Name, "top_left", cfg.Location.TopLeft.String(),
		"bottom_right", cfg.Location.BottomRight.String(), "center", lat+" "+lon, "zoom", cfg.Location.Zoom)
	content := cfg.Canvas.ContentSizeMM()
	logger.Info("canvas",
		"size_mm", fmt.Sprintf("%.0fx%.0f", cfg.Canvas.Size.Width, cfg.Canvas.Size.Height),
		"map_mm", fmt.Sprintf("%.0fx%.0f", content.Width, content.Height),
		"dpi", cfg.Canvas.DPI, "map_px", cfg.Canvas.OutputSize())

	var bar *progressbar.ProgressBar
	opts := []poster.Option{poster.WithLogger(logger)}
	if viper.GetBool("progress") {
		opts = append(opts, poster.WithProgress(func(done, total int) {
			bar.Add(1)
		}))
	}

	p, err := poster.New(cfg, opts...)
	if err != nil {
		return err
	}
	logger.Info("tile grid", "grid", p.Grid().String())
	if viper.GetBool("progress") {
		bar = progressbar.Default(int64(p.Grid().Len()), "downloading tiles")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := p.Render(ctx)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	if err := result.Report.Err(); err != nil {
		// Best effort: the map is written with blank tiles.
		logger.Warn("map is incomplete", "error", err)
	}

	if err := tile.WritePNG(output, result.Image); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	if attribution := p.Provider().Attribution; attribution != "" {
		logger.Info("attribution", "text", attribution)
	}
	logger.Info("map written", "file", output, "size", result.Size)
	return nil
}
