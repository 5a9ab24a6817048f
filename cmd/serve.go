package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/posterize/internal/config"
	"github.com/kiesman99/posterize/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the poster render API",
	Long: `Start an HTTP server that renders poster maps over a REST API.

POST /api/v1/render takes a location plus optional style and canvas overrides
and answers with the map as PNG. Style, canvas, cache and provider defaults
come from the config file and flags. Prometheus metrics are served on /metrics.

Examples:
  # Start server on default port 8080
  posterize serve

  # Start server on custom port
  posterize serve --port 3000

  # Start server with custom bind address and cache directory
  posterize serve --bind 0.0.0.0 --port 8080 --cache-dir /var/cache/posterize`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 5*time.Minute, "request timeout")
	serveCmd.Flags().StringSlice("tile-hosts", nil, "hosts a request tile_source may use (default: any)")
	serveCmd.Flags().Int64("memory-tiles", config.Defaults().Cache.MemoryItems, "tiles kept in memory in front of the disk cache")

	// Bind flags to viper
	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("server.tile_hosts", serveCmd.Flags().Lookup("tile-hosts"))
	viper.BindPFlag("cache.memory_items", serveCmd.Flags().Lookup("memory-tiles"))
}

func runServe(cmd *cobra.Command, args []string) error {
	bind := viper.GetString("server.bind")
	port := viper.GetInt("server.port")
	timeout := viper.GetDuration("server.timeout")

	addr := fmt.Sprintf("%s:%d", bind, port)

	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		viper.Set("cache.enabled", false)
	}
	base, err := config.Decode(viper.GetViper())
	if err != nil {
		return err
	}
	logger := config.NewLogger(base.Log.Level, base.Log.Format, cmd.ErrOrStderr())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	apiServer := server.NewServer(version, base, logger, server.NewMetrics(reg))
	defer apiServer.Close()
	apiServer.AllowTileHosts(viper.GetStringSlice("server.tile_hosts")...)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.NewRouter(apiServer, timeout),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: timeout + 10*time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
	}()

	logger.Info("starting posterize server",
		"addr", addr,
		"health", fmt.Sprintf("http://%s/api/v1/health", addr),
		"render", fmt.Sprintf("http://%s/api/v1/render", addr),
		"metrics", fmt.Sprintf("http://%s/metrics", addr),
		"cache", base.Cache.Dir, "cache_enabled", base.Cache.Enabled)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %v", err)
	}

	return nil
}
