package cli

import (
	"context"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/spotmatch/internal/server"
	"github.com/matzehuels/spotmatch/pkg/cache"
	"github.com/matzehuels/spotmatch/pkg/imagesrc"
	"github.com/matzehuels/spotmatch/pkg/pipeline"
)

// redisKeyPrefix scopes keys in a shared Redis database.
const redisKeyPrefix = "spotmatch:"

// serveFlags holds the command-line flags for the serve command.
type serveFlags struct {
	addr        string
	redisURL    string
	maxImages   int
	maxUploadMB int64
	timeout     time.Duration
	noCache     bool
}

// serveCommand creates the serve command running the HTTP API.
func (c *CLI) serveCommand() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve runs the HTTP API until interrupted.

  GET  /healthz          liveness probe
  GET  /api/v1/orders    supported orders
  POST /api/v1/generate  multipart upload of images plus settings

Layouts and artifacts are cached on disk, or in Redis with --redis-url so
several instances can share them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.serverConfig(cmd, flags)
			return c.runServe(cmd.Context(), cfg, flags)
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", server.DefaultAddr, "listen address")
	cmd.Flags().StringVar(&flags.redisURL, "redis-url", "", "share the cache through Redis (redis://host:port/db)")
	cmd.Flags().IntVar(&flags.maxImages, "max-images", server.DefaultMaxImages, "maximum images per request")
	cmd.Flags().Int64Var(&flags.maxUploadMB, "max-upload-mb", server.DefaultMaxUploadBytes>>20, "maximum request size in MiB")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", server.DefaultRequestTimeout, "generate request timeout")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "disable caching")

	return cmd
}

// serverConfig merges settings and flags; flags set on the command line win.
func (c *CLI) serverConfig(cmd *cobra.Command, flags serveFlags) server.Config {
	s := c.Settings.Server
	cfg := server.Config{
		Addr:           s.Addr,
		MaxImages:      s.MaxImages,
		MaxUploadBytes: s.MaxUploadMB << 20,
		RequestTimeout: s.RequestTimeout,
		Defaults:       c.Settings.Generate,
	}

	changed := cmd.Flags().Changed
	if changed("addr") {
		cfg.Addr = flags.addr
	}
	if changed("max-images") {
		cfg.MaxImages = flags.maxImages
	}
	if changed("max-upload-mb") {
		cfg.MaxUploadBytes = flags.maxUploadMB << 20
	}
	if changed("timeout") {
		cfg.RequestTimeout = flags.timeout
	}
	return cfg
}

func (c *CLI) runServe(ctx context.Context, cfg server.Config, flags serveFlags) error {
	logger := loggerFromContext(ctx)

	redisURL := flags.redisURL
	if redisURL == "" {
		redisURL = c.Settings.Server.RedisURL
	}

	var store cache.Cache
	var keyer cache.Keyer
	switch {
	case flags.noCache || c.Settings.Cache.Disabled:
		store = cache.NewNullCache()
	case redisURL != "":
		rc, err := cache.NewRedisCache(ctx, redisURL)
		if err != nil {
			return err
		}
		store = rc
		keyer = cache.NewScopedKeyer(cache.NewDefaultKeyer(), redisKeyPrefix)
		logger.Info("using redis cache", "url", redactURL(redisURL))
	default:
		fc, err := c.newCache(false)
		if err != nil {
			return err
		}
		store = fc
	}

	runner := pipeline.NewRunner(store, keyer, logger)
	defer runner.Close()

	provider := imagesrc.NewImagingProvider(c.Settings.maxImageSide())
	return server.New(cfg, runner, provider, logger).ListenAndServe(ctx)
}

// redactURL hides the password of a connection URL for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(invalid url)"
	}
	return u.Redacted()
}
