package root

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/drewfead/cinecal/internal"
	"github.com/drewfead/cinecal/internal/allocine"
	"github.com/drewfead/cinecal/internal/browser"
	"github.com/drewfead/cinecal/internal/cache"
	"github.com/drewfead/cinecal/internal/enrichment"
	"github.com/drewfead/cinecal/internal/posters"
	"github.com/drewfead/cinecal/internal/scraper"
	"github.com/drewfead/cinecal/internal/server"
	"github.com/drewfead/cinecal/internal/services"
	"github.com/drewfead/cinecal/internal/store"
	"github.com/drewfead/cinecal/internal/ticketing"
	"github.com/urfave/cli/v3"
)

// RootOption configures the root command (e.g. for tests).
type RootOption func(*rootConfig)

type rootConfig struct {
	httpClient      *http.Client
	allocineBaseURL string
	imageKitBaseURL string
	cdnBase         string
	logOutput       io.Writer
}

// WithHTTPClient sets the client used for Allociné, ticketing pages and poster downloads.
// Tests use it to route every request to golden HTTP servers.
func WithHTTPClient(client *http.Client) RootOption {
	return func(c *rootConfig) {
		c.httpClient = client
	}
}

func WithAllocineBaseURL(baseURL string) RootOption {
	return func(c *rootConfig) {
		c.allocineBaseURL = baseURL
	}
}

func WithImageKit(apiBaseURL, cdnBase string) RootOption {
	return func(c *rootConfig) {
		c.imageKitBaseURL = apiBaseURL
		c.cdnBase = cdnBase
	}
}

func WithLogOutput(w io.Writer) RootOption {
	return func(c *rootConfig) {
		c.logOutput = w
	}
}

const daysArg = "[days]"

func Root(ctx context.Context, opts ...RootOption) (*cli.Command, error) {
	cfg := &rootConfig{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(cfg)
	}

	rootCmd := &cli.Command{
		Name:  "cinecal",
		Usage: "scrape cinema showtimes into a database and keep it tidy",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "sqlite file path or postgres DSN",
				Value:   "cinecal.db",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "env",
				Usage:   "deployment environment; development uploads posters to the dev folder",
				Value:   "production",
				Sources: cli.EnvVars("ENV"),
			},
			&cli.StringFlag{
				Name:    "imagekit-api-key",
				Usage:   "ImageKit private key; poster stages are disabled without it",
				Sources: cli.EnvVars("IMAGEKIT_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "tmdb-api-key",
				Usage:   "TMDB read access token used to find posters the listing lacks",
				Sources: cli.EnvVars("TMDB_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.IntFlag{
				Name:    "theater-concurrency",
				Usage:   "theaters crawled at once",
				Value:   1,
				Sources: cli.EnvVars("THEATER_CONCURRENCY"),
			},
			&cli.IntFlag{
				Name:    "ticketing-concurrency",
				Usage:   "ticketing pages fetched at once",
				Value:   ticketing.DefaultConcurrency,
				Sources: cli.EnvVars("TICKETING_CONCURRENCY"),
			},
			&cli.BoolFlag{
				Name:    "browser",
				Usage:   "fetch ticketing pages with a headless browser",
				Sources: cli.EnvVars("USE_BROWSER"),
			},
			&cli.BoolFlag{
				Name:    "prune-orphan-movies",
				Usage:   "delete movies left without showtimes after a crawl",
				Sources: cli.EnvVars("PRUNE_ORPHAN_MOVIES"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level, err := parseLevel(cmd.String("log-level"))
			if err != nil {
				return ctx, err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cfg.logOutput, &slog.HandlerOptions{Level: level})))
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:  "seed",
				Usage: "insert the reference theaters and pattern tags",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					s, err := store.Open(ctx, cmd.String("database-url"))
					if err != nil {
						return err
					}
					defer func() { _ = s.Close() }()
					return s.Seed(ctx)
				},
			},
			{
				Name:      "crawl",
				Usage:     "crawl showtimes for today and the next days, then prune stale ones",
				ArgsUsage: daysArg,
				Action: cfg.withPipeline(func(ctx context.Context, cmd *cli.Command, p *services.Pipeline) error {
					days, err := parseDays(cmd.Args().First())
					if err != nil {
						return err
					}
					_, err = p.RunCrawl(ctx, days)
					return err
				}),
			},
			{
				Name:  "ticketing",
				Usage: "attach prices and tags from ticketing pages",
				Action: cfg.withPipeline(func(ctx context.Context, _ *cli.Command, p *services.Pipeline) error {
					_, err := p.RunTicketing(ctx)
					return err
				}),
			},
			{
				Name:  "posters",
				Usage: "upload missing posters to the CDN",
				Action: cfg.withPipeline(func(ctx context.Context, _ *cli.Command, p *services.Pipeline) error {
					_, err := p.RunPosters(ctx)
					return err
				}),
			},
			{
				Name:  "blurhashes",
				Usage: "compute missing poster blur hashes",
				Action: cfg.withPipeline(func(ctx context.Context, _ *cli.Command, p *services.Pipeline) error {
					_, err := p.RunBlurHashes(ctx)
					return err
				}),
			},
			{
				Name:      "all",
				Usage:     "run every stage in order",
				ArgsUsage: daysArg,
				Action: cfg.withPipeline(func(ctx context.Context, cmd *cli.Command, p *services.Pipeline) error {
					days, err := parseDays(cmd.Args().First())
					if err != nil {
						return err
					}
					return p.RunAll(ctx, days)
				}),
			},
			{
				Name:  "serve",
				Usage: "serve the loopback /scrap trigger and /healthz",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Value:   3000,
						Sources: cli.EnvVars("PORT"),
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, err := cfg.open(ctx, cmd)
					if err != nil {
						return err
					}
					defer a.close()
					srv := server.New(a.pipeline, a.store, server.WithDefaultDays(services.DefaultMaxDays))
					return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", cmd.Int("port")))
				},
			},
		},
	}
	return rootCmd, nil
}

type app struct {
	store    *store.Store
	pipeline *services.Pipeline
	closers  []io.Closer
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			slog.Warn("failed to close", "error", err)
		}
	}
}

func (c *rootConfig) withPipeline(fn func(context.Context, *cli.Command, *services.Pipeline) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := c.open(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(ctx, cmd, a.pipeline)
	}
}

// open wires every stage from the flags. Only configuration errors are returned.
func (c *rootConfig) open(ctx context.Context, cmd *cli.Command) (*app, error) {
	s, err := store.Open(ctx, cmd.String("database-url"))
	if err != nil {
		return nil, err
	}
	a := &app{store: s, closers: []io.Closer{s}}

	responses := cache.New(s)
	clientOpts := []allocine.Option{allocine.WithCache(responses)}
	if c.allocineBaseURL != "" {
		clientOpts = append(clientOpts, allocine.WithBaseURL(c.allocineBaseURL))
	}
	if c.httpClient != nil {
		clientOpts = append(clientOpts, allocine.WithClient(c.httpClient))
	}
	if cmd.Bool("browser") {
		b := browser.Headless()
		a.closers = append(a.closers, b)
		clientOpts = append(clientOpts, allocine.WithBrowser(b))
	}
	client := allocine.New(clientOpts...)

	stages := services.Stages{
		Crawler: scraper.NewCrawler(client, s,
			scraper.WithTheaterConcurrency(cmd.Int("theater-concurrency"))),
		Reconciler: scraper.NewReconciler(s, responses,
			scraper.WithPruneOrphanMovies(cmd.Bool("prune-orphan-movies"))),
		Enricher: ticketing.NewEnricher(s, client,
			ticketing.WithConcurrency(cmd.Int("ticketing-concurrency")),
			ticketing.WithPurger(responses)),
	}

	if key := cmd.String("imagekit-api-key"); key != "" {
		var kitOpts []posters.ImageKitOption
		if c.imageKitBaseURL != "" {
			kitOpts = append(kitOpts, posters.WithAPIBaseURL(c.imageKitBaseURL))
		}
		posterOpts := []posters.Option{
			posters.WithFolder(posters.Folder(cmd.String("env"))),
			posters.WithCDNBase(c.cdnBase),
			posters.WithClient(c.httpClient),
		}
		finder, err := posterFinder(cmd.String("tmdb-api-key"))
		if err != nil {
			a.close()
			return nil, err
		}
		if finder != nil {
			posterOpts = append(posterOpts, posters.WithPosterFinder(finder))
		}
		stages.Posters = posters.NewPipeline(s, posters.NewImageKit(key, kitOpts...), posterOpts...)
	} else {
		slog.Info("poster stages not configured", "reason", "no imagekit api key")
	}

	a.pipeline = services.NewPipeline(s, stages)
	return a, nil
}

func posterFinder(tmdbKey string) (internal.PosterFinder, error) {
	if tmdbKey == "" {
		slog.Info("TMDB poster lookup not configured", "reason", "no api key")
		return nil, nil
	}
	finder, err := enrichment.TMDB(tmdbKey)
	if err != nil {
		return nil, err
	}
	slog.Info("TMDB poster lookup configured")
	return enrichment.Chain{finder}, nil
}

func parseDays(arg string) (int, error) {
	if arg == "" {
		return services.DefaultMaxDays, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid days %q: expected a non-negative integer", arg)
	}
	return n, nil
}

var errLogLevel = errors.New("invalid log level")

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return level, fmt.Errorf("%w %q", errLogLevel, s)
	}
	return level, nil
}
