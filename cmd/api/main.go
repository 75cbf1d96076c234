// Diggfeed serves Digg's top posts as RSS feeds.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/jdholdren/diggfeed/internal/api"
	"github.com/jdholdren/diggfeed/internal/cache"
	"github.com/jdholdren/diggfeed/internal/digg"
	"github.com/jdholdren/diggfeed/internal/feed"
	"github.com/jdholdren/diggfeed/internal/logger"
	"github.com/jdholdren/diggfeed/internal/migrations"
	"github.com/jdholdren/diggfeed/internal/sqlite"
)

type config struct {
	Port    int    `env:"PORT, default=8080"`
	SiteURL string `env:"SITE_URL, default=https://digg.com"`

	// Which format to use for logging: either text or json
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`
	LogLevel     string `env:"LOG_LEVEL, default=info"`

	UpstreamEndpoint   string        `env:"UPSTREAM_ENDPOINT, default=https://digg.com/api/graphql"`
	UserAgent          string        `env:"USER_AGENT, default=Mozilla/5.0 (compatible; diggfeed/1.0; +https://github.com/jdholdren/diggfeed)"`
	UpstreamTimeout    time.Duration `env:"UPSTREAM_TIMEOUT, default=10s"`
	UpstreamRPS        float64       `env:"UPSTREAM_RPS, default=0"`
	UpstreamRichFields bool          `env:"UPSTREAM_RICH_FIELDS, default=false"`
	GoodEnough         int           `env:"GOOD_ENOUGH, default=5"`

	FeedTTL         time.Duration `env:"FEED_TTL, default=10m"`
	TLDRTTL         time.Duration `env:"TLDR_TTL, default=1h"`
	TLDRTimeout     time.Duration `env:"TLDR_TIMEOUT, default=3s"`
	FilterProfanity bool          `env:"FILTER_PROFANITY, default=false"`

	// Either memory or sqlite
	CacheBackend string `env:"CACHE_BACKEND, default=memory"`
	CacheSize    int    `env:"CACHE_SIZE, default=1024"`
	Database     string `env:"DATABASE, default=diggfeed.db"`

	// Only used by the memory backend, summaries get their own LRU there
	SummaryCacheSize int `env:"SUMMARY_CACHE_SIZE, default=4096"`
}

// How often expired rows are swept out of the sqlite cache.
const purgeInterval = 5 * time.Minute

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// A .env file is optional
	_ = godotenv.Load()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	l := logger.New(os.Stdout, cfg.LoggerFormat, cfg.LogLevel)
	slog.SetDefault(l)

	st, err := newStores(cfg)
	if err != nil {
		log.Fatalf("error creating cache: %s", err)
	}

	client := digg.NewClient(digg.Config{
		Endpoint:          cfg.UpstreamEndpoint,
		UserAgent:         cfg.UserAgent,
		Timeout:           cfg.UpstreamTimeout,
		RequestsPerSecond: cfg.UpstreamRPS,
		GoodEnough:        cfg.GoodEnough,
		RichFields:        cfg.UpstreamRichFields,
	})
	summarizer := digg.NewSummarizer(digg.SummarizerConfig{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.TLDRTimeout,
		TTL:       cfg.TLDRTTL,
	}, st.summaries)
	assembler := feed.NewAssembler(feed.AssemblerConfig{
		SiteURL:         cfg.SiteURL,
		FilterProfanity: cfg.FilterProfanity,
	}, summarizer)

	// Start the application
	fx.New(
		fx.WithLogger(func() fxevent.Logger { return &fxevent.SlogLogger{Logger: l} }),
		fx.Supply(
			api.ServerConfig{
				Port:    cfg.Port,
				FeedTTL: cfg.FeedTTL,
			},
			fx.Annotate(st.feeds, fx.As(new(cache.Store))),
			fx.Annotate(client, fx.As(new(api.PostSource))),
			fx.Annotate(assembler, fx.As(new(api.FeedBuilder))),
		),
		st.opts,
		api.Module,
		fx.Invoke(func(*api.Server) {}), // Start the feed server
	).Run()
}

// stores are the caches for built feeds and for page summaries, plus whatever they
// need run alongside the server.
type stores struct {
	feeds     cache.Store
	summaries cache.Store
	opts      fx.Option
}

// newStores builds the configured cache backend. In memory, summaries get an LRU of
// their own so a page of new posts can't push the feeds out. On sqlite both share the
// one table, keyed apart.
func newStores(cfg config) (stores, error) {
	switch cfg.CacheBackend {
	case "memory":
		feeds, err := cache.NewMemory(cfg.CacheSize)
		if err != nil {
			return stores{}, fmt.Errorf("error creating feed cache: %w", err)
		}
		summaries, err := cache.NewMemory(cfg.SummaryCacheSize)
		if err != nil {
			return stores{}, fmt.Errorf("error creating summary cache: %w", err)
		}
		return stores{feeds: feeds, summaries: summaries, opts: fx.Options()}, nil
	case "sqlite":
		dbx, err := sqlite.Open(cfg.Database)
		if err != nil {
			return stores{}, err
		}
		// Migrate, always
		if err := migrations.Run(dbx); err != nil {
			dbx.Close()
			return stores{}, fmt.Errorf("error running migrations: %s", err)
		}

		c := sqlite.New(dbx)
		purge := fx.Invoke(func(lc fx.Lifecycle) {
			purgeCtx, stop := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go c.PurgeEvery(purgeCtx, purgeInterval)
					return nil
				},
				OnStop: func(context.Context) error {
					stop()
					return dbx.Close()
				},
			})
		})
		return stores{feeds: c, summaries: c, opts: purge}, nil
	default:
		return stores{}, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
