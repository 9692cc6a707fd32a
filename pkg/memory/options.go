package memory

import (
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

const (
	DefaultGraphName    = "http://hyperdata.it/content"
	DefaultDimension    = 1536
	DefaultCacheTTL     = 5 * time.Minute
	DefaultMaxCacheSize = 1000
	DefaultTimeout      = 30 * time.Second
)

// Options configures a SPARQLStore or CachedSPARQLStore. Zero values fall
// back to the defaults above; CacheEnabled is a pointer so that an explicit
// false can be told apart from "unset".
type Options struct {
	User      string
	Password  string
	GraphName string
	Dimension int

	CacheEnabled    *bool
	CacheTTL        time.Duration
	MaxCacheSize    int
	// CleanupInterval enables the periodic sweep. The schedule has one
	// second resolution, so shorter intervals run every second.
	CleanupInterval time.Duration

	// Timeout bounds each HTTP request. Ignored when HTTPClient is set.
	Timeout    time.Duration
	HTTPClient *http.Client

	Logger *log.Logger
	Clock  func() time.Time
}

// Bool returns a pointer to b, for Options.CacheEnabled.
func Bool(b bool) *bool {
	return &b
}

func (opts Options) withDefaults() Options {
	if opts.GraphName == "" {
		opts.GraphName = DefaultGraphName
	}

	if opts.Dimension <= 0 {
		opts.Dimension = DefaultDimension
	}

	if opts.CacheEnabled == nil {
		opts.CacheEnabled = Bool(true)
	}

	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}

	if opts.MaxCacheSize <= 0 {
		opts.MaxCacheSize = DefaultMaxCacheSize
	}

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}

	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix:          "sparql",
			ReportTimestamp: true,
		})
	}

	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return opts
}
