// Package quark finds, validates and saves Quark cloud-drive shares.
//
// Search goes through a PanSou aggregator whose channel and plugin lists are
// cached for a day. Validation asks the Quark share service for a share token
// and, for valid shares, lists the share root. Saving hands the share over to
// the local Quark desktop app, falling back to a browser URL.
package quark

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"retriever/internal/config"
	"retriever/internal/jobs"
	"retriever/internal/logging"
)

// Name is the registry name of the adapter.
const Name = "quark"

const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	desktopTimeout   = 5 * time.Second
	searchTimeout    = 30 * time.Second
	maxSearchPages   = 5
	listingPageSize  = 50
	healthCacheKey   = "pansou"
)

// Adapter implements backend.Searcher, backend.Validator and backend.Saver.
type Adapter struct {
	cfg    config.Quark
	client *http.Client
	ua     string
	logger *slog.Logger

	health *ttlcache.Cache[string, PanSouHealth]
	group  singleflight.Group
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		if client != nil {
			a.client = client
		}
	}
}

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logging.NewComponentLogger(logger, Name)
		}
	}
}

// New constructs the adapter. Call Close to stop the health cache janitor.
func New(cfg config.Quark, opts ...Option) *Adapter {
	ttl := time.Duration(cfg.HealthTTL) * time.Second
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	a := &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		ua:     ua,
		logger: logging.NewNop(),
		health: ttlcache.New(
			ttlcache.WithTTL[string, PanSouHealth](ttl),
			ttlcache.WithDisableTouchOnHit[string, PanSouHealth](),
		),
	}
	for _, opt := range opts {
		opt(a)
	}
	go a.health.Start()
	return a
}

// Close stops background cache maintenance.
func (a *Adapter) Close() error {
	a.health.Stop()
	return nil
}

// Name implements backend.Adapter.
func (a *Adapter) Name() string { return Name }

// Capabilities implements backend.Adapter.
func (a *Adapter) Capabilities() []jobs.Kind {
	return []jobs.Kind{jobs.KindSearch, jobs.KindValidate, jobs.KindSave}
}
