package quark

import (
	"context"
	"fmt"
	"strings"

	"github.com/jellydator/ttlcache/v3"

	"retriever/internal/backend"
)

// PanSouHealth is the aggregator's advertised channel and plugin set.
type PanSouHealth struct {
	Status   string   `json:"status"`
	Channels []string `json:"channels"`
	Plugins  []string `json:"plugins"`
}

// PanSouHealth returns the cached aggregator health, fetching it when the
// cache is empty or refresh is set. Concurrent misses share one request.
func (a *Adapter) PanSouHealth(ctx context.Context, refresh bool) (PanSouHealth, error) {
	if !refresh {
		if item := a.health.Get(healthCacheKey); item != nil {
			return item.Value(), nil
		}
	}
	v, err, _ := a.group.Do(healthCacheKey, func() (any, error) {
		var health PanSouHealth
		if err := a.getJSON(ctx, "pansou health", strings.TrimRight(a.cfg.PanSouURL, "/")+"/health", 0, &health); err != nil {
			return PanSouHealth{}, err
		}
		a.health.Set(healthCacheKey, health, ttlcache.DefaultTTL)
		return health, nil
	})
	if err != nil {
		return PanSouHealth{}, err
	}
	return v.(PanSouHealth), nil
}

// DesktopInfo queries the local Quark desktop app.
func (a *Adapter) DesktopInfo(ctx context.Context) (map[string]any, error) {
	var info map[string]any
	err := a.getJSON(ctx, "desktop info", strings.TrimRight(a.cfg.DesktopURL, "/")+"/desktop_info", desktopTimeout, &info)
	return info, err
}

// HealthCheck reports whether the PanSou aggregator answers. The desktop app
// only affects the detail since saving always has a browser fallback.
func (a *Adapter) HealthCheck(ctx context.Context) backend.Health {
	health, err := a.PanSouHealth(ctx, false)
	if err != nil {
		return backend.Unhealthy(Name, err.Error())
	}
	detail := fmt.Sprintf("pansou: %d channels, %d plugins", len(health.Channels), len(health.Plugins))
	if _, err := a.DesktopInfo(ctx); err != nil {
		detail += "; desktop app not reachable"
	}
	h := backend.Healthy(Name)
	h.Detail = detail
	return h
}
