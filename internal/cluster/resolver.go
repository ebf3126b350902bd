// Package cluster resolves the cluster metadata that decides which analytics
// project a reporting document belongs to.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"cspreport/internal/metrics"
)

const (
	// InfoPath is requested on the document's origin to obtain its cluster detail.
	InfoPath = "/prism/preauth/info"

	// DefaultTimeout bounds a single metadata request.
	DefaultTimeout = 20 * time.Second

	maxInfoBytes = 1 << 20
)

var (
	ErrInvalidOrigin = errors.New("cluster: document uri has no http(s) origin")
	ErrMissingConfig = errors.New("cluster: response has no mixpanelConfig")
)

// Detail is the analytics configuration published by a cluster.
type Detail struct {
	Production  bool   `json:"production"`
	ProdSDKKey  string `json:"prodSdkKey"`
	DevSDKKey   string `json:"devSdkKey"`
	ClusterID   string `json:"clusterId"`
	ClusterName string `json:"clusterName"`
}

type infoResponse struct {
	Config *struct {
		MixpanelConfig *Detail `json:"mixpanelConfig"`
	} `json:"config"`
}

// Resolver looks up cluster details by document origin, remembering every
// successful lookup in its Cache. Failed lookups are not cached.
type Resolver struct {
	cache   *Cache
	client  *http.Client
	timeout time.Duration
	metrics *metrics.Metrics
	group   singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient sets the client used for metadata requests.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMetrics records lookup outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a Resolver backed by cache.
func NewResolver(cache *Cache, opts ...Option) *Resolver {
	r := &Resolver{
		cache:   cache,
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache returns the resolver's cache.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Resolve returns the cluster detail for documentURI's origin, or nil when
// it cannot be determined. The metadata request runs with the resolver's
// own timeout and is not cancelled by ctx.
func (r *Resolver) Resolve(ctx context.Context, documentURI string) *Detail {
	logger := zerolog.Ctx(ctx)

	origin, err := Origin(documentURI)
	if err != nil {
		logger.Debug().Err(err).Str("document_uri", documentURI).Msg("Cluster lookup skipped")
		r.metrics.ObserveLookup(metrics.LookupFailed)
		return nil
	}

	if d, ok := r.cache.Get(origin); ok {
		r.metrics.ObserveLookup(metrics.LookupHit)
		return &d
	}

	v, err, _ := r.group.Do(origin, func() (any, error) {
		if d, ok := r.cache.Get(origin); ok {
			return d, nil
		}
		d, err := r.fetch(ctx, origin)
		if err != nil {
			return nil, err
		}
		r.cache.Put(origin, d)
		return d, nil
	})
	if err != nil {
		logger.Warn().Err(err).Str("origin", origin).Msg("Cluster lookup failed")
		r.metrics.ObserveLookup(metrics.LookupFailed)
		return nil
	}

	d := v.(Detail)
	logger.Debug().
		Str("origin", origin).
		Str("cluster_id", d.ClusterID).
		Bool("production", d.Production).
		Msg("Cluster detail resolved")
	r.metrics.ObserveLookup(metrics.LookupFetched)
	return &d
}

func (r *Resolver) fetch(ctx context.Context, origin string) (Detail, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+InfoPath, nil)
	if err != nil {
		return Detail{}, fmt.Errorf("build cluster info request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Detail{}, fmt.Errorf("get cluster info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxInfoBytes))
		return Detail{}, fmt.Errorf("get cluster info: unexpected status %d", resp.StatusCode)
	}

	var info infoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxInfoBytes)).Decode(&info); err != nil {
		return Detail{}, fmt.Errorf("decode cluster info: %w", err)
	}
	if info.Config == nil || info.Config.MixpanelConfig == nil {
		return Detail{}, ErrMissingConfig
	}
	return *info.Config.MixpanelConfig, nil
}

// Origin returns the scheme://host[:port] of an http or https URI, with
// the scheme and host lowercased and default ports dropped.
func Origin(documentURI string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(documentURI))
	if err != nil {
		return "", fmt.Errorf("parse document uri: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", ErrInvalidOrigin
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", ErrInvalidOrigin
	}

	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	switch {
	case port != "":
		host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		host = "[" + host + "]"
	}
	return scheme + "://" + host, nil
}
