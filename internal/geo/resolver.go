// Package geo maps client IP addresses to coarse locations using the
// ipapi.co JSON API. Lookups are best effort: every failure resolves to
// Unknown() and is only logged.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat-server/internal/store"
)

const (
	// DefaultEndpoint is the ipapi.co base URL.
	DefaultEndpoint = "https://ipapi.co"
	// maxResponseBytes bounds the JSON body read from the API.
	maxResponseBytes = 64 << 10
)

// Unknown is the placeholder location used whenever a lookup fails.
func Unknown() store.Location {
	return store.Location{City: "Unknown", Country: "Unknown"}
}

// Cache stores successful lookups.
type Cache interface {
	Get(ctx context.Context, ip string) (store.Location, bool, error)
	Set(ctx context.Context, ip string, loc store.Location) error
}

// Observer receives lookup latency and success.
type Observer interface {
	RecordGeoLookup(d time.Duration, ok bool)
}

// Resolver resolves IP addresses through the ipapi.co API.
type Resolver struct {
	httpClient *http.Client
	endpoint   string
	timeout    time.Duration
	cache      Cache
	observer   Observer
	log        *zerolog.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithEndpoint overrides the API base URL.
func WithEndpoint(endpoint string) Option {
	return func(r *Resolver) { r.endpoint = strings.TrimRight(endpoint, "/") }
}

// WithTimeout bounds each lookup. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithCache enables caching of successful lookups.
func WithCache(c Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithObserver reports lookup metrics.
func WithObserver(o Observer) Option {
	return func(r *Resolver) { r.observer = o }
}

// WithLogger sets the logger used for failed lookups.
func WithLogger(l *zerolog.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// NewResolver builds a resolver that issues requests with httpClient.
func NewResolver(httpClient *http.Client, opts ...Option) *Resolver {
	nop := zerolog.Nop()
	r := &Resolver{
		httpClient: httpClient,
		endpoint:   DefaultEndpoint,
		timeout:    3 * time.Second,
		log:        &nop,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type apiResponse struct {
	City        string   `json:"city"`
	CountryName string   `json:"country_name"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Error       bool     `json:"error"`
	Reason      string   `json:"reason"`
}

// Resolve returns the location for addr. It never fails: lookup errors,
// timeouts and non-routable addresses all yield Unknown().
func (r *Resolver) Resolve(ctx context.Context, addr string) store.Location {
	ip, ok := NormalizeIP(addr)
	if !ok || !routable(ip) {
		return Unknown()
	}
	key := ip.String()

	if r.cache != nil {
		loc, hit, err := r.cache.Get(ctx, key)
		if err != nil {
			r.log.Debug().Err(err).Str("ip", key).Msg("geo cache get failed")
		} else if hit {
			return loc
		}
	}

	start := time.Now()
	loc, err := r.lookup(ctx, key)
	if r.observer != nil {
		r.observer.RecordGeoLookup(time.Since(start), err == nil)
	}
	if err != nil {
		r.log.Warn().Err(err).Str("ip", key).Msg("geo lookup failed")
		return Unknown()
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, loc); err != nil {
			r.log.Debug().Err(err).Str("ip", key).Msg("geo cache set failed")
		}
	}
	return loc
}

func (r *Resolver) lookup(ctx context.Context, ip string) (store.Location, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	reqURL := fmt.Sprintf("%s/%s/json/", r.endpoint, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return store.Location{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "roomchat-server/1.0")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return store.Location{}, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return store.Location{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return store.Location{}, fmt.Errorf("decode response: %w", err)
	}
	if body.Error {
		return store.Location{}, fmt.Errorf("api error: %s", body.Reason)
	}

	loc := store.Location{City: body.City, Country: body.CountryName}
	if body.Latitude != nil {
		loc.Latitude = *body.Latitude
	}
	if body.Longitude != nil {
		loc.Longitude = *body.Longitude
	}
	return loc, nil
}

// NormalizeIP parses a remote address that may carry a port, brackets or
// an IPv4-mapped IPv6 prefix.
func NormalizeIP(addr string) (netip.Addr, bool) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return netip.Addr{}, false
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	addr = strings.Trim(addr, "[]")

	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}

func routable(ip netip.Addr) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsMulticast())
}
