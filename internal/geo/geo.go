// Package geo derives a region name from a client IP through an
// ip-api.com compatible HTTP endpoint.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/atinyakov/shortlinks/internal/metrics"
	"github.com/atinyakov/shortlinks/internal/storage"
)

const (
	DefaultEndpoint = "http://ip-api.com/json"
	DefaultTimeout  = 2 * time.Second
	DefaultCacheTTL = 6 * time.Hour
)

// Locator resolves an address to a region, falling back to storage.UnknownRegion.
type Locator interface {
	Lookup(ctx context.Context, ip string) string
}

type Client struct {
	endpoint string
	http     *http.Client
	cache    *cache.Cache
	logger   *zap.Logger
}

func New(endpoint string, timeout, ttl time.Duration, logger *zap.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
		cache:    cache.New(ttl, 2*ttl),
		logger:   logger,
	}
}

type response struct {
	Status  string `json:"status"`
	Country string `json:"country"`
	Message string `json:"message"`
}

// Lookup never fails: any problem yields storage.UnknownRegion.
// Only successful answers are cached.
func (c *Client) Lookup(ctx context.Context, ip string) string {
	addr := net.ParseIP(ip)
	if addr == nil || addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
		metrics.RecordGeoLookup("local")
		return storage.UnknownRegion
	}

	if region, ok := c.cache.Get(ip); ok {
		metrics.RecordGeoLookup("cache")
		return region.(string)
	}

	region, err := c.fetch(ctx, ip)
	if err != nil {
		metrics.RecordGeoLookup("error")
		c.logger.Debug("region lookup failed", zap.String("ip", ip), zap.Error(err))
		return storage.UnknownRegion
	}

	metrics.RecordGeoLookup("remote")
	c.cache.SetDefault(ip, region)
	return region
}

func (c *Client) fetch(ctx context.Context, ip string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint+"/"+url.PathEscape(ip)+"?fields=status,message,country", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if body.Status != "success" || body.Country == "" {
		return "", fmt.Errorf("lookup refused: %s", body.Message)
	}

	return body.Country, nil
}
