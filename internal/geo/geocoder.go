package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://nominatim.openstreetmap.org"
	defaultUserAgent = "community-recommender/1.0"
	defaultCacheSize = 1024
)

var errNotFound = errors.New("postal code not found")

// Coordinates is a WGS-84 position.
type Coordinates struct {
	Lat float64
	Lon float64
}

// locationService resolves a postal code to coordinates. Abstracted so tests
// can run without the external service.
type locationService interface {
	Lookup(ctx context.Context, postalCode string) (Coordinates, error)
}

type nominatimService struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     *zap.Logger
}

func (n *nominatimService) Lookup(ctx context.Context, postalCode string) (Coordinates, error) {
	q := url.Values{}
	q.Set("postalcode", postalCode)
	q.Set("country", "USA")
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search", nil)
	if err != nil {
		return Coordinates{}, err
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	n.logger.Debug("geocode request", zap.String("postal_code", postalCode))

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return Coordinates{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Coordinates{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, fmt.Errorf("bad status: %s", resp.Status)
	}

	var places []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.Unmarshal(body, &places); err != nil {
		return Coordinates{}, err
	}
	if len(places) == 0 {
		return Coordinates{}, errNotFound
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("parse lat: %w", err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("parse lon: %w", err)
	}

	return Coordinates{Lat: lat, Lon: lon}, nil
}

type cachedLookup struct {
	coords Coordinates
	ok     bool
}

// GeocoderConfig carries the knobs the geocoder exposes to configuration.
type GeocoderConfig struct {
	BaseURL   string
	UserAgent string
	CacheSize int
	// RequestsPerSecond bounds external lookups. The public Nominatim
	// usage policy requires at most one request per second.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Geocoder memoizes postal-code lookups in a bounded LRU shared across
// consultations and rate-limits calls to the external service.
type Geocoder struct {
	service locationService
	cache   *lru.Cache[string, cachedLookup]
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewGeocoder(cfg GeocoderConfig, logger *zap.Logger) (*Geocoder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.CacheSize < defaultCacheSize {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	cache, err := lru.New[string, cachedLookup](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create geocode cache: %w", err)
	}

	return &Geocoder{
		service: &nominatimService{
			httpClient: &http.Client{Timeout: cfg.Timeout},
			baseURL:    cfg.BaseURL,
			userAgent:  cfg.UserAgent,
			logger:     logger,
		},
		cache:   cache,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger,
	}, nil
}

// Coordinates resolves one postal code, serving repeats from the cache.
// Failed lookups are cached too so an unknown ZIP costs one external call.
func (g *Geocoder) Coordinates(ctx context.Context, postalCode string) (Coordinates, bool) {
	if postalCode == "" {
		return Coordinates{}, false
	}

	if hit, ok := g.cache.Get(postalCode); ok {
		return hit.coords, hit.ok
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return Coordinates{}, false
	}

	coords, err := g.service.Lookup(ctx, postalCode)
	if err != nil {
		g.logger.Warn("geocoding failed",
			zap.String("postal_code", postalCode),
			zap.Error(err),
		)
		g.cache.Add(postalCode, cachedLookup{})
		return Coordinates{}, false
	}

	g.cache.Add(postalCode, cachedLookup{coords: coords, ok: true})
	return coords, true
}

// Distance returns the geodesic distance in miles between two postal codes.
// ok is false when either endpoint cannot be geocoded; callers rank those
// last among known distances.
func (g *Geocoder) Distance(ctx context.Context, zipA, zipB string) (float64, bool) {
	a, okA := g.Coordinates(ctx, zipA)
	if !okA {
		return 0, false
	}
	b, okB := g.Coordinates(ctx, zipB)
	if !okB {
		return 0, false
	}
	return geodesicMiles(a, b), true
}
