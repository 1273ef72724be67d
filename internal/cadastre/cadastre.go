// Package cadastre fetches cadastral boundary data and projects it onto a
// calibrated project canvas.
package cadastre

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
)

// Radius bounds in meters; requests outside are clamped, not rejected.
const (
	minRadius = 50
	maxRadius = 2000
)

// DefaultCacheTTL is how long a fetched boundary set stays valid. Cadastre
// data changes rarely.
const DefaultCacheTTL = time.Hour

// Client queries an ArcGIS-style feature service for land parcel boundaries
// around a point and caches the results in memory.
type Client struct {
	http *http.Client
	url  string
	ttl  time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	fc      *geojson.FeatureCollection
	expires time.Time
}

// NewClient wraps an HTTP client and a feature-service query URL. A zero ttl
// uses DefaultCacheTTL.
func NewClient(httpClient *http.Client, queryURL string, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Client{
		http:  httpClient,
		url:   queryURL,
		ttl:   ttl,
		cache: make(map[string]cacheEntry),
	}
}

// FetchBoundaries returns the parcel boundaries within radiusMeters of the
// given WGS84 point as a GeoJSON FeatureCollection.
func (c *Client) FetchBoundaries(lat, lon float64, radiusMeters int) (*geojson.FeatureCollection, error) {
	if radiusMeters < minRadius {
		radiusMeters = minRadius
	}
	if radiusMeters > maxRadius {
		radiusMeters = maxRadius
	}

	key := fmt.Sprintf("%.6f_%.6f_%d", lat, lon, radiusMeters)

	c.mu.Lock()
	if entry, ok := c.cache[key]; ok && time.Now().Before(entry.expires) {
		c.mu.Unlock()
		log.Debug().Str("key", key).Msg("Cadastre cache hit")
		return entry.fc, nil
	}
	c.mu.Unlock()

	params := url.Values{}
	params.Set("geometry", fmt.Sprintf("%f,%f", lon, lat))
	params.Set("geometryType", "esriGeometryPoint")
	params.Set("distance", fmt.Sprintf("%d", radiusMeters))
	params.Set("units", "esriSRUnit_Meter")
	params.Set("spatialRel", "esriSpatialRelIntersects")
	params.Set("outFields", "LOT,PLAN,PARCEL_TYPE,TENURE,LOCALITY,LOCAL_GOVERNMENT")
	params.Set("returnGeometry", "true")
	params.Set("f", "geojson")
	params.Set("outSR", "4326")

	log.Info().
		Float64("lat", lat).
		Float64("lon", lon).
		Int("radius", radiusMeters).
		Msg("Fetching cadastre boundaries")

	resp, err := c.http.Get(c.url + "?" + params.Encode())
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("cadastre service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("decoding cadastre response: %w", err)
	}

	log.Info().Int("features", len(fc.Features)).Msg("Cadastre boundaries fetched")

	c.mu.Lock()
	c.cache[key] = cacheEntry{fc: fc, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return fc, nil
}

// ClearCache drops all cached boundary sets.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]cacheEntry)
	c.mu.Unlock()
}
