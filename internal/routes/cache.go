package routes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Cache is a best-effort Redis cache of merged minute tables, keyed by the
// coordinate lists. It saves oracle quota when a tick changes only
// non-geometric attributes (bed counts, deadlines). Failures degrade to a
// miss; they never abort a tick.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Logger
}

func NewCache(url string, ttl time.Duration, log *logrus.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse route cache url: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cache{client: redis.NewClient(opts), ttl: ttl, log: log}, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

type cacheEntry struct {
	Origin      int `json:"o"`
	Destination int `json:"d"`
	Minutes     int `json:"m"`
}

func (c *Cache) Get(ctx context.Context, origins, destinations []LatLng) (map[Pair]int, bool) {
	raw, err := c.client.Get(ctx, cacheKey(origins, destinations)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.WithField("component", "routes").WithError(err).Warn("route cache read failed")
		return nil, false
	}

	var entries []cacheEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		c.log.WithField("component", "routes").WithError(err).Warn("route cache entry corrupt")
		return nil, false
	}

	minutes := make(map[Pair]int, len(entries))
	for _, e := range entries {
		minutes[Pair{Origin: e.Origin, Destination: e.Destination}] = e.Minutes
	}
	return minutes, true
}

func (c *Cache) Put(ctx context.Context, origins, destinations []LatLng, minutes map[Pair]int) {
	entries := make([]cacheEntry, 0, len(minutes))
	for pair, mins := range minutes {
		entries = append(entries, cacheEntry{Origin: pair.Origin, Destination: pair.Destination, Minutes: mins})
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(origins, destinations), raw, c.ttl).Err(); err != nil {
		c.log.WithField("component", "routes").WithError(err).Warn("route cache write failed")
	}
}

// cacheKey hashes both coordinate lists; order matters, coordinates are
// hashed at full float64 precision.
func cacheKey(origins, destinations []LatLng) string {
	h := sha256.New()
	for _, c := range origins {
		fmt.Fprintf(h, "o:%v,%v;", c.Lat, c.Lon)
	}
	for _, c := range destinations {
		fmt.Fprintf(h, "d:%v,%v;", c.Lat, c.Lon)
	}
	return "routematrix:" + hex.EncodeToString(h.Sum(nil))
}
