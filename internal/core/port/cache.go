package port

import "time"

// CacheStats is a read-only snapshot of a result cache for introspection.
type CacheStats struct {
	Size     int           `json:"size"`
	Capacity int           `json:"capacity"`
	TTL      time.Duration `json:"ttl"`
	Keys     []string      `json:"keys"`
}

// ResultCache memoizes read-query results. Implementations never fail:
// a cache problem degrades into a miss, not an error.
type ResultCache interface {
	Get(sql, namespace string) ([]map[string]any, bool)
	Set(sql string, rows []map[string]any, namespace string)
	Clear()
	Stats() CacheStats
}

// NoopCache never stores anything; every lookup is a miss.
type NoopCache struct{}

func (NoopCache) Get(string, string) ([]map[string]any, bool) { return nil, false }
func (NoopCache) Set(string, []map[string]any, string)        {}
func (NoopCache) Clear()                                      {}
func (NoopCache) Stats() CacheStats                           { return CacheStats{} }
