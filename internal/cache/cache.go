package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache stores finished chat replies so repeated questions skip generation.
type Cache interface {
	// Get returns the entry stored under key, or nil on a miss.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores an entry with TTL.
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error

	// Flush drops every cached reply. Called when the knowledge base changes.
	Flush(ctx context.Context) error

	Close() error
}

// Entry is a cached chat reply.
type Entry struct {
	Text     string `json:"text"`
	Outcome  string `json:"outcome"`
	Script   string `json:"script"`
	Language string `json:"language"`
}

// GenerateKey derives a cache key from the prompt variant, the reply
// language and the query. Case and whitespace differences in the query map
// to the same key.
func GenerateKey(variant, language, query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	h := sha256.New()
	h.Write([]byte(variant))
	h.Write([]byte{0})
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil))
}
