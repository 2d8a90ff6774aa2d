package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gliding-club-api/pkg/middleware/requestid"
)

const (
	responseMetaKey = "response_meta"
	startedAtKey    = "response_started_at"
	cacheHitKey     = "cache_hit"
)

// WithResponseMeta initialises the meta block sent with JSON envelopes.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(startedAtKey, time.Now())
		meta := ensureMeta(c)
		if id := requestid.Value(c); id != "" {
			meta["request_id"] = id
		}
		c.Next()
	}
}

// SetCacheHit records whether a cached payload served the response.
func SetCacheHit(c *gin.Context, hit bool) {
	ensureMeta(c)[cacheHitKey] = hit
}

// ResponseMeta returns the meta block with the processing time filled in.
func ResponseMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	meta := ensureMeta(c)
	if started, ok := c.Get(startedAtKey); ok {
		if t, ok := started.(time.Time); ok {
			meta["processing_time_ms"] = time.Since(t).Milliseconds()
		}
	}
	return meta
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	meta := make(map[string]interface{})
	c.Set(responseMetaKey, meta)
	return meta
}
