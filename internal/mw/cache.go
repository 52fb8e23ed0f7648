package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// SkipCacheKey marks a response that must not be stored, e.g. a degraded
// read serving stale or partial data. Handlers set it on the gin context.
const SkipCacheKey = "mw.skip-cache"

type storedResponse struct {
	code   int
	header http.Header
	body   []byte
}

// captureWriter tees the response body so a successful reply can be stored
// after the handler ran.
type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache serves repeated GET requests from an in-memory store. Only 2xx
// responses are stored, and never those flagged with SkipCacheKey.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.RequestURI
		if v, found := store.Get(key); found {
			cached := v.(storedResponse)
			for name, values := range cached.header {
				c.Writer.Header()[name] = values
			}
			c.Writer.WriteHeader(cached.code)
			c.Writer.Write(cached.body)
			c.Abort()
			return
		}

		cw := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = cw

		c.Next()

		if c.GetBool(SkipCacheKey) {
			return
		}
		if code := cw.Status(); code >= 200 && code < 300 {
			store.Set(key, storedResponse{
				code:   code,
				header: cw.Header().Clone(),
				body:   cw.buf.Bytes(),
			}, ttl)
		}
	}
}
