package middleware

import (
	"compress/gzip"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
)

// Responses under this floor ship uncompressed; gzip overhead on a short
// JSON error body costs more than it saves.
const minCompressBytes = 1024

// Compression gzips responses for clients that accept it. Everything this
// API serves is JSON, so there is no content-type carve-out; /metrics is
// skipped because the Prometheus client negotiates its own encoding.
func Compression() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" ||
			!strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}

		gz := gzip.NewWriter(c.Writer)
		defer gz.Close()

		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")

		c.Writer = &gzipWriter{
			ResponseWriter: c.Writer,
			Writer:         gz,
		}

		c.Next()
	}
}

type gzipWriter struct {
	gin.ResponseWriter
	Writer io.Writer
}

func (g *gzipWriter) Write(data []byte) (int, error) {
	if len(data) < minCompressBytes {
		g.Header().Del("Content-Encoding")
		return g.ResponseWriter.Write(data)
	}
	return g.Writer.Write(data)
}

func (g *gzipWriter) WriteString(s string) (int, error) {
	return g.Write([]byte(s))
}
