package api

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
)

// GzipRequestMiddleware decompresses gzip-encoded request bodies so handlers
// read plain JSON. Invalid gzip payloads are rejected with a 400 response.
// The decompressed body is capped at limit bytes; reading past it fails.
func GzipRequestMiddleware(limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !gzipEncoded(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			zr, err := gzip.NewReader(req.Body)
			if err != nil {
				_ = req.Body.Close()
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}

			req.Body = &gzipBody{zr: zr, raw: req.Body, remaining: limit}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)

			return next(c)
		}
	}
}

// gzipEncoded reports whether a Content-Encoding value lists gzip.
func gzipEncoded(contentEncoding string) bool {
	return slices.ContainsFunc(strings.Split(contentEncoding, ","), func(enc string) bool {
		return strings.EqualFold(strings.TrimSpace(enc), "gzip")
	})
}

// gzipBody decompresses a request body, failing once more than remaining
// bytes have been produced.
type gzipBody struct {
	zr        *gzip.Reader
	raw       io.Closer
	remaining int64
}

var errBodyTooLarge = echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")

func (b *gzipBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		// a body of exactly the limit ends here; any further byte is too many
		var extra [1]byte
		if n, _ := b.zr.Read(extra[:]); n > 0 {
			return 0, errBodyTooLarge
		}
		return 0, io.EOF
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.zr.Read(p)
	b.remaining -= int64(n)
	return n, err
}

func (b *gzipBody) Close() error {
	return errors.Join(b.zr.Close(), b.raw.Close())
}
