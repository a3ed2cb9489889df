package httputil

import (
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// DecompressPayload adds a reader of the right type in case you need to decompress the body
func DecompressPayload(next http.Handler) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		switch r.Header.Get("Content-Encoding") {
		case "br":
			r.Body = io.NopCloser(brotli.NewReader(r.Body))
		case "zstd":
			d, err := zstd.NewReader(r.Body)
			if err != nil {
				log.Err(err).Msg("can't create a zstd reader")
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			defer d.Close()
			r.Body = io.NopCloser(d)
		default:
			next.ServeHTTP(w, r)
			return
		}
		r.Header.Del("Content-Encoding")
		r.ContentLength = -1

		next.ServeHTTP(w, r)
	})
}
