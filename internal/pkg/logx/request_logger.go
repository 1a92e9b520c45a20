package logx

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// redactedQueryKeys are query parameters never written to the request log.
var redactedQueryKeys = []string{"token"}

// anonymizeIP zeroes the last IPv4 octet, or keeps only the /64 prefix of an IPv6 address.
func anonymizeIP(ipStr string) string {
	host, _, err := net.SplitHostPort(ipStr)
	if err == nil {
		ipStr = host
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "unknown_ip"
	}

	if ip.IsLoopback() {
		return "127.0.0.1"
	}

	if v4 := ip.To4(); v4 != nil {
		return v4[:3].String() + ".0"
	}

	return ip.Mask(net.CIDRMask(64, 128)).String()
}

// redactURI returns the request URI with session tokens blanked out.
func redactURI(r *http.Request) string {
	q := r.URL.Query()

	changed := false
	for _, key := range redactedQueryKeys {
		if q.Has(key) {
			q.Set(key, "REDACTED")
			changed = true
		}
	}

	if !changed {
		return r.URL.RequestURI()
	}

	u := *r.URL
	u.RawQuery = q.Encode()
	return u.RequestURI()
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// RequestLogger returns an HTTP middleware that logs one line per request and injects a request
// logger into the context (see FromContext).
// Surface WebSocket requests are logged when the connection closes, with the session duration.
func RequestLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			logger := Logger().With().
				Str("component", "http").
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("remote_ip", anonymizeIP(r.RemoteAddr)).
				Str("request_method", r.Method).
				Str("request_uri", redactURI(r)).
				Logger()

			r = r.WithContext(logger.WithContext(r.Context()))

			start := time.Now()
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			if isUpgrade(r) && ww.Status() == 0 {
				logger.Info().Dur("session_duration", elapsed).Msg("Surface connection closed")
				return
			}

			status := ww.Status()

			logEvent := logger.Info()
			if status >= 500 {
				logEvent = logger.Error()
			} else if status >= 400 {
				logEvent = logger.Warn()
			}

			logEvent.
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", elapsed).
				Msg("Request completed")
		}

		return http.HandlerFunc(fn)
	}
}
