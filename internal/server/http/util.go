package http

import (
	"encoding/json"
	"net"
	"net/http"
)

func encodeJSONResponse[T any](w http.ResponseWriter, code int, data T) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if code == http.StatusNoContent {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// getClientIP reads the peer address after middleware.RealIP has applied
// any X-Forwarded-For or X-Real-IP header. Loopback collapses to
// 127.0.0.1 and anything unparseable to 0.0.0.0.
func getClientIP(req *http.Request) string {
	host := req.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	ip := net.ParseIP(host)
	switch {
	case ip == nil:
		return "0.0.0.0"
	case ip.IsLoopback():
		return "127.0.0.1"
	default:
		return ip.String()
	}
}
