//go:build !embed

package frontend

import "net/http"

// Handler returns nil when the binary is built without -tags embed; the
// caller then serves server.static_dir from disk or nothing at all.
func Handler() http.Handler {
	return nil
}
