package app

import (
	"encoding/json"
	"net/http"

	"github.com/jonwraymond/vspherebroker/auth"
	"github.com/jonwraymond/vspherebroker/broker"
)

// resetHostPath re-enables a host after its vCenter credentials were fixed.
const resetHostPath = "POST /admin/hosts/{host}/reset"

// resetHostHandler serves resetHostPath. The caller authenticates with the
// same bearer tokens MCP clients use.
func resetHostHandler(b *broker.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host := r.PathValue("host")
		err := b.ResetHost(r.Context(), auth.ParseBearer(r.Header.Get("Authorization")), host)
		if err != nil {
			writeJSON(w, adminStatus(broker.KindOf(err)), map[string]string{
				"error":   broker.Label(err),
				"message": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"host": host, "status": "reset"})
	}
}

func adminStatus(k broker.Kind) int {
	switch k {
	case broker.KindUnauthorized:
		return http.StatusUnauthorized
	case broker.KindForbidden, broker.KindHostNotAllowed:
		return http.StatusForbidden
	case broker.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
