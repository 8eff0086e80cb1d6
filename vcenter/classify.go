package vcenter

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
)

// maxExcerpt bounds the raw body carried in an UNKNOWN error message.
const maxExcerpt = 200

// DefaultExpect is the success allow-list used when a request names none.
var DefaultExpect = []int{http.StatusOK}

// Classify turns a raw vCenter response into nil (success) or an *APIError.
//
// A status in expect is success. Anything else is an error, including 2xx
// codes that were not allow-listed for the call. The kind is read from
// either response family:
//
//	/api  {"error_type":"NOT_FOUND","messages":[{"default_message":"..."}]}
//	/rest {"type":"com.vmware.vapi.std.errors.not_found","value":{"messages":[...]}}
//
// and falls back to the HTTP status when the body names none.
func Classify(method, path string, status int, body []byte, expect []int) error {
	if len(expect) == 0 {
		expect = DefaultExpect
	}
	if slices.Contains(expect, status) {
		return nil
	}

	kind, msg := parseErrorBody(body)
	if kind == "" {
		kind = kindFromStatus(status)
	}
	if msg == "" {
		msg = excerpt(body)
	}

	return &APIError{
		Status:  status,
		Kind:    kind,
		Message: msg,
		Method:  method,
		Path:    path,
	}
}

type vapiMessage struct {
	ID             string `json:"id"`
	DefaultMessage string `json:"default_message"`
}

type apiErrorBody struct {
	ErrorType string        `json:"error_type"`
	Messages  []vapiMessage `json:"messages"`
}

type restErrorBody struct {
	Type  string `json:"type"`
	Value struct {
		ErrorType string        `json:"error_type"`
		Messages  []vapiMessage `json:"messages"`
	} `json:"value"`
}

// parseErrorBody returns the kind and message named by body, or empty
// strings when body is not a recognized error document.
func parseErrorBody(body []byte) (ErrorKind, string) {
	if len(body) == 0 {
		return "", ""
	}

	var flat apiErrorBody
	if err := json.Unmarshal(body, &flat); err == nil && flat.ErrorType != "" {
		return kindFromType(flat.ErrorType), joinMessages(flat.Messages)
	}

	var nested restErrorBody
	if err := json.Unmarshal(body, &nested); err == nil && nested.Type != "" {
		t := nested.Type
		if i := strings.LastIndexByte(t, '.'); i >= 0 {
			t = t[i+1:]
		}
		if nested.Value.ErrorType != "" {
			t = nested.Value.ErrorType
		}
		return kindFromType(t), joinMessages(nested.Value.Messages)
	}

	return "", ""
}

// kindFromType maps a vAPI error type name (NOT_FOUND or not_found) to a kind.
// vAPI calls an unauthenticated caller UNAUTHENTICATED and a denied one
// UNAUTHORIZED; those map to UNAUTHORIZED and FORBIDDEN respectively.
func kindFromType(t string) ErrorKind {
	switch strings.ToUpper(t) {
	case "NOT_FOUND":
		return KindNotFound
	case "ALREADY_EXISTS":
		return KindAlreadyExists
	case "UNAUTHENTICATED":
		return KindUnauthorized
	case "UNAUTHORIZED":
		return KindForbidden
	case "CONCURRENT_CHANGE", "RESOURCE_BUSY", "RESOURCE_IN_USE", "NOT_ALLOWED_IN_CURRENT_STATE":
		return KindConflict
	default:
		return KindUnknown
	}
}

func kindFromStatus(status int) ErrorKind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusConflict:
		return KindConflict
	default:
		return KindUnknown
	}
}

func joinMessages(msgs []vapiMessage) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.DefaultMessage != "" {
			parts = append(parts, m.DefaultMessage)
		}
	}
	return strings.Join(parts, "; ")
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxExcerpt {
		s = s[:maxExcerpt] + "..."
	}
	return s
}
