package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidArgument is matched by every ArgumentError.
var ErrInvalidArgument = errors.New("tools: invalid argument")

// ArgumentError reports a missing or malformed tool argument. It is raised
// before any remote call is made.
type ArgumentError struct {
	Arg    string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("tools: argument %q %s", e.Arg, e.Reason)
}

// Is reports whether target is ErrInvalidArgument.
func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// Args carries decoded tool arguments. Values follow encoding/json decoding
// rules, so numbers usually arrive as float64.
type Args map[string]any

// String returns a trimmed string argument.
func (a Args) String(key string) (string, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// RequireString returns a non-empty string argument or an ArgumentError.
func (a Args) RequireString(key string) (string, error) {
	if v, ok := a[key]; ok && v != nil {
		if _, isString := v.(string); !isString {
			return "", &ArgumentError{Arg: key, Reason: "must be a string"}
		}
	}
	s, ok := a.String(key)
	if !ok {
		return "", &ArgumentError{Arg: key, Reason: "is required"}
	}
	return s, nil
}

// Bool returns a boolean argument; absent or non-boolean values are false.
func (a Args) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

// Float returns a numeric argument. present is false when the key is absent or null.
func (a Args) Float(key string) (value float64, present bool, err error) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, true, &ArgumentError{Arg: key, Reason: "must be a number"}
		}
		return f, true, nil
	default:
		return 0, true, &ArgumentError{Arg: key, Reason: "must be a number"}
	}
}

// Int returns an integral numeric argument.
func (a Args) Int(key string) (value int, present bool, err error) {
	f, present, err := a.Float(key)
	if err != nil || !present {
		return 0, present, err
	}
	if f != math.Trunc(f) {
		return 0, true, &ArgumentError{Arg: key, Reason: "must be a whole number"}
	}
	return int(f), true, nil
}

// Redacted returns a copy with values of sensitive keys replaced by "***".
// A key is sensitive when it contains "password" or "token", case-insensitively.
func (a Args) Redacted() map[string]any {
	out := make(map[string]any, len(a))
	for k, v := range a {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "password") || strings.Contains(lk, "token") {
			out[k] = "***"
			continue
		}
		out[k] = v
	}
	return out
}
