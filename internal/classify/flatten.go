// Package classify maps opaque call-pipeline failures to a closed set of
// user-facing causes.
package classify

import (
	"fmt"
	"strings"

	"github.com/agentvault/sessiongate/internal/vault"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// MaxDepth bounds how far Flatten follows cause chains.
const MaxDepth = 4

type detailer interface {
	Details() string
}

// Flatten joins every message, detail and revert payload reachable from err
// within MaxDepth levels into one search text. Segments already contained in
// the text are skipped.
func Flatten(err error) string {
	if err == nil {
		return ""
	}
	var parts []string
	seen := func(s string) bool {
		for _, p := range parts {
			if strings.Contains(p, s) {
				return true
			}
		}
		return false
	}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen(s) {
			parts = append(parts, s)
		}
	}

	var walk func(e error, depth int)
	walk = func(e error, depth int) {
		if e == nil || depth > MaxDepth {
			return
		}
		add(e.Error())
		if d, ok := e.(detailer); ok {
			add(d.Details())
		}
		if de, ok := e.(rpc.DataError); ok {
			add(describeData(de.ErrorData()))
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner, depth+1)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap(), depth+1)
		}
	}
	walk(err, 0)
	return strings.Join(parts, " ")
}

// describeData renders JSON-RPC error data. Hex revert payloads that match a
// vault custom error are named.
func describeData(data any) string {
	switch v := data.(type) {
	case nil:
		return ""
	case string:
		if raw, err := hexutil.Decode(v); err == nil {
			if name, ok := vault.ErrorName(raw); ok {
				return v + " " + name
			}
		}
		return v
	case error:
		return v.Error()
	default:
		return fmt.Sprint(v)
	}
}
