// Package cachekey derives deterministic cache keys from capture parameters.
//
// Two requests that would render the same artifact produce the same key regardless of parameter order,
// authentication fields, or how booleans were spelled. The key is a 64-character lowercase hex digest and
// is safe to use as a file or object name.
package cachekey

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/JakeFAU/shotapi/internal/capture"
	"github.com/JakeFAU/shotapi/internal/hash/sha256"
)

// Key is a derived cache key.
type Key string

// String returns the key as a string.
func (k Key) String() string { return string(k) }

// excluded fields only authenticate the caller. cacheTime stays in the key so a request never receives an
// entry stored under a longer freshness window than it asked for.
var excluded = map[string]struct{}{
	capture.ParamAPIKey:    {},
	capture.ParamAPIKeyAlt: {},
}

// normalizedBools are always present in the key, with their defaults when absent.
var normalizedBools = map[string]bool{
	capture.ParamFullPage:        false,
	capture.ParamDarkMode:        false,
	capture.ParamTransparent:     false,
	capture.ParamBlockAds:        false,
	capture.ParamPrintBackground: true,
}

// Deriver computes cache keys.
type Deriver struct {
	hasher capture.Hasher
}

// New returns a Deriver. A nil hasher selects SHA-256.
func New(hasher capture.Hasher) *Deriver {
	if hasher == nil {
		hasher = sha256.New()
	}
	return &Deriver{hasher: hasher}
}

// Derive returns the key for params. It is a pure function of the parameter mapping.
func (d *Deriver) Derive(params capture.Params) Key {
	pairs := make([][2]string, 0, len(params)+len(normalizedBools))
	for name, val := range params {
		if _, skip := excluded[name]; skip {
			continue
		}
		if _, isBool := normalizedBools[name]; isBool {
			continue
		}
		s := capture.Stringify(val)
		if name == capture.ParamURL {
			s = strings.TrimSuffix(s, "/")
		}
		pairs = append(pairs, [2]string{name, s})
	}
	for name, def := range normalizedBools {
		b, ok, err := capture.BoolParam(params, name)
		switch {
		case err != nil:
			// Unparseable values are rejected by validation before a key is needed; keep them distinct.
			pairs = append(pairs, [2]string{name, capture.ParamString(params, name)})
			continue
		case !ok:
			b = def
		}
		pairs = append(pairs, [2]string{name, boolString(b)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })

	// Marshalling a slice of string arrays cannot fail.
	encoded, _ := json.Marshal(pairs)
	sum, err := d.hasher.Hash(encoded)
	if err != nil {
		sum = sha256.Sum(encoded)
	}
	return Key(sum)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
