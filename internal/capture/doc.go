// Package capture defines the domain types shared by the capture pipeline: inbound parameters, the
// resolved renderer spec, artifacts, cache status values, the error taxonomy, and the interfaces the
// pipeline depends on (renderer handles, publishers, recorders, clocks, hashers).
package capture
