// Package preflight provides readiness checks for the binaries, services
// and filesystem paths a clipforge worker depends on.
//
// The worker runs RunAll once at startup and refuses to start when a
// required check fails. The "clipforge doctor" command prints every result,
// including optional integrations that are not configured.
package preflight
