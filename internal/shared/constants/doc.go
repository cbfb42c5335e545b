// Package constants centralizes defaults shared across the CLI and the API.
//
// Probe bounds (timeouts, byte caps, redirect hops), rate-limit and cache
// policy, and the user agents sent to targets and intelligence APIs live here
// so cmd/ and internal/ reference one value without import cycles.
package constants
