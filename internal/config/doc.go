// Package config loads and validates slotwire configuration.
//
// Configuration is authored as YAML and checked against an embedded CUE
// schema before decoding, so structural mistakes (unknown pattern kinds,
// missing slot ids, mistyped payload values) surface as schema errors with
// positions instead of zero values deep inside a cycle.
//
// Loading also normalizes the raw document: rules without an explicit id
// get a stable derived one, and rules without an explicit priority inherit
// their source's default_priority when the rule names exactly one source.
package config
