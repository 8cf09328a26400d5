// Package config loads, normalizes, and validates reqtrack configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// REQTRACK_JWT_SECRET and JELLYFIN_URL. The Config type centralizes every knob
// the daemon and CLI need: storage locations, the Jellyfin connection used by
// reconciliation, the accepted media types, and the loop cadence.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
