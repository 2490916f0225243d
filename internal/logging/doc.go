// Package logging provides file-based logging with rotation for the Canopy
// indexing daemon. Logs are written to ~/.canopy/logs/canopyd.log by default,
// with an option to also mirror to stderr for foreground/debug runs.
package logging
