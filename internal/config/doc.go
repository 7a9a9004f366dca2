// Package config loads retriever's TOML configuration.
//
// Load layers a file over Default, expands ~ in every path, applies
// environment overrides such as QOBUZ_QUALITY and RETRIEVER_API_BIND, and
// validates the result. Callers receive durations through accessor methods
// rather than the raw second counts stored in the file.
package config
