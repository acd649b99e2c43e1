// Package config loads runtime settings from environment variables and an
// optional config file. Environment variables win over the file, which wins
// over built-in defaults.
package config
