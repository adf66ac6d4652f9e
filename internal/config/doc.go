// Package config defines and loads application configuration from the
// environment and optional config files, validating it at startup.
package config
