// Package config decodes the auraspeech configuration file and
// environment.
package config
