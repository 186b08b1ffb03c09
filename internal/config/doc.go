// ABOUTME: Package documentation for the config package
// ABOUTME: Notes the YAML format and expansion rules

// Package config loads the gateway's YAML configuration.
//
// Values of the form ${VAR_NAME} are expanded from the environment before
// parsing. Duration fields are written as Go duration strings ("5s",
// "250ms"). Both bind addresses are required unless tailscale is enabled,
// in which case tsnet provides the listeners.
package config
