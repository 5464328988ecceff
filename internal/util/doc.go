// Package util holds the JSON schema helpers shared by the tool subsystem and
// the engine adapters.
package util
