// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing events, scripted engine adapters
// and image fixtures. These helpers are not intended for production usage.
package testutil
