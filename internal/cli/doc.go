// Package cli parses command-line arguments into the application's
// configuration and maps run failures to process exit codes.
package cli
