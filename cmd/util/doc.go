// Package util holds the flag, config and client plumbing shared by the
// command groups.
package util
