// Package version holds the build version, overridden at link time.
package version

// Version is set via -ldflags "-X github.com/cudemo/agentd/pkg/version.Version=...".
var Version = "dev"
