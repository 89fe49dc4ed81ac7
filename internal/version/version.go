// Package version provides build and version information.
package version

// Version is the current application version.
const Version = "0.3.0"

// Milestones:
// 0.3.0 - watch command, browser reload, YAML export with covariance summary
// 0.2.0 - Hermite interpolation, state tables, viper config
// 0.1.0 - Initial release: OEM parser, Lagrange interpolation, summary CLI
