// Package terminal decides whether a process talks to a person at a terminal and whether
// that terminal should receive ANSI colors.
package terminal

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ciEnvVars contains common CI environment variables
var ciEnvVars = []string{
	"CI",                     // Generic CI indicator
	"CONTINUOUS_INTEGRATION", // Generic CI indicator
	"GITHUB_ACTIONS",         // GitHub Actions
	"TRAVIS",                 // Travis CI
	"CIRCLECI",               // Circle CI
	"JENKINS_URL",            // Jenkins
	"BUILD_NUMBER",           // Jenkins/TeamCity/etc
	"GITLAB_CI",              // GitLab CI
	"BUILDKITE",              // Buildkite
	"TF_BUILD",               // Azure DevOps
}

// isTerminal is replaced in tests.
var isTerminal = term.IsTerminal

// Options overrides detection, typically from command-line flags.
type Options struct {
	ForceInteractive    bool
	ForceNonInteractive bool
	ForceColor          bool
	DisableColor        bool
}

// Capabilities is the outcome of Detect.
type Capabilities struct {
	// Interactive is true when output goes to a terminal outside CI
	Interactive bool

	// Color is true when ANSI escape sequences should be written
	Color bool

	// ExplicitColor is true when Color came from a flag or NO_COLOR/CLICOLOR_FORCE
	ExplicitColor bool
}

// Detect inspects out and the environment.
func Detect(out *os.File, opts Options) Capabilities {
	var c Capabilities
	c.Interactive = isInteractive(out, opts)

	if enabled, explicit := colorPreference(opts); explicit {
		c.Color, c.ExplicitColor = enabled, true
		return c
	}
	if !c.Interactive || !termSupportsColor() {
		return c
	}
	// CLICOLOR only matters for an interactive terminal
	if cliColor := os.Getenv("CLICOLOR"); cliColor != "" {
		c.Color = isTruthy(cliColor)
		return c
	}
	c.Color = true
	return c
}

func isInteractive(out *os.File, opts Options) bool {
	switch {
	case opts.ForceInteractive:
		return true
	case opts.ForceNonInteractive:
		return false
	case IsCIEnvironment():
		return false
	case out == nil:
		return false
	}
	return isTerminal(int(out.Fd())) // #nosec G115 - file descriptors fit in int
}

// IsCIEnvironment checks if the current environment is a CI/CD system
func IsCIEnvironment() bool {
	for _, envVar := range ciEnvVars {
		if value := os.Getenv(envVar); value != "" {
			if envVar == "CI" {
				return isCITruthy(value)
			}
			return true
		}
	}
	return false
}

// isCITruthy checks if a CI environment variable value should be considered "true".
// CI=false or CI=0 should not be considered a CI environment
func isCITruthy(value string) bool {
	lower := strings.ToLower(strings.TrimSpace(value))
	return lower != "false" && lower != "0" && lower != "no"
}

// isTruthy accepts "1", "true" and "yes" in any case.
func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
