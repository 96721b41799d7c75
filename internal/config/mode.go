package config

import (
	"os"
	"strings"
)

// DeploymentMode represents where the CLI is running
type DeploymentMode string

const (
	// ModeDevelopment is a source checkout; a local store with a weak
	// password is acceptable.
	ModeDevelopment DeploymentMode = "development"

	// ModeInteractive is an installed binary driven by a person. Credentials
	// come from the environment, the keychain or an interactive prompt.
	ModeInteractive DeploymentMode = "interactive"

	// ModeCI is a pipeline run. No prompts; credentials come from the environment.
	ModeCI DeploymentMode = "ci"
)

// DetectMode determines the deployment context based on environment
func DetectMode() DeploymentMode {
	// Explicit mode override (highest priority)
	if mode := os.Getenv("NEUROARCH_MODE"); mode != "" {
		switch strings.ToLower(mode) {
		case "development", "dev":
			return ModeDevelopment
		case "interactive", "packaged":
			return ModeInteractive
		case "ci", "cicd":
			return ModeCI
		}
	}

	if isCI() {
		return ModeCI
	}

	// A .env file or a go.mod next to the working directory means a checkout
	for _, marker := range []string{".env", "go.mod"} {
		if _, err := os.Stat(marker); err == nil {
			return ModeDevelopment
		}
	}
	return ModeInteractive
}

// isCI detects if running in a CI/CD environment
func isCI() bool {
	ciEnvVars := []string{
		"CI",
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"CIRCLECI",
		"JENKINS_URL",
		"BUILDKITE",
		"TF_BUILD", // Azure Pipelines
	}

	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return true
		}
	}
	return false
}

// String returns the string representation of the mode
func (m DeploymentMode) String() string {
	return string(m)
}

// RequiresSecureCredentials reports whether default passwords are errors
// rather than warnings.
func (m DeploymentMode) RequiresSecureCredentials() bool {
	return m == ModeInteractive || m == ModeCI
}

// AllowsInteractivePrompts returns true if interactive prompts are allowed
func (m DeploymentMode) AllowsInteractivePrompts() bool {
	return m != ModeCI
}

// Description returns a human-readable description of the mode
func (m DeploymentMode) Description() string {
	switch m {
	case ModeDevelopment:
		return "source checkout"
	case ModeInteractive:
		return "installed binary"
	case ModeCI:
		return "CI/CD pipeline"
	default:
		return "unknown mode"
	}
}
