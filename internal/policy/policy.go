// Package policy gates destructive operations on the deployment
// environment. The environment name is read once at process start and
// never re-read: the gate is a pure function of that captured value.
package policy

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// allowedEnvironments lists the deployment environments in which hard
// deletion is permitted. Everything else, including an unset environment,
// fails closed.
var allowedEnvironments = map[string]bool{
	"dev": true,
}

// EnvironmentPolicy decides whether deletion is permitted in the current
// deployment context. Safe for concurrent use; the captured environment
// is immutable for the process lifetime.
type EnvironmentPolicy struct {
	environment string
}

// NewEnvironmentPolicy captures the deployment environment (e.g. "dev",
// "prod") for the lifetime of the process.
func NewEnvironmentPolicy(environment string) *EnvironmentPolicy {
	p := &EnvironmentPolicy{environment: environment}
	log.Info().
		Str("environment", environment).
		Bool("deletionAllowed", p.IsDeletionAllowed()).
		Msg("Environment policy initialized")
	return p
}

// Environment returns the captured deployment environment name.
func (p *EnvironmentPolicy) Environment() string {
	return p.environment
}

// IsDeletionAllowed reports whether hard deletion is permitted.
func (p *EnvironmentPolicy) IsDeletionAllowed() bool {
	return allowedEnvironments[p.environment]
}

// ExplainDenial returns a human-readable reason suitable for audit logs.
func (p *EnvironmentPolicy) ExplainDenial() string {
	if p.environment == "" {
		return "deletion denied: deployment environment is not set"
	}
	return fmt.Sprintf("deletion denied: not permitted in %q environment", p.environment)
}
