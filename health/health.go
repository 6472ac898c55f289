// Package health verifies the dependencies an exposuregraph deployment
// needs: the graph database, the translator model, the redis queue, and the
// external collector binaries. The check command runs all of them and
// reports per-dependency state instead of failing on the first.
package health

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// State classifies a check result.
type State string

const (
	// StateHealthy means the dependency is fully usable.
	StateHealthy State = "healthy"

	// StateDegraded means usable with caveats, e.g. an optional dependency
	// that is not configured.
	StateDegraded State = "degraded"

	// StateUnhealthy means the dependency is required and unusable.
	StateUnhealthy State = "unhealthy"
)

// Status is the outcome of one check.
type Status struct {
	Name    string `json:"name"`
	State   State  `json:"state"`
	Message string `json:"message"`
}

// Check probes one dependency.
type Check func(ctx context.Context) Status

// defaultCheckTimeout bounds each individual probe.
const defaultCheckTimeout = 10 * time.Second

// BinaryCheck verifies a collector binary is in PATH.
func BinaryCheck(name, binary string) Check {
	return func(ctx context.Context) Status {
		path, err := exec.LookPath(binary)
		if err != nil {
			return Status{
				Name:    name,
				State:   StateUnhealthy,
				Message: fmt.Sprintf("%s not found in PATH", binary),
			}
		}
		return Status{
			Name:    name,
			State:   StateHealthy,
			Message: fmt.Sprintf("found at %s", path),
		}
	}
}

// ConnectionCheck verifies a service answers. probe is typically a Ping or
// CheckConnection method.
func ConnectionCheck(name string, probe func(ctx context.Context) error) Check {
	return func(ctx context.Context) Status {
		ctx, cancel := context.WithTimeout(ctx, defaultCheckTimeout)
		defer cancel()

		if err := probe(ctx); err != nil {
			return Status{Name: name, State: StateUnhealthy, Message: err.Error()}
		}
		return Status{Name: name, State: StateHealthy, Message: "reachable"}
	}
}

// NotConfigured marks an optional dependency that is not set up. Degraded,
// not unhealthy: the deployment works without it.
func NotConfigured(name, message string) Check {
	return func(ctx context.Context) Status {
		return Status{Name: name, State: StateDegraded, Message: message}
	}
}

// RunAll executes every check and returns all results in order.
func RunAll(ctx context.Context, checks ...Check) []Status {
	statuses := make([]Status, 0, len(checks))
	for _, check := range checks {
		statuses = append(statuses, check(ctx))
	}
	return statuses
}

// Healthy reports whether no check came back unhealthy.
func Healthy(statuses []Status) bool {
	for _, s := range statuses {
		if s.State == StateUnhealthy {
			return false
		}
	}
	return true
}
