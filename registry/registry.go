// Package registry lets a running gateway announce itself in etcd so
// external agents and dashboards can discover it without hardcoded
// endpoints.
//
// Each instance registers under /{namespace}/gateway/{instance-id} with a
// TTL lease. A background goroutine renews the lease every TTL/3; when an
// instance crashes, its entry expires on its own. Registration is optional:
// a gateway without etcd configured still works, it just is not
// discoverable.
package registry

import (
	"context"
	"time"
)

// Instance describes one registered gateway.
type Instance struct {
	// Name is the service name, normally "gateway".
	Name string `json:"name"`

	// Version is the module version of the running instance.
	Version string `json:"version"`

	// InstanceID uniquely identifies this process (UUID).
	InstanceID string `json:"instance_id"`

	// Endpoint is how to reach the instance. For stdio transports this is
	// the command line to spawn; for TCP it is "host:port".
	Endpoint string `json:"endpoint"`

	// Metadata carries instance attributes, e.g. the configured graph
	// database or whether the translator runs in mock mode.
	Metadata map[string]string `json:"metadata,omitempty"`

	// StartedAt is when this instance came up.
	StartedAt time.Time `json:"started_at"`
}

// Registry is the registration and discovery surface. *Client implements it
// against etcd; tests substitute fakes.
type Registry interface {
	// Register announces the instance and starts lease keepalive.
	// Re-registering the same InstanceID replaces the existing entry.
	Register(ctx context.Context, inst Instance) error

	// Deregister revokes the instance's lease, removing it immediately.
	// Unknown instances are a no-op.
	Deregister(ctx context.Context, inst Instance) error

	// Discover lists the currently registered gateway instances.
	Discover(ctx context.Context) ([]Instance, error)

	// Close stops keepalive goroutines and releases the connection.
	Close() error
}

// Config holds etcd connection settings.
type Config struct {
	// Endpoints lists etcd endpoints, e.g. ["localhost:2379"].
	Endpoints []string `json:"endpoints" yaml:"endpoints"`

	// Namespace is the key prefix. Defaults to "exposuregraph".
	Namespace string `json:"namespace" yaml:"namespace"`

	// TTL is the lease time-to-live in seconds. Defaults to 30.
	TTL int `json:"ttl" yaml:"ttl"`
}
