package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	exposuregraph "github.com/exposure-graph/exposuregraph"
)

const (
	defaultNamespace = "exposuregraph"
	defaultTTL       = 30
	serviceName      = "gateway"
)

// Client registers gateway instances in etcd and keeps their leases alive.
// All methods are safe for concurrent use.
type Client struct {
	client    *clientv3.Client
	namespace string
	ttl       int
	logger    *slog.Logger

	mu        sync.Mutex
	leases    map[string]clientv3.LeaseID
	cancelFns map[string]context.CancelFunc
	wg        sync.WaitGroup
	closed    bool
	closedCh  chan struct{}
}

// NewClient connects to etcd and verifies reachability.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	const op = "registry.NewClient"

	if len(cfg.Endpoints) == 0 {
		return nil, exposuregraph.NewConfigurationError(op,
			fmt.Errorf("%w: registry endpoints cannot be empty", exposuregraph.ErrInvalidConfig))
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, exposuregraph.NewNetworkError(op, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := cli.Get(ctx, "health-check"); err != nil && err != context.DeadlineExceeded {
		exposuregraph.CloseWithLog(cli, logger, "etcd client")
		return nil, exposuregraph.NewNetworkError(op, fmt.Errorf("etcd health check failed: %w", err))
	}

	return &Client{
		client:    cli,
		namespace: namespace,
		ttl:       ttl,
		logger:    logger,
		leases:    make(map[string]clientv3.LeaseID),
		cancelFns: make(map[string]context.CancelFunc),
		closedCh:  make(chan struct{}),
	}, nil
}

// Register announces the instance under a TTL lease and starts keepalive.
func (c *Client) Register(ctx context.Context, inst Instance) error {
	const op = "Client.Register"

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return exposuregraph.NewInternalError(op, fmt.Errorf("registry client is closed"))
	}

	// Replace an existing registration for the same instance.
	if cancelFn, exists := c.cancelFns[inst.InstanceID]; exists {
		cancelFn()
		delete(c.cancelFns, inst.InstanceID)
	}

	lease, err := c.client.Grant(ctx, int64(c.ttl))
	if err != nil {
		return exposuregraph.NewNetworkError(op, fmt.Errorf("failed to create lease: %w", err))
	}

	data, err := json.Marshal(inst)
	if err != nil {
		return exposuregraph.NewInternalError(op, err)
	}

	key := c.instanceKey(inst.InstanceID)
	if _, err := c.client.Put(ctx, key, string(data), clientv3.WithLease(lease.ID)); err != nil {
		return exposuregraph.NewNetworkError(op, fmt.Errorf("failed to register instance: %w", err))
	}

	c.leases[inst.InstanceID] = lease.ID

	keepaliveCtx, cancel := context.WithCancel(context.Background())
	c.cancelFns[inst.InstanceID] = cancel
	c.wg.Add(1)
	go c.keepalive(keepaliveCtx, lease.ID, inst.InstanceID)

	c.logger.Info("gateway instance registered",
		"instance_id", inst.InstanceID, "key", key, "ttl_seconds", c.ttl)
	return nil
}

// Deregister revokes the instance's lease. Unknown instances are a no-op.
func (c *Client) Deregister(ctx context.Context, inst Instance) error {
	const op = "Client.Deregister"

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return exposuregraph.NewInternalError(op, fmt.Errorf("registry client is closed"))
	}

	if cancelFn, exists := c.cancelFns[inst.InstanceID]; exists {
		cancelFn()
		delete(c.cancelFns, inst.InstanceID)
	}

	leaseID, exists := c.leases[inst.InstanceID]
	if !exists {
		return nil
	}

	if _, err := c.client.Revoke(ctx, leaseID); err != nil {
		return exposuregraph.NewNetworkError(op, fmt.Errorf("failed to revoke lease: %w", err))
	}
	delete(c.leases, inst.InstanceID)

	c.logger.Info("gateway instance deregistered", "instance_id", inst.InstanceID)
	return nil
}

// Discover lists the registered gateway instances. Entries that fail to
// decode are skipped; a half-written entry should not break discovery.
func (c *Client) Discover(ctx context.Context) ([]Instance, error) {
	const op = "Client.Discover"

	prefix := fmt.Sprintf("/%s/%s/", c.namespace, serviceName)
	resp, err := c.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, exposuregraph.NewNetworkError(op, fmt.Errorf("failed to list instances: %w", err))
	}

	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst Instance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			c.logger.Warn("skipping undecodable registry entry", "key", string(kv.Key))
			continue
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// Close stops all keepalive goroutines and closes the etcd connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	for _, cancel := range c.cancelFns {
		cancel()
	}
	c.cancelFns = make(map[string]context.CancelFunc)
	close(c.closedCh)
	c.mu.Unlock()

	c.wg.Wait()
	return c.client.Close()
}

// keepalive renews the lease every TTL/3 until canceled or the lease dies.
func (c *Client) keepalive(ctx context.Context, leaseID clientv3.LeaseID, instanceID string) {
	defer c.wg.Done()

	interval := time.Duration(c.ttl) * time.Second / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closedCh:
			return
		case <-ticker.C:
			if _, err := c.client.KeepAliveOnce(context.Background(), leaseID); err != nil {
				c.logger.Warn("lease renewal failed, instance will expire",
					"instance_id", instanceID, "error", err)
				c.mu.Lock()
				delete(c.leases, instanceID)
				delete(c.cancelFns, instanceID)
				c.mu.Unlock()
				return
			}
		}
	}
}

func (c *Client) instanceKey(instanceID string) string {
	return fmt.Sprintf("/%s/%s/%s", c.namespace, serviceName, instanceID)
}
