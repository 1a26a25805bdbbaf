package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/example/coursecheckout/pkg/config"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// leaseTTL is the lifetime in seconds of a registration that stops being
// kept alive.
const leaseTTL = 30

type ServiceDiscovery struct {
	client *clientv3.Client
	config *config.EtcdConfig
}

type ServiceInstance struct {
	Name string
	Host string
	Port int
	// Addr is host:port, filled in by Discover.
	Addr string
}

func (i *ServiceInstance) address() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

func instanceKey(prefix string, instance *ServiceInstance) string {
	return prefix + instance.Name + "/" + instance.address()
}

func NewServiceDiscovery(cfg *config.EtcdConfig) (*ServiceDiscovery, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return &ServiceDiscovery{
		client: cli,
		config: cfg,
	}, nil
}

// Register writes the instance under a lease that is kept alive until ctx
// is cancelled.
func (sd *ServiceDiscovery) Register(ctx context.Context, instance *ServiceInstance) error {
	lease, err := sd.client.Grant(ctx, leaseTTL)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	_, err = sd.client.Put(ctx, instanceKey(sd.config.Prefix, instance), instance.address(), clientv3.WithLease(lease.ID))
	if err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	ch, err := sd.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("failed to keep alive: %w", err)
	}

	go func() {
		for range ch {
		}
	}()

	return nil
}

func (sd *ServiceDiscovery) Discover(ctx context.Context, serviceName string) ([]*ServiceInstance, error) {
	resp, err := sd.client.Get(ctx, sd.config.Prefix+serviceName+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover service: %w", err)
	}

	instances := make([]*ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		instances = append(instances, parseInstance(serviceName, string(kv.Value)))
	}
	return instances, nil
}

func parseInstance(name, addr string) *ServiceInstance {
	instance := &ServiceInstance{Name: name, Addr: addr}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return instance
	}
	instance.Host = host
	instance.Port, _ = strconv.Atoi(port)
	return instance
}

func (sd *ServiceDiscovery) Deregister(ctx context.Context, instance *ServiceInstance) error {
	if _, err := sd.client.Delete(ctx, instanceKey(sd.config.Prefix, instance)); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	return nil
}

func (sd *ServiceDiscovery) Close() error {
	return sd.client.Close()
}
