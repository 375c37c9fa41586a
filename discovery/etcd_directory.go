package discovery

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdDirectory implements Directory over etcd v3, grounded directly on the
// teacher's EtcdRegistry (registry/etcd_registry.go): same TTL-lease
// registration, same prefix-scan Discover/Watch shape, repointed at
// advertising whole servers under "/chanrpc/<group>/<serverId>" instead of
// "/mini-rpc/<service>/<addr>".
type EtcdDirectory struct {
	client *clientv3.Client
}

// NewEtcdDirectory connects to the given etcd endpoints.
func NewEtcdDirectory(endpoints []string) (*EtcdDirectory, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, err
	}
	return &EtcdDirectory{client: c}, nil
}

func keyPrefix(group string) string {
	return "/chanrpc/" + group + "/"
}

// Advertise grants a TTL lease, puts the advertisement under it, and starts
// a background keepalive — if the process dies without calling Withdraw,
// the lease expires and the entry disappears on its own.
func (d *EtcdDirectory) Advertise(group string, ad Advertisement, ttlSeconds int64) error {
	ctx := context.TODO()

	lease, err := d.client.Grant(ctx, ttlSeconds)
	if err != nil {
		return err
	}

	val, err := json.Marshal(ad)
	if err != nil {
		return err
	}

	key := keyPrefix(group) + ad.ServerID
	if _, err := d.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	ch, err := d.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Withdraw deletes this server's advertisement immediately rather than
// waiting for its lease to expire.
func (d *EtcdDirectory) Withdraw(group string, serverID string) error {
	_, err := d.client.Delete(context.TODO(), keyPrefix(group)+serverID)
	return err
}

// List fetches every advertisement currently under group's prefix.
func (d *EtcdDirectory) List(group string) ([]Advertisement, error) {
	resp, err := d.client.Get(context.TODO(), keyPrefix(group), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	ads := make([]Advertisement, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ad Advertisement
		if err := json.Unmarshal(kv.Value, &ad); err != nil {
			continue
		}
		ads = append(ads, ad)
	}
	return ads, nil
}

// Watch re-lists the group's advertisements on every change under its
// prefix and pushes the full snapshot — simpler for callers than reasoning
// about individual put/delete events, at the cost of an extra round trip
// per change.
func (d *EtcdDirectory) Watch(group string) <-chan []Advertisement {
	out := make(chan []Advertisement, 1)
	go func() {
		watchChan := d.client.Watch(context.TODO(), keyPrefix(group), clientv3.WithPrefix())
		for range watchChan {
			if ads, err := d.List(group); err == nil {
				out <- ads
			}
		}
	}()
	return out
}
