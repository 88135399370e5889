package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// Valkey is a Store backed by a Valkey (Redis-compatible) server, so lookups
// are shared across API and worker instances.
type Valkey struct {
	client valkey.Client
	prefix string
}

// NewValkey connects to addr. Keys are namespaced with prefix.
func NewValkey(addr, prefix string) (*Valkey, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return &Valkey{client: client, prefix: prefix}, nil
}

// Get retrieves a value by key.
func (v *Valkey) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := v.client.Do(ctx, v.client.B().Get().Key(v.prefix+key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

// Set stores a value with a TTL.
func (v *Valkey) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := v.client.Do(ctx,
		v.client.B().Set().Key(v.prefix+key).Value(valkey.BinaryString(value)).Ex(ttl).Build(),
	)
	return cmd.Error()
}

// Delete removes a key.
func (v *Valkey) Delete(ctx context.Context, key string) error {
	return v.client.Do(ctx, v.client.B().Del().Key(v.prefix+key).Build()).Error()
}

// Ping checks connectivity.
func (v *Valkey) Ping(ctx context.Context) error {
	return v.client.Do(ctx, v.client.B().Ping().Build()).Error()
}

// Close releases the client.
func (v *Valkey) Close() {
	v.client.Close()
}

var _ Store = (*Valkey)(nil)
