// Package export implements the two-phase store snapshot: a full export to
// object storage ending in a completion marker, and a transform that turns
// the raw shards into the analytics layout once the marker lands.
package export

import "context"

// ObjectStorage is the bucket surface the export pipeline needs. The S3
// implementation is used in deployments; tests run against the in-memory one.
type ObjectStorage interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}
