// Package archive persists received waveform segments in a Lode dataset and
// reads them back as a historical query.
//
// Records are Hive-partitioned by network/station/channel/day and encoded
// as JSONL; each record carries its samples as INT32 miniSEED. Storage is
// the local filesystem or S3 (and S3-compatible providers).
package archive

import (
	"context"
	"sync"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/heliwatch/types"
)

// DefaultDataset is the Lode dataset id used by heliwatch.
const DefaultDataset = "heliwatch"

// Storage backend names, as reported in metrics dimensions.
const (
	BackendFS  = "fs"
	BackendS3  = "s3"
	BackendMem = "memory"
)

// NewDataset opens dataset with the archive layout and codec. The write and
// read paths must agree on both.
func NewDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, WrapInitError(err, dataset)
	}
	return ds, nil
}

// Client writes segment records to a Lode dataset.
type Client struct {
	dataset lode.Dataset
	name    string
	backend string

	mu sync.Mutex // serializes dataset writes
}

// NewClient creates a client over factory. Use lode.NewMemoryFactory() in tests.
func NewClient(dataset string, factory lode.StoreFactory) (*Client, error) {
	return newClient(dataset, BackendMem, factory)
}

// NewFSClient creates a client storing under root.
func NewFSClient(dataset, root string) (*Client, error) {
	return newClient(dataset, BackendFS, lode.NewFSFactory(root))
}

func newClient(dataset, backend string, factory lode.StoreFactory) (*Client, error) {
	ds, err := NewDataset(dataset, factory)
	if err != nil {
		return nil, err
	}
	if dataset == "" {
		dataset = DefaultDataset
	}
	return &Client{dataset: ds, name: dataset, backend: backend}, nil
}

// Dataset returns the underlying dataset, for building a Query.
func (c *Client) Dataset() lode.Dataset {
	return c.dataset
}

// Backend returns the storage backend name.
func (c *Client) Backend() string {
	return c.backend
}

// WriteSegments writes segs as one snapshot. Empty segments are skipped.
func (c *Client) WriteSegments(ctx context.Context, segs []*types.Segment) error {
	records := make([]any, 0, len(segs))
	for _, seg := range segs {
		if seg == nil || seg.Len() == 0 {
			continue
		}
		rec, err := NewSegmentRecord(seg)
		if err != nil {
			return NewStorageError(ErrStorage, "encode", c.name, err)
		}
		records = append(records, rec.toMap())
	}
	if len(records) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.name)
	}
	return nil
}

// Close releases client resources.
func (c *Client) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}
