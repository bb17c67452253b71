package connect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/illmade-knight/go-restbridge/pkg/cache"
	"github.com/illmade-knight/go-restbridge/pkg/restsource"
	"github.com/illmade-knight/go-restbridge/pkg/types"
)

// Deduplicator drops records whose value is unchanged since the last value
// published to the same topic from the same URL. Digests live in a
// cache.Cache, so with Redis they survive restarts.
type Deduplicator struct {
	cache cache.Cache[string, string]
}

// NewDeduplicator creates a Deduplicator over c.
func NewDeduplicator(c cache.Cache[string, string]) *Deduplicator {
	return &Deduplicator{cache: c}
}

// Filter returns the records whose digest differs from the cached one. Cache
// read errors let the record through.
func (d *Deduplicator) Filter(ctx context.Context, records []types.DestinationRecord) ([]types.DestinationRecord, error) {
	out := make([]types.DestinationRecord, 0, len(records))
	var errs []error
	for _, rec := range records {
		digest, err := digestOf(rec)
		if err != nil {
			return nil, err
		}
		prev, err := d.cache.FetchFromCache(ctx, dedupeKey(rec))
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			errs = append(errs, err)
		}
		if err == nil && prev == digest {
			continue
		}
		out = append(out, rec)
	}
	return out, errors.Join(errs...)
}

// Commit records the digests of published records.
func (d *Deduplicator) Commit(ctx context.Context, records []types.DestinationRecord) error {
	var errs []error
	for _, rec := range records {
		digest, err := digestOf(rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := d.cache.WriteToCache(ctx, dedupeKey(rec), digest); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func dedupeKey(rec types.DestinationRecord) string {
	return rec.Topic + "|" + rec.SourcePartition[restsource.PartitionKeyURL]
}

func digestOf(rec types.DestinationRecord) (string, error) {
	value, err := rec.ValueBytes()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(value)
	return hex.EncodeToString(sum[:]), nil
}
