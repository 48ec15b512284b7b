package shard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/imbin/blobstore"
	"github.com/hupe1980/imbin/codec"
)

// ManifestVersion is the current manifest format version.
const ManifestVersion = 1

// ManifestSuffix is appended to a shard name to form its manifest name.
const ManifestSuffix = ".manifest"

// ErrManifestVersion is returned for manifests written by a newer format.
var ErrManifestVersion = errors.New("shard: unsupported manifest version")

// Manifest describes a finished shard.
type Manifest struct {
	Version     int    `json:"version"`
	Shard       string `json:"shard"`
	PageSize    int    `json:"page_size"`
	Pages       int64  `json:"pages"`
	Objects     int64  `json:"objects"`
	Compression string `json:"compression"`
	// Checksum is the CRC32C of the stored (compressed) shard bytes.
	Checksum uint32    `json:"crc32c,omitempty"`
	Created  time.Time `json:"created"`
}

// ManifestName returns the sidecar name for a shard.
func ManifestName(shard string) string {
	return shard + ManifestSuffix
}

// WriteManifest stores m next to its shard.
func WriteManifest(ctx context.Context, store blobstore.BlobStore, m *Manifest) error {
	data, err := codec.Default.Marshal(m)
	if err != nil {
		return fmt.Errorf("shard: encode manifest: %w", err)
	}
	return blobstore.WriteAll(ctx, store, ManifestName(m.Shard), data)
}

// ReadManifest loads the manifest of a shard.
// It returns an error satisfying errors.Is(err, blobstore.ErrNotFound) when
// the shard has none.
func ReadManifest(ctx context.Context, store blobstore.BlobStore, shard string) (*Manifest, error) {
	data, err := blobstore.ReadAll(ctx, store, ManifestName(shard))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := codec.Default.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("shard: decode manifest %s: %w", ManifestName(shard), err)
	}
	if m.Version > ManifestVersion {
		return nil, fmt.Errorf("%w: %d", ErrManifestVersion, m.Version)
	}
	return &m, nil
}
