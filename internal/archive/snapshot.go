// Package archive implements the durability path underneath the hot store:
// compressed columnar snapshots on local disk, a remote durable mirror, and
// the retention janitor that enforces the hot window.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// bucketSpan is the time span of one snapshot partition file.
const bucketSpan = time.Hour

// snapshotExt is the on-disk extension of partition files.
const snapshotExt = ".snap.zst"

// Column is one column of a snapshot partition. Exactly one of the value
// slices is populated, matching the column's declared schema type.
type Column struct {
	Name    string    `msgpack:"name"`
	Strings []string  `msgpack:"strings,omitempty"`
	Ints    []int64   `msgpack:"ints,omitempty"`
	Floats  []float64 `msgpack:"floats,omitempty"`
}

// Partition is the columnar payload of one (table, time bucket) snapshot
// file: all rows completed in the bucket, stored column-wise.
type Partition struct {
	Table         string   `msgpack:"table"`
	BucketStartMs int64    `msgpack:"bucket_start_ms"`
	Rows          int      `msgpack:"rows"`
	Columns       []Column `msgpack:"columns"`
}

// SnapshotWriter writes partitions under dir/<table>/<bucket>.snap.zst.
// Re-writing a bucket replaces the file, so a partially synced bucket is
// simply rewritten whole on the next pass.
type SnapshotWriter struct {
	dir string
}

// NewSnapshotWriter creates the snapshot root directory if needed.
// An unusable snapshot directory is fatal to the caller: running without
// local durability is running silently wrong.
func NewSnapshotWriter(dir string) (*SnapshotWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &SnapshotWriter{dir: dir}, nil
}

// Write persists one partition atomically (temp file + rename).
func (w *SnapshotWriter) Write(p Partition) error {
	tableDir := filepath.Join(w.dir, p.Table)
	if err := os.MkdirAll(tableDir, 0o755); err != nil {
		return fmt.Errorf("create table dir: %w", err)
	}

	payload, err := msgpack.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode partition: %w", err)
	}

	final := filepath.Join(tableDir, fmt.Sprintf("%d%s", p.BucketStartMs, snapshotExt))
	tmp, err := os.CreateTemp(tableDir, "partial-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc, err := zstd.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := enc.Write(payload); err != nil {
		enc.Close()
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("finish zstd stream: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// SnapshotReader reads partitions back from a snapshot directory.
type SnapshotReader struct {
	dir string
}

// NewSnapshotReader opens an existing snapshot directory.
func NewSnapshotReader(dir string) (*SnapshotReader, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open snapshot dir: %w", err)
	}
	if !info.IsDir() {
		return nil, errors.New("snapshot path is not a directory")
	}
	return &SnapshotReader{dir: dir}, nil
}

// Read loads one partition by table and bucket start.
func (r *SnapshotReader) Read(table string, bucketStartMs int64) (Partition, error) {
	path := filepath.Join(r.dir, table, fmt.Sprintf("%d%s", bucketStartMs, snapshotExt))
	return readPartition(path)
}

// Buckets lists the bucket start timestamps available for a table,
// ascending.
func (r *SnapshotReader) Buckets(table string) ([]int64, error) {
	entries, err := os.ReadDir(filepath.Join(r.dir, table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list snapshot buckets: %w", err)
	}
	var out []int64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".zst" {
			continue
		}
		var bucket int64
		if _, err := fmt.Sscanf(name, "%d"+snapshotExt, &bucket); err == nil {
			out = append(out, bucket)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func readPartition(path string) (Partition, error) {
	f, err := os.Open(path)
	if err != nil {
		return Partition{}, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return Partition{}, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	var p Partition
	if err := msgpack.NewDecoder(dec).Decode(&p); err != nil {
		return Partition{}, fmt.Errorf("decode partition: %w", err)
	}
	return p, nil
}

// bucketStart truncates a timestamp to its bucket boundary.
func bucketStart(tsMs int64) int64 {
	span := bucketSpan.Milliseconds()
	return tsMs - tsMs%span
}
