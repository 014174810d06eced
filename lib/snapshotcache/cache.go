// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package snapshotcache

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/lifeline-foundation/lifeline/lib/clock"
	"github.com/lifeline-foundation/lifeline/lib/codec"
	"github.com/lifeline-foundation/lifeline/lib/livesync"
	"github.com/lifeline-foundation/lifeline/lib/record"
)

var _ livesync.Cache = (*Cache)(nil)

// ErrCorrupt reports a cache file that fails its checksum or cannot be
// decoded.
var ErrCorrupt = errors.New("snapshotcache: corrupt snapshot file")

const (
	formatVersion = 1
	fileExtension = ".snap"
	headerSize    = 4 + 1 + 32
)

var magic = [4]byte{'L', 'L', 'S', 'C'}

// checksumKey separates snapshot checksums from any other BLAKE3 use.
var checksumKey = [32]byte{
	'l', 'i', 'f', 'e', 'l', 'i', 'n', 'e', '.', 's', 'n', 'a', 'p', 's', 'h', 'o',
	't', 'c', 'a', 'c', 'h', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// zstd encoders and decoders are safe for concurrent use.
var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("snapshotcache: zstd encoder initialization failed: " + err.Error())
	}
	decoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("snapshotcache: zstd decoder initialization failed: " + err.Error())
	}
}

// Config holds the parameters for a Cache.
type Config struct {
	// Directory holds one file per cached path. Created if missing.
	Directory string

	Clock  clock.Clock
	Logger *slog.Logger
}

// Cache stores snapshots under a directory. It is safe for concurrent
// use; concurrent saves of one path leave one of them in place.
type Cache struct {
	directory string
	clock     clock.Clock
	logger    *slog.Logger
}

// file is the CBOR body of a cache file.
type file struct {
	Path    string  `cbor:"path"`
	SavedAt int64   `cbor:"saved_at"`
	Records []entry `cbor:"records"`
}

type entry struct {
	ID     string         `cbor:"id"`
	Fields map[string]any `cbor:"fields"`
}

// New creates the cache directory if needed and returns a Cache.
func New(config Config) (*Cache, error) {
	if config.Directory == "" {
		return nil, fmt.Errorf("snapshotcache: Directory is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(config.Directory, 0o700); err != nil {
		return nil, fmt.Errorf("snapshotcache: creating %s: %w", config.Directory, err)
	}
	return &Cache{directory: config.Directory, clock: config.Clock, logger: config.Logger}, nil
}

// Directory returns the directory holding the cache files.
func (c *Cache) Directory() string {
	return c.directory
}

func (c *Cache) filename(path string) string {
	return filepath.Join(c.directory, url.PathEscape(path)+fileExtension)
}

// Load returns the records last saved for path. found is false when
// nothing has been saved. A damaged file yields an error wrapping
// ErrCorrupt.
func (c *Cache) Load(path string) (records []record.Record, found bool, err error) {
	data, err := os.ReadFile(c.filename(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("snapshotcache: reading %s: %w", path, err)
	}

	body, err := unseal(data)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	var contents file
	if err := codec.Unmarshal(body, &contents); err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if contents.Path != path {
		return nil, false, fmt.Errorf("%w: %s: file holds %q", ErrCorrupt, path, contents.Path)
	}

	records = make([]record.Record, 0, len(contents.Records))
	for _, stored := range contents.Records {
		records = append(records, record.Record{ID: stored.ID, Fields: record.Fields(stored.Fields)})
	}
	c.logger.Debug("snapshot loaded", "path", path, "records", len(records), "saved_at", contents.SavedAt)
	return records, true, nil
}

// Save replaces the snapshot stored for path.
func (c *Cache) Save(path string, records []record.Record) error {
	contents := file{
		Path:    path,
		SavedAt: c.clock.Now().UnixMilli(),
		Records: make([]entry, 0, len(records)),
	}
	for _, stored := range records {
		contents.Records = append(contents.Records, entry{ID: stored.ID, Fields: map[string]any(stored.Fields)})
	}
	body, err := codec.Marshal(contents)
	if err != nil {
		return fmt.Errorf("snapshotcache: encoding %s: %w", path, err)
	}
	if err := writeAtomic(c.filename(path), seal(body)); err != nil {
		return fmt.Errorf("snapshotcache: saving %s: %w", path, err)
	}
	return nil
}

// Remove deletes the snapshot stored for path. Removing an absent
// snapshot succeeds.
func (c *Cache) Remove(path string) error {
	err := os.Remove(c.filename(path))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("snapshotcache: removing %s: %w", path, err)
	}
	return nil
}

// seal prepends the header to the compressed body.
func seal(body []byte) []byte {
	sum := checksum(body)
	out := make([]byte, 0, headerSize+len(body)/2)
	out = append(out, magic[:]...)
	out = append(out, formatVersion)
	out = append(out, sum[:]...)
	return encoder.EncodeAll(body, out)
}

// unseal checks the header and returns the verified body.
func unseal(data []byte) ([]byte, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("file is %d bytes, shorter than the header", len(data))
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return nil, fmt.Errorf("bad magic %x", data[:4])
	}
	if data[4] != formatVersion {
		return nil, fmt.Errorf("unsupported format version %d", data[4])
	}
	var want [32]byte
	copy(want[:], data[5:headerSize])

	body, err := decoder.DecodeAll(data[headerSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	if checksum(body) != want {
		return nil, fmt.Errorf("checksum mismatch")
	}
	return body, nil
}

func checksum(body []byte) [32]byte {
	hasher, err := blake3.NewKeyed(checksumKey[:])
	if err != nil {
		panic("snapshotcache: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(body)
	var sum [32]byte
	copy(sum[:], hasher.Sum(nil))
	return sum
}

// writeAtomic writes data to a temporary file beside path, syncs it and
// renames it into place.
func writeAtomic(path string, data []byte) error {
	temporary, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	temporaryPath := temporary.Name()

	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return err
	}
	if err := temporary.Sync(); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return err
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporaryPath)
		return err
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return err
	}
	return nil
}
