package poller

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// ErrNoCache is returned by Cache.Load when no snapshot has been saved yet.
var ErrNoCache = errors.New("no cached snapshot")

// cacheVersion is bumped whenever the cached layout changes incompatibly.
const cacheVersion = 1

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core Deterministic Encoding, with times kept at full precision.
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("poller: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("poller: CBOR decoder initialization failed: " + err.Error())
	}
}

type cachedSnapshot struct {
	Version  int      `cbor:"v"`
	Snapshot Snapshot `cbor:"s"`
}

// Cache persists the last good snapshot between runs so a restarted client
// has something to show before the first refresh.
type Cache struct {
	path string
}

// NewCache returns a cache stored at path.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// Path returns the cache file location.
func (c *Cache) Path() string { return c.path }

// Save writes snap atomically. Degraded state is not persisted.
func (c *Cache) Save(snap Snapshot) error {
	snap.Degraded, snap.ErrorCount, snap.LastError = false, 0, ""
	data, err := encMode.Marshal(cachedSnapshot{Version: cacheVersion, Snapshot: snap})
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o750); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// Load reads the saved snapshot. It returns ErrNoCache if none exists and an
// error if the file was written by an incompatible version.
func (c *Cache) Load() (Snapshot, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, ErrNoCache
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading snapshot: %w", err)
	}
	var cached cachedSnapshot
	if err := decMode.Unmarshal(data, &cached); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	if cached.Version != cacheVersion {
		return Snapshot{}, fmt.Errorf("snapshot cache version %d, want %d", cached.Version, cacheVersion)
	}
	return cached.Snapshot, nil
}
