// Package cache keeps extracted version snapshots on disk so unchanged
// archives are not decoded again on the next build.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Sumatoshi-tech/jseries/internal/extract"
	"github.com/Sumatoshi-tech/jseries/internal/model"
	"github.com/Sumatoshi-tech/jseries/pkg/persist"
)

// formatVersion is bumped whenever the cached layout or the extracted
// counters change meaning.
const formatVersion = 1

// entry is the on-disk form of one cached extraction.
type entry struct {
	Format     int
	Snapshot   model.SnapshotData
	Advisories []model.Advisory
	Entries    int
	Skipped    int
}

// Snapshots is a disk cache of unmatched snapshots keyed by a fingerprint
// of the input archive and the extraction options. It is safe for
// concurrent use.
type Snapshots struct {
	files   *persist.Persister[entry]
	options string
	logger  *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits   int64
	Misses int64
}

// New creates a cache in dir. options describes everything besides the
// archive that influences extraction, such as entry filters.
func New(dir, options string, logger *slog.Logger) *Snapshots {
	if logger == nil {
		logger = slog.Default()
	}

	return &Snapshots{
		files:   persist.NewPersister[entry](dir, persist.NewLZ4Codec(persist.NewGobCodec())),
		options: options,
		logger:  logger,
	}
}

// Get returns a fresh copy of the cached result for in, re-stamped with the
// input's RSN and label.
func (c *Snapshots) Get(in extract.VersionInput) (*extract.VersionResult, bool) {
	key, err := Fingerprint(in, c.options)
	if err != nil {
		c.misses.Add(1)

		return nil, false
	}

	e, err := c.files.Load(key)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("snapshot cache entry unreadable", "rsn", in.RSN, "key", key, "error", err)
		}

		c.misses.Add(1)

		return nil, false
	}

	if e.Format != formatVersion {
		c.misses.Add(1)

		return nil, false
	}

	e.Snapshot.RSN = in.RSN
	e.Snapshot.Label = in.Label

	snap, err := model.SnapshotFromData(e.Snapshot)
	if err != nil {
		c.logger.Warn("snapshot cache entry invalid", "rsn", in.RSN, "key", key, "error", err)
		c.misses.Add(1)

		return nil, false
	}

	for i := range e.Advisories {
		e.Advisories[i].RSN = in.RSN
		e.Advisories[i].Label = in.Label
	}

	c.hits.Add(1)

	return &extract.VersionResult{
		Snapshot:   snap,
		Advisories: e.Advisories,
		Entries:    e.Entries,
		Skipped:    e.Skipped,
	}, true
}

// Put stores res for in. Inputs without an on-disk location are skipped.
func (c *Snapshots) Put(in extract.VersionInput, res *extract.VersionResult) error {
	key, err := Fingerprint(in, c.options)
	if err != nil {
		c.logger.Debug("version not cacheable", "rsn", in.RSN, "error", err)

		return nil
	}

	return c.files.Save(key, &entry{
		Format:     formatVersion,
		Snapshot:   res.Snapshot.Data(),
		Advisories: res.Advisories,
		Entries:    res.Entries,
		Skipped:    res.Skipped,
	})
}

// Stats returns hit and miss counts since creation.
func (c *Snapshots) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Fingerprint hashes the input location, its size and modification times,
// the requested timestamp and the options. A directory contributes every
// file beneath it.
func Fingerprint(in extract.VersionInput, options string) (string, error) {
	if in.Source == nil {
		return "", errors.New("no source")
	}

	root := in.Source.Location()

	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", root, err)
	}

	h := sha256.New()

	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}

	fmt.Fprintf(h, "v%d\x00%s\x00%s\x00%s\x00", formatVersion, abs, options, in.Timestamp.UTC().Format(time.RFC3339Nano))

	if !info.IsDir() {
		writeFile(h, "", info)

		return hex.EncodeToString(h.Sum(nil)), nil
	}

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		writeFile(h, filepath.ToSlash(rel), fi)

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", root, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeFile(w io.Writer, name string, fi fs.FileInfo) {
	fmt.Fprintf(w, "%s\x00%s\x00%s\n", name, strconv.FormatInt(fi.Size(), 10), strconv.FormatInt(fi.ModTime().UnixNano(), 10))
}
