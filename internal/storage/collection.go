package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bull/docqa-server/internal/fsutil"
	"github.com/bull/docqa-server/internal/index"
)

const (
	currentFile   = "CURRENT"
	snapshotsDir  = "snapshots"
	manifestFile  = "manifest.json"
	chunksFile    = "chunks.json"
	indexFile     = "index.bin"
	stagingPrefix = ".staging-"

	// DefaultRetain keeps the current snapshot and the one before it, so a
	// reader that resolved the previous pointer can still finish loading.
	DefaultRetain = 2
)

// Collection owns the paired chunk store and vector index of every snapshot
// under one directory:
//
//	<dir>/CURRENT                      id of the published snapshot
//	<dir>/snapshots/<id>/manifest.json checksums, counts, model info
//	<dir>/snapshots/<id>/chunks.json   ordered chunk texts
//	<dir>/snapshots/<id>/index.bin     flat index, row i = chunk i
//
// A snapshot is written to a staging directory, renamed into place, and only
// then published by replacing CURRENT, so readers never see a partial pair.
type Collection struct {
	dir    string
	logger *slog.Logger

	publishMu sync.Mutex

	mu     sync.RWMutex
	cached *Snapshot
}

// OpenCollection opens (and creates if needed) a collection rooted at dir.
func OpenCollection(dir string, logger *slog.Logger) (*Collection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Join(dir, snapshotsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create collection dir: %w", err)
	}
	return &Collection{dir: dir, logger: logger}, nil
}

// Dir returns the collection root.
func (c *Collection) Dir() string { return c.dir }

// Publish persists snap and makes it the current snapshot. snap.Manifest.ID
// and CreatedAt are assigned if empty; checksums are always recomputed.
func (c *Collection) Publish(snap *Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}

	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	if snap.Manifest.ID == "" {
		snap.Manifest.ID = uuid.New().String()
	}
	if snap.Manifest.CreatedAt.IsZero() {
		snap.Manifest.CreatedAt = time.Now().UTC()
	}
	id := snap.Manifest.ID

	staging := filepath.Join(c.dir, snapshotsDir, stagingPrefix+id)
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("clear staging: %w", err)
	}
	if err := c.writeArtifacts(staging, snap); err != nil {
		os.RemoveAll(staging)
		return err
	}

	final := c.snapshotDir(id)
	if err := os.Rename(staging, final); err != nil {
		os.RemoveAll(staging)
		return fmt.Errorf("move snapshot into place: %w", err)
	}
	if err := fsutil.SyncDir(filepath.Dir(final)); err != nil {
		return fmt.Errorf("sync snapshots dir: %w", err)
	}

	// Publishing the pointer is the commit point.
	if err := fsutil.WriteFileAtomic(filepath.Join(c.dir, currentFile), []byte(id+"\n"), 0o644); err != nil {
		return fmt.Errorf("publish snapshot pointer: %w", err)
	}

	c.mu.Lock()
	c.cached = snap
	c.mu.Unlock()

	c.logger.Info("Published snapshot", "id", id, "chunks", snap.Manifest.ChunkCount, "source", snap.Manifest.Source)
	return nil
}

func (c *Collection) writeArtifacts(dir string, snap *Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create staging: %w", err)
	}

	chunksPath := filepath.Join(dir, chunksFile)
	if err := NewChunkStore(chunksPath).Save(snap.Chunks); err != nil {
		return err
	}
	indexPath := filepath.Join(dir, indexFile)
	if err := index.Persist(snap.Index, indexPath); err != nil {
		return err
	}

	var err error
	if snap.Manifest.ChunksSHA256, err = fileSHA256(chunksPath); err != nil {
		return err
	}
	if snap.Manifest.IndexSHA256, err = fileSHA256(indexPath); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap.Manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return fsutil.WriteFileAtomic(filepath.Join(dir, manifestFile), data, 0o644)
}

// Current returns the published snapshot. It returns ErrNotFound when nothing
// has been published and ErrSnapshotMismatch when the artifacts on disk do
// not belong together.
func (c *Collection) Current() (*Snapshot, error) {
	id, err := c.currentID()
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	cached := c.cached
	c.mu.RUnlock()
	if cached != nil && cached.Manifest.ID == id {
		return cached, nil
	}

	snap, err := c.load(id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cached = snap
	c.mu.Unlock()
	return snap, nil
}

// CurrentManifest returns the manifest of the published snapshot.
func (c *Collection) CurrentManifest() (*Manifest, error) {
	snap, err := c.Current()
	if err != nil {
		return nil, err
	}
	m := snap.Manifest
	return &m, nil
}

func (c *Collection) currentID() (string, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, currentFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("no published snapshot: %w", ErrNotFound)
		}
		return "", fmt.Errorf("read snapshot pointer: %w", err)
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", fmt.Errorf("%w: empty snapshot pointer", ErrSnapshotMismatch)
	}
	return id, nil
}

func (c *Collection) load(id string) (*Snapshot, error) {
	dir := c.snapshotDir(id)

	manifest, err := readManifest(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}
	if manifest.ID != id {
		return nil, fmt.Errorf("%w: pointer names %s but manifest is %s", ErrSnapshotMismatch, id, manifest.ID)
	}

	chunksPath := filepath.Join(dir, chunksFile)
	indexPath := filepath.Join(dir, indexFile)
	if err := verifyChecksum(chunksPath, manifest.ChunksSHA256); err != nil {
		return nil, err
	}
	if err := verifyChecksum(indexPath, manifest.IndexSHA256); err != nil {
		return nil, err
	}

	chunks, err := NewChunkStore(chunksPath).Load()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: snapshot %s has no chunk store", ErrSnapshotMismatch, id)
		}
		return nil, err
	}
	idx, err := index.Load(indexPath, manifest.Dimension)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotMismatch, err)
	}

	snap, err := NewSnapshot(*manifest, chunks, idx)
	if err != nil {
		return nil, err
	}
	if manifest.ChunkCount != len(chunks) {
		return nil, fmt.Errorf("%w: manifest lists %d chunks, store has %d", ErrSnapshotMismatch, manifest.ChunkCount, len(chunks))
	}
	return snap, nil
}

// Prune removes snapshots other than the newest retain ones (by creation
// time, always keeping the current one) and leftover staging directories.
// It returns the manifests of removed snapshots so callers can release any
// remote resources they reference.
func (c *Collection) Prune(retain int) ([]Manifest, error) {
	if retain < 1 {
		retain = 1
	}

	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	currentID, err := c.currentID()
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	root := filepath.Join(c.dir, snapshotsDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	var manifests []Manifest
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), stagingPrefix) {
			os.RemoveAll(filepath.Join(root, e.Name()))
			continue
		}
		m, err := readManifest(filepath.Join(root, e.Name(), manifestFile))
		if err != nil {
			c.logger.Warn("Skipping unreadable snapshot", "id", e.Name(), "error", err)
			continue
		}
		manifests = append(manifests, *m)
	}

	sort.Slice(manifests, func(i, j int) bool {
		if manifests[i].ID == currentID {
			return true
		}
		if manifests[j].ID == currentID {
			return false
		}
		return manifests[i].CreatedAt.After(manifests[j].CreatedAt)
	})

	var removed []Manifest
	for i, m := range manifests {
		if i < retain {
			continue
		}
		if err := os.RemoveAll(c.snapshotDir(m.ID)); err != nil {
			return removed, fmt.Errorf("remove snapshot %s: %w", m.ID, err)
		}
		removed = append(removed, m)
		c.logger.Debug("Pruned snapshot", "id", m.ID)
	}
	return removed, nil
}

func (c *Collection) snapshotDir(id string) string {
	return filepath.Join(c.dir, snapshotsDir, id)
}

func validate(snap *Snapshot) error {
	if snap == nil || snap.Index == nil {
		return fmt.Errorf("%w: incomplete snapshot", ErrSnapshotMismatch)
	}
	if err := checkOrdinals(snap.Chunks); err != nil {
		return err
	}
	if snap.Index.Len() != len(snap.Chunks) {
		return fmt.Errorf("%w: %d chunks but %d index rows", ErrSnapshotMismatch, len(snap.Chunks), snap.Index.Len())
	}
	snap.Manifest.ChunkCount = len(snap.Chunks)
	snap.Manifest.Dimension = snap.Index.Dimension()
	return nil
}

func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: missing manifest %s", ErrSnapshotMismatch, path)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parse manifest: %v", ErrSnapshotMismatch, err)
	}
	return &m, nil
}

func verifyChecksum(path, want string) error {
	got, err := fileSHA256(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: missing %s", ErrSnapshotMismatch, filepath.Base(path))
		}
		return err
	}
	if got != want {
		return fmt.Errorf("%w: checksum of %s does not match manifest", ErrSnapshotMismatch, filepath.Base(path))
	}
	return nil
}

func fileSHA256(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
