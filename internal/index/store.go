package index

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"lextransition/internal/models"
)

const (
	currentFile = "CURRENT"
	snapPrefix  = "snap-"
)

var (
	// ErrNoSnapshot is returned when the store has no published snapshot
	ErrNoSnapshot = errors.New("no snapshot published")

	metaKey     = []byte("meta")
	chunkPrefix = []byte("chunk/")
)

type snapshotMeta struct {
	Version    string    `json:"version"`
	Created    time.Time `json:"created"`
	Dimensions int       `json:"dimensions"`
	Chunks     int       `json:"chunks"`
}

// Store persists snapshots as badger directories under a root, with a
// CURRENT file naming the published one
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore creates the root directory if needed
func NewStore(root string, logger *slog.Logger) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("snapshot directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot directory %s: %w", root, err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{root: root, logger: logger}, nil
}

// Root returns the store directory
func (s *Store) Root() string {
	return s.root
}

// badgerLogger adapts slog to badger's logger interface
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (s *Store) open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: s.logger})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database %s: %w", dir, err)
	}
	return db, nil
}

func chunkKey(seq uint64) []byte {
	key := make([]byte, len(chunkPrefix)+8)
	copy(key, chunkPrefix)
	binary.BigEndian.PutUint64(key[len(chunkPrefix):], seq)
	return key
}

// Save writes the snapshot to its own directory and then publishes it by
// replacing CURRENT. A crash before the rename leaves the previous
// snapshot current.
func (s *Store) Save(snap *Snapshot) error {
	if snap.Version() == "" || strings.ContainsAny(snap.Version(), `/\`) {
		return fmt.Errorf("invalid snapshot version %q", snap.Version())
	}
	dir := filepath.Join(s.root, snapPrefix+snap.Version())
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("snapshot %s already exists", snap.Version())
	}

	db, err := s.open(dir)
	if err != nil {
		return err
	}

	wb := db.NewWriteBatch()
	for i, c := range snap.chunks {
		data, err := json.Marshal(c)
		if err != nil {
			wb.Cancel()
			db.Close()
			return fmt.Errorf("encode chunk %s: %w", c.ID, err)
		}
		if err := wb.Set(chunkKey(uint64(i)), data); err != nil {
			wb.Cancel()
			db.Close()
			return fmt.Errorf("write chunk %s: %w", c.ID, err)
		}
	}
	meta, _ := json.Marshal(snapshotMeta{
		Version:    snap.version,
		Created:    snap.created,
		Dimensions: snap.dim,
		Chunks:     len(snap.chunks),
	})
	if err := wb.Set(metaKey, meta); err != nil {
		wb.Cancel()
		db.Close()
		return fmt.Errorf("write snapshot metadata: %w", err)
	}
	if err := wb.Flush(); err != nil {
		db.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close snapshot database: %w", err)
	}

	if err := s.writeCurrent(snap.Version()); err != nil {
		return err
	}
	s.logger.Info("Snapshot saved", "version", snap.Version(), "chunks", snap.Len(), "dir", dir)
	return nil
}

func (s *Store) writeCurrent(version string) error {
	tmp, err := os.CreateTemp(s.root, currentFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("create pointer file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(version + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write pointer file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync pointer file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close pointer file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.root, currentFile)); err != nil {
		return fmt.Errorf("publish pointer file: %w", err)
	}
	return nil
}

// CurrentVersion reads the published snapshot version
func (s *Store) CurrentVersion() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, currentFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoSnapshot
	}
	if err != nil {
		return "", fmt.Errorf("read pointer file: %w", err)
	}
	version := strings.TrimSpace(string(data))
	if version == "" {
		return "", ErrNoSnapshot
	}
	return version, nil
}

// LoadCurrent loads the published snapshot
func (s *Store) LoadCurrent() (*Snapshot, error) {
	version, err := s.CurrentVersion()
	if err != nil {
		return nil, err
	}
	return s.Load(version)
}

// Load reads a snapshot by version
func (s *Store) Load(version string) (*Snapshot, error) {
	dir := filepath.Join(s.root, snapPrefix+version)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", version, err)
	}

	db, err := s.open(dir)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var meta snapshotMeta
	b := NewBuilder()
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey)
		if err != nil {
			return fmt.Errorf("read snapshot metadata: %w", err)
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		}); err != nil {
			return fmt.Errorf("decode snapshot metadata: %w", err)
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = chunkPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var c models.Chunk
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &c)
			}); err != nil {
				return fmt.Errorf("decode chunk %x: %w", it.Item().Key(), err)
			}
			if err := b.Add(c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if b.Len() != meta.Chunks {
		return nil, fmt.Errorf("snapshot %s is incomplete: %d of %d chunks", version, b.Len(), meta.Chunks)
	}

	snap := b.BuildVersion(meta.Version)
	snap.created = meta.Created
	return snap, nil
}

// Versions lists the snapshot versions on disk, oldest first
func (s *Store) Versions() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list snapshot directory: %w", err)
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), snapPrefix) {
			versions = append(versions, strings.TrimPrefix(e.Name(), snapPrefix))
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// Prune removes all but the newest keep snapshots. The current snapshot is never removed.
func (s *Store) Prune(keep int) (int, error) {
	versions, err := s.Versions()
	if err != nil {
		return 0, err
	}
	current, _ := s.CurrentVersion()

	removed := 0
	for i := 0; i < len(versions)-keep; i++ {
		if versions[i] == current {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, snapPrefix+versions[i])); err != nil {
			return removed, fmt.Errorf("remove snapshot %s: %w", versions[i], err)
		}
		removed++
	}
	return removed, nil
}
