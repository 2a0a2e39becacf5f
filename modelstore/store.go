// Package modelstore persists predictor snapshots as versioned gob blobs
// with an append-only sqlite history, backup rotation and rollback.
//
// Layout under Dir:
//
//	current.gob              active snapshot
//	backups/model_v%06d.gob  retained versions (newest Keep)
//	metadata.db              version history and current pointer
package modelstore

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver.

	"github.com/YuminosukeSato/fatigo/core/model"
	"github.com/YuminosukeSato/fatigo/ensemble"
	"github.com/YuminosukeSato/fatigo/metrics"
	"github.com/YuminosukeSato/fatigo/pkg/errors"
	"github.com/YuminosukeSato/fatigo/pkg/log"
)

const (
	// DefaultKeep is the number of retained backups.
	DefaultKeep = 5

	currentFile  = "current.gob"
	backupDir    = "backups"
	metadataFile = "metadata.db"
	blobKind     = "ensemble"
)

const schema = `
CREATE TABLE IF NOT EXISTS model_versions (
	version      INTEGER PRIMARY KEY,
	save_id      TEXT NOT NULL UNIQUE,
	created_at   TEXT NOT NULL,
	sample_count INTEGER NOT NULL,
	n_features   INTEGER NOT NULL,
	mae          REAL NOT NULL DEFAULT 0,
	rmse         REAL NOT NULL DEFAULT 0,
	max_error    REAL NOT NULL DEFAULT 0,
	r2           REAL NOT NULL DEFAULT 0,
	blob_name    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS current_model (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	version  INTEGER NOT NULL
);
`

// Options configures a Store.
type Options struct {
	Dir          string
	Keep         int
	FeatureNames []string
	Logger       log.Logger
}

// VersionInfo is one row of the save history.
type VersionInfo struct {
	Version     int       `json:"version"`
	SaveID      string    `json:"save_id"`
	CreatedAt   time.Time `json:"created_at"`
	SampleCount int       `json:"sample_count"`
	NFeatures   int       `json:"n_features"`
	MAE         float64   `json:"mae"`
	RMSE        float64   `json:"rmse"`
	MaxError    float64   `json:"max_error"`
	R2          float64   `json:"r2"`
	BlobName    string    `json:"blob_name"`
	Available   bool      `json:"available"`
	Current     bool      `json:"current"`
}

// Store はモデルのバージョン管理を行う
// 保存とロールバックは内部のミューテックスで直列化される。
type Store struct {
	mu sync.Mutex

	dir    string
	keep   int
	names  []string
	db     *sql.DB
	logger log.Logger
}

// Open creates the directory layout and opens the metadata database.
func Open(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.NewValidationError("dir", "is required", opts.Dir)
	}
	if len(opts.FeatureNames) == 0 {
		return nil, errors.NewValidationError("feature_names", "must not be empty", 0)
	}
	if opts.Keep <= 0 {
		opts.Keep = DefaultKeep
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLoggerWithName("modelstore")
	}
	if err := os.MkdirAll(filepath.Join(opts.Dir, backupDir), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", opts.Dir)
	}

	db, err := sql.Open("sqlite", filepath.Join(opts.Dir, metadataFile))
	if err != nil {
		return nil, errors.Wrap(err, "open metadata db")
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{"PRAGMA journal_mode=WAL", schema} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "migrate metadata db")
		}
	}

	return &Store{
		dir:    opts.Dir,
		keep:   opts.Keep,
		names:  append([]string(nil), opts.FeatureNames...),
		db:     db,
		logger: opts.Logger,
	}, nil
}

// Close closes the metadata database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) currentPath() string { return filepath.Join(s.dir, currentFile) }

func backupName(version int) string {
	return "model_v" + pad6(version) + ".gob"
}

func (s *Store) backupPath(version int) string {
	return filepath.Join(s.dir, backupDir, backupName(version))
}

func (s *Store) expectHeader() model.EnvelopeHeader {
	return model.EnvelopeHeader{
		SchemaVersion: ensemble.SnapshotSchemaVersion,
		NFeatures:     len(s.names),
		Kind:          blobKind,
	}
}

// Save persists snap as a new version and makes it current. The blob is
// staged and fsynced, recorded in the history, copied to the backups,
// and finally renamed over current.gob.
func (s *Store) Save(snap *ensemble.Snapshot, rep metrics.Report) (int, error) {
	if snap == nil {
		return 0, errors.NewValueError("modelstore.Save", "snapshot cannot be nil")
	}
	if snap.NFeatures != len(s.names) {
		return 0, errors.NewSchemaMismatchError("modelstore.Save", "n_features", len(s.names), snap.NFeatures)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	var version int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) + 1 FROM model_versions`).Scan(&version); err != nil {
		return 0, errors.Wrap(err, "next version")
	}

	staging, err := s.stage(func(f *os.File) error {
		hdr := s.expectHeader()
		hdr.CreatedAt = start.UTC()
		return model.WriteEnvelope(f, hdr, snap)
	})
	if err != nil {
		return 0, err
	}
	defer os.Remove(staging)

	saveID := uuid.NewString()
	if _, err := s.db.Exec(
		`INSERT INTO model_versions (version, save_id, created_at, sample_count, n_features, mae, rmse, max_error, r2, blob_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		version, saveID, start.UTC().Format(time.RFC3339Nano), snap.SampleCount, snap.NFeatures,
		finite(rep.MAE), finite(rep.RMSE), finite(rep.MaxError), finite(rep.R2), backupName(version),
	); err != nil {
		return 0, errors.Wrap(err, "insert version")
	}

	if err := copyFile(staging, s.backupPath(version)); err != nil {
		return 0, err
	}
	if err := s.rotate(); err != nil {
		s.logger.Warn("Backup rotation failed", err)
	}
	if err := os.Rename(staging, s.currentPath()); err != nil {
		return 0, errors.Wrap(err, "promote staged model")
	}
	if err := s.setCurrent(version); err != nil {
		return 0, err
	}

	s.logger.Info("Model saved",
		log.OperationKey, log.OperationSave,
		log.ModelVersionKey, version,
		log.SamplesKey, snap.SampleCount,
		log.MAEKey, rep.MAE,
		log.DurationMsKey, float64(time.Since(start).Microseconds())/1000,
	)
	return version, nil
}

// stage writes a temp file in Dir via write and fsyncs it.
func (s *Store) stage(write func(f *os.File) error) (string, error) {
	f, err := os.CreateTemp(s.dir, ".staging-*.gob")
	if err != nil {
		return "", errors.Wrap(err, "create staging file")
	}
	name := f.Name()
	if err := write(f); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", errors.Wrap(err, "sync staging file")
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", errors.Wrap(err, "close staging file")
	}
	return name, nil
}

func (s *Store) setCurrent(version int) error {
	_, err := s.db.Exec(
		`INSERT INTO current_model (id, version) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version = excluded.version`, version)
	return errors.Wrap(err, "set current version")
}

// Load decodes current.gob. A missing file is a cold start with a nil
// error; an unreadable, corrupt or mismatched file is a cold start with the
// typed error, which is also logged.
func (s *Store) Load() (*ensemble.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.currentPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ensemble.NewSnapshot(s.names), nil
	}
	snap, err := s.decode(path)
	if err != nil {
		s.logger.Error("Model load failed, starting cold", err,
			log.OperationKey, log.OperationLoad,
			log.PathKey, path,
		)
		return ensemble.NewSnapshot(s.names), err
	}
	s.logger.Info("Model loaded",
		log.OperationKey, log.OperationLoad,
		log.SamplesKey, snap.SampleCount,
	)
	return snap, nil
}

func (s *Store) decode(path string) (*ensemble.Snapshot, error) {
	var snap ensemble.Snapshot
	if _, err := model.LoadEnvelopeFile(path, s.expectHeader(), &snap); err != nil {
		return nil, err
	}
	if err := snap.CheckFeatures(path, s.names); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Rollback makes a retained version current again. History is untouched
// and rolling back to the current version is a no-op.
func (s *Store) Rollback(version int) (*ensemble.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM model_versions WHERE version = ?`, version).Scan(&n); err != nil {
		return nil, errors.Wrap(err, "lookup version")
	}
	if n == 0 {
		return nil, errors.Wrapf(errors.ErrVersionNotFound, "version %d", version)
	}
	backup := s.backupPath(version)
	if _, err := os.Stat(backup); os.IsNotExist(err) {
		return nil, errors.Wrapf(errors.ErrVersionNotFound, "version %d is no longer retained", version)
	}
	snap, err := s.decode(backup)
	if err != nil {
		return nil, err
	}

	staging, err := s.stage(func(f *os.File) error { return copyInto(backup, f) })
	if err != nil {
		return nil, err
	}
	defer os.Remove(staging)
	if err := os.Rename(staging, s.currentPath()); err != nil {
		return nil, errors.Wrap(err, "promote rollback")
	}
	if err := s.setCurrent(version); err != nil {
		return nil, err
	}
	s.logger.Info("Model rolled back",
		log.OperationKey, log.OperationRollback,
		log.ModelVersionKey, version,
	)
	return snap, nil
}

// CurrentVersion returns the active version, 0 when nothing was saved.
func (s *Store) CurrentVersion() (int, error) {
	var v int
	err := s.db.QueryRow(`SELECT version FROM current_model WHERE id = 1`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, errors.Wrap(err, "current version")
}

// ListVersions returns the history in ascending version order.
func (s *Store) ListVersions() ([]VersionInfo, error) {
	current, err := s.CurrentVersion()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT version, save_id, created_at, sample_count, n_features, mae, rmse, max_error, r2, blob_name
		 FROM model_versions ORDER BY version ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "list versions")
	}
	defer rows.Close()

	var out []VersionInfo
	for rows.Next() {
		var v VersionInfo
		var created string
		if err := rows.Scan(&v.Version, &v.SaveID, &created, &v.SampleCount, &v.NFeatures,
			&v.MAE, &v.RMSE, &v.MaxError, &v.R2, &v.BlobName); err != nil {
			return nil, errors.Wrap(err, "scan version")
		}
		v.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		if _, err := os.Stat(s.backupPath(v.Version)); err == nil {
			v.Available = true
		}
		v.Current = v.Version == current
		out = append(out, v)
	}
	return out, errors.Wrap(rows.Err(), "iterate versions")
}

// Reset deletes every blob and the whole history. It cannot be undone.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.currentPath()); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove current model")
	}
	backups, err := s.backups()
	if err != nil {
		return err
	}
	for _, b := range backups {
		if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove %s", b.path)
		}
	}
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin reset")
	}
	defer tx.Rollback() //nolint:errcheck
	for _, stmt := range []string{`DELETE FROM current_model`, `DELETE FROM model_versions`} {
		if _, err := tx.Exec(stmt); err != nil {
			return errors.Wrap(err, "clear history")
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit reset")
	}
	s.logger.Info("Model store reset", log.PathKey, s.dir)
	return nil
}

func finite(v float64) float64 {
	if !errors.IsFinite(v) {
		return 0
	}
	return v
}
