// Package store persists built histories in a SQLite file.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/Sumatoshi-tech/jseries/internal/model"
)

const driverName = "sqlite"

// timeLayout is fixed width so stored timestamps order lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Sentinel errors.
var (
	// ErrNotFound is returned when a product has no stored build.
	ErrNotFound = errors.New("no stored build")
	// ErrSchemaTooNew is returned for a store written by a newer binary.
	ErrSchemaTooNew = errors.New("store schema is newer than supported")
)

// Store is a SQLite-backed history store.
type Store struct {
	path string
	db   *sql.DB
	now  func() time.Time
}

// Product summarizes the latest build of one product.
type Product struct {
	Name     string
	BuildID  string
	Versions int
	BuiltAt  time.Time
}

// Open opens or creates the store at path.
func Open(ctx context.Context, path string) (*Store, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return nil, errors.New("store path must not be empty")
	}

	if info, err := os.Stat(clean); err == nil && info.IsDir() {
		return nil, fmt.Errorf("store path %q is a directory", clean)
	}

	if dir := filepath.Dir(clean); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", clean)

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", clean, err)
	}

	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping store %q: %w", clean, err)
	}

	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("initialize store %q: %w", clean, err)
	}

	return &Store{path: clean, db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Save writes h under a new build id in one transaction.
func (s *Store) Save(ctx context.Context, h *model.History) (string, error) {
	if h.Product() == "" {
		return "", errors.New("history has no product name")
	}

	id := uuid.NewString()
	d := h.Data()

	err := withRetry(ctx, "save "+d.Product, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}

		if err := s.insert(ctx, tx, id, d); err != nil {
			_ = tx.Rollback()

			return err
		}

		return tx.Commit()
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

const maxAttempts = 5

// withRetry reruns fn while SQLite reports the database as locked.
func withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !isLockError(lastErr) || attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(time.Duration(attempt*25) * time.Millisecond):
		}
	}

	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, id string, d model.HistoryData) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO builds (id, product, version_count, created_at_utc) VALUES (?, ?, ?, ?)`,
		id, d.Product, len(d.Versions), s.now().UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("insert build: %w", err)
	}

	versionStmt, err := tx.PrepareContext(ctx, `INSERT INTO versions (build_id, rsn, label, ts_utc) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer versionStmt.Close()

	classStmt, err := tx.PrepareContext(ctx, `
INSERT INTO classes (
  build_id, rsn, name, short_name, package, super_class, interfaces, dependencies, status,
  born_rsn, age, modification_frequency, distance, deleted_rsn, metrics
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer classStmt.Close()

	methodStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO methods (build_id, rsn, class, signature, name, metrics) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer methodStmt.Close()

	for _, v := range d.Versions {
		if _, err := versionStmt.ExecContext(ctx, id, v.RSN, v.Label, v.Timestamp.UTC().Format(timeLayout)); err != nil {
			return fmt.Errorf("insert version %d: %w", v.RSN, err)
		}

		for _, c := range v.Classes {
			if err := insertClass(ctx, classStmt, methodStmt, id, v.RSN, c); err != nil {
				return fmt.Errorf("version %d class %s: %w", v.RSN, c.Name, err)
			}
		}
	}

	for i, a := range d.Advisories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO advisories (build_id, seq, kind, rsn, label, entry, class, message) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i, string(a.Kind), a.RSN, a.Label, a.Entry, a.Class, a.Message,
		); err != nil {
			return fmt.Errorf("insert advisory: %w", err)
		}
	}

	return nil
}

func insertClass(ctx context.Context, classStmt, methodStmt *sql.Stmt, id string, rsn int, c model.ClassData) error {
	interfaces, err := json.Marshal(c.Interfaces)
	if err != nil {
		return err
	}

	deps, err := json.Marshal(c.Dependencies)
	if err != nil {
		return err
	}

	metrics, err := json.Marshal(c.Metrics)
	if err != nil {
		return err
	}

	if _, err := classStmt.ExecContext(ctx,
		id, rsn, c.Name, c.ShortName, c.Package, c.SuperClass, string(interfaces), string(deps),
		c.Status.String(), c.BornRSN, c.Age, c.ModificationFrequency, c.Distance, c.DeletedRSN, string(metrics),
	); err != nil {
		return err
	}

	for _, m := range c.Methods {
		mm, err := json.Marshal(m.Metrics)
		if err != nil {
			return err
		}

		if _, err := methodStmt.ExecContext(ctx, id, rsn, c.Name, m.Signature, m.Name, string(mm)); err != nil {
			return fmt.Errorf("method %s: %w", m.Signature, err)
		}
	}

	return nil
}

// Load restores the latest build of product as a frozen history.
func (s *Store) Load(ctx context.Context, product string) (*model.History, error) {
	var id string

	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM builds WHERE product = ? ORDER BY created_at_utc DESC, rowid DESC LIMIT 1`, product,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for product %q", ErrNotFound, product)
	}

	if err != nil {
		return nil, fmt.Errorf("find build: %w", err)
	}

	return s.LoadBuild(ctx, id)
}

// LoadBuild restores one build by id.
func (s *Store) LoadBuild(ctx context.Context, id string) (*model.History, error) {
	d := model.HistoryData{}

	if err := s.db.QueryRowContext(ctx, `SELECT product FROM builds WHERE id = ?`, id).Scan(&d.Product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: build %s", ErrNotFound, id)
		}

		return nil, fmt.Errorf("read build: %w", err)
	}

	versions, err := s.loadVersions(ctx, id)
	if err != nil {
		return nil, err
	}

	methods, err := s.loadMethods(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.loadClasses(ctx, id, versions, methods); err != nil {
		return nil, err
	}

	for _, v := range versions {
		d.Versions = append(d.Versions, *v)
	}

	if d.Advisories, err = s.loadAdvisories(ctx, id); err != nil {
		return nil, err
	}

	h, err := model.HistoryFromData(d)
	if err != nil {
		return nil, fmt.Errorf("restore build %s: %w", id, err)
	}

	return h, nil
}

func (s *Store) loadVersions(ctx context.Context, id string) ([]*model.SnapshotData, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT rsn, label, ts_utc FROM versions WHERE build_id = ? ORDER BY rsn`, id)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	var versions []*model.SnapshotData

	for rows.Next() {
		var (
			v  model.SnapshotData
			ts string
		)

		if err := rows.Scan(&v.RSN, &v.Label, &ts); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}

		if v.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("version %d timestamp: %w", v.RSN, err)
		}

		versions = append(versions, &v)
	}

	return versions, rows.Err()
}

type methodKey struct {
	rsn   int
	class string
}

func (s *Store) loadMethods(ctx context.Context, id string) (map[methodKey][]model.MethodData, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rsn, class, signature, name, metrics FROM methods WHERE build_id = ? ORDER BY rsn, class, signature`, id)
	if err != nil {
		return nil, fmt.Errorf("query methods: %w", err)
	}
	defer rows.Close()

	out := make(map[methodKey][]model.MethodData)

	for rows.Next() {
		var (
			key     methodKey
			m       model.MethodData
			metrics string
		)

		if err := rows.Scan(&key.rsn, &key.class, &m.Signature, &m.Name, &metrics); err != nil {
			return nil, fmt.Errorf("scan method: %w", err)
		}

		if err := json.Unmarshal([]byte(metrics), &m.Metrics); err != nil {
			return nil, fmt.Errorf("method %s metrics: %w", m.Signature, err)
		}

		out[key] = append(out[key], m)
	}

	return out, rows.Err()
}

func (s *Store) loadClasses(
	ctx context.Context, id string, versions []*model.SnapshotData, methods map[methodKey][]model.MethodData,
) error {
	byRSN := make(map[int]*model.SnapshotData, len(versions))
	for _, v := range versions {
		byRSN[v.RSN] = v
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT rsn, name, short_name, package, super_class, interfaces, dependencies, status,
       born_rsn, age, modification_frequency, distance, deleted_rsn, metrics
FROM classes WHERE build_id = ? ORDER BY rsn, name`, id)
	if err != nil {
		return fmt.Errorf("query classes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rsn                       int
			c                         model.ClassData
			interfaces, deps, metrics string
			status                    string
		)

		if err := rows.Scan(&rsn, &c.Name, &c.ShortName, &c.Package, &c.SuperClass, &interfaces, &deps, &status,
			&c.BornRSN, &c.Age, &c.ModificationFrequency, &c.Distance, &c.DeletedRSN, &metrics); err != nil {
			return fmt.Errorf("scan class: %w", err)
		}

		if c.Status, err = model.ParseStatus(status); err != nil {
			return fmt.Errorf("class %s: %w", c.Name, err)
		}

		if err := errors.Join(
			json.Unmarshal([]byte(interfaces), &c.Interfaces),
			json.Unmarshal([]byte(deps), &c.Dependencies),
			json.Unmarshal([]byte(metrics), &c.Metrics),
		); err != nil {
			return fmt.Errorf("class %s: %w", c.Name, err)
		}

		c.Methods = methods[methodKey{rsn: rsn, class: c.Name}]

		v, ok := byRSN[rsn]
		if !ok {
			return fmt.Errorf("class %s references missing version %d", c.Name, rsn)
		}

		v.Classes = append(v.Classes, c)
	}

	return rows.Err()
}

func (s *Store) loadAdvisories(ctx context.Context, id string) ([]model.Advisory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, rsn, label, entry, class, message FROM advisories WHERE build_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query advisories: %w", err)
	}
	defer rows.Close()

	var out []model.Advisory

	for rows.Next() {
		var (
			a    model.Advisory
			kind string
		)

		if err := rows.Scan(&kind, &a.RSN, &a.Label, &a.Entry, &a.Class, &a.Message); err != nil {
			return nil, fmt.Errorf("scan advisory: %w", err)
		}

		a.Kind = model.AdvisoryKind(kind)
		out = append(out, a)
	}

	return out, rows.Err()
}

// Products lists the latest build of every stored product, by name.
func (s *Store) Products(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT b.product, b.id, b.version_count, b.created_at_utc
FROM builds b
WHERE b.rowid = (
  SELECT b2.rowid FROM builds b2 WHERE b2.product = b.product
  ORDER BY b2.created_at_utc DESC, b2.rowid DESC LIMIT 1
)
ORDER BY b.product`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []Product

	for rows.Next() {
		var (
			p  Product
			ts string
		)

		if err := rows.Scan(&p.Name, &p.BuildID, &p.Versions, &ts); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}

		if p.BuiltAt, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("product %s build time: %w", p.Name, err)
		}

		out = append(out, p)
	}

	return out, rows.Err()
}
