package guildconf

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"wardenbot/internal/transport"
	"wardenbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore keeps one JSON document per tenant in a single table.
// The database is the authoritative copy; there is no in-memory cache, so
// readers always observe the last committed update.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	tenants keyedMutex
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Get(ctx context.Context, tenant transport.TenantID) (TenantConfig, error) {
	doc, _, err := s.read(ctx, tenant)
	if err != nil {
		// Unreadable row degrades to the default document; the router must
		// keep working even if the backing medium is sick.
		s.log.Warn("tenant config read failed, serving defaults",
			logx.Int64("tenant", int64(tenant)), logx.Err(err))
		return Default(), nil
	}
	return doc, nil
}

func (s *sqliteStore) read(ctx context.Context, tenant transport.TenantID) (TenantConfig, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM tenant_config WHERE tenant_id = ?`, int64(tenant)).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Default(), false, nil
	case err != nil:
		return TenantConfig{}, false, err
	}

	var doc TenantConfig
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		// Corrupt document: behave like an absent one.
		s.log.Warn("corrupt tenant document, treating as empty",
			logx.Int64("tenant", int64(tenant)), logx.Err(err))
		return Default(), false, nil
	}
	doc.normalize()
	return doc, true, nil
}

func (s *sqliteStore) Update(ctx context.Context, tenant transport.TenantID, fn Mutator) (TenantConfig, error) {
	unlock := s.tenants.lock(tenant)
	defer unlock()

	doc, _, err := s.read(ctx, tenant)
	if err != nil {
		return TenantConfig{}, err
	}

	fn(&doc)
	doc.normalize()

	raw, err := json.Marshal(doc)
	if err != nil {
		return TenantConfig{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenant_config (tenant_id, doc, updated_at)
		VALUES (?, ?, strftime('%s','now'))
		ON CONFLICT(tenant_id) DO UPDATE SET
			doc = excluded.doc,
			updated_at = excluded.updated_at`,
		int64(tenant), string(raw))
	if err != nil {
		return TenantConfig{}, err
	}
	return doc, nil
}

// Maintain checkpoints the WAL and lets SQLite refresh its query planner
// statistics.
func (s *sqliteStore) Maintain(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "PRAGMA optimize")
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
