package guildconf

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"wardenbot/internal/transport"
	"wardenbot/pkg/logx"
)

// fileStore is the dependency-free default driver.
//
// Files:
//   - <prefix>.snapshot.json (full collection, rewritten on compaction)
//   - <prefix>.journal.jsonl (append-only, one document per committed update)
//
// Startup replays the journal over the snapshot; Maintain() compacts the
// journal back into the snapshot. Unreadable data on load degrades to an
// empty collection, never a startup failure.
type fileStore struct {
	log logx.Logger

	snapshotPath string

	tenants keyedMutex // per-tenant update critical section

	mu   sync.RWMutex // guards docs
	docs map[transport.TenantID]TenantConfig

	fileMu        sync.Mutex // guards journal handle and compaction
	journal       *os.File
	journalWrites int
}

type journalRecord struct {
	Tenant string       `json:"tenant"`
	Doc    TenantConfig `json:"doc"`
}

// compactEvery bounds journal growth between cron-driven Maintain calls.
const compactEvery = 1000

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	docs := map[transport.TenantID]TenantConfig{}
	if err := loadSnapshot(snapPath, docs); err != nil && !os.IsNotExist(err) {
		log.Warn("tenant snapshot unreadable, starting empty", logx.String("path", snapPath), logx.Err(err))
	}
	if err := replayJournal(journalPath, docs); err != nil && !os.IsNotExist(err) {
		log.Warn("tenant journal partially replayed", logx.String("path", journalPath), logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		docs:         docs,
		journal:      jf,
	}, nil
}

func (s *fileStore) Get(ctx context.Context, tenant transport.TenantID) (TenantConfig, error) {
	_ = ctx
	s.mu.RLock()
	doc, ok := s.docs[tenant]
	s.mu.RUnlock()
	if !ok {
		return Default(), nil
	}
	return doc.Clone(), nil
}

func (s *fileStore) Update(ctx context.Context, tenant transport.TenantID, fn Mutator) (TenantConfig, error) {
	unlock := s.tenants.lock(tenant)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return TenantConfig{}, err
	}

	s.mu.RLock()
	doc, ok := s.docs[tenant]
	s.mu.RUnlock()
	if !ok {
		doc = Default()
	} else {
		doc = doc.Clone()
	}

	fn(&doc)
	doc.normalize()

	if err := s.commit(tenant, doc); err != nil {
		return TenantConfig{}, err
	}
	return doc.Clone(), nil
}

// commit appends the document to the journal and, on success, publishes it
// to the in-memory map. A failed write leaves the previously served state
// as the externally visible truth. The publish happens under fileMu so a
// compaction (inline or cron-driven) can never snapshot a state that is
// missing a journal record it is about to truncate.
func (s *fileStore) commit(tenant transport.TenantID, doc TenantConfig) error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if s.journal == nil {
		return errors.New("store closed")
	}
	rec := journalRecord{Tenant: strconv.FormatInt(int64(tenant), 10), Doc: doc}
	if err := json.NewEncoder(s.journal).Encode(rec); err != nil {
		return err
	}

	s.mu.Lock()
	s.docs[tenant] = doc
	s.mu.Unlock()

	s.journalWrites++
	if s.journalWrites%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

// Maintain compacts the journal into the snapshot.
func (s *fileStore) Maintain(ctx context.Context) error {
	_ = ctx
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	return s.compactLocked()
}

func (s *fileStore) compactLocked() error {
	if s.journal == nil {
		return errors.New("store closed")
	}

	s.mu.RLock()
	out := make(map[string]TenantConfig, len(s.docs))
	for id, doc := range s.docs {
		out[strconv.FormatInt(int64(id), 10)] = doc.Clone()
	}
	s.mu.RUnlock()

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}

	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func (s *fileStore) Close() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	cerr := s.journal.Close()
	s.journal = nil
	if err != nil {
		return err
	}
	return cerr
}

func loadSnapshot(path string, out map[transport.TenantID]TenantConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var m map[string]TenantConfig
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, doc := range m {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		doc.normalize()
		out[transport.TenantID(id)] = doc
	}
	return nil
}

func replayJournal(path string, out map[transport.TenantID]TenantConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec journalRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			// Torn tail write after a crash; later records may still parse.
			continue
		}
		id, err := strconv.ParseInt(rec.Tenant, 10, 64)
		if err != nil {
			continue
		}
		rec.Doc.normalize()
		out[transport.TenantID(id)] = rec.Doc
	}
	return sc.Err()
}
