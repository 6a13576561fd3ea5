package guildconf

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"wardenbot/internal/transport"
	"wardenbot/pkg/logx"
)

// Mutator transforms a tenant document in place. It must be pure: no I/O,
// no blocking, because it runs inside the per-tenant critical section.
type Mutator func(*TenantConfig)

// Store is the single source of truth for tenant configuration.
//
// Get never fails for an unknown tenant; it synthesizes the default
// document. Update is a read-modify-write that is atomic with respect to
// other updates for the same tenant; updates for different tenants do not
// block one another.
type Store interface {
	Get(ctx context.Context, tenant transport.TenantID) (TenantConfig, error)
	Update(ctx context.Context, tenant transport.TenantID, fn Mutator) (TenantConfig, error)
	Close() error
}

// Maintainer is implemented by drivers with periodic housekeeping
// (journal compaction, checkpointing). Driven by the maintenance cron.
type Maintainer interface {
	Maintain(ctx context.Context) error
}

// Config configures the store.
//
// Driver values:
//   - "file" (default): JSON snapshot + append journal
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown store driver: " + driver)
	}
}

// keyedMutex provides one mutex per tenant so read-modify-write cycles for
// distinct tenants never serialize through a shared lock. Entries are
// refcounted and removed when the last holder unlocks, keeping the map
// bounded by the number of in-flight updates.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[transport.TenantID]*tenantLock
}

type tenantLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(id transport.TenantID) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[transport.TenantID]*tenantLock{}
	}
	l := k.locks[id]
	if l == nil {
		l = &tenantLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
