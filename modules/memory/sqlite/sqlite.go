// Package sqlite is the memory.sqlite module. It keeps every chat's
// history in a modernc.org/sqlite database so the context window
// survives restarts.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/tgmcp/internal/core"
	"github.com/flemzord/tgmcp/internal/router"
)

const (
	ModuleID = "memory.sqlite"
	// ServiceName publishes the *History.
	ServiceName = "memory.history"
)

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ router.HistoryStore = (*History)(nil)
	_ core.Configurable   = (*Module)(nil)
	_ core.Provisioner    = (*Module)(nil)
	_ core.Validator      = (*Module)(nil)
	_ core.Stopper        = (*Module)(nil)
)

type Module struct {
	config Config
	logger *slog.Logger
	db     *sql.DB
	store  *History
}

func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: ModuleID, New: func() core.Module { return new(Module) }}
}

func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	return nil
}

// Provision opens the database under the data directory unless a path
// is configured. A bad journal mode is reported before any file is
// created.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.config.defaults()
	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}
	if err := m.config.validate(); err != nil {
		return err
	}

	db, err := open(context.Background(), m.config)
	if err != nil {
		return err
	}
	m.db, m.store = db, &History{db: db}
	ctx.RegisterService(ServiceName, m.store)

	m.logger.Info("sqlite history opened",
		"path", m.config.Path,
		"journal_mode", m.config.JournalMode,
		"schema_version", schemaVersion,
		"max_messages", m.config.MaxMessages,
	)
	return nil
}

func (m *Module) Validate() error {
	if err := m.db.PingContext(context.Background()); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

func (m *Module) Stop(context.Context) error {
	if m.db == nil {
		return nil
	}
	m.logger.Info("sqlite history closing")
	err := m.db.Close()
	m.db = nil
	return err
}

func (m *Module) History() *History { return m.store }

// MaxMessages is the per-chat retention applied by the trim job.
func (m *Module) MaxMessages() int { return m.config.MaxMessages }
