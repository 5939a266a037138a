package sqlite

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	defaultDBFile      = "history.db"
	defaultJournalMode = "wal"
	defaultBusyTimeout = 5 * time.Second
	defaultMaxMessages = 200
)

var journalModes = []string{"wal", "delete", "truncate", "persist", "memory"}

// Config is the memory.sqlite section. Path defaults to history.db in the
// data directory.
type Config struct {
	Path        string        `yaml:"path"`
	JournalMode string        `yaml:"journal_mode"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
	// MaxMessages is how many messages per chat survive the nightly trim.
	MaxMessages int `yaml:"max_messages"`
}

func (c *Config) defaults() {
	c.JournalMode = strings.ToLower(c.JournalMode)
	if c.JournalMode == "" {
		c.JournalMode = defaultJournalMode
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
	if c.MaxMessages == 0 {
		c.MaxMessages = defaultMaxMessages
	}
}

func (c *Config) validate() error {
	var errs []error
	if !slices.Contains(journalModes, c.JournalMode) {
		errs = append(errs, fmt.Errorf("sqlite: journal_mode %q not one of %s", c.JournalMode, strings.Join(journalModes, ", ")))
	}
	if c.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("sqlite: busy_timeout must not be negative, got %s", c.BusyTimeout))
	}
	if c.MaxMessages < 0 {
		errs = append(errs, fmt.Errorf("sqlite: max_messages must not be negative, got %d", c.MaxMessages))
	}
	return errors.Join(errs...)
}

// pragmas lists the statements run on the single pooled connection.
func (c *Config) pragmas() []string {
	return []string{
		"PRAGMA journal_mode=" + c.JournalMode,
		fmt.Sprintf("PRAGMA busy_timeout=%d", c.BusyTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON",
	}
}
