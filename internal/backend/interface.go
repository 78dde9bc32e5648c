package backend

import (
	"context"
	"time"

	"ledger/internal/services"
	"ledger/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// StoreResult contains the ledger store and its cleanup function
type StoreResult struct {
	Store   services.Store
	Cleanup CleanupFunc
}

// Factory creates the ledger store and the export sink from configuration.
type Factory interface {
	CreateStore(ctx context.Context, config Config) (*StoreResult, error)
	CreateExportSink(ctx context.Context, config Config) (sheets.EventWriter, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
	StoreTimeout time.Duration

	// Export sink; empty spreadsheet id selects the in-memory sink
	GoogleSpreadsheetID string
	GoogleSheetName     string
}

// BackendType represents the type of ledger store
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
