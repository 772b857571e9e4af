package domain

import (
	"context"
	"time"
)

// Repository defines the interface for persisting finished analyses and
// calibration rules. Analysis methods require tenantID for tenant isolation;
// calibration rules are shared by all tenants.
type Repository interface {
	// SaveAnalysis stores a finished analysis.
	SaveAnalysis(ctx context.Context, tenantID string, a *Analysis) error

	// GetAnalysis retrieves an analysis by ID.
	GetAnalysis(ctx context.Context, tenantID string, id string) (*Analysis, error)

	// ListAnalyses returns the most recent analyses, newest first.
	// An empty url returns analyses for every listing.
	ListAnalyses(ctx context.Context, tenantID string, url string, limit int) ([]*Analysis, error)

	// SaveCalibrationRule creates or replaces a calibration rule.
	SaveCalibrationRule(ctx context.Context, rule *CalibrationRule) error

	// ListCalibrationRules returns every stored calibration rule, ordered by ID.
	ListCalibrationRules(ctx context.Context) ([]CalibrationRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite", "postgres" or "none"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
