// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/truthlens/truthlens/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// DefaultListLimit caps ListAnalyses when the caller passes no limit.
const DefaultListLimit = 50

// MaxListLimit is the largest page ListAnalyses will return.
const MaxListLimit = 500

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
// The "none" driver disables persistence and returns a nil repository.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveAnalysis stores a finished analysis with tenant isolation.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, tenantID string, a *domain.Analysis) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: analysis ID is required", ErrInvalidInput)
	}

	var pros, cons, applied, metadata []byte
	for _, c := range []struct {
		dst *[]byte
		v   any
	}{
		{&pros, nonNil(a.Assessment.Pros)},
		{&cons, nonNil(a.Assessment.Cons)},
		{&applied, nonNil(a.CalibrationRules)},
		{&metadata, a.Metadata},
	} {
		data, err := json.Marshal(c.v)
		if err != nil {
			return fmt.Errorf("failed to encode analysis %s: %w", a.ID, err)
		}
		*c.dst = data
	}

	query := `
		INSERT INTO analyses (
			id, tenant_id, url, title, source, review_count, phishing_status,
			trust_score, base_trust_score, sentiment_score, bot_probability,
			safety_label, verdict, pros, cons, calibration_rules, timestamp, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, tenantID, a.URL, a.Title, a.Source, a.ReviewCount, string(a.PhishingStatus),
		a.Assessment.TrustScore, a.BaseTrustScore, a.Assessment.SentimentScore, a.Assessment.BotProbability,
		string(a.Assessment.SafetyLabel), a.Assessment.Verdict,
		string(pros), string(cons), string(applied),
		a.Timestamp.UTC(), string(metadata),
	)
	return err
}

const analysisColumns = `
	id, tenant_id, url, title, source, review_count, phishing_status,
	trust_score, base_trust_score, sentiment_score, bot_probability,
	safety_label, verdict, pros, cons, calibration_rules, timestamp, metadata
`

// GetAnalysis retrieves an analysis by ID with tenant isolation.
func (r *SQLRepository) GetAnalysis(ctx context.Context, tenantID string, id string) (*domain.Analysis, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + analysisColumns + ` FROM analyses WHERE tenant_id = ? AND id = ?`

	a, err := scanAnalysis(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAnalyses returns the newest analyses for a tenant, optionally for one URL.
func (r *SQLRepository) ListAnalyses(ctx context.Context, tenantID string, url string, limit int) ([]*domain.Analysis, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + analysisColumns + ` FROM analyses WHERE tenant_id = ?`)
	args := []any{tenantID}
	if url != "" {
		b.WriteString(` AND url = ?`)
		args = append(args, url)
	}
	b.WriteString(` ORDER BY timestamp DESC, id DESC LIMIT ` + strconv.Itoa(limit))

	rows, err := r.db.QueryContext(ctx, r.rebind(b.String()), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*domain.Analysis, error) {
	var a domain.Analysis
	var phishing, label, pros, cons, applied, metadata string

	err := row.Scan(
		&a.ID, &a.TenantID, &a.URL, &a.Title, &a.Source, &a.ReviewCount, &phishing,
		&a.Assessment.TrustScore, &a.BaseTrustScore, &a.Assessment.SentimentScore, &a.Assessment.BotProbability,
		&label, &a.Assessment.Verdict, &pros, &cons, &applied, &a.Timestamp, &metadata,
	)
	if err != nil {
		return nil, err
	}

	a.PhishingStatus = domain.DomainVerdict(phishing)
	a.Assessment.SafetyLabel = domain.SafetyLabel(label)
	for col, c := range map[string]struct {
		raw string
		dst any
	}{
		"pros":              {pros, &a.Assessment.Pros},
		"cons":              {cons, &a.Assessment.Cons},
		"calibration_rules": {applied, &a.CalibrationRules},
		"metadata":          {metadata, &a.Metadata},
	} {
		if c.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(c.raw), c.dst); err != nil {
			return nil, fmt.Errorf("analysis %s: bad %s column: %w", a.ID, col, err)
		}
	}
	a.Assessment.Pros = nonNil(a.Assessment.Pros)
	a.Assessment.Cons = nonNil(a.Assessment.Cons)
	if len(a.CalibrationRules) == 0 {
		a.CalibrationRules = nil
	}

	return &a, nil
}

// SaveCalibrationRule creates or replaces a calibration rule.
func (r *SQLRepository) SaveCalibrationRule(ctx context.Context, rule *domain.CalibrationRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO calibration_rules (
			id, name, description, expression, floor, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			floor = excluded.floor,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression, rule.Floor, enabled,
		now, now,
	)
	return err
}

// ListCalibrationRules returns every stored calibration rule, enabled or not.
func (r *SQLRepository) ListCalibrationRules(ctx context.Context) ([]domain.CalibrationRule, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), expression, floor, enabled
		FROM calibration_rules
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.CalibrationRule
	for rows.Next() {
		var rule domain.CalibrationRule
		var enabled int
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Description, &rule.Expression, &rule.Floor, &enabled); err != nil {
			return nil, err
		}
		rule.Enabled = enabled == 1
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
