package repository

// Schema definitions for the TruthLens database.
// Compatible with both SQLite and PostgreSQL.

const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    url TEXT NOT NULL,
    title TEXT NOT NULL,
    source TEXT NOT NULL,
    review_count INTEGER NOT NULL,
    phishing_status TEXT NOT NULL,
    trust_score INTEGER NOT NULL,
    base_trust_score INTEGER NOT NULL,
    sentiment_score REAL NOT NULL,
    bot_probability INTEGER NOT NULL,
    safety_label TEXT NOT NULL,
    verdict TEXT NOT NULL,
    pros TEXT NOT NULL,
    cons TEXT NOT NULL,
    calibration_rules TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_tenant ON analyses(tenant_id);
CREATE INDEX IF NOT EXISTS idx_analyses_url ON analyses(tenant_id, url);
CREATE INDEX IF NOT EXISTS idx_analyses_timestamp ON analyses(tenant_id, timestamp);
`

const schemaCalibrationRules = `
CREATE TABLE IF NOT EXISTS calibration_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    floor INTEGER NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAnalyses,
		schemaCalibrationRules,
	}
}
