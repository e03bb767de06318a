package repository

// Schema definitions for the FraudGuard client store.
// Compatible with both SQLite and PostgreSQL.

// schemaClientStorage is the durable key/value area that stands in for
// browser storage. One row per (profile, name); the credential lives
// under name "token".
const schemaClientStorage = `
CREATE TABLE IF NOT EXISTS client_storage (
    profile TEXT NOT NULL,
    name TEXT NOT NULL,
    value TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (profile, name)
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaClientStorage,
	}
}
