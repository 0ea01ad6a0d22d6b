package history

// Schema is applied on open. The table is append-only; reports are never
// updated or deleted by the engine.
const Schema = `
CREATE TABLE IF NOT EXISTS reports (
	id           TEXT PRIMARY KEY,
	generated_at TIMESTAMP NOT NULL,
	status       TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_reports_generated_at ON reports(generated_at DESC);
`
