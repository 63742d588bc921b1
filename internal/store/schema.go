package store

// Both schemas describe the same tables. Dates are DATE in PostgreSQL and
// YYYY-MM-DD TEXT in SQLite; shift may be NULL on legacy rows and is read as MORNING.

const postgresSchema = `
CREATE TABLE IF NOT EXISTS events (
	id            BIGSERIAL PRIMARY KEY,
	technician_id TEXT NOT NULL,
	title         TEXT NOT NULL,
	description   TEXT,
	date          DATE NOT NULL,
	shift         TEXT,
	all_day       BOOLEAN NOT NULL DEFAULT FALSE,
	client_name   TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS events_technician_date ON events (technician_id, date);

CREATE TABLE IF NOT EXISTS visits (
	id               BIGSERIAL PRIMARY KEY,
	technician_id    TEXT NOT NULL,
	title            TEXT NOT NULL,
	description      TEXT,
	date             DATE NOT NULL,
	shift            TEXT,
	all_day          BOOLEAN NOT NULL DEFAULT FALSE,
	unit_name        TEXT,
	sector_name      TEXT,
	responsible_name TEXT,
	next_visit_date  DATE,
	next_visit_shift TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS visits_technician_date ON visits (technician_id, date);

CREATE TABLE IF NOT EXISTS visit_reschedules (
	id             BIGSERIAL PRIMARY KEY,
	technician_id  TEXT NOT NULL,
	root_visit_id  BIGINT NOT NULL REFERENCES visits (id) ON DELETE CASCADE,
	source_kind    TEXT NOT NULL,
	source_id      BIGINT NOT NULL,
	original_date  DATE NOT NULL,
	original_shift TEXT NOT NULL,
	date           DATE NOT NULL,
	shift          TEXT NOT NULL,
	all_day        BOOLEAN NOT NULL DEFAULT FALSE,
	reason         TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source_kind, source_id)
);
CREATE INDEX IF NOT EXISTS visit_reschedules_technician_date ON visit_reschedules (technician_id, date);

CREATE TABLE IF NOT EXISTS calendar_tokens (
	technician_id TEXT PRIMARY KEY,
	token         TEXT NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	technician_id TEXT NOT NULL,
	title         TEXT NOT NULL,
	description   TEXT,
	date          TEXT NOT NULL,
	shift         TEXT,
	all_day       BOOLEAN NOT NULL DEFAULT 0,
	client_name   TEXT,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS events_technician_date ON events (technician_id, date);

CREATE TABLE IF NOT EXISTS visits (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	technician_id    TEXT NOT NULL,
	title            TEXT NOT NULL,
	description      TEXT,
	date             TEXT NOT NULL,
	shift            TEXT,
	all_day          BOOLEAN NOT NULL DEFAULT 0,
	unit_name        TEXT,
	sector_name      TEXT,
	responsible_name TEXT,
	next_visit_date  TEXT,
	next_visit_shift TEXT,
	created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS visits_technician_date ON visits (technician_id, date);

CREATE TABLE IF NOT EXISTS visit_reschedules (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	technician_id  TEXT NOT NULL,
	root_visit_id  INTEGER NOT NULL REFERENCES visits (id) ON DELETE CASCADE,
	source_kind    TEXT NOT NULL,
	source_id      INTEGER NOT NULL,
	original_date  TEXT NOT NULL,
	original_shift TEXT NOT NULL,
	date           TEXT NOT NULL,
	shift          TEXT NOT NULL,
	all_day        BOOLEAN NOT NULL DEFAULT 0,
	reason         TEXT,
	created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (source_kind, source_id)
);
CREATE INDEX IF NOT EXISTS visit_reschedules_technician_date ON visit_reschedules (technician_id, date);

CREATE TABLE IF NOT EXISTS calendar_tokens (
	technician_id TEXT PRIMARY KEY,
	token         TEXT NOT NULL,
	updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
