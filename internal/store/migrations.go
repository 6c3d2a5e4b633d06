package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create triages and resources",
		SQL: `
			CREATE TABLE triages (
				id           TEXT PRIMARY KEY,
				subject      TEXT NOT NULL DEFAULT '',
				body         TEXT NOT NULL DEFAULT '',
				backend      TEXT NOT NULL DEFAULT '',
				model        TEXT NOT NULL DEFAULT '',
				thread_id    TEXT NOT NULL DEFAULT '',
				run_id       TEXT NOT NULL DEFAULT '',
				outcome      TEXT NOT NULL DEFAULT '',
				reply        TEXT NOT NULL DEFAULT '',
				attempts     INTEGER NOT NULL DEFAULT 0,
				error        TEXT NOT NULL DEFAULT '',
				started_at   TEXT NOT NULL,
				finished_at  TEXT
			);

			CREATE INDEX idx_triages_started ON triages (started_at);

			CREATE TABLE resources (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				triage_id   TEXT NOT NULL DEFAULT '',
				kind        TEXT NOT NULL,
				remote_id   TEXT NOT NULL,
				name        TEXT NOT NULL DEFAULT '',
				backend     TEXT NOT NULL DEFAULT '',
				created_at  TEXT NOT NULL,
				deleted_at  TEXT
			);

			CREATE UNIQUE INDEX idx_resources_remote ON resources (kind, remote_id);
			CREATE INDEX idx_resources_outstanding ON resources (deleted_at);
		`,
	},
	{
		Version: 2,
		Name:    "record token usage on triages",
		SQL: `
			ALTER TABLE triages ADD COLUMN prompt_tokens INTEGER NOT NULL DEFAULT 0;
			ALTER TABLE triages ADD COLUMN completion_tokens INTEGER NOT NULL DEFAULT 0;
		`,
	},
	{
		Version: 3,
		Name:    "record the project endpoint of each resource",
		SQL: `
			ALTER TABLE resources ADD COLUMN endpoint TEXT NOT NULL DEFAULT '';
		`,
	},
}
