package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS emails (
	id          TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL,
	folder      TEXT NOT NULL,
	subject     TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	sender      TEXT NOT NULL DEFAULT '',
	recipients  TEXT NOT NULL DEFAULT '[]',
	date        DATETIME NOT NULL,
	uid         INTEGER NOT NULL DEFAULT 0,
	category    TEXT NOT NULL DEFAULT 'Uncategorized',
	indexed_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_emails_account ON emails(account_id);
CREATE INDEX IF NOT EXISTS idx_emails_folder ON emails(folder);
CREATE INDEX IF NOT EXISTS idx_emails_date ON emails(date);
CREATE INDEX IF NOT EXISTS idx_emails_account_folder_uid
	ON emails(account_id, folder, uid);

CREATE VIRTUAL TABLE IF NOT EXISTS emails_fts USING fts5(
	subject, body,
	content='emails', content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS emails_fts_insert AFTER INSERT ON emails BEGIN
	INSERT INTO emails_fts(rowid, subject, body)
	VALUES (new.rowid, new.subject, new.body);
END;

CREATE TRIGGER IF NOT EXISTS emails_fts_delete AFTER DELETE ON emails BEGIN
	INSERT INTO emails_fts(emails_fts, rowid, subject, body)
	VALUES ('delete', old.rowid, old.subject, old.body);
END;

CREATE TRIGGER IF NOT EXISTS emails_fts_update AFTER UPDATE ON emails BEGIN
	INSERT INTO emails_fts(emails_fts, rowid, subject, body)
	VALUES ('delete', old.rowid, old.subject, old.body);
	INSERT INTO emails_fts(rowid, subject, body)
	VALUES (new.rowid, new.subject, new.body);
END;

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
