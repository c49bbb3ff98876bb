package store

// Schema holds the invitation, relationship and sweep tables. Ledger tables
// live in ledger.Schema and are applied alongside.
const Schema = `
CREATE TABLE IF NOT EXISTS invitations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    inviter_wallet TEXT NOT NULL,
    invitee_wallet TEXT NOT NULL,
    pair_key TEXT NOT NULL,
    date_type TEXT NOT NULL,
    venue TEXT NOT NULL,
    message TEXT NOT NULL,
    reply TEXT NOT NULL DEFAULT '',
    stake INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'pending',
    conversation TEXT,
    average_rating REAL,
    pmon_awarded REAL,
    charm_awarded REAL,
    compatibility REAL,
    created_at INTEGER NOT NULL,
    responded_at INTEGER,
    completed_at INTEGER,
    expired_at INTEGER,
    CHECK (inviter_wallet <> invitee_wallet)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_invitations_active_pair
    ON invitations(pair_key) WHERE status IN ('pending', 'accepted');
CREATE INDEX IF NOT EXISTS idx_invitations_status ON invitations(status, created_at);
CREATE INDEX IF NOT EXISTS idx_invitations_inviter ON invitations(inviter_wallet);
CREATE INDEX IF NOT EXISTS idx_invitations_invitee ON invitations(invitee_wallet);

CREATE TABLE IF NOT EXISTS relationships (
    wallet_a TEXT NOT NULL,
    wallet_b TEXT NOT NULL,
    completed_dates INTEGER NOT NULL DEFAULT 0,
    affinity REAL NOT NULL DEFAULT 0,
    last_date_at INTEGER,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (wallet_a, wallet_b),
    CHECK (wallet_a < wallet_b)
);

CREATE TABLE IF NOT EXISTS sweep_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_name TEXT UNIQUE NOT NULL,
    last_status TEXT DEFAULT '',
    last_summary TEXT DEFAULT '',
    last_run_at INTEGER,
    run_count INTEGER NOT NULL DEFAULT 0
);
`
