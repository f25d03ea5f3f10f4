package db

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	image TEXT,
	role TEXT NOT NULL DEFAULT 'USER' CHECK (role IN ('USER', 'ADMIN')),
	points BIGINT NOT NULL DEFAULT 0 CHECK (points >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS devices (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	key_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_seen_at TIMESTAMPTZ,
	revoked_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS qr_tokens (
	token TEXT PRIMARY KEY,
	points BIGINT NOT NULL DEFAULT 0 CHECK (points >= 0),
	pet_big INTEGER NOT NULL DEFAULT 0 CHECK (pet_big >= 0),
	pet_small INTEGER NOT NULL DEFAULT 0 CHECK (pet_small >= 0),
	used BOOLEAN NOT NULL DEFAULT FALSE,
	used_at TIMESTAMPTZ,
	used_by TEXT,
	credited_at TIMESTAMPTZ,
	device_id TEXT REFERENCES devices(id) ON DELETE SET NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

ALTER TABLE qr_tokens ADD COLUMN IF NOT EXISTS credited_at TIMESTAMPTZ;

CREATE INDEX IF NOT EXISTS idx_qr_tokens_expires ON qr_tokens(expires_at) WHERE used = FALSE;

CREATE TABLE IF NOT EXISTS rewards (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	points BIGINT NOT NULL CHECK (points > 0),
	stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
	description TEXT,
	image TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS redemptions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	reward_id TEXT NOT NULL,
	points BIGINT NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'SHIPPED', 'COMPLETED')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_redemptions_user ON redemptions(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS points_ledger (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	delta BIGINT NOT NULL,
	reason TEXT NOT NULL CHECK (reason IN ('token_claim', 'manual_credit', 'redemption')),
	reference TEXT,
	balance_after BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_points_ledger_user ON points_ledger(user_id, created_at DESC);
`

// CreateSchema applies the idempotent schema. reward_id carries no foreign key so
// deleting a reward keeps its redemptions.
func CreateSchema(ctx context.Context, db DBTX) error {
	_, err := db.Exec(ctx, schema)
	return err
}
