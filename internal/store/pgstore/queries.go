package pgstore

const sqlSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	user_id      TEXT PRIMARY KEY,
	balance      BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
	total_earned BIGINT NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS transactions (
	id             BIGSERIAL PRIMARY KEY,
	transaction_id TEXT NOT NULL UNIQUE,
	sender_id      TEXT NOT NULL,
	receiver_id    TEXT NOT NULL,
	amount         BIGINT NOT NULL CHECK (amount > 0),
	type           TEXT NOT NULL,
	batch_id       TEXT,
	period_tag     TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions (sender_id);
CREATE INDEX IF NOT EXISTS idx_transactions_receiver ON transactions (receiver_id);
CREATE INDEX IF NOT EXISTS idx_transactions_batch ON transactions (batch_id);
CREATE TABLE IF NOT EXISTS voice_tracking (
	user_id   TEXT PRIMARY KEY,
	joined_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS voice_stats (
	user_id       TEXT NOT NULL,
	period        TEXT NOT NULL,
	total_seconds BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, period)
);
CREATE TABLE IF NOT EXISTS gambling_state (
	user_id              TEXT PRIMARY KEY,
	consecutive_non_wins BIGINT NOT NULL DEFAULT 0,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS jackpot_pool (
	name    TEXT PRIMARY KEY,
	balance BIGINT NOT NULL CHECK (balance >= 0)
);
CREATE TABLE IF NOT EXISTS lottery_tickets (
	id         BIGSERIAL PRIMARY KEY,
	user_id    TEXT NOT NULL,
	number     INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lottery_tickets_user ON lottery_tickets (user_id);
CREATE INDEX IF NOT EXISTS idx_lottery_tickets_number ON lottery_tickets (number);
CREATE TABLE IF NOT EXISTS server_config (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const sqlGetOrCreateAccount = `
INSERT INTO accounts (user_id) VALUES ($1)
ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
RETURNING balance, total_earned`

const sqlIncrementBalance = `
INSERT INTO accounts (user_id, balance, total_earned) VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET
	balance = accounts.balance + EXCLUDED.balance,
	total_earned = accounts.total_earned + EXCLUDED.total_earned,
	updated_at = now()
RETURNING balance, total_earned`

const sqlDecrementBalance = `
UPDATE accounts SET balance = balance - $2, updated_at = now()
WHERE user_id = $1 AND balance >= $2
RETURNING balance, total_earned`

const sqlCompareAndSetBalance = `
UPDATE accounts SET balance = $3, updated_at = now()
WHERE user_id = $1 AND balance = $2`

const sqlInsertTransaction = `
INSERT INTO transactions (transaction_id, sender_id, receiver_id, amount, type, batch_id, period_tag, description, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)`

const sqlTransactionColumns = `transaction_id, sender_id, receiver_id, amount, type, COALESCE(batch_id, ''), period_tag, description, created_at`

const sqlListTransactions = `
SELECT ` + sqlTransactionColumns + `
FROM transactions
WHERE sender_id = $1 OR receiver_id = $1
ORDER BY id DESC
LIMIT $2`

const sqlListTransactionsByBatch = `
SELECT ` + sqlTransactionColumns + `
FROM transactions
WHERE batch_id = $1 AND type = $2
ORDER BY id ASC`

const sqlDeleteTransactionsByBatch = `DELETE FROM transactions WHERE batch_id = $1`

const sqlInsertVoiceSession = `
INSERT INTO voice_tracking (user_id, joined_at) VALUES ($1, $2)
ON CONFLICT (user_id) DO NOTHING`

const sqlGetVoiceSession = `SELECT joined_at FROM voice_tracking WHERE user_id = $1`

const sqlDeleteVoiceSession = `DELETE FROM voice_tracking WHERE user_id = $1`

const sqlListVoiceSessions = `SELECT user_id, joined_at FROM voice_tracking ORDER BY joined_at ASC`

const sqlAddVoiceSeconds = `
INSERT INTO voice_stats (user_id, period, total_seconds) VALUES ($1, $2, $3)
ON CONFLICT (user_id, period) DO UPDATE SET total_seconds = voice_stats.total_seconds + EXCLUDED.total_seconds`

const sqlGetVoiceStats = `SELECT total_seconds FROM voice_stats WHERE user_id = $1 AND period = $2`

const sqlGetGamblingState = `SELECT consecutive_non_wins FROM gambling_state WHERE user_id = $1`

const sqlSaveGamblingState = `
INSERT INTO gambling_state (user_id, consecutive_non_wins) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET consecutive_non_wins = EXCLUDED.consecutive_non_wins, updated_at = now()`

const sqlEnsureJackpot = `
INSERT INTO jackpot_pool (name, balance) VALUES ($1, $2)
ON CONFLICT (name) DO NOTHING`

const sqlGetJackpot = `SELECT balance FROM jackpot_pool WHERE name = $1`

const sqlIncrementJackpot = `
UPDATE jackpot_pool SET balance = balance + $2 WHERE name = $1
RETURNING balance`

const sqlDrainJackpot = `
WITH current AS (
	SELECT balance FROM jackpot_pool WHERE name = $1 FOR UPDATE
)
UPDATE jackpot_pool SET balance = $2
FROM current
WHERE jackpot_pool.name = $1
RETURNING current.balance`

const sqlInsertLotteryTickets = `
INSERT INTO lottery_tickets (user_id, number, created_at)
SELECT * FROM unnest($1::text[], $2::int[], $3::timestamptz[])`

const sqlTicketColumns = `id, user_id, number, created_at`

const sqlListLotteryTickets = `
SELECT ` + sqlTicketColumns + ` FROM lottery_tickets WHERE user_id = $1 ORDER BY number ASC, id ASC`

const sqlListLotteryTicketsByNumber = `
SELECT ` + sqlTicketColumns + ` FROM lottery_tickets WHERE number = $1 ORDER BY id ASC`

const sqlCountLotteryTickets = `SELECT COUNT(*) FROM lottery_tickets`

const sqlLotteryTicketAt = `
SELECT ` + sqlTicketColumns + ` FROM lottery_tickets ORDER BY id ASC OFFSET $1 LIMIT 1`

const sqlClearLotteryTickets = `DELETE FROM lottery_tickets`

const sqlListConfig = `SELECT key, value::text FROM server_config ORDER BY key ASC`

const sqlPutConfig = `
INSERT INTO server_config (key, value) VALUES ($1, $2::jsonb)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
