package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// comingOfAgeFlagTrigger flags the member in the statement that inserts its
// coming-of-age charge.
const comingOfAgeFlagTrigger = `
CREATE TRIGGER IF NOT EXISTS trg_dues_charges_coming_of_age
AFTER INSERT ON dues_lifecycle_charges
WHEN NEW.trigger_key IS NOT NULL AND NEW.kind IN ('bar_mitzvah', 'bat_mitzvah')
BEGIN
    UPDATE dues_members SET coming_of_age_applied = 1 WHERE id = NEW.member_id;
END;
`

// Migrations is the grove migration group for the dues store (SQLite).
var Migrations = migrate.NewGroup("dues")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_dues_tenants",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dues_tenants (
    id                  TEXT PRIMARY KEY,
    code                TEXT NOT NULL,
    name                TEXT NOT NULL DEFAULT '',
    currency            TEXT NOT NULL,
    email               TEXT NOT NULL DEFAULT '',
    automations_enabled INTEGER NOT NULL DEFAULT 0,
    settings            TEXT NOT NULL DEFAULT '{}',
    created_at          TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at          TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_tenants_code ON dues_tenants (code);
CREATE INDEX IF NOT EXISTS idx_dues_tenants_automations ON dues_tenants (automations_enabled);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dues_tenants`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dues_families",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dues_families (
    id               TEXT PRIMARY KEY,
    tenant_id        TEXT NOT NULL,
    number           INTEGER NOT NULL,
    name             TEXT NOT NULL DEFAULT '',
    email            TEXT NOT NULL DEFAULT '',
    enrolled_at      TEXT NOT NULL,
    parent_family_id TEXT NOT NULL DEFAULT '',
    active           INTEGER NOT NULL DEFAULT 1,
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_families_number ON dues_families (tenant_id, number);
CREATE INDEX IF NOT EXISTS idx_dues_families_active ON dues_families (tenant_id, active);

CREATE TABLE IF NOT EXISTS dues_members (
    id                    TEXT PRIMARY KEY,
    family_id             TEXT NOT NULL,
    tenant_id             TEXT NOT NULL,
    first_name            TEXT NOT NULL DEFAULT '',
    last_name             TEXT NOT NULL DEFAULT '',
    birth_date            TEXT NOT NULL,
    lunar_birth_date      TEXT,
    gender                TEXT NOT NULL DEFAULT '',
    joined_at             TEXT NOT NULL,
    left_at               TEXT,
    coming_of_age_applied INTEGER NOT NULL DEFAULT 0,
    created_at            TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at            TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_dues_members_family ON dues_members (family_id);
CREATE INDEX IF NOT EXISTS idx_dues_members_tenant ON dues_members (tenant_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS dues_members;
DROP TABLE IF EXISTS dues_families;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dues_payment_plans",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dues_payment_plans (
    id         TEXT PRIMARY KEY,
    tenant_id  TEXT NOT NULL,
    name       TEXT NOT NULL DEFAULT '',
    age_start  INTEGER NOT NULL DEFAULT 0,
    age_end    INTEGER,
    annual_due INTEGER NOT NULL DEFAULT 0,
    currency   TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_dues_payment_plans_tenant ON dues_payment_plans (tenant_id, age_start);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dues_payment_plans`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dues_lifecycle",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dues_event_types (
    id         TEXT PRIMARY KEY,
    tenant_id  TEXT NOT NULL,
    kind       TEXT NOT NULL,
    name       TEXT NOT NULL DEFAULT '',
    amount     INTEGER NOT NULL DEFAULT 0,
    currency   TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_event_types_kind ON dues_event_types (tenant_id, kind);

CREATE TABLE IF NOT EXISTS dues_lifecycle_charges (
    id            TEXT PRIMARY KEY,
    tenant_id     TEXT NOT NULL,
    family_id     TEXT NOT NULL,
    member_id     TEXT NOT NULL DEFAULT '',
    event_type_id TEXT NOT NULL DEFAULT '',
    kind          TEXT NOT NULL,
    date          TEXT NOT NULL,
    amount        INTEGER NOT NULL DEFAULT 0,
    currency      TEXT NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    trigger_key   TEXT,
    created_at    TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_dues_charges_family ON dues_lifecycle_charges (family_id, date);
CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_charges_trigger ON dues_lifecycle_charges (trigger_key) WHERE trigger_key IS NOT NULL;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS dues_lifecycle_charges;
DROP TABLE IF EXISTS dues_event_types;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dues_payments",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dues_payments (
    id         TEXT PRIMARY KEY,
    tenant_id  TEXT NOT NULL,
    family_id  TEXT NOT NULL,
    member_id  TEXT NOT NULL DEFAULT '',
    amount     INTEGER NOT NULL DEFAULT 0,
    currency   TEXT NOT NULL,
    date       TEXT NOT NULL,
    year       INTEGER NOT NULL DEFAULT 0,
    type       TEXT NOT NULL DEFAULT 'other',
    notes      TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_dues_payments_family ON dues_payments (family_id, date);

CREATE TABLE IF NOT EXISTS dues_withdrawals (
    id         TEXT PRIMARY KEY,
    tenant_id  TEXT NOT NULL,
    family_id  TEXT NOT NULL,
    member_id  TEXT NOT NULL DEFAULT '',
    amount     INTEGER NOT NULL DEFAULT 0,
    currency   TEXT NOT NULL,
    date       TEXT NOT NULL,
    reason     TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_dues_withdrawals_family ON dues_withdrawals (family_id, date);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS dues_withdrawals;
DROP TABLE IF EXISTS dues_payments;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dues_statements",
			Version: "20240101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dues_statements (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    family_id       TEXT NOT NULL,
    number          TEXT NOT NULL,
    revision        INTEGER NOT NULL DEFAULT 1,
    period_start    TEXT NOT NULL,
    period_end      TEXT NOT NULL,
    currency        TEXT NOT NULL,
    opening_balance INTEGER NOT NULL DEFAULT 0,
    income          INTEGER NOT NULL DEFAULT 0,
    withdrawals     INTEGER NOT NULL DEFAULT 0,
    events          INTEGER NOT NULL DEFAULT 0,
    dues            INTEGER NOT NULL DEFAULT 0,
    closing_balance INTEGER NOT NULL DEFAULT 0,
    lines           TEXT NOT NULL DEFAULT '[]',
    status          TEXT NOT NULL DEFAULT 'issued',
    voided_at       TEXT,
    void_reason     TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_statements_number ON dues_statements (tenant_id, number);
CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_statements_live ON dues_statements (family_id, period_start, period_end) WHERE status <> 'void';
CREATE INDEX IF NOT EXISTS idx_dues_statements_tenant_period ON dues_statements (tenant_id, period_start);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dues_statements`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dues_coming_of_age_flag_trigger",
			Version: "20240101000007",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, comingOfAgeFlagTrigger)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TRIGGER IF EXISTS trg_dues_charges_coming_of_age`)
				return err
			},
		},
	)
}
