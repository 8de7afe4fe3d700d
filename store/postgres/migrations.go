package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the dues store (PostgreSQL).
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
    automations_enabled BOOLEAN NOT NULL DEFAULT FALSE,
    settings            JSONB NOT NULL DEFAULT '{}',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    number           INT NOT NULL,
    name             TEXT NOT NULL DEFAULT '',
    email            TEXT NOT NULL DEFAULT '',
    enrolled_at      DATE NOT NULL,
    parent_family_id TEXT NOT NULL DEFAULT '',
    active           BOOLEAN NOT NULL DEFAULT TRUE,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_families_number ON dues_families (tenant_id, number);
CREATE INDEX IF NOT EXISTS idx_dues_families_active ON dues_families (tenant_id, active);

CREATE TABLE IF NOT EXISTS dues_members (
    id                    TEXT PRIMARY KEY,
    family_id             TEXT NOT NULL,
    tenant_id             TEXT NOT NULL,
    first_name            TEXT NOT NULL DEFAULT '',
    last_name             TEXT NOT NULL DEFAULT '',
    birth_date            DATE NOT NULL,
    lunar_birth_date      JSONB,
    gender                TEXT NOT NULL DEFAULT '',
    joined_at             DATE NOT NULL,
    left_at               DATE,
    coming_of_age_applied BOOLEAN NOT NULL DEFAULT FALSE,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    age_start  INT NOT NULL DEFAULT 0,
    age_end    INT,
    annual_due BIGINT NOT NULL DEFAULT 0,
    currency   TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    amount     BIGINT NOT NULL DEFAULT 0,
    currency   TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_event_types_kind ON dues_event_types (tenant_id, kind);

CREATE TABLE IF NOT EXISTS dues_lifecycle_charges (
    id            TEXT PRIMARY KEY,
    tenant_id     TEXT NOT NULL,
    family_id     TEXT NOT NULL,
    member_id     TEXT NOT NULL DEFAULT '',
    event_type_id TEXT NOT NULL DEFAULT '',
    kind          TEXT NOT NULL,
    date          DATE NOT NULL,
    amount        BIGINT NOT NULL DEFAULT 0,
    currency      TEXT NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    trigger_key   TEXT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    amount     BIGINT NOT NULL DEFAULT 0,
    currency   TEXT NOT NULL,
    date       DATE NOT NULL,
    year       INT NOT NULL DEFAULT 0,
    type       TEXT NOT NULL DEFAULT 'other',
    notes      TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_dues_payments_family ON dues_payments (family_id, date);

CREATE TABLE IF NOT EXISTS dues_withdrawals (
    id         TEXT PRIMARY KEY,
    tenant_id  TEXT NOT NULL,
    family_id  TEXT NOT NULL,
    member_id  TEXT NOT NULL DEFAULT '',
    amount     BIGINT NOT NULL DEFAULT 0,
    currency   TEXT NOT NULL,
    date       DATE NOT NULL,
    reason     TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    revision        INT NOT NULL DEFAULT 1,
    period_start    DATE NOT NULL,
    period_end      DATE NOT NULL,
    currency        TEXT NOT NULL,
    opening_balance BIGINT NOT NULL DEFAULT 0,
    income          BIGINT NOT NULL DEFAULT 0,
    withdrawals     BIGINT NOT NULL DEFAULT 0,
    events          BIGINT NOT NULL DEFAULT 0,
    dues            BIGINT NOT NULL DEFAULT 0,
    closing_balance BIGINT NOT NULL DEFAULT 0,
    lines           JSONB NOT NULL DEFAULT '[]',
    status          TEXT NOT NULL DEFAULT 'issued',
    voided_at       TIMESTAMPTZ,
    void_reason     TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
	)
}
