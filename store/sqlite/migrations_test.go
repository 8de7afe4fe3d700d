package sqlite

import (
	"database/sql"
	"testing"
)

func TestComingOfAgeFlagTrigger(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range []string{
		`CREATE TABLE dues_members (id TEXT PRIMARY KEY, coming_of_age_applied INTEGER NOT NULL DEFAULT 0)`,
		`CREATE TABLE dues_lifecycle_charges (id TEXT PRIMARY KEY, member_id TEXT, kind TEXT NOT NULL, trigger_key TEXT)`,
		`CREATE UNIQUE INDEX idx_dues_charges_trigger ON dues_lifecycle_charges (trigger_key) WHERE trigger_key IS NOT NULL`,
		comingOfAgeFlagTrigger,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}

	tests := []struct {
		name string
		kind string
		key  any
		want bool
	}{
		{"keyed bar mitzvah", "bar_mitzvah", "m1:bar_mitzvah", true},
		{"keyed bat mitzvah", "bat_mitzvah", "m2:bat_mitzvah", true},
		{"keyed wedding", "wedding", "m3:wedding", false},
		{"manual bar mitzvah", "bar_mitzvah", nil, false},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			memberID := tt.name
			if _, err := db.Exec(`INSERT INTO dues_members (id) VALUES (?)`, memberID); err != nil {
				t.Fatalf("insert member: %v", err)
			}
			if _, err := db.Exec(`INSERT INTO dues_lifecycle_charges (id, member_id, kind, trigger_key) VALUES (?, ?, ?, ?)`,
				i, memberID, tt.kind, tt.key); err != nil {
				t.Fatalf("insert charge: %v", err)
			}

			var flagged bool
			if err := db.QueryRow(`SELECT coming_of_age_applied FROM dues_members WHERE id = ?`, memberID).Scan(&flagged); err != nil {
				t.Fatalf("select: %v", err)
			}
			if flagged != tt.want {
				t.Errorf("coming_of_age_applied: got %v, want %v", flagged, tt.want)
			}
		})
	}

	// A skipped duplicate leaves a cleared flag alone.
	if _, err := db.Exec(`UPDATE dues_members SET coming_of_age_applied = 0 WHERE id = ?`, "keyed bar mitzvah"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	res, err := db.Exec(`INSERT INTO dues_lifecycle_charges (id, member_id, kind, trigger_key) VALUES ('dup', ?, 'bar_mitzvah', 'm1:bar_mitzvah')
ON CONFLICT (trigger_key) WHERE trigger_key IS NOT NULL DO NOTHING`, "keyed bar mitzvah")
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 0 {
		t.Errorf("duplicate insert: %d rows affected, want 0", n)
	}
	var flagged bool
	if err := db.QueryRow(`SELECT coming_of_age_applied FROM dues_members WHERE id = ?`, "keyed bar mitzvah").Scan(&flagged); err != nil {
		t.Fatalf("select: %v", err)
	}
	if flagged {
		t.Error("duplicate insert fired the trigger")
	}
}
