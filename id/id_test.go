package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/dues/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"TenantID", id.NewTenantID, "tnt_"},
		{"FamilyID", id.NewFamilyID, "fam_"},
		{"MemberID", id.NewMemberID, "mbr_"},
		{"PaymentPlanID", id.NewPaymentPlanID, "plan_"},
		{"EventTypeID", id.NewEventTypeID, "evtt_"},
		{"LifecycleChargeID", id.NewLifecycleChargeID, "lch_"},
		{"PaymentID", id.NewPaymentID, "pay_"},
		{"WithdrawalID", id.NewWithdrawalID, "wdr_"},
		{"StatementID", id.NewStatementID, "stmt_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"TenantID", id.NewTenantID, id.ParseTenantID},
		{"FamilyID", id.NewFamilyID, id.ParseFamilyID},
		{"MemberID", id.NewMemberID, id.ParseMemberID},
		{"PaymentPlanID", id.NewPaymentPlanID, id.ParsePaymentPlanID},
		{"EventTypeID", id.NewEventTypeID, id.ParseEventTypeID},
		{"LifecycleChargeID", id.NewLifecycleChargeID, id.ParseLifecycleChargeID},
		{"PaymentID", id.NewPaymentID, id.ParsePaymentID},
		{"WithdrawalID", id.NewWithdrawalID, id.ParseWithdrawalID},
		{"StatementID", id.NewStatementID, id.ParseStatementID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseFamilyID rejects mbr_", id.NewMemberID().String(), id.ParseFamilyID},
		{"ParseMemberID rejects fam_", id.NewFamilyID().String(), id.ParseMemberID},
		{"ParsePaymentID rejects wdr_", id.NewWithdrawalID().String(), id.ParsePaymentID},
		{"ParseStatementID rejects tnt_", id.NewTenantID().String(), id.ParseStatementID},
		{"ParseTenantID rejects plan_", id.NewPaymentPlanID().String(), id.ParseTenantID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.parseFn(tt.input); err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestIs(t *testing.T) {
	fam := id.NewFamilyID()
	if !fam.Is(id.PrefixFamily) {
		t.Error("family ID should carry the fam prefix")
	}
	if fam.Is(id.PrefixMember) {
		t.Error("family ID should not report the mbr prefix")
	}
	if id.Nil.Is(id.PrefixFamily) {
		t.Error("nil ID should not carry any prefix")
	}
}

func TestParseOptional(t *testing.T) {
	got, err := id.ParseOptional("")
	if err != nil {
		t.Fatalf("ParseOptional(\"\") failed: %v", err)
	}
	if !got.IsNil() {
		t.Error("expected nil ID for empty input")
	}

	if _, err := id.ParseOptional("not-an-id"); err == nil {
		t.Error("expected error for malformed input")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.NewStatementID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if unmarshalErr := restored.UnmarshalText(data); unmarshalErr != nil {
		t.Fatalf("UnmarshalText failed: %v", unmarshalErr)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}

	var nilID id.ID
	data, err = nilID.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText(nil) failed: %v", err)
	}
	var restored2 id.ID
	if err := restored2.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText(nil) failed: %v", err)
	}
	if !restored2.IsNil() {
		t.Error("expected nil after round-trip of nil ID")
	}
}
