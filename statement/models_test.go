package statement

import (
	"testing"
	"time"

	"github.com/xraph/dues/temporal"
)

func TestFormatNumber(t *testing.T) {
	p := Period{Year: 2024, Month: time.March}

	tests := []struct {
		name     string
		family   int
		revision int
		want     string
	}{
		{"first revision", 7, 1, "SHUL-2024-03-00007"},
		{"revision zero treated as first", 7, 0, "SHUL-2024-03-00007"},
		{"regenerated", 7, 2, "SHUL-2024-03-00007-r2"},
		{"wide ordinal", 123456, 1, "SHUL-2024-03-123456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatNumber("SHUL", p, tt.family, tt.revision); got != tt.want {
				t.Errorf("FormatNumber: got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPeriod(t *testing.T) {
	p := Period{Year: 2024, Month: time.February}

	start, end := p.Bounds()
	if !start.Equal(temporal.Date(2024, 2, 1)) || !end.Equal(temporal.Date(2024, 3, 1)) {
		t.Errorf("Bounds: got [%s, %s)", start, end)
	}
	if !p.LastDay().Equal(temporal.Date(2024, 2, 29)) {
		t.Errorf("LastDay: got %s", p.LastDay())
	}
	if p.String() != "2024-02" {
		t.Errorf("String: got %s", p.String())
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if err := (Period{Year: 2024, Month: 13}).Validate(); err == nil {
		t.Error("expected error for month 13")
	}
}
