package types

import (
	"encoding/json"
	"testing"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"ILS", ILS(150000), 150000, "ils", "₪1500.00"},
		{"USD", USD(4900), 4900, "usd", "$49.00"},
		{"EUR", EUR(19900), 19900, "eur", "€199.00"},
		{"GBP", GBP(9900), 9900, "gbp", "£99.00"},
		{"Negative ILS", ILS(-50000), -50000, "ils", "-₪500.00"},
		{"Zero ILS", Zero("ILS"), 0, "ils", "₪0.00"},
		{"New lowercases", New(100, "USD"), 100, "usd", "$1.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return ILS(100).Add(ILS(200)) }, ILS(300)},
		{"Subtract", func() Money { return ILS(500).Subtract(ILS(200)) }, ILS(300)},
		{"Multiply", func() Money { return ILS(100).Multiply(3) }, ILS(300)},
		{"Negate", func() Money { return ILS(100).Negate() }, ILS(-100)},
		{"Abs negative", func() Money { return ILS(-100).Abs() }, ILS(100)},
		{"Min", func() Money { return ILS(-50).Min(ILS(50)) }, ILS(-50)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.op(); !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	_ = ILS(100).Add(USD(100))
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		input    string
		currency string
		want     Money
		wantErr  bool
	}{
		{"1500", "ils", ILS(150000), false},
		{"49.9", "usd", USD(4990), false},
		{" 0.01 ", "eur", EUR(1), false},
		{"-500", "ils", ILS(-50000), false},
		{"100", "jpy", New(100, "jpy"), false},
		{"1.005", "usd", Money{}, true},
		{"1.5", "jpy", Money{}, true},
		{"abc", "ils", Money{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input+"/"+tt.currency, func(t *testing.T) {
			got, err := ParseMoney(tt.input, tt.currency)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMoney: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseMoney: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMoneyFormatMajor(t *testing.T) {
	tests := []struct {
		money    Money
		expected string
	}{
		{ILS(150000), "1500.00"},
		{USD(1), "0.01"},
		{USD(0), "0.00"},
		{USD(-4900), "-49.00"},
		{USD(-1), "-0.01"},
		{New(12345, "jpy"), "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.money.FormatMajor(); got != tt.expected {
				t.Errorf("FormatMajor: got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	m := ILS(150000)

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	expected := `{"amount":150000,"currency":"ils","display":"₪1500.00"}`
	if string(data) != expected {
		t.Errorf("JSON: got %s, want %s", string(data), expected)
	}

	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !back.Equal(m) {
		t.Errorf("Unmarshal: got %v, want %v", back, m)
	}
}

func TestSum(t *testing.T) {
	tests := []struct {
		name     string
		values   []Money
		expected Money
	}{
		{"Empty", nil, Zero("ils")},
		{"Single", []Money{ILS(100)}, ILS(100)},
		{"With negatives", []Money{ILS(100), ILS(-50), ILS(200)}, ILS(250)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := Sum("ils", tt.values...); !result.Equal(tt.expected) {
				t.Errorf("Sum: got %v, want %v", result, tt.expected)
			}
		})
	}
}

func BenchmarkMoneyString(b *testing.B) {
	m := ILS(150000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.String()
	}
}
