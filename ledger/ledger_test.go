package ledger

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/xraph/dues/family"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/lifecycle"
	"github.com/xraph/dues/payment"
	"github.com/xraph/dues/plan"
	"github.com/xraph/dues/temporal"
	"github.com/xraph/dues/types"
)

func flatSchedule(annual int64) plan.Schedule {
	return plan.Schedule{{Name: "all", AgeStart: 0, AnnualDue: types.USD(annual)}}
}

func testFamily(enrolled time.Time) (*family.Family, *family.Member) {
	f := &family.Family{ID: id.NewFamilyID(), EnrolledAt: enrolled, Active: true}
	m := &family.Member{
		ID:        id.NewMemberID(),
		FamilyID:  f.ID,
		FirstName: "Avi",
		BirthDate: temporal.Date(1980, 6, 1),
		JoinedAt:  enrolled,
	}
	return f, m
}

func TestComputeEndToEnd(t *testing.T) {
	f, m := testFamily(temporal.Date(2024, 1, 1))
	in := Input{
		Currency: "usd",
		Family:   f,
		Members:  []*family.Member{m},
		Schedule: flatSchedule(150000),
		Payments: []*payment.Payment{{
			ID: id.NewPaymentID(), FamilyID: f.ID, Amount: types.USD(150000), Date: temporal.Date(2024, 1, 15),
		}},
		Charges: []*lifecycle.Charge{{
			ID: id.NewLifecycleChargeID(), FamilyID: f.ID, Kind: lifecycle.KindWedding,
			Amount: types.USD(50000), Date: temporal.Date(2024, 3, 1),
		}},
	}

	b, err := Compute(in, temporal.Date(2024, 4, 1))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !b.Amount.Equal(types.USD(-50000)) {
		t.Fatalf("balance: got %v, want -$500.00", b.Amount)
	}

	wantKinds := []Kind{KindCharge, KindPayment, KindEvent}
	if len(b.Transactions) != len(wantKinds) {
		t.Fatalf("transactions: got %d, want %d", len(b.Transactions), len(wantKinds))
	}
	for i, k := range wantKinds {
		if b.Transactions[i].Kind != k {
			t.Errorf("transaction %d: got %s, want %s", i, b.Transactions[i].Kind, k)
		}
	}

	unpaid, ok := b.OldestUnpaid()
	if !ok {
		t.Fatal("expected an unpaid debit")
	}
	if !unpaid.Transaction.Date.Equal(temporal.Date(2024, 3, 1)) {
		t.Errorf("oldest unpaid: got %s, want 2024-03-01", unpaid.Transaction.Date)
	}
	if !unpaid.Outstanding.Equal(types.USD(50000)) {
		t.Errorf("outstanding: got %v", unpaid.Outstanding)
	}
}

func TestComputeSameDayOrdering(t *testing.T) {
	f, m := testFamily(temporal.Date(2024, 1, 1))
	in := Input{
		Currency: "usd",
		Family:   f,
		Members:  []*family.Member{m},
		Schedule: flatSchedule(120000),
		Payments: []*payment.Payment{{
			ID: id.NewPaymentID(), Amount: types.USD(120000), Date: temporal.Date(2024, 1, 1),
		}},
	}

	b, err := Compute(in, temporal.Date(2024, 1, 1))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !b.Amount.IsZero() {
		t.Errorf("balance: got %v, want 0", b.Amount)
	}
	if len(b.Transactions) != 2 || b.Transactions[0].Kind != KindCharge || b.Transactions[1].Kind != KindPayment {
		t.Errorf("ordering: got %+v", b.Transactions)
	}
	if _, ok := b.OldestUnpaid(); ok {
		t.Error("expected every debit covered")
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	f, m := testFamily(temporal.Date(2020, 3, 10))
	day := temporal.Date(2022, 5, 5)
	in := Input{
		Currency: "usd",
		Family:   f,
		Members:  []*family.Member{m},
		Schedule: flatSchedule(1000),
		Payments: []*payment.Payment{
			{ID: id.NewPaymentID(), Amount: types.USD(300), Date: day},
			{ID: id.NewPaymentID(), Amount: types.USD(200), Date: day},
		},
		Withdrawals: []*payment.Withdrawal{
			{ID: id.NewWithdrawalID(), Amount: types.USD(50), Date: day, Reason: "kiddush"},
		},
	}

	first, err := Compute(in, temporal.Date(2023, 1, 1))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	// Reverse the inputs; the output must not depend on input order.
	in.Payments[0], in.Payments[1] = in.Payments[1], in.Payments[0]
	second, err := Compute(in, temporal.Date(2023, 1, 1))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ:\n%+v\n%+v", first, second)
	}
}

func TestAnnualChargeDates(t *testing.T) {
	f, m := testFamily(temporal.Date(2021, 9, 15))
	in := Input{Currency: "usd", Family: f, Members: []*family.Member{m}, Schedule: flatSchedule(100)}

	b, err := Compute(in, temporal.Date(2023, 12, 31))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	want := []time.Time{temporal.Date(2021, 9, 15), temporal.Date(2022, 1, 1), temporal.Date(2023, 1, 1)}
	if len(b.Transactions) != len(want) {
		t.Fatalf("charges: got %d, want %d", len(b.Transactions), len(want))
	}
	for i, d := range want {
		if !b.Transactions[i].Date.Equal(d) {
			t.Errorf("charge %d: got %s, want %s", i, b.Transactions[i].Date, d)
		}
	}
}

func TestChargeDate(t *testing.T) {
	enrolled := temporal.Date(2020, 1, 1)
	left := temporal.Date(2024, 4, 1)

	tests := []struct {
		name   string
		joined time.Time
		left   *time.Time
		year   int
		want   time.Time
		wantOK bool
	}{
		{"from january", enrolled, nil, 2024, temporal.Date(2024, 1, 1), true},
		{"mid-year joiner", temporal.Date(2024, 3, 1), nil, 2024, temporal.Date(2024, 3, 1), true},
		{"joins after the year", temporal.Date(2025, 2, 1), nil, 2024, time.Time{}, false},
		{"left before the due day", temporal.Date(2024, 6, 1), &left, 2024, time.Time{}, false},
		{"left after the due day", enrolled, &left, 2024, temporal.Date(2024, 1, 1), true},
		{"left in an earlier year", enrolled, &left, 2025, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &family.Member{BirthDate: temporal.Date(1980, 6, 1), JoinedAt: tt.joined, LeftAt: tt.left}
			got, ok := ChargeDate(enrolled, m, tt.year)
			if ok != tt.wantOK || !got.Equal(tt.want) {
				t.Errorf("ChargeDate(%d) = %s, %v; want %s, %v", tt.year, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestAnnualChargeFollowsAge(t *testing.T) {
	end := func(n int) *int { return &n }
	f := &family.Family{ID: id.NewFamilyID(), EnrolledAt: temporal.Date(2020, 1, 1)}
	m := &family.Member{ID: id.NewMemberID(), BirthDate: temporal.Date(2015, 1, 1), JoinedAt: f.EnrolledAt}
	in := Input{
		Currency: "usd",
		Family:   f,
		Members:  []*family.Member{m},
		Schedule: plan.Schedule{
			{Name: "child", AgeStart: 0, AgeEnd: end(9), AnnualDue: types.USD(0)},
			{Name: "adult", AgeStart: 9, AnnualDue: types.USD(500)},
		},
	}

	b, err := Compute(in, temporal.Date(2025, 6, 1))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	// Ages 5..8 fall in the zero bracket; 2024 (age 9) and 2025 (age 10) are charged.
	if len(b.Transactions) != 2 || !b.Amount.Equal(types.USD(-1000)) {
		t.Errorf("got %d transactions, balance %v", len(b.Transactions), b.Amount)
	}
}

func TestComputeConfigurationGap(t *testing.T) {
	end := func(n int) *int { return &n }
	f, m := testFamily(temporal.Date(2024, 1, 1))
	m.BirthDate = temporal.Date(2017, 7, 1)
	in := Input{
		Currency: "usd",
		Family:   f,
		Members:  []*family.Member{m},
		Schedule: plan.Schedule{
			{Name: "young", AgeStart: 0, AgeEnd: end(5), AnnualDue: types.USD(0)},
			{Name: "adult", AgeStart: 9, AnnualDue: types.USD(100)},
		},
	}

	_, err := Compute(in, temporal.Date(2024, 2, 1))
	if !errors.Is(err, plan.ErrNoBracket) {
		t.Fatalf("expected ErrNoBracket, got %v", err)
	}
	var ce *ChargeError
	if !errors.As(err, &ce) || ce.Age != 6 || ce.Year != 2024 {
		t.Errorf("expected ChargeError for age 6 in 2024, got %v", err)
	}
}

func TestComputeMemberScope(t *testing.T) {
	f, a := testFamily(temporal.Date(2024, 1, 1))
	b := &family.Member{ID: id.NewMemberID(), BirthDate: temporal.Date(1985, 1, 1), JoinedAt: f.EnrolledAt}
	in := Input{
		Currency: "usd",
		Family:   f,
		Members:  []*family.Member{a, b},
		Schedule: flatSchedule(1000),
		Payments: []*payment.Payment{
			{ID: id.NewPaymentID(), MemberID: a.ID, Amount: types.USD(400), Date: temporal.Date(2024, 2, 1)},
			{ID: id.NewPaymentID(), Amount: types.USD(100), Date: temporal.Date(2024, 2, 1)},
		},
		Member: a.ID,
	}

	bal, err := Compute(in, temporal.Date(2024, 12, 31))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !bal.Amount.Equal(types.USD(-600)) {
		t.Errorf("member balance: got %v, want -$6.00", bal.Amount)
	}
}

func TestComputeStopsAtLeftAt(t *testing.T) {
	f, m := testFamily(temporal.Date(2020, 1, 1))
	left := temporal.Date(2022, 1, 1)
	m.LeftAt = &left
	in := Input{Currency: "usd", Family: f, Members: []*family.Member{m}, Schedule: flatSchedule(100)}

	b, err := Compute(in, temporal.Date(2024, 1, 1))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(b.Transactions) != 2 {
		t.Errorf("charges: got %d, want 2 (2020, 2021)", len(b.Transactions))
	}
}

func TestComputeCurrencyMismatch(t *testing.T) {
	f, m := testFamily(temporal.Date(2024, 1, 1))
	in := Input{
		Currency: "usd",
		Family:   f,
		Members:  []*family.Member{m},
		Schedule: flatSchedule(100),
		Payments: []*payment.Payment{{ID: id.NewPaymentID(), Amount: types.ILS(100), Date: temporal.Date(2024, 1, 2)}},
	}
	if _, err := Compute(in, temporal.Date(2024, 2, 1)); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("expected ErrCurrencyMismatch, got %v", err)
	}
}

func TestBetweenAndSummaries(t *testing.T) {
	f, m := testFamily(temporal.Date(2024, 1, 1))
	in := Input{
		Currency: "usd",
		Family:   f,
		Members:  []*family.Member{m},
		Schedule: flatSchedule(1200),
		Payments: []*payment.Payment{
			{ID: id.NewPaymentID(), Amount: types.USD(500), Date: temporal.Date(2024, 2, 10)},
			{ID: id.NewPaymentID(), Amount: types.USD(700), Date: temporal.Date(2024, 3, 1)},
		},
		Withdrawals: []*payment.Withdrawal{
			{ID: id.NewWithdrawalID(), Amount: types.USD(30), Date: temporal.Date(2024, 2, 29)},
		},
	}

	b, err := Compute(in, temporal.Date(2024, 3, 31))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	feb := b.Between(temporal.Date(2024, 2, 1), temporal.Date(2024, 3, 1))
	if len(feb) != 2 {
		t.Fatalf("february: got %d transactions, want 2", len(feb))
	}

	sum := Summarize("usd", feb)
	if !sum.Payments.Equal(types.USD(500)) || !sum.Withdrawals.Equal(types.USD(30)) || !sum.Net.Equal(types.USD(470)) {
		t.Errorf("Summarize: got %+v", sum)
	}

	running := RunningBalances(types.USD(-1200), feb)
	if !running[1].Equal(types.USD(-730)) {
		t.Errorf("running: got %v, want -$7.30", running[1])
	}
}

func TestOldestUnpaidPartial(t *testing.T) {
	b := &Balance{Transactions: []Transaction{
		{Kind: KindCharge, Date: temporal.Date(2024, 1, 1), Amount: types.USD(1000)},
		{Kind: KindPayment, Date: temporal.Date(2024, 1, 5), Amount: types.USD(600)},
		{Kind: KindEvent, Date: temporal.Date(2024, 2, 1), Amount: types.USD(300)},
	}}

	u, ok := b.OldestUnpaid()
	if !ok {
		t.Fatal("expected unpaid")
	}
	if u.Transaction.Kind != KindCharge || !u.Outstanding.Equal(types.USD(400)) {
		t.Errorf("got %s outstanding %v", u.Transaction.Kind, u.Outstanding)
	}
}
