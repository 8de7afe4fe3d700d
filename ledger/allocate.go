package ledger

import "github.com/xraph/dues/types"

// Unpaid is the oldest debit not covered by credits.
type Unpaid struct {
	Transaction Transaction
	// Outstanding is the uncovered part of the transaction.
	Outstanding types.Money
}

// OldestUnpaid applies every payment in the balance to the debits in
// stream order and returns the first debit left (partly) uncovered.
// ok is false when credits cover every debit.
func (b *Balance) OldestUnpaid() (Unpaid, bool) {
	var credit int64
	for _, t := range b.Transactions {
		if !t.Kind.Debit() {
			credit += t.Amount.Amount
		}
	}

	for _, t := range b.Transactions {
		if !t.Kind.Debit() {
			continue
		}
		if credit >= t.Amount.Amount {
			credit -= t.Amount.Amount
			continue
		}
		return Unpaid{
			Transaction: t,
			Outstanding: types.Money{Amount: t.Amount.Amount - credit, Currency: t.Amount.Currency},
		}, true
	}
	return Unpaid{}, false
}

// RunningBalances returns the balance after each transaction, starting
// from opening.
func RunningBalances(opening types.Money, txns []Transaction) []types.Money {
	out := make([]types.Money, len(txns))
	running := opening
	for i, t := range txns {
		running = running.Add(t.SignedAmount)
		out[i] = running
	}
	return out
}

// Totals sums a transaction slice per kind.
type Totals struct {
	Charges     types.Money
	Events      types.Money
	Withdrawals types.Money
	Payments    types.Money
	Net         types.Money
}

// Summarize totals txns in the given currency.
func Summarize(currency string, txns []Transaction) Totals {
	t := Totals{
		Charges:     types.Zero(currency),
		Events:      types.Zero(currency),
		Withdrawals: types.Zero(currency),
		Payments:    types.Zero(currency),
		Net:         types.Zero(currency),
	}
	for _, tx := range txns {
		switch tx.Kind {
		case KindCharge:
			t.Charges = t.Charges.Add(tx.Amount)
		case KindEvent:
			t.Events = t.Events.Add(tx.Amount)
		case KindWithdrawal:
			t.Withdrawals = t.Withdrawals.Add(tx.Amount)
		case KindPayment:
			t.Payments = t.Payments.Add(tx.Amount)
		}
		t.Net = t.Net.Add(tx.SignedAmount)
	}
	return t
}
