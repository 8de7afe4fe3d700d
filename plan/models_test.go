package plan

import (
	"errors"
	"testing"

	"github.com/xraph/dues/types"
)

func ageEnd(n int) *int { return &n }

func brackets(b ...*PaymentPlan) Schedule { return b }

func bracket(name string, start int, end *int, due int64) *PaymentPlan {
	return &PaymentPlan{Name: name, AgeStart: start, AgeEnd: end, AnnualDue: types.ILS(due)}
}

func TestScheduleAnnualDueFor(t *testing.T) {
	s := brackets(
		bracket("child", 0, ageEnd(5), 0),
		bracket("junior", 5, ageEnd(9), 10000),
		bracket("adult", 9, nil, 50000),
	)

	tests := []struct {
		age  int
		want int64
	}{
		{0, 0},
		{4, 0},
		{5, 10000},
		{8, 10000},
		{9, 50000},
		{80, 50000},
	}

	for _, tt := range tests {
		got, err := s.AnnualDueFor(tt.age)
		if err != nil {
			t.Fatalf("age %d: %v", tt.age, err)
		}
		if !got.Equal(types.ILS(tt.want)) {
			t.Errorf("age %d: got %v, want %v", tt.age, got, types.ILS(tt.want))
		}
	}
}

func TestScheduleGap(t *testing.T) {
	s := brackets(
		bracket("child", 0, ageEnd(5), 0),
		bracket("adult", 7, nil, 50000),
	)

	_, err := s.AnnualDueFor(6)
	if !errors.Is(err, ErrNoBracket) {
		t.Fatalf("expected ErrNoBracket, got %v", err)
	}
	var cov *CoverageError
	if !errors.As(err, &cov) || cov.Age != 6 {
		t.Errorf("expected CoverageError for age 6, got %v", err)
	}
}

func TestScheduleOverlap(t *testing.T) {
	s := brackets(
		bracket("a", 0, ageEnd(10), 100),
		bracket("b", 9, nil, 200),
	)

	_, err := s.AnnualDueFor(9)
	if !errors.Is(err, ErrOverlap) {
		t.Fatalf("expected ErrOverlap, got %v", err)
	}
}

func TestValidateCoverage(t *testing.T) {
	tests := []struct {
		name    string
		s       Schedule
		wantErr error
	}{
		{
			name: "complete",
			s:    brackets(bracket("a", 0, ageEnd(5), 0), bracket("b", 5, nil, 1)),
		},
		{
			name: "unordered input",
			s:    brackets(bracket("b", 5, nil, 1), bracket("a", 0, ageEnd(5), 0)),
		},
		{
			name:    "empty",
			s:       nil,
			wantErr: ErrNoBracket,
		},
		{
			name:    "does not start at zero",
			s:       brackets(bracket("a", 3, nil, 1)),
			wantErr: ErrNoBracket,
		},
		{
			name:    "inner gap",
			s:       brackets(bracket("a", 0, ageEnd(5), 0), bracket("b", 6, nil, 1)),
			wantErr: ErrNoBracket,
		},
		{
			name:    "bounded top",
			s:       brackets(bracket("a", 0, ageEnd(120), 0)),
			wantErr: ErrNoBracket,
		},
		{
			name:    "overlap",
			s:       brackets(bracket("a", 0, ageEnd(6), 0), bracket("b", 5, nil, 1)),
			wantErr: ErrOverlap,
		},
		{
			name:    "two unbounded",
			s:       brackets(bracket("a", 0, nil, 0), bracket("b", 18, nil, 1)),
			wantErr: ErrOverlap,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCoverage(tt.s)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}
