package types

import (
	"errors"
	"testing"
)

func TestAmountAdd(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Amount
		want    Amount
		wantErr error
	}{
		{"Simple", 100, 200, 300, nil},
		{"Zero", 0, 0, 0, nil},
		{"UpToMax", MaxAmount - 1, 1, MaxAmount, nil},
		{"Overflow", MaxAmount, 1, 0, ErrAmountOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.Add(tt.b)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error: got %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAmountSaturatingSub(t *testing.T) {
	if got := Amount(10).SaturatingSub(3); got != 7 {
		t.Errorf("got %d, want 7", got)
	}
	if got := Amount(3).SaturatingSub(10); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestParseAmount(t *testing.T) {
	a, err := ParseAmount("4900")
	if err != nil {
		t.Fatal(err)
	}
	if a != 4900 {
		t.Errorf("got %d, want 4900", a)
	}
	if _, err := ParseAmount("-1"); !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("expected ErrNegativeAmount, got %v", err)
	}
	if _, err := ParseAmount("abc"); err == nil {
		t.Error("expected parse error")
	}
}

func TestSum(t *testing.T) {
	total, err := Sum(10, 20, 30)
	if err != nil {
		t.Fatal(err)
	}
	if total != 60 {
		t.Errorf("got %d, want 60", total)
	}
	if _, err := Sum(MaxAmount, 1); !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
}
