package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xraph/escrow/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"AccountID", id.NewAccountID, "acct_"},
		{"SettlementID", id.NewSettlementID, "stl_"},
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
	original := id.NewAccountID()
	parsed, err := id.ParseAccountID(original.String())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.String() != original.String() {
		t.Errorf("got %q, want %q", parsed.String(), original.String())
	}
}

func TestParseAccountIDEmpty(t *testing.T) {
	parsed, err := id.ParseAccountID("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !parsed.IsNil() {
		t.Error("expected Nil for empty string")
	}
}

func TestCrossTypeRejection(t *testing.T) {
	settlement := id.NewSettlementID().String()
	if _, err := id.ParseAccountID(settlement); err == nil {
		t.Error("expected error parsing a settlement ID as an account ID")
	}
}

func TestParseInvalid(t *testing.T) {
	for _, s := range []string{"", "!!!", "acct_"} {
		if _, err := id.Parse(s); err == nil {
			t.Errorf("expected error for %q", s)
		}
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		ID id.ID `json:"id"`
	}

	in := wrapper{ID: id.NewSettlementID()}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}

	var out wrapper
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.ID.String() != in.ID.String() {
		t.Errorf("got %q, want %q", out.ID.String(), in.ID.String())
	}
}

func TestScan(t *testing.T) {
	original := id.NewAccountID()

	var fromString id.ID
	if err := fromString.Scan(original.String()); err != nil {
		t.Fatal(err)
	}
	if fromString.String() != original.String() {
		t.Errorf("got %q, want %q", fromString.String(), original.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatal(err)
	}
	if !fromNil.IsNil() {
		t.Error("expected Nil after scanning NULL")
	}

	var bad id.ID
	if err := bad.Scan(42); err == nil {
		t.Error("expected error scanning an int")
	}
}
