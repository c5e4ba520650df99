package contactbook

import (
	"testing"

	"github.com/emersion/go-vcard"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+1 (555) 123-4567", "+15551234567"},
		{"Alice@Example.com", "alice@example.com"},
		{"  +15551234567  ", "+15551234567"},
	}
	for _, tt := range tests {
		if got := normalize(tt.in); got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIndexCard(t *testing.T) {
	card := vcard.Card{}
	card.AddValue(vcard.FieldFormattedName, "Alice Example")
	card.AddValue(vcard.FieldTelephone, "+15551234567")
	card.AddValue(vcard.FieldEmail, "alice@example.com")

	idx := make(map[string]string)
	indexCard(idx, card)

	if idx["+15551234567"] != "Alice Example" {
		t.Errorf("phone lookup = %q, want Alice Example", idx["+15551234567"])
	}
	if idx["alice@example.com"] != "Alice Example" {
		t.Errorf("email lookup = %q, want Alice Example", idx["alice@example.com"])
	}
}

func TestIndexCard_NoName(t *testing.T) {
	card := vcard.Card{}
	card.AddValue(vcard.FieldTelephone, "+15551234567")

	idx := make(map[string]string)
	indexCard(idx, card)

	if len(idx) != 0 {
		t.Errorf("expected no entries without a name, got %v", idx)
	}
}

func TestResolver_ResolveUnknown(t *testing.T) {
	r := &Resolver{index: map[string]string{"+15551234567": "Alice"}}
	if _, ok := r.Resolve("+19998887777"); ok {
		t.Error("expected no match for unknown sender")
	}
	if name, ok := r.Resolve("+1 555 123 4567"); !ok || name != "Alice" {
		t.Errorf("Resolve = (%q, %v), want (Alice, true)", name, ok)
	}
}
