package domain

import (
	"reflect"
	"testing"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want EmailAddress
	}{
		{"bare address", "alice@example.com", EmailAddress{Email: "alice@example.com"}},
		{"display name", "Alice Smith <alice@example.com>", EmailAddress{Name: "Alice Smith", Email: "alice@example.com"}},
		{"quoted display name", `"Smith, Alice" <alice@example.com>`, EmailAddress{Name: "Smith, Alice", Email: "alice@example.com"}},
		{"surrounding whitespace", "  Bob <bob@example.com>  ", EmailAddress{Name: "Bob", Email: "bob@example.com"}},
		{"empty", "", EmailAddress{}},
		{"angle brackets only", "<carol@example.com>", EmailAddress{Email: "carol@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAddress(tt.raw)
			if got != tt.want {
				t.Errorf("ParseAddress(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseAddressList(t *testing.T) {
	got := ParseAddressList("Alice <alice@example.com>, bob@example.com")
	want := []EmailAddress{
		{Name: "Alice", Email: "alice@example.com"},
		{Email: "bob@example.com"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseAddressList = %+v, want %+v", got, want)
	}

	if got := ParseAddressList(""); got != nil {
		t.Errorf("ParseAddressList(\"\") = %+v, want nil", got)
	}
}

func TestEmailAddressString(t *testing.T) {
	addr := EmailAddress{Name: "Alice", Email: "alice@example.com"}
	if got := addr.String(); got != "Alice <alice@example.com>" {
		t.Errorf("String() = %q", got)
	}
	bare := EmailAddress{Email: "bob@example.com"}
	if got := bare.String(); got != "bob@example.com" {
		t.Errorf("String() = %q", got)
	}
}

func TestParseActionType(t *testing.T) {
	tests := []struct {
		raw     string
		want    ActionType
		wantErr bool
	}{
		{"task", ActionTypeTask, false},
		{"meeting", ActionTypeMeeting, false},
		{"deadline", ActionTypeDeadline, false},
		{"decision", ActionTypeDecision, false},
		{"information", ActionTypeInformation, false},
		{"chore", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseActionType(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseActionType(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseActionType(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
