package sql

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		wantErr    bool
	}{
		// Names both engines accept
		{name: "plain table name", identifier: "accounts", wantErr: false},
		{name: "snake case", identifier: "customer_orders", wantErr: false},
		{name: "leading underscore", identifier: "_staging", wantErr: false},
		{name: "digits after first char", identifier: "events2024", wantErr: false},
		{name: "dollar sign", identifier: "pg$catalog", wantErr: false},
		{name: "uppercase", identifier: "Accounts", wantErr: false},
		{name: "single letter", identifier: "t", wantErr: false},
		{name: "63 characters", identifier: "a" + strings.Repeat("b", 62), wantErr: false},

		// Lexical rejections
		{name: "empty", identifier: "", wantErr: true},
		{name: "64 characters", identifier: "a" + strings.Repeat("b", 63), wantErr: true},
		{name: "leading digit", identifier: "2024events", wantErr: true},
		{name: "embedded space", identifier: "customer orders", wantErr: true},
		{name: "embedded dot", identifier: "public.accounts", wantErr: true},
		{name: "embedded quote", identifier: `acc"ounts`, wantErr: true},
		{name: "embedded single quote", identifier: "acc'ounts", wantErr: true},
		{name: "semicolon", identifier: "accounts;", wantErr: true},
		{name: "hyphen", identifier: "customer-orders", wantErr: true},
		{name: "unicode letters", identifier: "tabellé", wantErr: true},

		// Injection payloads never reach the quoting layer
		{name: "classic drop", identifier: `accounts"; DROP TABLE users--`, wantErr: true},
		{name: "union select", identifier: "x UNION SELECT password FROM users", wantErr: true},
		{name: "comment escape", identifier: "accounts--", wantErr: true},
		{name: "or one equals one", identifier: "' OR '1'='1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier("table", tt.identifier)
			if tt.wantErr && err == nil {
				t.Errorf("ValidateIdentifier(%q) = nil, want error", tt.identifier)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateIdentifier(%q) = %v, want nil", tt.identifier, err)
			}
			if tt.wantErr && err != nil && !errors.Is(err, ErrUnsafeIdentifier) {
				t.Errorf("ValidateIdentifier(%q) error = %v, want ErrUnsafeIdentifier", tt.identifier, err)
			}
		})
	}
}

func TestValidateIdentifierNamesTheField(t *testing.T) {
	err := ValidateIdentifier("schema", "bad name")
	if err == nil {
		t.Fatal("expected error for identifier with a space")
	}
	if !strings.Contains(err.Error(), "schema") {
		t.Errorf("error %q does not name the field", err.Error())
	}
	if !strings.Contains(err.Error(), "bad name") {
		t.Errorf("error %q does not include the rejected name", err.Error())
	}
}

func TestValidateIdentifierEmptyNamesField(t *testing.T) {
	err := ValidateIdentifier("destination schema", "")
	if err == nil {
		t.Fatal("expected error for empty identifier")
	}
	if !strings.Contains(err.Error(), "destination schema name is required") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
