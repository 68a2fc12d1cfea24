package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateShareAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{name: "valid", address: "+notes.abcdef", wantErr: false},
		{name: "valid long suffix", address: "+gardening.bhyux4opeug2ieqcy36exrf4qymc56adwll4zeazm42oamxtr7heq", wantErr: false},
		{name: "empty", address: "", wantErr: true},
		{name: "missing plus", address: "notes.abcdef", wantErr: true},
		{name: "author sigil", address: "@notes.abcdef", wantErr: true},
		{name: "name starts with digit", address: "+1notes.abcdef", wantErr: true},
		{name: "uppercase name", address: "+Notes.abcdef", wantErr: true},
		{name: "suffix too short", address: "+notes.abc", wantErr: true},
		{name: "suffix with invalid chars", address: "+notes.abcde1", wantErr: true},
		{name: "missing suffix", address: "+notes", wantErr: true},
		{name: "name too long", address: "+" + strings.Repeat("a", 16) + ".abcdef", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateShareAddress(tt.address)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateAuthorAddress(t *testing.T) {
	pubkey := strings.Repeat("a", 52)

	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{name: "valid", address: "@suzy." + pubkey, wantErr: false},
		{name: "empty", address: "", wantErr: true},
		{name: "share sigil", address: "+suzy." + pubkey, wantErr: true},
		{name: "pubkey too short", address: "@suzy." + strings.Repeat("a", 51), wantErr: true},
		{name: "pubkey too long", address: "@suzy." + strings.Repeat("a", 53), wantErr: true},
		{name: "pubkey with digit outside base32", address: "@suzy." + strings.Repeat("a", 51) + "1", wantErr: true},
		{name: "shortname starts with digit", address: "@1suzy." + pubkey, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAuthorAddress(tt.address)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
