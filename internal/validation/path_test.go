package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "valid simple", path: "/about", wantErr: false},
		{name: "valid nested", path: "/posts/2024/hello.md", wantErr: false},
		{name: "valid ephemeral marker", path: "/chat/!message", wantErr: false},
		{name: "valid owned", path: "/~@suzy.abc/profile", wantErr: false},
		{name: "too short", path: "/", wantErr: true},
		{name: "no leading slash", path: "about", wantErr: true},
		{name: "trailing slash", path: "/about/", wantErr: true},
		{name: "double slash", path: "/a//b", wantErr: true},
		{name: "leading author sigil", path: "/@suzy/about", wantErr: true},
		{name: "space", path: "/a b", wantErr: true},
		{name: "question mark", path: "/a?b", wantErr: true},
		{name: "non-printable", path: "/a\x01b", wantErr: true},
		{name: "non-ascii", path: "/приват", wantErr: true},
		{name: "too long", path: "/" + strings.Repeat("a", 512), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAuthorCanWritePath(t *testing.T) {
	author := "@suzy." + strings.Repeat("a", 52)
	other := "@fred." + strings.Repeat("b", 52)

	tests := []struct {
		name     string
		path     string
		author   string
		expected bool
	}{
		{name: "shared path writable by anyone", path: "/wiki/gardening", author: author, expected: true},
		{name: "owned path writable by owner", path: "/~" + author + "/profile", author: author, expected: true},
		{name: "owned path not writable by others", path: "/~" + author + "/profile", author: other, expected: false},
		{name: "multi-owner path", path: "/chat/~" + author + "~" + other + "/log", author: other, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AuthorCanWritePath(tt.path, tt.author))
		})
	}
}

func TestPathIsEphemeral(t *testing.T) {
	assert.True(t, PathIsEphemeral("/chat/!msg"))
	assert.False(t, PathIsEphemeral("/chat/msg"))
}
