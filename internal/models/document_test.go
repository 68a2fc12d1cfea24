package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocument_IsNewerThan(t *testing.T) {
	tests := []struct {
		other    *Document
		self     *Document
		name     string
		expected bool
	}{
		{
			name:     "self timestamp greater",
			self:     &Document{Timestamp: 101, Signature: "aaa"},
			other:    &Document{Timestamp: 100, Signature: "zzz"},
			expected: true,
		},
		{
			name:     "self timestamp smaller",
			self:     &Document{Timestamp: 90, Signature: "zzz"},
			other:    &Document{Timestamp: 100, Signature: "aaa"},
			expected: false,
		},
		{
			name:     "timestamps equal, self signature greater lex",
			self:     &Document{Timestamp: 100, Signature: "zzz"},
			other:    &Document{Timestamp: 100, Signature: "aaa"},
			expected: true,
		},
		{
			name:     "timestamps equal, self signature lower lex",
			self:     &Document{Timestamp: 100, Signature: "aaa"},
			other:    &Document{Timestamp: 100, Signature: "zzz"},
			expected: false,
		},
		{
			name:     "identical overwrite key",
			self:     &Document{Timestamp: 100, Signature: "aaa"},
			other:    &Document{Timestamp: 100, Signature: "aaa"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.self.IsNewerThan(tt.other))
		})
	}
}

func TestDocument_SameVersionAs(t *testing.T) {
	a := &Document{Timestamp: 100, Signature: "sig"}
	b := &Document{Timestamp: 100, Signature: "sig"}
	c := &Document{Timestamp: 100, Signature: "other"}

	assert.True(t, a.SameVersionAs(b))
	assert.False(t, a.SameVersionAs(c))
}

func TestDocument_Expired(t *testing.T) {
	tests := []struct {
		name     string
		doc      *Document
		now      int64
		expected bool
	}{
		{name: "no delete_after never expires", doc: &Document{DeleteAfter: 0}, now: 1 << 60, expected: false},
		{name: "before expiry", doc: &Document{DeleteAfter: 1000}, now: 999, expected: false},
		{name: "at expiry", doc: &Document{DeleteAfter: 1000}, now: 1000, expected: true},
		{name: "past expiry", doc: &Document{DeleteAfter: 1000}, now: 1001, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.doc.Expired(tt.now))
		})
	}
}

func TestComparePathOrder(t *testing.T) {
	tests := []struct {
		name string
		a    *Document
		b    *Document
		sign int
	}{
		{
			name: "path ascending wins first",
			a:    &Document{Path: "/a", Timestamp: 1},
			b:    &Document{Path: "/b", Timestamp: 100},
			sign: -1,
		},
		{
			name: "same path newer timestamp first",
			a:    &Document{Path: "/a", Timestamp: 200},
			b:    &Document{Path: "/a", Timestamp: 100},
			sign: -1,
		},
		{
			name: "same path same timestamp greater signature first",
			a:    &Document{Path: "/a", Timestamp: 100, Signature: "zzz"},
			b:    &Document{Path: "/a", Timestamp: 100, Signature: "aaa"},
			sign: -1,
		},
		{
			name: "identical",
			a:    &Document{Path: "/a", Timestamp: 100, Signature: "s"},
			b:    &Document{Path: "/a", Timestamp: 100, Signature: "s"},
			sign: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComparePathOrder(tt.a, tt.b)
			switch tt.sign {
			case -1:
				assert.Negative(t, got)
				assert.Positive(t, ComparePathOrder(tt.b, tt.a))
			case 0:
				assert.Zero(t, got)
			}
		})
	}
}

func TestDocument_Clone(t *testing.T) {
	original := &Document{
		Path:          "/a",
		Author:        "@test.author",
		Timestamp:     123,
		Content:       "hello",
		ContentHash:   "hash",
		ContentLength: 5,
		Signature:     "sig",
		LocalIndex:    7,
	}

	clone := original.Clone()
	assert.Equal(t, original, clone)

	clone.Content = "changed"
	assert.Equal(t, "hello", original.Content)
}

func TestUpsertResult_Accepted(t *testing.T) {
	assert.False(t, UpsertInvalid.Accepted())
	assert.False(t, UpsertObsolete.Accepted())
	assert.False(t, UpsertAlreadyHadIt.Accepted())
	assert.True(t, UpsertAcceptedButNotLatest.Accepted())
	assert.True(t, UpsertAcceptedAndLatest.Accepted())
}
