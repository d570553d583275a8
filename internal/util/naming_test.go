package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDNSLabel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"simple", "orders-db", true},
		{"single char", "a", true},
		{"digits", "team-42", true},
		{"empty", "", false},
		{"uppercase", "Orders", false},
		{"leading dash", "-orders", false},
		{"trailing dash", "orders-", false},
		{"dot", "orders.db", false},
		{"underscore", "orders_db", false},
		{"too long", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDNSLabel(tt.input))
		})
	}
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"*", "anything", true},
		{"*", "", true},
		{"production-*", "production-payments", true},
		{"production-*", "production-", true},
		{"production-*", "production", false},
		{"production-*", "staging-payments", false},
		{"*-prod", "payments-prod", true},
		{"*-prod", "prod", false},
		{"exact-name", "exact-name", true},
		{"exact-name", "exact-names", false},
		{"a*b", "ab", true},
		{"a*b", "axyzb", true},
		{"a*b", "ba", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchGlob(tt.pattern, tt.name))
		})
	}
}

func TestValidGlob(t *testing.T) {
	assert.True(t, ValidGlob("*"))
	assert.True(t, ValidGlob("production-*"))
	assert.True(t, ValidGlob("exact"))
	assert.False(t, ValidGlob(""))
	assert.False(t, ValidGlob("**"))
	assert.False(t, ValidGlob("a*b*c"))
}

func TestUniqueStrings(t *testing.T) {
	assert.Nil(t, UniqueStrings(nil))
	assert.Nil(t, UniqueStrings([]string{}))
	assert.Equal(t, []string{"a", "b", "c"}, UniqueStrings([]string{"a", "b", "a", "c", "b"}))
	assert.Equal(t, []string{"a"}, UniqueStrings([]string{"a", "a", "a"}))
}
