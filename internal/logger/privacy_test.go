package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashIDIsStableAndShort(t *testing.T) {
	a := HashID(42)
	b := HashID(42)

	assert.Equal(t, a, b)
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, HashID(43))
}

func TestHashIDDependsOnSalt(t *testing.T) {
	before := HashID(7)
	SetHashSalt("another-salt")
	t.Cleanup(func() { SetHashSalt("expense-be") })

	assert.NotEqual(t, before, HashID(7))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "<empty>", Redact("  "))
	assert.Equal(t, "<3 chars>", Redact("bob"))
	assert.Equal(t, "al...<17 chars>", Redact("alice@example.com"))
}
