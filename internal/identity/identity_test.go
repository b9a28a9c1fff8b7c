package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyNormalizesCaseAndWhitespace(t *testing.T) {
	t.Parallel()

	a := Key("Joe's Cafe", "123 Main St")
	b := Key("JOE'S CAFE", " 123 Main St ")
	assert.Equal(t, a, b)
	assert.Equal(t, "joe's cafe|123 main st", a)
}

func TestKeyDistinguishesSplitPoint(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, Key("a|b", "c"), Key("a", "b|c"))
	assert.NotEqual(t, Key(`a\`, "|c"), Key("a", `\|c`))
}

func TestKeyIsDeterministic(t *testing.T) {
	t.Parallel()

	first := Key("Café Ümit", "Ring 1")
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, Key("CAFÉ ÜMIT", "ring 1"))
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, addr string
		want       bool
	}{
		{"X", "Y", true},
		{"X", "", false},
		{"", "Y", false},
		{"  ", "Y", false},
		{"X", "N/A", false},
		{"N/A", "Y", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Complete(tt.name, tt.addr), "Complete(%q, %q)", tt.name, tt.addr)
	}
}
