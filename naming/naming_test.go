package naming

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnique(t *testing.T) {
	a := Allocator{MaxClientNameSize: 64}
	tests := []struct {
		name      string
		candidate string
		existing  []string
		running   bool
		want      string
	}{
		{"empty", "", nil, true, NoName},
		{"no clash", "Foo", []string{"Bar"}, true, "Foo"},
		{"first clash", "Foo", []string{"Foo"}, true, "Foo (2)"},
		{"single digit", "Foo (3)", []string{"Foo (3)"}, true, "Foo (4)"},
		{"nine carries", "Foo (9)", []string{"Foo (9)"}, true, "Foo (10)"},
		{"two digits", "Foo (41)", []string{"Foo (41)"}, true, "Foo (42)"},
		{"ninety nine carries", "Foo (99)", []string{"Foo (99)"}, true, "Foo (100)"},
		{"chain in order", "Foo", []string{"Foo", "Foo (2)", "Foo (3)"}, true, "Foo (4)"},
		{"colon replaced", "a:b", nil, true, "a.b"},
		{"not running skips check", "Foo", []string{"Foo"}, false, "Foo"},
		{"not a suffix", "Foo (x)", []string{"Foo (x)"}, true, "Foo (x) (2)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Unique(tt.candidate, tt.existing, tt.running))
		})
	}
}

func TestUniqueSinglePassQuirk(t *testing.T) {
	existing := []string{"Foo (2)", "Foo"}

	// The default pass never rechecks entries it already passed.
	assert.Equal(t, "Foo (2)", Allocator{MaxClientNameSize: 64}.Unique("Foo", existing, true))

	assert.Equal(t, "Foo (3)", Allocator{MaxClientNameSize: 64, FixedPoint: true}.Unique("Foo", existing, true))
}

func TestUniqueTruncation(t *testing.T) {
	a := Allocator{MaxClientNameSize: 16}
	assert.Equal(t, 10, a.Limit())

	long := strings.Repeat("x", 30)
	got := a.Unique(long, nil, true)
	assert.Equal(t, strings.Repeat("x", 10), got)

	got = a.Unique(long, []string{strings.Repeat("x", 10)}, true)
	assert.Equal(t, strings.Repeat("x", 10)+" (2)", got)

	// A carry that would overflow shortens the base.
	name := strings.Repeat("y", 10) + " (99)"
	a2 := Allocator{MaxClientNameSize: 16}
	got = bump(name, a2.Limit()+suffixReserve)
	assert.Equal(t, strings.Repeat("y", 10)+" (100)", got)
	got = bump(strings.Repeat("y", 12)+" (99)", a2.Limit()+suffixReserve)
	assert.Equal(t, strings.Repeat("y", 10)+" (100)", got)

	// Multi-byte runes are never split.
	assert.Equal(t, strings.Repeat("é", 10), a.Unique(strings.Repeat("é", 12), nil, false))
}

func TestUniqueLimitCaps(t *testing.T) {
	assert.Equal(t, 249, Allocator{MaxClientNameSize: 4096}.Limit())
	assert.Equal(t, "anything", Allocator{MaxClientNameSize: 6}.Unique("anything", []string{"anything"}, true))
}

func TestUniqueDeterministic(t *testing.T) {
	a := Allocator{MaxClientNameSize: 32}
	existing := []string{"Synth", "Synth (2)"}
	first := a.Unique("Synth", existing, true)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, a.Unique("Synth", existing, true))
	}
}
