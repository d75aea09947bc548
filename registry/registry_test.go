package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaban/plughost/plugins"
)

func newPlugin(name string) plugins.Plugin {
	return plugins.NewBase(-1, plugins.Info{Name: name, Type: plugins.TypeInternal}, nil)
}

func fill(t *testing.T, r *Registry, names ...string) {
	t.Helper()
	r.Mutate(func(tx *Tx) {
		for _, n := range names {
			_, err := tx.Append(newPlugin(n))
			require.NoError(t, err)
		}
	})
}

func assertContiguous(t *testing.T, r *Registry) {
	t.Helper()
	for i := 0; i < r.Capacity(); i++ {
		p := r.Unchecked(i)
		if i < r.Count() {
			require.NotNil(t, p, "slot %d", i)
			assert.Equal(t, i, p.ID(), "slot %d", i)
		} else {
			assert.Nil(t, p, "slot %d", i)
		}
	}
}

func TestAppendUntilFull(t *testing.T) {
	r := New(3)
	r.Mutate(func(tx *Tx) {
		for i := 0; i < 3; i++ {
			id, err := tx.Append(newPlugin(fmt.Sprint(i)))
			require.NoError(t, err)
			assert.Equal(t, i, id)
		}
		_, err := tx.Append(newPlugin("x"))
		assert.ErrorIs(t, err, ErrFull)
	})
	assert.Equal(t, 3, r.Count())
	assertContiguous(t, r)
}

func TestGetBounds(t *testing.T) {
	r := New(4)
	fill(t, r, "a", "b")

	p, err := r.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "b", p.Name())

	for _, id := range []int{-1, 2, 4, 100} {
		_, err := r.Get(id)
		assert.ErrorIs(t, err, ErrInvalidID, "id %d", id)
	}
	assert.Nil(t, r.Unchecked(2))
	assert.Nil(t, r.Unchecked(99))
}

func TestRemoveCompact(t *testing.T) {
	r := New(4)
	fill(t, r, "a", "b", "c", "d")
	r.SetPeaks(2, [2]float32{0.3, 0.4}, [2]float32{0.5, 0.6})

	var removed plugins.Plugin
	r.Mutate(func(tx *Tx) { removed = tx.RemoveCompact(1) })
	require.NotNil(t, removed)
	assert.Equal(t, "b", removed.Name())
	assert.Equal(t, []string{"a", "c", "d"}, r.Names())
	assertContiguous(t, r)

	// Peaks follow their plugin.
	assert.Equal(t, float32(0.3), r.InputPeak(1, true))
	assert.Equal(t, float32(0.6), r.OutputPeak(1, false))
	assert.Zero(t, r.InputPeak(3, true))

	r.Mutate(func(tx *Tx) { assert.Nil(t, tx.RemoveCompact(3)) })
}

func TestRemoveLastThenReadd(t *testing.T) {
	r := New(2)
	fill(t, r, "a", "b")
	r.Mutate(func(tx *Tx) { tx.RemoveCompact(1) })

	_, err := r.Get(1)
	assert.ErrorIs(t, err, ErrInvalidID)

	fill(t, r, "c")
	p, err := r.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "c", p.Name())
}

func TestSwitchIsSelfInverse(t *testing.T) {
	r := New(3)
	fill(t, r, "a", "b", "c")
	before := r.Plugins()

	r.Mutate(func(tx *Tx) { assert.True(t, tx.Switch(0, 2)) })
	assert.Equal(t, []string{"c", "b", "a"}, r.Names())
	assertContiguous(t, r)

	r.Mutate(func(tx *Tx) { assert.True(t, tx.Switch(0, 2)) })
	after := r.Plugins()
	for i := range before {
		assert.Same(t, before[i], after[i])
	}
	assertContiguous(t, r)

	r.Mutate(func(tx *Tx) {
		assert.False(t, tx.Switch(1, 1))
		assert.False(t, tx.Switch(0, 3))
	})
}

func TestReplaceAndDrain(t *testing.T) {
	r := New(3)
	fill(t, r, "a", "b")

	repl := newPlugin("z")
	r.Mutate(func(tx *Tx) {
		old := tx.Replace(1, repl)
		require.NotNil(t, old)
		assert.Equal(t, "b", old.Name())
		assert.Nil(t, tx.Replace(2, newPlugin("nope")))
	})
	assert.Equal(t, 1, repl.ID())
	assert.Equal(t, 2, r.Count())

	var drained []plugins.Plugin
	r.Mutate(func(tx *Tx) { drained = tx.Drain() })
	require.Len(t, drained, 2)
	assert.Equal(t, "a", drained[0].Name())
	assert.Equal(t, "z", drained[1].Name())
	assert.Zero(t, r.Count())
	assertContiguous(t, r)
}

func TestTryRangeSkipsWhileMutating(t *testing.T) {
	r := New(2)
	fill(t, r, "a", "b")

	inside := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Mutate(func(tx *Tx) {
			close(inside)
			<-release
		})
	}()
	<-inside

	assert.False(t, r.TryRange(func(int, plugins.Plugin) {}))
	assert.False(t, r.TryMutate(func(*Tx) {}))
	close(release)
	wg.Wait()

	var seen []int
	assert.True(t, r.TryRange(func(id int, p plugins.Plugin) { seen = append(seen, id) }))
	assert.Equal(t, []int{0, 1}, seen)
}

func TestConcurrentPeaksAndMutation(t *testing.T) {
	r := New(8)
	fill(t, r, "a", "b", "c", "d")

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			r.TryRange(func(id int, p plugins.Plugin) {
				r.SetPeaks(id, [2]float32{1, 1}, [2]float32{1, 1})
				_ = p.Name()
			})
		}
	}()

	for i := 0; i < 200; i++ {
		r.Mutate(func(tx *Tx) {
			tx.Switch(0, 3)
			if tx.Count() < 8 {
				_, _ = tx.Append(newPlugin("x"))
			} else {
				tx.RemoveCompact(4)
			}
		})
		_ = r.InputPeak(i%8, true)
	}
	close(stop)
	wg.Wait()
	assertContiguous(t, r)
}
