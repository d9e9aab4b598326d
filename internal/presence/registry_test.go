package presence

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(ps []Participant) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

func TestJoinAssignsPaletteInOrder(t *testing.T) {
	r := NewRegistry(nil)

	color, list := r.Join("r1", "alice")
	assert.Equal(t, DefaultPalette[0], color)
	assert.Equal(t, []Participant{{Name: "alice", Color: DefaultPalette[0]}}, list)

	color, list = r.Join("r1", "bob")
	assert.Equal(t, DefaultPalette[1], color)
	assert.Equal(t, []string{"alice", "bob"}, names(list))
}

func TestJoinIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	first, _ := r.Join("r1", "alice")
	r.Join("r1", "bob")

	again, list := r.Join("r1", "alice")
	assert.Equal(t, first, again)
	assert.Equal(t, []string{"alice", "bob"}, names(list))
}

func TestRoomsAreIndependent(t *testing.T) {
	r := NewRegistry(nil)
	r.Join("r1", "alice")

	color, _ := r.Join("r2", "bob")
	assert.Equal(t, DefaultPalette[0], color)
	assert.Empty(t, r.Participants("r3"))
}

func TestLeaveFreesColor(t *testing.T) {
	r := NewRegistry(nil)
	r.Join("r1", "alice")
	r.Join("r1", "bob")

	remaining, removed := r.Leave("r1", "alice")
	assert.True(t, removed)
	assert.Equal(t, []Participant{{Name: "bob", Color: DefaultPalette[1]}}, remaining)

	color, _ := r.Join("r1", "carol")
	assert.Equal(t, DefaultPalette[0], color, "first unused color is reused")

	_, ok := r.Color("r1", "alice")
	assert.False(t, ok)
}

func TestLeaveUnknownIsNoop(t *testing.T) {
	r := NewRegistry(nil)
	remaining, removed := r.Leave("nope", "alice")
	assert.False(t, removed)
	assert.Empty(t, remaining)

	r.Join("r1", "bob")
	remaining, removed = r.Leave("r1", "alice")
	assert.False(t, removed)
	assert.Equal(t, []string{"bob"}, names(remaining))
}

func TestDistinctColorsUpToPaletteSize(t *testing.T) {
	r := NewRegistry(nil)
	seen := map[string]bool{}
	for i := range DefaultPalette {
		color, _ := r.Join("r1", fmt.Sprintf("user-%d", i))
		assert.False(t, seen[color], "color %s handed out twice", color)
		seen[color] = true
	}
}

func TestExhaustedPaletteFallsBackToRandomPick(t *testing.T) {
	r := NewRegistry([]string{"red", "blue"})
	r.randIntN = func(n int) int { return n - 1 }

	r.Join("r1", "a")
	r.Join("r1", "b")
	color, _ := r.Join("r1", "c")
	assert.Equal(t, "blue", color, "collision is accepted once the palette is exhausted")
}

func TestColorLookup(t *testing.T) {
	r := NewRegistry(nil)
	r.Join("r1", "alice")

	color, ok := r.Color("r1", "alice")
	assert.True(t, ok)
	assert.Equal(t, DefaultPalette[0], color)

	_, ok = r.Color("r1", "mallory")
	assert.False(t, ok)
	_, ok = r.Color("r2", "alice")
	assert.False(t, ok)
}

func TestSnapshotsAreCopies(t *testing.T) {
	r := NewRegistry(nil)
	_, list := r.Join("r1", "alice")
	list[0].Name = "changed"

	assert.Equal(t, []string{"alice"}, names(r.Participants("r1")))

	palette := []string{"#111111", "#222222"}
	r = NewRegistry(palette)
	palette[0] = "changed"
	color, _ := r.Join("r1", "alice")
	assert.Equal(t, "#111111", color)
}

// Random join/leave sequences never leave duplicates and always match the
// set of names currently joined.
func TestRandomJoinLeaveSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	r := NewRegistry(nil)
	joined := map[string]bool{}
	pool := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	for i := 0; i < 2000; i++ {
		name := pool[rng.Intn(len(pool))]
		if rng.Intn(2) == 0 {
			r.Join("r1", name)
			joined[name] = true
		} else {
			r.Leave("r1", name)
			delete(joined, name)
		}

		list := r.Participants("r1")
		seen := map[string]bool{}
		for _, p := range list {
			require.False(t, seen[p.Name], "duplicate %s", p.Name)
			seen[p.Name] = true
		}
		require.Equal(t, joined, seen)
	}
}

func TestConcurrentJoinsGetDistinctColors(t *testing.T) {
	r := NewRegistry(nil)
	var wg sync.WaitGroup
	for i := range DefaultPalette {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Join("r1", fmt.Sprintf("user-%d", i))
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, p := range r.Participants("r1") {
		assert.False(t, seen[p.Color])
		seen[p.Color] = true
	}
	assert.Len(t, seen, len(DefaultPalette))
}
