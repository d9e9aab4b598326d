// Package presence tracks who is in each room and which display color they
// were given.
//
// Colors come from a fixed palette: a joiner gets the first palette entry no
// one in the room is using. Once every entry is taken, the color is picked at
// random from the whole palette, so two participants may share one.
package presence

import (
	"math/rand"
	"sync"
)

// DefaultPalette is the cursor/avatar palette handed out in order.
var DefaultPalette = []string{"#00323F", "#FFCE00", "#83C9D9", "#6690D8", "#a86be4", "#590202"}

// Participant is one named member of a room.
type Participant struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Registry holds the participant list of every room this process serves.
// Rooms that empty out keep their entry and are reused on the next join.
type Registry struct {
	mu       sync.Mutex
	palette  []string
	rooms    map[string][]Participant
	randIntN func(n int) int
}

// NewRegistry returns a registry using palette, or DefaultPalette when empty.
func NewRegistry(palette []string) *Registry {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	p := make([]string, len(palette))
	copy(p, palette)
	return &Registry{
		palette:  p,
		rooms:    make(map[string][]Participant),
		randIntN: rand.Intn,
	}
}

// Join adds name to the room and returns its color together with the
// participant list as of this join. Joining again under a present name keeps
// the existing color.
func (r *Registry) Join(roomID, name string) (string, []Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	for _, p := range members {
		if p.Name == name {
			return p.Color, clone(members)
		}
	}

	color := r.pickColor(members)
	members = append(members, Participant{Name: name, Color: color})
	r.rooms[roomID] = members
	return color, clone(members)
}

// Leave removes name from the room and returns the remaining participants.
// removed is false when name was not present.
func (r *Registry) Leave(roomID, name string) (remaining []Participant, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return []Participant{}, false
	}
	for i, p := range members {
		if p.Name == name {
			members = append(members[:i:i], members[i+1:]...)
			r.rooms[roomID] = members
			return clone(members), true
		}
	}
	return clone(members), false
}

// Participants returns the room's members in join order.
func (r *Registry) Participants(roomID string) []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.rooms[roomID])
}

// Color looks up the color of a present participant.
func (r *Registry) Color(roomID, name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.rooms[roomID] {
		if p.Name == name {
			return p.Color, true
		}
	}
	return "", false
}

// pickColor must be called with r.mu held.
func (r *Registry) pickColor(members []Participant) string {
	used := make(map[string]struct{}, len(members))
	for _, p := range members {
		used[p.Color] = struct{}{}
	}
	for _, c := range r.palette {
		if _, taken := used[c]; !taken {
			return c
		}
	}
	return r.palette[r.randIntN(len(r.palette))]
}

func clone(ps []Participant) []Participant {
	out := make([]Participant, len(ps))
	copy(out, ps)
	return out
}
