package generator

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"agent_office/internal/clock"
	"agent_office/internal/domain"
	"agent_office/internal/roster"
)

var ErrInvalidRoster = errors.New("invalid roster")

// Generator fabricates activity events from a roster. It is safe for
// concurrent use.
type Generator struct {
	roster roster.Roster
	clock  clock.Clock

	mu  sync.Mutex
	rng *rand.Rand

	seq atomic.Uint64
}

func New(r roster.Roster, clk clock.Clock, src rand.Source) (*Generator, error) {
	if err := validate(r); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.System{}
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Generator{
		roster: r,
		clock:  clk,
		rng:    rand.New(src),
	}, nil
}

// NewSeeded is New with a deterministic PCG source.
func NewSeeded(r roster.Roster, clk clock.Clock, seed uint64) (*Generator, error) {
	return New(r, clk, rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func validate(r roster.Roster) error {
	if len(r.Entries) < 2 {
		return fmt.Errorf("%w: need at least two personas, got %d", ErrInvalidRoster, len(r.Entries))
	}
	if len(r.Tasks) == 0 {
		return fmt.Errorf("%w: task vocabulary is empty", ErrInvalidRoster)
	}
	for _, e := range r.Entries {
		if strings.TrimSpace(e.Persona.ID) == "" {
			return fmt.Errorf("%w: persona with empty id", ErrInvalidRoster)
		}
		if len(e.Updates) == 0 {
			return fmt.Errorf("%w: persona %s has no update templates", ErrInvalidRoster, e.Persona.ID)
		}
		if len(e.Coordination) == 0 {
			return fmt.Errorf("%w: persona %s has no coordination templates", ErrInvalidRoster, e.Persona.ID)
		}
	}
	return nil
}

func (g *Generator) Generate(coordination bool) domain.Event {
	return g.GenerateAt(coordination, g.clock.Now())
}

// GenerateAt builds an event stamped with at instead of the current time.
// The id is still derived from the current time so it stays unique.
func (g *Generator) GenerateAt(coordination bool, at time.Time) domain.Event {
	g.mu.Lock()
	author := g.roster.Entries[g.rng.IntN(len(g.roster.Entries))]
	task := g.roster.Tasks[g.rng.IntN(len(g.roster.Tasks))]

	category := domain.CategoryUpdate
	var content string
	if coordination {
		others := make([]roster.Entry, 0, len(g.roster.Entries)-1)
		for _, e := range g.roster.Entries {
			if e.Persona.ID != author.Persona.ID {
				others = append(others, e)
			}
		}
		other := others[g.rng.IntN(len(others))]
		tpl := author.Coordination[g.rng.IntN(len(author.Coordination))]
		content = strings.Replace(tpl, roster.OtherPlaceholder, other.Persona.Name, 1)
		content = strings.Replace(content, roster.TaskPlaceholder, task, 1)
		category = domain.CategoryCoordination
	} else {
		tpl := author.Updates[g.rng.IntN(len(author.Updates))]
		content = strings.Replace(tpl, roster.TaskPlaceholder, task, 1)
	}
	g.mu.Unlock()

	return domain.Event{
		ID:          g.nextID(),
		PersonaID:   author.Persona.ID,
		PersonaName: author.Persona.Name,
		PersonaRole: author.Persona.Role,
		Content:     content,
		Category:    category,
		Timestamp:   at.UTC(),
		Channel:     domain.ChannelTelegram,
	}
}

func (g *Generator) nextID() string {
	n := g.seq.Add(1)
	return fmt.Sprintf("%d-%d", g.clock.Now().UnixMilli(), n)
}
