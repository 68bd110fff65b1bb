package refdata

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/pokeduel/internal/game/battle"
	"github.com/cory-johannsen/pokeduel/internal/game/calc"
)

// Catalog is the on-disk shape of one reference data file. A file may carry
// any subset of the sections.
type Catalog struct {
	Species   []Species `yaml:"species"`
	Moves     []Move    `yaml:"moves"`
	Abilities []Ability `yaml:"abilities"`
	Items     []Item    `yaml:"items"`
}

// Registry holds immutable reference data keyed by id.
// It is safe for concurrent reads once loading is done.
type Registry struct {
	species   map[string]*Species
	moves     map[string]*Move
	abilities map[string]*Ability
	items     map[string]*Item
}

// NewRegistry creates a Registry containing only Struggle.
//
// Postcondition: Move(StruggleID) always succeeds.
func NewRegistry() *Registry {
	r := &Registry{
		species:   make(map[string]*Species),
		moves:     make(map[string]*Move),
		abilities: make(map[string]*Ability),
		items:     make(map[string]*Item),
	}
	s := struggle
	r.moves[s.ID] = &s
	return r
}

// Add merges every entry of c, overwriting entries with the same id.
//
// Precondition: every entry has a non-empty ID.
func (r *Registry) Add(c Catalog) {
	for i := range c.Species {
		r.species[c.Species[i].ID] = &c.Species[i]
	}
	for i := range c.Moves {
		r.moves[c.Moves[i].ID] = &c.Moves[i]
	}
	for i := range c.Abilities {
		r.abilities[c.Abilities[i].ID] = &c.Abilities[i]
	}
	for i := range c.Items {
		r.items[c.Items[i].ID] = &c.Items[i]
	}
}

// Species returns the species for id or a *battle.ReferenceDataError.
func (r *Registry) Species(id string) (*Species, error) {
	if s, ok := r.species[id]; ok {
		return s, nil
	}
	return nil, &battle.ReferenceDataError{Kind: "species", ID: id}
}

// Move returns the move for id or a *battle.ReferenceDataError.
func (r *Registry) Move(id string) (*Move, error) {
	if m, ok := r.moves[id]; ok {
		return m, nil
	}
	return nil, &battle.ReferenceDataError{Kind: "move", ID: id}
}

// Ability returns the ability for id or a *battle.ReferenceDataError.
func (r *Registry) Ability(id string) (*Ability, error) {
	if a, ok := r.abilities[id]; ok {
		return a, nil
	}
	return nil, &battle.ReferenceDataError{Kind: "ability", ID: id}
}

// Item returns the item for id or a *battle.ReferenceDataError.
func (r *Registry) Item(id string) (*Item, error) {
	if it, ok := r.items[id]; ok {
		return it, nil
	}
	return nil, &battle.ReferenceDataError{Kind: "item", ID: id}
}

// MoveIDs returns every move id in sorted order.
func (r *Registry) MoveIDs() []string {
	out := make([]string, 0, len(r.moves))
	for id := range r.moves {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Validate reports every entry that references an unknown type, status or
// stat, or carries an out-of-range number.
func (r *Registry) Validate() error {
	var problems []string
	for id, s := range r.species {
		if len(s.Types) == 0 || len(s.Types) > 2 {
			problems = append(problems, fmt.Sprintf("species %s: needs one or two types", id))
		}
		for _, t := range s.Types {
			if !calc.KnownType(t) {
				problems = append(problems, fmt.Sprintf("species %s: unknown type %q", id, t))
			}
		}
		if s.BaseStats.HP <= 0 {
			problems = append(problems, fmt.Sprintf("species %s: base hp must be positive", id))
		}
	}
	for id, m := range r.moves {
		if m.Type != "" && !calc.KnownType(m.Type) {
			problems = append(problems, fmt.Sprintf("move %s: unknown type %q", id, m.Type))
		}
		switch m.Category {
		case Physical, Special, Status:
		default:
			problems = append(problems, fmt.Sprintf("move %s: unknown category %q", id, m.Category))
		}
		if m.PP <= 0 {
			problems = append(problems, fmt.Sprintf("move %s: pp must be positive", id))
		}
		if m.Ailment != nil && !knownStatus(m.Ailment.Status) {
			problems = append(problems, fmt.Sprintf("move %s: unknown ailment %q", id, m.Ailment.Status))
		}
		for _, sc := range m.StatChanges {
			if !battle.ValidStat(battle.Stat(sc.Stat)) {
				problems = append(problems, fmt.Sprintf("move %s: unknown stat %q", id, sc.Stat))
			}
		}
		if m.Hits != nil && (m.Hits.Min < 1 || m.Hits.Max < m.Hits.Min) {
			problems = append(problems, fmt.Sprintf("move %s: bad hit range", id))
		}
	}
	for id, a := range r.abilities {
		if a.ContactAilment != nil && !knownStatus(a.ContactAilment.Status) {
			problems = append(problems, fmt.Sprintf("ability %s: unknown ailment %q", id, a.ContactAilment.Status))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("invalid reference data:\n  %s", strings.Join(problems, "\n  "))
}

func knownStatus(s string) bool {
	switch battle.Status(s) {
	case battle.StatusBurn, battle.StatusParalysis, battle.StatusPoison, battle.StatusSleep, battle.StatusFreeze:
		return true
	}
	return false
}

// LoadDirectory reads every *.yaml file in dir into a validated Registry.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a non-nil Registry, or an error if any file fails to parse or validate.
func LoadDirectory(dir string) (*Registry, error) {
	return LoadFS(os.DirFS(dir), ".")
}

// LoadFS reads every *.yaml file directly under dir in fsys.
func LoadFS(fsys fs.FS, dir string) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading refdata dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		p := path.Join(dir, e.Name())
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		var c Catalog
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", p, err)
		}
		reg.Add(c)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}
