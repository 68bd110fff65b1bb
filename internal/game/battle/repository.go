package battle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/pokeduel/internal/storage"
)

// Repository reads and writes battle partitions over a storage.Store.
type Repository struct {
	store storage.Store
}

// NewRepository creates a Repository backed by store.
//
// Precondition: store must be non-nil.
func NewRepository(store storage.Store) *Repository {
	return &Repository{store: store}
}

// Store returns the underlying store.
func (r *Repository) Store() storage.Store { return r.store }

// Meta loads the battle header.
//
// Postcondition: returns ErrBattleNotFound when the battle does not exist.
func (r *Repository) Meta(ctx context.Context, battleID string) (Meta, error) {
	var m Meta
	if err := r.load(ctx, MetaKey(battleID), &m); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// Public loads the shared partition.
func (r *Repository) Public(ctx context.Context, battleID string) (PublicState, error) {
	var p PublicState
	if err := r.load(ctx, PublicKey(battleID), &p); err != nil {
		return PublicState{}, err
	}
	return p, nil
}

// InitialPublic loads the public state recorded at creation.
func (r *Repository) InitialPublic(ctx context.Context, battleID string) (PublicState, error) {
	var p PublicState
	if err := r.load(ctx, InitialPublicKey(battleID), &p); err != nil {
		return PublicState{}, err
	}
	return p, nil
}

// Private loads uid's partition.
func (r *Repository) Private(ctx context.Context, battleID, uid string) (PrivateState, error) {
	var p PrivateState
	if err := r.load(ctx, PrivateKey(battleID, uid), &p); err != nil {
		return PrivateState{}, err
	}
	return p, nil
}

// Snapshot loads meta, then the public and both private partitions concurrently.
func (r *Repository) Snapshot(ctx context.Context, battleID string) (Snapshot, error) {
	meta, err := r.Meta(ctx, battleID)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Meta: meta}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := r.Public(gctx, battleID)
		snap.Public = p
		return err
	})
	for _, s := range Sides {
		uid := meta.Players.Get(s).UID
		g.Go(func() error {
			p, err := r.Private(gctx, battleID, uid)
			snap.Privates[s] = p
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Choices returns turn n's choices keyed by uid.
func (r *Repository) Choices(ctx context.Context, battleID string, turn int) (map[string]Choice, error) {
	entries, err := r.store.List(ctx, ChoicesPrefix(battleID, turn), "")
	if err != nil {
		return nil, fmt.Errorf("listing choices: %w", err)
	}
	out := make(map[string]Choice, len(entries))
	for _, e := range entries {
		var c Choice
		if err := json.Unmarshal(e.Value, &c); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", e.Key, err)
		}
		out[strings.TrimPrefix(e.Key, ChoicesPrefix(battleID, turn))] = c
	}
	return out, nil
}

// Replacements returns turn n's forced switches keyed by uid.
func (r *Repository) Replacements(ctx context.Context, battleID string, turn int) (map[string]Replacement, error) {
	entries, err := r.store.List(ctx, ReplacementsPrefix(battleID, turn), "")
	if err != nil {
		return nil, fmt.Errorf("listing replacements: %w", err)
	}
	out := make(map[string]Replacement, len(entries))
	for _, e := range entries {
		var rp Replacement
		if err := json.Unmarshal(e.Value, &rp); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", e.Key, err)
		}
		out[strings.TrimPrefix(e.Key, ReplacementsPrefix(battleID, turn))] = rp
	}
	return out, nil
}

// Turns assembles every turn record of a battle, ordered by turn number.
func (r *Repository) Turns(ctx context.Context, battleID string) ([]TurnRecord, error) {
	entries, err := r.store.List(ctx, Prefix(battleID)+"turns/", "")
	if err != nil {
		return nil, fmt.Errorf("listing turns: %w", err)
	}
	byTurn := make(map[int]*TurnRecord)
	for _, e := range entries {
		n, rest, ok := ParseTurnKey(battleID, e.Key)
		if !ok {
			continue
		}
		rec, ok := byTurn[n]
		if !ok {
			rec = &TurnRecord{Turn: n}
			byTurn[n] = rec
		}
		if err := rec.absorb(rest, e.Value); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", e.Key, err)
		}
	}
	out := make([]TurnRecord, 0, len(byTurn))
	for _, rec := range byTurn {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Turn < out[j].Turn })
	return out, nil
}

func (t *TurnRecord) absorb(rest string, value []byte) error {
	switch {
	case rest == "header":
		t.Header = &TurnHeader{}
		return json.Unmarshal(value, t.Header)
	case rest == "resolution":
		t.Resolution = &Resolution{}
		return json.Unmarshal(value, t.Resolution)
	case rest == "replacement_resolution":
		t.ReplacementResolution = &Resolution{}
		return json.Unmarshal(value, t.ReplacementResolution)
	case strings.HasPrefix(rest, "choices/"):
		var c Choice
		if err := json.Unmarshal(value, &c); err != nil {
			return err
		}
		if t.Choices == nil {
			t.Choices = make(map[string]Choice)
		}
		t.Choices[strings.TrimPrefix(rest, "choices/")] = c
	case strings.HasPrefix(rest, "replacements/"):
		var rp Replacement
		if err := json.Unmarshal(value, &rp); err != nil {
			return err
		}
		if t.Replacements == nil {
			t.Replacements = make(map[string]Replacement)
		}
		t.Replacements[strings.TrimPrefix(rest, "replacements/")] = rp
	}
	return nil
}

// Metas lists the header of every stored battle.
func (r *Repository) Metas(ctx context.Context) ([]Meta, error) {
	entries, err := r.store.List(ctx, RootPrefix, "/meta")
	if err != nil {
		return nil, fmt.Errorf("listing battles: %w", err)
	}
	out := make([]Meta, 0, len(entries))
	for _, e := range entries {
		if _, ok := ParseMetaKey(e.Key); !ok {
			continue
		}
		var m Meta
		if err := json.Unmarshal(e.Value, &m); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", e.Key, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// SwapMeta atomically applies fn to the stored meta. An error from fn aborts
// the swap and is returned unchanged.
//
// Postcondition: returns the stored meta on success.
func (r *Repository) SwapMeta(ctx context.Context, battleID string, fn func(*Meta) error) (Meta, error) {
	var next Meta
	_, err := r.store.CompareAndSwap(ctx, MetaKey(battleID), func(cur []byte) ([]byte, error) {
		if cur == nil {
			return nil, ErrBattleNotFound
		}
		var m Meta
		if err := json.Unmarshal(cur, &m); err != nil {
			return nil, fmt.Errorf("decoding meta: %w", err)
		}
		if err := fn(&m); err != nil {
			return nil, err
		}
		next = m
		return json.Marshal(m)
	})
	if err != nil {
		return Meta{}, err
	}
	return next, nil
}

// Commit writes every record atomically, guarded by check against the stored meta.
// A nil check writes unconditionally.
func (r *Repository) Commit(ctx context.Context, battleID string, check func(Meta) error, writes ...storage.Write) error {
	var guard *storage.Guard
	if check != nil {
		guard = MetaGuard(battleID, check)
	}
	return r.store.Update(ctx, guard, writes...)
}

// Create writes the initial records of a new battle atomically.
//
// Postcondition: returns ErrBattleExists and writes nothing when battleID is taken.
func (r *Repository) Create(ctx context.Context, battleID string, writes ...storage.Write) error {
	guard := &storage.Guard{
		Key: MetaKey(battleID),
		Check: func(cur []byte) error {
			if cur != nil {
				return fmt.Errorf("%s: %w", battleID, ErrBattleExists)
			}
			return nil
		},
	}
	return r.store.Update(ctx, guard, writes...)
}

// MetaGuard builds a store guard that decodes meta before calling check.
func MetaGuard(battleID string, check func(Meta) error) *storage.Guard {
	return &storage.Guard{
		Key: MetaKey(battleID),
		Check: func(cur []byte) error {
			if cur == nil {
				return ErrBattleNotFound
			}
			var m Meta
			if err := json.Unmarshal(cur, &m); err != nil {
				return fmt.Errorf("decoding meta: %w", err)
			}
			return check(m)
		},
	}
}

// JSONWrite encodes v as a write to key.
func JSONWrite(key string, v any) (storage.Write, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return storage.Write{}, fmt.Errorf("encoding %s: %w", key, err)
	}
	return storage.Write{Key: key, Value: b}, nil
}

// Writes encodes each key/value pair in order.
func Writes(pairs ...KV) ([]storage.Write, error) {
	out := make([]storage.Write, 0, len(pairs))
	for _, p := range pairs {
		w, err := JSONWrite(p.Key, p.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// KV pairs a key with a value to encode.
type KV struct {
	Key   string
	Value any
}

func (r *Repository) load(ctx context.Context, key string, v any) error {
	b, err := r.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", key, ErrBattleNotFound)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}
