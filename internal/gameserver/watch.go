package gameserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cory-johannsen/pokeduel/internal/game/battle"
)

// Update is one committed change to a battle, as seen by a watching player.
// A nil Value means the key was deleted.
type Update struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Watch streams changes to battleID that uid may see. The current meta,
// public state and uid's private partition are delivered first, read after
// the subscription is in place. The channel closes when ctx is cancelled.
//
// Precondition: uid is a participant.
// Postcondition: the opponent's private partition and pending submissions are
// never delivered.
func (h *BattleHandler) Watch(ctx context.Context, battleID, uid string) (<-chan Update, error) {
	meta, err := h.repo.Meta(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if _, ok := meta.SideOf(uid); !ok {
		return nil, battle.Invalid(battle.KindNotParticipant, "%s is not in battle %s", uid, battleID)
	}
	changes, err := h.repo.Store().Subscribe(ctx, battle.Prefix(battleID))
	if err != nil {
		return nil, err
	}

	var initial []Update
	for _, key := range []string{battle.MetaKey(battleID), battle.PublicKey(battleID), battle.PrivateKey(battleID, uid)} {
		b, err := h.repo.Store().Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		initial = append(initial, Update{Key: key, Value: b})
	}

	out := make(chan Update)
	go func() {
		defer close(out)
		for _, u := range initial {
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
		for c := range changes {
			if !visibleTo(battleID, c.Key, uid) {
				continue
			}
			select {
			case out <- Update{Key: c.Key, Value: c.Value}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// visibleTo reports whether uid may observe key. Shared records are visible to
// both players; private partitions and per-player submissions only to their owner.
func visibleTo(battleID, key, uid string) bool {
	id, rest, ok := battle.ParseBattleKey(key)
	if !ok || id != battleID {
		return false
	}
	switch rest {
	case "meta", "public", "initial_public":
		return true
	}
	if owner, ok := strings.CutPrefix(rest, "private/"); ok {
		return owner == uid
	}
	_, tail, ok := battle.ParseTurnKey(battleID, key)
	if !ok {
		return false
	}
	switch tail {
	case "header", "resolution", "replacement_resolution":
		return true
	}
	if owner, ok := strings.CutPrefix(tail, "choices/"); ok {
		return owner == uid
	}
	if owner, ok := strings.CutPrefix(tail, "replacements/"); ok {
		return owner == uid
	}
	return false
}
