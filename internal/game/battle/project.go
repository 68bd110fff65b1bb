package battle

// Project builds the public view from both private rosters. Only whitelisted
// fields are copied: the active's identity, HP, status, stages, and whatever the
// opponent has already seen. Item and ability names appear only once revealed.
//
// Precondition: both privates have a valid Active index.
// Postcondition: the result shares no slices with the inputs.
func Project(privates [2]PrivateState, field Field, summary string) PublicState {
	pub := PublicState{Field: field, LastResultSummary: summary}
	for _, s := range Sides {
		*pub.Side(s) = projectSide(&privates[s])
	}
	return pub
}

func projectSide(p *PrivateState) SidePublic {
	side := SidePublic{UID: p.UID, Bench: make([]BenchPublic, 0, len(p.Team))}
	for i := range p.Team {
		mon := &p.Team[i]
		side.Bench = append(side.Bench, BenchPublic{
			Species:       mon.Species,
			Fainted:       mon.Fainted(),
			RevealedMoves: cloneStrings(mon.RevealedMoves),
		})
	}
	if p.Active < 0 || p.Active >= len(p.Team) {
		return side
	}
	mon := &p.Team[p.Active]
	active := ActivePublic{
		Species:         mon.Species,
		Level:           mon.Level,
		Types:           cloneStrings(mon.Types),
		HP:              HP{Cur: mon.CurrentHP, Max: mon.MaxHP},
		Status:          mon.Status,
		Boosts:          mon.StatModifiers,
		ItemRevealed:    mon.ItemRevealed,
		AbilityRevealed: mon.AbilityRevealed,
		RevealedMoves:   cloneStrings(mon.RevealedMoves),
		Volatiles: PublicVolatiles{
			Protect:    mon.Volatile.Protect,
			Substitute: mon.Volatile.SubstituteHP > 0,
			Taunt:      mon.Volatile.Taunt,
			PerishSong: mon.Volatile.PerishSong,
			Recharge:   mon.Volatile.Recharge,
		},
	}
	if mon.ItemRevealed {
		active.RevealedItem = mon.Item
	}
	if mon.AbilityRevealed {
		active.RevealedAbility = mon.Ability
	}
	if mon.Volatile.Encore != nil {
		active.Volatiles.Encore = mon.Volatile.Encore.MoveID
	}
	side.Active = active
	return side
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Clone returns a deep copy of p.
func (p PrivateState) Clone() PrivateState {
	out := p
	out.Team = make([]Pokemon, len(p.Team))
	for i := range p.Team {
		out.Team[i] = p.Team[i].Clone()
	}
	return out
}

// Clone returns a deep copy of p.
func (p Pokemon) Clone() Pokemon {
	out := p
	out.Types = cloneStrings(p.Types)
	out.RevealedMoves = cloneStrings(p.RevealedMoves)
	if p.Moves != nil {
		out.Moves = make([]MoveSlot, len(p.Moves))
		copy(out.Moves, p.Moves)
	}
	if p.Volatile.Encore != nil {
		l := *p.Volatile.Encore
		out.Volatile.Encore = &l
	}
	if p.Volatile.Disable != nil {
		l := *p.Volatile.Disable
		out.Volatile.Disable = &l
	}
	return out
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Meta.NeedsReplacement = cloneStrings(s.Meta.NeedsReplacement)
	for i := range s.Privates {
		out.Privates[i] = s.Privates[i].Clone()
	}
	out.Public = Project(out.Privates, s.Public.Field, s.Public.LastResultSummary)
	return out
}
