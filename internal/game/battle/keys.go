package battle

import (
	"fmt"
	"strconv"
	"strings"
)

// RootPrefix is the key prefix of every battle.
const RootPrefix = "battles/"

// Prefix returns the subtree of one battle.
func Prefix(battleID string) string { return RootPrefix + battleID + "/" }

// MetaKey is the concurrency-guarded header key.
func MetaKey(battleID string) string { return Prefix(battleID) + "meta" }

// PublicKey is the shared partition key.
func PublicKey(battleID string) string { return Prefix(battleID) + "public" }

// InitialPublicKey holds the public state at creation, kept for replays.
func InitialPublicKey(battleID string) string { return Prefix(battleID) + "initial_public" }

// PrivatePrefix is the subtree holding every private partition.
func PrivatePrefix(battleID string) string { return Prefix(battleID) + "private/" }

// PrivateKey is uid's exclusive partition key.
func PrivateKey(battleID, uid string) string { return PrivatePrefix(battleID) + uid }

// TurnPrefix is the subtree of turn n.
func TurnPrefix(battleID string, turn int) string {
	return fmt.Sprintf("%sturns/%d/", Prefix(battleID), turn)
}

// TurnHeaderKey opens turn n.
func TurnHeaderKey(battleID string, turn int) string { return TurnPrefix(battleID, turn) + "header" }

// ChoicesPrefix is the subtree of turn n's choices.
func ChoicesPrefix(battleID string, turn int) string {
	return TurnPrefix(battleID, turn) + "choices/"
}

// ChoiceKey holds uid's choice for turn n.
func ChoiceKey(battleID string, turn int, uid string) string {
	return ChoicesPrefix(battleID, turn) + uid
}

// ReplacementsPrefix is the subtree of turn n's forced switches.
func ReplacementsPrefix(battleID string, turn int) string {
	return TurnPrefix(battleID, turn) + "replacements/"
}

// ReplacementKey holds uid's forced switch for turn n.
func ReplacementKey(battleID string, turn int, uid string) string {
	return ReplacementsPrefix(battleID, turn) + uid
}

// ResolutionKey holds turn n's resolution record.
func ResolutionKey(battleID string, turn int) string { return TurnPrefix(battleID, turn) + "resolution" }

// ReplacementResolutionKey holds the record of the replacement that followed turn n.
func ReplacementResolutionKey(battleID string, turn int) string {
	return TurnPrefix(battleID, turn) + "replacement_resolution"
}

// ParseMetaKey extracts the battle id from a meta key.
//
// Postcondition: ok is false for any key that is not a meta key.
func ParseMetaKey(key string) (battleID string, ok bool) {
	rest, found := strings.CutPrefix(key, RootPrefix)
	if !found {
		return "", false
	}
	id, found := strings.CutSuffix(rest, "/meta")
	if !found || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// ParseTurnKey splits a key under turns/ into its turn number and remainder.
func ParseTurnKey(battleID, key string) (turn int, rest string, ok bool) {
	tail, found := strings.CutPrefix(key, Prefix(battleID)+"turns/")
	if !found {
		return 0, "", false
	}
	num, rest, found := strings.Cut(tail, "/")
	if !found {
		return 0, "", false
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, "", false
	}
	return n, rest, true
}

// ParseBattleKey splits any battle key into its battle id and the remainder
// below the battle prefix.
func ParseBattleKey(key string) (battleID, rest string, ok bool) {
	tail, found := strings.CutPrefix(key, RootPrefix)
	if !found {
		return "", "", false
	}
	battleID, rest, found = strings.Cut(tail, "/")
	if !found || battleID == "" {
		return "", "", false
	}
	return battleID, rest, true
}
