package battle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// HashPrefix tags the algorithm of a state hash.
const HashPrefix = "sha256:"

type hashedState struct {
	Public   PublicState     `json:"public"`
	Privates [2]PrivateState `json:"privates"`
}

// StateHash returns a stable digest of the public and private partitions.
//
// Postcondition: equal states yield equal hashes across processes.
func StateHash(public PublicState, privates [2]PrivateState) (string, error) {
	b, err := json.Marshal(hashedState{Public: public, Privates: privates})
	if err != nil {
		return "", fmt.Errorf("encoding state: %w", err)
	}
	sum := sha256.Sum256(b)
	return HashPrefix + hex.EncodeToString(sum[:]), nil
}

// DiffStates lists every leaf path whose value changed between before and
// after, sorted by path. Values are rendered as JSON text; an absent side is
// left empty.
func DiffStates(before, after any) ([]Diff, error) {
	bl, err := flatten(before)
	if err != nil {
		return nil, err
	}
	al, err := flatten(after)
	if err != nil {
		return nil, err
	}
	paths := make(map[string]struct{}, len(bl)+len(al))
	for p := range bl {
		paths[p] = struct{}{}
	}
	for p := range al {
		paths[p] = struct{}{}
	}
	var out []Diff
	for p := range paths {
		b, a := bl[p], al[p]
		if b != a {
			out = append(out, Diff{Path: p, Before: b, After: a})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func flatten(v any) (map[string]string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding diff side: %w", err)
	}
	var tree any
	if err := json.Unmarshal(b, &tree); err != nil {
		return nil, fmt.Errorf("decoding diff side: %w", err)
	}
	out := make(map[string]string)
	walk("", tree, out)
	return out, nil
}

func walk(path string, v any, out map[string]string) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			walk(join(path, k), child, out)
		}
	case []any:
		for i, child := range t {
			walk(join(path, strconv.Itoa(i)), child, out)
		}
	default:
		b, _ := json.Marshal(t)
		out[path] = string(b)
	}
}

func join(path, seg string) string {
	if path == "" {
		return seg
	}
	return path + "." + seg
}
