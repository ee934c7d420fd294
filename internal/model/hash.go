package model

import (
	"fmt"
	"hash/fnv"
)

// AttributesHash returns the canonical JSON form of an attribute payload and
// its FNV-1a/32 content hash. The hash keys the shared-blob index; it is a
// dedup accelerator only, so collisions are tolerated and equality is always
// confirmed against the stored canonical bytes.
//
// A nil payload hashes identically to an empty one: both canonicalize to "{}".
func AttributesHash(attrs map[string]any) (uint32, []byte, error) {
	if attrs == nil {
		attrs = map[string]any{}
	}
	canonical, err := MarshalCanonical(attrs)
	if err != nil {
		return 0, nil, fmt.Errorf("hash attributes: %w", err)
	}
	return fnv1a32(canonical), canonical, nil
}

// EventDataHash is AttributesHash for event payloads; the two share an
// encoding but index separate blob tables.
func EventDataHash(data map[string]any) (uint32, []byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	canonical, err := MarshalCanonical(data)
	if err != nil {
		return 0, nil, fmt.Errorf("hash event data: %w", err)
	}
	return fnv1a32(canonical), canonical, nil
}

func fnv1a32(data []byte) uint32 {
	h := fnv.New32a()
	h.Write(data)
	return h.Sum32()
}
