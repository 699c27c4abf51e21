package models

import (
	"bytes"
	"encoding/json"
)

type referenceKind int

const (
	referencesEmpty referenceKind = iota
	referencesNative
	referencesEncoded
)

// ReferenceIDs is the stored form of emails.references_ids.
//
// The jsonb column holds either a native JSON array of message ids or a JSON string
// whose content is an encoded array (older write paths stringified the list before
// inserting it). Reads keep track of which form was found; List is the only place
// that turns either form into message ids. Writes always produce the native form.
type ReferenceIDs struct {
	kind    referenceKind
	native  []string
	encoded string
}

// NewReferenceIDs returns a native reference list holding ids in order.
func NewReferenceIDs(ids ...string) ReferenceIDs {
	if len(ids) == 0 {
		return ReferenceIDs{}
	}
	list := make([]string, len(ids))
	copy(list, ids)
	return ReferenceIDs{kind: referencesNative, native: list}
}

// EncodedReferenceIDs wraps a JSON-encoded array stored as a plain string.
func EncodedReferenceIDs(encoded string) ReferenceIDs {
	return ReferenceIDs{kind: referencesEncoded, encoded: encoded}
}

// DecodeReferenceIDs reads the raw jsonb value of references_ids.
// Anything that is neither an array nor a string yields an empty list.
func DecodeReferenceIDs(raw []byte) ReferenceIDs {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ReferenceIDs{}
	}

	switch raw[0] {
	case '[':
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return ReferenceIDs{}
		}
		return NewReferenceIDs(list...)
	case '"':
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return ReferenceIDs{}
		}
		return EncodedReferenceIDs(encoded)
	default:
		return ReferenceIDs{}
	}
}

// List returns the message ids in stored order. A malformed encoded string
// decodes to an empty list instead of an error.
func (r ReferenceIDs) List() []string {
	switch r.kind {
	case referencesNative:
		list := make([]string, len(r.native))
		copy(list, r.native)
		return list
	case referencesEncoded:
		var list []string
		if err := json.Unmarshal([]byte(r.encoded), &list); err != nil {
			return []string{}
		}
		return list
	default:
		return []string{}
	}
}

// IsEncoded reports whether the value was read from the string-encoded form.
func (r ReferenceIDs) IsEncoded() bool {
	return r.kind == referencesEncoded
}

// Contains reports whether id is one of the referenced message ids.
func (r ReferenceIDs) Contains(id string) bool {
	for _, ref := range r.List() {
		if ref == id {
			return true
		}
	}
	return false
}

// Bytes returns the native JSON array to write into the jsonb column.
func (r ReferenceIDs) Bytes() ([]byte, error) {
	return json.Marshal(r.List())
}

// MarshalJSON always emits the native array form.
func (r ReferenceIDs) MarshalJSON() ([]byte, error) {
	return r.Bytes()
}

// UnmarshalJSON accepts both stored forms.
func (r *ReferenceIDs) UnmarshalJSON(data []byte) error {
	*r = DecodeReferenceIDs(data)
	return nil
}
