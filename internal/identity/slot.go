package identity

import (
	"strings"

	"github.com/rotisserie/eris"
)

// SlotKind tags which identity a cache slot is addressed by.
type SlotKind int

const (
	SlotDefault SlotKind = iota
	SlotUID
	SlotLegacyKey
)

const (
	defaultSlotName = "default"
	uidSlotPrefix   = "uid_"
)

// Slot addresses one durable cache record. The zero value is the default
// slot.
type Slot struct {
	kind  SlotKind
	value string
}

// UIDSlot addresses the slot for a location UID.
func UIDSlot(uid string) Slot { return Slot{kind: SlotUID, value: uid} }

// LegacySlot addresses a pre-UID slot by its "City,ST" key.
func LegacySlot(key string) Slot { return Slot{kind: SlotLegacyKey, value: key} }

// DefaultSlot addresses the singleton back-compat slot.
func DefaultSlot() Slot { return Slot{} }

// Kind reports the slot variant.
func (s Slot) Kind() SlotKind { return s.kind }

// Value is the UID or key; empty for the default slot.
func (s Slot) Value() string { return s.value }

// IsDefault reports whether s is the default slot.
func (s Slot) IsDefault() bool { return s.kind == SlotDefault }

// String is the persisted form of the slot.
func (s Slot) String() string {
	switch s.kind {
	case SlotUID:
		return uidSlotPrefix + s.value
	case SlotLegacyKey:
		return s.value
	}
	return defaultSlotName
}

// ParseSlot is the inverse of Slot.String. Only storage code reads persisted
// slot names; everything else passes Slot values around.
func ParseSlot(s string) (Slot, error) {
	switch {
	case s == defaultSlotName:
		return DefaultSlot(), nil
	case strings.HasPrefix(s, uidSlotPrefix) && len(s) > len(uidSlotPrefix):
		return UIDSlot(strings.TrimPrefix(s, uidSlotPrefix)), nil
	case s != "":
		return LegacySlot(s), nil
	}
	return Slot{}, eris.New("identity: empty slot name")
}
