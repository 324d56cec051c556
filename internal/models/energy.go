package models

import (
	"fmt"
	"strings"
)

// EnergyType is the renewable source an offer is backed by.
type EnergyType string

const (
	EnergySolar   EnergyType = "solar"
	EnergyWind    EnergyType = "wind"
	EnergyStorage EnergyType = "storage"
	EnergyGrid    EnergyType = "grid"
)

// EnergyTypes lists every supported type in display order.
var EnergyTypes = []EnergyType{EnergySolar, EnergyWind, EnergyStorage, EnergyGrid}

func (t EnergyType) Valid() bool {
	switch t {
	case EnergySolar, EnergyWind, EnergyStorage, EnergyGrid:
		return true
	}
	return false
}

func (t EnergyType) String() string {
	return string(t)
}

// ParseEnergyType accepts the type name case-insensitively.
func ParseEnergyType(s string) (EnergyType, error) {
	t := EnergyType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidEnergyType, s)
	}
	return t, nil
}
