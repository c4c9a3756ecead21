package model

import (
	"errors"
	"fmt"
)

// Table sizing, matching the daemon's fixed tables.
const (
	// MaxSlots is the maximum number of peripheral instances per board.
	MaxSlots = 25

	// MaxResources is the maximum number of resources per slot.
	MaxResources = 10
)

// Slot errors.
var (
	ErrSlotFull         = errors.New("no free resource entry in slot")
	ErrResourceExists   = errors.New("resource name already registered")
	ErrResourceNotFound = errors.New("resource not found")
)

// Slot is one numbered position on a board holding a peripheral driver
// instance.
type Slot struct {
	// ID is the zero-indexed slot number.
	ID int

	// Driver is the name of the driver occupying the slot.
	Driver string

	// Desc is a one-line description of the peripheral.
	Desc string

	// Help is the full help text shown by pclist.
	Help string

	// Core is the FPGA core id this instance answers on.
	Core uint8

	resources []*Resource
}

// NewSlot creates an empty slot bound to a core id.
func NewSlot(id int, core uint8) *Slot {
	return &Slot{ID: id, Core: core}
}

// AddResource registers a resource in the slot.
func (s *Slot) AddResource(r *Resource) error {
	if len(s.resources) >= MaxResources {
		return fmt.Errorf("%w: %s", ErrSlotFull, r.Name)
	}
	for _, have := range s.resources {
		if have.Name == r.Name {
			return fmt.Errorf("%w: %s", ErrResourceExists, r.Name)
		}
	}
	s.resources = append(s.resources, r)
	return nil
}

// Resource returns the named resource.
func (s *Slot) Resource(name string) (*Resource, error) {
	for _, r := range s.resources {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, name)
}

// Resources returns the slot's resources in registration order.
func (s *Slot) Resources() []*Resource {
	return s.resources
}
