package services

import "github.com/google/uuid"

// IDGenerator produces correlation identifiers for runs and requests.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.NewString() }
