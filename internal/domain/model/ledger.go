package model

import "time"

type LedgerEntry struct {
	Scope     string
	Subject   string
	ExpiresAt time.Time
}

type RecordResult int

const (
	RecordNoChange RecordResult = iota
	RecordCreated
	RecordUpdated
)

func (r RecordResult) String() string {
	switch r {
	case RecordCreated:
		return "created"
	case RecordUpdated:
		return "updated"
	default:
		return "no_change"
	}
}

type RemoveResult int

const (
	RemoveNotFound RemoveResult = iota
	RemoveRemoved
)

func (r RemoveResult) String() string {
	if r == RemoveRemoved {
		return "removed"
	}
	return "not_found"
}
