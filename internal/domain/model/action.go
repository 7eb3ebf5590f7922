package model

import (
	"time"

	"github.com/Moe-and-Friends/Amazake/internal/domain/rules"
)

// Action is the closed set of effects a roll can produce. Only Timeout exists today;
// callers switch on the concrete type.
type Action interface {
	isAction()
}

type Timeout struct {
	Minutes int
}

func (Timeout) isAction() {}

func (t Timeout) Duration() time.Duration {
	return time.Duration(t.Minutes) * time.Minute
}

func (t Timeout) Label() string {
	return rules.DurationLabel(t.Minutes)
}
