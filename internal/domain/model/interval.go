package model

// Interval is one weighted category of timeout lengths, in whole minutes.
// Both bounds are inclusive.
type Interval struct {
	LowerMinutes int
	UpperMinutes int
	Weight       int
}
