package model

// Messages holds the reply templates. Every category is a non-empty list; one entry is
// picked at random per reply.
type Messages struct {
	AffectedSelf   []string
	AffectedOther  []string
	ProtectedSelf  []string
	ProtectedOther []string
	Failure        string
}

type TimeoutEvent struct {
	GuildID  string
	AuthorID string
	TargetID string
	Minutes  int
}
