package model

import "time"

type Member struct {
	UserID      string
	Username    string
	DisplayName string
	Bot         bool
	RoleIDs     []string
}

func (m Member) HasRole(roleID string) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// Name returns the display name, falling back to the username.
func (m Member) Name() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Username
}

type Guild struct {
	ID   string
	Name string
}

type Role struct {
	ID   string
	Name string
}

type Message struct {
	ID        string
	GuildID   string
	ChannelID string
	Content   string
	Author    Member
	// MentionIDs keeps the order users were mentioned in.
	MentionIDs          []string
	ReferencedMessageID string
	// ReferencedAuthorID is empty when the replied-to message was not delivered with the event.
	ReferencedAuthorID string
	CreatedAt          time.Time
}

type Classification struct {
	Administrator bool
	Moderator     bool
	Protected     bool
}
