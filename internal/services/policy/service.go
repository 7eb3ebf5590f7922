package policy

import (
	"context"
	"strings"

	"github.com/Moe-and-Friends/Amazake/internal/domain/model"
)

// ReferenceResolver looks up the author of the message a reply points at when the
// platform did not deliver it with the event.
type ReferenceResolver interface {
	ReferencedAuthor(ctx context.Context, msg model.Message) (string, error)
}

type Service struct {
	protectedRoles map[string]struct{}
	moderatorRoles map[string]struct{}
	administrators map[string]struct{}
}

func NewService(protectedRoles, moderatorRoles, administrators []string) *Service {
	return &Service{
		protectedRoles: toSet(protectedRoles),
		moderatorRoles: toSet(moderatorRoles),
		administrators: toSet(administrators),
	}
}

func (s *Service) Classify(member model.Member) model.Classification {
	isAdministrator := s.IsAdministrator(member.UserID)
	isModerator := isAdministrator || s.holdsAny(member, s.moderatorRoles)
	isProtected := isModerator || s.holdsAny(member, s.protectedRoles)

	return model.Classification{
		Administrator: isAdministrator,
		Moderator:     isModerator,
		Protected:     isProtected,
	}
}

func (s *Service) IsAdministrator(userID string) bool {
	_, ok := s.administrators[strings.TrimSpace(userID)]
	return ok
}

func (s *Service) CanActOnOthers(member model.Member) bool {
	class := s.Classify(member)
	return class.Moderator || class.Administrator
}

// ResolveTargets returns the users a trigger applies to, in mention order. Authors who
// cannot act on others always target themselves.
func (s *Service) ResolveTargets(ctx context.Context, msg model.Message, canActOnOthers bool, selfID string, resolver ReferenceResolver) ([]string, error) {
	author := []string{msg.Author.UserID}
	if !canActOnOthers {
		return author, nil
	}

	mentions := msg.MentionIDs
	if len(mentions) == 0 && msg.ReferencedMessageID != "" {
		referenced := msg.ReferencedAuthorID
		if referenced == "" && resolver != nil {
			var err error
			referenced, err = resolver.ReferencedAuthor(ctx, msg)
			if err != nil {
				return nil, err
			}
		}
		if referenced != "" {
			mentions = []string{referenced}
		}
	}

	seen := make(map[string]struct{}, len(mentions))
	targets := make([]string, 0, len(mentions))
	for _, id := range mentions {
		if id == "" || id == selfID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		targets = append(targets, id)
	}

	if len(targets) == 0 {
		return author, nil
	}
	return targets, nil
}

func (s *Service) holdsAny(member model.Member, roles map[string]struct{}) bool {
	for _, id := range member.RoleIDs {
		if _, ok := roles[id]; ok {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}
