package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/Moe-and-Friends/Amazake/internal/domain/model"
)

const Intents = discordgo.IntentGuilds |
	discordgo.IntentGuildMessages |
	discordgo.IntentGuildMembers |
	discordgo.IntentMessageContent

// MessageHandler receives every guild message once the gateway is connected.
type MessageHandler func(msg model.Message)

// Client adapts a discordgo session to the platform calls the roulette needs. Lookups
// read the gateway state first and fall back to the REST API.
type Client struct {
	session   *discordgo.Session
	selfID    atomic.Value
	ready     chan struct{}
	readyOnce sync.Once
	logger    *zap.Logger
}

func NewClient(token string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if token == "" {
		return nil, fmt.Errorf("%w: discord token is empty", model.ErrInvalidConfig)
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = Intents
	session.StateEnabled = true

	client := &Client{
		session: session,
		ready:   make(chan struct{}),
		logger:  logger,
	}
	client.selfID.Store("")
	return client, nil
}

// Open registers handlers and connects to the gateway. Ready is closed on the first
// READY event.
func (c *Client) Open(onMessage MessageHandler) error {
	c.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		if r.User != nil {
			c.selfID.Store(r.User.ID)
		}
		c.logger.Info("discord gateway ready", zap.String("user_id", c.SelfID()), zap.Int("guilds", len(r.Guilds)))
		c.readyOnce.Do(func() { close(c.ready) })
	})

	if onMessage != nil {
		c.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			if m == nil || m.Message == nil || m.Author == nil {
				return
			}
			onMessage(toMessage(m))
		})
	}

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	return nil
}

func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

func (c *Client) SelfID() string {
	id, _ := c.selfID.Load().(string)
	return id
}

func (c *Client) Close() error {
	if c == nil || c.session == nil {
		return nil
	}
	return c.session.Close()
}

func (c *Client) Guild(ctx context.Context, guildID string) (model.Guild, error) {
	guild, err := c.session.State.Guild(guildID)
	if err != nil {
		guild, err = c.session.Guild(guildID, discordgo.WithContext(ctx))
		if err != nil {
			return model.Guild{}, classify("get guild "+guildID, err)
		}
	}
	return model.Guild{ID: guild.ID, Name: guild.Name}, nil
}

func (c *Client) Member(ctx context.Context, guildID, userID string) (model.Member, error) {
	member, err := c.session.State.Member(guildID, userID)
	if err != nil {
		member, err = c.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
		if err != nil {
			return model.Member{}, classify("get member "+userID, err)
		}
	}
	return toMember(member.User, member), nil
}

func (c *Client) Role(ctx context.Context, guildID, roleID string) (model.Role, error) {
	role, err := c.session.State.Role(guildID, roleID)
	if err == nil {
		return model.Role{ID: role.ID, Name: role.Name}, nil
	}

	roles, err := c.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return model.Role{}, classify("get roles of guild "+guildID, err)
	}
	for _, role := range roles {
		if role.ID == roleID {
			return model.Role{ID: role.ID, Name: role.Name}, nil
		}
	}
	return model.Role{}, fmt.Errorf("get role %s: %w", roleID, model.ErrNotFound)
}

func (c *Client) Timeout(ctx context.Context, guildID, userID string, until time.Time, reason string) error {
	err := c.session.GuildMemberTimeout(guildID, userID, &until,
		discordgo.WithContext(ctx),
		discordgo.WithAuditLogReason(reason),
	)
	if err != nil {
		return classify("timeout member "+userID, err)
	}
	return nil
}

func (c *Client) AddRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	err := c.session.GuildMemberRoleAdd(guildID, userID, roleID,
		discordgo.WithContext(ctx),
		discordgo.WithAuditLogReason(reason),
	)
	if err != nil {
		return classify("add role "+roleID, err)
	}
	return nil
}

func (c *Client) RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	err := c.session.GuildMemberRoleRemove(guildID, userID, roleID,
		discordgo.WithContext(ctx),
		discordgo.WithAuditLogReason(reason),
	)
	if err != nil {
		return classify("remove role "+roleID, err)
	}
	return nil
}

func (c *Client) Reply(ctx context.Context, msg model.Message, text string) error {
	_, err := c.session.ChannelMessageSendReply(msg.ChannelID, text, &discordgo.MessageReference{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return classify("reply to message "+msg.ID, err)
	}
	return nil
}

func (c *Client) Typing(ctx context.Context, channelID string) error {
	if err := c.session.ChannelTyping(channelID, discordgo.WithContext(ctx)); err != nil {
		return classify("typing in channel "+channelID, err)
	}
	return nil
}

// ReferencedAuthor fetches the message msg replies to and returns its author.
func (c *Client) ReferencedAuthor(ctx context.Context, msg model.Message) (string, error) {
	if msg.ReferencedMessageID == "" {
		return "", nil
	}

	if cached, err := c.session.State.Message(msg.ChannelID, msg.ReferencedMessageID); err == nil && cached.Author != nil {
		return cached.Author.ID, nil
	}

	ref, err := c.session.ChannelMessage(msg.ChannelID, msg.ReferencedMessageID, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify("fetch referenced message "+msg.ReferencedMessageID, err)
	}
	if ref.Author == nil {
		return "", nil
	}
	return ref.Author.ID, nil
}

// classify maps REST failures onto the shared error taxonomy.
func classify(op string, err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w: %v", op, model.ErrNotFound, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w: %v", op, model.ErrForbidden, err)
		}
	}
	return fmt.Errorf("%s: %w: %v", op, model.ErrPlatformTransient, err)
}

func toMessage(m *discordgo.MessageCreate) model.Message {
	msg := model.Message{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
		Author:    toMember(m.Author, m.Member),
		CreatedAt: m.Timestamp,
	}

	msg.MentionIDs = make([]string, 0, len(m.Mentions))
	for _, user := range m.Mentions {
		if user != nil {
			msg.MentionIDs = append(msg.MentionIDs, user.ID)
		}
	}

	if m.MessageReference != nil {
		msg.ReferencedMessageID = m.MessageReference.MessageID
	}
	if m.ReferencedMessage != nil {
		msg.ReferencedMessageID = m.ReferencedMessage.ID
		if m.ReferencedMessage.Author != nil {
			msg.ReferencedAuthorID = m.ReferencedMessage.Author.ID
		}
	}

	return msg
}

func toMember(user *discordgo.User, member *discordgo.Member) model.Member {
	var out model.Member
	if user == nil && member != nil {
		user = member.User
	}
	if user != nil {
		out.UserID = user.ID
		out.Username = user.Username
		out.DisplayName = user.GlobalName
		out.Bot = user.Bot
	}
	if member != nil {
		if member.Nick != "" {
			out.DisplayName = member.Nick
		}
		out.RoleIDs = append([]string(nil), member.Roles...)
	}
	return out
}
