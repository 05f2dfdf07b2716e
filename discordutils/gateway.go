package discordutils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sort"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"cakeday/birthday"
)

// membersPageSize is the largest page the guild members endpoint returns.
const membersPageSize = 1000

// restAPI is the part of *discordgo.Session the gateway calls.
type restAPI interface {
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMembers(guildID, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

// Gateway answers membership questions and performs messaging and role
// operations against discord. Reads are served from the session state cache
// when it has the answer. Every REST call waits on a shared rate limiter.
type Gateway struct {
	api     restAPI
	state   *discordgo.State
	limiter *rate.Limiter
}

// NewGateway returns a gateway over session that makes at most rps REST
// calls per second.
func NewGateway(session *discordgo.Session, rps float64) *Gateway {
	return newGateway(session, session.State, rps)
}

func newGateway(api restAPI, state *discordgo.State, rps float64) *Gateway {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Gateway{
		api:     api,
		state:   state,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (g *Gateway) wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// Groups returns the guilds the bot is in, in ascending id order.
func (g *Gateway) Groups(ctx context.Context) ([]birthday.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.state.RLock()
	groups := make([]birthday.Group, 0, len(g.state.Guilds))
	for _, guild := range g.state.Guilds {
		groups = append(groups, birthday.Group{ID: guild.ID, Name: guild.Name})
	}
	g.state.RUnlock()

	sort.Slice(groups, func(i, j int) bool {
		return SnowflakeLess(groups[i].ID, groups[j].ID)
	})
	return groups, nil
}

// FindMember looks the user up in the given guild.
func (g *Gateway) FindMember(ctx context.Context, group birthday.Group, userID string) (birthday.Member, error) {
	if member, err := g.state.Member(group.ID, userID); err == nil {
		return toMember(group.ID, member), nil
	}

	if err := g.wait(ctx); err != nil {
		return birthday.Member{}, err
	}
	member, err := g.api.GuildMember(group.ID, userID, discordgo.WithContext(ctx))
	if err != nil {
		if isMemberNotFound(err) {
			return birthday.Member{}, fmt.Errorf("%s in guild %s: %w", userID, group.ID, birthday.ErrMemberNotFound)
		}
		return birthday.Member{}, fmt.Errorf("look up %s in guild %s: %w", userID, group.ID, err)
	}
	return toMember(group.ID, member), nil
}

// CheckChannel checks that channelID is a text channel the bot can see.
func (g *Gateway) CheckChannel(ctx context.Context, channelID string) error {
	if channelID == "" {
		return fmt.Errorf("%w: no channel configured", birthday.ErrChannelUnavailable)
	}

	channel, err := g.state.Channel(channelID)
	if err != nil {
		if err := g.wait(ctx); err != nil {
			return err
		}
		channel, err = g.api.Channel(channelID, discordgo.WithContext(ctx))
		if err != nil {
			if isChannelUnavailable(err) {
				return fmt.Errorf("%w: %s: %w", birthday.ErrChannelUnavailable, channelID, err)
			}
			return fmt.Errorf("look up channel %s: %w", channelID, err)
		}
	}

	if !IsTextChannel(channel) {
		return fmt.Errorf("%w: %s is not a text channel", birthday.ErrChannelUnavailable, channelID)
	}
	return nil
}

// SendMessage posts content to channelID.
func (g *Gateway) SendMessage(ctx context.Context, channelID string, content string) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	_, err := g.api.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		if isChannelUnavailable(err) {
			return fmt.Errorf("%w: %s: %w", birthday.ErrChannelUnavailable, channelID, err)
		}
		return err
	}
	return nil
}

// MemberHasRole returns true if the given member has the given role.
func (g *Gateway) MemberHasRole(member birthday.Member, roleID string) bool {
	return slices.Contains(member.Roles, roleID)
}

// GrantRole adds roleID to the member.
func (g *Gateway) GrantRole(ctx context.Context, member birthday.Member, roleID string) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	err := g.api.GuildMemberRoleAdd(member.GroupID, member.UserID, roleID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: add %s to %s: %w", birthday.ErrRoleOperation, roleID, member.UserID, err)
	}
	return nil
}

// RevokeRole removes roleID from the member.
func (g *Gateway) RevokeRole(ctx context.Context, member birthday.Member, roleID string) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	err := g.api.GuildMemberRoleRemove(member.GroupID, member.UserID, roleID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: remove %s from %s: %w", birthday.ErrRoleOperation, roleID, member.UserID, err)
	}
	return nil
}

// RoleHolders lists the guild's members that currently hold roleID. The full
// member list is paged from the API since the state cache only knows about
// members it has seen.
func (g *Gateway) RoleHolders(ctx context.Context, group birthday.Group, roleID string) ([]birthday.Member, error) {
	var holders []birthday.Member
	after := ""

	for {
		if err := g.wait(ctx); err != nil {
			return nil, err
		}
		page, err := g.api.GuildMembers(group.ID, after, membersPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list members of guild %s: %w", group.ID, err)
		}

		for _, member := range FindMembersWithRole(roleID, page) {
			holders = append(holders, toMember(group.ID, member))
		}

		if len(page) < membersPageSize {
			return holders, nil
		}
		last := page[len(page)-1]
		if last.User == nil {
			return holders, nil
		}
		after = last.User.ID
	}
}

func toMember(guildID string, member *discordgo.Member) birthday.Member {
	m := birthday.Member{
		GroupID: guildID,
		Roles:   slices.Clone(member.Roles),
	}
	if member.User != nil {
		m.UserID = member.User.ID
		m.Username = member.User.Username
	}
	return m
}

// IsTextChannel returns true if messages can be posted to channel.
func IsTextChannel(channel *discordgo.Channel) bool {
	if channel == nil {
		return false
	}
	return channel.Type == discordgo.ChannelTypeGuildText ||
		channel.Type == discordgo.ChannelTypeGuildNews
}

// SnowflakeLess orders discord ids numerically without parsing them.
func SnowflakeLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func restErrorCode(err error) (int, int, bool) {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return 0, 0, false
	}
	status, code := 0, 0
	if restErr.Response != nil {
		status = restErr.Response.StatusCode
	}
	if restErr.Message != nil {
		code = restErr.Message.Code
	}
	return status, code, true
}

func isMemberNotFound(err error) bool {
	status, code, ok := restErrorCode(err)
	if !ok {
		return false
	}
	return code == discordgo.ErrCodeUnknownMember ||
		code == discordgo.ErrCodeUnknownUser ||
		status == http.StatusNotFound
}

func isChannelUnavailable(err error) bool {
	status, code, ok := restErrorCode(err)
	if !ok {
		return false
	}
	return code == discordgo.ErrCodeUnknownChannel ||
		code == discordgo.ErrCodeMissingAccess ||
		code == discordgo.ErrCodeMissingPermissions ||
		status == http.StatusNotFound ||
		status == http.StatusForbidden
}
