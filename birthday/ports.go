package birthday

import (
	"context"

	"cakeday/models"
)

// Group is a guild the bot is a member of.
type Group struct {
	ID   string
	Name string
}

// Member is a user's membership in a group.
type Member struct {
	GroupID  string
	UserID   string
	Username string
	Roles    []string
}

// Store persists birthdays.
type Store interface {
	ListBirthdays(ctx context.Context) ([]models.Birthday, error)
	UpdateLastWishedYear(ctx context.Context, id string, year int) error
}

// Gateway is the part of the chat platform the scheduler talks to.
//
// Groups must return groups in the same order on every call. FindMember
// returns an error wrapping ErrMemberNotFound when the user isn't in the
// group. CheckChannel and SendMessage wrap ErrChannelUnavailable when the
// channel can't be posted to.
type Gateway interface {
	Groups(ctx context.Context) ([]Group, error)
	FindMember(ctx context.Context, group Group, userID string) (Member, error)
	CheckChannel(ctx context.Context, channelID string) error
	SendMessage(ctx context.Context, channelID string, content string) error
	MemberHasRole(member Member, roleID string) bool
	GrantRole(ctx context.Context, member Member, roleID string) error
	RevokeRole(ctx context.Context, member Member, roleID string) error
	RoleHolders(ctx context.Context, group Group, roleID string) ([]Member, error)
}
