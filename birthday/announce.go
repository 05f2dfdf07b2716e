package birthday

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cakeday/logging"
	"cakeday/models"
)

// PostingHour is the local hour from which a birthday may be announced.
const PostingHour = 0

// finishTimeout bounds the role grant and year write that follow a sent wish.
const finishTimeout = 15 * time.Second

// AnnounceReport counts what happened to each record in one announcement
// phase.
type AnnounceReport struct {
	Checked  int `json:"checked"`
	Wished   int `json:"wished"`
	NotFound int `json:"not_found"`
	Failed   int `json:"failed"`
}

// Announcer wishes users whose birthday has begun in their own timezone and
// grants them the birthday role.
type Announcer struct {
	Store     Store
	Gateway   Gateway
	Resolver  *Resolver
	ChannelID string
	RoleID    string // empty disables role grants
	Messages  []string
	Picker    Picker
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeWished
	outcomeNotFound
	outcomeFailed
)

// Eligible returns true if the record should be wished at local time.
func Eligible(record models.Birthday, local LocalTime) bool {
	return IsBirthday(record.Month, record.Day, local) &&
		local.Hour >= PostingHour &&
		!record.WishedIn(local.Year)
}

// Announce processes records one at a time. Failures are contained to the
// record they happen on, except an unavailable announcement channel, which
// stops the phase and is returned. groups is searched in order.
func (a *Announcer) Announce(
	ctx context.Context,
	records []models.Birthday,
	groups []Group,
	now time.Time,
) (AnnounceReport, error) {
	logger := logging.FromContext(ctx)
	var report AnnounceReport

	if err := a.Gateway.CheckChannel(ctx, a.ChannelID); err != nil {
		return report, channelError(err)
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		result, err := a.announce(ctx, record, groups, now)
		switch result {
		case outcomeWished:
			report.Wished++
		case outcomeNotFound:
			report.NotFound++
		case outcomeFailed:
			report.Failed++
		}

		if err != nil {
			if errors.Is(err, ErrChannelUnavailable) {
				return report, err
			}
			logger.Error("failed to process birthday",
				"discord_id", record.DiscordID,
				"timezone", record.Timezone,
				"error", err,
			)
		}
	}

	return report, nil
}

func (a *Announcer) announce(
	ctx context.Context,
	record models.Birthday,
	groups []Group,
	now time.Time,
) (outcome, error) {
	logger := logging.FromContext(ctx).With("discord_id", record.DiscordID)

	local, err := a.Resolver.Resolve(record.Timezone, now)
	if err != nil {
		return outcomeFailed, err
	}

	if !Eligible(record, local) {
		return outcomeSkipped, nil
	}

	member, err := a.findMember(ctx, groups, record.DiscordID)
	if err != nil {
		logger.Warn("skipping birthday, user not found in any guild")
		return outcomeNotFound, nil
	}

	message := PickMessage(a.Picker, a.Messages, record.Mention())
	if err := a.Gateway.SendMessage(ctx, a.ChannelID, message); err != nil {
		if errors.Is(err, ErrChannelUnavailable) {
			return outcomeFailed, err
		}
		return outcomeFailed, fmt.Errorf("send birthday message: %w", err)
	}
	logger.Info("sent birthday wish", "guild_id", member.GroupID, "year", local.Year)

	// The wish is out, so the record is finished even if the pass is being
	// stopped. Otherwise the user would be wished again after a restart.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if a.RoleID != "" {
		a.grantRole(finishCtx, groups, member, record.DiscordID)
	}

	if err := a.Store.UpdateLastWishedYear(finishCtx, record.ID, local.Year); err != nil {
		// The record stays eligible, so the next pass wishes again.
		logger.Error("failed to record birthday wish",
			"year", local.Year,
			"error", fmt.Errorf("%w: %w", ErrPersistence, err),
		)
	}

	return outcomeWished, nil
}

// findMember returns the user's membership in the first group they're in.
func (a *Announcer) findMember(
	ctx context.Context,
	groups []Group,
	userID string,
) (Member, error) {
	for _, group := range groups {
		member, err := a.Gateway.FindMember(ctx, group, userID)
		if err == nil {
			return member, nil
		}
		if !errors.Is(err, ErrMemberNotFound) {
			logging.FromContext(ctx).Warn("member lookup failed",
				"discord_id", userID,
				"guild_id", group.ID,
				"error", err,
			)
		}
	}
	return Member{}, ErrMemberNotFound
}

// grantRole gives the birthday role to the user in every group they're in.
func (a *Announcer) grantRole(
	ctx context.Context,
	groups []Group,
	found Member,
	userID string,
) {
	logger := logging.FromContext(ctx).With("discord_id", userID, "role_id", a.RoleID)

	for _, group := range groups {
		member := found
		if group.ID != found.GroupID {
			var err error
			member, err = a.Gateway.FindMember(ctx, group, userID)
			if err != nil {
				if !errors.Is(err, ErrMemberNotFound) {
					logger.Warn("member lookup failed, not adding birthday role",
						"guild_id", group.ID,
						"error", err,
					)
				}
				continue
			}
		}

		if a.Gateway.MemberHasRole(member, a.RoleID) {
			continue
		}

		if err := a.Gateway.GrantRole(ctx, member, a.RoleID); err != nil {
			logger.Error("failed to add birthday role",
				"guild_id", group.ID,
				"error", fmt.Errorf("%w: %w", ErrRoleOperation, err),
			)
			continue
		}
		logger.Info("added birthday role", "guild_id", group.ID)
	}
}

func channelError(err error) error {
	if errors.Is(err, ErrChannelUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
}
