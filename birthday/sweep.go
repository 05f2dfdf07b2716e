package birthday

import (
	"context"
	"fmt"
	"time"

	"cakeday/logging"
	"cakeday/models"
)

// SweepReport counts what one sweep did.
type SweepReport struct {
	Holders int `json:"holders"`
	Revoked int `json:"revoked"`
	Failed  int `json:"failed"`
}

// Sweeper takes the birthday role back from members whose birthday is over in
// their own timezone, or who no longer have a birthday on record.
type Sweeper struct {
	Gateway  Gateway
	Resolver *Resolver
	RoleID   string // empty disables the sweep
}

// Sweep checks every holder of the birthday role in every group. Failures
// are contained to the member or group they happen on.
func (s *Sweeper) Sweep(
	ctx context.Context,
	groups []Group,
	records []models.Birthday,
	now time.Time,
) (SweepReport, error) {
	var report SweepReport
	if s.RoleID == "" {
		return report, nil
	}

	logger := logging.FromContext(ctx).With("role_id", s.RoleID)

	byUser := make(map[string]models.Birthday, len(records))
	for _, record := range records {
		byUser[record.DiscordID] = record
	}

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		holders, err := s.Gateway.RoleHolders(ctx, group, s.RoleID)
		if err != nil {
			logger.Error("failed to list birthday role holders", "guild_id", group.ID, "error", err)
			report.Failed++
			continue
		}

		for _, holder := range holders {
			report.Holders++

			reason, expired := s.expired(holder, byUser, now)
			if !expired {
				continue
			}

			if err := s.Gateway.RevokeRole(ctx, holder, s.RoleID); err != nil {
				logger.Error("failed to remove birthday role",
					"guild_id", group.ID,
					"discord_id", holder.UserID,
					"error", fmt.Errorf("%w: %w", ErrRoleOperation, err),
				)
				report.Failed++
				continue
			}
			report.Revoked++
			logger.Info("removed birthday role",
				"guild_id", group.ID,
				"discord_id", holder.UserID,
				"reason", reason,
			)
		}
	}

	return report, nil
}

func (s *Sweeper) expired(
	holder Member,
	byUser map[string]models.Birthday,
	now time.Time,
) (string, bool) {
	record, ok := byUser[holder.UserID]
	if !ok {
		// users without birthdays shouldn't have the role
		return "no birthday record", true
	}

	local, err := s.Resolver.Resolve(record.Timezone, now)
	if err != nil {
		return "invalid timezone", true
	}

	if !IsBirthday(record.Month, record.Day, local) {
		return "birthday over", true
	}
	return "", false
}
