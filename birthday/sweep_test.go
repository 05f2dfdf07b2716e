package birthday

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cakeday/models"
)

func sweepOnce(t *testing.T, gateway *fakeGateway, records []models.Birthday, now time.Time) SweepReport {
	t.Helper()
	s := &Sweeper{Gateway: gateway, Resolver: NewResolver(), RoleID: roleID}
	report, err := s.Sweep(context.Background(), gateway.groups, records, now)
	require.NoError(t, err)
	return report
}

func TestSweepRemovesOrphanedRole(t *testing.T) {
	t.Parallel()

	gateway := newFakeGateway("g1")
	gateway.addMember("g1", "stranger", roleID, "other-role")

	report := sweepOnce(t, gateway, nil, utc(2024, time.March, 9, 12, 0))
	require.Equal(t, SweepReport{Holders: 1, Revoked: 1}, report)
	require.False(t, gateway.hasRole("g1", "stranger", roleID))
	require.True(t, gateway.hasRole("g1", "stranger", "other-role"))
}

func TestSweepKeepsRoleForTheWholeLocalDay(t *testing.T) {
	t.Parallel()

	records := []models.Birthday{record("b1", "alice", 3, 9, "America/Los_Angeles", year(2024))}
	gateway := newFakeGateway("g1")
	gateway.addMember("g1", "alice", roleID)

	// 2024-03-10 07:00 UTC is still 23:00 on the 9th in Los Angeles.
	report := sweepOnce(t, gateway, records, utc(2024, time.March, 10, 7, 0))
	require.Equal(t, SweepReport{Holders: 1}, report)
	require.True(t, gateway.hasRole("g1", "alice", roleID))

	// an hour later it's the 10th
	report = sweepOnce(t, gateway, records, utc(2024, time.March, 10, 8, 0))
	require.Equal(t, SweepReport{Holders: 1, Revoked: 1}, report)
	require.False(t, gateway.hasRole("g1", "alice", roleID))
}

func TestSweepRevokesHoldersWithBadTimezones(t *testing.T) {
	t.Parallel()

	records := []models.Birthday{record("b1", "alice", 3, 9, "Nowhere/Special", nil)}
	gateway := newFakeGateway("g1")
	gateway.addMember("g1", "alice", roleID)

	report := sweepOnce(t, gateway, records, utc(2024, time.March, 9, 12, 0))
	require.Equal(t, 1, report.Revoked)
}

func TestSweepLeapDay(t *testing.T) {
	t.Parallel()

	records := []models.Birthday{record("b1", "leapling", 2, 29, "UTC", year(2023))}
	gateway := newFakeGateway("g1")
	gateway.addMember("g1", "leapling", roleID)

	sweepOnce(t, gateway, records, utc(2023, time.February, 28, 23, 0))
	require.True(t, gateway.hasRole("g1", "leapling", roleID))

	sweepOnce(t, gateway, records, utc(2023, time.March, 1, 0, 0))
	require.False(t, gateway.hasRole("g1", "leapling", roleID))
}

func TestSweepIsolatesFailures(t *testing.T) {
	t.Parallel()

	gateway := newFakeGateway("g1", "g2", "g3")
	gateway.addMember("g1", "a", roleID)
	gateway.addMember("g1", "b", roleID)
	gateway.addMember("g2", "c", roleID)
	gateway.addMember("g3", "d", roleID)
	gateway.revokeErr["a"] = errors.New("missing permissions")
	gateway.holdersErr["g2"] = errors.New("guild unavailable")

	report := sweepOnce(t, gateway, nil, utc(2024, time.March, 9, 12, 0))
	require.Equal(t, SweepReport{Holders: 3, Revoked: 2, Failed: 2}, report)
	require.True(t, gateway.hasRole("g1", "a", roleID))
	require.False(t, gateway.hasRole("g1", "b", roleID))
	require.True(t, gateway.hasRole("g2", "c", roleID))
	require.False(t, gateway.hasRole("g3", "d", roleID))
}

func TestSweepWithoutRoleIsNoop(t *testing.T) {
	t.Parallel()

	gateway := newFakeGateway("g1")
	gateway.addMember("g1", "stranger", roleID)

	s := &Sweeper{Gateway: gateway, Resolver: NewResolver()}
	report, err := s.Sweep(context.Background(), gateway.groups, nil, time.Now())
	require.NoError(t, err)
	require.Zero(t, report)
	require.True(t, gateway.hasRole("g1", "stranger", roleID))
}

func TestSweepLeavesOnlyJustifiedHolders(t *testing.T) {
	t.Parallel()

	now := utc(2024, time.March, 9, 12, 0)
	records := []models.Birthday{
		record("b1", "today-utc", 3, 9, "UTC", nil),
		record("b2", "today-tokyo", 3, 9, "Asia/Tokyo", nil),
		record("b3", "yesterday", 3, 8, "UTC", nil),
		record("b4", "tomorrow-tokyo", 3, 10, "Asia/Tokyo", nil),
	}
	gateway := newFakeGateway("g1", "g2")
	for _, r := range records {
		gateway.addMember("g1", r.DiscordID, roleID)
		gateway.addMember("g2", r.DiscordID, roleID)
	}
	gateway.addMember("g2", "orphan", roleID)

	sweepOnce(t, gateway, records, now)

	resolver := NewResolver()
	byUser := map[string]models.Birthday{}
	for _, r := range records {
		byUser[r.DiscordID] = r
	}
	for _, group := range gateway.groups {
		holders, err := gateway.RoleHolders(context.Background(), group, roleID)
		require.NoError(t, err)
		for _, holder := range holders {
			r, ok := byUser[holder.UserID]
			require.True(t, ok, holder.UserID)
			local, err := resolver.Resolve(r.Timezone, now)
			require.NoError(t, err)
			require.True(t, IsBirthday(r.Month, r.Day, local), holder.UserID)
		}
		require.Len(t, holders, 2)
	}
}
