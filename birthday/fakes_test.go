package birthday

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
	_ "time/tzdata"

	"cakeday/models"
)

type fakeStore struct {
	mu        sync.Mutex
	records   []models.Birthday
	listErr   error
	updateErr error
	updates   int
}

func newFakeStore(records ...models.Birthday) *fakeStore {
	return &fakeStore{records: records}
}

func (s *fakeStore) ListBirthdays(ctx context.Context) ([]models.Birthday, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return slices.Clone(s.records), nil
}

func (s *fakeStore) UpdateLastWishedYear(ctx context.Context, id string, year int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if s.updateErr != nil {
		return s.updateErr
	}
	for i := range s.records {
		if s.records[i].ID == id {
			y := year
			s.records[i].LastWishedYear = &y
			return nil
		}
	}
	return errors.New("no such record")
}

func (s *fakeStore) get(id string) models.Birthday {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return r
		}
	}
	return models.Birthday{}
}

type fakeGateway struct {
	mu      sync.Mutex
	groups  []Group
	members map[string]map[string][]string // guild -> user -> roles

	channelErr error
	sendErr    error
	lookupErr  map[string]error // guild -> error
	grantErr   map[string]error
	revokeErr  map[string]error
	holdersErr map[string]error

	// when set, Groups blocks until it's closed
	block   chan struct{}
	entered chan struct{}
	panics  bool

	// called with the send's context before the message is recorded
	onSend func(ctx context.Context)

	sent    []string
	grants  []string
	revokes []string
}

func newFakeGateway(groups ...string) *fakeGateway {
	g := &fakeGateway{
		members:    make(map[string]map[string][]string),
		lookupErr:  make(map[string]error),
		grantErr:   make(map[string]error),
		revokeErr:  make(map[string]error),
		holdersErr: make(map[string]error),
	}
	for _, id := range groups {
		g.groups = append(g.groups, Group{ID: id, Name: "guild " + id})
		g.members[id] = make(map[string][]string)
	}
	return g
}

func (g *fakeGateway) addMember(groupID, userID string, roles ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[groupID][userID] = roles
}

func (g *fakeGateway) hasRole(groupID, userID, roleID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Contains(g.members[groupID][userID], roleID)
}

func (g *fakeGateway) sentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

func (g *fakeGateway) Groups(ctx context.Context) ([]Group, error) {
	if g.panics {
		panic("gateway exploded")
	}
	if g.block != nil {
		if g.entered != nil {
			close(g.entered)
		}
		select {
		case <-g.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return slices.Clone(g.groups), nil
}

func (g *fakeGateway) FindMember(ctx context.Context, group Group, userID string) (Member, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.lookupErr[group.ID]; err != nil {
		return Member{}, err
	}
	roles, ok := g.members[group.ID][userID]
	if !ok {
		return Member{}, fmt.Errorf("%s in %s: %w", userID, group.ID, ErrMemberNotFound)
	}
	return Member{GroupID: group.ID, UserID: userID, Roles: slices.Clone(roles)}, nil
}

func (g *fakeGateway) CheckChannel(ctx context.Context, channelID string) error {
	return g.channelErr
}

func (g *fakeGateway) SendMessage(ctx context.Context, channelID string, content string) error {
	if g.onSend != nil {
		g.onSend(ctx)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return g.sendErr
	}
	g.sent = append(g.sent, content)
	return nil
}

func (g *fakeGateway) MemberHasRole(member Member, roleID string) bool {
	return slices.Contains(member.Roles, roleID)
}

func (g *fakeGateway) GrantRole(ctx context.Context, member Member, roleID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.grantErr[member.GroupID]; err != nil {
		return err
	}
	g.members[member.GroupID][member.UserID] = append(g.members[member.GroupID][member.UserID], roleID)
	g.grants = append(g.grants, member.GroupID+"/"+member.UserID)
	return nil
}

func (g *fakeGateway) RevokeRole(ctx context.Context, member Member, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.revokeErr[member.UserID]; err != nil {
		return err
	}
	roles := g.members[member.GroupID][member.UserID]
	g.members[member.GroupID][member.UserID] = slices.DeleteFunc(slices.Clone(roles), func(r string) bool {
		return r == roleID
	})
	g.revokes = append(g.revokes, member.GroupID+"/"+member.UserID)
	return nil
}

func (g *fakeGateway) RoleHolders(ctx context.Context, group Group, roleID string) ([]Member, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.holdersErr[group.ID]; err != nil {
		return nil, err
	}
	var holders []Member
	for userID, roles := range g.members[group.ID] {
		if slices.Contains(roles, roleID) {
			holders = append(holders, Member{GroupID: group.ID, UserID: userID, Roles: slices.Clone(roles)})
		}
	}
	slices.SortFunc(holders, func(a, b Member) int {
		switch {
		case a.UserID < b.UserID:
			return -1
		case a.UserID > b.UserID:
			return 1
		}
		return 0
	})
	return holders, nil
}

type fixedPicker int

func (p fixedPicker) Intn(n int) int { return int(p) % n }

func record(id, discordID string, month, day uint, timezone string, lastWished *int) models.Birthday {
	return models.Birthday{
		ID:             id,
		DiscordID:      discordID,
		Month:          month,
		Day:            day,
		Timezone:       timezone,
		LastWishedYear: lastWished,
	}
}

func year(y int) *int { return &y }

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}
