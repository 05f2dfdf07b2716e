package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"

	"cakeday/birthday"
	"cakeday/dal"
	"cakeday/discordutils"
	"cakeday/logging"
	"cakeday/models"
)

const (
	cmdBirthday       = "birthday"
	cmdBirthdaySet    = "birthday-set"
	cmdBirthdayForget = "birthday-forget"
	cmdBirthdayRemove = "birthday-remove"
	cmdBirthdayNext   = "birthday-next"

	optUser     = "user"
	optDate     = "date"
	optTimezone = "timezone"
)

// Birthday date formats used in commands.
const (
	BirthdayDateExample         = "01-02"
	BirthdayDateFormat          = "MM-DD"
	BirthdayDateResponseExample = "January 2"
)

const birthdaySetCooldown = 3 * 24 * time.Hour
const prettyDateFormat = "2006-01-02"
const prettyTimeFormat = "15:04:05"

// upcomingLimit is how many birthdays /birthday-next lists.
const upcomingLimit = 3

// Birthday looks up a birthday.
func (bot *Bot) Birthday(ctx context.Context, i *discordgo.InteractionCreate) string {
	options := optionMap(i.ApplicationCommandData().Options)

	user := discordutils.InteractionUser(i.Interaction)
	if opt, ok := options[optUser]; ok {
		user = opt.UserValue(nil)
	}

	record, err := bot.store.GetBirthday(ctx, user.ID)
	if errors.Is(err, dal.ErrNotFound) {
		return fmt.Sprintf(
			"%v hasn't registered their birthday with me yet.",
			user.Mention(),
		)
	}
	if err != nil {
		logging.FromContext(ctx).Error("failed to look up birthday", "error", err)
		return "I couldn't look that up right now, try again later."
	}

	return fmt.Sprintf(
		"I've got %v's birthday down as %v (%v).",
		user.Mention(),
		record.Date().Format(BirthdayDateResponseExample),
		record.Timezone,
	)
}

// BirthdaySet saves the caller's birthday.
func (bot *Bot) BirthdaySet(ctx context.Context, i *discordgo.InteractionCreate) string {
	user := discordutils.InteractionUser(i.Interaction)
	uid := userID(user.ID)
	now := bot.now()

	if ok, lastUse := bot.cooldown.check(uid, now); !ok {
		return cooldownReply(lastUse, now)
	}

	options := optionMap(i.ApplicationCommandData().Options)

	month, day, err := parseBirthdayDate(stringOption(options, optDate))
	if err != nil {
		return fmt.Sprintf(
			"Invalid date given! Make sure you use %v format. "+
				"For example: %v (2nd January).",
			BirthdayDateFormat,
			BirthdayDateExample,
		)
	}

	timezone := strings.TrimSpace(stringOption(options, optTimezone))
	if _, err := bot.resolver.Location(timezone); err != nil {
		return fmt.Sprintf(
			"I don't know the timezone %q. Use a name from the tz database, "+
				"like Europe/London or America/New_York.",
			timezone,
		)
	}

	saved, err := bot.store.UpsertBirthday(ctx, models.Birthday{
		DiscordID: user.ID,
		Month:     month,
		Day:       day,
		Timezone:  timezone,
	})
	if err != nil {
		logging.FromContext(ctx).Error("failed to save birthday", "error", err)
		return fmt.Sprintf("Failed to set %v's birthday: %v", user.Mention(), err)
	}

	bot.cooldown.record(uid, now)
	logging.FromContext(ctx).Info("saved birthday", "month", month, "day", day, "timezone", timezone)

	// the new date might already have begun somewhere
	if bot.scheduler != nil {
		bot.scheduler.Trigger()
	}

	return fmt.Sprintf(
		"Saved %v (%v) as %v's birthday.",
		saved.Date().Format(BirthdayDateResponseExample),
		saved.Timezone,
		user.Mention(),
	)
}

// BirthdayForget removes the caller's birthday.
func (bot *Bot) BirthdayForget(ctx context.Context, i *discordgo.InteractionCreate) string {
	user := discordutils.InteractionUser(i.Interaction)
	now := bot.now()

	if ok, lastUse := bot.cooldown.check(userID(user.ID), now); !ok {
		return cooldownReply(lastUse, now)
	}

	deleted, err := bot.store.DeleteBirthday(ctx, user.ID)
	if err != nil {
		logging.FromContext(ctx).Error("failed to delete birthday", "error", err)
		return fmt.Sprintf(
			"I'm unable to delete your birthday: %v\n"+
				"Please contact an admin to resolve this issue.",
			err,
		)
	}
	if !deleted {
		return "I don't seem to have your birthday on record. " +
			"Isn't that a lovely coincidence?"
	}

	logging.FromContext(ctx).Info("forgot birthday")
	return "I have erased your birthday."
}

// BirthdayRemove removes another user's birthday. Officers only.
func (bot *Bot) BirthdayRemove(ctx context.Context, i *discordgo.InteractionCreate) string {
	guild, _ := bot.session.State.Guild(i.GuildID)
	if !discordutils.MemberIsOfficer(guild, i.Member, bot.officerRoleIDs) {
		return "Nice try."
	}

	options := optionMap(i.ApplicationCommandData().Options)
	opt, ok := options[optUser]
	if !ok {
		return "Who should I forget?"
	}
	target := opt.UserValue(nil)

	deleted, err := bot.store.DeleteBirthday(ctx, target.ID)
	if err != nil {
		logging.FromContext(ctx).Error("failed to remove birthday", "target_id", target.ID, "error", err)
		return fmt.Sprintf("Failed to remove %v's birthday: %v", target.Mention(), err)
	}
	if !deleted {
		return fmt.Sprintf("%v doesn't have a birthday on record.", target.Mention())
	}

	logging.FromContext(ctx).Info("removed birthday", "target_id", target.ID)
	return fmt.Sprintf("Removed %v's birthday.", target.Mention())
}

// BirthdayNext lists the next upcoming birthdays.
func (bot *Bot) BirthdayNext(ctx context.Context, i *discordgo.InteractionCreate) string {
	records, err := bot.store.ListBirthdays(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("failed to list birthdays", "error", err)
		return "I couldn't look that up right now, try again later."
	}

	now := bot.now()
	next := nextBirthdays(bot.resolver, records, now, upcomingLimit)
	if len(next) == 0 {
		return "I don't know anyone's birthday yet."
	}

	var b strings.Builder
	b.WriteString("Upcoming birthdays:")
	for _, u := range next {
		when := humanize.RelTime(u.start, now, "ago", "from now")
		if !u.start.After(now) {
			when = "today 🎂"
		}
		fmt.Fprintf(&b, "\n%v: %v, %v",
			u.record.Mention(),
			u.record.Date().Format(BirthdayDateResponseExample),
			when,
		)
	}
	return b.String()
}

type upcoming struct {
	record models.Birthday
	start  time.Time
}

// nextBirthdays returns up to limit records ordered by when their current or
// next birthday begins in their own timezone.
func nextBirthdays(
	resolver *birthday.Resolver,
	records []models.Birthday,
	now time.Time,
	limit int,
) []upcoming {
	var next []upcoming
	for _, record := range records {
		start, err := resolver.NextBirthday(record.Timezone, record.Month, record.Day, now)
		if err != nil {
			continue
		}
		next = append(next, upcoming{record: record, start: start})
	}

	sort.SliceStable(next, func(a, b int) bool {
		if !next[a].start.Equal(next[b].start) {
			return next[a].start.Before(next[b].start)
		}
		return next[a].record.DiscordID < next[b].record.DiscordID
	})

	if len(next) > limit {
		next = next[:limit]
	}
	return next
}

func parseBirthdayDate(value string) (uint, uint, error) {
	date, err := time.Parse(BirthdayDateExample, strings.TrimSpace(value))
	if err != nil {
		return 0, 0, err
	}
	month, day := uint(date.Month()), uint(date.Day())
	if err := models.ValidateDate(month, day); err != nil {
		return 0, 0, err
	}
	return month, day, nil
}

func cooldownReply(lastUse, now time.Time) string {
	nextUse := lastUse.Add(birthdaySetCooldown)
	return fmt.Sprintf(
		"You last changed your birthday on %v at %v. "+
			"You can change it again %v.",
		lastUse.UTC().Format(prettyDateFormat),
		lastUse.UTC().Format(prettyTimeFormat),
		humanize.RelTime(nextUse, now, "ago", "from now"),
	)
}

func optionMap(
	options []*discordgo.ApplicationCommandInteractionDataOption,
) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func stringOption(
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
	name string,
) string {
	if opt, ok := options[name]; ok && opt.Type == discordgo.ApplicationCommandOptionString {
		return opt.StringValue()
	}
	return ""
}

// cooldown limits how often each user can change their birthday.
type cooldown struct {
	mu      sync.Mutex
	period  time.Duration
	lastUse map[userID]time.Time
}

func newCooldown(period time.Duration) *cooldown {
	return &cooldown{period: period, lastUse: make(map[userID]time.Time)}
}

// check returns true if uid may make a change at now, and otherwise the time
// of their last change.
func (c *cooldown) check(uid userID, now time.Time) (bool, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lastUse, ok := c.lastUse[uid]; ok {
		nextUse := lastUse.Add(c.period)
		return !nextUse.After(now), lastUse
	}
	return true, time.Time{}
}

func (c *cooldown) record(uid userID, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUse[uid] = now
}
