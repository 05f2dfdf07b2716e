package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"cakeday/birthday"
	"cakeday/discordutils"
	"cakeday/logging"
	"cakeday/models"
)

// commandTimeout bounds the work done for a single slash command.
const commandTimeout = 10 * time.Second

type commandHandler = func(context.Context, *discordgo.InteractionCreate) string

var botCommands = []*discordgo.ApplicationCommand{
	{
		Name:        cmdBirthday,
		Description: "Looks up a birthday.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        optUser,
				Description: "The user to look up. Defaults to you.",
				Required:    false,
			},
		},
	}, {
		Name:        cmdBirthdaySet,
		Description: "Saves your birthday.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type: discordgo.ApplicationCommandOptionString,
				Name: optDate,
				Description: fmt.Sprintf(
					"Your birthday (format: %v)",
					BirthdayDateFormat,
				),
				Required: true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        optTimezone,
				Description: "Your timezone, e.g. Europe/London or America/New_York.",
				Required:    true,
			},
		},
	}, {
		Name:        cmdBirthdayForget,
		Description: "Removes your birthday.",
	}, {
		Name:        cmdBirthdayRemove,
		Description: "Removes someone else's birthday. Officers only.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        optUser,
				Description: "The user whose birthday to remove.",
				Required:    true,
			},
		},
	}, {
		Name:        cmdBirthdayNext,
		Description: "Gets the next upcoming birthdays.",
	},
}

// Store is the birthday storage the commands need.
type Store interface {
	ListBirthdays(ctx context.Context) ([]models.Birthday, error)
	GetBirthday(ctx context.Context, discordID string) (*models.Birthday, error)
	UpsertBirthday(ctx context.Context, birthday models.Birthday) (*models.Birthday, error)
	DeleteBirthday(ctx context.Context, discordID string) (bool, error)
}

// Scheduler runs birthday passes.
type Scheduler interface {
	Start(ctx context.Context) error
	Trigger() bool
}

type Config struct {
	Token          string
	GuildID        string // empty registers commands globally
	OfficerRoleIDs []string
}

type userID string

// Bot represents an instance of the cakeday discord bot.
type Bot struct {
	session            *discordgo.Session
	store              Store
	scheduler          Scheduler
	resolver           *birthday.Resolver
	guildID            string
	officerRoleIDs     []string
	logger             *slog.Logger
	registeredCommands []*discordgo.ApplicationCommand
	commandHandlers    map[string]commandHandler
	cooldown           *cooldown
	now                func() time.Time
}

// New initialises a new bot. Nothing connects until Open.
func New(cfg Config, store Store, logger *slog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

	bot := newBot(session, store, cfg, logger)
	session.AddHandler(bot.onInteraction)
	return bot, nil
}

func newBot(session *discordgo.Session, store Store, cfg Config, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	bot := &Bot{
		session:        session,
		store:          store,
		resolver:       birthday.NewResolver(),
		guildID:        cfg.GuildID,
		officerRoleIDs: cfg.OfficerRoleIDs,
		logger:         logger.With("component", "bot"),
		cooldown:       newCooldown(birthdaySetCooldown),
		now:            time.Now,
	}

	bot.commandHandlers = map[string]commandHandler{
		cmdBirthday:       bot.Birthday,
		cmdBirthdaySet:    bot.BirthdaySet,
		cmdBirthdayForget: bot.BirthdayForget,
		cmdBirthdayRemove: bot.BirthdayRemove,
		cmdBirthdayNext:   bot.BirthdayNext,
	}
	return bot
}

// Session returns the bot's discord session.
func (bot *Bot) Session() *discordgo.Session {
	return bot.session
}

// Open connects to discord and registers the slash commands. The scheduler
// is started with ctx once the first Ready event arrives.
func (bot *Bot) Open(ctx context.Context, scheduler Scheduler) error {
	bot.scheduler = scheduler

	bot.session.AddHandlerOnce(func(s *discordgo.Session, r *discordgo.Ready) {
		bot.logger.Info("bot is up", "user", r.User.Username, "guilds", len(r.Guilds))
		if err := scheduler.Start(ctx); err != nil {
			bot.logger.Error("failed to start birthday scheduler", "error", err)
		}
	})

	if err := bot.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	return bot.registerCommands()
}

func (bot *Bot) registerCommands() error {
	for _, command := range botCommands {
		newCommand, err := bot.session.ApplicationCommandCreate(
			bot.session.State.User.ID,
			bot.guildID,
			command,
		)
		if err != nil {
			return fmt.Errorf("create %v command: %w", command.Name, err)
		}
		bot.registeredCommands = append(bot.registeredCommands, newCommand)
		bot.logger.Debug("created command", "command", command.Name)
	}
	bot.logger.Info("registered commands", "count", len(bot.registeredCommands), "guild_id", bot.guildID)
	return nil
}

// Shutdown removes the registered commands and closes the session.
func (bot *Bot) Shutdown() error {
	bot.logger.Info("shutting down bot")

	for _, command := range bot.registeredCommands {
		err := bot.session.ApplicationCommandDelete(
			bot.session.State.User.ID,
			bot.guildID,
			command.ID,
		)
		if err != nil {
			bot.logger.Warn("failed to delete command", "command", command.Name, "error", err)
		} else {
			bot.logger.Debug("deleted command", "command", command.Name)
		}
	}
	bot.registeredCommands = nil

	return bot.session.Close()
}

func (bot *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	name := i.ApplicationCommandData().Name
	handler, ok := bot.commandHandlers[name]
	if !ok {
		return
	}

	logger := bot.logger.With("command", name, "interaction_id", i.ID, "guild_id", i.GuildID)
	if user := discordutils.InteractionUser(i.Interaction); user != nil {
		logger = logger.With("discord_id", user.ID)
	}

	if err := discordutils.AckInteraction(i.Interaction, s); err != nil {
		logger.Error("failed to acknowledge command", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	reply := handler(logging.WithContext(ctx, logger), i)

	if err := discordutils.SendFollowup(reply, i.Interaction, s); err != nil {
		logger.Error("failed to send command reply", "error", err)
	}
}
