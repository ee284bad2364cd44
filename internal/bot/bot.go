package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"giveaway-bot/internal/audit"
	"giveaway-bot/internal/config"
	"giveaway-bot/internal/cooldown"
	"giveaway-bot/internal/giveaway"
	"giveaway-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const rearmInterval = 5 * time.Minute

// discordAPI is the REST surface commands and replies go through.
type discordAPI interface {
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

type Bot struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *storage.Store
	audit    *audit.Logger
	engine   *giveaway.Engine
	cooldown *cooldown.Limiter
	session  *discordgo.Session
	api      discordAPI

	recoverMu sync.Mutex
	recovered bool
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, auditLogger *audit.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	engine := giveaway.NewEngine(store, newDiscordChat(session, cfg.Giveaway), giveaway.NewScheduler(nil), giveaway.NewCryptoSource(), auditLogger, logger, giveaway.Options{
		EntryEmoji:        cfg.Giveaway.EntryEmoji,
		MaxWinners:        cfg.Giveaway.MaxWinners,
		MaxDuration:       cfg.Giveaway.MaxDuration(),
		CompletionTimeout: cfg.Giveaway.CompletionTimeout(),
	})

	b := &Bot{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		audit:    auditLogger,
		engine:   engine,
		cooldown: cooldown.New(cfg.Cooldown.Commands, time.Duration(cfg.Cooldown.WindowSeconds)*time.Second),
		session:  session,
		api:      session,
	}
	if b.audit != nil && cfg.AuditLogChannel != "" {
		b.audit.SetNotifier(b.notifyAudit)
	}

	return b, nil
}

func (b *Bot) Engine() *giveaway.Engine {
	return b.engine
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	return b.session.Open()
}

// Run performs periodic housekeeping until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	sweep := time.NewTicker(time.Minute)
	defer sweep.Stop()
	cleanup := time.NewTicker(24 * time.Hour)
	defer cleanup.Stop()
	rearm := time.NewTicker(rearmInterval)
	defer rearm.Stop()

	b.cleanupAuditLogs(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-sweep.C:
			b.cooldown.Sweep(now)
		case <-cleanup.C:
			b.cleanupAuditLogs(ctx)
		case <-rearm.C:
			b.rearm(ctx)
		}
	}
}

// Close disarms pending giveaway timers, waits for running completions until
// ctx is done and disconnects. Active giveaways are re-armed by the next process.
func (b *Bot) Close(ctx context.Context) {
	if err := b.engine.Stop(ctx); err != nil {
		b.logger.Warn("giveaway completions still running at shutdown", zap.Error(err))
	}
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", event.User.Username), zap.Int("guilds", len(event.Guilds)))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := b.recoverGiveaways(ctx); err != nil {
		b.logger.Error("giveaway recovery failed", zap.Error(err))
	}
}

// recoverGiveaways re-arms active giveaways once per process. Ready fires again
// after every reconnect and timers survive those; a failed attempt is retried
// on the next Ready or housekeeping tick.
func (b *Bot) recoverGiveaways(ctx context.Context) error {
	b.recoverMu.Lock()
	defer b.recoverMu.Unlock()
	if b.recovered {
		return nil
	}
	if _, err := b.engine.Recover(ctx); err != nil {
		return err
	}
	b.recovered = true
	return nil
}

// rearm finishes a pending recovery, or arms active giveaways whose timer was
// lost to a failed completion.
func (b *Bot) rearm(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	b.recoverMu.Lock()
	recovered := b.recovered
	b.recoverMu.Unlock()
	if !recovered {
		if err := b.recoverGiveaways(ctx); err != nil {
			b.logger.Warn("giveaway recovery retry failed", zap.Error(err))
		}
		return
	}
	if _, err := b.engine.Resync(ctx); err != nil {
		b.logger.Warn("giveaway resync failed", zap.Error(err))
	}
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot {
		return
	}
	if msg.GuildID == "" {
		return
	}

	name, args, ok := parseCommand(msg.Content, b.cfg.CommandPrefix)
	if !ok {
		return
	}
	handler := b.commandHandler(name)
	if handler == nil {
		return
	}

	if !b.cooldown.Allow(msg.Author.ID, time.Now()) {
		b.replyError(msg.Message, "Slow down a little before using another command.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Giveaway.CompletionTimeout())
	defer cancel()
	handler(ctx, msg.Message, args)
}

// hasElevatedPermission reports whether the author may manage giveaways in the
// channel: Manage Server, Manage Messages, or the configured manager role.
func (b *Bot) hasElevatedPermission(msg *discordgo.Message) bool {
	if b.cfg.Giveaway.ManagerRoleID != "" && msg.Member != nil {
		for _, role := range msg.Member.Roles {
			if role == b.cfg.Giveaway.ManagerRoleID {
				return true
			}
		}
	}
	perms, err := b.api.UserChannelPermissions(msg.Author.ID, msg.ChannelID)
	if err != nil {
		b.logger.Warn("permission lookup failed", zap.String("user_id", msg.Author.ID), zap.String("channel_id", msg.ChannelID), zap.Error(err))
		return false
	}
	return hasManagePermission(perms)
}

func hasManagePermission(perms int64) bool {
	const mask = discordgo.PermissionAdministrator | discordgo.PermissionManageServer | discordgo.PermissionManageMessages
	return perms&mask != 0
}

func (b *Bot) reply(msg *discordgo.Message, embed *discordgo.MessageEmbed) {
	_, err := b.api.ChannelMessageSendComplex(msg.ChannelID, &discordgo.MessageSend{
		Embeds:          []*discordgo.MessageEmbed{embed},
		Reference:       msg.Reference(),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	if err != nil {
		b.logger.Warn("reply failed", zap.String("channel_id", msg.ChannelID), zap.Error(err))
	}
}

func (b *Bot) replyInfo(msg *discordgo.Message, title, description string) {
	b.reply(msg, commandEmbed(title, description, b.cfg.Giveaway.EmbedColors.Active, nil))
}

func (b *Bot) replyError(msg *discordgo.Message, description string) {
	b.reply(msg, commandEmbed("Giveaway", description, b.cfg.Giveaway.EmbedColors.Error, nil))
}

func (b *Bot) notifyAudit(ctx context.Context, entry storage.AuditLog) {
	if entry.Level == audit.LevelInfo && entry.Event != audit.EventGiveawayCompleted {
		return
	}
	content := fmt.Sprintf("`%s` **%s** guild=%s %s", entry.Level, entry.Event, entry.GuildID, entry.Details)
	if entry.UserID != "" {
		content += " by <@" + entry.UserID + ">"
	}
	_, err := b.api.ChannelMessageSendComplex(b.cfg.AuditLogChannel, &discordgo.MessageSend{
		Content:         truncate(content, 2000),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	if err != nil {
		b.logger.Warn("audit channel send failed", zap.Error(err))
	}
}

func (b *Bot) cleanupAuditLogs(ctx context.Context) {
	removed, err := b.store.CleanupAuditLogs(ctx, b.cfg.AuditRetentionDays)
	if err != nil {
		b.logger.Warn("audit cleanup failed", zap.Error(err))
		return
	}
	if removed > 0 {
		b.logger.Info("audit logs pruned", zap.Int64("removed", removed))
	}
}

func commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - len("…")
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut]) + "…"
}
