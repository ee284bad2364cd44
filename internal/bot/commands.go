package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"giveaway-bot/internal/audit"
	"giveaway-bot/internal/giveaway"
	"giveaway-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/xhit/go-str2duration/v2"
	"go.uber.org/zap"
)

const (
	cmdStart  = "giveaway"
	cmdEnd    = "giveaway-end"
	cmdReroll = "giveaway-reroll"
	cmdList   = "giveaway-list"

	maxListFields = 25
)

var (
	errUsage          = errors.New("usage")
	errBadDuration    = errors.New("could not read the duration, try something like 30m, 2h, 1d or 1w")
	errBadWinnerCount = errors.New("winner count must be a whole number like 1 or 3w")
	errBadMessageID   = errors.New("that does not look like a message id or link")
)

var (
	snowflakePattern   = regexp.MustCompile(`^\d{15,21}$`)
	messageLinkPattern = regexp.MustCompile(`^https?://(?:(?:ptb|canary)\.)?discord(?:app)?\.com/channels/(\d+|@me)/(\d+)/(\d+)$`)
)

type commandFunc func(ctx context.Context, msg *discordgo.Message, args []string)

type startArgs struct {
	Duration time.Duration
	Winners  int
	Prize    string
}

func (b *Bot) commandHandler(name string) commandFunc {
	switch name {
	case cmdStart:
		return b.handleStart
	case cmdEnd:
		return b.handleEnd
	case cmdReroll:
		return b.handleReroll
	case cmdList:
		return b.handleList
	}
	return nil
}

// parseCommand splits "<prefix><name> args..." into a lowercased name and its
// arguments.
func parseCommand(content, prefix string) (string, []string, bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// parseStartArgs reads "<duration> <winners> <prize...>". Range checks are
// left to the engine.
func parseStartArgs(args []string) (startArgs, error) {
	if len(args) < 3 {
		return startArgs{}, errUsage
	}
	duration, err := str2duration.ParseDuration(strings.ToLower(args[0]))
	if err != nil {
		return startArgs{}, errBadDuration
	}
	winners, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(args[1]), "w"))
	if err != nil {
		return startArgs{}, errBadWinnerCount
	}
	return startArgs{
		Duration: duration,
		Winners:  winners,
		Prize:    strings.Join(args[2:], " "),
	}, nil
}

// parseMessageID accepts a raw message id or a message link.
func parseMessageID(arg string) (string, error) {
	arg = strings.Trim(strings.TrimSpace(arg), "<>")
	if snowflakePattern.MatchString(arg) {
		return arg, nil
	}
	if m := messageLinkPattern.FindStringSubmatch(arg); m != nil {
		return m[3], nil
	}
	return "", errBadMessageID
}

func (b *Bot) handleStart(ctx context.Context, msg *discordgo.Message, args []string) {
	if !b.hasElevatedPermission(msg) {
		b.replyError(msg, "You need Manage Server or Manage Messages to start giveaways.")
		return
	}
	parsed, err := parseStartArgs(args)
	if err != nil {
		if errors.Is(err, errUsage) {
			b.replyError(msg, fmt.Sprintf("Usage: `%s%s <duration> <winners> <prize>`", b.cfg.CommandPrefix, cmdStart))
			return
		}
		b.replyError(msg, capitalize(err.Error())+".")
		return
	}

	g, err := b.engine.Create(ctx, giveaway.CreateRequest{
		GuildID:     msg.GuildID,
		ChannelID:   msg.ChannelID,
		HostID:      msg.Author.ID,
		Prize:       parsed.Prize,
		WinnerCount: parsed.Winners,
		Duration:    parsed.Duration,
	})
	if err != nil {
		b.logger.Warn("giveaway start failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
		b.replyError(msg, userMessage(err))
		return
	}

	// the announcement itself is the confirmation; drop the invocation
	if err := b.api.ChannelMessageDelete(msg.ChannelID, msg.ID); err != nil {
		b.logger.Debug("command cleanup failed", zap.String("message_id", msg.ID), zap.Error(err))
	}
	b.logger.Info("giveaway started via command", zap.String("message_id", g.MessageID), zap.String("host_id", g.HostID))
}

func (b *Bot) handleEnd(ctx context.Context, msg *discordgo.Message, args []string) {
	if !b.hasElevatedPermission(msg) {
		b.replyError(msg, "You need Manage Server or Manage Messages to end giveaways.")
		return
	}
	messageID, ok := b.messageArg(msg, cmdEnd, args)
	if !ok {
		return
	}
	if !b.inGuild(ctx, msg, messageID) {
		return
	}

	out, err := b.engine.EndNow(ctx, messageID, msg.Author.ID)
	if err != nil {
		b.replyError(msg, userMessage(err))
		return
	}
	switch {
	case out.Stopped != nil:
		b.replyInfo(msg, "Giveaway ended", "The giveaway was closed, but its message is gone so no winners were announced.")
	case len(out.Announcements) > 0:
		b.replyInfo(msg, "Giveaway ended", "Winners: "+winnersOrNone(out.Winners)+"\nI could not update the announcement, please share the result manually.")
	default:
		b.replyInfo(msg, "Giveaway ended", fmt.Sprintf("Ended early with %d entrant(s).", out.Participants))
	}
}

func (b *Bot) handleReroll(ctx context.Context, msg *discordgo.Message, args []string) {
	if !b.hasElevatedPermission(msg) {
		b.replyError(msg, "You need Manage Server or Manage Messages to reroll giveaways.")
		return
	}
	messageID, ok := b.messageArg(msg, cmdReroll, args)
	if !ok {
		return
	}
	if !b.inGuild(ctx, msg, messageID) {
		return
	}

	winners, err := b.engine.Reroll(ctx, messageID, msg.Author.ID)
	var aerr *giveaway.AnnouncementError
	if errors.As(err, &aerr) {
		b.replyInfo(msg, "Giveaway rerolled", "New winner(s): "+winnersOrNone(winners)+"\nI could not post the announcement in the giveaway channel.")
		return
	}
	if err != nil {
		b.replyError(msg, userMessage(err))
	}
}

func (b *Bot) handleList(ctx context.Context, msg *discordgo.Message, _ []string) {
	active, err := b.store.ListGuildGiveaways(ctx, msg.GuildID, true)
	if err != nil {
		b.logger.Warn("list giveaways failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
		b.replyError(msg, userMessage(err))
		return
	}
	if len(active) == 0 {
		b.replyInfo(msg, "Active giveaways", "There are no running giveaways in this server.")
		return
	}
	b.reply(msg, commandEmbed("Active giveaways", fmt.Sprintf("%d running", len(active)), b.cfg.Giveaway.EmbedColors.Active, listFields(active)))
}

func (b *Bot) messageArg(msg *discordgo.Message, command string, args []string) (string, bool) {
	if len(args) == 0 {
		b.replyError(msg, fmt.Sprintf("Usage: `%s%s <message id or link>`", b.cfg.CommandPrefix, command))
		return "", false
	}
	id, err := parseMessageID(args[0])
	if err != nil {
		b.replyError(msg, capitalize(err.Error())+".")
		return "", false
	}
	return id, true
}

// inGuild keeps moderators from acting on giveaways of other servers.
func (b *Bot) inGuild(ctx context.Context, msg *discordgo.Message, messageID string) bool {
	g, err := b.store.GetGiveaway(ctx, messageID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			b.logger.Warn("giveaway lookup failed", zap.String("message_id", messageID), zap.Error(err))
		}
		b.replyError(msg, userMessage(err))
		return false
	}
	if g.GuildID != msg.GuildID {
		b.audit.Log(ctx, audit.LevelWarn, msg.GuildID, msg.Author.ID, audit.EventGiveawayEndRequested, "cross-guild request message="+messageID)
		b.replyError(msg, userMessage(giveaway.ErrNotFound))
		return false
	}
	return true
}

func listFields(active []storage.Giveaway) []*discordgo.MessageEmbedField {
	fields := make([]*discordgo.MessageEmbedField, 0, len(active))
	for i, g := range active {
		if i == maxListFields {
			break
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: truncate(g.Prize, 256),
			Value: fmt.Sprintf("Winners: **%d** | Ends %s | Host <@%s>\n[Jump to giveaway](%s)",
				g.WinnerCount, discordTimestamp(g.EndAt, "R"), g.HostID, messageLink(g)),
		})
	}
	return fields
}

// userMessage turns engine and store errors into replies.
func userMessage(err error) string {
	var aerr *giveaway.AnnouncementError
	switch {
	case errors.Is(err, giveaway.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return "No giveaway found for that message."
	case errors.Is(err, giveaway.ErrAlreadyEnded):
		return "That giveaway has already ended."
	case errors.Is(err, giveaway.ErrNoParticipants):
		return "Nobody has entered that giveaway, so there is nobody to pick."
	case errors.Is(err, giveaway.ErrUnresolvableChannel), errors.Is(err, giveaway.ErrUnresolvableMessage):
		return "I can no longer find that giveaway's message or channel."
	case errors.Is(err, giveaway.ErrEmptyPrize),
		errors.Is(err, giveaway.ErrPrizeTooLong),
		errors.Is(err, giveaway.ErrInvalidWinnerCount),
		errors.Is(err, giveaway.ErrTooManyWinners),
		errors.Is(err, giveaway.ErrInvalidDuration),
		errors.Is(err, giveaway.ErrDurationTooLong):
		return capitalize(err.Error()) + "."
	case errors.As(err, &aerr):
		return "I could not post in that channel. Check my Send Messages, Embed Links and Add Reactions permissions."
	default:
		return "Something went wrong, please try again later."
	}
}

func winnersOrNone(winners []giveaway.Participant) string {
	if len(winners) == 0 {
		return "none"
	}
	return mentionList(winners)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
