package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"giveaway-bot/internal/config"
	"giveaway-bot/internal/giveaway"
	"giveaway-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
)

const (
	reactionPageSize = 100
	maxTitleLength   = 256
)

// discordChat implements giveaway.Chat over a discordgo session.
type discordChat struct {
	session *discordgo.Session
	cfg     config.GiveawayConfig
}

func newDiscordChat(session *discordgo.Session, cfg config.GiveawayConfig) *discordChat {
	return &discordChat{session: session, cfg: cfg}
}

func (c *discordChat) ResolveChannel(ctx context.Context, channelID string) error {
	_, err := c.session.Channel(channelID, discordgo.WithContext(ctx))
	return err
}

func (c *discordChat) ResolveMessage(ctx context.Context, channelID, messageID string) error {
	_, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	return err
}

// Reactors pages through every user who reacted with emoji.
func (c *discordChat) Reactors(ctx context.Context, channelID, messageID, emoji string) ([]giveaway.Participant, error) {
	var out []giveaway.Participant
	after := ""
	for {
		users, err := c.session.MessageReactions(channelID, messageID, emoji, reactionPageSize, "", after, discordgo.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			out = append(out, giveaway.Participant{ID: u.ID, Bot: u.Bot})
		}
		if len(users) < reactionPageSize {
			return out, nil
		}
		after = users[len(users)-1].ID
	}
}

func (c *discordChat) PostGiveaway(ctx context.Context, g storage.Giveaway) (string, error) {
	msg, err := c.session.ChannelMessageSendEmbed(g.ChannelID, activeEmbed(g, c.cfg.EntryEmoji, c.cfg.EmbedColors.Active), discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (c *discordChat) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return c.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx))
}

func (c *discordChat) ShowResult(ctx context.Context, g storage.Giveaway, winners []giveaway.Participant) error {
	_, err := c.session.ChannelMessageEditEmbed(g.ChannelID, g.MessageID, resultEmbed(g, winners, c.cfg.EmbedColors.Ended), discordgo.WithContext(ctx))
	return err
}

func (c *discordChat) AnnounceResult(ctx context.Context, g storage.Giveaway, winners []giveaway.Participant) error {
	_, err := c.session.ChannelMessageSendComplex(g.ChannelID, resultMessage(g, winners), discordgo.WithContext(ctx))
	return err
}

func (c *discordChat) AnnounceReroll(ctx context.Context, g storage.Giveaway, winners []giveaway.Participant) error {
	_, err := c.session.ChannelMessageSendComplex(g.ChannelID, rerollMessage(g, winners), discordgo.WithContext(ctx))
	return err
}

func activeEmbed(g storage.Giveaway, emoji string, color int) *discordgo.MessageEmbed {
	description := fmt.Sprintf(
		"React with %s to enter!\n"+
			"Winners: **%d**\n"+
			"Ends: %s (%s)\n"+
			"Hosted by: <@%s>",
		emoji,
		g.WinnerCount,
		discordTimestamp(g.EndAt, "R"),
		discordTimestamp(g.EndAt, "f"),
		g.HostID,
	)
	return &discordgo.MessageEmbed{
		Title:       giveawayTitle(g),
		Description: description,
		Color:       color,
		Timestamp:   g.EndAt.UTC().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: "Ends at"},
	}
}

func resultEmbed(g storage.Giveaway, winners []giveaway.Participant, color int) *discordgo.MessageEmbed {
	var description string
	if len(winners) == 0 {
		description = fmt.Sprintf("**No valid entrants.**\nHosted by: <@%s>", g.HostID)
	} else {
		description = fmt.Sprintf("Winners: %s\nHosted by: <@%s>", mentionList(winners), g.HostID)
	}
	return &discordgo.MessageEmbed{
		Title:       giveawayTitle(g),
		Description: description,
		Color:       color,
		Timestamp:   g.EndAt.UTC().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: "Ended at"},
	}
}

func resultMessage(g storage.Giveaway, winners []giveaway.Participant) *discordgo.MessageSend {
	send := &discordgo.MessageSend{
		Reference: &discordgo.MessageReference{MessageID: g.MessageID, ChannelID: g.ChannelID, GuildID: g.GuildID},
	}
	if len(winners) == 0 {
		send.Content = fmt.Sprintf("No valid entrants for **%s**, so no winners were chosen.", g.Prize)
		send.AllowedMentions = &discordgo.MessageAllowedMentions{}
		return send
	}
	send.Content = fmt.Sprintf("Congratulations %s! You won **%s**. Please contact <@%s> to claim your prize.", mentionList(winners), g.Prize, g.HostID)
	send.AllowedMentions = &discordgo.MessageAllowedMentions{Users: mentionedUsers(g, winners)}
	return send
}

func rerollMessage(g storage.Giveaway, winners []giveaway.Participant) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content:         fmt.Sprintf("🎉 New winner(s): %s! You won **%s**. Please contact <@%s> to claim your prize.", mentionList(winners), g.Prize, g.HostID),
		Reference:       &discordgo.MessageReference{MessageID: g.MessageID, ChannelID: g.ChannelID, GuildID: g.GuildID},
		AllowedMentions: &discordgo.MessageAllowedMentions{Users: mentionedUsers(g, winners)},
	}
}

func giveawayTitle(g storage.Giveaway) string {
	return truncate("🎉 "+g.Prize, maxTitleLength)
}

func mentionedUsers(g storage.Giveaway, winners []giveaway.Participant) []string {
	users := make([]string, 0, len(winners)+1)
	seen := make(map[string]bool, len(winners)+1)
	for _, id := range append(participantIDs(winners), g.HostID) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		users = append(users, id)
	}
	return users
}

func participantIDs(ps []giveaway.Participant) []string {
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	return ids
}

func mentionList(ps []giveaway.Participant) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.Mention()
	}
	return strings.Join(parts, ", ")
}

func discordTimestamp(t time.Time, style string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), style)
}

func messageLink(g storage.Giveaway) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", g.GuildID, g.ChannelID, g.MessageID)
}
