package giveaway

import (
	"context"

	"giveaway-bot/internal/storage"
)

// Participant is a user who reacted with the entry emoji.
type Participant struct {
	ID  string
	Bot bool
}

func (p Participant) Mention() string {
	return "<@" + p.ID + ">"
}

// Chat is the messaging surface the engine drives. Every method is a single
// best-effort remote call.
type Chat interface {
	ResolveChannel(ctx context.Context, channelID string) error
	ResolveMessage(ctx context.Context, channelID, messageID string) error
	Reactors(ctx context.Context, channelID, messageID, emoji string) ([]Participant, error)
	PostGiveaway(ctx context.Context, g storage.Giveaway) (string, error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	// ShowResult edits the announcement into its final state; no winners
	// renders the "nobody entered" variant.
	ShowResult(ctx context.Context, g storage.Giveaway, winners []Participant) error
	AnnounceResult(ctx context.Context, g storage.Giveaway, winners []Participant) error
	AnnounceReroll(ctx context.Context, g storage.Giveaway, winners []Participant) error
}

type Store interface {
	CreateGiveaway(ctx context.Context, g storage.Giveaway) error
	GetGiveaway(ctx context.Context, messageID string) (storage.Giveaway, error)
	ListActiveGiveaways(ctx context.Context) ([]storage.Giveaway, error)
	MarkGiveawayEnded(ctx context.Context, messageID string) (bool, error)
}
