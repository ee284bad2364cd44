package audit

import (
	"context"
	"time"

	"giveaway-bot/internal/storage"

	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"
)

const (
	EventGiveawayCreated      = "giveaway_created"
	EventGiveawayCompleted    = "giveaway_completed"
	EventGiveawayEndRequested = "giveaway_end_requested"
	EventGiveawayRerolled     = "giveaway_rerolled"
	EventAnnouncementFailed   = "announcement_failed"
	EventPersistenceFailed    = "persistence_failed"
)

type Sink interface {
	AddAuditLog(ctx context.Context, log storage.AuditLog) error
}

// Logger records lifecycle events to the store and the process log. A nil
// *Logger is valid and only drops events.
type Logger struct {
	sink   Sink
	logger *zap.Logger
	notify func(context.Context, storage.AuditLog)
}

func NewLogger(sink Sink, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{sink: sink, logger: logger}
}

func (l *Logger) SetNotifier(notify func(context.Context, storage.AuditLog)) {
	if l == nil {
		return
	}
	l.notify = notify
}

func (l *Logger) Log(ctx context.Context, level, guildID, userID, event, details string) {
	if l == nil {
		return
	}
	entry := storage.AuditLog{
		GuildID:   guildID,
		UserID:    userID,
		Level:     level,
		Event:     event,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if l.sink != nil {
		if err := l.sink.AddAuditLog(ctx, entry); err != nil {
			l.logger.Warn("audit persist failed", zap.String("event", event), zap.Error(err))
		}
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("audit", zap.String("level", level), zap.String("guild_id", guildID), zap.String("user_id", userID), zap.String("event", event), zap.String("details", details))
}
