package giveaway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"giveaway-bot/internal/audit"
	"giveaway-bot/internal/storage"

	"go.uber.org/zap"
)

// MaxPrizeLength bounds the prize in runes so it fits an embed title.
const MaxPrizeLength = 200

type Options struct {
	EntryEmoji        string
	MaxWinners        int
	MaxDuration       time.Duration
	CompletionTimeout time.Duration
}

// Outcome describes a completion that claimed the record. Stopped is set when
// completion halted early because the channel or message is gone; the record
// stays ended either way.
type Outcome struct {
	Giveaway      storage.Giveaway
	Participants  int
	Winners       []Participant
	Stopped       error
	Announcements []*AnnouncementError
}

type CreateRequest struct {
	GuildID     string
	ChannelID   string
	HostID      string
	Prize       string
	WinnerCount int
	Duration    time.Duration
}

type Engine struct {
	store     Store
	chat      Chat
	scheduler *Scheduler
	src       Source
	audit     *audit.Logger
	logger    *zap.Logger
	opts      Options

	mu       sync.Mutex
	stopping bool
	inflight sync.WaitGroup
}

func NewEngine(store Store, chat Chat, scheduler *Scheduler, src Source, auditLogger *audit.Logger, logger *zap.Logger, opts Options) *Engine {
	if scheduler == nil {
		scheduler = NewScheduler(nil)
	}
	if src == nil {
		src = NewCryptoSource()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.EntryEmoji == "" {
		opts.EntryEmoji = "🎉"
	}
	if opts.CompletionTimeout <= 0 {
		opts.CompletionTimeout = 30 * time.Second
	}
	return &Engine{
		store:     store,
		chat:      chat,
		scheduler: scheduler,
		src:       src,
		audit:     auditLogger,
		logger:    logger,
		opts:      opts,
	}
}

// Schedule arms completion of g at its end time. Overdue records fire
// immediately.
func (e *Engine) Schedule(g storage.Giveaway) {
	e.scheduler.Schedule(g.MessageID, g.EndAt, func() {
		if !e.track() {
			return
		}
		defer e.inflight.Done()
		e.completeScheduled(g)
	})
}

// track registers a timer-driven completion unless the engine is stopping.
func (e *Engine) track() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopping {
		return false
	}
	e.inflight.Add(1)
	return true
}

func (e *Engine) isStopping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopping
}

func (e *Engine) completeScheduled(g storage.Giveaway) {
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.CompletionTimeout)
	defer cancel()

	if _, err := e.Complete(ctx, g); err != nil {
		if errors.Is(err, ErrAlreadyEnded) {
			e.logger.Debug("giveaway already completed", zap.String("message_id", g.MessageID))
			return
		}
		e.logger.Error("scheduled completion failed", zap.String("message_id", g.MessageID), zap.Error(err))
	}
}

// Complete ends g exactly once. The persisted ended flag is claimed before any
// chat side effect; the loser of a race gets ErrAlreadyEnded and does nothing.
// A store failure leaves the record active so the next Recover retries it.
func (e *Engine) Complete(ctx context.Context, g storage.Giveaway) (Outcome, error) {
	claimed, err := e.store.MarkGiveawayEnded(ctx, g.MessageID)
	if err != nil {
		e.logger.Error("mark giveaway ended failed", zap.String("message_id", g.MessageID), zap.Error(err))
		e.audit.Log(ctx, audit.LevelCrit, g.GuildID, "", audit.EventPersistenceFailed, fmt.Sprintf("message=%s err=%v", g.MessageID, err))
		return Outcome{}, fmt.Errorf("mark giveaway %s ended: %w", g.MessageID, err)
	}
	if !claimed {
		return Outcome{}, ErrAlreadyEnded
	}
	e.scheduler.Cancel(g.MessageID)
	g.Ended = true

	out := Outcome{Giveaway: g, Winners: []Participant{}}
	log := e.logger.With(zap.String("message_id", g.MessageID), zap.String("guild_id", g.GuildID))

	if err := e.chat.ResolveChannel(ctx, g.ChannelID); err != nil {
		log.Warn("giveaway channel unavailable", zap.String("channel_id", g.ChannelID), zap.Error(err))
		out.Stopped = ErrUnresolvableChannel
		e.audit.Log(ctx, audit.LevelWarn, g.GuildID, "", audit.EventGiveawayCompleted, "channel unavailable prize="+g.Prize)
		return out, nil
	}
	if err := e.chat.ResolveMessage(ctx, g.ChannelID, g.MessageID); err != nil {
		log.Warn("giveaway message unavailable", zap.Error(err))
		out.Stopped = ErrUnresolvableMessage
		e.audit.Log(ctx, audit.LevelWarn, g.GuildID, "", audit.EventGiveawayCompleted, "message unavailable prize="+g.Prize)
		return out, nil
	}

	entrants := e.entrants(ctx, g)
	out.Participants = len(entrants)
	out.Winners = Pick(e.src, entrants, g.WinnerCount)

	if aerr := announcementErr("edit", e.chat.ShowResult(ctx, g, out.Winners)); aerr != nil {
		out.Announcements = append(out.Announcements, aerr)
	}
	if aerr := announcementErr("announce", e.chat.AnnounceResult(ctx, g, out.Winners)); aerr != nil {
		out.Announcements = append(out.Announcements, aerr)
	}
	for _, aerr := range out.Announcements {
		log.Warn("giveaway announcement failed", zap.String("op", aerr.Op), zap.Error(aerr.Err))
		e.audit.Log(ctx, audit.LevelWarn, g.GuildID, "", audit.EventAnnouncementFailed, aerr.Error())
	}

	log.Info("giveaway completed",
		zap.Int("participants", out.Participants),
		zap.Int("winners", len(out.Winners)),
	)
	e.audit.Log(ctx, audit.LevelInfo, g.GuildID, "", audit.EventGiveawayCompleted,
		fmt.Sprintf("prize=%s participants=%d winners=%s", g.Prize, out.Participants, mentions(out.Winners)))
	return out, nil
}

// EndNow completes the giveaway keyed by messageID ahead of schedule.
func (e *Engine) EndNow(ctx context.Context, messageID, requestedBy string) (Outcome, error) {
	g, err := e.lookup(ctx, messageID)
	if err != nil {
		return Outcome{}, err
	}
	if g.Ended {
		return Outcome{}, ErrAlreadyEnded
	}
	e.audit.Log(ctx, audit.LevelInfo, g.GuildID, requestedBy, audit.EventGiveawayEndRequested, "message="+g.MessageID)
	return e.Complete(ctx, g)
}

// Reroll draws fresh winners for an ended or active giveaway from its current
// entrants. The record is never modified. The winners are returned even when
// the announcement fails, alongside an *AnnouncementError.
func (e *Engine) Reroll(ctx context.Context, messageID, requestedBy string) ([]Participant, error) {
	g, err := e.lookup(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := e.chat.ResolveChannel(ctx, g.ChannelID); err != nil {
		return nil, ErrUnresolvableChannel
	}
	if err := e.chat.ResolveMessage(ctx, g.ChannelID, g.MessageID); err != nil {
		return nil, ErrUnresolvableMessage
	}

	entrants := e.entrants(ctx, g)
	if len(entrants) == 0 {
		return nil, ErrNoParticipants
	}
	winners := Pick(e.src, entrants, g.WinnerCount)

	e.audit.Log(ctx, audit.LevelInfo, g.GuildID, requestedBy, audit.EventGiveawayRerolled,
		fmt.Sprintf("message=%s winners=%s", g.MessageID, mentions(winners)))

	if aerr := announcementErr("reroll", e.chat.AnnounceReroll(ctx, g, winners)); aerr != nil {
		e.logger.Warn("reroll announcement failed", zap.String("message_id", g.MessageID), zap.Error(aerr.Err))
		e.audit.Log(ctx, audit.LevelWarn, g.GuildID, requestedBy, audit.EventAnnouncementFailed, aerr.Error())
		return winners, aerr
	}
	return winners, nil
}

// Create posts the announcement, persists the record keyed by the posted
// message id and arms its timer.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (storage.Giveaway, error) {
	if err := e.validate(req); err != nil {
		return storage.Giveaway{}, err
	}

	now := e.scheduler.Now()
	g := storage.Giveaway{
		ChannelID:   req.ChannelID,
		GuildID:     req.GuildID,
		Prize:       strings.TrimSpace(req.Prize),
		WinnerCount: req.WinnerCount,
		HostID:      req.HostID,
		EndAt:       now.Add(req.Duration),
		CreatedAt:   now,
	}

	messageID, err := e.chat.PostGiveaway(ctx, g)
	if err != nil {
		return storage.Giveaway{}, announcementErr("post", err)
	}
	g.MessageID = messageID

	// entrants can still react by hand
	if err := e.chat.AddReaction(ctx, g.ChannelID, g.MessageID, e.opts.EntryEmoji); err != nil {
		e.logger.Warn("seed entry reaction failed", zap.String("message_id", g.MessageID), zap.Error(err))
	}

	if err := e.store.CreateGiveaway(ctx, g); err != nil {
		e.logger.Error("persist giveaway failed", zap.String("message_id", g.MessageID), zap.Error(err))
		e.audit.Log(ctx, audit.LevelCrit, g.GuildID, g.HostID, audit.EventPersistenceFailed, fmt.Sprintf("create message=%s err=%v", g.MessageID, err))
		return storage.Giveaway{}, fmt.Errorf("persist giveaway %s: %w", g.MessageID, err)
	}

	e.Schedule(g)
	e.logger.Info("giveaway created",
		zap.String("message_id", g.MessageID),
		zap.String("guild_id", g.GuildID),
		zap.Time("end_at", g.EndAt),
		zap.Int("winner_count", g.WinnerCount),
	)
	e.audit.Log(ctx, audit.LevelInfo, g.GuildID, g.HostID, audit.EventGiveawayCreated,
		fmt.Sprintf("message=%s prize=%s winners=%d ends=%s", g.MessageID, g.Prize, g.WinnerCount, g.EndAt.UTC().Format(time.RFC3339)))
	return g, nil
}

// Recover re-arms every active giveaway after a restart and returns how many
// were scheduled.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	active, err := e.store.ListActiveGiveaways(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active giveaways: %w", err)
	}
	now := e.scheduler.Now()
	overdue := 0
	for _, g := range active {
		if !g.EndAt.After(now) {
			overdue++
		}
		e.Schedule(g)
	}
	e.logger.Info("giveaways recovered", zap.Int("active", len(active)), zap.Int("overdue", overdue))
	return len(active), nil
}

// Resync arms a timer for every active record that has none, such as one whose
// completion could not be persisted. It returns how many were armed.
func (e *Engine) Resync(ctx context.Context) (int, error) {
	if e.isStopping() {
		return 0, nil
	}
	active, err := e.store.ListActiveGiveaways(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active giveaways: %w", err)
	}
	armed := 0
	for _, g := range active {
		if e.scheduler.Scheduled(g.MessageID) {
			continue
		}
		e.Schedule(g)
		armed++
	}
	if armed > 0 {
		e.logger.Info("giveaways re-armed", zap.Int("armed", armed))
	}
	return armed, nil
}

// Stop disarms every pending timer and waits for completions already running
// until ctx is done. Records left active are picked up by the next Recover.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	e.stopping = true
	e.mu.Unlock()
	e.scheduler.Stop()

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) Pending() int {
	return e.scheduler.Pending()
}

func (e *Engine) validate(req CreateRequest) error {
	prize := strings.TrimSpace(req.Prize)
	if prize == "" {
		return ErrEmptyPrize
	}
	if utf8.RuneCountInString(prize) > MaxPrizeLength {
		return fmt.Errorf("%w (%d characters)", ErrPrizeTooLong, MaxPrizeLength)
	}
	if req.WinnerCount < 1 {
		return ErrInvalidWinnerCount
	}
	if e.opts.MaxWinners > 0 && req.WinnerCount > e.opts.MaxWinners {
		return fmt.Errorf("%w (%d)", ErrTooManyWinners, e.opts.MaxWinners)
	}
	if req.Duration <= 0 {
		return ErrInvalidDuration
	}
	if e.opts.MaxDuration > 0 && req.Duration > e.opts.MaxDuration {
		return fmt.Errorf("%w (%s)", ErrDurationTooLong, e.opts.MaxDuration)
	}
	return nil
}

func (e *Engine) lookup(ctx context.Context, messageID string) (storage.Giveaway, error) {
	g, err := e.store.GetGiveaway(ctx, messageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Giveaway{}, fmt.Errorf("%w: %s", ErrNotFound, messageID)
		}
		return storage.Giveaway{}, err
	}
	return g, nil
}

// entrants lists the distinct non-bot reactors. A failed fetch counts as
// nobody entering.
func (e *Engine) entrants(ctx context.Context, g storage.Giveaway) []Participant {
	reactors, err := e.chat.Reactors(ctx, g.ChannelID, g.MessageID, e.opts.EntryEmoji)
	if err != nil {
		e.logger.Warn("fetch entrants failed", zap.String("message_id", g.MessageID), zap.Error(err))
		return []Participant{}
	}
	seen := make(map[string]struct{}, len(reactors))
	out := make([]Participant, 0, len(reactors))
	for _, p := range reactors {
		if p.Bot || p.ID == "" {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

func mentions(ps []Participant) string {
	if len(ps) == 0 {
		return "none"
	}
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.Mention()
	}
	return strings.Join(parts, ",")
}
