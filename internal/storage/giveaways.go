package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Giveaway is the persisted giveaway record, keyed by the announcement
// message id. EndAt is fixed at creation; Ended only ever flips to true.
type Giveaway struct {
	MessageID   string
	ChannelID   string
	GuildID     string
	Prize       string
	WinnerCount int
	HostID      string
	EndAt       time.Time
	Ended       bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const giveawayColumns = `message_id, channel_id, guild_id, prize, winner_count, host_id, end_at, ended, created_at, updated_at`

func (s *Store) CreateGiveaway(ctx context.Context, g Giveaway) error {
	if g.WinnerCount < 1 {
		return fmt.Errorf("winner count must be at least 1, got %d", g.WinnerCount)
	}
	now := time.Now()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = g.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO giveaways (`+giveawayColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		g.MessageID,
		g.ChannelID,
		g.GuildID,
		g.Prize,
		g.WinnerCount,
		g.HostID,
		g.EndAt.UnixMilli(),
		boolToInt(g.Ended),
		g.CreatedAt.UnixMilli(),
		g.UpdatedAt.UnixMilli(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("giveaway %s: %w", g.MessageID, ErrDuplicateKey)
	}
	return err
}

func (s *Store) GetGiveaway(ctx context.Context, messageID string) (Giveaway, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+giveawayColumns+` FROM giveaways WHERE message_id = ?`), messageID)
	g, err := scanGiveaway(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Giveaway{}, fmt.Errorf("giveaway %s: %w", messageID, ErrNotFound)
		}
		return Giveaway{}, err
	}
	return g, nil
}

// ListActiveGiveaways returns every record with ended = false, soonest first.
func (s *Store) ListActiveGiveaways(ctx context.Context) ([]Giveaway, error) {
	return s.queryGiveaways(ctx, `SELECT `+giveawayColumns+` FROM giveaways WHERE ended = 0 ORDER BY end_at`)
}

func (s *Store) ListGuildGiveaways(ctx context.Context, guildID string, activeOnly bool) ([]Giveaway, error) {
	query := `SELECT ` + giveawayColumns + ` FROM giveaways WHERE guild_id = ?`
	if activeOnly {
		query += ` AND ended = 0`
	}
	query += ` ORDER BY end_at`
	return s.queryGiveaways(ctx, query, guildID)
}

// MarkGiveawayEnded flips ended from false to true. It reports true only to
// the caller whose update changed the row, so concurrent completions of the
// same giveaway have exactly one winner.
func (s *Store) MarkGiveawayEnded(ctx context.Context, messageID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE giveaways SET ended = 1, updated_at = ?
		WHERE message_id = ? AND ended = 0
	`), time.Now().UnixMilli(), messageID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// DeleteGuildGiveaways removes every record of a guild. Administrative reset only.
func (s *Store) DeleteGuildGiveaways(ctx context.Context, guildID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM giveaways WHERE guild_id = ?`), guildID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) queryGiveaways(ctx context.Context, query string, args ...any) ([]Giveaway, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Giveaway
	for rows.Next() {
		g, err := scanGiveaway(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGiveaway(row rowScanner) (Giveaway, error) {
	var g Giveaway
	var endAt, created, updated int64
	var ended int
	if err := row.Scan(&g.MessageID, &g.ChannelID, &g.GuildID, &g.Prize, &g.WinnerCount, &g.HostID, &endAt, &ended, &created, &updated); err != nil {
		return Giveaway{}, err
	}
	g.EndAt = time.UnixMilli(endAt)
	g.Ended = ended == 1
	g.CreatedAt = time.UnixMilli(created)
	g.UpdatedAt = time.UnixMilli(updated)
	return g, nil
}
