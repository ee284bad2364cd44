package analytics

import (
	"context"
	"sort"
	"time"

	"giveaway-bot/internal/storage"
)

type Source interface {
	ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]storage.AuditLog, error)
}

type Service struct {
	store Source
}

func New(store Source) *Service {
	return &Service{store: store}
}

type Report struct {
	Total   int
	ByLevel map[string]int
	ByEvent map[string]int
}

// Events returns the event names of the report in a stable order.
func (r Report) Events() []string {
	names := make([]string, 0, len(r.ByEvent))
	for name := range r.ByEvent {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	logs, err := s.store.ListAuditLogs(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{ByLevel: make(map[string]int), ByEvent: make(map[string]int)}
	for _, log := range logs {
		report.Total++
		report.ByLevel[log.Level]++
		report.ByEvent[log.Event]++
	}
	return report, nil
}
