package giveaway

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"giveaway-bot/internal/storage"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type seededSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newSeededSource(seed uint64) *seededSource {
	return &seededSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *seededSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock only fires timers from Advance, on the caller's goroutine.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{clock: f, deadline: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	var due, rest []*fakeTimer
	for _, t := range f.timers {
		switch {
		case t.stopped:
		case !t.deadline.After(f.now):
			t.fired = true
			due = append(due, t)
		default:
			rest = append(rest, t)
		}
	}
	f.timers = rest
	f.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, t := range due {
		t.fn()
	}
}

type fakeStore struct {
	mu        sync.Mutex
	records   map[string]storage.Giveaway
	markErr   error
	createErr error
}

func newFakeStore(records ...storage.Giveaway) *fakeStore {
	s := &fakeStore{records: make(map[string]storage.Giveaway)}
	for _, g := range records {
		s.records[g.MessageID] = g
	}
	return s
}

func (s *fakeStore) CreateGiveaway(ctx context.Context, g storage.Giveaway) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.records[g.MessageID]; ok {
		return storage.ErrDuplicateKey
	}
	s.records[g.MessageID] = g
	return nil
}

func (s *fakeStore) GetGiveaway(ctx context.Context, messageID string) (storage.Giveaway, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.records[messageID]
	if !ok {
		return storage.Giveaway{}, storage.ErrNotFound
	}
	return g, nil
}

func (s *fakeStore) ListActiveGiveaways(ctx context.Context) ([]storage.Giveaway, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Giveaway
	for _, g := range s.records {
		if !g.Ended {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndAt.Before(out[j].EndAt) })
	return out, nil
}

func (s *fakeStore) MarkGiveawayEnded(ctx context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return false, s.markErr
	}
	g, ok := s.records[messageID]
	if !ok || g.Ended {
		return false, nil
	}
	g.Ended = true
	s.records[messageID] = g
	return true, nil
}

func (s *fakeStore) ended(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[messageID].Ended
}

type resultCall struct {
	MessageID string
	Winners   []Participant
}

type fakeChat struct {
	mu sync.Mutex

	channelErr  error
	messageErr  error
	reactors    []Participant
	reactorsErr error
	showErr     error
	announceErr error
	rerollErr   error
	postErr     error
	hold        chan struct{}

	nextID       int
	posted       []storage.Giveaway
	reactions    []string
	reactorCalls int
	shown        []resultCall
	announced    []resultCall
	rerolled     []resultCall
}

var errGone = errors.New("unknown channel")

// ResolveChannel signals on hold, when set, and blocks until released.
func (c *fakeChat) ResolveChannel(ctx context.Context, channelID string) error {
	if c.hold != nil {
		c.hold <- struct{}{}
		<-c.hold
	}
	return c.channelErr
}

func (c *fakeChat) ResolveMessage(ctx context.Context, channelID, messageID string) error {
	return c.messageErr
}

func (c *fakeChat) Reactors(ctx context.Context, channelID, messageID, emoji string) ([]Participant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reactorCalls++
	if c.reactorsErr != nil {
		return nil, c.reactorsErr
	}
	return append([]Participant(nil), c.reactors...), nil
}

func (c *fakeChat) PostGiveaway(ctx context.Context, g storage.Giveaway) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.postErr != nil {
		return "", c.postErr
	}
	c.nextID++
	c.posted = append(c.posted, g)
	return "msg-" + strconv.Itoa(c.nextID), nil
}

func (c *fakeChat) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reactions = append(c.reactions, messageID+":"+emoji)
	return nil
}

func (c *fakeChat) ShowResult(ctx context.Context, g storage.Giveaway, winners []Participant) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shown = append(c.shown, resultCall{MessageID: g.MessageID, Winners: winners})
	return c.showErr
}

func (c *fakeChat) AnnounceResult(ctx context.Context, g storage.Giveaway, winners []Participant) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.announced = append(c.announced, resultCall{MessageID: g.MessageID, Winners: winners})
	return c.announceErr
}

func (c *fakeChat) AnnounceReroll(ctx context.Context, g storage.Giveaway, winners []Participant) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rerolled = append(c.rerolled, resultCall{MessageID: g.MessageID, Winners: winners})
	return c.rerollErr
}

func (c *fakeChat) sideEffects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reactorCalls + len(c.shown) + len(c.announced) + len(c.rerolled)
}
