// Package memstore is an in-process reward.Store for tests, demos and
// single-instance runs. Transactions are serialized behind one mutex and
// applied copy-on-commit, so a failed transaction leaves no trace.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dragonvein/dragonvein-server-go/internal/reward"
	"go.uber.org/zap"
)

type checkinKey struct {
	userID int64
	siteID int64
}

type state struct {
	cards       map[int64]reward.Card
	items       map[int64]reward.Item
	checkins    map[checkinKey]reward.Checkin
	battlefield reward.BattlefieldState
	nextCardID  int64
	nextItemID  int64
}

func newState() *state {
	return &state{
		cards:      make(map[int64]reward.Card),
		items:      make(map[int64]reward.Item),
		checkins:   make(map[checkinKey]reward.Checkin),
		nextCardID: 1,
		nextItemID: 1,
	}
}

// clone copies the maps. Entries are values whose pointer fields are
// replaced, never written through, so a shallow entry copy is enough.
func (s *state) clone() *state {
	c := &state{
		cards:       make(map[int64]reward.Card, len(s.cards)),
		items:       make(map[int64]reward.Item, len(s.items)),
		checkins:    make(map[checkinKey]reward.Checkin, len(s.checkins)),
		battlefield: s.battlefield,
		nextCardID:  s.nextCardID,
		nextItemID:  s.nextItemID,
	}
	for id, card := range s.cards {
		c.cards[id] = card
	}
	for id, item := range s.items {
		c.items[id] = item
	}
	for k, v := range s.checkins {
		c.checkins[k] = v
	}
	c.battlefield.Snapshot = append([]reward.CardView(nil), s.battlefield.Snapshot...)
	return c
}

// Store keeps the pool in memory.
type Store struct {
	logger *zap.Logger

	mu sync.Mutex
	st *state
}

var _ reward.Store = (*Store)(nil)

// New creates an empty store.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger, st: newState()}
}

// InTx runs fn against a private copy of the state and publishes the copy
// only when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx reward.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &memTx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) ReadBattlefield(ctx context.Context) (*reward.BattlefieldState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bf := s.st.battlefield
	bf.Snapshot = append([]reward.CardView(nil), bf.Snapshot...)
	return &bf, nil
}

func (s *Store) TeamCardCounts(ctx context.Context) (map[int64]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[int64]int)
	for _, c := range s.st.cards {
		if c.OwnerTeam != nil && !c.Played {
			counts[*c.OwnerTeam]++
		}
	}
	return counts, nil
}

func (s *Store) SupplyCounts(ctx context.Context) (reward.Supply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sup reward.Supply
	for _, c := range s.st.cards {
		switch {
		case c.Played:
			sup.CardsPlayed++
		case c.Claimed():
			sup.CardsHeld++
		default:
			sup.CardsUnclaimed++
		}
		if c.Wild {
			sup.CardsWild++
		}
	}
	for _, it := range s.st.items {
		switch {
		case it.Used:
			sup.ItemsUsed++
		case it.Claimed():
			sup.ItemsHeld++
		default:
			sup.ItemsUnclaimed++
		}
	}
	return sup, nil
}

func (s *Store) TeamCards(ctx context.Context, teamID int64) ([]reward.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.unplayedTeamCards(teamID), nil
}

func (s *Store) UserRewards(ctx context.Context, userID int64) ([]reward.Card, []reward.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cards []reward.Card
	for _, c := range s.st.cards {
		if c.OwnerUser != nil && *c.OwnerUser == userID {
			cards = append(cards, c)
		}
	}
	var items []reward.Item
	for _, it := range s.st.items {
		if it.HeldBy(userID) {
			items = append(items, it)
		}
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return cards, items, nil
}

func (s *Store) Seed(ctx context.Context, cards []reward.Card, items []reward.Item, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if (len(s.st.cards) > 0 || len(s.st.items) > 0) && !force {
		return reward.ErrAlreadySeeded
	}
	st := newState()
	for _, c := range cards {
		c.ID = st.nextCardID
		st.nextCardID++
		st.cards[c.ID] = c
	}
	for _, it := range items {
		it.ID = st.nextItemID
		st.nextItemID++
		st.items[it.ID] = it
	}
	s.st = st
	s.logger.Debug("memstore seeded", zap.Int("cards", len(cards)), zap.Int("items", len(items)))
	return nil
}

// Cards returns every card ordered by id.
func (s *Store) Cards() []reward.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]reward.Card, 0, len(s.st.cards))
	for _, c := range s.st.cards {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Items returns every item ordered by id.
func (s *Store) Items() []reward.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]reward.Item, 0, len(s.st.items))
	for _, it := range s.st.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) unplayedTeamCards(teamID int64) []reward.Card {
	var out []reward.Card
	for _, c := range s.cards {
		if c.OwnedBy(teamID) && !c.Played {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memTx struct {
	st *state
}

func (t *memTx) HoldsRewardFromSite(ctx context.Context, userID, siteID int64) (bool, error) {
	if _, ok := t.st.checkins[checkinKey{userID, siteID}]; ok {
		return true, nil
	}
	from := func(user, origin *int64) bool {
		return user != nil && *user == userID && origin != nil && *origin == siteID
	}
	for _, c := range t.st.cards {
		if from(c.OwnerUser, c.OriginSite) {
			return true, nil
		}
	}
	for _, it := range t.st.items {
		if from(it.OwnerUser, it.OriginSite) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) RecordCheckin(ctx context.Context, c reward.Checkin) error {
	k := checkinKey{c.UserID, c.SiteID}
	if _, ok := t.st.checkins[k]; ok {
		return reward.ErrDuplicateCheckin
	}
	t.st.checkins[k] = c
	return nil
}

func (t *memTx) CountUnclaimed(ctx context.Context) (int, int, error) {
	var cards, items int
	for _, c := range t.st.cards {
		if !c.Claimed() {
			cards++
		}
	}
	for _, it := range t.st.items {
		if !it.Claimed() {
			items++
		}
	}
	return cards, items, nil
}

func (t *memTx) UnclaimedCardIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	for id, c := range t.st.cards {
		if !c.Claimed() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (t *memTx) UnclaimedItemIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	for id, it := range t.st.items {
		if !it.Claimed() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (t *memTx) BindCard(ctx context.Context, id int64, b reward.Binding) (*reward.Card, error) {
	c, ok := t.st.cards[id]
	if !ok || c.Claimed() {
		return nil, nil
	}
	c.OwnerUser = ptr(b.UserID)
	c.OwnerTeam = ptr(b.TeamID)
	c.OriginSite = copyPtr(b.SiteID)
	c.ClaimedAt = ptr(b.At)
	t.st.cards[id] = c
	return &c, nil
}

func (t *memTx) BindItem(ctx context.Context, id int64, b reward.Binding) (*reward.Item, error) {
	it, ok := t.st.items[id]
	if !ok || it.Claimed() {
		return nil, nil
	}
	it.OwnerUser = ptr(b.UserID)
	it.OwnerTeam = ptr(b.TeamID)
	it.OriginSite = copyPtr(b.SiteID)
	it.ClaimedAt = ptr(b.At)
	t.st.items[id] = it
	return &it, nil
}

func (t *memTx) LockItem(ctx context.Context, id int64) (*reward.Item, error) {
	it, ok := t.st.items[id]
	if !ok {
		return nil, fmt.Errorf("item %d: %w", id, reward.ErrNotFound)
	}
	return &it, nil
}

func (t *memTx) LockUnusedFragments(ctx context.Context, teamID int64) ([]reward.Item, error) {
	var out []reward.Item
	for _, it := range t.st.items {
		if it.Kind == reward.ItemFragment && !it.Used && it.OwnerTeam != nil && *it.OwnerTeam == teamID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := claimedAt(out[i].ClaimedAt), claimedAt(out[j].ClaimedAt)
		if !ai.Equal(aj) {
			return ai.Before(aj)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) MarkItemsUsed(ctx context.Context, ids []int64, at time.Time) error {
	for _, id := range ids {
		it, ok := t.st.items[id]
		if !ok {
			return fmt.Errorf("item %d: %w", id, reward.ErrNotFound)
		}
		it.Used = true
		it.UsedAt = ptr(at)
		t.st.items[id] = it
	}
	return nil
}

func (t *memTx) InsertCard(ctx context.Context, c reward.Card) (*reward.Card, error) {
	c.ID = t.st.nextCardID
	t.st.nextCardID++
	t.st.cards[c.ID] = c
	return &c, nil
}

func (t *memTx) LockCards(ctx context.Context, ids []int64) ([]reward.Card, error) {
	out := make([]reward.Card, 0, len(ids))
	for _, id := range ids {
		if c, ok := t.st.cards[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (t *memTx) LockUnplayedTeamCards(ctx context.Context, teamID int64) ([]reward.Card, error) {
	return t.st.unplayedTeamCards(teamID), nil
}

func (t *memTx) SetCardTeam(ctx context.Context, cardID, teamID int64) error {
	c, ok := t.st.cards[cardID]
	if !ok {
		return fmt.Errorf("card %d: %w", cardID, reward.ErrNotFound)
	}
	c.OwnerTeam = ptr(teamID)
	t.st.cards[cardID] = c
	return nil
}

func (t *memTx) MarkCardsPlayed(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		c, ok := t.st.cards[id]
		if !ok {
			return fmt.Errorf("card %d: %w", id, reward.ErrNotFound)
		}
		if c.OwnerTeam == nil {
			return &reward.IntegrityError{Msg: fmt.Sprintf("card %d played without a team", id)}
		}
		c.Played = true
		t.st.cards[id] = c
	}
	return nil
}

func (t *memTx) LockBattlefield(ctx context.Context) (*reward.BattlefieldState, error) {
	bf := t.st.battlefield
	bf.Snapshot = append([]reward.CardView(nil), bf.Snapshot...)
	return &bf, nil
}

func (t *memTx) SaveBattlefield(ctx context.Context, st reward.BattlefieldState) error {
	st.Snapshot = append([]reward.CardView(nil), st.Snapshot...)
	t.st.battlefield = st
	return nil
}

func ptr[T any](v T) *T {
	return &v
}

func copyPtr(p *int64) *int64 {
	if p == nil {
		return nil
	}
	return ptr(*p)
}

func claimedAt(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
