package reward

import (
	"fmt"
	"sort"
	"time"

	"github.com/dragonvein/dragonvein-server-go/internal/hand"
)

// ItemKind is the type of a special item in the pool.
type ItemKind string

const (
	ItemWild     ItemKind = "wild"
	ItemSwap     ItemKind = "swap"
	ItemFragment ItemKind = "fragment"
	ItemGift     ItemKind = "gift"
)

// ItemKinds lists every item kind in seeding order.
var ItemKinds = []ItemKind{ItemWild, ItemSwap, ItemFragment, ItemGift}

// ParseItemKind validates a stored or user supplied item kind.
func ParseItemKind(v string) (ItemKind, error) {
	for _, k := range ItemKinds {
		if string(k) == v {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown item kind %q", v)
}

// Card is a physical or wild-synthesized card in the pool. A card with no
// owning team is unclaimed.
type Card struct {
	ID         int64
	Suit       hand.Suit
	Rank       hand.Rank
	OriginSite *int64
	OwnerTeam  *int64
	OwnerUser  *int64
	Played     bool
	Wild       bool
	ClaimedAt  *time.Time
}

// Face returns the suit and rank of the card.
func (c Card) Face() hand.Face {
	return hand.Face{Suit: c.Suit, Rank: c.Rank}
}

// Claimed reports whether the card has left the unclaimed pool.
func (c Card) Claimed() bool {
	return c.OwnerTeam != nil
}

// OwnedBy reports whether the card currently belongs to teamID.
func (c Card) OwnedBy(teamID int64) bool {
	return c.OwnerTeam != nil && *c.OwnerTeam == teamID
}

// View returns the display form of the card.
func (c Card) View() CardView {
	return CardView{
		ID:      c.ID,
		Suit:    c.Suit.String(),
		Rank:    c.Rank.String(),
		Display: c.Face().String(),
		Wild:    c.Wild,
	}
}

// Item is a special reward. Used is terminal.
type Item struct {
	ID         int64
	Kind       ItemKind
	OwnerUser  *int64
	OwnerTeam  *int64
	OriginSite *int64
	Used       bool
	ClaimedAt  *time.Time
	UsedAt     *time.Time
}

// Claimed reports whether the item has left the unclaimed pool.
func (i Item) Claimed() bool {
	return i.OwnerTeam != nil
}

// HeldBy reports whether userID drew the item.
func (i Item) HeldBy(userID int64) bool {
	return i.OwnerUser != nil && *i.OwnerUser == userID
}

// CardView is the display snapshot of a card, used on the battlefield and
// in API responses.
type CardView struct {
	ID      int64  `json:"id"`
	Suit    string `json:"suit"`
	Rank    string `json:"rank"`
	Display string `json:"display"`
	Wild    bool   `json:"wild,omitempty"`
}

// Binding is what a claim writes onto a pool entry.
type Binding struct {
	UserID int64
	TeamID int64
	SiteID *int64
	At     time.Time
}

// Checkin is the ledger row recording one reward per user per site.
type Checkin struct {
	UserID     int64
	SiteID     int64
	TeamID     int64
	RewardKind string
	RewardID   int64
	At         time.Time
}

// BattlefieldState is the contested slot. ControllingTeam is 0 while the
// battlefield is uncontested.
type BattlefieldState struct {
	ControllingTeam int64
	Hand            hand.Hand
	Snapshot        []CardView
	Version         int64
	UpdatedAt       time.Time
}

// Uncontested reports whether no team holds the battlefield.
func (b BattlefieldState) Uncontested() bool {
	return b.ControllingTeam == 0
}

// Supply counts every pool entry by state.
type Supply struct {
	CardsUnclaimed int
	CardsHeld      int
	CardsPlayed    int
	CardsWild      int
	ItemsUnclaimed int
	ItemsHeld      int
	ItemsUsed      int
}

// TotalCards is the number of card rows, including wild-synthesized ones.
func (s Supply) TotalCards() int {
	return s.CardsUnclaimed + s.CardsHeld + s.CardsPlayed
}

// SortCards orders cards by rank descending, then suit, then id.
func SortCards(cards []Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		if cards[i].Rank != cards[j].Rank {
			return cards[i].Rank > cards[j].Rank
		}
		if cards[i].Suit != cards[j].Suit {
			return cards[i].Suit < cards[j].Suit
		}
		return cards[i].ID < cards[j].ID
	})
}

func int64Ptr(v int64) *int64 {
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
