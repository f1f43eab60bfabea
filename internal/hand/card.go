package hand

import (
	"fmt"
	"strings"
)

// Suit is one of the four card suits. Jokers carry SuitNone.
type Suit int8

const (
	SuitNone Suit = iota
	SuitSpades
	SuitHearts
	SuitClubs
	SuitDiamonds
)

func (s Suit) String() string {
	switch s {
	case SuitSpades:
		return "♠"
	case SuitHearts:
		return "♥"
	case SuitClubs:
		return "♣"
	case SuitDiamonds:
		return "♦"
	default:
		return ""
	}
}

// Valid reports whether s is one of the four real suits.
func (s Suit) Valid() bool {
	return s >= SuitSpades && s <= SuitDiamonds
}

// ParseSuit accepts the suit symbol, its English name or its initial.
func ParseSuit(v string) (Suit, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "♠", "s", "spade", "spades":
		return SuitSpades, nil
	case "♥", "h", "heart", "hearts":
		return SuitHearts, nil
	case "♣", "c", "club", "clubs":
		return SuitClubs, nil
	case "♦", "d", "diamond", "diamonds":
		return SuitDiamonds, nil
	default:
		return SuitNone, fmt.Errorf("unknown suit %q", v)
	}
}

// Rank is the comparison value of a card. The level rank "2" sits above
// the ace, and the two jokers sit above everything else.
type Rank int

const (
	RankThree      Rank = 3
	RankFour       Rank = 4
	RankFive       Rank = 5
	RankSix        Rank = 6
	RankSeven      Rank = 7
	RankEight      Rank = 8
	RankNine       Rank = 9
	RankTen        Rank = 10
	RankJack       Rank = 11
	RankQueen      Rank = 12
	RankKing       Rank = 13
	RankAce        Rank = 14
	RankLevel      Rank = 15
	RankBlackJoker Rank = 19
	RankRedJoker   Rank = 20
)

// SuitedRanks lists every rank that appears once per suit in a deck.
var SuitedRanks = []Rank{
	RankThree, RankFour, RankFive, RankSix, RankSeven, RankEight, RankNine,
	RankTen, RankJack, RankQueen, RankKing, RankAce, RankLevel,
}

func (r Rank) String() string {
	switch {
	case r >= RankThree && r <= RankTen:
		return fmt.Sprintf("%d", int(r))
	case r == RankJack:
		return "J"
	case r == RankQueen:
		return "Q"
	case r == RankKing:
		return "K"
	case r == RankAce:
		return "A"
	case r == RankLevel:
		return "2"
	case r == RankBlackJoker:
		return "BJ"
	case r == RankRedJoker:
		return "RJ"
	default:
		return "?"
	}
}

// IsJoker reports whether r is one of the two joker ranks.
func (r Rank) IsJoker() bool {
	return r == RankBlackJoker || r == RankRedJoker
}

// Valid reports whether r is a rank that can appear on a card.
func (r Rank) Valid() bool {
	return (r >= RankThree && r <= RankLevel) || r.IsJoker()
}

// ParseRank accepts the printed rank ("3".."10", "J", "Q", "K", "A", "2",
// "BJ", "RJ").
func ParseRank(v string) (Rank, error) {
	s := strings.ToUpper(strings.TrimSpace(v))
	switch s {
	case "J":
		return RankJack, nil
	case "Q":
		return RankQueen, nil
	case "K":
		return RankKing, nil
	case "A":
		return RankAce, nil
	case "2":
		return RankLevel, nil
	case "BJ":
		return RankBlackJoker, nil
	case "RJ":
		return RankRedJoker, nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && fmt.Sprint(n) == s && n >= 3 && n <= 10 {
		return Rank(n), nil
	}
	return 0, fmt.Errorf("unknown rank %q", v)
}

// Face is the visible part of a card: its suit and rank.
type Face struct {
	Suit Suit
	Rank Rank
}

func (f Face) String() string {
	if f.Rank.IsJoker() {
		return f.Rank.String()
	}
	return f.Suit.String() + f.Rank.String()
}

// Valid reports whether f could be printed on a real card.
func (f Face) Valid() bool {
	if f.Rank.IsJoker() {
		return f.Suit == SuitNone
	}
	return f.Rank.Valid() && f.Suit.Valid()
}
