package hand

import (
	"errors"
	"fmt"
	"sort"
)

// Type is the combination a group of cards forms.
type Type int

const (
	TypeNone Type = iota
	TypeSingle
	TypePair
	TypeTriple
	TypeStraight
	TypeFullHouse
	TypeTube  // three consecutive pairs, e.g. 334455
	TypePlate // two consecutive triples, e.g. 333444
	TypeBomb
	TypeStraightFlush
	TypeJokerBomb
)

var typeNames = map[Type]string{
	TypeNone:          "none",
	TypeSingle:        "single",
	TypePair:          "pair",
	TypeTriple:        "triple",
	TypeStraight:      "straight",
	TypeFullHouse:     "full_house",
	TypeTube:          "tube",
	TypePlate:         "plate",
	TypeBomb:          "bomb",
	TypeStraightFlush: "straight_flush",
	TypeJokerBomb:     "joker_bomb",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseType is the inverse of Type.String.
func ParseType(v string) (Type, error) {
	for t, name := range typeNames {
		if name == v {
			return t, nil
		}
	}
	return TypeNone, fmt.Errorf("unknown hand type %q", v)
}

// IsBomb reports whether t outranks the ordinary hierarchy.
func (t Type) IsBomb() bool {
	return t == TypeBomb || t == TypeStraightFlush || t == TypeJokerBomb
}

// Bomb tiers. A bomb's tier is its card count; a straight flush carries
// TierStraightFlush but outranks every five-card bomb and loses to six.
const (
	TierStraightFlush = 5
	TierJokerBomb     = 99
)

// Hand is a classified card group. The zero Hand means "no hand", which is
// what an uncontested battlefield holds.
type Hand struct {
	Type  Type
	Value int
	Count int
	Tier  int
}

// IsZero reports whether h is the empty hand.
func (h Hand) IsZero() bool {
	return h.Type == TypeNone
}

// IsBomb reports whether h is any kind of bomb.
func (h Hand) IsBomb() bool {
	return h.Type.IsBomb()
}

func (h Hand) String() string {
	if h.IsZero() {
		return "none"
	}
	if h.IsBomb() {
		return fmt.Sprintf("%s(value=%d,count=%d,tier=%d)", h.Type, h.Value, h.Count, h.Tier)
	}
	return fmt.Sprintf("%s(value=%d,count=%d)", h.Type, h.Value, h.Count)
}

var (
	ErrEmptyHand          = errors.New("no cards given")
	ErrInvalidCard        = errors.New("card has an invalid suit or rank")
	ErrInvalidCombination = errors.New("cards do not form a valid combination")
)

type rankGroup struct {
	rank  Rank
	count int
}

// Classify determines which combination faces form. Callers are expected
// to have removed duplicate cards already; faces only carry suit and rank,
// so two physical copies of the same card are legitimately equal here.
func Classify(faces []Face) (Hand, error) {
	n := len(faces)
	if n == 0 {
		return Hand{}, ErrEmptyHand
	}
	jokers := 0
	for _, f := range faces {
		if !f.Valid() {
			return Hand{}, fmt.Errorf("%w: %v", ErrInvalidCard, f)
		}
		if f.Rank.IsJoker() {
			jokers++
		}
	}

	groups := groupByRank(faces)

	if n == 4 && jokers == 4 {
		return Hand{Type: TypeJokerBomb, Value: int(RankRedJoker), Count: 4, Tier: TierJokerBomb}, nil
	}
	if n >= 4 && len(groups) == 1 {
		return Hand{Type: TypeBomb, Value: int(groups[0].rank), Count: n, Tier: n}, nil
	}
	if n == 5 && isFlush(faces) {
		if top, ok := straightTop(groups); ok {
			return Hand{Type: TypeStraightFlush, Value: top, Count: 5, Tier: TierStraightFlush}, nil
		}
	}

	switch n {
	case 1:
		return Hand{Type: TypeSingle, Value: int(groups[0].rank), Count: 1}, nil
	case 2:
		if len(groups) == 1 {
			return Hand{Type: TypePair, Value: int(groups[0].rank), Count: 2}, nil
		}
	case 3:
		if len(groups) == 1 {
			return Hand{Type: TypeTriple, Value: int(groups[0].rank), Count: 3}, nil
		}
	case 5:
		if len(groups) == 2 && groups[0].count == 3 && groups[1].count == 2 {
			return Hand{Type: TypeFullHouse, Value: int(groups[0].rank), Count: 5}, nil
		}
		if top, ok := straightTop(groups); ok {
			return Hand{Type: TypeStraight, Value: top, Count: 5}, nil
		}
	case 6:
		if len(groups) == 2 && groups[0].count == 3 && groups[1].count == 3 && consecutive(groups) {
			return Hand{Type: TypePlate, Value: int(maxRank(groups)), Count: 6}, nil
		}
		if len(groups) == 3 && allCount(groups, 2) && consecutive(groups) {
			return Hand{Type: TypeTube, Value: int(maxRank(groups)), Count: 6}, nil
		}
	}

	return Hand{}, ErrInvalidCombination
}

// groupByRank returns rank groups ordered by size, then rank, both descending.
func groupByRank(faces []Face) []rankGroup {
	counts := make(map[Rank]int, len(faces))
	for _, f := range faces {
		counts[f.Rank]++
	}
	groups := make([]rankGroup, 0, len(counts))
	for r, c := range counts {
		groups = append(groups, rankGroup{rank: r, count: c})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].count != groups[j].count {
			return groups[i].count > groups[j].count
		}
		return groups[i].rank > groups[j].rank
	})
	return groups
}

func isFlush(faces []Face) bool {
	suit := faces[0].Suit
	if !suit.Valid() {
		return false
	}
	for _, f := range faces[1:] {
		if f.Suit != suit {
			return false
		}
	}
	return true
}

// straightTop checks for five distinct consecutive ranks and returns the
// straight's value. A-2-3-4-5 is legal with the five as its top.
func straightTop(groups []rankGroup) (int, bool) {
	if len(groups) != 5 {
		return 0, false
	}
	ranks := make([]int, 0, 5)
	for _, g := range groups {
		if g.rank.IsJoker() {
			return 0, false
		}
		ranks = append(ranks, int(g.rank))
	}
	sort.Ints(ranks)
	if ranks[4]-ranks[0] == 4 {
		return ranks[4], true
	}
	wheel := []int{int(RankThree), int(RankFour), int(RankFive), int(RankAce), int(RankLevel)}
	for i := range wheel {
		if ranks[i] != wheel[i] {
			return 0, false
		}
	}
	return int(RankFive), true
}

func consecutive(groups []rankGroup) bool {
	ranks := make([]int, 0, len(groups))
	for _, g := range groups {
		if g.rank.IsJoker() {
			return false
		}
		ranks = append(ranks, int(g.rank))
	}
	sort.Ints(ranks)
	for i := 1; i < len(ranks); i++ {
		if ranks[i]-ranks[i-1] != 1 {
			return false
		}
	}
	return true
}

func allCount(groups []rankGroup, n int) bool {
	for _, g := range groups {
		if g.count != n {
			return false
		}
	}
	return true
}

func maxRank(groups []rankGroup) Rank {
	top := groups[0].rank
	for _, g := range groups[1:] {
		if g.rank > top {
			top = g.rank
		}
	}
	return top
}
