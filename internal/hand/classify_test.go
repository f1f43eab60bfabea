package hand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(s Suit, r Rank) Face { return Face{Suit: s, Rank: r} }

var (
	blackJoker = Face{Rank: RankBlackJoker}
	redJoker   = Face{Rank: RankRedJoker}
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		cards []Face
		want  Hand
	}{
		{
			name:  "single",
			cards: []Face{f(SuitHearts, RankAce)},
			want:  Hand{Type: TypeSingle, Value: 14, Count: 1},
		},
		{
			name:  "single joker",
			cards: []Face{redJoker},
			want:  Hand{Type: TypeSingle, Value: 20, Count: 1},
		},
		{
			name:  "pair",
			cards: []Face{f(SuitHearts, RankNine), f(SuitClubs, RankNine)},
			want:  Hand{Type: TypePair, Value: 9, Count: 2},
		},
		{
			name:  "pair of black jokers",
			cards: []Face{blackJoker, blackJoker},
			want:  Hand{Type: TypePair, Value: 19, Count: 2},
		},
		{
			name:  "triple of level rank",
			cards: []Face{f(SuitHearts, RankLevel), f(SuitClubs, RankLevel), f(SuitSpades, RankLevel)},
			want:  Hand{Type: TypeTriple, Value: 15, Count: 3},
		},
		{
			name: "straight",
			cards: []Face{
				f(SuitHearts, RankSix), f(SuitClubs, RankSeven), f(SuitSpades, RankEight),
				f(SuitHearts, RankNine), f(SuitDiamonds, RankTen),
			},
			want: Hand{Type: TypeStraight, Value: 10, Count: 5},
		},
		{
			name: "ace low straight is valued at five",
			cards: []Face{
				f(SuitHearts, RankAce), f(SuitClubs, RankLevel), f(SuitSpades, RankThree),
				f(SuitHearts, RankFour), f(SuitDiamonds, RankFive),
			},
			want: Hand{Type: TypeStraight, Value: 5, Count: 5},
		},
		{
			name: "ten to ace straight",
			cards: []Face{
				f(SuitHearts, RankTen), f(SuitClubs, RankJack), f(SuitSpades, RankQueen),
				f(SuitHearts, RankKing), f(SuitDiamonds, RankAce),
			},
			want: Hand{Type: TypeStraight, Value: 14, Count: 5},
		},
		{
			name: "full house takes the triple's rank",
			cards: []Face{
				f(SuitHearts, RankFour), f(SuitClubs, RankFour), f(SuitSpades, RankFour),
				f(SuitHearts, RankKing), f(SuitDiamonds, RankKing),
			},
			want: Hand{Type: TypeFullHouse, Value: 4, Count: 5},
		},
		{
			name: "tube",
			cards: []Face{
				f(SuitHearts, RankThree), f(SuitClubs, RankThree),
				f(SuitHearts, RankFour), f(SuitClubs, RankFour),
				f(SuitHearts, RankFive), f(SuitClubs, RankFive),
			},
			want: Hand{Type: TypeTube, Value: 5, Count: 6},
		},
		{
			name: "plate",
			cards: []Face{
				f(SuitHearts, RankJack), f(SuitClubs, RankJack), f(SuitSpades, RankJack),
				f(SuitHearts, RankQueen), f(SuitClubs, RankQueen), f(SuitDiamonds, RankQueen),
			},
			want: Hand{Type: TypePlate, Value: 12, Count: 6},
		},
		{
			name: "four card bomb",
			cards: []Face{
				f(SuitSpades, RankLevel), f(SuitHearts, RankLevel),
				f(SuitClubs, RankLevel), f(SuitDiamonds, RankLevel),
			},
			want: Hand{Type: TypeBomb, Value: 15, Count: 4, Tier: 4},
		},
		{
			name: "six card bomb",
			cards: []Face{
				f(SuitSpades, RankSeven), f(SuitHearts, RankSeven), f(SuitClubs, RankSeven),
				f(SuitDiamonds, RankSeven), f(SuitSpades, RankSeven), f(SuitHearts, RankSeven),
			},
			want: Hand{Type: TypeBomb, Value: 7, Count: 6, Tier: 6},
		},
		{
			name: "straight flush",
			cards: []Face{
				f(SuitSpades, RankThree), f(SuitSpades, RankFour), f(SuitSpades, RankFive),
				f(SuitSpades, RankSix), f(SuitSpades, RankSeven),
			},
			want: Hand{Type: TypeStraightFlush, Value: 7, Count: 5, Tier: TierStraightFlush},
		},
		{
			name:  "joker bomb",
			cards: []Face{blackJoker, blackJoker, redJoker, redJoker},
			want:  Hand{Type: TypeJokerBomb, Value: 20, Count: 4, Tier: TierJokerBomb},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.cards)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyRejects(t *testing.T) {
	tests := []struct {
		name  string
		cards []Face
		err   error
	}{
		{name: "empty", cards: nil, err: ErrEmptyHand},
		{name: "joker with a suit", cards: []Face{{Suit: SuitSpades, Rank: RankRedJoker}}, err: ErrInvalidCard},
		{name: "unknown rank", cards: []Face{{Suit: SuitSpades, Rank: 2}}, err: ErrInvalidCard},
		{name: "mixed pair", cards: []Face{f(SuitHearts, RankNine), f(SuitClubs, RankTen)}, err: ErrInvalidCombination},
		{name: "mixed jokers are not a pair", cards: []Face{blackJoker, redJoker}, err: ErrInvalidCombination},
		{
			name: "four cards that are not a bomb",
			cards: []Face{
				f(SuitHearts, RankNine), f(SuitClubs, RankNine), f(SuitSpades, RankNine), f(SuitClubs, RankTen),
			},
			err: ErrInvalidCombination,
		},
		{
			name: "broken straight",
			cards: []Face{
				f(SuitHearts, RankSix), f(SuitClubs, RankSeven), f(SuitSpades, RankEight),
				f(SuitHearts, RankNine), f(SuitDiamonds, RankJack),
			},
			err: ErrInvalidCombination,
		},
		{
			name: "two to six does not wrap",
			cards: []Face{
				f(SuitHearts, RankLevel), f(SuitClubs, RankThree), f(SuitSpades, RankFour),
				f(SuitHearts, RankFive), f(SuitDiamonds, RankSix),
			},
			err: ErrInvalidCombination,
		},
		{
			name: "jokers never form a straight",
			cards: []Face{
				f(SuitHearts, RankKing), f(SuitClubs, RankAce), f(SuitSpades, RankLevel),
				blackJoker, redJoker,
			},
			err: ErrInvalidCombination,
		},
		{
			name: "non consecutive pairs",
			cards: []Face{
				f(SuitHearts, RankThree), f(SuitClubs, RankThree),
				f(SuitHearts, RankFour), f(SuitClubs, RankFour),
				f(SuitHearts, RankSix), f(SuitClubs, RankSix),
			},
			err: ErrInvalidCombination,
		},
		{
			name: "non consecutive triples",
			cards: []Face{
				f(SuitHearts, RankThree), f(SuitClubs, RankThree), f(SuitSpades, RankThree),
				f(SuitHearts, RankFive), f(SuitClubs, RankFive), f(SuitSpades, RankFive),
			},
			err: ErrInvalidCombination,
		},
		{
			name:  "three jokers",
			cards: []Face{blackJoker, redJoker, redJoker},
			err:   ErrInvalidCombination,
		},
		{
			name: "seven loose cards",
			cards: []Face{
				f(SuitHearts, RankThree), f(SuitClubs, RankFour), f(SuitSpades, RankFive),
				f(SuitHearts, RankSix), f(SuitClubs, RankSeven), f(SuitSpades, RankEight),
				f(SuitHearts, RankNine),
			},
			err: ErrInvalidCombination,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.cards)
			require.ErrorIs(t, err, tt.err)
			assert.True(t, got.IsZero())
		})
	}
}

func TestParseRankRoundTrip(t *testing.T) {
	for _, r := range append(append([]Rank{}, SuitedRanks...), RankBlackJoker, RankRedJoker) {
		parsed, err := ParseRank(r.String())
		require.NoError(t, err, r.String())
		assert.Equal(t, r, parsed)
	}

	_, err := ParseRank("1")
	assert.Error(t, err)
	_, err = ParseRank("11")
	assert.Error(t, err)
}

func TestParseSuit(t *testing.T) {
	s, err := ParseSuit("hearts")
	require.NoError(t, err)
	assert.Equal(t, SuitHearts, s)

	s, err = ParseSuit("♠")
	require.NoError(t, err)
	assert.Equal(t, SuitSpades, s)

	_, err = ParseSuit("stars")
	assert.Error(t, err)
}

func TestParseTypeRoundTrip(t *testing.T) {
	for typ := TypeNone; typ <= TypeJokerBomb; typ++ {
		parsed, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
	}
}
