package hand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustClassify(t *testing.T, faces ...Face) Hand {
	t.Helper()
	h, err := Classify(faces)
	require.NoError(t, err)
	return h
}

func bombOf(t *testing.T, r Rank, n int) Hand {
	t.Helper()
	suits := []Suit{SuitSpades, SuitHearts, SuitClubs, SuitDiamonds}
	faces := make([]Face, n)
	for i := range faces {
		faces[i] = f(suits[i%4], r)
	}
	return mustClassify(t, faces...)
}

func TestCompare(t *testing.T) {
	singleAce := mustClassify(t, f(SuitHearts, RankAce))
	singleKing := mustClassify(t, f(SuitHearts, RankKing))
	pairNine := mustClassify(t, f(SuitHearts, RankNine), f(SuitClubs, RankNine))
	pairTen := mustClassify(t, f(SuitHearts, RankTen), f(SuitClubs, RankTen))
	bombTwos := bombOf(t, RankLevel, 4)
	bombThrees := bombOf(t, RankThree, 4)
	fiveBombAces := bombOf(t, RankAce, 5)
	sixBombThrees := bombOf(t, RankThree, 6)
	flush := mustClassify(t,
		f(SuitSpades, RankThree), f(SuitSpades, RankFour), f(SuitSpades, RankFive),
		f(SuitSpades, RankSix), f(SuitSpades, RankSeven))
	higherFlush := mustClassify(t,
		f(SuitHearts, RankFour), f(SuitHearts, RankFive), f(SuitHearts, RankSix),
		f(SuitHearts, RankSeven), f(SuitHearts, RankEight))
	jokers := mustClassify(t, blackJoker, blackJoker, redJoker, redJoker)
	tube := mustClassify(t,
		f(SuitHearts, RankThree), f(SuitClubs, RankThree),
		f(SuitHearts, RankFour), f(SuitClubs, RankFour),
		f(SuitHearts, RankFive), f(SuitClubs, RankFive))
	plate := mustClassify(t,
		f(SuitHearts, RankThree), f(SuitClubs, RankThree), f(SuitSpades, RankThree),
		f(SuitHearts, RankFour), f(SuitClubs, RankFour), f(SuitSpades, RankFour))

	tests := []struct {
		name      string
		candidate Hand
		incumbent Hand
		want      Verdict
	}{
		{"anything takes an uncontested battlefield", singleKing, Hand{}, VerdictBeats},
		{"higher single", singleAce, singleKing, VerdictBeats},
		{"lower single", singleKing, singleAce, VerdictLoses},
		{"equal value loses", singleAce, singleAce, VerdictLoses},
		{"higher pair", pairTen, pairNine, VerdictBeats},
		{"pair against single is illegal", pairTen, singleKing, VerdictIllegal},
		{"tube against plate is illegal", tube, plate, VerdictIllegal},
		{"single against bomb loses", singleAce, bombTwos, VerdictLoses},
		{"bomb against single beats", bombTwos, singleAce, VerdictBeats},
		{"bomb against tube beats", bombThrees, tube, VerdictBeats},
		{"higher four bomb", bombTwos, bombThrees, VerdictBeats},
		{"five bomb over four bomb regardless of rank", bombOf(t, RankThree, 5), bombTwos, VerdictBeats},
		{"straight flush over five bomb", flush, fiveBombAces, VerdictBeats},
		{"straight flush over four bomb", flush, bombTwos, VerdictBeats},
		{"five bomb under straight flush", fiveBombAces, flush, VerdictLoses},
		{"six bomb over straight flush", sixBombThrees, flush, VerdictBeats},
		{"straight flush under six bomb", flush, sixBombThrees, VerdictLoses},
		{"higher straight flush", higherFlush, flush, VerdictBeats},
		{"joker bomb over six bomb", jokers, sixBombThrees, VerdictBeats},
		{"bomb under joker bomb", bombOf(t, RankAce, 8), jokers, VerdictLoses},
		{"joker bomb on joker bomb has no legal response", jokers, jokers, VerdictIllegal},
		{"empty candidate is illegal", Hand{}, singleAce, VerdictIllegal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.candidate, tt.incumbent))
			assert.Equal(t, tt.want == VerdictBeats, Beats(tt.candidate, tt.incumbent))
		})
	}
}

func TestBeatsBombAndSingle(t *testing.T) {
	bomb := mustClassify(t,
		f(SuitSpades, RankLevel), f(SuitHearts, RankLevel),
		f(SuitClubs, RankLevel), f(SuitDiamonds, RankLevel))
	ace := mustClassify(t, f(SuitSpades, RankAce))

	assert.Equal(t, 4, bomb.Tier)
	assert.False(t, Beats(ace, bomb))
	assert.True(t, Beats(bomb, ace))
}

func TestJokerBombAsymmetry(t *testing.T) {
	first := mustClassify(t, blackJoker, redJoker, blackJoker, redJoker)
	second := mustClassify(t, redJoker, redJoker, blackJoker, blackJoker)

	assert.False(t, Beats(second, first))
	assert.Equal(t, VerdictIllegal, Compare(second, first), "a standing joker bomb admits no legal response")
}
