package hand

import "math"

// Verdict is the result of comparing a candidate hand against the hand
// currently on the battlefield.
type Verdict int

const (
	// VerdictBeats means the candidate takes the battlefield.
	VerdictBeats Verdict = iota
	// VerdictLoses means the candidate is a legal response but too weak.
	VerdictLoses
	// VerdictIllegal means the candidate cannot be played against the
	// incumbent at all (type/count mismatch, or joker bomb on joker bomb).
	VerdictIllegal
)

func (v Verdict) String() string {
	switch v {
	case VerdictBeats:
		return "beats"
	case VerdictLoses:
		return "loses"
	case VerdictIllegal:
		return "illegal"
	default:
		return "unknown"
	}
}

// Compare decides whether candidate outranks incumbent. A zero incumbent is
// an uncontested battlefield that any valid candidate takes.
func Compare(candidate, incumbent Hand) Verdict {
	if candidate.IsZero() {
		return VerdictIllegal
	}
	if incumbent.IsZero() {
		return VerdictBeats
	}

	if candidate.Type == TypeJokerBomb && incumbent.Type == TypeJokerBomb {
		return VerdictIllegal
	}

	cBomb, iBomb := candidate.IsBomb(), incumbent.IsBomb()
	switch {
	case cBomb && !iBomb:
		return VerdictBeats
	case !cBomb && iBomb:
		return VerdictLoses
	case cBomb && iBomb:
		cs, is := bombStrength(candidate), bombStrength(incumbent)
		if cs != is {
			return verdictFor(cs > is)
		}
		return verdictFor(candidate.Value > incumbent.Value)
	}

	if candidate.Type != incumbent.Type || candidate.Count != incumbent.Count {
		return VerdictIllegal
	}
	return verdictFor(candidate.Value > incumbent.Value)
}

// Beats reports whether candidate takes the battlefield from incumbent.
func Beats(candidate, incumbent Hand) bool {
	return Compare(candidate, incumbent) == VerdictBeats
}

// bombStrength orders bombs on a doubled tier scale so a straight flush
// lands strictly between the five- and six-card bombs.
func bombStrength(h Hand) int {
	switch h.Type {
	case TypeJokerBomb:
		return math.MaxInt
	case TypeStraightFlush:
		return 2*TierStraightFlush + 1
	default:
		return 2 * h.Tier
	}
}

func verdictFor(wins bool) Verdict {
	if wins {
		return VerdictBeats
	}
	return VerdictLoses
}
