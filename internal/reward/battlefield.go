package reward

import (
	"context"
	"errors"
	"fmt"

	"github.com/dragonvein/dragonvein-server-go/internal/hand"
	"go.uber.org/zap"
)

// RejectReason explains why a challenge did not take the battlefield.
type RejectReason string

const (
	ReasonInvalidCombination   RejectReason = "invalid_combination"
	ReasonAlreadyInControl     RejectReason = "already_in_control"
	ReasonIllegalResponse      RejectReason = "illegal_response"
	ReasonInsufficientStrength RejectReason = "insufficient_strength"
)

// ChallengeOutcome is the result of a challenge. A rejected challenge leaves
// Battlefield as it was read inside the transaction.
type ChallengeOutcome struct {
	Accepted    bool
	Reason      RejectReason
	Hand        hand.Hand
	Battlefield BattlefieldState
}

// Challenge plays cardIDs from teamID's pool against the hand on the
// battlefield. Rule rejections come back as an unaccepted outcome with a nil
// error; bad card references are ValidationErrors.
func (s *Service) Challenge(ctx context.Context, teamID int64, cardIDs []int64) (*ChallengeOutcome, error) {
	if teamID <= 0 {
		return nil, invalid(CodeInvalidArgument, "team id must be positive")
	}
	if len(cardIDs) == 0 {
		return nil, invalid(CodeInvalidArgument, "no cards played")
	}
	seen := make(map[int64]bool, len(cardIDs))
	for _, id := range cardIDs {
		if seen[id] {
			return nil, invalid(CodeInvalidArgument, "card %d listed twice", id)
		}
		seen[id] = true
	}

	var out *ChallengeOutcome
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		out = nil

		bf, err := tx.LockBattlefield(ctx)
		if err != nil {
			return err
		}
		if !bf.Uncontested() && bf.Hand.IsZero() {
			return &IntegrityError{Msg: fmt.Sprintf("team %d controls the battlefield with no hand", bf.ControllingTeam)}
		}

		cards, err := tx.LockCards(ctx, cardIDs)
		if err != nil {
			return err
		}
		if len(cards) != len(cardIDs) {
			return invalid(CodeNotFound, "some of the played cards do not exist")
		}
		faces := make([]hand.Face, 0, len(cards))
		for _, c := range cards {
			if c.Played && c.OwnerTeam == nil {
				return &IntegrityError{Msg: fmt.Sprintf("card %d is played but has no team", c.ID)}
			}
			if !c.OwnedBy(teamID) {
				return invalid(CodeNotOwner, "card %d does not belong to team %d", c.ID, teamID)
			}
			if c.Played {
				return invalid(CodeCardPlayed, "card %d has already been played", c.ID)
			}
			faces = append(faces, c.Face())
		}

		reject := func(r RejectReason, h hand.Hand) error {
			out = &ChallengeOutcome{Reason: r, Hand: h, Battlefield: *bf}
			return nil
		}

		h, err := hand.Classify(faces)
		if err != nil {
			return reject(ReasonInvalidCombination, hand.Hand{})
		}
		if bf.ControllingTeam == teamID {
			return reject(ReasonAlreadyInControl, h)
		}
		switch hand.Compare(h, bf.Hand) {
		case hand.VerdictIllegal:
			return reject(ReasonIllegalResponse, h)
		case hand.VerdictLoses:
			return reject(ReasonInsufficientStrength, h)
		}

		if err := tx.MarkCardsPlayed(ctx, cardIDs); err != nil {
			return err
		}

		SortCards(cards)
		snapshot := make([]CardView, 0, len(cards))
		for _, c := range cards {
			snapshot = append(snapshot, c.View())
		}
		next := BattlefieldState{
			ControllingTeam: teamID,
			Hand:            h,
			Snapshot:        snapshot,
			Version:         bf.Version + 1,
			UpdatedAt:       s.now(),
		}
		if err := tx.SaveBattlefield(ctx, next); err != nil {
			return err
		}
		out = &ChallengeOutcome{Accepted: true, Hand: h, Battlefield: next}
		return nil
	})
	if err != nil {
		s.logIntegrity("challenge", err)
		return nil, err
	}

	if !out.Accepted {
		s.logger.Info("challenge rejected",
			zap.Int64("team_id", teamID),
			zap.Int64s("card_ids", cardIDs),
			zap.String("reason", string(out.Reason)),
		)
		return out, nil
	}

	s.logger.Info("battlefield taken",
		zap.Int64("team_id", teamID),
		zap.String("hand", out.Hand.String()),
		zap.Int64("version", out.Battlefield.Version),
	)
	s.notifier.BattlefieldChanged(out.Battlefield)
	return out, nil
}

// BattlefieldView is the advisory display of the battlefield. It is read
// outside any transaction and may be stale.
type BattlefieldView struct {
	BattlefieldState
	TeamCardCounts map[int64]int
	Supply         Supply
}

// Battlefield returns the current battlefield with per-team remaining card
// counts.
func (s *Service) Battlefield(ctx context.Context) (*BattlefieldView, error) {
	st, err := s.store.ReadBattlefield(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.TeamCardCounts(ctx)
	if err != nil {
		return nil, err
	}
	supply, err := s.store.SupplyCounts(ctx)
	if err != nil {
		return nil, err
	}
	return &BattlefieldView{BattlefieldState: *st, TeamCardCounts: counts, Supply: supply}, nil
}

// TeamHand lists the unplayed cards a team holds, strongest first.
func (s *Service) TeamHand(ctx context.Context, teamID int64) ([]Card, error) {
	if teamID <= 0 {
		return nil, invalid(CodeInvalidArgument, "team id must be positive")
	}
	cards, err := s.store.TeamCards(ctx, teamID)
	if err != nil {
		return nil, err
	}
	SortCards(cards)
	return cards, nil
}

// UserRewards lists everything a user has drawn.
func (s *Service) UserRewards(ctx context.Context, userID int64) ([]Card, []Item, error) {
	if userID <= 0 {
		return nil, nil, invalid(CodeInvalidArgument, "user id must be positive")
	}
	return s.store.UserRewards(ctx, userID)
}

// Supply returns the pool counts by state.
func (s *Service) Supply(ctx context.Context) (Supply, error) {
	return s.store.SupplyCounts(ctx)
}

// Seed loads the manifest's supply into the store.
func (s *Service) Seed(ctx context.Context, m *Manifest, force bool) error {
	if err := m.Validate(); err != nil {
		return err
	}
	cards, items := m.BuildSupply()
	if err := s.store.Seed(ctx, cards, items, force); err != nil {
		if errors.Is(err, ErrAlreadySeeded) {
			s.logger.Warn("seed skipped, pool already seeded")
		}
		return err
	}
	s.logger.Info("pool seeded",
		zap.Int("cards", len(cards)),
		zap.Int("items", len(items)),
		zap.Bool("force", force),
	)
	return nil
}
