package reward

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// DrawKind tags what a draw produced.
type DrawKind string

const (
	DrawCard          DrawKind = "card"
	DrawItem          DrawKind = "item"
	DrawFragmentBonus DrawKind = "fragment_bonus"
)

// DrawOutcome is the result of a successful draw. For DrawFragmentBonus the
// Item is the fragment just drawn, Consumed lists the fragments redeemed and
// Card is the bonus card, nil when BonusExhausted.
type DrawOutcome struct {
	Kind           DrawKind
	Card           *Card
	Item           *Item
	Consumed       []int64
	BonusExhausted bool
}

// errPoolEmpty marks a pool with no candidates left inside a transaction.
var errPoolEmpty = errors.New("pool empty")

// Draw hands one random unclaimed card or item to a user checking in at a
// site. Each user gets one reward per site.
func (s *Service) Draw(ctx context.Context, userID, teamID, siteID int64) (*DrawOutcome, error) {
	if userID <= 0 || teamID <= 0 {
		return nil, invalid(CodeInvalidArgument, "user and team ids must be positive")
	}
	if _, ok := s.sites[siteID]; !ok {
		return nil, invalid(CodeUnknownSite, "unknown site %d", siteID)
	}

	var out *DrawOutcome
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		out = nil

		held, err := tx.HoldsRewardFromSite(ctx, userID, siteID)
		if err != nil {
			return err
		}
		if held {
			return invalid(CodeAlreadyCheckedIn, "user %d already drew at site %d", userID, siteID)
		}

		cards, items, err := tx.CountUnclaimed(ctx)
		if err != nil {
			return err
		}
		if cards+items == 0 {
			return &ExhaustionError{Pool: "supply"}
		}

		b := Binding{UserID: userID, TeamID: teamID, SiteID: int64Ptr(siteID), At: s.now()}
		result, err := s.bindWeighted(ctx, tx, b, cards, items)
		if err != nil {
			return err
		}

		if result.Item != nil && result.Item.Kind == ItemFragment {
			if err := s.redeemFragments(ctx, tx, b, &result); err != nil {
				return err
			}
		}

		checkin := Checkin{UserID: userID, SiteID: siteID, TeamID: teamID, At: b.At}
		if result.Item != nil {
			checkin.RewardKind, checkin.RewardID = "item", result.Item.ID
		} else {
			checkin.RewardKind, checkin.RewardID = "card", result.Card.ID
		}
		if err := tx.RecordCheckin(ctx, checkin); err != nil {
			if errors.Is(err, ErrDuplicateCheckin) {
				return invalid(CodeAlreadyCheckedIn, "user %d already drew at site %d", userID, siteID)
			}
			return err
		}

		out = &result
		return nil
	})
	if err != nil {
		s.logIntegrity("draw", err)
		return nil, err
	}

	fields := []zap.Field{
		zap.Int64("user_id", userID),
		zap.Int64("team_id", teamID),
		zap.Int64("site_id", siteID),
		zap.String("kind", string(out.Kind)),
	}
	if out.Card != nil {
		fields = append(fields, zap.Int64("card_id", out.Card.ID), zap.String("card", out.Card.Face().String()))
	}
	if out.Item != nil {
		fields = append(fields, zap.Int64("item_id", out.Item.ID), zap.String("item_kind", string(out.Item.Kind)))
	}
	if out.BonusExhausted {
		fields = append(fields, zap.Bool("bonus_exhausted", true))
	}
	s.logger.Info("reward drawn", fields...)

	s.notifier.RewardDrawn(userID, teamID, siteID, *out)
	return out, nil
}

// bindWeighted flips a coin weighted by remaining supply between the card
// and item pools, falling back to the other pool when the chosen one has
// run dry since the counts were taken.
func (s *Service) bindWeighted(ctx context.Context, tx Tx, b Binding, cards, items int) (DrawOutcome, error) {
	itemsFirst := s.int63n(int64(cards+items)) < int64(items)

	bindCard := func() (DrawOutcome, error) {
		c, err := s.bindRandomCard(ctx, tx, b)
		if err != nil {
			return DrawOutcome{}, err
		}
		return DrawOutcome{Kind: DrawCard, Card: c}, nil
	}
	bindItem := func() (DrawOutcome, error) {
		it, err := s.bindRandomItem(ctx, tx, b)
		if err != nil {
			return DrawOutcome{}, err
		}
		return DrawOutcome{Kind: DrawItem, Item: it}, nil
	}

	first, second := bindCard, bindItem
	if itemsFirst {
		first, second = bindItem, bindCard
	}

	out, err := first()
	if errors.Is(err, errPoolEmpty) {
		out, err = second()
	}
	if errors.Is(err, errPoolEmpty) {
		return DrawOutcome{}, &ExhaustionError{Pool: "supply"}
	}
	return out, err
}

// bindRandomCard picks a candidate uniformly and binds it if it is still
// unclaimed, repicking when a concurrent draw took it first.
func (s *Service) bindRandomCard(ctx context.Context, tx Tx, b Binding) (*Card, error) {
	for attempt := 0; attempt < s.bindAttempts; attempt++ {
		ids, err := tx.UnclaimedCardIDs(ctx)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, errPoolEmpty
		}
		card, err := tx.BindCard(ctx, ids[s.intn(len(ids))], b)
		if err != nil {
			return nil, err
		}
		if card != nil {
			return card, nil
		}
	}
	return nil, &ConflictError{Op: "draw card"}
}

func (s *Service) bindRandomItem(ctx context.Context, tx Tx, b Binding) (*Item, error) {
	for attempt := 0; attempt < s.bindAttempts; attempt++ {
		ids, err := tx.UnclaimedItemIDs(ctx)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, errPoolEmpty
		}
		item, err := tx.BindItem(ctx, ids[s.intn(len(ids))], b)
		if err != nil {
			return nil, err
		}
		if item != nil {
			return item, nil
		}
	}
	return nil, &ConflictError{Op: "draw item"}
}

// redeemFragments converts the team's oldest fragments into a bonus card once
// a full batch has accrued. The bonus card has no origin site. Running out
// of cards is reported on the outcome and keeps the fragments consumed.
func (s *Service) redeemFragments(ctx context.Context, tx Tx, b Binding, out *DrawOutcome) error {
	frags, err := tx.LockUnusedFragments(ctx, b.TeamID)
	if err != nil {
		return err
	}
	if len(frags) < s.fragmentBatch {
		return nil
	}

	ids := make([]int64, 0, s.fragmentBatch)
	for _, it := range frags[:s.fragmentBatch] {
		ids = append(ids, it.ID)
	}
	if err := tx.MarkItemsUsed(ctx, ids, b.At); err != nil {
		return err
	}

	out.Kind = DrawFragmentBonus
	out.Consumed = ids
	if out.Item != nil {
		for _, id := range ids {
			if id == out.Item.ID {
				out.Item.Used = true
				out.Item.UsedAt = timePtr(b.At)
			}
		}
	}

	bonus := Binding{UserID: b.UserID, TeamID: b.TeamID, At: b.At}
	card, err := s.bindRandomCard(ctx, tx, bonus)
	switch {
	case errors.Is(err, errPoolEmpty):
		out.BonusExhausted = true
		s.logger.Warn("fragment bonus skipped, card pool exhausted",
			zap.Int64("team_id", b.TeamID),
			zap.Int64s("fragments", ids),
		)
		return nil
	case err != nil:
		return err
	}
	out.Card = card
	return nil
}
