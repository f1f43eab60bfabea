package reward

import (
	"context"

	"github.com/dragonvein/dragonvein-server-go/internal/hand"
	"go.uber.org/zap"
)

// SwapOutcome reports the two cards exchanged by a swap item.
type SwapOutcome struct {
	Lost   Card
	Gained Card
}

// lockOwnedItem loads an item for update and checks it is the caller's,
// of the expected kind and still unused.
func lockOwnedItem(ctx context.Context, tx Tx, userID, itemID int64, kind ItemKind) (*Item, error) {
	item, err := tx.LockItem(ctx, itemID)
	if err != nil {
		return nil, notFound(err, "item %d not found", itemID)
	}
	if !item.HeldBy(userID) {
		return nil, invalid(CodeNotOwner, "item %d does not belong to user %d", itemID, userID)
	}
	if item.Kind != kind {
		return nil, invalid(CodeWrongKind, "item %d is a %s item, not %s", itemID, item.Kind, kind)
	}
	if item.Used {
		return nil, invalid(CodeItemUsed, "item %d has already been used", itemID)
	}
	if item.OwnerTeam == nil {
		return nil, &IntegrityError{Msg: "held item has no owning team"}
	}
	return item, nil
}

// WildTransform consumes a wild item to synthesize a card of the holder's
// choosing into the holder's team pool. Jokers cannot be synthesized.
func (s *Service) WildTransform(ctx context.Context, userID, itemID int64, suit hand.Suit, rank hand.Rank) (*Card, error) {
	if !suit.Valid() || rank.IsJoker() || !rank.Valid() {
		return nil, invalid(CodeInvalidArgument, "cannot synthesize %s%s", suit, rank)
	}

	var created *Card
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		created = nil
		item, err := lockOwnedItem(ctx, tx, userID, itemID, ItemWild)
		if err != nil {
			return err
		}

		at := s.now()
		card, err := tx.InsertCard(ctx, Card{
			Suit:      suit,
			Rank:      rank,
			OwnerTeam: int64Ptr(*item.OwnerTeam),
			OwnerUser: int64Ptr(userID),
			Wild:      true,
			ClaimedAt: timePtr(at),
		})
		if err != nil {
			return err
		}
		if err := tx.MarkItemsUsed(ctx, []int64{item.ID}, at); err != nil {
			return err
		}
		created = card
		return nil
	})
	if err != nil {
		s.logIntegrity("wild_transform", err)
		return nil, err
	}

	s.logger.Info("wild card synthesized",
		zap.Int64("user_id", userID),
		zap.Int64("item_id", itemID),
		zap.Int64("card_id", created.ID),
		zap.String("card", created.Face().String()),
	)
	return created, nil
}

// Swap consumes a swap item to trade one of the holder's team cards for a
// random unplayed card of the target team.
func (s *Service) Swap(ctx context.Context, userID, itemID, offeredCardID, targetTeamID int64) (*SwapOutcome, error) {
	if targetTeamID <= 0 {
		return nil, invalid(CodeInvalidArgument, "target team id must be positive")
	}

	var out *SwapOutcome
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		out = nil
		item, err := lockOwnedItem(ctx, tx, userID, itemID, ItemSwap)
		if err != nil {
			return err
		}
		teamID := *item.OwnerTeam
		if teamID == targetTeamID {
			return invalid(CodeSameTeam, "cannot swap with your own team")
		}

		offered, err := tx.LockCards(ctx, []int64{offeredCardID})
		if err != nil {
			return err
		}
		if len(offered) != 1 {
			return invalid(CodeNotFound, "card %d not found", offeredCardID)
		}
		lost := offered[0]
		if !lost.OwnedBy(teamID) {
			return invalid(CodeNotOwner, "card %d does not belong to team %d", offeredCardID, teamID)
		}
		if lost.Played {
			return invalid(CodeCardPlayed, "card %d has already been played", offeredCardID)
		}

		candidates, err := tx.LockUnplayedTeamCards(ctx, targetTeamID)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return invalid(CodeTargetEmpty, "team %d has no unplayed cards", targetTeamID)
		}
		gained := candidates[s.intn(len(candidates))]

		if err := tx.SetCardTeam(ctx, lost.ID, targetTeamID); err != nil {
			return err
		}
		if err := tx.SetCardTeam(ctx, gained.ID, teamID); err != nil {
			return err
		}
		if err := tx.MarkItemsUsed(ctx, []int64{item.ID}, s.now()); err != nil {
			return err
		}

		lost.OwnerTeam = int64Ptr(targetTeamID)
		gained.OwnerTeam = int64Ptr(teamID)
		out = &SwapOutcome{Lost: lost, Gained: gained}
		return nil
	})
	if err != nil {
		s.logIntegrity("swap", err)
		return nil, err
	}

	s.logger.Info("cards swapped",
		zap.Int64("user_id", userID),
		zap.Int64("item_id", itemID),
		zap.Int64("target_team_id", targetTeamID),
		zap.Int64("lost_card_id", out.Lost.ID),
		zap.Int64("gained_card_id", out.Gained.ID),
	)
	return out, nil
}

// RedeemGift marks a drawn gift item as handed out.
func (s *Service) RedeemGift(ctx context.Context, itemID int64) (*Item, error) {
	var out *Item
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		out = nil
		item, err := tx.LockItem(ctx, itemID)
		if err != nil {
			return notFound(err, "item %d not found", itemID)
		}
		if item.Kind != ItemGift {
			return invalid(CodeWrongKind, "item %d is a %s item, not gift", itemID, item.Kind)
		}
		if !item.Claimed() {
			return invalid(CodeItemUnclaimed, "item %d has not been drawn", itemID)
		}
		if item.Used {
			return invalid(CodeItemUsed, "item %d has already been redeemed", itemID)
		}
		at := s.now()
		if err := tx.MarkItemsUsed(ctx, []int64{item.ID}, at); err != nil {
			return err
		}
		item.Used = true
		item.UsedAt = timePtr(at)
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("gift redeemed", zap.Int64("item_id", itemID))
	return out, nil
}
