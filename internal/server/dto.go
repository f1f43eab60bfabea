package server

import (
	"time"

	"github.com/dragonvein/dragonvein-server-go/internal/hand"
	"github.com/dragonvein/dragonvein-server-go/internal/reward"
)

type drawRequest struct {
	UserID int64 `json:"userId" binding:"required,gt=0"`
	TeamID int64 `json:"teamId" binding:"required,gt=0"`
	SiteID int64 `json:"siteId" binding:"required,gt=0"`
}

type challengeRequest struct {
	TeamID  int64   `json:"teamId" binding:"required,gt=0"`
	CardIDs []int64 `json:"cardIds" binding:"required,min=1"`
}

type wildRequest struct {
	UserID int64  `json:"userId" binding:"required,gt=0"`
	Suit   string `json:"suit" binding:"required"`
	Rank   string `json:"rank" binding:"required"`
}

type swapRequest struct {
	UserID        int64 `json:"userId" binding:"required,gt=0"`
	OfferedCardID int64 `json:"offeredCardId" binding:"required,gt=0"`
	TargetTeamID  int64 `json:"targetTeamId" binding:"required,gt=0"`
}

type cardDTO struct {
	ID         int64      `json:"id"`
	Suit       string     `json:"suit"`
	Rank       string     `json:"rank"`
	Display    string     `json:"display"`
	Wild       bool       `json:"wild"`
	Played     bool       `json:"played"`
	OriginSite *int64     `json:"originSiteId,omitempty"`
	OwnerTeam  *int64     `json:"ownerTeamId,omitempty"`
	OwnerUser  *int64     `json:"ownerUserId,omitempty"`
	ClaimedAt  *time.Time `json:"claimedAt,omitempty"`
}

func newCardDTO(c *reward.Card) *cardDTO {
	if c == nil {
		return nil
	}
	return &cardDTO{
		ID:         c.ID,
		Suit:       c.Suit.String(),
		Rank:       c.Rank.String(),
		Display:    c.Face().String(),
		Wild:       c.Wild,
		Played:     c.Played,
		OriginSite: c.OriginSite,
		OwnerTeam:  c.OwnerTeam,
		OwnerUser:  c.OwnerUser,
		ClaimedAt:  c.ClaimedAt,
	}
}

func newCardDTOs(cards []reward.Card) []*cardDTO {
	out := make([]*cardDTO, 0, len(cards))
	for i := range cards {
		out = append(out, newCardDTO(&cards[i]))
	}
	return out
}

type itemDTO struct {
	ID         int64      `json:"id"`
	Kind       string     `json:"kind"`
	Used       bool       `json:"used"`
	OriginSite *int64     `json:"originSiteId,omitempty"`
	OwnerTeam  *int64     `json:"ownerTeamId,omitempty"`
	OwnerUser  *int64     `json:"ownerUserId,omitempty"`
	ClaimedAt  *time.Time `json:"claimedAt,omitempty"`
	UsedAt     *time.Time `json:"usedAt,omitempty"`
}

func newItemDTO(it *reward.Item) *itemDTO {
	if it == nil {
		return nil
	}
	return &itemDTO{
		ID:         it.ID,
		Kind:       string(it.Kind),
		Used:       it.Used,
		OriginSite: it.OriginSite,
		OwnerTeam:  it.OwnerTeam,
		OwnerUser:  it.OwnerUser,
		ClaimedAt:  it.ClaimedAt,
		UsedAt:     it.UsedAt,
	}
}

func newItemDTOs(items []reward.Item) []*itemDTO {
	out := make([]*itemDTO, 0, len(items))
	for i := range items {
		out = append(out, newItemDTO(&items[i]))
	}
	return out
}

type handDTO struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
	Count int    `json:"count"`
	Tier  int    `json:"tier,omitempty"`
}

func newHandDTO(h hand.Hand) *handDTO {
	if h.IsZero() {
		return nil
	}
	return &handDTO{Type: h.Type.String(), Value: h.Value, Count: h.Count, Tier: h.Tier}
}

type drawResponse struct {
	Kind           string   `json:"kind"`
	Card           *cardDTO `json:"card,omitempty"`
	Item           *itemDTO `json:"item,omitempty"`
	Consumed       []int64  `json:"consumedFragmentIds,omitempty"`
	BonusExhausted bool     `json:"bonusExhausted,omitempty"`
}

func newDrawResponse(out *reward.DrawOutcome) drawResponse {
	return drawResponse{
		Kind:           string(out.Kind),
		Card:           newCardDTO(out.Card),
		Item:           newItemDTO(out.Item),
		Consumed:       out.Consumed,
		BonusExhausted: out.BonusExhausted,
	}
}

type battlefieldState struct {
	ControllingTeam *int64            `json:"controllingTeamId"`
	Hand            *handDTO          `json:"hand"`
	Snapshot        []reward.CardView `json:"snapshot"`
	Version         int64             `json:"version"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

func newBattlefieldState(st reward.BattlefieldState) battlefieldState {
	out := battlefieldState{
		Hand:      newHandDTO(st.Hand),
		Snapshot:  st.Snapshot,
		Version:   st.Version,
		UpdatedAt: st.UpdatedAt,
	}
	if out.Snapshot == nil {
		out.Snapshot = []reward.CardView{}
	}
	if !st.Uncontested() {
		team := st.ControllingTeam
		out.ControllingTeam = &team
	}
	return out
}

type supplyDTO struct {
	CardsUnclaimed int `json:"cardsUnclaimed"`
	CardsHeld      int `json:"cardsHeld"`
	CardsPlayed    int `json:"cardsPlayed"`
	CardsWild      int `json:"cardsWild"`
	ItemsUnclaimed int `json:"itemsUnclaimed"`
	ItemsHeld      int `json:"itemsHeld"`
	ItemsUsed      int `json:"itemsUsed"`
}

type battlefieldResponse struct {
	battlefieldState
	TeamCardCounts map[int64]int `json:"teamCardCounts"`
	Remaining      supplyDTO     `json:"remaining"`
}

func newBattlefieldResponse(v *reward.BattlefieldView) battlefieldResponse {
	s := v.Supply
	return battlefieldResponse{
		battlefieldState: newBattlefieldState(v.BattlefieldState),
		TeamCardCounts:   v.TeamCardCounts,
		Remaining: supplyDTO{
			CardsUnclaimed: s.CardsUnclaimed,
			CardsHeld:      s.CardsHeld,
			CardsPlayed:    s.CardsPlayed,
			CardsWild:      s.CardsWild,
			ItemsUnclaimed: s.ItemsUnclaimed,
			ItemsHeld:      s.ItemsHeld,
			ItemsUsed:      s.ItemsUsed,
		},
	}
}

type challengeResponse struct {
	Accepted    bool             `json:"accepted"`
	Reason      string           `json:"reason,omitempty"`
	Hand        *handDTO         `json:"hand,omitempty"`
	Battlefield battlefieldState `json:"battlefield"`
}

type swapResponse struct {
	LostCard   *cardDTO `json:"lostCard"`
	GainedCard *cardDTO `json:"gainedCard"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
