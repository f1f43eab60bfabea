package reward

import (
	"context"
	"time"
)

// Store is the persistent home of the pool and the battlefield. Every
// mutation goes through InTx; the read methods are advisory and may be stale.
type Store interface {
	// InTx runs fn in one transaction. An error from fn rolls back every
	// write fn made. Implementations may call fn more than once when a
	// concurrent transaction forces a retry, so fn must not leak state
	// between attempts.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	ReadBattlefield(ctx context.Context) (*BattlefieldState, error)
	TeamCardCounts(ctx context.Context) (map[int64]int, error)
	SupplyCounts(ctx context.Context) (Supply, error)
	TeamCards(ctx context.Context, teamID int64) ([]Card, error)
	UserRewards(ctx context.Context, userID int64) ([]Card, []Item, error)

	// Seed writes the initial supply. It returns ErrAlreadySeeded when the
	// pool is not empty unless force is set, in which case every card, item,
	// checkin and the battlefield are reset first.
	Seed(ctx context.Context, cards []Card, items []Item, force bool) error
}

// Tx is the set of reads and writes available inside a transaction. The
// Lock* methods hold their rows until the transaction ends.
type Tx interface {
	HoldsRewardFromSite(ctx context.Context, userID, siteID int64) (bool, error)
	RecordCheckin(ctx context.Context, c Checkin) error

	CountUnclaimed(ctx context.Context) (cards, items int, err error)
	UnclaimedCardIDs(ctx context.Context) ([]int64, error)
	UnclaimedItemIDs(ctx context.Context) ([]int64, error)

	// BindCard and BindItem claim an entry only if it is still unclaimed.
	// They return nil and no error when another transaction got there first.
	BindCard(ctx context.Context, id int64, b Binding) (*Card, error)
	BindItem(ctx context.Context, id int64, b Binding) (*Item, error)

	LockItem(ctx context.Context, id int64) (*Item, error)
	LockUnusedFragments(ctx context.Context, teamID int64) ([]Item, error)
	MarkItemsUsed(ctx context.Context, ids []int64, at time.Time) error

	InsertCard(ctx context.Context, c Card) (*Card, error)
	LockCards(ctx context.Context, ids []int64) ([]Card, error)
	LockUnplayedTeamCards(ctx context.Context, teamID int64) ([]Card, error)
	SetCardTeam(ctx context.Context, cardID, teamID int64) error
	MarkCardsPlayed(ctx context.Context, ids []int64) error

	LockBattlefield(ctx context.Context) (*BattlefieldState, error)
	SaveBattlefield(ctx context.Context, st BattlefieldState) error
}
