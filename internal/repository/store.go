package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/dragonvein/dragonvein-server-go/internal/config"
	"github.com/dragonvein/dragonvein-server-go/internal/hand"
	"github.com/dragonvein/dragonvein-server-go/internal/reward"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// SQLSTATE codes the store reacts to.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
)

const (
	cardColumns        = `id, suit, rank, origin_site, owner_team, owner_user, played, wild, claimed_at`
	itemColumns        = `id, kind, owner_user, owner_team, origin_site, used, claimed_at, used_at`
	battlefieldColumns = `controlling_team, hand_type, hand_value, hand_count, hand_tier, snapshot, version, updated_at`
)

// Store implements reward.Store on Postgres. Mutations run in transactions
// at the configured isolation level and are retried on serialization
// failures and deadlocks.
type Store struct {
	db          *DB
	isolation   pgx.TxIsoLevel
	maxRetries  int
	lockTimeout time.Duration
	logger      *zap.Logger
}

var _ reward.Store = (*Store)(nil)

// NewStore builds a store over db using the transaction policy in cfg.
func NewStore(db *DB, cfg config.DatabaseConfig, logger *zap.Logger) *Store {
	retries := cfg.TxMaxRetries
	if retries < 1 {
		retries = 1
	}
	return &Store{
		db:          db,
		isolation:   isoLevel(cfg.Isolation),
		maxRetries:  retries,
		lockTimeout: cfg.LockTimeout,
		logger:      logger,
	}
}

func isoLevel(name string) pgx.TxIsoLevel {
	switch name {
	case "read_committed":
		return pgx.ReadCommitted
	case "repeatable_read":
		return pgx.RepeatableRead
	default:
		return pgx.Serializable
	}
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// retryable reports whether the whole transaction can be run again.
func retryable(err error) bool {
	switch pgCode(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}

// InTx runs fn in a transaction, retrying with jittered backoff when the
// database aborts it for a concurrent update. When retries run out, or a row
// lock cannot be taken within lock_timeout, the error becomes a
// reward.ConflictError.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx reward.Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}

		if pgCode(err) == codeLockNotAvailable {
			return &reward.ConflictError{Op: "acquire row lock", Err: err}
		}
		if !retryable(err) {
			return err
		}
		if attempt >= s.maxRetries {
			s.logger.Warn("transaction retries exhausted",
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return &reward.ConflictError{Op: "transaction", Err: err}
		}

		s.logger.Debug("retrying transaction",
			zap.Int("attempt", attempt),
			zap.String("sqlstate", pgCode(err)),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
}

func backoff(attempt int) time.Duration {
	base := time.Duration(attempt) * 5 * time.Millisecond
	return base + time.Duration(rand.Int63n(int64(base)))
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx reward.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: s.isolation})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if s.lockTimeout > 0 {
		ms := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, ms); err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) ReadBattlefield(ctx context.Context) (*reward.BattlefieldState, error) {
	row := s.db.QueryRow(ctx, `SELECT `+battlefieldColumns+` FROM battlefield_state WHERE id = 1`)
	return scanBattlefield(row)
}

func (s *Store) TeamCardCounts(ctx context.Context) (map[int64]int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT owner_team, count(*)
		FROM cards
		WHERE owner_team IS NOT NULL AND NOT played
		GROUP BY owner_team`)
	if err != nil {
		return nil, fmt.Errorf("failed to count team cards: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var team int64
		var n int
		if err := rows.Scan(&team, &n); err != nil {
			return nil, fmt.Errorf("failed to scan team count: %w", err)
		}
		counts[team] = n
	}
	return counts, rows.Err()
}

func (s *Store) SupplyCounts(ctx context.Context) (reward.Supply, error) {
	var sup reward.Supply
	err := s.db.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE owner_team IS NULL),
			count(*) FILTER (WHERE owner_team IS NOT NULL AND NOT played),
			count(*) FILTER (WHERE played),
			count(*) FILTER (WHERE wild)
		FROM cards`,
	).Scan(&sup.CardsUnclaimed, &sup.CardsHeld, &sup.CardsPlayed, &sup.CardsWild)
	if err != nil {
		return sup, fmt.Errorf("failed to count cards: %w", err)
	}
	err = s.db.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE owner_team IS NULL),
			count(*) FILTER (WHERE owner_team IS NOT NULL AND NOT used),
			count(*) FILTER (WHERE used)
		FROM items`,
	).Scan(&sup.ItemsUnclaimed, &sup.ItemsHeld, &sup.ItemsUsed)
	if err != nil {
		return sup, fmt.Errorf("failed to count items: %w", err)
	}
	return sup, nil
}

func (s *Store) TeamCards(ctx context.Context, teamID int64) ([]reward.Card, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE owner_team = $1 AND NOT played ORDER BY id`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team cards: %w", err)
	}
	return pgx.CollectRows(rows, rowToCard)
}

func (s *Store) UserRewards(ctx context.Context, userID int64) ([]reward.Card, []reward.Item, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE owner_user = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list user cards: %w", err)
	}
	cards, err := pgx.CollectRows(rows, rowToCard)
	if err != nil {
		return nil, nil, err
	}

	rows, err = s.db.Query(ctx,
		`SELECT `+itemColumns+` FROM items WHERE owner_user = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list user items: %w", err)
	}
	items, err := pgx.CollectRows(rows, rowToItem)
	if err != nil {
		return nil, nil, err
	}
	return cards, items, nil
}

// Seed bulk loads the pool with COPY in one transaction.
func (s *Store) Seed(ctx context.Context, cards []reward.Card, items []reward.Item, force bool) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var existing int64
	err = tx.QueryRow(ctx, `SELECT (SELECT count(*) FROM cards) + (SELECT count(*) FROM items)`).Scan(&existing)
	if err != nil {
		return fmt.Errorf("failed to check existing pool: %w", err)
	}
	if existing > 0 {
		if !force {
			return reward.ErrAlreadySeeded
		}
		s.logger.Warn("clearing existing pool", zap.Int64("entries", existing))
		if _, err := tx.Exec(ctx, `TRUNCATE cards, items, site_checkins RESTART IDENTITY`); err != nil {
			return fmt.Errorf("failed to clear pool: %w", err)
		}
		_, err = tx.Exec(ctx, `
			UPDATE battlefield_state
			SET controlling_team = NULL, hand_type = 'none', hand_value = 0, hand_count = 0,
			    hand_tier = 0, snapshot = '[]'::jsonb, version = 0, updated_at = now()
			WHERE id = 1`)
		if err != nil {
			return fmt.Errorf("failed to reset battlefield: %w", err)
		}
	}

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"cards"},
		[]string{"suit", "rank", "wild"},
		pgx.CopyFromSlice(len(cards), func(i int) ([]any, error) {
			return []any{int16(cards[i].Suit), int16(cards[i].Rank), cards[i].Wild}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy cards: %w", err)
	}
	m, err := tx.CopyFrom(ctx,
		pgx.Identifier{"items"},
		[]string{"kind"},
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			return []any{string(items[i].Kind)}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}
	s.logger.Info("pool seeded", zap.Int64("cards", n), zap.Int64("items", m))
	return nil
}

// pgTx implements reward.Tx over one pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) HoldsRewardFromSite(ctx context.Context, userID, siteID int64) (bool, error) {
	var held bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM site_checkins WHERE user_id = $1 AND site_id = $2)
		    OR EXISTS (SELECT 1 FROM cards WHERE owner_user = $1 AND origin_site = $2)
		    OR EXISTS (SELECT 1 FROM items WHERE owner_user = $1 AND origin_site = $2)`,
		userID, siteID,
	).Scan(&held)
	if err != nil {
		return false, fmt.Errorf("failed to check site rewards: %w", err)
	}
	return held, nil
}

func (t *pgTx) RecordCheckin(ctx context.Context, c reward.Checkin) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO site_checkins (user_id, site_id, team_id, reward_kind, reward_id, checked_in_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.UserID, c.SiteID, c.TeamID, c.RewardKind, c.RewardID, c.At,
	)
	if pgCode(err) == codeUniqueViolation {
		return fmt.Errorf("user %d site %d: %w", c.UserID, c.SiteID, reward.ErrDuplicateCheckin)
	}
	if err != nil {
		return fmt.Errorf("failed to record checkin: %w", err)
	}
	return nil
}

func (t *pgTx) CountUnclaimed(ctx context.Context) (int, int, error) {
	var cards, items int
	err := t.tx.QueryRow(ctx, `
		SELECT (SELECT count(*) FROM cards WHERE owner_team IS NULL),
		       (SELECT count(*) FROM items WHERE owner_team IS NULL)`,
	).Scan(&cards, &items)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count unclaimed: %w", err)
	}
	return cards, items, nil
}

func (t *pgTx) UnclaimedCardIDs(ctx context.Context) ([]int64, error) {
	return t.ids(ctx, `SELECT id FROM cards WHERE owner_team IS NULL ORDER BY id`)
}

func (t *pgTx) UnclaimedItemIDs(ctx context.Context) ([]int64, error) {
	return t.ids(ctx, `SELECT id FROM items WHERE owner_team IS NULL ORDER BY id`)
}

func (t *pgTx) ids(ctx context.Context, query string) ([]int64, error) {
	rows, err := t.tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (t *pgTx) BindCard(ctx context.Context, id int64, b reward.Binding) (*reward.Card, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE cards
		SET owner_user = $2, owner_team = $3, origin_site = $4, claimed_at = $5
		WHERE id = $1 AND owner_team IS NULL
		RETURNING `+cardColumns,
		id, b.UserID, b.TeamID, b.SiteID, b.At,
	)
	card, err := scanCard(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to bind card %d: %w", id, err)
	}
	return &card, nil
}

func (t *pgTx) BindItem(ctx context.Context, id int64, b reward.Binding) (*reward.Item, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE items
		SET owner_user = $2, owner_team = $3, origin_site = $4, claimed_at = $5
		WHERE id = $1 AND owner_team IS NULL
		RETURNING `+itemColumns,
		id, b.UserID, b.TeamID, b.SiteID, b.At,
	)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to bind item %d: %w", id, err)
	}
	return &item, nil
}

func (t *pgTx) LockItem(ctx context.Context, id int64) (*reward.Item, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", id, reward.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock item %d: %w", id, err)
	}
	return &item, nil
}

func (t *pgTx) LockUnusedFragments(ctx context.Context, teamID int64) ([]reward.Item, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE kind = 'fragment' AND NOT used AND owner_team = $1
		ORDER BY claimed_at, id
		FOR UPDATE`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock fragments: %w", err)
	}
	return pgx.CollectRows(rows, rowToItem)
}

func (t *pgTx) MarkItemsUsed(ctx context.Context, ids []int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE items SET used = TRUE, used_at = $2 WHERE id = ANY($1) AND NOT used`, ids, at)
	if err != nil {
		return translateWriteError("mark items used", err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return &reward.IntegrityError{Msg: fmt.Sprintf("marked %d of %d items used", tag.RowsAffected(), len(ids))}
	}
	return nil
}

func (t *pgTx) InsertCard(ctx context.Context, c reward.Card) (*reward.Card, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO cards (suit, rank, origin_site, owner_team, owner_user, played, wild, claimed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+cardColumns,
		int16(c.Suit), int16(c.Rank), c.OriginSite, c.OwnerTeam, c.OwnerUser, c.Played, c.Wild, c.ClaimedAt,
	)
	card, err := scanCard(row)
	if err != nil {
		return nil, translateWriteError("insert card", err)
	}
	return &card, nil
}

func (t *pgTx) LockCards(ctx context.Context, ids []int64) ([]reward.Card, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to lock cards: %w", err)
	}
	return pgx.CollectRows(rows, rowToCard)
}

func (t *pgTx) LockUnplayedTeamCards(ctx context.Context, teamID int64) ([]reward.Card, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE owner_team = $1 AND NOT played ORDER BY id FOR UPDATE`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock team cards: %w", err)
	}
	return pgx.CollectRows(rows, rowToCard)
}

func (t *pgTx) SetCardTeam(ctx context.Context, cardID, teamID int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE cards SET owner_team = $2 WHERE id = $1`, cardID, teamID)
	if err != nil {
		return translateWriteError("move card", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("card %d: %w", cardID, reward.ErrNotFound)
	}
	return nil
}

func (t *pgTx) MarkCardsPlayed(ctx context.Context, ids []int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE cards SET played = TRUE WHERE id = ANY($1) AND NOT played`, ids)
	if err != nil {
		return translateWriteError("play cards", err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return &reward.IntegrityError{Msg: fmt.Sprintf("played %d of %d cards", tag.RowsAffected(), len(ids))}
	}
	return nil
}

func (t *pgTx) LockBattlefield(ctx context.Context) (*reward.BattlefieldState, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+battlefieldColumns+` FROM battlefield_state WHERE id = 1 FOR UPDATE`)
	return scanBattlefield(row)
}

func (t *pgTx) SaveBattlefield(ctx context.Context, st reward.BattlefieldState) error {
	var team *int64
	if !st.Uncontested() {
		team = &st.ControllingTeam
	}
	snapshot := st.Snapshot
	if snapshot == nil {
		snapshot = []reward.CardView{}
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE battlefield_state
		SET controlling_team = $1, hand_type = $2, hand_value = $3, hand_count = $4,
		    hand_tier = $5, snapshot = $6, version = $7, updated_at = $8
		WHERE id = 1`,
		team, st.Hand.Type.String(), st.Hand.Value, st.Hand.Count, st.Hand.Tier, snapshot, st.Version, st.UpdatedAt,
	)
	if err != nil {
		return translateWriteError("save battlefield", err)
	}
	return nil
}

// translateWriteError maps constraint failures to integrity errors and
// leaves everything else wrapped for the retry loop to inspect.
func translateWriteError(op string, err error) error {
	if pgCode(err) == codeCheckViolation {
		return &reward.IntegrityError{Msg: fmt.Sprintf("%s: %v", op, err)}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func scanCard(row pgx.Row) (reward.Card, error) {
	var c reward.Card
	var suit, rank int16
	err := row.Scan(&c.ID, &suit, &rank, &c.OriginSite, &c.OwnerTeam, &c.OwnerUser, &c.Played, &c.Wild, &c.ClaimedAt)
	if err != nil {
		return c, err
	}
	c.Suit, c.Rank = hand.Suit(suit), hand.Rank(rank)
	if !c.Face().Valid() {
		return c, &reward.IntegrityError{Msg: fmt.Sprintf("card %d has invalid face %d/%d", c.ID, suit, rank)}
	}
	return c, nil
}

func rowToCard(row pgx.CollectableRow) (reward.Card, error) {
	return scanCard(row)
}

func scanItem(row pgx.Row) (reward.Item, error) {
	var it reward.Item
	var kind string
	err := row.Scan(&it.ID, &kind, &it.OwnerUser, &it.OwnerTeam, &it.OriginSite, &it.Used, &it.ClaimedAt, &it.UsedAt)
	if err != nil {
		return it, err
	}
	k, err := reward.ParseItemKind(kind)
	if err != nil {
		return it, &reward.IntegrityError{Msg: fmt.Sprintf("item %d: %v", it.ID, err)}
	}
	it.Kind = k
	return it, nil
}

func rowToItem(row pgx.CollectableRow) (reward.Item, error) {
	return scanItem(row)
}

func scanBattlefield(row pgx.Row) (*reward.BattlefieldState, error) {
	var (
		st       reward.BattlefieldState
		team     *int64
		typeName string
	)
	err := row.Scan(&team, &typeName, &st.Hand.Value, &st.Hand.Count, &st.Hand.Tier, &st.Snapshot, &st.Version, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &reward.IntegrityError{Msg: "battlefield row is missing"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read battlefield: %w", err)
	}
	t, err := hand.ParseType(typeName)
	if err != nil {
		return nil, &reward.IntegrityError{Msg: fmt.Sprintf("battlefield: %v", err)}
	}
	st.Hand.Type = t
	if team != nil {
		st.ControllingTeam = *team
	}
	return &st, nil
}
