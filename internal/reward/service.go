package reward

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultFragmentBatch is how many fragments convert into one bonus card.
	DefaultFragmentBatch = 3
	// DefaultBindAttempts bounds the pick-and-bind loop before a draw gives
	// up with a ConflictError.
	DefaultBindAttempts = 5
)

// Notifier is told about committed changes. Calls happen after commit and
// must not block.
type Notifier interface {
	BattlefieldChanged(st BattlefieldState)
	RewardDrawn(userID, teamID, siteID int64, out DrawOutcome)
}

type nopNotifier struct{}

func (nopNotifier) BattlefieldChanged(BattlefieldState)          {}
func (nopNotifier) RewardDrawn(int64, int64, int64, DrawOutcome) {}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Sites         []Site
	FragmentBatch int
	BindAttempts  int
	Rand          *rand.Rand
	Now           func() time.Time
	Notifier      Notifier
}

// Service runs the draw, item and battlefield use-cases against a Store.
type Service struct {
	store         Store
	sites         map[int64]Site
	siteOrder     []int64
	fragmentBatch int
	bindAttempts  int
	now           func() time.Time
	notifier      Notifier
	logger        *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewService constructs a Service. A nil Rand gets a time-seeded default.
func NewService(store Store, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:         store,
		sites:         make(map[int64]Site, len(opts.Sites)),
		fragmentBatch: opts.FragmentBatch,
		bindAttempts:  opts.BindAttempts,
		now:           opts.Now,
		notifier:      opts.Notifier,
		logger:        logger,
		rng:           opts.Rand,
	}
	for _, site := range opts.Sites {
		s.sites[site.ID] = site
		s.siteOrder = append(s.siteOrder, site.ID)
	}
	sort.Slice(s.siteOrder, func(i, j int) bool { return s.siteOrder[i] < s.siteOrder[j] })
	if s.fragmentBatch <= 0 {
		s.fragmentBatch = DefaultFragmentBatch
	}
	if s.bindAttempts <= 0 {
		s.bindAttempts = DefaultBindAttempts
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s
}

// SetNotifier replaces the notifier. It is meant for wiring at startup.
func (s *Service) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

// Sites returns the configured sites ordered by id.
func (s *Service) Sites() []Site {
	out := make([]Site, 0, len(s.siteOrder))
	for _, id := range s.siteOrder {
		out = append(out, s.sites[id])
	}
	return out
}

func (s *Service) intn(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Intn(n)
}

func (s *Service) int63n(n int64) int64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Int63n(n)
}

func (s *Service) logIntegrity(op string, err error) {
	if IsIntegrity(err) {
		s.logger.Error("integrity violation", zap.String("op", op), zap.Error(err))
	}
}
