package youtube

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"commentguard/internal/logging"
	"commentguard/moderation"
)

// DefaultDailyQuota is the standard Data API allocation per project.
const DefaultDailyQuota = 10000

// Unit costs of the calls made by this package.
const (
	CostListCommentThreads = 1
	CostListVideos         = 1
	CostListChannels       = 1
	CostDeleteComment      = 50
	CostSetModeration      = 50
)

// pacific is where the Data API quota day starts.
var pacific = loadPacific()

func loadPacific() *time.Location {
	if loc, err := time.LoadLocation("America/Los_Angeles"); err == nil {
		return loc
	}
	return time.FixedZone("PST", -8*60*60)
}

// Quota estimates the remaining daily quota so calls fail fast instead of
// burning requests once the project is out of units. It is an estimate:
// other clients may share the project.
type Quota struct {
	mu        sync.Mutex
	limit     int
	used      int
	exhausted bool
	day       time.Time
	now       func() time.Time
	logger    *slog.Logger
}

// NewQuota creates a tracker for limit units per day. Zero means
// DefaultDailyQuota.
func NewQuota(limit int, logger *slog.Logger) *Quota {
	if limit <= 0 {
		limit = DefaultDailyQuota
	}
	q := &Quota{limit: limit, now: time.Now, logger: logging.Or(logger)}
	q.day = q.dayOf(q.now())
	return q
}

func (q *Quota) dayOf(t time.Time) time.Time {
	y, m, d := t.In(pacific).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, pacific)
}

// rollover resets usage when a new quota day started. Callers hold mu.
func (q *Quota) rollover() {
	today := q.dayOf(q.now())
	if today.After(q.day) {
		q.day = today
		q.used = 0
		if q.exhausted {
			q.logger.Info("youtube quota reset")
		}
		q.exhausted = false
	}
}

// Reserve fails with ErrQuotaExceeded when units cannot be afforded.
func (q *Quota) Reserve(units int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollover()
	if q.exhausted {
		return fmt.Errorf("%w: daily quota exhausted", moderation.ErrQuotaExceeded)
	}
	if q.used+units > q.limit {
		return fmt.Errorf("%w: %d units needed, %d remaining", moderation.ErrQuotaExceeded, units, q.limit-q.used)
	}
	return nil
}

// Charge records units spent by an issued call.
func (q *Quota) Charge(units int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollover()
	q.used += units
	q.logger.Debug("youtube quota usage", slog.Int("used", q.used), slog.Int("limit", q.limit))
}

// MarkExhausted records that the API itself reported the quota spent.
func (q *Quota) MarkExhausted() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.exhausted {
		q.logger.Warn("youtube quota exhausted", slog.Int("used", q.used))
	}
	q.exhausted = true
}

// Remaining returns the estimated units left today.
func (q *Quota) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollover()
	if q.exhausted {
		return 0
	}
	return q.limit - q.used
}
