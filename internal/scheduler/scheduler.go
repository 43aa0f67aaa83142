// Package scheduler runs the periodic reconciliation sweeps: the
// hourly overdue sweep that catches rentings nobody touched since
// they expired, and the weekly credit replenishment that grants
// every user free credit-hours.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/ulocker/u-locker-server/internal/ledger"
	"github.com/ulocker/u-locker-server/internal/model"
)

// RentingStore is the slice of the renting repository the overdue
// sweep needs.
type RentingStore interface {
	ListExpiredActive(ctx context.Context, now time.Time) ([]model.Renting, error)
	MarkOverdue(ctx context.Context, ids []uint64) (int64, error)
}

// UserStore lists the users eligible for the weekly grant.
type UserStore interface {
	ListIDs(ctx context.Context) ([]uint64, error)
}

// Scheduler owns the sweep timers. Construct with New and run Start
// in a goroutine; both loops stop when the context is cancelled.
type Scheduler struct {
	rentings RentingStore
	users    UserStore
	ledger   *ledger.Service

	overdueEvery   time.Duration
	replenishEvery time.Duration
	weeklyGrant    int64

	now func() time.Time
}

func New(rentings RentingStore, users UserStore, lg *ledger.Service, overdueEvery, replenishEvery time.Duration, weeklyGrant int64) *Scheduler {
	return &Scheduler{
		rentings:       rentings,
		users:          users,
		ledger:         lg,
		overdueEvery:   overdueEvery,
		replenishEvery: replenishEvery,
		weeklyGrant:    weeklyGrant,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Start runs both sweep loops until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	log.Printf("scheduler: started (overdue every %s, replenish every %s, grant %d)",
		s.overdueEvery, s.replenishEvery, s.weeklyGrant)

	overdue := time.NewTicker(s.overdueEvery)
	defer overdue.Stop()
	replenish := time.NewTicker(s.replenishEvery)
	defer replenish.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("scheduler: stopped")
			return
		case <-overdue.C:
			if n, err := s.SweepOverdue(ctx); err != nil {
				log.Printf("scheduler: overdue sweep: %v", err)
			} else if n > 0 {
				log.Printf("scheduler: marked %d rentings overdue", n)
			}
		case <-replenish.C:
			if n, err := s.ReplenishCredits(ctx); err != nil {
				log.Printf("scheduler: credit replenishment: %v", err)
			} else {
				log.Printf("scheduler: granted %d credit-hours to %d users", s.weeklyGrant, n)
			}
		}
	}
}

// SweepOverdue bulk-transitions expired ACTIVE rentings to OVERDUE
// and returns how many rows changed. The transition is the same
// compare-and-set the lazy read paths use, so a rent stopped between
// listing and updating is left alone.
func (s *Scheduler) SweepOverdue(ctx context.Context) (int64, error) {
	expired, err := s.rentings.ListExpiredActive(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}
	ids := make([]uint64, len(expired))
	for i, rt := range expired {
		ids[i] = rt.ID
	}
	return s.rentings.MarkOverdue(ctx, ids)
}

// ReplenishCredits grants every user the configured top-up as a
// validated IN entry and returns how many users were credited. A
// failure for one user does not stop the grant for the rest.
func (s *Scheduler) ReplenishCredits(ctx context.Context) (int, error) {
	ids, err := s.users.ListIDs(ctx)
	if err != nil {
		return 0, err
	}
	credited := 0
	for _, id := range ids {
		if _, err := s.ledger.Credit(ctx, id, s.weeklyGrant, true); err != nil {
			log.Printf("scheduler: credit user %d: %v", id, err)
			continue
		}
		credited++
	}
	return credited, nil
}
