package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/keymeter/keymeter/internal/services/ledger"
)

// LedgerSweeper periodically removes expired idempotency records so the
// ledger table stays bounded by the retention window.
type LedgerSweeper struct {
	ledger   *ledger.Ledger
	interval time.Duration
	stopChan chan struct{}
}

func NewLedgerSweeper(idempotency *ledger.Ledger, interval time.Duration) *LedgerSweeper {
	if interval == 0 {
		interval = 1 * time.Hour
	}
	return &LedgerSweeper{
		ledger:   idempotency,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (s *LedgerSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("Ledger sweeper started, running every %s", s.interval)

	for {
		select {
		case <-ticker.C:
			purged, err := s.ledger.PurgeExpired(ctx)
			if err != nil {
				log.Printf("Error sweeping expired ledger records: %v", err)
			} else if purged > 0 {
				log.Printf("Swept %d expired ledger records", purged)
			}
		case <-s.stopChan:
			log.Println("Ledger sweeper stopped")
			return
		case <-ctx.Done():
			log.Println("Ledger sweeper stopped due to context cancellation")
			return
		}
	}
}

func (s *LedgerSweeper) Stop() {
	close(s.stopChan)
}
