package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/iv9eni/ai-email-chat/internal/database/models"
	"gorm.io/gorm"
)

// PollScheduler drives periodic mailbox polls across all active accounts
type PollScheduler struct {
	db           *gorm.DB
	receiver     *ReceiverService
	tokenService *TokenService
	logService   *LogService
	interval     time.Duration
	stopChan     chan struct{}
	running      bool
	mu           sync.Mutex
	polling      sync.Mutex // prevents poll cycles from overlapping
	accountLocks sync.Map   // per-account lock, one poll per account at a time
}

// NewPollScheduler creates a new poll scheduler
func NewPollScheduler(db *gorm.DB, receiver *ReceiverService, tokenService *TokenService, logService *LogService, interval time.Duration) *PollScheduler {
	return &PollScheduler{
		db:           db,
		receiver:     receiver,
		tokenService: tokenService,
		logService:   logService,
		interval:     interval,
		stopChan:     make(chan struct{}),
	}
}

// Start begins the periodic polling loop
func (s *PollScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Printf("[PollScheduler] Starting with interval: %v", s.interval)

	go func() {
		// Let the rest of the service come up before the first poll
		select {
		case <-time.After(5 * time.Second):
			s.pollAllAccounts()
		case <-s.stopChan:
			return
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.pollAllAccounts()
			case <-s.stopChan:
				log.Println("[PollScheduler] Stopping")
				return
			}
		}
	}()
}

// Stop stops the polling loop
func (s *PollScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopChan)
	s.running = false
}

// IsAccountPolling reports whether an account poll is currently in flight
func (s *PollScheduler) IsAccountPolling(accountID uint) bool {
	_, loaded := s.accountLocks.Load(accountID)
	return loaded
}

// TryLockAccount attempts to take the per-account lock, used by manual
// poll triggers to avoid colliding with the scheduled cycle
func (s *PollScheduler) TryLockAccount(accountID uint) bool {
	_, loaded := s.accountLocks.LoadOrStore(accountID, true)
	return !loaded
}

// UnlockAccount releases the per-account lock
func (s *PollScheduler) UnlockAccount(accountID uint) {
	s.accountLocks.Delete(accountID)
}

// pollAllAccounts polls every active account once. A cycle that is still
// running when the next tick fires makes the new tick a no-op.
func (s *PollScheduler) pollAllAccounts() {
	if !s.polling.TryLock() {
		log.Println("[PollScheduler] Previous cycle still running, skipping this tick")
		return
	}
	defer s.polling.Unlock()

	ctx := context.Background()

	// Refresh any tokens about to expire before opening connections
	s.tokenService.RefreshExpiring(ctx)

	var accounts []models.EmailAccount
	if err := s.db.Where("active = ?", true).Find(&accounts).Error; err != nil {
		log.Printf("[PollScheduler] Failed to get accounts: %v", err)
		return
	}

	if len(accounts) == 0 {
		return
	}

	log.Printf("[PollScheduler] Polling %d accounts", len(accounts))

	// Accounts poll in parallel, each behind its own lock
	var wg sync.WaitGroup
	for _, account := range accounts {
		if !s.TryLockAccount(account.ID) {
			log.Printf("[PollScheduler] Account %d (%s) is already polling, skipping", account.ID, account.EmailAddress)
			continue
		}

		wg.Add(1)
		go func(acc models.EmailAccount) {
			defer wg.Done()
			defer s.UnlockAccount(acc.ID)

			s.pollOneAccount(ctx, acc)
		}(account)
	}
	wg.Wait()
}

// pollOneAccount polls a single account. A failed cycle is logged and
// retried from scratch on the next tick rather than retried inline.
func (s *PollScheduler) pollOneAccount(ctx context.Context, account models.EmailAccount) {
	stats, err := s.receiver.ProcessAccount(ctx, &account)
	if err != nil {
		log.Printf("[PollScheduler] Account %d (%s) poll failed: %v", account.ID, account.EmailAddress, err)
		return
	}

	if stats.Answered > 0 || stats.Skipped > 0 {
		log.Printf("[PollScheduler] Account %d (%s): %d matched, %d answered, %d skipped",
			account.ID, account.EmailAddress, stats.Matched, stats.Answered, stats.Skipped)
	}
}

// PollAccountNow runs one poll for a single account outside the schedule.
// Returns false when the account is already being polled.
func (s *PollScheduler) PollAccountNow(ctx context.Context, account *models.EmailAccount) (PollStats, bool, error) {
	if !s.TryLockAccount(account.ID) {
		return PollStats{}, false, nil
	}
	defer s.UnlockAccount(account.ID)

	stats, err := s.receiver.ProcessAccount(ctx, account)
	return stats, true, err
}
