// Package pairing issues and redeems short-lived pairing codes for
// accounts running with dm_policy "pairing".
package pairing

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrCodeNotFound is returned when no live code matches an approval request.
var ErrCodeNotFound = errors.New("pairing code not found")

const (
	// DefaultTTL is how long an issued code stays redeemable.
	DefaultTTL = time.Hour
	// DefaultMaxPerAccount caps outstanding codes per account so an
	// unsolicited sender flood cannot grow the store unbounded.
	DefaultMaxPerAccount = 64
)

// Code is an issued pairing code awaiting approval.
type Code struct {
	Value     string
	AccountID string
	Sender    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Store keeps pairing state in memory. Process restart clears it; senders
// simply receive a fresh code on their next message.
type Store struct {
	mu            sync.Mutex
	codes         map[string][]Code
	approved      map[string]map[string]struct{}
	ttl           time.Duration
	maxPerAccount int
	now           func() time.Time
}

// NewStore creates a Store with the given code TTL and per-account cap.
// Zero values select the defaults.
func NewStore(ttl time.Duration, maxPerAccount int) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxPerAccount <= 0 {
		maxPerAccount = DefaultMaxPerAccount
	}
	return &Store{
		codes:         map[string][]Code{},
		approved:      map[string]map[string]struct{}{},
		ttl:           ttl,
		maxPerAccount: maxPerAccount,
		now:           time.Now,
	}
}

// Issue returns a pairing code for sender on the given account. A live
// code for the same sender is returned unchanged; otherwise a new one is
// minted, evicting the oldest outstanding code when the account cap is
// reached. created reports whether the code is new.
func (s *Store) Issue(accountID, sender string) (code Code, created bool) {
	sender = strings.TrimSpace(sender)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	live := s.pruneLocked(accountID, now)
	for _, existing := range live {
		if strings.EqualFold(existing.Sender, sender) {
			return existing, false
		}
	}

	code = Code{
		Value:     strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		AccountID: accountID,
		Sender:    sender,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	live = append(live, code)
	if len(live) > s.maxPerAccount {
		live = live[len(live)-s.maxPerAccount:]
	}
	s.codes[accountID] = live
	return code, true
}

// Approve redeems a code on the given account, marking its sender as
// approved. Expired or unknown codes return ErrCodeNotFound.
func (s *Store) Approve(accountID, codeValue string) (Code, error) {
	codeValue = strings.TrimSpace(codeValue)
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.pruneLocked(accountID, s.now())
	for i, code := range live {
		if !strings.EqualFold(code.Value, codeValue) {
			continue
		}
		s.codes[accountID] = append(live[:i], live[i+1:]...)
		byAccount := s.approved[accountID]
		if byAccount == nil {
			byAccount = map[string]struct{}{}
			s.approved[accountID] = byAccount
		}
		byAccount[strings.ToLower(code.Sender)] = struct{}{}
		return code, nil
	}
	return Code{}, ErrCodeNotFound
}

// Approved reports whether sender has redeemed a pairing code on the
// given account.
func (s *Store) Approved(accountID, sender string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	byAccount := s.approved[accountID]
	if byAccount == nil {
		return false
	}
	_, ok := byAccount[strings.ToLower(strings.TrimSpace(sender))]
	return ok
}

// Pending returns the number of live codes outstanding for the account.
func (s *Store) Pending(accountID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pruneLocked(accountID, s.now()))
}

func (s *Store) pruneLocked(accountID string, now time.Time) []Code {
	live := s.codes[accountID][:0]
	for _, code := range s.codes[accountID] {
		if now.Before(code.ExpiresAt) {
			live = append(live, code)
		}
	}
	if len(live) == 0 {
		delete(s.codes, accountID)
		return nil
	}
	s.codes[accountID] = live
	return live
}
