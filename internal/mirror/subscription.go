// ABOUTME: Revocation handle returned by mirror Subscribe calls.
// ABOUTME: Cancel is idempotent; cancelling a dropped subscription is a no-op.

package mirror

import "sync"

// Subscription revokes a subscriber registration. Cancel may be called any
// number of times, including after the subscriber was already dropped by an
// agent removal; extra calls do nothing.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel removes the subscriber. Safe to call concurrently.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}
