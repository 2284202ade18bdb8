package ledger

import "time"

// SeedBalance is a test helper that sets the balance for a tag when using the
// in-memory ledger. The account is created if it does not exist.
func SeedBalance(l Ledger, code string, amount int64) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[NormalizeCode(code)] = amount
	}
}

// SetClock is a test helper that overrides the in-memory ledger's clock so
// expiry behavior can be exercised deterministically.
func SetClock(l Ledger, now func() time.Time) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.now = now
	}
}
