package ring

import (
	"sync"
	"time"
)

// waitWithTimeout blocks on c.Wait() (releasing c.L, as Cond.Wait always
// does) but returns if d elapses first. The caller must hold c.L, exactly
// as for a plain c.Wait() call, and must re-check its own predicate after
// this returns regardless of the reported value: a timer that fires at the
// same instant as a genuine Signal is reported as a timeout, which is safe
// here because every caller treats "woke" as "go re-check the predicate",
// never as "the predicate is now true".
//
// sync.Cond has no built-in deadline; this is the standard library's own
// suggested pattern (a timer that reaches in and wakes the waiter).
func waitWithTimeout(c *sync.Cond, d time.Duration) (woke bool) {
	timer := time.AfterFunc(d, func() {
		c.L.Lock()
		c.Broadcast()
		c.L.Unlock()
	})
	c.Wait()
	return timer.Stop()
}
