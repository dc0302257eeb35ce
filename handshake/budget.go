package handshake

import (
	"time"

	"github.com/jxsl13/gamenet/protocol"
	"golang.org/x/time/rate"
)

// byteBudget is an advisory byte rate cap. Traffic above the cap is only counted.
type byteBudget struct {
	limiter *rate.Limiter
	over    uint64
}

// newByteBudget returns nil for a non positive rate which disables the cap.
func newByteBudget(bytesPerSecond float64) *byteBudget {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := max(int(bytesPerSecond), protocol.NetMaxPacketSize)
	return &byteBudget{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
	}
}

// spend reports whether n bytes at the given time stay within the cap.
func (b *byteBudget) spend(at time.Time, n int) bool {
	if b == nil {
		return true
	}
	if b.limiter.AllowN(at, n) {
		return true
	}
	b.over++
	return false
}

func (b *byteBudget) overBudget() uint64 {
	if b == nil {
		return 0
	}
	return b.over
}

// elapsedTime maps the seconds accumulated from Update calls onto a time.Time
// so that limiters follow the caller's clock.
func elapsedTime(seconds float64) time.Time {
	return time.Unix(0, 0).Add(time.Duration(seconds * float64(time.Second)))
}
