package gamenet

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// UpdateFunc is the signature of Client.Update and Server.Update.
type UpdateFunc func(dt float64, now uint64)

// Loop calls update every interval until ctx is done. dt is the time since
// the previous call in seconds, now the unix time of clk in seconds.
func Loop(ctx context.Context, clk clock.Clock, interval time.Duration, update UpdateFunc) error {
	if clk == nil {
		clk = clock.New()
	}
	last := clk.Now()
	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			update(dt, uint64(now.Unix()))
		}
	}
}
