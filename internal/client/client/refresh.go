package client

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// StartAutoRefresh checks the session every interval and refreshes it once it
// is within the refresh margin of expiry. Calling it again is a no-op until
// StopAutoRefresh.
func (c *HTTPClient) StartAutoRefresh(interval time.Duration) {
	c.cronMu.Lock()
	defer c.cronMu.Unlock()

	if c.cron != nil {
		return
	}

	c.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.cron.Schedule(cron.Every(interval), cron.FuncJob(c.refreshTick))
	c.cron.Start()
}

func (c *HTTPClient) StopAutoRefresh() {
	c.cronMu.Lock()
	cr := c.cron
	c.cron = nil
	c.cronMu.Unlock()

	if cr != nil {
		<-cr.Stop().Done()
	}
}

func (c *HTTPClient) refreshTick() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if _, err := c.GetSession(ctx); err != nil {
		c.log.Warn(ctx, "auto refresh failed", "error", err)
	}
}
