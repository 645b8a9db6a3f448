package papertrail

import (
	"context"
	"sync"
	"time"
)

// UsageData is the account's log data transfer for the current billing period.
type UsageData struct {
	TransferUsed        int64   `json:"log_data_transfer_used"`
	TransferUsedPercent float64 `json:"log_data_transfer_used_percent"`
	PlanLimit           int64   `json:"log_data_transfer_plan_limit"`
	HardLimit           int64   `json:"log_data_transfer_hard_limit"`
}

// Usage holds the most recently fetched UsageData.
type Usage struct {
	client *Client

	mu          sync.RWMutex
	data        UsageData
	lastFetched time.Time
	loaded      bool
}

func newUsage(client *Client) *Usage {
	return &Usage{client: client}
}

// Load fetches the current usage.
func (u *Usage) Load(ctx context.Context) error {
	var data UsageData
	if err := u.client.getJSON(ctx, "accounts.json", nil, &data); err != nil {
		return newError(KindUsage, "load", err)
	}
	u.set(data, now())
	log.WithField("used_percent", data.TransferUsedPercent).Debug("Usage loaded")
	return nil
}

func (u *Usage) set(data UsageData, fetched time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.data = data
	u.lastFetched = fetched
	u.loaded = true
}

func (u *Usage) Data() UsageData {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.data
}

func (u *Usage) IsLoaded() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.loaded
}

func (u *Usage) LastFetched() time.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.lastFetched
}
