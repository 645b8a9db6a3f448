package papertrail

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"
)

// ErrStopSearch may be returned by an Each callback to stop paging without
// failing.
var ErrStopSearch = errors.New("stop search")

// Event is one log line.
type Event struct {
	ID                string    `json:"id"`
	ReceivedAt        time.Time `json:"received_at"`
	GeneratedAt       time.Time `json:"generated_at"`
	DisplayReceivedAt string    `json:"display_received_at"`
	SourceIP          string    `json:"source_ip"`
	SourceName        string    `json:"source_name"`
	SourceID          int       `json:"source_id"`
	Hostname          string    `json:"hostname"`
	Program           string    `json:"program"`
	Severity          string    `json:"severity"`
	Facility          string    `json:"facility"`
	Message           string    `json:"message"`
}

// SearchQuery narrows an event search. Zero values are not sent.
type SearchQuery struct {
	Query    string
	SystemID int
	GroupID  int
	MinID    string
	MaxID    string
	MinTime  time.Time
	MaxTime  time.Time
	Tail     bool
}

func (q SearchQuery) values() url.Values {
	v := url.Values{}
	if q.Query != "" {
		v.Set("q", q.Query)
	}
	if q.SystemID != 0 {
		v.Set("system_id", strconv.Itoa(q.SystemID))
	}
	if q.GroupID != 0 {
		v.Set("group_id", strconv.Itoa(q.GroupID))
	}
	if q.MinID != "" {
		v.Set("min_id", q.MinID)
	}
	if q.MaxID != "" {
		v.Set("max_id", q.MaxID)
	}
	if !q.MinTime.IsZero() {
		v.Set("min_time", strconv.FormatInt(q.MinTime.Unix(), 10))
	}
	if !q.MaxTime.IsZero() {
		v.Set("max_time", strconv.FormatInt(q.MaxTime.Unix(), 10))
	}
	if q.Tail {
		v.Set("tail", "true")
	}
	return v
}

// SearchResult is one page of events, oldest first.
type SearchResult struct {
	Events             []Event `json:"events"`
	MinID              string  `json:"min_id"`
	MaxID              string  `json:"max_id"`
	ReachedBeginning   bool    `json:"reached_beginning"`
	ReachedTimeLimit   bool    `json:"reached_time_limit"`
	ReachedRecordLimit bool    `json:"reached_record_limit"`
}

// Search returns a single page of events matching q.
func (c *Client) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	var result SearchResult
	if err := c.getJSON(ctx, "events/search.json", q.values(), &result); err != nil {
		return nil, newError(KindQuery, "search", err)
	}
	return &result, nil
}

// Each walks backwards through the matching events one page at a time,
// calling fn for every page. It stops at the beginning of the log, at the
// search time limit, on an empty page, after maxPages pages (0 means no
// limit), or when fn returns an error. ErrStopSearch ends paging cleanly.
func (c *Client) Each(ctx context.Context, q SearchQuery, maxPages int, fn func(*SearchResult) error) error {
	for page := 0; maxPages <= 0 || page < maxPages; page++ {
		result, err := c.Search(ctx, q)
		if err != nil {
			return err
		}
		if len(result.Events) == 0 {
			return nil
		}
		if err := fn(result); err != nil {
			if errors.Is(err, ErrStopSearch) {
				return nil
			}
			return newError(KindQuery, "each", err)
		}
		if result.ReachedBeginning || result.ReachedTimeLimit || result.MinID == "" {
			return nil
		}
		q.MaxID = result.MinID
		q.MinID = ""
		q.Tail = false
	}
	return nil
}
