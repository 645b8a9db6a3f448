// Package papertrail is a client for the Papertrail log management API.
//
// A Papertrail value holds one collection per API area (archives,
// destinations, groups, systems, usage, users, saved searches) sharing a
// single rate limited Client. Collections are safe for concurrent use and
// can be saved to and restored from a Snapshot.
package papertrail

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.New()

// SetLogLevel sets the log level of the package logger.
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

// Papertrail is the account inventory.
type Papertrail struct {
	client *Client

	Archives      *Archives
	Destinations  *Destinations
	Groups        *Groups
	Systems       *Systems
	Usage         *Usage
	Users         *Users
	SavedSearches *SavedSearches

	loaded atomic.Bool
}

// New creates an empty inventory. Nothing is fetched until Load or Restore.
func New(config Config) (*Papertrail, error) {
	client, err := NewClient(config)
	if err != nil {
		return nil, err
	}
	return NewWithClient(client), nil
}

// NewWithClient creates an empty inventory on top of an existing client.
func NewWithClient(client *Client) *Papertrail {
	return &Papertrail{
		client:        client,
		Archives:      newArchives(client),
		Destinations:  newDestinations(client),
		Groups:        newGroups(client),
		Systems:       newSystems(client),
		Usage:         newUsage(client),
		Users:         newUsers(client),
		SavedSearches: newSavedSearches(client),
	}
}

// Client returns the client shared by all collections.
func (p *Papertrail) Client() *Client {
	return p.client
}

// Load fetches archives, destinations, systems, groups and usage
// concurrently. The first failure cancels the remaining requests.
func (p *Papertrail) Load(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Archives.Load(ctx) })
	g.Go(func() error { return p.Destinations.Load(ctx) })
	g.Go(func() error { return p.Systems.Load(ctx) })
	g.Go(func() error { return p.Groups.Load(ctx) })
	g.Go(func() error { return p.Usage.Load(ctx) })
	if err := g.Wait(); err != nil {
		return err
	}
	p.loaded.Store(true)
	log.WithFields(logrus.Fields{
		"archives":     p.Archives.Len(),
		"destinations": p.Destinations.Len(),
		"systems":      p.Systems.Len(),
		"groups":       p.Groups.Len(),
	}).Info("Papertrail inventory loaded")
	return nil
}

// IsLoaded reports whether a full Load or Restore has completed.
func (p *Papertrail) IsLoaded() bool {
	return p.loaded.Load()
}
