package papertrail

import (
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is a JSON friendly copy of the inventory. Restore turns it back
// into live collections without touching the network.
type Snapshot struct {
	Archives     *ArchivesSnapshot     `json:"archives"`
	Destinations *DestinationsSnapshot `json:"destinations"`
	Groups       *GroupsSnapshot       `json:"groups"`
	Systems      *SystemsSnapshot      `json:"systems"`
	Usage        *UsageSnapshot        `json:"usage"`
}

type ArchivesSnapshot struct {
	LastFetched *time.Time `json:"last_fetched"`
	Archives    []*Archive `json:"_archives"`
}

type DestinationsSnapshot struct {
	LastFetched  *time.Time     `json:"last_fetched"`
	Destinations []*Destination `json:"_destinations"`
}

type GroupsSnapshot struct {
	LastFetched *time.Time `json:"last_fetched"`
	Groups      []*Group   `json:"_groups"`
}

type SystemsSnapshot struct {
	LastFetched *time.Time `json:"last_fetched"`
	Systems     []*System  `json:"_systems"`
}

type UsageSnapshot struct {
	LastFetched *time.Time `json:"last_fetched"`
	UsageData
}

// Snapshot captures the current state of every collection Load fills.
func (p *Papertrail) Snapshot() *Snapshot {
	return &Snapshot{
		Archives: &ArchivesSnapshot{
			LastFetched: timePtr(p.Archives.LastFetched()),
			Archives:    p.Archives.All(),
		},
		Destinations: &DestinationsSnapshot{
			LastFetched:  timePtr(p.Destinations.LastFetched()),
			Destinations: p.Destinations.All(),
		},
		Groups: &GroupsSnapshot{
			LastFetched: timePtr(p.Groups.LastFetched()),
			Groups:      p.Groups.All(),
		},
		Systems: &SystemsSnapshot{
			LastFetched: timePtr(p.Systems.LastFetched()),
			Systems:     p.Systems.All(),
		},
		Usage: &UsageSnapshot{
			LastFetched: timePtr(p.Usage.LastFetched()),
			UsageData:   p.Usage.Data(),
		},
	}
}

// Restore replaces every collection with the content of s. All sections
// must be present.
func (p *Papertrail) Restore(s *Snapshot) error {
	const op = "restore"
	if s == nil || s.Archives == nil || s.Destinations == nil || s.Groups == nil || s.Systems == nil || s.Usage == nil {
		return newError(KindGeneric, op, fmt.Errorf("%w: missing section", ErrInvalidSnapshot))
	}

	archives := make([]*Archive, 0, len(s.Archives.Archives))
	for _, a := range s.Archives.Archives {
		if a == nil {
			continue
		}
		duration, err := parseArchiveDuration(a.FormattedDuration)
		if err != nil {
			return newError(KindArchives, op, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err))
		}
		archives = append(archives, &Archive{
			StartTime:          a.StartTime.UTC(),
			EndTime:            a.EndTime.UTC(),
			FormattedStartTime: a.FormattedStartTime,
			FormattedDuration:  a.FormattedDuration,
			FileName:           a.FileName,
			FileSize:           a.FileSize,
			Link:               a.Link,
			Duration:           duration,
			client:             p.client,
		})
	}

	destinations := make([]*Destination, 0, len(s.Destinations.Destinations))
	for _, d := range s.Destinations.Destinations {
		if d == nil {
			continue
		}
		if d.Port == SyslogDefaultPort {
			return newError(KindDestinations, op, fmt.Errorf("%w: destination %d on port 514", ErrInvalidSnapshot, d.ID))
		}
		dest := *d
		destinations = append(destinations, &dest)
	}

	groups := make([]*Group, 0, len(s.Groups.Groups))
	for _, g := range s.Groups.Groups {
		if g == nil {
			continue
		}
		group := *g
		group.client = p.client
		group.owner = p.Groups
		groups = append(groups, &group)
	}

	systems := make([]*System, 0, len(s.Systems.Systems))
	for _, sys := range s.Systems.Systems {
		if sys == nil {
			continue
		}
		system := *sys
		system.client = p.client
		system.owner = p.Systems
		systems = append(systems, &system)
	}

	p.Archives.replace(archives, derefTime(s.Archives.LastFetched))
	p.Destinations.replace(destinations, derefTime(s.Destinations.LastFetched))
	p.Groups.replace(groups, derefTime(s.Groups.LastFetched))
	p.Systems.replace(systems, derefTime(s.Systems.LastFetched))
	p.Usage.set(s.Usage.UsageData, derefTime(s.Usage.LastFetched))
	p.loaded.Store(true)

	log.WithField("archives", len(archives)).Debug("Papertrail inventory restored from snapshot")
	return nil
}

// MarshalSnapshot encodes the current inventory as JSON.
func (p *Papertrail) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(p.Snapshot())
}

// RestoreJSON decodes data produced by MarshalSnapshot and restores it.
func (p *Papertrail) RestoreJSON(data []byte) error {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return newError(KindGeneric, "restore", fmt.Errorf("%w: %v", ErrInvalidSnapshot, err))
	}
	return p.Restore(&s)
}
