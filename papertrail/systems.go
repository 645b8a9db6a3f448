package papertrail

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const minIPAddressLength = 7

type rawSystem struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	LastEventAt *string `json:"last_event_at"`
	AutoDelete  bool    `json:"auto_delete"`
	IPAddress   *string `json:"ip_address"`
	Hostname    *string `json:"hostname"`
	Syslog      struct {
		Hostname string `json:"hostname"`
		Port     int    `json:"port"`
	} `json:"syslog"`
	Links links `json:"_links"`
}

// System is a log sender known to Papertrail.
type System struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	LastEvent   *time.Time `json:"last_event"`
	AutoDelete  bool       `json:"auto_delete"`
	JSONLink    string     `json:"json_link"`
	HTMLLink    string     `json:"html_link"`
	SearchLink  string     `json:"search_link"`
	IPAddress   *string    `json:"ip_address"`
	HostName    *string    `json:"host_name"`
	SyslogHost  string     `json:"syslog_host"`
	SyslogPort  int        `json:"syslog_port"`
	LastFetched *time.Time `json:"last_fetched"`

	client *Client
	owner  *Systems
}

func newSystem(client *Client, owner *Systems, raw rawSystem, fetched time.Time) (*System, error) {
	s := &System{
		ID:          raw.ID,
		Name:        raw.Name,
		AutoDelete:  raw.AutoDelete,
		JSONLink:    raw.Links.Self.Href,
		HTMLLink:    raw.Links.HTML.Href,
		SearchLink:  raw.Links.Search.Href,
		IPAddress:   raw.IPAddress,
		HostName:    raw.Hostname,
		SyslogHost:  raw.Syslog.Hostname,
		SyslogPort:  raw.Syslog.Port,
		LastFetched: timePtr(fetched),
		client:      client,
		owner:       owner,
	}
	if raw.LastEventAt != nil && *raw.LastEventAt != "" {
		t, err := parseTimestamp(*raw.LastEventAt)
		if err != nil {
			return nil, newError(KindSystems, "parse system", err)
		}
		s.LastEvent = &t
	}
	return s, nil
}

func (s *System) String() string { return s.Name }

func (s *System) infoLink() string {
	return fmt.Sprintf("systems/%d.json", s.ID)
}

func (s *System) refreshed(raw rawSystem) (*System, error) {
	fresh, err := newSystem(s.client, s.owner, raw, now())
	if err != nil {
		return nil, err
	}
	if s.owner != nil {
		s.owner.swap(fresh, func(x *System) bool { return x.ID == fresh.ID })
	}
	return fresh, nil
}

// Reload fetches the system again. The refreshed system replaces s in the
// collection it came from.
func (s *System) Reload(ctx context.Context) (*System, error) {
	target := s.JSONLink
	if target == "" {
		target = s.infoLink()
	}
	var raw rawSystem
	if err := s.client.getJSON(ctx, target, nil, &raw); err != nil {
		return nil, newError(KindSystems, "reload", err)
	}
	return s.refreshed(raw)
}

// SystemUpdate lists the fields to change. Nil fields are left alone.
type SystemUpdate struct {
	Name        *string `json:"name,omitempty"`
	IPAddress   *string `json:"ip_address,omitempty"`
	HostName    *string `json:"hostname,omitempty"`
	Description *string `json:"description,omitempty"`
	AutoDelete  *bool   `json:"auto_delete,omitempty"`
}

func (u SystemUpdate) empty() bool {
	return u.Name == nil && u.IPAddress == nil && u.HostName == nil && u.Description == nil && u.AutoDelete == nil
}

// Update changes the system on Papertrail and returns the updated system.
func (s *System) Update(ctx context.Context, update SystemUpdate) (*System, error) {
	if update.empty() {
		return nil, invalidParameter(KindSystems, "update", "at least one field must be set")
	}
	var raw rawSystem
	payload := map[string]SystemUpdate{"system": update}
	if err := s.client.putJSON(ctx, s.infoLink(), payload, &raw); err != nil {
		return nil, newError(KindSystems, "update", err)
	}
	fresh, err := s.refreshed(raw)
	if err != nil {
		return nil, err
	}
	log.WithField("system", fresh.Name).Info("System updated")
	return fresh, nil
}

// Systems lists the account's systems.
type Systems struct {
	collection[System]
	client *Client
}

func newSystems(client *Client) *Systems {
	return &Systems{client: client}
}

// Load fetches all systems.
func (s *Systems) Load(ctx context.Context) error {
	var raws []rawSystem
	if err := s.client.getJSON(ctx, "systems.json", nil, &raws); err != nil {
		return newError(KindSystems, "load", err)
	}
	fetched := now()
	items := make([]*System, 0, len(raws))
	for _, raw := range raws {
		system, err := newSystem(s.client, s, raw, fetched)
		if err != nil {
			return err
		}
		items = append(items, system)
	}
	s.replace(items, fetched)
	log.WithField("count", len(items)).Debug("Systems loaded")
	return nil
}

// Registration describes a new system. One of Destination, DestinationID or
// DestinationPort is required; when several are set they are preferred in
// that order.
type Registration struct {
	Name            string
	HostName        *string
	IPAddress       *string
	DestinationPort *int
	DestinationID   *int
	Destination     *Destination
	Description     *string
	AutoDelete      *bool
}

type registerRequest struct {
	Name            string  `json:"name"`
	HostName        *string `json:"hostname,omitempty"`
	IPAddress       *string `json:"ip_address,omitempty"`
	DestinationID   *int    `json:"destination_id,omitempty"`
	DestinationPort *int    `json:"destination_port,omitempty"`
	Description     *string `json:"description,omitempty"`
	AutoDelete      *bool   `json:"auto_delete,omitempty"`
}

// Validate checks a registration without sending it.
func (r Registration) Validate() error {
	const op = "register"
	switch {
	case r.Name == "":
		return invalidParameter(KindSystems, op, "name must not be empty")
	case r.HostName != nil && *r.HostName == "":
		return invalidParameter(KindSystems, op, "host name must not be empty")
	case r.IPAddress != nil && len(*r.IPAddress) < minIPAddressLength:
		return invalidParameter(KindSystems, op, "ip address must be at least 7 characters")
	case r.HostName == nil && r.IPAddress == nil:
		return invalidParameter(KindSystems, op, "one of host name or ip address is required")
	}

	plainSyslog := r.DestinationPort != nil && *r.DestinationPort == SyslogDefaultPort
	if (!plainSyslog || r.Destination != nil || r.DestinationID != nil) && r.HostName == nil {
		return invalidParameter(KindSystems, op, "host name is required unless registering on port 514 without a destination")
	}
	if plainSyslog && r.IPAddress == nil {
		return invalidParameter(KindSystems, op, "port 514 requires an ip address")
	}
	if r.Destination == nil && r.DestinationID == nil && r.DestinationPort == nil {
		return invalidParameter(KindSystems, op, "one of destination, destination id or destination port is required")
	}
	return nil
}

func (r Registration) request() registerRequest {
	req := registerRequest{
		Name:        r.Name,
		HostName:    r.HostName,
		IPAddress:   r.IPAddress,
		Description: r.Description,
		AutoDelete:  r.AutoDelete,
	}
	switch {
	case r.Destination != nil:
		id := r.Destination.ID
		req.DestinationID = &id
	case r.DestinationID != nil:
		req.DestinationID = r.DestinationID
	default:
		req.DestinationPort = r.DestinationPort
	}
	return req
}

// Register creates a new system on Papertrail and adds it to the collection.
func (s *Systems) Register(ctx context.Context, reg Registration) (*System, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	var raw rawSystem
	payload := map[string]registerRequest{"system": reg.request()}
	if err := s.client.postJSON(ctx, "systems.json", payload, &raw); err != nil {
		return nil, newError(KindSystems, "register", err)
	}
	system, err := newSystem(s.client, s, raw, now())
	if err != nil {
		return nil, err
	}
	s.add(system)
	log.WithFields(logrus.Fields{
		"system": system.Name,
		"id":     system.ID,
	}).Info("System registered")
	return system, nil
}

// Remove deletes system from Papertrail and from the collection.
func (s *Systems) Remove(ctx context.Context, system *System) error {
	if _, ok := s.find(func(x *System) bool { return x.ID == system.ID }); !ok {
		return notFound(KindSystems, "remove", fmt.Sprintf("system id %d", system.ID))
	}
	if err := s.client.delete(ctx, system.infoLink(), nil); err != nil {
		return newError(KindSystems, "remove", err)
	}
	s.remove(func(x *System) bool { return x.ID == system.ID })
	log.WithField("system", system.Name).Info("System removed")
	return nil
}

// RemoveAt removes the system at index i. Negative indexes count from the end.
func (s *Systems) RemoveAt(ctx context.Context, i int) error {
	system, err := s.At(i)
	if err != nil {
		return newError(KindSystems, "remove", err)
	}
	return s.Remove(ctx, system)
}

// RemoveByName removes the system with the given name.
func (s *Systems) RemoveByName(ctx context.Context, name string) error {
	system, err := s.ByName(name)
	if err != nil {
		return err
	}
	return s.Remove(ctx, system)
}

type groupMembership struct {
	GroupID int `json:"group_id"`
}

// JoinGroup adds the system to a group.
func (s *Systems) JoinGroup(ctx context.Context, system *System, groupID int) error {
	target := fmt.Sprintf("systems/%d/join.json", system.ID)
	if err := s.client.postJSON(ctx, target, groupMembership{GroupID: groupID}, nil); err != nil {
		return newError(KindSystems, "join group", err)
	}
	log.WithFields(logrus.Fields{
		"system":   system.Name,
		"group_id": groupID,
	}).Info("System joined group")
	return nil
}

// LeaveGroup removes the system from a group.
func (s *Systems) LeaveGroup(ctx context.Context, system *System, groupID int) error {
	target := fmt.Sprintf("systems/%d/leave.json", system.ID)
	if err := s.client.postJSON(ctx, target, groupMembership{GroupID: groupID}, nil); err != nil {
		return newError(KindSystems, "leave group", err)
	}
	log.WithFields(logrus.Fields{
		"system":   system.Name,
		"group_id": groupID,
	}).Info("System left group")
	return nil
}

func (s *Systems) ByName(name string) (*System, error) {
	if system, ok := s.find(func(x *System) bool { return x.Name == name }); ok {
		return system, nil
	}
	return nil, notFound(KindSystems, "lookup", fmt.Sprintf("system name %q", name))
}

func (s *Systems) ByID(id int) (*System, error) {
	if system, ok := s.find(func(x *System) bool { return x.ID == id }); ok {
		return system, nil
	}
	return nil, notFound(KindSystems, "lookup", fmt.Sprintf("system id %d", id))
}

// ByLastEvent returns the first system whose last event happened at t.
func (s *Systems) ByLastEvent(t time.Time) (*System, error) {
	search := t.UTC()
	system, ok := s.find(func(x *System) bool {
		return x.LastEvent != nil && x.LastEvent.Equal(search)
	})
	if !ok {
		return nil, notFound(KindSystems, "lookup", fmt.Sprintf("last event %s", search.Format(time.RFC3339)))
	}
	return system, nil
}
