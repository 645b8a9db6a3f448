package papertrail

import (
	"context"
	"fmt"
)

// SyslogDefaultPort is the plain syslog port. Papertrail never hands it out
// as a log destination.
const SyslogDefaultPort = 514

type rawDestination struct {
	ID          int     `json:"id"`
	Filter      *string `json:"filter"`
	Description string  `json:"description"`
	Syslog      struct {
		Hostname    string `json:"hostname"`
		Port        int    `json:"port"`
		Description string `json:"description"`
	} `json:"syslog"`
}

// Destination is a syslog endpoint systems send their logs to.
type Destination struct {
	ID          int     `json:"id"`
	Filter      *string `json:"filter"`
	HostName    string  `json:"host_name"`
	Port        int     `json:"port"`
	Description string  `json:"description"`
	InfoLink    string  `json:"info_link"`
}

func (c *Client) newDestination(raw rawDestination) (*Destination, error) {
	if raw.Syslog.Port == SyslogDefaultPort {
		return nil, invalidParameter(KindDestinations, "parse destination", "port should never be 514")
	}
	description := raw.Syslog.Description
	if description == "" {
		description = raw.Description
	}
	link, err := c.resolve(fmt.Sprintf("destinations/%d.json", raw.ID), nil)
	if err != nil {
		return nil, newError(KindDestinations, "parse destination", err)
	}
	return &Destination{
		ID:          raw.ID,
		Filter:      raw.Filter,
		HostName:    raw.Syslog.Hostname,
		Port:        raw.Syslog.Port,
		Description: description,
		InfoLink:    link,
	}, nil
}

// Address is host:port, the form syslog senders are configured with.
func (d *Destination) Address() string {
	return fmt.Sprintf("%s:%d", d.HostName, d.Port)
}

// Destinations lists the account's log destinations.
type Destinations struct {
	collection[Destination]
	client *Client
}

func newDestinations(client *Client) *Destinations {
	return &Destinations{client: client}
}

// Load fetches all destinations.
func (d *Destinations) Load(ctx context.Context) error {
	var raws []rawDestination
	if err := d.client.getJSON(ctx, "destinations.json", nil, &raws); err != nil {
		return newError(KindDestinations, "load", err)
	}
	items := make([]*Destination, 0, len(raws))
	for _, raw := range raws {
		dest, err := d.client.newDestination(raw)
		if err != nil {
			return err
		}
		items = append(items, dest)
	}
	d.replace(items, now())
	log.WithField("count", len(items)).Debug("Destinations loaded")
	return nil
}

// Get fetches a single destination and refreshes it in the collection.
func (d *Destinations) Get(ctx context.Context, id int) (*Destination, error) {
	var raw rawDestination
	if err := d.client.getJSON(ctx, fmt.Sprintf("destinations/%d.json", id), nil, &raw); err != nil {
		return nil, newError(KindDestinations, "get", err)
	}
	dest, err := d.client.newDestination(raw)
	if err != nil {
		return nil, err
	}
	d.swap(dest, func(x *Destination) bool { return x.ID == id })
	return dest, nil
}

// ByID looks a destination up by id.
func (d *Destinations) ByID(id int) (*Destination, error) {
	if dest, ok := d.find(func(x *Destination) bool { return x.ID == id }); ok {
		return dest, nil
	}
	return nil, notFound(KindDestinations, "lookup", fmt.Sprintf("id %d", id))
}

// ByPort looks a destination up by its syslog port.
func (d *Destinations) ByPort(port int) (*Destination, error) {
	if dest, ok := d.find(func(x *Destination) bool { return x.Port == port }); ok {
		return dest, nil
	}
	return nil, notFound(KindDestinations, "lookup", fmt.Sprintf("port %d", port))
}
