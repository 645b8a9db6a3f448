package papertrail

import (
	"context"
	"fmt"
	"time"
)

const groupDeletedMessage = "Group deleted"

type rawGroup struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	SystemWildcard string `json:"system_wildcard"`
	Systems        []struct {
		ID int `json:"id"`
	} `json:"systems"`
	Links links `json:"_links"`
}

// Group is a named set of systems, matched by id or by wildcard.
type Group struct {
	ID             int        `json:"id"`
	Name           string     `json:"name"`
	SystemWildcard string     `json:"wildcard"`
	SelfLink       string     `json:"self_link"`
	HTMLLink       string     `json:"html_link"`
	SearchLink     string     `json:"search_link"`
	SystemIDs      []int      `json:"system_ids,omitempty"`
	LastFetched    *time.Time `json:"last_fetched"`

	client *Client
	owner  *Groups
}

func newGroup(client *Client, owner *Groups, raw rawGroup, fetched time.Time) *Group {
	ids := make([]int, 0, len(raw.Systems))
	for _, s := range raw.Systems {
		ids = append(ids, s.ID)
	}
	return &Group{
		ID:             raw.ID,
		Name:           raw.Name,
		SystemWildcard: raw.SystemWildcard,
		SelfLink:       raw.Links.Self.Href,
		HTMLLink:       raw.Links.HTML.Href,
		SearchLink:     raw.Links.Search.Href,
		SystemIDs:      ids,
		LastFetched:    timePtr(fetched),
		client:         client,
		owner:          owner,
	}
}

func (g *Group) String() string { return g.Name }

func (g *Group) selfLink() string {
	if g.SelfLink != "" {
		return g.SelfLink
	}
	return fmt.Sprintf("groups/%d.json", g.ID)
}

// Reload fetches the group again through its self link. The refreshed group
// replaces g in the collection it came from.
func (g *Group) Reload(ctx context.Context) (*Group, error) {
	var raw rawGroup
	if err := g.client.getJSON(ctx, g.selfLink(), nil, &raw); err != nil {
		return nil, newError(KindGroups, "reload", err)
	}
	fresh := newGroup(g.client, g.owner, raw, now())
	if g.owner != nil {
		g.owner.swap(fresh, func(x *Group) bool { return x.ID == fresh.ID })
	}
	return fresh, nil
}

// GroupUpdate lists the fields to change. Nil fields are left alone.
type GroupUpdate struct {
	Name           *string `json:"name,omitempty"`
	SystemWildcard *string `json:"system_wildcard,omitempty"`
}

// Update changes the group on Papertrail and returns the updated group.
func (g *Group) Update(ctx context.Context, update GroupUpdate) (*Group, error) {
	if update.Name == nil && update.SystemWildcard == nil {
		return nil, invalidParameter(KindGroups, "update", "at least one field must be set")
	}
	if update.Name != nil && *update.Name == "" {
		return nil, invalidParameter(KindGroups, "update", "name must not be empty")
	}
	payload := map[string]GroupUpdate{"group": update}
	var raw rawGroup
	if err := g.client.putJSON(ctx, g.selfLink(), payload, &raw); err != nil {
		return nil, newError(KindGroups, "update", err)
	}
	fresh := newGroup(g.client, g.owner, raw, now())
	if g.owner != nil {
		g.owner.swap(fresh, func(x *Group) bool { return x.ID == fresh.ID })
	}
	log.WithField("group", fresh.Name).Info("Group updated")
	return fresh, nil
}

// Groups lists the account's groups.
type Groups struct {
	collection[Group]
	client *Client
}

func newGroups(client *Client) *Groups {
	return &Groups{client: client}
}

// Load fetches all groups.
func (g *Groups) Load(ctx context.Context) error {
	var raws []rawGroup
	if err := g.client.getJSON(ctx, "groups.json", nil, &raws); err != nil {
		return newError(KindGroups, "load", err)
	}
	fetched := now()
	items := make([]*Group, 0, len(raws))
	for _, raw := range raws {
		items = append(items, newGroup(g.client, g, raw, fetched))
	}
	g.replace(items, fetched)
	log.WithField("count", len(items)).Debug("Groups loaded")
	return nil
}

type createGroupRequest struct {
	Name           string `json:"name"`
	SystemWildcard string `json:"system_wildcard,omitempty"`
	SystemIDs      []int  `json:"system_ids,omitempty"`
}

// Create adds a group. An empty wildcard or id list is not sent.
func (g *Groups) Create(ctx context.Context, name, systemWildcard string, systemIDs []int) (*Group, error) {
	if name == "" {
		return nil, invalidParameter(KindGroups, "create", "name must not be empty")
	}
	payload := map[string]createGroupRequest{"group": {
		Name:           name,
		SystemWildcard: systemWildcard,
		SystemIDs:      systemIDs,
	}}
	var raw rawGroup
	if err := g.client.postJSON(ctx, "groups.json", payload, &raw); err != nil {
		return nil, newError(KindGroups, "create", err)
	}
	group := newGroup(g.client, g, raw, now())
	g.add(group)
	log.WithField("group", group.Name).Info("Group created")
	return group, nil
}

// Delete removes group from Papertrail and from the collection.
func (g *Groups) Delete(ctx context.Context, group *Group) error {
	var resp struct {
		Message string `json:"message"`
	}
	if err := g.client.delete(ctx, group.selfLink(), &resp); err != nil {
		return newError(KindGroups, "delete", err)
	}
	if resp.Message != groupDeletedMessage {
		return newError(KindGroups, "delete", fmt.Errorf("%w: unexpected response: %s", ErrInvalidResponse, resp.Message))
	}
	g.remove(func(x *Group) bool { return x.ID == group.ID })
	log.WithField("group", group.Name).Info("Group deleted")
	return nil
}

// DeleteByID deletes the loaded group with the given id.
func (g *Groups) DeleteByID(ctx context.Context, id int) error {
	group, err := g.ByID(id)
	if err != nil {
		return err
	}
	return g.Delete(ctx, group)
}

// DeleteByName deletes the loaded group with the given name.
func (g *Groups) DeleteByName(ctx context.Context, name string) error {
	group, err := g.ByName(name)
	if err != nil {
		return err
	}
	return g.Delete(ctx, group)
}

func (g *Groups) ByName(name string) (*Group, error) {
	if group, ok := g.find(func(x *Group) bool { return x.Name == name }); ok {
		return group, nil
	}
	return nil, notFound(KindGroups, "lookup", fmt.Sprintf("group name %q", name))
}

func (g *Groups) ByID(id int) (*Group, error) {
	if group, ok := g.find(func(x *Group) bool { return x.ID == id }); ok {
		return group, nil
	}
	return nil, notFound(KindGroups, "lookup", fmt.Sprintf("group id %d", id))
}
