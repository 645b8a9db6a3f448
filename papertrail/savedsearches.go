package papertrail

import (
	"context"
	"fmt"
)

type rawSavedSearch struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Query string `json:"query"`
	Group struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"group"`
	Links links `json:"_links"`
}

// SavedSearch is a named query, optionally scoped to a group.
type SavedSearch struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Query      string `json:"query"`
	GroupID    int    `json:"group_id"`
	GroupName  string `json:"group_name"`
	SelfLink   string `json:"self_link"`
	SearchLink string `json:"search_link"`
}

func newSavedSearch(raw rawSavedSearch) *SavedSearch {
	return &SavedSearch{
		ID:         raw.ID,
		Name:       raw.Name,
		Query:      raw.Query,
		GroupID:    raw.Group.ID,
		GroupName:  raw.Group.Name,
		SelfLink:   raw.Links.Self.Href,
		SearchLink: raw.Links.Search.Href,
	}
}

// SavedSearches lists the account's saved searches.
type SavedSearches struct {
	collection[SavedSearch]
	client *Client
}

func newSavedSearches(client *Client) *SavedSearches {
	return &SavedSearches{client: client}
}

func (s *SavedSearches) Load(ctx context.Context) error {
	var raws []rawSavedSearch
	if err := s.client.getJSON(ctx, "searches.json", nil, &raws); err != nil {
		return newError(KindSavedSearches, "load", err)
	}
	items := make([]*SavedSearch, 0, len(raws))
	for _, raw := range raws {
		items = append(items, newSavedSearch(raw))
	}
	s.replace(items, now())
	return nil
}

// Get fetches one saved search and refreshes it in the collection.
func (s *SavedSearches) Get(ctx context.Context, id int) (*SavedSearch, error) {
	var raw rawSavedSearch
	if err := s.client.getJSON(ctx, fmt.Sprintf("searches/%d.json", id), nil, &raw); err != nil {
		return nil, newError(KindSavedSearches, "get", err)
	}
	search := newSavedSearch(raw)
	s.swap(search, func(x *SavedSearch) bool { return x.ID == id })
	return search, nil
}

type savedSearchRequest struct {
	Name    string `json:"name,omitempty"`
	Query   string `json:"query,omitempty"`
	GroupID int    `json:"group_id,omitempty"`
}

// Create saves a new search. A zero groupID searches all systems.
func (s *SavedSearches) Create(ctx context.Context, name, query string, groupID int) (*SavedSearch, error) {
	if name == "" || query == "" {
		return nil, invalidParameter(KindSavedSearches, "create", "name and query are required")
	}
	payload := map[string]savedSearchRequest{"search": {Name: name, Query: query, GroupID: groupID}}
	var raw rawSavedSearch
	if err := s.client.postJSON(ctx, "searches.json", payload, &raw); err != nil {
		return nil, newError(KindSavedSearches, "create", err)
	}
	search := newSavedSearch(raw)
	s.add(search)
	log.WithField("search", search.Name).Info("Saved search created")
	return search, nil
}

// Update changes name, query or group of a saved search. Empty values are
// left alone.
func (s *SavedSearches) Update(ctx context.Context, id int, name, query string, groupID int) (*SavedSearch, error) {
	if name == "" && query == "" && groupID == 0 {
		return nil, invalidParameter(KindSavedSearches, "update", "at least one field must be set")
	}
	payload := map[string]savedSearchRequest{"search": {Name: name, Query: query, GroupID: groupID}}
	var raw rawSavedSearch
	if err := s.client.putJSON(ctx, fmt.Sprintf("searches/%d.json", id), payload, &raw); err != nil {
		return nil, newError(KindSavedSearches, "update", err)
	}
	search := newSavedSearch(raw)
	s.swap(search, func(x *SavedSearch) bool { return x.ID == id })
	return search, nil
}

func (s *SavedSearches) Delete(ctx context.Context, id int) error {
	if err := s.client.delete(ctx, fmt.Sprintf("searches/%d.json", id), nil); err != nil {
		return newError(KindSavedSearches, "delete", err)
	}
	s.remove(func(x *SavedSearch) bool { return x.ID == id })
	return nil
}

func (s *SavedSearches) ByName(name string) (*SavedSearch, error) {
	if search, ok := s.find(func(x *SavedSearch) bool { return x.Name == name }); ok {
		return search, nil
	}
	return nil, notFound(KindSavedSearches, "lookup", fmt.Sprintf("search name %q", name))
}
