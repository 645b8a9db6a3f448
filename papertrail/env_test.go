package papertrail

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token"

// testEnv is a mock Papertrail API dispatching on the request path.
type testEnv struct {
	t      *testing.T
	server *httptest.Server
	client *Client

	mu            sync.Mutex
	requestCount  int
	mockResponses map[string]http.HandlerFunc
}

func newTestEnv(t *testing.T) *testEnv {
	env := &testEnv{
		t:             t,
		mockResponses: make(map[string]http.HandlerFunc),
	}

	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.mu.Lock()
		env.requestCount++
		handler, exists := env.mockResponses[r.URL.Path]
		env.mu.Unlock()
		if !exists {
			t.Errorf("Unexpected request URL: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/v1/") {
			assert.Equal(t, testToken, r.Header.Get("X-Papertrail-Token"))
		}
		handler(w, r)
	}))
	t.Cleanup(env.server.Close)

	client, err := NewClient(Config{
		APIToken:     testToken,
		BaseURL:      env.server.URL + "/api/v1",
		RetryMax:     1,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	env.client = client
	return env
}

func (env *testEnv) setMockResponse(path string, handler http.HandlerFunc) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.mockResponses[path] = handler
}

// setJSON answers path with a fixed JSON body.
func (env *testEnv) setJSON(path string, status int, body string) {
	env.setMockResponse(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func (env *testEnv) requests() int {
	env.mu.Lock()
	defer env.mu.Unlock()
	return env.requestCount
}

// url returns the absolute URL of an API path, as Papertrail puts it in links.
func (env *testEnv) url(path string) string {
	return env.server.URL + "/api/v1/" + strings.TrimLeft(path, "/")
}

func (env *testEnv) archivesJSON() string {
	return fmt.Sprintf(`[
  {"start":"2024-01-01T00:00:00Z","end":"2024-01-01T23:59:59Z","start_formatted":"Monday, January 1","duration_formatted":"1 day","filename":"2024-01-01.tsv.gz","filesize":2048,"_links":{"download":{"href":"%s"}}},
  {"start":"2024-01-02T00:00:00Z","end":"2024-01-02T00:59:59Z","start_formatted":"Tuesday, January 2 at 00:00","duration_formatted":"1 Hour","filename":"2024-01-02-00.tsv.gz","filesize":512,"_links":{"download":{"href":"%s"}}},
  {"start":"2024-01-02T01:00:00Z","end":"2024-01-02T01:59:59Z","start_formatted":"Tuesday, January 2 at 01:00","duration_formatted":"1 hour","filename":"2024-01-02-01.tsv.gz","filesize":256,"_links":{"download":{"href":"%s"}}}
]`, env.url("archives/2024-01-01/download"), env.url("archives/2024-01-02-00/download"), env.url("archives/2024-01-02-01/download"))
}

const destinationsJSON = `[
  {"id":31,"filter":null,"syslog":{"hostname":"logs1.papertrailapp.com","port":41234,"description":"Default"}},
  {"id":32,"filter":"program:cron","description":"Top level","syslog":{"hostname":"logs2.papertrailapp.com","port":41235}}
]`

func (env *testEnv) groupsJSON() string {
	return fmt.Sprintf(`[
  {"id":7,"name":"Production","system_wildcard":"*prod*","systems":[{"id":11},{"id":12}],"_links":{"self":{"href":"%s"},"html":{"href":"https://papertrailapp.com/groups/7"},"search":{"href":"https://papertrailapp.com/api/v1/events/search.json?group_id=7"}}},
  {"id":8,"name":"Staging","system_wildcard":"","systems":[],"_links":{"self":{"href":"%s"},"html":{"href":"https://papertrailapp.com/groups/8"},"search":{"href":"https://papertrailapp.com/api/v1/events/search.json?group_id=8"}}}
]`, env.url("groups/7.json"), env.url("groups/8.json"))
}

func (env *testEnv) systemJSON(id int, name, lastEvent string) string {
	last := "null"
	if lastEvent != "" {
		last = fmt.Sprintf("%q", lastEvent)
	}
	return fmt.Sprintf(`{"id":%d,"name":%q,"last_event_at":%s,"auto_delete":false,"ip_address":null,"hostname":"%s.example.com","syslog":{"hostname":"logs1.papertrailapp.com","port":41234},"_links":{"self":{"href":"%s"},"html":{"href":"https://papertrailapp.com/systems/%d"},"search":{"href":"https://papertrailapp.com/systems/%d/events"}}}`,
		id, name, last, name, env.url(fmt.Sprintf("systems/%d.json", id)), id, id)
}

func (env *testEnv) systemsJSON() string {
	return "[" + env.systemJSON(11, "web-1", "2024-01-02T10:00:00Z") + "," +
		env.systemJSON(12, "web-2", "2024-01-02T11:30:00+01:00") + "," +
		env.systemJSON(13, "idle", "") + "]"
}

const usageJSON = `{"log_data_transfer_used":1073741824,"log_data_transfer_used_percent":21.5,"log_data_transfer_plan_limit":5368709120,"log_data_transfer_hard_limit":10737418240}`

// loadAll registers every endpoint Papertrail.Load touches.
func (env *testEnv) loadAll() {
	env.setJSON("/api/v1/archives.json", http.StatusOK, env.archivesJSON())
	env.setJSON("/api/v1/destinations.json", http.StatusOK, destinationsJSON)
	env.setJSON("/api/v1/groups.json", http.StatusOK, env.groupsJSON())
	env.setJSON("/api/v1/systems.json", http.StatusOK, env.systemsJSON())
	env.setJSON("/api/v1/accounts.json", http.StatusOK, usageJSON)
}
