package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"papertrail-manager/papertrail"
)

const testToken = "test-token"

// testEnv wires an App to a mock Papertrail API and an in-memory database.
type testEnv struct {
	t      *testing.T
	server *httptest.Server
	app    *App

	mu            sync.Mutex
	requestCount  map[string]int
	mockResponses map[string]http.HandlerFunc
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		t:             t,
		requestCount:  make(map[string]int),
		mockResponses: make(map[string]http.HandlerFunc),
	}

	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.mu.Lock()
		env.requestCount[r.Method+" "+r.URL.Path]++
		handler, exists := env.mockResponses[r.Method+" "+r.URL.Path]
		if !exists {
			handler, exists = env.mockResponses[r.URL.Path]
		}
		env.mu.Unlock()
		if !exists {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, testToken, r.Header.Get("X-Papertrail-Token"))
		handler(w, r)
	}))
	t.Cleanup(env.server.Close)

	client, err := papertrail.NewClient(papertrail.Config{
		APIToken:     testToken,
		BaseURL:      env.server.URL + "/api/v1",
		RetryMax:     1,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	env.app = &App{
		Papertrail: papertrail.NewWithClient(client),
		Database:   setupTestDB(t),
	}
	return env
}

// setupTestDB opens a private in-memory SQLite database for t.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", url.PathEscape(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// resetGlobals isolates the package level state the service keeps.
func resetGlobals(t *testing.T) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	color.NoColor = true

	jobStore = newJobStore()
	jobQueue = make(chan *DownloadJob, 100)
	jobCancellersMu.Lock()
	jobCancellers = make(map[string]context.CancelFunc)
	jobCancellersMu.Unlock()

	configDir = t.TempDir()
	settingsMutex.Lock()
	settings = defaultSettings()
	settings.DownloadDir = t.TempDir()
	settingsMutex.Unlock()
}

func (env *testEnv) setMockResponse(key string, handler http.HandlerFunc) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.mockResponses[key] = handler
}

func (env *testEnv) setJSON(key string, status int, body string) {
	env.setMockResponse(key, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func (env *testEnv) requests(key string) int {
	env.mu.Lock()
	defer env.mu.Unlock()
	return env.requestCount[key]
}

func (env *testEnv) url(path string) string {
	return env.server.URL + "/api/v1/" + strings.TrimLeft(path, "/")
}

func (env *testEnv) archivesJSON() string {
	return fmt.Sprintf(`[
  {"start":"2024-01-01T00:00:00Z","end":"2024-01-01T23:59:59Z","start_formatted":"Monday, January 1","duration_formatted":"1 day","filename":"2024-01-01.tsv.gz","filesize":2048,"_links":{"download":{"href":"%s"}}},
  {"start":"2024-01-02T00:00:00Z","end":"2024-01-02T00:59:59Z","start_formatted":"Tuesday, January 2 at 00:00","duration_formatted":"1 hour","filename":"2024-01-02-00.tsv.gz","filesize":512,"_links":{"download":{"href":"%s"}}}
]`, env.url("archives/2024-01-01/download"), env.url("archives/2024-01-02-00/download"))
}

func (env *testEnv) systemJSON(id int, name string) string {
	return fmt.Sprintf(`{"id":%d,"name":%q,"last_event_at":"2024-01-02T10:00:00Z","auto_delete":false,"ip_address":null,"hostname":"%s.example.com","syslog":{"hostname":"logs1.papertrailapp.com","port":41234},"_links":{"self":{"href":"%s"},"html":{"href":"https://papertrailapp.com/systems/%d"},"search":{"href":"https://papertrailapp.com/systems/%d/events"}}}`,
		id, name, name, env.url(fmt.Sprintf("systems/%d.json", id)), id, id)
}

func (env *testEnv) groupJSON(id int, name string) string {
	return fmt.Sprintf(`{"id":%d,"name":%q,"system_wildcard":"*","systems":[{"id":11}],"_links":{"self":{"href":"%s"},"html":{"href":"https://papertrailapp.com/groups/%d"},"search":{"href":"https://papertrailapp.com/groups/%d/events"}}}`,
		id, name, env.url(fmt.Sprintf("groups/%d.json", id)), id, id)
}

const destinationsJSON = `[{"id":31,"filter":null,"syslog":{"hostname":"logs1.papertrailapp.com","port":41234,"description":"Default"}}]`

const usageJSON = `{"log_data_transfer_used":1073741824,"log_data_transfer_used_percent":21.5,"log_data_transfer_plan_limit":5368709120,"log_data_transfer_hard_limit":10737418240}`

// loadAll registers every endpoint Papertrail.Load touches.
func (env *testEnv) loadAll() {
	env.setJSON("GET /api/v1/archives.json", http.StatusOK, env.archivesJSON())
	env.setJSON("GET /api/v1/destinations.json", http.StatusOK, destinationsJSON)
	env.setJSON("GET /api/v1/groups.json", http.StatusOK, "["+env.groupJSON(7, "Production")+"]")
	env.setJSON("GET /api/v1/systems.json", http.StatusOK, "["+env.systemJSON(11, "web-1")+","+env.systemJSON(12, "web-2")+"]")
	env.setJSON("GET /api/v1/accounts.json", http.StatusOK, usageJSON)
}

// serveArchive answers the download link of an archive with body.
func (env *testEnv) serveArchive(path string, body []byte) {
	env.setMockResponse("GET "+path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		_, _ = w.Write(body)
	})
}

// load fetches the mock inventory into the env's App.
func (env *testEnv) load() {
	env.loadAll()
	require.NoError(env.t, env.app.Papertrail.Load(context.Background()))
}

func gzipBytes(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
