package papertrail

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadedSystems(t *testing.T, env *testEnv) *Systems {
	t.Helper()
	env.setJSON("/api/v1/systems.json", http.StatusOK, env.systemsJSON())
	systems := newSystems(env.client)
	require.NoError(t, systems.Load(context.Background()))
	return systems
}

func ptr[T any](v T) *T { return &v }

func TestSystemsLoad(t *testing.T) {
	env := newTestEnv(t)
	systems := loadedSystems(t, env)

	require.Equal(t, 3, systems.Len())
	web1, err := systems.ByName("web-1")
	require.NoError(t, err)
	assert.Equal(t, 11, web1.ID)
	require.NotNil(t, web1.HostName)
	assert.Equal(t, "web-1.example.com", *web1.HostName)
	assert.Nil(t, web1.IPAddress)
	assert.Equal(t, 41234, web1.SyslogPort)
	require.NotNil(t, web1.LastEvent)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), *web1.LastEvent)

	idle, err := systems.ByID(13)
	require.NoError(t, err)
	assert.Nil(t, idle.LastEvent)

	_, err = systems.ByName("db")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindSystems, KindOf(err))
}

func TestSystemsByLastEventSearchesEveryItem(t *testing.T) {
	env := newTestEnv(t)
	systems := loadedSystems(t, env)

	s, err := systems.ByLastEvent(time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "web-2", s.Name)

	_, err = systems.ByLastEvent(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistrationValidate(t *testing.T) {
	dest := &Destination{ID: 31, Port: 41234}
	tests := []struct {
		name    string
		reg     Registration
		wantErr string
	}{
		{"empty name", Registration{HostName: ptr("h"), DestinationPort: ptr(41234)}, "name must not be empty"},
		{"empty host name", Registration{Name: "a", HostName: ptr(""), DestinationPort: ptr(41234)}, "host name must not be empty"},
		{"short ip", Registration{Name: "a", IPAddress: ptr("1.2.3"), DestinationPort: ptr(514)}, "at least 7 characters"},
		{"no host or ip", Registration{Name: "a", DestinationPort: ptr(41234)}, "one of host name or ip address"},
		{"host required off 514", Registration{Name: "a", IPAddress: ptr("10.0.0.1"), DestinationPort: ptr(41234)}, "host name is required"},
		{"host required with nil port", Registration{Name: "a", IPAddress: ptr("10.0.0.1")}, "host name is required"},
		{"host required with destination", Registration{Name: "a", IPAddress: ptr("10.0.0.1"), DestinationPort: ptr(514), Destination: dest}, "host name is required"},
		{"host required with destination id", Registration{Name: "a", IPAddress: ptr("10.0.0.1"), DestinationPort: ptr(514), DestinationID: ptr(31)}, "host name is required"},
		{"514 requires ip", Registration{Name: "a", HostName: ptr("h"), DestinationPort: ptr(514)}, "port 514 requires an ip address"},
		{"no destination", Registration{Name: "a", HostName: ptr("h")}, "one of destination"},
		{"plain syslog", Registration{Name: "a", IPAddress: ptr("10.0.0.1"), DestinationPort: ptr(514)}, ""},
		{"by port", Registration{Name: "a", HostName: ptr("h"), DestinationPort: ptr(41234)}, ""},
		{"by destination", Registration{Name: "a", HostName: ptr("h"), Destination: dest}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.reg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidParameter)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestRegistrationPrefersDestination(t *testing.T) {
	dest := &Destination{ID: 31}

	req := Registration{Name: "a", HostName: ptr("h"), Destination: dest, DestinationID: ptr(32), DestinationPort: ptr(41234)}.request()
	require.NotNil(t, req.DestinationID)
	assert.Equal(t, 31, *req.DestinationID)
	assert.Nil(t, req.DestinationPort)

	req = Registration{Name: "a", HostName: ptr("h"), DestinationID: ptr(32), DestinationPort: ptr(41234)}.request()
	assert.Equal(t, 32, *req.DestinationID)
	assert.Nil(t, req.DestinationPort)

	req = Registration{Name: "a", HostName: ptr("h"), DestinationPort: ptr(41234)}.request()
	assert.Nil(t, req.DestinationID)
	assert.Equal(t, 41234, *req.DestinationPort)
}

func TestSystemsRegister(t *testing.T) {
	env := newTestEnv(t)
	systems := loadedSystems(t, env)

	env.setMockResponse("/api/v1/systems.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"system":{"name":"worker","hostname":"worker.example.com","destination_id":31,"auto_delete":true}}`, string(body))
		w.Write([]byte(env.systemJSON(20, "worker", "")))
	})

	s, err := systems.Register(context.Background(), Registration{
		Name:        "worker",
		HostName:    ptr("worker.example.com"),
		Destination: &Destination{ID: 31},
		AutoDelete:  ptr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, 20, s.ID)
	assert.Equal(t, 4, systems.Len())

	_, err = systems.Register(context.Background(), Registration{Name: "bad"})
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Equal(t, 4, systems.Len())
}

func TestSystemUpdate(t *testing.T) {
	env := newTestEnv(t)
	systems := loadedSystems(t, env)
	s, err := systems.ByID(11)
	require.NoError(t, err)

	_, err = s.Update(context.Background(), SystemUpdate{})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	env.setMockResponse("/api/v1/systems/11.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var p map[string]map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, map[string]any{"name": "web-one", "auto_delete": false}, p["system"])
		w.Write([]byte(env.systemJSON(11, "web-one", "2024-01-02T10:00:00Z")))
	})

	updated, err := s.Update(context.Background(), SystemUpdate{Name: ptr("web-one"), AutoDelete: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, "web-one", updated.Name)

	got, err := systems.ByID(11)
	require.NoError(t, err)
	assert.Same(t, updated, got)
}

func TestSystemReload(t *testing.T) {
	env := newTestEnv(t)
	systems := loadedSystems(t, env)
	s, err := systems.ByID(13)
	require.NoError(t, err)

	env.setJSON("/api/v1/systems/13.json", http.StatusOK, env.systemJSON(13, "idle", "2024-02-01T00:00:00Z"))
	reloaded, err := s.Reload(context.Background())
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastEvent)
	assert.Nil(t, s.LastEvent)
	assert.Equal(t, 3, systems.Len())
}

func TestSystemsRemove(t *testing.T) {
	env := newTestEnv(t)
	systems := loadedSystems(t, env)

	var deleted []string
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		deleted = append(deleted, r.URL.Path)
		w.Write([]byte(`{"message":"System deleted"}`))
	}
	env.setMockResponse("/api/v1/systems/11.json", handler)
	env.setMockResponse("/api/v1/systems/13.json", handler)

	require.NoError(t, systems.RemoveByName(context.Background(), "web-1"))
	require.NoError(t, systems.RemoveAt(context.Background(), -1))
	assert.Equal(t, []string{"/api/v1/systems/11.json", "/api/v1/systems/13.json"}, deleted)
	require.Equal(t, 1, systems.Len())

	err := systems.Remove(context.Background(), &System{ID: 11})
	assert.ErrorIs(t, err, ErrNotFound)

	err = systems.RemoveAt(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSystemsJoinLeaveGroup(t *testing.T) {
	env := newTestEnv(t)
	systems := loadedSystems(t, env)
	s, err := systems.ByID(12)
	require.NoError(t, err)

	for _, action := range []string{"join", "leave"} {
		env.setMockResponse("/api/v1/systems/12/"+action+".json", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"group_id":7}`, string(body))
			w.Write([]byte(`{}`))
		})
	}

	require.NoError(t, systems.JoinGroup(context.Background(), s, 7))
	require.NoError(t, systems.LeaveGroup(context.Background(), s, 7))
}
