package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
worker:
  id: 7
  guid: 9f2c-worker
  zone: east
  roles: [automate, ems_operations]
  poll: "@every 5s"
  batch: 25
  lease: 90m
queue:
  backend: sqlite
  dsn: file:automate.db
delivery:
  timeout: 30m
engine:
  url: http://engine.internal:4000
  timeout: 10s
  headers:
    X-Api-Key: secret
log:
  level: debug
  format: json
metrics:
  enabled: true
  addr: ":9102"
identity:
  groups:
    - id: 2
      description: EvmGroup-super_administrator
  users:
    - id: 1
      userid: admin
      name: Administrator
      group: 2
`

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendMemory, cfg.Queue.Backend)
	assert.Equal(t, automate.DefaultInstanceName, cfg.Delivery.Instance)
	assert.Equal(t, 60*time.Minute, cfg.Delivery.Timeout)
	assert.Equal(t, identity.AutomateRole, cfg.Delivery.Role)
	assert.Equal(t, "@every 2s", cfg.Worker.Poll)
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "9f2c-worker", cfg.Worker.GUID)
	assert.Equal(t, []string{"automate", "ems_operations"}, cfg.Worker.Roles)
	assert.Equal(t, 90*time.Minute, cfg.Worker.Lease)
	assert.Equal(t, 25, cfg.Worker.Batch)
	assert.Equal(t, "file:automate.db", cfg.Queue.DSN)
	assert.Equal(t, "automate_queue", cfg.Queue.Table, "default kept")
	assert.Equal(t, 30*time.Minute, cfg.Delivery.Timeout)
	assert.Equal(t, automate.DefaultInstanceName, cfg.Delivery.Instance, "default kept")
	assert.Equal(t, "secret", cfg.Engine.Headers["X-Api-Key"])
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Metrics.Enabled)

	qd := cfg.QueueDefaults()
	assert.Equal(t, "automate", qd.Role)
	assert.Equal(t, 30*time.Minute, qd.Timeout)
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "automate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "east", cfg.Worker.Zone)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, ErrCodeInvalidConfig, automate.ErrorCode(err))
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown backend", "queue: {backend: kafka}", "Queue.Backend"},
		{"sqlite without dsn", "queue: {backend: sqlite}", "Queue.DSN"},
		{"redis without addr", "queue: {backend: redis}", "Queue.RedisAddr"},
		{"bad schedule", "worker: {poll: whenever}", "Worker.Poll"},
		{"bad engine url", "engine: {url: 'not a url'}", "Engine.URL"},
		{"bad level", "log: {level: loud}", "Log.Level"},
		{"empty guid", "worker: {guid: ''}", "Worker.GUID"},
		{"user without userid", "identity: {users: [{id: 3}]}", "UserID"},
		{"unknown group", "identity: {users: [{id: 3, userid: bob, group: 9}]}", "unknown group 9"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.Equal(t, ErrCodeInvalidConfig, automate.ErrorCode(err))
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("worker: ["))
	assert.Equal(t, ErrCodeInvalidConfig, automate.ErrorCode(err))
}

func TestServerAndUsers(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	srv := cfg.Server()
	assert.Equal(t, "9f2c-worker", srv.GUID)
	assert.True(t, srv.HasActiveRole("AUTOMATE"))

	store := cfg.Users()
	user, err := store.FindUser(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, "admin", user.UserID)
	require.NotNil(t, user.CurrentGroup)
	assert.Equal(t, int64(2), user.CurrentGroup.ID)

	group, err := store.FindGroup(t.Context(), 2)
	require.NoError(t, err)
	assert.Equal(t, "EvmGroup-super_administrator", group.Description)
}
