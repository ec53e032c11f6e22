// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-shiftsync.
//
// go-shiftsync is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
	"github.com/jeremyhahn/go-shiftsync/pkg/audit"
	"github.com/jeremyhahn/go-shiftsync/pkg/changelog"
	"github.com/jeremyhahn/go-shiftsync/pkg/common"
	"github.com/jeremyhahn/go-shiftsync/pkg/config"
	"github.com/jeremyhahn/go-shiftsync/pkg/conflict"
	"github.com/jeremyhahn/go-shiftsync/pkg/events"
	"github.com/jeremyhahn/go-shiftsync/pkg/persist"
	"github.com/jeremyhahn/go-shiftsync/pkg/server/ws"
	"github.com/jeremyhahn/go-shiftsync/pkg/snapshot"
	"github.com/jeremyhahn/go-shiftsync/pkg/staff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, persistent bool) *config.Config {
	t.Helper()
	cfg, err := config.Load(config.New())
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.Snapshot.Dir = filepath.Join(dir, "snapshots")
	cfg.ChangeLog.File = filepath.Join(dir, "changes.jsonl")
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.RateLimit = 0
	if persistent {
		cfg.Persist.Driver = persist.DriverSQLite
		cfg.Persist.DSN = filepath.Join(dir, "shiftsync.db")
	}
	return cfg
}

func testOptions() Options {
	return Options{
		Logger:      adapters.NewNoOpLogger(),
		AuditLogger: audit.NewNoOpAuditLogger(),
		GinMode:     gin.TestMode,
	}
}

func newTestApp(t *testing.T, cfg *config.Config, opts Options) *App {
	t.Helper()
	app, err := NewApp(context.Background(), cfg, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	return app
}

func createStaff(t *testing.T, app *App, name string) *staff.Member {
	t.Helper()
	m, err := app.Store.CreateStaff(context.Background(), &staff.CreateRequest{
		Name:       name,
		Position:   "Host",
		Department: "Front",
		Type:       staff.TypeRegular,
		Period:     1,
	})
	require.NoError(t, err)
	return m
}

func TestNewAppRequiresConfig(t *testing.T) {
	_, err := NewApp(context.Background(), nil, testOptions())
	assert.Error(t, err)
}

func TestNewAppWithoutPersistence(t *testing.T) {
	cfg := testConfig(t, false)
	app := newTestApp(t, cfg, testOptions())

	assert.Nil(t, app.Persister)
	assert.Nil(t, app.WriteBehind)
	assert.IsType(t, &snapshot.FileExporter{}, app.Snapshots)
	assert.Equal(t, conflict.LastWriterWins, app.Resolver.GetStrategy())
	assert.Equal(t, "127.0.0.1:8080", app.Server.Address())

	createStaff(t, app, "Ada")
	assert.Equal(t, int64(1), app.Store.GetVersion())
	assert.Equal(t, 1, app.ChangeLog.Len())

	require.NoError(t, app.Shutdown(context.Background()))
	require.NoError(t, app.Shutdown(context.Background()))

	entries, err := changelog.ReadFile(cfg.ChangeLog.File)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].Clock)
}

func TestAppPersistsAcrossRestarts(t *testing.T) {
	cfg := testConfig(t, true)

	first, err := NewApp(context.Background(), cfg, testOptions())
	require.NoError(t, err)
	ada := createStaff(t, first, "Ada")
	bob := createStaff(t, first, "Bob")
	_, err = first.Store.UpdateStaff(context.Background(), ada.ID, &staff.UpdateRequest{Name: ptr("Ada L."), Version: 1})
	require.NoError(t, err)
	require.NoError(t, first.Store.DeleteStaff(context.Background(), bob.ID))
	require.NoError(t, first.Shutdown(context.Background()))

	second := newTestApp(t, cfg, testOptions())
	assert.Equal(t, int64(4), second.Store.GetVersion())
	assert.Equal(t, 1, second.Store.Count())

	got, err := second.Store.GetStaff(context.Background(), ada.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", got.Name)
	assert.Equal(t, int64(2), got.Version)
}

func TestNewAppRestoreFrom(t *testing.T) {
	cfg := testConfig(t, false)
	store := &snapshot.FileExporter{Dir: cfg.Snapshot.Dir}
	location, err := store.Export(context.Background(), &snapshot.Document{
		Clock: 12,
		Staff: []*staff.Member{{ID: "s1", Name: "Cy", Type: staff.TypePartTime, Period: 2, Version: 4}},
	})
	require.NoError(t, err)

	opts := testOptions()
	opts.RestoreFrom = location
	app := newTestApp(t, cfg, opts)

	assert.Equal(t, int64(13), app.Store.GetVersion())
	got, err := app.Store.GetStaff(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "Cy", got.Name)
	assert.Zero(t, app.ChangeLog.Len())
}

func TestNewAppRestoreFromReplacesPersistedRows(t *testing.T) {
	cfg := testConfig(t, true)

	first, err := NewApp(context.Background(), cfg, testOptions())
	require.NoError(t, err)
	ada := createStaff(t, first, "Ada")
	bob := createStaff(t, first, "Bob")
	require.NoError(t, first.Shutdown(context.Background()))

	restored := bob.Clone()
	restored.Name = "Bob From Snapshot"
	location, err := (&snapshot.FileExporter{Dir: cfg.Snapshot.Dir}).Export(context.Background(), &snapshot.Document{
		Clock: 2,
		Staff: []*staff.Member{restored},
	})
	require.NoError(t, err)

	opts := testOptions()
	opts.RestoreFrom = location
	second, err := NewApp(context.Background(), cfg, opts)
	require.NoError(t, err)
	assert.Equal(t, int64(3), second.Store.GetVersion())
	assert.Equal(t, 1, second.Store.Count())
	require.NoError(t, second.Shutdown(context.Background()))

	third := newTestApp(t, cfg, testOptions())
	assert.Equal(t, int64(3), third.Store.GetVersion())
	assert.Equal(t, 1, third.Store.Count())

	_, err = third.Store.GetStaff(context.Background(), ada.ID)
	assert.True(t, common.IsKind(err, common.KindNotFound))
	got, err := third.Store.GetStaff(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob From Snapshot", got.Name)

	createStaff(t, third, "Cy")
	assert.Equal(t, int64(4), third.Store.GetVersion())
}

func TestNewAppRestoreFromMissingSnapshot(t *testing.T) {
	cfg := testConfig(t, false)
	opts := testOptions()
	opts.RestoreFrom = filepath.Join(t.TempDir(), "nope.json")

	_, err := NewApp(context.Background(), cfg, opts)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReloadAppliesRuntimeSettings(t *testing.T) {
	cfg := testConfig(t, false)
	app := newTestApp(t, cfg, testOptions())

	next := *cfg
	next.Conflict.Strategy = conflict.MergeChanges
	next.Clients.Heartbeat = 5 * time.Second
	next.LogLevel = "debug"
	app.Reload(&next)

	assert.Equal(t, conflict.MergeChanges, app.Resolver.GetStrategy())
	assert.Equal(t, 5*time.Second, app.Registry.HeartbeatWindow())
	assert.Equal(t, adapters.DebugLevel, app.Logger.GetLevel())

	next.Conflict.Strategy = "bogus"
	next.Clients.Heartbeat = 0
	app.Reload(&next)
	assert.Equal(t, conflict.MergeChanges, app.Resolver.GetStrategy())
	assert.Equal(t, 5*time.Second, app.Registry.HeartbeatWindow())
}

func TestRunServesAndNotifiesOnShutdown(t *testing.T) {
	cfg := testConfig(t, false)
	app := newTestApp(t, cfg, testOptions())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx, l) }()

	base := "http://" + l.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+l.Addr().String()+"/api/v1/ws?client_id=watcher", nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello ws.Reply
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "watcher", hello.ClientID)
	require.Eventually(t, func() bool { return app.Registry.GetClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var notice events.Event
	require.NoError(t, conn.ReadJSON(&notice))
	assert.Equal(t, events.TopicSystem, notice.Type)
	assert.Equal(t, ShutdownNotice, notice.Data["reason"])

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Zero(t, app.Registry.GetClientCount())
}

func TestExportAndRestoreSnapshot(t *testing.T) {
	cfg := testConfig(t, true)
	ctx := context.Background()
	logger := adapters.NewNoOpLogger()

	p, err := persist.Open(ctx, cfg.Persist.Driver, cfg.Persist.DSN, logger)
	require.NoError(t, err)
	require.NoError(t, p.Upsert(ctx, &staff.Member{ID: "a", Name: "Ada", Type: staff.TypeRegular, Version: 1}, 1))
	require.NoError(t, p.Upsert(ctx, &staff.Member{ID: "b", Name: "Bob", Type: staff.TypeRegular, Version: 1}, 2))
	require.NoError(t, p.Close())

	store := &snapshot.FileExporter{Dir: cfg.Snapshot.Dir}
	location, doc, err := ExportSnapshot(ctx, cfg, store, logger)
	require.NoError(t, err)
	assert.FileExists(t, location)
	assert.Equal(t, int64(2), doc.Clock)
	assert.Len(t, doc.Staff, 2)

	p, err = persist.Open(ctx, cfg.Persist.Driver, cfg.Persist.DSN, logger)
	require.NoError(t, err)
	require.NoError(t, p.Upsert(ctx, &staff.Member{ID: "c", Name: "Cy", Type: staff.TypeTemporary, Version: 1}, 3))
	require.NoError(t, p.Upsert(ctx, &staff.Member{ID: "a", Name: "Ada Changed", Type: staff.TypeRegular, Version: 2}, 4))
	require.NoError(t, p.Close())

	restored, err := RestoreSnapshot(ctx, cfg, store, location, logger)
	require.NoError(t, err)
	assert.Equal(t, int64(5), restored.Clock)

	p, err = persist.Open(ctx, cfg.Persist.Driver, cfg.Persist.DSN, logger)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()
	members, clock, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), clock)
	require.Len(t, members, 2)
	assert.Equal(t, "Ada", members[0].Name)
	assert.Equal(t, "b", members[1].ID)
}

func TestOfflineSnapshotCommandsRequirePersistence(t *testing.T) {
	cfg := testConfig(t, false)
	ctx := context.Background()
	store := &snapshot.FileExporter{Dir: cfg.Snapshot.Dir}

	_, _, err := ExportSnapshot(ctx, cfg, store, nil)
	assert.ErrorIs(t, err, ErrPersistenceRequired)

	_, err = RestoreSnapshot(ctx, cfg, store, "", nil)
	assert.ErrorIs(t, err, ErrSnapshotLocationRequired)
}

func TestNewAppWithTokens(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.Server.Tokens = map[string]string{"scheduler": "s3cret"}
	app := newTestApp(t, cfg, testOptions())

	w := httptest.NewRecorder()
	app.Server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/staff", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/staff", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w = httptest.NewRecorder()
	app.Server.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewAppRejectsMissingCertificate(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.Server.TLSCert = filepath.Join(t.TempDir(), "cert.pem")
	cfg.Server.TLSKey = filepath.Join(t.TempDir(), "key.pem")

	_, err := NewApp(context.Background(), cfg, testOptions())
	assert.ErrorIs(t, err, adapters.ErrInvalidCertificate)
}

func ptr[T any](v T) *T { return &v }
