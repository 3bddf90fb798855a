// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/JanDamek/jervis-sub013/internal/config"
	"github.com/JanDamek/jervis-sub013/internal/database"
	"github.com/JanDamek/jervis-sub013/internal/models"
	"github.com/JanDamek/jervis-sub013/internal/provider"
	"github.com/JanDamek/jervis-sub013/internal/store"
	"github.com/JanDamek/jervis-sub013/internal/syncer"
)

// fakeConnections is an in-memory ConnectionSource tracking state edges.
type fakeConnections struct {
	mu    sync.Mutex
	conns map[string]*models.Connection
}

func newFakeConnections(conns ...*models.Connection) *fakeConnections {
	f := &fakeConnections{conns: make(map[string]*models.Connection)}
	for _, c := range conns {
		if c.State == "" {
			c.State = models.HealthValid
		}
		f.conns[c.ID] = c
	}
	return f
}

func (f *fakeConnections) ListValid(ctx context.Context) ([]*models.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Connection
	for _, c := range f.conns {
		if c.State == models.HealthValid {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeConnections) Get(ctx context.Context, id string) (*models.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conns[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *c
	return &copied, nil
}

func (f *fakeConnections) SetState(ctx context.Context, id string, state models.HealthState) (models.HealthState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conns[id]
	if !ok {
		return "", errors.New("not found")
	}
	previous := c.State
	c.State = state
	return previous, nil
}

type fakeEscalations struct {
	mu      sync.Mutex
	created []*models.Escalation
}

func (f *fakeEscalations) Create(ctx context.Context, clientID, connectionID, reason string) (*models.Escalation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	esc := &models.Escalation{ID: "e", ClientID: clientID, ConnectionID: connectionID, Reason: reason}
	f.created = append(f.created, esc)
	return esc, nil
}

func (f *fakeEscalations) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeClients struct {
	clients []*models.ClientScope
}

func (f *fakeClients) ClientsForConnection(ctx context.Context, connectionID string) ([]*models.ClientScope, error) {
	return f.clients, nil
}

type fakeScopeSource struct {
	clients []*models.ClientScope
}

func (f *fakeScopeSource) ListClients(ctx context.Context) ([]*models.ClientScope, error) {
	return f.clients, nil
}

func (f *fakeScopeSource) ListProjectsByClient(ctx context.Context, clientID string) ([]*models.ProjectScope, error) {
	return nil, nil
}

// blockingClient parks fetches until released so tests can observe
// in-flight behavior.
type blockingClient struct {
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	fetches int
}

func (b *blockingClient) FetchChangedItems(ctx context.Context, capability models.Capability, q provider.Query) ([]models.Item, error) {
	b.mu.Lock()
	b.fetches++
	b.mu.Unlock()
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	return nil, nil
}

type okClient struct {
	mu    sync.Mutex
	calls int
}

func (o *okClient) FetchChangedItems(ctx context.Context, capability models.Capability, q provider.Query) ([]models.Item, error) {
	o.mu.Lock()
	o.calls++
	o.mu.Unlock()
	return nil, nil
}

type authFailClient struct {
	mu    sync.Mutex
	calls int
}

func (a *authFailClient) FetchChangedItems(ctx context.Context, capability models.Capability, q provider.Query) ([]models.Item, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return nil, &provider.AuthError{ConnectionID: "c1", Err: errors.New("401")}
}

// memSink is a trivial ItemSink for scheduler-level tests.
type memSink struct{}

func (memSink) UpsertItem(ctx context.Context, connectionID string, item models.Item) (database.UpsertResult, error) {
	return database.ResultCreated, nil
}

// memCursors is a no-persistence CursorOps. Get reports the store's
// not-found sentinel so the engine treats every window as a first poll.
type memCursors struct{}

func (memCursors) Get(ctx context.Context, connectionID, handlerID string) (*models.Cursor, error) {
	return nil, store.ErrCursorNotFound
}
func (memCursors) AdvanceTimestamp(ctx context.Context, connectionID, handlerID string, ts time.Time) error {
	return nil
}
func (memCursors) AdvanceNumericID(ctx context.Context, connectionID, handlerID string, id int64) error {
	return nil
}
func (memCursors) AdvanceSequence(ctx context.Context, connectionID, handlerID string, seq int64) error {
	return nil
}

func schedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		Tick:            30 * time.Second,
		StartupDelay:    time.Minute,
		DefaultInterval: 30 * time.Minute,
		Intervals:       map[string]time.Duration{"bugtracker": 10 * time.Minute},
	}
}

func indexAllScopes() *fakeScopeSource {
	return &fakeScopeSource{clients: []*models.ClientScope{{
		ID: "acme",
		Bindings: map[models.Capability]models.CapabilityBinding{
			models.CapabilityBugtracker: {ConnectionID: "c1"},
		},
	}}}
}

func newScheduler(conns *fakeConnections, escalations *fakeEscalations, scopes *fakeScopeSource, clientFor provider.Factory) *Scheduler {
	reg := provider.NewRegistry()
	if clientFor != nil {
		reg.Register("jira", clientFor)
	}
	engine := syncer.NewEngine(memCursors{}, memSink{}, nil)
	var lookup ClientLookup = &fakeClients{clients: scopes.clients}
	return New(
		schedulerConfig(),
		config.ProviderConfig{RatePerSecond: 1000, RateBurst: 100},
		conns,
		escalations,
		lookup,
		syncer.NewResolver(scopes),
		engine,
		syncer.NewHandlerSet(syncer.DefaultHandlers()...),
		reg,
	)
}

func bugtrackerConn() *models.Connection {
	return &models.Connection{
		ID:           "c1",
		Name:         "Jira",
		Provider:     "jira",
		Capabilities: []models.Capability{models.CapabilityBugtracker},
		AuthType:     models.AuthAPIToken,
	}
}

func TestCycleSkipsConnectionWithPollInFlight(t *testing.T) {
	blocking := &blockingClient{started: make(chan struct{}, 1), release: make(chan struct{})}
	conns := newFakeConnections(bugtrackerConn())
	sched := newScheduler(conns, &fakeEscalations{}, indexAllScopes(), func(conn *models.Connection) (provider.Client, error) {
		return blocking, nil
	})

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		sched.RunCycle(ctx)
		close(done)
	}()
	<-blocking.started

	// The connection is busy: a second cycle must skip it without queueing.
	sched.state.MarkPolled("c1", models.CapabilityBugtracker, time.Time{}) // force due
	sched.RunCycle(ctx)

	blocking.mu.Lock()
	fetches := blocking.fetches
	blocking.mu.Unlock()
	if fetches != 1 {
		t.Errorf("expected 1 fetch while blocked, got %d", fetches)
	}

	close(blocking.release)
	<-done
}

func TestIntervalGating(t *testing.T) {
	client := &okClient{}
	conns := newFakeConnections(bugtrackerConn())
	sched := newScheduler(conns, &fakeEscalations{}, indexAllScopes(), func(conn *models.Connection) (provider.Client, error) {
		return client, nil
	})

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sched.now = func() time.Time { return base }
	sched.RunCycle(context.Background())
	if client.calls != 1 {
		t.Fatalf("expected 1 fetch on first cycle, got %d", client.calls)
	}

	// Well inside the 10 minute bugtracker interval: nothing is due.
	sched.now = func() time.Time { return base.Add(time.Minute) }
	sched.RunCycle(context.Background())
	if client.calls != 1 {
		t.Error("capability polled again before its interval elapsed")
	}

	// Past the interval it runs again.
	sched.now = func() time.Time { return base.Add(11 * time.Minute) }
	sched.RunCycle(context.Background())
	if client.calls != 2 {
		t.Errorf("capability not polled after its interval elapsed, calls=%d", client.calls)
	}
}

func TestEscalationFiresExactlyOncePerEdge(t *testing.T) {
	conns := newFakeConnections(bugtrackerConn())
	escalations := &fakeEscalations{}
	client := &authFailClient{}
	sched := newScheduler(conns, escalations, indexAllScopes(), func(conn *models.Connection) (provider.Client, error) {
		return client, nil
	})

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		sched.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		conn, _ := conns.Get(ctx, "c1")
		sched.pollConnection(ctx, conn, []models.Capability{models.CapabilityBugtracker})
	}

	if got := escalations.count(); got != 1 {
		t.Errorf("expected exactly 1 escalation across repeated failures, got %d", got)
	}
	conn, _ := conns.Get(ctx, "c1")
	if conn.State != models.HealthInvalid {
		t.Errorf("connection not marked invalid: %s", conn.State)
	}

	// A repaired connection that fails again escalates again: one per edge.
	_, _ = conns.SetState(ctx, "c1", models.HealthValid)
	conn, _ = conns.Get(ctx, "c1")
	sched.pollConnection(ctx, conn, []models.Capability{models.CapabilityBugtracker})
	if got := escalations.count(); got != 2 {
		t.Errorf("expected escalation on second edge, got %d", got)
	}
}

func TestEscalationSkippedWhenNoClientResolvable(t *testing.T) {
	conns := newFakeConnections(bugtrackerConn())
	escalations := &fakeEscalations{}

	// The scope resolver still grants the poll, but no client scope is
	// addressable for the escalation.
	reg := provider.NewRegistry()
	reg.Register("jira", func(conn *models.Connection) (provider.Client, error) {
		return &authFailClient{}, nil
	})
	sched := New(
		schedulerConfig(),
		config.ProviderConfig{RatePerSecond: 1000, RateBurst: 100},
		conns,
		escalations,
		&fakeClients{},
		syncer.NewResolver(indexAllScopes()),
		syncer.NewEngine(memCursors{}, memSink{}, nil),
		syncer.NewHandlerSet(syncer.DefaultHandlers()...),
		reg,
	)

	ctx := context.Background()
	conn, _ := conns.Get(ctx, "c1")
	sched.pollConnection(ctx, conn, []models.Capability{models.CapabilityBugtracker})

	conn, _ = conns.Get(ctx, "c1")
	if conn.State != models.HealthInvalid {
		t.Errorf("connection not marked invalid: %s", conn.State)
	}
	if escalations.count() != 0 {
		t.Errorf("expected no escalations without a resolvable client, got %d", escalations.count())
	}
}

func TestInvalidConnectionsAreNotPolled(t *testing.T) {
	conn := bugtrackerConn()
	conn.State = models.HealthInvalid
	calls := 0
	sched := newScheduler(newFakeConnections(conn), &fakeEscalations{}, indexAllScopes(), func(conn *models.Connection) (provider.Client, error) {
		calls++
		return &authFailClient{}, nil
	})

	sched.RunCycle(context.Background())
	if calls != 0 {
		t.Errorf("invalid connection was polled %d times", calls)
	}
}

func TestMissingProviderClientSkipsWithoutFailure(t *testing.T) {
	conns := newFakeConnections(bugtrackerConn())
	escalations := &fakeEscalations{}
	sched := newScheduler(conns, escalations, indexAllScopes(), nil) // nothing registered

	sched.RunCycle(context.Background())

	conn, _ := conns.Get(context.Background(), "c1")
	if conn.State != models.HealthValid {
		t.Error("missing provider integration must not invalidate the connection")
	}
	if escalations.count() != 0 {
		t.Error("missing provider integration must not escalate")
	}
}

func TestTriggerConnection(t *testing.T) {
	blocking := &blockingClient{started: make(chan struct{}, 1), release: make(chan struct{})}
	conns := newFakeConnections(bugtrackerConn())
	sched := newScheduler(conns, &fakeEscalations{}, indexAllScopes(), func(conn *models.Connection) (provider.Client, error) {
		return blocking, nil
	})

	ctx := context.Background()

	if _, err := sched.TriggerConnection(ctx, "missing"); !errors.Is(err, ErrConnectionUnknown) {
		t.Errorf("expected ErrConnectionUnknown, got %v", err)
	}

	done := make(chan struct{})
	go func() {
		_, _ = sched.TriggerConnection(ctx, "c1")
		close(done)
	}()
	<-blocking.started

	if _, err := sched.TriggerConnection(ctx, "c1"); !errors.Is(err, ErrPollInFlight) {
		t.Errorf("expected ErrPollInFlight, got %v", err)
	}

	close(blocking.release)
	<-done

	if sched.State().Outcome("c1") == nil {
		t.Error("manual poll left no recorded outcome")
	}
}

func TestStateDueAndAcquire(t *testing.T) {
	s := NewState()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if !s.Due("c1", models.CapabilityWiki, time.Hour, now) {
		t.Error("never-polled capability must be due")
	}
	s.MarkPolled("c1", models.CapabilityWiki, now)
	if s.Due("c1", models.CapabilityWiki, time.Hour, now.Add(30*time.Minute)) {
		t.Error("capability due before interval elapsed")
	}
	if !s.Due("c1", models.CapabilityWiki, time.Hour, now.Add(time.Hour)) {
		t.Error("capability not due after interval elapsed")
	}

	if !s.TryAcquire("c1") {
		t.Fatal("first acquire failed")
	}
	if s.TryAcquire("c1") {
		t.Error("second acquire succeeded while in flight")
	}
	s.Release("c1")
	if !s.TryAcquire("c1") {
		t.Error("acquire failed after release")
	}
}
