// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/JanDamek/jervis-sub013/internal/database"
	"github.com/JanDamek/jervis-sub013/internal/models"
	"github.com/JanDamek/jervis-sub013/internal/provider"
	"github.com/JanDamek/jervis-sub013/internal/store"
)

// fakeCursors is an in-memory CursorOps with the same monotonic semantics
// as the persistent store.
type fakeCursors struct {
	cursors map[string]*models.Cursor
}

func newFakeCursors() *fakeCursors {
	return &fakeCursors{cursors: make(map[string]*models.Cursor)}
}

func (f *fakeCursors) key(connID, handlerID string) string { return connID + ":" + handlerID }

func (f *fakeCursors) Get(ctx context.Context, connID, handlerID string) (*models.Cursor, error) {
	c, ok := f.cursors[f.key(connID, handlerID)]
	if !ok {
		return nil, store.ErrCursorNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCursors) upsert(connID, handlerID string, apply func(*models.Cursor) bool) error {
	key := f.key(connID, handlerID)
	c, ok := f.cursors[key]
	if !ok {
		c = &models.Cursor{ConnectionID: connID, HandlerID: handlerID}
	}
	if apply(c) {
		c.UpdatedAt = time.Now().UTC()
		f.cursors[key] = c
	}
	return nil
}

func (f *fakeCursors) AdvanceTimestamp(ctx context.Context, connID, handlerID string, ts time.Time) error {
	return f.upsert(connID, handlerID, func(c *models.Cursor) bool {
		if c.LastTimestamp != nil && !ts.After(*c.LastTimestamp) {
			return false
		}
		c.LastTimestamp = &ts
		return true
	})
}

func (f *fakeCursors) AdvanceNumericID(ctx context.Context, connID, handlerID string, id int64) error {
	return f.upsert(connID, handlerID, func(c *models.Cursor) bool {
		if c.LastNumericID != nil && id <= *c.LastNumericID {
			return false
		}
		c.LastNumericID = &id
		return true
	})
}

func (f *fakeCursors) AdvanceSequence(ctx context.Context, connID, handlerID string, seq int64) error {
	return f.upsert(connID, handlerID, func(c *models.Cursor) bool {
		if c.LastSequence != nil && seq <= *c.LastSequence {
			return false
		}
		c.LastSequence = &seq
		return true
	})
}

// fakeSink stores item hashes in memory and can fail selected keys.
type fakeSink struct {
	seen     map[string]string
	failKeys map[string]bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{seen: make(map[string]string), failKeys: make(map[string]bool)}
}

func (f *fakeSink) UpsertItem(ctx context.Context, connID string, item models.Item) (database.UpsertResult, error) {
	key := connID + "/" + item.ExternalKey()
	if f.failKeys[item.ExternalKey()] {
		return database.ResultUnchanged, errors.New("storage unavailable")
	}
	content := fmt.Sprintf("%v", item)
	prev, ok := f.seen[key]
	f.seen[key] = content
	switch {
	case !ok:
		return database.ResultCreated, nil
	case prev == content:
		return database.ResultUnchanged, nil
	default:
		return database.ResultUpdated, nil
	}
}

// scriptedClient returns a fixed item batch and records the queries it saw.
type scriptedClient struct {
	items   []models.Item
	err     error
	queries []provider.Query
}

func (s *scriptedClient) FetchChangedItems(ctx context.Context, capability models.Capability, q provider.Query) ([]models.Item, error) {
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

func testConn() *models.Connection {
	return &models.Connection{ID: "c1", Provider: "jira", State: models.HealthValid}
}

func at(minute int) time.Time {
	return time.Date(2026, 3, 1, 10, minute, 0, 0, time.UTC)
}

func TestFirstPollCreatesItemsAndCursor(t *testing.T) {
	ctx := context.Background()
	cursors := newFakeCursors()
	engine := NewEngine(cursors, newFakeSink(), nil)

	client := &scriptedClient{items: []models.Item{
		models.IssueItem{Key: "A", Summary: "a", UpdatedAt: at(1)},
		models.IssueItem{Key: "B", Summary: "b", UpdatedAt: at(5)},
	}}

	outcome := engine.RunHandler(ctx, testConn(), IssueHandler{}, models.IndexAllFilter(nil), client)

	if outcome.Created != 2 || outcome.Errors != 0 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if client.queries[0].SinceTimestamp != nil {
		t.Error("first poll must not carry a since bound")
	}

	cur, err := cursors.Get(ctx, "c1", "bugtracker-issues")
	if err != nil {
		t.Fatalf("cursor not created: %v", err)
	}
	if !cur.LastTimestamp.Equal(at(5)) {
		t.Errorf("cursor at %v, expected %v", cur.LastTimestamp, at(5))
	}
}

func TestSecondPollSkipsUnchangedAndAdvances(t *testing.T) {
	ctx := context.Background()
	cursors := newFakeCursors()
	sink := newFakeSink()
	engine := NewEngine(cursors, sink, nil)

	first := &scriptedClient{items: []models.Item{
		models.IssueItem{Key: "A", Summary: "a", UpdatedAt: at(1)},
	}}
	engine.RunHandler(ctx, testConn(), IssueHandler{}, models.IndexAllFilter(nil), first)

	// Provider window overlap re-reports A unchanged next to the new C.
	second := &scriptedClient{items: []models.Item{
		models.IssueItem{Key: "A", Summary: "a", UpdatedAt: at(1)},
		models.IssueItem{Key: "C", Summary: "c", UpdatedAt: at(9)},
	}}
	outcome := engine.RunHandler(ctx, testConn(), IssueHandler{}, models.IndexAllFilter(nil), second)

	if outcome.Created != 1 || outcome.Skipped != 1 || outcome.Errors != 0 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if second.queries[0].SinceTimestamp == nil || !second.queries[0].SinceTimestamp.Equal(at(1)) {
		t.Errorf("second poll should resume from %v, got %v", at(1), second.queries[0].SinceTimestamp)
	}

	cur, _ := cursors.Get(ctx, "c1", "bugtracker-issues")
	if !cur.LastTimestamp.Equal(at(9)) {
		t.Errorf("cursor at %v, expected %v", cur.LastTimestamp, at(9))
	}
}

func TestFetchErrorLeavesCursorUntouched(t *testing.T) {
	ctx := context.Background()
	cursors := newFakeCursors()
	engine := NewEngine(cursors, newFakeSink(), nil)

	client := &scriptedClient{err: errors.New("connection refused")}
	outcome := engine.RunHandler(ctx, testConn(), IssueHandler{}, models.IndexAllFilter(nil), client)

	if outcome.Errors != 1 || outcome.AuthFailure {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if _, err := cursors.Get(ctx, "c1", "bugtracker-issues"); !errors.Is(err, store.ErrCursorNotFound) {
		t.Error("cursor written despite fetch failure")
	}
}

func TestAuthErrorIsFlagged(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(newFakeCursors(), newFakeSink(), nil)

	client := &scriptedClient{err: fmt.Errorf("fetch: %w",
		&provider.AuthError{ConnectionID: "c1", Err: errors.New("401")})}
	outcome := engine.RunHandler(ctx, testConn(), IssueHandler{}, models.IndexAllFilter(nil), client)

	if !outcome.AuthFailure || outcome.Errors != 1 {
		t.Fatalf("auth failure not flagged: %+v", outcome)
	}
}

func TestFailedUpsertStillAdvancesCursor(t *testing.T) {
	ctx := context.Background()
	cursors := newFakeCursors()
	sink := newFakeSink()
	sink.failKeys["B"] = true
	engine := NewEngine(cursors, sink, nil)

	client := &scriptedClient{items: []models.Item{
		models.IssueItem{Key: "A", Summary: "a", UpdatedAt: at(1)},
		models.IssueItem{Key: "B", Summary: "b", UpdatedAt: at(5)},
	}}
	outcome := engine.RunHandler(ctx, testConn(), IssueHandler{}, models.IndexAllFilter(nil), client)

	if outcome.Created != 1 || outcome.Errors != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	// At-least-once: the cursor moves past the failed item; its next
	// content change will re-surface it.
	cur, err := cursors.Get(ctx, "c1", "bugtracker-issues")
	if err != nil {
		t.Fatalf("cursor missing: %v", err)
	}
	if !cur.LastTimestamp.Equal(at(5)) {
		t.Errorf("cursor at %v, expected %v", cur.LastTimestamp, at(5))
	}
}

func TestEmptyWindowLeavesCursor(t *testing.T) {
	ctx := context.Background()
	cursors := newFakeCursors()
	engine := NewEngine(cursors, newFakeSink(), nil)

	seeded := &scriptedClient{items: []models.Item{
		models.MailMessageItem{MessageID: "m1", UID: 100, ReceivedAt: at(0)},
	}}
	engine.RunHandler(ctx, testConn(), MailMessageHandler{}, models.IndexAllFilter(nil), seeded)

	empty := &scriptedClient{}
	outcome := engine.RunHandler(ctx, testConn(), MailMessageHandler{}, models.IndexAllFilter(nil), empty)
	if outcome.Discovered != 0 || outcome.Errors != 0 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	cur, _ := cursors.Get(ctx, "c1", "mail-messages")
	if cur.LastNumericID == nil || *cur.LastNumericID != 100 {
		t.Errorf("cursor moved on empty window: %v", cur.LastNumericID)
	}
	if empty.queries[0].AfterNumericID == nil || *empty.queries[0].AfterNumericID != 100 {
		t.Errorf("query did not resume from UID 100: %v", empty.queries[0].AfterNumericID)
	}
}

func TestSequenceHandlerAdvancesOnMaxSeen(t *testing.T) {
	ctx := context.Background()
	cursors := newFakeCursors()
	engine := NewEngine(cursors, newFakeSink(), nil)

	client := &scriptedClient{items: []models.Item{
		models.RepoFileItem{Repository: "r", Path: "a.go", ChangeSeq: 12},
		models.RepoFileItem{Repository: "r", Path: "b.go", ChangeSeq: 7},
	}}
	engine.RunHandler(ctx, testConn(), RepoFileHandler{}, models.IndexAllFilter(nil), client)

	cur, err := cursors.Get(ctx, "c1", "repository-files")
	if err != nil {
		t.Fatalf("cursor missing: %v", err)
	}
	if cur.LastSequence == nil || *cur.LastSequence != 12 {
		t.Errorf("expected sequence 12, got %v", cur.LastSequence)
	}
}
