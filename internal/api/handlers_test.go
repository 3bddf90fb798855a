// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/JanDamek/jervis-sub013/internal/models"
	"github.com/JanDamek/jervis-sub013/internal/scheduler"
)

type fakeConnections struct {
	conns []*models.Connection
	err   error
}

func (f *fakeConnections) List(ctx context.Context) ([]*models.Connection, error) {
	return f.conns, f.err
}

type fakeTrigger struct {
	outcome *models.PollOutcome
	err     error
	lastID  string
}

func (f *fakeTrigger) TriggerConnection(ctx context.Context, connectionID string) (*models.PollOutcome, error) {
	f.lastID = connectionID
	return f.outcome, f.err
}

type fakeOutcomes struct {
	outcomes []*models.PollOutcome
}

func (f *fakeOutcomes) Outcomes() []*models.PollOutcome { return f.outcomes }

type fakeEscalations struct {
	escalations []*models.Escalation
}

func (f *fakeEscalations) List(ctx context.Context) ([]*models.Escalation, error) {
	return f.escalations, nil
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func testRouter(trigger *fakeTrigger) *Router {
	return NewRouter(
		&fakeConnections{conns: []*models.Connection{{
			ID:       "c1",
			Name:     "Jira",
			Provider: "jira",
			AuthType: models.AuthOAuthToken,
			Token:    "super-secret",
			Username: "svc-account",
			State:    models.HealthValid,
		}}},
		trigger,
		&fakeOutcomes{outcomes: []*models.PollOutcome{{ConnectionID: "c1", Created: 3}}},
		&fakeEscalations{},
		&fakePinger{},
		1000,
	)
}

func doRequest(t *testing.T, router *Router, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	router.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	router := testRouter(&fakeTrigger{})

	if rec := doRequest(t, router, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz: %d", rec.Code)
	}
	if rec := doRequest(t, router, http.MethodGet, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("readyz: %d", rec.Code)
	}
}

func TestListConnectionsRedactsCredentials(t *testing.T) {
	router := testRouter(&fakeTrigger{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/connections")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "super-secret") || strings.Contains(body, "svc-account") {
		t.Error("credentials leaked into the listing")
	}

	var views []connectionView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 || views[0].ID != "c1" || views[0].State != models.HealthValid {
		t.Errorf("unexpected payload: %+v", views)
	}
}

func TestTriggerPollStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"unknown connection", scheduler.ErrConnectionUnknown, http.StatusNotFound},
		{"in flight", scheduler.ErrPollInFlight, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger := &fakeTrigger{
				outcome: &models.PollOutcome{ConnectionID: "c1", Created: 2, StartedAt: time.Now()},
				err:     tt.err,
			}
			router := testRouter(trigger)

			rec := doRequest(t, router, http.MethodPost, "/api/v1/connections/c1/poll")
			if rec.Code != tt.want {
				t.Errorf("status %d, expected %d", rec.Code, tt.want)
			}
			if trigger.lastID != "c1" {
				t.Errorf("trigger called with %q", trigger.lastID)
			}
		})
	}
}

func TestOutcomesEndpoint(t *testing.T) {
	router := testRouter(&fakeTrigger{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/outcomes")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var outcomes []*models.PollOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcomes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Created != 3 {
		t.Errorf("unexpected outcomes: %+v", outcomes)
	}
}

func TestEscalationsEndpointEmptyList(t *testing.T) {
	router := testRouter(&fakeTrigger{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/escalations")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected empty array, got %s", body)
	}
}

func TestReadyFailsWhenStoreDown(t *testing.T) {
	router := testRouter(&fakeTrigger{})
	router.db = &fakePinger{err: context.DeadlineExceeded}

	rec := doRequest(t, router, http.MethodGet, "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status %d", rec.Code)
	}
}
