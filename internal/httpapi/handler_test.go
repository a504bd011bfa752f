package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tuklasdigitallabs/qsys2025-working/internal/models"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/store"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/tasks"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/waitstats"
)

const (
	testTicketID = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	testBranchID = "makati"
)

type fakeStore struct {
	resolveFn   func(ctx context.Context, ref string) (models.Branch, error)
	registerFn  func(ctx context.Context, input store.RegisterTicketInput) (models.Ticket, int, error)
	statusFn    func(ctx context.Context, branchID, ticketID string) (store.TicketStatus, error)
	cancelFn    func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)
	callNextFn  func(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error)
	callFn      func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)
	toggleFn    func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)
	uncallFn    func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)
	seatFn      func(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error)
	skipFn      func(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error)
	listQueueFn func(ctx context.Context, branchID string) ([]models.Ticket, error)
	displayFn   func(ctx context.Context, branchID string) (store.DisplayBoard, error)
	waitStatFn  func(ctx context.Context, branchID, group, bucket string) (models.WaitStat, bool, error)
}

func (f fakeStore) ResolveBranch(ctx context.Context, ref string) (models.Branch, error) {
	if f.resolveFn == nil {
		return models.Branch{BranchID: testBranchID, Code: "MKT", Timezone: "Asia/Manila", CodePadWidth: 2, Active: true}, nil
	}
	return f.resolveFn(ctx, ref)
}

func (f fakeStore) RegisterTicket(ctx context.Context, input store.RegisterTicketInput) (models.Ticket, int, error) {
	if f.registerFn == nil {
		return models.Ticket{}, 0, nil
	}
	return f.registerFn(ctx, input)
}

func (f fakeStore) TicketStatus(ctx context.Context, branchID, ticketID string) (store.TicketStatus, error) {
	if f.statusFn == nil {
		return store.TicketStatus{}, nil
	}
	return f.statusFn(ctx, branchID, ticketID)
}

func (f fakeStore) CancelTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	if f.cancelFn == nil {
		return models.Ticket{}, nil
	}
	return f.cancelFn(ctx, input)
}

func (f fakeStore) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
	if f.callNextFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.callNextFn(ctx, input)
}

func (f fakeStore) CallTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	if f.callFn == nil {
		return models.Ticket{}, nil
	}
	return f.callFn(ctx, input)
}

func (f fakeStore) ToggleCall(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	if f.toggleFn == nil {
		return models.Ticket{}, nil
	}
	return f.toggleFn(ctx, input)
}

func (f fakeStore) UncallTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	if f.uncallFn == nil {
		return models.Ticket{}, nil
	}
	return f.uncallFn(ctx, input)
}

func (f fakeStore) SeatTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	if f.seatFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.seatFn(ctx, input)
}

func (f fakeStore) SkipTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	if f.skipFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.skipFn(ctx, input)
}

func (f fakeStore) ListQueue(ctx context.Context, branchID string) ([]models.Ticket, error) {
	if f.listQueueFn == nil {
		return nil, nil
	}
	return f.listQueueFn(ctx, branchID)
}

func (f fakeStore) DisplayBoard(ctx context.Context, branchID string) (store.DisplayBoard, error) {
	if f.displayFn == nil {
		return store.DisplayBoard{}, nil
	}
	return f.displayFn(ctx, branchID)
}

func (f fakeStore) GetWaitStat(ctx context.Context, branchID, group, bucket string) (models.WaitStat, bool, error) {
	if f.waitStatFn == nil {
		return models.WaitStat{}, false, nil
	}
	return f.waitStatFn(ctx, branchID, group, bucket)
}

type fakeDispatcher struct {
	dailyStats  []tasks.DailyStatPayload
	waitSamples []tasks.WaitSamplePayload
}

func (d *fakeDispatcher) DispatchDailyStat(ctx context.Context, payload tasks.DailyStatPayload) {
	d.dailyStats = append(d.dailyStats, payload)
}

func (d *fakeDispatcher) DispatchWaitSample(ctx context.Context, payload tasks.WaitSamplePayload) {
	d.waitSamples = append(d.waitSamples, payload)
}

func newTestHandler(st fakeStore) (*Handler, *fakeDispatcher) {
	dispatcher := &fakeDispatcher{}
	estimator := waitstats.NewEstimator(st, 0, 0)
	return NewHandler(st, estimator, dispatcher), dispatcher
}

func postJSON(h *Handler, path string, payload interface{}) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var out errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return out
}

func TestRegisterTicketSuccess(t *testing.T) {
	createdAt := time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)
	st := fakeStore{
		registerFn: func(ctx context.Context, input store.RegisterTicketInput) (models.Ticket, int, error) {
			if input.BranchID != testBranchID {
				t.Fatalf("unexpected branch id %q", input.BranchID)
			}
			return models.Ticket{
				TicketID:  testTicketID,
				QueueCode: "A07",
				BranchID:  input.BranchID,
				Group:     models.GroupSmall,
				Name:      input.Name,
				Pax:       input.Pax,
				Status:    models.StatusWaiting,
				CreatedAt: createdAt,
			}, 3, nil
		},
	}
	h, dispatcher := newTestHandler(st)

	resp := postJSON(h, "/api/tickets", map[string]interface{}{
		"branch": "MKT",
		"name":   "Reyes",
		"pax":    2,
	})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var out ticketResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.QueueCode != "A07" || out.Position != 3 || out.TotalInGroup != 3 {
		t.Fatalf("unexpected response: %+v", out)
	}
	// Three tickets ahead at the group fallback of 15 min each.
	if out.ETAMinutes != 45 {
		t.Fatalf("expected eta 45, got %d", out.ETAMinutes)
	}

	if len(dispatcher.dailyStats) != 1 {
		t.Fatalf("expected 1 daily stat, got %d", len(dispatcher.dailyStats))
	}
	stat := dispatcher.dailyStats[0]
	if stat.Action != "reserved" || stat.TicketID != testTicketID || stat.Group != models.GroupSmall {
		t.Fatalf("unexpected daily stat: %+v", stat)
	}
}

func TestRegisterTicketValidation(t *testing.T) {
	h, _ := newTestHandler(fakeStore{})

	cases := []struct {
		name    string
		payload map[string]interface{}
	}{
		{"missing name", map[string]interface{}{"branch": "MKT", "pax": 2}},
		{"zero pax", map[string]interface{}{"branch": "MKT", "name": "Reyes", "pax": 0}},
		{"oversized party", map[string]interface{}{"branch": "MKT", "name": "Reyes", "pax": 51}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(h, "/api/tickets", tc.payload)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", resp.Code)
			}
			if out := decodeError(t, resp); out.Error.Code != "invalid_input" {
				t.Fatalf("expected code invalid_input, got %q", out.Error.Code)
			}
		})
	}
}

func TestRegisterTicketUnknownBranch(t *testing.T) {
	st := fakeStore{
		resolveFn: func(ctx context.Context, ref string) (models.Branch, error) {
			return models.Branch{}, store.ErrBranchNotFound
		},
	}
	h, dispatcher := newTestHandler(st)

	resp := postJSON(h, "/api/tickets", map[string]interface{}{
		"branch": "nowhere",
		"name":   "Reyes",
		"pax":    2,
	})

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
	if out := decodeError(t, resp); out.Error.Code != "unknown_branch" {
		t.Fatalf("expected code unknown_branch, got %q", out.Error.Code)
	}
	if len(dispatcher.dailyStats) != 0 {
		t.Fatalf("expected no stats dispatched, got %d", len(dispatcher.dailyStats))
	}
}

func TestTicketStatusSuccess(t *testing.T) {
	st := fakeStore{
		statusFn: func(ctx context.Context, branchID, ticketID string) (store.TicketStatus, error) {
			return store.TicketStatus{
				Ticket: models.Ticket{
					TicketID:  ticketID,
					QueueCode: "B04",
					Group:     models.GroupMedium,
					Status:    models.StatusWaiting,
					CreatedAt: time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC),
				},
				Position:     2,
				TotalInGroup: 5,
				NowServing:   "B02",
			}, nil
		},
		waitStatFn: func(ctx context.Context, branchID, group, bucket string) (models.WaitStat, bool, error) {
			return models.WaitStat{EMAWaitMin: 12, SampleCount: 40}, true, nil
		},
	}
	h, _ := newTestHandler(st)

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/"+testTicketID+"?branch=MKT", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var out ticketResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Position != 2 || out.TotalInGroup != 5 || out.NowServing != "B02" {
		t.Fatalf("unexpected response: %+v", out)
	}
	if out.ETAMinutes != 24 {
		t.Fatalf("expected eta 24, got %d", out.ETAMinutes)
	}
}

func TestTicketStatusNotFound(t *testing.T) {
	st := fakeStore{
		statusFn: func(ctx context.Context, branchID, ticketID string) (store.TicketStatus, error) {
			return store.TicketStatus{}, store.ErrTicketNotFound
		},
	}
	h, _ := newTestHandler(st)

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/"+testTicketID+"?branch=MKT", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
	if out := decodeError(t, resp); out.Error.Code != "ticket_not_found" {
		t.Fatalf("expected code ticket_not_found, got %q", out.Error.Code)
	}
}

func TestTicketStatusBadID(t *testing.T) {
	h, _ := newTestHandler(fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/not-a-uuid?branch=MKT", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestCancelTicketDispatchesStat(t *testing.T) {
	st := fakeStore{
		cancelFn: func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
			return models.Ticket{
				TicketID: input.TicketID,
				Group:    models.GroupSmall,
				Status:   models.StatusCancelled,
			}, nil
		},
	}
	h, dispatcher := newTestHandler(st)

	resp := postJSON(h, "/api/tickets/"+testTicketID+"/cancel", map[string]string{"branch": "MKT"})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(dispatcher.dailyStats) != 1 || dispatcher.dailyStats[0].Action != "cancelled" {
		t.Fatalf("unexpected stats: %+v", dispatcher.dailyStats)
	}
}

func TestCallNextSuccess(t *testing.T) {
	st := fakeStore{
		callNextFn: func(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
			if input.Group != models.GroupSmall {
				t.Fatalf("unexpected group %q", input.Group)
			}
			return models.Ticket{TicketID: testTicketID, QueueCode: "A03", Status: models.StatusCalled}, true, nil
		},
	}
	h, _ := newTestHandler(st)

	resp := postJSON(h, "/api/staff/call-next", map[string]string{"branch": "MKT", "group": "a"})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCallNextEmptyQueue(t *testing.T) {
	h, _ := newTestHandler(fakeStore{})

	resp := postJSON(h, "/api/staff/call-next", map[string]string{"branch": "MKT", "group": "B"})

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.Code)
	}
}

func TestCallNextGroupAlreadyCalled(t *testing.T) {
	st := fakeStore{
		callNextFn: func(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
			return models.Ticket{}, false, store.ErrAlreadyCalled
		},
	}
	h, _ := newTestHandler(st)

	resp := postJSON(h, "/api/staff/call-next", map[string]string{"branch": "MKT", "group": "A"})

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	if out := decodeError(t, resp); out.Error.Code != "conflict" {
		t.Fatalf("expected code conflict, got %q", out.Error.Code)
	}
}

func TestCallNextInvalidGroup(t *testing.T) {
	h, _ := newTestHandler(fakeStore{})

	resp := postJSON(h, "/api/staff/call-next", map[string]string{"branch": "MKT", "group": "Z"})

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestSeatTicketDispatchesWaitSample(t *testing.T) {
	createdAt := time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)
	seatedAt := createdAt.Add(22 * time.Minute)
	st := fakeStore{
		seatFn: func(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
			return models.Ticket{
				TicketID:  input.TicketID,
				Group:     models.GroupMedium,
				Status:    models.StatusSeated,
				CreatedAt: createdAt,
				SeatedAt:  &seatedAt,
			}, true, nil
		},
	}
	h, dispatcher := newTestHandler(st)

	resp := postJSON(h, "/api/staff/tickets/"+testTicketID+"/seat", map[string]string{"branch": "MKT"})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(dispatcher.dailyStats) != 1 || dispatcher.dailyStats[0].Action != "seated" {
		t.Fatalf("unexpected stats: %+v", dispatcher.dailyStats)
	}
	if len(dispatcher.waitSamples) != 1 {
		t.Fatalf("expected 1 wait sample, got %d", len(dispatcher.waitSamples))
	}
	sample := dispatcher.waitSamples[0]
	if !sample.SeatedAt.Equal(seatedAt) || !sample.CreatedAt.Equal(createdAt) {
		t.Fatalf("unexpected wait sample: %+v", sample)
	}
}

func TestSeatVanishedTicketSkipsStats(t *testing.T) {
	st := fakeStore{
		seatFn: func(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
			return models.Ticket{}, false, nil
		},
	}
	h, dispatcher := newTestHandler(st)

	resp := postJSON(h, "/api/staff/tickets/"+testTicketID+"/seat", map[string]string{"branch": "MKT"})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if len(dispatcher.dailyStats) != 0 || len(dispatcher.waitSamples) != 0 {
		t.Fatalf("expected no stats for a vanished ticket")
	}
}

func TestUncallTicketConflict(t *testing.T) {
	st := fakeStore{
		uncallFn: func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
			return models.Ticket{}, store.ErrInvalidState
		},
	}
	h, _ := newTestHandler(st)

	resp := postJSON(h, "/api/staff/tickets/"+testTicketID+"/uncall", map[string]string{"branch": "MKT"})

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestSeatRepeatDoesNotResample(t *testing.T) {
	createdAt := time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)
	seatedAt := createdAt.Add(18 * time.Minute)
	seats := 0
	st := fakeStore{
		seatFn: func(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
			seats++
			// Only the first request performs the transition.
			return models.Ticket{
				TicketID:  input.TicketID,
				Group:     models.GroupMedium,
				Status:    models.StatusSeated,
				CreatedAt: createdAt,
				SeatedAt:  &seatedAt,
			}, seats == 1, nil
		},
	}
	h, dispatcher := newTestHandler(st)

	for i := 0; i < 2; i++ {
		resp := postJSON(h, "/api/staff/tickets/"+testTicketID+"/seat", map[string]string{"branch": "MKT"})
		if resp.Code != http.StatusOK {
			t.Fatalf("expected status 200 on request %d, got %d", i+1, resp.Code)
		}
	}

	if len(dispatcher.dailyStats) != 1 {
		t.Fatalf("expected 1 daily stat after retry, got %d", len(dispatcher.dailyStats))
	}
	if len(dispatcher.waitSamples) != 1 {
		t.Fatalf("expected 1 wait sample after retry, got %d", len(dispatcher.waitSamples))
	}
}

func TestToggleCallTicket(t *testing.T) {
	st := fakeStore{
		toggleFn: func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
			if input.TicketID != testTicketID {
				t.Fatalf("unexpected ticket id %q", input.TicketID)
			}
			return models.Ticket{TicketID: input.TicketID, QueueCode: "B04", Status: models.StatusWaiting}, nil
		},
	}
	h, _ := newTestHandler(st)

	resp := postJSON(h, "/api/staff/tickets/"+testTicketID+"/toggle", map[string]string{"branch": "MKT"})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var out models.Ticket
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Status != models.StatusWaiting {
		t.Fatalf("expected waiting after toggle, got %q", out.Status)
	}
}

func TestSkipTicketDispatchesStat(t *testing.T) {
	st := fakeStore{
		skipFn: func(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
			return models.Ticket{TicketID: input.TicketID, Group: models.GroupLarge, Status: models.StatusSkipped}, true, nil
		},
	}
	h, dispatcher := newTestHandler(st)

	resp := postJSON(h, "/api/staff/tickets/"+testTicketID+"/skip", map[string]string{"branch": "MKT"})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if len(dispatcher.dailyStats) != 1 || dispatcher.dailyStats[0].Action != "skipped" {
		t.Fatalf("unexpected stats: %+v", dispatcher.dailyStats)
	}
}

func TestUnknownStaffAction(t *testing.T) {
	h, _ := newTestHandler(fakeStore{})

	resp := postJSON(h, "/api/staff/tickets/"+testTicketID+"/promote", map[string]string{"branch": "MKT"})

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestDisplayBoard(t *testing.T) {
	calledAt := time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC)
	st := fakeStore{
		displayFn: func(ctx context.Context, branchID string) (store.DisplayBoard, error) {
			return store.DisplayBoard{
				BranchID: branchID,
				Current:  "A05",
				Groups: map[string]store.DisplayGroup{
					"A": {
						Called: &store.DisplayCalled{QueueCode: "A05", Name: "Reyes", Pax: 2, UpdatedAt: calledAt},
						Waiting: []store.DisplayEntry{
							{TicketID: testTicketID, QueueCode: "A06", Name: "Cruz", Pax: 3, Timestamp: calledAt.Add(-10 * time.Minute)},
						},
					},
					"B": {Waiting: []store.DisplayEntry{}},
				},
			}, nil
		},
	}
	h, _ := newTestHandler(st)

	req := httptest.NewRequest(http.MethodGet, "/api/display?branch=MKT", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var board store.DisplayBoard
	if err := json.NewDecoder(resp.Body).Decode(&board); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if board.Current != "A05" {
		t.Fatalf("unexpected board: %+v", board)
	}
	small := board.Groups["A"]
	if small.Called == nil || small.Called.QueueCode != "A05" || small.Called.Pax != 2 {
		t.Fatalf("unexpected called entry: %+v", small.Called)
	}
	if len(small.Waiting) != 1 || small.Waiting[0].QueueCode != "A06" || small.Waiting[0].TicketID != testTicketID {
		t.Fatalf("unexpected waiting line: %+v", small.Waiting)
	}
	if medium := board.Groups["B"]; medium.Called != nil || len(medium.Waiting) != 0 {
		t.Fatalf("unexpected medium group: %+v", medium)
	}
}
