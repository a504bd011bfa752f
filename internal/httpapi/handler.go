package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tuklasdigitallabs/qsys2025-working/internal/models"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/store"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/tasks"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/waitstats"

	"github.com/google/uuid"
)

const maxPax = 50

type Handler struct {
	store      store.TicketStore
	estimator  *waitstats.Estimator
	dispatcher tasks.Dispatcher
}

func NewHandler(st store.TicketStore, estimator *waitstats.Estimator, dispatcher tasks.Dispatcher) *Handler {
	return &Handler{
		store:      st,
		estimator:  estimator,
		dispatcher: dispatcher,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/tickets", h.handleRegister)
	mux.HandleFunc("/api/tickets/", h.handleTicketByID)
	mux.HandleFunc("/api/staff/call-next", h.handleCallNext)
	mux.HandleFunc("/api/staff/tickets/", h.handleStaffActions)
	mux.HandleFunc("/api/queue", h.handleQueue)
	mux.HandleFunc("/api/display", h.handleDisplay)
	return mux
}

type registerRequest struct {
	Branch    string `json:"branch"`
	Name      string `json:"name"`
	Pax       int    `json:"pax"`
	SeniorPWD bool   `json:"senior_pwd"`
	Contact   string `json:"contact"`
}

type ticketResponse struct {
	models.Ticket
	Position     int    `json:"position,omitempty"`
	TotalInGroup int    `json:"total_in_group,omitempty"`
	ETAMinutes   int    `json:"eta_minutes,omitempty"`
	NowServing   string `json:"now_serving,omitempty"`
}

type callNextRequest struct {
	Branch string `json:"branch"`
	Group  string `json:"group"`
}

type branchRequest struct {
	Branch string `json:"branch"`
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Branch = strings.TrimSpace(req.Branch)
	req.Name = strings.TrimSpace(req.Name)
	req.Contact = strings.TrimSpace(req.Contact)

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "name is required")
		return
	}
	if req.Pax < 1 || req.Pax > maxPax {
		writeError(w, http.StatusBadRequest, "invalid_input", "pax must be between 1 and 50")
		return
	}

	branch, err := h.store.ResolveBranch(r.Context(), req.Branch)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	createdAt := time.Now().UTC()
	ticket, position, err := h.store.RegisterTicket(r.Context(), store.RegisterTicketInput{
		BranchID:  branch.BranchID,
		Name:      req.Name,
		Pax:       req.Pax,
		SeniorPWD: req.SeniorPWD,
		Contact:   req.Contact,
		CreatedAt: createdAt,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.dispatcher.DispatchDailyStat(r.Context(), tasks.DailyStatPayload{
		BranchID: branch.BranchID,
		Day:      waitstats.DayKey(createdAt, branch.Location()),
		Action:   store.ActionReserved,
		TicketID: ticket.TicketID,
		Group:    ticket.Group,
	})

	// A fresh ticket joins at the back, so its position is also the
	// group's active total.
	resp := ticketResponse{Ticket: ticket, Position: position, TotalInGroup: position}
	perTicket, err := h.estimator.PerTicketMinutes(r.Context(), branch, ticket.Group, createdAt)
	if err == nil {
		resp.ETAMinutes = waitstats.ETAMinutes(perTicket, position)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleTicketByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tickets/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleStatus(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
		h.handleCancel(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request, ticketID string) {
	if !isValidUUID(ticketID) {
		writeError(w, http.StatusBadRequest, "invalid_input", "ticket id must be a UUID")
		return
	}

	branch, ok := h.resolveBranchParam(w, r)
	if !ok {
		return
	}

	status, err := h.store.TicketStatus(r.Context(), branch.BranchID, ticketID)
	if err != nil {
		st, code, msg := mapError(err)
		writeError(w, st, code, msg)
		return
	}

	resp := ticketResponse{
		Ticket:       status.Ticket,
		Position:     status.Position,
		TotalInGroup: status.TotalInGroup,
		NowServing:   status.NowServing,
	}
	if status.Position > 0 {
		perTicket, err := h.estimator.PerTicketMinutes(r.Context(), branch, status.Ticket.Group, status.Ticket.CreatedAt)
		if err == nil {
			resp.ETAMinutes = waitstats.ETAMinutes(perTicket, status.Position)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request, ticketID string) {
	if !isValidUUID(ticketID) {
		writeError(w, http.StatusBadRequest, "invalid_input", "ticket id must be a UUID")
		return
	}

	var req branchRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	branch, err := h.store.ResolveBranch(r.Context(), strings.TrimSpace(req.Branch))
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	occurredAt := time.Now().UTC()
	ticket, err := h.store.CancelTicket(r.Context(), store.TicketActionInput{
		BranchID:   branch.BranchID,
		TicketID:   ticketID,
		OccurredAt: occurredAt,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.dispatcher.DispatchDailyStat(r.Context(), tasks.DailyStatPayload{
		BranchID: branch.BranchID,
		Day:      waitstats.DayKey(occurredAt, branch.Location()),
		Action:   store.ActionCancelled,
		TicketID: ticket.TicketID,
		Group:    ticket.Group,
	})

	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req callNextRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Group = strings.ToUpper(strings.TrimSpace(req.Group))
	if !isValidGroup(req.Group) {
		writeError(w, http.StatusBadRequest, "invalid_input", "group must be one of P, A, B, C")
		return
	}

	branch, err := h.store.ResolveBranch(r.Context(), strings.TrimSpace(req.Branch))
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	ticket, found, err := h.store.CallNext(r.Context(), store.CallNextInput{
		BranchID: branch.BranchID,
		Group:    req.Group,
		CalledAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleStaffActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/staff/tickets/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	ticketID := parts[0]
	action := parts[1]
	if !isValidUUID(ticketID) {
		writeError(w, http.StatusBadRequest, "invalid_input", "ticket id must be a UUID")
		return
	}

	var req branchRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	branch, err := h.store.ResolveBranch(r.Context(), strings.TrimSpace(req.Branch))
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	occurredAt := time.Now().UTC()
	input := store.TicketActionInput{
		BranchID:   branch.BranchID,
		TicketID:   ticketID,
		OccurredAt: occurredAt,
	}

	switch action {
	case "call":
		ticket, err := h.store.CallTicket(r.Context(), input)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, ticket)
	case "toggle":
		ticket, err := h.store.ToggleCall(r.Context(), input)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, ticket)
	case "uncall":
		ticket, err := h.store.UncallTicket(r.Context(), input)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, ticket)
	case "seat":
		ticket, found, err := h.store.SeatTicket(r.Context(), input)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		if found {
			h.dispatchSeated(r.Context(), branch, ticket, occurredAt)
		}
		writeJSON(w, http.StatusOK, ticket)
	case "skip":
		ticket, found, err := h.store.SkipTicket(r.Context(), input)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		if found {
			h.dispatcher.DispatchDailyStat(r.Context(), tasks.DailyStatPayload{
				BranchID: branch.BranchID,
				Day:      waitstats.DayKey(occurredAt, branch.Location()),
				Action:   store.ActionSkipped,
				TicketID: ticket.TicketID,
				Group:    ticket.Group,
			})
		}
		writeJSON(w, http.StatusOK, ticket)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) dispatchSeated(ctx context.Context, branch models.Branch, ticket models.Ticket, occurredAt time.Time) {
	h.dispatcher.DispatchDailyStat(ctx, tasks.DailyStatPayload{
		BranchID: branch.BranchID,
		Day:      waitstats.DayKey(occurredAt, branch.Location()),
		Action:   store.ActionSeated,
		TicketID: ticket.TicketID,
		Group:    ticket.Group,
	})
	seatedAt := occurredAt
	if ticket.SeatedAt != nil {
		seatedAt = *ticket.SeatedAt
	}
	h.dispatcher.DispatchWaitSample(ctx, tasks.WaitSamplePayload{
		BranchID:  branch.BranchID,
		Group:     ticket.Group,
		Timezone:  branch.Timezone,
		CreatedAt: ticket.CreatedAt,
		SeatedAt:  seatedAt,
	})
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	branch, ok := h.resolveBranchParam(w, r)
	if !ok {
		return
	}

	tickets, err := h.store.ListQueue(r.Context(), branch.BranchID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handleDisplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	branch, ok := h.resolveBranchParam(w, r)
	if !ok {
		return
	}

	board, err := h.store.DisplayBoard(r.Context(), branch.BranchID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, board)
}

func (h *Handler) resolveBranchParam(w http.ResponseWriter, r *http.Request) (models.Branch, bool) {
	ref := strings.TrimSpace(r.URL.Query().Get("branch"))
	branch, err := h.store.ResolveBranch(r.Context(), ref)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return models.Branch{}, false
	}
	return branch, true
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func isValidGroup(group string) bool {
	for _, g := range models.Groups {
		if g == group {
			return true
		}
	}
	return false
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrBranchNotFound):
		return http.StatusNotFound, "unknown_branch", "branch not found"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "conflict", "ticket state does not allow this action"
	case errors.Is(err, store.ErrAlreadyCalled):
		return http.StatusConflict, "conflict", "group already has a called ticket"
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input", "invalid input"
	default:
		return http.StatusInternalServerError, "internal", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
