package store

import (
	"context"
	"time"

	"github.com/tuklasdigitallabs/qsys2025-working/internal/models"
)

type RegisterTicketInput struct {
	BranchID  string
	Name      string
	Pax       int
	SeniorPWD bool
	Contact   string
	CreatedAt time.Time
}

type TicketActionInput struct {
	BranchID   string
	TicketID   string
	OccurredAt time.Time
}

type CallNextInput struct {
	BranchID string
	Group    string
	CalledAt time.Time
}

// Daily stat actions. Each recorded action increments exactly one counter.
const (
	ActionReserved  = "reserved"
	ActionSeated    = "seated"
	ActionSkipped   = "skipped"
	ActionCancelled = "cancelled"
)

type RecordDailyStatInput struct {
	BranchID string
	Day      string
	Action   string
	TicketID string
	Group    string
}

type RecordWaitSampleInput struct {
	BranchID   string
	Group      string
	Bucket     string
	WaitMin    float64
	Alpha      float64
	RecordedAt time.Time
}

// TicketStatus is the guest-facing view of a ticket, including its
// rank among the active tickets of its group.
type TicketStatus struct {
	Ticket       models.Ticket
	Position     int
	TotalInGroup int
	NowServing   string
}

// DisplayEntry is one waiting ticket on the public board.
type DisplayEntry struct {
	TicketID  string    `json:"id"`
	QueueCode string    `json:"code"`
	Name      string    `json:"name"`
	Pax       int       `json:"pax"`
	Timestamp time.Time `json:"timestamp"`
}

// DisplayCalled is the ticket currently being served in a group.
type DisplayCalled struct {
	QueueCode string    `json:"code"`
	Name      string    `json:"name"`
	Pax       int       `json:"pax"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayGroup pairs a group's called ticket, if any, with its
// waiting tickets in arrival order.
type DisplayGroup struct {
	Called  *DisplayCalled `json:"called"`
	Waiting []DisplayEntry `json:"waiting"`
}

// DisplayBoard is the public display snapshot for one branch.
type DisplayBoard struct {
	BranchID string                  `json:"branch_id"`
	Current  string                  `json:"current"`
	Groups   map[string]DisplayGroup `json:"groups"`
}

type Session struct {
	SessionID string
	UserID    string
	Role      string
	ExpiresAt time.Time
}

type TicketStore interface {
	ResolveBranch(ctx context.Context, ref string) (models.Branch, error)
	RegisterTicket(ctx context.Context, input RegisterTicketInput) (models.Ticket, int, error)
	TicketStatus(ctx context.Context, branchID, ticketID string) (TicketStatus, error)
	CancelTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	CallNext(ctx context.Context, input CallNextInput) (models.Ticket, bool, error)
	CallTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	ToggleCall(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	UncallTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	SeatTicket(ctx context.Context, input TicketActionInput) (models.Ticket, bool, error)
	SkipTicket(ctx context.Context, input TicketActionInput) (models.Ticket, bool, error)
	ListQueue(ctx context.Context, branchID string) ([]models.Ticket, error)
	DisplayBoard(ctx context.Context, branchID string) (DisplayBoard, error)
	GetWaitStat(ctx context.Context, branchID, group, bucket string) (models.WaitStat, bool, error)
}

type StatsStore interface {
	RecordDailyStat(ctx context.Context, input RecordDailyStatInput) error
	RecordWaitSample(ctx context.Context, input RecordWaitSampleInput) error
}

type AdminStore interface {
	DashboardSummary(ctx context.Context, day string) (models.DashboardSummary, error)
	ListBranches(ctx context.Context) ([]models.Branch, error)
	GetSession(ctx context.Context, sessionID string) (Session, error)
}
