package models

import "time"

type Ticket struct {
	TicketID  string     `json:"ticket_id"`
	QueueCode string     `json:"queue_code"`
	BranchID  string     `json:"branch_id,omitempty"`
	Group     string     `json:"group"`
	Name      string     `json:"name,omitempty"`
	Pax       int        `json:"pax,omitempty"`
	SeniorPWD bool       `json:"senior_pwd,omitempty"`
	Contact   string     `json:"contact,omitempty"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	CalledAt  *time.Time `json:"called_at,omitempty"`
	SeatedAt  *time.Time `json:"seated_at,omitempty"`
}

const (
	StatusWaiting   = "waiting"
	StatusCalled    = "called"
	StatusSeated    = "seated"
	StatusSkipped   = "skipped"
	StatusCancelled = "cancelled"
)

const (
	GroupPriority = "P"
	GroupSmall    = "A"
	GroupMedium   = "B"
	GroupLarge    = "C"
)

// Groups lists the party groups in display order.
var Groups = []string{GroupPriority, GroupSmall, GroupMedium, GroupLarge}

// NowServingCurrent is the board slot holding the most recently called
// code across all groups.
const NowServingCurrent = "current"

func TerminalStatus(status string) bool {
	switch status {
	case StatusSeated, StatusSkipped, StatusCancelled:
		return true
	default:
		return false
	}
}
