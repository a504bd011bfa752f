package tasks

import "time"

const (
	TypeDailyStat  = "stats:daily"
	TypeWaitSample = "stats:wait_sample"
)

// QueueStats is the asynq queue stats tasks land on.
const QueueStats = "stats"

type DailyStatPayload struct {
	BranchID string `json:"branch_id"`
	Day      string `json:"day"`
	Action   string `json:"action"`
	TicketID string `json:"ticket_id"`
	Group    string `json:"group"`
}

type WaitSamplePayload struct {
	BranchID  string    `json:"branch_id"`
	Group     string    `json:"group"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
	SeatedAt  time.Time `json:"seated_at"`
}
