package models

import "time"

type DailyStats struct {
	BranchID   string         `json:"branch_id"`
	BranchCode string         `json:"branch_code,omitempty"`
	BranchName string         `json:"branch_name,omitempty"`
	Day        string         `json:"day"`
	Reserved   int            `json:"reserved"`
	Seated     int            `json:"seated"`
	Skipped    int            `json:"skipped"`
	Cancelled  int            `json:"cancelled"`
	ByGroup    map[string]int `json:"by_group,omitempty"`
	WaitingNow map[string]int `json:"waiting_now,omitempty"`
}

type DashboardSummary struct {
	Day        string       `json:"day"`
	Reserved   int          `json:"reserved"`
	Seated     int          `json:"seated"`
	Skipped    int          `json:"skipped"`
	Cancelled  int          `json:"cancelled"`
	WaitingNow int          `json:"waiting_now"`
	ByBranch   []DailyStats `json:"by_branch"`
}

type WaitStat struct {
	BranchID    string    `json:"branch_id"`
	Group       string    `json:"group"`
	Bucket      string    `json:"bucket"`
	EMAWaitMin  float64   `json:"ema_wait_min"`
	SampleCount int       `json:"sample_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}
