package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tuklasdigitallabs/qsys2025-working/internal/store"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/waitstats"

	"github.com/hibiken/asynq"
)

type Handlers struct {
	stats store.StatsStore
}

func NewHandlers(stats store.StatsStore) *Handlers {
	return &Handlers{stats: stats}
}

func (h *Handlers) HandleDailyStat(ctx context.Context, t *asynq.Task) error {
	var payload DailyStatPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode daily stat payload: %w", err)
	}

	err := h.stats.RecordDailyStat(ctx, store.RecordDailyStatInput{
		BranchID: payload.BranchID,
		Day:      payload.Day,
		Action:   payload.Action,
		TicketID: payload.TicketID,
		Group:    payload.Group,
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidInput) {
			// Malformed payloads never become valid; drop instead of retrying.
			log.Printf("daily stat dropped branch=%s action=%s ticket=%s: %v", payload.BranchID, payload.Action, payload.TicketID, err)
			return nil
		}
		return fmt.Errorf("%w: %v", store.ErrStatsRecording, err)
	}
	return nil
}

func (h *Handlers) HandleWaitSample(ctx context.Context, t *asynq.Task) error {
	var payload WaitSamplePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode wait sample payload: %w", err)
	}

	waitMin, err := waitstats.SampleMinutes(payload.CreatedAt, payload.SeatedAt)
	if err != nil {
		log.Printf("wait sample dropped branch=%s group=%s: %v", payload.BranchID, payload.Group, err)
		return nil
	}

	loc, locErr := time.LoadLocation(payload.Timezone)
	if locErr != nil {
		loc = time.FixedZone("UTC+8", 8*3600)
	}
	bucket := waitstats.BucketFor(payload.CreatedAt, loc)

	err = h.stats.RecordWaitSample(ctx, store.RecordWaitSampleInput{
		BranchID: payload.BranchID,
		Group:    payload.Group,
		Bucket:   bucket,
		WaitMin:  waitMin,
		Alpha:    waitstats.Alpha,
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidInput) {
			log.Printf("wait sample dropped branch=%s group=%s: %v", payload.BranchID, payload.Group, err)
			return nil
		}
		return fmt.Errorf("%w: %v", store.ErrStatsRecording, err)
	}
	return nil
}
