package postgres

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/tuklasdigitallabs/qsys2025-working/internal/models"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/store"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/waitstats"

	"github.com/jackc/pgx/v5"
)

// reservedTotalExpr coalesces the reserved counter with the value old
// writers left under the flattened "totals.reserved" key inside the
// legacy JSONB payload. Every reader of the reserved total goes
// through this expression.
const reservedTotalExpr = `GREATEST(d.reserved, COALESCE(NULLIF(d.legacy->>'totals.reserved','')::int, 0))`

var dayKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// RecordDailyStat bumps the per-day counters for one ticket event. The
// event ledger makes it idempotent: replaying the same action for the
// same ticket is a no-op.
func (s *Store) RecordDailyStat(ctx context.Context, input store.RecordDailyStatInput) error {
	if !dayKeyPattern.MatchString(input.Day) || input.TicketID == "" {
		return store.ErrInvalidInput
	}
	var reserved, seated, skipped, cancelled int
	switch input.Action {
	case store.ActionReserved:
		reserved = 1
	case store.ActionSeated:
		seated = 1
	case store.ActionSkipped:
		skipped = 1
	case store.ActionCancelled:
		cancelled = 1
	default:
		return store.ErrInvalidInput
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	eventKey := input.Action + "__" + input.TicketID
	tag, err := tx.Exec(ctx, `
		INSERT INTO stat_events (branch_id, day, event_key, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (branch_id, day, event_key) DO NOTHING
	`, input.BranchID, input.Day, eventKey, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		INSERT INTO daily_stats (branch_id, day, reserved, seated, skipped, cancelled, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (branch_id, day) DO UPDATE SET
			reserved = daily_stats.reserved + $3,
			seated = daily_stats.seated + $4,
			skipped = daily_stats.skipped + $5,
			cancelled = daily_stats.cancelled + $6,
			updated_at = $7
	`, input.BranchID, input.Day, reserved, seated, skipped, cancelled, now)
	if err != nil {
		return err
	}

	if input.Action == store.ActionReserved && input.Group != "" {
		_, err = tx.Exec(ctx, `
			INSERT INTO daily_group_stats (branch_id, day, group_id, reserved)
			VALUES ($1, $2, $3, 1)
			ON CONFLICT (branch_id, day, group_id)
			DO UPDATE SET reserved = daily_group_stats.reserved + 1
		`, input.BranchID, input.Day, input.Group)
		if err != nil {
			return err
		}
	}

	if err = refreshWaitingNow(ctx, tx, input.BranchID, input.Day); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// refreshWaitingNow recomputes the waiting-now snapshot from the live
// ticket table and overwrites the stored counts.
func refreshWaitingNow(ctx context.Context, tx pgx.Tx, branchID, day string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO daily_waiting (branch_id, day, group_id, waiting)
		SELECT $1, $2, g.group_id, COALESCE(c.cnt, 0)
		FROM (VALUES ('P'),('A'),('B'),('C')) AS g(group_id)
		LEFT JOIN (
			SELECT group_id, COUNT(*) AS cnt
			FROM tickets
			WHERE branch_id = $1 AND status IN ('waiting','called')
			GROUP BY group_id
		) c ON c.group_id = g.group_id
		ON CONFLICT (branch_id, day, group_id)
		DO UPDATE SET waiting = EXCLUDED.waiting
	`, branchID, day)
	return err
}

// RecordWaitSample folds one seating wait into the bucket EMA. The
// whole update is a single statement so concurrent seatings in the
// same bucket serialize on the row.
func (s *Store) RecordWaitSample(ctx context.Context, input store.RecordWaitSampleInput) error {
	if input.BranchID == "" || input.Group == "" || input.Bucket == "" || input.WaitMin <= 0 {
		return store.ErrInvalidInput
	}
	alpha := input.Alpha
	if alpha <= 0 || alpha > 1 {
		alpha = waitstats.Alpha
	}
	recordedAt := input.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO wait_stats (branch_id, group_id, bucket, ema_wait_min, sample_count, updated_at)
		VALUES ($1, $2, $3, $4, 1, $6)
		ON CONFLICT (branch_id, group_id, bucket) DO UPDATE SET
			ema_wait_min = $5 * $4 + (1 - $5) * wait_stats.ema_wait_min,
			sample_count = wait_stats.sample_count + 1,
			updated_at = $6
	`, input.BranchID, input.Group, input.Bucket, input.WaitMin, alpha, recordedAt)
	return err
}

func (s *Store) GetWaitStat(ctx context.Context, branchID, group, bucket string) (models.WaitStat, bool, error) {
	var stat models.WaitStat
	row := s.pool.QueryRow(ctx, `
		SELECT branch_id, group_id, bucket, ema_wait_min, sample_count, updated_at
		FROM wait_stats
		WHERE branch_id = $1 AND group_id = $2 AND bucket = $3
	`, branchID, group, bucket)
	if err := row.Scan(&stat.BranchID, &stat.Group, &stat.Bucket, &stat.EMAWaitMin, &stat.SampleCount, &stat.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.WaitStat{}, false, nil
		}
		return models.WaitStat{}, false, err
	}
	return stat, true, nil
}

// DashboardSummary aggregates the day across all branches. Branch rows
// come back sorted by branch code.
func (s *Store) DashboardSummary(ctx context.Context, day string) (models.DashboardSummary, error) {
	if !dayKeyPattern.MatchString(day) {
		return models.DashboardSummary{}, store.ErrInvalidInput
	}

	summary := models.DashboardSummary{Day: day}

	rows, err := s.pool.Query(ctx, `
		SELECT b.branch_id, b.code, b.name,
			COALESCE(`+reservedTotalExpr+`, 0),
			COALESCE(d.seated, 0), COALESCE(d.skipped, 0), COALESCE(d.cancelled, 0)
		FROM branches b
		LEFT JOIN daily_stats d ON d.branch_id = b.branch_id AND d.day = $1
		WHERE b.active = TRUE
		ORDER BY b.code ASC
	`, day)
	if err != nil {
		return models.DashboardSummary{}, err
	}
	defer rows.Close()

	byBranch := make(map[string]int)
	for rows.Next() {
		var row models.DailyStats
		row.Day = day
		if err := rows.Scan(&row.BranchID, &row.BranchCode, &row.BranchName, &row.Reserved, &row.Seated, &row.Skipped, &row.Cancelled); err != nil {
			return models.DashboardSummary{}, err
		}
		byBranch[row.BranchID] = len(summary.ByBranch)
		summary.ByBranch = append(summary.ByBranch, row)
		summary.Reserved += row.Reserved
		summary.Seated += row.Seated
		summary.Skipped += row.Skipped
		summary.Cancelled += row.Cancelled
	}
	if err := rows.Err(); err != nil {
		return models.DashboardSummary{}, err
	}

	groupRows, err := s.pool.Query(ctx, `
		SELECT branch_id, group_id, reserved
		FROM daily_group_stats
		WHERE day = $1
	`, day)
	if err != nil {
		return models.DashboardSummary{}, err
	}
	defer groupRows.Close()
	for groupRows.Next() {
		var branchID, group string
		var reserved int
		if err := groupRows.Scan(&branchID, &group, &reserved); err != nil {
			return models.DashboardSummary{}, err
		}
		idx, ok := byBranch[branchID]
		if !ok {
			continue
		}
		if summary.ByBranch[idx].ByGroup == nil {
			summary.ByBranch[idx].ByGroup = make(map[string]int)
		}
		summary.ByBranch[idx].ByGroup[group] = reserved
	}
	if err := groupRows.Err(); err != nil {
		return models.DashboardSummary{}, err
	}

	waitingRows, err := s.pool.Query(ctx, `
		SELECT branch_id, group_id, waiting
		FROM daily_waiting
		WHERE day = $1
	`, day)
	if err != nil {
		return models.DashboardSummary{}, err
	}
	defer waitingRows.Close()
	for waitingRows.Next() {
		var branchID, group string
		var waiting int
		if err := waitingRows.Scan(&branchID, &group, &waiting); err != nil {
			return models.DashboardSummary{}, err
		}
		summary.WaitingNow += waiting
		idx, ok := byBranch[branchID]
		if !ok {
			continue
		}
		if summary.ByBranch[idx].WaitingNow == nil {
			summary.ByBranch[idx].WaitingNow = make(map[string]int)
		}
		summary.ByBranch[idx].WaitingNow[group] = waiting
	}
	if err := waitingRows.Err(); err != nil {
		return models.DashboardSummary{}, err
	}

	return summary, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var session store.Session
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, user_id, role, expires_at
		FROM sessions
		WHERE session_id = $1 AND expires_at > $2
	`, sessionID, time.Now().UTC())
	if err := row.Scan(&session.SessionID, &session.UserID, &session.Role, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrSessionNotFound
		}
		return store.Session{}, err
	}
	return session, nil
}
