package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tuklasdigitallabs/qsys2025-working/internal/models"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/store"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/waitstats"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool            *pgxpool.Pool
	defaultBranchID string
}

type Options struct {
	DefaultBranchID string
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	return &Store{
		pool:            pool,
		defaultBranchID: options.DefaultBranchID,
	}
}

func (s *Store) RegisterTicket(ctx context.Context, input store.RegisterTicketInput) (models.Ticket, int, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	branch, err := getBranch(ctx, tx, input.BranchID)
	if err != nil {
		return models.Ticket{}, 0, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	day := waitstats.DayKey(createdAt, branch.Location())
	group := store.GroupForParty(input.Pax, input.SeniorPWD)

	seq, err := nextQueueNumber(ctx, tx, branch.BranchID, group, day)
	if err != nil {
		return models.Ticket{}, 0, err
	}
	queueCode := store.FormatQueueCode(group, seq, branch.CodePadWidth)

	ticketID := uuid.NewString()
	var ticket models.Ticket
	row := tx.QueryRow(ctx, `
		INSERT INTO tickets (
			ticket_id, branch_id, queue_code, group_id, name, pax, senior_pwd, contact, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING ticket_id, queue_code, group_id, name, pax, senior_pwd, status, created_at
	`, ticketID, branch.BranchID, queueCode, group, input.Name, input.Pax, input.SeniorPWD, input.Contact, models.StatusWaiting, createdAt)
	if err = row.Scan(&ticket.TicketID, &ticket.QueueCode, &ticket.Group, &ticket.Name, &ticket.Pax, &ticket.SeniorPWD, &ticket.Status, &ticket.CreatedAt); err != nil {
		return models.Ticket{}, 0, err
	}
	ticket.BranchID = branch.BranchID
	ticket.Contact = input.Contact

	var position int
	row = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM tickets
		WHERE branch_id = $1 AND group_id = $2 AND status IN ('waiting','called')
			AND created_at <= $3
	`, branch.BranchID, group, createdAt)
	if err = row.Scan(&position); err != nil {
		return models.Ticket{}, 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, 0, err
	}

	return ticket, position, nil
}

func (s *Store) TicketStatus(ctx context.Context, branchID, ticketID string) (store.TicketStatus, error) {
	var status store.TicketStatus
	var calledAtNull sql.NullTime
	row := s.pool.QueryRow(ctx, `
		WITH active AS (
			SELECT ticket_id, queue_code, group_id, status, created_at, called_at,
				ROW_NUMBER() OVER (PARTITION BY group_id ORDER BY created_at ASC) AS position,
				COUNT(*) OVER (PARTITION BY group_id) AS total
			FROM tickets
			WHERE branch_id = $1 AND status IN ('waiting','called')
		)
		SELECT a.ticket_id, a.queue_code, a.group_id, a.status, a.created_at, a.called_at, a.position, a.total,
			COALESCE(ns.queue_code, '')
		FROM active a
		LEFT JOIN now_serving ns ON ns.branch_id = $1 AND ns.group_id = a.group_id
		WHERE a.ticket_id = $2
	`, branchID, ticketID)
	err := row.Scan(&status.Ticket.TicketID, &status.Ticket.QueueCode, &status.Ticket.Group, &status.Ticket.Status, &status.Ticket.CreatedAt, &calledAtNull, &status.Position, &status.TotalInGroup, &status.NowServing)
	if err == nil {
		status.Ticket.BranchID = branchID
		status.Ticket.CalledAt = nullTimePtr(calledAtNull)
		return status, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return store.TicketStatus{}, err
	}

	// Not in the active set. A terminal ticket still reports its final
	// status; a missing one is an error, never a guessed position.
	ticket, err := s.getTicket(ctx, branchID, ticketID)
	if err != nil {
		return store.TicketStatus{}, err
	}
	if !models.TerminalStatus(ticket.Status) {
		return store.TicketStatus{}, store.ErrTicketNotFound
	}
	return store.TicketStatus{Ticket: ticket}, nil
}

func (s *Store) getTicket(ctx context.Context, branchID, ticketID string) (models.Ticket, error) {
	var ticket models.Ticket
	var calledAtNull sql.NullTime
	var seatedAtNull sql.NullTime
	row := s.pool.QueryRow(ctx, `
		SELECT ticket_id, queue_code, group_id, name, pax, senior_pwd, status, created_at, called_at, seated_at
		FROM tickets
		WHERE branch_id = $1 AND ticket_id = $2
	`, branchID, ticketID)
	if err := row.Scan(&ticket.TicketID, &ticket.QueueCode, &ticket.Group, &ticket.Name, &ticket.Pax, &ticket.SeniorPWD, &ticket.Status, &ticket.CreatedAt, &calledAtNull, &seatedAtNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	ticket.BranchID = branchID
	ticket.CalledAt = nullTimePtr(calledAtNull)
	ticket.SeatedAt = nullTimePtr(seatedAtNull)
	return ticket, nil
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = lockGroup(ctx, tx, input.BranchID, input.Group); err != nil {
		return models.Ticket{}, false, err
	}
	if err = ensureGroupNotCalled(ctx, tx, input.BranchID, input.Group); err != nil {
		return models.Ticket{}, false, err
	}

	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	var ticket models.Ticket
	var calledAtNull sql.NullTime
	row := tx.QueryRow(ctx, `
		WITH next_ticket AS (
			SELECT ticket_id
			FROM tickets
			WHERE branch_id = $1 AND group_id = $2 AND status = 'waiting'
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE tickets
		SET status = 'called',
			called_at = $3
		FROM next_ticket
		WHERE tickets.ticket_id = next_ticket.ticket_id
		RETURNING tickets.ticket_id, tickets.queue_code, tickets.group_id, tickets.name, tickets.pax, tickets.senior_pwd, tickets.status, tickets.created_at, tickets.called_at
	`, input.BranchID, input.Group, calledAt)
	if err = row.Scan(&ticket.TicketID, &ticket.QueueCode, &ticket.Group, &ticket.Name, &ticket.Pax, &ticket.SeniorPWD, &ticket.Status, &ticket.CreatedAt, &calledAtNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err = tx.Commit(ctx); err != nil {
				return models.Ticket{}, false, err
			}
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	ticket.BranchID = input.BranchID
	ticket.CalledAt = nullTimePtr(calledAtNull)

	if err = setNowServing(ctx, tx, input.BranchID, ticket.Group, ticket.QueueCode, ticket.TicketID, calledAt); err != nil {
		return models.Ticket{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}

	return ticket, true, nil
}

// CallTicket announces a specific waiting ticket. A ticket already
// holding the group's called slot is sent back to waiting first, so
// staff can jump the call around without uncalling by hand.
func (s *Store) CallTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	group, exists, err := ticketGroup(ctx, tx, input.BranchID, input.TicketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !exists {
		err = store.ErrTicketNotFound
		return models.Ticket{}, err
	}
	if err = lockGroup(ctx, tx, input.BranchID, group); err != nil {
		return models.Ticket{}, err
	}

	status, _, _, err := loadTicketState(ctx, tx, input.BranchID, input.TicketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !store.ValidTransition("call", status) {
		err = store.ErrInvalidState
		return models.Ticket{}, err
	}

	calledAt := input.OccurredAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	ticket, err := callLocked(ctx, tx, input.BranchID, input.TicketID, group, calledAt)
	if err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}

	return ticket, nil
}

// ToggleCall calls a waiting ticket, or returns an already-called
// ticket to the queue and clears its board slots. Both directions run
// in one transaction.
func (s *Store) ToggleCall(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	group, exists, err := ticketGroup(ctx, tx, input.BranchID, input.TicketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !exists {
		err = store.ErrTicketNotFound
		return models.Ticket{}, err
	}
	if err = lockGroup(ctx, tx, input.BranchID, group); err != nil {
		return models.Ticket{}, err
	}

	status, _, _, err := loadTicketState(ctx, tx, input.BranchID, input.TicketID)
	if err != nil {
		return models.Ticket{}, err
	}

	var ticket models.Ticket
	switch {
	case status == models.StatusCalled:
		ticket, err = uncallLocked(ctx, tx, input.BranchID, input.TicketID)
	case store.ValidTransition("call", status):
		calledAt := input.OccurredAt
		if calledAt.IsZero() {
			calledAt = time.Now().UTC()
		}
		ticket, err = callLocked(ctx, tx, input.BranchID, input.TicketID, group, calledAt)
	default:
		err = store.ErrInvalidState
	}
	if err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}

	return ticket, nil
}

func (s *Store) UncallTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	group, exists, err := ticketGroup(ctx, tx, input.BranchID, input.TicketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !exists {
		err = store.ErrTicketNotFound
		return models.Ticket{}, err
	}
	if err = lockGroup(ctx, tx, input.BranchID, group); err != nil {
		return models.Ticket{}, err
	}

	ticket, err := uncallLocked(ctx, tx, input.BranchID, input.TicketID)
	if err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}

	return ticket, nil
}

// callLocked reverts whichever ticket currently holds the group's
// called slot, marks the target called, and stamps the board. Callers
// must hold the group lock.
func callLocked(ctx context.Context, tx pgx.Tx, branchID, ticketID, group string, calledAt time.Time) (models.Ticket, error) {
	if _, err := tx.Exec(ctx, `
		UPDATE tickets
		SET status = 'waiting',
			called_at = NULL
		WHERE branch_id = $1 AND group_id = $2 AND status = 'called' AND ticket_id <> $3
	`, branchID, group, ticketID); err != nil {
		return models.Ticket{}, err
	}

	var ticket models.Ticket
	var calledAtNull sql.NullTime
	row := tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = 'called',
			called_at = $3
		WHERE branch_id = $1 AND ticket_id = $2 AND status = 'waiting'
		RETURNING ticket_id, queue_code, group_id, name, pax, senior_pwd, status, created_at, called_at
	`, branchID, ticketID, calledAt)
	if err := row.Scan(&ticket.TicketID, &ticket.QueueCode, &ticket.Group, &ticket.Name, &ticket.Pax, &ticket.SeniorPWD, &ticket.Status, &ticket.CreatedAt, &calledAtNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrInvalidState
		}
		return models.Ticket{}, err
	}
	ticket.BranchID = branchID
	ticket.CalledAt = nullTimePtr(calledAtNull)

	if err := setNowServing(ctx, tx, branchID, ticket.Group, ticket.QueueCode, ticket.TicketID, calledAt); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

// uncallLocked returns a called ticket to waiting and blanks board
// slots still pointing at it. Callers must hold the group lock.
func uncallLocked(ctx context.Context, tx pgx.Tx, branchID, ticketID string) (models.Ticket, error) {
	var ticket models.Ticket
	row := tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = 'waiting',
			called_at = NULL
		WHERE branch_id = $1 AND ticket_id = $2 AND status = 'called'
		RETURNING ticket_id, queue_code, group_id, name, pax, senior_pwd, status, created_at
	`, branchID, ticketID)
	if err := row.Scan(&ticket.TicketID, &ticket.QueueCode, &ticket.Group, &ticket.Name, &ticket.Pax, &ticket.SeniorPWD, &ticket.Status, &ticket.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrInvalidState
		}
		return models.Ticket{}, err
	}
	ticket.BranchID = branchID

	if err := clearNowServing(ctx, tx, branchID, ticket.TicketID, time.Now().UTC()); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) SeatTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	return s.finishTicket(ctx, input, models.StatusSeated)
}

func (s *Store) SkipTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	return s.finishTicket(ctx, input, models.StatusSkipped)
}

// finishTicket moves a ticket to seated or skipped. A vanished ticket
// is a no-op: the staff panel may be acting on a stale snapshot and a
// retry must not surface an error.
func (s *Store) finishTicket(ctx context.Context, input store.TicketActionInput, toStatus string) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	group, exists, err := ticketGroup(ctx, tx, input.BranchID, input.TicketID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if !exists {
		err = tx.Commit(ctx)
		return models.Ticket{}, false, err
	}
	if err = lockGroup(ctx, tx, input.BranchID, group); err != nil {
		return models.Ticket{}, false, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	query := `
		UPDATE tickets
		SET status = $3
		WHERE branch_id = $1 AND ticket_id = $2 AND status IN ('waiting','called')
		RETURNING ticket_id, queue_code, group_id, name, pax, senior_pwd, status, created_at, called_at, seated_at
	`
	if toStatus == models.StatusSeated {
		query = `
			UPDATE tickets
			SET status = $3,
				seated_at = $4
			WHERE branch_id = $1 AND ticket_id = $2 AND status IN ('waiting','called')
			RETURNING ticket_id, queue_code, group_id, name, pax, senior_pwd, status, created_at, called_at, seated_at
		`
	}

	args := []interface{}{input.BranchID, input.TicketID, toStatus}
	if toStatus == models.StatusSeated {
		args = append(args, occurredAt)
	}

	var ticket models.Ticket
	var calledAtNull sql.NullTime
	var seatedAtNull sql.NullTime
	row := tx.QueryRow(ctx, query, args...)
	if err = row.Scan(&ticket.TicketID, &ticket.QueueCode, &ticket.Group, &ticket.Name, &ticket.Pax, &ticket.SeniorPWD, &ticket.Status, &ticket.CreatedAt, &calledAtNull, &seatedAtNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			status, _, _, stateErr := loadTicketState(ctx, tx, input.BranchID, input.TicketID)
			if stateErr != nil {
				err = stateErr
				return models.Ticket{}, false, err
			}
			if status != toStatus {
				err = store.ErrInvalidState
				return models.Ticket{}, false, err
			}
			// Duplicate action. The first application already counted;
			// this one is not a fresh transition.
			var existing models.Ticket
			existing, err = s.getTicketTx(ctx, tx, input.BranchID, input.TicketID)
			if err != nil {
				return models.Ticket{}, false, err
			}
			if err = tx.Commit(ctx); err != nil {
				return models.Ticket{}, false, err
			}
			return existing, false, nil
		}
		return models.Ticket{}, false, err
	}
	ticket.BranchID = input.BranchID
	ticket.CalledAt = nullTimePtr(calledAtNull)
	ticket.SeatedAt = nullTimePtr(seatedAtNull)

	if err = clearNowServing(ctx, tx, input.BranchID, ticket.TicketID, occurredAt); err != nil {
		return models.Ticket{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}

	return ticket, true, nil
}

func (s *Store) CancelTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	group, exists, err := ticketGroup(ctx, tx, input.BranchID, input.TicketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !exists {
		err = store.ErrTicketNotFound
		return models.Ticket{}, err
	}
	if err = lockGroup(ctx, tx, input.BranchID, group); err != nil {
		return models.Ticket{}, err
	}

	var ticket models.Ticket
	var calledAtNull sql.NullTime
	row := tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = 'cancelled'
		WHERE branch_id = $1 AND ticket_id = $2 AND status IN ('waiting','called')
		RETURNING ticket_id, queue_code, group_id, name, pax, senior_pwd, status, created_at, called_at
	`, input.BranchID, input.TicketID)
	if err = row.Scan(&ticket.TicketID, &ticket.QueueCode, &ticket.Group, &ticket.Name, &ticket.Pax, &ticket.SeniorPWD, &ticket.Status, &ticket.CreatedAt, &calledAtNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrInvalidState
			return models.Ticket{}, err
		}
		return models.Ticket{}, err
	}
	ticket.BranchID = input.BranchID
	ticket.CalledAt = nullTimePtr(calledAtNull)

	if err = clearNowServing(ctx, tx, input.BranchID, ticket.TicketID, time.Now().UTC()); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}

	return ticket, nil
}

func (s *Store) ListQueue(ctx context.Context, branchID string) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ticket_id, queue_code, group_id, name, pax, senior_pwd, status, created_at, called_at
		FROM tickets
		WHERE branch_id = $1 AND status IN ('waiting','called')
		ORDER BY group_id ASC, created_at ASC
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		var ticket models.Ticket
		var calledAtNull sql.NullTime
		if err := rows.Scan(&ticket.TicketID, &ticket.QueueCode, &ticket.Group, &ticket.Name, &ticket.Pax, &ticket.SeniorPWD, &ticket.Status, &ticket.CreatedAt, &calledAtNull); err != nil {
			return nil, err
		}
		ticket.BranchID = branchID
		ticket.CalledAt = nullTimePtr(calledAtNull)
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

// DisplayBoard snapshots a branch for the public screen: per group the
// called ticket, if any, plus the waiting line in arrival order.
func (s *Store) DisplayBoard(ctx context.Context, branchID string) (store.DisplayBoard, error) {
	board := store.DisplayBoard{
		BranchID: branchID,
		Groups:   make(map[string]store.DisplayGroup),
	}
	for _, group := range models.Groups {
		board.Groups[group] = store.DisplayGroup{Waiting: []store.DisplayEntry{}}
	}

	row := s.pool.QueryRow(ctx, `
		SELECT queue_code
		FROM now_serving
		WHERE branch_id = $1 AND group_id = $2
	`, branchID, models.NowServingCurrent)
	if err := row.Scan(&board.Current); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return store.DisplayBoard{}, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT ticket_id, queue_code, group_id, name, pax, status, created_at, called_at
		FROM tickets
		WHERE branch_id = $1 AND status IN ('waiting','called')
		ORDER BY created_at ASC
	`, branchID)
	if err != nil {
		return store.DisplayBoard{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var ticketID, code, group, name, status string
		var pax int
		var createdAt time.Time
		var calledAtNull sql.NullTime
		if err := rows.Scan(&ticketID, &code, &group, &name, &pax, &status, &createdAt, &calledAtNull); err != nil {
			return store.DisplayBoard{}, err
		}
		slot := board.Groups[group]
		if status == models.StatusCalled {
			updatedAt := createdAt
			if calledAtNull.Valid {
				updatedAt = calledAtNull.Time
			}
			slot.Called = &store.DisplayCalled{
				QueueCode: code,
				Name:      name,
				Pax:       pax,
				UpdatedAt: updatedAt,
			}
		} else {
			slot.Waiting = append(slot.Waiting, store.DisplayEntry{
				TicketID:  ticketID,
				QueueCode: code,
				Name:      name,
				Pax:       pax,
				Timestamp: createdAt,
			})
		}
		board.Groups[group] = slot
	}
	if err := rows.Err(); err != nil {
		return store.DisplayBoard{}, err
	}

	return board, nil
}

func (s *Store) getTicketTx(ctx context.Context, tx pgx.Tx, branchID, ticketID string) (models.Ticket, error) {
	var ticket models.Ticket
	var calledAtNull sql.NullTime
	var seatedAtNull sql.NullTime
	row := tx.QueryRow(ctx, `
		SELECT ticket_id, queue_code, group_id, name, pax, senior_pwd, status, created_at, called_at, seated_at
		FROM tickets
		WHERE branch_id = $1 AND ticket_id = $2
	`, branchID, ticketID)
	if err := row.Scan(&ticket.TicketID, &ticket.QueueCode, &ticket.Group, &ticket.Name, &ticket.Pax, &ticket.SeniorPWD, &ticket.Status, &ticket.CreatedAt, &calledAtNull, &seatedAtNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	ticket.BranchID = branchID
	ticket.CalledAt = nullTimePtr(calledAtNull)
	ticket.SeatedAt = nullTimePtr(seatedAtNull)
	return ticket, nil
}

func loadTicketState(ctx context.Context, tx pgx.Tx, branchID, ticketID string) (string, string, bool, error) {
	var status, group string
	row := tx.QueryRow(ctx, `
		SELECT status, group_id
		FROM tickets
		WHERE branch_id = $1 AND ticket_id = $2
		FOR UPDATE
	`, branchID, ticketID)
	if err := row.Scan(&status, &group); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", false, nil
		}
		return "", "", false, err
	}
	return status, group, true, nil
}

// lockGroup serializes call-state changes within a branch group by
// locking its board slot row, inserting the slot on first use. Every
// transaction that moves tickets in or out of 'called' takes this lock
// before touching ticket rows.
func lockGroup(ctx context.Context, tx pgx.Tx, branchID, group string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO now_serving (branch_id, group_id, queue_code, updated_at)
		VALUES ($1, $2, '', now())
		ON CONFLICT (branch_id, group_id)
		DO UPDATE SET updated_at = now_serving.updated_at
	`, branchID, group)
	return err
}

func ticketGroup(ctx context.Context, tx pgx.Tx, branchID, ticketID string) (string, bool, error) {
	var group string
	row := tx.QueryRow(ctx, `
		SELECT group_id
		FROM tickets
		WHERE branch_id = $1 AND ticket_id = $2
	`, branchID, ticketID)
	if err := row.Scan(&group); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return group, true, nil
}

func ensureGroupNotCalled(ctx context.Context, tx pgx.Tx, branchID, group string) error {
	var ticketID string
	row := tx.QueryRow(ctx, `
		SELECT ticket_id
		FROM tickets
		WHERE branch_id = $1 AND group_id = $2 AND status = 'called'
		LIMIT 1
		FOR UPDATE
	`, branchID, group)
	if err := row.Scan(&ticketID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	return store.ErrAlreadyCalled
}

func nextQueueNumber(ctx context.Context, tx pgx.Tx, branchID, group, day string) (int64, error) {
	var next int64
	row := tx.QueryRow(ctx, `
		INSERT INTO queue_sequences (branch_id, group_id, day, next_number)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (branch_id, group_id, day)
		DO UPDATE SET next_number = queue_sequences.next_number + 1
		RETURNING next_number
	`, branchID, group, day)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

// setNowServing stamps both the per-group board slot and the global
// current slot in the same transaction as the call.
func setNowServing(ctx context.Context, tx pgx.Tx, branchID, group, queueCode, ticketID string, at time.Time) error {
	for _, slot := range []string{group, models.NowServingCurrent} {
		_, err := tx.Exec(ctx, `
			INSERT INTO now_serving (branch_id, group_id, queue_code, ticket_id, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (branch_id, group_id)
			DO UPDATE SET queue_code = $3, ticket_id = $4, updated_at = $5
		`, branchID, slot, queueCode, ticketID, at)
		if err != nil {
			return err
		}
	}
	return nil
}

// clearNowServing blanks board slots that still point at the ticket.
// Slots already overwritten by a later call are left alone.
func clearNowServing(ctx context.Context, tx pgx.Tx, branchID, ticketID string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE now_serving
		SET queue_code = '',
			ticket_id = NULL,
			updated_at = $3
		WHERE branch_id = $1 AND ticket_id = $2
	`, branchID, ticketID, at)
	return err
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}
