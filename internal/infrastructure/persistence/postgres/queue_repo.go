package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/studyhub/groupmatch/internal/domain/queue"
	"github.com/studyhub/groupmatch/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TICKET REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// TicketRepository implements queue.TicketRepository for PostgreSQL.
type TicketRepository struct {
	q Querier
}

// NewTicketRepository creates a TicketRepository over a pool or transaction.
func NewTicketRepository(q Querier) *TicketRepository {
	return &TicketRepository{q: q}
}

var _ queue.TicketRepository = (*TicketRepository)(nil)

// Enqueue inserts the ticket. The existence check runs first; the unique
// constraint on (course_id, user_id) catches concurrent inserts.
func (r *TicketRepository) Enqueue(ctx context.Context, t *queue.Ticket) error {
	exists, err := r.ExistsForIdentity(ctx, t.UserID(), t.CourseID())
	if err != nil {
		return err
	}
	if exists {
		return shared.ErrAlreadyQueued
	}

	args := append([]any{t.ID(), t.CourseID(), t.UserID()}, prefsArgs(t.Preferences())...)
	var queuedAt time.Time
	err = r.q.QueryRow(ctx, `
		INSERT INTO tickets (id, course_id, user_id, languages, availability, days, locations)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING queued_at
	`, args...).Scan(&queuedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyQueued
		}
		if IsForeignKeyViolation(err) {
			return shared.ErrCourseNotFound
		}
		return fmt.Errorf("failed to enqueue ticket: %w", err)
	}
	t.AssignQueuedAt(queuedAt.UTC())
	return nil
}

// Dequeue deletes tickets by id and reports the number removed.
func (r *TicketRepository) Dequeue(ctx context.Context, ids ...string) (int, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.q.Exec(ctx,
		fmt.Sprintf(`DELETE FROM tickets WHERE id IN (%s)`, placeholders(1, len(ids))),
		stringArgs(ids)...)
	if err != nil {
		return 0, fmt.Errorf("failed to dequeue tickets: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// GetByID returns a ticket by id.
func (r *TicketRepository) GetByID(ctx context.Context, id string) (*queue.Ticket, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, course_id, user_id, languages, availability, days, locations, queued_at
		FROM tickets WHERE id = $1
	`, id)
	t, err := scanTicket(row)
	if IsNoRows(err) {
		return nil, shared.ErrTicketNotFound
	}
	return t, err
}

// ListByCourse returns the course's tickets, longest waiting first.
func (r *TicketRepository) ListByCourse(ctx context.Context, courseID string) ([]*queue.Ticket, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, course_id, user_id, languages, availability, days, locations, queued_at
		FROM tickets WHERE course_id = $1
		ORDER BY queued_at, id
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var out []*queue.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ExistsForIdentity reports whether the user holds a ticket for the course.
func (r *TicketRepository) ExistsForIdentity(ctx context.Context, userID, courseID string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tickets WHERE course_id = $1 AND user_id = $2)`,
		courseID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check ticket: %w", err)
	}
	return exists, nil
}

func scanTicket(row pgx.Row) (*queue.Ticket, error) {
	var (
		id, courseID, userID string
		prefs                prefsRow
		queuedAt             time.Time
	)
	dest := append([]any{&id, &courseID, &userID}, prefs.dest()...)
	dest = append(dest, &queuedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return queue.RestoreTicket(id, courseID, userID, prefs.toDomain(), queuedAt.UTC()), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GROUP TICKET REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// GroupTicketRepository implements queue.GroupTicketRepository for PostgreSQL.
type GroupTicketRepository struct {
	q Querier
}

// NewGroupTicketRepository creates a GroupTicketRepository.
func NewGroupTicketRepository(q Querier) *GroupTicketRepository {
	return &GroupTicketRepository{q: q}
}

var _ queue.GroupTicketRepository = (*GroupTicketRepository)(nil)

const groupTicketSelect = `
	SELECT gt.id, gt.course_id, gt.group_id, gt.queued_at, g.capacity,
	       g.languages, g.availability, g.days, g.locations,
	       COALESCE((SELECT array_agg(m.user_id::text ORDER BY m.position)
	                 FROM group_members m WHERE m.group_id = g.id), '{}'::text[])
	FROM group_tickets gt
	JOIN groups g ON g.id = gt.group_id
`

// Enqueue inserts the group ticket.
func (r *GroupTicketRepository) Enqueue(ctx context.Context, t *queue.GroupTicket) error {
	exists, err := r.ExistsForIdentity(ctx, t.GroupID(), t.CourseID())
	if err != nil {
		return err
	}
	if exists {
		return shared.ErrGroupAlreadyQueue
	}

	var queuedAt time.Time
	err = r.q.QueryRow(ctx, `
		INSERT INTO group_tickets (id, group_id, course_id)
		VALUES ($1, $2, $3)
		RETURNING queued_at
	`, t.ID(), t.GroupID(), t.CourseID()).Scan(&queuedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrGroupAlreadyQueue
		}
		if IsForeignKeyViolation(err) {
			return shared.ErrGroupNotFound
		}
		return fmt.Errorf("failed to enqueue group ticket: %w", err)
	}
	t.AssignQueuedAt(queuedAt.UTC())
	return nil
}

// Dequeue deletes group tickets by id.
func (r *GroupTicketRepository) Dequeue(ctx context.Context, ids ...string) (int, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.q.Exec(ctx,
		fmt.Sprintf(`DELETE FROM group_tickets WHERE id IN (%s)`, placeholders(1, len(ids))),
		stringArgs(ids)...)
	if err != nil {
		return 0, fmt.Errorf("failed to dequeue group tickets: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// GetByID returns a group ticket by id.
func (r *GroupTicketRepository) GetByID(ctx context.Context, id string) (*queue.GroupTicket, error) {
	t, err := scanGroupTicket(r.q.QueryRow(ctx, groupTicketSelect+` WHERE gt.id = $1`, id))
	if IsNoRows(err) {
		return nil, shared.ErrGroupTicketNotFound
	}
	return t, err
}

// GetByGroup returns the ticket of a queued group.
func (r *GroupTicketRepository) GetByGroup(ctx context.Context, groupID string) (*queue.GroupTicket, error) {
	t, err := scanGroupTicket(r.q.QueryRow(ctx, groupTicketSelect+` WHERE gt.group_id = $1`, groupID))
	if IsNoRows(err) {
		return nil, shared.ErrGroupTicketNotFound
	}
	return t, err
}

// ListByCourse returns queued groups of a course, longest waiting first.
func (r *GroupTicketRepository) ListByCourse(ctx context.Context, courseID string) ([]*queue.GroupTicket, error) {
	rows, err := r.q.Query(ctx, groupTicketSelect+` WHERE gt.course_id = $1 ORDER BY gt.queued_at, gt.id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group tickets: %w", err)
	}
	defer rows.Close()

	var out []*queue.GroupTicket
	for rows.Next() {
		t, err := scanGroupTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ExistsForIdentity reports whether the group is queued for the course.
func (r *GroupTicketRepository) ExistsForIdentity(ctx context.Context, groupID, courseID string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM group_tickets WHERE group_id = $1 AND course_id = $2)`,
		groupID, courseID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check group ticket: %w", err)
	}
	return exists, nil
}

func scanGroupTicket(row pgx.Row) (*queue.GroupTicket, error) {
	var (
		id, courseID, groupID string
		queuedAt              time.Time
		capacity              int
		prefs                 prefsRow
		members               []string
	)
	dest := append([]any{&id, &courseID, &groupID, &queuedAt, &capacity}, prefs.dest()...)
	dest = append(dest, &members)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return queue.RestoreGroupTicket(id, courseID, groupID, members, prefs.toDomain(), capacity, queuedAt.UTC()), nil
}
