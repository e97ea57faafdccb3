package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/studyhub/groupmatch/internal/domain/preference"
	"github.com/studyhub/groupmatch/internal/domain/queue"
	"github.com/studyhub/groupmatch/internal/domain/shared"
)

type prefsRow struct {
	Languages, Availability, Days, Locations int64
}

func (p *prefsRow) dest() []any {
	return []any{&p.Languages, &p.Availability, &p.Days, &p.Locations}
}

func (p prefsRow) toDomain() preference.Preferences {
	return preference.Preferences{
		Languages:    preference.LanguageSet(p.Languages),
		Availability: preference.Availability(p.Availability),
		Days:         preference.DaySet(p.Days),
		Locations:    preference.LocationSet(p.Locations),
	}
}

func prefsArgs(p preference.Preferences) []any {
	return []any{int64(p.Languages), int64(p.Availability), int64(p.Days), int64(p.Locations)}
}

// ══════════════════════════════════════════════════════════════════════════════
// TICKET REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// TicketRepository implements queue.TicketRepository for SQLite.
type TicketRepository struct {
	q   dbtx
	now func() time.Time
}

var _ queue.TicketRepository = (*TicketRepository)(nil)

// Enqueue inserts the ticket after checking for an existing entry.
func (r *TicketRepository) Enqueue(ctx context.Context, t *queue.Ticket) error {
	exists, err := r.ExistsForIdentity(ctx, t.UserID(), t.CourseID())
	if err != nil {
		return err
	}
	if exists {
		return shared.ErrAlreadyQueued
	}

	queuedAt := r.now()
	args := append([]any{t.ID(), t.CourseID(), t.UserID()}, prefsArgs(t.Preferences())...)
	args = append(args, toNanos(queuedAt))
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO tickets (id, course_id, user_id, languages, availability, days, locations, queued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyQueued
		}
		if isForeignKeyViolation(err) {
			return shared.ErrCourseNotFound
		}
		return fmt.Errorf("failed to enqueue ticket: %w", err)
	}
	t.AssignQueuedAt(fromNanos(toNanos(queuedAt)))
	return nil
}

// Dequeue deletes tickets by id and reports the number removed.
func (r *TicketRepository) Dequeue(ctx context.Context, ids ...string) (int, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.q.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM tickets WHERE id IN (%s)`, placeholders(len(ids))),
		stringArgs(ids)...)
	if err != nil {
		return 0, fmt.Errorf("failed to dequeue tickets: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// GetByID returns a ticket by id.
func (r *TicketRepository) GetByID(ctx context.Context, id string) (*queue.Ticket, error) {
	t, err := scanTicket(r.q.QueryRowContext(ctx, `
		SELECT id, course_id, user_id, languages, availability, days, locations, queued_at
		FROM tickets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrTicketNotFound
	}
	return t, err
}

// ListByCourse returns the course's tickets, longest waiting first.
func (r *TicketRepository) ListByCourse(ctx context.Context, courseID string) ([]*queue.Ticket, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, course_id, user_id, languages, availability, days, locations, queued_at
		FROM tickets WHERE course_id = ?
		ORDER BY queued_at, id`, courseID)
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
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM tickets WHERE course_id = ? AND user_id = ?)`,
		courseID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check ticket: %w", err)
	}
	return exists, nil
}

func scanTicket(row scanner) (*queue.Ticket, error) {
	var (
		id, courseID, userID string
		prefs                prefsRow
		queuedAt             int64
	)
	dest := append([]any{&id, &courseID, &userID}, prefs.dest()...)
	dest = append(dest, &queuedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return queue.RestoreTicket(id, courseID, userID, prefs.toDomain(), fromNanos(queuedAt)), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GROUP TICKET REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// GroupTicketRepository implements queue.GroupTicketRepository for SQLite.
type GroupTicketRepository struct {
	q   dbtx
	now func() time.Time
}

var _ queue.GroupTicketRepository = (*GroupTicketRepository)(nil)

const groupTicketSelect = `
	SELECT gt.id, gt.course_id, gt.group_id, gt.queued_at, g.capacity,
	       g.languages, g.availability, g.days, g.locations
	FROM group_tickets gt
	JOIN groups g ON g.id = gt.group_id
`

type groupTicketRow struct {
	id, courseID, groupID string
	queuedAt              int64
	capacity              int
	prefs                 prefsRow
}

// Enqueue inserts the group ticket.
func (r *GroupTicketRepository) Enqueue(ctx context.Context, t *queue.GroupTicket) error {
	exists, err := r.ExistsForIdentity(ctx, t.GroupID(), t.CourseID())
	if err != nil {
		return err
	}
	if exists {
		return shared.ErrGroupAlreadyQueue
	}

	queuedAt := r.now()
	_, err = r.q.ExecContext(ctx,
		`INSERT INTO group_tickets (id, group_id, course_id, queued_at) VALUES (?, ?, ?, ?)`,
		t.ID(), t.GroupID(), t.CourseID(), toNanos(queuedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrGroupAlreadyQueue
		}
		if isForeignKeyViolation(err) {
			return shared.ErrGroupNotFound
		}
		return fmt.Errorf("failed to enqueue group ticket: %w", err)
	}
	t.AssignQueuedAt(fromNanos(toNanos(queuedAt)))
	return nil
}

// Dequeue deletes group tickets by id.
func (r *GroupTicketRepository) Dequeue(ctx context.Context, ids ...string) (int, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.q.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM group_tickets WHERE id IN (%s)`, placeholders(len(ids))),
		stringArgs(ids)...)
	if err != nil {
		return 0, fmt.Errorf("failed to dequeue group tickets: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// GetByID returns a group ticket by id.
func (r *GroupTicketRepository) GetByID(ctx context.Context, id string) (*queue.GroupTicket, error) {
	return r.getOne(ctx, groupTicketSelect+` WHERE gt.id = ?`, id)
}

// GetByGroup returns the ticket of a queued group.
func (r *GroupTicketRepository) GetByGroup(ctx context.Context, groupID string) (*queue.GroupTicket, error) {
	return r.getOne(ctx, groupTicketSelect+` WHERE gt.group_id = ?`, groupID)
}

func (r *GroupTicketRepository) getOne(ctx context.Context, query string, arg string) (*queue.GroupTicket, error) {
	var row groupTicketRow
	dest := append([]any{&row.id, &row.courseID, &row.groupID, &row.queuedAt, &row.capacity}, row.prefs.dest()...)
	if err := r.q.QueryRowContext(ctx, query, arg).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrGroupTicketNotFound
		}
		return nil, fmt.Errorf("failed to load group ticket: %w", err)
	}
	return r.hydrate(ctx, row)
}

// ListByCourse returns queued groups of a course, longest waiting first.
func (r *GroupTicketRepository) ListByCourse(ctx context.Context, courseID string) ([]*queue.GroupTicket, error) {
	rows, err := r.q.QueryContext(ctx, groupTicketSelect+` WHERE gt.course_id = ? ORDER BY gt.queued_at, gt.id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group tickets: %w", err)
	}
	var raw []groupTicketRow
	for rows.Next() {
		var row groupTicketRow
		dest := append([]any{&row.id, &row.courseID, &row.groupID, &row.queuedAt, &row.capacity}, row.prefs.dest()...)
		if err := rows.Scan(dest...); err != nil {
			rows.Close()
			return nil, err
		}
		raw = append(raw, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*queue.GroupTicket, 0, len(raw))
	for _, row := range raw {
		gt, err := r.hydrate(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, gt)
	}
	return out, nil
}

func (r *GroupTicketRepository) hydrate(ctx context.Context, row groupTicketRow) (*queue.GroupTicket, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id = ? ORDER BY position`, row.groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group members: %w", err)
	}
	members, err := collectStrings(rows)
	if err != nil {
		return nil, err
	}
	return queue.RestoreGroupTicket(row.id, row.courseID, row.groupID, members,
		row.prefs.toDomain(), row.capacity, fromNanos(row.queuedAt)), nil
}

// ExistsForIdentity reports whether the group is queued for the course.
func (r *GroupTicketRepository) ExistsForIdentity(ctx context.Context, groupID, courseID string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM group_tickets WHERE group_id = ? AND course_id = ?)`,
		groupID, courseID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check group ticket: %w", err)
	}
	return exists, nil
}
