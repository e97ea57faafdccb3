// Package matchmaking runs the periodic per-course matching batch: it picks a
// random seed from the queue, asks the matcher for a compatible subset and
// commits the resulting group in a single transaction.
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyhub/groupmatch/internal/application/uow"
	"github.com/studyhub/groupmatch/internal/domain/course"
	"github.com/studyhub/groupmatch/internal/domain/group"
	"github.com/studyhub/groupmatch/internal/domain/matching"
	"github.com/studyhub/groupmatch/internal/domain/queue"
	"github.com/studyhub/groupmatch/internal/domain/shared"
	"github.com/studyhub/groupmatch/pkg/logger"
)

// DefaultCourseTimeout bounds one course transaction.
const DefaultCourseTimeout = 30 * time.Second

// Recorder receives batch metrics.
type Recorder interface {
	ObserveCourse(outcome Outcome, elapsed time.Duration)
	ObserveSearch(res matching.Result)
	ObserveRun(report RunReport)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCourse(Outcome, time.Duration) {}
func (nopRecorder) ObserveSearch(matching.Result)        {}
func (nopRecorder) ObserveRun(RunReport)                 {}

// Orchestrator drives matchmaking batches. Courses are processed one at a
// time; a failure in one course never stops the others.
type Orchestrator struct {
	store     uow.Store
	matcher   *matching.Matcher
	publisher shared.EventPublisher
	locker    CourseLocker
	metrics   Recorder
	clock     shared.Clock
	newID     func() string
	timeout   time.Duration
	log       *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLocker sets the course lock. Defaults to a LocalLocker.
func WithLocker(l CourseLocker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithRand sets the seed selection source.
func WithRand(r *rand.Rand) Option {
	return func(o *Orchestrator) { o.rng = r }
}

// WithClock sets the clock used for membership timestamps.
func WithClock(c shared.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithIDGenerator sets the group id generator.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// WithCourseTimeout bounds each course transaction.
func WithCourseTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// New creates an Orchestrator.
func New(store uow.Store, matcher *matching.Matcher, publisher shared.EventPublisher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		matcher:   matcher,
		publisher: publisher,
		locker:    NewLocalLocker(),
		metrics:   nopRecorder{},
		clock:     shared.SystemClock,
		newID:     uuid.NewString,
		timeout:   DefaultCourseTimeout,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.rng == nil {
		now := uint64(time.Now().UnixNano())
		o.rng = rand.New(rand.NewPCG(now, now>>1))
	}
	o.log = o.log.With(logger.Component("matchmaking"))
	return o
}

// ══════════════════════════════════════════════════════════════════════════════
// RUN ALL
// ══════════════════════════════════════════════════════════════════════════════

// RunAll attempts every course once, sequentially. Cancelling ctx stops new
// course batches from starting; a batch already running finishes on its own
// deadline. The error is non-nil only when the course list cannot be read.
func (o *Orchestrator) RunAll(ctx context.Context) (RunReport, error) {
	report := RunReport{StartedAt: o.clock.Now()}
	courses, err := o.store.Repositories().Courses.ListCourses(ctx)
	if err != nil {
		return report, fmt.Errorf("matchmaking: list courses: %w", err)
	}

	for _, c := range courses {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		report.add(o.RunCourse(ctx, c.ID))
	}
	report.Duration = o.clock.Now().Sub(report.StartedAt)

	o.metrics.ObserveRun(report)
	o.log.Info("matchmaking run finished",
		zap.Int("courses", len(report.Courses)),
		zap.Int("groups_formed", report.GroupsFormed),
		zap.Int("failures", report.Failures),
		zap.Bool("cancelled", report.Cancelled),
		logger.Latency(report.Duration))
	return report, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RUN COURSE
// ══════════════════════════════════════════════════════════════════════════════

// RunCourse runs one batch for a course. Errors are reported in the outcome.
func (o *Orchestrator) RunCourse(ctx context.Context, courseID string) CourseOutcome {
	start := time.Now()
	out := CourseOutcome{CourseID: courseID}
	log := o.log.With(logger.CourseID(courseID))

	release, err := o.locker.TryLock(ctx, courseID)
	if err != nil {
		if errors.Is(err, shared.ErrCourseLocked) {
			out.Outcome = OutcomeLocked
			log.Debug("course locked elsewhere, skipping")
		} else {
			out.Outcome = OutcomeFailed
			out.Err = err
			log.Error("failed to acquire course lock", zap.Error(err))
		}
		return o.finish(out, start)
	}
	defer release()

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	events, err := o.runBatch(runCtx, courseID, &out)
	if err != nil {
		out.Outcome = classify(err)
		out.Err = err
		out.GroupID, out.Members = "", nil
		if out.Outcome == OutcomeAbandoned {
			log.Warn("course batch abandoned", zap.Error(err))
		} else {
			log.Error("course batch failed", zap.Error(err))
		}
		return o.finish(out, start)
	}

	switch out.Outcome {
	case OutcomeFormed:
		log.Info("group formed",
			logger.GroupID(out.GroupID),
			zap.String("seed_id", out.SeedID),
			zap.Strings("members", out.Members),
			zap.Float64("score", out.Score),
			zap.Bool("complete", out.Complete))
		o.publish(events)
	default:
		log.Debug("no group formed", zap.String("outcome", string(out.Outcome)))
	}
	return o.finish(out, start)
}

func (o *Orchestrator) finish(out CourseOutcome, start time.Time) CourseOutcome {
	out.Duration = time.Since(start)
	o.metrics.ObserveCourse(out.Outcome, out.Duration)
	return out
}

func classify(err error) Outcome {
	switch {
	case shared.IsNotFound(err),
		shared.IsConflict(err),
		shared.IsValidation(err),
		errors.Is(err, shared.ErrConcurrentModification),
		errors.Is(err, shared.ErrInvalidState):
		return OutcomeAbandoned
	default:
		return OutcomeFailed
	}
}

func (o *Orchestrator) publish(events []shared.Event) {
	if o.publisher == nil {
		return
	}
	for _, e := range events {
		if err := o.publisher.Publish(e); err != nil {
			o.log.Warn("failed to publish event",
				zap.String("event_type", string(e.EventType())),
				zap.String("aggregate_id", e.AggregateID()),
				zap.Error(err))
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BATCH
// ══════════════════════════════════════════════════════════════════════════════

// pool is the eligible queue of one course.
type pool struct {
	groups      []*queue.GroupTicket
	individuals []*queue.Ticket
}

func (p pool) size() int { return len(p.groups) + len(p.individuals) }

func (p pool) individualCandidates() []matching.Candidate {
	out := make([]matching.Candidate, len(p.individuals))
	for i, t := range p.individuals {
		out[i] = t
	}
	return out
}

func (o *Orchestrator) runBatch(ctx context.Context, courseID string, out *CourseOutcome) (events []shared.Event, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("matchmaking: panic in course batch: %v", p)
		}
	}()

	err = o.store.WithinTx(ctx, func(ctx context.Context, r uow.Repositories) error {
		c, err := r.Courses.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		p, err := loadPool(ctx, r, courseID)
		if err != nil {
			return err
		}
		if p.size() < 2 {
			out.Outcome = OutcomeSkipped
			return nil
		}

		candidates := p.individualCandidates()
		for _, seed := range o.pickSeeds(p) {
			target := targetCount(c, seed)
			if target <= 0 {
				continue
			}
			res := o.matcher.MatchDetailed(seed, candidates, target)
			o.metrics.ObserveSearch(res)
			if len(res.Members) < target {
				continue
			}
			events, err = o.commit(ctx, r, c, seed, res, out)
			if err != nil {
				return err
			}
			out.Outcome = OutcomeFormed
			return nil
		}
		out.Outcome = OutcomeInsufficient
		return nil
	})
	return events, err
}

// loadPool reads the course queue. Individual tickets whose owner already
// belongs to a group in the course are left out of the pool.
func loadPool(ctx context.Context, r uow.Repositories, courseID string) (pool, error) {
	groupTickets, err := r.GroupTickets.ListByCourse(ctx, courseID)
	if err != nil {
		return pool{}, err
	}
	tickets, err := r.Tickets.ListByCourse(ctx, courseID)
	if err != nil {
		return pool{}, err
	}
	groups, err := r.Groups.ListByCourse(ctx, courseID)
	if err != nil {
		return pool{}, err
	}

	grouped := make(map[string]struct{})
	for _, g := range groups {
		for _, id := range g.MemberIDs() {
			grouped[id] = struct{}{}
		}
	}
	p := pool{individuals: make([]*queue.Ticket, 0, len(tickets))}
	for _, gt := range groupTickets {
		if gt.OpenSeats() > 0 {
			p.groups = append(p.groups, gt)
		}
	}
	for _, t := range tickets {
		if _, ok := grouped[t.UserID()]; !ok {
			p.individuals = append(p.individuals, t)
		}
	}
	return p, nil
}

// pickSeeds returns the seeds to try in order: a random group ticket when any
// group is queued, then a random individual ticket.
func (o *Orchestrator) pickSeeds(p pool) []matching.Candidate {
	o.rngMu.Lock()
	defer o.rngMu.Unlock()

	seeds := make([]matching.Candidate, 0, 2)
	if len(p.groups) > 0 {
		seeds = append(seeds, p.groups[o.rng.IntN(len(p.groups))])
	}
	if len(p.individuals) > 0 {
		seeds = append(seeds, p.individuals[o.rng.IntN(len(p.individuals))])
	}
	return seeds
}

// targetCount is the number of individual tickets needed to fill the seed.
func targetCount(c *course.Course, seed matching.Candidate) int {
	if gt, ok := seed.(*queue.GroupTicket); ok {
		return gt.OpenSeats()
	}
	return c.GroupSize - seed.Occupancy()
}

// commit applies a match inside the batch transaction.
func (o *Orchestrator) commit(
	ctx context.Context,
	r uow.Repositories,
	c *course.Course,
	seed matching.Candidate,
	res matching.Result,
	out *CourseOutcome,
) ([]shared.Event, error) {
	now := o.clock.Now()
	consumed := make([]string, 0, len(res.Members)+1)
	joiners := make([]string, 0, len(res.Members))
	for _, m := range res.Members {
		consumed = append(consumed, m.ID())
		joiners = append(joiners, m.Members()...)
	}

	var g *group.Group
	switch s := seed.(type) {
	case *queue.GroupTicket:
		var err error
		if g, err = r.Groups.GetByID(ctx, s.GroupID()); err != nil {
			return nil, err
		}
		if err := addMembers(g, joiners, now); err != nil {
			return nil, err
		}
		if err := r.Groups.Save(ctx, g); err != nil {
			return nil, err
		}
		if g.IsFull() {
			n, err := r.GroupTickets.Dequeue(ctx, s.ID())
			if err != nil {
				return nil, err
			}
			if n == 0 {
				return nil, shared.ErrStaleTicket
			}
		}

	case *queue.Ticket:
		var err error
		if g, err = group.NewGroup(o.newID(), c.ID, c.GroupSize, s.Preferences(), now); err != nil {
			return nil, err
		}
		if err := addMembers(g, append([]string{s.UserID()}, joiners...), now); err != nil {
			return nil, err
		}
		if err := r.Groups.Create(ctx, g); err != nil {
			return nil, err
		}
		consumed = append(consumed, s.ID())

	default:
		return nil, fmt.Errorf("matchmaking: unsupported seed kind %q", seed.Kind())
	}

	n, err := r.Tickets.Dequeue(ctx, consumed...)
	if err != nil {
		return nil, err
	}
	if n != len(consumed) {
		return nil, shared.ErrStaleTicket
	}

	out.GroupID = g.ID()
	out.SeedID = seed.ID()
	out.Members = g.MemberIDs()
	out.Score = res.Score
	out.Complete = g.IsComplete()
	return g.PullEvents(), nil
}

func addMembers(g *group.Group, userIDs []string, now time.Time) error {
	if err := g.CanAdmit(userIDs); err != nil {
		return err
	}
	for _, id := range userIDs {
		if err := g.AddMember(id, now); err != nil {
			return err
		}
	}
	return nil
}
