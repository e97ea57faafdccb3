package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/studyhub/groupmatch/internal/application/command"
	"github.com/studyhub/groupmatch/internal/application/query"
	"github.com/studyhub/groupmatch/internal/domain/preference"
	"github.com/studyhub/groupmatch/internal/domain/shared"
)

// pathID reads a UUID route parameter. A malformed value is answered with
// 400 before it reaches a repository.
func pathID(w http.ResponseWriter, r *http.Request, domain, param string) (string, bool) {
	id, err := shared.ParseID(domain, param, chi.URLParam(r, param))
	if err != nil {
		writeDomainError(w, r, err)
		return "", false
	}
	return id, true
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// TICKETS
// ══════════════════════════════════════════════════════════════════════════════

type enqueueTicketRequest struct {
	Preferences preference.Preferences `json:"preferences"`
}

type ticketResponse struct {
	TicketID    string                 `json:"ticket_id"`
	CourseID    string                 `json:"course_id"`
	QueuedAt    time.Time              `json:"queued_at"`
	Preferences preference.Preferences `json:"preferences"`
}

func (s *Server) handleEnqueueTicket(w http.ResponseWriter, r *http.Request) {
	var req enqueueTicketRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	courseID, ok := pathID(w, r, "course", "courseID")
	if !ok {
		return
	}

	res, err := s.deps.EnqueueTicket.Handle(r.Context(), command.EnqueueTicketCommand{
		CourseID:  courseID,
		UserID:    userID(r.Context()),
		Overrides: req.Preferences,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, ticketResponse{
		TicketID:    res.TicketID,
		CourseID:    courseID,
		QueuedAt:    res.QueuedAt,
		Preferences: res.Preferences,
	})
}

func (s *Server) handleWithdrawTicket(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := pathID(w, r, "queue", "ticketID")
	if !ok {
		return
	}
	err := s.deps.WithdrawTicket.Handle(r.Context(), command.WithdrawTicketCommand{
		TicketID: ticketID,
		UserID:   userID(r.Context()),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathID(w, r, "course", "courseID")
	if !ok {
		return
	}
	dto, err := s.deps.QueueStatus.Handle(r.Context(), query.QueueStatusQuery{
		CourseID: courseID,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

type preferencesRequest struct {
	Preferences preference.Preferences `json:"preferences"`
}

type preferencesResponse struct {
	UserID      string                 `json:"user_id"`
	Preferences preference.Preferences `json:"preferences"`
	Changed     []string               `json:"changed"`
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	res, err := s.deps.UpdatePreferences.Handle(r.Context(), command.UpdatePreferencesCommand{
		UserID:      userID(r.Context()),
		Preferences: req.Preferences,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	changed := res.ChangedFields
	if changed == nil {
		changed = []string{}
	}
	writeJSON(w, r, http.StatusOK, preferencesResponse{
		UserID:      res.UserID,
		Preferences: res.Preferences,
		Changed:     changed,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// GROUPS
// ══════════════════════════════════════════════════════════════════════════════

type groupTicketResponse struct {
	TicketID  string    `json:"ticket_id"`
	GroupID   string    `json:"group_id"`
	CourseID  string    `json:"course_id"`
	OpenSeats int       `json:"open_seats"`
	QueuedAt  time.Time `json:"queued_at"`
}

func (s *Server) handleEnqueueGroupTicket(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "group", "groupID")
	if !ok {
		return
	}
	res, err := s.deps.EnqueueGroupTicket.Handle(r.Context(), command.EnqueueGroupTicketCommand{
		GroupID:     groupID,
		RequestedBy: userID(r.Context()),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, groupTicketResponse{
		TicketID:  res.TicketID,
		GroupID:   groupID,
		CourseID:  res.CourseID,
		OpenSeats: res.OpenSeats,
		QueuedAt:  res.QueuedAt,
	})
}

func (s *Server) handleWithdrawGroupTicket(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "group", "groupID")
	if !ok {
		return
	}
	err := s.deps.WithdrawGroupTicket.Handle(r.Context(), command.WithdrawGroupTicketCommand{
		GroupID:     groupID,
		RequestedBy: userID(r.Context()),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type leaveGroupResponse struct {
	GroupID   string `json:"group_id"`
	Remaining int    `json:"remaining"`
	Disbanded bool   `json:"disbanded"`
}

func (s *Server) handleLeaveGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "group", "groupID")
	if !ok {
		return
	}
	res, err := s.deps.LeaveGroup.Handle(r.Context(), command.LeaveGroupCommand{
		GroupID: groupID,
		UserID:  userID(r.Context()),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, leaveGroupResponse{
		GroupID:   groupID,
		Remaining: res.Remaining,
		Disbanded: res.Disbanded,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// OPERATOR
// ══════════════════════════════════════════════════════════════════════════════

type createGroupRequest struct {
	Capacity    int                    `json:"capacity"`
	Members     []string               `json:"members"`
	Preferences preference.Preferences `json:"preferences"`
}

type createGroupResponse struct {
	GroupID    string    `json:"group_id"`
	Capacity   int       `json:"capacity"`
	Members    []string  `json:"members"`
	IsComplete bool      `json:"is_complete"`
	CreatedAt  time.Time `json:"created_at"`
	Withdrawn  []string  `json:"withdrawn_tickets,omitempty"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	courseID, ok := pathID(w, r, "course", "courseID")
	if !ok {
		return
	}
	members := make([]string, len(req.Members))
	for i, raw := range req.Members {
		id, err := shared.ParseID("group", "member ID", raw)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		members[i] = id
	}
	res, err := s.deps.CreateGroup.Handle(r.Context(), command.CreateGroupCommand{
		CourseID:    courseID,
		Capacity:    req.Capacity,
		Members:     members,
		Preferences: req.Preferences,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, createGroupResponse{
		GroupID:    res.GroupID,
		Capacity:   res.Capacity,
		Members:    res.Members,
		IsComplete: res.IsComplete,
		CreatedAt:  res.CreatedAt,
		Withdrawn:  res.Withdrawn,
	})
}

type courseOutcomeResponse struct {
	CourseID   string   `json:"course_id"`
	Outcome    string   `json:"outcome"`
	GroupID    string   `json:"group_id,omitempty"`
	Members    []string `json:"members,omitempty"`
	Score      float64  `json:"score,omitempty"`
	Complete   bool     `json:"complete,omitempty"`
	Error      string   `json:"error,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

func (s *Server) handleRunMatchmaking(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathID(w, r, "course", "courseID")
	if !ok {
		return
	}
	out := s.deps.Runner.RunCourse(r.Context(), courseID)
	resp := courseOutcomeResponse{
		CourseID:   out.CourseID,
		Outcome:    string(out.Outcome),
		GroupID:    out.GroupID,
		Members:    out.Members,
		Score:      out.Score,
		Complete:   out.Complete,
		DurationMS: out.Duration.Milliseconds(),
	}
	if out.Err != nil {
		resp.Error = publicMessage(out.Err)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeOptionalJSON decodes the body into dst; an empty body leaves dst
// untouched. It writes a 400 and returns false on malformed input.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, r, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return false
	}
	return true
}
