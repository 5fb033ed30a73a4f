package rotation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/session-scheduler-api/internal/models"
	"github.com/noah-isme/session-scheduler-api/pkg/timerange"
)

// History exposes the start instants of every session ever generated for a class subject.
type History interface {
	SessionStarts(ctx context.Context, classID, subject string) ([]time.Time, error)
}

// Candidate is an assignment paired with its parsed rule.
type Candidate struct {
	Assignment models.TutorAssignment
	Rule       Rule
}

func (c Candidate) anchor() time.Time {
	if c.Assignment.StartDate != nil {
		return *c.Assignment.StartDate
	}
	return c.Assignment.CreatedAt
}

// Slice is the evaluation context of one session: its lifetime index and the candidates that apply to it.
type Slice struct {
	Session    models.Session
	Index      int
	Candidates []Candidate
	loc        *time.Location
}

func (s Slice) peers(pattern models.RecurrencePattern) []Candidate {
	var out []Candidate
	for _, c := range s.Candidates {
		if c.Rule.Pattern() == pattern {
			out = append(out, c)
		}
	}
	return out
}

// weekNumber is the 1-based week of the session counted from the week containing anchor.
func (s Slice) weekNumber(anchor time.Time) int {
	days := timerange.DaysBetween(timerange.WeekStart(anchor, s.loc), timerange.WeekStart(s.Session.ScheduledStart, s.loc), s.loc)
	return floorDiv(days, 7) + 1
}

// Engine resolves which tutor teaches each session of a class.
type Engine struct {
	history History
	loc     *time.Location
	logger  *zap.Logger
}

// NewEngine constructs an engine evaluating dates in loc.
func NewEngine(history History, loc *time.Location, logger *zap.Logger) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{history: history, loc: loc, logger: logger}
}

// Resolve maps session id to tutor id for sessions of a single class. Sessions no rule claims are
// left out of the result.
func (e *Engine) Resolve(ctx context.Context, sessions []models.Session, assignments []models.TutorAssignment) (map[string]string, error) {
	result := make(map[string]string, len(sessions))
	if len(sessions) == 0 || len(assignments) == 0 {
		return result, nil
	}

	candidates := e.candidates(assignments)
	if len(candidates) == 0 {
		return result, nil
	}

	starts := make(map[string][]time.Time)
	for _, session := range sessions {
		applicable := e.applicable(candidates, session)
		if len(applicable) == 0 {
			continue
		}

		history, ok := starts[session.Subject]
		if !ok {
			var err error
			history, err = e.history.SessionStarts(ctx, session.ClassID, session.Subject)
			if err != nil {
				return nil, fmt.Errorf("load session history: %w", err)
			}
			starts[session.Subject] = history
		}

		slice := Slice{
			Session:    session,
			Index:      e.sessionIndex(history, session.ScheduledStart),
			Candidates: applicable,
			loc:        e.loc,
		}
		for _, c := range applicable {
			if tutorID := c.Rule.Pick(c, slice); tutorID != "" {
				result[session.ID] = tutorID
				break
			}
		}
	}
	return result, nil
}

// candidates keeps participating assignments with valid rules, stably ordered by creation time.
func (e *Engine) candidates(assignments []models.TutorAssignment) []Candidate {
	out := make([]Candidate, 0, len(assignments))
	for _, a := range assignments {
		if !a.Participates() {
			continue
		}
		rule, err := ParseRule(a.RecurrencePattern, a.RecurrenceConfig)
		if err != nil {
			e.logger.Warn("skipping assignment with invalid rule", zap.String("assignment_id", a.ID), zap.Error(err))
			continue
		}
		out = append(out, Candidate{Assignment: a, Rule: rule})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Assignment.CreatedAt.Before(out[j].Assignment.CreatedAt)
	})
	return out
}

func (e *Engine) applicable(candidates []Candidate, session models.Session) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		a := c.Assignment
		if a.ClassID != session.ClassID || a.Subject != session.Subject {
			continue
		}
		if a.TimeSlotID != nil && (session.TimeSlotID == nil || *a.TimeSlotID != *session.TimeSlotID) {
			continue
		}
		if !e.covers(a, session.ScheduledStart) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// covers reports whether the assignment's validity window includes the session's calendar date.
func (e *Engine) covers(a models.TutorAssignment, at time.Time) bool {
	if a.StartDate != nil && timerange.DaysBetween(*a.StartDate, at, e.loc) < 0 {
		return false
	}
	if a.EndDate != nil && timerange.DaysBetween(at, *a.EndDate, e.loc) < 0 {
		return false
	}
	return true
}

// sessionIndex counts distinct earlier starts sharing the session's weekday and wall-clock time.
func (e *Engine) sessionIndex(history []time.Time, start time.Time) int {
	local := start.In(e.loc)
	clock := timerange.ClockOf(local)
	seen := make(map[int64]struct{}, len(history))
	index := 0
	for _, h := range history {
		h = h.In(e.loc)
		if !h.Before(start) || h.Weekday() != local.Weekday() || timerange.ClockOf(h) != clock {
			continue
		}
		key := h.Unix()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		index++
	}
	return index
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
