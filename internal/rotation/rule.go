package rotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/session-scheduler-api/internal/models"
)

// ErrInvalidRule is returned when a recurrence config does not fit its pattern.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// Rule picks a tutor for one session on behalf of one candidate assignment.
// An empty result means the candidate does not claim the session.
type Rule interface {
	Pattern() models.RecurrencePattern
	Pick(c Candidate, s Slice) string
}

// RoundRobin cycles through every round-robin candidate of the slot by session index.
type RoundRobin struct{}

// Weekly claims sessions by week number counted from the assignment's anchor week.
type Weekly struct {
	Weeks       map[int]struct{}
	Alternating bool
	StartWeek   int
}

// ConsecutiveDays hands out blocks of Block sessions to each candidate in turn.
type ConsecutiveDays struct {
	Block int
}

// Manual never claims a session; it is reserved for out-of-band assignment.
type Manual struct{}

func (RoundRobin) Pattern() models.RecurrencePattern      { return models.RecurrenceRoundRobin }
func (Weekly) Pattern() models.RecurrencePattern          { return models.RecurrenceWeekly }
func (ConsecutiveDays) Pattern() models.RecurrencePattern { return models.RecurrenceConsecutiveDays }
func (Manual) Pattern() models.RecurrencePattern          { return models.RecurrenceManual }

// Pick returns peers[index mod N] among round-robin candidates.
func (RoundRobin) Pick(_ Candidate, s Slice) string {
	peers := s.peers(models.RecurrenceRoundRobin)
	if len(peers) == 0 {
		return ""
	}
	return peers[s.Index%len(peers)].Assignment.TutorID
}

// Pick returns the candidate's tutor when the session's week number is selected.
func (r Weekly) Pick(c Candidate, s Slice) string {
	week := s.weekNumber(c.anchor())
	if len(r.Weeks) > 0 {
		if _, ok := r.Weeks[week]; ok {
			return c.Assignment.TutorID
		}
		return ""
	}
	if r.Alternating && mod(week-r.StartWeek, 2) == 0 {
		return c.Assignment.TutorID
	}
	return ""
}

// Pick returns the candidate's tutor when its block owns the session's position in the cycle.
func (r ConsecutiveDays) Pick(c Candidate, s Slice) string {
	peers := s.peers(models.RecurrenceConsecutiveDays)
	position := -1
	for i, p := range peers {
		if p.Assignment.ID == c.Assignment.ID {
			position = i
			break
		}
	}
	if position < 0 {
		return ""
	}
	block := r.Block
	if block < 1 {
		block = 1
	}
	cycle := len(peers) * block
	owner := (s.Index % cycle) / block
	if owner == position {
		return c.Assignment.TutorID
	}
	return ""
}

// Pick implements Rule.
func (Manual) Pick(Candidate, Slice) string { return "" }

// ParseRule validates raw against pattern and returns the matching rule.
func ParseRule(pattern models.RecurrencePattern, raw []byte) (Rule, error) {
	var cfg models.RecurrenceConfig
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
	}

	switch pattern {
	case models.RecurrenceRoundRobin:
		return RoundRobin{}, nil
	case models.RecurrenceManual:
		return Manual{}, nil
	case models.RecurrenceConsecutiveDays:
		block := 1
		if cfg.ConsecutiveDays != nil {
			if *cfg.ConsecutiveDays < 1 {
				return nil, fmt.Errorf("%w: consecutiveDays must be at least 1", ErrInvalidRule)
			}
			block = *cfg.ConsecutiveDays
		}
		return ConsecutiveDays{Block: block}, nil
	case models.RecurrenceWeekly:
		return parseWeekly(cfg)
	}
	return nil, fmt.Errorf("%w: unknown pattern %q", ErrInvalidRule, pattern)
}

func parseWeekly(cfg models.RecurrenceConfig) (Rule, error) {
	if len(cfg.Weeks) > 0 {
		weeks := make(map[int]struct{}, len(cfg.Weeks))
		for _, w := range cfg.Weeks {
			if w < 1 {
				return nil, fmt.Errorf("%w: week numbers start at 1", ErrInvalidRule)
			}
			weeks[w] = struct{}{}
		}
		return Weekly{Weeks: weeks}, nil
	}
	if cfg.Pattern == "alternating" {
		start := 1
		if cfg.StartWeek != nil {
			start = *cfg.StartWeek
		}
		return Weekly{Alternating: true, StartWeek: start}, nil
	}
	return nil, fmt.Errorf("%w: weekly rotation needs weeks or pattern \"alternating\"", ErrInvalidRule)
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}
