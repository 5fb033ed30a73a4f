package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/session-scheduler-api/internal/models"
)

// fixtureNow is Wednesday 2025-01-08 10:00 UTC; its week starts Monday 2025-01-06.
var fixtureNow = time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC)

var (
	owner   = models.Actor{UserID: "owner-1", Role: models.RoleOwner}
	student = models.Actor{UserID: "student-1", Role: models.RoleStudent}
)

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func expectCommits(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

// memStore backs every scheduling store with shared in-memory state.
type memStore struct {
	mu          sync.Mutex
	seq         int
	classes     map[string]models.Class
	members     map[string][]string
	tutors      map[string]models.Tutor
	slots       map[string]models.TimeSlot
	weeks       map[string]models.WeekCancellation
	sessions    []models.Session
	assignments []models.TutorAssignment
}

func newMemStore() *memStore {
	return &memStore{
		classes: map[string]models.Class{},
		members: map[string][]string{},
		tutors:  map[string]models.Tutor{},
		slots:   map[string]models.TimeSlot{},
		weeks:   map[string]models.WeekCancellation{},
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memStore) live(classID string) []models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, session := range s.sessions {
		if session.ClassID == classID && session.Status != models.SessionStatusCancelled {
			out = append(out, session)
		}
	}
	return out
}

type memClasses struct{ *memStore }

func (s memClasses) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	class, ok := s.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &class, nil
}

func (s memClasses) ListActiveMemberIDs(ctx context.Context, exec sqlx.ExtContext, classID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.members[classID]...), nil
}

func (s memClasses) CountActiveMembers(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members[classID]), nil
}

type memSlots struct{ *memStore }

func (s memSlots) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &slot, nil
}

func (s memSlots) ListByClass(ctx context.Context, exec sqlx.ExtContext, classID string, activeOnly bool) ([]models.TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TimeSlot
	for _, slot := range s.slots {
		if slot.ClassID == classID && (slot.IsActive || !activeOnly) {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s memSlots) Create(ctx context.Context, exec sqlx.ExtContext, slot *models.TimeSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot.ID = s.nextID("slot")
	s.slots[slot.ID] = *slot
	return nil
}

func (s memSlots) Update(ctx context.Context, exec sqlx.ExtContext, slot *models.TimeSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slots[slot.ID]; !ok {
		return sql.ErrNoRows
	}
	s.slots[slot.ID] = *slot
	return nil
}

func (s memSlots) Deactivate(ctx context.Context, exec sqlx.ExtContext, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return sql.ErrNoRows
	}
	slot.IsActive = false
	s.slots[id] = slot
	return nil
}

type memWeeks struct{ *memStore }

func weekKey(slotID string, week time.Time) string {
	return fmt.Sprintf("%s@%d", slotID, week.Unix())
}

func (s memWeeks) Find(ctx context.Context, exec sqlx.ExtContext, slotID string, week time.Time) (*models.WeekCancellation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.weeks[weekKey(slotID, week)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (s memWeeks) ListBySlot(ctx context.Context, exec sqlx.ExtContext, slotID string) ([]models.WeekCancellation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WeekCancellation
	for _, c := range s.weeks {
		if c.TimeSlotID == slotID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s memWeeks) ListWeeks(ctx context.Context, exec sqlx.ExtContext, slotID string, from, to time.Time) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Time
	for _, c := range s.weeks {
		if c.TimeSlotID == slotID && !c.WeekStart.Before(from) && c.WeekStart.Before(to) {
			out = append(out, c.WeekStart)
		}
	}
	return out, nil
}

func (s memWeeks) Create(ctx context.Context, exec sqlx.ExtContext, c *models.WeekCancellation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextID("week")
	s.weeks[weekKey(c.TimeSlotID, c.WeekStart)] = *c
	return nil
}

func (s memWeeks) Delete(ctx context.Context, exec sqlx.ExtContext, slotID string, week time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := weekKey(slotID, week)
	if _, ok := s.weeks[key]; !ok {
		return sql.ErrNoRows
	}
	delete(s.weeks, key)
	return nil
}

type memSessions struct{ *memStore }

func (s memSessions) IdentityTaken(ctx context.Context, exec sqlx.ExtContext, classID string, start, end time.Time, ignoreCancelled bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.ClassID != classID || !session.ScheduledStart.Equal(start) || !session.ScheduledEnd.Equal(end) {
			continue
		}
		if session.Status != models.SessionStatusCancelled {
			return true, nil
		}
		if !ignoreCancelled && session.CancellationKind != nil && *session.CancellationKind == models.CancellationOccurrence {
			return true, nil
		}
	}
	return false, nil
}

// CreateIfAbsent mirrors the partial unique index, which only covers live rows.
func (s memSessions) CreateIfAbsent(ctx context.Context, exec sqlx.ExtContext, session *models.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.ClassID == session.ClassID && existing.ScheduledStart.Equal(session.ScheduledStart) &&
			existing.ScheduledEnd.Equal(session.ScheduledEnd) && existing.Status != models.SessionStatusCancelled {
			return false, nil
		}
	}
	session.ID = s.nextID("session")
	s.sessions = append(s.sessions, *session)
	return true, nil
}

func (s memSessions) ListStarts(ctx context.Context, exec sqlx.ExtContext, classID, subject string) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[int64]bool{}
	var out []time.Time
	for _, session := range s.sessions {
		if session.ClassID == classID && session.Subject == subject && !seen[session.ScheduledStart.Unix()] {
			seen[session.ScheduledStart.Unix()] = true
			out = append(out, session.ScheduledStart)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (s memSessions) selectSessions(keep func(models.Session) bool) []models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, session := range s.sessions {
		if keep(session) {
			out = append(out, session)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledStart.Before(out[j].ScheduledStart) })
	return out
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && (to.IsZero() || t.Before(to))
}

func (s memSessions) ListOpen(ctx context.Context, exec sqlx.ExtContext, classID, subject string, from, to time.Time) ([]models.Session, error) {
	return s.selectSessions(func(session models.Session) bool {
		return session.ClassID == classID && session.Subject == subject && !session.Status.Terminal() &&
			inRange(session.ScheduledStart, from, to)
	}), nil
}

func (s memSessions) ListUnassigned(ctx context.Context, exec sqlx.ExtContext, classID, subject string, from, to time.Time) ([]models.Session, error) {
	return s.selectSessions(func(session models.Session) bool {
		return session.ClassID == classID && session.Status == models.SessionStatusPending && session.TutorID == nil &&
			(subject == "" || session.Subject == subject) && inRange(session.ScheduledStart, from, to)
	}), nil
}

func (s memSessions) CountActiveInRange(ctx context.Context, exec sqlx.ExtContext, classID string, from, to time.Time) (int, error) {
	return len(s.selectSessions(func(session models.Session) bool {
		return session.ClassID == classID && session.Status != models.SessionStatusCancelled && inRange(session.ScheduledStart, from, to)
	})), nil
}

func (s memSessions) Cancel(ctx context.Context, exec sqlx.ExtContext, ids []string, reason string, kind models.CancellationKind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := map[string]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	count := 0
	for i := range s.sessions {
		session := &s.sessions[i]
		if wanted[session.ID] && !session.Status.Terminal() {
			r, k := reason, kind
			session.Status = models.SessionStatusCancelled
			session.CancellationReason = &r
			session.CancellationKind = &k
			count++
		}
	}
	return count, nil
}

func (s memSessions) Assign(ctx context.Context, exec sqlx.ExtContext, a models.SessionAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sessions {
		session := &s.sessions[i]
		if session.ID == a.SessionID && session.Status == models.SessionStatusPending {
			tutorID := a.TutorID
			session.TutorID = &tutorID
			session.Price = a.Price
			session.Status = a.Status
		}
	}
	return nil
}

func (s memSessions) List(ctx context.Context, exec sqlx.ExtContext, filter models.SessionFilter) ([]models.Session, error) {
	return s.selectSessions(func(session models.Session) bool {
		if session.ClassID != filter.ClassID || (filter.Subject != "" && session.Subject != filter.Subject) {
			return false
		}
		if filter.From != nil && session.ScheduledStart.Before(*filter.From) {
			return false
		}
		if filter.To != nil && !session.ScheduledStart.Before(*filter.To) {
			return false
		}
		if len(filter.Statuses) == 0 {
			return true
		}
		for _, status := range filter.Statuses {
			if session.Status == status {
				return true
			}
		}
		return false
	}), nil
}

type memAssignments struct{ *memStore }

func (s memAssignments) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TutorAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assignments {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s memAssignments) ListByClass(ctx context.Context, exec sqlx.ExtContext, classID string) ([]models.TutorAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TutorAssignment
	for _, a := range s.assignments {
		if a.ClassID == classID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s memAssignments) ListParticipating(ctx context.Context, exec sqlx.ExtContext, classID string) ([]models.TutorAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TutorAssignment
	for _, a := range s.assignments {
		if a.ClassID == classID && a.Participates() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s memAssignments) Create(ctx context.Context, exec sqlx.ExtContext, a *models.TutorAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.nextID("assignment")
	if a.CreatedAt.IsZero() {
		a.CreatedAt = fixtureNow.Add(time.Duration(s.seq) * time.Second)
	}
	s.assignments = append(s.assignments, *a)
	return nil
}

func (s memAssignments) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.AssignmentStatus, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.assignments {
		if s.assignments[i].ID == id {
			s.assignments[i].Status = status
			s.assignments[i].IsActive = active
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s memAssignments) Deactivate(ctx context.Context, exec sqlx.ExtContext, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.assignments {
		if s.assignments[i].ID == id {
			s.assignments[i].IsActive = false
			return nil
		}
	}
	return sql.ErrNoRows
}

type memTutors struct{ *memStore }

func (s memTutors) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Tutor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tutor, ok := s.tutors[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &tutor, nil
}

func (s memTutors) FindByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Tutor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Tutor
	for _, id := range ids {
		if tutor, ok := s.tutors[id]; ok {
			out = append(out, tutor)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	batches [][]models.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, batch []models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, batch)
}

func (n *recordingNotifier) ofType(kind models.NotificationType) []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.Notification
	for _, batch := range n.batches {
		for _, notification := range batch {
			if notification.Type == kind {
				out = append(out, notification)
			}
		}
	}
	return out
}

// schedulingFixture wires every scheduling service over one memStore and a sqlmock transaction source.
type schedulingFixture struct {
	store        *memStore
	mock         sqlmock.Sqlmock
	notifier     *recordingNotifier
	rotation     *RotationService
	materializer *SessionMaterializer
	slots        *TimeSlotService
	weeks        *WeekCancellationService
	assignments  *TutorAssignmentService
	sessions     *SessionService
}

func newSchedulingFixture(t *testing.T) *schedulingFixture {
	t.Helper()
	store := newMemStore()
	store.classes["class-1"] = models.Class{ID: "class-1", Name: "Grade 10A", OwnerID: owner.UserID, Subjects: []string{"math", "physics"}, IsActive: true}
	store.members["class-1"] = []string{"student-1", "student-2"}
	store.tutors["tutor-a"] = models.Tutor{ID: "tutor-a", FullName: "Ana", HourlyRate: 150, Subjects: []string{"math"}, Availability: types.JSONText("[]"), IsActive: true}
	store.tutors["tutor-b"] = models.Tutor{ID: "tutor-b", FullName: "Budi", HourlyRate: 100, Subjects: []string{"math", "physics"},
		Availability: types.JSONText(`[{"dayOfWeek":1,"startTime":"08:00","endTime":"12:00"}]`), IsActive: true}

	tx, mock := newTxProviderMock(t)
	notifier := &recordingNotifier{}
	cfg := MaterializerConfig{Location: time.UTC, DefaultWeeksAhead: 4, MaxWeeksAhead: 12}

	rotation := NewRotationService(memSessions{store}, memAssignments{store}, memTutors{store}, memClasses{store}, nil, nil, tx, nil, nil,
		RotationConfig{Location: time.UTC})
	rotation.now = func() time.Time { return fixtureNow }

	materializer := NewSessionMaterializer(memSlots{store}, memWeeks{store}, memSessions{store}, memClasses{store}, rotation, notifier, nil, tx, nil, nil, cfg)
	materializer.now = func() time.Time { return fixtureNow }

	assignments := NewTutorAssignmentService(memAssignments{store}, memTutors{store}, memSlots{store}, memClasses{store}, rotation, notifier, tx, nil, nil, time.UTC)
	assignments.now = func() time.Time { return fixtureNow }

	return &schedulingFixture{
		store:        store,
		mock:         mock,
		notifier:     notifier,
		rotation:     rotation,
		materializer: materializer,
		slots:        NewTimeSlotService(memSlots{store}, memClasses{store}, materializer, tx, nil, nil),
		weeks:        NewWeekCancellationService(memSlots{store}, memWeeks{store}, memClasses{store}, materializer, notifier, tx, nil, nil, time.UTC),
		assignments:  assignments,
		sessions:     NewSessionService(memSessions{store}, memClasses{store}, nil, nil, time.UTC),
	}
}

// addSlot stores an active slot directly.
func (f *schedulingFixture) addSlot(subject string, day int, start, end string) models.TimeSlot {
	slot := models.TimeSlot{ClassID: "class-1", Subject: subject, DayOfWeek: day, StartTime: start, EndTime: end, IsActive: true}
	_ = memSlots{f.store}.Create(context.Background(), nil, &slot)
	return slot
}

// addAcceptedAssignment stores a participating assignment directly.
func (f *schedulingFixture) addAcceptedAssignment(tutorID, subject string, pattern models.RecurrencePattern, config string) models.TutorAssignment {
	a := models.TutorAssignment{
		ClassID: "class-1", Subject: subject, TutorID: tutorID, RecurrencePattern: pattern,
		RecurrenceConfig: types.JSONText(config), Status: models.AssignmentStatusAccepted, IsActive: true,
	}
	_ = memAssignments{f.store}.Create(context.Background(), nil, &a)
	return a
}

func ptr[T any](v T) *T { return &v }
