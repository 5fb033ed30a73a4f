package dto

import (
	"encoding/json"

	"github.com/noah-isme/session-scheduler-api/internal/models"
)

// DateLayout is the calendar date format accepted by scheduling endpoints.
const DateLayout = "2006-01-02"

// TimeSlotRequest creates or reshapes a weekly time slot. DayOfWeek uses 0 = Sunday.
type TimeSlotRequest struct {
	Subject   string `json:"subject" validate:"required,max=100"`
	DayOfWeek *int   `json:"dayOfWeek" validate:"required,min=0,max=6"`
	StartTime string `json:"startTime" validate:"required,hhmm"`
	EndTime   string `json:"endTime" validate:"required,hhmm"`
}

// TimeSlotMutationResponse reports a slot change and the future sessions it cancelled.
type TimeSlotMutationResponse struct {
	Slot              *models.TimeSlot `json:"slot"`
	CancelledSessions int              `json:"cancelledSessions"`
}

// GenerateSessionsRequest materializes sessions for a number of weeks starting at StartFromWeek
// (any date inside the week, defaults to the current week).
type GenerateSessionsRequest struct {
	WeeksAhead    int     `json:"weeksAhead" validate:"omitempty,min=1"`
	StartFromWeek *string `json:"startFromWeek" validate:"omitempty,datetime=2006-01-02"`
}

// GenerateSessionsResponse lists the sessions created by one materialization call.
type GenerateSessionsResponse struct {
	Created  []models.Session `json:"created"`
	Count    int              `json:"count"`
	Assigned int              `json:"assigned"`
	From     string           `json:"from"`
	To       string           `json:"to"`
}

// FillGapsRequest selects the date range scanned for weeks without sessions.
type FillGapsRequest struct {
	Start string `json:"start" validate:"required,datetime=2006-01-02"`
	End   string `json:"end" validate:"required,datetime=2006-01-02"`
}

// FillGapsResponse lists the repaired weeks and the sessions created for them.
type FillGapsResponse struct {
	Weeks    []string         `json:"weeks"`
	Created  []models.Session `json:"created"`
	Count    int              `json:"count"`
	Assigned int              `json:"assigned"`
}

// CancelSessionsRequest cancels every future session of a slot.
type CancelSessionsRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// CancelWeekRequest suspends one weekly occurrence of a slot.
type CancelWeekRequest struct {
	WeekStart string  `json:"weekStart" validate:"required,datetime=2006-01-02"`
	Reason    *string `json:"reason" validate:"omitempty,max=500"`
}

// CancelWeekResponse reports the stored override and the sessions it cancelled.
type CancelWeekResponse struct {
	Cancellation      *models.WeekCancellation `json:"cancellation"`
	CancelledSessions int                      `json:"cancelledSessions"`
}

// ReinstateWeekResponse lists the sessions regenerated for a reinstated week.
type ReinstateWeekResponse struct {
	WeekStart string           `json:"weekStart"`
	Created   []models.Session `json:"created"`
}

// CreateTutorAssignmentRequest places a tutor into a class subject rotation.
type CreateTutorAssignmentRequest struct {
	TimeSlotID        *string         `json:"timeSlotId" validate:"omitempty,min=1"`
	Subject           string          `json:"subject" validate:"required,max=100"`
	TutorID           string          `json:"tutorId" validate:"required"`
	RecurrencePattern string          `json:"recurrencePattern" validate:"required,recurrence_pattern"`
	RecurrenceConfig  json.RawMessage `json:"recurrenceConfig" swaggertype:"object"`
	StartDate         *string         `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate           *string         `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
}

// UpdateAssignmentStatusRequest records the tutor's answer to an assignment.
type UpdateAssignmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACCEPTED DECLINED"`
}

// AssignmentStatusResponse reports the updated assignment and sessions assigned as a result.
type AssignmentStatusResponse struct {
	Assignment *models.TutorAssignment `json:"assignment"`
	Assigned   int                     `json:"assigned"`
}

// ApplyRotationRequest bounds the sessions re-resolved by rotation. From defaults to now.
type ApplyRotationRequest struct {
	From *string `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To   *string `json:"to" validate:"omitempty,datetime=2006-01-02"`
}

// ApplyRotationResponse summarises a rotation re-application.
type ApplyRotationResponse struct {
	Considered int `json:"considered"`
	Assigned   int `json:"assigned"`
}

// SessionListQuery filters the session listing and export of a class.
type SessionListQuery struct {
	From    string   `form:"from" validate:"omitempty,datetime=2006-01-02"`
	To      string   `form:"to" validate:"omitempty,datetime=2006-01-02"`
	Subject string   `form:"subject" validate:"omitempty,max=100"`
	Status  []string `form:"status" validate:"omitempty,dive,oneof=PENDING CONFIRMED CANCELLED COMPLETED"`
	Format  string   `form:"format" validate:"omitempty,oneof=csv pdf CSV PDF"`
}
