package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/session-scheduler-api/internal/dto"
	"github.com/noah-isme/session-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/session-scheduler-api/pkg/errors"
	"github.com/noah-isme/session-scheduler-api/pkg/timerange"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type classDirectory interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error)
	ListActiveMemberIDs(ctx context.Context, exec sqlx.ExtContext, classID string) ([]string, error)
	CountActiveMembers(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error)
}

type slotReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeSlot, error)
	ListByClass(ctx context.Context, exec sqlx.ExtContext, classID string, activeOnly bool) ([]models.TimeSlot, error)
}

type notifier interface {
	Notify(ctx context.Context, batch []models.Notification)
}

var schedulingTags = map[string]validator.Func{
	"hhmm": func(fl validator.FieldLevel) bool {
		return timerange.ValidClock(fl.Field().String())
	},
	"recurrence_pattern": func(fl validator.FieldLevel) bool {
		return models.RecurrencePattern(strings.ToUpper(fl.Field().String())).Valid()
	},
}

var (
	defaultValidatorOnce sync.Once
	defaultValidator     *validator.Validate
	// registeredValidators maps each *validator.Validate to the sync.Once guarding its tag registration.
	registeredValidators sync.Map
)

// newSchedulingValidator returns validate with the scheduling tags registered exactly once per
// instance. A nil validate shares one package-level validator.
func newSchedulingValidator(validate *validator.Validate) *validator.Validate {
	if validate == nil {
		defaultValidatorOnce.Do(func() { defaultValidator = validator.New() })
		validate = defaultValidator
	}
	once, _ := registeredValidators.LoadOrStore(validate, &sync.Once{})
	once.(*sync.Once).Do(func() {
		for tag, fn := range schedulingTags {
			if err := validate.RegisterValidation(tag, fn); err != nil {
				panic(fmt.Sprintf("register %s validation: %v", tag, err))
			}
		}
	})
	return validate
}

func validationError(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}

// lookupError maps a missing row to a not-found error naming the entity.
func lookupError(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	return appErrors.Internal(err, "failed to load "+entity)
}

// ownedClass loads a class and checks that actor may manage it.
func ownedClass(ctx context.Context, classes classDirectory, exec sqlx.ExtContext, classID string, actor models.Actor) (*models.Class, error) {
	class, err := classes.FindByID(ctx, exec, classID)
	if err != nil {
		return nil, lookupError(err, "class")
	}
	if !actor.Privileged() && class.OwnerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the class owner can manage its schedule")
	}
	return class, nil
}

// parseDate reads a YYYY-MM-DD value as local midnight in loc.
func parseDate(raw string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(dto.DateLayout, raw, loc)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", raw))
	}
	return t, nil
}

func formatDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dto.DateLayout)
}
