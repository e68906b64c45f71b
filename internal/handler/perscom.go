// Package handler exposes the portal's JSON API. Handlers depend on the
// small interfaces below rather than on the PERSCOM client directly, so each
// can be exercised against a fake or a test server.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/milsim-portal/internal/perscom"
	"github.com/iliyamo/milsim-portal/internal/session"
)

// perscomTimeout bounds a handler's PERSCOM work, retries included.
const perscomTimeout = 20 * time.Second

// PersonnelReader lists the public personnel data.
type PersonnelReader interface {
	Users(ctx context.Context, opts ...perscom.ListOption) []perscom.User
	Ranks(ctx context.Context, opts ...perscom.ListOption) []perscom.Rank
	Units(ctx context.Context, opts ...perscom.ListOption) []perscom.Unit
	Positions(ctx context.Context, opts ...perscom.ListOption) []perscom.Position
	Awards(ctx context.Context, opts ...perscom.ListOption) []perscom.Award
	Qualifications(ctx context.Context, opts ...perscom.ListOption) []perscom.Qualification
}

// MemberService is what signed-in members may do.
type MemberService interface {
	CreateSubmission(ctx context.Context, s perscom.NewSubmission) (perscom.Submission, error)
	CombatRecords(ctx context.Context, opts ...perscom.ListOption) []perscom.CombatRecord
	Assignments(ctx context.Context, opts ...perscom.ListOption) []perscom.AssignmentRecord
}

// AdminService is the staff surface over PERSCOM.
type AdminService interface {
	Submissions(ctx context.Context, opts ...perscom.ListOption) []perscom.Submission
	UpdateSubmissionStatus(ctx context.Context, submissionID int64, outcome perscom.SubmissionOutcome) error
	CreateUser(ctx context.Context, u perscom.NewUser) (perscom.User, error)
	UpdateUser(ctx context.Context, id int64, patch perscom.UserPatch) (perscom.User, error)
	AttachRecord(ctx context.Context, userID int64, kind perscom.RecordKind, rec perscom.NewRecord) (perscom.Record, error)
	DeleteResource(ctx context.Context, rt perscom.ResourceType, id int64) error
	Invalidate(ctx context.Context, family string) (int, error)
}

// perscomError translates a failed PERSCOM call into a JSON response.
// Validation and lookup failures keep their meaning; everything else is an
// upstream fault.
func perscomError(c echo.Context, log *zap.Logger, err error) error {
	var apiErr *perscom.APIError
	switch {
	case errors.Is(err, perscom.ErrUnknownOutcome),
		errors.Is(err, perscom.ErrUnknownResourceType),
		errors.Is(err, perscom.ErrInvalidRecord):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case perscom.IsNotFound(err):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnprocessableEntity):
		msg := apiErr.Message
		if msg == "" {
			msg = "rejected by perscom"
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	log.Error("perscom call failed", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusBadGateway, echo.Map{"error": "perscom unavailable"})
}

func paramID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// actor names the signed-in caller in audit rows and events.
func actor(s session.Session) string {
	if s.PerscomID != 0 {
		return "perscom:" + strconv.FormatInt(s.PerscomID, 10)
	}
	if s.Name != "" {
		return s.Name
	}
	return "unknown"
}
