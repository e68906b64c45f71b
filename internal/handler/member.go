package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/milsim-portal/internal/middleware"
	"github.com/iliyamo/milsim-portal/internal/perscom"
	q "github.com/iliyamo/milsim-portal/internal/queue"
	"github.com/iliyamo/milsim-portal/internal/service"
)

// MemberHandler serves signed-in members: filing an application and
// reading their own service record.
type MemberHandler struct {
	Perscom MemberService
	Events  service.EventPublisher // optional
	FormID  int64
	Logger  *zap.Logger
}

func NewMemberHandler(svc MemberService, events service.EventPublisher, formID int64, logger *zap.Logger) *MemberHandler {
	if svc == nil {
		panic("nil MemberService passed to NewMemberHandler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemberHandler{Perscom: svc, Events: events, FormID: formID, Logger: logger.Named("member")}
}

// SubmitApplication files the request body, a flat object of form fields,
// as a submission of the recruitment form.
func (h *MemberHandler) SubmitApplication(c echo.Context) error {
	sess, ok := middleware.CurrentSession(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	var fields map[string]any
	if err := c.Bind(&fields); err != nil || len(fields) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "application fields required"})
	}
	// These are set by the portal, never by the applicant.
	for _, k := range []string{"form_id", "user_id", "id", "statuses"} {
		delete(fields, k)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), perscomTimeout)
	defer cancel()

	sub, err := h.Perscom.CreateSubmission(ctx, perscom.NewSubmission{
		FormID: h.FormID,
		UserID: sess.PerscomID,
		Fields: fields,
	})
	if err != nil {
		return perscomError(c, h.Logger, err)
	}

	if h.Events != nil {
		ev := q.ApplicationSubmittedEvent{
			SubmissionID: sub.ID,
			FormID:       h.FormID,
			UserID:       sess.PerscomID,
			Applicant:    strings.TrimSpace(sess.Name),
		}
		if err := h.Events.PublishApplicationSubmitted(ctx, ev); err != nil {
			h.Logger.Warn("application event not published", zap.Int64("submission_id", sub.ID), zap.Error(err))
		}
	}
	return c.JSON(http.StatusCreated, echo.Map{"submission": sub})
}

// MyRecords returns the caller's combat and assignment records.
func (h *MemberHandler) MyRecords(c echo.Context) error {
	sess, ok := middleware.CurrentSession(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	if sess.PerscomID == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no personnel file linked to this account"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), perscomTimeout)
	defer cancel()

	combat := make([]perscom.CombatRecord, 0)
	for _, r := range h.Perscom.CombatRecords(ctx) {
		if r.UserID == sess.PerscomID {
			combat = append(combat, r)
		}
	}
	assignments := make([]perscom.AssignmentRecord, 0)
	for _, r := range h.Perscom.Assignments(ctx, perscom.Include("position", "unit")) {
		if r.UserID == sess.PerscomID {
			assignments = append(assignments, r)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"combat": combat, "assignments": assignments})
}
