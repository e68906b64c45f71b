package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/milsim-portal/internal/middleware"
	"github.com/iliyamo/milsim-portal/internal/perscom"
	q "github.com/iliyamo/milsim-portal/internal/queue"
	"github.com/iliyamo/milsim-portal/internal/repository"
	"github.com/iliyamo/milsim-portal/internal/service"
)

// AuditLog records staff actions.
type AuditLog interface {
	Record(ctx context.Context, e repository.AuditEntry) (repository.AuditEntry, error)
	ListRecent(ctx context.Context, limit int) ([]repository.AuditEntry, error)
}

// AdminHandler serves the staff API under /api/admin. Audit and Events are
// optional; without them the actions still go through.
type AdminHandler struct {
	Perscom AdminService
	Audit   AuditLog
	Events  service.EventPublisher
	Logger  *zap.Logger
}

func NewAdminHandler(svc AdminService, audit AuditLog, events service.EventPublisher, logger *zap.Logger) *AdminHandler {
	if svc == nil {
		panic("nil AdminService passed to NewAdminHandler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{Perscom: svc, Audit: audit, Events: events, Logger: logger.Named("admin")}
}

// ListSubmissions returns every submission; ?refresh=true skips the cache.
func (h *AdminHandler) ListSubmissions(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), perscomTimeout)
	defer cancel()

	var opts []perscom.ListOption
	if ok, _ := strconv.ParseBool(c.QueryParam("refresh")); ok {
		opts = append(opts, perscom.ForceRefresh())
	}
	return c.JSON(http.StatusOK, echo.Map{"items": h.Perscom.Submissions(ctx, opts...)})
}

type statusReq struct {
	Status string `json:"status"`
}

// SetSubmissionStatus accepts or denies an application.
func (h *AdminHandler) SetSubmissionStatus(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid submission id"})
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	outcome := perscom.SubmissionOutcome(strings.TrimSpace(req.Status))
	statusID, known := perscom.StatusIDFor(outcome)
	if !known {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be Accepted or Denied"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), perscomTimeout)
	defer cancel()

	if err := h.Perscom.UpdateSubmissionStatus(ctx, id, outcome); err != nil {
		return perscomError(c, h.Logger, err)
	}

	who := h.actor(c)
	h.audit(ctx, repository.AuditEntry{
		Actor:  who,
		Action: repository.ActionSubmissionStatus,
		Target: fmt.Sprintf("submissions/%d", id),
		Detail: string(outcome),
	})
	if h.Events != nil {
		ev := q.SubmissionStatusChangedEvent{SubmissionID: id, Status: string(outcome), StatusID: statusID, Actor: who}
		if err := h.Events.PublishSubmissionStatusChanged(ctx, ev); err != nil {
			h.Logger.Warn("status event not published", zap.Int64("submission_id", id), zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "status": outcome, "status_id": statusID})
}

// CreateUser opens a personnel file.
func (h *AdminHandler) CreateUser(c echo.Context) error {
	var req perscom.NewUser
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name/email required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), perscomTimeout)
	defer cancel()

	u, err := h.Perscom.CreateUser(ctx, req)
	if err != nil {
		return perscomError(c, h.Logger, err)
	}
	h.audit(ctx, repository.AuditEntry{
		Actor:  h.actor(c),
		Action: repository.ActionUserCreate,
		Target: fmt.Sprintf("users/%d", u.ID),
		Detail: u.Name,
	})
	return c.JSON(http.StatusCreated, u)
}

// UpdateUser patches a personnel file; omitted fields are left alone.
func (h *AdminHandler) UpdateUser(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var patch perscom.UserPatch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), perscomTimeout)
	defer cancel()

	u, err := h.Perscom.UpdateUser(ctx, id, patch)
	if err != nil {
		return perscomError(c, h.Logger, err)
	}
	h.audit(ctx, repository.AuditEntry{
		Actor:  h.actor(c),
		Action: repository.ActionUserUpdate,
		Target: fmt.Sprintf("users/%d", id),
	})
	return c.JSON(http.StatusOK, u)
}

// AttachRecord adds an award, combat, rank, assignment or qualification
// record to a user. The author defaults to the caller's own file.
func (h *AdminHandler) AttachRecord(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	kind, err := perscom.ParseRecordKind(c.Param("kind"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var rec perscom.NewRecord
	if err := c.Bind(&rec); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if sess, ok := middleware.CurrentSession(c); ok && rec.AuthorID == nil && sess.PerscomID != 0 {
		author := sess.PerscomID
		rec.AuthorID = &author
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), perscomTimeout)
	defer cancel()

	out, err := h.Perscom.AttachRecord(ctx, id, kind, rec)
	if err != nil {
		return perscomError(c, h.Logger, err)
	}
	h.audit(ctx, repository.AuditEntry{
		Actor:  h.actor(c),
		Action: repository.ActionRecordAttach,
		Target: fmt.Sprintf("users/%d/%s-records", id, kind),
		Detail: rec.Text,
	})
	return c.JSON(http.StatusCreated, out)
}

// DeleteResource removes one row of a managed PERSCOM collection.
func (h *AdminHandler) DeleteResource(c echo.Context) error {
	rt, err := perscom.ParseResourceType(c.Param("type"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), perscomTimeout)
	defer cancel()

	if err := h.Perscom.DeleteResource(ctx, rt, id); err != nil {
		return perscomError(c, h.Logger, err)
	}
	h.audit(ctx, repository.AuditEntry{
		Actor:  h.actor(c),
		Action: repository.ActionResourceDelete,
		Target: fmt.Sprintf("%s/%d", rt, id),
	})
	return c.NoContent(http.StatusNoContent)
}

// FlushCache drops one cached family (?family=users) or all of them.
func (h *AdminHandler) FlushCache(c echo.Context) error {
	family := strings.TrimSpace(c.QueryParam("family"))
	n, err := h.Perscom.Invalidate(c.Request().Context(), family)
	if err != nil {
		h.Logger.Error("cache flush failed", zap.String("family", family), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cache flush failed"})
	}
	target := family
	if target == "" {
		target = "*"
	}
	h.audit(c.Request().Context(), repository.AuditEntry{
		Actor:  h.actor(c),
		Action: repository.ActionCacheFlush,
		Target: target,
	})
	return c.JSON(http.StatusOK, echo.Map{"family": target, "invalidated": n})
}

// ListAudit returns the newest audit rows; ?limit= caps the count.
func (h *AdminHandler) ListAudit(c echo.Context) error {
	if h.Audit == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "audit log disabled"})
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	entries, err := h.Audit.ListRecent(c.Request().Context(), limit)
	if err != nil {
		h.Logger.Error("list audit failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": entries})
}

func (h *AdminHandler) actor(c echo.Context) string {
	sess, _ := middleware.CurrentSession(c)
	return actor(sess)
}

// audit writes e if an audit log is configured. Failures are only logged.
func (h *AdminHandler) audit(ctx context.Context, e repository.AuditEntry) {
	if h.Audit == nil {
		return
	}
	if _, err := h.Audit.Record(ctx, e); err != nil {
		h.Logger.Error("audit write failed", zap.String("action", e.Action), zap.String("target", e.Target), zap.Error(err))
	}
}
