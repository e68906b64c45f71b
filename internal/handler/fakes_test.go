package handler

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/milsim-portal/internal/middleware"
	"github.com/iliyamo/milsim-portal/internal/perscom"
	q "github.com/iliyamo/milsim-portal/internal/queue"
	"github.com/iliyamo/milsim-portal/internal/repository"
	"github.com/iliyamo/milsim-portal/internal/session"
)

// fakePerscom satisfies PersonnelReader, MemberService and AdminService.
type fakePerscom struct {
	users       []perscom.User
	ranks       []perscom.Rank
	combat      []perscom.CombatRecord
	assignments []perscom.AssignmentRecord
	submissions []perscom.Submission

	err error // returned by every write

	lastSubmission perscom.NewSubmission
	lastStatus     struct {
		id      int64
		outcome perscom.SubmissionOutcome
	}
	lastUser    perscom.NewUser
	lastPatch   perscom.UserPatch
	lastRecord  perscom.NewRecord
	lastKind    perscom.RecordKind
	deleted     []string
	invalidated []string
	includes    []perscom.ListOption
}

func (f *fakePerscom) Users(_ context.Context, opts ...perscom.ListOption) []perscom.User {
	f.includes = opts
	return f.users
}
func (f *fakePerscom) Ranks(context.Context, ...perscom.ListOption) []perscom.Rank { return f.ranks }
func (f *fakePerscom) Units(context.Context, ...perscom.ListOption) []perscom.Unit {
	return []perscom.Unit{}
}
func (f *fakePerscom) Positions(context.Context, ...perscom.ListOption) []perscom.Position {
	return []perscom.Position{}
}
func (f *fakePerscom) Awards(context.Context, ...perscom.ListOption) []perscom.Award {
	return []perscom.Award{}
}
func (f *fakePerscom) Qualifications(context.Context, ...perscom.ListOption) []perscom.Qualification {
	return []perscom.Qualification{}
}
func (f *fakePerscom) CombatRecords(context.Context, ...perscom.ListOption) []perscom.CombatRecord {
	return f.combat
}
func (f *fakePerscom) Assignments(context.Context, ...perscom.ListOption) []perscom.AssignmentRecord {
	return f.assignments
}
func (f *fakePerscom) Submissions(context.Context, ...perscom.ListOption) []perscom.Submission {
	return f.submissions
}

func (f *fakePerscom) CreateSubmission(_ context.Context, s perscom.NewSubmission) (perscom.Submission, error) {
	f.lastSubmission = s
	if f.err != nil {
		return perscom.Submission{}, f.err
	}
	return perscom.Submission{ID: 55, FormID: s.FormID, UserID: s.UserID}, nil
}

func (f *fakePerscom) UpdateSubmissionStatus(_ context.Context, id int64, outcome perscom.SubmissionOutcome) error {
	f.lastStatus.id, f.lastStatus.outcome = id, outcome
	return f.err
}

func (f *fakePerscom) CreateUser(_ context.Context, u perscom.NewUser) (perscom.User, error) {
	f.lastUser = u
	if f.err != nil {
		return perscom.User{}, f.err
	}
	return perscom.User{ID: 101, Name: u.Name, Email: u.Email}, nil
}

func (f *fakePerscom) UpdateUser(_ context.Context, id int64, patch perscom.UserPatch) (perscom.User, error) {
	f.lastPatch = patch
	if f.err != nil {
		return perscom.User{}, f.err
	}
	return perscom.User{ID: id}, nil
}

func (f *fakePerscom) AttachRecord(_ context.Context, userID int64, kind perscom.RecordKind, rec perscom.NewRecord) (perscom.Record, error) {
	f.lastKind, f.lastRecord = kind, rec
	if f.err != nil {
		return perscom.Record{}, f.err
	}
	return perscom.Record{ID: 9, UserID: userID, Text: rec.Text}, nil
}

func (f *fakePerscom) DeleteResource(_ context.Context, rt perscom.ResourceType, _ int64) error {
	f.deleted = append(f.deleted, string(rt))
	return f.err
}

func (f *fakePerscom) Invalidate(_ context.Context, family string) (int, error) {
	f.invalidated = append(f.invalidated, family)
	return 3, nil
}

type fakeAudit struct {
	entries []repository.AuditEntry
	err     error
}

func (a *fakeAudit) Record(_ context.Context, e repository.AuditEntry) (repository.AuditEntry, error) {
	if a.err != nil {
		return repository.AuditEntry{}, a.err
	}
	e.ID = int64(len(a.entries) + 1)
	a.entries = append(a.entries, e)
	return e, nil
}

func (a *fakeAudit) ListRecent(_ context.Context, limit int) ([]repository.AuditEntry, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.entries, nil
}

type fakeEvents struct {
	submitted []q.ApplicationSubmittedEvent
	changed   []q.SubmissionStatusChangedEvent
	err       error
}

func (p *fakeEvents) PublishApplicationSubmitted(_ context.Context, ev q.ApplicationSubmittedEvent) error {
	p.submitted = append(p.submitted, ev)
	return p.err
}

func (p *fakeEvents) PublishSubmissionStatusChanged(_ context.Context, ev q.SubmissionStatusChangedEvent) error {
	p.changed = append(p.changed, ev)
	return p.err
}

var errBroker = errors.New("broker down")

// call runs h against a request built from method, path and body. Path
// parameters are given as name/value pairs.
func call(t *testing.T, h echo.HandlerFunc, sess *session.Session, method, target, body string, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	var names, values []string
	for i := 0; i+1 < len(params); i += 2 {
		names = append(names, params[i])
		values = append(values, params[i+1])
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	if sess != nil {
		middleware.SetSession(c, *sess)
	}
	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func admin() *session.Session {
	return &session.Session{Name: "Maj. Hart", PerscomID: 4, Roles: []string{"admin"}}
}
