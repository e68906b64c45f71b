package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/milsim-portal/internal/perscom"
	"github.com/iliyamo/milsim-portal/internal/session"
)

func TestSubmitApplication(t *testing.T) {
	fp := &fakePerscom{}
	events := &fakeEvents{}
	h := NewMemberHandler(fp, events, 2, nil)
	sess := &session.Session{Name: " Pvt. Reyes ", PerscomID: 12}

	rec := call(t, h.SubmitApplication, sess, http.MethodPost, "/api/applications",
		`{"callsign":"Raven","timezone":"UTC+1","user_id":999,"form_id":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":55`)

	assert.Equal(t, int64(2), fp.lastSubmission.FormID)
	assert.Equal(t, int64(12), fp.lastSubmission.UserID)
	assert.Equal(t, map[string]any{"callsign": "Raven", "timezone": "UTC+1"}, fp.lastSubmission.Fields)

	require.Len(t, events.submitted, 1)
	assert.Equal(t, int64(55), events.submitted[0].SubmissionID)
	assert.Equal(t, "Pvt. Reyes", events.submitted[0].Applicant)
}

func TestSubmitApplicationSurvivesBrokerOutage(t *testing.T) {
	h := NewMemberHandler(&fakePerscom{}, &fakeEvents{err: errBroker}, 2, nil)

	rec := call(t, h.SubmitApplication, &session.Session{PerscomID: 12}, http.MethodPost, "/api/applications", `{"callsign":"Raven"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestSubmitApplicationRejects(t *testing.T) {
	h := NewMemberHandler(&fakePerscom{}, nil, 2, nil)

	rec := call(t, h.SubmitApplication, nil, http.MethodPost, "/api/applications", `{"callsign":"Raven"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, h.SubmitApplication, &session.Session{PerscomID: 12}, http.MethodPost, "/api/applications", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitApplicationUpstreamErrors(t *testing.T) {
	fp := &fakePerscom{err: &perscom.APIError{StatusCode: http.StatusUnprocessableEntity, Message: "The callsign field is required."}}
	h := NewMemberHandler(fp, nil, 2, nil)
	sess := &session.Session{PerscomID: 12}

	rec := call(t, h.SubmitApplication, sess, http.MethodPost, "/api/applications", `{"x":"y"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "callsign field is required")

	fp.err = &perscom.APIError{StatusCode: http.StatusServiceUnavailable}
	rec = call(t, h.SubmitApplication, sess, http.MethodPost, "/api/applications", `{"x":"y"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestMyRecordsFiltersByCaller(t *testing.T) {
	fp := &fakePerscom{
		combat: []perscom.CombatRecord{
			{ID: 1, UserID: 12, Text: "Op Nightfall"},
			{ID: 2, UserID: 13, Text: "Op Dawn"},
		},
		assignments: []perscom.AssignmentRecord{
			{ID: 5, UserID: 13},
		},
	}
	h := NewMemberHandler(fp, nil, 2, nil)

	rec := call(t, h.MyRecords, &session.Session{PerscomID: 12}, http.MethodGet, "/api/me/records", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Op Nightfall")
	assert.NotContains(t, rec.Body.String(), "Op Dawn")
	assert.Contains(t, rec.Body.String(), `"assignments":[]`)

	rec = call(t, h.MyRecords, &session.Session{Name: "unlinked"}, http.MethodGet, "/api/me/records", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
