package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/milsim-portal/internal/perscom"
)

func TestRosterListsApprovedMembersOnly(t *testing.T) {
	fp := &fakePerscom{users: []perscom.User{
		{ID: 1, Name: "Sgt. Vega", Email: "vega@example.com", Approved: true, Rank: &perscom.Rank{ID: 3, Name: "Sergeant"}},
		{ID: 2, Name: "Pending Recruit", Approved: false},
		{ID: 3, Name: "Cpl. Ash", Approved: true},
	}}
	h := NewPublicHandler(fp)

	rec := call(t, h.Roster, nil, http.MethodGet, "/api/roster", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items []RosterEntry `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	assert.Equal(t, "Sgt. Vega", body.Items[0].Name)
	assert.Equal(t, "Sergeant", body.Items[0].Rank.Name)
	assert.Equal(t, int64(3), body.Items[1].ID)
	assert.NotContains(t, rec.Body.String(), "vega@example.com")
	assert.Len(t, fp.includes, 1)
}

func TestRosterEmptyWhenUpstreamIsDown(t *testing.T) {
	h := NewPublicHandler(&fakePerscom{users: []perscom.User{}})

	rec := call(t, h.Roster, nil, http.MethodGet, "/api/roster", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
}

func TestListingEndpoints(t *testing.T) {
	fp := &fakePerscom{ranks: []perscom.Rank{{ID: 1, Name: "Private", Order: 1}}}
	h := NewPublicHandler(fp)

	rec := call(t, h.Ranks, nil, http.MethodGet, "/api/ranks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Private"`)

	for name, fn := range map[string]func() int{
		"units":          func() int { return call(t, h.Units, nil, http.MethodGet, "/api/units", "").Code },
		"positions":      func() int { return call(t, h.Positions, nil, http.MethodGet, "/api/positions", "").Code },
		"awards":         func() int { return call(t, h.Awards, nil, http.MethodGet, "/api/awards", "").Code },
		"qualifications": func() int { return call(t, h.Qualifications, nil, http.MethodGet, "/api/qualifications", "").Code },
	} {
		assert.Equal(t, http.StatusOK, fn(), name)
	}
}

func TestHealth(t *testing.T) {
	rec := call(t, Health, nil, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
