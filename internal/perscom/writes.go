package perscom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tidwall/gjson"
)

// SubmissionOutcome is the decision an admin takes on an application.
type SubmissionOutcome string

const (
	OutcomeAccepted SubmissionOutcome = "Accepted"
	OutcomeDenied   SubmissionOutcome = "Denied"
)

// submissionStatusIDs maps outcomes to the status rows configured in PERSCOM.
var submissionStatusIDs = map[SubmissionOutcome]int64{
	OutcomeAccepted: 7,
	OutcomeDenied:   8,
}

// StatusIDFor returns the PERSCOM status id for outcome.
func StatusIDFor(outcome SubmissionOutcome) (int64, bool) {
	id, ok := submissionStatusIDs[outcome]
	return id, ok
}

// ResourceType is a collection that DeleteResource may remove from.
type ResourceType string

const (
	ResourceUsers                ResourceType = "users"
	ResourceRanks                ResourceType = "ranks"
	ResourceUnits                ResourceType = "units"
	ResourcePositions            ResourceType = "positions"
	ResourceAwards               ResourceType = "awards"
	ResourceQualifications       ResourceType = "qualifications"
	ResourceSubmissions          ResourceType = "submissions"
	ResourceCombatRecords        ResourceType = "combat-records"
	ResourceAssignmentRecords    ResourceType = "assignment-records"
	ResourceAwardRecords         ResourceType = "award-records"
	ResourceRankRecords          ResourceType = "rank-records"
	ResourceQualificationRecords ResourceType = "qualification-records"
)

var deletableResources = map[ResourceType]bool{
	ResourceUsers: true, ResourceRanks: true, ResourceUnits: true,
	ResourcePositions: true, ResourceAwards: true, ResourceQualifications: true,
	ResourceSubmissions: true, ResourceCombatRecords: true,
	ResourceAssignmentRecords: true, ResourceAwardRecords: true,
	ResourceRankRecords: true, ResourceQualificationRecords: true,
}

// ParseResourceType validates a collection name taken from a request.
func ParseResourceType(s string) (ResourceType, error) {
	rt := ResourceType(s)
	if !deletableResources[rt] {
		return "", fmt.Errorf("%w: %q", ErrUnknownResourceType, s)
	}
	return rt, nil
}

// ParseRecordKind validates a record kind taken from a request.
func ParseRecordKind(s string) (RecordKind, error) {
	switch k := RecordKind(s); k {
	case AwardRecordKind, CombatRecordKind, RankRecordKind, AssignmentRecordKind, QualificationRecordKind:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidRecord, s)
}

func (c *Client) CreateUser(ctx context.Context, u NewUser) (User, error) {
	raw, err := c.Fetch(ctx, "/users", RequestOptions{Method: http.MethodPost, Body: u})
	if err != nil {
		return User{}, err
	}
	return decodeData[User](raw)
}

func (c *Client) UpdateUser(ctx context.Context, id int64, patch UserPatch) (User, error) {
	raw, err := c.Fetch(ctx, "/users/"+strconv.FormatInt(id, 10), RequestOptions{Method: http.MethodPatch, Body: patch})
	if err != nil {
		return User{}, err
	}
	return decodeData[User](raw)
}

func (c *Client) CreateSubmission(ctx context.Context, s NewSubmission) (Submission, error) {
	raw, err := c.Fetch(ctx, "/submissions", RequestOptions{Method: http.MethodPost, Body: s})
	if err != nil {
		return Submission{}, err
	}
	return decodeData[Submission](raw)
}

// AttachRecord adds a record of the given kind to a user's file.
func (c *Client) AttachRecord(ctx context.Context, userID int64, kind RecordKind, rec NewRecord) (Record, error) {
	if err := rec.validate(kind); err != nil {
		return Record{}, err
	}
	endpoint := fmt.Sprintf("/users/%d/%s-records", userID, kind)
	raw, err := c.Fetch(ctx, endpoint, RequestOptions{Method: http.MethodPost, Body: rec})
	if err != nil {
		return Record{}, err
	}
	return decodeData[Record](raw)
}

// UpdateSubmissionStatus attaches the status matching outcome to a
// submission.
func (c *Client) UpdateSubmissionStatus(ctx context.Context, submissionID int64, outcome SubmissionOutcome) error {
	statusID, ok := StatusIDFor(outcome)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOutcome, outcome)
	}
	body := map[string]any{
		"resources": map[string]any{
			strconv.FormatInt(statusID, 10): map[string]any{},
		},
	}
	endpoint := fmt.Sprintf("/submissions/%d/statuses/attach", submissionID)
	_, err := c.Fetch(ctx, endpoint, RequestOptions{Method: http.MethodPost, Body: body})
	return err
}

func (c *Client) DeleteResource(ctx context.Context, rt ResourceType, id int64) error {
	if !deletableResources[rt] {
		return fmt.Errorf("%w: %q", ErrUnknownResourceType, rt)
	}
	_, err := c.Fetch(ctx, fmt.Sprintf("/%s/%d", rt, id), RequestOptions{Method: http.MethodDelete})
	return err
}

func (r NewRecord) validate(kind RecordKind) error {
	var missing string
	switch kind {
	case AwardRecordKind:
		if r.AwardID == nil {
			missing = "award_id"
		}
	case RankRecordKind:
		if r.RankID == nil {
			missing = "rank_id"
		}
	case QualificationRecordKind:
		if r.QualificationID == nil {
			missing = "qualification_id"
		}
	case CombatRecordKind:
		if r.Text == "" {
			missing = "text"
		}
	case AssignmentRecordKind:
		if r.PositionID == nil && r.UnitID == nil && r.StatusID == nil {
			missing = "position_id, unit_id or status_id"
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRecord, kind)
	}
	if missing != "" {
		return fmt.Errorf("%w: %s record requires %s", ErrInvalidRecord, kind, missing)
	}
	return nil
}

// decodeData unwraps the {"data": {...}} envelope of single-resource
// responses. Empty bodies decode to the zero value.
func decodeData[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, nil
	}
	payload := []byte(raw)
	if d := gjson.GetBytes(raw, "data"); d.Exists() && d.IsObject() {
		payload = []byte(d.Raw)
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("perscom: decode response: %w", err)
	}
	return out, nil
}
