// Package perscom is the portal's client for the PERSCOM personnel API. It
// wraps outbound calls with retries, coalesces identical in-flight reads,
// flattens paginated listings and keeps a read-through cache of each
// resource family that is invalidated whenever a write succeeds.
package perscom

import (
	"encoding/json"
	"time"
)

// Rank is a row of /ranks.
type Rank struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Abbreviation string    `json:"abbreviation,omitempty"`
	Paygrade     string    `json:"paygrade,omitempty"`
	Description  string    `json:"description,omitempty"`
	Order        int       `json:"order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Unit is a row of /units.
type Unit struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Position is a row of /positions.
type Position struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Award is a row of /awards.
type Award struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Qualification is a row of /qualifications.
type Qualification struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Status is a workflow status such as "Accepted" or "Active Duty".
type Status struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// User is a personnel file. Rank, Unit, Position and Status are only
// populated when requested through an include.
type User struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email,omitempty"`
	DiscordUserID string    `json:"discord_user_id,omitempty"`
	Approved      bool      `json:"approved"`
	RankID        *int64    `json:"rank_id,omitempty"`
	UnitID        *int64    `json:"unit_id,omitempty"`
	PositionID    *int64    `json:"position_id,omitempty"`
	StatusID      *int64    `json:"status_id,omitempty"`
	Rank          *Rank     `json:"rank,omitempty"`
	Unit          *Unit     `json:"unit,omitempty"`
	Position      *Position `json:"position,omitempty"`
	Status        *Status   `json:"status,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CombatRecord is a row of /combat-records.
type CombatRecord struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	AuthorID  *int64    `json:"author_id,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// AssignmentRecord is a row of /assignment-records.
type AssignmentRecord struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	AuthorID   *int64    `json:"author_id,omitempty"`
	Type       string    `json:"type,omitempty"`
	PositionID *int64    `json:"position_id,omitempty"`
	UnitID     *int64    `json:"unit_id,omitempty"`
	StatusID   *int64    `json:"status_id,omitempty"`
	Text       string    `json:"text,omitempty"`
	Position   *Position `json:"position,omitempty"`
	Unit       *Unit     `json:"unit,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Submission is a filled-in form, e.g. a recruitment application. Form
// fields are stored by PERSCOM as top-level keys, so everything that is not
// a known column ends up in Fields.
type Submission struct {
	ID        int64                      `json:"id"`
	FormID    int64                      `json:"form_id"`
	UserID    int64                      `json:"user_id"`
	Statuses  []Status                   `json:"statuses,omitempty"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Fields    map[string]json.RawMessage `json:"-"`
}

var submissionColumns = map[string]bool{
	"id": true, "form_id": true, "user_id": true, "statuses": true,
	"created_at": true, "updated_at": true,
}

func (s *Submission) UnmarshalJSON(b []byte) error {
	type plain Submission
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for k, v := range all {
		if submissionColumns[k] {
			continue
		}
		if p.Fields == nil {
			p.Fields = make(map[string]json.RawMessage)
		}
		p.Fields[k] = v
	}
	*s = Submission(p)
	return nil
}

func (s Submission) MarshalJSON() ([]byte, error) {
	type plain Submission
	base, err := json.Marshal(plain(s))
	if err != nil || len(s.Fields) == 0 {
		return base, err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(base, &out); err != nil {
		return nil, err
	}
	for k, v := range s.Fields {
		if _, taken := out[k]; !taken {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// NewUser is the body of POST /users.
type NewUser struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	DiscordUserID string `json:"discord_user_id,omitempty"`
	Approved      bool   `json:"approved"`
	RankID        *int64 `json:"rank_id,omitempty"`
	UnitID        *int64 `json:"unit_id,omitempty"`
	PositionID    *int64 `json:"position_id,omitempty"`
	StatusID      *int64 `json:"status_id,omitempty"`
}

// UserPatch is the body of PATCH /users/{id}; nil fields are left alone.
type UserPatch struct {
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Approved   *bool   `json:"approved,omitempty"`
	RankID     *int64  `json:"rank_id,omitempty"`
	UnitID     *int64  `json:"unit_id,omitempty"`
	PositionID *int64  `json:"position_id,omitempty"`
	StatusID   *int64  `json:"status_id,omitempty"`
}

// NewSubmission is the body of POST /submissions. Fields are flattened into
// the top-level object next to form_id and user_id.
type NewSubmission struct {
	FormID int64
	UserID int64
	Fields map[string]any
}

func (n NewSubmission) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Fields)+2)
	for k, v := range n.Fields {
		out[k] = v
	}
	out["form_id"] = n.FormID
	if n.UserID != 0 {
		out["user_id"] = n.UserID
	}
	return json.Marshal(out)
}

// RecordKind names a per-user record collection.
type RecordKind string

const (
	AwardRecordKind         RecordKind = "award"
	CombatRecordKind        RecordKind = "combat"
	RankRecordKind          RecordKind = "rank"
	AssignmentRecordKind    RecordKind = "assignment"
	QualificationRecordKind RecordKind = "qualification"
)

// NewRecord is the body of POST /users/{id}/{kind}-records. Which IDs are
// required depends on the kind; see validate.
type NewRecord struct {
	Text            string `json:"text,omitempty"`
	Type            string `json:"type,omitempty"`
	AuthorID        *int64 `json:"author_id,omitempty"`
	AwardID         *int64 `json:"award_id,omitempty"`
	RankID          *int64 `json:"rank_id,omitempty"`
	QualificationID *int64 `json:"qualification_id,omitempty"`
	PositionID      *int64 `json:"position_id,omitempty"`
	UnitID          *int64 `json:"unit_id,omitempty"`
	StatusID        *int64 `json:"status_id,omitempty"`
}

// Record is the generic response of a record attach call.
type Record struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
