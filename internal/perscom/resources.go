package perscom

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/iliyamo/milsim-portal/internal/metrics"
)

// Resource families and their listing endpoints.
const (
	FamilyUsers          = "users"
	FamilyRanks          = "ranks"
	FamilyUnits          = "units"
	FamilyPositions      = "positions"
	FamilyAwards         = "awards"
	FamilyQualifications = "qualifications"
	FamilyCombatRecords  = "combat-records"
	FamilyAssignments    = "assignment-records"
	FamilySubmissions    = "submissions"
)

// ListOption tunes a resource accessor call.
type ListOption func(*listOptions)

type listOptions struct {
	force    bool
	includes []string
}

// ForceRefresh skips the cache and refetches the family.
func ForceRefresh() ListOption { return func(o *listOptions) { o.force = true } }

// Include joins related resources, e.g. Include("rank", "unit").
func Include(names ...string) ListOption {
	return func(o *listOptions) { o.includes = append(o.includes, names...) }
}

func (c *Client) Users(ctx context.Context, opts ...ListOption) []User {
	return cachedList[User](ctx, c, FamilyUsers, opts)
}

func (c *Client) Ranks(ctx context.Context, opts ...ListOption) []Rank {
	return cachedList[Rank](ctx, c, FamilyRanks, opts)
}

func (c *Client) Units(ctx context.Context, opts ...ListOption) []Unit {
	return cachedList[Unit](ctx, c, FamilyUnits, opts)
}

func (c *Client) Positions(ctx context.Context, opts ...ListOption) []Position {
	return cachedList[Position](ctx, c, FamilyPositions, opts)
}

func (c *Client) Awards(ctx context.Context, opts ...ListOption) []Award {
	return cachedList[Award](ctx, c, FamilyAwards, opts)
}

func (c *Client) Qualifications(ctx context.Context, opts ...ListOption) []Qualification {
	return cachedList[Qualification](ctx, c, FamilyQualifications, opts)
}

func (c *Client) CombatRecords(ctx context.Context, opts ...ListOption) []CombatRecord {
	return cachedList[CombatRecord](ctx, c, FamilyCombatRecords, opts)
}

func (c *Client) Assignments(ctx context.Context, opts ...ListOption) []AssignmentRecord {
	return cachedList[AssignmentRecord](ctx, c, FamilyAssignments, opts)
}

func (c *Client) Submissions(ctx context.Context, opts ...ListOption) []Submission {
	return cachedList[Submission](ctx, c, FamilySubmissions, opts)
}

// cachedList is the read-through pattern shared by every accessor: serve a
// valid entry unless forced, otherwise fetch every page, store the flattened
// result and return it. Listing failures degrade to an empty slice. Records
// that do not decode into T are dropped one by one; the rest are cached.
func cachedList[T any](ctx context.Context, c *Client, family string, opts []ListOption) []T {
	var o listOptions
	for _, fn := range opts {
		fn(&o)
	}
	key := cacheKey(family, o.includes)

	if !o.force {
		if e, ok := c.validEntry(ctx, key); ok {
			var raw []json.RawMessage
			if err := json.Unmarshal(e.Data, &raw); err == nil {
				metrics.RecordCacheLookup(family, "hit")
				items, _ := decodeRecords[T](c, family, raw)
				return items
			}
		}
	}
	metrics.RecordCacheLookup(family, "miss")

	raw, err := c.FetchPaginated(ctx, "/"+family, o.includes...)
	if err != nil {
		c.logger.Error("listing failed, serving empty result",
			zap.String("family", family), zap.Error(err))
		return []T{}
	}
	items, kept := decodeRecords[T](c, family, raw)
	data, err := json.Marshal(kept)
	if err != nil {
		c.logger.Error("encode listing", zap.String("family", family), zap.Error(err))
		return items
	}
	if err := c.cache.Set(ctx, key, Entry{Data: data, Timestamp: c.clock.Now()}); err != nil {
		c.logger.Warn("cache store failed", zap.String("family", family), zap.Error(err))
	}
	return items
}

// decodeRecords decodes each record into T, skipping the ones that fail. It
// returns the decoded items and the raw form of the records it kept.
func decodeRecords[T any](c *Client, family string, raw []json.RawMessage) ([]T, []json.RawMessage) {
	items := make([]T, 0, len(raw))
	kept := make([]json.RawMessage, 0, len(raw))
	for i, r := range raw {
		var item T
		if err := json.Unmarshal(r, &item); err != nil {
			metrics.RecordSkippedRecord(family)
			c.logger.Warn("skipping undecodable record",
				zap.String("family", family), zap.Int("index", i), zap.Error(err))
			continue
		}
		items = append(items, item)
		kept = append(kept, r)
	}
	return items, kept
}

// UserByID finds a user in the cached roster.
func (c *Client) UserByID(ctx context.Context, id int64) (User, bool) {
	for _, u := range c.Users(ctx) {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}
