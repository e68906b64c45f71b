// Package authz holds the portal's role hierarchy and the static table that
// maps URL prefixes to the roles allowed to reach them.
package authz

import (
	"sort"
	"strings"
)

// Role is a portal role as carried in the session.
type Role string

const (
	RoleMember    Role = "member"
	RoleRecruiter Role = "recruiter"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
)

// levels is the linear hierarchy; higher levels include the lower ones when
// a rule is expressed as a minimum.
var levels = map[Role]int{
	RoleMember:    1,
	RoleRecruiter: 2,
	RoleModerator: 3,
	RoleAdmin:     4,
	RoleDeveloper: 5,
}

// Level returns the rank of r in the hierarchy, 0 for unknown roles.
func (r Role) Level() int { return levels[Role(strings.ToLower(string(r)))] }

// MaxLevel is the highest level among roles.
func MaxLevel(roles []Role) int {
	max := 0
	for _, r := range roles {
		if l := r.Level(); l > max {
			max = l
		}
	}
	return max
}

// ParseRoles converts raw role names, dropping unknown ones.
func ParseRoles(names []string) []Role {
	out := make([]Role, 0, len(names))
	for _, n := range names {
		r := Role(strings.ToLower(strings.TrimSpace(n)))
		if r.Level() > 0 {
			out = append(out, r)
		}
	}
	return out
}

// Rule guards one prefix. A request passes if any of its roles is in Allow,
// or its highest role is at least Min. A rule with neither only requires a
// signed-in user.
type Rule struct {
	Allow []Role
	Min   Role
}

func (r Rule) permits(roles []Role) bool {
	if len(r.Allow) == 0 && r.Min == "" {
		return true
	}
	for _, have := range roles {
		for _, want := range r.Allow {
			if strings.EqualFold(string(have), string(want)) {
				return true
			}
		}
	}
	return r.Min != "" && MaxLevel(roles) >= r.Min.Level()
}

// Table is an immutable set of prefix rules.
type Table struct {
	prefixes []string // longest first
	rules    map[string]Rule
}

// NewTable builds a table from prefix → rule. Trailing slashes are ignored.
func NewTable(rules map[string]Rule) *Table {
	t := &Table{rules: make(map[string]Rule, len(rules))}
	for p, r := range rules {
		p = normalize(p)
		t.rules[p] = r
		t.prefixes = append(t.prefixes, p)
	}
	sort.Slice(t.prefixes, func(i, j int) bool {
		if len(t.prefixes[i]) != len(t.prefixes[j]) {
			return len(t.prefixes[i]) > len(t.prefixes[j])
		}
		return t.prefixes[i] < t.prefixes[j]
	})
	return t
}

// Lookup returns the rule of the longest prefix matching path on a segment
// boundary, so "/admin" covers "/admin/users" but not "/administrator".
func (t *Table) Lookup(path string) (Rule, bool) {
	path = normalize(path)
	for _, p := range t.prefixes {
		if path == p || p == "/" || strings.HasPrefix(path, p+"/") {
			return t.rules[p], true
		}
	}
	return Rule{}, false
}

// Protected reports whether path requires a signed-in user.
func (t *Table) Protected(path string) bool {
	_, ok := t.Lookup(path)
	return ok
}

// Authorize reports whether roles may reach path. Paths without an entry are
// unrestricted.
func (t *Table) Authorize(path string, roles []Role) bool {
	rule, ok := t.Lookup(path)
	if !ok {
		return true
	}
	return rule.permits(roles)
}

func normalize(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}

// DefaultTable is the portal's route permission table.
func DefaultTable() *Table {
	signedIn := Rule{}
	return NewTable(map[string]Rule{
		"/dashboard":          {Min: RoleMember},
		"/apply":              signedIn,
		"/api/applications":   signedIn,
		"/api/me":             signedIn,
		"/admin":              {Min: RoleRecruiter},
		"/admin/applications": {Allow: []Role{RoleRecruiter, RoleModerator, RoleAdmin}},
		"/admin/users":        {Min: RoleModerator},
		"/admin/records":      {Min: RoleModerator},
		"/admin/settings":     {Min: RoleAdmin},
		"/admin/developer":    {Allow: []Role{RoleDeveloper}},
		"/api/admin":          {Min: RoleRecruiter},
	})
}
