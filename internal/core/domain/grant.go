package domain

import (
	"sort"
	"strings"
)

// MatchType controls how an API grant's path is compared to a request path.
type MatchType string

const (
	MatchExact  MatchType = "exact"
	MatchPrefix MatchType = "prefix"
)

// Valid reports whether m is a known match type.
func (m MatchType) Valid() bool {
	return m == MatchExact || m == MatchPrefix
}

// Grant is a parsed API permission of the form METHOD:path:matchType.
type Grant struct {
	Method string
	Path   string
	Match  MatchType
}

// String renders the canonical wire form.
func (g Grant) String() string {
	return strings.ToUpper(g.Method) + ":" + g.Path + ":" + string(g.Match)
}

// Covers reports whether the grant authorizes method on path.
func (g Grant) Covers(method, path string) bool {
	if g.Method != strings.ToUpper(method) {
		return false
	}
	switch g.Match {
	case MatchExact:
		return path == g.Path
	case MatchPrefix:
		return path == g.Path || strings.HasPrefix(path, g.Path+"/")
	default:
		return false
	}
}

// ParseGrant splits a grant string into method, path and match type. The method
// is everything before the first colon and the match type everything after the
// last, so paths carrying route parameters ("/user/:id") survive intact. It
// returns false for business permissions like "user:create".
func ParseGrant(raw string) (Grant, bool) {
	first := strings.IndexByte(raw, ':')
	last := strings.LastIndexByte(raw, ':')
	if first <= 0 || last <= first {
		return Grant{}, false
	}
	method := raw[:first]
	if !isHTTPMethod(method) {
		return Grant{}, false
	}
	match := MatchType(raw[last+1:])
	if !match.Valid() {
		return Grant{}, false
	}
	path := raw[first+1 : last]
	if !strings.HasPrefix(path, "/") {
		return Grant{}, false
	}
	return Grant{Method: method, Path: path, Match: match}, true
}

func isHTTPMethod(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return s != ""
}

// GrantSet is the resolved, deduplicated union of a principal's permissions.
// API grants are parsed once at construction.
type GrantSet struct {
	names map[string]struct{}
	api   []Grant
}

// NewGrantSet builds a set from raw grant strings, dropping duplicates.
func NewGrantSet(raw ...string) GrantSet {
	s := GrantSet{names: make(map[string]struct{}, len(raw))}
	s.Add(raw...)
	return s
}

// Add merges raw grant strings into the set.
func (s *GrantSet) Add(raw ...string) {
	if s.names == nil {
		s.names = make(map[string]struct{}, len(raw))
	}
	for _, r := range raw {
		if r == "" {
			continue
		}
		if _, ok := s.names[r]; ok {
			continue
		}
		s.names[r] = struct{}{}
		if g, ok := ParseGrant(r); ok {
			s.api = append(s.api, g)
		}
	}
}

// Has reports whether the exact grant string is present.
func (s GrantSet) Has(name string) bool {
	_, ok := s.names[name]
	return ok
}

// IsSuper reports whether the set carries the super-permission.
func (s GrantSet) IsSuper() bool {
	return s.Has(SuperPermission)
}

// API returns the parsed API grants.
func (s GrantSet) API() []Grant {
	return s.api
}

// Len returns the number of distinct grants.
func (s GrantSet) Len() int {
	return len(s.names)
}

// Strings returns the grants sorted for stable output.
func (s GrantSet) Strings() []string {
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// AccessRequest is the subject of an access decision. Route is the router
// template the request matched ("/user/:id") and may be empty. Required lists
// business permissions the route demands in addition to its API grant.
type AccessRequest struct {
	Method   string
	Path     string
	Route    string
	Required []string
}
