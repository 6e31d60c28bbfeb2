// Package grading maps children to groups by school grade.
//
// A Scheme holds the canonical grade order and an alias table for the
// free-text values parents type into the registration form. AutoAssign is
// pure; persisting its result (and clearing stale assignments first) is the
// caller's job.
package grading

import (
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Scheme struct {
	Order   []string          `yaml:"order"`
	Aliases map[string]string `yaml:"aliases"`

	folded map[string]string // lower(alias) -> canonical
}

// ChildGrade is the slice of a child the assignment needs.
type ChildGrade struct {
	ChildID uint
	Grade   string
}

// Assignment maps child id to group id; nil means unassigned.
type Assignment map[uint]*uint

func DefaultScheme() Scheme {
	return NewScheme(
		[]string{"Preschool", "PreK", "K", "1st", "2nd", "3rd", "4th", "5th", "6th"},
		map[string]string{
			"Pre School":   "Preschool",
			"Pre-School":   "Preschool",
			"preschool":    "Preschool",
			"Pre K":        "PreK",
			"pre k":        "PreK",
			"prek":         "PreK",
			"Pre-K":        "PreK",
			"Kindergarten": "K",
			"Kinder":       "K",
			"k":            "K",
			"1":            "1st",
			"First":        "1st",
			"2":            "2nd",
			"Second":       "2nd",
			"3":            "3rd",
			"Third":        "3rd",
			"4":            "4th",
			"Fourth":       "4th",
			"5":            "5th",
			"Fifth":        "5th",
			"6":            "6th",
			"Sixth":        "6th",
		},
	)
}

func NewScheme(order []string, aliases map[string]string) Scheme {
	s := Scheme{Order: append([]string(nil), order...), Aliases: make(map[string]string, len(aliases))}
	for k, v := range aliases {
		s.Aliases[k] = v
	}
	s.fold()
	return s
}

// LoadScheme reads a YAML file of the form
//
//	order: [Preschool, PreK, K, 1st]
//	aliases: {"Pre K": PreK, kindergarten: K}
func LoadScheme(path string) (Scheme, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Scheme{}, errors.Wrapf(err, "grading: read %s", path)
	}
	var s Scheme
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Scheme{}, errors.Wrapf(err, "grading: parse %s", path)
	}
	if len(s.Order) == 0 {
		return Scheme{}, errors.Errorf("grading: %s has an empty order", path)
	}
	if c := foldConflicts(s.Aliases); len(c) > 0 {
		return Scheme{}, errors.Errorf("grading: %s has aliases %q mapped to more than one grade", path, c)
	}
	return NewScheme(s.Order, s.Aliases), nil
}

// fold builds the case-insensitive table. Keys that fold together are
// visited in sorted order and the first one wins, so the result never
// depends on map iteration.
func (s *Scheme) fold() {
	keys := make([]string, 0, len(s.Aliases))
	for k := range s.Aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s.folded = make(map[string]string, len(keys))
	for _, k := range keys {
		f := strings.ToLower(strings.TrimSpace(k))
		if _, ok := s.folded[f]; !ok {
			s.folded[f] = s.Aliases[k]
		}
	}
}

// foldConflicts lists alias keys that differ only by case or padding but
// name different grades.
func foldConflicts(aliases map[string]string) []string {
	byFold := map[string]string{}
	var out []string
	for k, v := range aliases {
		f := strings.ToLower(strings.TrimSpace(k))
		if prev, ok := byFold[f]; ok && prev != v {
			out = append(out, f)
			continue
		}
		byFold[f] = v
	}
	sort.Strings(out)
	return out
}

// Normalize returns the canonical label for a raw grade, or "" when blank.
// Exact alias keys win over case-insensitive ones; values with no alias are
// returned trimmed but otherwise unchanged.
func (s Scheme) Normalize(raw string) string {
	g := strings.TrimSpace(raw)
	if g == "" {
		return ""
	}
	if c, ok := s.Aliases[g]; ok {
		return c
	}
	if s.folded == nil {
		s.fold()
	}
	if c, ok := s.folded[strings.ToLower(g)]; ok {
		return c
	}
	return g
}

// Extended returns the canonical order followed by the normalized grades seen
// in the data but missing from it, sorted bytewise. The result is only valid
// for the run that computed it.
func (s Scheme) Extended(normalized []string) []string {
	known := make(map[string]bool, len(s.Order))
	for _, g := range s.Order {
		known[g] = true
	}
	var extra []string
	for _, g := range normalized {
		if g == "" || known[g] {
			continue
		}
		known[g] = true
		extra = append(extra, g)
	}
	sort.Strings(extra)

	out := make([]string, 0, len(s.Order)+len(extra))
	out = append(out, s.Order...)
	return append(out, extra...)
}

// AutoAssign gives the group at display position i every child whose grade
// sits at position i of the extended order. Grades past the last group and
// children without a grade stay unassigned.
//
// groupIDs must already be in display order (sort_order, then id).
func AutoAssign(children []ChildGrade, groupIDs []uint, s Scheme) Assignment {
	norm := make([]string, len(children))
	for i, c := range children {
		norm[i] = s.Normalize(c.Grade)
	}

	index := make(map[string]int)
	for i, g := range s.Extended(norm) {
		if _, dup := index[g]; !dup {
			index[g] = i
		}
	}

	out := make(Assignment, len(children))
	for i, c := range children {
		out[c.ChildID] = nil
		if norm[i] == "" {
			continue
		}
		idx, ok := index[norm[i]]
		if !ok || idx >= len(groupIDs) {
			continue
		}
		gid := groupIDs[idx]
		out[c.ChildID] = &gid
	}
	return out
}

// ByGroup inverts an assignment into group id -> child ids, plus the
// unassigned child ids. Child ids are sorted ascending.
func (a Assignment) ByGroup() (map[uint][]uint, []uint) {
	groups := make(map[uint][]uint)
	var unassigned []uint
	for cid, gid := range a {
		if gid == nil {
			unassigned = append(unassigned, cid)
			continue
		}
		groups[*gid] = append(groups[*gid], cid)
	}
	for _, ids := range groups {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	sort.Slice(unassigned, func(i, j int) bool { return unassigned[i] < unassigned[j] })
	return groups, unassigned
}
