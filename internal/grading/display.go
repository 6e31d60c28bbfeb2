package grading

import (
	"sort"
	"strings"
	"time"
)

// DisplayChild carries the fields the board sorts the unassigned list by.
type DisplayChild struct {
	ID          uint
	FirstName   string
	LastName    string
	Age         *int
	DateOfBirth string
	Grade       string
}

func (c DisplayChild) sortAge() int {
	if c.Age == nil {
		return -1
	}
	return *c.Age
}

// sortDOB is the unix time of the date of birth; blank or unparseable dates
// count as the epoch.
func (c DisplayChild) sortDOB() int64 {
	s := strings.TrimSpace(c.DateOfBirth)
	if s == "" {
		return 0
	}
	for _, layout := range []string{"2006-01-02", "01/02/2006", "1/2/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix()
		}
	}
	return 0
}

func (c DisplayChild) sortName() string {
	return strings.ToLower(strings.TrimSpace(c.FirstName + " " + c.LastName))
}

// LessForDisplay orders by age, date of birth, grade, then name. It never
// affects group membership.
func LessForDisplay(a, b DisplayChild) bool {
	if aa, ba := a.sortAge(), b.sortAge(); aa != ba {
		return aa < ba
	}
	if ad, bd := a.sortDOB(), b.sortDOB(); ad != bd {
		return ad < bd
	}
	if ag, bg := strings.ToLower(a.Grade), strings.ToLower(b.Grade); ag != bg {
		return ag < bg
	}
	return a.sortName() < b.sortName()
}

func SortForDisplay(children []DisplayChild) {
	sort.SliceStable(children, func(i, j int) bool {
		return LessForDisplay(children[i], children[j])
	})
}
