package patient

import (
	"fmt"
	"strings"
)

// AgeBucket is the categorical age filter offered on the dashboard.
type AgeBucket string

const (
	AgeAll     AgeBucket = "all"
	AgeUnder18 AgeBucket = "under18"
	Age18To35  AgeBucket = "18to35"
	Age36To60  AgeBucket = "36to60"
	AgeAbove60 AgeBucket = "above60"
)

// AgeBuckets lists the buckets in display order.
var AgeBuckets = []AgeBucket{AgeAll, AgeUnder18, Age18To35, Age36To60, AgeAbove60}

// ParseAgeBucket maps a user supplied string to a bucket. The empty string
// means AgeAll.
func ParseAgeBucket(s string) (AgeBucket, error) {
	if s == "" {
		return AgeAll, nil
	}
	for _, b := range AgeBuckets {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown age bucket %q", s)
}

// Label is the button text used for the bucket.
func (b AgeBucket) Label() string {
	switch b {
	case AgeAll:
		return "All"
	case AgeUnder18:
		return "Under 18"
	case AgeAbove60:
		return "Above 60"
	default:
		return strings.Replace(string(b), "to", "-", 1)
	}
}

// Contains reports whether age falls in the bucket.
func (b AgeBucket) Contains(age int) bool {
	switch b {
	case AgeUnder18:
		return age < 18
	case Age18To35:
		return age >= 18 && age <= 35
	case Age36To60:
		return age >= 36 && age <= 60
	case AgeAbove60:
		return age > 60
	default:
		return true
	}
}

// Classify returns the single non-"all" bucket that contains age.
func Classify(age int) AgeBucket {
	for _, b := range AgeBuckets[1:] {
		if b.Contains(age) {
			return b
		}
	}
	return AgeAll
}

// Criteria is the derived filter state of the list view. It is never persisted.
type Criteria struct {
	SearchText string
	AgeBucket  AgeBucket
}

// Matches applies both rules to a single patient.
func (c Criteria) Matches(p Patient) bool {
	if c.SearchText != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(c.SearchText)) {
		return false
	}
	return c.AgeBucket.Contains(p.Age)
}

// Filter returns the patients of the loaded page matching criteria, in their
// original order. It only ever sees the current page; it is not a global search.
func Filter(items []Patient, c Criteria) []Patient {
	out := make([]Patient, 0, len(items))
	for _, p := range items {
		if c.Matches(p) {
			out = append(out, p)
		}
	}
	return out
}
