// Package mastery tracks how well a learner handles each financial-literacy
// concept across quizzes and game challenges.
package mastery

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// Strength is the qualitative rating of a concept.
type Strength string

const (
	NotStarted Strength = "not_started"
	Struggling Strength = "struggling"
	Okay       Strength = "okay"
	Strong     Strength = "strong"
)

// Thresholds for the strength buckets, in percent.
const (
	StrongPercent   = 80
	OkayPercent     = 50
	MinStrongSample = 3
)

// ConceptScore is the running tally for one concept.
type ConceptScore struct {
	Concept string `json:"concept"`
	Correct int    `json:"correct"`
	Total   int    `json:"total"`
}

// Strength classifies the tally. Boundaries use integer arithmetic so that
// exactly 80% is strong and anything below is not.
func (c ConceptScore) Strength() Strength {
	switch {
	case c.Total == 0:
		return NotStarted
	case c.Correct*100 >= StrongPercent*c.Total && c.Total >= MinStrongSample:
		return Strong
	case c.Correct*100 >= OkayPercent*c.Total:
		return Okay
	default:
		return Struggling
	}
}

// Accuracy is the percentage of correct attempts, rounded down.
func (c ConceptScore) Accuracy() int {
	if c.Total == 0 {
		return 0
	}
	return c.Correct * 100 / c.Total
}

// Observation is one graded answer for one concept.
type Observation struct {
	Concept string
	Correct bool
}

// Summary aggregates the whole tracker.
type Summary struct {
	Strong     int `json:"strong"`
	Okay       int `json:"okay"`
	Struggling int `json:"struggling"`
	NotStarted int `json:"not_started"`
	// Accuracy is the overall percent correct across all concepts.
	Accuracy int `json:"accuracy"`
	Attempts int `json:"attempts"`
}

var ErrEmptyConcept = errors.New("mastery: empty concept id")

// Tracker holds one learner's concept scores.
type Tracker struct {
	mu     sync.RWMutex
	scores map[string]ConceptScore
}

// NewTracker returns a tracker seeded with previously saved scores.
func NewTracker(saved map[string]ConceptScore) *Tracker {
	t := &Tracker{scores: make(map[string]ConceptScore)}
	t.Load(saved)
	return t
}

// Record applies all observations or none of them.
func (t *Tracker) Record(obs ...Observation) error {
	for _, o := range obs {
		if strings.TrimSpace(o.Concept) == "" {
			return ErrEmptyConcept
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, o := range obs {
		id := strings.TrimSpace(o.Concept)
		s := t.scores[id]
		s.Concept = id
		s.Total++
		if o.Correct {
			s.Correct++
		}
		t.scores[id] = s
	}
	return nil
}

// Score returns the tally for a concept; unseen concepts are not started.
func (t *Tracker) Score(concept string) ConceptScore {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.scores[concept]; ok {
		return s
	}
	return ConceptScore{Concept: concept}
}

// Weak returns struggling and okay concepts, worst first.
func (t *Tracker) Weak() []ConceptScore {
	out := t.filter(func(s Strength) bool { return s == Struggling || s == Okay })
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		// a*b.Total < b*a.Total compares accuracies without rounding.
		if l, r := a.Correct*b.Total, b.Correct*a.Total; l != r {
			return l < r
		}
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.Concept < b.Concept
	})
	return out
}

// Strong returns strong concepts, best first.
func (t *Tracker) Strong() []ConceptScore {
	out := t.filter(func(s Strength) bool { return s == Strong })
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if l, r := a.Correct*b.Total, b.Correct*a.Total; l != r {
			return l > r
		}
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.Concept < b.Concept
	})
	return out
}

func (t *Tracker) filter(keep func(Strength) bool) []ConceptScore {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []ConceptScore
	for _, s := range t.scores {
		if keep(s.Strength()) {
			out = append(out, s)
		}
	}
	return out
}

// Summary counts concepts per bucket. Concepts listed in known that have
// never been attempted count as not started.
func (t *Tracker) Summary(known ...string) Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var sum Summary
	correct := 0
	for _, s := range t.scores {
		switch s.Strength() {
		case Strong:
			sum.Strong++
		case Okay:
			sum.Okay++
		case Struggling:
			sum.Struggling++
		default:
			sum.NotStarted++
		}
		correct += s.Correct
		sum.Attempts += s.Total
	}
	seen := make(map[string]bool, len(known))
	for _, k := range known {
		if _, ok := t.scores[k]; !ok && !seen[k] {
			sum.NotStarted++
		}
		seen[k] = true
	}
	if sum.Attempts > 0 {
		sum.Accuracy = correct * 100 / sum.Attempts
	}
	return sum
}

// Scores returns a copy of every tally, for persistence.
func (t *Tracker) Scores() map[string]ConceptScore {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]ConceptScore, len(t.scores))
	for k, v := range t.scores {
		out[k] = v
	}
	return out
}

// Load merges saved tallies, replacing any existing entry for the same id.
func (t *Tracker) Load(saved map[string]ConceptScore) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range saved {
		if k == "" || v.Total < 0 || v.Correct < 0 || v.Correct > v.Total {
			continue
		}
		v.Concept = k
		t.scores[k] = v
	}
}

// Reset forgets every tally.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scores = make(map[string]ConceptScore)
}
