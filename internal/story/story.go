// Package story holds the Money Adventure scene graph: chapters of scenes,
// each with story text, choices, an optional bonus challenge, an optional
// reflection prompt and a rule for the next scene.
//
// The graph is immutable once loaded. Everything that depends on the
// player is a pure function of a models.GameState.
package story

import (
	"fmt"
	"sort"

	"github.com/tatianab/money-adventure/internal/models"
)

// Location addresses a scene. The zero Location is the terminal "end".
type Location struct {
	Chapter int
	Scene   int
}

// End is the sentinel returned when the adventure is over.
var End = Location{}

// IsEnd reports whether l is the terminal sentinel.
func (l Location) IsEnd() bool { return l == End }

// Before reports whether l comes strictly before o in reading order. End
// comes after every scene.
func (l Location) Before(o Location) bool {
	switch {
	case l.IsEnd():
		return false
	case o.IsEnd():
		return true
	case l.Chapter != o.Chapter:
		return l.Chapter < o.Chapter
	default:
		return l.Scene < o.Scene
	}
}

func (l Location) String() string {
	if l.IsEnd() {
		return "end"
	}
	return fmt.Sprintf("%d.%d", l.Chapter, l.Scene)
}

// Rule signatures. Rules are registered by name and referenced from the
// script, so the script itself stays plain data.
type (
	Predicate   func(models.GameState) bool
	ReasonRule  func(models.GameState) string
	EffectsRule func(models.GameState) models.Effects
	AnswerRule  func(models.GameState) string
	NextRule    func(s models.GameState, choiceID string) Location
)

// Rules is a named rule registry.
type Rules struct {
	Conditions map[string]Predicate
	Reasons    map[string]ReasonRule
	Effects    map[string]EffectsRule
	Answers    map[string]AnswerRule
	Next       map[string]NextRule
}

// Scene is one node of the graph.
type Scene struct {
	Location   Location
	Title      string
	Challenge  *Challenge
	Reflection *Reflection

	story    text
	choices  []*Choice
	next     *Location
	nextRule NextRule
}

// Story renders the scene text for the player.
func (s *Scene) Story(st models.GameState) string {
	return s.story.render(st)
}

// Choices resolves the choice set for st. Hidden choices are dropped;
// unaffordable or otherwise blocked choices carry a DisabledReason.
func (s *Scene) Choices(st models.GameState) []ResolvedChoice {
	var out []ResolvedChoice
	for _, c := range s.choices {
		if c.when != nil && !c.when(st) {
			continue
		}
		out = append(out, c.resolve(st))
	}
	return out
}

// Choice resolves a single visible choice by id.
func (s *Scene) Choice(st models.GameState, id string) (ResolvedChoice, bool) {
	for _, c := range s.Choices(st) {
		if c.ID == id {
			return c, true
		}
	}
	return ResolvedChoice{}, false
}

// Outcome narrates what happened after the player picked choiceID. It is
// rendered against the state after the choice's effects were applied.
func (s *Scene) Outcome(st models.GameState, choiceID string) string {
	for _, c := range s.choices {
		if c.ID == choiceID {
			return c.outcome.render(st)
		}
	}
	return ""
}

// Next resolves where the story goes after this scene.
func (s *Scene) Next(st models.GameState, choiceID string) Location {
	switch {
	case s.nextRule != nil:
		return s.nextRule(st, choiceID)
	case s.next != nil:
		return *s.next
	default:
		return Location{Chapter: s.Location.Chapter, Scene: s.Location.Scene + 1}
	}
}

// Choice is a player option as written in the script.
type Choice struct {
	ID              string
	RequiresCash    int
	RequiresSavings int

	label       text
	outcome     text
	effects     models.Effects
	flags       models.Flags
	effectsRule EffectsRule
	when        Predicate
	disabledIf  ReasonRule
}

// ResolvedChoice is a choice evaluated against a specific state.
type ResolvedChoice struct {
	ID             string
	Label          string
	Effects        models.Effects
	Flags          models.Flags
	DisabledReason string
}

// Enabled reports whether the player may pick the choice.
func (c ResolvedChoice) Enabled() bool { return c.DisabledReason == "" }

func (c *Choice) resolve(st models.GameState) ResolvedChoice {
	effects := c.effects
	if c.effectsRule != nil {
		effects = effects.Add(c.effectsRule(st))
	}
	return ResolvedChoice{
		ID:             c.ID,
		Label:          c.label.render(st),
		Effects:        effects,
		Flags:          c.flags,
		DisabledReason: c.disabledReason(st, effects),
	}
}

// disabledReason gates the choice. Besides the explicit requirements, any
// choice whose cash or savings cost exceeds what the player holds is
// blocked so resources can never be driven below zero.
func (c *Choice) disabledReason(st models.GameState, effects models.Effects) string {
	if c.RequiresCash > 0 && st.Cash < c.RequiresCash {
		return fmt.Sprintf("You need %s in cash.", Money(c.RequiresCash))
	}
	if c.RequiresSavings > 0 && st.Savings < c.RequiresSavings {
		return fmt.Sprintf("You need %s in savings.", Money(c.RequiresSavings))
	}
	if c.disabledIf != nil {
		if reason := c.disabledIf(st); reason != "" {
			return reason
		}
	}
	if effects.Cash < 0 && st.Cash+effects.Cash < 0 {
		return fmt.Sprintf("You need %s in cash.", Money(-effects.Cash))
	}
	if effects.Savings < 0 && st.Savings+effects.Savings < 0 {
		return fmt.Sprintf("You need %s in savings.", Money(-effects.Savings))
	}
	return ""
}

// ChallengeType is how a challenge is answered and graded.
type ChallengeType string

const (
	ChallengeNumeric        ChallengeType = "numeric"
	ChallengeMultipleChoice ChallengeType = "multiple_choice"
	ChallengeOpenEnded      ChallengeType = "open_ended"
)

// Unit is the unit a numeric answer is written in.
type Unit string

const (
	UnitDollars Unit = "dollars"
	UnitCents   Unit = "cents"
	UnitCount   Unit = "count"
)

// Challenge is a bonus mini-question attached to a scene.
type Challenge struct {
	ID       string
	Type     ChallengeType
	Options  []string
	Unit     Unit
	Concepts []string
	Bonus    int
	Rubric   string

	question    text
	answer      string
	answerRule  AnswerRule
	explanation text
}

// Question renders the prompt.
func (c *Challenge) Question(st models.GameState) string { return c.question.render(st) }

// Answer is the correct answer for st. Open-ended challenges have none.
func (c *Challenge) Answer(st models.GameState) string {
	if c.answerRule != nil {
		return c.answerRule(st)
	}
	return c.answer
}

// Explanation renders the worked answer shown after grading.
func (c *Challenge) Explanation(st models.GameState) string { return c.explanation.render(st) }

// Reflection is an open-ended prompt graded for feedback only.
type Reflection struct {
	ID       string
	Rubric   string
	Concepts []string

	prompt text
}

// Prompt renders the reflection question.
func (r *Reflection) Prompt(st models.GameState) string { return r.prompt.render(st) }

// Graph is the loaded scene script.
type Graph struct {
	scenes   map[Location]*Scene
	order    []Location
	chapters map[int]string
}

// Scene looks up a scene; ok is false when no such scene exists.
func (g *Graph) Scene(chapter, number int) (*Scene, bool) {
	s, ok := g.scenes[Location{Chapter: chapter, Scene: number}]
	return s, ok
}

// Start is the first scene of the adventure.
func (g *Graph) Start() Location {
	if len(g.order) == 0 {
		return End
	}
	return g.order[0]
}

// Locations lists every scene in reading order.
func (g *Graph) Locations() []Location {
	return append([]Location(nil), g.order...)
}

// ChapterTitle is the title of chapter n.
func (g *Graph) ChapterTitle(n int) string { return g.chapters[n] }

// Chapters is the number of chapters.
func (g *Graph) Chapters() int { return len(g.chapters) }

// Concepts lists every concept tag used by challenges and reflections.
func (g *Graph) Concepts() []string {
	seen := make(map[string]bool)
	for _, s := range g.scenes {
		if s.Challenge != nil {
			for _, c := range s.Challenge.Concepts {
				seen[c] = true
			}
		}
		if s.Reflection != nil {
			for _, c := range s.Reflection.Concepts {
				seen[c] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
