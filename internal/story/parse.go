package story

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tatianab/money-adventure/internal/models"
)

//go:embed script.yaml
var script []byte

type scriptDef struct {
	Chapters []chapterDef `yaml:"chapters"`
}

type chapterDef struct {
	Number int        `yaml:"number"`
	Title  string     `yaml:"title"`
	Scenes []sceneDef `yaml:"scenes"`
}

type sceneDef struct {
	Number     int            `yaml:"number"`
	Title      string         `yaml:"title"`
	Story      string         `yaml:"story"`
	Choices    []choiceDef    `yaml:"choices"`
	Challenge  *challengeDef  `yaml:"challenge"`
	Reflection *reflectionDef `yaml:"reflection"`
	Next       string         `yaml:"next"`
	NextRule   string         `yaml:"next_rule"`
}

type choiceDef struct {
	ID              string         `yaml:"id"`
	Label           string         `yaml:"label"`
	Outcome         string         `yaml:"outcome"`
	Effects         models.Effects `yaml:"effects"`
	Flags           models.Flags   `yaml:"flags"`
	EffectsRule     string         `yaml:"effects_rule"`
	When            string         `yaml:"when"`
	DisabledIf      string         `yaml:"disabled_if"`
	RequiresCash    int            `yaml:"requires_cash"`
	RequiresSavings int            `yaml:"requires_savings"`
}

type challengeDef struct {
	ID          string        `yaml:"id"`
	Type        ChallengeType `yaml:"type"`
	Question    string        `yaml:"question"`
	Options     []string      `yaml:"options"`
	Answer      string        `yaml:"answer"`
	AnswerRule  string        `yaml:"answer_rule"`
	Unit        Unit          `yaml:"unit"`
	Concepts    []string      `yaml:"concepts"`
	Bonus       int           `yaml:"bonus"`
	Explanation string        `yaml:"explanation"`
	Rubric      string        `yaml:"rubric"`
}

type reflectionDef struct {
	ID       string   `yaml:"id"`
	Prompt   string   `yaml:"prompt"`
	Rubric   string   `yaml:"rubric"`
	Concepts []string `yaml:"concepts"`
}

// Load parses the embedded adventure script with the default rules.
func Load() (*Graph, error) {
	return Parse(script, DefaultRules())
}

// Parse builds a graph from a YAML script. Any reference the script makes
// to a missing rule, scene or option is an error.
func Parse(data []byte, rules Rules) (*Graph, error) {
	var def scriptDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if len(def.Chapters) == 0 {
		return nil, fmt.Errorf("parse script: no chapters")
	}

	g := &Graph{
		scenes:   make(map[Location]*Scene),
		chapters: make(map[int]string),
	}
	for _, ch := range def.Chapters {
		if ch.Number <= 0 {
			return nil, fmt.Errorf("chapter %q: number must be positive", ch.Title)
		}
		if _, dup := g.chapters[ch.Number]; dup {
			return nil, fmt.Errorf("chapter %d: duplicate", ch.Number)
		}
		g.chapters[ch.Number] = ch.Title
		for _, sd := range ch.Scenes {
			loc := Location{Chapter: ch.Number, Scene: sd.Number}
			if sd.Number <= 0 {
				return nil, fmt.Errorf("scene %s: number must be positive", loc)
			}
			if _, dup := g.scenes[loc]; dup {
				return nil, fmt.Errorf("scene %s: duplicate", loc)
			}
			s, err := buildScene(loc, sd, rules)
			if err != nil {
				return nil, fmt.Errorf("scene %s: %w", loc, err)
			}
			g.scenes[loc] = s
			g.order = append(g.order, loc)
		}
	}
	for i := 1; i < len(g.order); i++ {
		if !g.order[i-1].Before(g.order[i]) {
			return nil, fmt.Errorf("scene %s: out of order after %s", g.order[i], g.order[i-1])
		}
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func buildScene(loc Location, sd sceneDef, rules Rules) (*Scene, error) {
	s := &Scene{Location: loc, Title: sd.Title}

	var err error
	if s.story, err = compile(loc.String()+".story", sd.Story); err != nil {
		return nil, err
	}
	if len(sd.Choices) == 0 {
		return nil, fmt.Errorf("no choices")
	}
	seen := make(map[string]bool)
	for _, cd := range sd.Choices {
		if cd.ID == "" {
			return nil, fmt.Errorf("choice without id")
		}
		if seen[cd.ID] {
			return nil, fmt.Errorf("choice %s: duplicate", cd.ID)
		}
		seen[cd.ID] = true
		c, err := buildChoice(loc, cd, rules)
		if err != nil {
			return nil, fmt.Errorf("choice %s: %w", cd.ID, err)
		}
		s.choices = append(s.choices, c)
	}
	if sd.Challenge != nil {
		if s.Challenge, err = buildChallenge(loc, sd.Challenge, rules); err != nil {
			return nil, fmt.Errorf("challenge %s: %w", sd.Challenge.ID, err)
		}
	}
	if sd.Reflection != nil {
		r := sd.Reflection
		if r.ID == "" || strings.TrimSpace(r.Prompt) == "" {
			return nil, fmt.Errorf("reflection needs an id and a prompt")
		}
		prompt, err := compile(loc.String()+"."+r.ID, r.Prompt)
		if err != nil {
			return nil, err
		}
		s.Reflection = &Reflection{ID: r.ID, Rubric: strings.TrimSpace(r.Rubric), Concepts: r.Concepts, prompt: prompt}
	}

	switch {
	case sd.Next != "" && sd.NextRule != "":
		return nil, fmt.Errorf("next and next_rule are exclusive")
	case sd.NextRule != "":
		rule, ok := rules.Next[sd.NextRule]
		if !ok {
			return nil, fmt.Errorf("unknown next_rule %q", sd.NextRule)
		}
		s.nextRule = rule
	case sd.Next != "":
		next, err := parseLocation(sd.Next)
		if err != nil {
			return nil, err
		}
		s.next = &next
	}
	return s, nil
}

func buildChoice(loc Location, cd choiceDef, rules Rules) (*Choice, error) {
	c := &Choice{
		ID:              cd.ID,
		RequiresCash:    cd.RequiresCash,
		RequiresSavings: cd.RequiresSavings,
		effects:         cd.Effects,
		flags:           cd.Flags,
	}
	var err error
	if c.label, err = compile(loc.String()+"."+cd.ID+".label", cd.Label); err != nil {
		return nil, err
	}
	if c.outcome, err = compile(loc.String()+"."+cd.ID+".outcome", cd.Outcome); err != nil {
		return nil, err
	}
	if cd.EffectsRule != "" {
		if c.effectsRule = rules.Effects[cd.EffectsRule]; c.effectsRule == nil {
			return nil, fmt.Errorf("unknown effects_rule %q", cd.EffectsRule)
		}
	}
	if cd.When != "" {
		if c.when = rules.Conditions[cd.When]; c.when == nil {
			return nil, fmt.Errorf("unknown condition %q", cd.When)
		}
	}
	if cd.DisabledIf != "" {
		if c.disabledIf = rules.Reasons[cd.DisabledIf]; c.disabledIf == nil {
			return nil, fmt.Errorf("unknown disabled_if %q", cd.DisabledIf)
		}
	}
	if p := cd.Flags.BusinessPath; p != nil {
		switch *p {
		case models.BusinessExpand, models.BusinessSteady, models.BusinessClosed:
		default:
			return nil, fmt.Errorf("unknown business path %q", *p)
		}
	}
	return c, nil
}

func buildChallenge(loc Location, cd *challengeDef, rules Rules) (*Challenge, error) {
	if cd.ID == "" {
		return nil, fmt.Errorf("challenge without id")
	}
	c := &Challenge{
		ID:       cd.ID,
		Type:     cd.Type,
		Options:  cd.Options,
		Unit:     cd.Unit,
		Concepts: cd.Concepts,
		Bonus:    cd.Bonus,
		Rubric:   strings.TrimSpace(cd.Rubric),
		answer:   strings.TrimSpace(cd.Answer),
	}
	if c.Unit == "" {
		c.Unit = UnitDollars
	}
	var err error
	if c.question, err = compile(loc.String()+"."+cd.ID+".question", cd.Question); err != nil {
		return nil, err
	}
	if c.explanation, err = compile(loc.String()+"."+cd.ID+".explanation", cd.Explanation); err != nil {
		return nil, err
	}
	if cd.AnswerRule != "" {
		if c.answerRule = rules.Answers[cd.AnswerRule]; c.answerRule == nil {
			return nil, fmt.Errorf("unknown answer_rule %q", cd.AnswerRule)
		}
	}
	switch c.Type {
	case ChallengeMultipleChoice:
		if len(c.Options) < 2 {
			return nil, fmt.Errorf("multiple choice needs at least two options")
		}
		found := c.answerRule != nil
		for _, o := range c.Options {
			found = found || o == c.answer
		}
		if !found {
			return nil, fmt.Errorf("answer %q is not an option", c.answer)
		}
	case ChallengeNumeric:
		if c.answerRule == nil {
			if _, err := strconv.Atoi(c.answer); err != nil {
				return nil, fmt.Errorf("numeric answer %q: %w", c.answer, err)
			}
		}
		switch c.Unit {
		case UnitDollars, UnitCents, UnitCount:
		default:
			return nil, fmt.Errorf("unknown unit %q", c.Unit)
		}
	case ChallengeOpenEnded:
		if c.Rubric == "" {
			return nil, fmt.Errorf("open-ended challenge needs a rubric")
		}
	default:
		return nil, fmt.Errorf("unknown challenge type %q", c.Type)
	}
	return c, nil
}

func parseLocation(s string) (Location, error) {
	s = strings.TrimSpace(s)
	if s == "end" {
		return End, nil
	}
	ch, sc, ok := strings.Cut(s, ".")
	if !ok {
		return Location{}, fmt.Errorf("bad location %q", s)
	}
	chapter, err := strconv.Atoi(ch)
	if err != nil {
		return Location{}, fmt.Errorf("bad location %q: %w", s, err)
	}
	scene, err := strconv.Atoi(sc)
	if err != nil {
		return Location{}, fmt.Errorf("bad location %q: %w", s, err)
	}
	if chapter <= 0 || scene <= 0 {
		return Location{}, fmt.Errorf("bad location %q", s)
	}
	return Location{Chapter: chapter, Scene: scene}, nil
}

// validate checks that static next locations exist and move forward, that
// every template renders for a spread of sample players, and that each of
// those players can always pick at least one choice.
func (g *Graph) validate() error {
	for _, loc := range g.order {
		s := g.scenes[loc]
		if s.nextRule != nil {
			continue
		}
		next := s.Next(models.GameState{}, "")
		if !next.IsEnd() {
			if _, ok := g.scenes[next]; !ok {
				if s.next == nil {
					return fmt.Errorf("scene %s: last scene of chapter %d must declare next", loc, loc.Chapter)
				}
				return fmt.Errorf("scene %s: next %s does not exist", loc, next)
			}
		}
		if !loc.Before(next) {
			return fmt.Errorf("scene %s: next %s goes backwards", loc, next)
		}
	}
	for _, st := range SampleStates() {
		for _, loc := range g.order {
			s := g.scenes[loc]
			if err := s.check(st); err != nil {
				return fmt.Errorf("scene %s: %w", loc, err)
			}
			if !s.playable(st) {
				return fmt.Errorf("scene %s: no choice can be picked with cash %d, savings %d, debt %d",
					loc, st.Cash, st.Savings, st.Debt)
			}
		}
	}
	return nil
}

func (s *Scene) check(st models.GameState) error {
	texts := []text{s.story}
	for _, c := range s.choices {
		texts = append(texts, c.label, c.outcome)
	}
	if s.Challenge != nil {
		texts = append(texts, s.Challenge.question, s.Challenge.explanation)
	}
	if s.Reflection != nil {
		texts = append(texts, s.Reflection.prompt)
	}
	for _, t := range texts {
		if _, err := t.execute(st); err != nil {
			return err
		}
	}
	return nil
}

// playable reports whether st has at least one enabled choice.
func (s *Scene) playable(st models.GameState) bool {
	for _, c := range s.Choices(st) {
		if c.Enabled() {
			return true
		}
	}
	return false
}

// SampleStates is the spread of players every scene is checked against:
// starting out, broke and debt-free, broke and in debt, and comfortably off,
// for each goal.
func SampleStates() []models.GameState {
	var out []models.GameState
	for i, goal := range models.Goals {
		st := models.NewGameState("sample")
		st.DisplayName = "Sam"
		st.Avatar = models.Avatars[i%len(models.Avatars)].ID
		st.Theme = models.Themes[i%len(models.Themes)]
		st.Goal = goal
		st.Stage = models.StagePlaying
		out = append(out, st)

		broke := st
		broke.Cash = 0
		out = append(out, broke)

		owing := broke
		owing.Debt = 30
		out = append(out, owing)

		rich := st
		rich.Savings, rich.Debt = 400, 25
		rich.BusinessStarted, rich.BusinessPath = true, models.BusinessExpand
		out = append(out, rich)
	}
	return out
}
