package game

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/tatianab/money-adventure/internal/models"
	"github.com/tatianab/money-adventure/internal/story"
)

// GradeStatus is the grader's verdict on an open-ended answer.
type GradeStatus string

const (
	GradeGoodEnough    GradeStatus = "good_enough"
	GradeNeedsRevision GradeStatus = "needs_revision"
)

// GradeRequest is an open-ended answer sent to the grader.
type GradeRequest struct {
	QuestionID string
	Prompt     string
	Answer     string
	Concepts   []string
	Rubric     string
}

// GradeResult is the grader's response.
type GradeResult struct {
	Status   GradeStatus
	Feedback string
}

// Grader evaluates free-text answers, typically with an LLM.
type Grader interface {
	Grade(ctx context.Context, req GradeRequest) (GradeResult, error)
}

// EpilogueRequest asks for a short personalised ending narrative.
type EpilogueRequest struct {
	State       models.GameState
	DisplayName string
}

// EpilogueWriter produces the ending epilogue.
type EpilogueWriter interface {
	WriteEpilogue(ctx context.Context, req EpilogueRequest) (string, error)
}

// Fallback texts used when the grader or epilogue writer cannot answer.
const (
	ReflectionFallback = "Thanks for sharing your thoughts!"
	ChallengeFallback  = "Great effort! Thinking it through in your own words is how money skills grow."
)

// gradeChallenge checks a numeric or multiple-choice answer locally.
// Open-ended challenges go through the grader instead.
func gradeChallenge(c *story.Challenge, st models.GameState, answer string) models.ChallengeResult {
	expected := c.Answer(st)
	res := models.ChallengeResult{
		Answer:   answer,
		Expected: displayAnswer(expected, c.Unit, c.Type),
	}
	switch c.Type {
	case story.ChallengeMultipleChoice:
		res.Correct = strings.TrimSpace(answer) == expected
	case story.ChallengeNumeric:
		want, ok1 := normalizeAmount(expected, c.Unit)
		got, ok2 := normalizeAmount(answer, c.Unit)
		res.Correct = ok1 && ok2 && want == got
	}

	explanation := c.Explanation(st)
	if res.Correct {
		res.Feedback = joinSentences("Correct!", explanation)
	} else {
		res.Feedback = joinSentences(fmt.Sprintf("Not quite. The answer is %s.", res.Expected), explanation)
	}
	return res
}

func joinSentences(a, b string) string {
	if b = strings.TrimSpace(b); b == "" {
		return a
	}
	return a + " " + b
}

func displayAnswer(expected string, unit story.Unit, typ story.ChallengeType) string {
	if typ != story.ChallengeNumeric {
		return expected
	}
	n, err := strconv.Atoi(expected)
	if err != nil {
		return expected
	}
	switch unit {
	case story.UnitCents:
		return expected + "¢"
	case story.UnitCount:
		return expected
	default:
		return story.Money(n)
	}
}

var (
	dollarSuffixes = []string{"dollars", "dollar", "bucks"}
	centSuffixes   = []string{"cents", "cent", "¢", "c"}
)

// normalizeAmount parses a player's numeric answer. Money answers come
// back in cents; count answers come back as plain integers.
//
// A "$" prefix or dollar word means dollars, a cent sign or word means
// cents, otherwise a decimal point means dollars and a bare integer is read
// in the challenge's unit. Commas and spaces are ignored.
func normalizeAmount(raw string, unit story.Unit) (int, bool) {
	s := strings.ToLower(raw)
	s = strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, false
	}

	if unit == story.UnitCount {
		s = strings.TrimRightFunc(s, unicode.IsLetter)
		return decimal(s, 1)
	}

	scale, marked := 100, false
	if unit == story.UnitCents {
		scale = 1
	}
	if rest, ok := strings.CutPrefix(s, "$"); ok {
		s, scale, marked = rest, 100, true
	} else if rest, ok := cutAnySuffix(s, dollarSuffixes); ok {
		s, scale, marked = rest, 100, true
	} else if rest, ok := cutAnySuffix(s, centSuffixes); ok {
		s, scale, marked = rest, 1, true
	}
	if !marked && strings.Contains(s, ".") {
		scale = 100
	}
	return decimal(s, scale)
}

func cutAnySuffix(s string, suffixes []string) (string, bool) {
	for _, suf := range suffixes {
		if rest, ok := strings.CutSuffix(s, suf); ok {
			return rest, true
		}
	}
	return s, false
}

// maxWholeDigits bounds the integer part of an answer so scaling to cents
// cannot overflow.
const maxWholeDigits = 12

// decimal parses s and multiplies it by scale (1 or 100), rejecting any
// value that does not land on a whole number.
func decimal(s string, scale int) (int, bool) {
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, false
	}
	if len(strings.TrimLeft(whole, "0")) > maxWholeDigits {
		return 0, false
	}
	if !digits(whole) || !digits(frac) {
		return 0, false
	}
	n := 0
	if whole != "" {
		var err error
		if n, err = strconv.Atoi(whole); err != nil {
			return 0, false
		}
	}
	n *= scale

	places := 0
	if scale == 100 {
		places = 2
	}
	trimmed := strings.TrimRight(frac, "0")
	if len(trimmed) > places {
		return 0, false
	}
	if places > 0 && frac != "" {
		padded := (trimmed + "00")[:places]
		f, _ := strconv.Atoi(padded)
		n += f
	}
	return n, true
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
