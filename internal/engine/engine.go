// Package engine talks to Gemini: it grades open-ended answers, writes
// ending epilogues and can stand in for a player in simulations.
package engine

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"

	"github.com/tatianab/money-adventure/internal/game"
	"github.com/tatianab/money-adventure/internal/models"
	"github.com/tatianab/money-adventure/internal/story"
)

//go:embed prompts/grade_answer.txt
var gradeAnswerPrompt string

//go:embed prompts/write_epilogue.txt
var writeEpiloguePrompt string

//go:embed prompts/choose_action.txt
var chooseActionPrompt string

var prompts = template.Must(template.New("prompts").Funcs(template.FuncMap{
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
}).Parse(`{{define "grade_answer"}}` + gradeAnswerPrompt + `{{end}}` +
	`{{define "write_epilogue"}}` + writeEpiloguePrompt + `{{end}}` +
	`{{define "choose_action"}}` + chooseActionPrompt + `{{end}}`))

// generator is the slice of *genai.GenerativeModel the engine uses.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Engine implements game.Grader and game.EpilogueWriter.
type Engine struct {
	client *genai.Client
	grader generator
	writer generator
	log    zerolog.Logger
}

var (
	_ game.Grader         = (*Engine)(nil)
	_ game.EpilogueWriter = (*Engine)(nil)
)

func NewEngine(ctx context.Context, apiKey, modelName string) (*Engine, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	grader := client.GenerativeModel(modelName)
	grader.SetTemperature(0.2)
	writer := client.GenerativeModel(modelName)
	writer.SetTemperature(0.9)

	return &Engine{
		client: client,
		grader: grader,
		writer: writer,
		log:    log.With().Str("component", "engine").Str("model", modelName).Logger(),
	}, nil
}

func (e *Engine) Close() {
	if e.client != nil {
		e.client.Close()
	}
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return buf.String(), nil
}

func (e *Engine) generate(ctx context.Context, model generator, prompt string) (string, error) {
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content returned from Gemini")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("unexpected response type from Gemini")
	}
	return sb.String(), nil
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```yaml", "```yml", "```json", "```"} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			s = rest
			break
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Grade asks Gemini whether an open-ended answer meets its rubric.
func (e *Engine) Grade(ctx context.Context, req game.GradeRequest) (game.GradeResult, error) {
	prompt, err := render("grade_answer", req)
	if err != nil {
		return game.GradeResult{}, err
	}
	text, err := e.generate(ctx, e.grader, prompt)
	if err != nil {
		return game.GradeResult{}, err
	}
	res, err := parseGrade(text)
	if err != nil {
		e.log.Warn().Err(err).Str("question", req.QuestionID).Msg("unusable grade")
		return game.GradeResult{}, err
	}
	e.log.Debug().Str("question", req.QuestionID).Str("status", string(res.Status)).Msg("graded")
	return res, nil
}

func parseGrade(text string) (game.GradeResult, error) {
	clean := stripFences(text)
	var raw struct {
		Status   string `yaml:"status"`
		Feedback string `yaml:"feedback"`
	}
	if err := yaml.Unmarshal([]byte(clean), &raw); err != nil {
		return game.GradeResult{}, fmt.Errorf("failed to parse grade YAML: %v\nOutput was: %s", err, clean)
	}
	status := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(raw.Status)))
	res := game.GradeResult{Status: game.GradeStatus(status), Feedback: strings.TrimSpace(raw.Feedback)}
	switch res.Status {
	case game.GradeGoodEnough, game.GradeNeedsRevision:
	default:
		return game.GradeResult{}, fmt.Errorf("unknown grade status %q", raw.Status)
	}
	if res.Feedback == "" {
		return game.GradeResult{}, fmt.Errorf("grade has no feedback")
	}
	return res, nil
}

type epilogueData struct {
	Name, GoalName, GoalCost       string
	EndingTitle, EndingDescription string
	BoughtGoal                     bool
	Cash, Savings, Debt            string
	Saver, Planner, Risk           string
	Earned, Saved, Borrowed        string
}

func newEpilogueData(req game.EpilogueRequest) epilogueData {
	st := req.State
	ending := game.EndingInfo(st.EndingType)
	name := req.DisplayName
	if name == "" {
		name = st.DisplayName
	}
	return epilogueData{
		Name:              name,
		GoalName:          st.Goal.Name,
		GoalCost:          story.Money(st.Goal.Cost),
		EndingTitle:       ending.Title,
		EndingDescription: ending.Description,
		BoughtGoal:        st.BoughtGoal,
		Cash:              story.Money(st.Cash),
		Savings:           story.Money(st.Savings),
		Debt:              story.Money(st.Debt),
		Saver:             models.TraitLevel(st.SaverScore),
		Planner:           models.TraitLevel(st.PlannerScore),
		Risk:              models.TraitLevel(st.RiskScore),
		Earned:            story.Money(st.TotalEarned),
		Saved:             story.Money(st.TotalSaved),
		Borrowed:          story.Money(st.TotalBorrowed),
	}
}

// WriteEpilogue asks Gemini for a short personalised ending.
func (e *Engine) WriteEpilogue(ctx context.Context, req game.EpilogueRequest) (string, error) {
	prompt, err := render("write_epilogue", newEpilogueData(req))
	if err != nil {
		return "", err
	}
	text, err := e.generate(ctx, e.writer, prompt)
	if err != nil {
		return "", err
	}
	return stripFences(text), nil
}

// PlayerTurn describes what a simulated player sees. Options is empty
// when a free-text answer is expected.
type PlayerTurn struct {
	Persona   string
	State     models.GameState
	Situation string
	Options   []string
}

// ChooseAction plays one turn as a simulated kid. For option turns it
// returns the zero-based index picked; otherwise the free-text answer.
func (e *Engine) ChooseAction(ctx context.Context, turn PlayerTurn) (int, string, error) {
	st := turn.State
	prompt, err := render("choose_action", map[string]any{
		"Persona":   turn.Persona,
		"GoalName":  st.Goal.Name,
		"GoalCost":  story.Money(st.Goal.Cost),
		"Cash":      story.Money(st.Cash),
		"Savings":   story.Money(st.Savings),
		"Debt":      story.Money(st.Debt),
		"Situation": turn.Situation,
		"Options":   turn.Options,
	})
	if err != nil {
		return 0, "", err
	}
	text, err := e.generate(ctx, e.writer, prompt)
	if err != nil {
		return 0, "", err
	}
	text = stripFences(text)
	if len(turn.Options) == 0 {
		return 0, text, nil
	}
	idx, err := parseOption(text, len(turn.Options))
	return idx, text, err
}

// parseOption reads the first number in a reply as a 1-based option.
func parseOption(reply string, n int) (int, error) {
	start := strings.IndexAny(reply, "0123456789")
	if start < 0 {
		return 0, fmt.Errorf("no option number in %q", reply)
	}
	end := start
	for end < len(reply) && reply[end] >= '0' && reply[end] <= '9' {
		end++
	}
	pick, err := strconv.Atoi(reply[start:end])
	if err != nil {
		return 0, err
	}
	if pick < 1 || pick > n {
		return 0, fmt.Errorf("option %d out of range 1-%d", pick, n)
	}
	return pick - 1, nil
}
