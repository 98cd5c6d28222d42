package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tatianab/money-adventure/internal/game"
	"github.com/tatianab/money-adventure/internal/models"
	"github.com/tatianab/money-adventure/internal/story"
)

type sessionState int

const (
	stateCreate sessionState = iota
	stateLoading
	statePlaying
	stateError
)

// createStep walks character creation one field at a time.
type createStep int

const (
	stepName createStep = iota
	stepAvatar
	stepTheme
	stepGoal
)

type model struct {
	ctx     context.Context
	state   sessionState
	session *game.Session

	step   createStep
	create game.CreateCharacter

	textInput textinput.Model
	viewport  viewport.Model
	err       error
	notice    string
	loading   string
	gameLog   string
	width     int
	height    int
}

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1)

	gameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF8787"))

	goodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87D787"))

	stateStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)
)

func NewModel(ctx context.Context, s *game.Session) model {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 156
	ti.Width = 40

	m := model{
		ctx:       ctx,
		session:   s,
		textInput: ti,
		viewport:  viewport.New(60, 20),
	}
	if s.State().Stage == models.StageCharacterCreation {
		m.startCreation()
	} else {
		m.state = statePlaying
		m.gameLog = m.narrate()
		m.refresh()
	}
	return m
}

func (m model) Init() tea.Cmd {
	if m.session.Phase() == models.PhaseEnded {
		return tea.Batch(textinput.Blink, m.fetchEpilogue())
	}
	return textinput.Blink
}

type dispatchedMsg struct {
	echo string
	err  error
}

type epilogueMsg struct {
	text string
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.state == stateLoading {
				return m, nil
			}
			input := strings.TrimSpace(m.textInput.Value())
			m.textInput.Reset()
			return m.submit(input)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.logWidth()
		m.viewport.Height = max(msg.Height-8, 5)
		m.refresh()

	case dispatchedMsg:
		m.state = statePlaying
		m.loading = ""
		if msg.err != nil {
			var gerr *game.Error
			if !errors.As(msg.err, &gerr) {
				m.err = msg.err
				m.state = stateError
				return m, nil
			}
			m.notice = gerr.Message
			if m.session.State().Stage == models.StageCharacterCreation {
				m.startCreation()
			}
			return m, nil
		}
		m.notice = ""
		if msg.echo != "" {
			m.gameLog += "\n\n" + userStyle.Width(m.logWidth()).Render("> "+msg.echo)
		}
		m.gameLog += "\n\n" + m.narrate()
		m.refresh()
		if m.session.Phase() == models.PhaseEnded {
			m.state = stateLoading
			m.loading = "Writing your epilogue..."
			return m, m.fetchEpilogue()
		}
		return m, nil

	case epilogueMsg:
		m.state = statePlaying
		m.loading = ""
		m.gameLog += "\n\n" + gameStyle.Width(m.logWidth()).Render(msg.text)
		m.refresh()
		return m, nil
	}

	if m.state == stateCreate || m.state == statePlaying {
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

// submit handles one line of player input for the current screen.
func (m model) submit(input string) (model, tea.Cmd) {
	switch input {
	case "/quit":
		return m, tea.Quit
	case "/restart":
		m.session.Restart(m.ctx)
		m.gameLog = ""
		m.notice = ""
		m.startCreation()
		return m, nil
	case "/reset":
		if err := m.session.Reset(m.ctx); err != nil {
			m.notice = "Couldn't erase your progress. Try again."
			return m, nil
		}
		m.gameLog = ""
		m.notice = "Your progress was erased."
		m.startCreation()
		return m, nil
	}

	switch m.state {
	case stateCreate:
		return m.submitCreate(input)
	case statePlaying:
		return m.submitPlay(input)
	}
	return m, nil
}

func (m *model) startCreation() {
	m.state = stateCreate
	m.step = stepName
	m.create = game.CreateCharacter{}
	m.textInput.Placeholder = "Your name"
}

func (m model) submitCreate(input string) (model, tea.Cmd) {
	m.notice = ""
	switch m.step {
	case stepName:
		if input == "" {
			m.notice = "Please type a name."
			return m, nil
		}
		m.create.DisplayName = input
		m.step = stepAvatar
	case stepAvatar:
		i, ok := pick(input, len(models.Avatars))
		if !ok {
			m.notice = "Pick an avatar by number."
			return m, nil
		}
		m.create.Avatar = models.Avatars[i].ID
		m.step = stepTheme
	case stepTheme:
		i, ok := pick(input, len(models.Themes))
		if !ok {
			m.notice = "Pick a theme by number."
			return m, nil
		}
		m.create.Theme = string(models.Themes[i])
		m.step = stepGoal
	case stepGoal:
		i, ok := pick(input, len(models.Goals))
		if !ok {
			m.notice = "Pick a goal by number."
			return m, nil
		}
		m.create.GoalID = models.Goals[i].ID
		m.textInput.Placeholder = ""
		return m.dispatch(m.create, "")
	}
	m.textInput.Placeholder = "Type a number"
	return m, nil
}

func (m model) submitPlay(input string) (model, tea.Cmd) {
	snap := m.session.Snapshot()
	switch snap.Phase {
	case models.PhaseStory:
		choices := m.session.Choices()
		i, ok := pick(input, len(choices))
		if !ok {
			m.notice = "Pick a choice by number."
			return m, nil
		}
		return m.dispatch(game.SelectChoice{ChoiceID: choices[i].ID}, choices[i].Label)

	case models.PhaseChallenge:
		answer := input
		if scene, ok := m.session.Scene(); ok && scene.Challenge != nil && scene.Challenge.Type == story.ChallengeMultipleChoice {
			i, ok := pick(input, len(scene.Challenge.Options))
			if !ok {
				m.notice = "Pick an answer by number."
				return m, nil
			}
			answer = scene.Challenge.Options[i]
		}
		if answer == "" {
			m.notice = "Type your answer first."
			return m, nil
		}
		m.loading = "Checking your answer..."
		m.state = stateLoading
		return m.dispatch(game.SubmitChallengeAnswer{Answer: answer}, answer)

	case models.PhaseReflection:
		if input == "" {
			m.notice = "Share a thought first."
			return m, nil
		}
		m.loading = "Reading your answer..."
		m.state = stateLoading
		return m.dispatch(game.SubmitReflection{Answer: input}, input)

	case models.PhaseOutcome, models.PhaseChallengeFeedback, models.PhaseReflectionFeedback, models.PhaseTurnEnd, models.PhaseContentMissing:
		return m.dispatch(game.AdvanceScene{}, "")
	}
	return m, nil
}

func (m model) dispatch(a game.Action, echo string) (model, tea.Cmd) {
	ctx, s := m.ctx, m.session
	return m, func() tea.Msg {
		return dispatchedMsg{echo: echo, err: s.Dispatch(ctx, a)}
	}
}

func (m model) fetchEpilogue() tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		text, err := s.Epilogue(ctx)
		if err != nil {
			text = game.FallbackEpilogue(s.State())
		}
		return epilogueMsg{text: text}
	}
}

// pick parses a 1-based menu number.
func pick(input string, n int) (int, bool) {
	i, err := strconv.Atoi(input)
	if err != nil || i < 1 || i > n {
		return 0, false
	}
	return i - 1, true
}

// narrate renders the text for the phase the session is in.
func (m model) narrate() string {
	snap := m.session.Snapshot()
	st := snap.State
	w := m.logWidth()
	scene, _ := m.session.Scene()

	var b strings.Builder
	switch snap.Phase {
	case models.PhaseStory:
		if scene == nil {
			break
		}
		b.WriteString(titleStyle.Render(fmt.Sprintf("Chapter %d: %s", st.Chapter, m.session.Graph().ChapterTitle(st.Chapter))))
		b.WriteString("\n" + gameStyle.Bold(true).Render(scene.Title) + "\n\n")
		b.WriteString(gameStyle.Width(w).Render(scene.Story(st)) + "\n")
		for i, c := range m.session.Choices() {
			line := fmt.Sprintf("\n  %d. %s", i+1, c.Label)
			if !c.Enabled() {
				line = helpStyle.Render(line + "  (" + c.DisabledReason + ")")
			}
			b.WriteString(line)
		}

	case models.PhaseOutcome:
		b.WriteString(gameStyle.Width(w).Render(snap.LastOutcome))
		b.WriteString("\n\n" + helpStyle.Render("Press Enter to continue."))

	case models.PhaseChallenge:
		if scene == nil || scene.Challenge == nil {
			break
		}
		c := scene.Challenge
		b.WriteString(titleStyle.Render("Bonus challenge"))
		if c.Bonus > 0 {
			b.WriteString(helpStyle.Render(fmt.Sprintf("  worth %s", story.Money(c.Bonus))))
		}
		b.WriteString("\n\n" + gameStyle.Width(w).Render(c.Question(st)))
		for i, o := range c.Options {
			fmt.Fprintf(&b, "\n  %d. %s", i+1, o)
		}

	case models.PhaseChallengeFeedback:
		if r := snap.Challenge; r != nil {
			style := goodStyle
			if !r.Correct && !r.Accepted {
				style = noticeStyle
			}
			b.WriteString(style.Width(w).Render(r.Feedback))
			if r.BonusEarned > 0 {
				b.WriteString("\n" + goodStyle.Render(fmt.Sprintf("+%s bonus!", story.Money(r.BonusEarned))))
			}
		}
		b.WriteString("\n\n" + helpStyle.Render("Press Enter to continue."))

	case models.PhaseReflection:
		if scene == nil || scene.Reflection == nil {
			break
		}
		b.WriteString(titleStyle.Render("Think about it"))
		b.WriteString("\n\n" + gameStyle.Width(w).Render(scene.Reflection.Prompt(st)))

	case models.PhaseReflectionFeedback:
		if r := snap.Reflection; r != nil {
			b.WriteString(gameStyle.Width(w).Render(r.Feedback))
		}
		b.WriteString("\n\n" + helpStyle.Render("Press Enter to continue."))

	case models.PhaseTurnEnd:
		fmt.Fprintf(&b, "Cash %s   Savings %s   Owed %s",
			story.Money(st.Cash), story.Money(st.Savings), story.Money(st.Debt))
		b.WriteString("\n\n" + helpStyle.Render("Press Enter for the next scene."))

	case models.PhaseEnded:
		if e, ok := m.session.Ending(); ok {
			b.WriteString(titleStyle.Render(e.Badge + " " + e.Title))
			b.WriteString("\n\n" + gameStyle.Width(w).Render(e.Description))
		}
		if st.BoughtGoal {
			b.WriteString("\n\n" + goodStyle.Render(fmt.Sprintf("You got the %s %s!", st.Goal.Name, st.Goal.Icon)))
		}

	case models.PhaseContentMissing:
		b.WriteString(noticeStyle.Render("This part of the adventure hasn't been written yet."))
		b.WriteString("\n\n" + helpStyle.Render("Press Enter to skip ahead, or type /restart to play again."))
	}
	return b.String()
}

func (m model) View() string {
	var s string

	switch m.state {
	case stateCreate:
		s = m.renderCreate()

	case stateLoading, statePlaying:
		mainView := lipgloss.JoinHorizontal(lipgloss.Top,
			m.viewport.View(),
			m.renderState(),
		)
		input := m.textInput.View()
		if m.state == stateLoading {
			input = helpStyle.Render(m.loading)
		}
		s = lipgloss.JoinVertical(lipgloss.Left,
			mainView,
			"\n"+input,
			m.renderNotice(),
			helpStyle.Render("Commands: /restart, /reset, /quit. Type a number to choose, or your answer."),
		)

	case stateError:
		s = fmt.Sprintf("\n  Error: %v\n\nPress Esc to quit.", m.err)
	}

	return "\n" + s + "\n"
}

func (m model) renderNotice() string {
	if m.notice == "" {
		return ""
	}
	return noticeStyle.Render(m.notice)
}

func (m model) renderCreate() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Welcome to Money Adventure!") + "\n\n")
	switch m.step {
	case stepName:
		b.WriteString("What's your name?")
	case stepAvatar:
		b.WriteString("Hi " + m.create.DisplayName + "! Pick your avatar:\n")
		for i, a := range models.Avatars {
			fmt.Fprintf(&b, "\n  %d. %s %s", i+1, a.Glyph, a.Name)
		}
	case stepTheme:
		b.WriteString("What do you love doing?\n")
		for i, t := range models.Themes {
			fmt.Fprintf(&b, "\n  %d. %s", i+1, t.Title())
		}
	case stepGoal:
		b.WriteString("What are you saving up for?\n")
		for i, g := range models.Goals {
			fmt.Fprintf(&b, "\n  %d. %s %s (%s)", i+1, g.Icon, g.Name, story.Money(g.Cost))
		}
	}
	b.WriteString("\n\n" + m.textInput.View())
	if n := m.renderNotice(); n != "" {
		b.WriteString("\n\n" + n)
	}
	return b.String()
}

func (m model) renderState() string {
	st := m.session.State()
	if st.Stage == models.StageCharacterCreation {
		return ""
	}

	avatar, _ := models.FindAvatar(st.Avatar)
	player := titleStyle.Render("PLAYER") + "\n" + avatar.Glyph + " " + st.DisplayName + "\n\n"

	goal := titleStyle.Render("GOAL") + "\n" +
		fmt.Sprintf("%s %s\n%s of %s\n\n", st.Goal.Icon, st.Goal.Name, story.Money(st.Funds()), story.Money(st.Goal.Cost))

	money := titleStyle.Render("MONEY") + "\n" +
		fmt.Sprintf("Cash: %s\nSavings: %s\nOwed: %s\nWellbeing: %d\n\n",
			story.Money(st.Cash), story.Money(st.Savings), story.Money(st.Debt), st.Wellbeing)

	habits := titleStyle.Render("HABITS") + "\n" +
		fmt.Sprintf("Saver: %s\nPlanner: %s\nRisk: %s\n\n",
			models.TraitLevel(st.SaverScore), models.TraitLevel(st.PlannerScore), models.TraitLevel(st.RiskScore))

	practice := titleStyle.Render("PRACTISE") + "\n"
	weak := m.session.Mastery().Weak()
	if len(weak) == 0 {
		practice += "(nothing yet)"
	}
	for i, c := range weak {
		if i == 3 {
			break
		}
		practice += fmt.Sprintf("- %s (%d%%)\n", c.Concept, c.Accuracy())
	}

	content := player + goal + money + habits + practice
	stateWidth := int(float64(m.width) * 0.23)
	return stateStyle.Width(stateWidth).Height(m.viewport.Height).Render(content)
}

func (m model) logWidth() int {
	if m.width == 0 {
		return 60
	}
	return int(float64(m.width) * 0.75)
}

func (m *model) refresh() {
	m.viewport.SetContent(m.gameLog)
	m.viewport.GotoBottom()
}

// Run plays s in the terminal until the player quits.
func Run(ctx context.Context, s *game.Session) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p := tea.NewProgram(NewModel(ctx, s), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
