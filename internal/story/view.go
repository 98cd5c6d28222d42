package story

import (
	"bytes"
	"text/template"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tatianab/money-adventure/internal/models"
)

var printer = message.NewPrinter(language.English)

// Money formats whole dollars, e.g. Money(1250) == "$1,250".
func Money(dollars int) string {
	if dollars < 0 {
		return printer.Sprintf("-$%d", -dollars)
	}
	return printer.Sprintf("$%d", dollars)
}

var funcs = template.FuncMap{"money": Money}

// themeWords are the theme-specific nouns woven into the story.
type themeWords struct {
	Treat     string
	Business  string
	Emergency string
}

var themes = map[models.Theme]themeWords{
	models.ThemeSports:  {Treat: "a new team jersey", Business: "washing muddy soccer uniforms", Emergency: "soccer cleats"},
	models.ThemeArt:     {Treat: "a fancy marker set", Business: "selling painted rocks", Emergency: "drawing tablet pen"},
	models.ThemeMusic:   {Treat: "a new song download bundle", Business: "giving ukulele mini-lessons", Emergency: "guitar strings and tuner"},
	models.ThemeGames:   {Treat: "an in-game skin", Business: "running a board-game afternoon", Emergency: "game controller"},
	models.ThemeAnimals: {Treat: "a plush puppy", Business: "walking neighbourhood dogs", Emergency: "pet's vet visit"},
}

// View is the read-only data story templates are rendered against.
type View struct {
	Name            string
	Avatar          string
	AvatarName      string
	Theme           string
	GoalName        string
	GoalIcon        string
	GoalCost        int
	Cash            int
	Savings         int
	Debt            int
	Wellbeing       int
	Funds           int
	Gap             int
	BusinessStarted bool
	BusinessPath    string
	Payday          int
	Treat           string
	Business        string
	Emergency       string
}

// NewView derives template data from a state.
func NewView(st models.GameState) View {
	words, ok := themes[st.Theme]
	if !ok {
		words = themes[models.ThemeSports]
	}
	avatar, _ := models.FindAvatar(st.Avatar)
	gap := st.GoalGap()
	if gap < 0 {
		gap = 0
	}
	return View{
		Name:            st.DisplayName,
		Avatar:          avatar.Glyph,
		AvatarName:      avatar.Name,
		Theme:           st.Theme.Title(),
		GoalName:        st.Goal.Name,
		GoalIcon:        st.Goal.Icon,
		GoalCost:        st.Goal.Cost,
		Cash:            st.Cash,
		Savings:         st.Savings,
		Debt:            st.Debt,
		Wellbeing:       st.Wellbeing,
		Funds:           st.Funds(),
		Gap:             gap,
		BusinessStarted: st.BusinessStarted,
		BusinessPath:    string(st.BusinessPath),
		Payday:          Payday(st),
		Treat:           words.Treat,
		Business:        words.Business,
		Emergency:       words.Emergency,
	}
}

// text is a script string compiled as a template.
type text struct {
	src  string
	tmpl *template.Template
}

func compile(name, src string) (text, error) {
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(src)
	if err != nil {
		return text{}, err
	}
	return text{src: src, tmpl: tmpl}, nil
}

func (t text) execute(st models.GameState) (string, error) {
	if t.tmpl == nil {
		return t.src, nil
	}
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, NewView(st)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// render never fails at play time: every template is executed against
// sample states when the script is parsed.
func (t text) render(st models.GameState) string {
	out, err := t.execute(st)
	if err != nil {
		return t.src
	}
	return out
}
