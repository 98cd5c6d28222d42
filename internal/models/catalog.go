package models

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Theme flavours the story around the player's favourite hobby.
type Theme string

const (
	ThemeSports  Theme = "sports"
	ThemeArt     Theme = "art"
	ThemeMusic   Theme = "music"
	ThemeGames   Theme = "games"
	ThemeAnimals Theme = "animals"
)

// Themes is the fixed theme catalog in display order.
var Themes = []Theme{ThemeSports, ThemeArt, ThemeMusic, ThemeGames, ThemeAnimals}

var titleCaser = cases.Title(language.English)

// Title is the display name of the theme.
func (t Theme) Title() string {
	return titleCaser.String(string(t))
}

// Valid reports whether t is in the catalog.
func (t Theme) Valid() bool {
	for _, c := range Themes {
		if c == t {
			return true
		}
	}
	return false
}

// Goal is the big thing the player is saving for.
type Goal struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Cost int    `json:"cost"`
	Icon string `json:"icon"`
}

// Goals is the big-goal catalog.
var Goals = []Goal{
	{ID: "skateboard", Name: "Skateboard", Cost: 120, Icon: "🛹"},
	{ID: "art_studio", Name: "Art Studio Kit", Cost: 150, Icon: "🎨"},
	{ID: "bike", Name: "New Bike", Cost: 200, Icon: "🚲"},
	{ID: "console", Name: "Game Console", Cost: 250, Icon: "🎮"},
}

// Avatar is a character portrait picked during character creation.
type Avatar struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Glyph string `json:"glyph"`
}

// Avatars is the avatar catalog.
var Avatars = []Avatar{
	{ID: "fox", Name: "Clever Fox", Glyph: "🦊"},
	{ID: "panda", Name: "Calm Panda", Glyph: "🐼"},
	{ID: "robot", Name: "Busy Robot", Glyph: "🤖"},
	{ID: "unicorn", Name: "Bright Unicorn", Glyph: "🦄"},
	{ID: "lion", Name: "Brave Lion", Glyph: "🦁"},
	{ID: "owl", Name: "Wise Owl", Glyph: "🦉"},
}

// FindGoal looks a goal up by id.
func FindGoal(id string) (Goal, bool) {
	for _, g := range Goals {
		if g.ID == id {
			return g, true
		}
	}
	return Goal{}, false
}

// FindAvatar looks an avatar up by id.
func FindAvatar(id string) (Avatar, bool) {
	for _, a := range Avatars {
		if a.ID == id {
			return a, true
		}
	}
	return Avatar{}, false
}
