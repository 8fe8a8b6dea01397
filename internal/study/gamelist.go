package study

import "github.com/dmmcquay/chess-study/internal/pgn"

// NoSelection is the selection index when no game is highlighted.
const NoSelection = -1

// GameList is the loaded collection and the highlighted game.
type GameList struct {
	games    []*pgn.GameRecord
	total    int
	selected int
}

func NewGameList() *GameList {
	return &GameList{selected: NoSelection}
}

// Load replaces the collection and clears the selection.
func (l *GameList) Load(c *pgn.Collection) {
	l.games = c.Games
	l.total = c.Total
	l.selected = NoSelection
}

func (l *GameList) Len() int {
	return len(l.games)
}

// Total counts the games in the source before the cap.
func (l *GameList) Total() int {
	return l.total
}

func (l *GameList) Game(i int) (*pgn.GameRecord, bool) {
	if i < 0 || i >= len(l.games) {
		return nil, false
	}
	return l.games[i], true
}

func (l *GameList) Games() []*pgn.GameRecord {
	return l.games
}

func (l *GameList) Selected() int {
	return l.selected
}

// SelectedGame returns the highlighted game, if any.
func (l *GameList) SelectedGame() (*pgn.GameRecord, bool) {
	return l.Game(l.selected)
}

// Select highlights game i. An index outside the list changes nothing.
func (l *GameList) Select(i int) bool {
	if i < 0 || i >= len(l.games) {
		return false
	}
	l.selected = i
	return true
}

// Next selects the following game. With nothing selected, game 0 is the
// one on show, so Next moves on to game 1.
func (l *GameList) Next() bool {
	if l.selected == NoSelection {
		return l.Select(1)
	}
	return l.Select(l.selected + 1)
}

// Previous selects the preceding game. It does nothing without a selection.
func (l *GameList) Previous() bool {
	if l.selected == NoSelection {
		return false
	}
	return l.Select(l.selected - 1)
}
