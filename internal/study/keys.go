package study

// Arrow key names as reported by browsers.
const (
	KeyArrowRight = "ArrowRight"
	KeyArrowLeft  = "ArrowLeft"
	KeyArrowUp    = "ArrowUp"
	KeyArrowDown  = "ArrowDown"
)

var keyCommands = map[string]Command{
	KeyArrowRight: CmdNextMove,
	KeyArrowLeft:  CmdPrevMove,
	KeyArrowUp:    CmdPrevGame,
	KeyArrowDown:  CmdNextGame,
}

// KeyCommand maps a key to the command it triggers. Only arrow keys are
// bound; for those the caller should suppress the key's default action.
func KeyCommand(key string) (Command, bool) {
	cmd, ok := keyCommands[key]
	return cmd, ok
}
