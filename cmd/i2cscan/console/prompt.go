package console

import "github.com/chzyer/readline"

// Prompt reads one line of input, returning readline's error on EOF or
// interrupt.
func Prompt(question string) (string, error) {
	rl, err := readline.New(question)
	if err != nil {
		return "", err
	}
	return rl.Readline()
}
