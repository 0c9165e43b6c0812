package cli

import (
	"io"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rohanthewiz/serr"
)

type confirmKeys struct {
	Yes key.Binding
	No  key.Binding
}

var defaultConfirmKeys = confirmKeys{
	Yes: key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("y", "yes")),
	No:  key.NewBinding(key.WithKeys("n", "N", "esc", "q", "ctrl+c", "enter"), key.WithHelp("n", "no")),
}

// confirmModel asks one yes/no question. Anything but an explicit yes
// answers no.
type confirmModel struct {
	question string
	keys     confirmKeys
	answered bool
	yes      bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, m.keys.Yes):
		m.answered, m.yes = true, true
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.No):
		m.answered = true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.answered {
		answer := "no"
		if m.yes {
			answer = "yes"
		}
		return styles.warn.Render(m.question) + " " + answer + "\n"
	}
	return styles.warn.Render(m.question) + " " +
		styles.muted.Render("["+m.keys.Yes.Help().Key+"/"+m.keys.No.Help().Key+"]") + " "
}

// confirm runs the prompt on in/out and reports whether the user said yes.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	p := tea.NewProgram(confirmModel{question: question, keys: defaultConfirmKeys},
		tea.WithInput(in), tea.WithOutput(out))

	final, err := p.Run()
	if err != nil {
		return false, serr.Wrap(err, "confirmation prompt failed")
	}
	m, ok := final.(confirmModel)
	return ok && m.yes, nil
}
