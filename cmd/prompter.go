package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dannyjpn/photostock/internal/batch"
	"github.com/dannyjpn/photostock/internal/mediastore"
	"github.com/dannyjpn/photostock/internal/orchestrator"
)

// terminalPrompter collects the per-file decision on the terminal: a
// description confirms the file, "r" rejects it, an empty line skips it.
type terminalPrompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func newTerminalPrompter() *terminalPrompter {
	return &terminalPrompter{in: bufio.NewScanner(os.Stdin), out: os.Stdout}
}

func (p *terminalPrompter) readLine() (string, bool, error) {
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", false, err
		}
		return "", false, nil
	}
	return strings.TrimSpace(p.in.Text()), true, nil
}

func (p *terminalPrompter) Decide(rec mediastore.Record) (orchestrator.PromptDecision, error) {
	fmt.Fprintf(p.out, "\n%s\n  %s\n", rec[mediastore.ColFile], rec[mediastore.ColPath])
	fmt.Fprint(p.out, "Description ([enter] = skip, r = reject): ")

	line, ok, err := p.readLine()
	if err != nil {
		return orchestrator.PromptDecision{}, err
	}
	// End of input skips everything that is left.
	if !ok || line == "" {
		return orchestrator.PromptDecision{Action: orchestrator.ActionSkip}, nil
	}
	if line == "r" {
		return orchestrator.PromptDecision{Action: orchestrator.ActionReject}, nil
	}

	decision := orchestrator.PromptDecision{
		Action:      orchestrator.ActionSave,
		Description: line,
	}

	fmt.Fprint(p.out, "Editorial? [y/N]: ")
	answer, ok, err := p.readLine()
	if err != nil {
		return orchestrator.PromptDecision{}, err
	}
	if !ok || !strings.EqualFold(answer, "y") {
		return decision, nil
	}

	data := &batch.EditorialData{}
	for _, field := range []struct {
		label string
		dst   *string
	}{
		{"City", &data.City},
		{"Country", &data.Country},
		{"Date (e.g. August 04, 2016)", &data.Date},
	} {
		fmt.Fprintf(p.out, "%s: ", field.label)
		value, ok, err := p.readLine()
		if err != nil {
			return orchestrator.PromptDecision{}, err
		}
		if !ok {
			return decision, nil
		}
		*field.dst = value
	}

	decision.Editorial = true
	decision.EditorialData = data
	return decision, nil
}
