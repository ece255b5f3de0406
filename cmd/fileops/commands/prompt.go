package commands

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/vulntor/fileops/cmd/fileops/internal/bind"
	"github.com/vulntor/fileops/pkg/job"
)

// prompter asks the user how to resolve conflicts.
type prompter struct {
	in    *bufio.Reader
	out   io.Writer
	color bool
}

func newPrompter(in io.Reader, out io.Writer, useColor bool) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out, color: useColor}
}

// Ask shows the prompt and reads a choice by number or name. End of input
// cancels the operation.
func (p *prompter) Ask(prompt job.ConflictPrompt) job.Decision {
	candidates := prompt.BatchPolicyCandidates

	question := fmt.Sprintf("%q already exists at the destination (%s).", prompt.ItemName, prompt.ItemKind)
	if prompt.Stage == job.StageFolderContents {
		question = fmt.Sprintf("How should items inside %q be handled?", prompt.ItemName)
	}
	if p.color {
		question = color.New(color.FgYellow, color.Bold).Sprint(question)
	}
	_, _ = fmt.Fprintln(p.out, question)
	for i, d := range candidates {
		_, _ = fmt.Fprintf(p.out, "  %d) %s\n", i+1, d)
	}

	for {
		_, _ = fmt.Fprint(p.out, "Choice: ")
		line, err := p.in.ReadString('\n')
		answer := strings.TrimSpace(line)
		if d, ok := parseChoice(answer, candidates); ok {
			return d
		}
		if err != nil {
			_, _ = fmt.Fprintln(p.out)
			return job.DecisionCancelOperation
		}
		_, _ = fmt.Fprintf(p.out, "Enter a number between 1 and %d or a choice name.\n", len(candidates))
	}
}

func parseChoice(answer string, candidates []job.Decision) (job.Decision, bool) {
	if answer == "" {
		return "", false
	}
	if n, err := strconv.Atoi(answer); err == nil {
		if n >= 1 && n <= len(candidates) {
			return candidates[n-1], true
		}
		return "", false
	}
	for _, d := range candidates {
		if strings.EqualFold(answer, string(d)) {
			return d, true
		}
	}
	return "", false
}

// decide picks the answer for prompt under a fixed policy. A policy the
// prompt does not offer falls back to the closest offered decision.
func decide(policy bind.ConflictPolicy, prompt job.ConflictPrompt) job.Decision {
	d := policy.Decision
	if prompt.Offers(d) {
		return d
	}

	overwrite := strings.HasPrefix(string(d), "overwrite")
	var fallback job.Decision
	switch {
	case d == job.DecisionCancelOperation:
		fallback = job.DecisionCancelOperation
	case prompt.Stage == job.StageFolderContents && overwrite:
		fallback = job.DecisionOverwriteAll
	case prompt.Stage == job.StageFolderContents:
		fallback = job.DecisionSkipAll
	case overwrite:
		fallback = job.DecisionOverwriteThis
	default:
		fallback = job.DecisionSkipThis
	}
	if prompt.Offers(fallback) {
		return fallback
	}
	return job.DecisionCancelOperation
}
