package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lextransition/internal/app"
	"lextransition/internal/models"
	"lextransition/internal/resolver"
)

func interactiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "interactive",
		Aliases: []string{"i"},
		Short:   "Ask questions in a loop",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			runInteractive(cmd, a)
			return nil
		},
	}
}

func runInteractive(cmd *cobra.Command, a *app.App) {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())

	fmt.Fprintln(out, "Legal Transition Assistant - ask about IPC/CrPC/IEA and BNS/BNSS/BSA (type 'exit' to quit)")
	fmt.Fprintln(out, "Commands: /map <section>, /resolve <text>, /categories")

	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		lower := strings.ToLower(input)
		if lower == "exit" || lower == "quit" {
			break
		}
		if input == "" {
			continue
		}

		switch {
		case strings.HasPrefix(lower, "/map "):
			id, err := models.ParseSectionID(strings.TrimSpace(input[len("/map "):]))
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			lookupSection(cmd, a, id)
		case strings.HasPrefix(lower, "/resolve "):
			fmt.Fprint(out, formatReferences(resolver.Resolve(input[len("/resolve "):])))
		case lower == "/categories":
			for _, name := range a.Table.Categories() {
				fmt.Fprintln(out, "  "+name)
			}
		default:
			fmt.Fprint(out, "Searching legal texts... ")
			ans := a.Assembler.Ask(cmd.Context(), input)
			fmt.Fprintln(out, "\r"+formatAnswer(ans))
		}
	}
}

// lookupSection prints the successor of a legacy section or the
// predecessors of a new one
func lookupSection(cmd *cobra.Command, a *app.App, id models.SectionID) {
	out := cmd.OutOrStdout()
	if id.Family.IsSuccessor() {
		olds := a.Table.ReverseLookup(id)
		if len(olds) == 0 {
			fmt.Fprintf(out, "No legacy section maps to %s\n", id)
			return
		}
		for _, old := range olds {
			entry, _ := a.Table.Lookup(old)
			fmt.Fprintln(out, formatMapping(entry))
		}
		return
	}
	entry, ok := a.Table.Lookup(id)
	if !ok {
		fmt.Fprintf(out, "No mapping for %s\n", id)
		return
	}
	fmt.Fprintln(out, formatMapping(entry))
}
