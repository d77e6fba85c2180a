package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"lextransition/internal/app"
	"lextransition/internal/config"
	"lextransition/internal/models"
	"lextransition/internal/resolver"
)

var (
	configPath string
	jsonOutput bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "lexqa",
		Short:        "Ask grounded questions about the IPC/CrPC/IEA to BNS/BNSS/BSA transition",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default lextransition.yaml if present)")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of text")

	root.AddCommand(
		askCmd(),
		analyzeCmd(),
		mapCmd(),
		predecessorsCmd(),
		resolveCmd(),
		categoriesCmd(),
		interactiveCmd(),
	)
	return root
}

// build loads configuration and wires the pipeline. Logs go to stderr so
// answers on stdout stay clean.
func build() (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(cfg.Logging, os.Stderr)
	return app.Build(cfg, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the indexed legal texts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			ans := a.Assembler.Ask(cmd.Context(), strings.Join(args, " "))
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), ans)
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatAnswer(ans))
			return nil
		},
	}
}

func analyzeCmd() *cobra.Command {
	var question string
	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Explain the provisions cited in an OCR'd document",
		Long: `Reads document text from a file (or stdin when the file is "-"),
resolves the sections it cites and answers the question against them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			a, err := build()
			if err != nil {
				return err
			}
			ans := a.Assembler.AnalyzeDocument(cmd.Context(), resolver.Document{Text: text}, question)
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), ans)
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatAnswer(ans))
			return nil
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "", "Question about the document")
	return cmd
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	return string(data), nil
}

func mapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "map [section]",
		Short: "Show the successor of a legacy section, e.g. \"IPC 302\"",
		Example: `  lexqa map "IPC 302"
  lexqa map CrPC 438`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := models.ParseSectionID(strings.Join(args, " "))
			if err != nil {
				return err
			}
			a, err := build()
			if err != nil {
				return err
			}
			entry, err := a.Table.Get(id)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), entry)
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatMapping(entry))
			return nil
		},
	}
}

func predecessorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predecessors [section]",
		Short: "List the legacy sections that map to a new section, e.g. \"BNS 103\"",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := models.ParseSectionID(strings.Join(args, " "))
			if err != nil {
				return err
			}
			a, err := build()
			if err != nil {
				return err
			}
			olds := a.Table.ReverseLookup(id)
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), olds)
			}
			if len(olds) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No legacy section maps to %s\n", id)
				return nil
			}
			for _, old := range olds {
				entry, _ := a.Table.Lookup(old)
				fmt.Fprintln(cmd.OutOrStdout(), formatMapping(entry))
			}
			return nil
		},
	}
}

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [text]",
		Short: "Find section references in text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs := resolver.Resolve(strings.Join(args, " "))
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), refs)
			}
			fmt.Fprint(cmd.OutOrStdout(), formatReferences(refs))
			return nil
		},
	}
}

func categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories [category]",
		Short: "List mapping categories, or the mappings in one category",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, name := range a.Table.Categories() {
					fmt.Fprintf(out, "  %s (%d)\n", name, len(a.Table.ByCategory(name)))
				}
				return nil
			}
			entries := a.Table.ByCategory(args[0])
			if len(entries) == 0 {
				return fmt.Errorf("category %q: %w", args[0], models.ErrNotFound)
			}
			if jsonOutput {
				return printJSON(out, entries)
			}
			for _, e := range entries {
				fmt.Fprintln(out, formatMapping(e))
			}
			return nil
		},
	}
}
