package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"village-assist/internal/answer"
	"village-assist/internal/app"
	"village-assist/internal/ingest"
	"village-assist/internal/store"
)

type buildFunc func() (app.Deps, error)

// newRootCmd wires the operator commands. Dependencies are built lazily so
// that --help works without any backend configured.
func newRootCmd(build buildFunc) *cobra.Command {
	root := &cobra.Command{
		Use:           "villagectl",
		Short:         "Operate the village assistant from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newAskCmd(build),
		newIngestCmd(build),
		newSpeakCmd(build),
		newDocsCmd(build),
	)
	return root
}

func newAskCmd(build buildFunc) *cobra.Command {
	var (
		variant string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question through the guarded pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := build()
			if err != nil {
				return err
			}
			defer deps.Close()

			p := deps.Pipeline
			if variant != "" {
				tmpl, err := deps.Templates.Lookup(variant)
				if err != nil {
					return err
				}
				p = answer.NewPipeline(answer.Config{
					Template:      tmpl,
					MinAnswerLen:  deps.Config.AnswerMinLen,
					MaxAnswerLen:  deps.Config.AnswerMaxLen,
					ContextMaxLen: deps.Config.ContextMaxLen,
					RetrievalK:    deps.Config.RetrievalK,
				}, deps.LLM, deps.Retriever, deps.Log)
			}

			res := p.Answer(cmd.Context(), strings.Join(args, " "))
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&variant, "variant", "", "prompt variant (defaults to PROMPT_VARIANT)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result with its outcome")
	return cmd
}

func newIngestCmd(build buildFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Index .txt, .md or .pdf files for retrieval",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := build()
			if err != nil {
				return err
			}
			defer deps.Close()

			ing := ingest.New(deps.Store, deps.Embedder, deps.Cache, deps.Config.EmbeddingModel, deps.Log)
			var errs []error
			for _, path := range args {
				doc, err := ing.IngestFile(cmd.Context(), path)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", path, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", doc.ID, doc.Status, doc.Filename)
			}
			return errors.Join(errs...)
		},
	}
}

func newSpeakCmd(build buildFunc) *cobra.Command {
	var (
		out      string
		language string
	)
	cmd := &cobra.Command{
		Use:   "speak <text>",
		Short: "Synthesize text to an audio file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := build()
			if err != nil {
				return err
			}
			defer deps.Close()
			if deps.Speaker == nil {
				return errors.New("speech synthesis is not configured (set TTS_PROVIDER)")
			}
			if language == "" {
				language = deps.Pipeline.Template().Language
			}
			path, err := deps.Speaker.SpeakLanguage(cmd.Context(), strings.Join(args, " "), language, out)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "speech", "output path; the backend's extension is appended")
	cmd.Flags().StringVarP(&language, "language", "l", "", "voice language code")
	return cmd
}

func newDocsCmd(build buildFunc) *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := build()
			if err != nil {
				return err
			}
			defer deps.Close()

			filter := make([]store.DocumentStatus, len(statuses))
			for i, s := range statuses {
				filter[i] = store.DocumentStatus(s)
			}
			docs, err := deps.Store.ListDocuments(cmd.Context(), filter...)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tFILENAME\tCREATED")
			for _, d := range docs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Status, d.Filename, d.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "filter by status (processing, ready, failed, superseded)")
	return cmd
}
