package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"onetwotranscript/internal/transcript"
)

func newFormatCommand() *cobra.Command {
	var title string
	var outDir string
	var printFormat string

	cmd := &cobra.Command{
		Use:         "format <segments.json>",
		Short:       "Render a JSON segment list as a plain transcript and SRT",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read segments: %w", err)
			}
			segments, err := transcript.DecodeSegments(data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}

			if strings.TrimSpace(title) == "" {
				title = transcript.TitleFromFilename(args[0])
			}
			doc, err := transcript.Render(title, segments)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch strings.ToLower(printFormat) {
			case "":
			case "txt":
				fmt.Fprint(out, doc.Plain)
				return nil
			case "srt":
				fmt.Fprint(out, doc.Subtitles)
				return nil
			default:
				return fmt.Errorf("unknown --print format %q (expected txt or srt)", printFormat)
			}

			plainPath, subtitlePath, err := writeDocument(outDir, doc)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Wrote %s\n", plainPath)
			fmt.Fprintf(out, "Wrote %s\n", subtitlePath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Transcript title (default: upper-cased file name)")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory the transcript files are written to")
	cmd.Flags().StringVar(&printFormat, "print", "", "Print txt or srt to stdout instead of writing files")
	return cmd
}
