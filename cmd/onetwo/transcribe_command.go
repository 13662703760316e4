package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"onetwotranscript/internal/cache"
	"onetwotranscript/internal/transcriber"
	"onetwotranscript/internal/transcript"
)

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var outDir string
	var segmentsPath string

	cmd := &cobra.Command{
		Use:   "transcribe <audio>",
		Short: "Transcribe a local audio file into <TITLE>.txt and <TITLE>.srt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			log := ctx.zapLogger()
			audioPath := args[0]

			var resultCache transcriber.ResultCache
			if cfg.GetCacheEnabled() {
				store, err := cache.Open(cmd.Context(), cfg.GetCachePath(), log)
				if err != nil {
					return fmt.Errorf("open transcript cache: %w", err)
				}
				defer store.Close()
				resultCache = store
			}

			engine, err := transcriber.NewEngineFromConfig(cmd.Context(), cfg, log, resultCache)
			if err != nil {
				return err
			}
			defer func() {
				if err := engine.Close(); err != nil {
					log.Warn("failed to close transcription engine", zap.Error(err))
				}
			}()

			result, err := engine.Transcribe(cmd.Context(), audioPath)
			if err != nil {
				return fmt.Errorf("transcribe %s: %w", audioPath, err)
			}

			doc, err := transcript.Render(transcript.TitleFromFilename(audioPath), result.Segments)
			if err != nil {
				return err
			}
			plainPath, subtitlePath, err := writeDocument(outDir, doc)
			if err != nil {
				return err
			}

			if segmentsPath != "" {
				f, err := os.Create(segmentsPath)
				if err != nil {
					return fmt.Errorf("create %s: %w", segmentsPath, err)
				}
				writeErr := transcriber.NewJSONOutput(f, log).WriteSegments(result.Segments)
				closeErr := f.Close()
				if writeErr != nil {
					return writeErr
				}
				if closeErr != nil {
					return fmt.Errorf("close %s: %w", segmentsPath, closeErr)
				}
			}

			out := cmd.OutOrStdout()
			source := result.Backend
			if result.Cached {
				source += ", cached"
			}
			fmt.Fprintf(out, "%s: %d segments from %s of audio in %s (%s)\n",
				doc.Title, len(result.Segments), humanize.IBytes(uint64(result.AudioBytes)),
				result.Duration.Round(time.Millisecond), source)
			fmt.Fprintf(out, "Wrote %s\n", plainPath)
			fmt.Fprintf(out, "Wrote %s\n", subtitlePath)
			if segmentsPath != "" {
				fmt.Fprintf(out, "Wrote %s\n", segmentsPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory the transcript files are written to")
	cmd.Flags().StringVar(&segmentsPath, "segments", "", "Also write the raw segments as JSON to this file")
	return cmd
}
