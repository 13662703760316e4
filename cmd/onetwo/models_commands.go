package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"onetwotranscript/internal/transcriber"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Manage whisper.cpp ggml models",
	}

	modelsCmd.AddCommand(newModelsListCommand(ctx))
	modelsCmd.AddCommand(newModelsPullCommand(ctx))

	return modelsCmd
}

func newModelsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known models and whether they are installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			downloader := transcriber.NewModelDownloader(ctx.zapLogger(), cfg.GetModelsDir())

			rows := make([][]string, 0)
			for _, m := range downloader.ListModels() {
				marker := m.Name
				if m.Name == cfg.GetWhisperModel() {
					marker += " *"
				}
				rows = append(rows, []string{marker, humanize.Bytes(uint64(m.SizeBytes)), yesNo(m.Installed), m.Path})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Model", "Size", "Installed", "Path"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
			))
			fmt.Fprintln(out, "* configured model")
			return nil
		},
	}
}

func newModelsPullCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pull [name]",
		Short: "Download a ggml model (default: the configured one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			name := cfg.GetWhisperModel()
			if len(args) == 1 {
				name = args[0]
			}

			downloader := transcriber.NewModelDownloader(ctx.zapLogger(), cfg.GetModelsDir())
			canonical, ok := downloader.CanonicalModelName(name)
			if !ok {
				return fmt.Errorf("unknown model %q (see `onetwo models list`)", name)
			}
			name = canonical

			var bar *progressbar.ProgressBar
			if errOut := cmd.ErrOrStderr(); isTerminal(errOut) {
				downloader.SetProgress(func(written, total int64) {
					if bar == nil {
						bar = newDownloadBar(errOut, name, total)
					}
					_ = bar.Set64(written)
				})
			}

			path := downloader.GetModelPath(name)
			if err := downloader.EnsureModelExists(cmd.Context(), name, path); err != nil {
				return err
			}
			if bar != nil {
				_ = bar.Finish()
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Model %s ready at %s\n", name, path)
			return nil
		},
	}
}

func newDownloadBar(w io.Writer, name string, total int64) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("ggml-"+name+".bin"),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
}
