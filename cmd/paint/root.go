package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"moyun-danqing/internal/app"
	"moyun-danqing/internal/config"
	"moyun-danqing/internal/creation"
	"moyun-danqing/internal/imaging"
	"moyun-danqing/internal/style"
)

type paintOptions struct {
	Style  string
	OutDir string
	Raw    bool
}

func newRootCmd() *cobra.Command {
	opts := paintOptions{}

	cmd := &cobra.Command{
		Use:   "paint [flags] <poem>",
		Short: "Paint a classical Chinese poem and save the picture",
		Long: `Paint runs one generation for the given poem and writes the result
as a PNG named after the creation time. The picture is mounted on a
silk-coloured border unless --raw is set.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			if _, err := style.Parse(opts.Style); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logger := app.NewLogger(cfg)
			pipeline, err := app.Pipeline(cfg, logger)
			if err != nil {
				return err
			}

			_, err = paint(cmd.Context(), pipeline, strings.Join(args, " "), opts, cmd.OutOrStdout())
			return err
		},
	}

	cmd.Flags().StringVarP(&opts.Style, "style", "s", string(style.Default()), "painting style: ink-wash, blue-green or fine-brush")
	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", ".", "directory the picture is written to")
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "save the picture without the mounting border")

	return cmd
}

// paint runs one creation in a throwaway session and writes the picture
// into opts.OutDir. It returns the written path.
func paint(ctx context.Context, p *creation.Pipeline, poem string, opts paintOptions, w io.Writer) (string, error) {
	st, err := style.Parse(opts.Style)
	if err != nil {
		return "", err
	}

	sess := creation.NewSession("cli")
	out := p.Create(ctx, sess, poem, st)
	if !out.Succeeded() {
		return "", errors.New(out.Message)
	}

	c := out.Creation
	var data []byte
	if opts.Raw {
		data, err = imaging.EnsurePNG(c.Image)
	} else {
		data, err = imaging.Mount(c.Image)
	}
	if err != nil {
		return "", fmt.Errorf("render picture: %w", err)
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(opts.OutDir, imaging.ExportName(c.CreatedAt))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write picture: %w", err)
	}

	fmt.Fprintln(w, out.Message)
	if kw := out.Prompt.KeywordLine(); kw != "" {
		fmt.Fprintln(w, kw)
	}
	fmt.Fprintln(w, path)
	return path, nil
}
