package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"papertrail-manager/papertrail"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand creates the papertrail-manager command tree. Running it
// without a subcommand starts the server.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "papertrail-manager",
		Short:         "Keep a local inventory of a Papertrail account",
		Long:          "Caches a Papertrail account's systems, groups, destinations and archives, serves them over a JSON API and downloads archives in the background.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initLogger()
			if opts.Verbose {
				log.SetLevel(logrus.DebugLevel)
				papertrail.SetLogLevel(logrus.DebugLevel)
			}
			return validateEnvVars()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging (overrides LOG_LEVEL)")

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewCheckCommand())
	cmd.AddCommand(NewSnapshotCommand())
	cmd.AddCommand(NewArchivesCommand())
	cmd.AddCommand(NewDownloadCommand())

	return cmd
}

// NewServeCommand starts the HTTP API, the worker pool and the refresh loop.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp()
	if err != nil {
		return err
	}
	return runServer(ctx, app)
}

// loadInventory fetches the whole account once.
func loadInventory(ctx context.Context) (*papertrail.Papertrail, error) {
	pt, err := papertrail.New(papertrailConfig())
	if err != nil {
		return nil, err
	}
	if err := pt.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}
	return pt, nil
}

func loadArchives(ctx context.Context) (*papertrail.Papertrail, error) {
	pt, err := papertrail.New(papertrailConfig())
	if err != nil {
		return nil, err
	}
	if err := pt.Archives.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load archives: %w", err)
	}
	return pt, nil
}

// NewCheckCommand loads the account and prints a summary. It exits 0 when
// the token works.
func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load the account once and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pt, err := loadInventory(cmd.Context())
			if err != nil {
				return err
			}
			renderSummary(cmd.OutOrStdout(), pt)
			return nil
		},
	}
}

// NewSnapshotCommand writes the account snapshot as JSON.
func NewSnapshotCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Write a JSON snapshot of the account inventory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pt, err := loadInventory(cmd.Context())
			if err != nil {
				return err
			}
			data, err := pt.MarshalSnapshot()
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return fmt.Errorf("failed to write snapshot: %w", err)
			}
			log.Infof("Snapshot written to %s", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")
	return cmd
}

// NewArchivesCommand lists the account's archives.
func NewArchivesCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "archives",
		Short: "List archives",
		Long:  "List archives. --format takes a Go text/template with sprig functions, executed once per archive.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "" {
				if _, err := parseArchiveFormat(format); err != nil {
					return err
				}
			}
			pt, err := loadArchives(cmd.Context())
			if err != nil {
				return err
			}
			return renderArchives(cmd.OutOrStdout(), pt.Archives.All(), format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "text/template applied to each archive")
	return cmd
}

// NewDownloadCommand downloads a single archive by file name.
func NewDownloadCommand() *cobra.Command {
	var (
		dir       string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "download <file-name>",
		Short: "Download one archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pt, err := loadArchives(cmd.Context())
			if err != nil {
				return err
			}
			archive, err := pt.Archives.ByFileName(args[0])
			if err != nil {
				return err
			}
			if dir == "" {
				loadSettings()
				dir = currentSettings().DownloadDir
			}
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create download directory: %w", err)
			}

			result, err := archive.Download(cmd.Context(), papertrail.DownloadOptions{
				Dir:       dir,
				Overwrite: overwrite,
				Progress:  progressPrinter(cmd.ErrOrStderr(), archive.FileSize),
			})
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			check, err := verifyArchiveFile(result.Path)
			if err != nil {
				return err
			}
			if !check.OK {
				log.Warnf("%s does not look like a gzip archive (%s)", filepath.Base(result.Path), check.ContentType)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", result.Path, humanBytes(result.Bytes))
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "target directory (default from settings)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing file")
	return cmd
}

func progressPrinter(w io.Writer, total int64) papertrail.ProgressFunc {
	return func(_ *papertrail.Archive, done int64) error {
		if total > 0 {
			fmt.Fprintf(w, "\r%s / %s", humanBytes(done), humanBytes(total))
		} else {
			fmt.Fprintf(w, "\r%s", humanBytes(done))
		}
		return nil
	}
}
