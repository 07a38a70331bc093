// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-s3crawl.
//
// go-s3crawl is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-s3crawl/pkg/adapters"
	"github.com/jeremyhahn/go-s3crawl/pkg/cli"
	"github.com/jeremyhahn/go-s3crawl/pkg/config"
	"github.com/jeremyhahn/go-s3crawl/pkg/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		var r reportedError
		if !errors.As(err, &r) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// reportedError marks an error already written to stderr in the configured
// output format.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }

func (e reportedError) Unwrap() error { return e.err }

// app carries the state shared by every subcommand once the root has
// loaded the configuration.
type app struct {
	cfgFile string
	config  *config.Config
	logger  adapters.Logger
}

func (a *app) format() cli.OutputFormat {
	return cli.OutputFormat(a.config.OutputFormat)
}

// run builds a command context, calls fn and reports failures in the
// configured output format.
func (a *app) run(cmd *cobra.Command, fn func(*cli.CommandContext) error) error {
	cc, err := cli.NewCommandContext(a.config, a.logger)
	if err == nil {
		err = fn(cc)
		if closeErr := cc.Close(); closeErr != nil {
			a.logger.Warn(cmd.Context(), "cache cleanup failed", adapters.ErrorField(closeErr))
		}
	}
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), cli.FormatError(err, a.format()))
		return reportedError{err}
	}
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "s3crawl",
		Short: "Crawl scientific datasets held in object storage",
		Long: `s3crawl presents an object-store bucket as a directory tree of recognized
dataset files and crawls it through cached listings.

Supported Storage Backends:
  - s3     : AWS S3 and S3-compatible endpoints
  - minio  : MinIO
  - gcs    : Google Cloud Storage
  - local  : A directory whose subdirectories are buckets
  - memory : In-process store, for testing

Configuration can be provided via:
  - Command-line flags (highest priority)
  - Environment variables (S3CRAWL_*)
  - Configuration file (~/.s3crawl.yaml or ./.s3crawl.yaml)
  - Default values (lowest priority)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.Init(a.cfgFile)
			if err != nil {
				return err
			}
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}
			a.config, err = config.Load(v)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return reportedError{err}
			}
			a.logger = a.config.NewLogger(cmd.ErrOrStderr())
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.s3crawl.yaml)")
	flags.String(config.KeyBackend, "s3", "storage backend (s3, minio, gcs, local, memory)")
	flags.String(config.KeyBackendRegion, "", "region for cloud backends")
	flags.String(config.KeyBackendURL, "", "custom endpoint URL for cloud backends")
	flags.String(config.KeyBackendKey, "", "access key for cloud backends")
	flags.String(config.KeyBackendSecret, "", "secret key for cloud backends")
	flags.Bool(config.KeyBackendPathStyle, false, "use path-style addressing for S3")
	flags.String(config.KeyBackendCredentials, "", "credentials file for gcs")
	flags.String(config.KeyBackendBuckets, "", "buckets to create in the memory backend")
	flags.String(config.KeyBackendPath, "", "root directory for the local backend")
	flags.String(config.KeyLogLevel, "info", "log level (debug, info, warn, error)")
	flags.String(config.KeyLogFormat, "text", "log format (text, json)")
	flags.Int(config.KeyConcurrency, 4, "concurrent directory listings during a walk")
	flags.StringP(config.KeyOutputFormat, "o", "text", "output format (text, json, table)")

	root.AddCommand(
		newListCmd(a),
		newStatCmd(a),
		newFetchCmd(a),
		newWalkCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "ls <s3-uri>",
		Aliases: []string{"list"},
		Short:   "List the recognized entries of a directory",
		Example: `  s3crawl ls s3://noaa-goes16/ABI-L1b-RadF/2024/
  s3crawl ls s3://bucket/data -o table`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(cc *cli.CommandContext) error {
				entries, err := cc.ListCommand(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), cli.FormatListResult(entries, a.format()))
				return nil
			})
		},
	}
}

func newStatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <s3-uri>",
		Short: "Describe a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(cc *cli.CommandContext) error {
				entry, err := cc.StatCommand(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), cli.FormatStatResult(entry, a.format()))
				return nil
			})
		},
	}
}

func newFetchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <s3-uri> [destination]",
		Short: "Download a file through the object cache",
		Long: `Download a file through the object cache. Without a destination the file is
written to the working directory under its own name; '-' writes to stdout.`,
		Example: `  s3crawl fetch s3://bucket/data/a.nc
  s3crawl fetch s3://bucket/data/a.nc /tmp/
  s3crawl fetch s3://bucket/data/a.nc - | ncdump -h -`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := ""
			if len(args) == 2 {
				dest = args[1]
			}
			return a.run(cmd, func(cc *cli.CommandContext) error {
				path, n, err := cc.FetchCommand(cmd.Context(), args[0], dest, cmd.OutOrStdout())
				if err != nil {
					return err
				}
				if dest == "-" {
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), cli.FormatOperationResult(&cli.OperationResult{
					Success: true,
					Message: fmt.Sprintf("Fetched '%s' to '%s' (%d bytes)", args[0], path, n),
				}, a.format()))
				return nil
			})
		},
	}
}

func newWalkCmd(a *app) *cobra.Command {
	var (
		opts  cli.WalkOptions
		quiet bool
	)
	cmd := &cobra.Command{
		Use:   "walk <s3-uri|local-dir>",
		Short: "Crawl every recognized dataset below a directory",
		Example: `  s3crawl walk s3://bucket/data/ --ext .nc --max-depth 3
  s3crawl walk ./mirror/data --ext .nc
  s3crawl walk s3://bucket/data/ --quiet --metrics-file /var/lib/node_exporter/s3crawl.prom`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !quiet {
				opts.Out = cmd.OutOrStdout()
			}
			return a.run(cmd, func(cc *cli.CommandContext) error {
				report, err := cc.WalkCommand(cmd.Context(), args[0], opts)
				fmt.Fprint(cmd.ErrOrStderr(), cli.FormatWalkResult(report, a.format()))
				return err
			})
		},
	}
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", 0, "maximum depth below the start directory (0 for unbounded)")
	cmd.Flags().StringSliceVar(&opts.Extensions, "ext", nil, "only visit files with these extensions")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write cache metrics to this file in Prometheus textfile format")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print visited paths")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), cli.DisplayConfig(a.config, a.format()))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get())
			return nil
		},
	}
}
