/*
   Copyright @ 2021 bocloud <fushaosong@beyondcent.com>.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package run

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/coral-ha/clownf"
	"github.com/coral-ha/clownf/pkg/configuration"
	"github.com/coral-ha/clownf/pkg/mountable"
	"github.com/coral-ha/clownf/pkg/verdict"
	"github.com/coral-ha/clownf/utils/log"
)

// Runner checks one device
type Runner interface {
	Run(ctx context.Context, device string) verdict.Verdict
}

// RunnerFactory builds the runner once the configuration is loaded
type RunnerFactory func(cfg *configuration.Storage, stdout io.Writer) Runner

// DefaultRunnerFactory runs the real backends
func DefaultRunnerFactory(cfg *configuration.Storage, stdout io.Writer) Runner {
	return mountable.NewDispatcher(cfg, stdout)
}

type command struct {
	ctx     context.Context
	stdout  io.Writer
	stderr  io.Writer
	factory RunnerFactory

	configFile      string
	logLevel        string
	metricsTextfile string

	cfg      *configuration.Storage
	exitCode int
}

func (c *command) rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     clownf.ProgramName,
		Version: clownf.Version,
		Short:   "Lustre storage checks for the HA failover manager",
		Long: `clownf-storage tells the failover manager whether a Lustre target can be
mounted on this host, that is whether no other host holds it.

ldiskfs devices are checked through their multi-mount protection block,
ZFS pools through their import status. Nothing is ever mounted or imported.`,
		SilenceErrors: true,
		// with no sub-command there is nothing to check
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.ErrOrStderr(), "Usage: %s %s <device|zpool_name>\n\n", clownf.ProgramName, clownf.MountableCommand)
			return cmd.Usage()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return c.loadConfig()
		},
	}

	fs := rootCmd.PersistentFlags()
	fs.StringVar(&c.configFile, "config", "", fmt.Sprintf("configuration file (default %s%s.json)", clownf.DefaultConfigPath, clownf.DefaultConfigName))
	fs.StringVar(&c.logLevel, "log-level", "", "log level, one of error/warn/info/debug")
	fs.StringVar(&c.metricsTextfile, "metrics-textfile", "", "write the verdict as Prometheus metrics to this file")

	// completion scripts are no use to the failover manager
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(c.mountableCommand())
	rootCmd.SetOut(c.stderr)
	rootCmd.SetErr(c.stderr)
	return rootCmd
}

func (c *command) loadConfig() error {
	cfg, err := configuration.Load(c.configFile)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if c.metricsTextfile != "" {
		cfg.MetricsTextfile = c.metricsTextfile
	}

	if err := log.Init(log.Options{Level: cfg.LogLevel, File: cfg.LogFile, Output: c.stderr}); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

// Execute runs the command line and returns the exit status. Only a check
// that ran reports its verdict; usage errors, help, version, unknown
// sub-commands and configuration errors all exit as invalid input.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer, factory RunnerFactory) int {
	c := &command{
		ctx:      ctx,
		stdout:   stdout,
		stderr:   stderr,
		factory:  factory,
		exitCode: verdict.InvalidInput.ExitCode(),
	}

	rootCmd := c.rootCommand()
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		return verdict.InvalidInput.ExitCode()
	}
	return c.exitCode
}
