// Copyright 2022 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/thediveo/spadist/internal/config"
	"github.com/thediveo/spadist/internal/server"
)

// CLI flag names.
const (
	configFlag          = "config"
	portFlag            = "port"
	rootFlag            = "root"
	indexFlag           = "index"
	rewriteBaseFlag     = "rewrite-base"
	requireIndexFlag    = "require-index"
	shutdownTimeoutFlag = "shutdown-timeout"
	logLevelFlag        = "log-level"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "spadist",
		Short:         "spadist serves a single page application's static files",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	defaults := config.Defaults()
	pf := rootCmd.PersistentFlags()
	pf.StringP(configFlag, "c", "", "YAML or TOML configuration file")
	pf.IntP(portFlag, "p", defaults.Port, "port to listen on")
	pf.StringP(rootFlag, "r", defaults.Root, "directory to serve")
	pf.String(indexFlag, defaults.Index, "index document to serve for unknown paths")
	pf.Bool(rewriteBaseFlag, defaults.RewriteBase,
		"rewrite the index document's <base href> from X-Forwarded-Prefix/X-Forwarded-Uri")
	pf.Bool(requireIndexFlag, defaults.RequireIndex, "refuse to start without index document")
	pf.Duration(shutdownTimeoutFlag, defaults.ShutdownTimeout,
		"grace period for in-flight requests when stopping")
	pf.String(logLevelFlag, defaults.LogLevel, "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(newConfigCmd())
	return rootCmd
}

// serve runs the server until it gets interrupted.
func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := configuration(cmd)
	if err != nil {
		return err
	}
	logrus.SetLevel(cfg.Level())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return server.New(cfg).Run(ctx)
}

// configuration returns the configuration loaded from the configuration file,
// if any, and then overridden by all flags explicitly set.
func configuration(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()
	name, _ := flags.GetString(configFlag)
	cfg, err := config.Load(name)
	if err != nil {
		return cfg, err
	}
	if flags.Changed(portFlag) {
		cfg.Port, _ = flags.GetInt(portFlag)
	}
	if flags.Changed(rootFlag) {
		cfg.Root, _ = flags.GetString(rootFlag)
	}
	if flags.Changed(indexFlag) {
		cfg.Index, _ = flags.GetString(indexFlag)
	}
	if flags.Changed(rewriteBaseFlag) {
		cfg.RewriteBase, _ = flags.GetBool(rewriteBaseFlag)
	}
	if flags.Changed(requireIndexFlag) {
		cfg.RequireIndex, _ = flags.GetBool(requireIndexFlag)
	}
	if flags.Changed(shutdownTimeoutFlag) {
		cfg.ShutdownTimeout, _ = flags.GetDuration(shutdownTimeoutFlag)
	}
	if flags.Changed(logLevelFlag) {
		cfg.LogLevel, _ = flags.GetString(logLevelFlag)
	}
	return cfg, cfg.Validate()
}
