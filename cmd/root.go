// Copyright © 2026 The ChromaDMX Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/srMarlins/ChromaDMX/internal/logging"
	"github.com/srMarlins/ChromaDMX/mesh"
)

// Config holds defaults shared by all commands, read from the
// environment before each run. Per-command flags override these.
type Config struct {
	Tempo    float64 `env:"CHROMA_TEMPO" envDefault:"120"`
	Listen   string  `env:"CHROMA_LISTEN" envDefault:"0.0.0.0"`
	Master   string  `env:"CHROMA_MASTER" envDefault:"127.0.0.1"`
	Port     int     `env:"CHROMA_PORT" envDefault:"9023"`
	LogLevel string  `env:"CHROMA_LOG_LEVEL" envDefault:"info"`
}

var config Config

// RootCmd represents the base command when called without subcommands.
var RootCmd = &cobra.Command{
	Use:   "chromasync",
	Short: "Share a musical clock across ChromaDMX instances",
	Long: `chromasync keeps tempo and beat phase consistent across processes
on a local network. One process serves as the sync master; the others
follow it and render in lock-step with the shared timeline.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := env.Parse(&config); err != nil {
			return errors.Wrap(err, "parsing environment")
		}
		if config.Port <= 0 {
			config.Port = mesh.DefaultPort
		}
		return errors.Wrap(logging.Configure(config.LogLevel), "configuring logging")
	},
}
