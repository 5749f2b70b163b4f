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
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/srMarlins/ChromaDMX/mesh"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a tempo sync master",
	Long:  `Start a tempo sync master`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			flags  = cmd.Flags()
			listen = config.Listen
			port   = config.Port
			bpm    = config.Tempo
		)
		flags.StringVar(&listen, "l", listen, "listen addr")
		flags.IntVar(&port, "p", port, "sync port")
		flags.Float64Var(&bpm, "t", bpm, "tempo in bpm")

		if err := flags.Parse(args); err != nil {
			return errors.Wrap(err, "parsing flags")
		}
		provider, err := mesh.NewProvider(mesh.Config{
			Listen: listen,
			Port:   port,
			Tempo:  bpm,
		})
		if err != nil {
			return errors.Wrap(err, "creating mesh provider")
		}
		defer provider.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return errors.Wrap(provider.Run(ctx), "running sync master")
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
}
