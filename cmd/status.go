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
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/srMarlins/ChromaDMX/mesh"
	"github.com/srMarlins/ChromaDMX/tempo"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tempo, mesh membership, and peer count",
	Long:  `Show tempo, mesh membership, and peer count`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			flags = cmd.Flags()
			host  = config.Master
			port  = config.Port
		)
		flags.StringVar(&host, "h", host, "hostname of the sync master")
		flags.IntVar(&port, "p", port, "sync port")

		if err := flags.Parse(args); err != nil {
			return errors.Wrap(err, "parsing flags")
		}
		provider, err := mesh.NewProvider(mesh.Config{
			Master: host,
			Port:   port,
			Tempo:  config.Tempo,
		})
		if err != nil {
			return errors.Wrap(err, "creating mesh provider")
		}
		session, err := tempo.New(config.Tempo, tempo.WithProvider(provider))
		if err != nil {
			return errors.Wrap(err, "creating session")
		}
		defer session.Close()
		session.SetActive(true)

		// Wait for the first state broadcast; the peer count stays
		// zero until one arrives.
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) && session.PeerCount() == 0 {
			time.Sleep(50 * time.Millisecond)
		}

		if session.PeerCount() == 0 {
			fmt.Println("no sync master reachable; running solo")
		}
		fmt.Printf("enabled: %t\ntempo: %.2f bpm\npeers: %d\n",
			session.IsEnabled(), session.Tempo(), session.PeerCount())
		return nil
	},
}

func init() {
	RootCmd.AddCommand(statusCmd)
}
