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
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/srMarlins/ChromaDMX/mesh"
	"github.com/srMarlins/ChromaDMX/tempo"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a sync master and display live beat and bar phase",
	Long:  `Follow a sync master and display live beat and bar phase`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			flags   = cmd.Flags()
			host    = config.Master
			port    = config.Port
			quantum = tempo.DefaultBarQuantum
		)
		flags.StringVar(&host, "h", host, "hostname of the sync master")
		flags.IntVar(&port, "p", port, "sync port")
		flags.Float64Var(&quantum, "q", quantum, "beats per bar")

		if err := flags.Parse(args); err != nil {
			return errors.Wrap(err, "parsing flags")
		}
		if quantum <= 0 {
			return errors.Errorf("invalid quantum %v", quantum)
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

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ticker := time.NewTicker(time.Second / 60)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				fmt.Println()
				return nil
			case <-ticker.C:
				renderPhase(session, quantum)
			}
		}
	},
}

func init() {
	RootCmd.AddCommand(watchCmd)
}

var meterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

const meterWidth = 32

// renderPhase redraws the live phase meter on the current line.
func renderPhase(session *tempo.Session, quantum float64) {
	var (
		state = session.Capture()
		now   = session.Now()
	)
	bar, err := state.PhaseAtTime(now, quantum)
	if err != nil {
		return
	}
	beat, err := state.PhaseAtTime(now, 1)
	if err != nil {
		return
	}
	filled := int(bar * meterWidth)
	meter := meterStyle.Render(strings.Repeat("█", filled)) + strings.Repeat("░", meterWidth-filled)
	fmt.Printf("\r%s %7.2f bpm  beat %.2f  bar %.2f  peers %d ",
		meter, state.Tempo, beat, bar, session.PeerCount())
}
