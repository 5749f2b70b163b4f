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
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/scgolang/osc"
	"github.com/spf13/cobra"

	"github.com/srMarlins/ChromaDMX/mesh"
)

// tempoCmd represents the tempo command
var tempoCmd = &cobra.Command{
	Use:   "tempo [bpm]",
	Short: "Read or change the tempo of a sync master",
	Long:  `Read or change the tempo of a sync master`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			flags = cmd.Flags()
			host  = config.Master
			port  = config.Port
		)
		flags.StringVar(&host, "h", host, "hostname of the sync master")
		flags.IntVar(&port, "p", port, "sync port")

		if err := flags.Parse(args); err != nil {
			return err
		}
		addr := net.JoinHostPort(host, strconv.Itoa(port))

		if len(flags.Args()) == 0 {
			return readTempo(addr)
		}
		bpm, err := strconv.ParseFloat(flags.Args()[0], 32)
		if err != nil {
			return errors.Wrapf(err, "parsing tempo %q", flags.Args()[0])
		}
		raddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return err
		}
		conn, err := osc.DialUDP("udp", nil, raddr)
		if err != nil {
			return err
		}
		defer conn.Close()
		return conn.Send(osc.Message{
			Address: mesh.AddressTempo,
			Arguments: osc.Arguments{
				osc.Float(float32(bpm)),
			},
		})
	},
}

func init() {
	RootCmd.AddCommand(tempoCmd)
}

// readTempo reads the current tempo of a sync master.
func readTempo(addr string) error {
	laddr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	conn, err := osc.ListenUDP("udp", laddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	var (
		done    = make(chan struct{})
		errchan = make(chan error, 1)
	)
	go func() {
		if err := conn.Serve(1, osc.PatternMatching{
			mesh.AddressReply: handleTempoReply(done),
		}); err != nil {
			errchan <- err
		}
		close(errchan)
	}()
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	// The master needs an explicit reply address; connectionless UDP
	// does not give it a dependable one.
	host, portStr, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return errors.Wrap(err, "splitting local address")
	}
	lport, err := strconv.Atoi(portStr)
	if err != nil {
		return errors.Wrapf(err, "parsing local port %s", portStr)
	}
	if err := conn.SendTo(raddr, osc.Message{
		Address: mesh.AddressTempo,
		Arguments: osc.Arguments{
			osc.String(host),
			osc.Int(int32(lport)),
		},
	}); err != nil {
		return err
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		return errors.New("timeout waiting for tempo reply")
	}

	select {
	default:
	case err := <-errchan:
		return err
	}
	return nil
}

// handleTempoReply handles a reply to get the tempo of a sync master.
func handleTempoReply(done chan struct{}) osc.Method {
	return osc.Method(func(m osc.Message) error {
		defer close(done)

		if len(m.Arguments) < 1 {
			return errors.New("expected at least 1 argument to /reply")
		}
		address, err := m.Arguments[0].ReadString()
		if err != nil {
			return err
		}
		if address != mesh.AddressTempo {
			return nil
		}
		if len(m.Arguments) < 2 {
			return errors.New("expected at least 2 arguments in tempo reply")
		}
		bpm, err := m.Arguments[1].ReadFloat32()
		if err != nil {
			return err
		}
		fmt.Printf("%f\n", bpm)
		return nil
	})
}
