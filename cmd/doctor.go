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

	"github.com/beevik/ntp"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	defaultNTPPool      = "pool.ntp.org"
	defaultNTPThreshold = 500 * time.Millisecond
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check system clock health against NTP",
	Long: `Check system clock health against NTP.

Mesh sync only relies on clocks ticking steadily, not on wall-clock
accuracy, but a badly drifting system clock usually points at a
virtualization or power-management problem that hurts timers too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			flags = cmd.Flags()
			pool  = defaultNTPPool
		)
		flags.StringVar(&pool, "s", pool, "NTP server to query")

		if err := flags.Parse(args); err != nil {
			return errors.Wrap(err, "parsing flags")
		}
		resp, err := ntp.Query(pool)
		if err != nil {
			return errors.Wrapf(err, "querying %s", pool)
		}
		if err := resp.Validate(); err != nil {
			return errors.Wrapf(err, "validating response from %s", pool)
		}
		fmt.Printf("ntp server: %s\noffset: %v\nround trip: %v\n", pool, resp.ClockOffset, resp.RTT)
		if d := resp.ClockOffset; d > defaultNTPThreshold || d < -defaultNTPThreshold {
			fmt.Printf("warning: system clock is off by more than %v\n", defaultNTPThreshold)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
