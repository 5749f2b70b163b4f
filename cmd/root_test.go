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
	"testing"

	"github.com/caarlos0/env/v11"
)

func TestConfig_Defaults(t *testing.T) {
	var c Config
	if err := env.Parse(&c); err != nil {
		t.Fatalf("env.Parse: %v", err)
	}
	if c.Tempo != 120 {
		t.Errorf("tempo = %v, want 120", c.Tempo)
	}
	if c.Port != 9023 {
		t.Errorf("port = %d, want 9023", c.Port)
	}
	if c.Master != "127.0.0.1" {
		t.Errorf("master = %q", c.Master)
	}
	if c.LogLevel != "info" {
		t.Errorf("log level = %q", c.LogLevel)
	}
}

func TestConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CHROMA_TEMPO", "98.5")
	t.Setenv("CHROMA_MASTER", "10.1.2.3")
	t.Setenv("CHROMA_PORT", "7000")

	var c Config
	if err := env.Parse(&c); err != nil {
		t.Fatalf("env.Parse: %v", err)
	}
	if c.Tempo != 98.5 {
		t.Errorf("tempo = %v, want 98.5", c.Tempo)
	}
	if c.Master != "10.1.2.3" {
		t.Errorf("master = %q", c.Master)
	}
	if c.Port != 7000 {
		t.Errorf("port = %d, want 7000", c.Port)
	}
}
