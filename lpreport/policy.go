// Copyright 2022-2023
// SPDX-License-Identifier: Apache-2.0
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

package lpreport

import (
	_ "embed"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

//go:embed policy.toml
var policyToml []byte

// TransfersMode controls when the assembler consults the Transfers
// snapshot field
const (
	TransfersFallback = "fallback"
	TransfersAlways   = "always"
)

type SolverPolicy struct {
	Seeds         []float64 `toml:"seeds"`
	Tolerance     float64   `toml:"tolerance"`
	MaxIterations int       `toml:"max_iterations"`

	// accepted roots must fall strictly inside (MinRate, MaxRate)
	MinRate float64 `toml:"min_rate"`
	MaxRate float64 `toml:"max_rate"`
}

type ChronologyPolicy struct {
	SnapshotSourcedMin float64 `toml:"snapshot_sourced_min"`
}

type AssemblerPolicy struct {
	TransfersMode string `toml:"transfers_mode"`
}

// Vocabulary holds the activity and snapshot field names the engine matches
// against; kept in the decision table because upstream systems occasionally
// rename them
type Vocabulary struct {
	CapitalCallActivity            string `toml:"capital_call_activity"`
	DistributionActivity           string `toml:"distribution_activity"`
	CommitmentSubActivity          string `toml:"commitment_sub_activity"`
	CapitalDistributionSubActivity string `toml:"capital_distribution_sub_activity"`
	IncomeDistributionSubActivity  string `toml:"income_distribution_sub_activity"`
	TransfersField                 string `toml:"transfers_field"`
	CapitalCallsField              string `toml:"capital_calls_field"`
	EndingBalanceField             string `toml:"ending_balance_field"`
}

// Policy is the full decision table for the reporting engine
type Policy struct {
	Solver     SolverPolicy     `toml:"solver"`
	Chronology ChronologyPolicy `toml:"chronology"`
	Assembler  AssemblerPolicy  `toml:"assembler"`
	Vocabulary Vocabulary       `toml:"vocabulary"`
}

// DefaultPolicy parses the embedded decision table and applies any
// lpreport.* configuration overrides
func DefaultPolicy() *Policy {
	policy := &Policy{}
	if err := toml.Unmarshal(policyToml, policy); err != nil {
		log.Panic().Err(err).Msg("embedded policy table does not parse")
	}

	if viper.IsSet("lpreport.snapshot_sourced_min") {
		policy.Chronology.SnapshotSourcedMin = viper.GetFloat64("lpreport.snapshot_sourced_min")
	}
	if viper.IsSet("lpreport.transfers_mode") {
		policy.Assembler.TransfersMode = viper.GetString("lpreport.transfers_mode")
	}
	if viper.IsSet("lpreport.solver_tolerance") {
		policy.Solver.Tolerance = viper.GetFloat64("lpreport.solver_tolerance")
	}
	if viper.IsSet("lpreport.solver_max_iterations") {
		policy.Solver.MaxIterations = viper.GetInt("lpreport.solver_max_iterations")
	}

	return policy
}
