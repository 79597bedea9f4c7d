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

package cmd

import (
	"context"
	"os"
	"time"

	"github.com/fundvault/fv-api/common"
	"github.com/fundvault/fv-api/data"
	"github.com/fundvault/fv-api/database"
	"github.com/fundvault/fv-api/lpreport"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() {
	exportCmd.Flags().String("report-date", "", "As-of date for the export (YYYY-MM-DD), default today")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export [output-file]",
	Short: "Write the cash-flow audit trace for every LP as CSV",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()

		ctx := context.Background()
		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}

		asOf := common.MidnightUTC(time.Now())
		if raw, _ := cmd.Flags().GetString("report-date"); raw != "" {
			parsed, err := time.Parse(common.DateFormat, raw)
			if err != nil {
				log.Fatal().Err(err).Str("ReportDate", raw).Msg("invalid report date")
			}
			asOf = parsed
		}

		out := os.Stdout
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				log.Fatal().Err(err).Str("FileName", args[0]).Msg("could not create output file")
			}
			defer f.Close()
			out = f
		}

		calc := lpreport.NewCalculator(data.NewStore())
		if err := calc.CashFlowTrace(ctx, asOf, out); err != nil {
			log.Fatal().Err(err).Msg("cash-flow trace failed")
		}
	},
}
