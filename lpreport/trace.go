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
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fundvault/fv-api/common"
	"github.com/fundvault/fv-api/observability/opentelemetry"
	"github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/exports"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
)

func describe(event *CashFlowEvent) string {
	if event.SubActivity != "" {
		return fmt.Sprintf("%s - %s", event.Category, event.SubActivity)
	}
	return event.Category
}

// CashFlowTrace writes the assembled cash flows of every LP as CSV for
// audit: one row per event, with the computed rate carried on the last row
// of each LP's block. LPs whose assembly fails are logged and skipped so one
// bad LP cannot sink the whole export.
func (calc *Calculator) CashFlowTrace(ctx context.Context, asOf time.Time, w io.Writer) error {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "lpreport.CashFlowTrace")
	defer span.End()

	lps, err := calc.source.LPs(ctx)
	if err != nil {
		return err
	}

	lpCol := make([]interface{}, 0, 256)
	dateCol := make([]interface{}, 0, 256)
	descCol := make([]interface{}, 0, 256)
	amountCol := make([]interface{}, 0, 256)
	rateCol := make([]interface{}, 0, 256)

	for _, lp := range lps {
		result, err := calc.LPInternalRate(ctx, lp.ShortName, asOf)
		if err != nil {
			log.Warn().Err(err).Str("ShortName", lp.ShortName).Msg("skipping lp in cash-flow trace")
			continue
		}

		for idx, event := range result.CashFlows {
			lpCol = append(lpCol, lp.ShortName)
			dateCol = append(dateCol, event.Date.Format(common.CSVDateFormat))
			descCol = append(descCol, describe(event))
			amountCol = append(amountCol, event.Amount)

			rate := ""
			if idx == len(result.CashFlows)-1 {
				if result.Rate != nil {
					rate = fmt.Sprintf("%.6f", *result.Rate)
				} else {
					rate = "N/A"
				}
			}
			rateCol = append(rateCol, rate)
		}
	}

	df := dataframe.NewDataFrame(
		dataframe.NewSeriesString("lp", nil, lpCol...),
		dataframe.NewSeriesString("date", nil, dateCol...),
		dataframe.NewSeriesString("description", nil, descCol...),
		dataframe.NewSeriesFloat64("amount", nil, amountCol...),
		dataframe.NewSeriesString("irr", nil, rateCol...),
	)

	return exports.ExportToCSV(ctx, w, df)
}
