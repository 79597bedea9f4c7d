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

package handler

import (
	"time"

	"github.com/fundvault/fv-api/common"
	"github.com/fundvault/fv-api/data"
	"github.com/fundvault/fv-api/lpreport"
	"github.com/fundvault/fv-api/observability/opentelemetry"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
)

type fundReport struct {
	Fund    *data.LPFund          `json:"fund"`
	Metrics *lpreport.FundMetrics `json:"metrics"`
}

type lpDetailResponse struct {
	LPDetails            *data.LPLookup        `json:"lp_details"`
	Funds                []*fundReport         `json:"funds"`
	Totals               *lpreport.FundMetrics `json:"totals"`
	IRR                  *float64              `json:"irr"`
	IRRSnapshotDataIssue bool                  `json:"irr_snapshot_data_issue"`
	IRRChronologyIssue   bool                  `json:"irr_chronology_issue"`
	PCAPReportDate       *string               `json:"pcap_report_date"`
}

type irrCashFlowsResponse struct {
	CashFlows          []*lpreport.CashFlowEvent `json:"cash_flows"`
	IRR                *float64                  `json:"irr"`
	PCAPDate           *string                   `json:"pcap_date"`
	ChronologyAdjusted bool                      `json:"chronology_adjusted"`
	SnapshotDataIssue  bool                      `json:"snapshot_data_issue"`
}

// reportDate parses the report_date query param, defaulting to today
func reportDate(c *fiber.Ctx) (time.Time, error) {
	raw := c.Query("report_date")
	if raw == "" {
		return common.MidnightUTC(time.Now()), nil
	}
	asOf, err := time.Parse(common.DateFormat, raw)
	if err != nil {
		log.Warn().Err(err).Str("ReportDate", raw).Msg("invalid report_date")
		return time.Time{}, fiber.ErrBadRequest
	}
	return asOf, nil
}

func formatDate(when *time.Time) *string {
	if when == nil {
		return nil
	}
	formatted := when.Format(common.DateFormat)
	return &formatted
}

// ListLPs returns the LP directory
func ListLPs(c *fiber.Ctx) error {
	lps, err := calculatorSource().LPs(c.Context())
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(lps)
}

// GetLP returns the full detail bundle for one LP: the directory row, its
// funds with per-fund metrics, summed totals, and the money-weighted return
// with its diagnostic flags
func GetLP(c *fiber.Ctx) error {
	shortName := c.Params("shortName")
	asOf, err := reportDate(c)
	if err != nil {
		return err
	}

	ctx, span := otel.Tracer(opentelemetry.Name).Start(c.Context(), "handler.GetLP")
	defer span.End()
	span.SetAttributes(opentelemetry.SpanAttributesFromFiber(c)...)

	lp, err := calculatorSource().LP(ctx, shortName)
	if err != nil {
		log.Warn().Err(err).Str("ShortName", shortName).Msg("lp not found")
		return fiber.ErrNotFound
	}

	funds, err := calculatorSource().FundsForLP(ctx, shortName)
	if err != nil {
		return fiber.ErrInternalServerError
	}

	reports := make([]*fundReport, 0, len(funds))
	for _, fund := range funds {
		metrics, err := calculator().FundMetrics(ctx, shortName, fund, asOf)
		if err != nil {
			return fiber.ErrInternalServerError
		}
		reports = append(reports, &fundReport{Fund: fund, Metrics: metrics})
	}

	totals, err := calculator().LPTotals(ctx, shortName, asOf)
	if err != nil {
		return fiber.ErrInternalServerError
	}

	irr, err := calculator().LPInternalRate(ctx, shortName, asOf)
	if err != nil {
		return fiber.ErrInternalServerError
	}

	return c.JSON(&lpDetailResponse{
		LPDetails:            lp,
		Funds:                reports,
		Totals:               totals,
		IRR:                  irr.Rate,
		IRRSnapshotDataIssue: irr.SnapshotDataIssue,
		IRRChronologyIssue:   irr.ChronologyIssue,
		PCAPReportDate:       formatDate(irr.PCAPDate),
	})
}

// GetIRRCashFlows returns the normalized cash-flow series behind an LP's
// return figure so the calculation can be audited row by row
func GetIRRCashFlows(c *fiber.Ctx) error {
	shortName := c.Params("shortName")
	asOf, err := reportDate(c)
	if err != nil {
		return err
	}

	ctx, span := otel.Tracer(opentelemetry.Name).Start(c.Context(), "handler.GetIRRCashFlows")
	defer span.End()
	span.SetAttributes(opentelemetry.SpanAttributesFromFiber(c)...)

	if _, err := calculatorSource().LP(ctx, shortName); err != nil {
		log.Warn().Err(err).Str("ShortName", shortName).Msg("lp not found")
		return fiber.ErrNotFound
	}

	irr, err := calculator().LPInternalRate(ctx, shortName, asOf)
	if err != nil {
		return fiber.ErrInternalServerError
	}

	return c.JSON(&irrCashFlowsResponse{
		CashFlows:          irr.CashFlows,
		IRR:                irr.Rate,
		PCAPDate:           formatDate(irr.PCAPDate),
		ChronologyAdjusted: irr.ChronologyIssue,
		SnapshotDataIssue:  irr.SnapshotDataIssue,
	})
}
