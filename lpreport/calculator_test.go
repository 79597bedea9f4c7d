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

package lpreport_test

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/fundvault/fv-api/data"
	"github.com/fundvault/fv-api/lpreport"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Calculator", func() {
	var (
		source *fixtureSource
		calc   *lpreport.Calculator
		ctx    context.Context
		asOf   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		asOf = dt(2023, time.June, 30)

		source = &fixtureSource{
			lps: []*data.LPLookup{
				{ShortName: "alpha-lp", Active: "Yes"},
				{ShortName: "beta-lp", Active: "Yes"},
				{ShortName: "gamma-lp", Active: "Yes"},
			},
			funds: map[string][]*data.LPFund{
				"alpha-lp": {{
					LPShortName:   "alpha-lp",
					FundName:      "Fund I",
					ReinvestStart: dtp(2019, time.January, 1),
				}},
				"beta-lp": {{
					LPShortName:   "beta-lp",
					FundName:      "Fund II",
					ReinvestStart: dtp(2019, time.January, 1),
					HarvestStart:  dtp(2022, time.January, 1),
				}},
				"gamma-lp": {{
					LPShortName: "gamma-lp",
					FundName:    "Fund III",
				}},
			},
			ledger: []*data.LedgerTransaction{
				{ID: 1, EffectiveDate: dt(2019, time.December, 1), SubActivity: "New Commitment",
					Amount: 2000000, RelatedEntity: "alpha-lp", RelatedFund: "Fund I"},
				{ID: 2, EffectiveDate: dt(2020, time.January, 15), Activity: "Capital Call",
					Amount: 1000000, RelatedEntity: "alpha-lp", RelatedFund: "Fund I"},
				{ID: 3, EffectiveDate: dt(2021, time.June, 30), Activity: "LP Distribution",
					SubActivity: "Capital Distribution", Amount: 200000,
					RelatedEntity: "alpha-lp", RelatedFund: "Fund I"},
				{ID: 4, EffectiveDate: dt(2022, time.June, 30), Activity: "LP Distribution",
					SubActivity: "Income Distribution", Amount: 50000,
					RelatedEntity: "alpha-lp", RelatedFund: "Fund I"},
				{ID: 5, EffectiveDate: dt(2023, time.January, 15), Activity: "LP Distribution",
					SubActivity: "Income Distribution", Amount: 10000,
					RelatedEntity: "beta-lp", RelatedFund: "Fund II"},
			},
			snapshots: []*data.PCAPEntry{
				{ID: 1, LPShortName: "alpha-lp", PCAPDate: dt(2023, time.March, 31), FieldNum: 10,
					Field: "Ending Capital Balance", Amount: 1500000},
				{ID: 2, LPShortName: "beta-lp", PCAPDate: dt(2023, time.March, 31), FieldNum: 5,
					Field: "Transfers", Amount: 500000},
				{ID: 3, LPShortName: "beta-lp", PCAPDate: dt(2023, time.March, 31), FieldNum: 10,
					Field: "Ending Capital Balance", Amount: 520000},
				{ID: 4, LPShortName: "gamma-lp", PCAPDate: dt(2023, time.March, 31), FieldNum: 7,
					Field: "Capital Calls", Amount: 300000},
			},
		}
		calc = lpreport.NewCalculator(source)
	})

	Describe("when resolving report dates", func() {
		It("returns the latest snapshot on or before the as-of date", func() {
			resolved, ok, err := calc.ResolveReportDate(ctx, asOf)
			Expect(err).To(BeNil())
			Expect(ok).To(BeTrue())
			Expect(resolved).To(Equal(dt(2023, time.March, 31)))
		})

		It("returns the snapshot date itself when queried exactly", func() {
			resolved, ok, err := calc.ResolveReportDate(ctx, dt(2023, time.March, 31))
			Expect(err).To(BeNil())
			Expect(ok).To(BeTrue())
			Expect(resolved).To(Equal(dt(2023, time.March, 31)))
		})

		It("reports none before any snapshot exists", func() {
			_, ok, err := calc.ResolveReportDate(ctx, dt(2019, time.January, 1))
			Expect(err).To(BeNil())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("when computing fund metrics from the ledger", func() {
		It("sums commitments, calls and distributions by category", func() {
			metrics, err := calc.FundMetrics(ctx, "alpha-lp", source.funds["alpha-lp"][0], asOf)
			Expect(err).To(BeNil())
			Expect(metrics.Commitment.Value).To(Equal(2000000.0))
			Expect(metrics.CapitalCalled.Value).To(Equal(1000000.0))
			Expect(metrics.CapitalDistribution.Value).To(Equal(200000.0))
			Expect(metrics.IncomeDistribution.Value).To(Equal(50000.0))
			Expect(metrics.TotalDistribution.Value).To(Equal(250000.0))
		})

		It("carries the contributing transactions in date order", func() {
			metrics, err := calc.FundMetrics(ctx, "alpha-lp", source.funds["alpha-lp"][0], asOf)
			Expect(err).To(BeNil())
			Expect(metrics.TotalDistribution.Transactions).To(HaveLen(2))
			Expect(metrics.TotalDistribution.Transactions[0].ID).To(Equal(int64(3)))
			Expect(metrics.TotalDistribution.Transactions[1].ID).To(Equal(int64(4)))
			total := 0.0
			for _, trn := range metrics.TotalDistribution.Transactions {
				total += trn.Amount
			}
			Expect(metrics.TotalDistribution.Value).To(Equal(total))
		})

		It("selects the nav-based remaining capital during reinvestment", func() {
			metrics, err := calc.FundMetrics(ctx, "alpha-lp", source.funds["alpha-lp"][0], asOf)
			Expect(err).To(BeNil())
			Expect(metrics.RemainingCapital.ReinvestActive).To(BeTrue())
			Expect(metrics.RemainingCapital.CashBasedValue).To(Equal(800000.0))
			Expect(metrics.RemainingCapital.NavBasedValue).To(Equal(1500000.0))
			Expect(metrics.RemainingCapital.Value).To(Equal(1500000.0))
		})
	})

	Describe("when the ledger has no capital calls", func() {
		It("adopts the Transfers snapshot value as commitment and capital called", func() {
			metrics, err := calc.FundMetrics(ctx, "beta-lp", source.funds["beta-lp"][0], asOf)
			Expect(err).To(BeNil())
			Expect(metrics.CapitalCalled.Value).To(Equal(500000.0))
			Expect(metrics.Commitment.Value).To(Equal(500000.0))
			Expect(metrics.CapitalCalled.Transactions).To(HaveLen(1))
			Expect(metrics.CapitalCalled.Transactions[0].Activity).To(Equal(lpreport.CategoryTransfer))
		})

		It("falls back to the Capital Calls field when Transfers is absent", func() {
			metrics, err := calc.FundMetrics(ctx, "gamma-lp", source.funds["gamma-lp"][0], asOf)
			Expect(err).To(BeNil())
			Expect(metrics.CapitalCalled.Value).To(Equal(300000.0))
			Expect(metrics.CapitalCalled.Transactions[0].Activity).To(Equal(lpreport.CategoryPCAPCall))
		})

		It("selects the cash-based remaining capital after harvest begins", func() {
			metrics, err := calc.FundMetrics(ctx, "beta-lp", source.funds["beta-lp"][0], asOf)
			Expect(err).To(BeNil())
			Expect(metrics.RemainingCapital.ReinvestActive).To(BeFalse())
			Expect(metrics.RemainingCapital.NavBasedValue).To(Equal(520000.0))
			Expect(metrics.RemainingCapital.Value).To(Equal(metrics.RemainingCapital.CashBasedValue))
			Expect(metrics.RemainingCapital.Value).To(Equal(500000.0))
		})
	})

	Describe("when assembling cash flows", func() {
		It("signs contributions negative and distributions and balances non-negative", func() {
			for _, shortName := range []string{"alpha-lp", "beta-lp", "gamma-lp"} {
				events, _, err := calc.AssembleCashFlows(ctx, shortName, asOf)
				Expect(err).To(BeNil())
				for _, event := range events {
					switch event.Category {
					case lpreport.CategoryCapitalCall, lpreport.CategoryTransfer, lpreport.CategoryPCAPCall:
						Expect(event.Amount).To(BeNumerically("<", 0))
					default:
						Expect(event.Amount).To(BeNumerically(">=", 0))
					}
				}
			}
		})

		It("emits exactly one ending-balance event", func() {
			events, pcapDate, err := calc.AssembleCashFlows(ctx, "alpha-lp", asOf)
			Expect(err).To(BeNil())
			Expect(pcapDate).NotTo(BeNil())
			Expect(*pcapDate).To(Equal(dt(2023, time.March, 31)))
			balances := 0
			for _, event := range events {
				if event.Category == lpreport.CategoryEndingBalance {
					balances++
					Expect(event.Date).To(Equal(dt(2023, time.March, 31)))
					Expect(event.Amount).To(Equal(1500000.0))
				}
			}
			Expect(balances).To(Equal(1))
		})
	})

	Describe("when computing the money-weighted return", func() {
		It("finds a plausible rate for a clean ledger history", func() {
			result, err := calc.LPInternalRate(ctx, "alpha-lp", asOf)
			Expect(err).To(BeNil())
			Expect(result.Rate).NotTo(BeNil())
			Expect(*result.Rate).To(BeNumerically(">", 0))
			Expect(*result.Rate).To(BeNumerically("<", 1))
			Expect(result.ChronologyIssue).To(BeFalse())
			Expect(result.SnapshotDataIssue).To(BeFalse())
		})

		It("flags snapshot-sourced contributions that postdate distributions", func() {
			result, err := calc.LPInternalRate(ctx, "beta-lp", asOf)
			Expect(err).To(BeNil())
			Expect(result.SnapshotDataIssue).To(BeTrue())
			Expect(result.ChronologyIssue).To(BeTrue())
			Expect(result.Rate).NotTo(BeNil())
		})

		It("returns no rate when every flow shares a sign", func() {
			source.ledger = nil
			source.snapshots = []*data.PCAPEntry{
				{ID: 1, LPShortName: "alpha-lp", PCAPDate: dt(2023, time.March, 31), FieldNum: 10,
					Field: "Ending Capital Balance", Amount: 1500000},
			}
			result, err := calc.LPInternalRate(ctx, "alpha-lp", asOf)
			Expect(err).To(BeNil())
			Expect(result.Rate).To(BeNil())
		})
	})

	Describe("when computing lp totals", func() {
		It("is idempotent for unchanged sources", func() {
			first, err := calc.LPTotals(ctx, "alpha-lp", asOf)
			Expect(err).To(BeNil())
			second, err := calc.LPTotals(ctx, "alpha-lp", asOf)
			Expect(err).To(BeNil())
			Expect(first).To(Equal(second))
		})
	})

	Describe("when exporting the cash-flow trace", func() {
		It("writes one row per event with the rate on each lp's last row", func() {
			buf := &bytes.Buffer{}
			err := calc.CashFlowTrace(ctx, asOf, buf)
			Expect(err).To(BeNil())

			out := buf.String()
			Expect(out).To(ContainSubstring("alpha-lp"))
			Expect(out).To(ContainSubstring("beta-lp"))
			Expect(out).To(ContainSubstring("gamma-lp"))
			Expect(out).To(ContainSubstring("Ending Capital Balance"))
			Expect(strings.Count(out, "\n")).To(BeNumerically(">", 5))
		})
	})
})
