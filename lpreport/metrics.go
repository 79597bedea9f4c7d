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
	"math"
	"sort"
	"time"

	"github.com/fundvault/fv-api/data"
	"github.com/fundvault/fv-api/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"gonum.org/v1/gonum/floats"
)

func sumAbs(transactions []*data.LedgerTransaction) float64 {
	if len(transactions) == 0 {
		return 0
	}
	amounts := make([]float64, len(transactions))
	for idx, trn := range transactions {
		amounts[idx] = math.Abs(trn.Amount)
	}
	return floats.Sum(amounts)
}

// mergeTransactions concatenates transaction lists into a fresh slice sorted
// stably by effective date
func mergeTransactions(lists ...[]*data.LedgerTransaction) []*data.LedgerTransaction {
	merged := make([]*data.LedgerTransaction, 0, 16)
	for _, list := range lists {
		merged = append(merged, list...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].EffectiveDate.Before(merged[j].EffectiveDate)
	})
	return merged
}

// snapshotContribution looks for a Transfers value, then a Capital Calls
// value, at the anchor date. Used when the ledger has no capital calls for
// a fund; the winning value comes back as a synthetic transaction so metric
// audit trails still carry provenance.
func (calc *Calculator) snapshotContribution(ctx context.Context, lpShortName string, fundName string, anchor time.Time) (*data.LedgerTransaction, error) {
	entry, err := calc.snapshotField(ctx, lpShortName, calc.policy.Vocabulary.TransfersField, anchor)
	if err != nil {
		return nil, err
	}
	activity := CategoryTransfer
	if entry == nil || entry.Amount <= 0 {
		entry, err = calc.snapshotField(ctx, lpShortName, calc.policy.Vocabulary.CapitalCallsField, anchor)
		if err != nil {
			return nil, err
		}
		activity = CategoryPCAPCall
	}
	if entry == nil || entry.Amount <= 0 {
		return nil, nil
	}

	return &data.LedgerTransaction{
		EffectiveDate: entry.PCAPDate,
		Activity:      activity,
		Amount:        entry.Amount,
		RelatedEntity: lpShortName,
		RelatedFund:   fundName,
	}, nil
}

// FundMetrics computes the cumulative metric bundle for one of an LP's
// funds as of the report date. Ledger rows are authoritative; the snapshot
// table backfills commitment and capital-called when the ledger is silent,
// and always supplies the nav-based remaining capital.
func (calc *Calculator) FundMetrics(ctx context.Context, lpShortName string, fund *data.LPFund, asOf time.Time) (*FundMetrics, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "lpreport.FundMetrics")
	defer span.End()

	subLog := log.With().Str("ShortName", lpShortName).Str("Fund", fund.FundName).Logger()
	anchor, _ := calc.anchorDate(ctx, asOf)

	commitmentRows, err := calc.source.LedgerTransactions(ctx, data.LedgerFilter{
		SubActivity:       calc.policy.Vocabulary.CommitmentSubActivity,
		Entity:            lpShortName,
		IncludeEntityFrom: true,
		RelatedFund:       fund.FundName,
		Through:           asOf,
	})
	if err != nil {
		return nil, err
	}
	commitment := MetricResult{Value: sumAbs(commitmentRows), Transactions: commitmentRows}

	callRows, err := calc.ledgerCapitalCalls(ctx, lpShortName, fund.FundName, asOf)
	if err != nil {
		return nil, err
	}
	capitalCalled := MetricResult{Value: sumAbs(callRows), Transactions: callRows}

	if len(callRows) == 0 {
		synthetic, err := calc.snapshotContribution(ctx, lpShortName, fund.FundName, anchor)
		if err != nil {
			return nil, err
		}
		if synthetic != nil {
			subLog.Debug().Str("Activity", synthetic.Activity).Float64("Amount", synthetic.Amount).Msg("no ledger capital calls; adopting snapshot value")
			capitalCalled = MetricResult{Value: synthetic.Amount, Transactions: []*data.LedgerTransaction{synthetic}}
			if commitment.Value == 0 {
				commitment = MetricResult{Value: synthetic.Amount, Transactions: []*data.LedgerTransaction{synthetic}}
			}
		}
	}

	distributionRows, err := calc.ledgerDistributions(ctx, lpShortName, fund.FundName, asOf)
	if err != nil {
		return nil, err
	}
	capitalRows := make([]*data.LedgerTransaction, 0, len(distributionRows))
	incomeRows := make([]*data.LedgerTransaction, 0, len(distributionRows))
	for _, trn := range distributionRows {
		switch trn.SubActivity {
		case calc.policy.Vocabulary.CapitalDistributionSubActivity:
			capitalRows = append(capitalRows, trn)
		case calc.policy.Vocabulary.IncomeDistributionSubActivity:
			incomeRows = append(incomeRows, trn)
		}
	}
	capitalDistribution := MetricResult{Value: sumAbs(capitalRows), Transactions: capitalRows}
	incomeDistribution := MetricResult{Value: sumAbs(incomeRows), Transactions: incomeRows}
	totalDistribution := MetricResult{
		Value:        capitalDistribution.Value + incomeDistribution.Value,
		Transactions: mergeTransactions(capitalRows, incomeRows),
	}

	navBased := 0.0
	balance, err := calc.endingBalance(ctx, lpShortName, anchor)
	if err != nil {
		return nil, err
	}
	if balance != nil {
		navBased = math.Abs(balance.Amount)
	}

	// during reinvestment a distribution is recycled rather than returned,
	// so cash basis underrepresents the capital still at risk
	reinvestActive := fund.ReinvestActive(asOf)
	cashBased := capitalCalled.Value - capitalDistribution.Value
	selected := cashBased
	if reinvestActive {
		selected = navBased
	}

	return &FundMetrics{
		FundName:            fund.FundName,
		Commitment:          commitment,
		CapitalCalled:       capitalCalled,
		CapitalDistribution: capitalDistribution,
		IncomeDistribution:  incomeDistribution,
		TotalDistribution:   totalDistribution,
		RemainingCapital: RemainingCapitalResult{
			Value:          selected,
			CashBasedValue: cashBased,
			NavBasedValue:  navBased,
			ReinvestActive: reinvestActive,
			Transactions:   mergeTransactions(capitalCalled.Transactions, capitalRows),
		},
	}, nil
}

// LPTotals sums the per-fund metric bundles across all of the LP's funds.
// Contributing-transaction lists are concatenated and re-sorted by date so
// the audit trail stays chronological.
func (calc *Calculator) LPTotals(ctx context.Context, lpShortName string, asOf time.Time) (*FundMetrics, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "lpreport.LPTotals")
	defer span.End()

	funds, err := calc.source.FundsForLP(ctx, lpShortName)
	if err != nil {
		return nil, err
	}

	totals := &FundMetrics{}
	for _, fund := range funds {
		metrics, err := calc.FundMetrics(ctx, lpShortName, fund, asOf)
		if err != nil {
			return nil, err
		}

		totals.Commitment.Value += metrics.Commitment.Value
		totals.Commitment.Transactions = append(totals.Commitment.Transactions, metrics.Commitment.Transactions...)
		totals.CapitalCalled.Value += metrics.CapitalCalled.Value
		totals.CapitalCalled.Transactions = append(totals.CapitalCalled.Transactions, metrics.CapitalCalled.Transactions...)
		totals.CapitalDistribution.Value += metrics.CapitalDistribution.Value
		totals.CapitalDistribution.Transactions = append(totals.CapitalDistribution.Transactions, metrics.CapitalDistribution.Transactions...)
		totals.IncomeDistribution.Value += metrics.IncomeDistribution.Value
		totals.IncomeDistribution.Transactions = append(totals.IncomeDistribution.Transactions, metrics.IncomeDistribution.Transactions...)
		totals.TotalDistribution.Value += metrics.TotalDistribution.Value
		totals.TotalDistribution.Transactions = append(totals.TotalDistribution.Transactions, metrics.TotalDistribution.Transactions...)

		totals.RemainingCapital.Value += metrics.RemainingCapital.Value
		totals.RemainingCapital.CashBasedValue += metrics.RemainingCapital.CashBasedValue
		totals.RemainingCapital.NavBasedValue += metrics.RemainingCapital.NavBasedValue
		totals.RemainingCapital.ReinvestActive = totals.RemainingCapital.ReinvestActive || metrics.RemainingCapital.ReinvestActive
		totals.RemainingCapital.Transactions = append(totals.RemainingCapital.Transactions, metrics.RemainingCapital.Transactions...)
	}

	totals.Commitment.Transactions = mergeTransactions(totals.Commitment.Transactions)
	totals.CapitalCalled.Transactions = mergeTransactions(totals.CapitalCalled.Transactions)
	totals.CapitalDistribution.Transactions = mergeTransactions(totals.CapitalDistribution.Transactions)
	totals.IncomeDistribution.Transactions = mergeTransactions(totals.IncomeDistribution.Transactions)
	totals.TotalDistribution.Transactions = mergeTransactions(totals.TotalDistribution.Transactions)
	totals.RemainingCapital.Transactions = mergeTransactions(totals.RemainingCapital.Transactions)

	return totals, nil
}

// LPInternalRate assembles, normalizes and solves the LP-level cash-flow
// series. Solver failure is not an error; it surfaces as a nil rate with
// the attempted seeds retained.
func (calc *Calculator) LPInternalRate(ctx context.Context, lpShortName string, asOf time.Time) (*IRRResult, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "lpreport.LPInternalRate")
	defer span.End()

	events, pcapDate, err := calc.AssembleCashFlows(ctx, lpShortName, asOf)
	if err != nil {
		return nil, err
	}

	normalized, flags := Normalize(events, &calc.policy.Chronology)
	rate, attempts := SolveRate(normalized, &calc.policy.Solver)
	if rate == nil {
		log.Debug().Str("ShortName", lpShortName).Int("NumEvents", len(normalized)).Msg("no plausible return rate")
	}

	return &IRRResult{
		Rate:              rate,
		SnapshotDataIssue: flags.SnapshotDataIssue,
		ChronologyIssue:   flags.ChronologyIssue,
		CashFlows:         normalized,
		PCAPDate:          pcapDate,
		Attempts:          attempts,
	}, nil
}
