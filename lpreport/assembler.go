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
	"time"

	"github.com/fundvault/fv-api/data"
	"github.com/fundvault/fv-api/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
)

// anchorDate resolves the snapshot anchor for asOf; when no snapshot exists
// the raw as-of date is used and resolved is false
func (calc *Calculator) anchorDate(ctx context.Context, asOf time.Time) (time.Time, bool) {
	anchor, ok, err := calc.source.LatestSnapshotDate(ctx, asOf)
	if err != nil || !ok {
		if err != nil {
			log.Warn().Err(err).Time("AsOf", asOf).Msg("could not resolve report date; using raw as-of date")
		}
		return asOf, false
	}
	return anchor, true
}

// ledgerCapitalCalls returns posted capital-call rows for the LP through the
// anchor date. Fund-scoped queries also match entity_from because calls
// routed through a blocker entity carry the LP there.
func (calc *Calculator) ledgerCapitalCalls(ctx context.Context, lpShortName string, fundName string, anchor time.Time) ([]*data.LedgerTransaction, error) {
	return calc.source.LedgerTransactions(ctx, data.LedgerFilter{
		Activity:          calc.policy.Vocabulary.CapitalCallActivity,
		Entity:            lpShortName,
		IncludeEntityFrom: fundName != "",
		RelatedFund:       fundName,
		Through:           anchor,
	})
}

// ledgerDistributions returns posted distribution rows for the LP through
// the anchor date
func (calc *Calculator) ledgerDistributions(ctx context.Context, lpShortName string, fundName string, anchor time.Time) ([]*data.LedgerTransaction, error) {
	return calc.source.LedgerTransactions(ctx, data.LedgerFilter{
		Activity:    calc.policy.Vocabulary.DistributionActivity,
		Entity:      lpShortName,
		RelatedFund: fundName,
		Through:     anchor,
	})
}

// snapshotField fetches the winning row for a snapshot field exactly at the
// anchor date; ties on the date resolve to the highest field_num. Returns
// nil when the field is absent.
func (calc *Calculator) snapshotField(ctx context.Context, lpShortName string, field string, anchor time.Time) (*data.PCAPEntry, error) {
	entries, err := calc.source.SnapshotEntries(ctx, data.SnapshotFilter{
		LPShortName: lpShortName,
		Field:       field,
		On:          &anchor,
	})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[len(entries)-1], nil
}

// endingBalance fetches the ending-balance snapshot at the anchor date,
// falling back to the closest earlier snapshot within the same calendar
// month. Exactly one row wins; balances are never summed.
func (calc *Calculator) endingBalance(ctx context.Context, lpShortName string, anchor time.Time) (*data.PCAPEntry, error) {
	entry, err := calc.snapshotField(ctx, lpShortName, calc.policy.Vocabulary.EndingBalanceField, anchor)
	if err != nil || entry != nil {
		return entry, err
	}

	entries, err := calc.source.SnapshotEntries(ctx, data.SnapshotFilter{
		LPShortName: lpShortName,
		Field:       calc.policy.Vocabulary.EndingBalanceField,
		Through:     &anchor,
		MonthOf:     &anchor,
	})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	// rows arrive ordered by date then field_num, so the last row is the
	// closest date to the anchor with the highest field_num
	return entries[len(entries)-1], nil
}

// contributionEvents assembles the negative-signed side of the cash-flow
// series. Ledger capital calls are authoritative; the Transfers and Capital
// Calls snapshot fields are engaged per the configured transfers mode when
// the ledger is silent.
func (calc *Calculator) contributionEvents(ctx context.Context, lpShortName string, fundName string, anchor time.Time) ([]*CashFlowEvent, []*data.LedgerTransaction, error) {
	transactions, err := calc.ledgerCapitalCalls(ctx, lpShortName, fundName, anchor)
	if err != nil {
		return nil, nil, err
	}

	events := make([]*CashFlowEvent, 0, len(transactions)+1)
	for _, trn := range transactions {
		amount := -math.Abs(trn.Amount)
		events = append(events, &CashFlowEvent{
			Date:     trn.EffectiveDate,
			Amount:   amount,
			Category: CategoryCapitalCall,
			Source:   SourceLedger,
			SourceID: provenanceID(SourceLedger, CategoryCapitalCall, trn.EffectiveDate, amount),
		})
	}

	if calc.policy.Assembler.TransfersMode == TransfersAlways || len(events) == 0 {
		entry, err := calc.snapshotField(ctx, lpShortName, calc.policy.Vocabulary.TransfersField, anchor)
		if err != nil {
			return nil, nil, err
		}
		if entry != nil && entry.Amount > 0 {
			amount := -math.Abs(entry.Amount)
			events = append(events, &CashFlowEvent{
				Date:     anchor,
				Amount:   amount,
				Category: CategoryTransfer,
				Source:   SourceSnapshot,
				SourceID: provenanceID(SourceSnapshot, CategoryTransfer, anchor, amount),
			})
		}
	}

	if len(events) == 0 {
		entry, err := calc.snapshotField(ctx, lpShortName, calc.policy.Vocabulary.CapitalCallsField, anchor)
		if err != nil {
			return nil, nil, err
		}
		if entry != nil && entry.Amount > 0 {
			amount := -math.Abs(entry.Amount)
			events = append(events, &CashFlowEvent{
				Date:     anchor,
				Amount:   amount,
				Category: CategoryPCAPCall,
				Source:   SourceSnapshot,
				SourceID: provenanceID(SourceSnapshot, CategoryPCAPCall, anchor, amount),
			})
		}
	}

	return events, transactions, nil
}

// distributionEvents assembles the positive-signed distribution flows,
// carrying the sub-activity so callers can split capital from income
func (calc *Calculator) distributionEvents(ctx context.Context, lpShortName string, fundName string, anchor time.Time) ([]*CashFlowEvent, []*data.LedgerTransaction, error) {
	transactions, err := calc.ledgerDistributions(ctx, lpShortName, fundName, anchor)
	if err != nil {
		return nil, nil, err
	}

	events := make([]*CashFlowEvent, 0, len(transactions))
	for _, trn := range transactions {
		amount := math.Abs(trn.Amount)
		events = append(events, &CashFlowEvent{
			Date:        trn.EffectiveDate,
			Amount:      amount,
			Category:    CategoryDistribution,
			SubActivity: trn.SubActivity,
			Source:      SourceLedger,
			SourceID:    provenanceID(SourceLedger, CategoryDistribution, trn.EffectiveDate, amount),
		})
	}
	return events, transactions, nil
}

// AssembleCashFlows gathers the LP-level cash-flow series used for return
// computation: contributions, distributions, and a single ending-balance
// event dated at the snapshot row's own date. The returned series has not
// yet been normalized; pcapDate is nil when no snapshot anchors the request.
func (calc *Calculator) AssembleCashFlows(ctx context.Context, lpShortName string, asOf time.Time) ([]*CashFlowEvent, *time.Time, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "lpreport.AssembleCashFlows")
	defer span.End()

	anchor, resolved := calc.anchorDate(ctx, asOf)

	contributions, _, err := calc.contributionEvents(ctx, lpShortName, "", anchor)
	if err != nil {
		return nil, nil, err
	}

	distributions, _, err := calc.distributionEvents(ctx, lpShortName, "", anchor)
	if err != nil {
		return nil, nil, err
	}

	events := make([]*CashFlowEvent, 0, len(contributions)+len(distributions)+1)
	events = append(events, contributions...)
	events = append(events, distributions...)

	balance, err := calc.endingBalance(ctx, lpShortName, anchor)
	if err != nil {
		return nil, nil, err
	}
	if balance != nil {
		amount := math.Abs(balance.Amount)
		events = append(events, &CashFlowEvent{
			Date:     balance.PCAPDate,
			Amount:   amount,
			Category: CategoryEndingBalance,
			Source:   SourceSnapshot,
			SourceID: provenanceID(SourceSnapshot, CategoryEndingBalance, balance.PCAPDate, amount),
		})
	}

	var pcapDate *time.Time
	if resolved {
		pcapDate = &anchor
	}
	return events, pcapDate, nil
}
