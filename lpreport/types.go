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
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fundvault/fv-api/common"
	"github.com/fundvault/fv-api/data"
	"github.com/zeebo/blake3"
)

// Event categories. The synthetic ones mark amounts adopted from a PCAP
// snapshot when the ledger is silent.
const (
	CategoryCapitalCall   = "Capital Call"
	CategoryTransfer      = "Transfer (Capital Contribution)"
	CategoryPCAPCall      = "Capital Call (from PCAP)"
	CategoryDistribution  = "LP Distribution"
	CategoryEndingBalance = "Ending Capital Balance"
)

// Event provenance
const (
	SourceLedger   = "ledger"
	SourceSnapshot = "pcap"
)

// CashFlowEvent is one signed, dated flow in an LP's return calculation.
// Contributions are negative; distributions and the ending balance are
// positive. Events are assembled fresh per request and never stored.
type CashFlowEvent struct {
	Date        time.Time `json:"effective_date"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"activity"`
	SubActivity string    `json:"sub_activity,omitempty"`
	Source      string    `json:"source"`
	SourceID    string    `json:"source_id"`
}

// provenanceID derives a stable identifier for an event from where it came
// from, so audit output can be matched back to source rows
func provenanceID(source string, category string, date time.Time, amount float64) string {
	sum := blake3.Sum256([]byte(fmt.Sprintf("%s:%s:%s:%.2f", source, category, date.Format(common.DateFormat), amount)))
	return hex.EncodeToString(sum[:8])
}

// MetricResult pairs an aggregate value with the ordered transactions that
// produced it. For additive metrics the value equals the sum of the
// transaction amounts.
type MetricResult struct {
	Value        float64                   `json:"value"`
	Transactions []*data.LedgerTransaction `json:"transactions"`
}

// RemainingCapitalResult carries both remaining-capital variants; Value is
// the nav-based figure during the reinvestment phase and the cash-based
// figure otherwise
type RemainingCapitalResult struct {
	Value          float64                   `json:"value"`
	CashBasedValue float64                   `json:"cash_based_value"`
	NavBasedValue  float64                   `json:"nav_based_value"`
	ReinvestActive bool                      `json:"is_reinvest_active"`
	Transactions   []*data.LedgerTransaction `json:"transactions"`
}

// FundMetrics is the full metric bundle for one fund, or for an LP when the
// per-fund bundles have been summed
type FundMetrics struct {
	FundName            string                 `json:"fund_name,omitempty"`
	Commitment          MetricResult           `json:"total_commitment"`
	CapitalCalled       MetricResult           `json:"total_capital_called"`
	CapitalDistribution MetricResult           `json:"total_capital_distribution"`
	IncomeDistribution  MetricResult           `json:"total_income_distribution"`
	TotalDistribution   MetricResult           `json:"total_distribution"`
	RemainingCapital    RemainingCapitalResult `json:"remaining_capital"`
}

// SeedAttempt records one root-finding attempt for diagnostics
type SeedAttempt struct {
	Seed       float64 `json:"seed"`
	Rate       float64 `json:"rate"`
	Iterations int     `json:"iterations"`
	Converged  bool    `json:"converged"`
	Plausible  bool    `json:"plausible"`
}

// IRRResult is the outcome of a money-weighted return calculation. Rate is
// nil when preconditions fail or no plausible root is found; the flags and
// seed attempts explain why.
type IRRResult struct {
	Rate              *float64         `json:"irr"`
	SnapshotDataIssue bool             `json:"snapshot_data_issue"`
	ChronologyIssue   bool             `json:"chronology_adjusted"`
	CashFlows         []*CashFlowEvent `json:"cash_flows"`
	PCAPDate          *time.Time       `json:"pcap_date"`
	Attempts          []*SeedAttempt   `json:"seed_attempts,omitempty"`
}

// Source is the read path into the ledger, snapshot and lifecycle tables.
// *data.Store satisfies it; tests substitute an in-memory fixture.
type Source interface {
	LPs(ctx context.Context) ([]*data.LPLookup, error)
	LP(ctx context.Context, shortName string) (*data.LPLookup, error)
	FundsForLP(ctx context.Context, shortName string) ([]*data.LPFund, error)
	LedgerTransactions(ctx context.Context, filter data.LedgerFilter) ([]*data.LedgerTransaction, error)
	SnapshotEntries(ctx context.Context, filter data.SnapshotFilter) ([]*data.PCAPEntry, error)
	LatestSnapshotDate(ctx context.Context, asOf time.Time) (time.Time, bool, error)
}

// Calculator derives metrics and money-weighted returns from a Source. It
// holds no per-request state; one Calculator may serve concurrent requests.
type Calculator struct {
	source Source
	policy *Policy
}

func NewCalculator(source Source) *Calculator {
	return &Calculator{
		source: source,
		policy: DefaultPolicy(),
	}
}

// NewCalculatorWithPolicy is for callers that tune the decision table
func NewCalculatorWithPolicy(source Source, policy *Policy) *Calculator {
	return &Calculator{
		source: source,
		policy: policy,
	}
}

// Source exposes the calculator's read path for callers that serve raw
// directory and fund rows alongside computed metrics
func (calc *Calculator) Source() Source {
	return calc.source
}

// ResolveReportDate maps an arbitrary as-of date to the most recent snapshot
// date on or before it, across all LPs. ok is false when no snapshot exists
// yet; callers fall back to the raw as-of date.
func (calc *Calculator) ResolveReportDate(ctx context.Context, asOf time.Time) (time.Time, bool, error) {
	return calc.source.LatestSnapshotDate(ctx, asOf)
}
