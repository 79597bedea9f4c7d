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
	"math"
	"sort"
	"time"
)

// ChronologyFlags reports the anomalies found while normalizing a cash-flow
// series. They accompany a best-effort result and are never fatal.
type ChronologyFlags struct {
	// ChronologyIssue is set when a distribution predated every
	// contribution and the contribution dates were relocated
	ChronologyIssue bool

	// SnapshotDataIssue is set when distributions predate the earliest
	// snapshot-sourced event; informational only, dates are not touched
	SnapshotDataIssue bool
}

// sameDayRank fixes intra-day ordering: contributions settle before
// distributions, and the ending balance is last
func sameDayRank(event *CashFlowEvent) int {
	switch {
	case event.Amount < 0:
		return 0
	case event.Category == CategoryEndingBalance:
		return 2
	default:
		return 1
	}
}

// Normalize repairs ordering anomalies in an assembled cash-flow series
// before rate computation. It is a pure transform: the input slice and its
// events are left untouched and a new, sorted series is returned.
//
// Two anomaly classes are handled. When the earliest positive non-balance
// event predates every negative event, all negative events are relocated to
// one day before that earliest positive event and ChronologyIssue is set.
// When a distribution predates the earliest snapshot-sourced event (any
// event whose magnitude exceeds the configured threshold), SnapshotDataIssue
// is set without touching any date.
func Normalize(events []*CashFlowEvent, policy *ChronologyPolicy) ([]*CashFlowEvent, ChronologyFlags) {
	flags := ChronologyFlags{}

	normalized := make([]*CashFlowEvent, 0, len(events))
	for _, event := range events {
		clone := *event
		normalized = append(normalized, &clone)
	}

	var earliestNegative, earliestPositive *time.Time
	for _, event := range normalized {
		when := event.Date
		switch {
		case event.Amount < 0:
			if earliestNegative == nil || when.Before(*earliestNegative) {
				earliestNegative = &when
			}
		case event.Category != CategoryEndingBalance:
			if earliestPositive == nil || when.Before(*earliestPositive) {
				earliestPositive = &when
			}
		}
	}

	// snapshot timing is judged against the dates as assembled, before any
	// relocation below can mask it
	var earliestSnapshot, earliestDistribution *time.Time
	for _, event := range normalized {
		when := event.Date
		if math.Abs(event.Amount) > policy.SnapshotSourcedMin {
			if earliestSnapshot == nil || when.Before(*earliestSnapshot) {
				earliestSnapshot = &when
			}
		} else if event.Amount > 0 {
			if earliestDistribution == nil || when.Before(*earliestDistribution) {
				earliestDistribution = &when
			}
		}
	}
	if earliestSnapshot != nil && earliestDistribution != nil && earliestDistribution.Before(*earliestSnapshot) {
		flags.SnapshotDataIssue = true
	}

	if earliestNegative != nil && earliestPositive != nil && earliestPositive.Before(*earliestNegative) {
		flags.ChronologyIssue = true
		relocated := earliestPositive.AddDate(0, 0, -1)
		for _, event := range normalized {
			if event.Amount < 0 {
				event.Date = relocated
			}
		}
	}

	sort.SliceStable(normalized, func(i, j int) bool {
		if !normalized[i].Date.Equal(normalized[j].Date) {
			return normalized[i].Date.Before(normalized[j].Date)
		}
		return sameDayRank(normalized[i]) < sameDayRank(normalized[j])
	})

	return normalized, flags
}
