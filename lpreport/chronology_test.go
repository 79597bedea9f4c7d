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
	"time"

	"github.com/fundvault/fv-api/lpreport"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Normalize", func() {
	var policy lpreport.ChronologyPolicy

	BeforeEach(func() {
		policy = lpreport.ChronologyPolicy{SnapshotSourcedMin: 100000}
	})

	Context("with a distribution dated before any contribution", func() {
		var events []*lpreport.CashFlowEvent

		BeforeEach(func() {
			events = []*lpreport.CashFlowEvent{
				{Date: dt(2020, time.January, 1), Amount: 1000, Category: lpreport.CategoryDistribution},
				{Date: dt(2020, time.June, 1), Amount: -1000, Category: lpreport.CategoryCapitalCall},
			}
		})

		It("flags the series and relocates the contribution before the distribution", func() {
			normalized, flags := lpreport.Normalize(events, &policy)
			Expect(flags.ChronologyIssue).To(BeTrue())
			Expect(normalized).To(HaveLen(2))
			Expect(normalized[0].Amount).To(Equal(-1000.0))
			Expect(normalized[0].Date).To(Equal(dt(2019, time.December, 31)))
			Expect(normalized[1].Amount).To(Equal(1000.0))
		})

		It("does not mutate the input series", func() {
			lpreport.Normalize(events, &policy)
			Expect(events[1].Date).To(Equal(dt(2020, time.June, 1)))
		})
	})

	Context("with multiple out-of-sequence contributions", func() {
		It("collapses all contribution dates to one day before the earliest distribution", func() {
			events := []*lpreport.CashFlowEvent{
				{Date: dt(2020, time.March, 15), Amount: 500, Category: lpreport.CategoryDistribution},
				{Date: dt(2020, time.July, 1), Amount: -300, Category: lpreport.CategoryCapitalCall},
				{Date: dt(2020, time.September, 1), Amount: -700, Category: lpreport.CategoryCapitalCall},
			}
			normalized, flags := lpreport.Normalize(events, &policy)
			Expect(flags.ChronologyIssue).To(BeTrue())
			Expect(normalized[0].Date).To(Equal(dt(2020, time.March, 14)))
			Expect(normalized[1].Date).To(Equal(dt(2020, time.March, 14)))
			Expect(normalized[0].Amount + normalized[1].Amount).To(Equal(-1000.0))
		})
	})

	Context("with distributions preceding the snapshot-sourced transfer", func() {
		It("sets the snapshot-timing flag without touching dates", func() {
			events := []*lpreport.CashFlowEvent{
				{Date: dt(2023, time.January, 15), Amount: 5000, Category: lpreport.CategoryDistribution},
				{Date: dt(2023, time.March, 31), Amount: -500000, Category: lpreport.CategoryTransfer},
				{Date: dt(2023, time.March, 31), Amount: 1200000, Category: lpreport.CategoryEndingBalance},
			}
			normalized, flags := lpreport.Normalize(events, &policy)
			Expect(flags.SnapshotDataIssue).To(BeTrue())
			for _, event := range normalized {
				if event.Category == lpreport.CategoryDistribution {
					Expect(event.Date).To(Equal(dt(2023, time.January, 15)))
				}
			}
		})
	})

	Context("with a well-ordered series", func() {
		It("reports no anomalies", func() {
			events := []*lpreport.CashFlowEvent{
				{Date: dt(2020, time.January, 1), Amount: -1000000, Category: lpreport.CategoryCapitalCall},
				{Date: dt(2021, time.June, 1), Amount: 50000, Category: lpreport.CategoryDistribution},
				{Date: dt(2023, time.March, 31), Amount: 1200000, Category: lpreport.CategoryEndingBalance},
			}
			_, flags := lpreport.Normalize(events, &policy)
			Expect(flags.ChronologyIssue).To(BeFalse())
			Expect(flags.SnapshotDataIssue).To(BeFalse())
		})
	})

	Context("with several events on the same day", func() {
		It("orders contributions first, then distributions, then the ending balance", func() {
			day := dt(2023, time.March, 31)
			events := []*lpreport.CashFlowEvent{
				{Date: day, Amount: 1200000, Category: lpreport.CategoryEndingBalance},
				{Date: day, Amount: 5000, Category: lpreport.CategoryDistribution},
				{Date: day, Amount: -500000, Category: lpreport.CategoryCapitalCall},
			}
			normalized, _ := lpreport.Normalize(events, &policy)
			Expect(normalized[0].Amount).To(Equal(-500000.0))
			Expect(normalized[1].Category).To(Equal(lpreport.CategoryDistribution))
			Expect(normalized[2].Category).To(Equal(lpreport.CategoryEndingBalance))
		})
	})
})
