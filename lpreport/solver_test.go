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

var _ = Describe("SolveRate", func() {
	var policy lpreport.SolverPolicy

	BeforeEach(func() {
		policy = lpreport.SolverPolicy{
			Seeds:         []float64{0.10, 0.05, 0.01, 0.20, 0.30, -0.10, -0.20},
			Tolerance:     1e-6,
			MaxIterations: 200,
			MinRate:       -0.99,
			MaxRate:       10.0,
		}
	})

	Context("with a single-period 10% gain", func() {
		It("finds the rate", func() {
			events := []*lpreport.CashFlowEvent{
				{Date: dt(2021, time.January, 1), Amount: -1000, Category: lpreport.CategoryCapitalCall},
				{Date: dt(2022, time.January, 1), Amount: 1100, Category: lpreport.CategoryEndingBalance},
			}
			rate, attempts := lpreport.SolveRate(events, &policy)
			Expect(rate).NotTo(BeNil())
			Expect(*rate).To(BeNumerically("~", 0.10, 1e-4))
			Expect(attempts).NotTo(BeEmpty())
			Expect(attempts[len(attempts)-1].Converged).To(BeTrue())
		})
	})

	Context("with interim distributions", func() {
		It("finds a money-weighted rate between the simple bounds", func() {
			events := []*lpreport.CashFlowEvent{
				{Date: dt(2020, time.January, 1), Amount: -1000000, Category: lpreport.CategoryCapitalCall},
				{Date: dt(2021, time.January, 1), Amount: 80000, Category: lpreport.CategoryDistribution},
				{Date: dt(2022, time.January, 1), Amount: 80000, Category: lpreport.CategoryDistribution},
				{Date: dt(2023, time.January, 1), Amount: 1050000, Category: lpreport.CategoryEndingBalance},
			}
			rate, _ := lpreport.SolveRate(events, &policy)
			Expect(rate).NotTo(BeNil())
			Expect(*rate).To(BeNumerically(">", 0.05))
			Expect(*rate).To(BeNumerically("<", 0.12))
		})
	})

	Context("with fewer than two events", func() {
		It("returns no rate", func() {
			events := []*lpreport.CashFlowEvent{
				{Date: dt(2021, time.January, 1), Amount: -1000, Category: lpreport.CategoryCapitalCall},
			}
			rate, _ := lpreport.SolveRate(events, &policy)
			Expect(rate).To(BeNil())
		})
	})

	Context("with all flows sharing one sign", func() {
		It("returns no rate without attempting any seed", func() {
			events := []*lpreport.CashFlowEvent{
				{Date: dt(2021, time.January, 1), Amount: 100, Category: lpreport.CategoryDistribution},
				{Date: dt(2021, time.June, 1), Amount: 50, Category: lpreport.CategoryDistribution},
			}
			rate, attempts := lpreport.SolveRate(events, &policy)
			Expect(rate).To(BeNil())
			Expect(attempts).To(BeEmpty())
		})
	})

	Context("with a series whose only root is implausible", func() {
		It("discards it and returns no rate with the attempts retained", func() {
			// one year from -100 to 2000 is a 1900% return
			events := []*lpreport.CashFlowEvent{
				{Date: dt(2021, time.January, 1), Amount: -100, Category: lpreport.CategoryCapitalCall},
				{Date: dt(2022, time.January, 1), Amount: 2000, Category: lpreport.CategoryEndingBalance},
			}
			rate, attempts := lpreport.SolveRate(events, &policy)
			Expect(rate).To(BeNil())
			Expect(attempts).To(HaveLen(len(policy.Seeds)))
			for _, attempt := range attempts {
				if attempt.Converged {
					Expect(attempt.Plausible).To(BeFalse())
					Expect(attempt.Rate).To(BeNumerically(">", policy.MaxRate))
				}
			}
		})
	})

	Context("with a total loss", func() {
		It("rejects rates at or below -99%", func() {
			events := []*lpreport.CashFlowEvent{
				{Date: dt(2021, time.January, 1), Amount: -1000000, Category: lpreport.CategoryCapitalCall},
				{Date: dt(2022, time.January, 1), Amount: 1, Category: lpreport.CategoryEndingBalance},
			}
			rate, _ := lpreport.SolveRate(events, &policy)
			Expect(rate).To(BeNil())
		})
	})
})
