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

	"github.com/rs/zerolog/log"
)

const daysPerYear = 365.0

// npv discounts the series at the given annual rate; exponents are measured
// in fractional years from the first event
func npv(events []*CashFlowEvent, years []float64, rate float64) float64 {
	total := 0.0
	for idx, event := range events {
		total += event.Amount * math.Pow(1+rate, -years[idx])
	}
	return total
}

// npvDerivative is the analytic derivative of npv with respect to rate
func npvDerivative(events []*CashFlowEvent, years []float64, rate float64) float64 {
	total := 0.0
	for idx, event := range events {
		total += event.Amount * -years[idx] * math.Pow(1+rate, -years[idx]-1)
	}
	return total
}

// SolveRate finds the annualized money-weighted return of a normalized,
// date-ordered series via Newton iteration, retrying over the configured
// seed list and accepting only roots strictly inside (MinRate, MaxRate).
// A nil rate means no plausible root was found; the returned attempts
// record every seed tried so callers can diagnose the failure.
func SolveRate(events []*CashFlowEvent, policy *SolverPolicy) (*float64, []*SeedAttempt) {
	if len(events) < 2 {
		return nil, nil
	}

	hasNegative := false
	hasPositive := false
	for _, event := range events {
		if event.Amount < 0 {
			hasNegative = true
		}
		if event.Amount > 0 {
			hasPositive = true
		}
	}
	if !hasNegative || !hasPositive {
		return nil, nil
	}

	first := events[0].Date
	years := make([]float64, len(events))
	for idx, event := range events {
		years[idx] = event.Date.Sub(first).Hours() / 24.0 / daysPerYear
	}

	attempts := make([]*SeedAttempt, 0, len(policy.Seeds))
	for _, seed := range policy.Seeds {
		attempt := &SeedAttempt{Seed: seed}
		attempts = append(attempts, attempt)

		rate := seed
		for iter := 0; iter < policy.MaxIterations; iter++ {
			attempt.Iterations = iter + 1

			value := npv(events, years, rate)
			slope := npvDerivative(events, years, rate)
			if math.IsNaN(value) || math.IsNaN(slope) || slope == 0 {
				break
			}

			next := rate - value/slope
			if math.IsNaN(next) || math.IsInf(next, 0) || next <= -1 {
				break
			}

			if math.Abs(next-rate) < policy.Tolerance {
				rate = next
				attempt.Converged = true
				break
			}
			rate = next
		}

		if !attempt.Converged {
			continue
		}
		attempt.Rate = rate
		attempt.Plausible = rate > policy.MinRate && rate < policy.MaxRate
		if attempt.Plausible {
			return &rate, attempts
		}
		log.Debug().Float64("Seed", seed).Float64("Rate", rate).Msg("discarding implausible root")
	}

	return nil, attempts
}
