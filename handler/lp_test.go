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

package handler_test

import (
	"context"
	"io/ioutil"
	"net/http/httptest"
	"sort"
	"time"

	"github.com/fundvault/fv-api/data"
	"github.com/fundvault/fv-api/handler"
	"github.com/fundvault/fv-api/lpreport"
	"github.com/fundvault/fv-api/router"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v4"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// apiSource is an in-memory Source backing the handlers under test; it
// mirrors the postgres store's filter semantics
type apiSource struct {
	lps       []*data.LPLookup
	funds     map[string][]*data.LPFund
	ledger    []*data.LedgerTransaction
	snapshots []*data.PCAPEntry
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func dayPtr(year int, month time.Month, d int) *time.Time {
	when := day(year, month, d)
	return &when
}

func (s *apiSource) LPs(_ context.Context) ([]*data.LPLookup, error) {
	return s.lps, nil
}

func (s *apiSource) LP(_ context.Context, shortName string) (*data.LPLookup, error) {
	for _, lp := range s.lps {
		if lp.ShortName == shortName {
			return lp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *apiSource) FundsForLP(_ context.Context, shortName string) ([]*data.LPFund, error) {
	return s.funds[shortName], nil
}

func (s *apiSource) LedgerTransactions(_ context.Context, filter data.LedgerFilter) ([]*data.LedgerTransaction, error) {
	matched := make([]*data.LedgerTransaction, 0, len(s.ledger))
	for _, trn := range s.ledger {
		if filter.Activity != "" && trn.Activity != filter.Activity {
			continue
		}
		if filter.SubActivity != "" && trn.SubActivity != filter.SubActivity {
			continue
		}
		if filter.Entity != "" {
			match := trn.RelatedEntity == filter.Entity
			if filter.IncludeEntityFrom {
				match = match || trn.EntityFrom == filter.Entity
			}
			if !match {
				continue
			}
		}
		if filter.RelatedFund != "" && trn.RelatedFund != filter.RelatedFund {
			continue
		}
		if !filter.Through.IsZero() && trn.EffectiveDate.After(filter.Through) {
			continue
		}
		matched = append(matched, trn)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].EffectiveDate.Before(matched[j].EffectiveDate)
	})
	return matched, nil
}

func (s *apiSource) SnapshotEntries(_ context.Context, filter data.SnapshotFilter) ([]*data.PCAPEntry, error) {
	matched := make([]*data.PCAPEntry, 0, len(s.snapshots))
	for _, entry := range s.snapshots {
		if entry.LPShortName != filter.LPShortName {
			continue
		}
		if filter.Field != "" && entry.Field != filter.Field {
			continue
		}
		if filter.On != nil && !entry.PCAPDate.Equal(*filter.On) {
			continue
		}
		if filter.Through != nil && entry.PCAPDate.After(*filter.Through) {
			continue
		}
		if filter.MonthOf != nil {
			if entry.PCAPDate.Year() != filter.MonthOf.Year() || entry.PCAPDate.Month() != filter.MonthOf.Month() {
				continue
			}
		}
		matched = append(matched, entry)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].PCAPDate.Equal(matched[j].PCAPDate) {
			return matched[i].PCAPDate.Before(matched[j].PCAPDate)
		}
		return matched[i].FieldNum < matched[j].FieldNum
	})
	return matched, nil
}

func (s *apiSource) LatestSnapshotDate(_ context.Context, asOf time.Time) (time.Time, bool, error) {
	var latest time.Time
	found := false
	for _, entry := range s.snapshots {
		if entry.PCAPDate.After(asOf) {
			continue
		}
		if !found || entry.PCAPDate.After(latest) {
			latest = entry.PCAPDate
			found = true
		}
	}
	return latest, found, nil
}

func harborSource() *apiSource {
	return &apiSource{
		lps: []*data.LPLookup{
			{ShortName: "harbor-trust", Active: "Yes", Source: "sei"},
		},
		funds: map[string][]*data.LPFund{
			"harbor-trust": {
				{
					ID:            1,
					LPShortName:   "harbor-trust",
					FundName:      "Fund I",
					ReinvestStart: dayPtr(2019, time.January, 1),
				},
			},
		},
		ledger: []*data.LedgerTransaction{
			{
				ID:            1,
				EffectiveDate: day(2019, time.December, 1),
				SubActivity:   "New Commitment",
				Amount:        1000000,
				RelatedEntity: "harbor-trust",
				RelatedFund:   "Fund I",
			},
			{
				ID:            2,
				EffectiveDate: day(2020, time.January, 15),
				Activity:      "Capital Call",
				Amount:        500000,
				RelatedEntity: "harbor-trust",
				RelatedFund:   "Fund I",
			},
			{
				ID:            3,
				EffectiveDate: day(2021, time.June, 30),
				Activity:      "LP Distribution",
				SubActivity:   "Income Distribution",
				Amount:        50000,
				RelatedEntity: "harbor-trust",
				RelatedFund:   "Fund I",
			},
		},
		snapshots: []*data.PCAPEntry{
			{
				ID:          1,
				LPShortName: "harbor-trust",
				PCAPDate:    day(2023, time.March, 31),
				FieldNum:    10,
				Field:       "Ending Capital Balance",
				Amount:      600000,
			},
		},
	}
}

var _ = Describe("LP endpoints", func() {
	var app *fiber.App

	BeforeEach(func() {
		handler.SetCalculator(lpreport.NewCalculatorWithPolicy(harborSource(), lpreport.DefaultPolicy()))
		app = fiber.New(fiber.Config{
			JSONEncoder: json.Marshal,
			JSONDecoder: json.Unmarshal,
		})
		router.SetupRoutes(app)
	})

	getJSON := func(url string) (int, map[string]interface{}) {
		resp, err := app.Test(httptest.NewRequest("GET", url, nil))
		Expect(err).To(BeNil())
		defer resp.Body.Close()
		raw, err := ioutil.ReadAll(resp.Body)
		Expect(err).To(BeNil())

		body := make(map[string]interface{})
		if len(raw) > 0 && resp.StatusCode == fiber.StatusOK {
			Expect(json.Unmarshal(raw, &body)).To(Succeed())
		}
		return resp.StatusCode, body
	}

	Describe("GET /v1/lp/:shortName", func() {
		Context("with a known lp", func() {
			It("returns the detail bundle with a computed return", func() {
				status, body := getJSON("/v1/lp/harbor-trust?report_date=2023-06-30")
				Expect(status).To(Equal(fiber.StatusOK))

				details, ok := body["lp_details"].(map[string]interface{})
				Expect(ok).To(BeTrue())
				Expect(details["short_name"]).To(Equal("harbor-trust"))

				funds, ok := body["funds"].([]interface{})
				Expect(ok).To(BeTrue())
				Expect(funds).To(HaveLen(1))

				totals, ok := body["totals"].(map[string]interface{})
				Expect(ok).To(BeTrue())
				called, ok := totals["total_capital_called"].(map[string]interface{})
				Expect(ok).To(BeTrue())
				Expect(called["value"]).To(BeNumerically("==", 500000))

				Expect(body["irr"]).NotTo(BeNil())
				Expect(body["irr"]).To(BeNumerically(">", 0))
				Expect(body["pcap_report_date"]).To(Equal("2023-03-31"))
				Expect(body["irr_chronology_issue"]).To(BeFalse())
			})
		})

		Context("with an unknown lp", func() {
			It("returns 404", func() {
				status, _ := getJSON("/v1/lp/nobody")
				Expect(status).To(Equal(fiber.StatusNotFound))
			})
		})

		Context("with a malformed report date", func() {
			It("returns 400", func() {
				status, _ := getJSON("/v1/lp/harbor-trust?report_date=June")
				Expect(status).To(Equal(fiber.StatusBadRequest))
			})
		})
	})

	Describe("GET /v1/lp/:shortName/irr-cash-flows", func() {
		It("returns the normalized series behind the return figure", func() {
			status, body := getJSON("/v1/lp/harbor-trust/irr-cash-flows?report_date=2023-06-30")
			Expect(status).To(Equal(fiber.StatusOK))

			flows, ok := body["cash_flows"].([]interface{})
			Expect(ok).To(BeTrue())
			Expect(flows).To(HaveLen(3))

			first, ok := flows[0].(map[string]interface{})
			Expect(ok).To(BeTrue())
			Expect(first["amount"]).To(BeNumerically("<", 0))

			last, ok := flows[len(flows)-1].(map[string]interface{})
			Expect(ok).To(BeTrue())
			Expect(last["activity"]).To(Equal("Ending Capital Balance"))

			Expect(body["irr"]).NotTo(BeNil())
			Expect(body["pcap_date"]).To(Equal("2023-03-31"))
		})
	})

	Describe("GET /v1/", func() {
		It("reports service health", func() {
			status, body := getJSON("/v1/")
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body["status"]).To(Equal("success"))
		})
	})
})
