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

package data

import (
	"time"
)

// LPLookup is one row of the limited-partner directory
type LPLookup struct {
	ShortName             string     `json:"short_name"`
	Active                string     `json:"active"`
	Source                string     `json:"source"`
	EffectiveDate         *time.Time `json:"effective_date"`
	InactiveDate          *time.Time `json:"inactive_date"`
	FundList              string     `json:"fund_list"`
	BeneficialOwnerChange string     `json:"beneficial_owner_change"`
	NewLPShortName        string     `json:"new_lp_short_name"`
	SeiIDABF              string     `json:"sei_id_abf"`
	SeiIDSF2              string     `json:"sei_id_sf2"`
}

// LPFund describes one LP's participation in a fund, including the lifecycle
// dates that drive the reinvestment-phase accounting rules
type LPFund struct {
	ID            int        `json:"id"`
	LPShortName   string     `json:"lp_short_name"`
	FundGroup     string     `json:"fund_group"`
	FundName      string     `json:"fund_name"`
	Blocker       string     `json:"blocker"`
	Term          int        `json:"term"`
	CurrentARE    int        `json:"current_are"`
	TermEnd       *time.Time `json:"term_end"`
	AREStart      *time.Time `json:"are_start"`
	ReinvestStart *time.Time `json:"reinvest_start"`
	HarvestStart  *time.Time `json:"harvest_start"`
	InactiveDate  *time.Time `json:"inactive_date"`
	ManagementFee float64    `json:"management_fee"`
	Incentive     float64    `json:"incentive"`
	Status        string     `json:"status"`
}

// ReinvestActive reports whether the fund is in its reinvestment window as of
// the given date: reinvestment has started and harvest has not
func (f *LPFund) ReinvestActive(asOf time.Time) bool {
	if f.ReinvestStart == nil || f.ReinvestStart.After(asOf) {
		return false
	}
	return f.HarvestStart == nil || f.HarvestStart.After(asOf)
}

// PCAPEntry is one field of a periodic capital account statement. Multiple
// rows may exist for the same (lp, date, field); the highest field_num wins.
type PCAPEntry struct {
	ID          int       `json:"id"`
	LPShortName string    `json:"lp_short_name"`
	PCAPDate    time.Time `json:"pcap_date"`
	FieldNum    int       `json:"field_num"`
	Field       string    `json:"field"`
	Amount      float64   `json:"amount"`
}

// LedgerTransaction is one posted accounting event; read-only here
type LedgerTransaction struct {
	ID            int64     `json:"id"`
	EntryDate     time.Time `json:"entry_date"`
	ActivityDate  time.Time `json:"activity_date"`
	EffectiveDate time.Time `json:"effective_date"`
	Activity      string    `json:"activity"`
	SubActivity   string    `json:"sub_activity"`
	Amount        float64   `json:"amount"`
	EntityFrom    string    `json:"entity_from"`
	EntityTo      string    `json:"entity_to"`
	RelatedEntity string    `json:"related_entity"`
	RelatedFund   string    `json:"related_fund"`
}

// LedgerFilter narrows a ledger query; zero values mean "no constraint"
type LedgerFilter struct {
	Activity    string
	SubActivity string

	// Entity matches related_entity; when IncludeEntityFrom is set the row
	// also matches if entity_from equals Entity (capital calls routed
	// through a blocker entity carry the LP there instead)
	Entity            string
	IncludeEntityFrom bool

	RelatedFund string

	// Through keeps rows with effective_date <= Through; zero disables
	Through time.Time
}

// SnapshotFilter narrows a PCAP query
type SnapshotFilter struct {
	LPShortName string
	Field       string
	On          *time.Time // exact pcap_date
	Through     *time.Time // pcap_date <= Through
	MonthOf     *time.Time // same calendar month as the given date
}
