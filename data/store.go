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
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fundvault/fv-api/database"
	"github.com/rs/zerolog/log"
)

// Store reads LP, fund, snapshot and ledger records from postgres. All
// methods run in their own read-only transaction.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

const lpCols = `short_name, COALESCE(active, ''), COALESCE(source, ''), effective_date, inactive_date, COALESCE(fund_list, ''), COALESCE(beneficial_owner_change, ''), COALESCE(new_lp_short_name, ''), COALESCE(sei_id_abf, ''), COALESCE(sei_id_sf2, '')`

const fundCols = `id, COALESCE(lp_short_name, ''), COALESCE(fund_group, ''), fund_name, COALESCE(blocker, ''), COALESCE(term, 0), COALESCE(current_are, 0), term_end, are_start, reinvest_start, harvest_start, inactive_date, COALESCE(management_fee, 0), COALESCE(incentive, 0), COALESCE(status, '')`

const ledgerCols = `id, entry_date, activity_date, effective_date, activity, COALESCE(sub_activity, ''), amount, COALESCE(entity_from, ''), COALESCE(entity_to, ''), COALESCE(related_entity, ''), COALESCE(related_fund, '')`

// LPs returns the full LP directory ordered by short name
func (s *Store) LPs(ctx context.Context) ([]*LPLookup, error) {
	subLog := log.With().Str("Query", "LPs").Logger()

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not begin transaction")
		return nil, err
	}

	rows, err := trx.Query(ctx, fmt.Sprintf("SELECT %s FROM lp_lookup ORDER BY short_name", lpCols))
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("query failed")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	lps := make([]*LPLookup, 0, 64)
	for rows.Next() {
		lp := &LPLookup{}
		var effective, inactive sql.NullTime
		err := rows.Scan(&lp.ShortName, &lp.Active, &lp.Source, &effective,
			&inactive, &lp.FundList, &lp.BeneficialOwnerChange,
			&lp.NewLPShortName, &lp.SeiIDABF, &lp.SeiIDSF2)
		if err != nil {
			subLog.Error().Stack().Err(err).Msg("scan failed")
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		lp.EffectiveDate = nullableDate(effective)
		lp.InactiveDate = nullableDate(inactive)
		lps = append(lps, lp)
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
	}
	return lps, nil
}

// LP fetches a single LP by short name; returns pgx.ErrNoRows when unknown
func (s *Store) LP(ctx context.Context, shortName string) (*LPLookup, error) {
	subLog := log.With().Str("Query", "LP").Str("ShortName", shortName).Logger()

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not begin transaction")
		return nil, err
	}

	lp := &LPLookup{}
	var effective, inactive sql.NullTime
	err = trx.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM lp_lookup WHERE short_name = $1", lpCols),
		shortName).Scan(&lp.ShortName, &lp.Active, &lp.Source, &effective,
		&inactive, &lp.FundList, &lp.BeneficialOwnerChange,
		&lp.NewLPShortName, &lp.SeiIDABF, &lp.SeiIDSF2)
	if err != nil {
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}
	lp.EffectiveDate = nullableDate(effective)
	lp.InactiveDate = nullableDate(inactive)

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
	}
	return lp, nil
}

// FundsForLP returns every fund participation for the LP ordered by fund name
func (s *Store) FundsForLP(ctx context.Context, shortName string) ([]*LPFund, error) {
	subLog := log.With().Str("Query", "FundsForLP").Str("ShortName", shortName).Logger()

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not begin transaction")
		return nil, err
	}

	rows, err := trx.Query(ctx,
		fmt.Sprintf("SELECT %s FROM lp_fund WHERE lp_short_name = $1 ORDER BY fund_name", fundCols),
		shortName)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("query failed")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	funds := make([]*LPFund, 0, 8)
	for rows.Next() {
		fund := &LPFund{}
		var termEnd, areStart, reinvestStart, harvestStart, inactive sql.NullTime
		err := rows.Scan(&fund.ID, &fund.LPShortName, &fund.FundGroup,
			&fund.FundName, &fund.Blocker, &fund.Term, &fund.CurrentARE,
			&termEnd, &areStart, &reinvestStart, &harvestStart, &inactive,
			&fund.ManagementFee, &fund.Incentive, &fund.Status)
		if err != nil {
			subLog.Error().Stack().Err(err).Msg("scan failed")
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		fund.TermEnd = nullableDate(termEnd)
		fund.AREStart = nullableDate(areStart)
		fund.ReinvestStart = nullableDate(reinvestStart)
		fund.HarvestStart = nullableDate(harvestStart)
		fund.InactiveDate = nullableDate(inactive)
		funds = append(funds, fund)
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
	}
	return funds, nil
}

// LedgerTransactions returns posted ledger rows matching the filter ordered
// by effective date then insertion order
func (s *Store) LedgerTransactions(ctx context.Context, filter LedgerFilter) ([]*LedgerTransaction, error) {
	subLog := log.With().Str("Query", "LedgerTransactions").Str("Activity", filter.Activity).Str("Entity", filter.Entity).Logger()

	sqlStr := fmt.Sprintf("SELECT %s FROM ledger WHERE 1=1", ledgerCols)
	args := make([]interface{}, 0, 5)

	if filter.Activity != "" {
		args = append(args, filter.Activity)
		sqlStr += fmt.Sprintf(" AND activity = $%d", len(args))
	}
	if filter.SubActivity != "" {
		args = append(args, filter.SubActivity)
		sqlStr += fmt.Sprintf(" AND sub_activity = $%d", len(args))
	}
	if filter.Entity != "" {
		args = append(args, filter.Entity)
		if filter.IncludeEntityFrom {
			sqlStr += fmt.Sprintf(" AND (related_entity = $%d OR entity_from = $%d)", len(args), len(args))
		} else {
			sqlStr += fmt.Sprintf(" AND related_entity = $%d", len(args))
		}
	}
	if filter.RelatedFund != "" {
		args = append(args, filter.RelatedFund)
		sqlStr += fmt.Sprintf(" AND related_fund = $%d", len(args))
	}
	if !filter.Through.IsZero() {
		args = append(args, filter.Through)
		sqlStr += fmt.Sprintf(" AND effective_date <= $%d", len(args))
	}
	sqlStr += " ORDER BY effective_date, id"

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not begin transaction")
		return nil, err
	}

	rows, err := trx.Query(ctx, sqlStr, args...)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("query failed")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	transactions := make([]*LedgerTransaction, 0, 64)
	for rows.Next() {
		trn := &LedgerTransaction{}
		var entryDate, activityDate sql.NullTime
		err := rows.Scan(&trn.ID, &entryDate, &activityDate,
			&trn.EffectiveDate, &trn.Activity, &trn.SubActivity, &trn.Amount,
			&trn.EntityFrom, &trn.EntityTo, &trn.RelatedEntity,
			&trn.RelatedFund)
		if err != nil {
			subLog.Error().Stack().Err(err).Msg("scan failed")
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		if entryDate.Valid {
			trn.EntryDate = entryDate.Time
		}
		if activityDate.Valid {
			trn.ActivityDate = activityDate.Time
		}
		transactions = append(transactions, trn)
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
	}
	return transactions, nil
}

// SnapshotEntries returns PCAP rows matching the filter ordered by date then
// field_num so the highest field_num for a date comes last
func (s *Store) SnapshotEntries(ctx context.Context, filter SnapshotFilter) ([]*PCAPEntry, error) {
	subLog := log.With().Str("Query", "SnapshotEntries").Str("ShortName", filter.LPShortName).Str("Field", filter.Field).Logger()

	sqlStr := "SELECT id, lp_short_name, pcap_date, field_num, field, amount FROM pcap WHERE lp_short_name = $1"
	args := []interface{}{filter.LPShortName}

	if filter.Field != "" {
		args = append(args, filter.Field)
		sqlStr += fmt.Sprintf(" AND field = $%d", len(args))
	}
	if filter.On != nil {
		args = append(args, *filter.On)
		sqlStr += fmt.Sprintf(" AND pcap_date = $%d", len(args))
	}
	if filter.Through != nil {
		args = append(args, *filter.Through)
		sqlStr += fmt.Sprintf(" AND pcap_date <= $%d", len(args))
	}
	if filter.MonthOf != nil {
		args = append(args, *filter.MonthOf)
		sqlStr += fmt.Sprintf(" AND date_trunc('month', pcap_date) = date_trunc('month', $%d::date)", len(args))
	}
	sqlStr += " ORDER BY pcap_date, field_num"

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not begin transaction")
		return nil, err
	}

	rows, err := trx.Query(ctx, sqlStr, args...)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("query failed")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	entries := make([]*PCAPEntry, 0, 16)
	for rows.Next() {
		entry := &PCAPEntry{}
		err := rows.Scan(&entry.ID, &entry.LPShortName, &entry.PCAPDate,
			&entry.FieldNum, &entry.Field, &entry.Amount)
		if err != nil {
			subLog.Error().Stack().Err(err).Msg("scan failed")
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
	}
	return entries, nil
}

// LatestSnapshotDate returns the most recent pcap_date on or before asOf
// across all LPs. ok is false when no snapshot exists yet.
func (s *Store) LatestSnapshotDate(ctx context.Context, asOf time.Time) (time.Time, bool, error) {
	subLog := log.With().Str("Query", "LatestSnapshotDate").Time("AsOf", asOf).Logger()

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not begin transaction")
		return time.Time{}, false, err
	}

	var latest sql.NullTime
	err = trx.QueryRow(ctx, "SELECT max(pcap_date) FROM pcap WHERE pcap_date <= $1", asOf).Scan(&latest)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("query failed")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return time.Time{}, false, err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
	}

	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return latest.Time, true, nil
}

func nullableDate(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
