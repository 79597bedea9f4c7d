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

package filter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fundvault/fv-api/database"
	"github.com/jackc/pgsql"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyFrom    = errors.New("'from' cannot be empty")
	ErrBadWhere     = errors.New("where clauses must take the form [OP].[value]")
	ErrUnrecognized = errors.New("unrecognized operator")
)

// BuildQuery translates PostgREST-style filter expressions into a SELECT
// statement with sanitized identifiers and positional arguments
func BuildQuery(from string, fields []string, safeFields []string, where map[string]string, order string) (string, []interface{}, error) {
	if strings.Compare(from, "") == 0 {
		return "", nil, ErrEmptyFrom
	}
	stmt := &pgsql.SelectStatement{}
	for _, ff := range fields {
		stmt.Select(pgx.Identifier{ff}.Sanitize())
	}

	for _, ff := range safeFields {
		stmt.Select(ff)
	}

	stmt.From(pgx.Identifier{from}.Sanitize())

	for k, v := range where {
		p := strings.SplitN(v, ".", 2)
		if len(p) != 2 {
			return "", nil, ErrBadWhere
		}
		op, val := p[0], p[1]
		k = pgx.Identifier{k}.Sanitize()
		switch op {
		case "eq":
			stmt.Where(fmt.Sprintf("%s = ?", k), val)
		case "gt":
			stmt.Where(fmt.Sprintf("%s > ?", k), val)
		case "gte":
			stmt.Where(fmt.Sprintf("%s >= ?", k), val)
		case "lt":
			stmt.Where(fmt.Sprintf("%s < ?", k), val)
		case "lte":
			stmt.Where(fmt.Sprintf("%s <= ?", k), val)
		case "neq":
			stmt.Where(fmt.Sprintf("%s <> ?", k), val)
		case "like":
			stmt.Where(fmt.Sprintf("%s like ?", k), val)
		case "ilike":
			stmt.Where(fmt.Sprintf("%s ilike ?", k), val)
		case "in":
			stmt.Where(fmt.Sprintf("%s in ?", k), val)
		case "is":
			stmt.Where(fmt.Sprintf("%s is ?", k), val)
		default:
			return "", nil, ErrUnrecognized
		}
	}

	if order != "" {
		stmt.Order(order)
	}

	sqlStr, args := pgsql.Build(stmt)
	return sqlStr, args, nil
}

// QueryJSON executes a filtered SELECT and returns the matching rows as a
// JSON array, ready to hand to the transport layer unmodified
func QueryJSON(ctx context.Context, from string, fields []string, where map[string]string, order string) ([]byte, error) {
	subLog := log.With().Str("From", from).Logger()

	sqlStr, args, err := BuildQuery(from, fields, []string{}, where, order)
	if err != nil {
		subLog.Warn().Err(err).Msg("could not build query")
		return nil, err
	}

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not begin transaction")
		return nil, err
	}

	var res sql.NullString
	err = trx.QueryRow(ctx, fmt.Sprintf(`
	select array_to_json(array_agg(row_to_json(tbl))) as res
    from (
		%s
    ) tbl
	`, sqlStr), args...).Scan(&res)
	if err != nil {
		subLog.Warn().Err(err).Msg("query failed")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
	}

	if !res.Valid {
		return []byte("[]"), nil
	}
	return []byte(res.String), nil
}
