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

package handler

import (
	"fmt"
	"strings"

	"github.com/fundvault/fv-api/database"
	"github.com/fundvault/fv-api/filter"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog/log"
)

// tableColumns is the allowlist of tables and columns reachable through the
// data API; anything else is a 404
var tableColumns = map[string][]string{
	"lp_lookup": {"short_name", "active", "source", "effective_date",
		"inactive_date", "fund_list", "beneficial_owner_change",
		"new_lp_short_name", "sei_id_abf", "sei_id_sf2"},
	"lp_fund": {"id", "lp_short_name", "fund_group", "fund_name", "blocker",
		"term", "current_are", "term_end", "are_start", "reinvest_start",
		"harvest_start", "inactive_date", "management_fee", "incentive",
		"status"},
	"pcap": {"id", "lp_short_name", "pcap_date", "field_num", "field",
		"amount"},
	"ledger": {"id", "entry_date", "activity_date", "effective_date",
		"activity", "sub_activity", "amount", "entity_from", "entity_to",
		"related_entity", "related_fund"},
}

var whereOps = map[string]string{
	"eq":  "=",
	"neq": "<>",
	"gt":  ">",
	"gte": ">=",
	"lt":  "<",
	"lte": "<=",
}

func columnAllowed(table string, column string) bool {
	for _, c := range tableColumns[table] {
		if c == column {
			return true
		}
	}
	return false
}

// queryFilters splits the query string into where clauses plus the reserved
// fields and order params
func queryFilters(c *fiber.Ctx, table string) (map[string]string, []string, string, error) {
	where := make(map[string]string)
	fields := tableColumns[table]
	order := ""

	var badColumn error
	c.Context().QueryArgs().VisitAll(func(key, value []byte) {
		k := string(key)
		switch k {
		case "fields":
			requested := strings.Split(string(value), ",")
			selected := make([]string, 0, len(requested))
			for _, col := range requested {
				if !columnAllowed(table, col) {
					badColumn = fmt.Errorf("unknown column: %s", col)
					return
				}
				selected = append(selected, col)
			}
			fields = selected
		case "order":
			if !columnAllowed(table, string(value)) {
				badColumn = fmt.Errorf("unknown column: %s", string(value))
				return
			}
			order = string(value)
		default:
			if !columnAllowed(table, k) {
				badColumn = fmt.Errorf("unknown column: %s", k)
				return
			}
			where[k] = string(value)
		}
	})
	if badColumn != nil {
		return nil, nil, "", badColumn
	}
	return where, fields, order, nil
}

// buildWhere renders query-string filters into a WHERE clause with
// positional args starting at startIdx
func buildWhere(table string, where map[string]string, startIdx int) (string, []interface{}, error) {
	clauses := make([]string, 0, len(where))
	args := make([]interface{}, 0, len(where))
	for column, expr := range where {
		parts := strings.SplitN(expr, ".", 2)
		if len(parts) != 2 {
			return "", nil, filter.ErrBadWhere
		}
		op, ok := whereOps[parts[0]]
		if !ok {
			return "", nil, filter.ErrUnrecognized
		}
		args = append(args, parts[1])
		clauses = append(clauses, fmt.Sprintf("%s %s $%d", pgx.Identifier{column}.Sanitize(), op, startIdx+len(args)-1))
	}
	return strings.Join(clauses, " AND "), args, nil
}

// ListTableRows serves filtered rows from an allowlisted table as JSON.
// Filters use [op].[value] expressions, e.g. ?activity=eq.Capital%20Call.
func ListTableRows(c *fiber.Ctx) error {
	table := c.Params("table")
	if _, ok := tableColumns[table]; !ok {
		return fiber.ErrNotFound
	}

	where, fields, order, err := queryFilters(c, table)
	if err != nil {
		log.Warn().Err(err).Str("Table", table).Msg("bad table query")
		return fiber.ErrBadRequest
	}

	body, err := filter.QueryJSON(c.Context(), table, fields, where, order)
	if err != nil {
		if err == filter.ErrBadWhere || err == filter.ErrUnrecognized {
			return fiber.ErrBadRequest
		}
		return fiber.ErrInternalServerError
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

// CreateTableRow inserts one row; the body is a JSON object keyed by column
func CreateTableRow(c *fiber.Ctx) error {
	table := c.Params("table")
	if _, ok := tableColumns[table]; !ok {
		return fiber.ErrNotFound
	}

	row := make(map[string]interface{})
	if err := json.Unmarshal(c.Body(), &row); err != nil {
		log.Warn().Err(err).Str("Table", table).Msg("bad request body")
		return fiber.ErrBadRequest
	}

	columns := make([]string, 0, len(row))
	placeholders := make([]string, 0, len(row))
	args := make([]interface{}, 0, len(row))
	for column, value := range row {
		if !columnAllowed(table, column) {
			log.Warn().Str("Table", table).Str("Column", column).Msg("unknown column in insert")
			return fiber.ErrBadRequest
		}
		columns = append(columns, pgx.Identifier{column}.Sanitize())
		args = append(args, value)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	if len(columns) == 0 {
		return fiber.ErrBadRequest
	}

	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "))

	ctx := c.Context()
	trx, err := database.Trx(ctx)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	if _, err := trx.Exec(ctx, sqlStr, args...); err != nil {
		log.Warn().Err(err).Str("Table", table).Msg("insert failed")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return fiber.ErrBadRequest
	}
	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit transaction")
		return fiber.ErrInternalServerError
	}

	return c.JSON(fiber.Map{"status": "success"})
}

// UpdateTableRows applies the JSON body as a SET clause to every row
// matching the query-string filters; at least one filter is required
func UpdateTableRows(c *fiber.Ctx) error {
	table := c.Params("table")
	if _, ok := tableColumns[table]; !ok {
		return fiber.ErrNotFound
	}

	where, _, _, err := queryFilters(c, table)
	if err != nil || len(where) == 0 {
		return fiber.ErrBadRequest
	}

	row := make(map[string]interface{})
	if err := json.Unmarshal(c.Body(), &row); err != nil || len(row) == 0 {
		return fiber.ErrBadRequest
	}

	assignments := make([]string, 0, len(row))
	args := make([]interface{}, 0, len(row))
	for column, value := range row {
		if !columnAllowed(table, column) {
			return fiber.ErrBadRequest
		}
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", pgx.Identifier{column}.Sanitize(), len(args)))
	}

	whereClause, whereArgs, err := buildWhere(table, where, len(args)+1)
	if err != nil {
		return fiber.ErrBadRequest
	}
	args = append(args, whereArgs...)

	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(assignments, ", "),
		whereClause)

	ctx := c.Context()
	trx, err := database.Trx(ctx)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	tag, err := trx.Exec(ctx, sqlStr, args...)
	if err != nil {
		log.Warn().Err(err).Str("Table", table).Msg("update failed")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return fiber.ErrBadRequest
	}
	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit transaction")
		return fiber.ErrInternalServerError
	}

	return c.JSON(fiber.Map{"status": "success", "rows": tag.RowsAffected()})
}

// DeleteTableRows removes every row matching the query-string filters; at
// least one filter is required so a bare DELETE cannot empty a table
func DeleteTableRows(c *fiber.Ctx) error {
	table := c.Params("table")
	if _, ok := tableColumns[table]; !ok {
		return fiber.ErrNotFound
	}

	where, _, _, err := queryFilters(c, table)
	if err != nil || len(where) == 0 {
		return fiber.ErrBadRequest
	}

	whereClause, args, err := buildWhere(table, where, 1)
	if err != nil {
		return fiber.ErrBadRequest
	}

	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s", pgx.Identifier{table}.Sanitize(), whereClause)

	ctx := c.Context()
	trx, err := database.Trx(ctx)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	tag, err := trx.Exec(ctx, sqlStr, args...)
	if err != nil {
		log.Warn().Err(err).Str("Table", table).Msg("delete failed")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return fiber.ErrBadRequest
	}
	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit transaction")
		return fiber.ErrInternalServerError
	}

	return c.JSON(fiber.Map{"status": "success", "rows": tag.RowsAffected()})
}
