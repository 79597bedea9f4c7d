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
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/fundvault/fv-api/common"
	"github.com/fundvault/fv-api/filter"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/exports"
	"github.com/rs/zerolog/log"
)

// ExportCashFlows streams the audit CSV of every LP's assembled cash flows
// as of the report date
func ExportCashFlows(c *fiber.Ctx) error {
	asOf, err := reportDate(c)
	if err != nil {
		return err
	}

	buf := &bytes.Buffer{}
	if err := calculator().CashFlowTrace(c.Context(), asOf, buf); err != nil {
		log.Error().Stack().Err(err).Msg("cash-flow trace failed")
		return fiber.ErrInternalServerError
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="cash_flows_%s.csv"`, asOf.Format(common.DateFormat)))
	return c.Send(buf.Bytes())
}

// csvCell renders a JSON-decoded column value for the CSV extract; dates are
// rewritten into the administrator's MM/DD/YYYY layout
func csvCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		if parsed, err := time.Parse(common.DateFormat, val); err == nil {
			return parsed.Format(common.CSVDateFormat)
		}
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// ExportTable streams an allowlisted table as CSV, honoring the same
// query-string filters as the JSON listing
func ExportTable(c *fiber.Ctx) error {
	table := c.Params("table")
	columns, ok := tableColumns[table]
	if !ok {
		return fiber.ErrNotFound
	}

	where, fields, order, err := queryFilters(c, table)
	if err != nil {
		log.Warn().Err(err).Str("Table", table).Msg("bad table query")
		return fiber.ErrBadRequest
	}
	if len(fields) > 0 {
		columns = fields
	}

	body, err := filter.QueryJSON(c.Context(), table, columns, where, order)
	if err != nil {
		if err == filter.ErrBadWhere || err == filter.ErrUnrecognized {
			return fiber.ErrBadRequest
		}
		return fiber.ErrInternalServerError
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		log.Error().Stack().Err(err).Str("Table", table).Msg("could not decode table rows")
		return fiber.ErrInternalServerError
	}

	series := make([]dataframe.Series, 0, len(columns))
	for _, column := range columns {
		vals := make([]string, len(rows))
		for idx, row := range rows {
			vals[idx] = csvCell(row[column])
		}
		series = append(series, dataframe.NewSeriesString(column, nil, toInterface(vals)...))
	}
	df := dataframe.NewDataFrame(series...)

	buf := &bytes.Buffer{}
	if err := exports.ExportToCSV(c.Context(), buf, df); err != nil {
		log.Error().Stack().Err(err).Str("Table", table).Msg("csv export failed")
		return fiber.ErrInternalServerError
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s.csv"`, table))
	return c.Send(buf.Bytes())
}

func toInterface(vals []string) []interface{} {
	out := make([]interface{}, len(vals))
	for idx, v := range vals {
		out[idx] = v
	}
	return out
}
