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

package router

import (
	"github.com/fundvault/fv-api/handler"
	"github.com/fundvault/fv-api/middleware"

	"github.com/gofiber/fiber/v2"
)

// SetupRoutes setup router api
func SetupRoutes(app *fiber.App) {
	// Middleware
	api := app.Group("/v1", middleware.NewLogger())
	api.Get("/", handler.Ping)

	// LP reports
	lp := api.Group("/lp")
	lp.Get("/", handler.ListLPs)
	lp.Get("/:shortName", handler.GetLP)
	lp.Get("/:shortName/irr-cash-flows", handler.GetIRRCashFlows)

	// Raw table access
	tables := api.Group("/data")
	tables.Get("/:table", handler.ListTableRows)
	tables.Post("/:table", handler.CreateTableRow)
	tables.Patch("/:table", handler.UpdateTableRows)
	tables.Delete("/:table", handler.DeleteTableRows)

	// CSV exports
	api.Get("/export/cashflows", handler.ExportCashFlows)
	api.Get("/export/:table", handler.ExportTable)
}
