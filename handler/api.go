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
	"sync"

	"github.com/fundvault/fv-api/common"
	"github.com/fundvault/fv-api/data"
	"github.com/fundvault/fv-api/lpreport"
	"github.com/gofiber/fiber/v2"
)

var (
	calcOnce sync.Once
	calc     *lpreport.Calculator
)

func calculator() *lpreport.Calculator {
	calcOnce.Do(func() {
		if calc == nil {
			calc = lpreport.NewCalculator(data.NewStore())
		}
	})
	return calc
}

// SetCalculator replaces the calculator; used by tests
func SetCalculator(c *lpreport.Calculator) {
	calcOnce.Do(func() {})
	calc = c
}

func calculatorSource() lpreport.Source {
	return calculator().Source()
}

// Ping reports service health and version
func Ping(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "success",
		"version": common.CurrentVersion.String(),
	})
}
