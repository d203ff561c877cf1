/*
 * Copyright 2025 Carelane, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package db

import "errors"

var (

	// Core database errors.

	ErrFailedOpenDB  = errors.New("failed to open database")
	ErrFailedToQuery = errors.New("failed to query")
	ErrFailedToScan  = errors.New("failed to scan")

	// Not-found lookups.

	ErrTraceNotFound         = errors.New("trace not found")
	ErrLogNotFound           = errors.New("log record not found")
	ErrAlertRuleNotFound     = errors.New("alert rule not found")
	ErrAlertInstanceNotFound = errors.New("alert instance not found")

	// Constraint violations.

	ErrRuleHasInstances        = errors.New("alert rule has recorded instances and cannot be deleted")
	ErrInvalidStatusTransition = errors.New("alert instance status can only move forward")

	// Validation.

	ErrRuleNil     = errors.New("alert rule is nil")
	ErrInstanceNil = errors.New("alert instance is nil")
)
