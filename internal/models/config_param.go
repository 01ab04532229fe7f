// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package models

// ConfigParam contains a record from the `config_params` table. Values are
// stored as JSON.
type ConfigParam struct {
	GroupName string `db:"group_name"`
	Key       string `db:"key"`
	ValueJSON string `db:"value_json"`
}
