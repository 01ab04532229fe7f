// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altai

import (
	"database/sql"

	"github.com/go-gorp/gorp/v3"
	"github.com/sapcc/go-bits/easypg"

	"github.com/sapcc/altai-api/internal/models"
)

var sqlMigrations = map[string]string{
	"001_initial.up.sql": `
		CREATE TABLE instance_data (
			instance_id      TEXT        NOT NULL PRIMARY KEY,
			project_id       TEXT        NOT NULL,
			expires_at       TIMESTAMPTZ DEFAULT NULL,
			remind_at        TIMESTAMPTZ DEFAULT NULL,
			last_reminded_at TIMESTAMPTZ DEFAULT NULL
		);
		CREATE INDEX instance_data_expires_at_idx ON instance_data (expires_at);

		CREATE TABLE tokens (
			code       TEXT        NOT NULL PRIMARY KEY,
			purpose    TEXT        NOT NULL,
			user_id    TEXT        NOT NULL,
			email      TEXT        NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			complete   BOOLEAN     NOT NULL DEFAULT FALSE
		);

		CREATE TABLE audit_log (
			id             BIGSERIAL   NOT NULL PRIMARY KEY,
			resource_type  TEXT        NOT NULL,
			resource_id    TEXT        NOT NULL DEFAULT '',
			method         TEXT        NOT NULL,
			status_code    INTEGER     NOT NULL,
			user_id        TEXT        NOT NULL DEFAULT '',
			project_id     TEXT        NOT NULL DEFAULT '',
			remote_address TEXT        NOT NULL DEFAULT '',
			message        TEXT        NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE config_params (
			group_name TEXT NOT NULL,
			key        TEXT NOT NULL,
			value_json TEXT NOT NULL,
			PRIMARY KEY (group_name, key)
		);
	`,
	"001_initial.down.sql": `
		DROP TABLE config_params;
		DROP TABLE audit_log;
		DROP TABLE tokens;
		DROP TABLE instance_data;
	`,
	"002_add_instance_data_next_expiry_check_at.up.sql": `
		ALTER TABLE instance_data ADD COLUMN next_expiry_check_at TIMESTAMPTZ DEFAULT NULL;
	`,
	"002_add_instance_data_next_expiry_check_at.down.sql": `
		ALTER TABLE instance_data DROP COLUMN next_expiry_check_at;
	`,
}

// DB adds convenience functions on top of gorp.DbMap.
type DB struct {
	gorp.DbMap
}

// DBConfiguration returns the easypg.Configuration object that func Connect() or
// easypg.ConnectForTest() need to initialize the database.
func DBConfiguration() easypg.Configuration {
	return easypg.Configuration{
		Migrations: sqlMigrations,
	}
}

// InitORM wraps a database connection into a DB instance.
func InitORM(dbConn *sql.DB) *DB {
	result := &DB{DbMap: gorp.DbMap{Db: dbConn, Dialect: gorp.PostgresDialect{}}}
	result.AddTableWithName(models.InstanceData{}, "instance_data").SetKeys(false, "instance_id")
	result.AddTableWithName(models.Token{}, "tokens").SetKeys(false, "code")
	result.AddTableWithName(models.AuditRecord{}, "audit_log").SetKeys(true, "id")
	result.AddTableWithName(models.ConfigParam{}, "config_params").SetKeys(false, "group_name", "key")
	return result
}
