// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altai

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-gorp/gorp/v3"
	"github.com/lib/pq"
	"github.com/sapcc/go-bits/sqlext"
	uuid "github.com/satori/go.uuid"

	"github.com/sapcc/altai-api/internal/models"
)

////////////////////////////////////////////////////////////////////////////////
// instance_data

// FindInstanceData works similar to db.SelectOne(), but returns nil instead of
// sql.ErrNoRows if no record exists for this instance.
func FindInstanceData(db gorp.SqlExecutor, instanceID string) (*models.InstanceData, error) {
	var data models.InstanceData
	err := db.SelectOne(&data, "SELECT * FROM instance_data WHERE instance_id = $1", instanceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return &data, err
}

// ListInstanceData returns the instance_data records for the given instances,
// indexed by instance ID. Instances without a record are absent from the result.
func ListInstanceData(db gorp.SqlExecutor, instanceIDs []string) (map[string]models.InstanceData, error) {
	var records []models.InstanceData
	_, err := db.Select(&records, "SELECT * FROM instance_data WHERE instance_id = ANY($1)", pq.Array(instanceIDs))
	if err != nil {
		return nil, err
	}
	result := make(map[string]models.InstanceData, len(records))
	for _, r := range records {
		result[r.InstanceID] = r
	}
	return result, nil
}

var upsertInstanceDataQuery = sqlext.SimplifyWhitespace(`
	INSERT INTO instance_data (instance_id, project_id, expires_at, remind_at, last_reminded_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (instance_id) DO UPDATE
	   SET project_id = EXCLUDED.project_id, expires_at = EXCLUDED.expires_at,
	       remind_at = EXCLUDED.remind_at, last_reminded_at = EXCLUDED.last_reminded_at,
	       next_expiry_check_at = NULL
`)

// UpsertInstanceData creates or replaces the instance_data record for an
// instance. A pending retry of a failed expiry is reset.
func UpsertInstanceData(db gorp.SqlExecutor, data models.InstanceData) error {
	_, err := db.Exec(upsertInstanceDataQuery,
		data.InstanceID, data.ProjectID, data.ExpiresAt, data.RemindAt, data.LastRemindedAt)
	return err
}

// DeleteInstanceData removes the instance_data record for an instance, if any.
func DeleteInstanceData(db gorp.SqlExecutor, instanceID string) error {
	_, err := db.Exec("DELETE FROM instance_data WHERE instance_id = $1", instanceID)
	return err
}

////////////////////////////////////////////////////////////////////////////////
// tokens

// GenerateTokenCode returns a new random token code.
func GenerateTokenCode() string {
	return uuid.NewV4().String()
}

// CreateToken stores a new single-use token with the given code.
func CreateToken(db gorp.SqlExecutor, code string, purpose models.TokenPurpose, userID, email string, now time.Time, ttl time.Duration) (models.Token, error) {
	token := models.Token{
		Code:      code,
		Purpose:   purpose,
		UserID:    userID,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	err := db.Insert(&token)
	if err != nil {
		return models.Token{}, fmt.Errorf("while storing %s token for user %s: %w", purpose, userID, err)
	}
	return token, nil
}

// FindToken returns the token with the given code and purpose, or nil if
// there is none.
func FindToken(db gorp.SqlExecutor, purpose models.TokenPurpose, code string) (*models.Token, error) {
	var token models.Token
	err := db.SelectOne(&token, "SELECT * FROM tokens WHERE code = $1 AND purpose = $2", code, purpose)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return &token, err
}

var claimTokenQuery = sqlext.SimplifyWhitespace(`
	UPDATE tokens SET complete = TRUE
	 WHERE code = $1 AND purpose = $2 AND NOT complete AND expires_at > $3
`)

// ClaimToken marks a token as redeemed. Returns false if the token does not
// exist, has expired, or was already redeemed. When called within a
// transaction, concurrent claims of the same token wait for that transaction
// to finish, so at most one of them succeeds.
func ClaimToken(db gorp.SqlExecutor, purpose models.TokenPurpose, code string, now time.Time) (bool, error) {
	result, err := db.Exec(claimTokenQuery, code, purpose, now)
	if err != nil {
		return false, fmt.Errorf("while claiming %s token: %w", purpose, err)
	}
	rowsAffected, err := result.RowsAffected()
	return rowsAffected == 1, err
}

// DeleteExpiredTokens removes tokens that expired before the given time.
// Returns the number of deleted tokens.
func DeleteExpiredTokens(db gorp.SqlExecutor, now time.Time) (int64, error) {
	result, err := db.Exec("DELETE FROM tokens WHERE expires_at < $1", now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

////////////////////////////////////////////////////////////////////////////////
// audit_log

// InsertAuditRecord stores a new audit record and fills its ID.
func InsertAuditRecord(db gorp.SqlExecutor, record *models.AuditRecord) error {
	return db.Insert(record)
}

// ListAuditRecords returns all audit records, oldest first. Filtering and
// pagination happen in the collection layer.
func ListAuditRecords(db gorp.SqlExecutor) ([]models.AuditRecord, error) {
	var records []models.AuditRecord
	_, err := db.Select(&records, "SELECT * FROM audit_log ORDER BY id")
	return records, err
}

// FindAuditRecord returns the audit record with the given ID, or nil if there
// is none.
func FindAuditRecord(db gorp.SqlExecutor, id int64) (*models.AuditRecord, error) {
	var record models.AuditRecord
	err := db.SelectOne(&record, "SELECT * FROM audit_log WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return &record, err
}

////////////////////////////////////////////////////////////////////////////////
// config_params

// GetConfigGroup returns the decoded values of all config parameters in the
// given group.
func GetConfigGroup(db sqlext.Executor, groupName string) (map[string]any, error) {
	result := make(map[string]any)
	err := sqlext.ForeachRow(db, "SELECT key, value_json FROM config_params WHERE group_name = $1", []any{groupName},
		func(rows *sql.Rows) error {
			var (
				key       string
				valueJSON string
				value     any
			)
			err := rows.Scan(&key, &valueJSON)
			if err != nil {
				return err
			}
			err = json.Unmarshal([]byte(valueJSON), &value)
			if err != nil {
				return fmt.Errorf("malformed value for config parameter %s.%s: %w", groupName, key, err)
			}
			result[key] = value
			return nil
		},
	)
	return result, err
}

var setConfigParamQuery = sqlext.SimplifyWhitespace(`
	INSERT INTO config_params (group_name, key, value_json) VALUES ($1, $2, $3)
	ON CONFLICT (group_name, key) DO UPDATE SET value_json = EXCLUDED.value_json
`)

// SetConfigParam stores a config parameter. The value is serialized as JSON.
func SetConfigParam(db gorp.SqlExecutor, groupName, key string, value any) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = db.Exec(setConfigParamQuery, groupName, key, string(buf))
	return err
}
