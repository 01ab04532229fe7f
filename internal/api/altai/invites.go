// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altaiv1

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/altai-api/internal/altai"
	"github.com/sapcc/altai-api/internal/apierr"
	"github.com/sapcc/altai-api/internal/collection"
	"github.com/sapcc/altai-api/internal/models"
	"github.com/sapcc/altai-api/internal/schema"
)

var acceptInviteSchema = schema.MustNewSchema([]schema.Element{
	schema.String("password"),
	schema.String("fullname", schema.AllowEmpty()),
}, schema.Subsets{
	"required": {"password"},
	"optional": {"fullname"},
})

var requestPasswordResetSchema = schema.MustNewSchema([]schema.Element{
	schema.String("name"),
	schema.String("email"),
}, nil)

var completePasswordResetSchema = schema.MustNewSchema([]schema.Element{
	schema.String("password"),
}, nil)

// findToken returns nil after writing a 404 if there is no usable token with
// this code and purpose. Expired and redeemed tokens look like missing ones.
func (a *API) findToken(w http.ResponseWriter, r *http.Request, purpose models.TokenPurpose) *models.Token {
	code := mux.Vars(r)["code"]
	token, err := altai.FindToken(a.db, purpose, code)
	if apierr.Respond(w, err) {
		return nil
	}
	if token == nil || !token.IsUsable(a.timeNow()) {
		apierr.NotFound("%s code", purpose).WriteTo(w)
		return nil
	}
	return token
}

func (a *API) renderToken(token models.Token, u altai.User, path string) collection.Resource {
	return collection.Resource{
		"code":       token.Code,
		"user":       a.link("users", u.ID, u.Name),
		"email":      token.Email,
		"expires-at": token.ExpiresAt,
		"href":       a.cfg.Href("%s/%s", path, token.Code),
	}
}

// redeemToken claims the token and applies the given change to the token's
// user. The claim is rolled back if the change fails. The change is audited
// with the token's user as the initiator.
func (a *API) redeemToken(w http.ResponseWriter, r *http.Request, token models.Token, opts altai.UserOpts) (altai.User, bool) {
	tx, err := a.db.Begin()
	if apierr.Respond(w, err) {
		return altai.User{}, false
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	claimed, err := altai.ClaimToken(tx, token.Purpose, token.Code, a.timeNow())
	if apierr.Respond(w, err) {
		return altai.User{}, false
	}
	if !claimed {
		apierr.NotFound("%s code", token.Purpose).WriteTo(w)
		return altai.User{}, false
	}
	u, err := a.cloud.UpdateUser(r.Context(), token.UserID, opts)
	if respondWithCloudError(w, err, "user %s", token.UserID) {
		return altai.User{}, false
	}
	err = tx.Commit()
	if apierr.Respond(w, err) {
		return altai.User{}, false
	}
	uid := altai.UserIdentity{UserID: u.ID, UserName: u.Name}
	a.record(r, uid, cadf.UpdateAction, http.StatusOK, "users", u.ID, u.Name, "")
	return u, true
}

////////////////////////////////////////////////////////////////////////////////
// invites

func (a *API) handleGetInvite(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/invites/:code")
	token := a.findToken(w, r, models.InviteToken)
	if token == nil {
		return
	}
	u, err := a.cloud.GetUser(r.Context(), token.UserID)
	if respondWithCloudError(w, err, "%s code", token.Purpose) {
		return
	}
	respondWithResource(w, http.StatusOK, a.renderToken(*token, u, "/v1/invites"))
}

func (a *API) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/invites/:code")
	token := a.findToken(w, r, models.InviteToken)
	if token == nil {
		return
	}
	data, ok := decodeRequestBody(w, r, acceptInviteSchema.Subset("required"), acceptInviteSchema.Subset("optional"))
	if !ok {
		return
	}

	enabled := true
	u, ok := a.redeemToken(w, r, *token, altai.UserOpts{
		FullName: optionalString(data, "fullname"),
		Password: stringValue(data, "password"),
		Enabled:  &enabled,
	})
	if !ok {
		return
	}
	a.respondWithUser(w, r, http.StatusOK, u, nil)
}

////////////////////////////////////////////////////////////////////////////////
// password reset

func (a *API) checkPasswordResetEnabled(w http.ResponseWriter) bool {
	var settings passwordResetSettings
	err := decodeConfigGroup(a.db, "password-reset", &settings)
	if apierr.Respond(w, err) {
		return false
	}
	if !settings.Enabled {
		apierr.Forbidden("password reset is disabled").WriteTo(w)
		return false
	}
	return true
}

func (a *API) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/reset-password")
	if !a.checkPasswordResetEnabled(w) {
		return
	}
	data, ok := decodeRequestBody(w, r, nil, requestPasswordResetSchema)
	if !ok {
		return
	}
	name, email := stringValue(data, "name"), stringValue(data, "email")
	if name == "" && email == "" {
		apierr.InvalidRequest("either name or email must be given").WriteTo(w)
		return
	}

	users, err := a.cloud.ListUsers(r.Context())
	if apierr.Respond(w, err) {
		return
	}
	for _, u := range users {
		if !u.Enabled || (name != "" && u.Name != name) || (email != "" && u.Email != email) {
			continue
		}
		token, err := altai.CreateToken(a.db, a.generateTokenCode(), models.ResetPasswordToken, u.ID, u.Email, a.timeNow(), a.cfg.ResetTokenTTL)
		if apierr.Respond(w, err) {
			return
		}
		logg.Info("issued password reset code for user %s (%s), valid until %s", u.ID, u.Name, token.ExpiresAt.Format(time.RFC3339))
		logg.Debug("password reset code for user %s is %s", u.ID, token.Code)
		break
	}

	// the response does not reveal whether a matching user exists
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleGetPasswordReset(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/reset-password/:code")
	if !a.checkPasswordResetEnabled(w) {
		return
	}
	token := a.findToken(w, r, models.ResetPasswordToken)
	if token == nil {
		return
	}
	u, err := a.cloud.GetUser(r.Context(), token.UserID)
	if respondWithCloudError(w, err, "%s code", token.Purpose) {
		return
	}
	respondWithResource(w, http.StatusOK, a.renderToken(*token, u, "/v1/reset-password"))
}

func (a *API) handleCompletePasswordReset(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/reset-password/:code")
	if !a.checkPasswordResetEnabled(w) {
		return
	}
	token := a.findToken(w, r, models.ResetPasswordToken)
	if token == nil {
		return
	}
	data, ok := decodeRequestBody(w, r, completePasswordResetSchema, nil)
	if !ok {
		return
	}

	_, ok = a.redeemToken(w, r, *token, altai.UserOpts{
		Password: stringValue(data, "password"),
	})
	if !ok {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
