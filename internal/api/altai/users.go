// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altaiv1

import (
	"net/http"
	"net/mail"
	"slices"
	"strings"

	"github.com/gorilla/mux"
	. "github.com/majewsky/gg/option"
	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/altai-api/internal/altai"
	"github.com/sapcc/altai-api/internal/apierr"
	"github.com/sapcc/altai-api/internal/collection"
	"github.com/sapcc/altai-api/internal/models"
	"github.com/sapcc/altai-api/internal/schema"
)

var userSchema = schema.MustNewSchema([]schema.Element{
	schema.String("id"),
	schema.String("name"),
	schema.String("fullname", schema.AllowEmpty()),
	schema.String("email"),
	schema.Boolean("enabled"),
	schema.Boolean("admin"),
	schema.List(schema.LinkObject("projects")),
}, nil)

var userCreateSchema = schema.MustNewSchema([]schema.Element{
	schema.String("name"),
	schema.String("email"),
	schema.String("fullname", schema.AllowEmpty()),
	schema.String("password"),
	schema.Boolean("admin"),
	schema.Boolean("invite"),
}, schema.Subsets{
	"required": {"name", "email"},
	"optional": {"fullname", "password", "admin", "invite"},
})

var userUpdateSchema = schema.MustNewSchema([]schema.Element{
	schema.String("name"),
	schema.String("fullname", schema.AllowEmpty()),
	schema.String("email"),
	schema.String("password"),
	schema.Boolean("enabled"),
	schema.Boolean("admin"),
}, schema.Subsets{
	// users that are not admins may only change these on their own account
	"self": {"fullname", "email", "password"},
})

func (a *API) renderUser(u altai.User, projectNames map[string]string) collection.Resource {
	projects := make([]any, len(u.ProjectIDs))
	for idx, projectID := range u.ProjectIDs {
		projects[idx] = a.link("projects", projectID, projectNames[projectID])
	}
	return collection.Resource{
		"id":       u.ID,
		"name":     u.Name,
		"fullname": u.FullName,
		"email":    u.Email,
		"enabled":  u.Enabled,
		"admin":    u.IsAdmin,
		"projects": projects,
		"href":     a.cfg.Href("/v1/users/%s", u.ID),
	}
}

func (a *API) respondWithUser(w http.ResponseWriter, r *http.Request, code int, u altai.User, extra map[string]any) {
	names, err := a.projectNames(r)
	if apierr.Respond(w, err) {
		return
	}
	res := a.renderUser(u, names)
	for key, value := range extra {
		res[key] = value
	}
	respondWithResource(w, code, res)
}

func validateEmail(data map[string]any) error {
	email, ok := data["email"].(string)
	if !ok {
		return nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apierr.InvalidElementValue("email", "string", email, "not a valid email address")
	}
	return nil
}

// checkUserNameAvailable returns a Conflict error if another user already has
// the given name.
func (a *API) checkUserNameAvailable(r *http.Request, name, ownID string) error {
	users, err := a.cloud.ListUsers(r.Context())
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.Name == name && u.ID != ownID {
			return apierr.Conflict("user name %q is already in use", name)
		}
	}
	return nil
}

func boolPtr(data map[string]any, key string) *bool {
	b, ok := data[key].(bool)
	if !ok {
		return nil
	}
	return &b
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/users")
	if a.authenticateAdmin(w, r) == nil {
		return
	}
	req, ok := parseCollectionRequest(w, r, userSchema)
	if !ok {
		return
	}
	users, err := a.cloud.ListUsers(r.Context())
	if apierr.Respond(w, err) {
		return
	}
	names, err := a.projectNames(r)
	if apierr.Respond(w, err) {
		return
	}

	result := make([]collection.Resource, len(users))
	for idx, u := range users {
		result[idx] = a.renderUser(u, names)
	}
	collection.Respond(w, "users", result, None[string](), req)
}

// findUser returns nil after writing an error response if the user does not
// exist. Users that are not admins can only see themselves.
func (a *API) findUser(w http.ResponseWriter, r *http.Request, uid altai.UserIdentity, id string) *altai.User {
	if !uid.IsAdmin && uid.UserID != id {
		apierr.NotFound("user %s", id).WriteTo(w)
		return nil
	}
	u, err := a.cloud.GetUser(r.Context(), id)
	if respondWithCloudError(w, err, "user %s", id) {
		return nil
	}
	return &u
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/users/:id")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	u := a.findUser(w, r, *uid, mux.Vars(r)["id"])
	if u == nil {
		return
	}
	a.respondWithUser(w, r, http.StatusOK, *u, nil)
}

func (a *API) handleGetMe(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/me")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	u := a.findUser(w, r, *uid, uid.UserID)
	if u == nil {
		return
	}
	a.respondWithUser(w, r, http.StatusOK, *u, map[string]any{
		"project":       a.link("projects", uid.ProjectID, uid.ProjectName),
		"ssh-keys-href": a.cfg.Href("/v1/me/ssh-keys"),
	})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/users")
	uid := a.authenticateAdmin(w, r)
	if uid == nil {
		return
	}
	data, ok := decodeRequestBody(w, r, userCreateSchema.Subset("required"), userCreateSchema.Subset("optional"))
	if !ok {
		return
	}
	err := validateEmail(data)
	if apierr.Respond(w, err) {
		return
	}
	name := stringValue(data, "name")
	err = a.checkUserNameAvailable(r, name, "")
	if apierr.Respond(w, err) {
		return
	}

	opts := altai.UserOpts{
		Name:     name,
		FullName: optionalString(data, "fullname"),
		Email:    stringValue(data, "email"),
		Password: stringValue(data, "password"),
		IsAdmin:  boolPtr(data, "admin"),
	}
	invite, _ := data["invite"].(bool)
	if invite {
		err := a.checkInvitesAllowed(opts.Email)
		if apierr.Respond(w, err) {
			return
		}
		// invited users choose their password when accepting the invite
		if opts.Password != "" {
			apierr.InvalidRequest("password cannot be set for invited users").WriteTo(w)
			return
		}
		disabled := false
		opts.Enabled = &disabled
	} else if opts.Password == "" {
		apierr.MissingElement("password").WriteTo(w)
		return
	}

	u, err := a.cloud.CreateUser(r.Context(), opts)
	if apierr.Respond(w, err) {
		return
	}
	var extra map[string]any
	if invite {
		token, err := altai.CreateToken(a.db, a.generateTokenCode(), models.InviteToken, u.ID, u.Email, a.timeNow(), a.cfg.InviteTTL)
		if err != nil {
			// without an invite code, nobody could ever log in as this user
			deleteErr := a.cloud.DeleteUser(r.Context(), u.ID)
			if deleteErr != nil {
				logg.Error("could not clean up user %s after failed invite: %s", u.ID, deleteErr.Error())
			}
			apierr.Respond(w, err)
			return
		}
		extra = map[string]any{"invite-code": token.Code}
	}
	a.record(r, *uid, cadf.CreateAction, http.StatusCreated, "users", u.ID, u.Name, "")
	a.respondWithUser(w, r, http.StatusCreated, u, extra)
}

// checkInvitesAllowed returns an error if the "invitations" config group
// forbids inviting a user with the given email address.
func (a *API) checkInvitesAllowed(email string) error {
	var settings invitationSettings
	err := decodeConfigGroup(a.db, "invitations", &settings)
	if err != nil {
		return err
	}
	if !settings.Enabled {
		return apierr.Forbidden("invitations are disabled")
	}
	if len(settings.DomainsAllowed) == 0 {
		return nil
	}
	_, domain, _ := strings.Cut(email, "@")
	if !slices.ContainsFunc(settings.DomainsAllowed, func(d string) bool { return strings.EqualFold(d, domain) }) {
		return apierr.InvalidElementValue("email", "string", email, "email domain is not allowed for invitations")
	}
	return nil
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/users/:id")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	u := a.findUser(w, r, *uid, mux.Vars(r)["id"])
	if u == nil {
		return
	}
	allowed := userUpdateSchema
	if !uid.IsAdmin {
		allowed = userUpdateSchema.Subset("self")
	}
	data, ok := decodeRequestBody(w, r, nil, allowed)
	if !ok {
		return
	}
	err := validateEmail(data)
	if apierr.Respond(w, err) {
		return
	}
	if name := stringValue(data, "name"); name != "" {
		err = a.checkUserNameAvailable(r, name, u.ID)
		if apierr.Respond(w, err) {
			return
		}
	}
	if enabled := boolPtr(data, "enabled"); enabled != nil && !*enabled && u.ID == uid.UserID {
		apierr.Conflict("cannot disable your own account").WriteTo(w)
		return
	}

	updated, err := a.cloud.UpdateUser(r.Context(), u.ID, altai.UserOpts{
		Name:     stringValue(data, "name"),
		FullName: optionalString(data, "fullname"),
		Email:    stringValue(data, "email"),
		Password: stringValue(data, "password"),
		Enabled:  boolPtr(data, "enabled"),
		IsAdmin:  boolPtr(data, "admin"),
	})
	if respondWithCloudError(w, err, "user %s", u.ID) {
		return
	}
	a.record(r, *uid, cadf.UpdateAction, http.StatusOK, "users", u.ID, updated.Name, "")
	a.respondWithUser(w, r, http.StatusOK, updated, nil)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/users/:id")
	uid := a.authenticateAdmin(w, r)
	if uid == nil {
		return
	}
	u := a.findUser(w, r, *uid, mux.Vars(r)["id"])
	if u == nil {
		return
	}
	if u.ID == uid.UserID {
		apierr.Conflict("cannot delete your own account").WriteTo(w)
		return
	}

	err := a.cloud.DeleteUser(r.Context(), u.ID)
	if respondWithCloudError(w, err, "user %s", u.ID) {
		return
	}
	a.record(r, *uid, cadf.DeleteAction, http.StatusNoContent, "users", u.ID, u.Name, "")
	w.WriteHeader(http.StatusNoContent)
}
