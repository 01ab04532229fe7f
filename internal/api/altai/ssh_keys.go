// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altaiv1

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	. "github.com/majewsky/gg/option"
	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/httpapi"
	"golang.org/x/crypto/ssh"

	"github.com/sapcc/altai-api/internal/altai"
	"github.com/sapcc/altai-api/internal/apierr"
	"github.com/sapcc/altai-api/internal/collection"
	"github.com/sapcc/altai-api/internal/schema"
)

var sshKeySchema = schema.MustNewSchema([]schema.Element{
	schema.String("name"),
	schema.String("fingerprint"),
	schema.String("public-key"),
}, schema.Subsets{
	"required": {"name", "public-key"},
})

func (a *API) renderSSHKey(kp altai.KeyPair) collection.Resource {
	return collection.Resource{
		"name":        kp.Name,
		"fingerprint": kp.Fingerprint,
		"public-key":  kp.PublicKey,
		"href":        a.cfg.Href("/v1/me/ssh-keys/%s", kp.Name),
	}
}

// checkPublicKey accepts a single public key in the format of OpenSSH's
// authorized_keys file.
func checkPublicKey(value string) error {
	_, _, _, rest, err := ssh.ParseAuthorizedKey([]byte(value))
	if err != nil {
		return apierr.InvalidElementValue("public-key", "string", value, "not a valid SSH public key")
	}
	if strings.TrimSpace(string(rest)) != "" {
		return apierr.InvalidElementValue("public-key", "string", value, "only one SSH public key may be given")
	}
	return nil
}

func (a *API) handleListSSHKeys(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/me/ssh-keys")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	req, ok := parseCollectionRequest(w, r, sshKeySchema)
	if !ok {
		return
	}
	keyPairs, err := a.cloud.ListKeyPairs(r.Context(), uid.UserID)
	if apierr.Respond(w, err) {
		return
	}
	result := make([]collection.Resource, len(keyPairs))
	for idx, kp := range keyPairs {
		result[idx] = a.renderSSHKey(kp)
	}
	collection.Respond(w, "ssh-keys", result, Some(a.cfg.Href("/v1/me")), req)
}

func (a *API) handleGetSSHKey(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/me/ssh-keys/:name")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	name := mux.Vars(r)["name"]
	kp, err := a.cloud.GetKeyPair(r.Context(), uid.UserID, name)
	if respondWithCloudError(w, err, "SSH key %s", name) {
		return
	}
	respondWithResource(w, http.StatusOK, a.renderSSHKey(kp))
}

func (a *API) handleCreateSSHKey(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/me/ssh-keys")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	data, ok := decodeRequestBody(w, r, sshKeySchema.Subset("required"), nil)
	if !ok {
		return
	}
	name := stringValue(data, "name")
	publicKey := strings.TrimSpace(stringValue(data, "public-key"))
	err := checkPublicKey(publicKey)
	if apierr.Respond(w, err) {
		return
	}

	_, err = a.cloud.GetKeyPair(r.Context(), uid.UserID, name)
	switch {
	case err == nil:
		apierr.Conflict("SSH key %s already exists", name).WriteTo(w)
		return
	case !errors.Is(err, altai.ErrNotFound):
		apierr.Respond(w, err)
		return
	}

	kp, err := a.cloud.CreateKeyPair(r.Context(), uid.UserID, name, publicKey)
	if apierr.Respond(w, err) {
		return
	}
	a.record(r, *uid, cadf.CreateAction, http.StatusCreated, "ssh-keys", kp.Name, kp.Name, uid.ProjectID)
	respondWithResource(w, http.StatusCreated, a.renderSSHKey(kp))
}

func (a *API) handleDeleteSSHKey(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/me/ssh-keys/:name")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	name := mux.Vars(r)["name"]
	err := a.cloud.DeleteKeyPair(r.Context(), uid.UserID, name)
	if respondWithCloudError(w, err, "SSH key %s", name) {
		return
	}
	a.record(r, *uid, cadf.DeleteAction, http.StatusNoContent, "ssh-keys", name, name, uid.ProjectID)
	w.WriteHeader(http.StatusNoContent)
}
