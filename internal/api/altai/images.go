// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altaiv1

import (
	"net/http"

	"github.com/gorilla/mux"
	. "github.com/majewsky/gg/option"
	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/httpapi"

	"github.com/sapcc/altai-api/internal/altai"
	"github.com/sapcc/altai-api/internal/apierr"
	"github.com/sapcc/altai-api/internal/collection"
	"github.com/sapcc/altai-api/internal/schema"
)

var imageSchema = schema.MustNewSchema([]schema.Element{
	schema.String("id"),
	schema.String("name"),
	schema.String("status"),
	schema.String("disk-format"),
	schema.String("container-format"),
	schema.LinkObject("project", schema.Nullable()),
	schema.Boolean("global"),
	schema.Int("size", schema.Nullable()),
	schema.Timestamp("created"),
}, schema.Subsets{
	"updatable": {"name", "global"},
})

// isImageVisible returns whether the user may see the image. Global images
// are visible to everyone.
func isImageVisible(uid altai.UserIdentity, img altai.Image) bool {
	return img.Global || uid.CanAccessProject(img.OwnerProjectID)
}

func (a *API) renderImage(img altai.Image, projectNames map[string]string) collection.Resource {
	res := collection.Resource{
		"id":               img.ID,
		"name":             img.Name,
		"status":           img.Status,
		"disk-format":      img.DiskFormat,
		"container-format": img.ContainerFormat,
		"project":          a.link("projects", img.OwnerProjectID, projectNames[img.OwnerProjectID]),
		"global":           img.Global,
		"size":             nil,
		"created":          img.CreatedAt,
		"href":             a.cfg.Href("/v1/images/%s", img.ID),
	}
	if img.SizeBytes > 0 {
		res["size"] = img.SizeBytes
	}
	return res
}

func (a *API) projectNames(r *http.Request) (map[string]string, error) {
	projects, err := a.cloud.ListProjects(r.Context())
	if err != nil {
		return nil, err
	}
	result := make(map[string]string, len(projects))
	for _, p := range projects {
		result[p.ID] = p.Name
	}
	return result, nil
}

func (a *API) handleListImages(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/images")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	req, ok := parseCollectionRequest(w, r, imageSchema)
	if !ok {
		return
	}
	images, err := a.cloud.ListImages(r.Context())
	if apierr.Respond(w, err) {
		return
	}
	names, err := a.projectNames(r)
	if apierr.Respond(w, err) {
		return
	}

	result := make([]collection.Resource, 0, len(images))
	for _, img := range images {
		if isImageVisible(*uid, img) {
			result = append(result, a.renderImage(img, names))
		}
	}
	collection.Respond(w, "images", result, None[string](), req)
}

func (a *API) findImage(w http.ResponseWriter, r *http.Request, uid altai.UserIdentity) *altai.Image {
	id := mux.Vars(r)["id"]
	img, err := a.cloud.GetImage(r.Context(), id)
	if respondWithCloudError(w, err, "image %s", id) {
		return nil
	}
	if !isImageVisible(uid, img) {
		apierr.NotFound("image %s", id).WriteTo(w)
		return nil
	}
	return &img
}

func (a *API) respondWithImage(w http.ResponseWriter, r *http.Request, code int, img altai.Image) {
	names, err := a.projectNames(r)
	if apierr.Respond(w, err) {
		return
	}
	respondWithResource(w, code, a.renderImage(img, names))
}

func (a *API) handleGetImage(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/images/:id")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	img := a.findImage(w, r, *uid)
	if img == nil {
		return
	}
	a.respondWithImage(w, r, http.StatusOK, *img)
}

// canModifyImage returns whether the user may change or delete the image.
// Global images can only be modified by admins, even if they belong to the
// user's project.
func canModifyImage(uid altai.UserIdentity, img altai.Image) bool {
	if uid.IsAdmin {
		return true
	}
	return !img.Global && uid.CanAccessProject(img.OwnerProjectID)
}

func (a *API) handleUpdateImage(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/images/:id")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	img := a.findImage(w, r, *uid)
	if img == nil {
		return
	}
	if !canModifyImage(*uid, *img) {
		apierr.Forbidden("cannot modify image " + img.ID).WriteTo(w)
		return
	}
	data, ok := decodeRequestBody(w, r, nil, imageSchema.Subset("updatable"))
	if !ok {
		return
	}

	var opts altai.ImageOpts
	if name, ok := data["name"].(string); ok {
		opts.Name = &name
	}
	if global, ok := data["global"].(bool); ok {
		if !uid.IsAdmin && global != img.Global {
			apierr.Forbidden("only administrators can change the visibility of images").WriteTo(w)
			return
		}
		opts.Global = &global
	}
	updated, err := a.cloud.UpdateImage(r.Context(), img.ID, opts)
	if respondWithCloudError(w, err, "image %s", img.ID) {
		return
	}
	a.record(r, *uid, cadf.UpdateAction, http.StatusOK, "images", img.ID, updated.Name, img.OwnerProjectID)
	a.respondWithImage(w, r, http.StatusOK, updated)
}

func (a *API) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/images/:id")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	img := a.findImage(w, r, *uid)
	if img == nil {
		return
	}
	if !canModifyImage(*uid, *img) {
		apierr.Forbidden("cannot delete image " + img.ID).WriteTo(w)
		return
	}

	err := a.cloud.DeleteImage(r.Context(), img.ID)
	if respondWithCloudError(w, err, "image %s", img.ID) {
		return
	}
	a.record(r, *uid, cadf.DeleteAction, http.StatusNoContent, "images", img.ID, img.Name, img.OwnerProjectID)
	w.WriteHeader(http.StatusNoContent)
}
