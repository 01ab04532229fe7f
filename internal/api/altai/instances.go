// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altaiv1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	. "github.com/majewsky/gg/option"
	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/httpapi"

	"github.com/sapcc/altai-api/internal/altai"
	"github.com/sapcc/altai-api/internal/apierr"
	"github.com/sapcc/altai-api/internal/collection"
	"github.com/sapcc/altai-api/internal/models"
	"github.com/sapcc/altai-api/internal/schema"
)

var instanceSchema = schema.MustNewSchema([]schema.Element{
	schema.String("id"),
	schema.String("name"),
	schema.String("state"),
	schema.LinkObject("project"),
	schema.LinkObject("created-by", schema.Nullable()),
	schema.LinkObject("instance-type"),
	schema.LinkObject("image"),
	schema.IPv4("ipv4", schema.Nullable()),
	schema.Timestamp("created"),
	schema.Timestamp("updated"),
	schema.Timestamp("expires-at", schema.Nullable()),
	schema.Timestamp("remind-at", schema.Nullable()),
}, schema.Subsets{
	"updatable": {"name", "expires-at", "remind-at"},
})

// Instance creation accepts some attributes that are not reported back.
var instanceCreateSchema = schema.MustNewSchema([]schema.Element{
	schema.String("name"),
	schema.LinkObject("project"),
	schema.LinkObject("instance-type"),
	schema.LinkObject("image"),
	schema.Timestamp("expires-at", schema.Nullable()),
	schema.Timestamp("remind-at", schema.Nullable()),
	schema.LinkObject("network", schema.Nullable()),
	schema.List(schema.LinkObject("fw-rule-sets")),
	schema.String("ssh-key-name"),
}, schema.Subsets{
	"required": {"name", "project", "instance-type", "image"},
	"optional": {"expires-at", "remind-at", "network", "fw-rule-sets", "ssh-key-name"},
})

var rebootSchema = schema.MustNewSchema([]schema.Element{
	schema.Boolean("hard"),
}, nil)

// instanceLinks resolves the names of objects that instances link to.
type instanceLinks struct {
	projectNames      map[string]string
	userNames         map[string]string
	instanceTypeNames map[string]string
	imageNames        map[string]string
}

func (a *API) loadInstanceLinks(ctx context.Context) (instanceLinks, error) {
	result := instanceLinks{
		projectNames:      make(map[string]string),
		userNames:         make(map[string]string),
		instanceTypeNames: make(map[string]string),
		imageNames:        make(map[string]string),
	}
	projects, err := a.cloud.ListProjects(ctx)
	if err != nil {
		return result, err
	}
	for _, p := range projects {
		result.projectNames[p.ID] = p.Name
	}
	users, err := a.cloud.ListUsers(ctx)
	if err != nil {
		return result, err
	}
	for _, u := range users {
		result.userNames[u.ID] = u.Name
	}
	instanceTypes, err := a.cloud.ListInstanceTypes(ctx)
	if err != nil {
		return result, err
	}
	for _, t := range instanceTypes {
		result.instanceTypeNames[t.ID] = t.Name
	}
	images, err := a.cloud.ListImages(ctx)
	if err != nil {
		return result, err
	}
	for _, img := range images {
		result.imageNames[img.ID] = img.Name
	}
	return result, nil
}

func optionalTime(t Option[time.Time]) any {
	if value, ok := t.Unpack(); ok {
		return value
	}
	return nil
}

func (a *API) renderInstance(inst altai.Instance, data *models.InstanceData, links instanceLinks) collection.Resource {
	res := collection.Resource{
		"id":            inst.ID,
		"name":          inst.Name,
		"state":         inst.Status,
		"project":       a.link("projects", inst.ProjectID, links.projectNames[inst.ProjectID]),
		"created-by":    a.link("users", inst.UserID, links.userNames[inst.UserID]),
		"instance-type": a.link("instance-types", inst.InstanceTypeID, links.instanceTypeNames[inst.InstanceTypeID]),
		"image":         a.link("images", inst.ImageID, links.imageNames[inst.ImageID]),
		"ipv4":          nil,
		"created":       inst.CreatedAt,
		"updated":       inst.UpdatedAt,
		"expires-at":    nil,
		"remind-at":     nil,
		"href":          a.cfg.Href("/v1/instances/%s", inst.ID),
		"reboot-href":   a.cfg.Href("/v1/instances/%s/reboot", inst.ID),
	}
	if inst.IPv4 != "" {
		res["ipv4"] = inst.IPv4
	}
	if data != nil {
		res["expires-at"] = optionalTime(data.ExpiresAt)
		res["remind-at"] = optionalTime(data.RemindAt)
	}
	return res
}

func (a *API) handleListInstances(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/instances")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	req, ok := parseCollectionRequest(w, r, instanceSchema)
	if !ok {
		return
	}

	scope := ""
	if !uid.IsAdmin {
		if uid.ProjectID == "" {
			collection.Respond(w, "instances", nil, None[string](), req)
			return
		}
		scope = uid.ProjectID
	}
	instances, err := a.cloud.ListInstances(r.Context(), scope)
	if apierr.Respond(w, err) {
		return
	}
	links, err := a.loadInstanceLinks(r.Context())
	if apierr.Respond(w, err) {
		return
	}
	instanceIDs := make([]string, len(instances))
	for idx, inst := range instances {
		instanceIDs[idx] = inst.ID
	}
	dataByID, err := altai.ListInstanceData(a.db, instanceIDs)
	if apierr.Respond(w, err) {
		return
	}

	result := make([]collection.Resource, 0, len(instances))
	for _, inst := range instances {
		var data *models.InstanceData
		if d, exists := dataByID[inst.ID]; exists {
			data = &d
		}
		result = append(result, a.renderInstance(inst, data, links))
	}
	collection.Respond(w, "instances", result, None[string](), req)
}

// findInstance returns nil after writing a 404 if the instance does not exist
// or is not visible to the user.
func (a *API) findInstance(w http.ResponseWriter, r *http.Request, uid altai.UserIdentity) *altai.Instance {
	id := mux.Vars(r)["id"]
	inst, err := a.cloud.GetInstance(r.Context(), id)
	if respondWithCloudError(w, err, "instance %s", id) {
		return nil
	}
	if !uid.CanAccessProject(inst.ProjectID) {
		apierr.NotFound("instance %s", id).WriteTo(w)
		return nil
	}
	return &inst
}

func (a *API) respondWithInstance(w http.ResponseWriter, r *http.Request, code int, inst altai.Instance) {
	links, err := a.loadInstanceLinks(r.Context())
	if apierr.Respond(w, err) {
		return
	}
	data, err := altai.FindInstanceData(a.db, inst.ID)
	if apierr.Respond(w, err) {
		return
	}
	respondWithResource(w, code, a.renderInstance(inst, data, links))
}

func (a *API) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/instances/:id")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	inst := a.findInstance(w, r, *uid)
	if inst == nil {
		return
	}
	a.respondWithInstance(w, r, http.StatusOK, *inst)
}

// validateInstanceDates checks expires-at and remind-at against each other.
// Only the dates that were given in the request need to be in the future.
func validateInstanceDates(expiresAt, remindAt Option[time.Time], expiryGiven, reminderGiven bool, now time.Time) error {
	if t, ok := expiresAt.Unpack(); ok && expiryGiven && !t.After(now) {
		return apierr.InvalidElementValue("expires-at", "timestamp", schema.FormatTimestamp(t), "must be in the future")
	}
	if t, ok := remindAt.Unpack(); ok {
		if reminderGiven && !t.After(now) {
			return apierr.InvalidElementValue("remind-at", "timestamp", schema.FormatTimestamp(t), "must be in the future")
		}
		if e, ok := expiresAt.Unpack(); ok && !t.Before(e) {
			return apierr.InvalidElementValue("remind-at", "timestamp", schema.FormatTimestamp(t), "must be before expires-at")
		}
	}
	return nil
}

func optionFromPtr(t *time.Time) Option[time.Time] {
	if t == nil {
		return None[time.Time]()
	}
	return Some(*t)
}

func (a *API) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/instances")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	data, ok := decodeRequestBody(w, r, instanceCreateSchema.Subset("required"), instanceCreateSchema.Subset("optional"))
	if !ok {
		return
	}

	projectID := stringValue(data, "project")
	if !uid.CanAccessProject(projectID) {
		apierr.Forbidden("cannot create instances in project " + projectID).WriteTo(w)
		return
	}
	_, err := a.cloud.GetProject(r.Context(), projectID)
	if respondWithCloudError(w, err, "project %s", projectID) {
		return
	}

	err = a.checkInstanceReferences(r, *uid, data)
	if apierr.Respond(w, err) {
		return
	}

	now := a.timeNow()
	expiresAt := optionFromPtr(timeValue(data, "expires-at"))
	if _, given := data["expires-at"]; !given && a.cfg.DefaultInstanceTTL > 0 {
		expiresAt = Some(now.Add(a.cfg.DefaultInstanceTTL).Truncate(time.Second))
	}
	remindAt := optionFromPtr(timeValue(data, "remind-at"))
	err = validateInstanceDates(expiresAt, remindAt, true, true, now)
	if apierr.Respond(w, err) {
		return
	}

	var fwRuleSets []string
	if list, ok := data["fw-rule-sets"].([]any); ok {
		for _, item := range list {
			fwRuleSets = append(fwRuleSets, item.(string))
		}
	}
	inst, err := a.cloud.CreateInstance(r.Context(), altai.InstanceOpts{
		Name:           stringValue(data, "name"),
		ProjectID:      projectID,
		InstanceTypeID: stringValue(data, "instance-type"),
		ImageID:        stringValue(data, "image"),
		NetworkID:      stringValue(data, "network"),
		KeyName:        stringValue(data, "ssh-key-name"),
		FirewallRules:  fwRuleSets,
	})
	if apierr.Respond(w, err) {
		return
	}

	err = altai.UpsertInstanceData(a.db, models.InstanceData{
		InstanceID: inst.ID,
		ProjectID:  projectID,
		ExpiresAt:  expiresAt,
		RemindAt:   remindAt,
	})
	if apierr.Respond(w, err) {
		return
	}
	a.record(r, *uid, cadf.CreateAction, http.StatusCreated, "instances", inst.ID, inst.Name, projectID)
	a.respondWithInstance(w, r, http.StatusCreated, inst)
}

// checkInstanceReferences validates the objects that a new instance refers to.
func (a *API) checkInstanceReferences(r *http.Request, uid altai.UserIdentity, data map[string]any) error {
	ctx := r.Context()
	noSuch := func(name string) error {
		return apierr.InvalidElementValue(name, "link object", data[name], "no such "+name)
	}

	_, err := a.cloud.GetInstanceType(ctx, stringValue(data, "instance-type"))
	if errors.Is(err, altai.ErrNotFound) {
		return noSuch("instance-type")
	} else if err != nil {
		return err
	}

	img, err := a.cloud.GetImage(ctx, stringValue(data, "image"))
	if errors.Is(err, altai.ErrNotFound) || (err == nil && !isImageVisible(uid, img)) {
		return noSuch("image")
	} else if err != nil {
		return err
	}

	if networkID := stringValue(data, "network"); networkID != "" {
		n, err := a.cloud.GetNetwork(ctx, networkID)
		if errors.Is(err, altai.ErrNotFound) || (err == nil && !isNetworkVisible(uid, n)) {
			return noSuch("network")
		} else if err != nil {
			return err
		}
	}
	return nil
}

func (a *API) handleUpdateInstance(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/instances/:id")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	inst := a.findInstance(w, r, *uid)
	if inst == nil {
		return
	}
	data, ok := decodeRequestBody(w, r, nil, instanceSchema.Subset("updatable"))
	if !ok {
		return
	}

	record, err := altai.FindInstanceData(a.db, inst.ID)
	if apierr.Respond(w, err) {
		return
	}
	if record == nil {
		record = &models.InstanceData{InstanceID: inst.ID, ProjectID: inst.ProjectID}
	}
	_, expiryGiven := data["expires-at"]
	if expiryGiven {
		record.ExpiresAt = optionFromPtr(timeValue(data, "expires-at"))
	}
	_, reminderGiven := data["remind-at"]
	if reminderGiven {
		record.RemindAt = optionFromPtr(timeValue(data, "remind-at"))
		record.LastRemindedAt = None[time.Time]()
	}
	err = validateInstanceDates(record.ExpiresAt, record.RemindAt, expiryGiven, reminderGiven, a.timeNow())
	if apierr.Respond(w, err) {
		return
	}

	if name := stringValue(data, "name"); name != "" && name != inst.Name {
		renamed, err := a.cloud.RenameInstance(r.Context(), inst.ID, name)
		if respondWithCloudError(w, err, "instance %s", inst.ID) {
			return
		}
		inst = &renamed
	}
	if expiryGiven || reminderGiven {
		err = altai.UpsertInstanceData(a.db, *record)
		if apierr.Respond(w, err) {
			return
		}
	}
	a.record(r, *uid, cadf.UpdateAction, http.StatusOK, "instances", inst.ID, inst.Name, inst.ProjectID)
	a.respondWithInstance(w, r, http.StatusOK, *inst)
}

func (a *API) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/instances/:id")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	inst := a.findInstance(w, r, *uid)
	if inst == nil {
		return
	}

	err := a.cloud.DeleteInstance(r.Context(), inst.ID)
	if respondWithCloudError(w, err, "instance %s", inst.ID) {
		return
	}
	err = altai.DeleteInstanceData(a.db, inst.ID)
	if apierr.Respond(w, err) {
		return
	}
	a.record(r, *uid, cadf.DeleteAction, http.StatusNoContent, "instances", inst.ID, inst.Name, inst.ProjectID)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRebootInstance(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/instances/:id/reboot")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	inst := a.findInstance(w, r, *uid)
	if inst == nil {
		return
	}

	// the request body is optional
	data, err := schema.DecodeOptionalRequestObject(r, nil, rebootSchema)
	if apierr.Respond(w, err) {
		return
	}
	hard, _ := data["hard"].(bool)
	err = a.cloud.RebootInstance(r.Context(), inst.ID, hard)
	if respondWithCloudError(w, err, "instance %s", inst.ID) {
		return
	}
	a.record(r, *uid, cadf.StartAction, http.StatusAccepted, "instances", inst.ID, inst.Name, inst.ProjectID)
	a.respondWithInstance(w, r, http.StatusAccepted, *inst)
}
