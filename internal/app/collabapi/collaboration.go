package collabapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/venue-ops/collab/internal/app/identity"
	"github.com/venue-ops/collab/internal/app/lifecycle"
	"github.com/venue-ops/collab/internal/app/query"
	"github.com/venue-ops/collab/internal/collab"
)

type createEventRequest struct {
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

type messageRequest struct {
	Content string `json:"content"`
}

type shareFileRequest struct {
	FileName string `json:"file_name"`
	FileURL  string `json:"file_url"`
	Note     string `json:"note"`
}

type resultResponse struct {
	lifecycle.Result
	Warnings []string `json:"warnings,omitempty"`
}

type timelineResponse struct {
	InvitationID string                `json:"invitation_id"`
	Offset       uint64                `json:"offset"`
	Entries      []query.TimelineEntry `json:"entries"`
}

func respond(res lifecycle.Result) resultResponse {
	return resultResponse{Result: res, Warnings: res.WarningMessages()}
}

func (h *Handler) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims.Kind != identity.KindOrganizer {
		h.writeError(w, http.StatusForbidden, "only organizers can schedule events")
		return
	}
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	evt, err := h.Events.Schedule(r.Context(), claims.Subject, req.Name, req.StartsAt)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, evt)
}

func (h *Handler) handleEventRoster(w http.ResponseWriter, r *http.Request) {
	view, err := h.Reads.EventRoster(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	views, err := h.Reads.ListInvitationsForUser(r.Context(), claims.Subject, queryLimit(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims.Kind != identity.KindOrganizer {
		h.writeError(w, http.StatusForbidden, "only organizers can send invitations")
		return
	}
	var req lifecycle.InvitationFields
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	actor := collab.Actor{ID: claims.Subject, Role: collab.RoleClub}
	res, err := h.Lifecycle.CreateInvitation(r.Context(), actor, req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, respond(res))
}

// actor resolves which side of the invitation in the URL the caller is on.
// It writes the error response itself and reports false on failure.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (collab.Actor, string, bool) {
	invitationID := chi.URLParam(r, "invitationID")
	inv, err := h.Lifecycle.Invitation(r.Context(), invitationID)
	if err != nil {
		h.writeDomainError(w, err)
		return collab.Actor{}, "", false
	}
	actor, err := collab.ActorFor(inv, claimsFromContext(r.Context()).Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return collab.Actor{}, "", false
	}
	return actor, inv.ID, true
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	_, invitationID, ok := h.actor(w, r)
	if !ok {
		return
	}
	snap, err := h.Lifecycle.Snapshot(r.Context(), invitationID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	_, invitationID, ok := h.actor(w, r)
	if !ok {
		return
	}
	entries, err := h.Reads.Timeline(r.Context(), invitationID, queryLimit(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	offset, err := h.Reads.GetInvitationProjectionOffset(r.Context(), invitationID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, timelineResponse{InvitationID: invitationID, Offset: offset, Entries: entries})
}

func (h *Handler) handleRefreshInvitation(w http.ResponseWriter, r *http.Request) {
	_, invitationID, ok := h.actor(w, r)
	if !ok {
		return
	}
	res, err := h.Lifecycle.Refresh(r.Context(), invitationID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, respond(res))
}

func (h *Handler) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	actor, invitationID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req changeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	target, err := collab.ParseStatus(req.Status)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	res, err := h.Lifecycle.ChangeStatus(r.Context(), actor, invitationID, target)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, respond(res))
}

func (h *Handler) handleCreateMilestone(w http.ResponseWriter, r *http.Request) {
	actor, invitationID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req lifecycle.MilestoneFields
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	res, err := h.Lifecycle.CreateMilestone(r.Context(), actor, invitationID, req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, respond(res))
}

func (h *Handler) handleUpdateMilestone(w http.ResponseWriter, r *http.Request) {
	actor, invitationID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req lifecycle.MilestonePatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	res, err := h.Lifecycle.UpdateMilestone(r.Context(), actor, invitationID, chi.URLParam(r, "milestoneID"), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, respond(res))
}

func (h *Handler) handleDeleteMilestone(w http.ResponseWriter, r *http.Request) {
	actor, invitationID, ok := h.actor(w, r)
	if !ok {
		return
	}
	res, err := h.Lifecycle.DeleteMilestone(r.Context(), actor, invitationID, chi.URLParam(r, "milestoneID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	// A delete that moved the status or left warnings reports the cycle.
	if res.StatusChanged || len(res.Warnings) > 0 {
		h.writeJSON(w, http.StatusOK, respond(res))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	actor, invitationID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	msg, err := h.Lifecycle.PostMessage(r.Context(), actor, invitationID, req.Content)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) handleShareFile(w http.ResponseWriter, r *http.Request) {
	actor, invitationID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req shareFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	msg, err := h.Lifecycle.ShareFile(r.Context(), actor, invitationID, req.FileName, req.FileURL, req.Note)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, msg)
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("limit")))
	if err != nil {
		return 0
	}
	return limit
}
