package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"inmoelegance/internal/adapters/exports"
	"inmoelegance/internal/core"
	"inmoelegance/internal/media"
)

func (h *Handler) handleAdminList(w http.ResponseWriter, r *http.Request) {
	filter, err := core.ParseDashboardFilter(r.URL.Query())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	items, err := h.opts.Service.FilterDashboard(r.Context(), adminID(r), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) writeListing(w http.ResponseWriter, status int, p core.Property, res core.Result) {
	writeJSON(w, status, map[string]any{"property": p, "warnings": warnings(res)})
}

func (h *Handler) handleAdminCreate(w http.ResponseWriter, r *http.Request) {
	var input core.Property
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid listing payload")
		return
	}
	created, res, err := h.opts.Service.CreateProperty(r.Context(), adminID(r), input)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", Prefix+"/admin/properties/"+created.ID)
	h.writeListing(w, http.StatusCreated, created, res)
}

func (h *Handler) handleAdminGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.opts.Service.GetProperty(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if p.AdminID != adminID(r) {
		h.writeServiceError(w, r, core.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"property": p})
}

func (h *Handler) handleAdminUpdate(w http.ResponseWriter, r *http.Request) {
	var input core.Property
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid listing payload")
		return
	}
	updated, res, err := h.opts.Service.UpdateProperty(r.Context(), adminID(r), r.PathValue("id"), input)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeListing(w, http.StatusOK, updated, res)
}

func (h *Handler) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	if _, err := h.opts.Service.DeleteProperty(r.Context(), adminID(r), r.PathValue("id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAdminToggle(w http.ResponseWriter, r *http.Request) {
	updated, res, err := h.opts.Service.TogglePropertyStatus(r.Context(), adminID(r), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeListing(w, http.StatusOK, updated, res)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.opts.Service.DashboardStats(r.Context(), adminID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleProfileGet(w http.ResponseWriter, r *http.Request) {
	profile, exists, err := h.opts.Service.GetProfile(r.Context(), adminID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": profile, "exists": exists})
}

func (h *Handler) handleProfileSave(w http.ResponseWriter, r *http.Request) {
	var input core.Profile
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile payload")
		return
	}
	saved, res, err := h.opts.Service.SaveProfile(r.Context(), adminID(r), input)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": saved, "warnings": warnings(res)})
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if h.opts.Images == nil {
		writeError(w, http.StatusServiceUnavailable, "image hosting not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, media.DefaultMaxBytes+maxBodyBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeServiceError(w, r, media.ErrTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()
	image, err := h.opts.Images.Upload(r.Context(), adminID(r), header.Filename, file)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"image": image})
}

func (h *Handler) handleLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := h.opts.Service.ListLeads(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if leads == nil {
		leads = []core.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": leads})
}

func (h *Handler) handleLeadDelete(w http.ResponseWriter, r *http.Request) {
	if _, err := h.opts.Service.DeleteLead(r.Context(), adminID(r), r.PathValue("id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleExportCreate(w http.ResponseWriter, r *http.Request) {
	if h.opts.Exports == nil {
		writeError(w, http.StatusServiceUnavailable, "exports not configured")
		return
	}
	var input exports.Input
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid export request payload")
		return
	}
	input.RequestedBy = adminID(r)
	record, err := h.opts.Exports.Enqueue(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", Prefix+"/admin/exports/"+record.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

// ownExport returns the export when it belongs to the calling admin. Exports
// of other admins are reported as missing.
func (h *Handler) ownExport(r *http.Request) (exports.Record, bool) {
	if h.opts.Exports == nil {
		return exports.Record{}, false
	}
	record, ok := h.opts.Exports.Get(r.PathValue("id"))
	if !ok || record.RequestedBy != adminID(r) {
		return exports.Record{}, false
	}
	return record, true
}

func (h *Handler) handleExportGet(w http.ResponseWriter, r *http.Request) {
	record, ok := h.ownExport(r)
	if !ok {
		h.writeServiceError(w, r, exports.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

func (h *Handler) handleExportDownload(w http.ResponseWriter, r *http.Request) {
	record, ok := h.ownExport(r)
	if !ok {
		h.writeServiceError(w, r, exports.ErrNotFound)
		return
	}
	format := exports.Format(r.PathValue("format"))
	artifact, body, err := h.opts.Exports.Open(r.Context(), record.ID, format)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	defer body.Close()
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(artifact.SizeBytes, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", string(record.Kind)+"-"+record.ID+"."+string(format)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}
