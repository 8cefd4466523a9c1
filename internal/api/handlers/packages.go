package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"samedaydispatch/internal/api/dto"
	"samedaydispatch/internal/domain"
	"samedaydispatch/internal/timeutil"
)

// PackageHandler exposes read-only package state as of a chosen
// snapshot time, backed directly by the live PackageStore: the store
// is single-writer (the simulator), so handlers only ever read.
type PackageHandler struct {
	Store *domain.PackageStore
}

// List answers GET /packages[?at=HH:MM], returning every package's
// state snapshotted at the requested time (or end of day, if omitted)
// via Package.SnapshotAt — the same "time machine" query the CLI
// exposes.
func (h *PackageHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	at, err := snapshotTimeFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pkgs := h.Store.All()
	res := dto.ListPackagesResponse{
		SnapshotAt: at.String(),
		Packages:   make([]dto.PackageResponse, 0, len(pkgs)),
	}
	for _, p := range pkgs {
		res.Packages = append(res.Packages, toPackageResponse(p, at))
	}

	writeJSON(w, r, http.StatusOK, res)
}

// Get answers GET /packages/{id}.
func (h *PackageHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/packages/")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "package id must be an integer")
		return
	}

	p, ok := h.Store.ByID(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "package not found")
		return
	}

	at, err := snapshotTimeFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, r, http.StatusOK, toPackageResponse(p, at))
}

func snapshotTimeFromQuery(r *http.Request) (timeutil.TimeOfDay, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("at"))
	if raw == "" {
		return timeutil.EndOfDay, nil
	}
	return timeutil.Parse(raw)
}

func toPackageResponse(p *domain.Package, at timeutil.TimeOfDay) dto.PackageResponse {
	status := p.Status
	locName := p.Location.Name
	verified := p.IsVerifiedAddress
	note := p.SpecialNote
	if snap, ok := p.SnapshotAt(at); ok {
		status = snap.Status
		locName = snap.Location.Name
		verified = snap.IsVerifiedAddress
		note = snap.SpecialNote
	}

	return dto.PackageResponse{
		PackageID:         p.ID,
		LocationName:      locName,
		Status:            status.String(),
		IsVerifiedAddress: verified,
		Deadline:          p.Deadline.String(),
		SpecialNote:       note,
		AssignedTruckID:   p.AssignedTruckID,
	}
}
