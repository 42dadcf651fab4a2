// Package devserver is an in-process implementation of the shop API for
// development and end-to-end tests: cursor-paginated order and ticket
// streams, batch ticket patching with idempotency replay, sealed
// registration listings, and fault injection knobs.
package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/venuekit/turnstile/internal/types"
	"github.com/venuekit/turnstile/internal/validation"
)

// maxPageLimit caps the page size a client may request.
const maxPageLimit = 500

// defaultPageLimit applies when the limit parameter is absent.
const defaultPageLimit = 100

// Handler implements the API handlers over a fixture State.
type Handler struct {
	state   *State
	token   string
	version string
	Faults  *Faults
}

// NewHandler creates a Handler serving state, authenticating with token.
func NewHandler(state *State, token, version string) *Handler {
	return &Handler{
		state:   state,
		token:   token,
		version: version,
		Faults:  &Faults{},
	}
}

// Health returns fixture counts. Unauthenticated.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	orders, tickets, registrations := h.state.Counts()
	writeJSON(w, map[string]any{
		"status":        "ok",
		"version":       h.version,
		"orders":        orders,
		"tickets":       tickets,
		"registrations": registrations,
	})
}

// Orders handles GET /api/shops/{shop}/orders.
func (h *Handler) Orders(w http.ResponseWriter, r *http.Request) {
	filter, limit, err := parsePageQuery(r)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, h.state.ListOrders(filter, limit))
}

// Tickets handles GET /api/shops/{shop}/tickets.
func (h *Handler) Tickets(w http.ResponseWriter, r *http.Request) {
	filter, limit, err := parsePageQuery(r)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, h.state.ListTickets(filter, limit))
}

// patchEntry is the wire shape of one ticket patch.
type patchEntry struct {
	Secret      string     `json:"secret" validate:"required"`
	CheckedIn   *bool      `json:"checkedIn"`
	CheckedInAt *time.Time `json:"checkedInAt"`
	HolderName  *string    `json:"holderName"`
}

// patchBody is the batch PATCH request body.
type patchBody struct {
	Patches []patchEntry `json:"patches" validate:"required,min=1,max=100,dive"`
}

// PatchTickets handles PATCH /api/shops/{shop}/tickets.
func (h *Handler) PatchTickets(w http.ResponseWriter, r *http.Request) {
	var body patchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	if errs := validation.Struct(body); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	patches := make([]types.TicketPatch, 0, len(body.Patches))
	for _, p := range body.Patches {
		patches = append(patches, types.TicketPatch{
			Secret:      p.Secret,
			CheckedIn:   p.CheckedIn,
			CheckedInAt: p.CheckedInAt,
			HolderName:  p.HolderName,
		})
	}

	resp := h.state.ApplyPatches(patches, r.Header.Get("Idempotency-Key"))
	writeJSON(w, resp)
}

// Registrations handles GET /api/orgs/{org}/registrations.
func (h *Handler) Registrations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, types.RegistrationList{Results: h.state.Registrations()})
}

// Groups handles GET /api/orgs/{org}/groups.
func (h *Handler) Groups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, types.GroupList{Results: h.state.Groups()})
}

// parsePageQuery extracts the cursor filter and limit from the request.
func parsePageQuery(r *http.Request) (types.CursorFilter, int, error) {
	var filter types.CursorFilter
	q := r.URL.Query()

	if v := q.Get("updatedSince"); v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return filter, 0, fmt.Errorf("invalid updatedSince: %s", err.Error())
		}
		filter.UpdatedSince = &ts
	}
	filter.TieBreak = q.Get("tieBreak")

	limit := defaultPageLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return filter, 0, fmt.Errorf("invalid limit: %q", v)
		}
		limit = n
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return filter, limit, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
