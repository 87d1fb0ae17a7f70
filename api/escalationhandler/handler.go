package escalationhandler

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/heirloom/api"
	"github.com/ruteri/heirloom/escalation"
	"github.com/ruteri/heirloom/escrow"
	"github.com/ruteri/heirloom/interfaces"
)

// maxBodySize is the maximum allowed request body size (64KB).
const maxBodySize = 64 * 1024

// Handler serves the escalation and escrow API.
type Handler struct {
	escalations *escalation.Service
	escrow      *escrow.Service
	log         *slog.Logger
}

func NewHandler(escalations *escalation.Service, escrowService *escrow.Service, log *slog.Logger) *Handler {
	return &Handler{
		escalations: escalations,
		escrow:      escrowService,
		log:         log,
	}
}

// RegisterRoutes mounts the handler's routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/claims", h.HandleFileClaim)
	r.Post("/api/heartbeats", h.HandleArmHeartbeat)

	r.Route("/api/escalations/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Get("/events", h.HandleEvents)
		r.Post("/checkin", h.HandleCheckIn)
		r.Post("/respond", h.HandleRespond)
		r.Post("/reject", h.HandleReject)
		r.Get("/release", h.HandleRelease)
	})

	r.Post("/api/secrets", h.HandleProtect)
	r.Delete("/api/secrets/{content_id}", h.HandleForget)
}

func (h *Handler) HandleFileClaim(w http.ResponseWriter, r *http.Request) {
	var req escalation.ClaimRequest
	if !h.decode(w, r, &req) {
		return
	}

	e, err := h.escalations.FileClaim(r.Context(), req)
	if err != nil {
		h.fail(w, "Failed to file claim", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, entityResponse(e))
}

func (h *Handler) HandleArmHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req escalation.HeartbeatRequest
	if !h.decode(w, r, &req) {
		return
	}

	e, err := h.escalations.ArmHeartbeat(r.Context(), req)
	if err != nil {
		h.fail(w, "Failed to arm heartbeat", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, entityResponse(e))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	e, err := h.escalations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to load escalation", err)
		return
	}
	h.writeJSON(w, http.StatusOK, entityResponse(e))
}

func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	events, err := h.escalations.Events(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to load events", err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.EventsResponse{EntityID: id, Events: events})
}

func (h *Handler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	e, err := h.escalations.CheckIn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to check in", err)
		return
	}
	h.writeJSON(w, http.StatusOK, entityResponse(e))
}

// HandleRespond accepts the owner's signed response. The body is
// api.RespondRequest with a hex signature, 0x prefix optional.
func (h *Handler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	var req api.RespondRequest
	if !h.decode(w, r, &req) {
		return
	}

	signature, err := hex.DecodeString(strings.TrimPrefix(req.Signature, "0x"))
	if err != nil {
		http.Error(w, "Invalid signature encoding", http.StatusBadRequest)
		return
	}

	e, err := h.escalations.RespondWithSignature(r.Context(), chi.URLParam(r, "id"), signature)
	if err != nil {
		h.fail(w, "Failed to record response", err)
		return
	}
	h.writeJSON(w, http.StatusOK, entityResponse(e))
}

func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	var req api.RejectRequest
	if !h.decode(w, r, &req) {
		return
	}

	e, err := h.escalations.Reject(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.fail(w, "Failed to reject escalation", err)
		return
	}
	h.writeJSON(w, http.StatusOK, entityResponse(e))
}

func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	e, err := h.escalations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to load escalation", err)
		return
	}

	share, err := h.escrow.ReleaseShare(r.Context(), e)
	if err != nil {
		h.fail(w, "Failed to release escrow share", err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.ReleaseResponse{
		EntityID:    e.ID,
		ContentID:   e.ContentID.String(),
		EscrowShare: share,
	})
}

func (h *Handler) HandleProtect(w http.ResponseWriter, r *http.Request) {
	var req api.ProtectRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.escrow.Protect(r.Context(), []byte(req.Secret), req.Owner)
	if err != nil {
		h.fail(w, "Failed to protect secret", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, api.ProtectResponse{
		ContentID:        p.ContentID.String(),
		BeneficiaryToken: p.BeneficiaryToken,
		RetainedKey:      p.RetainedKey,
		EscrowKey:        p.EscrowKey,
	})
}

func (h *Handler) HandleForget(w http.ResponseWriter, r *http.Request) {
	id, err := interfaces.NewContentIDFromHex(chi.URLParam(r, "content_id"))
	if err != nil {
		http.Error(w, "Invalid content id", http.StatusBadRequest)
		return
	}

	if err := h.escrow.Forget(r.Context(), id); err != nil {
		h.fail(w, "Failed to forget secret", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func entityResponse(e *escalation.Entity) api.EscalationResponse {
	return api.EscalationResponse{
		Entity:          e,
		ResponseMessage: escalation.ResponseMessage(e.ID),
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.log.Debug("Failed to decode request", "err", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// fail maps domain errors to status codes. Unknown errors are logged and
// reported as 500 without detail.
func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error(msg, "err", err)
		http.Error(w, msg, status)
		return
	}
	h.log.Debug(msg, "err", err, slog.Int("status", status))
	http.Error(w, msg+": "+err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, escalation.ErrInvalidRequest),
		errors.Is(err, interfaces.ErrSecretTooShort),
		errors.Is(err, interfaces.ErrInvalidShareFormat):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrEntityNotFound),
		errors.Is(err, interfaces.ErrContentNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, interfaces.ErrReleaseNotAuthorized),
		errors.Is(err, interfaces.ErrStateConflict),
		errors.Is(err, interfaces.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
