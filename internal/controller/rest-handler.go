package controller

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/watchroom/server/internal/service/room"
	"github.com/watchroom/server/pkg/rest"
)

type attachSourceRequest struct {
	Location string `json:"location" validate:"required,max=2048"`
	Label    string `json:"label" validate:"max=200"`
}

// attachSource is the surface for the upload/storage service: after a video
// is ingested for a room it calls here with a fetchable location. The issuing
// connection id comes in a header so the guard can reject non-host uploads.
func (c controller) attachSource(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")

	connectionId, err := c.mustHeader(r, "Connection-Id")
	if err != nil {
		c.logger.DebugContext(r.Context(), "failed to get connection id header", "error", err)
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"error": err.Error()})
		return
	}

	var req attachSourceRequest
	if err := rest.ReadJSON(r, &req); err != nil {
		c.logger.DebugContext(r.Context(), "failed to read json", "error", err)
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		c.logger.DebugContext(r.Context(), "validation failed", "errors", validationErrors)
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	attachSourceResp, err := c.roomService.AttachSource(r.Context(), &room.AttachSourceParams{
		RoomId:   roomId,
		SenderId: connectionId,
		Location: req.Location,
		Label:    req.Label,
	})
	if err != nil {
		switch {
		case errors.Is(err, room.ErrRoomNotFound):
			rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": err.Error()})
		case errors.Is(err, room.ErrPermissionDenied):
			// the upload service is a trusted collaborator, a plain 403
			// does not leak anything to room members
			rest.WriteJSON(w, http.StatusForbidden, rest.Envelope{"error": err.Error()})
		default:
			c.logger.WarnContext(r.Context(), "failed to attach source", "error", err)
			rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		}
		return
	}

	if err := c.broadcast(r.Context(), attachSourceResp.Conns, &Output{
		Type: "SOURCE_CHANGED",
		Payload: map[string]any{
			"location": attachSourceResp.Source.Location,
			"label":    attachSourceResp.Source.Label,
		},
	}); err != nil {
		c.logger.WarnContext(r.Context(), "failed to broadcast source changed", "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}
