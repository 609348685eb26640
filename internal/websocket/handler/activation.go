// internal/websocket/handler/activation.go
package handler

import (
	"context"
	"fmt"

	"license-service/internal/domain/license"
	wstypes "license-service/internal/domain/websocket"
	ws "license-service/internal/websocket"
)

type ActivationLister interface {
	List(ctx context.Context, licenseID int64) ([]license.Activation, error)
}

// ActivationHandler answers dashboard queries for a license's activations.
type ActivationHandler struct {
	activations ActivationLister
}

func NewActivationHandler(activations ActivationLister) *ActivationHandler {
	return &ActivationHandler{
		activations: activations,
	}
}

// SupportedEvents returns events this handler supports
func (h *ActivationHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{
		wstypes.EventTypeActivationList,
	}
}

func (h *ActivationHandler) HandleMessage(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	switch msg.Type {
	case wstypes.EventTypeActivationList:
		return h.handleList(ctx, client, msg)
	default:
		return fmt.Errorf("unsupported event type: %s", msg.Type)
	}
}

func (h *ActivationHandler) handleList(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	var req struct {
		LicenseID int64 `json:"license_id"`
	}
	if err := msg.Decode(&req); err != nil || req.LicenseID < 1 {
		client.SendError("invalid_request", "Invalid activation list request", "license_id is required")
		return nil
	}

	activations, err := h.activations.List(ctx, req.LicenseID)
	if err != nil {
		client.SendError("list_failed", "Failed to list activations", err.Error())
		return nil
	}

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeActivationList, map[string]interface{}{
		"license_id":  req.LicenseID,
		"activations": activations,
		"count":       len(activations),
	}))
	return nil
}
