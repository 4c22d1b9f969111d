package services

import (
	"context"
	"log/slog"

	"github.com/caio-sobreiro/pacsnet/dicom"
	"github.com/caio-sobreiro/pacsnet/dimse"
	"github.com/caio-sobreiro/pacsnet/interfaces"
	"github.com/caio-sobreiro/pacsnet/qr"
	"github.com/caio-sobreiro/pacsnet/types"
)

// MoveService handles C-MOVE requests: it resolves the query to concrete
// instances and delivers each to the requested destination AE over a
// secondary association, reporting progress as Pending responses.
type MoveService struct {
	Engine *qr.Engine
}

// NewMoveService builds a C-MOVE handler over the given query/retrieve engine.
func NewMoveService(engine *qr.Engine) *MoveService {
	return &MoveService{Engine: engine}
}

// HandleDIMSE is the non-streaming fallback; C-MOVE always streams progress.
func (s *MoveService) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta interfaces.MessageContext) (*types.Message, *dicom.Dataset, error) {
	return NewCMoveErrorResponse(msg, dimse.StatusFailure), nil, nil
}

// HandleDIMSEStreaming resolves the query into instances and moves each one
// to msg.MoveDestination, sending a Pending C-MOVE-RSP before every
// sub-operation and a final response with the completed/failed tallies.
func (s *MoveService) HandleDIMSEStreaming(ctx context.Context, msg *types.Message, data []byte, meta interfaces.MessageContext, responder interfaces.ResponseSender) error {
	query := parseQueryRequest(meta.Dataset)

	slog.DebugContext(ctx, "C-MOVE query", "destination", msg.MoveDestination, "message_id", msg.MessageID)

	progress := func(completed, failed, warning, remaining uint16) error {
		return responder.SendResponse(
			NewCMovePendingResponse(msg, completed, failed, warning, remaining), nil, meta.TransferSyntaxUID)
	}

	result, err := s.Engine.Move(msg.MoveDestination, query, progress)
	if err != nil {
		slog.ErrorContext(ctx, "C-MOVE failed", "destination", msg.MoveDestination, "error", err)
		return responder.SendResponse(NewCMoveErrorResponse(msg, dimse.StatusFailure), nil, meta.TransferSyntaxUID)
	}

	slog.InfoContext(ctx, "C-MOVE completed",
		"destination", msg.MoveDestination, "completed", result.Completed, "failed", result.Failed)
	return responder.SendResponse(
		NewCMoveSuccessResponse(msg, result.Completed, result.Failed, result.Warning), nil, meta.TransferSyntaxUID)
}
