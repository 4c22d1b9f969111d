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

// GetService handles C-GET requests: unlike C-MOVE it delivers matching
// instances as C-STORE sub-operations on the very association the request
// arrived on. No SCU/SCP role selection is negotiated: the C-STOREs are sent
// on the C-GET request's own presentation context.
type GetService struct {
	Engine *qr.Engine
}

// NewGetService builds a C-GET handler over the given query/retrieve engine.
func NewGetService(engine *qr.Engine) *GetService {
	return &GetService{Engine: engine}
}

// HandleDIMSE is the non-streaming fallback; C-GET always streams progress.
func (s *GetService) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta interfaces.MessageContext) (*types.Message, *dicom.Dataset, error) {
	resp := NewCMoveErrorResponse(msg, dimse.StatusFailure)
	resp.CommandField = dimse.CGetRSP
	return resp, nil, nil
}

// HandleDIMSEStreaming resolves the query into instances and streams each
// one back as a C-STORE sub-operation via the CGetResponder, sending a
// Pending response before each transfer and a final tally on completion.
func (s *GetService) HandleDIMSEStreaming(ctx context.Context, msg *types.Message, data []byte, meta interfaces.MessageContext, responder interfaces.ResponseSender) error {
	query := parseQueryRequest(meta.Dataset)
	// The C-MOVE response builders carry the same fields; only the command differs.
	asGet := func(m *types.Message) *types.Message {
		m.CommandField = dimse.CGetRSP
		return m
	}

	records, err := s.Engine.ResolveInstances(query)
	if err != nil {
		slog.ErrorContext(ctx, "C-GET resolution failed", "error", err)
		return responder.SendResponse(asGet(NewCMoveErrorResponse(msg, dimse.StatusFailure)), nil, meta.TransferSyntaxUID)
	}

	total := len(records)
	if total == 0 {
		return responder.SendResponse(asGet(NewCMoveSuccessResponse(msg, 0, 0, 0)), nil, meta.TransferSyntaxUID)
	}

	cgetResponder, ok := responder.(interfaces.CGetResponder)
	if !ok {
		slog.ErrorContext(ctx, "responder does not support C-GET sub-operations")
		return responder.SendResponse(asGet(NewCMoveErrorResponse(msg, dimse.StatusFailure)), nil, meta.TransferSyntaxUID)
	}

	var completed, failed, warning uint16
	for i, record := range records {
		remaining := uint16(total - i)
		pending := asGet(NewCMovePendingResponse(msg, completed, failed, warning, remaining))
		if err := responder.SendResponse(pending, nil, meta.TransferSyntaxUID); err != nil {
			return err
		}

		meta2, dataset, err := s.Engine.Archive.Retrieve(record.SOPInstanceUID)
		if err != nil {
			slog.ErrorContext(ctx, "C-GET retrieve failed", "sop_instance_uid", record.SOPInstanceUID, "error", err)
			failed++
			continue
		}

		encoded, err := dicom.EncodeDatasetWithTransferSyntax(dataset, meta2.TransferSyntaxUID)
		if err != nil {
			slog.ErrorContext(ctx, "C-GET encode failed", "sop_instance_uid", record.SOPInstanceUID, "error", err)
			failed++
			continue
		}

		if err := cgetResponder.SendCStore(meta2.SOPClassUID, meta2.SOPInstanceUID, encoded); err != nil {
			slog.ErrorContext(ctx, "C-GET sub-operation failed", "sop_instance_uid", record.SOPInstanceUID, "error", err)
			failed++
			continue
		}
		completed++
	}

	slog.InfoContext(ctx, "C-GET completed", "completed", completed, "failed", failed)
	return responder.SendResponse(asGet(NewCMoveSuccessResponse(msg, completed, failed, warning)), nil, meta.TransferSyntaxUID)
}
