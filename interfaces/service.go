// Package interfaces contains all service and handler interfaces
package interfaces

import (
	"context"

	"github.com/caio-sobreiro/pacsnet/dicom"
	"github.com/caio-sobreiro/pacsnet/types"
)

// MessageContext carries the per-message metadata a service handler needs
// alongside the raw command and dataset bytes: which presentation context
// the message arrived on, the transfer syntax negotiated for it, and the
// already-parsed dataset (nil if the message carried no dataset).
type MessageContext struct {
	PresentationContextID byte
	TransferSyntaxUID     string
	Dataset               *dicom.Dataset
}

// ServiceHandler interface for handling DIMSE operations
type ServiceHandler interface {
	HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta MessageContext) (*types.Message, *dicom.Dataset, error)
}

// StreamingServiceHandler interface for multi-response DIMSE operations
type StreamingServiceHandler interface {
	HandleDIMSEStreaming(ctx context.Context, msg *types.Message, data []byte, meta MessageContext, responder ResponseSender) error
}

// ResponseSender interface for sending intermediate responses
type ResponseSender interface {
	SendResponse(msg *types.Message, dataset *dicom.Dataset, transferSyntaxUID string) error
}

// CGetResponder interface for C-GET operations that need to send C-STORE sub-operations
type CGetResponder interface {
	ResponseSender
	// SendCStore sends a C-STORE sub-operation on the same association
	SendCStore(sopClassUID, sopInstanceUID string, data []byte) error
}

// DIMSEHandler interface for PDU layer to communicate with DIMSE layer
type DIMSEHandler interface {
	HandleDIMSEMessage(presContextID byte, msgCtrlHeader byte, data []byte, pduLayer PDULayer) error
}

// PDULayer interface for DIMSE layer to communicate with PDU layer
type PDULayer interface {
	SendDIMSEResponse(presContextID byte, commandData []byte) error
	SendDIMSEResponseWithDataset(presContextID byte, commandData []byte, dataset []byte) error
}
