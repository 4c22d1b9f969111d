package qr

import (
	"fmt"

	"github.com/caio-sobreiro/pacsnet/client"
	"github.com/caio-sobreiro/pacsnet/dicom"
	"github.com/caio-sobreiro/pacsnet/types"
)

// MoveResult reports the final sub-operation counts for a completed C-MOVE.
type MoveResult struct {
	Completed uint16
	Failed    uint16
	Warning   uint16
}

// ProgressFunc is invoked once before each sub-operation with the counts as
// they stand at that point, mirroring the Pending C-MOVE-RSP the caller
// sends back to the SCU before each transfer.
type ProgressFunc func(completed, failed, warning, remaining uint16) error

// Move resolves query against the index and delivers every matching
// instance to destinationAE via a secondary association, issuing one
// C-STORE-RQ per instance. Unknown destinations fail immediately with no
// sub-operations attempted.
func (e *Engine) Move(destinationAE string, query *types.QueryRequest, progress ProgressFunc) (MoveResult, error) {
	dest, ok := e.Destinations[destinationAE]
	if !ok {
		return MoveResult{}, fmt.Errorf("unknown move destination AE title: %s", destinationAE)
	}

	records, err := e.ResolveInstances(query)
	if err != nil {
		return MoveResult{}, fmt.Errorf("failed to resolve C-MOVE instances: %w", err)
	}

	total := len(records)
	var result MoveResult

	for i, record := range records {
		remaining := uint16(total - i)
		if progress != nil {
			if err := progress(result.Completed, result.Failed, result.Warning, remaining); err != nil {
				return result, err
			}
		}

		if err := e.deliverInstance(dest, record.SOPInstanceUID); err != nil {
			result.Failed++
			continue
		}
		result.Completed++
	}

	return result, nil
}

func (e *Engine) deliverInstance(dest Destination, sopInstanceUID string) error {
	meta, dataset, err := e.Archive.Retrieve(sopInstanceUID)
	if err != nil {
		return fmt.Errorf("failed to retrieve instance %s: %w", sopInstanceUID, err)
	}

	config := client.Config{
		CallingAETitle:            e.CallingAETitle,
		CalledAETitle:             dest.AETitle,
		PreferredTransferSyntaxes: []string{meta.TransferSyntaxUID, dicom.TransferSyntaxExplicitVRLittleEndian, dicom.TransferSyntaxImplicitVRLittleEndian},
	}

	assoc, err := client.Connect(dest.Address, config)
	if err != nil {
		return fmt.Errorf("failed to connect to move destination %s: %w", dest.AETitle, err)
	}
	defer assoc.Close()

	encoded, err := dicom.EncodeDatasetWithTransferSyntax(dataset, meta.TransferSyntaxUID)
	if err != nil {
		return fmt.Errorf("failed to encode instance %s: %w", sopInstanceUID, err)
	}

	resp, err := assoc.SendCStore(&client.CStoreRequest{
		SOPClassUID:    meta.SOPClassUID,
		SOPInstanceUID: meta.SOPInstanceUID,
		Data:           encoded,
		MessageID:      1,
	})
	if err != nil {
		return fmt.Errorf("C-STORE sub-operation failed for %s: %w", sopInstanceUID, err)
	}
	if resp.Status != 0x0000 {
		return fmt.Errorf("C-STORE sub-operation for %s returned status 0x%04X", sopInstanceUID, resp.Status)
	}
	return nil
}
