package services

import (
	"context"
	"testing"

	"github.com/caio-sobreiro/pacsnet/archive"
	"github.com/caio-sobreiro/pacsnet/dicom"
	"github.com/caio-sobreiro/pacsnet/dimse"
	"github.com/caio-sobreiro/pacsnet/index"
	"github.com/caio-sobreiro/pacsnet/interfaces"
	"github.com/caio-sobreiro/pacsnet/qr"
	"github.com/caio-sobreiro/pacsnet/types"
)

type fakeResponder struct {
	responses []*types.Message
	datasets  []*dicom.Dataset
}

func (f *fakeResponder) SendResponse(msg *types.Message, dataset *dicom.Dataset, transferSyntaxUID string) error {
	f.responses = append(f.responses, msg)
	f.datasets = append(f.datasets, dataset)
	return nil
}

func findTestIndex(t *testing.T) index.Index {
	t.Helper()
	idx := index.NewMemoryIndex()
	ds := dicom.NewDataset()
	ds.AddElement(dicom.Tag{Group: 0x0010, Element: 0x0020}, dicom.VR_LO, "P1")
	ds.AddElement(dicom.Tag{Group: 0x0010, Element: 0x0010}, dicom.VR_PN, "DOE^JANE")
	ds.AddElement(dicom.Tag{Group: 0x0020, Element: 0x000D}, dicom.VR_UI, "1.2.3.study")
	ds.AddElement(dicom.Tag{Group: 0x0008, Element: 0x0020}, dicom.VR_DA, "20260115")
	ds.AddElement(dicom.Tag{Group: 0x0008, Element: 0x0050}, dicom.VR_SH, "ACC1")
	ds.AddElement(dicom.Tag{Group: 0x0020, Element: 0x000E}, dicom.VR_UI, "1.2.3.series")
	ds.AddElement(dicom.Tag{Group: 0x0008, Element: 0x0060}, dicom.VR_CS, "CT")
	ds.AddElement(dicom.Tag{Group: 0x0008, Element: 0x0018}, dicom.VR_UI, "1.2.3.instance")
	ds.AddElement(dicom.Tag{Group: 0x0008, Element: 0x0016}, dicom.VR_UI, "1.2.840.10008.5.1.4.1.1.7")
	if err := idx.Upsert(ds); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	return idx
}

func TestFindService_HandleDIMSEStreaming_StudyLevel(t *testing.T) {
	idx := findTestIndex(t)
	dir := t.TempDir()
	a := archive.New(dir, archive.NamingUIDHierarchical, archive.DuplicateReject, true)
	engine := qr.NewEngine(a, idx, "PACSNET", nil)
	svc := NewFindService(engine)

	query := dicom.NewDataset()
	query.AddElement(dicom.Tag{Group: 0x0008, Element: 0x0052}, dicom.VR_CS, "STUDY")
	query.AddElement(dicom.Tag{Group: 0x0010, Element: 0x0020}, dicom.VR_LO, "P1")

	msg := &types.Message{CommandField: dimse.CFindRQ, MessageID: 7}
	meta := interfaces.MessageContext{TransferSyntaxUID: dicom.TransferSyntaxExplicitVRLittleEndian, Dataset: query}
	responder := &fakeResponder{}

	if err := svc.HandleDIMSEStreaming(context.Background(), msg, nil, meta, responder); err != nil {
		t.Fatalf("HandleDIMSEStreaming() error = %v", err)
	}

	if len(responder.responses) != 2 {
		t.Fatalf("expected one pending + one final response, got %d", len(responder.responses))
	}
	if responder.responses[0].Status != dimse.StatusPending {
		t.Fatalf("first response status = 0x%04x, want pending", responder.responses[0].Status)
	}
	if responder.responses[1].Status != dimse.StatusSuccess {
		t.Fatalf("final response status = 0x%04x, want success", responder.responses[1].Status)
	}
}

func TestFindService_HandleDIMSEStreaming_NoMatches(t *testing.T) {
	idx := index.NewMemoryIndex()
	dir := t.TempDir()
	a := archive.New(dir, archive.NamingUIDHierarchical, archive.DuplicateReject, true)
	engine := qr.NewEngine(a, idx, "PACSNET", nil)
	svc := NewFindService(engine)

	query := dicom.NewDataset()
	query.AddElement(dicom.Tag{Group: 0x0008, Element: 0x0052}, dicom.VR_CS, "STUDY")

	msg := &types.Message{CommandField: dimse.CFindRQ, MessageID: 1}
	meta := interfaces.MessageContext{TransferSyntaxUID: dicom.TransferSyntaxExplicitVRLittleEndian, Dataset: query}
	responder := &fakeResponder{}

	if err := svc.HandleDIMSEStreaming(context.Background(), msg, nil, meta, responder); err != nil {
		t.Fatalf("HandleDIMSEStreaming() error = %v", err)
	}
	if len(responder.responses) != 1 || responder.responses[0].Status != dimse.StatusSuccess {
		t.Fatalf("expected a single success response for no matches, got %+v", responder.responses)
	}
}
