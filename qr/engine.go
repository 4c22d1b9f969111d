// Package qr implements the query/retrieve engine: C-FIND execution against
// the metadata index, and the instance resolution C-MOVE and C-GET both use
// to turn a query into a concrete set of SOP Instance UIDs.
package qr

import (
	"fmt"

	"github.com/caio-sobreiro/pacsnet/archive"
	"github.com/caio-sobreiro/pacsnet/dicom"
	"github.com/caio-sobreiro/pacsnet/index"
	"github.com/caio-sobreiro/pacsnet/types"
)

// Destination is a known C-MOVE move destination: an AE title mapped to the
// network address the engine dials to deliver instances.
type Destination struct {
	AETitle string
	Address string
}

// Engine ties the archive and metadata index together to execute C-FIND,
// and to resolve C-MOVE/C-GET queries into the instances they address.
type Engine struct {
	Archive        *archive.Archive
	Index          index.Index
	CallingAETitle string
	Destinations   map[string]Destination
}

// NewEngine builds a query/retrieve engine over the given archive and index.
func NewEngine(a *archive.Archive, idx index.Index, callingAETitle string, destinations map[string]Destination) *Engine {
	return &Engine{Archive: a, Index: idx, CallingAETitle: callingAETitle, Destinations: destinations}
}

// Find executes a C-FIND query at the given level and returns one result
// dataset per match, populated with the identifying and descriptive
// attributes for that level.
func (e *Engine) Find(query *types.QueryRequest) ([]*dicom.Dataset, error) {
	switch query.Level {
	case types.QueryLevelPatient:
		records, err := e.Index.FindPatients(query)
		if err != nil {
			return nil, err
		}
		out := make([]*dicom.Dataset, len(records))
		for i, r := range records {
			ds := dicom.NewDataset()
			ds.AddElement(tagQueryRetrieveLevel, dicom.VR_CS, "PATIENT")
			ds.AddElement(tagPatientID, dicom.VR_LO, r.PatientID)
			ds.AddElement(tagPatientName, dicom.VR_PN, r.PatientName)
			ds.AddElement(tagPatientBirthDate, dicom.VR_DA, r.BirthDate)
			ds.AddElement(tagPatientSex, dicom.VR_CS, r.Sex)
			out[i] = ds
		}
		return out, nil

	case types.QueryLevelStudy:
		records, err := e.Index.FindStudies(query)
		if err != nil {
			return nil, err
		}
		out := make([]*dicom.Dataset, len(records))
		for i, r := range records {
			ds := dicom.NewDataset()
			ds.AddElement(tagQueryRetrieveLevel, dicom.VR_CS, "STUDY")
			ds.AddElement(tagStudyInstanceUID, dicom.VR_UI, r.StudyInstanceUID)
			ds.AddElement(tagStudyID, dicom.VR_SH, r.StudyID)
			ds.AddElement(tagStudyDate, dicom.VR_DA, r.StudyDate)
			ds.AddElement(tagStudyTime, dicom.VR_TM, r.StudyTime)
			ds.AddElement(tagStudyDescription, dicom.VR_LO, r.StudyDescription)
			ds.AddElement(tagAccessionNumber, dicom.VR_SH, r.AccessionNumber)
			ds.AddElement(tagPatientID, dicom.VR_LO, r.PatientID)
			out[i] = ds
		}
		return out, nil

	case types.QueryLevelSeries:
		records, err := e.Index.FindSeries(query)
		if err != nil {
			return nil, err
		}
		out := make([]*dicom.Dataset, len(records))
		for i, r := range records {
			ds := dicom.NewDataset()
			ds.AddElement(tagQueryRetrieveLevel, dicom.VR_CS, "SERIES")
			ds.AddElement(tagSeriesInstanceUID, dicom.VR_UI, r.SeriesInstanceUID)
			ds.AddElement(tagSeriesNumber, dicom.VR_IS, r.SeriesNumber)
			ds.AddElement(tagSeriesDescription, dicom.VR_LO, r.SeriesDescription)
			ds.AddElement(tagModality, dicom.VR_CS, r.Modality)
			ds.AddElement(tagStudyInstanceUID, dicom.VR_UI, r.StudyInstanceUID)
			out[i] = ds
		}
		return out, nil

	case types.QueryLevelImage:
		records, err := e.Index.FindInstances(query)
		if err != nil {
			return nil, err
		}
		out := make([]*dicom.Dataset, len(records))
		for i, r := range records {
			ds := dicom.NewDataset()
			ds.AddElement(tagQueryRetrieveLevel, dicom.VR_CS, "IMAGE")
			ds.AddElement(tagSOPInstanceUID, dicom.VR_UI, r.SOPInstanceUID)
			ds.AddElement(tagSOPClassUID, dicom.VR_UI, r.SOPClassUID)
			ds.AddElement(tagInstanceNumber, dicom.VR_IS, r.InstanceNumber)
			ds.AddElement(tagSeriesInstanceUID, dicom.VR_UI, r.SeriesInstanceUID)
			out[i] = ds
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported query level: %q", query.Level)
	}
}

// ResolveInstances expands a C-MOVE/C-GET request dataset into the concrete
// SOP Instance UIDs it addresses, narrowing from whichever identifying key
// is most specific (instance, then series, then study, then patient).
func (e *Engine) ResolveInstances(query *types.QueryRequest) ([]index.InstanceRecord, error) {
	if query.SOPInstanceUID != "" {
		return e.Index.FindInstances(&types.QueryRequest{SOPInstanceUID: query.SOPInstanceUID})
	}

	seriesUIDs, err := e.resolveSeries(query)
	if err != nil {
		return nil, err
	}

	var out []index.InstanceRecord
	for _, seriesUID := range seriesUIDs {
		records, err := e.Index.FindInstances(&types.QueryRequest{SeriesInstanceUID: seriesUID})
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

func (e *Engine) resolveSeries(query *types.QueryRequest) ([]string, error) {
	if query.SeriesInstanceUID != "" {
		return []string{query.SeriesInstanceUID}, nil
	}

	studyUIDs, err := e.resolveStudies(query)
	if err != nil {
		return nil, err
	}

	var uids []string
	for _, studyUID := range studyUIDs {
		series, err := e.Index.FindSeries(&types.QueryRequest{StudyInstanceUID: studyUID})
		if err != nil {
			return nil, err
		}
		for _, s := range series {
			uids = append(uids, s.SeriesInstanceUID)
		}
	}
	return uids, nil
}

func (e *Engine) resolveStudies(query *types.QueryRequest) ([]string, error) {
	if query.StudyInstanceUID != "" {
		return []string{query.StudyInstanceUID}, nil
	}
	studies, err := e.Index.FindStudies(&types.QueryRequest{PatientID: query.PatientID})
	if err != nil {
		return nil, err
	}
	uids := make([]string, len(studies))
	for i, s := range studies {
		uids[i] = s.StudyInstanceUID
	}
	return uids, nil
}

var (
	tagQueryRetrieveLevel = dicom.Tag{Group: 0x0008, Element: 0x0052}
	tagPatientID          = dicom.Tag{Group: 0x0010, Element: 0x0020}
	tagPatientName        = dicom.Tag{Group: 0x0010, Element: 0x0010}
	tagPatientBirthDate   = dicom.Tag{Group: 0x0010, Element: 0x0030}
	tagPatientSex         = dicom.Tag{Group: 0x0010, Element: 0x0040}
	tagStudyInstanceUID   = dicom.Tag{Group: 0x0020, Element: 0x000D}
	tagStudyID            = dicom.Tag{Group: 0x0020, Element: 0x0010}
	tagStudyDate          = dicom.Tag{Group: 0x0008, Element: 0x0020}
	tagStudyTime          = dicom.Tag{Group: 0x0008, Element: 0x0030}
	tagStudyDescription   = dicom.Tag{Group: 0x0008, Element: 0x1030}
	tagAccessionNumber    = dicom.Tag{Group: 0x0008, Element: 0x0050}
	tagSeriesInstanceUID  = dicom.Tag{Group: 0x0020, Element: 0x000E}
	tagSeriesNumber       = dicom.Tag{Group: 0x0020, Element: 0x0011}
	tagSeriesDescription  = dicom.Tag{Group: 0x0008, Element: 0x103E}
	tagModality           = dicom.Tag{Group: 0x0008, Element: 0x0060}
	tagSOPInstanceUID     = dicom.Tag{Group: 0x0008, Element: 0x0018}
	tagSOPClassUID        = dicom.Tag{Group: 0x0008, Element: 0x0016}
	tagInstanceNumber     = dicom.Tag{Group: 0x0020, Element: 0x0013}
)
