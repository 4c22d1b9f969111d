package services

import (
	"github.com/caio-sobreiro/pacsnet/dicom"
	"github.com/caio-sobreiro/pacsnet/types"
)

var (
	tagQueryRetrieveLevel  = dicom.Tag{Group: 0x0008, Element: 0x0052}
	tagPatientName         = dicom.Tag{Group: 0x0010, Element: 0x0010}
	tagPatientID           = dicom.Tag{Group: 0x0010, Element: 0x0020}
	tagPatientBirthDate    = dicom.Tag{Group: 0x0010, Element: 0x0030}
	tagPatientSex          = dicom.Tag{Group: 0x0010, Element: 0x0040}
	tagStudyInstanceUID    = dicom.Tag{Group: 0x0020, Element: 0x000D}
	tagStudyID             = dicom.Tag{Group: 0x0020, Element: 0x0010}
	tagStudyDate           = dicom.Tag{Group: 0x0008, Element: 0x0020}
	tagStudyTime           = dicom.Tag{Group: 0x0008, Element: 0x0030}
	tagStudyDescription    = dicom.Tag{Group: 0x0008, Element: 0x1030}
	tagModality            = dicom.Tag{Group: 0x0008, Element: 0x0060}
	tagSeriesInstanceUID   = dicom.Tag{Group: 0x0020, Element: 0x000E}
	tagSeriesNumber        = dicom.Tag{Group: 0x0020, Element: 0x0011}
	tagSeriesDescription   = dicom.Tag{Group: 0x0008, Element: 0x103E}
	tagSOPInstanceUID      = dicom.Tag{Group: 0x0008, Element: 0x0018}
	tagInstanceNumber      = dicom.Tag{Group: 0x0020, Element: 0x0013}
	tagAccessionNumber     = dicom.Tag{Group: 0x0008, Element: 0x0050}
	tagReferringPhysician  = dicom.Tag{Group: 0x0008, Element: 0x0090}
)

// parseQueryRequest extracts a types.QueryRequest from a C-FIND/C-MOVE/C-GET
// identifier dataset, reading the Query/Retrieve Level (0008,0052) and
// whichever matching keys are present at that level.
func parseQueryRequest(ds *dicom.Dataset) *types.QueryRequest {
	if ds == nil {
		return &types.QueryRequest{}
	}

	return &types.QueryRequest{
		Level:              types.QueryLevel(ds.GetString(tagQueryRetrieveLevel)),
		PatientName:        ds.GetString(tagPatientName),
		PatientID:          ds.GetString(tagPatientID),
		PatientBirthDate:   ds.GetString(tagPatientBirthDate),
		PatientSex:         ds.GetString(tagPatientSex),
		StudyInstanceUID:   ds.GetString(tagStudyInstanceUID),
		StudyID:            ds.GetString(tagStudyID),
		StudyDate:          ds.GetString(tagStudyDate),
		StudyTime:          ds.GetString(tagStudyTime),
		StudyDescription:   ds.GetString(tagStudyDescription),
		Modality:           ds.GetString(tagModality),
		SeriesInstanceUID:  ds.GetString(tagSeriesInstanceUID),
		SeriesNumber:       ds.GetString(tagSeriesNumber),
		SeriesDescription:  ds.GetString(tagSeriesDescription),
		SOPInstanceUID:     ds.GetString(tagSOPInstanceUID),
		InstanceNumber:     ds.GetString(tagInstanceNumber),
		AccessionNumber:    ds.GetString(tagAccessionNumber),
		ReferringPhysician: ds.GetString(tagReferringPhysician),
	}
}
