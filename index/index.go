// Package index implements the metadata index: the four tables
// (patients, studies, series, instances) that C-FIND searches against and
// that C-MOVE/C-GET use to resolve a query into concrete SOP Instance UIDs.
package index

import (
	"github.com/caio-sobreiro/pacsnet/archive"
	"github.com/caio-sobreiro/pacsnet/dicom"
	"github.com/caio-sobreiro/pacsnet/types"
)

var (
	tagPatientName      = dicom.Tag{Group: 0x0010, Element: 0x0010}
	tagPatientID        = dicom.Tag{Group: 0x0010, Element: 0x0020}
	tagPatientBirthDate = dicom.Tag{Group: 0x0010, Element: 0x0030}
	tagPatientSex       = dicom.Tag{Group: 0x0010, Element: 0x0040}

	tagStudyInstanceUID   = dicom.Tag{Group: 0x0020, Element: 0x000D}
	tagStudyID            = dicom.Tag{Group: 0x0020, Element: 0x0010}
	tagStudyDate          = dicom.Tag{Group: 0x0008, Element: 0x0020}
	tagStudyTime          = dicom.Tag{Group: 0x0008, Element: 0x0030}
	tagStudyDescription   = dicom.Tag{Group: 0x0008, Element: 0x1030}
	tagAccessionNumber    = dicom.Tag{Group: 0x0008, Element: 0x0050}
	tagReferringPhysician = dicom.Tag{Group: 0x0008, Element: 0x0090}

	tagSeriesInstanceUID = dicom.Tag{Group: 0x0020, Element: 0x000E}
	tagSeriesNumber      = dicom.Tag{Group: 0x0020, Element: 0x0011}
	tagSeriesDescription = dicom.Tag{Group: 0x0008, Element: 0x103E}
	tagModality          = dicom.Tag{Group: 0x0008, Element: 0x0060}

	tagSOPInstanceUID = dicom.Tag{Group: 0x0008, Element: 0x0018}
	tagSOPClassUID    = dicom.Tag{Group: 0x0008, Element: 0x0016}
	tagInstanceNumber = dicom.Tag{Group: 0x0020, Element: 0x0013}
)

// PatientRecord is the patients table row.
type PatientRecord struct {
	PatientID   string
	PatientName string
	BirthDate   string
	Sex         string
}

// StudyRecord is the studies table row. PatientID is the parent link.
type StudyRecord struct {
	StudyInstanceUID   string
	PatientID          string
	StudyID            string
	StudyDate          string
	StudyTime          string
	StudyDescription   string
	AccessionNumber    string
	ReferringPhysician string
}

// SeriesRecord is the series table row. StudyInstanceUID is the parent link.
type SeriesRecord struct {
	SeriesInstanceUID string
	StudyInstanceUID  string
	SeriesNumber      string
	SeriesDescription string
	Modality          string
}

// InstanceRecord is the instances table row. SeriesInstanceUID is the
// parent link.
type InstanceRecord struct {
	SOPInstanceUID    string
	SeriesInstanceUID string
	SOPClassUID       string
	InstanceNumber    string
}

// Index is the metadata index contract: idempotent upserts from parsed
// datasets, matching-key search at each of the four query levels, and a
// startup scan that repopulates the index from the archive.
//
// Two implementations exist: MemoryIndex for deployments with no database,
// and GormIndex, which persists to any SQL backend gorm supports (wired to
// Postgres via gorm.io/driver/postgres).
type Index interface {
	Upsert(dataset *dicom.Dataset) error
	FindPatients(query *types.QueryRequest) ([]PatientRecord, error)
	FindStudies(query *types.QueryRequest) ([]StudyRecord, error)
	FindSeries(query *types.QueryRequest) ([]SeriesRecord, error)
	FindInstances(query *types.QueryRequest) ([]InstanceRecord, error)
	Scan(a *archive.Archive) error
	InstanceCount() int
}

func fieldsFromDataset(dataset *dicom.Dataset) (PatientRecord, StudyRecord, SeriesRecord, InstanceRecord) {
	patient := PatientRecord{
		PatientID:   dataset.GetString(tagPatientID),
		PatientName: dataset.GetString(tagPatientName),
		BirthDate:   dataset.GetString(tagPatientBirthDate),
		Sex:         dataset.GetString(tagPatientSex),
	}
	study := StudyRecord{
		StudyInstanceUID:   dataset.GetString(tagStudyInstanceUID),
		PatientID:          patient.PatientID,
		StudyID:            dataset.GetString(tagStudyID),
		StudyDate:          dataset.GetString(tagStudyDate),
		StudyTime:          dataset.GetString(tagStudyTime),
		StudyDescription:   dataset.GetString(tagStudyDescription),
		AccessionNumber:    dataset.GetString(tagAccessionNumber),
		ReferringPhysician: dataset.GetString(tagReferringPhysician),
	}
	series := SeriesRecord{
		SeriesInstanceUID: dataset.GetString(tagSeriesInstanceUID),
		StudyInstanceUID:  study.StudyInstanceUID,
		SeriesNumber:      dataset.GetString(tagSeriesNumber),
		SeriesDescription: dataset.GetString(tagSeriesDescription),
		Modality:          dataset.GetString(tagModality),
	}
	instance := InstanceRecord{
		SOPInstanceUID:    dataset.GetString(tagSOPInstanceUID),
		SeriesInstanceUID: series.SeriesInstanceUID,
		SOPClassUID:       dataset.GetString(tagSOPClassUID),
		InstanceNumber:    dataset.GetString(tagInstanceNumber),
	}
	return patient, study, series, instance
}
