package index

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/caio-sobreiro/pacsnet/archive"
	"github.com/caio-sobreiro/pacsnet/dicom"
	"github.com/caio-sobreiro/pacsnet/types"
)

// patientModel, studyModel, seriesModel and instanceModel are the gorm
// table models backing GormIndex. Each mirrors the corresponding Record
// type with gorm tags for its natural key and secondary query keys.
type patientModel struct {
	PatientID   string `gorm:"primaryKey;column:patient_id"`
	PatientName string `gorm:"column:patient_name;index"`
	BirthDate   string `gorm:"column:birth_date"`
	Sex         string `gorm:"column:sex"`
}

func (patientModel) TableName() string { return "patients" }

type studyModel struct {
	StudyInstanceUID   string `gorm:"primaryKey;column:study_instance_uid"`
	PatientID          string `gorm:"column:patient_id;index"`
	StudyID            string `gorm:"column:study_id"`
	StudyDate          string `gorm:"column:study_date;index"`
	StudyTime          string `gorm:"column:study_time"`
	StudyDescription   string `gorm:"column:study_description"`
	AccessionNumber    string `gorm:"column:accession_number;index"`
	ReferringPhysician string `gorm:"column:referring_physician"`
}

func (studyModel) TableName() string { return "studies" }

type seriesModel struct {
	SeriesInstanceUID string `gorm:"primaryKey;column:series_instance_uid"`
	StudyInstanceUID  string `gorm:"column:study_instance_uid;index"`
	SeriesNumber      string `gorm:"column:series_number"`
	SeriesDescription string `gorm:"column:series_description"`
	Modality          string `gorm:"column:modality;index"`
}

func (seriesModel) TableName() string { return "series" }

type instanceModel struct {
	SOPInstanceUID    string `gorm:"primaryKey;column:sop_instance_uid"`
	SeriesInstanceUID string `gorm:"column:series_instance_uid;index"`
	SOPClassUID       string `gorm:"column:sop_class_uid"`
	InstanceNumber    string `gorm:"column:instance_number"`
}

func (instanceModel) TableName() string { return "instances" }

// GormIndex persists the metadata index to any SQL database gorm supports.
// NewPostgresIndex wires it to Postgres; NewGormIndex accepts an
// already-opened *gorm.DB so tests can use gorm's sqlite or in-memory
// dialects without a live Postgres instance.
type GormIndex struct {
	db *gorm.DB
}

// NewPostgresIndex opens a Postgres connection via gorm.io/driver/postgres
// and migrates the four index tables.
func NewPostgresIndex(dsn string) (*GormIndex, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres index database: %w", err)
	}
	return NewGormIndex(db)
}

// NewGormIndex wraps an already-configured gorm.DB and migrates the schema.
func NewGormIndex(db *gorm.DB) (*GormIndex, error) {
	if err := db.AutoMigrate(&patientModel{}, &studyModel{}, &seriesModel{}, &instanceModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate index schema: %w", err)
	}
	return &GormIndex{db: db}, nil
}

func (g *GormIndex) Upsert(dataset *dicom.Dataset) error {
	patient, study, series, instance := fieldsFromDataset(dataset)

	return g.db.Transaction(func(tx *gorm.DB) error {
		if patient.PatientID != "" {
			pm := patientModel{PatientID: patient.PatientID, PatientName: patient.PatientName, BirthDate: patient.BirthDate, Sex: patient.Sex}
			if err := tx.Save(&pm).Error; err != nil {
				return fmt.Errorf("upsert patient: %w", err)
			}
		}
		if study.StudyInstanceUID != "" {
			sm := studyModel{
				StudyInstanceUID: study.StudyInstanceUID, PatientID: study.PatientID, StudyID: study.StudyID,
				StudyDate: study.StudyDate, StudyTime: study.StudyTime, StudyDescription: study.StudyDescription,
				AccessionNumber: study.AccessionNumber, ReferringPhysician: study.ReferringPhysician,
			}
			if err := tx.Save(&sm).Error; err != nil {
				return fmt.Errorf("upsert study: %w", err)
			}
		}
		if series.SeriesInstanceUID != "" {
			sem := seriesModel{
				SeriesInstanceUID: series.SeriesInstanceUID, StudyInstanceUID: series.StudyInstanceUID,
				SeriesNumber: series.SeriesNumber, SeriesDescription: series.SeriesDescription, Modality: series.Modality,
			}
			if err := tx.Save(&sem).Error; err != nil {
				return fmt.Errorf("upsert series: %w", err)
			}
		}
		if instance.SOPInstanceUID != "" {
			im := instanceModel{
				SOPInstanceUID: instance.SOPInstanceUID, SeriesInstanceUID: instance.SeriesInstanceUID,
				SOPClassUID: instance.SOPClassUID, InstanceNumber: instance.InstanceNumber,
			}
			if err := tx.Save(&im).Error; err != nil {
				return fmt.Errorf("upsert instance: %w", err)
			}
		}
		return nil
	})
}

// matchClause translates a single PS3.4 matching key into a SQL predicate
// and bind argument, following the same exact/wildcard/range/list split as
// matches() in-memory, with these differences: the exact case compares
// case-sensitively (matches() uses EqualFold), the wildcard case uses ILIKE
// and so ignores case (matches() uses filepath.Match), and list alternatives
// are compared exactly, with no wildcard or range inside an alternative.
func matchClause(column, pattern string) (string, []interface{}) {
	switch {
	case pattern == "":
		return "", nil
	case strings.Contains(pattern, `\`):
		alts := strings.Split(pattern, `\`)
		placeholders := strings.Repeat("?,", len(alts))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]interface{}, len(alts))
		for i, a := range alts {
			args[i] = a
		}
		return fmt.Sprintf("%s IN (%s)", column, placeholders), args
	case isRange(pattern):
		idx := strings.Index(pattern, "-")
		lo, hi := pattern[:idx], pattern[idx+1:]
		switch {
		case lo != "" && hi != "":
			return fmt.Sprintf("%s BETWEEN ? AND ?", column), []interface{}{lo, hi}
		case lo != "":
			return fmt.Sprintf("%s >= ?", column), []interface{}{lo}
		default:
			return fmt.Sprintf("%s <= ?", column), []interface{}{hi}
		}
	case strings.ContainsAny(pattern, "*?"):
		like := strings.NewReplacer("*", "%", "?", "_").Replace(pattern)
		return fmt.Sprintf("%s ILIKE ?", column), []interface{}{like}
	default:
		return fmt.Sprintf("%s = ?", column), []interface{}{pattern}
	}
}

func applyMatch(tx *gorm.DB, column, pattern string) *gorm.DB {
	clause, args := matchClause(column, pattern)
	if clause == "" {
		return tx
	}
	return tx.Where(clause, args...)
}

func (g *GormIndex) FindPatients(query *types.QueryRequest) ([]PatientRecord, error) {
	tx := g.db.Model(&patientModel{})
	tx = applyMatch(tx, "patient_id", query.PatientID)
	tx = applyMatch(tx, "patient_name", query.PatientName)
	tx = applyMatch(tx, "birth_date", query.PatientBirthDate)
	tx = applyMatch(tx, "sex", query.PatientSex)

	var rows []patientModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find patients: %w", err)
	}

	out := make([]PatientRecord, len(rows))
	for i, r := range rows {
		out[i] = PatientRecord{PatientID: r.PatientID, PatientName: r.PatientName, BirthDate: r.BirthDate, Sex: r.Sex}
	}
	return out, nil
}

func (g *GormIndex) FindStudies(query *types.QueryRequest) ([]StudyRecord, error) {
	tx := g.db.Model(&studyModel{})
	tx = applyMatch(tx, "study_instance_uid", query.StudyInstanceUID)
	tx = applyMatch(tx, "study_id", query.StudyID)
	tx = applyMatch(tx, "study_date", query.StudyDate)
	tx = applyMatch(tx, "study_time", query.StudyTime)
	tx = applyMatch(tx, "study_description", query.StudyDescription)
	tx = applyMatch(tx, "accession_number", query.AccessionNumber)
	tx = applyMatch(tx, "referring_physician", query.ReferringPhysician)
	if query.PatientID != "" {
		tx = applyMatch(tx, "patient_id", query.PatientID)
	}

	var rows []studyModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find studies: %w", err)
	}

	out := make([]StudyRecord, len(rows))
	for i, r := range rows {
		out[i] = StudyRecord{
			StudyInstanceUID: r.StudyInstanceUID, PatientID: r.PatientID, StudyID: r.StudyID, StudyDate: r.StudyDate,
			StudyTime: r.StudyTime, StudyDescription: r.StudyDescription, AccessionNumber: r.AccessionNumber,
			ReferringPhysician: r.ReferringPhysician,
		}
	}
	return out, nil
}

func (g *GormIndex) FindSeries(query *types.QueryRequest) ([]SeriesRecord, error) {
	tx := g.db.Model(&seriesModel{})
	tx = applyMatch(tx, "series_instance_uid", query.SeriesInstanceUID)
	tx = applyMatch(tx, "series_number", query.SeriesNumber)
	tx = applyMatch(tx, "series_description", query.SeriesDescription)
	tx = applyMatch(tx, "modality", query.Modality)
	tx = applyMatch(tx, "study_instance_uid", query.StudyInstanceUID)

	var rows []seriesModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find series: %w", err)
	}

	out := make([]SeriesRecord, len(rows))
	for i, r := range rows {
		out[i] = SeriesRecord{
			SeriesInstanceUID: r.SeriesInstanceUID, StudyInstanceUID: r.StudyInstanceUID,
			SeriesNumber: r.SeriesNumber, SeriesDescription: r.SeriesDescription, Modality: r.Modality,
		}
	}
	return out, nil
}

func (g *GormIndex) FindInstances(query *types.QueryRequest) ([]InstanceRecord, error) {
	tx := g.db.Model(&instanceModel{})
	tx = applyMatch(tx, "sop_instance_uid", query.SOPInstanceUID)
	tx = applyMatch(tx, "instance_number", query.InstanceNumber)
	tx = applyMatch(tx, "series_instance_uid", query.SeriesInstanceUID)

	var rows []instanceModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find instances: %w", err)
	}

	out := make([]InstanceRecord, len(rows))
	for i, r := range rows {
		out[i] = InstanceRecord{
			SOPInstanceUID: r.SOPInstanceUID, SeriesInstanceUID: r.SeriesInstanceUID,
			SOPClassUID: r.SOPClassUID, InstanceNumber: r.InstanceNumber,
		}
	}
	return out, nil
}

func (g *GormIndex) Scan(a *archive.Archive) error {
	return a.Walk(func(path string, meta dicom.Part10Meta, dataset *dicom.Dataset) error {
		if dataset == nil {
			return nil
		}
		return g.Upsert(dataset)
	})
}

func (g *GormIndex) InstanceCount() int {
	var count int64
	g.db.Model(&instanceModel{}).Count(&count)
	return int(count)
}
