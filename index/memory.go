package index

import (
	"sync"

	"github.com/caio-sobreiro/pacsnet/archive"
	"github.com/caio-sobreiro/pacsnet/dicom"
	"github.com/caio-sobreiro/pacsnet/types"
)

// MemoryIndex is an in-memory Index, guarded by a readers-writer lock like
// the rest of the stack's shared lookup tables (the archive's UID-to-path
// map, the tag dictionary).
type MemoryIndex struct {
	mu sync.RWMutex

	patients  map[string]PatientRecord
	studies   map[string]StudyRecord
	series    map[string]SeriesRecord
	instances map[string]InstanceRecord
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		patients:  make(map[string]PatientRecord),
		studies:   make(map[string]StudyRecord),
		series:    make(map[string]SeriesRecord),
		instances: make(map[string]InstanceRecord),
	}
}

// Upsert is idempotent on each table's natural key and propagates parent
// links (study->patient, series->study, instance->series) on every call,
// so a later C-STORE of the same instance with corrected demographics
// still updates the patient/study rows it belongs to.
func (m *MemoryIndex) Upsert(dataset *dicom.Dataset) error {
	patient, study, series, instance := fieldsFromDataset(dataset)

	m.mu.Lock()
	defer m.mu.Unlock()

	if patient.PatientID != "" {
		m.patients[patient.PatientID] = patient
	}
	if study.StudyInstanceUID != "" {
		m.studies[study.StudyInstanceUID] = study
	}
	if series.SeriesInstanceUID != "" {
		m.series[series.SeriesInstanceUID] = series
	}
	if instance.SOPInstanceUID != "" {
		m.instances[instance.SOPInstanceUID] = instance
	}
	return nil
}

func (m *MemoryIndex) FindPatients(query *types.QueryRequest) ([]PatientRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []PatientRecord
	for _, p := range m.patients {
		if matches(query.PatientID, p.PatientID) &&
			matches(query.PatientName, p.PatientName) &&
			matches(query.PatientBirthDate, p.BirthDate) &&
			matches(query.PatientSex, p.Sex) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryIndex) FindStudies(query *types.QueryRequest) ([]StudyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []StudyRecord
	for _, s := range m.studies {
		if !matches(query.StudyInstanceUID, s.StudyInstanceUID) ||
			!matches(query.StudyID, s.StudyID) ||
			!matches(query.StudyDate, s.StudyDate) ||
			!matches(query.StudyTime, s.StudyTime) ||
			!matches(query.StudyDescription, s.StudyDescription) ||
			!matches(query.AccessionNumber, s.AccessionNumber) ||
			!matches(query.ReferringPhysician, s.ReferringPhysician) {
			continue
		}
		if query.PatientID != "" || query.PatientName != "" {
			patient, ok := m.patients[s.PatientID]
			if !ok || !matches(query.PatientID, patient.PatientID) || !matches(query.PatientName, patient.PatientName) {
				continue
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *MemoryIndex) FindSeries(query *types.QueryRequest) ([]SeriesRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []SeriesRecord
	for _, s := range m.series {
		if !matches(query.SeriesInstanceUID, s.SeriesInstanceUID) ||
			!matches(query.SeriesNumber, s.SeriesNumber) ||
			!matches(query.SeriesDescription, s.SeriesDescription) ||
			!matches(query.Modality, s.Modality) ||
			!matches(query.StudyInstanceUID, s.StudyInstanceUID) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *MemoryIndex) FindInstances(query *types.QueryRequest) ([]InstanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []InstanceRecord
	for _, i := range m.instances {
		if !matches(query.SOPInstanceUID, i.SOPInstanceUID) ||
			!matches(query.InstanceNumber, i.InstanceNumber) ||
			!matches(query.SeriesInstanceUID, i.SeriesInstanceUID) {
			continue
		}
		out = append(out, i)
	}
	return out, nil
}

// Scan repopulates the index by walking the archive root, per spec: on
// startup, recursively walk the archive, parse each file's identifying
// elements, and populate the index.
func (m *MemoryIndex) Scan(a *archive.Archive) error {
	return a.Walk(func(path string, meta dicom.Part10Meta, dataset *dicom.Dataset) error {
		if dataset == nil {
			return nil
		}
		return m.Upsert(dataset)
	})
}

func (m *MemoryIndex) InstanceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.instances)
}
