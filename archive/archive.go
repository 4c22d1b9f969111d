// Package archive implements the content-addressed on-disk file store for
// received DICOM instances: configurable path layout, duplicate handling,
// and atomic writes.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/caio-sobreiro/pacsnet/dicom"
)

// NamingScheme selects the on-disk path layout for stored instances.
type NamingScheme string

const (
	NamingUIDHierarchical  NamingScheme = "uid-hierarchical"
	NamingDateHierarchical NamingScheme = "date-hierarchical"
	NamingFlat             NamingScheme = "flat"
)

// DuplicatePolicy controls what happens when an instance with the same
// SOP Instance UID is stored a second time.
type DuplicatePolicy string

const (
	DuplicateReject  DuplicatePolicy = "reject"
	DuplicateReplace DuplicatePolicy = "replace"
	DuplicateIgnore  DuplicatePolicy = "ignore"
)

// ErrMissingIdentifiers is returned when a dataset lacks the UIDs needed to
// compute a store path.
type ErrMissingIdentifiers struct {
	Missing []string
}

func (e *ErrMissingIdentifiers) Error() string {
	return fmt.Sprintf("dataset missing required identifiers: %v", e.Missing)
}

// ErrDuplicateInstance is returned by Store when DuplicatePolicy is reject
// and the instance already exists.
type ErrDuplicateInstance struct {
	SOPInstanceUID string
}

func (e *ErrDuplicateInstance) Error() string {
	return fmt.Sprintf("instance %s already exists in archive", e.SOPInstanceUID)
}

// ErrInstanceNotFound is returned by Retrieve when the SOP Instance UID is
// not present in the archive's index.
type ErrInstanceNotFound struct {
	SOPInstanceUID string
}

func (e *ErrInstanceNotFound) Error() string {
	return fmt.Sprintf("instance %s not found in archive", e.SOPInstanceUID)
}

// StoreResult reports the identifiers recovered from a stored dataset and
// where it landed on disk.
type StoreResult struct {
	Path              string
	Replaced          bool
	Ignored           bool
	StudyInstanceUID  string
	SeriesInstanceUID string
	SOPInstanceUID    string
	SOPClassUID       string
}

// IntegrityIssue describes a single discrepancy found by VerifyIntegrity.
type IntegrityIssue struct {
	SOPInstanceUID string
	Path           string
	Err            error
}

var (
	tagStudyInstanceUID  = dicom.Tag{Group: 0x0020, Element: 0x000D}
	tagSeriesInstanceUID = dicom.Tag{Group: 0x0020, Element: 0x000E}
	tagSOPInstanceUID    = dicom.Tag{Group: 0x0008, Element: 0x0018}
	tagSOPClassUID       = dicom.Tag{Group: 0x0008, Element: 0x0016}
	tagInstanceDate      = dicom.Tag{Group: 0x0008, Element: 0x0020} // StudyDate, used for date-hierarchical layout
)

// Archive is a content-addressed file store for DICOM Part 10 instances.
//
// The store holds an in-memory UID-to-path index guarded by a
// readers-writer lock, per the shared-state discipline the rest of the
// stack follows for its own lookup tables (the tag dictionary, the
// transfer-syntax registry).
type Archive struct {
	root       string
	naming     NamingScheme
	duplicate  DuplicatePolicy
	createDirs bool

	mu          sync.RWMutex
	pathsByUID  map[string]string
}

// New creates an Archive rooted at dir. createDirs controls whether parent
// directories are created on demand during Store.
func New(dir string, naming NamingScheme, duplicate DuplicatePolicy, createDirs bool) *Archive {
	return &Archive{
		root:       dir,
		naming:     naming,
		duplicate:  duplicate,
		createDirs: createDirs,
		pathsByUID: make(map[string]string),
	}
}

// Store writes dataset to the archive using transferSyntaxUID for dataset
// encoding, computing its path from the configured naming scheme and
// applying the configured duplicate policy. The write is atomic: the
// encoded file is first written to a temporary sibling path (suffixed with
// a random UUID so concurrent stores of the same instance never collide)
// and then renamed into place.
func (a *Archive) Store(dataset *dicom.Dataset, transferSyntaxUID string) (StoreResult, error) {
	studyUID := dataset.GetString(tagStudyInstanceUID)
	seriesUID := dataset.GetString(tagSeriesInstanceUID)
	sopInstanceUID := dataset.GetString(tagSOPInstanceUID)
	sopClassUID := dataset.GetString(tagSOPClassUID)

	var missing []string
	if studyUID == "" {
		missing = append(missing, "StudyInstanceUID")
	}
	if seriesUID == "" {
		missing = append(missing, "SeriesInstanceUID")
	}
	if sopInstanceUID == "" {
		missing = append(missing, "SOPInstanceUID")
	}
	if len(missing) > 0 {
		return StoreResult{}, &ErrMissingIdentifiers{Missing: missing}
	}

	path := a.computePath(studyUID, seriesUID, sopInstanceUID, dataset.GetString(tagInstanceDate))

	a.mu.Lock()
	existing, exists := a.pathsByUID[sopInstanceUID]
	if exists {
		switch a.duplicate {
		case DuplicateReject:
			a.mu.Unlock()
			return StoreResult{}, &ErrDuplicateInstance{SOPInstanceUID: sopInstanceUID}
		case DuplicateIgnore:
			a.mu.Unlock()
			return StoreResult{
				Path:              existing,
				Ignored:           true,
				StudyInstanceUID:  studyUID,
				SeriesInstanceUID: seriesUID,
				SOPInstanceUID:    sopInstanceUID,
				SOPClassUID:       sopClassUID,
			}, nil
		case DuplicateReplace:
			// fall through and overwrite below
		}
	}
	a.mu.Unlock()

	if a.createDirs {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return StoreResult{}, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	fileBytes, err := dicom.WritePart10(dataset, dicom.Part10Meta{
		TransferSyntaxUID: transferSyntaxUID,
		SOPClassUID:       sopClassUID,
		SOPInstanceUID:    sopInstanceUID,
	})
	if err != nil {
		return StoreResult{}, fmt.Errorf("failed to encode part 10 file: %w", err)
	}

	tmpPath := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmpPath, fileBytes, 0o644); err != nil {
		return StoreResult{}, fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return StoreResult{}, fmt.Errorf("failed to rename temporary file into place: %w", err)
	}

	a.mu.Lock()
	a.pathsByUID[sopInstanceUID] = path
	a.mu.Unlock()

	return StoreResult{
		Path:              path,
		Replaced:          exists && a.duplicate == DuplicateReplace,
		StudyInstanceUID:  studyUID,
		SeriesInstanceUID: seriesUID,
		SOPInstanceUID:    sopInstanceUID,
		SOPClassUID:       sopClassUID,
	}, nil
}

// Retrieve reads back a previously stored instance by SOP Instance UID.
func (a *Archive) Retrieve(sopInstanceUID string) (dicom.Part10Meta, *dicom.Dataset, error) {
	a.mu.RLock()
	path, ok := a.pathsByUID[sopInstanceUID]
	a.mu.RUnlock()
	if !ok {
		return dicom.Part10Meta{}, nil, &ErrInstanceNotFound{SOPInstanceUID: sopInstanceUID}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return dicom.Part10Meta{}, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return dicom.ReadPart10(data)
}

// Path returns the on-disk path for a known SOP Instance UID, if indexed.
func (a *Archive) Path(sopInstanceUID string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	path, ok := a.pathsByUID[sopInstanceUID]
	return path, ok
}

// IndexPath registers an externally-discovered file under a SOP Instance
// UID without writing it; used by the metadata index's startup scan, which
// walks the archive root directly rather than going through Store.
func (a *Archive) IndexPath(sopInstanceUID, path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pathsByUID[sopInstanceUID] = path
}

// Walk visits every Part 10 file under the archive root, in the shape the
// metadata index's startup scan needs: parsed meta-information and dataset
// for each discovered instance. A file that cannot be read or parsed is
// still passed to fn, with a nil dataset, and does not abort the walk;
// returning a non-nil error from fn stops the walk.
func (a *Archive) Walk(fn func(path string, meta dicom.Part10Meta, dataset *dicom.Dataset) error) error {
	return filepath.WalkDir(a.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".dcm" {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return fn(path, dicom.Part10Meta{}, nil)
		}
		meta, dataset, parseErr := dicom.ReadPart10(data)
		if parseErr != nil {
			return fn(path, meta, nil)
		}
		a.IndexPath(meta.SOPInstanceUID, path)
		return fn(path, meta, dataset)
	})
}

// VerifyIntegrity checks, for every indexed instance, that the file still
// exists, still parses as a Part 10 file, and that the SOP Instance UID
// recorded in the file still matches the key it is indexed under.
func (a *Archive) VerifyIntegrity() []IntegrityIssue {
	a.mu.RLock()
	snapshot := make(map[string]string, len(a.pathsByUID))
	for uid, path := range a.pathsByUID {
		snapshot[uid] = path
	}
	a.mu.RUnlock()

	var issues []IntegrityIssue
	for uid, path := range snapshot {
		data, err := os.ReadFile(path)
		if err != nil {
			issues = append(issues, IntegrityIssue{SOPInstanceUID: uid, Path: path, Err: err})
			continue
		}
		meta, _, err := dicom.ReadPart10(data)
		if err != nil {
			issues = append(issues, IntegrityIssue{SOPInstanceUID: uid, Path: path, Err: err})
			continue
		}
		if meta.SOPInstanceUID != uid {
			issues = append(issues, IntegrityIssue{
				SOPInstanceUID: uid,
				Path:           path,
				Err:            fmt.Errorf("indexed as %s but file meta reports %s", uid, meta.SOPInstanceUID),
			})
		}
	}
	return issues
}

func (a *Archive) computePath(studyUID, seriesUID, sopInstanceUID, studyDate string) string {
	switch a.naming {
	case NamingDateHierarchical:
		year, month, day := "0000", "00", "00"
		if len(studyDate) == 8 {
			year, month, day = studyDate[0:4], studyDate[4:6], studyDate[6:8]
		}
		return filepath.Join(a.root, year, month, day, studyUID, sopInstanceUID+".dcm")
	case NamingFlat:
		return filepath.Join(a.root, sopInstanceUID+".dcm")
	case NamingUIDHierarchical:
		fallthrough
	default:
		return filepath.Join(a.root, studyUID, seriesUID, sopInstanceUID+".dcm")
	}
}

// InstanceCount reports how many instances are currently indexed; used by
// admin health/stats endpoints.
func (a *Archive) InstanceCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.pathsByUID)
}
