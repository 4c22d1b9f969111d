// Package dictionary maps DICOM tags to their value representation, value
// multiplicity range, and human-readable names. It is the L0 tag dictionary:
// a process-wide lookup, populated at package initialization, with concurrent reads and
// serialized registration of vendor-private tags.
package dictionary

import (
	"fmt"
	"sync"
)

// VM is an inclusive value-multiplicity range. Max of 0 means unbounded.
type VM struct {
	Min int
	Max int
}

// Unbounded reports whether the range has no upper limit.
func (v VM) Unbounded() bool {
	return v.Max == 0
}

// Allows reports whether count values satisfies the range.
func (v VM) Allows(count int) bool {
	if count < v.Min {
		return false
	}
	if v.Unbounded() {
		return true
	}
	return count <= v.Max
}

// Entry describes one dictionary record.
type Entry struct {
	Tag     Tag
	VR      string
	VM      VM
	Keyword string
	Name    string
	Retired bool
}

// Tag is a (group, element) pair, mirroring types.Tag without importing it
// so the dictionary has no dependency on the wire-format packages above it.
type Tag struct {
	Group   uint16
	Element uint16
}

func (t Tag) String() string {
	return fmt.Sprintf("(%04X,%04X)", t.Group, t.Element)
}

// IsPrivate reports whether the tag's group is odd, i.e. vendor-defined.
func (t Tag) IsPrivate() bool {
	return t.Group%2 == 1
}

// Dictionary is a concurrent-safe tag registry.
type Dictionary struct {
	mu      sync.RWMutex
	byTag   map[Tag]Entry
	byWord  map[string]Tag
}

// New returns a dictionary pre-populated with the standard entries this
// repository's archive, index, and DIMSE layers reference.
func New() *Dictionary {
	d := &Dictionary{
		byTag:  make(map[Tag]Entry, len(standardEntries)),
		byWord: make(map[string]Tag, len(standardEntries)),
	}
	for _, e := range standardEntries {
		d.byTag[e.Tag] = e
		if e.Keyword != "" {
			d.byWord[e.Keyword] = e.Tag
		}
	}
	return d
}

// Default is the process-wide dictionary instance used when callers do not
// carry their own. Private-tag registration against it is serialized by its
// own mutex; there is no global mutable state outside this value.
var Default = New()

// Lookup returns the entry for tag, or false if the tag is unknown. Unknown
// tags are not an error: callers fall back to VR "UN" (opaque bytes).
func (d *Dictionary) Lookup(tag Tag) (Entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.byTag[tag]
	return e, ok
}

// LookupKeyword resolves a dictionary keyword (e.g. "PatientID") to its tag.
func (d *Dictionary) LookupKeyword(keyword string) (Tag, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.byWord[keyword]
	return t, ok
}

// VROf returns the VR for tag, defaulting to "UN" when the tag is not in the
// dictionary (the behavior implicit-VR decoding requires).
func (d *Dictionary) VROf(tag Tag) string {
	if e, ok := d.Lookup(tag); ok {
		return e.VR
	}
	return "UN"
}

// ErrPrivateTagRequired is returned when registering a tag whose group is even.
type ErrPrivateTagRequired struct {
	Tag Tag
}

func (e *ErrPrivateTagRequired) Error() string {
	return fmt.Sprintf("dictionary: tag %s is not in a private (odd) group", e.Tag)
}

// ErrAlreadyRegistered is returned when a tag already has a dictionary entry.
type ErrAlreadyRegistered struct {
	Tag Tag
}

func (e *ErrAlreadyRegistered) Error() string {
	return fmt.Sprintf("dictionary: tag %s is already registered", e.Tag)
}

// RegisterPrivate adds a vendor-private tag entry at runtime. It fails if the
// tag's group is even, or if an entry already exists for that tag. This is
// the dictionary's only write path and is fully serialized.
func (d *Dictionary) RegisterPrivate(e Entry) error {
	if !e.Tag.IsPrivate() {
		return &ErrPrivateTagRequired{Tag: e.Tag}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byTag[e.Tag]; exists {
		return &ErrAlreadyRegistered{Tag: e.Tag}
	}

	d.byTag[e.Tag] = e
	if e.Keyword != "" {
		d.byWord[e.Keyword] = e.Tag
	}
	return nil
}

var unbounded = VM{Min: 1, Max: 0}
var one = VM{Min: 1, Max: 1}

// standardEntries covers the file meta-information group, the DIMSE command
// group, and the patient/study/series/instance identifying attributes the
// archive, index, and query/retrieve engine operate on. It is deliberately
// not a complete PS3.6 data dictionary: unknown tags decode as VR "UN" per
// spec, which is sufficient for every operation this repository performs.
var standardEntries = []Entry{
	// File meta-information group (0002,xxxx) - always Explicit VR LE.
	{Tag: Tag{0x0002, 0x0000}, VR: "UL", VM: one, Keyword: "FileMetaInformationGroupLength"},
	{Tag: Tag{0x0002, 0x0001}, VR: "OB", VM: one, Keyword: "FileMetaInformationVersion"},
	{Tag: Tag{0x0002, 0x0002}, VR: "UI", VM: one, Keyword: "MediaStorageSOPClassUID"},
	{Tag: Tag{0x0002, 0x0003}, VR: "UI", VM: one, Keyword: "MediaStorageSOPInstanceUID"},
	{Tag: Tag{0x0002, 0x0010}, VR: "UI", VM: one, Keyword: "TransferSyntaxUID"},
	{Tag: Tag{0x0002, 0x0012}, VR: "UI", VM: one, Keyword: "ImplementationClassUID"},
	{Tag: Tag{0x0002, 0x0013}, VR: "SH", VM: one, Keyword: "ImplementationVersionName"},
	{Tag: Tag{0x0002, 0x0016}, VR: "AE", VM: one, Keyword: "SourceApplicationEntityTitle"},

	// DIMSE command group (0000,xxxx).
	{Tag: Tag{0x0000, 0x0000}, VR: "UL", VM: one, Keyword: "CommandGroupLength"},
	{Tag: Tag{0x0000, 0x0002}, VR: "UI", VM: one, Keyword: "AffectedSOPClassUID"},
	{Tag: Tag{0x0000, 0x0003}, VR: "UI", VM: one, Keyword: "RequestedSOPClassUID"},
	{Tag: Tag{0x0000, 0x0100}, VR: "US", VM: one, Keyword: "CommandField"},
	{Tag: Tag{0x0000, 0x0110}, VR: "US", VM: one, Keyword: "MessageID"},
	{Tag: Tag{0x0000, 0x0120}, VR: "US", VM: one, Keyword: "MessageIDBeingRespondedTo"},
	{Tag: Tag{0x0000, 0x0600}, VR: "AE", VM: one, Keyword: "MoveDestination"},
	{Tag: Tag{0x0000, 0x0700}, VR: "US", VM: one, Keyword: "Priority"},
	{Tag: Tag{0x0000, 0x0800}, VR: "US", VM: one, Keyword: "CommandDataSetType"},
	{Tag: Tag{0x0000, 0x0900}, VR: "US", VM: one, Keyword: "Status"},
	{Tag: Tag{0x0000, 0x1000}, VR: "UI", VM: one, Keyword: "AffectedSOPInstanceUID"},
	{Tag: Tag{0x0000, 0x1001}, VR: "UI", VM: one, Keyword: "RequestedSOPInstanceUID"},
	{Tag: Tag{0x0000, 0x1002}, VR: "US", VM: one, Keyword: "EventTypeID"},
	{Tag: Tag{0x0000, 0x1005}, VR: "AT", VM: unbounded, Keyword: "AttributeIdentifierList"},
	{Tag: Tag{0x0000, 0x1008}, VR: "US", VM: one, Keyword: "ActionTypeID"},
	{Tag: Tag{0x0000, 0x1020}, VR: "US", VM: one, Keyword: "NumberOfRemainingSuboperations"},
	{Tag: Tag{0x0000, 0x1021}, VR: "US", VM: one, Keyword: "NumberOfCompletedSuboperations"},
	{Tag: Tag{0x0000, 0x1022}, VR: "US", VM: one, Keyword: "NumberOfFailedSuboperations"},
	{Tag: Tag{0x0000, 0x1023}, VR: "US", VM: one, Keyword: "NumberOfWarningSuboperations"},
	{Tag: Tag{0x0000, 0x1031}, VR: "AE", VM: one, Keyword: "MoveOriginatorApplicationEntityTitle"},
	{Tag: Tag{0x0000, 0x1032}, VR: "US", VM: one, Keyword: "MoveOriginatorMessageID"},

	// Patient-level identifying attributes.
	{Tag: Tag{0x0010, 0x0010}, VR: "PN", VM: one, Keyword: "PatientName"},
	{Tag: Tag{0x0010, 0x0020}, VR: "LO", VM: one, Keyword: "PatientID"},
	{Tag: Tag{0x0010, 0x0030}, VR: "DA", VM: one, Keyword: "PatientBirthDate"},
	{Tag: Tag{0x0010, 0x0040}, VR: "CS", VM: one, Keyword: "PatientSex"},
	{Tag: Tag{0x0010, 0x1010}, VR: "AS", VM: one, Keyword: "PatientAge"},

	// Study-level identifying attributes.
	{Tag: Tag{0x0008, 0x0005}, VR: "CS", VM: unbounded, Keyword: "SpecificCharacterSet"},
	{Tag: Tag{0x0008, 0x0016}, VR: "UI", VM: one, Keyword: "SOPClassUID"},
	{Tag: Tag{0x0008, 0x0018}, VR: "UI", VM: one, Keyword: "SOPInstanceUID"},
	{Tag: Tag{0x0008, 0x0020}, VR: "DA", VM: one, Keyword: "StudyDate"},
	{Tag: Tag{0x0008, 0x0030}, VR: "TM", VM: one, Keyword: "StudyTime"},
	{Tag: Tag{0x0008, 0x0050}, VR: "SH", VM: one, Keyword: "AccessionNumber"},
	{Tag: Tag{0x0008, 0x0052}, VR: "CS", VM: one, Keyword: "QueryRetrieveLevel"},
	{Tag: Tag{0x0008, 0x0054}, VR: "AE", VM: unbounded, Keyword: "RetrieveAETitle"},
	{Tag: Tag{0x0008, 0x0060}, VR: "CS", VM: one, Keyword: "Modality"},
	{Tag: Tag{0x0008, 0x0080}, VR: "LO", VM: one, Keyword: "InstitutionName"},
	{Tag: Tag{0x0008, 0x0090}, VR: "PN", VM: one, Keyword: "ReferringPhysicianName"},
	{Tag: Tag{0x0008, 0x1030}, VR: "LO", VM: one, Keyword: "StudyDescription"},
	{Tag: Tag{0x0008, 0x103E}, VR: "LO", VM: one, Keyword: "SeriesDescription"},
	{Tag: Tag{0x0008, 0x1040}, VR: "LO", VM: one, Keyword: "InstitutionalDepartmentName"},
	{Tag: Tag{0x0008, 0x1050}, VR: "PN", VM: unbounded, Keyword: "PerformingPhysicianName"},
	{Tag: Tag{0x0008, 0x1060}, VR: "PN", VM: unbounded, Keyword: "NameOfPhysiciansReadingStudy"},
	{Tag: Tag{0x0008, 0x1070}, VR: "PN", VM: unbounded, Keyword: "OperatorsName"},

	// Series-level attributes.
	{Tag: Tag{0x0018, 0x0015}, VR: "CS", VM: one, Keyword: "BodyPartExamined"},
	{Tag: Tag{0x0020, 0x000D}, VR: "UI", VM: one, Keyword: "StudyInstanceUID"},
	{Tag: Tag{0x0020, 0x000E}, VR: "UI", VM: one, Keyword: "SeriesInstanceUID"},
	{Tag: Tag{0x0020, 0x0010}, VR: "SH", VM: one, Keyword: "StudyID"},
	{Tag: Tag{0x0020, 0x0011}, VR: "IS", VM: one, Keyword: "SeriesNumber"},
	{Tag: Tag{0x0020, 0x0013}, VR: "IS", VM: one, Keyword: "InstanceNumber"},
	{Tag: Tag{0x0020, 0x0020}, VR: "CS", VM: VM{Min: 2, Max: 2}, Keyword: "PatientOrientation"},

	// Pixel data and basic image attributes (opaque/passthrough per Non-goals).
	{Tag: Tag{0x0028, 0x0002}, VR: "US", VM: one, Keyword: "SamplesPerPixel"},
	{Tag: Tag{0x0028, 0x0010}, VR: "US", VM: one, Keyword: "Rows"},
	{Tag: Tag{0x0028, 0x0011}, VR: "US", VM: one, Keyword: "Columns"},
	{Tag: Tag{0x7FE0, 0x0010}, VR: "OW", VM: one, Keyword: "PixelData"},
}
