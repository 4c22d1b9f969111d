package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/pacsnet/dicom"
)

func sampleDataset(studyUID, seriesUID, sopUID string) *dicom.Dataset {
	ds := dicom.NewDataset()
	ds.AddElement(dicom.Tag{Group: 0x0020, Element: 0x000D}, dicom.VR_UI, studyUID)
	ds.AddElement(dicom.Tag{Group: 0x0020, Element: 0x000E}, dicom.VR_UI, seriesUID)
	ds.AddElement(dicom.Tag{Group: 0x0008, Element: 0x0018}, dicom.VR_UI, sopUID)
	ds.AddElement(dicom.Tag{Group: 0x0008, Element: 0x0016}, dicom.VR_UI, "1.2.840.10008.5.1.4.1.1.7")
	ds.AddElement(dicom.Tag{Group: 0x0008, Element: 0x0020}, dicom.VR_DA, "20260115")
	ds.AddElement(dicom.Tag{Group: 0x0010, Element: 0x0010}, dicom.VR_PN, "DOE^JANE")
	return ds
}

func TestStore_UIDHierarchicalRoundTrip(t *testing.T) {
	a := New(t.TempDir(), NamingUIDHierarchical, DuplicateReject, true)
	ds := sampleDataset("1.2.3", "1.2.3.1", "1.2.3.1.1")

	result, err := a.Store(ds, dicom.TransferSyntaxExplicitVRLittleEndian)
	require.NoError(t, err)
	assert.Contains(t, result.Path, "1.2.3/1.2.3.1/1.2.3.1.1.dcm")

	_, retrieved, err := a.Retrieve("1.2.3.1.1")
	require.NoError(t, err)
	assert.Equal(t, "DOE^JANE", retrieved.GetString(dicom.Tag{Group: 0x0010, Element: 0x0010}))
}

func TestStore_FlatNaming(t *testing.T) {
	a := New(t.TempDir(), NamingFlat, DuplicateReject, true)
	ds := sampleDataset("1.2.3", "1.2.3.1", "1.2.3.1.1")

	result, err := a.Store(ds, dicom.TransferSyntaxExplicitVRLittleEndian)
	require.NoError(t, err)
	assert.Contains(t, result.Path, "1.2.3.1.1.dcm")
	assert.NotContains(t, result.Path, "1.2.3.1/")
}

func TestStore_DateHierarchicalNaming(t *testing.T) {
	a := New(t.TempDir(), NamingDateHierarchical, DuplicateReject, true)
	ds := sampleDataset("1.2.3", "1.2.3.1", "1.2.3.1.1")

	result, err := a.Store(ds, dicom.TransferSyntaxExplicitVRLittleEndian)
	require.NoError(t, err)
	assert.Contains(t, result.Path, "2026/01/15/1.2.3/1.2.3.1.1.dcm")
}

func TestStore_MissingIdentifiers(t *testing.T) {
	a := New(t.TempDir(), NamingUIDHierarchical, DuplicateReject, true)
	ds := dicom.NewDataset()

	_, err := a.Store(ds, dicom.TransferSyntaxExplicitVRLittleEndian)
	require.Error(t, err)
	var missingErr *ErrMissingIdentifiers
	require.ErrorAs(t, err, &missingErr)
}

func TestStore_DuplicatePolicyReject(t *testing.T) {
	a := New(t.TempDir(), NamingUIDHierarchical, DuplicateReject, true)
	ds := sampleDataset("1.2.3", "1.2.3.1", "1.2.3.1.1")

	_, err := a.Store(ds, dicom.TransferSyntaxExplicitVRLittleEndian)
	require.NoError(t, err)

	_, err = a.Store(ds, dicom.TransferSyntaxExplicitVRLittleEndian)
	require.Error(t, err)
	var dupErr *ErrDuplicateInstance
	require.ErrorAs(t, err, &dupErr)
}

func TestStore_DuplicatePolicyIgnore(t *testing.T) {
	a := New(t.TempDir(), NamingUIDHierarchical, DuplicateIgnore, true)
	ds := sampleDataset("1.2.3", "1.2.3.1", "1.2.3.1.1")

	_, err := a.Store(ds, dicom.TransferSyntaxExplicitVRLittleEndian)
	require.NoError(t, err)

	result, err := a.Store(ds, dicom.TransferSyntaxExplicitVRLittleEndian)
	require.NoError(t, err)
	assert.True(t, result.Ignored)
}

func TestStore_DuplicatePolicyReplace(t *testing.T) {
	a := New(t.TempDir(), NamingUIDHierarchical, DuplicateReplace, true)
	ds := sampleDataset("1.2.3", "1.2.3.1", "1.2.3.1.1")

	_, err := a.Store(ds, dicom.TransferSyntaxExplicitVRLittleEndian)
	require.NoError(t, err)

	ds.AddElement(dicom.Tag{Group: 0x0010, Element: 0x0010}, dicom.VR_PN, "DOE^JOHN")
	result, err := a.Store(ds, dicom.TransferSyntaxExplicitVRLittleEndian)
	require.NoError(t, err)
	assert.True(t, result.Replaced)

	_, retrieved, err := a.Retrieve("1.2.3.1.1")
	require.NoError(t, err)
	assert.Equal(t, "DOE^JOHN", retrieved.GetString(dicom.Tag{Group: 0x0010, Element: 0x0010}))
}

func TestRetrieve_NotFound(t *testing.T) {
	a := New(t.TempDir(), NamingUIDHierarchical, DuplicateReject, true)
	_, _, err := a.Retrieve("nonexistent")
	require.Error(t, err)
	var notFoundErr *ErrInstanceNotFound
	require.ErrorAs(t, err, &notFoundErr)
}

func TestVerifyIntegrity_Clean(t *testing.T) {
	a := New(t.TempDir(), NamingUIDHierarchical, DuplicateReject, true)
	ds := sampleDataset("1.2.3", "1.2.3.1", "1.2.3.1.1")

	_, err := a.Store(ds, dicom.TransferSyntaxExplicitVRLittleEndian)
	require.NoError(t, err)

	issues := a.VerifyIntegrity()
	assert.Empty(t, issues)
}

func TestWalk_DiscoversStoredInstances(t *testing.T) {
	root := t.TempDir()
	a := New(root, NamingUIDHierarchical, DuplicateReject, true)
	ds := sampleDataset("1.2.3", "1.2.3.1", "1.2.3.1.1")
	_, err := a.Store(ds, dicom.TransferSyntaxExplicitVRLittleEndian)
	require.NoError(t, err)

	fresh := New(root, NamingUIDHierarchical, DuplicateReject, true)
	var found int
	err = fresh.Walk(func(path string, meta dicom.Part10Meta, dataset *dicom.Dataset) error {
		if dataset != nil {
			found++
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, found)
	assert.Equal(t, 1, fresh.InstanceCount())
}
