package dicom

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/caio-sobreiro/pacsnet/dictionary"
	"github.com/caio-sobreiro/pacsnet/types"
)

// VR (Value Representation) constants
const (
	VR_AE = "AE" // Application Entity
	VR_AS = "AS" // Age String
	VR_AT = "AT" // Attribute Tag
	VR_CS = "CS" // Code String
	VR_DA = "DA" // Date
	VR_DS = "DS" // Decimal String
	VR_DT = "DT" // Date Time
	VR_FL = "FL" // Floating Point Single
	VR_FD = "FD" // Floating Point Double
	VR_IS = "IS" // Integer String
	VR_LO = "LO" // Long String
	VR_LT = "LT" // Long Text
	VR_OB = "OB" // Other Byte
	VR_OD = "OD" // Other Double
	VR_OF = "OF" // Other Float
	VR_OL = "OL" // Other Long
	VR_OV = "OV" // Other Very Long
	VR_OW = "OW" // Other Word
	VR_PN = "PN" // Person Name
	VR_SH = "SH" // Short String
	VR_SL = "SL" // Signed Long
	VR_SQ = "SQ" // Sequence of Items
	VR_SS = "SS" // Signed Short
	VR_ST = "ST" // Short Text
	VR_SV = "SV" // Signed Very Long
	VR_TM = "TM" // Time
	VR_UC = "UC" // Unlimited Characters
	VR_UI = "UI" // Unique Identifier
	VR_UL = "UL" // Unsigned Long
	VR_UN = "UN" // Unknown
	VR_UR = "UR" // Universal Resource
	VR_US = "US" // Unsigned Short
	VR_UT = "UT" // Unlimited Text
	VR_UV = "UV" // Unsigned Very Long
)

// Common transfer syntax UIDs
const (
	TransferSyntaxImplicitVRLittleEndian = types.ImplicitVRLittleEndian
	TransferSyntaxExplicitVRLittleEndian = types.ExplicitVRLittleEndian
	TransferSyntaxExplicitVRBigEndian    = types.ExplicitVRBigEndian
)

// Sequence item delimiter tags (DICOM PS3.5 §7.5).
var (
	itemTag             = Tag{0xFFFE, 0xE000}
	itemDelimiterTag    = Tag{0xFFFE, 0xE00D}
	sequenceDelimiterTag = Tag{0xFFFE, 0xE0DD}
)

const undefinedLength = 0xFFFFFFFF

func isLongVR(vr string) bool {
	switch vr {
	case VR_OB, VR_OD, VR_OF, VR_OL, VR_OW, VR_SQ, VR_UC, VR_UR, VR_UT, VR_UN, VR_OV, VR_SV, VR_UV:
		return true
	default:
		return false
	}
}

// ValidationError reports a data element whose value count falls outside
// the tag's value-multiplicity range. Only ValidateVM produces it: neither the
// encoders nor the decoder call ValidateVM, so datasets with such elements are
// serialized and parsed without error.
type ValidationError struct {
	Tag      Tag
	VR       string
	Count    int
	Min, Max int
}

func (e *ValidationError) Error() string {
	maxDesc := fmt.Sprintf("%d", e.Max)
	if e.Max == 0 {
		maxDesc = "unbounded"
	}
	return fmt.Sprintf("dicom: %s value count %d outside VM range [%d,%s]", Tag{e.Tag.Group, e.Tag.Element}, e.Count, e.Min, maxDesc)
}

// ValidateVM checks every element in the dataset against the tag dictionary's
// value-multiplicity range, returning one ValidationError per violation.
// Tags absent from the dictionary are not checked.
func (d *Dataset) ValidateVM() []error {
	var errs []error
	for tag, el := range d.Elements {
		entry, ok := dictionary.Default.Lookup(dictionary.Tag{Group: tag.Group, Element: tag.Element})
		if !ok {
			continue
		}
		count := valueCount(el.Value)
		if !entry.VM.Allows(count) {
			errs = append(errs, &ValidationError{Tag: tag, VR: el.VR, Count: count, Min: entry.VM.Min, Max: entry.VM.Max})
		}
	}
	return errs
}

func valueCount(v interface{}) int {
	switch val := v.(type) {
	case []string:
		return len(val)
	case string:
		if val == "" {
			return 0
		}
		return len(strings.Split(val, "\\"))
	case []*Dataset:
		return len(val)
	default:
		return 1
	}
}

// Tag represents a DICOM tag (group, element)
type Tag struct {
	Group   uint16
	Element uint16
}

// String returns the tag as a string in (GGGG,EEEE) format
func (t Tag) String() string {
	return fmt.Sprintf("(%04x,%04x)", t.Group, t.Element)
}

// Element represents a DICOM data element
type Element struct {
	Tag    Tag
	VR     string
	Length uint32
	Value  interface{}
}

// Dataset represents a collection of DICOM elements
type Dataset struct {
	Elements map[Tag]*Element
}

// NewDataset creates a new empty dataset
func NewDataset() *Dataset {
	return &Dataset{
		Elements: make(map[Tag]*Element),
	}
}

// AddElement adds an element to the dataset
func (d *Dataset) AddElement(tag Tag, vr string, value interface{}) {
	element := &Element{
		Tag:   tag,
		VR:    vr,
		Value: value,
	}
	d.Elements[tag] = element
}

// GetElement returns an element by tag
func (d *Dataset) GetElement(tag Tag) (*Element, bool) {
	element, exists := d.Elements[tag]
	return element, exists
}

// GetString returns a string value for a tag
func (d *Dataset) GetString(tag Tag) string {
	if element, exists := d.Elements[tag]; exists {
		if str, ok := element.Value.(string); ok {
			return strings.TrimSpace(str)
		}
	}
	return ""
}

// GetStrings returns a slice of string values for a tag
func (d *Dataset) GetStrings(tag Tag) []string {
	if element, exists := d.Elements[tag]; exists {
		switch v := element.Value.(type) {
		case string:
			// Split by backslash for multiple values
			parts := strings.Split(v, "\\")
			result := make([]string, len(parts))
			for i, part := range parts {
				result[i] = strings.TrimSpace(part)
			}
			return result
		case []string:
			return v
		}
	}
	return nil
}

// ParseDataset parses a DICOM dataset from raw bytes (Explicit VR Little Endian)
func ParseDataset(data []byte) (*Dataset, error) {
	return parseDatasetCore(data, binary.LittleEndian, true)
}

// ParseDatasetWithTransferSyntax parses a dataset using the provided transfer syntax.
func ParseDatasetWithTransferSyntax(data []byte, transferSyntaxUID string) (*Dataset, error) {
	switch transferSyntaxUID {
	case "", TransferSyntaxExplicitVRLittleEndian:
		return parseDatasetCore(data, binary.LittleEndian, true)
	case TransferSyntaxImplicitVRLittleEndian:
		return parseDatasetCore(data, binary.LittleEndian, false)
	case TransferSyntaxExplicitVRBigEndian:
		return parseDatasetCore(data, binary.BigEndian, true)
	default:
		if types.GetTransferSyntaxInfo(transferSyntaxUID).Name == "Unknown" {
			return nil, fmt.Errorf("unsupported transfer syntax: %s", transferSyntaxUID)
		}
		return parseDatasetCore(data, binary.LittleEndian, true)
	}
}

func parseImplicitVRDataset(data []byte) (*Dataset, error) {
	return parseDatasetCore(data, binary.LittleEndian, false)
}

// parseDatasetCore decodes a flat run of data elements under the given byte
// order and VR-encoding mode. Sequence (SQ) elements recurse into nested
// item datasets, in both length-prefixed and undefined-length/delimited
// form; the decoder never consumes bytes beyond the window it was given.
func parseDatasetCore(data []byte, order binary.ByteOrder, explicit bool) (*Dataset, error) {
	dataset := NewDataset()
	if len(data) == 0 {
		return dataset, nil
	}

	offset := 0
	for offset < len(data) {
		if offset+8 > len(data) {
			break
		}

		group := order.Uint16(data[offset : offset+2])
		element := order.Uint16(data[offset+2 : offset+4])
		tag := Tag{Group: group, Element: element}

		var vr string
		var length uint32
		var valueOffset int

		if explicit {
			vr = string(data[offset+4 : offset+6])
			if isLongVR(vr) {
				if offset+12 > len(data) {
					break
				}
				length = order.Uint32(data[offset+8 : offset+12])
				valueOffset = offset + 12
			} else {
				length = uint32(order.Uint16(data[offset+6 : offset+8]))
				valueOffset = offset + 8
			}
		} else {
			vr = determineVR(tag)
			length = order.Uint32(data[offset+4 : offset+8])
			valueOffset = offset + 8
		}

		if vr == VR_SQ {
			items, consumed, err := parseSequenceItems(data[valueOffset:], order, explicit, length)
			if err != nil {
				return dataset, err
			}
			dataset.AddElement(tag, vr, items)
			offset = valueOffset + consumed
			continue
		}

		if length == undefinedLength {
			// Undefined-length non-sequence (e.g. encapsulated pixel data):
			// treat as opaque through the sequence-delimiter scanner.
			items, consumed, err := parseEncapsulatedFrames(data[valueOffset:], order)
			if err != nil {
				return dataset, err
			}
			dataset.AddElement(tag, vr, items)
			offset = valueOffset + consumed
			continue
		}

		if valueOffset+int(length) > len(data) {
			break
		}

		valueData := data[valueOffset : valueOffset+int(length)]
		value := parseElementValue(vr, order, valueData)
		dataset.AddElement(tag, vr, value)

		nextOffset := valueOffset + int(length)
		if length%2 == 1 {
			nextOffset++
		}
		offset = nextOffset
	}

	return dataset, nil
}

// parseSequenceItems decodes the items of an SQ element. declaredLength is
// either the element's explicit byte length or undefinedLength, in which
// case decoding stops at a sequence-delimiter item (FFFE,E0DD).
func parseSequenceItems(data []byte, order binary.ByteOrder, explicit bool, declaredLength uint32) ([]*Dataset, int, error) {
	var items []*Dataset
	offset := 0
	limit := len(data)
	if declaredLength != undefinedLength {
		limit = int(declaredLength)
		if limit > len(data) {
			limit = len(data)
		}
	}

	for offset < limit {
		if offset+8 > len(data) {
			break
		}
		group := order.Uint16(data[offset : offset+2])
		element := order.Uint16(data[offset+2 : offset+4])
		itemLength := order.Uint32(data[offset+4 : offset+8])
		offset += 8

		if group == sequenceDelimiterTag.Group && element == sequenceDelimiterTag.Element {
			break
		}
		if group != itemTag.Group || element != itemTag.Element {
			return items, offset, fmt.Errorf("dicom: expected sequence item, got tag (%04x,%04x)", group, element)
		}

		if itemLength == undefinedLength {
			// Scan forward for this item's delimiter.
			end := offset
			for end+8 <= len(data) {
				g := order.Uint16(data[end : end+2])
				e := order.Uint16(data[end+2 : end+4])
				if g == itemDelimiterTag.Group && e == itemDelimiterTag.Element {
					break
				}
				end++
			}
			itemDataset, err := parseDatasetCore(data[offset:end], order, explicit)
			if err != nil {
				return items, offset, err
			}
			items = append(items, itemDataset)
			offset = end + 8
			continue
		}

		end := offset + int(itemLength)
		if end > len(data) {
			end = len(data)
		}
		itemDataset, err := parseDatasetCore(data[offset:end], order, explicit)
		if err != nil {
			return items, offset, err
		}
		items = append(items, itemDataset)
		offset = end
	}

	return items, offset, nil
}

// parseEncapsulatedFrames decodes an undefined-length opaque value (used by
// encapsulated pixel data) into its constituent item byte buffers, passed
// through unchanged per the Non-goal that pixel payloads are not decompressed.
func parseEncapsulatedFrames(data []byte, order binary.ByteOrder) ([]*Dataset, int, error) {
	offset := 0
	var frames []*Dataset
	for offset+8 <= len(data) {
		group := order.Uint16(data[offset : offset+2])
		element := order.Uint16(data[offset+2 : offset+4])
		length := order.Uint32(data[offset+4 : offset+8])
		offset += 8

		if group == sequenceDelimiterTag.Group && element == sequenceDelimiterTag.Element {
			break
		}
		if length == undefinedLength || offset+int(length) > len(data) {
			break
		}
		frame := NewDataset()
		frame.AddElement(itemTag, VR_OB, data[offset:offset+int(length)])
		frames = append(frames, frame)
		offset += int(length)
	}
	return frames, offset, nil
}

// parseElementValue parses the value based on the VR and raw data.
func parseElementValue(vr string, order binary.ByteOrder, data []byte) interface{} {
	switch vr {
	case VR_US:
		if len(data) >= 2 {
			return order.Uint16(data[:2])
		}
	case VR_UL, VR_AT:
		if len(data) >= 4 {
			return order.Uint32(data[:4])
		}
	}

	if len(data) == 0 {
		return ""
	}

	value := string(data)
	if idx := strings.IndexByte(value, 0); idx != -1 {
		value = value[:idx]
	}

	return strings.TrimSpace(value)
}

// determineVR looks up the VR for an implicit-VR tag in the tag dictionary,
// falling back to VR_UN ("unknown", opaque bytes) per spec for any tag the
// dictionary does not carry.
func determineVR(tag Tag) string {
	return dictionary.Default.VROf(dictionary.Tag{Group: tag.Group, Element: tag.Element})
}

// EncodeDataset encodes a dataset to bytes (Explicit VR Little Endian)
func (d *Dataset) EncodeDataset() []byte {
	return encodeDatasetCore(d, binary.LittleEndian, true)
}

// EncodeDatasetWithTransferSyntax encodes a dataset using the provided transfer syntax.
func EncodeDatasetWithTransferSyntax(dataset *Dataset, transferSyntaxUID string) ([]byte, error) {
	if dataset == nil {
		return nil, nil
	}

	switch transferSyntaxUID {
	case "", TransferSyntaxExplicitVRLittleEndian:
		return encodeDatasetCore(dataset, binary.LittleEndian, true), nil
	case TransferSyntaxImplicitVRLittleEndian:
		return encodeDatasetCore(dataset, binary.LittleEndian, false), nil
	case TransferSyntaxExplicitVRBigEndian:
		return encodeDatasetCore(dataset, binary.BigEndian, true), nil
	default:
		if types.GetTransferSyntaxInfo(transferSyntaxUID).Name == "Unknown" {
			return nil, fmt.Errorf("unsupported transfer syntax: %s", transferSyntaxUID)
		}
		return encodeDatasetCore(dataset, binary.LittleEndian, true), nil
	}
}

func encodeImplicitVRDataset(dataset *Dataset) []byte {
	return encodeDatasetCore(dataset, binary.LittleEndian, false)
}

func sortedTags(elements map[Tag]*Element) []Tag {
	tags := make([]Tag, 0, len(elements))
	for tag := range elements {
		tags = append(tags, tag)
	}
	for i := 0; i < len(tags)-1; i++ {
		for j := i + 1; j < len(tags); j++ {
			if tags[i].Group > tags[j].Group ||
				(tags[i].Group == tags[j].Group && tags[i].Element > tags[j].Element) {
				tags[i], tags[j] = tags[j], tags[i]
			}
		}
	}
	return tags
}

// encodeDatasetCore serializes a dataset under the given byte order and
// VR-encoding mode, recursing into sequence items.
func encodeDatasetCore(dataset *Dataset, order binary.ByteOrder, explicit bool) []byte {
	var result []byte

	for _, tag := range sortedTags(dataset.Elements) {
		element := dataset.Elements[tag]

		tagBytes := make([]byte, 4)
		order.PutUint16(tagBytes[0:2], tag.Group)
		order.PutUint16(tagBytes[2:4], tag.Element)
		result = append(result, tagBytes...)

		if explicit {
			result = append(result, []byte(element.VR)...)
		}

		if element.VR == VR_SQ {
			items, _ := element.Value.([]*Dataset)
			itemBytes := encodeSequenceItems(items, order, explicit)
			result = appendLength(result, order, explicit, element.VR, uint32(len(itemBytes)))
			result = append(result, itemBytes...)
			continue
		}

		valueBytes := encodeElementValue(element, order)
		if len(valueBytes)%2 == 1 {
			valueBytes = append(valueBytes, paddingByte(element.VR))
		}

		result = appendLength(result, order, explicit, element.VR, uint32(len(valueBytes)))
		result = append(result, valueBytes...)
	}

	return result
}

func appendLength(buf []byte, order binary.ByteOrder, explicit bool, vr string, length uint32) []byte {
	if !explicit {
		lengthBytes := make([]byte, 4)
		order.PutUint32(lengthBytes, length)
		return append(buf, lengthBytes...)
	}

	if isLongVR(vr) {
		buf = append(buf, 0x00, 0x00)
		lengthBytes := make([]byte, 4)
		order.PutUint32(lengthBytes, length)
		return append(buf, lengthBytes...)
	}

	if length > 65535 {
		length = 65535
	}
	lengthBytes := make([]byte, 2)
	order.PutUint16(lengthBytes, uint16(length))
	return append(buf, lengthBytes...)
}

func paddingByte(vr string) byte {
	if vr == VR_UI {
		return 0x00
	}
	return 0x20
}

// encodeSequenceItems serializes SQ items using explicit item framing
// (FFFE,E000) with a definite length per item; the sequence itself carries
// a definite total length (the undefined-length/delimited form is a decoder
// compatibility concern, not something this encoder needs to produce).
func encodeSequenceItems(items []*Dataset, order binary.ByteOrder, explicit bool) []byte {
	var result []byte
	for _, item := range items {
		itemBody := encodeDatasetCore(item, order, explicit)

		header := make([]byte, 8)
		order.PutUint16(header[0:2], itemTag.Group)
		order.PutUint16(header[2:4], itemTag.Element)
		order.PutUint32(header[4:8], uint32(len(itemBody)))

		result = append(result, header...)
		result = append(result, itemBody...)
	}
	return result
}

// encodeElementValue encodes an element value to bytes
func encodeElementValue(element *Element, order binary.ByteOrder) []byte {
	switch v := element.Value.(type) {
	case string:
		value := strings.TrimRight(v, "\x00")
		return []byte(value)
	case []string:
		joined := strings.Join(v, "\\")
		joined = strings.TrimRight(joined, "\x00")
		return []byte(joined)
	case []byte:
		return v
	case int:
		return []byte(fmt.Sprintf("%d", v))
	case uint16:
		result := make([]byte, 2)
		order.PutUint16(result, v)
		return result
	case uint32:
		result := make([]byte, 4)
		order.PutUint32(result, v)
		return result
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}
