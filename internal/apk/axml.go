package apk

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"unicode/utf16"
)

// Binary XML chunk types.
const (
	chunkStringPool   = 0x0001
	chunkXML          = 0x0003
	chunkResourceMap  = 0x0180
	chunkStartElement = 0x0102

	stringPoolUTF8 = 1 << 8
	noIndex        = 0xffffffff
)

// Typed value data types.
const (
	typeReference = 0x01
	typeString    = 0x03
	typeIntDec    = 0x10
	typeIntHex    = 0x11
	typeBoolean   = 0x12
)

// Attribute resource IDs. Obfuscated manifests may blank out attribute
// names in the string pool, the resource map still carries these.
var attrNames = map[uint32]string{
	0x01010003: "name",
	0x0101020c: "minSdkVersion",
	0x0101021b: "versionCode",
	0x0101021c: "versionName",
	0x01010270: "targetSdkVersion",
	0x01010271: "maxSdkVersion",
	0x0101028e: "required",
}

type xmlAttr struct {
	Name  string
	Value string
	Int   int64
	IsInt bool
}

type xmlElement struct {
	Name  string
	Attrs []xmlAttr
}

func (e xmlElement) attr(name string) (xmlAttr, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return xmlAttr{}, false
}

func (e xmlElement) intAttr(name string) (int64, bool) {
	a, ok := e.attr(name)
	if !ok {
		return 0, false
	}
	if a.IsInt {
		return a.Int, true
	}
	n, err := strconv.ParseInt(a.Value, 10, 64)
	return n, err == nil
}

func (e xmlElement) stringAttr(name string) string {
	a, _ := e.attr(name)
	return a.Value
}

type xmlDecoder struct {
	strings []string
	resIDs  []uint32
}

// decodeXML returns the start elements of an Android binary XML document in
// document order.
func decodeXML(b []byte) ([]xmlElement, error) {
	if len(b) < 8 || binary.LittleEndian.Uint16(b) != chunkXML {
		return nil, fmt.Errorf("%w: not a binary XML document", ErrBadManifest)
	}
	headerSize := int(binary.LittleEndian.Uint16(b[2:]))
	size := int(binary.LittleEndian.Uint32(b[4:]))
	if size > len(b) || headerSize < 8 || headerSize > size {
		return nil, fmt.Errorf("%w: invalid document header", ErrBadManifest)
	}

	d := &xmlDecoder{}
	var elements []xmlElement
	for off := headerSize; off+8 <= size; {
		typ := binary.LittleEndian.Uint16(b[off:])
		chunkHeader := int(binary.LittleEndian.Uint16(b[off+2:]))
		chunkSize := int(binary.LittleEndian.Uint32(b[off+4:]))
		if chunkSize < 8 || chunkHeader < 8 || chunkHeader > chunkSize || off+chunkSize > size {
			return nil, fmt.Errorf("%w: invalid chunk at offset %d", ErrBadManifest, off)
		}
		chunk := b[off : off+chunkSize]

		switch typ {
		case chunkStringPool:
			if err := d.readStringPool(chunk); err != nil {
				return nil, err
			}
		case chunkResourceMap:
			for i := chunkHeader; i+4 <= chunkSize; i += 4 {
				d.resIDs = append(d.resIDs, binary.LittleEndian.Uint32(chunk[i:]))
			}
		case chunkStartElement:
			el, err := d.readStartElement(chunk, chunkHeader)
			if err != nil {
				return nil, err
			}
			elements = append(elements, el)
		}
		off += chunkSize
	}
	return elements, nil
}

func (d *xmlDecoder) readStringPool(chunk []byte) error {
	if len(chunk) < 28 {
		return fmt.Errorf("%w: short string pool", ErrBadManifest)
	}
	count := int(binary.LittleEndian.Uint32(chunk[8:]))
	flags := binary.LittleEndian.Uint32(chunk[16:])
	start := int(binary.LittleEndian.Uint32(chunk[20:]))
	headerSize := int(binary.LittleEndian.Uint16(chunk[2:]))
	if headerSize+count*4 > len(chunk) || start > len(chunk) {
		return fmt.Errorf("%w: string pool out of bounds", ErrBadManifest)
	}

	d.strings = make([]string, count)
	for i := range count {
		off := start + int(binary.LittleEndian.Uint32(chunk[headerSize+i*4:]))
		if off >= len(chunk) {
			return fmt.Errorf("%w: string %d out of bounds", ErrBadManifest, i)
		}
		var s string
		var err error
		if flags&stringPoolUTF8 != 0 {
			s, err = decodeUTF8String(chunk[off:])
		} else {
			s, err = decodeUTF16String(chunk[off:])
		}
		if err != nil {
			return fmt.Errorf("%w: string %d: %v", ErrBadManifest, i, err)
		}
		d.strings[i] = s
	}
	return nil
}

func decodeUTF8String(b []byte) (string, error) {
	// Character count, then byte count; each one or two bytes.
	_, n := utf8Length(b)
	if n == 0 {
		return "", fmt.Errorf("truncated length")
	}
	byteLen, m := utf8Length(b[n:])
	if m == 0 || n+m+byteLen > len(b) {
		return "", fmt.Errorf("truncated string")
	}
	return string(b[n+m : n+m+byteLen]), nil
}

func utf8Length(b []byte) (int, int) {
	if len(b) == 0 {
		return 0, 0
	}
	if b[0]&0x80 == 0 {
		return int(b[0]), 1
	}
	if len(b) < 2 {
		return 0, 0
	}
	return int(b[0]&0x7f)<<8 | int(b[1]), 2
}

func decodeUTF16String(b []byte) (string, error) {
	if len(b) < 2 {
		return "", fmt.Errorf("truncated length")
	}
	n := int(binary.LittleEndian.Uint16(b))
	off := 2
	if n&0x8000 != 0 {
		if len(b) < 4 {
			return "", fmt.Errorf("truncated length")
		}
		n = (n&0x7fff)<<16 | int(binary.LittleEndian.Uint16(b[2:]))
		off = 4
	}
	if off+n*2 > len(b) {
		return "", fmt.Errorf("truncated string")
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[off+i*2:])
	}
	return string(utf16.Decode(units)), nil
}

func (d *xmlDecoder) str(idx uint32) string {
	if idx == noIndex || int(idx) >= len(d.strings) {
		return ""
	}
	return d.strings[idx]
}

func (d *xmlDecoder) attrName(idx uint32) string {
	if int(idx) < len(d.resIDs) {
		if name, ok := attrNames[d.resIDs[idx]]; ok {
			return name
		}
	}
	return d.str(idx)
}

func (d *xmlDecoder) readStartElement(chunk []byte, headerSize int) (xmlElement, error) {
	ext := chunk[headerSize:]
	if len(ext) < 20 {
		return xmlElement{}, fmt.Errorf("%w: short element", ErrBadManifest)
	}
	el := xmlElement{Name: d.str(binary.LittleEndian.Uint32(ext[4:]))}
	attrStart := int(binary.LittleEndian.Uint16(ext[8:]))
	attrSize := int(binary.LittleEndian.Uint16(ext[10:]))
	count := int(binary.LittleEndian.Uint16(ext[12:]))
	if attrSize < 20 || attrStart+count*attrSize > len(ext) {
		return xmlElement{}, fmt.Errorf("%w: element %q attributes out of bounds", ErrBadManifest, el.Name)
	}

	for i := range count {
		a := ext[attrStart+i*attrSize:]
		raw := binary.LittleEndian.Uint32(a[8:])
		dataType := a[15]
		data := binary.LittleEndian.Uint32(a[16:])

		attr := xmlAttr{Name: d.attrName(binary.LittleEndian.Uint32(a[4:]))}
		switch dataType {
		case typeString:
			attr.Value = d.str(data)
		case typeIntDec, typeIntHex:
			attr.Int = int64(int32(data))
			attr.IsInt = true
			attr.Value = strconv.FormatInt(attr.Int, 10)
		case typeBoolean:
			attr.Value = strconv.FormatBool(data != 0)
		case typeReference:
			attr.Value = fmt.Sprintf("@0x%08x", data)
		default:
			attr.Value = strconv.FormatUint(uint64(data), 10)
		}
		if raw != noIndex && dataType != typeString {
			attr.Value = d.str(raw)
		}
		el.Attrs = append(el.Attrs, attr)
	}
	return el, nil
}

type manifest struct {
	packageName string
	versionCode int64
	versionName string
	minSDK      int
	targetSDK   int
	permissions []Permission
	features    []string
}

func parseManifest(b []byte) (*manifest, error) {
	elements, err := decodeXML(b)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 || elements[0].Name != "manifest" {
		return nil, fmt.Errorf("%w: root element is not <manifest>", ErrBadManifest)
	}

	root := elements[0]
	m := &manifest{
		packageName: root.stringAttr("package"),
		versionName: root.stringAttr("versionName"),
		minSDK:      1,
	}
	if m.packageName == "" {
		return nil, fmt.Errorf("%w: missing package attribute", ErrBadManifest)
	}
	code, ok := root.intAttr("versionCode")
	if !ok || code <= 0 {
		return nil, fmt.Errorf("%w: missing or invalid versionCode", ErrBadManifest)
	}
	m.versionCode = code

	var haveTarget bool
	for _, el := range elements[1:] {
		switch el.Name {
		case "uses-sdk":
			if v, ok := el.intAttr("minSdkVersion"); ok {
				m.minSDK = int(v)
			}
			if v, ok := el.intAttr("targetSdkVersion"); ok {
				m.targetSDK = int(v)
				haveTarget = true
			}
		case "uses-permission", "uses-permission-sdk-23":
			p := Permission{Name: el.stringAttr("name")}
			if p.Name == "" {
				continue
			}
			if v, ok := el.intAttr("maxSdkVersion"); ok {
				p.MaxSDKVersion = int(v)
			}
			m.permissions = append(m.permissions, p)
		case "uses-feature":
			if name := el.stringAttr("name"); name != "" {
				m.features = append(m.features, name)
			}
		}
	}
	if !haveTarget {
		m.targetSDK = m.minSDK
	}
	return m, nil
}
