package apktest

import (
	"encoding/binary"
	"unicode/utf16"
)

const androidNS = "http://schemas.android.com/apk/res/android"

// Attribute resource IDs used by the manifest encoder.
const (
	resName             = 0x01010003
	resMinSdkVersion    = 0x0101020c
	resVersionCode      = 0x0101021b
	resVersionName      = 0x0101021c
	resTargetSdkVersion = 0x01010270
	resMaxSdkVersion    = 0x01010271
)

const (
	typeString = 0x03
	typeIntDec = 0x10
	noIndex    = 0xffffffff
)

type attr struct {
	name  string
	resID uint32
	ns    bool
	str   string
	num   uint32
	isStr bool
}

type element struct {
	name  string
	attrs []attr
	end   bool
}

func strAttr(name string, resID uint32, v string) attr {
	return attr{name: name, resID: resID, ns: resID != 0, str: v, isStr: true}
}

func intAttr(name string, resID uint32, v int64) attr {
	return attr{name: name, resID: resID, ns: true, num: uint32(v)}
}

// Manifest encodes the AndroidManifest.xml of s in Android binary XML.
func Manifest(s Spec) []byte {
	root := element{name: "manifest", attrs: []attr{
		intAttr("versionCode", resVersionCode, s.VersionCode),
		strAttr("versionName", resVersionName, s.VersionName),
		strAttr("package", 0, s.Package),
	}}
	body := []element{root}
	if s.MinSDK > 0 || s.TargetSDK > 0 {
		var attrs []attr
		if s.MinSDK > 0 {
			attrs = append(attrs, intAttr("minSdkVersion", resMinSdkVersion, int64(s.MinSDK)))
		}
		if s.TargetSDK > 0 {
			attrs = append(attrs, intAttr("targetSdkVersion", resTargetSdkVersion, int64(s.TargetSDK)))
		}
		body = append(body, element{name: "uses-sdk", attrs: attrs}, element{name: "uses-sdk", end: true})
	}
	for _, p := range s.Permissions {
		attrs := []attr{strAttr("name", resName, p.Name)}
		if p.MaxSDKVersion > 0 {
			attrs = append(attrs, intAttr("maxSdkVersion", resMaxSdkVersion, int64(p.MaxSDKVersion)))
		}
		body = append(body, element{name: "uses-permission", attrs: attrs}, element{name: "uses-permission", end: true})
	}
	for _, f := range s.Features {
		body = append(body, element{name: "uses-feature", attrs: []attr{strAttr("name", resName, f)}}, element{name: "uses-feature", end: true})
	}
	body = append(body, element{name: "application"}, element{name: "application", end: true})
	body = append(body, element{name: "manifest", end: true})

	return encode(body, !s.UTF16, s.Obfuscated)
}

func encode(elements []element, utf8 bool, obfuscated bool) []byte {
	// Attribute names with resource IDs occupy the first pool slots so the
	// resource map can index them.
	var pool []string
	index := map[string]uint32{}
	var resIDs []uint32
	intern := func(s string) uint32 {
		if i, ok := index[s]; ok {
			return i
		}
		index[s] = uint32(len(pool))
		pool = append(pool, s)
		return index[s]
	}
	for _, el := range elements {
		for _, a := range el.attrs {
			if a.resID == 0 {
				continue
			}
			key := a.name
			if obfuscated {
				key = "\x00" + a.name
			}
			if _, ok := index[key]; ok {
				continue
			}
			index[key] = uint32(len(pool))
			if obfuscated {
				pool = append(pool, "")
			} else {
				pool = append(pool, a.name)
			}
			resIDs = append(resIDs, a.resID)
		}
	}
	nameIndex := func(a attr) uint32 {
		if a.resID == 0 {
			return intern(a.name)
		}
		if obfuscated {
			return index["\x00"+a.name]
		}
		return index[a.name]
	}
	ns := intern(androidNS)

	var chunks []byte
	for _, el := range elements {
		name := intern(el.name)
		if el.end {
			c := chunkHeader(0x0103, 16, 24)
			c = le32(c, 1, noIndex, noIndex, name)
			chunks = append(chunks, c...)
			continue
		}
		c := chunkHeader(0x0102, 16, uint32(36+20*len(el.attrs)))
		c = le32(c, 1, noIndex, noIndex, name)
		c = le16(c, 20, 20, uint16(len(el.attrs)), 0, 0, 0)
		for _, a := range el.attrs {
			nsIdx := uint32(noIndex)
			if a.ns {
				nsIdx = ns
			}
			if a.isStr {
				v := intern(a.str)
				c = le32(c, nsIdx, nameIndex(a), v)
				c = le16(c, 8)
				c = append(c, 0, typeString)
				c = le32(c, v)
			} else {
				c = le32(c, nsIdx, nameIndex(a), noIndex)
				c = le16(c, 8)
				c = append(c, 0, typeIntDec)
				c = le32(c, a.num)
			}
		}
		chunks = append(chunks, c...)
	}

	sp := stringPool(pool, utf8)
	rm := chunkHeader(0x0180, 8, uint32(8+4*len(resIDs)))
	rm = le32(rm, resIDs...)

	total := 8 + len(sp) + len(rm) + len(chunks)
	out := chunkHeader(0x0003, 8, uint32(total))
	out = append(out, sp...)
	out = append(out, rm...)
	return append(out, chunks...)
}

func stringPool(pool []string, utf8 bool) []byte {
	var data []byte
	offsets := make([]uint32, len(pool))
	for i, s := range pool {
		offsets[i] = uint32(len(data))
		if utf8 {
			data = appendLen8(data, len([]rune(s)))
			data = appendLen8(data, len(s))
			data = append(data, s...)
			data = append(data, 0)
			continue
		}
		units := utf16.Encode([]rune(s))
		data = le16(data, uint16(len(units)))
		data = le16(data, units...)
		data = le16(data, 0)
	}
	for len(data)%4 != 0 {
		data = append(data, 0)
	}

	var flags uint32
	if utf8 {
		flags = 1 << 8
	}
	header := 28
	start := uint32(header + 4*len(pool))
	c := chunkHeader(0x0001, uint16(header), start+uint32(len(data)))
	c = le32(c, uint32(len(pool)), 0, flags, start, 0)
	c = le32(c, offsets...)
	return append(c, data...)
}

func appendLen8(b []byte, n int) []byte {
	if n < 0x80 {
		return append(b, byte(n))
	}
	return append(b, byte(n>>8)|0x80, byte(n))
}

func chunkHeader(typ, headerSize uint16, size uint32) []byte {
	b := le16(nil, typ, headerSize)
	return le32(b, size)
}

func le16(b []byte, vs ...uint16) []byte {
	for _, v := range vs {
		b = binary.LittleEndian.AppendUint16(b, v)
	}
	return b
}

func le32(b []byte, vs ...uint32) []byte {
	for _, v := range vs {
		b = binary.LittleEndian.AppendUint32(b, v)
	}
	return b
}
