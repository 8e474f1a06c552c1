// Package apktest builds synthetic APKs for tests: a binary manifest, native
// library entries and v1/v2/v3 signatures over generated certificates.
package apktest

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
)

// Signing schemes understood by Build.
const (
	SchemeV1 = "v1"
	SchemeV2 = "v2"
	SchemeV3 = "v3"
)

// Permission mirrors a uses-permission element.
type Permission struct {
	Name          string
	MaxSDKVersion int
}

// Spec describes the APK to build.
type Spec struct {
	Package     string
	VersionCode int64
	VersionName string
	MinSDK      int
	TargetSDK   int
	Permissions []Permission
	Features    []string
	NativeCode  []string
	// Certs signs the APK; the first one is the primary signer.
	Certs [][]byte
	// Schemes defaults to v2.
	Schemes []string
	// UTF16 encodes the manifest string pool as UTF-16.
	UTF16 bool
	// Obfuscated blanks attribute names so only resource IDs identify them.
	Obfuscated bool
}

// NewCertificate returns a self-signed DER certificate for commonName.
func NewCertificate(tb testing.TB, commonName string) []byte {
	tb.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		tb.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2050, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		tb.Fatalf("create certificate: %v", err)
	}
	return der
}

// Fingerprint is the lowercase hex SHA-256 of der.
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

// Build assembles the APK described by s.
func Build(tb testing.TB, s Spec) []byte {
	tb.Helper()
	schemes := s.Schemes
	if len(schemes) == 0 {
		schemes = []string{SchemeV2}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name string, data []byte) {
		w, err := zw.Create(name)
		if err != nil {
			tb.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			tb.Fatalf("zip write %s: %v", name, err)
		}
	}

	add("AndroidManifest.xml", Manifest(s))
	add("classes.dex", []byte("dex\n035\x00"))
	for _, abi := range s.NativeCode {
		add("lib/"+abi+"/libnative.so", []byte("\x7fELF"))
	}
	for _, scheme := range schemes {
		if scheme == SchemeV1 {
			add("META-INF/MANIFEST.MF", []byte("Manifest-Version: 1.0\r\n"))
			add("META-INF/CERT.SF", []byte("Signature-Version: 1.0\r\n"))
			add("META-INF/CERT.RSA", PKCS7(tb, s.Certs...))
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("zip close: %v", err)
	}

	var pairs []Pair
	for _, scheme := range schemes {
		switch scheme {
		case SchemeV2:
			pairs = append(pairs, Pair{ID: 0x7109871a, Value: SchemeBlock(s.Certs...)})
		case SchemeV3:
			pairs = append(pairs, Pair{ID: 0xf05368c0, Value: SchemeBlock(s.Certs...)})
		}
	}
	if len(pairs) == 0 {
		return buf.Bytes()
	}
	return InsertSigningBlock(tb, buf.Bytes(), pairs...)
}

// Pair is one ID-value entry of an APK Signing Block.
type Pair struct {
	ID    uint32
	Value []byte
}

// SchemeBlock encodes a v2/v3 scheme value with a single signer carrying
// certs. Digests, signatures and keys are placeholders.
func SchemeBlock(certs ...[]byte) []byte {
	var certList []byte
	for _, c := range certs {
		certList = append(certList, lp(c)...)
	}
	var signedData []byte
	signedData = append(signedData, lp(nil)...) // digests
	signedData = append(signedData, lp(certList)...)
	signedData = binary.LittleEndian.AppendUint32(signedData, 24) // v3 minSdk
	signedData = binary.LittleEndian.AppendUint32(signedData, 0x7fffffff)
	signedData = append(signedData, lp(nil)...) // attributes

	var signer []byte
	signer = append(signer, lp(signedData)...)
	signer = append(signer, lp(nil)...) // signatures
	signer = append(signer, lp([]byte("public-key"))...)
	return lp(lp(signer))
}

// InsertSigningBlock places a signing block holding pairs between the last
// zip entry and the central directory and patches the directory offset.
func InsertSigningBlock(tb testing.TB, apk []byte, pairs ...Pair) []byte {
	tb.Helper()
	eocd := bytes.LastIndex(apk, []byte{0x50, 0x4b, 0x05, 0x06})
	if eocd < 0 {
		tb.Fatal("end of central directory not found")
	}
	cdOffset := int(binary.LittleEndian.Uint32(apk[eocd+16:]))

	var body []byte
	for _, p := range pairs {
		body = binary.LittleEndian.AppendUint64(body, uint64(len(p.Value)+4))
		body = binary.LittleEndian.AppendUint32(body, p.ID)
		body = append(body, p.Value...)
	}
	size := uint64(len(body) + 8 + 16)
	var block []byte
	block = binary.LittleEndian.AppendUint64(block, size)
	block = append(block, body...)
	block = binary.LittleEndian.AppendUint64(block, size)
	block = append(block, "APK Sig Block 42"...)

	out := make([]byte, 0, len(apk)+len(block))
	out = append(out, apk[:cdOffset]...)
	out = append(out, block...)
	out = append(out, apk[cdOffset:]...)
	binary.LittleEndian.PutUint32(out[eocd+len(block)+16:], uint32(cdOffset+len(block)))
	return out
}

// PKCS7 wraps certs in a PKCS#7 SignedData structure as found in
// META-INF/*.RSA.
func PKCS7(tb testing.TB, certs ...[]byte) []byte {
	tb.Helper()
	dataInfo, err := asn1.Marshal(struct {
		ContentType asn1.ObjectIdentifier
	}{asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}})
	if err != nil {
		tb.Fatalf("marshal content info: %v", err)
	}
	sd := struct {
		Version          int
		DigestAlgorithms asn1.RawValue
		ContentInfo      asn1.RawValue
		Certificates     asn1.RawValue
		SignerInfos      asn1.RawValue
	}{
		Version:          1,
		DigestAlgorithms: asn1.RawValue{Tag: asn1.TagSet, IsCompound: true},
		ContentInfo:      asn1.RawValue{FullBytes: dataInfo},
		Certificates:     asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: bytes.Join(certs, nil)},
		SignerInfos:      asn1.RawValue{Tag: asn1.TagSet, IsCompound: true},
	}
	sdDER, err := asn1.Marshal(sd)
	if err != nil {
		tb.Fatalf("marshal signed data: %v", err)
	}
	der, err := asn1.Marshal(struct {
		ContentType asn1.ObjectIdentifier
		Content     asn1.RawValue
	}{
		ContentType: asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2},
		Content:     asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: sdDER},
	})
	if err != nil {
		tb.Fatalf("marshal pkcs7: %v", err)
	}
	return der
}

func lp(b []byte) []byte {
	out := binary.LittleEndian.AppendUint32(nil, uint32(len(b)))
	return append(out, b...)
}
