// Package apk extracts package metadata from Android application archives
// without executing or installing them.
package apk

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/clean-dependency-project/droidrepo/internal/platform"
)

const manifestName = "AndroidManifest.xml"

// Signature schemes, oldest first.
const (
	SchemeV1  = "v1"
	SchemeV2  = "v2"
	SchemeV3  = "v3"
	SchemeV31 = "v3.1"
)

// Permission is a uses-permission entry of the manifest.
type Permission struct {
	Name          string `json:"name"`
	MaxSDKVersion int    `json:"maxSdkVersion,omitempty"`
}

// Metadata is everything the index needs to know about one APK. It is a
// pure function of the artifact bytes.
type Metadata struct {
	PackageName string       `json:"packageName"`
	VersionCode int64        `json:"versionCode"`
	VersionName string       `json:"versionName"`
	MinSDK      int          `json:"minSdkVersion"`
	TargetSDK   int          `json:"targetSdkVersion"`
	Permissions []Permission `json:"permissions,omitempty"`
	Features    []string     `json:"features,omitempty"`
	NativeCode  []string     `json:"nativecode,omitempty"`
	// Signer is the SHA-256 fingerprint of the primary signing certificate.
	Signer  string   `json:"signer"`
	Signers []string `json:"signers"`
	Schemes []string `json:"schemes"`
	SHA256  string   `json:"sha256"`
	Size    int64    `json:"size"`
}

// Inspect parses an APK held in memory.
func Inspect(data []byte) (*Metadata, error) {
	sum := sha256.Sum256(data)
	md := &Metadata{
		SHA256: hex.EncodeToString(sum[:]),
		Size:   int64(len(data)),
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, parseError(StageContainer, fmt.Errorf("%w: %v", ErrNotZip, err))
	}

	var manifestFile *zip.File
	var v1Files []*zip.File
	native := map[string]bool{}
	for _, f := range zr.File {
		switch {
		case f.Name == manifestName:
			manifestFile = f
		case isV1Signature(f.Name):
			v1Files = append(v1Files, f)
		case strings.HasPrefix(f.Name, "lib/"):
			if parts := strings.Split(f.Name, "/"); len(parts) >= 3 && parts[2] != "" {
				if abi := platform.FromLibDir(parts[1]); abi != "" {
					native[string(abi)] = true
				}
			}
		}
	}
	if manifestFile == nil {
		return nil, parseError(StageManifest, ErrNoManifest)
	}

	raw, err := readFile(manifestFile)
	if err != nil {
		return nil, parseError(StageManifest, fmt.Errorf("%w: %w", ErrBadManifest, err))
	}
	m, err := parseManifest(raw)
	if err != nil {
		return nil, parseError(StageManifest, err)
	}
	md.PackageName = m.packageName
	md.VersionCode = m.versionCode
	md.VersionName = m.versionName
	md.MinSDK = m.minSDK
	md.TargetSDK = m.targetSDK
	md.Permissions = m.permissions
	md.Features = m.features

	for abi := range native {
		md.NativeCode = append(md.NativeCode, abi)
	}
	slices.Sort(md.NativeCode)

	if err := md.readSigners(data, v1Files); err != nil {
		return nil, parseError(StageSignature, err)
	}
	return md, nil
}

// readSigners fills the signer fields from the signing block, falling back
// to v1 JAR signatures.
func (md *Metadata) readSigners(data []byte, v1Files []*zip.File) error {
	// Newest scheme first; the primary signer comes from the first present.
	schemes, err := readSigningBlock(data)
	if err != nil {
		return err
	}

	var v1 [][]byte
	for _, f := range v1Files {
		raw, err := readFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.Name, err)
		}
		certs, err := parsePKCS7Certificates(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		v1 = append(v1, certs...)
	}
	if len(v1Files) > 0 {
		schemes = append(schemes, schemeCerts{scheme: SchemeV1, certs: v1})
	}

	seen := map[string]bool{}
	var others []string
	for _, s := range schemes {
		if len(s.certs) == 0 {
			continue
		}
		md.Schemes = append(md.Schemes, s.scheme)
		for _, cert := range s.certs {
			fp := Fingerprint(cert)
			if seen[fp] {
				continue
			}
			seen[fp] = true
			if md.Signer == "" {
				md.Signer = fp
				continue
			}
			others = append(others, fp)
		}
	}
	if md.Signer == "" {
		return ErrNoSigner
	}
	slices.Sort(others)
	md.Signers = append([]string{md.Signer}, others...)
	slices.Reverse(md.Schemes)
	return nil
}

// Fingerprint returns the lowercase hex SHA-256 of a DER certificate.
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

func isV1Signature(name string) bool {
	dir, file := path.Split(name)
	if dir != "META-INF/" {
		return false
	}
	switch strings.ToUpper(path.Ext(file)) {
	case ".RSA", ".DSA", ".EC":
		return true
	}
	return false
}

// maxEntrySize bounds the decompressed size of the manifest and v1
// signature files. Real ones are well under a megabyte.
const maxEntrySize = 8 << 20

func readFile(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > maxEntrySize {
		return nil, fmt.Errorf("%w: %s declares %d bytes", ErrEntryTooLarge, f.Name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxEntrySize {
		return nil, fmt.Errorf("%w: %s", ErrEntryTooLarge, f.Name)
	}
	return data, nil
}
