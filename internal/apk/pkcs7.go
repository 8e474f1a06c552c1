package apk

import (
	"encoding/asn1"
	"fmt"
)

var oidSignedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}

type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type signedData struct {
	Version          int
	DigestAlgorithms asn1.RawValue
	ContentInfo      asn1.RawValue
	Certificates     asn1.RawValue `asn1:"optional,tag:0"`
	CRLs             asn1.RawValue `asn1:"optional,tag:1"`
	SignerInfos      asn1.RawValue
}

// parsePKCS7Certificates returns the DER certificates embedded in a v1 JAR
// signature block (PKCS#7 SignedData).
func parsePKCS7Certificates(der []byte) ([][]byte, error) {
	var ci contentInfo
	if _, err := asn1.Unmarshal(der, &ci); err != nil {
		return nil, fmt.Errorf("%w: pkcs7: %v", ErrBadSigningBlock, err)
	}
	if !ci.ContentType.Equal(oidSignedData) {
		return nil, fmt.Errorf("%w: pkcs7: content type %s is not signedData", ErrBadSigningBlock, ci.ContentType)
	}
	var sd signedData
	if _, err := asn1.Unmarshal(ci.Content.Bytes, &sd); err != nil {
		return nil, fmt.Errorf("%w: pkcs7 signedData: %v", ErrBadSigningBlock, err)
	}

	var certs [][]byte
	rest := sd.Certificates.Bytes
	for len(rest) > 0 {
		var cert asn1.RawValue
		var err error
		rest, err = asn1.Unmarshal(rest, &cert)
		if err != nil {
			return nil, fmt.Errorf("%w: pkcs7 certificate: %v", ErrBadSigningBlock, err)
		}
		certs = append(certs, cert.FullBytes)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("%w: pkcs7 signature carries no certificates", ErrNoSigner)
	}
	return certs, nil
}
