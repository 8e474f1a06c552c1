package apk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	eocdSignature = 0x06054b50
	eocdMinSize   = 22
	maxComment    = 0xffff

	blockIDV2  = 0x7109871a
	blockIDV3  = 0xf05368c0
	blockIDV31 = 0x1b93ad61
)

var sigBlockMagic = []byte("APK Sig Block 42")

type schemeCerts struct {
	scheme string
	certs  [][]byte
}

// readSigningBlock returns the certificates of every v2/v3/v3.1 scheme
// present, newest scheme first. An APK without a signing block yields nil.
func readSigningBlock(data []byte) ([]schemeCerts, error) {
	cdOffset, err := centralDirectoryOffset(data)
	if err != nil {
		return nil, err
	}
	pairs, err := signingBlockPairs(data, cdOffset)
	if err != nil || pairs == nil {
		return nil, err
	}

	var out []schemeCerts
	for _, s := range []struct {
		id     uint32
		scheme string
	}{
		{blockIDV31, SchemeV31},
		{blockIDV3, SchemeV3},
		{blockIDV2, SchemeV2},
	} {
		value, ok := pairs[s.id]
		if !ok {
			continue
		}
		certs, err := schemeCertificates(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadSigningBlock, s.scheme, err)
		}
		out = append(out, schemeCerts{scheme: s.scheme, certs: certs})
	}
	return out, nil
}

func centralDirectoryOffset(data []byte) (int, error) {
	if len(data) < eocdMinSize {
		return 0, fmt.Errorf("%w: file too short", ErrBadSigningBlock)
	}
	lowest := max(len(data)-eocdMinSize-maxComment, 0)
	for i := len(data) - eocdMinSize; i >= lowest; i-- {
		if binary.LittleEndian.Uint32(data[i:]) != eocdSignature {
			continue
		}
		// The comment length must reach exactly to the end of the file.
		if int(binary.LittleEndian.Uint16(data[i+20:]))+i+eocdMinSize != len(data) {
			continue
		}
		off := int(binary.LittleEndian.Uint32(data[i+16:]))
		if off > i {
			return 0, fmt.Errorf("%w: central directory offset out of range", ErrBadSigningBlock)
		}
		return off, nil
	}
	return 0, fmt.Errorf("%w: end of central directory not found", ErrBadSigningBlock)
}

// signingBlockPairs returns the ID-value pairs of the block that ends at
// cdOffset, or nil when there is no block.
func signingBlockPairs(data []byte, cdOffset int) (map[uint32][]byte, error) {
	if cdOffset < 32 || !bytes.Equal(data[cdOffset-16:cdOffset], sigBlockMagic) {
		return nil, nil
	}
	size := binary.LittleEndian.Uint64(data[cdOffset-24:])
	if size < 24 || size > uint64(cdOffset-8) {
		return nil, fmt.Errorf("%w: invalid block size %d", ErrBadSigningBlock, size)
	}
	start := cdOffset - int(size) - 8
	if binary.LittleEndian.Uint64(data[start:]) != size {
		return nil, fmt.Errorf("%w: block size mismatch", ErrBadSigningBlock)
	}

	pairs := map[uint32][]byte{}
	b := data[start+8 : cdOffset-24]
	for len(b) > 0 {
		if len(b) < 12 {
			return nil, fmt.Errorf("%w: truncated pair", ErrBadSigningBlock)
		}
		n := binary.LittleEndian.Uint64(b)
		if n < 4 || n > uint64(len(b)-8) {
			return nil, fmt.Errorf("%w: invalid pair length %d", ErrBadSigningBlock, n)
		}
		id := binary.LittleEndian.Uint32(b[8:])
		pairs[id] = b[12 : 8+n]
		b = b[8+n:]
	}
	return pairs, nil
}

// schemeCertificates walks signers -> signed data -> certificates of a v2
// or v3 scheme block. The v3 extra fields follow the certificates and are
// not read.
func schemeCertificates(value []byte) ([][]byte, error) {
	signers, _, err := lengthPrefixed(value)
	if err != nil {
		return nil, fmt.Errorf("signers: %w", err)
	}
	var certs [][]byte
	for len(signers) > 0 {
		var signer []byte
		signer, signers, err = lengthPrefixed(signers)
		if err != nil {
			return nil, fmt.Errorf("signer: %w", err)
		}
		signedData, _, err := lengthPrefixed(signer)
		if err != nil {
			return nil, fmt.Errorf("signed data: %w", err)
		}
		_, rest, err := lengthPrefixed(signedData)
		if err != nil {
			return nil, fmt.Errorf("digests: %w", err)
		}
		list, _, err := lengthPrefixed(rest)
		if err != nil {
			return nil, fmt.Errorf("certificates: %w", err)
		}
		for len(list) > 0 {
			var cert []byte
			cert, list, err = lengthPrefixed(list)
			if err != nil {
				return nil, fmt.Errorf("certificate: %w", err)
			}
			certs = append(certs, cert)
		}
	}
	if len(certs) == 0 {
		return nil, errors.New("no certificates")
	}
	return certs, nil
}

func lengthPrefixed(b []byte) (value, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, errors.New("truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(b)
	if uint64(n) > uint64(len(b)-4) {
		return nil, nil, fmt.Errorf("length %d exceeds remaining %d bytes", n, len(b)-4)
	}
	return b[4 : 4+n], b[4+n:], nil
}
