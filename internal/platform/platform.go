// Package platform classifies Android ABIs and the ABI policies an app can
// be published under.
package platform

import (
	"fmt"
	"path"
	"slices"
	"strings"
)

// ABI is an Android application binary interface name as used in lib/<abi>/.
type ABI string

const (
	ARM64     ABI = "arm64-v8a"
	ARMv7     ABI = "armeabi-v7a"
	ARMv5     ABI = "armeabi"
	X86       ABI = "x86"
	X86_64    ABI = "x86_64"
	Universal ABI = "universal"
)

// IsARM reports whether abi runs on ARM devices.
func (a ABI) IsARM() bool {
	return a == ARM64 || a == ARMv7 || a == ARMv5
}

// IsX86 reports whether abi is an Intel ABI.
func (a ABI) IsX86() bool {
	return a == X86 || a == X86_64
}

// Policy decides which ABIs an app may publish.
type Policy string

const (
	Arm64Only    Policy = "arm64_only"
	ArmPreferred Policy = "arm_preferred"
)

// ParsePolicy converts a configuration value into a Policy. The empty
// string selects ArmPreferred.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ArmPreferred:
		return ArmPreferred, nil
	case Arm64Only:
		return Arm64Only, nil
	default:
		return "", fmt.Errorf("unknown abi policy: %s", s)
	}
}

// Rank orders an asset ABI under the policy; lower is better. The second
// result is false when the policy excludes the ABI entirely.
func (p Policy) Rank(abi ABI, allowUniversal bool) (int, bool) {
	switch abi {
	case ARM64:
		return 0, true
	case ARMv7, ARMv5:
		if p == Arm64Only {
			return 0, false
		}
		return 1, true
	case Universal:
		return 2, allowUniversal
	default:
		return 0, false
	}
}

// AcceptsNativeCode reports whether a package's lib/ ABIs can serve the
// policy. Packages without native code run everywhere.
func (p Policy) AcceptsNativeCode(native []string) bool {
	if len(native) == 0 {
		return true
	}
	if slices.Contains(native, string(ARM64)) {
		return true
	}
	if p == Arm64Only {
		return false
	}
	return slices.Contains(native, string(ARMv7)) || slices.Contains(native, string(ARMv5))
}

// DetectABI infers the ABI from an asset filename. Names carrying no ABI
// signal are Universal.
func DetectABI(filename string) ABI {
	base := path.Base(filename)
	name := strings.ToLower(strings.TrimSuffix(base, path.Ext(base)))

	switch {
	case containsAny(name, "arm64-v8a", "arm64_v8a", "arm64", "aarch64"):
		return ARM64
	case containsAny(name, "armeabi-v7a", "armeabi_v7a", "armv7", "arm-v7", "armhf"):
		return ARMv7
	case containsAny(name, "x86_64", "x86-64") || hasToken(name, "amd64", "x64"):
		return X86_64
	case containsAny(name, "x86") || hasToken(name, "i386", "i686"):
		return X86
	case hasToken(name, "armeabi", "arm", "arm32"):
		return ARMv7
	}
	return Universal
}

// FromLibDir maps a lib/<dir>/ entry to its ABI, or "" when unknown.
func FromLibDir(dir string) ABI {
	switch abi := ABI(dir); abi {
	case ARM64, ARMv7, ARMv5, X86, X86_64:
		return abi
	case "mips", "mips64", "riscv64":
		return abi
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasToken(s string, tokens ...string) bool {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, f := range fields {
		if slices.Contains(tokens, f) {
			return true
		}
	}
	return false
}
