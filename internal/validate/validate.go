// Package validate checks an inspected APK against its app's policy and the
// app's published history. Each rule is evaluated independently and
// reports a named failure.
package validate

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/clean-dependency-project/droidrepo/internal/apk"
	"github.com/clean-dependency-project/droidrepo/internal/config"
	"github.com/clean-dependency-project/droidrepo/internal/index"
	"github.com/clean-dependency-project/droidrepo/internal/platform"
	"github.com/clean-dependency-project/droidrepo/internal/selector"
)

// Rule names.
const (
	RulePackageID        = "package_id"
	RuleSignature        = "signature"
	RuleABI              = "abi"
	RuleVersionCode      = "version_code"
	RuleDuplicateVersion = "duplicate_version"
	RuleDuplicatePackage = "duplicate_package"
)

// Failure is a failed rule with a human-readable reason.
type Failure struct {
	Rule   string
	Detail string
}

func (f *Failure) Error() string {
	return f.Rule + ": " + f.Detail
}

// Input is everything a rule may look at.
type Input struct {
	App      *config.AppConfig
	Metadata *apk.Metadata
	Asset    selector.SelectedAsset
	// Previous is the app's entry in the last emitted index, if any.
	Previous *index.Entry
	// Pending holds versions of this app accepted earlier in the same run.
	Pending []index.Version
}

// Result collects failures and non-fatal warnings.
type Result struct {
	Failures []*Failure
	Warnings []string
}

// Passed reports whether every rule passed.
func (r Result) Passed() bool {
	return len(r.Failures) == 0
}

// Err returns nil when every rule passed; otherwise the failures, which
// errors.As can extract as *Failure.
func (r Result) Err() error {
	switch len(r.Failures) {
	case 0:
		return nil
	case 1:
		return r.Failures[0]
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Rule is one independently evaluable check. It returns a failure detail,
// or a warning, or neither.
type Rule struct {
	Name  string
	Check func(Input) (failure, warning string)
}

// Rules lists every check Validate runs, in order.
var Rules = []Rule{
	{RulePackageID, checkPackageID},
	{RuleSignature, checkSignature},
	{RuleABI, checkABI},
	{RuleVersionCode, checkVersionCode},
	{RuleDuplicateVersion, checkDuplicateVersion},
}

// Validate runs every rule against in.
func Validate(in Input) Result {
	var r Result
	for _, rule := range Rules {
		failure, warning := rule.Check(in)
		if failure != "" {
			r.Failures = append(r.Failures, &Failure{Rule: rule.Name, Detail: failure})
		}
		if warning != "" {
			r.Warnings = append(r.Warnings, rule.Name+": "+warning)
		}
	}
	return r
}

func checkPackageID(in Input) (string, string) {
	pkg := in.Metadata.PackageName
	allowChange := in.App.Package.AllowPkgChange
	prev := in.Previous

	allowed := slices.Contains(in.App.Package.AllowedIDs, pkg) ||
		(allowChange && (prev == nil || pkg == prev.PackageName))
	if !allowed {
		return fmt.Sprintf("package %s is not in allowed_ids [%s]", pkg, strings.Join(in.App.Package.AllowedIDs, ", ")), ""
	}
	if prev != nil && pkg != prev.PackageName {
		if !allowChange {
			return fmt.Sprintf("package changed from %s to %s and allow_pkg_change is not set", prev.PackageName, pkg), ""
		}
		return "", fmt.Sprintf("package changed from %s to %s", prev.PackageName, pkg)
	}
	return "", ""
}

// pinnedSigner is the signer new versions must match: the previous entry's
// preferred signer, else the first version accepted in this run.
func pinnedSigner(in Input) string {
	if in.Previous != nil && in.Previous.PreferredSigner != "" {
		return in.Previous.PreferredSigner
	}
	for _, v := range in.Pending {
		if s := v.PrimarySigner(); s != "" {
			return s
		}
	}
	return ""
}

func checkSignature(in Input) (string, string) {
	got := in.Metadata.Signer
	if got == "" {
		return "no signing certificate", ""
	}
	pinned := pinnedSigner(in)
	if pinned == "" || pinned == got {
		return "", ""
	}
	if in.App.Signature.AllowSignatureChange {
		return "", fmt.Sprintf("signer changed from %s to %s", pinned, got)
	}
	return fmt.Sprintf("signer %s does not match pinned signer %s", got, pinned), ""
}

func checkABI(in Input) (string, string) {
	policy := in.App.Policy()
	abi := in.Asset.ABI
	if _, ok := policy.Rank(abi, in.App.AssetFilter.AllowUniversal); !ok {
		return fmt.Sprintf("asset abi %s is not allowed by %s", abi, policy), ""
	}

	native := in.Metadata.NativeCode
	if !policy.AcceptsNativeCode(native) {
		return fmt.Sprintf("native code [%s] has no abi allowed by %s", strings.Join(native, ", "), policy), ""
	}
	if len(native) > 0 && abi != platform.Universal && !shipsABI(native, abi) {
		return fmt.Sprintf("asset labelled %s ships native code for [%s]", abi, strings.Join(native, ", ")), ""
	}
	return "", ""
}

func shipsABI(native []string, abi platform.ABI) bool {
	if slices.Contains(native, string(abi)) {
		return true
	}
	return abi == platform.ARMv7 && slices.Contains(native, string(platform.ARMv5))
}

func checkVersionCode(in Input) (string, string) {
	prev := in.Previous
	if prev == nil || prev.PackageName != in.Metadata.PackageName {
		return "", ""
	}
	if highest := prev.HighestVersionCode(); in.Metadata.VersionCode < highest {
		return fmt.Sprintf("version code %d is lower than published %d", in.Metadata.VersionCode, highest), ""
	}
	return "", ""
}

func checkDuplicateVersion(in Input) (string, string) {
	code, sha := in.Metadata.VersionCode, in.Metadata.SHA256
	if in.Previous != nil && in.Previous.PackageName == in.Metadata.PackageName {
		if v, ok := in.Previous.FindVersionCode(code); ok && v.File.SHA256 != sha {
			return duplicateVersion(v), ""
		}
	}
	for _, v := range in.Pending {
		if v.Manifest.VersionCode == code && v.File.SHA256 != sha {
			return duplicateVersion(v), ""
		}
	}
	return "", ""
}

func duplicateVersion(v index.Version) string {
	return fmt.Sprintf("version code %d is already published with a different file (%s)", v.Manifest.VersionCode, v.File.Name)
}

// DuplicatePackage reports that pkg is already claimed by another app.
func DuplicatePackage(pkg, owner string) *Failure {
	return &Failure{Rule: RuleDuplicatePackage, Detail: fmt.Sprintf("package %s is already published by %s", pkg, owner)}
}
