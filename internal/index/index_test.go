package index

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/ProtonMail/gopenpgp/v2/crypto"

	"github.com/clean-dependency-project/droidrepo/internal/gpg"
)

const signerA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func sha(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func testVersion(pkg string, code int64, added int64) Version {
	return Version{
		Added: added,
		File: File{
			Name:   fmt.Sprintf("https://github.com/example/%s/releases/download/v%d/app-arm64-v8a.apk", pkg, code),
			SHA256: sha(fmt.Sprintf("%s-%d", pkg, code)),
			Size:   1024 * code,
		},
		Manifest: Manifest{
			VersionName: fmt.Sprintf("1.%d", code),
			VersionCode: code,
			UsesSdk:     &UsesSdk{MinSdkVersion: 24, TargetSdkVersion: 34},
			Signer:      &Signer{SHA256: []string{signerA}},
			NativeCode:  []string{"arm64-v8a"},
			UsesPermission: []Permission{
				{Name: "android.permission.INTERNET"},
				{Name: "android.permission.READ_EXTERNAL_STORAGE", MaxSdkVersion: 32},
			},
		},
	}
}

func testRepo() Repo {
	return Repo{
		Name:        map[string]string{"en-US": "Example Repo"},
		Description: map[string]string{"en-US": "Apps <built> & signed"},
		Address:     "https://example.com/fdroid/repo",
	}
}

func testUpdate(id, pkg string, retain int, versions ...Version) Update {
	return Update{
		LogicalID:   id,
		PackageName: pkg,
		Metadata: Metadata{
			Name:    map[string]string{"en-US": strings.ToUpper(id)},
			License: "GPL-3.0-only",
		},
		Versions: versions,
		Retain:   retain,
	}
}

func codes(e *Entry) []int64 {
	var out []int64
	for _, v := range e.Versions {
		out = append(out, v.Manifest.VersionCode)
	}
	return out
}

var (
	t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 = t0.Add(24 * time.Hour)
)

func TestBuild_Retention(t *testing.T) {
	const pkg = "org.example.notes"
	prev := Build(nil, testRepo(), []Update{
		testUpdate("notes", pkg, 0, testVersion(pkg, 3, 3000), testVersion(pkg, 2, 2000), testVersion(pkg, 1, 1000)),
	}, t0)
	if got := codes(prev.Entries["notes"]); !slices.Equal(got, []int64{3, 2, 1}) {
		t.Fatalf("setup codes = %v", got)
	}

	next := Build(prev, testRepo(), []Update{testUpdate("notes", pkg, 2, testVersion(pkg, 4, 4000))}, t1)
	if got := codes(next.Entries["notes"]); !slices.Equal(got, []int64{4, 3}) {
		t.Errorf("codes = %v, want [4 3]", got)
	}
	if got := codes(prev.Entries["notes"]); !slices.Equal(got, []int64{3, 2, 1}) {
		t.Errorf("Build mutated prev: %v", got)
	}
}

func TestBuild_RetentionBound(t *testing.T) {
	const pkg = "org.example.many"
	idx := Empty()
	for code := int64(1); code <= 10; code++ {
		for _, retain := range []int{1, 3} {
			idx = Build(idx, testRepo(), []Update{testUpdate("many", pkg, retain, testVersion(pkg, code, code*1000))}, t0)
			if n := len(idx.Entries["many"].Versions); n > retain {
				t.Fatalf("retained %d versions with retain %d", n, retain)
			}
		}
	}
}

func TestBuild_TieBreaks(t *testing.T) {
	const pkg = "org.example.tie"
	a := testVersion(pkg, 5, 1000)
	b := testVersion(pkg, 5, 2000)
	b.File.SHA256 = sha("other")
	c := testVersion(pkg, 5, 2000)
	c.File.SHA256 = strings.Repeat("0", 64)

	idx := Build(nil, testRepo(), []Update{testUpdate("tie", pkg, 0, a, b, c)}, t0)
	got := idx.Entries["tie"].Versions
	if got[0].File.SHA256 != c.File.SHA256 || got[1].File.SHA256 != b.File.SHA256 || got[2].File.SHA256 != a.File.SHA256 {
		t.Errorf("unexpected order: %s %s %s", got[0].File.SHA256[:6], got[1].File.SHA256[:6], got[2].File.SHA256[:6])
	}
}

func TestBuild_KeepsUntouchedEntries(t *testing.T) {
	prev := Build(nil, testRepo(), []Update{
		testUpdate("a", "org.example.a", 2, testVersion("org.example.a", 1, 1000)),
		testUpdate("b", "org.example.b", 2, testVersion("org.example.b", 1, 1000)),
	}, t0)
	next := Build(prev, testRepo(), []Update{
		testUpdate("a", "org.example.a", 2, testVersion("org.example.a", 2, 2000)),
	}, t1)

	if !slices.Equal(codes(next.Entries["b"]), []int64{1}) {
		t.Errorf("entry b changed: %v", codes(next.Entries["b"]))
	}
	if next.Entries["b"] == prev.Entries["b"] {
		t.Error("entries must be copied, not shared")
	}
	a := next.Entries["a"]
	if a.Metadata.Added != 1000 || a.Metadata.LastUpdated != 2000 {
		t.Errorf("added/lastUpdated = %d/%d", a.Metadata.Added, a.Metadata.LastUpdated)
	}
	if a.PreferredSigner != signerA {
		t.Errorf("preferred signer = %q", a.PreferredSigner)
	}
}

func TestBuild_PackageChangeDropsOldVersions(t *testing.T) {
	prev := Build(nil, testRepo(), []Update{
		testUpdate("app", "org.example.old", 5, testVersion("org.example.old", 1, 1000)),
	}, t0)
	next := Build(prev, testRepo(), []Update{
		testUpdate("app", "org.example.new", 5, testVersion("org.example.new", 2, 2000)),
	}, t1)
	e := next.Entries["app"]
	if e.PackageName != "org.example.new" || !slices.Equal(codes(e), []int64{2}) {
		t.Errorf("entry = %s %v", e.PackageName, codes(e))
	}
}

func TestBuild_Timestamp(t *testing.T) {
	const pkg = "org.example.ts"
	first := Build(nil, testRepo(), []Update{testUpdate("ts", pkg, 2, testVersion(pkg, 1, 1000))}, t0)
	if first.Repo.Timestamp != t0.UnixMilli() {
		t.Fatalf("timestamp = %d, want %d", first.Repo.Timestamp, t0.UnixMilli())
	}

	noop := Build(first, testRepo(), nil, t1)
	if noop.Repo.Timestamp != t0.UnixMilli() {
		t.Errorf("no-op run moved the timestamp to %d", noop.Repo.Timestamp)
	}

	// Re-adding an already retained version is also a no-op.
	again := Build(first, testRepo(), []Update{testUpdate("ts", pkg, 2, testVersion(pkg, 1, 1000))}, t1)
	if again.Repo.Timestamp != t0.UnixMilli() {
		t.Errorf("re-merging the same version moved the timestamp")
	}

	changed := Build(first, testRepo(), []Update{testUpdate("ts", pkg, 2, testVersion(pkg, 2, 2000))}, t1)
	if changed.Repo.Timestamp != t1.UnixMilli() {
		t.Errorf("timestamp = %d, want %d", changed.Repo.Timestamp, t1.UnixMilli())
	}
}

func TestMarshal_Stable(t *testing.T) {
	idx := Build(nil, testRepo(), []Update{
		testUpdate("zeta", "org.example.zeta", 3, testVersion("org.example.zeta", 2, 2000), testVersion("org.example.zeta", 1, 1000)),
		testUpdate("alpha", "org.example.alpha", 3, testVersion("org.example.alpha", 7, 7000)),
	}, t0)

	first, err := Marshal(idx)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for range 10 {
		again, err := Marshal(idx.Clone())
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("Marshal output is not byte-stable")
		}
	}

	if !bytes.HasSuffix(first, []byte("}\n")) {
		t.Error("missing trailing newline")
	}
	if !bytes.Contains(first, []byte("\n  \"packages\": {")) {
		t.Error("expected two-space indentation")
	}
	if !bytes.Contains(first, []byte("Apps <built> & signed")) {
		t.Error("HTML characters must not be escaped")
	}
	if bytes.Index(first, []byte(`"org.example.alpha"`)) > bytes.Index(first, []byte(`"org.example.zeta"`)) {
		t.Error("package keys not sorted")
	}
	if bytes.Index(first, []byte(`"added"`)) > bytes.Index(first, []byte(`"lastUpdated"`)) {
		t.Error("object keys not sorted")
	}
}

func TestUnmarshal_RoundTrip(t *testing.T) {
	idx := Build(nil, testRepo(), []Update{
		testUpdate("notes", "org.example.notes", 3, testVersion("org.example.notes", 2, 2000), testVersion("org.example.notes", 1, 1000)),
	}, t0)
	idx.Repo.Icon = "icons/icon.png"
	data, err := Marshal(idx)
	if err != nil {
		t.Fatal(err)
	}

	back, err := Unmarshal(data, nil)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	e := back.Entries["notes"]
	if e == nil || e.PackageName != "org.example.notes" || !slices.Equal(codes(e), []int64{2, 1}) {
		t.Fatalf("entry = %+v", e)
	}
	if back.Repo.Icon != "icons/icon.png" || back.Repo.Timestamp != t0.UnixMilli() {
		t.Errorf("repo = %+v", back.Repo)
	}

	again, err := Marshal(back)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, again) {
		t.Error("decode/encode changed the document")
	}
}

func TestUnmarshal_LogicalIDFallback(t *testing.T) {
	doc := `{"repo":{"name":{},"address":"x","timestamp":1},"packages":{"org.example.a":{"metadata":{"added":1,"lastUpdated":1},"versions":{}}}}`

	idx, err := Unmarshal([]byte(doc), func(pkg string) string { return "resolved-" + pkg })
	if err != nil {
		t.Fatal(err)
	}
	if idx.Entries["resolved-org.example.a"] == nil {
		t.Errorf("resolver not used: %v", idx.IDs())
	}

	idx, err = Unmarshal([]byte(doc), nil)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Entries["org.example.a"] == nil {
		t.Errorf("package name fallback not used: %v", idx.IDs())
	}
}

func TestUnmarshal_Corrupt(t *testing.T) {
	tests := map[string]string{
		"truncated":  `{"repo": {`,
		"wrong type": `{"repo": [], "packages": {}}`,
		"shared id": `{"repo":{"name":{},"address":"x","timestamp":1},"packages":{
			"org.a.one":{"metadata":{"logicalId":"x"},"versions":{}},
			"org.a.two":{"metadata":{"logicalId":"x"},"versions":{}}}}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Unmarshal([]byte(doc), nil); !errors.Is(err, ErrCorruptIndex) {
				t.Errorf("expected ErrCorruptIndex, got %v", err)
			}
		})
	}
}

func TestMarshal_DuplicatePackage(t *testing.T) {
	idx := Build(nil, testRepo(), []Update{
		testUpdate("one", "org.example.same", 2, testVersion("org.example.same", 1, 1000)),
		testUpdate("two", "org.example.same", 2, testVersion("org.example.same", 2, 2000)),
	}, t0)
	if _, err := Marshal(idx); !errors.Is(err, ErrDuplicatePackage) {
		t.Errorf("expected ErrDuplicatePackage, got %v", err)
	}
}

func TestProjectV1(t *testing.T) {
	const pkg = "org.example.notes"
	idx := Build(nil, testRepo(), []Update{
		testUpdate("notes", pkg, 3, testVersion(pkg, 2, 2000), testVersion(pkg, 1, 1000)),
	}, t0)

	data, err := ProjectV1(idx)
	if err != nil {
		t.Fatalf("ProjectV1() error = %v", err)
	}
	var doc struct {
		Repo struct {
			Name      string `json:"name"`
			Version   int    `json:"version"`
			Timestamp int64  `json:"timestamp"`
		} `json:"repo"`
		Apps []struct {
			PackageName          string `json:"packageName"`
			Name                 string `json:"name"`
			SuggestedVersionCode string `json:"suggestedVersionCode"`
		} `json:"apps"`
		Packages map[string][]struct {
			VersionCode    int64    `json:"versionCode"`
			Hash           string   `json:"hash"`
			HashType       string   `json:"hashType"`
			MinSdkVersion  int      `json:"minSdkVersion"`
			NativeCode     []string `json:"nativecode"`
			Signer         string   `json:"signer"`
			UsesPermission [][]any  `json:"uses-permission"`
		} `json:"packages"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("v1 is not valid JSON: %v", err)
	}
	if doc.Repo.Name != "Example Repo" || doc.Repo.Version != repoVersionV1 || doc.Repo.Timestamp != t0.UnixMilli() {
		t.Errorf("repo = %+v", doc.Repo)
	}
	if len(doc.Apps) != 1 || doc.Apps[0].Name != "NOTES" || doc.Apps[0].SuggestedVersionCode != "2" {
		t.Errorf("apps = %+v", doc.Apps)
	}
	versions := doc.Packages[pkg]
	if len(versions) != 2 || versions[0].VersionCode != 2 || versions[1].VersionCode != 1 {
		t.Fatalf("packages = %+v", versions)
	}
	v := versions[0]
	if v.HashType != "sha256" || v.Hash != sha(pkg+"-2") || v.MinSdkVersion != 24 || v.Signer != signerA {
		t.Errorf("version = %+v", v)
	}
	if len(v.UsesPermission) != 2 || v.UsesPermission[0][1] != nil || v.UsesPermission[1][1] != float64(32) {
		t.Errorf("uses-permission = %v", v.UsesPermission)
	}
}

func TestValidateDocument(t *testing.T) {
	idx := Build(nil, testRepo(), []Update{
		testUpdate("ok", "org.example.ok", 2, testVersion("org.example.ok", 1, 1000)),
	}, t0)
	if _, err := render(idx, EmitOptions{}); err != nil {
		t.Fatalf("valid index rejected: %v", err)
	}

	bad := idx.Clone()
	bad.Entries["ok"].Versions[0].File.SHA256 = "not-a-hash"
	_, err := render(bad, EmitOptions{})
	var buildErr *BuildError
	if !errors.As(err, &buildErr) || buildErr.Op != "validate" || !errors.Is(err, ErrSchema) {
		t.Errorf("expected schema BuildError, got %v", err)
	}
}

type fakeSigner struct {
	calls int
	err   error
}

func (f *fakeSigner) SignDetached(data []byte) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return fakeSignature(data), nil
}

func (f *fakeSigner) VerifyDetached(data, sig []byte) error {
	if !bytes.Equal(sig, fakeSignature(data)) {
		return errors.New("bad signature")
	}
	return nil
}

func fakeSignature(data []byte) []byte {
	return []byte(fmt.Sprintf("-----BEGIN PGP SIGNATURE-----\n%s\n-----END PGP SIGNATURE-----\n", sha(string(data))))
}

func TestEmit(t *testing.T) {
	dir := t.TempDir()
	idx := Build(nil, testRepo(), []Update{
		testUpdate("notes", "org.example.notes", 2, testVersion("org.example.notes", 1, 1000)),
	}, t0)
	signer := &fakeSigner{}

	res, err := Emit(dir, idx, EmitOptions{Signer: signer, HTML: true})
	if err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	want := []string{FileV1, FileHTML, FileV1 + ".asc", FileV2 + ".asc", FileV2}
	if !slices.Equal(res.Written, want) {
		t.Errorf("written = %v, want %v", res.Written, want)
	}
	for _, name := range want {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	html, _ := os.ReadFile(filepath.Join(dir, FileHTML))
	if !bytes.Contains(html, []byte("org.example.notes")) || !bytes.Contains(html, []byte("1.1")) {
		t.Error("listing does not mention the app")
	}

	info, _ := os.Stat(filepath.Join(dir, FileV2))
	res, err = Emit(dir, idx, EmitOptions{Signer: signer, HTML: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Written) != 0 || len(res.Unchanged) != len(want) {
		t.Errorf("second emit rewrote files: %+v", res)
	}
	if signer.calls != 2 {
		t.Errorf("unchanged documents were re-signed: %d signatures", signer.calls)
	}
	after, _ := os.Stat(filepath.Join(dir, FileV2))
	if !after.ModTime().Equal(info.ModTime()) {
		t.Error("unchanged file was rewritten")
	}

	loaded, err := Load(filepath.Join(dir, FileV2), nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !slices.Equal(codes(loaded.Entries["notes"]), []int64{1}) {
		t.Errorf("loaded entry = %+v", loaded.Entries["notes"])
	}
}

func newGPGSigner(t *testing.T) *gpg.Signer {
	t.Helper()
	key, err := crypto.GenerateKey("Repo Signer", "repo@example.org", "x25519", 0)
	if err != nil {
		t.Fatal(err)
	}
	armored, err := key.Armor()
	if err != nil {
		t.Fatal(err)
	}
	signer, err := gpg.NewSigner(armored, nil)
	if err != nil {
		t.Fatal(err)
	}
	return signer
}

func TestEmit_SignaturesStableAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	signer := newGPGSigner(t)
	idx := Build(nil, testRepo(), []Update{
		testUpdate("notes", "org.example.notes", 2, testVersion("org.example.notes", 1, 1000)),
	}, t0)
	if _, err := Emit(dir, idx, EmitOptions{Signer: signer}); err != nil {
		t.Fatal(err)
	}
	sigV2 := filepath.Join(dir, FileV2+".asc")
	before, err := os.ReadFile(sigV2)
	if err != nil {
		t.Fatal(err)
	}

	// Signature timestamps have one-second resolution.
	time.Sleep(1100 * time.Millisecond)
	res, err := Emit(dir, idx, EmitOptions{Signer: signer})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Written) != 0 {
		t.Errorf("no-op emit wrote %v", res.Written)
	}
	after, _ := os.ReadFile(sigV2)
	if !bytes.Equal(before, after) {
		t.Error("signature of unchanged document was replaced")
	}

	// A signature that no longer verifies is replaced.
	if err := os.WriteFile(sigV2, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err = Emit(dir, idx, EmitOptions{Signer: signer})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(res.Written, []string{FileV2 + ".asc"}) {
		t.Errorf("written = %v, want only the repaired signature", res.Written)
	}
	v2, _ := os.ReadFile(filepath.Join(dir, FileV2))
	repaired, _ := os.ReadFile(sigV2)
	if err := signer.VerifyDetached(v2, repaired); err != nil {
		t.Errorf("repaired signature does not verify: %v", err)
	}

	// A changed document gets new signatures.
	next := Build(idx, testRepo(), []Update{
		testUpdate("notes", "org.example.notes", 2, testVersion("org.example.notes", 2, 2000)),
	}, t1)
	res, err = Emit(dir, next, EmitOptions{Signer: signer})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{FileV1, FileV1 + ".asc", FileV2 + ".asc", FileV2}
	if !slices.Equal(res.Written, want) {
		t.Errorf("written = %v, want %v", res.Written, want)
	}
}

func TestCommitOrder(t *testing.T) {
	in := []output{{name: FileV2}, {name: FileV1}, {name: FileHTML}, {name: FileV2 + ".asc"}, {name: FileV1 + ".asc"}}
	var got []string
	for _, o := range commitOrder(in) {
		got = append(got, o.name)
	}
	want := []string{FileV1, FileHTML, FileV1 + ".asc", FileV2 + ".asc", FileV2}
	if !slices.Equal(got, want) {
		t.Errorf("commitOrder() = %v, want %v", got, want)
	}
}

func TestEmit_FailureKeepsPreviousFiles(t *testing.T) {
	dir := t.TempDir()
	idx := Build(nil, testRepo(), []Update{
		testUpdate("notes", "org.example.notes", 2, testVersion("org.example.notes", 1, 1000)),
	}, t0)
	if _, err := Emit(dir, idx, EmitOptions{}); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(filepath.Join(dir, FileV2))

	next := Build(idx, testRepo(), []Update{
		testUpdate("notes", "org.example.notes", 2, testVersion("org.example.notes", 2, 2000)),
	}, t1)
	_, err := Emit(dir, next, EmitOptions{Signer: &fakeSigner{err: errors.New("no key")}})
	var buildErr *BuildError
	if !errors.As(err, &buildErr) || buildErr.Op != "sign" {
		t.Fatalf("expected sign BuildError, got %v", err)
	}

	after, _ := os.ReadFile(filepath.Join(dir, FileV2))
	if !bytes.Equal(before, after) {
		t.Error("failed emit modified the previous index")
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("staging file left behind: %s", e.Name())
		}
	}
}

func TestEmit_DryRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "repo")
	idx := Build(nil, testRepo(), []Update{
		testUpdate("notes", "org.example.notes", 2, testVersion("org.example.notes", 1, 1000)),
	}, t0)
	res, err := Emit(dir, idx, EmitOptions{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Written) != 2 {
		t.Errorf("dry run should report two files, got %v", res.Written)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("dry run created the output directory")
	}
}

func TestWriteHTML(t *testing.T) {
	dir := t.TempDir()
	idx := Build(nil, testRepo(), []Update{
		testUpdate("notes", "org.example.notes", 2, testVersion("org.example.notes", 1, 1000)),
	}, t0)

	res, err := WriteHTML(dir, idx, false, nil)
	if err != nil {
		t.Fatalf("WriteHTML() error = %v", err)
	}
	if !slices.Equal(res.Written, []string{FileHTML}) {
		t.Errorf("written = %v", res.Written)
	}
	if _, err := os.Stat(filepath.Join(dir, FileV2)); !os.IsNotExist(err) {
		t.Error("WriteHTML wrote the JSON index")
	}

	res, err = WriteHTML(dir, idx, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Written) != 0 || len(res.Unchanged) != 1 {
		t.Errorf("second write = %+v", res)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	idx, err := Load(filepath.Join(dir, "missing.json"), nil)
	if err != nil || len(idx.Entries) != 0 {
		t.Errorf("missing file: %v, %+v", err, idx)
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(corrupt, nil); !errors.Is(err, ErrCorruptIndex) {
		t.Errorf("expected ErrCorruptIndex, got %v", err)
	}
}

func TestRenderHTML_Empty(t *testing.T) {
	var buf bytes.Buffer
	idx := Empty()
	idx.Repo = testRepo()
	if err := RenderHTML(&buf, idx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No apps published yet.") {
		t.Error("empty listing missing placeholder")
	}
	if !strings.Contains(buf.String(), "Apps &lt;built&gt; &amp; signed") {
		t.Error("description must be HTML escaped")
	}
}

func TestDisplayCategory(t *testing.T) {
	tests := map[string]string{
		"system_tools":   "System Tools",
		"INTERNET":       "Internet",
		"science-and-ed": "Science And Ed",
		"  ":             "",
	}
	for in, want := range tests {
		if got := displayCategory(in); got != want {
			t.Errorf("displayCategory(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		512:             "512 B",
		2048:            "2.0 KB",
		5 * 1024 * 1024: "5.0 MB",
	}
	for in, want := range tests {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
