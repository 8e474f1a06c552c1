package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clean-dependency-project/droidrepo/internal/apk"
	"github.com/clean-dependency-project/droidrepo/internal/apk/apktest"
	"github.com/clean-dependency-project/droidrepo/internal/clamav"
	"github.com/clean-dependency-project/droidrepo/internal/config"
	"github.com/clean-dependency-project/droidrepo/internal/index"
	"github.com/clean-dependency-project/droidrepo/internal/report"
	"github.com/clean-dependency-project/droidrepo/internal/selector"
	"github.com/clean-dependency-project/droidrepo/internal/upstream"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSource struct {
	mu          sync.Mutex
	releases    map[string][]upstream.ReleaseCandidate
	listErr     map[string]error
	files       map[string][]byte
	downloadErr map[string]error
	downloads   []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		releases:    map[string][]upstream.ReleaseCandidate{},
		listErr:     map[string]error{},
		files:       map[string][]byte{},
		downloadErr: map[string]error{},
	}
}

// publish adds a release to locator and returns the download URLs of its
// assets keyed by filename.
func (s *fakeSource) publish(locator, tag string, day int, files map[string][]byte) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel := upstream.ReleaseCandidate{
		Tag:         tag,
		PublishedAt: time.Date(2024, 1, day, 12, 0, 0, 0, time.UTC),
	}
	urls := map[string]string{}
	for _, name := range slices.Sorted(maps.Keys(files)) {
		url := fmt.Sprintf("https://github.com/%s/releases/download/%s/%s", locator, tag, name)
		rel.Assets = append(rel.Assets, upstream.Asset{Name: name, URL: url, Size: int64(len(files[name]))})
		s.files[url] = files[name]
		urls[name] = url
	}
	s.releases[locator] = append(s.releases[locator], rel)
	return urls
}

func (s *fakeSource) ListReleases(ctx context.Context, locator string) ([]upstream.ReleaseCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.listErr[locator]; err != nil {
		return nil, err
	}
	return slices.Clone(s.releases[locator]), nil
}

func (s *fakeSource) Download(ctx context.Context, asset upstream.Asset, maxBytes int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloads = append(s.downloads, asset.URL)
	if err := s.downloadErr[asset.URL]; err != nil {
		return nil, err
	}
	data, ok := s.files[asset.URL]
	if !ok {
		return nil, upstream.ErrNotFound
	}
	return data, nil
}

func testApp(id, pkg string) config.AppConfig {
	return config.AppConfig{
		LogicalID: id,
		GitHub:    "example/" + id,
		Package:   config.PackageConfig{AllowedIDs: []string{pkg}},
		Metadata: config.AppMetadata{
			Name:    config.LocalizedText{"en-US": strings.ToUpper(id)},
			License: "GPL-3.0-only",
		},
	}
}

func testConfig(apps ...config.AppConfig) *config.Config {
	return &config.Config{
		Version: "1",
		Repo: config.RepoConfig{
			Name:               config.LocalizedText{"en-US": "Test Repo"},
			URL:                "https://repo.example.org/fdroid/repo",
			MaxVersionsDefault: 2,
			Concurrency:        2,
		},
		Apps: apps,
	}
}

func buildAPK(t *testing.T, pkg string, code int64, cert []byte, native ...string) []byte {
	t.Helper()
	return apktest.Build(t, apktest.Spec{
		Package:     pkg,
		VersionCode: code,
		VersionName: fmt.Sprintf("1.%d", code),
		MinSDK:      24,
		TargetSDK:   34,
		NativeCode:  native,
		Certs:       [][]byte{cert},
	})
}

func runPipeline(t *testing.T, cfg *config.Config, src upstream.Source, prev *index.RepositoryIndex, now time.Time) (*index.RepositoryIndex, report.Summary) {
	t.Helper()
	rep := report.NewReporter(discard, report.WithRunID("test"))
	fetcher := upstream.NewFetcher(src, upstream.WithLogger(discard))
	p := New(cfg, fetcher, rep, discard, discard, WithClock(func() time.Time { return now }))
	next, err := p.Run(context.Background(), prev)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return next, rep.Summary()
}

func outcomeFor(t *testing.T, s report.Summary, app string) report.Outcome {
	t.Helper()
	for _, o := range s.Outcomes {
		if o.App == app {
			return o
		}
	}
	t.Fatalf("no outcome for %s in %+v", app, s.Outcomes)
	return report.Outcome{}
}

func marshal(t *testing.T, idx *index.RepositoryIndex) []byte {
	t.Helper()
	data, err := index.Marshal(idx)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	return data
}

var (
	day1 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
)

func TestRun_PartialFailureIsolation(t *testing.T) {
	cert := apktest.NewCertificate(t, "apps")
	src := newFakeSource()
	for _, id := range []string{"a", "b", "c"} {
		src.publish("example/"+id, "v1", 1, map[string][]byte{
			"app-arm64-v8a.apk": buildAPK(t, "org.example."+id, 1, cert),
		})
	}
	cfg := testConfig(
		testApp("a", "org.example.a"),
		testApp("b", "org.example.b"),
		testApp("c", "org.example.c"),
	)

	first, _ := runPipeline(t, cfg, src, nil, day1)
	if got := first.IDs(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("first run ids = %v", got)
	}

	src.publish("example/a", "v2", 2, map[string][]byte{
		"app-arm64-v8a.apk": buildAPK(t, "org.example.a", 2, cert),
	})
	src.publish("example/c", "v2", 2, map[string][]byte{
		"app-arm64-v8a.apk": buildAPK(t, "org.example.c", 2, cert),
	})
	src.listErr["example/b"] = upstream.ErrNotFound

	next, summary := runPipeline(t, cfg, src, first, day2)

	if summary.Counts[report.KindAccepted] != 2 || summary.Counts[report.KindFailed] != 1 {
		t.Errorf("counts = %v", summary.Counts)
	}
	if o := outcomeFor(t, summary, "b"); o.Stage != StageFetch {
		t.Errorf("b stage = %q, want %q", o.Stage, StageFetch)
	}
	if summary.ExitCode() != report.ExitPartial {
		t.Errorf("ExitCode() = %d", summary.ExitCode())
	}
	for _, id := range []string{"a", "c"} {
		if got := next.Entry(id).HighestVersionCode(); got != 2 {
			t.Errorf("%s highest version = %d, want 2", id, got)
		}
	}
	prevB, _ := index.Marshal(&index.RepositoryIndex{Entries: map[string]*index.Entry{"b": first.Entry("b")}})
	nextB, _ := index.Marshal(&index.RepositoryIndex{Entries: map[string]*index.Entry{"b": next.Entry("b")}})
	if !bytes.Equal(prevB, nextB) {
		t.Error("failed app's entry changed")
	}
}

func TestRun_Idempotent(t *testing.T) {
	cert := apktest.NewCertificate(t, "apps")
	src := newFakeSource()
	src.publish("example/notes", "v1", 1, map[string][]byte{
		"notes-arm64-v8a.apk": buildAPK(t, "org.example.notes", 1, cert, "arm64-v8a"),
	})
	src.publish("example/notes", "v2", 2, map[string][]byte{
		"notes-arm64-v8a.apk": buildAPK(t, "org.example.notes", 2, cert, "arm64-v8a"),
	})
	cfg := testConfig(testApp("notes", "org.example.notes"))

	first, _ := runPipeline(t, cfg, src, nil, day1)
	firstBytes := marshal(t, first)

	loaded, err := index.Unmarshal(firstBytes, ResolveLogicalID(cfg))
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	downloads := len(src.downloads)
	second, summary := runPipeline(t, cfg, src, loaded, day2)

	if !bytes.Equal(firstBytes, marshal(t, second)) {
		t.Errorf("second run changed the index:\n%s\n---\n%s", firstBytes, marshal(t, second))
	}
	if second.Repo.Timestamp != day1.UnixMilli() {
		t.Errorf("timestamp = %d, want %d", second.Repo.Timestamp, day1.UnixMilli())
	}
	if o := outcomeFor(t, summary, "notes"); o.Kind != report.KindSkipped || o.Reason != ReasonUpToDate {
		t.Errorf("outcome = %+v", o)
	}
	if len(src.downloads) != downloads {
		t.Errorf("second run downloaded %d assets", len(src.downloads)-downloads)
	}
}

func TestRun_SignaturePinning(t *testing.T) {
	original := apktest.NewCertificate(t, "original")
	rogue := apktest.NewCertificate(t, "rogue")

	tests := []struct {
		name        string
		allowChange bool
		wantKind    report.Kind
		wantCode    int64
		wantSigner  []byte
	}{
		{name: "rejected", wantKind: report.KindFailed, wantCode: 1, wantSigner: original},
		{name: "allowed", allowChange: true, wantKind: report.KindAccepted, wantCode: 2, wantSigner: rogue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource()
			src.publish("example/wallet", "v1", 1, map[string][]byte{
				"wallet-arm64-v8a.apk": buildAPK(t, "org.example.wallet", 1, original),
			})
			app := testApp("wallet", "org.example.wallet")
			app.Signature.AllowSignatureChange = tt.allowChange
			cfg := testConfig(app)

			first, _ := runPipeline(t, cfg, src, nil, day1)
			src.publish("example/wallet", "v2", 2, map[string][]byte{
				"wallet-arm64-v8a.apk": buildAPK(t, "org.example.wallet", 2, rogue),
			})
			next, summary := runPipeline(t, cfg, src, first, day2)

			o := outcomeFor(t, summary, "wallet")
			if o.Kind != tt.wantKind {
				t.Fatalf("outcome = %+v", o)
			}
			if tt.wantKind == report.KindFailed {
				if o.Stage != StageValidate || !strings.Contains(o.Message, "signature") {
					t.Errorf("failure = %s: %s", o.Stage, o.Message)
				}
				if !bytes.Equal(marshal(t, first), marshal(t, next)) {
					t.Error("rejected version changed the index")
				}
			} else if len(o.Warnings) == 0 || !strings.Contains(o.Warnings[0], "signer changed") {
				t.Errorf("warnings = %v", o.Warnings)
			}

			entry := next.Entry("wallet")
			if got := entry.HighestVersionCode(); got != tt.wantCode {
				t.Errorf("highest version = %d, want %d", got, tt.wantCode)
			}
			if want := apktest.Fingerprint(tt.wantSigner); entry.PreferredSigner != want {
				t.Errorf("PreferredSigner = %s, want %s", entry.PreferredSigner, want)
			}
		})
	}
}

func TestRun_Arm64Only(t *testing.T) {
	cert := apktest.NewCertificate(t, "apps")
	src := newFakeSource()
	urls := src.publish("example/cam", "v1", 1, map[string][]byte{
		"cam-armeabi-v7a.apk": buildAPK(t, "org.example.cam", 1, cert, "armeabi-v7a"),
		"cam-arm64-v8a.apk":   buildAPK(t, "org.example.cam", 1, cert, "arm64-v8a"),
	})
	src.publish("example/legacy", "v1", 1, map[string][]byte{
		"legacy-armeabi-v7a.apk": buildAPK(t, "org.example.legacy", 1, cert, "armeabi-v7a"),
	})
	cam := testApp("cam", "org.example.cam")
	cam.ABIPolicy = "arm64_only"
	legacy := testApp("legacy", "org.example.legacy")
	legacy.ABIPolicy = "arm64_only"

	next, summary := runPipeline(t, testConfig(cam, legacy), src, nil, day1)

	for _, e := range next.Entries {
		for _, v := range e.Versions {
			if strings.Contains(v.File.Name, "armeabi-v7a") || slices.Contains(v.Manifest.NativeCode, "armeabi-v7a") {
				t.Errorf("%s published an armeabi-v7a build: %s", e.LogicalID, v.File.Name)
			}
		}
	}
	if v, ok := next.Entry("cam").Latest(); !ok || v.File.Name != urls["cam-arm64-v8a.apk"] {
		t.Errorf("cam latest = %+v", v.File)
	}
	if o := outcomeFor(t, summary, "legacy"); o.Kind != report.KindSkipped || o.Reason != ReasonNoAsset {
		t.Errorf("legacy outcome = %+v", o)
	}
	if next.Entry("legacy") != nil {
		t.Error("legacy should have no entry")
	}
}

func TestRun_Retention(t *testing.T) {
	cert := apktest.NewCertificate(t, "apps")
	src := newFakeSource()
	for code := int64(1); code <= 3; code++ {
		src.publish("example/maps", fmt.Sprintf("v%d", code), int(code), map[string][]byte{
			"maps.apk": buildAPK(t, "org.example.maps", code, cert),
		})
	}
	app := testApp("maps", "org.example.maps")
	app.AssetFilter.AllowUniversal = true

	next, summary := runPipeline(t, testConfig(app), src, nil, day1)

	var codes []int64
	for _, v := range next.Entry("maps").Versions {
		codes = append(codes, v.Manifest.VersionCode)
	}
	if !slices.Equal(codes, []int64{3, 2}) {
		t.Errorf("versions = %v, want [3 2]", codes)
	}
	if len(src.downloads) != 2 {
		t.Errorf("downloads = %d, want 2", len(src.downloads))
	}
	if o := outcomeFor(t, summary, "maps"); !slices.Equal(o.VersionCodes, []int64{3, 2}) {
		t.Errorf("accepted codes = %v", o.VersionCodes)
	}
}

func TestRun_OlderReleaseAcceptedWhenNewestFails(t *testing.T) {
	cert := apktest.NewCertificate(t, "apps")
	src := newFakeSource()
	src.publish("example/chat", "v1", 1, map[string][]byte{
		"chat-arm64-v8a.apk": buildAPK(t, "org.example.chat", 1, cert),
	})
	urls := src.publish("example/chat", "v2", 2, map[string][]byte{
		"chat-arm64-v8a.apk": buildAPK(t, "org.example.chat", 2, cert),
	})
	src.downloadErr[urls["chat-arm64-v8a.apk"]] = upstream.ErrNotFound

	next, summary := runPipeline(t, testConfig(testApp("chat", "org.example.chat")), src, nil, day1)

	o := outcomeFor(t, summary, "chat")
	if o.Kind != report.KindAccepted || !slices.Equal(o.VersionCodes, []int64{1}) {
		t.Fatalf("outcome = %+v", o)
	}
	if len(o.Warnings) != 1 || !strings.Contains(o.Warnings[0], StageDownload) {
		t.Errorf("warnings = %v", o.Warnings)
	}
	if got := next.Entry("chat").HighestVersionCode(); got != 1 {
		t.Errorf("highest version = %d", got)
	}
}

func TestRun_DuplicatePackage(t *testing.T) {
	cert := apktest.NewCertificate(t, "apps")
	src := newFakeSource()
	for _, id := range []string{"first", "second"} {
		src.publish("example/"+id, "v1", 1, map[string][]byte{
			"app-arm64-v8a.apk": buildAPK(t, "org.example.same", 1, cert),
		})
	}
	cfg := testConfig(testApp("first", "org.example.same"), testApp("second", "org.example.same"))

	next, summary := runPipeline(t, cfg, src, nil, day1)

	if next.Entry("first") == nil || next.Entry("second") != nil {
		t.Errorf("ids = %v, want [first]", next.IDs())
	}
	o := outcomeFor(t, summary, "second")
	if o.Kind != report.KindFailed || o.Stage != StageMerge || !strings.Contains(o.Message, "duplicate_package") {
		t.Errorf("outcome = %+v", o)
	}
}

func TestRun_PackageHandedOverInSameRun(t *testing.T) {
	cert := apktest.NewCertificate(t, "apps")
	src := newFakeSource()
	src.publish("example/zeta", "v1", 1, map[string][]byte{
		"zeta-arm64-v8a.apk": buildAPK(t, "org.example.old", 1, cert),
	})
	first, _ := runPipeline(t, testConfig(testApp("zeta", "org.example.old")), src, nil, day1)

	// zeta moves to a new package while alpha picks up the one zeta released.
	zeta := testApp("zeta", "org.example.new")
	zeta.Package.AllowPkgChange = true
	src.publish("example/zeta", "v2", 2, map[string][]byte{
		"zeta-arm64-v8a.apk": buildAPK(t, "org.example.new", 2, cert),
	})
	src.publish("example/alpha", "v1", 2, map[string][]byte{
		"alpha-arm64-v8a.apk": buildAPK(t, "org.example.old", 5, cert),
	})
	cfg := testConfig(testApp("alpha", "org.example.old"), zeta)

	next, summary := runPipeline(t, cfg, src, first, day2)

	for _, id := range []string{"alpha", "zeta"} {
		if o := outcomeFor(t, summary, id); o.Kind != report.KindAccepted {
			t.Errorf("%s outcome = %+v", id, o)
		}
	}
	if e := next.Entry("zeta"); e == nil || e.PackageName != "org.example.new" {
		t.Errorf("zeta entry = %+v", e)
	}
	if e := next.Entry("alpha"); e == nil || e.PackageName != "org.example.old" {
		t.Errorf("alpha entry = %+v", e)
	}
}

func TestRun_SkipReasons(t *testing.T) {
	cert := apktest.NewCertificate(t, "apps")
	src := newFakeSource()
	src.publish("example/x86", "v1", 1, map[string][]byte{
		"app-x86_64.apk": buildAPK(t, "org.example.x86", 1, cert),
	})
	cfg := testConfig(testApp("empty", "org.example.empty"), testApp("x86", "org.example.x86"))

	_, summary := runPipeline(t, cfg, src, nil, day1)

	if o := outcomeFor(t, summary, "empty"); o.Reason != ReasonNoReleases {
		t.Errorf("empty outcome = %+v", o)
	}
	if o := outcomeFor(t, summary, "x86"); o.Reason != ReasonNoAsset {
		t.Errorf("x86 outcome = %+v", o)
	}
	if summary.ExitCode() != report.ExitOK {
		t.Errorf("ExitCode() = %d", summary.ExitCode())
	}
}

func TestRun_IgnoredRelease(t *testing.T) {
	cert := apktest.NewCertificate(t, "apps")
	src := newFakeSource()
	src.publish("example/notes", "v1", 1, map[string][]byte{
		"notes-arm64-v8a.apk": buildAPK(t, "org.example.notes", 1, cert),
	})
	src.publish("example/notes", "v2", 2, map[string][]byte{
		"notes-arm64-v8a.apk": buildAPK(t, "org.example.notes", 2, cert),
	})
	cfg := testConfig(testApp("notes", "org.example.notes"))

	rep := report.NewReporter(discard)
	p := New(cfg, upstream.NewFetcher(src, upstream.WithLogger(discard)), rep, discard, discard,
		WithIgnore(config.IgnoreConfig{"notes": []any{"v2"}}))
	next, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := next.Entry("notes").HighestVersionCode(); got != 1 {
		t.Errorf("highest version = %d, want 1", got)
	}
}

type fakeScanner struct {
	mu       sync.Mutex
	infected map[string]bool
	err      error
	scanned  []string
}

func (f *fakeScanner) Scan(ctx context.Context, name string, data []byte) (clamav.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanned = append(f.scanned, name)
	if f.err != nil {
		return clamav.Result{}, f.err
	}
	if f.infected[string(data)] {
		return clamav.Result{Threats: []string{"Andr.Trojan.Test"}}, nil
	}
	return clamav.Result{Clean: true}, nil
}

func TestRun_MalwareScan(t *testing.T) {
	cert := apktest.NewCertificate(t, "apps")
	bad := buildAPK(t, "org.example.notes", 2, cert)
	src := newFakeSource()
	src.publish("example/notes", "v1", 1, map[string][]byte{
		"notes-arm64-v8a.apk": buildAPK(t, "org.example.notes", 1, cert),
	})
	src.publish("example/notes", "v2", 2, map[string][]byte{"notes-arm64-v8a.apk": bad})

	tests := []struct {
		name      string
		scanner   *fakeScanner
		wantKind  report.Kind
		wantCodes []int64
	}{
		{
			name:      "infected release rejected",
			scanner:   &fakeScanner{infected: map[string]bool{string(bad): true}},
			wantKind:  report.KindAccepted,
			wantCodes: []int64{1},
		},
		{
			name:     "scanner unavailable fails closed",
			scanner:  &fakeScanner{err: clamav.ErrDockerUnavailable},
			wantKind: report.KindFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := report.NewReporter(discard)
			p := New(testConfig(testApp("notes", "org.example.notes")),
				upstream.NewFetcher(src, upstream.WithLogger(discard)), rep, discard, discard,
				WithScanner(tt.scanner, time.Minute))
			next, err := p.Run(context.Background(), nil)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			o := outcomeFor(t, rep.Summary(), "notes")
			if o.Kind != tt.wantKind {
				t.Fatalf("outcome = %+v", o)
			}
			if tt.wantKind == report.KindFailed {
				if o.Stage != StageScan || next.Entry("notes") != nil {
					t.Errorf("outcome = %+v, entry = %v", o, next.Entry("notes"))
				}
				return
			}
			if !slices.Equal(o.VersionCodes, tt.wantCodes) {
				t.Errorf("codes = %v, want %v", o.VersionCodes, tt.wantCodes)
			}
			if len(o.Warnings) != 1 || !strings.Contains(o.Warnings[0], "malware detected: Andr.Trojan.Test") {
				t.Errorf("warnings = %v", o.Warnings)
			}
			if len(tt.scanner.scanned) != 2 || tt.scanner.scanned[0] != "notes-arm64-v8a.apk" {
				t.Errorf("scanned = %v", tt.scanner.scanned)
			}
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	cert := apktest.NewCertificate(t, "apps")
	src := newFakeSource()
	src.publish("example/notes", "v1", 1, map[string][]byte{
		"notes-arm64-v8a.apk": buildAPK(t, "org.example.notes", 1, cert),
	})
	rep := report.NewReporter(discard)
	p := New(testConfig(testApp("notes", "org.example.notes")), upstream.NewFetcher(src), rep, discard, discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	next, err := p.Run(ctx, nil)
	if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want cancellation", err)
	}
	if next != nil {
		t.Error("cancelled run returned an index")
	}
	if n := len(rep.Summary().Outcomes); n != 0 {
		t.Errorf("cancelled run recorded %d outcomes", n)
	}
}

func TestNewVersion(t *testing.T) {
	md := &apk.Metadata{
		PackageName: "org.example.notes",
		VersionCode: 21,
		MinSDK:      24,
		Permissions: []apk.Permission{{Name: "android.permission.INTERNET"}},
		Signers:     []string{"ab"},
		SHA256:      "cd",
		Size:        42,
	}
	asset := selector.SelectedAsset{
		Asset: upstream.Asset{Name: "notes.apk", URL: "https://example.com/notes.apk"},
		Tag:   "release-2.1.0",
	}

	v := NewVersion(md, asset, 1000)
	if v.Manifest.VersionName != "2.1.0" {
		t.Errorf("VersionName = %q, want tag fallback 2.1.0", v.Manifest.VersionName)
	}
	if v.File.Name != asset.URL || v.File.SHA256 != "cd" || v.File.Size != 42 || v.Added != 1000 {
		t.Errorf("File = %+v, Added = %d", v.File, v.Added)
	}
	if len(v.Manifest.UsesPermission) != 1 || v.Manifest.Signer == nil {
		t.Errorf("Manifest = %+v", v.Manifest)
	}

	md.VersionName = "2.1"
	if v := NewVersion(md, asset, 1000); v.Manifest.VersionName != "2.1" {
		t.Errorf("VersionName = %q, want manifest value", v.Manifest.VersionName)
	}
}

func TestMetadataFromConfig(t *testing.T) {
	app := testApp("notes", "org.example.notes")
	app.Metadata.Name = nil
	app.Metadata.SourceURL = "https://github.com/example/notes"
	app.Metadata.Website = "https://notes.example.org"

	m := MetadataFromConfig(&app)
	if m.Name[config.DefaultLocale] != "notes" {
		t.Errorf("Name = %v, want logical id fallback", m.Name)
	}
	if m.SourceCode != app.Metadata.SourceURL || m.WebSite != app.Metadata.Website {
		t.Errorf("links = %q %q", m.SourceCode, m.WebSite)
	}
}

func TestResolveLogicalID(t *testing.T) {
	resolve := ResolveLogicalID(testConfig(testApp("notes", "org.example.notes")))
	if got := resolve("org.example.notes"); got != "notes" {
		t.Errorf("resolve() = %q", got)
	}
	if got := resolve("org.example.other"); got != "" {
		t.Errorf("resolve(unknown) = %q", got)
	}
}
