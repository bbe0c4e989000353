package wrapper

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/flowd-org/slicerwrap/internal/compiler"
	"github.com/flowd-org/slicerwrap/internal/coredb"
	"github.com/flowd-org/slicerwrap/internal/executor"
	"github.com/flowd-org/slicerwrap/internal/schemafetch"
)

const registrationXML = `<?xml version="1.0" encoding="utf-8"?>
<executable>
  <category>Registration</category>
  <title>Demo Registration</title>
  <parameters>
    <label>IO</label>
    <image>
      <name>fixedVolume</name>
      <longflag>fixedVolume</longflag>
      <channel>input</channel>
    </image>
    <transform>
      <name>outputTransform</name>
      <longflag>outputTransform</longflag>
      <channel>output</channel>
    </transform>
    <integer>
      <name>iterations</name>
      <longflag>--iterations</longflag>
    </integer>
  </parameters>
</executable>`

type fakeSource struct {
	xml   string
	calls int
	got   []string
}

func (f *fakeSource) Fetch(ctx context.Context, command []string) (*schemafetch.Document, error) {
	f.calls++
	f.got = append([]string(nil), command...)
	return schemafetch.Parse([]byte(f.xml))
}

func newModule(t *testing.T, src Source, work string) *Module {
	t.Helper()
	m, err := New(context.Background(), "BRAINSFit", Options{
		PluginsDir: "/opt/slicer/cli-modules",
		Launcher:   []string{"Slicer", "--launch"},
		WorkDir:    work,
		Source:     src,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestNewBuildsInterface(t *testing.T) {
	src := &fakeSource{xml: registrationXML}
	m := newModule(t, src, t.TempDir())

	expectCmd := []string{"Slicer", "--launch", "/opt/slicer/cli-modules/BRAINSFit"}
	if !reflect.DeepEqual(src.got, expectCmd) {
		t.Fatalf("expected fetch command %v, got %v", expectCmd, src.got)
	}
	if m.Name() != "BRAINSFit" || m.Info().Title != "Demo Registration" {
		t.Fatalf("unexpected module identity %s %+v", m.Name(), m.Info())
	}
	if !reflect.DeepEqual(m.InputFields(), []string{"fixedVolume", "outputTransform", "iterations"}) {
		t.Fatalf("unexpected inputs %v", m.InputFields())
	}
	if !reflect.DeepEqual(m.OutputFields(), []string{"outputTransform"}) {
		t.Fatalf("unexpected outputs %v", m.OutputFields())
	}
	for _, name := range m.InputFields() {
		v, err := m.Get(name)
		if err != nil || v.IsDefined() {
			t.Fatalf("expected %s undefined, got %v %v", name, v, err)
		}
	}
}

func TestCmdlineEndToEnd(t *testing.T) {
	work := t.TempDir()
	m := newModule(t, &fakeSource{xml: registrationXML}, work)
	if err := m.Set("fixedVolume", "/a.nii"); err != nil {
		t.Fatalf("set fixedVolume: %v", err)
	}
	if err := m.Set("outputTransform", true); err != nil {
		t.Fatalf("set outputTransform: %v", err)
	}
	argv, err := m.Argv()
	if err != nil {
		t.Fatalf("Argv: %v", err)
	}
	want := filepath.Join(work, "outputTransform.txt")
	expect := []string{"Slicer", "--launch", "/opt/slicer/cli-modules/BRAINSFit",
		"--fixedVolume", "/a.nii", "--outputTransform", want}
	if !reflect.DeepEqual(argv, expect) {
		t.Fatalf("expected %v, got %v", expect, argv)
	}
	outs, err := m.ListOutputs()
	if err != nil {
		t.Fatalf("ListOutputs: %v", err)
	}
	if path, ok := outs["outputTransform"].Path(); !ok || path != want {
		t.Fatalf("expected resolved output %s, got %v", want, outs["outputTransform"])
	}

	if err := m.Set("outputTransform", false); err != nil {
		t.Fatalf("set false: %v", err)
	}
	line, err := m.Cmdline()
	if err != nil {
		t.Fatalf("Cmdline: %v", err)
	}
	if strings.Contains(line, "outputTransform") {
		t.Fatalf("expected toggle false to omit the flag, got %q", line)
	}
	outs, _ = m.ListOutputs()
	if outs["outputTransform"].IsDefined() {
		t.Fatalf("expected undefined output, got %v", outs["outputTransform"])
	}
}

func TestFlagWithLeadingDashes(t *testing.T) {
	m := newModule(t, &fakeSource{xml: registrationXML}, t.TempDir())
	if err := m.Set("iterations", 3); err != nil {
		t.Fatalf("set: %v", err)
	}
	plan, err := m.Plan()
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !strings.HasSuffix(plan.Cmdline, "BRAINSFit --iterations 3") {
		t.Fatalf("unexpected cmdline %q", plan.Cmdline)
	}
	if plan.WorkDir != m.WorkDir() || plan.Inputs["iterations"] != int64(3) {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestNewFailsWithoutPartialModule(t *testing.T) {
	src := &fakeSource{xml: `<executable><parameters>
<integer><name>ok</name><longflag>ok</longflag></integer>
<integer><index>0</index></integer>
</parameters></executable>`}
	m, err := New(context.Background(), "Broken", Options{Source: src, WorkDir: t.TempDir()})
	if m != nil {
		t.Fatalf("expected no module, got %+v", m)
	}
	var invalid *compiler.InvalidSchemaError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidSchemaError, got %v", err)
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	src := &fakeSource{xml: registrationXML}
	a := newModule(t, src, t.TempDir())
	b := newModule(t, src, t.TempDir())
	if err := a.Set("iterations", 5); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := b.Get("iterations"); v.IsDefined() {
		t.Fatalf("expected second instance untouched, got %v", v)
	}
}

func TestResolve(t *testing.T) {
	if got := Resolve("BRAINSFit", "/plugins", false); got != "/plugins/BRAINSFit" {
		t.Fatalf("unexpected %s", got)
	}
	if got := Resolve("/usr/bin/tool", "/plugins", false); got != "/usr/bin/tool" {
		t.Fatalf("expected absolute path kept, got %s", got)
	}
	if got := Resolve("NoSuchModuleAnywhere", "", true); got != "NoSuchModuleAnywhere" {
		t.Fatalf("expected launcher pass-through, got %s", got)
	}
}

func TestSchemaCacheSkipsFetch(t *testing.T) {
	ctx := context.Background()
	db, err := coredb.Open(ctx, coredb.Options{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	cache := coredb.NewSchemaCache(db, 0)

	plugins := t.TempDir()
	if err := os.WriteFile(filepath.Join(plugins, "BRAINSFit"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write tool: %v", err)
	}
	src := &fakeSource{xml: registrationXML}
	opts := Options{PluginsDir: plugins, WorkDir: t.TempDir(), Source: src, Cache: cache}

	if _, err := New(ctx, "BRAINSFit", opts); err != nil {
		t.Fatalf("first New: %v", err)
	}
	m, err := New(ctx, "BRAINSFit", opts)
	if err != nil {
		t.Fatalf("second New: %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("expected one fetch, got %d", src.calls)
	}
	if m.Info().Title != "Demo Registration" {
		t.Fatalf("expected cached schema, got %+v", m.Info())
	}
}

func TestSchemaCacheKeyIncludesCommand(t *testing.T) {
	ctx := context.Background()
	db, err := coredb.Open(ctx, coredb.Options{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	cache := coredb.NewSchemaCache(db, 0)

	plugins := t.TempDir()
	if err := os.WriteFile(filepath.Join(plugins, "BRAINSFit"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write tool: %v", err)
	}
	src := &fakeSource{xml: registrationXML}
	opts := Options{PluginsDir: plugins, WorkDir: t.TempDir(), Source: src, Cache: cache}
	if _, err := New(ctx, "BRAINSFit", opts); err != nil {
		t.Fatalf("first New: %v", err)
	}

	opts.SchemaFlag = "--describe"
	if _, err := New(ctx, "BRAINSFit", opts); err != nil {
		t.Fatalf("New with schema flag: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("expected refetch after schema flag change, got %d fetches", src.calls)
	}

	opts.Launcher = []string{"Slicer", "--launch"}
	if _, err := New(ctx, "BRAINSFit", opts); err != nil {
		t.Fatalf("New with launcher: %v", err)
	}
	if src.calls != 3 {
		t.Fatalf("expected refetch after launcher change, got %d fetches", src.calls)
	}
	if _, err := New(ctx, "BRAINSFit", opts); err != nil {
		t.Fatalf("repeat New: %v", err)
	}
	if src.calls != 3 {
		t.Fatalf("expected cache hit for unchanged command, got %d fetches", src.calls)
	}
}

const vectorXML = `<executable>
  <parameters>
    <image-vector>
      <name>inputVolumes</name>
      <longflag>inputVolumes</longflag>
      <channel>input</channel>
    </image-vector>
    <image>
      <name>fixedVolume</name>
      <longflag>fixedVolume</longflag>
      <channel>input</channel>
    </image>
  </parameters>
</executable>`

func TestMountsCoverVectorInputs(t *testing.T) {
	work := t.TempDir()
	m := newModule(t, &fakeSource{xml: vectorXML}, work)
	if err := m.Set("inputVolumes", []string{"/data/a/x.nii", "/data/b/y.nii"}); err != nil {
		t.Fatalf("set inputVolumes: %v", err)
	}
	if err := m.Set("fixedVolume", "/data/c/f.nii"); err != nil {
		t.Fatalf("set fixedVolume: %v", err)
	}
	readOnly := map[string]bool{}
	for _, mount := range m.mounts(nil) {
		if mount.ReadOnly {
			readOnly[mount.Source] = true
		}
	}
	for _, dir := range []string{"/data/a", "/data/b", "/data/c"} {
		if !readOnly[dir] {
			t.Fatalf("expected read-only mount for %s, got %v", dir, m.mounts(nil))
		}
	}
}

type fakeRecorder struct {
	started  []string
	finished map[string]string
	exit     int
}

func (r *fakeRecorder) Start(ctx context.Context, id, module, cmdline string) error {
	r.started = append(r.started, id+" "+module)
	return nil
}

func (r *fakeRecorder) Finish(ctx context.Context, id string, exitCode int, errMsg string, outputs map[string]string) error {
	r.finished = outputs
	r.exit = exitCode
	return nil
}

func TestRunResolvesOutputs(t *testing.T) {
	work := t.TempDir()
	fixed := filepath.Join(work, "fixed.nii")
	if err := os.WriteFile(fixed, []byte("img"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	m := newModule(t, &fakeSource{xml: registrationXML}, work)
	_ = m.Set("fixedVolume", fixed)
	_ = m.Set("outputTransform", true)

	var seen executor.Invocation
	rec := &fakeRecorder{}
	out, err := m.Run(context.Background(), RunOptions{
		RunID:    "run-1",
		Recorder: rec,
		Exec: func(ctx context.Context, inv executor.Invocation) executor.Result {
			seen = inv
			_ = os.WriteFile(filepath.Join(work, "outputTransform.txt"), []byte("tfm"), 0o644)
			return executor.Result{Module: inv.Module}
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if seen.Dir != work || seen.RunID != "run-1" {
		t.Fatalf("unexpected invocation %+v", seen)
	}
	want := filepath.Join(work, "outputTransform.txt")
	if path, _ := out.Outputs["outputTransform"].Path(); path != want {
		t.Fatalf("expected output %s, got %v", want, out.Outputs)
	}
	if len(rec.started) != 1 || rec.finished["outputTransform"] != want {
		t.Fatalf("unexpected recorder state %+v", rec)
	}
}

func TestRunMissingOutput(t *testing.T) {
	work := t.TempDir()
	m := newModule(t, &fakeSource{xml: registrationXML}, work)
	_ = m.Set("outputTransform", true)
	_, err := m.Run(context.Background(), RunOptions{
		Exec: func(ctx context.Context, inv executor.Invocation) executor.Result {
			return executor.Result{Module: inv.Module}
		},
	})
	if !errors.Is(err, ErrMissingOutput) {
		t.Fatalf("expected ErrMissingOutput, got %v", err)
	}
}

func TestRunMissingInput(t *testing.T) {
	work := t.TempDir()
	m := newModule(t, &fakeSource{xml: registrationXML}, work)
	_ = m.Set("fixedVolume", filepath.Join(work, "absent.nii"))
	called := false
	_, err := m.Run(context.Background(), RunOptions{
		Exec: func(ctx context.Context, inv executor.Invocation) executor.Result {
			called = true
			return executor.Result{}
		},
	})
	if !errors.Is(err, ErrMissingInput) {
		t.Fatalf("expected ErrMissingInput, got %v", err)
	}
	if called {
		t.Fatalf("expected no execution")
	}
}

const toolScript = `#!/bin/sh
if [ "$1" = "--xml" ]; then
cat <<'XML'
` + registrationXML + `
XML
exit 0
fi
echo "running $*"
while [ $# -gt 0 ]; do
  case "$1" in
    --outputTransform) shift; echo transform > "$1" ;;
  esac
  shift
done
`

func TestRunRealProcess(t *testing.T) {
	plugins := t.TempDir()
	if err := os.WriteFile(filepath.Join(plugins, "DemoReg"), []byte(toolScript), 0o755); err != nil {
		t.Fatalf("write tool: %v", err)
	}
	work := t.TempDir()
	m, err := New(context.Background(), "DemoReg", Options{PluginsDir: plugins, WorkDir: work, EnvInherit: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Set("outputTransform", "nested/result.txt"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(work, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	var stdout, stderr bytes.Buffer
	out, err := m.Run(context.Background(), RunOptions{Stdout: &stdout, Stderr: &stderr})
	if err != nil {
		t.Fatalf("Run: %v (stderr %s)", err, stderr.String())
	}
	if !strings.Contains(stdout.String(), "running --outputTransform nested/result.txt") {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
	if out.RunID == "" || out.ExitCode != 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	data, err := os.ReadFile(filepath.Join(work, "nested", "result.txt"))
	if err != nil || strings.TrimSpace(string(data)) != "transform" {
		t.Fatalf("expected output file, got %q %v", data, err)
	}
	if v := out.Outputs["outputTransform"]; v.String() != "nested/result.txt" {
		t.Fatalf("unexpected output value %v", v)
	}
}
