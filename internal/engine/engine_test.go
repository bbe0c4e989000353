package engine

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/flowd-org/slicerwrap/internal/compiler"
	"github.com/flowd-org/slicerwrap/internal/dyniface"
	"github.com/flowd-org/slicerwrap/internal/schemafetch"
)

const demoSchema = `<executable>
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
    <image>
      <name>outputVolume</name>
      <longflag>outputVolume</longflag>
      <channel>output</channel>
    </image>
    <integer><name>A</name><index>1</index></integer>
    <string><name>B</name><index>0</index></string>
    <string><name>C</name><longflag>c</longflag></string>
    <boolean><name>verbose</name></boolean>
    <float-vector><name>scales</name></float-vector>
    <integer-vector><name>sizes</name></integer-vector>
    <double><name>sigma</name></double>
  </parameters>
</executable>`

func newIface(t *testing.T, work string) *dyniface.Interface {
	t.Helper()
	doc, err := schemafetch.Parse([]byte(demoSchema))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	schema, err := compiler.Compile(doc, compiler.Options{WorkDir: work})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return dyniface.New(schema)
}

func mustSet(t *testing.T, iface *dyniface.Interface, name string, v any) {
	t.Helper()
	if err := iface.Inputs.Set(name, v); err != nil {
		t.Fatalf("Set(%s): %v", name, err)
	}
}

func TestArgvOrdersPositionalBeforeFlagged(t *testing.T) {
	iface := newIface(t, t.TempDir())
	mustSet(t, iface, "C", "cv")
	mustSet(t, iface, "A", 7)
	mustSet(t, iface, "B", "bv")

	argv, err := Argv(iface)
	if err != nil {
		t.Fatalf("Argv: %v", err)
	}
	want := []string{"bv", "7", "--c", "cv"}
	if !reflect.DeepEqual(argv, want) {
		t.Fatalf("expected %v, got %v", want, argv)
	}
}

func TestArgvUndefinedInputsProduceNoTokens(t *testing.T) {
	iface := newIface(t, t.TempDir())
	argv, err := Argv(iface)
	if err != nil {
		t.Fatalf("Argv: %v", err)
	}
	if len(argv) != 0 {
		t.Fatalf("expected empty argv, got %v", argv)
	}
}

func TestArgvRendersKinds(t *testing.T) {
	iface := newIface(t, t.TempDir())
	mustSet(t, iface, "verbose", true)
	mustSet(t, iface, "scales", []float64{1, 0.5})
	mustSet(t, iface, "sizes", []int{3, 2, 1})
	mustSet(t, iface, "sigma", 2)

	argv, err := Argv(iface)
	if err != nil {
		t.Fatalf("Argv: %v", err)
	}
	want := []string{"--verbose", "--scales", "1.000000,0.500000", "--sizes", "3,2,1", "--sigma", "2.000000"}
	if !reflect.DeepEqual(argv, want) {
		t.Fatalf("expected %v, got %v", want, argv)
	}

	mustSet(t, iface, "verbose", false)
	argv, _ = Argv(iface)
	for _, tok := range argv {
		if tok == "--verbose" {
			t.Fatalf("false boolean must be omitted: %v", argv)
		}
	}
}

func TestPositionalBooleanRendersAsSwitch(t *testing.T) {
	doc, err := schemafetch.Parse([]byte(`<executable><parameters>
<boolean><name>force</name><index>0</index></boolean>
<string><name>label</name><index>1</index></string>
</parameters></executable>`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	schema, err := compiler.Compile(doc, compiler.Options{WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	iface := dyniface.New(schema)
	mustSet(t, iface, "force", true)
	mustSet(t, iface, "label", "x")

	argv, err := Argv(iface)
	if err != nil {
		t.Fatalf("Argv: %v", err)
	}
	if want := []string{"--force", "x"}; !reflect.DeepEqual(argv, want) {
		t.Fatalf("expected %v, got %v", want, argv)
	}
	mustSet(t, iface, "force", false)
	argv, _ = Argv(iface)
	if want := []string{"x"}; !reflect.DeepEqual(argv, want) {
		t.Fatalf("expected %v, got %v", want, argv)
	}
}

func TestOutputToggleRoundTrip(t *testing.T) {
	work := t.TempDir()
	iface := newIface(t, work)
	mustSet(t, iface, "fixedVolume", "/a.nii")
	mustSet(t, iface, "outputTransform", true)
	mustSet(t, iface, "outputVolume", false)

	argv, err := Argv(iface)
	if err != nil {
		t.Fatalf("Argv: %v", err)
	}
	generated := filepath.Join(work, "outputTransform.txt")
	want := []string{"--fixedVolume", "/a.nii", "--outputTransform", generated}
	if !reflect.DeepEqual(argv, want) {
		t.Fatalf("expected %v, got %v", want, argv)
	}

	outs, err := ResolveOutputs(iface)
	if err != nil {
		t.Fatalf("ResolveOutputs: %v", err)
	}
	if p, _ := outs["outputTransform"].Path(); p != generated {
		t.Fatalf("expected output %s, got %v", generated, outs["outputTransform"])
	}
	if outs["outputVolume"].IsDefined() {
		t.Fatalf("false toggle must resolve to undefined")
	}
	stored, _ := iface.Outputs.Get("outputTransform")
	if !stored.Equal(outs["outputTransform"]) {
		t.Fatalf("outputs container not updated")
	}
}

func TestOutputExplicitPath(t *testing.T) {
	iface := newIface(t, t.TempDir())
	mustSet(t, iface, "outputVolume", "/tmp/x.nii")

	argv, _ := Argv(iface)
	if !reflect.DeepEqual(argv, []string{"--outputVolume", "/tmp/x.nii"}) {
		t.Fatalf("unexpected argv %v", argv)
	}
	outs, _ := ResolveOutputs(iface)
	if p, _ := outs["outputVolume"].Path(); p != "/tmp/x.nii" {
		t.Fatalf("expected explicit path, got %v", outs["outputVolume"])
	}

	mustSet(t, iface, "outputVolume", dyniface.Undefined)
	outs, _ = ResolveOutputs(iface)
	if outs["outputVolume"].IsDefined() {
		t.Fatalf("expected undefined after reset")
	}
	if v, _ := iface.Outputs.Get("outputVolume"); v.IsDefined() {
		t.Fatalf("stale output left in container")
	}
}

func TestBuildPlan(t *testing.T) {
	work := t.TempDir()
	iface := newIface(t, work)
	mustSet(t, iface, "fixedVolume", "/data/my scan.nii")
	mustSet(t, iface, "outputTransform", true)

	plan, err := BuildPlan("Demo", []string{"/opt/Demo"}, iface)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if plan.Executable != "/opt/Demo" || plan.Module != "Demo" {
		t.Fatalf("unexpected plan header %+v", plan)
	}
	if plan.Argv[0] != "/opt/Demo" || len(plan.Argv) != 5 {
		t.Fatalf("unexpected argv %v", plan.Argv)
	}
	want := "/opt/Demo --fixedVolume '/data/my scan.nii' --outputTransform " + filepath.Join(work, "outputTransform.txt")
	if plan.Cmdline != want {
		t.Fatalf("expected cmdline %q, got %q", want, plan.Cmdline)
	}
	if plan.Inputs["outputTransform"] != true {
		t.Fatalf("expected toggle input recorded, got %v", plan.Inputs)
	}
	if _, ok := plan.Outputs["outputVolume"]; ok {
		t.Fatalf("undefined outputs must not be listed")
	}
}

func TestRenderErrorIsArgError(t *testing.T) {
	iface := newIface(t, t.TempDir())
	mustSet(t, iface, "outputTransform", true)
	iface.Schema().Filenames["outputTransform"] = ""
	_, err := Argv(iface)
	var ae *ArgError
	if !errors.As(err, &ae) || ae.Arg != "outputTransform" {
		t.Fatalf("expected ArgError for outputTransform, got %v", err)
	}
}
