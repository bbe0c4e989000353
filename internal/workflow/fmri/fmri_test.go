package fmri

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/flowd-org/slicerwrap/internal/workflow"
)

func nodeNames(t *testing.T, w *workflow.Workflow) []string {
	t.Helper()
	order, err := w.TopoOrder()
	if err != nil {
		t.Fatalf("topo: %v", err)
	}
	out := make([]string, 0, len(order))
	for _, n := range order {
		out = append(out, n.Name)
	}
	return out
}

func TestModelFitLegacyFSL(t *testing.T) {
	w, err := ModelFit("", false, "5.0.6")
	if err != nil {
		t.Fatalf("ModelFit: %v", err)
	}
	if w.Name != "modelfit" {
		t.Fatalf("unexpected name %s", w.Name)
	}
	con, ok := w.Node("conestimate")
	if !ok {
		t.Fatalf("expected conestimate node for FSL 5.0.6")
	}
	expect := []string{"tcon_file", "param_estimates", "sigmasquareds", "corrections", "dof_file"}
	if !reflect.DeepEqual(con.IterFields, expect) {
		t.Fatalf("expected iterfields %v, got %v", expect, con.IterFields)
	}
	est, _ := w.Node("modelestimate")
	if !reflect.DeepEqual(est.IterFields, []string{"design_file", "in_file"}) {
		t.Fatalf("unexpected modelestimate iterfields %v", est.IterFields)
	}
	if est.Preset()["mask_size"] != 5 || est.Preset()["smooth_autocorr"] != true {
		t.Fatalf("unexpected presets %v", est.Preset())
	}
	order := nodeNames(t, w)
	if order[0] != "inputspec" || order[len(order)-1] != "outputspec" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestModelFitIntegratedContrasts(t *testing.T) {
	w, err := ModelFit("fit", true, "6.0.7.4")
	if err != nil {
		t.Fatalf("ModelFit: %v", err)
	}
	if _, ok := w.Node("conestimate"); ok {
		t.Fatalf("expected no conestimate node for FSL 6")
	}
	est, _ := w.Node("modelestimate")
	expect := []string{"design_file", "in_file", "tcon_file", "fcon_file"}
	if !reflect.DeepEqual(est.IterFields, expect) {
		t.Fatalf("expected %v, got %v", expect, est.IterFields)
	}
	merge, _ := w.Node("merge_contrasts")
	if !reflect.DeepEqual(merge.IterFields, []string{"in1", "in2"}) {
		t.Fatalf("unexpected merge iterfields %v", merge.IterFields)
	}
	ztop, _ := w.Node("ztop")
	if !ztop.Nested {
		t.Fatalf("expected nested ztop")
	}
	g, err := w.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	found := false
	for _, e := range g.Edges {
		if e.From == "modelestimate.copes" && e.To == "outputspec.copes" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected copes to come from modelestimate, edges %v", g.Edges)
	}
}

func TestModelFitUnknownVersionUsesContrastManager(t *testing.T) {
	w, err := ModelFit("", false, "")
	if err != nil {
		t.Fatalf("ModelFit: %v", err)
	}
	if _, ok := w.Node("conestimate"); !ok {
		t.Fatalf("expected conestimate when FSL version is unknown")
	}
}

func TestOverlay(t *testing.T) {
	w, err := Overlay("")
	if err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	if got := nodeNames(t, w); !reflect.DeepEqual(got, []string{"overlaystats", "slicestats"}) {
		t.Fatalf("unexpected nodes %v", got)
	}
	slicer, _ := w.Node("slicestats")
	if slicer.Preset()["image_width"] != 512 {
		t.Fatalf("unexpected presets %v", slicer.Preset())
	}
}

func TestFixedEffects(t *testing.T) {
	w, err := FixedEffects("")
	if err != nil {
		t.Fatalf("FixedEffects: %v", err)
	}
	order := nodeNames(t, w)
	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	if pos["copemerge"] > pos["gendofvolume"] || pos["gendofvolume"] > pos["flameo"] || pos["flameo"] > pos["outputspec"] {
		t.Fatalf("unexpected order %v", order)
	}
	flameo, _ := w.Node("flameo")
	if flameo.Preset()["run_mode"] != "fe" {
		t.Fatalf("expected fixed-effects run mode, got %v", flameo.Preset())
	}
}

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"5.0.6", "5.0.6", 0},
		{"5.0.7", "5.0.6", 1},
		{"5.0.10", "5.0.9", 1},
		{"5.0", "5.0.6", -1},
		{"6.0.7.4", "5.0.6", 1},
		{"5.0.6a", "5.0.6", 1},
	}
	for _, c := range cases {
		if got := CompareVersions(c.a, c.b); got != c.want {
			t.Fatalf("CompareVersions(%q, %q): expected %d, got %d", c.a, c.b, c.want, got)
		}
	}
}

func TestFSLVersion(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "etc"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "etc", "fslversion"), []byte("6.0.5:9e026117\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FSLDIR", dir)
	if got := FSLVersion(); got != "6.0.5" {
		t.Fatalf("expected 6.0.5, got %q", got)
	}
	t.Setenv("FSLDIR", "")
	if got := FSLVersion(); got != "" {
		t.Fatalf("expected empty version, got %q", got)
	}
}

func TestLookup(t *testing.T) {
	iface, ok := Lookup("FILMGLS")
	if !ok || iface.InterfaceName() != "fsl.FILMGLS" {
		t.Fatalf("unexpected lookup %v %v", iface, ok)
	}
	if _, ok := Lookup("BET"); ok {
		t.Fatalf("expected unknown tool")
	}
	if len(Tools()) != len(catalog) {
		t.Fatalf("expected all tools listed")
	}
}
