// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fmri declares FSL analysis pipelines as workflows: first-level
// model fitting, statistic overlays and fixed-effects combination.
package fmri

import (
	"github.com/flowd-org/slicerwrap/internal/workflow"
)

// builder keeps the first error so pipeline declarations read top to bottom.
type builder struct {
	w   *workflow.Workflow
	err error
}

func (b *builder) connect(src, dst *workflow.Node, links ...workflow.Link) {
	if b.err == nil {
		b.err = b.w.Connect(src, dst, links...)
	}
}

func (b *builder) set(n *workflow.Node, field string, v any) {
	if b.err == nil {
		b.err = n.Set(field, v)
	}
}

func (b *builder) done() (*workflow.Workflow, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.w.Validate(); err != nil {
		return nil, err
	}
	return b.w, nil
}

// ModelFit declares first-level model fitting. With an FSL newer than 5.0.6
// FILMGLS estimates contrasts itself and no ContrastMgr node is added.
// fContrasts adds F-contrast files to the iterated fields.
func ModelFit(name string, fContrasts bool, fslVersion string) (*workflow.Workflow, error) {
	if name == "" {
		name = "modelfit"
	}
	integrated := integratedContrasts(fslVersion)
	b := &builder{w: workflow.New(name)}

	inputspec := workflow.NewNode("inputspec", workflow.Identity(
		"session_info", "interscan_interval", "contrasts", "film_threshold",
		"functional_data", "bases", "model_serial_correlations"))
	level1design := workflow.NewNode("level1design", mustLookup("Level1Design"))
	modelgen := workflow.NewMapNode("modelgen", mustLookup("FEATModel"), "fsf_file", "ev_files")

	estimateIter := []string{"design_file", "in_file"}
	if integrated {
		estimateIter = append(estimateIter, "tcon_file")
		if fContrasts {
			estimateIter = append(estimateIter, "fcon_file")
		}
	}
	modelestimate := workflow.NewMapNode("modelestimate", mustLookup("FILMGLS"), estimateIter...)
	b.set(modelestimate, "smooth_autocorr", true)
	b.set(modelestimate, "mask_size", 5)

	mergeIter := []string{"in1"}
	if fContrasts {
		mergeIter = append(mergeIter, "in2")
	}
	mergeContrasts := workflow.NewMapNode("merge_contrasts", workflow.Merge(2), mergeIter...)

	ztop := workflow.NewMapNode("ztop", mustLookup("ImageMaths"), "in_file")
	ztop.Nested = true
	b.set(ztop, "op_string", "-ztop")
	b.set(ztop, "suffix", "_pval")

	outputspec := workflow.NewNode("outputspec", workflow.Identity(
		"copes", "varcopes", "dof_file", "pfiles", "zfiles", "parameter_estimates"))

	b.connect(inputspec, level1design, workflow.Same(
		"interscan_interval", "session_info", "contrasts", "bases", "model_serial_correlations")...)
	b.connect(inputspec, modelestimate,
		workflow.L("film_threshold", "threshold"),
		workflow.L("functional_data", "in_file"))
	b.connect(level1design, modelgen,
		workflow.L("fsf_files", "fsf_file"),
		workflow.L("ev_files", "ev_files"))
	b.connect(modelgen, modelestimate, workflow.L("design_file", "design_file"))
	b.connect(mergeContrasts, ztop, workflow.L("out", "in_file"))
	b.connect(ztop, outputspec, workflow.L("out_file", "pfiles"))
	b.connect(mergeContrasts, outputspec, workflow.L("out", "zfiles"))
	b.connect(modelestimate, outputspec,
		workflow.L("param_estimates", "parameter_estimates"),
		workflow.L("dof_file", "dof_file"))

	if integrated {
		b.connect(modelgen, modelestimate,
			workflow.L("con_file", "tcon_file"),
			workflow.L("fcon_file", "fcon_file"))
		b.connect(modelestimate, mergeContrasts,
			workflow.L("zstats", "in1"),
			workflow.L("zfstats", "in2"))
		b.connect(modelestimate, outputspec, workflow.Same("copes", "varcopes")...)
		return b.done()
	}

	conIter := []string{"tcon_file"}
	if fContrasts {
		conIter = append(conIter, "fcon_file")
	}
	conIter = append(conIter, "param_estimates", "sigmasquareds", "corrections", "dof_file")
	conestimate := workflow.NewMapNode("conestimate", mustLookup("ContrastMgr"), conIter...)

	b.connect(modelgen, conestimate,
		workflow.L("con_file", "tcon_file"),
		workflow.L("fcon_file", "fcon_file"))
	b.connect(modelestimate, conestimate, workflow.Same(
		"param_estimates", "sigmasquareds", "corrections", "dof_file")...)
	b.connect(conestimate, mergeContrasts,
		workflow.L("zstats", "in1"),
		workflow.L("zfstats", "in2"))
	b.connect(conestimate, outputspec, workflow.Same("copes", "varcopes")...)
	return b.done()
}

// Overlay renders thresholded statistics over a background and slices the
// result into axial images.
func Overlay(name string) (*workflow.Workflow, error) {
	if name == "" {
		name = "overlay"
	}
	b := &builder{w: workflow.New(name)}

	overlaystats := workflow.NewMapNode("overlaystats", mustLookup("Overlay"), "stat_image")
	b.set(overlaystats, "show_negative_stats", true)
	b.set(overlaystats, "auto_thresh_bg", true)

	slicestats := workflow.NewMapNode("slicestats", mustLookup("Slicer"), "in_file")
	b.set(slicestats, "all_axial", true)
	b.set(slicestats, "image_width", 512)

	b.connect(overlaystats, slicestats, workflow.L("out_file", "in_file"))
	return b.done()
}

// FixedEffects combines per-run copes and varcopes of one subject with a
// fixed-effects FLAMEO model.
func FixedEffects(name string) (*workflow.Workflow, error) {
	if name == "" {
		name = "fixedfx"
	}
	b := &builder{w: workflow.New(name)}

	inputspec := workflow.NewNode("inputspec", workflow.Identity("copes", "varcopes", "dof_files"))
	copemerge := workflow.NewMapNode("copemerge", mustLookup("Merge"), "in_files")
	b.set(copemerge, "dimension", "t")
	varcopemerge := workflow.NewMapNode("varcopemerge", mustLookup("Merge"), "in_files")
	b.set(varcopemerge, "dimension", "t")
	level2model := workflow.NewNode("l2model", mustLookup("L2Model"))
	flameo := workflow.NewMapNode("flameo", mustLookup("FLAMEO"), "cope_file", "var_cope_file")
	b.set(flameo, "run_mode", "fe")
	// Builds a 4D degrees-of-freedom volume shaped like the merged copes.
	gendof := workflow.NewNode("gendofvolume", workflow.Function("get_dofvolumes",
		[]string{"dof_files", "cope_files"}, []string{"dof_volume"}))
	outputspec := workflow.NewNode("outputspec", workflow.Identity(
		"res4d", "copes", "varcopes", "zstats", "tstats"))

	b.connect(inputspec, copemerge, workflow.L("copes", "in_files"))
	b.connect(inputspec, varcopemerge, workflow.L("varcopes", "in_files"))
	b.connect(inputspec, gendof, workflow.L("dof_files", "dof_files"))
	b.connect(copemerge, gendof, workflow.L("merged_file", "cope_files"))
	b.connect(copemerge, flameo, workflow.L("merged_file", "cope_file"))
	b.connect(varcopemerge, flameo, workflow.L("merged_file", "var_cope_file"))
	b.connect(level2model, flameo,
		workflow.L("design_mat", "design_file"),
		workflow.L("design_con", "t_con_file"),
		workflow.L("design_grp", "cov_split_file"))
	b.connect(gendof, flameo, workflow.L("dof_volume", "dof_var_cope_file"))
	b.connect(flameo, outputspec,
		workflow.L("res4d", "res4d"),
		workflow.L("copes", "copes"),
		workflow.L("var_copes", "varcopes"),
		workflow.L("zstats", "zstats"),
		workflow.L("tstats", "tstats"))
	return b.done()
}
