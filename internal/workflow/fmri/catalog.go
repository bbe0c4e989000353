// SPDX-License-Identifier: AGPL-3.0-or-later
package fmri

import (
	"sort"

	"github.com/flowd-org/slicerwrap/internal/workflow"
)

type fields struct {
	inputs  []string
	outputs []string
}

// catalog declares the field lists of the FSL tools the pipelines use.
var catalog = map[string]fields{
	"Level1Design": {
		inputs:  []string{"interscan_interval", "session_info", "bases", "orthogonalization", "model_serial_correlations", "contrasts"},
		outputs: []string{"fsf_files", "ev_files"},
	},
	"FEATModel": {
		inputs:  []string{"fsf_file", "ev_files"},
		outputs: []string{"design_file", "design_image", "design_cov", "con_file", "fcon_file"},
	},
	"FILMGLS": {
		inputs: []string{"in_file", "design_file", "threshold", "smooth_autocorr", "mask_size",
			"tcon_file", "fcon_file", "autocorr_estimate_only", "fit_armodel", "tukey_window",
			"multitaper_product", "use_pava", "autocorr_noestimate", "output_pwdata", "results_dir"},
		outputs: []string{"param_estimates", "residual4d", "dof_file", "sigmasquareds", "results_dir",
			"corrections", "thresholdac", "logfile", "copes", "varcopes", "zstats", "tstats",
			"fstats", "zfstats"},
	},
	"ContrastMgr": {
		inputs: []string{"tcon_file", "fcon_file", "param_estimates", "corrections", "dof_file",
			"sigmasquareds", "contrast_num", "suffix"},
		outputs: []string{"copes", "varcopes", "zstats", "tstats", "fstats", "zfstats", "neffs"},
	},
	"ImageMaths": {
		inputs:  []string{"in_file", "in_file2", "out_file", "op_string", "suffix", "out_data_type"},
		outputs: []string{"out_file"},
	},
	"Overlay": {
		inputs: []string{"background_image", "auto_thresh_bg", "full_bg_range", "bg_thresh",
			"stat_image", "stat_thresh", "show_negative_stats", "stat_image2", "stat_thresh2",
			"transparency", "out_type", "out_file"},
		outputs: []string{"out_file"},
	},
	"Slicer": {
		inputs: []string{"in_file", "image_edges", "label_slices", "colour_map", "intensity_range",
			"threshold_edges", "dither_edges", "nearest_neighbour", "show_orientation",
			"single_slice", "slice_number", "middle_slices", "all_axial", "sample_axial",
			"image_width", "out_file", "scaling"},
		outputs: []string{"out_file"},
	},
	"Merge": {
		inputs:  []string{"in_files", "dimension", "tr", "merged_file"},
		outputs: []string{"merged_file"},
	},
	"L2Model": {
		inputs:  []string{"num_copes"},
		outputs: []string{"design_mat", "design_con", "design_grp"},
	},
	"FLAMEO": {
		inputs: []string{"cope_file", "var_cope_file", "dof_var_cope_file", "mask_file", "design_file",
			"t_con_file", "f_con_file", "cov_split_file", "run_mode", "n_jumps", "burnin",
			"sample_every", "fix_mean", "infer_outliers", "no_pe_outputs", "sigma_dofs",
			"outlier_iter", "log_dir"},
		outputs: []string{"pes", "res4d", "copes", "var_copes", "zstats", "tstats", "zfstats",
			"fstats", "mrefvars", "tdof", "weights", "stats_dir"},
	},
}

// Lookup returns a fresh interface for the FSL tool name.
func Lookup(name string) (workflow.Interface, bool) {
	f, ok := catalog[name]
	if !ok {
		return nil, false
	}
	return &workflow.Static{
		Name:    "fsl." + name,
		Inputs:  append([]string(nil), f.inputs...),
		Outputs: append([]string(nil), f.outputs...),
	}, true
}

// Tools lists the catalog names.
func Tools() []string {
	out := make([]string, 0, len(catalog))
	for name := range catalog {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func mustLookup(name string) workflow.Interface {
	iface, ok := Lookup(name)
	if !ok {
		panic("fmri: unknown tool " + name)
	}
	return iface
}
