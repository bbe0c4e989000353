// SPDX-License-Identifier: AGPL-3.0-or-later
package fmri

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FSLVersion reads $FSLDIR/etc/fslversion. It returns "" when FSL is not
// installed.
func FSLVersion() string {
	dir := os.Getenv("FSLDIR")
	if dir == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(dir, "etc", "fslversion"))
	if err != nil {
		return ""
	}
	v, _, _ := strings.Cut(strings.TrimSpace(string(data)), ":")
	return strings.TrimSpace(v)
}

// CompareVersions orders dotted versions component by component. Numeric
// components compare as numbers, others as strings, and a missing trailing
// component sorts first.
func CompareVersions(a, b string) int {
	as, bs := versionParts(a), versionParts(b)
	for i := 0; i < len(as) || i < len(bs); i++ {
		if i >= len(as) {
			return -1
		}
		if i >= len(bs) {
			return 1
		}
		if c := compareComponent(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return 0
}

// integratedContrasts reports whether FILMGLS computes contrasts itself,
// which FSL does after 5.0.6.
func integratedContrasts(version string) bool {
	return version != "" && CompareVersions(version, "5.0.6") > 0
}

func versionParts(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool { return r == '.' || r == '-' || r == '_' })
}

func compareComponent(a, b string) int {
	an, aerr := strconv.Atoi(a)
	bn, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return strings.Compare(a, b)
}
