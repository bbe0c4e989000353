package schemafetch

import (
	"errors"
	"testing"
)

const sampleSchema = `<?xml version="1.0" encoding="utf-8"?>
<!-- generated -->
<executable>
  <category>Registration</category>
  <title>Demo</title>
  <parameters advanced="false">
    <label>IO</label>
    <description>Input/output</description>
    <!-- a comment inside a group -->
    <image>
      <name>fixedVolume</name>
      <longflag>fixedVolume</longflag>
      <channel>input</channel>
    </image>
    <transform fileExtensions=".h5,.mat">
      <name>outputTransform</name>
      <longflag>outputTransform</longflag>
      <channel>output</channel>
    </transform>
  </parameters>
</executable>
`

func TestParseBuildsTree(t *testing.T) {
	doc, err := Parse([]byte(sampleSchema))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Root.Name != "executable" {
		t.Fatalf("expected root executable, got %s", doc.Root.Name)
	}
	if title, _ := doc.Root.ChildText("title"); title != "Demo" {
		t.Fatalf("expected title Demo, got %q", title)
	}
	groups := doc.Groups()
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if got := groups[0].Attr("advanced"); got != "false" {
		t.Fatalf("expected advanced attr, got %q", got)
	}
	if n := len(groups[0].Children); n != 4 {
		t.Fatalf("expected 4 element children (comments dropped), got %d", n)
	}
	tr := groups[0].Child("transform")
	if tr.Attr("fileExtensions") != ".h5,.mat" {
		t.Fatalf("unexpected fileExtensions %q", tr.Attr("fileExtensions"))
	}
	if name, ok := tr.ChildText("name"); !ok || name != "outputTransform" {
		t.Fatalf("unexpected name %q", name)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":     "   \n",
		"unclosed":  "<executable><parameters>",
		"mismatch":  "<executable></parameters>",
		"two roots": "<a></a><b></b>",
		"text only": "usage: tool [options]",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(input))
			var sfe *SchemaFetchError
			if !errors.As(err, &sfe) {
				t.Fatalf("expected SchemaFetchError, got %v", err)
			}
			if sfe.Op != OpParse {
				t.Fatalf("expected parse op, got %s", sfe.Op)
			}
		})
	}
}
