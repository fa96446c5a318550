package ui_test

import (
	"bytes"
	"testing"

	"github.com/arthur-debert/tmpl/pkg/ui"
	"github.com/stretchr/testify/assert"
)

func TestStepFormatting(t *testing.T) {
	var out, errOut bytes.Buffer
	p := ui.NewWriterPrinter(&out, &errOut, false)

	p.Step("Loading template configuration file...")
	p.Substep("Parsing includes...")
	p.Detail("merged %d documents", 2)
	p.Error("unable to read %q", "missing.yaml")

	assert.Equal(t, ":: Loading template configuration file...\n"+
		"  --> Parsing includes...\n"+
		"      merged 2 documents\n", out.String())
	assert.Equal(t, "      unable to read \"missing.yaml\"\n", errOut.String())
}

func TestTableSkipsEmptyRows(t *testing.T) {
	var out, errOut bytes.Buffer
	p := ui.NewWriterPrinter(&out, &errOut, false)

	p.Table([]string{"action", "path"}, nil)
	assert.Empty(t, out.String())
}
