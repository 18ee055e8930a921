package output

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestUIWriters(t *testing.T) {
	u, out, errOut := newTestUI()

	u.Info("hello %s", "world")
	assert.Contains(t, out.String(), "hello world")

	u.Success("done")
	assert.Contains(t, out.String(), "done")

	u.Warning("careful")
	assert.Contains(t, errOut.String(), "careful")

	u.Error("broken")
	assert.Contains(t, errOut.String(), "broken")
}

func TestVerboseLog(t *testing.T) {
	u, out, _ := newTestUI()

	u.VerboseLog("hidden")
	assert.Empty(t, out.String())

	u.Verbose = true
	u.VerboseLog("shown")
	assert.Contains(t, out.String(), "shown")
}

func TestDryRunMsg(t *testing.T) {
	u, _, errOut := newTestUI()

	u.DryRunMsg("skipped")
	assert.Empty(t, errOut.String())

	u.DryRun = true
	u.DryRunMsg("skipped")
	assert.Contains(t, errOut.String(), "[DRY-RUN] skipped")
}

func TestStatusColor(t *testing.T) {
	// Disable color so the assertions see plain strings.
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	assert.Equal(t, "passed", StatusColor("passed"))
	assert.Equal(t, "failed", StatusColor("failed"))
	assert.Equal(t, "partial", StatusColor("partial"))
	assert.Equal(t, "something_else", StatusColor("something_else"))
}

func TestPassFail(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	assert.Equal(t, "pass", PassFail(true))
	assert.Equal(t, "fail", PassFail(false))
}
