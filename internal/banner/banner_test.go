package banner_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isuhao/minisphere/internal/banner"
)

func TestPrintContainsVersionLine(t *testing.T) {
	var buf bytes.Buffer
	banner.Print(&buf, false)
	require.Contains(t, buf.String(), "Sphere Game Debugger")
	require.NotContains(t, buf.String(), "Fat Cerberus")
}

func TestPrintWithCopyright(t *testing.T) {
	var buf bytes.Buffer
	banner.Print(&buf, true)
	require.Contains(t, buf.String(), "Fat Cerberus")
}

func TestPrintUsageListsOptions(t *testing.T) {
	var buf bytes.Buffer
	banner.PrintUsage(&buf)
	out := buf.String()
	require.Contains(t, out, "ssj [options] <game-path>")
	require.Contains(t, out, "--connect")
}

func TestPrintExplodeQuotesOneLine(t *testing.T) {
	var buf bytes.Buffer
	banner.PrintExplode(&buf)
	require.True(t, strings.Contains(buf.String(), "Cell says:"))
}
