package ssj

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isuhao/minisphere/pkg/dvalue"
)

func TestFormatScalars(t *testing.T) {
	require.Equal(t, "undefined", FormatValue(dvalue.Undef(), true))
	require.Equal(t, "null", FormatValue(dvalue.Null(), true))
	require.Equal(t, "true", FormatValue(dvalue.True(), true))
	require.Equal(t, "false", FormatValue(dvalue.False(), true))
	require.Equal(t, "3", FormatValue(dvalue.Int32(3), true))
	require.Equal(t, "-7", FormatValue(dvalue.Int32(-7), true))
}

func TestFormatFloatShortestRoundTrip(t *testing.T) {
	require.Equal(t, "1.5", FormatValue(dvalue.Float64(1.5), true))
	require.Equal(t, "0", FormatValue(dvalue.Float64(0), true))
}

func TestFormatStringEscapes(t *testing.T) {
	require.Equal(t, `"hi\n\"there\""`, FormatValue(dvalue.String("hi\n\"there\""), true))
}

func TestFormatBuf(t *testing.T) {
	require.Equal(t, "buf:3-bytes", FormatValue(dvalue.Buf([]byte{1, 2, 3}), true))
}

func TestFormatObjVerboseVsNot(t *testing.T) {
	v := dvalue.Obj(5, 4, 0xDEADBEEF)
	require.Equal(t, "{...}", FormatValue(v, false))
	require.Equal(t, `{obj:"deadbeefh"}`, FormatValue(v, true))
}

func TestFormatHeapPtrPadsToWidth(t *testing.T) {
	v := dvalue.HeapPtr(8, 0xFF)
	require.Equal(t, `{heapptr:"00000000000000ffh"}`, FormatValue(v, true))
}
