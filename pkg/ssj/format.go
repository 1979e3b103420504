package ssj

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/isuhao/minisphere/pkg/dvalue"
)

// FormatValue renders v for REPL display per spec §4.5's output rules.
// In non-verbose mode OBJ renders as the elided "{...}" form.
func FormatValue(v dvalue.Value, verbose bool) string {
	switch v.Tag {
	case dvalue.TagUndef:
		return "undefined"
	case dvalue.TagNull:
		return "null"
	case dvalue.TagTrue:
		return "true"
	case dvalue.TagFalse:
		return "false"
	case dvalue.TagUnused:
		return "<unused>"
	case dvalue.TagInt:
		return strconv.FormatInt(int64(v.Int), 10)
	case dvalue.TagFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case dvalue.TagString:
		return quoteString(v.Str)
	case dvalue.TagBuf:
		return fmt.Sprintf("buf:%d-bytes", len(v.Buf))
	case dvalue.TagObj:
		if !verbose {
			return "{...}"
		}
		return fmt.Sprintf(`{obj:"%sh"}`, hexAddr(v.Ptr))
	case dvalue.TagPtr:
		return fmt.Sprintf(`{ptr:"%sh"}`, hexAddr(v.Ptr))
	case dvalue.TagLightFunc:
		return fmt.Sprintf(`{lightfunc:"%sh"}`, hexAddr(v.Ptr))
	case dvalue.TagHeapPtr:
		return fmt.Sprintf(`{heapptr:"%sh"}`, hexAddr(v.Ptr))
	default:
		return fmt.Sprintf("<tag %#x>", byte(v.Tag))
	}
}

// hexAddr renders a pointer's address in lowercase hex, zero-padded to
// its declared width (4 bytes -> 8 digits, 8 bytes -> 16 digits).
func hexAddr(p dvalue.Ptr) string {
	digits := int(p.Width) * 2
	return fmt.Sprintf("%0*x", digits, p.Addr)
}

// quoteString renders s double-quoted with C-style escapes, per spec
// §4.5's STRING formatting rule.
func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\x%02x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
