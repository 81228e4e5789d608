package county

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// attrDecoder turns raw DBF attribute bytes into UTF-8 text.
type attrDecoder func(string) string

// decoderFor picks an attribute decoder from the shapefile's .cpg sidecar.
// Without a sidecar, valid UTF-8 passes through and anything else is read
// as ISO-8859-1, the encoding of pre-2015 TIGER vintages.
func decoderFor(shpPath string) attrDecoder {
	cpg := ""
	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	for _, ext := range []string{".cpg", ".CPG"} {
		if b, err := os.ReadFile(base + ext); err == nil {
			cpg = strings.ToUpper(strings.TrimSpace(string(b)))
			break
		}
	}

	var enc encoding.Encoding
	switch cpg {
	case "UTF-8", "UTF8", "65001":
		return func(s string) string { return cleanAttr(s) }
	case "1252", "CP1252", "WINDOWS-1252", "ANSI 1252":
		enc = charmap.Windows1252
	default:
		enc = charmap.ISO8859_1
	}

	dec := enc.NewDecoder()
	return func(s string) string {
		s = cleanAttr(s)
		if cpg == "" && utf8.ValidString(s) {
			return s
		}
		out, err := dec.String(s)
		if err != nil {
			return s
		}
		return out
	}
}

func cleanAttr(s string) string {
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}
