// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import "golang.org/x/text/encoding/charmap"

// codePageEncoding maps a Windows ANSI code page identifier to the
// golang.org/x/text charmap that decodes it. Unrecognised code pages
// fall back to Windows-1252 (spec §5, "default code page 1252 when
// Config carries none"), the same default the saferwall/pe helper
// applies to unrecognised resource-string encodings.
func codePageEncoding(cp uint16) *charmap.Charmap {
	switch cp {
	case 1250:
		return charmap.Windows1250
	case 1251:
		return charmap.Windows1251
	case 1252:
		return charmap.Windows1252
	case 1253:
		return charmap.Windows1253
	case 1254:
		return charmap.Windows1254
	case 1257:
		return charmap.Windows1257
	case 1258:
		return charmap.Windows1258
	case 28591:
		return charmap.ISO8859_1
	default:
		return charmap.Windows1252
	}
}

// decodeAnsiString decodes a single-byte-per-character ANSI string
// under the given Windows code page, trimming one trailing NUL byte
// if present (spec §4.3, "AnsiString ... code page resolved from
// Config").
func decodeAnsiString(raw []byte, codePage uint16) (string, error) {
	if len(raw) > 0 && raw[len(raw)-1] == 0 {
		raw = raw[:len(raw)-1]
	}
	if len(raw) == 0 {
		return "", nil
	}
	s, err := codePageEncoding(codePage).NewDecoder().Bytes(raw)
	if err != nil {
		return "", newErrf(InternalError, err, "ANSI decode failed (code page %d)", codePage)
	}
	return string(s), nil
}

// splitStringArray splits the flat byte run backing a StringArray or
// AnsiStringArray typed value into its NUL-delimited elements (spec
// §4.2, "array variants ... strings are NUL-separated within the
// descriptor's byte run rather than carrying a count"). This mirrors
// how 2igosha/igevtx's own StringArray case walks a flat byte buffer
// for its debug rendering, generalised here to keep each element as
// its own decoded string instead of joining them with a separator
// meant only for display.
func splitStringArray(raw []byte, base ValueType, codePage uint16) ([]ScalarValue, error) {
	var out []ScalarValue
	if base == TypeString {
		start := 0
		for i := 0; i+1 < len(raw); i += 2 {
			if raw[i] == 0 && raw[i+1] == 0 {
				s, err := decodeUTF16LE(raw[start:i])
				if err != nil {
					return nil, err
				}
				out = append(out, ScalarValue{Str: s})
				start = i + 2
			}
		}
		if start < len(raw) {
			s, err := decodeUTF16LE(raw[start:])
			if err != nil {
				return nil, err
			}
			out = append(out, ScalarValue{Str: s})
		}
		return out, nil
	}
	start := 0
	for i := 0; i < len(raw); i++ {
		if raw[i] == 0 {
			s, err := decodeAnsiString(raw[start:i], codePage)
			if err != nil {
				return nil, err
			}
			out = append(out, ScalarValue{Str: s})
			start = i + 1
		}
	}
	if start < len(raw) {
		s, err := decodeAnsiString(raw[start:], codePage)
		if err != nil {
			return nil, err
		}
		out = append(out, ScalarValue{Str: s})
	}
	return out, nil
}
