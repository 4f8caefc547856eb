// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import "github.com/rs/zerolog"

// DefaultCodePage is the ANSI code page used to decode AnsiString
// typed values when Config.CodePage is left at zero (spec §6: "An
// external collaborator provides the ANSI code page ... default
// CP-1252 if unset").
const DefaultCodePage = 1252

// DefaultMaxNestingDepth bounds recursion through nested
// TemplateInstance/BinXml substitutions (spec §4.2, "recommended
// 256").
const DefaultMaxNestingDepth = 256

// Config carries the decoder's global, explicit, non-mutable-global
// state. It replaces the libevtx/libcnotify debug channel and the
// process-wide code page the original C source relies on (spec §9,
// "Global mutable state"), mirroring the way saferwall/pe.Options is
// defaulted field-by-field and passed by pointer into the
// constructors that need it.
type Config struct {
	// CodePage selects the single-byte ANSI code page used to decode
	// AnsiString values. Zero means DefaultCodePage.
	CodePage uint16

	// MaxNestingDepth bounds TemplateInstance/BinXml recursion. Zero
	// means DefaultMaxNestingDepth.
	MaxNestingDepth int

	// StrictSizeCopy turns a record header size/size_copy mismatch
	// into a hard SizeCopyMismatch failure instead of a logged
	// warning (spec §9, open question).
	StrictSizeCopy bool

	// Logger receives non-fatal decode anomalies. A nil Logger is
	// equivalent to zerolog.Nop().
	Logger *zerolog.Logger
}

func (c *Config) codePage() uint16 {
	if c == nil || c.CodePage == 0 {
		return DefaultCodePage
	}
	return c.CodePage
}

func (c *Config) maxNestingDepth() int {
	if c == nil || c.MaxNestingDepth == 0 {
		return DefaultMaxNestingDepth
	}
	return c.MaxNestingDepth
}

func (c *Config) strictSizeCopy() bool {
	return c != nil && c.StrictSizeCopy
}

func (c *Config) logger() zerolog.Logger {
	if c == nil || c.Logger == nil {
		return zerolog.Nop()
	}
	return *c.Logger
}
