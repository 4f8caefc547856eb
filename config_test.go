// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import "testing"

func TestConfigDefaultsOnNil(t *testing.T) {
	var c *Config
	if c.codePage() != DefaultCodePage {
		t.Fatalf("nil Config codePage() = %d, want %d", c.codePage(), DefaultCodePage)
	}
	if c.maxNestingDepth() != DefaultMaxNestingDepth {
		t.Fatalf("nil Config maxNestingDepth() = %d, want %d", c.maxNestingDepth(), DefaultMaxNestingDepth)
	}
	if c.strictSizeCopy() {
		t.Fatal("nil Config strictSizeCopy() should be false")
	}
	c.logger() // must not panic
}

func TestConfigExplicitValues(t *testing.T) {
	c := &Config{CodePage: 1251, MaxNestingDepth: 4, StrictSizeCopy: true}
	if c.codePage() != 1251 {
		t.Fatalf("codePage() = %d, want 1251", c.codePage())
	}
	if c.maxNestingDepth() != 4 {
		t.Fatalf("maxNestingDepth() = %d, want 4", c.maxNestingDepth())
	}
	if !c.strictSizeCopy() {
		t.Fatal("strictSizeCopy() should be true")
	}
}

func TestConfigZeroFieldsFallBackToDefaults(t *testing.T) {
	c := &Config{}
	if c.codePage() != DefaultCodePage {
		t.Fatalf("zero-value Config codePage() = %d, want default", c.codePage())
	}
	if c.maxNestingDepth() != DefaultMaxNestingDepth {
		t.Fatalf("zero-value Config maxNestingDepth() = %d, want default", c.maxNestingDepth())
	}
}
