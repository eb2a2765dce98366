// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/shenbot/shenbot/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("PLUGIN_NOT_FOUND").Errorf("test error")
	errutil.AssertErrorCode(t, err, "PLUGIN_NOT_FOUND")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("plugin", "echo").Errorf("test error")
	errutil.AssertErrorContext(t, err, "plugin", "echo")
}
