// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

package validation

import (
	"strings"
	"testing"

	"github.com/open-campus-lab/accessd/internal/models"
)

func TestValidateStruct(t *testing.T) {
	t.Run("valid request passes", func(t *testing.T) {
		req := models.VerifyAccessRequest{TagUID: "04A1B2C3", RoomID: 1}
		if err := ValidateStruct(&req); err != nil {
			t.Errorf("expected pass, got %v", err)
		}
	})

	t.Run("missing fields are all reported", func(t *testing.T) {
		req := models.VerifyAccessRequest{}
		err := ValidateStruct(&req)
		if err == nil {
			t.Fatal("expected validation failure")
		}
		if len(err.Fields) != 2 {
			t.Errorf("expected 2 field errors, got %d: %v", len(err.Fields), err)
		}
		if !strings.Contains(err.Error(), "required") {
			t.Errorf("message should mention required: %q", err.Error())
		}
	})

	t.Run("oneof restricts relay actions", func(t *testing.T) {
		req := models.ActivateRequest{RoomID: 1, Action: "PULSE"}
		err := ValidateStruct(&req)
		if err == nil {
			t.Fatal("expected failure for bad action")
		}
		if err.Fields[0].Tag != "oneof" {
			t.Errorf("expected oneof failure, got %+v", err.Fields[0])
		}
	})

	t.Run("omitempty skips absent optional fields", func(t *testing.T) {
		req := models.WaitTapRequest{}
		if err := ValidateStruct(&req); err != nil {
			t.Errorf("empty wait request must pass, got %v", err)
		}
	})

	t.Run("session id must be a UUIDv4 when present", func(t *testing.T) {
		req := models.WaitTapRequest{SessionID: "not-a-uuid"}
		err := ValidateStruct(&req)
		if err == nil {
			t.Fatal("expected failure for bad session id")
		}
		if !strings.Contains(err.Error(), "UUIDv4") {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("non-struct input yields a catch-all error", func(t *testing.T) {
		if err := ValidateStruct(42); err == nil {
			t.Error("expected error for non-struct input")
		}
	})
}
