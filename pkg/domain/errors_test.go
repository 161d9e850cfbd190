package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		target error
	}{
		{"not found", NotFoundError{Entity: EntityHouse, ID: "h1"}, ErrNotFound},
		{"conflict", ConflictError{Entity: EntityTerritory, ID: "t1"}, ErrConflict},
		{"nothing to save", NothingToSaveError{Entity: EntityVisit, ID: "v1"}, ErrNothingToSave},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("update: %w", tc.err)
			if !errors.Is(wrapped, tc.target) {
				t.Fatalf("expected %v to match %v", wrapped, tc.target)
			}
			if tc.err.Error() == "" {
				t.Fatalf("expected message")
			}
		})
	}
	if errors.Is(NotFoundError{}, ErrConflict) {
		t.Fatalf("not found must not match conflict")
	}
	var nf NotFoundError
	if !errors.As(fmt.Errorf("x: %w", NotFoundError{Entity: EntityAddress, ID: "a"}), &nf) || nf.ID != "a" {
		t.Fatalf("expected errors.As to recover NotFoundError, got %+v", nf)
	}
}

func TestConflictErrorReason(t *testing.T) {
	err := ConflictError{Entity: EntityToken, ID: "k1", Reason: "already exists"}
	if got := err.Error(); got != `token "k1" conflict: already exists` {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestAccessLevelOrderingAndText(t *testing.T) {
	if !AccessAdmin.AtLeast(AccessModerator) || !AccessModerator.AtLeast(AccessUser) {
		t.Fatalf("expected admin > moderator > user")
	}
	if AccessUser.AtLeast(AccessModerator) {
		t.Fatalf("user must not reach moderator")
	}
	for _, lvl := range []AccessLevel{AccessUser, AccessModerator, AccessAdmin} {
		text, _ := lvl.MarshalText()
		var decoded AccessLevel
		if err := decoded.UnmarshalText(text); err != nil || decoded != lvl {
			t.Fatalf("text round trip for %s gave %s (%v)", lvl, decoded, err)
		}
	}
}

func TestTokenExpiry(t *testing.T) {
	now := time.UnixMilli(10_000)
	if (Token{}).ExpiredAt(now) {
		t.Fatalf("zero expiry never expires")
	}
	if !(Token{Expires: 9_000}).ExpiredAt(now) {
		t.Fatalf("expected expired token")
	}
	if (Token{Expires: 11_000}).ExpiredAt(now) {
		t.Fatalf("expected live token")
	}
}

func TestNotificationTouchesAndMerge(t *testing.T) {
	n := Notification{Seq: 1, Kinds: []EntityType{EntityHouse}}
	if !n.Touches() || !n.Touches(EntityVisit, EntityHouse) || n.Touches(EntityToken) {
		t.Fatalf("unexpected touch semantics for %+v", n)
	}
	merged := n.Merge(Notification{Seq: 3, Kinds: []EntityType{EntityHouse, EntityToken}})
	if merged.Seq != 3 || len(merged.Kinds) != 2 || !merged.Touches(EntityToken) {
		t.Fatalf("unexpected merge %+v", merged)
	}
	if len(n.Kinds) != 1 {
		t.Fatalf("merge must not mutate receiver")
	}
}

func TestSyncBatchEmpty(t *testing.T) {
	if !(SyncBatch{}).Empty() {
		t.Fatalf("expected empty batch")
	}
	if !(SyncBatch{Deleted: map[EntityType][]string{EntityHouse: nil}}).Empty() {
		t.Fatalf("expected empty deletions to count as empty")
	}
	if (SyncBatch{Recalls: []Recall{{UserID: "u", HouseID: "h"}}}).Empty() {
		t.Fatalf("expected non-empty batch")
	}
}
