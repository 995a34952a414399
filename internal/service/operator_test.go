package service

import (
	"errors"
	"testing"
	"time"

	"github.com/and161185/gatekeeper/internal/errs"
)

func TestOperatorAuth_RoundTrip(t *testing.T) {
	t.Parallel()
	o := NewOperatorAuth([]byte("admin-key"))

	raw, exp, err := o.Issue("alice", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("bad exp %v", exp)
	}
	who, err := o.Verify(raw)
	if err != nil || who != "alice" {
		t.Fatalf("Verify: %q %v", who, err)
	}
}

func TestOperatorAuth_Rejects(t *testing.T) {
	t.Parallel()
	o := NewOperatorAuth([]byte("admin-key"))
	other := NewOperatorAuth([]byte("other-key"))

	raw, _, err := other.Issue("mallory", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := o.Verify(raw); !errors.Is(err, errs.ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken for foreign key, got %v", err)
	}

	expired, _, _ := o.Issue("alice", -time.Hour)
	if _, err := o.Verify(expired); !errors.Is(err, errs.ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken for expired token, got %v", err)
	}

	if _, err := o.Verify("not.a.jwt"); !errors.Is(err, errs.ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken for garbage, got %v", err)
	}

	if _, _, err := o.Issue("", time.Hour); err == nil {
		t.Fatalf("want error for empty operator")
	}

	unset := NewOperatorAuth(nil)
	if _, _, err := unset.Issue("alice", time.Hour); err == nil {
		t.Fatalf("want error without signing key")
	}
	if _, err := unset.Verify(raw); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("want ErrForbidden without signing key, got %v", err)
	}
}
