package domain

import (
	"errors"
	"testing"
)

func TestParseStatus(t *testing.T) {
	for i, s := range Statuses {
		got, err := ParseStatus(string(s))
		if err != nil {
			t.Fatalf("parse %s: %v", s, err)
		}
		if got.Index() != i {
			t.Fatalf("index of %s = %d, want %d", s, got.Index(), i)
		}
	}
	for _, bad := range []string{"", "approved", "DRAFT", "closed"} {
		if _, err := ParseStatus(bad); !errors.Is(err, ErrInvalidStatus) {
			t.Fatalf("expected ErrInvalidStatus for %q, got %v", bad, err)
		}
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole("admin"); err != nil || r != RoleAdmin {
		t.Fatalf("admin: %v %v", r, err)
	}
	if _, err := ParseRole("owner"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestAttachmentPaths(t *testing.T) {
	inv := "invoices/a.pdf"
	tk := Ticket{
		BeforePhotos: []string{"before/1.jpg", "before/2.jpg"},
		AfterPhotos:  []string{"after/1.jpg"},
		InvoiceFile:  &inv,
	}
	if got := len(tk.AttachmentPaths()); got != 4 {
		t.Fatalf("expected 4 paths, got %d", got)
	}
	tk.InvoiceFile = nil
	if got := len(tk.AttachmentPaths()); got != 3 {
		t.Fatalf("expected 3 paths, got %d", got)
	}
}
