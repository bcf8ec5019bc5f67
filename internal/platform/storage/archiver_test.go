package storage

import "testing"

func TestNewArchiverRequiresClient(t *testing.T) {
	if _, err := NewArchiver(nil, "docs", "exports"); err == nil {
		t.Fatalf("expected error for missing client")
	}
}

func TestArchiveObjectPathKeepsCaseLayout(t *testing.T) {
	path := ArchiveObjectPath("registrations/reg123/staff/form1/upload001/form1.pdf")
	expected := "archive/registrations/reg123/staff/form1/upload001/form1.pdf"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestArchiveObjectPathTrimsLeadingSlash(t *testing.T) {
	path := ArchiveObjectPath(" /registrations/reg123/certificate/upload002/cert.pdf")
	expected := "archive/registrations/reg123/certificate/upload002/cert.pdf"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}
