package command

import (
	"errors"
	"strings"
	"testing"
)

func TestFormat_Scenario(t *testing.T) {
	got, err := Format("read %; opt %; write %", "in.v", "-O2", "out.v")
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	want := "read in.v; opt -O2; write out.v"
	if got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestFormat_NonStringValues(t *testing.T) {
	got, err := Format("rewrite -K %; balance -l % -d %", 8, true, 2.5)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if got != "rewrite -K 8; balance -l true -d 2.5" {
		t.Errorf("Format = %q", got)
	}
}

func TestFormat_NoPlaceholders(t *testing.T) {
	got, err := Format("print_stats")
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if got != "print_stats" {
		t.Errorf("Format = %q, want print_stats", got)
	}
}

func TestFormat_ValueContainingPlaceholder(t *testing.T) {
	// Substituted values are not rescanned.
	got, err := Format("echo %; echo %", "50%", "x")
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if got != "echo 50%; echo x" {
		t.Errorf("Format = %q", got)
	}
}

func TestFormat_NoPlaceholdersLeft(t *testing.T) {
	tmpl := "a %; b %; c %; d %"
	got, err := Format(tmpl, 1, 2, 3, 4)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if strings.ContainsRune(got, Placeholder) {
		t.Errorf("Format = %q, still contains a placeholder", got)
	}
	if got != "a 1; b 2; c 3; d 4" {
		t.Errorf("Format = %q, substitutions out of order", got)
	}
}

func TestFormat_TooFewValues(t *testing.T) {
	_, err := Format("read %; write %", "in.v")
	if !errors.Is(err, ErrArgumentCountMismatch) {
		t.Fatalf("err = %v, want ErrArgumentCountMismatch", err)
	}
	if !strings.Contains(err.Error(), "2 placeholders, got 1 values") {
		t.Errorf("err = %q, want counts in message", err)
	}
}

func TestFormat_TooManyValues(t *testing.T) {
	_, err := Format("read %", "in.v", "extra")
	if !errors.Is(err, ErrArgumentCountMismatch) {
		t.Fatalf("err = %v, want ErrArgumentCountMismatch", err)
	}
}

func TestFormat_KeepsBytes(t *testing.T) {
	got, err := Format("read \xff%; write %\xfe", "x", "y")
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if want := "read \xffx; write y\xfe"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}
