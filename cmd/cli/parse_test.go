package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/and161185/chitchat/internal/model"
)

func Test_parseHandle(t *testing.T) {
	t.Parallel()

	ref, err := parseHandle(" bob#7 ")
	if err != nil || ref.Username != "bob" || ref.Tag != 7 {
		t.Fatalf("parseHandle: %+v %v", ref, err)
	}
	ref, err = parseHandle("we#ird#12")
	if err != nil || ref.Username != "we#ird" || ref.Tag != 12 {
		t.Fatalf("last # separates the tag: %+v %v", ref, err)
	}
	for _, bad := range []string{"", "bob", "#7", "bob#", "bob#x", "bob#0", "bob#-3"} {
		if _, err := parseHandle(bad); err == nil {
			t.Fatalf("parseHandle(%q) should fail", bad)
		}
	}
}

func Test_parseHandles(t *testing.T) {
	t.Parallel()

	refs, err := parseHandles("")
	if err != nil || len(refs) != 0 {
		t.Fatalf("empty list: %v %v", refs, err)
	}
	refs, err = parseHandles("alice#1, bob#2,")
	if err != nil || len(refs) != 2 || refs[1].Username != "bob" {
		t.Fatalf("two handles: %v %v", refs, err)
	}
	if _, err := parseHandles("alice#1,bob"); err == nil {
		t.Fatalf("bad entry should fail the list")
	}
}

func Test_parseStatus(t *testing.T) {
	t.Parallel()

	st, err := parseStatus("Busy")
	if err != nil || st != model.StatusBusy {
		t.Fatalf("parseStatus: %v %v", st, err)
	}
	st, err = parseStatus("offline")
	if err != nil || st != model.StatusOffline {
		t.Fatalf("parseStatus offline: %v %v", st, err)
	}
	if _, err := parseStatus("sleeping"); err == nil {
		t.Fatalf("unknown status should fail")
	}
}

func Test_messageText(t *testing.T) {
	t.Parallel()

	if s, err := messageText("hi", ""); err != nil || s != "hi" {
		t.Fatalf("inline: %q %v", s, err)
	}
	tmp := filepath.Join(t.TempDir(), "m.txt")
	_ = os.WriteFile(tmp, []byte("from file\n"), 0o600)
	if s, err := messageText("", tmp); err != nil || s != "from file" {
		t.Fatalf("file: %q %v", s, err)
	}
	if _, err := messageText("a", tmp); err == nil {
		t.Fatalf("both set should fail")
	}
	if _, err := messageText("", ""); err == nil {
		t.Fatalf("neither set should fail")
	}
}
