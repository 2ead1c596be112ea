package archive_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"threadrelay/internal/archive"
)

func TestFilterAcceptsByExtension(t *testing.T) {
	filter := archive.Filter{JPG: true, PNG: true}
	cases := []struct {
		url       string
		spoilered bool
		want      bool
	}{
		{"https://cdn.example/a/photo.JPG?w=100", false, true},
		{"https://cdn.example/a/photo.jfif", false, true},
		{"https://cdn.example/a/anim.gif", false, false},
		{"https://cdn.example/a/shot.png", false, true},
		{"https://cdn.example/a/shot.png", true, false},
		{"https://cdn.example/a/noext", false, false},
	}
	for _, tc := range cases {
		if got := filter.Accepts(tc.url, tc.spoilered); got != tc.want {
			t.Fatalf("Accepts(%q, %v) = %v, want %v", tc.url, tc.spoilered, got, tc.want)
		}
	}

	filter.Spoilers = true
	if !filter.Accepts("https://cdn.example/a/shot.png", true) {
		t.Fatal("expected spoilered png accepted when spoiler saving is on")
	}
}

func TestExtensionIgnoresDotsInHost(t *testing.T) {
	if got := archive.Extension("https://cdn.example/files/raw"); got != "" {
		t.Fatalf("expected empty extension, got %q", got)
	}
	if got := archive.Extension("https://cdn.example/files/pic.WebP?x=1.png"); got != "webp" {
		t.Fatalf("expected webp, got %q", got)
	}
}

func TestFileNameDecodesAndSanitizes(t *testing.T) {
	got := archive.FileName("https://cdn.example/up/%E7%94%BB%E5%83%8F.png?sig=abc")
	if got != "画像.png" {
		t.Fatalf("unexpected file name %q", got)
	}
	if got := archive.FileName("https://cdn.example/up/a%3Ab.png"); got != "a-b.png" {
		t.Fatalf("expected colon replaced, got %q", got)
	}
}

func TestDirectoryExpandsThreadID(t *testing.T) {
	got := archive.Directory("/archive", "files/${thread_id}", "abc123")
	want := filepath.Join("/archive", "files", "abc123")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if got := archive.Directory("/archive", "files/${thread_id}", ""); got != filepath.Join("/archive", "files", "unknown_thread") {
		t.Fatalf("unexpected fallback directory %q", got)
	}
}

func TestRequesterDownloadsAndRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("imagebytes"))
	}))
	defer server.Close()

	tmp := t.TempDir()
	ledger, err := archive.OpenLedger(filepath.Join(tmp, "state", "archive.db"))
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	defer ledger.Close()

	requester := archive.NewRequester(archive.RequesterOptions{Client: server.Client(), Ledger: ledger})
	dir := archive.Directory(filepath.Join(tmp, "archive"), "files/${thread_id}", "t1")

	ctx, cancel := context.WithCancel(context.Background())
	if err := requester.Request(ctx, archive.Request{URL: server.URL + "/pic.png", ThreadID: "t1", ReplyNumber: 3, Directory: dir}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := requester.Request(ctx, archive.Request{URL: server.URL + "/missing.png", ThreadID: "t1", ReplyNumber: 4, Directory: dir}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	// Downloads outlive the caller's context.
	cancel()
	requester.Wait()

	data, err := os.ReadFile(filepath.Join(dir, "pic.png"))
	if err != nil {
		t.Fatalf("read archived file: %v", err)
	}
	if string(data) != "imagebytes" {
		t.Fatalf("unexpected file contents %q", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "missing.png")); !os.IsNotExist(err) {
		t.Fatalf("expected no file for failed download, stat err=%v", err)
	}

	entries, err := ledger.List(context.Background(), "t1", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(entries))
	}
	statuses := map[int]string{}
	for _, entry := range entries {
		statuses[entry.ReplyNumber] = entry.Status
	}
	if statuses[3] != archive.StatusSaved || statuses[4] != archive.StatusFailed {
		t.Fatalf("unexpected statuses %+v", statuses)
	}
}

func TestRequesterRejectsEmptyURL(t *testing.T) {
	requester := archive.NewRequester(archive.RequesterOptions{})
	if err := requester.Request(context.Background(), archive.Request{Directory: t.TempDir()}); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestWriteTextCreatesParents(t *testing.T) {
	requester := archive.NewRequester(archive.RequesterOptions{})
	dest := filepath.Join(t.TempDir(), "nested", "mebuki_thread_id.txt")
	if err := requester.WriteText(context.Background(), dest, "abc"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "abc" {
		t.Fatalf("unexpected contents %q err=%v", data, err)
	}
}

func TestLedgerReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	ledger, err := archive.OpenLedger(path)
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	if err := ledger.Record(context.Background(), archive.Entry{ThreadID: "a", ReplyNumber: 1, URL: "u", Path: "p", Status: archive.StatusSaved}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := ledger.Record(context.Background(), archive.Entry{ThreadID: "b", ReplyNumber: 2, URL: "u2", Path: "p2", Status: archive.StatusSaved}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	_ = ledger.Close()

	reopened, err := archive.OpenLedger(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	all, err := reopened.List(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].ThreadID != "b" {
		t.Fatalf("expected newest first, got %+v", all)
	}
	if all[1].CreatedAt.IsZero() {
		t.Fatal("expected created_at to round trip")
	}
}
