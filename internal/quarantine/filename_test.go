package quarantine

import (
	"strings"
	"testing"
	"time"
)

func TestQuarantineFileName(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	hash := "44d88612fea8a8f36de82e1278abb02f44d88612fea8a8f36de82e1278abb02f"

	got := quarantineFileName(ts, hash, "/home/user/Downloads/dropper.exe")
	want := "1700000000_44d88612_dropper.exe.quar"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSanitizeBaseName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"/tmp/../../etc/passwd", "passwd"},
		{"weird name!.bin", "weird_name_.bin"},
		{"..", "file"},
		{"", "file"},
		{"shell;rm -rf.sh", "shell_rm_-rf.sh"},
		{"tab\there.txt", "tab_here.txt"},
	}

	for _, tc := range cases {
		got := sanitizeBaseName(tc.in)
		if got != tc.want {
			t.Errorf("sanitizeBaseName(%q): expected %q, got %q", tc.in, tc.want, got)
		}
		if strings.ContainsAny(got, "/\\") {
			t.Errorf("sanitizeBaseName(%q) kept a path separator: %q", tc.in, got)
		}
	}
}
