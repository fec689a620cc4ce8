package browser

import "testing"

func TestCommand(t *testing.T) {
	tests := []struct {
		goos    string
		url     string
		wantCmd string
		wantErr bool
	}{
		{"darwin", "https://accounts.google.com/o/oauth2", "open", false},
		{"linux", "http://localhost:8000/api/v1/auth/google/login", "xdg-open", false},
		{"windows", "https://example.com", "rundll32", false},
		{"plan9", "https://example.com", "", true},
		{"linux", "file:///etc/passwd", "", true},
		{"linux", "-n https://x", "", true},
		{"linux", "https://", "", true},
	}
	for _, tt := range tests {
		cmd, args, err := command(tt.goos, tt.url)
		if tt.wantErr {
			if err == nil {
				t.Errorf("command(%q, %q) expected error", tt.goos, tt.url)
			}
			continue
		}
		if err != nil {
			t.Errorf("command(%q, %q): %v", tt.goos, tt.url, err)
			continue
		}
		if cmd != tt.wantCmd {
			t.Errorf("command(%q) = %q; want %q", tt.goos, cmd, tt.wantCmd)
		}
		if args[len(args)-1] != tt.url {
			t.Errorf("url must be the last argument, got %v", args)
		}
	}
}
