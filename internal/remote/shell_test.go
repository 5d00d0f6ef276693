package remote

import "testing"

func TestShellQuote(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain path", "/var/log/onstart.log", "'/var/log/onstart.log'"},
		{"spaces", "/var/log/boot log.txt", "'/var/log/boot log.txt'"},
		{"single quote", "/tmp/o'clock.log", `'/tmp/o'\''clock.log'`},
		{"empty", "", "''"},
		{"shell metacharacters", "$(rm -rf /);`id`", "'$(rm -rf /);`id`'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shellQuote(tt.input); got != tt.want {
				t.Errorf("shellQuote(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}
