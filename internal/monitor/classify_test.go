package monitor

import "testing"

func TestClassify_StageMarkers(t *testing.T) {
	tests := []struct {
		name    string
		excerpt string
		want    Stage
	}{
		{
			name:    "provisioning container",
			excerpt: "Provisioning container my-comfyui-image\ninstalling apt packages",
			want:    StageProvisioning,
		},
		{
			name:    "downloading models",
			excerpt: "Downloading 3 model(s) to /workspace/ComfyUI/models/checkpoints",
			want:    StageDownloading,
		},
		{
			name:    "provisioning complete",
			excerpt: "Provisioning complete!\nstarting application",
			want:    StageStartingApp,
		},
		{
			name:    "ready",
			excerpt: "To see the GUI go to: http://localhost:8188",
			want:    StageReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := Classify(tt.excerpt)
			if !cls.Matched {
				t.Fatalf("Classify(%q) did not match", tt.excerpt)
			}
			if cls.Failed {
				t.Fatalf("Classify(%q) reported failure", tt.excerpt)
			}
			if cls.Stage != tt.want {
				t.Errorf("Classify stage = %v, want %v", cls.Stage, tt.want)
			}
		})
	}
}

func TestClassify_MostAdvancedWins(t *testing.T) {
	// A full log tail contains every earlier marker too; the most advanced
	// one determines the stage.
	excerpt := "Provisioning container my-image\n" +
		"Downloading 2 model(s) to /workspace\n" +
		"Provisioning complete!\n" +
		"To see the GUI go to: http://localhost:8188\n"

	cls := Classify(excerpt)
	if !cls.Matched || cls.Stage != StageReady {
		t.Errorf("Classify = %+v, want READY match", cls)
	}
}

func TestClassify_NoMatch(t *testing.T) {
	cls := Classify("random boot noise\nsshd listening on port 22\n")
	if cls.Matched {
		t.Errorf("Classify matched %v on markerless text", cls.Stage)
	}
	if cls.Failed {
		t.Error("Classify reported failure on markerless text")
	}
}

func TestClassify_EmptyExcerpt(t *testing.T) {
	if cls := Classify(""); cls.Matched || cls.Failed {
		t.Errorf("Classify(\"\") = %+v, want no match", cls)
	}
}

func TestClassify_ErrorMarkers(t *testing.T) {
	tests := []struct {
		name    string
		excerpt string
	}{
		{"traceback", "Traceback (most recent call last):\n  File \"download.py\", line 3\n"},
		{"cuda out of memory", "RuntimeError: CUDA out of memory. Tried to allocate 20.00 GiB"},
		{"disk full", "OSError: [Errno 28] No space left on device"},
		{"error prefix", "ERROR: wheel build failed for xformers"},
		{"provisioning failed", "Provisioning failed, see above for details"},
		{"failed to download", "warning: failed to download model sdxl.safetensors after 3 attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := Classify(tt.excerpt)
			if !cls.Failed {
				t.Fatalf("Classify(%q) did not report failure", tt.excerpt)
			}
			if cls.Stage != StageError {
				t.Errorf("Classify stage = %v, want ERROR", cls.Stage)
			}
			if cls.ErrorLine == "" {
				t.Error("Classify returned no offending line")
			}
		})
	}
}

func TestClassify_ErrorPreemptsReady(t *testing.T) {
	excerpt := "To see the GUI go to: http://localhost:8188\n" +
		"Traceback (most recent call last):\n"

	cls := Classify(excerpt)
	if !cls.Failed || cls.Stage != StageError {
		t.Errorf("Classify = %+v, want error preemption over READY", cls)
	}
}

func TestClassify_BenignLinesIgnored(t *testing.T) {
	tests := []struct {
		name    string
		excerpt string
	}{
		{
			name:    "receive buffer warning",
			excerpt: "failed to sufficiently increase receive buffer size (wanted: 2048 kiB, got: 416 kiB)",
		},
		{
			name:    "prefixed receive buffer warning",
			excerpt: "ERROR: failed to sufficiently increase receive buffer size",
		},
		{
			name:    "udp buffer advice",
			excerpt: "ERROR: UDP Buffer Sizes, see https://github.com/quic-go/quic-go/wiki/UDP-Buffer-Sizes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if cls := Classify(tt.excerpt); cls.Failed {
				t.Errorf("Classify(%q) flagged a benign line: %q", tt.excerpt, cls.ErrorLine)
			}
		})
	}
}

func TestClassify_StripsAnsi(t *testing.T) {
	excerpt := "\x1b[32mProvisioning complete!\x1b[0m\n"
	cls := Classify(excerpt)
	if !cls.Matched || cls.Stage != StageStartingApp {
		t.Errorf("Classify = %+v, want STARTING_APP through ANSI codes", cls)
	}
}

func TestExtractProgress(t *testing.T) {
	excerpt := "Downloading 3 model(s) to /workspace/ComfyUI/models/checkpoints\n" +
		"Downloading 2 model(s) to /workspace/ComfyUI/models/loras\n" +
		"✓ Downloaded to: /workspace/ComfyUI/models/checkpoints/sdxl.safetensors\n" +
		"✓ Downloaded to: /workspace/ComfyUI/models/loras/detail.safetensors\n" +
		"Progress: 842.5 MB of 2.1 GB\n" +
		"Speed: 45.6 MB/s\n"

	p, ok := ExtractProgress(excerpt)
	if !ok {
		t.Fatal("ExtractProgress found nothing")
	}
	if p.Announced != 5 {
		t.Errorf("Announced = %d, want 5", p.Announced)
	}
	if p.Completed != 2 {
		t.Errorf("Completed = %d, want 2", p.Completed)
	}
	if want := int64(842_500_000); p.Bytes != want {
		t.Errorf("Bytes = %d, want %d", p.Bytes, want)
	}
	if p.Speed != "45.6 MB/s" {
		t.Errorf("Speed = %q, want %q", p.Speed, "45.6 MB/s")
	}
}

func TestExtractProgress_LastLinesWin(t *testing.T) {
	excerpt := "Progress: 100 MB\nSpeed: 10.0 MB/s\nProgress: 1.5 GiB\nSpeed: 52.3 MB/s\n"

	p, ok := ExtractProgress(excerpt)
	if !ok {
		t.Fatal("ExtractProgress found nothing")
	}
	if want := int64(float64(1.5) * (1 << 30)); p.Bytes != want {
		t.Errorf("Bytes = %d, want %d (the most recent progress line)", p.Bytes, want)
	}
	if p.Speed != "52.3 MB/s" {
		t.Errorf("Speed = %q, want the most recent speed line", p.Speed)
	}
}

func TestExtractProgress_NoSignal(t *testing.T) {
	if p, ok := ExtractProgress("Provisioning container\nnothing else\n"); ok {
		t.Errorf("ExtractProgress = %+v, want no signal", p)
	}
}

func TestExtractReadyURL(t *testing.T) {
	tests := []struct {
		name    string
		excerpt string
		want    string
	}{
		{
			name:    "plain url",
			excerpt: "To see the GUI go to: http://localhost:8188",
			want:    "http://localhost:8188",
		},
		{
			name:    "url with trailing punctuation",
			excerpt: "To see the GUI go to: https://demo.example.com:8188.",
			want:    "https://demo.example.com:8188",
		},
		{
			name:    "no ready line",
			excerpt: "Provisioning complete!\n",
			want:    "",
		},
		{
			name:    "ready line without url",
			excerpt: "To see the GUI go to: the address printed above",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractReadyURL(tt.excerpt); got != tt.want {
				t.Errorf("ExtractReadyURL = %q, want %q", got, tt.want)
			}
		})
	}
}
