package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tidewise/drivers-sonar-base/internal/config"
)

const fileConfig = `{
  "window_size": 300,
  "serial_port": "/dev/ttyS0",
  "output_dir": "from-file",
  "db_path": "file.db",
  "listen": ":9000",
  "debug": true
}`

type settings struct {
	Window int
	Port   string
	Out    string
	DB     string
	Listen string
	Debug  bool
}

func settingsOf(cfg *config.RenderConfig) settings {
	return settings{
		Window: cfg.GetWindowSize(),
		Port:   cfg.GetSerialPort(),
		Out:    cfg.GetOutputDir(),
		DB:     cfg.GetDBPath(),
		Listen: cfg.GetListen(),
		Debug:  cfg.GetDebug(),
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "render.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// TestApplyFlags checks that flags set on the command line win over the
// config file and that unset flags leave it alone.
func TestApplyFlags(t *testing.T) {
	fromFile := settings{Window: 300, Port: "/dev/ttyS0", Out: "from-file", DB: "file.db", Listen: ":9000", Debug: true}

	tests := []struct {
		name string
		args []string
		want func(s *settings)
	}{
		{
			name: "no flags",
			args: []string{},
			want: func(s *settings) {},
		},
		{
			name: "window",
			args: []string{"-window", "800"},
			want: func(s *settings) { s.Window = 800 },
		},
		{
			name: "outputs",
			args: []string{"-out", "frames", "-db", "cache.db", "-listen", ":8081"},
			want: func(s *settings) {
				s.Out = "frames"
				s.DB = "cache.db"
				s.Listen = ":8081"
			},
		},
		{
			name: "port",
			args: []string{"-port", "/dev/ttyUSB0"},
			want: func(s *settings) { s.Port = "/dev/ttyUSB0" },
		},
		{
			name: "explicit false beats file true",
			args: []string{"-debug=false"},
			want: func(s *settings) { s.Debug = false },
		},
		{
			name: "explicit empty string clears the file value",
			args: []string{"-listen="},
			want: func(s *settings) { s.Listen = "" },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := loadConfig(writeConfig(t, fileConfig))
			if err != nil {
				t.Fatalf("loadConfig: %v", err)
			}

			fs := flag.NewFlagSet("test", flag.ContinueOnError)
			overrideFlags(fs)
			if err := fs.Parse(tc.args); err != nil {
				t.Fatalf("failed to parse flags: %v", err)
			}
			applyFlags(fs, cfg)

			want := fromFile
			tc.want(&want)
			if diff := cmp.Diff(want, settingsOf(cfg)); diff != "" {
				t.Errorf("settings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplyFlags_InvalidOverride(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, fileConfig))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	overrideFlags(fs)
	if err := fs.Parse([]string{"-window", "0"}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	applyFlags(fs, cfg)
	if err := cfg.Validate(); err == nil {
		t.Error("expected a zero window size to fail validation")
	}
}

func TestLoadConfig(t *testing.T) {
	// No path and no defaults file in the working directory.
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig(\"\"): %v", err)
	}
	if cfg.WindowSize != nil || cfg.Listen != nil {
		t.Errorf("expected an empty config, got %+v", cfg)
	}

	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected an error for a missing file")
	}
	if _, err := loadConfig(writeConfig(t, `{"window_size": -1}`)); err == nil {
		t.Error("expected an error for an invalid window size")
	}
}

func TestOpenSource(t *testing.T) {
	if _, _, err := openSource(config.EmptyRenderConfig(), ""); err == nil {
		t.Error("expected an error without input or port")
	}
	if _, _, err := openSource(config.EmptyRenderConfig(), filepath.Join(t.TempDir(), "none.jsonl")); err == nil {
		t.Error("expected an error for a missing input file")
	}

	path := filepath.Join(t.TempDir(), "samples.jsonl")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}
	mux, recorded, err := openSource(config.EmptyRenderConfig(), path)
	if err != nil {
		t.Fatalf("openSource: %v", err)
	}
	defer mux.Close()
	if !recorded {
		t.Error("file input should be replayed losslessly")
	}
}
