package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/tally/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.KVBackend, convey.ShouldEqual, config.BackendBolt)
				convey.So(cfg.RankedBackend, convey.ShouldEqual, config.BackendTreap)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("TALLY_ADDR", ":8080")
			_ = os.Setenv("TALLY_STORE_VERSION", "3")
			_ = os.Setenv("TALLY_KV_BACKEND", "memory")
			_ = os.Setenv("TALLY_AUTOSAVE_SECONDS", "30")
			_ = os.Setenv("TALLY_LOG_FORMAT", "json")
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.StoreVersion, convey.ShouldEqual, 3)
				convey.So(cfg.KVBackend, convey.ShouldEqual, config.BackendMemory)
				convey.So(cfg.AutosaveSeconds, convey.ShouldEqual, 30)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
			})
		})

		convey.Convey("When loading config with a YAML file and env overrides", func() {
			yamlContent := `
addr: ":9090"
ranked_backend: sqlite
sqlite_path: /tmp/ranked.db
leaderboard_size: 25
display_names:
  "1001": Alice
  "1002": Bob
`
			tmpFile := createTempConfigFile(t, yamlContent)
			_ = os.Setenv("TALLY_CONFIG", tmpFile)
			_ = os.Setenv("TALLY_ADDR", ":8081")
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then env wins over file and file over defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8081")
				convey.So(cfg.RankedBackend, convey.ShouldEqual, config.BackendSQLite)
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/tmp/ranked.db")
				convey.So(cfg.LeaderboardSize, convey.ShouldEqual, 25)
				convey.So(cfg.RefreshSeconds, convey.ShouldEqual, 15)
				convey.So(cfg.DisplayNames["1001"], convey.ShouldEqual, "Alice")
				convey.So(cfg.DisplayNames["1002"], convey.ShouldEqual, "Bob")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, `invalid: yaml: content: [`)
			_ = os.Setenv("TALLY_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("TALLY_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an unknown backend", func() {
			_ = os.Setenv("TALLY_KV_BACKEND", "redis")
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then it should return a validation error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "kv_backend")
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("TALLY_QUEUE_SIZE", "invalid")
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, name := range []string{
		"TALLY_CONFIG", "TALLY_ADDR", "TALLY_STORE_VERSION", "TALLY_KV_BACKEND",
		"TALLY_AUTOSAVE_SECONDS", "TALLY_LOG_FORMAT", "TALLY_QUEUE_SIZE",
	} {
		_ = os.Unsetenv(name)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tally.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
