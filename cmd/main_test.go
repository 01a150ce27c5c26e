package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/rks/internal/config"
	"github.com/okian/rks/pkg/logger"
)

const testSave = `{
  "2025-03-01 10:00:00": {
    "Alpha.A.0": {"IN": {"acc": 100, "score": 1000000, "fc": true}},
    "Beta.B.0": {"HD": {"acc": 98.5, "score": 985000, "fc": false}}
  }
}`

const testCatalog = "Alpha.A.0\t1.0\t5.0\t15.0\t\nBeta.B.0\t2.0\t\t\t\n"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	saves := filepath.Join(dir, "saves")
	if err := os.MkdirAll(saves, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(saves, "player.json"), []byte(testSave), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "difficulty.tsv"), []byte(testCatalog), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.New()
	cfg.Addr = "127.0.0.1:0"
	cfg.HistoryDir = filepath.Join(dir, "history")
	cfg.SQLitePath = filepath.Join(dir, "history.db")
	cfg.CatalogPath = filepath.Join(dir, "difficulty.tsv")
	cfg.SavesDir = saves
	cfg.WorkerCount = 1
	return cfg
}

func get(h http.Handler, target string) (int, map[string]any) {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w.Code, body
}

func TestBuild(t *testing.T) {
	if err := logger.Init(); err != nil {
		t.Fatal(err)
	}
	l := logger.Get()

	convey.Convey("Given a complete configuration", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)

		for _, backend := range []string{config.BackendFile, config.BackendSQLite, config.BackendMemory} {
			convey.Convey("When the application is built on the "+backend+" backend", func() {
				cfg.HistoryBackend = backend
				a, err := build(ctx, cfg, l)
				convey.So(err, convey.ShouldBeNil)
				defer a.svc.Stop(ctx)

				convey.Convey("Then a rating is computed from the save and recorded", func() {
					code, body := get(a.handler, "/rating/player")
					convey.So(code, convey.ShouldEqual, http.StatusOK)
					convey.So(body["rks"], convey.ShouldAlmostEqual, 15.0/30, 1e-9)
					convey.So(body["cached"], convey.ShouldEqual, false)

					code, body = get(a.handler, "/rating/player")
					convey.So(code, convey.ShouldEqual, http.StatusOK)
					convey.So(body["cached"], convey.ShouldEqual, true)

					code, body = get(a.handler, "/history/player")
					convey.So(code, convey.ShouldEqual, http.StatusOK)
					convey.So(body["snapshots"], convey.ShouldEqual, 1)
				})

				convey.Convey("Then the board drops charts without a level constant", func() {
					code, body := get(a.handler, "/best/player?phi=1")
					convey.So(code, convey.ShouldEqual, http.StatusOK)
					convey.So(body["_best"], convey.ShouldHaveLength, 1)
					convey.So(body["_phi"], convey.ShouldHaveLength, 1)
				})

				convey.Convey("Then an unknown player is reported as missing", func() {
					code, _ := get(a.handler, "/best/nobody")
					convey.So(code, convey.ShouldEqual, http.StatusNotFound)
				})

				convey.Convey("Then the catalog reload is scheduled", func() {
					convey.So(a.scheduler.Entries(), convey.ShouldEqual, 1)
				})
			})
		}

		convey.Convey("When catalog reloading is disabled", func() {
			cfg.HistoryBackend = config.BackendMemory
			cfg.CatalogReloadCron = ""
			a, err := build(ctx, cfg, l)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then nothing is scheduled", func() {
				convey.So(a.scheduler.Entries(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the catalog is missing", func() {
			cfg.CatalogPath = filepath.Join(t.TempDir(), "missing.tsv")
			_, err := build(ctx, cfg, l)

			convey.Convey("Then the build fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the reload schedule is malformed", func() {
			cfg.HistoryBackend = config.BackendMemory
			cfg.CatalogReloadCron = "whenever"
			_, err := build(ctx, cfg, l)

			convey.Convey("Then the build fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestRun(t *testing.T) {
	if err := logger.Init(); err != nil {
		t.Fatal(err)
	}

	convey.Convey("Given a server whose context ends", t, func() {
		cfg := testConfig(t)
		cfg.HistoryBackend = config.BackendMemory
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		convey.Convey("Then it shuts down cleanly", func() {
			done := make(chan error, 1)
			go func() { done <- run(ctx, cfg, logger.Get()) }()
			select {
			case err := <-done:
				convey.So(err, convey.ShouldBeNil)
			case <-time.After(10 * time.Second):
				t.Fatal("run did not return")
			}
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the metrics updaters", t, func() {
		convey.Convey("Then a system update does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("Then the system loop stops with its context", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})
	})
}
