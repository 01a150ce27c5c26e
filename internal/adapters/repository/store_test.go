package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rks/internal/adapters/repository"
	"github.com/okian/rks/internal/domain/model"
	"github.com/okian/rks/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type storeFactory func(t *testing.T) *repository.Store

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"file": func(t *testing.T) *repository.Store {
			s, err := repository.NewFile(t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			return s
		},
		"sqlite": func(t *testing.T) *repository.Store {
			s, err := repository.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "history.db"))
			if err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"memory": func(*testing.T) *repository.Store {
			return repository.NewMemory()
		},
	}
}

func TestHistoryStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, factory := range factories() {
		Convey("Given a "+name+" history store", t, func() {
			s := factory(t)

			Convey("When nothing was written", func() {
				Convey("Then reads return the empty defaults", func() {
					_, err := s.LatestSnapshot(ctx, "player")
					So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

					latest, err := s.LatestRating(ctx, "player")
					So(err, ShouldBeNil)
					So(latest, ShouldEqual, 0)

					delta, err := s.RatingDelta(ctx, "player")
					So(err, ShouldBeNil)
					So(delta, ShouldEqual, 0)

					w, err := s.Window(ctx, "player")
					So(err, ShouldBeNil)
					So(w, ShouldBeEmpty)
				})
			})

			Convey("When snapshots are appended out of order", func() {
				So(s.AppendSnapshot(ctx, "player", model.Snapshot{Timestamp: "2025-01-02T00:00:00.000000Z", Rating: 12.5}), ShouldBeNil)
				So(s.AppendSnapshot(ctx, "player", model.Snapshot{Timestamp: "2025-01-03T00:00:00.000000Z", Rating: 13.0, Summary: json.RawMessage(`{"nickname":"P"}`)}), ShouldBeNil)
				So(s.AppendSnapshot(ctx, "player", model.Snapshot{Timestamp: "2025-01-01T00:00:00.000000Z", Rating: 12.0}), ShouldBeNil)

				Convey("Then the greatest key is the latest", func() {
					snap, err := s.LatestSnapshot(ctx, "player")
					So(err, ShouldBeNil)
					So(snap.Timestamp, ShouldEqual, "2025-01-03T00:00:00.000000Z")
					So(snap.Rating, ShouldEqual, 13.0)
					So(string(snap.Summary), ShouldContainSubstring, `"nickname"`)
				})

				Convey("Then the timeline is ordered by key", func() {
					tl, err := s.Timeline(ctx, "player")
					So(err, ShouldBeNil)
					So(tl, ShouldHaveLength, 3)
					So(tl[0].Rating, ShouldEqual, 12.0)
					So(tl[2].Rating, ShouldEqual, 13.0)
				})

				Convey("And a snapshot reuses a key", func() {
					So(s.AppendSnapshot(ctx, "player", model.Snapshot{Timestamp: "2025-01-02T00:00:00.000000Z", Rating: 99}), ShouldBeNil)

					Convey("Then the last write wins without adding an entry", func() {
						tl, err := s.Timeline(ctx, "player")
						So(err, ShouldBeNil)
						So(tl, ShouldHaveLength, 3)
						So(tl[1].Rating, ShouldEqual, 99)
					})
				})

				Convey("Then other identities are untouched", func() {
					_, err := s.LatestSnapshot(ctx, "other")
					So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				})
			})

			Convey("When seven ratings are pushed", func() {
				for i := 1; i <= 7; i++ {
					_, err := s.PushRating(ctx, "player", float64(i))
					So(err, ShouldBeNil)
				}

				Convey("Then the window keeps the newest five", func() {
					w, err := s.Window(ctx, "player")
					So(err, ShouldBeNil)
					So(w, ShouldResemble, model.Window{7, 6, 5, 4, 3})
				})

				Convey("Then latest and delta follow the window", func() {
					latest, err := s.LatestRating(ctx, "player")
					So(err, ShouldBeNil)
					So(latest, ShouldEqual, 7)
					prev, err := s.PreviousRating(ctx, "player")
					So(err, ShouldBeNil)
					So(prev, ShouldEqual, 7)
					delta, err := s.RatingDelta(ctx, "player")
					So(err, ShouldBeNil)
					So(delta, ShouldEqual, 1)
				})

				Convey("And the window is pruned", func() {
					So(s.PruneWindow(ctx, "player"), ShouldBeNil)

					Convey("Then only the newest value remains", func() {
						w, err := s.Window(ctx, "player")
						So(err, ShouldBeNil)
						So(w, ShouldResemble, model.Window{7})
					})
				})
			})

			Convey("When a single rating is pushed", func() {
				w, err := s.PushRating(ctx, "player", 14.2)
				So(err, ShouldBeNil)

				Convey("Then the window has one value and no delta", func() {
					So(w, ShouldResemble, model.Window{14.2})
					delta, err := s.RatingDelta(ctx, "player")
					So(err, ShouldBeNil)
					So(delta, ShouldEqual, 0)
				})
			})

			Convey("When identities are pushed concurrently", func() {
				var wg sync.WaitGroup
				for i := 0; i < 8; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						_, _ = s.PushRating(ctx, fmt.Sprintf("p%d", i), float64(i))
					}(i)
				}
				wg.Wait()

				Convey("Then each identity sees only its own value", func() {
					for i := 0; i < 8; i++ {
						w, err := s.Window(ctx, fmt.Sprintf("p%d", i))
						So(err, ShouldBeNil)
						So(w, ShouldResemble, model.Window{float64(i)})
					}
				})
			})

			Convey("When ratings are recorded", func() {
				_, err := s.Record(ctx, "player", model.Snapshot{Timestamp: "2025-03-01T10:00:00.000000Z", Rating: 12.5})
				So(err, ShouldBeNil)
				w, err := s.Record(ctx, "player", model.Snapshot{Timestamp: "2025-03-01T11:00:00.000000Z", Rating: 13})
				So(err, ShouldBeNil)

				Convey("Then the timeline and window move together", func() {
					So(w, ShouldResemble, model.Window{13, 12.5})
					tl, err := s.Timeline(ctx, "player")
					So(err, ShouldBeNil)
					So(tl, ShouldHaveLength, 2)
					So(tl[1].Rating, ShouldEqual, 13)
					stored, err := s.Window(ctx, "player")
					So(err, ShouldBeNil)
					So(stored, ShouldResemble, w)
				})
			})

			Convey("When a record is attempted with a cancelled context", func() {
				cctx, cancel := context.WithCancel(ctx)
				cancel()
				_, err := s.Record(cctx, "player", model.Snapshot{Timestamp: "2025-03-01T10:00:00.000000Z", Rating: 12.5})

				Convey("Then it fails before writing anything", func() {
					So(errors.Is(err, context.Canceled), ShouldBeTrue)
					tl, _ := s.Timeline(ctx, "player")
					So(tl, ShouldBeEmpty)
					w, _ := s.Window(ctx, "player")
					So(w, ShouldBeEmpty)
				})
			})

			Convey("When the identity cannot name a key", func() {
				Convey("Then it is rejected", func() {
					for _, id := range []string{"", ".", "..", "a/b", "../x"} {
						_, err := s.Window(ctx, id)
						So(errors.Is(err, repository.ErrInvalidIdentity), ShouldBeTrue)
						err = s.AppendSnapshot(ctx, id, model.Snapshot{Timestamp: "t"})
						So(errors.Is(err, repository.ErrInvalidIdentity), ShouldBeTrue)
					}
				})
			})
		})
	}
}

func TestFileBackendFormats(t *testing.T) {
	ctx := context.Background()

	Convey("Given a file store", t, func() {
		dir := t.TempDir()
		s, err := repository.NewFile(dir)
		So(err, ShouldBeNil)
		So(os.MkdirAll(filepath.Join(dir, "player"), 0o755), ShouldBeNil)
		write := func(name, content string) {
			So(os.WriteFile(filepath.Join(dir, "player", name), []byte(content), 0o600), ShouldBeNil)
		}

		Convey("When the window file holds a legacy bare number", func() {
			write(repository.WindowFile, "13.37")

			Convey("Then it reads as a one-value window", func() {
				w, err := s.Window(ctx, "player")
				So(err, ShouldBeNil)
				So(w, ShouldResemble, model.Window{13.37})
			})

			Convey("Then a push upgrades it to a list", func() {
				_, err := s.PushRating(ctx, "player", 14)
				So(err, ShouldBeNil)
				raw, err := os.ReadFile(filepath.Join(dir, "player", repository.WindowFile))
				So(err, ShouldBeNil)
				var got []float64
				So(json.Unmarshal(raw, &got), ShouldBeNil)
				So(got, ShouldResemble, []float64{14, 13.37})
			})
		})

		Convey("When the window file holds a legacy zero", func() {
			write(repository.WindowFile, "0")

			Convey("Then it reads as empty", func() {
				w, err := s.Window(ctx, "player")
				So(err, ShouldBeNil)
				So(w, ShouldBeEmpty)
			})
		})

		Convey("When the window file is corrupt", func() {
			write(repository.WindowFile, "{not json")

			Convey("Then the backend reports it and the store degrades", func() {
				l, err := s.Backend().ReadWindow(ctx, "player")
				So(err, ShouldBeNil)
				So(l.Status, ShouldEqual, repository.Corrupt)
				So(errors.Is(l.Cause, repository.ErrCorruptState), ShouldBeTrue)

				latest, err := s.LatestRating(ctx, "player")
				So(err, ShouldBeNil)
				So(latest, ShouldEqual, 0)
			})
		})

		Convey("When the timeline file is corrupt", func() {
			write(repository.TimelineFile, "[1,2")

			Convey("Then the latest snapshot is absent", func() {
				_, err := s.LatestSnapshot(ctx, "player")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("Then an append starts a fresh timeline and keeps the old file aside", func() {
				So(s.AppendSnapshot(ctx, "player", model.Snapshot{Timestamp: "2025-01-01T00:00:00.000000Z", Rating: 1}), ShouldBeNil)
				tl, err := s.Timeline(ctx, "player")
				So(err, ShouldBeNil)
				So(tl, ShouldHaveLength, 1)
				matches, err := filepath.Glob(filepath.Join(dir, "player", repository.TimelineFile+".corrupt-*"))
				So(err, ShouldBeNil)
				So(matches, ShouldHaveLength, 1)
			})
		})

		Convey("When a snapshot is appended", func() {
			So(s.AppendSnapshot(ctx, "player", model.Snapshot{
				Timestamp: "2025-03-01T10:00:00.000000Z",
				Rating:    14.1234,
				Summary:   json.RawMessage(`{"challengeModeRank":345}`),
			}), ShouldBeNil)

			Convey("Then the file maps timestamps to rks and summary", func() {
				raw, err := os.ReadFile(filepath.Join(dir, "player", repository.TimelineFile))
				So(err, ShouldBeNil)
				var got map[string]map[string]any
				So(json.Unmarshal(raw, &got), ShouldBeNil)
				So(got["2025-03-01T10:00:00.000000Z"]["rks"], ShouldEqual, 14.1234)
				So(got["2025-03-01T10:00:00.000000Z"]["summary"], ShouldNotBeNil)
			})

			Convey("Then no temp files are left behind", func() {
				entries, err := os.ReadDir(filepath.Join(dir, "player"))
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 1)
			})
		})
	})
}

func TestOpen(t *testing.T) {
	Convey("Given backend names", t, func() {
		ctx := context.Background()

		Convey("Then known backends open", func() {
			s, err := repository.Open(ctx, repository.BackendMemory, "")
			So(err, ShouldBeNil)
			So(s, ShouldNotBeNil)
			s, err = repository.Open(ctx, repository.BackendFile, t.TempDir())
			So(err, ShouldBeNil)
			So(s, ShouldNotBeNil)
		})

		Convey("Then unknown backends are rejected", func() {
			_, err := repository.Open(ctx, "redis", "")
			So(errors.Is(err, repository.ErrUnknownBackend), ShouldBeTrue)
		})
	})
}

// flakyBackend fails selected writes. Embedding the interface hides the
// wrapped backend's Recorder, so Store.Record takes the ordered path.
type flakyBackend struct {
	repository.Backend
	windowWrites int
	failWindowAt int // 1-based WriteWindow call to fail; 0 never
	snapshotErr  error
}

var errDiskFull = errors.New("disk full")

func (f *flakyBackend) WriteWindow(ctx context.Context, identity string, w model.Window) error {
	f.windowWrites++
	if f.windowWrites == f.failWindowAt {
		return errDiskFull
	}
	return f.Backend.WriteWindow(ctx, identity, w)
}

func (f *flakyBackend) PutSnapshot(ctx context.Context, identity string, snap model.Snapshot) error {
	if f.snapshotErr != nil {
		return f.snapshotErr
	}
	return f.Backend.PutSnapshot(ctx, identity, snap)
}

func TestRecordFailures(t *testing.T) {
	ctx := context.Background()
	first := model.Snapshot{Timestamp: "2025-03-01T10:00:00.000000Z", Rating: 10}
	second := model.Snapshot{Timestamp: "2025-03-01T11:00:00.000000Z", Rating: 11}

	Convey("Given a store with one recorded rating", t, func() {
		b := &flakyBackend{Backend: repository.NewMemoryBackend()}
		s := repository.New(b)
		_, err := s.Record(ctx, "player", first)
		So(err, ShouldBeNil)
		b.windowWrites = 0

		Convey("When the window write fails", func() {
			b.failWindowAt = 1
			_, err := s.Record(ctx, "player", second)

			Convey("Then no snapshot is added", func() {
				So(errors.Is(err, errDiskFull), ShouldBeTrue)
				tl, _ := s.Timeline(ctx, "player")
				So(tl, ShouldHaveLength, 1)
				latest, _ := s.LatestSnapshot(ctx, "player")
				So(latest.Rating, ShouldEqual, 10)
				w, _ := s.Window(ctx, "player")
				So(w, ShouldResemble, model.Window{10})
			})
		})

		Convey("When the snapshot write fails", func() {
			b.snapshotErr = errDiskFull
			_, err := s.Record(ctx, "player", second)

			Convey("Then the window is restored", func() {
				So(errors.Is(err, errDiskFull), ShouldBeTrue)
				w, _ := s.Window(ctx, "player")
				So(w, ShouldResemble, model.Window{10})
				tl, _ := s.Timeline(ctx, "player")
				So(tl, ShouldHaveLength, 1)
			})
		})

		Convey("When the snapshot write and the window restore both fail", func() {
			b.snapshotErr = errDiskFull
			b.failWindowAt = 2
			_, err := s.Record(ctx, "player", second)

			Convey("Then both failures are reported", func() {
				So(errors.Is(err, errDiskFull), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "append snapshot")
				So(err.Error(), ShouldContainSubstring, "restore window")
			})
		})
	})
}

func TestSQLitePath(t *testing.T) {
	Convey("Given a database path with URI metacharacters", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "hist?mode=ro#1%.db")
		s, err := repository.NewSQLite(ctx, path)
		So(err, ShouldBeNil)
		_, err = s.Record(ctx, "player", model.Snapshot{Timestamp: "2025-03-01T10:00:00.000000Z", Rating: 3})
		So(err, ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("Then the file is created at that exact path and reopens", func() {
			_, err := os.Stat(path)
			So(err, ShouldBeNil)
			again, err := repository.NewSQLite(ctx, path)
			So(err, ShouldBeNil)
			defer func() { _ = again.Close() }()
			w, err := again.Window(ctx, "player")
			So(err, ShouldBeNil)
			So(w, ShouldResemble, model.Window{3})
		})
	})
}
