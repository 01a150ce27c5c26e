package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rks/internal/adapters/http/api"
	"github.com/okian/rks/internal/adapters/mq/queue"
	"github.com/okian/rks/internal/adapters/repository"
	"github.com/okian/rks/internal/adapters/savedata"
	service "github.com/okian/rks/internal/app"
	"github.com/okian/rks/internal/domain/types"
	"github.com/okian/rks/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type bestCall struct {
	identity           string
	b, p               int
	original, userinfo bool
}

type mockGateway struct {
	rating     types.RatingEntry
	refreshErr error
	bestErr    error
	bestCalls  []bestCall
	history    types.HistoryEntry
	historyErr error
	pruned     []string
	enqueued   bool
	enqueueErr error
}

func (m *mockGateway) CurrentRating(_ context.Context, identity string) types.RatingEntry {
	e := m.rating
	e.Identity = identity
	return e
}

func (m *mockGateway) RefreshAndRecord(context.Context, string) (float64, float64, error) {
	if m.refreshErr != nil {
		return 0, 0, m.refreshErr
	}
	return 14.5, 14.0, nil
}

func (m *mockGateway) Best(_ context.Context, identity string, b, p int, original, userinfo bool) (types.BestResponse, error) {
	m.bestCalls = append(m.bestCalls, bestCall{identity, b, p, original, userinfo})
	if m.bestErr != nil {
		return types.BestResponse{}, m.bestErr
	}
	return types.BestResponse{
		Board: types.Board{
			Best: map[string]types.RecordView{"1": {ID: "Song.A.0", Level: "IN Lv.15.0", RKS: 15}},
			Phi:  map[string]types.RecordView{},
		},
		RKS: 0.5,
	}, nil
}

func (m *mockGateway) History(context.Context, string) (types.HistoryEntry, error) {
	return m.history, m.historyErr
}

func (m *mockGateway) PruneHistory(_ context.Context, identity string) error {
	if err := repository.ValidateIdentity(identity); err != nil {
		return err
	}
	m.pruned = append(m.pruned, identity)
	return nil
}

func (m *mockGateway) Suggest(acc, level float64) (types.Suggestion, error) {
	if acc > 100 {
		return types.Suggestion{}, fmt.Errorf("%w: acc", service.ErrInvalidRequest)
	}
	target := 99.5
	return types.Suggestion{Acc: acc, Level: level, RKS: 13.0, PushAcc: &target}, nil
}

func (m *mockGateway) EnqueueRefresh(context.Context, string) (string, bool, error) {
	if m.enqueueErr != nil {
		return "", false, m.enqueueErr
	}
	if m.enqueued {
		return "", false, nil
	}
	m.enqueued = true
	return "job-1", true, nil
}

func (m *mockGateway) DefaultCounts() (int, int) { return 30, 3 }

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any {
	return m.stats
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestServer_Routes(t *testing.T) {
	Convey("Given an API server over a gateway", t, func() {
		gw := &mockGateway{rating: types.RatingEntry{RKS: 14.2, Previous: 14.0, Delta: 0.2, Cached: true}}
		stats := &mockStatsProvider{stats: map[string]any{"started": true}}
		h := api.NewServer(gw, stats).Routes()

		Convey("When probing health, metrics and stats", func() {
			Convey("Then each answers 200", func() {
				w := serve(h, http.MethodGet, "/healthz")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["status"], ShouldEqual, "ok")

				So(serve(h, http.MethodGet, "/metrics").Code, ShouldEqual, http.StatusOK)

				w = serve(h, http.MethodGet, "/stats")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["started"], ShouldEqual, true)
			})
		})

		Convey("When a rating is requested", func() {
			w := serve(h, http.MethodGet, "/rating/player")

			Convey("Then the entry is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
				body := decode(w)
				So(body["identity"], ShouldEqual, "player")
				So(body["rks"], ShouldEqual, 14.2)
				So(body["cached"], ShouldEqual, true)
				So(body, ShouldNotContainKey, "advisory")
			})
		})

		Convey("When a degraded rating is requested", func() {
			gw.rating = types.RatingEntry{RKS: 0, Advisory: service.AdvisoryNoHistory}
			w := serve(h, http.MethodGet, "/rating/player")

			Convey("Then it still answers 200 with the advisory", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["advisory"], ShouldEqual, service.AdvisoryNoHistory)
			})
		})

		Convey("When a synchronous refresh succeeds", func() {
			w := serve(h, http.MethodPost, "/rating/player/refresh")

			Convey("Then the identity, current, previous and delta are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["identity"], ShouldEqual, "player")
				So(body["rks"], ShouldEqual, 14.5)
				So(body["previous"], ShouldEqual, 14.0)
				So(body["delta"], ShouldEqual, 0.5)
			})
		})

		Convey("When a synchronous refresh cannot reach the save", func() {
			gw.refreshErr = fmt.Errorf("%w: %w", service.ErrRemoteFetch, fmt.Errorf("%w: timeout", savedata.ErrFetch))
			w := serve(h, http.MethodPost, "/rating/player/refresh")

			Convey("Then it answers 502", func() {
				So(w.Code, ShouldEqual, http.StatusBadGateway)
				So(decode(w)["code"], ShouldEqual, "remote_fetch_failed")
			})
		})

		Convey("When the identity has no save", func() {
			gw.refreshErr = fmt.Errorf("%w: %w", service.ErrRemoteFetch, savedata.ErrNoSave)
			w := serve(h, http.MethodPost, "/rating/player/refresh")

			Convey("Then it answers 404", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When a board is requested with defaults", func() {
			w := serve(h, http.MethodGet, "/best/player")

			Convey("Then the configured counts are used", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(gw.bestCalls, ShouldResemble, []bestCall{{"player", 30, 3, false, false}})
				body := decode(w)
				So(body, ShouldContainKey, "_best")
				So(body, ShouldContainKey, "_phi")
				So(body, ShouldNotContainKey, "original")
			})
		})

		Convey("When a board is requested with parameters", func() {
			w := serve(h, http.MethodGet, "/best/player?best=19&phi=0&original=true&userinfo=1")

			Convey("Then they reach the gateway", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(gw.bestCalls, ShouldResemble, []bestCall{{"player", 19, 0, true, true}})
			})
		})

		Convey("When board parameters are malformed", func() {
			Convey("Then it answers 400 without calling the gateway", func() {
				for _, q := range []string{"best=abc", "phi=1.5", "original=maybe"} {
					w := serve(h, http.MethodGet, "/best/player?"+q)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
				}
				So(gw.bestCalls, ShouldBeEmpty)
			})
		})

		Convey("When the gateway rejects the board size", func() {
			gw.bestErr = fmt.Errorf("%w: best=-1", service.ErrInvalidRequest)
			w := serve(h, http.MethodGet, "/best/player?best=-1")

			Convey("Then it answers 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("When history is requested", func() {
			gw.history = types.HistoryEntry{Window: []float64{14.2, 14.0}, Delta: 0.2, Snapshots: 2}
			w := serve(h, http.MethodGet, "/history/player")

			Convey("Then the window is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["window"], ShouldResemble, []any{14.2, 14.0})
			})
		})

		Convey("When history fails unexpectedly", func() {
			gw.historyErr = errors.New("disk on fire")
			w := serve(h, http.MethodGet, "/history/player")

			Convey("Then it answers 500", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})

		Convey("When the window is pruned", func() {
			w := serve(h, http.MethodDelete, "/history/player/window")

			Convey("Then it answers 204", func() {
				So(w.Code, ShouldEqual, http.StatusNoContent)
				So(gw.pruned, ShouldResemble, []string{"player"})
			})
		})

		Convey("When the window of an invalid identity is pruned", func() {
			w := serve(h, http.MethodDelete, "/history/../window")

			Convey("Then it answers 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When async refreshes are requested twice", func() {
			first := serve(h, http.MethodPost, "/refresh/player")
			second := serve(h, http.MethodPost, "/refresh/player")

			Convey("Then the first is accepted and the second is pending", func() {
				So(first.Code, ShouldEqual, http.StatusAccepted)
				So(decode(first)["job_id"], ShouldEqual, "job-1")
				So(second.Code, ShouldEqual, http.StatusOK)
				So(decode(second)["status"], ShouldEqual, "pending")
			})
		})

		Convey("When the refresh queue is full", func() {
			gw.enqueueErr = queue.ErrFull
			w := serve(h, http.MethodPost, "/refresh/player")

			Convey("Then it answers 429", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			})
		})

		Convey("When the refresh pipeline is not running", func() {
			gw.enqueueErr = service.ErrNotStarted
			w := serve(h, http.MethodPost, "/refresh/player")

			Convey("Then it answers 503", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})

		Convey("When a suggestion is requested", func() {
			w := serve(h, http.MethodGet, "/suggest?acc=98.5&level=15")

			Convey("Then the target accuracy is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["push_acc"], ShouldEqual, 99.5)
				So(body["acc"], ShouldEqual, 98.5)
			})
		})

		Convey("When suggestion input is bad", func() {
			Convey("Then it answers 400", func() {
				for _, q := range []string{"", "acc=98", "acc=x&level=15", "acc=101&level=15"} {
					w := serve(h, http.MethodGet, "/suggest?"+q)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
				}
			})
		})

		Convey("When an unknown route is requested", func() {
			w := serve(h, http.MethodGet, "/leaderboard")

			Convey("Then it answers 404", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When a route is called with the wrong method", func() {
			w := serve(h, http.MethodPost, "/history/player")

			Convey("Then it answers 405", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})
	})
}

func TestServer_Mount(t *testing.T) {
	Convey("Given routes registered on an existing router", t, func() {
		gw := &mockGateway{}
		mux := http.NewServeMux()
		r := api.NewServer(gw, &mockStatsProvider{stats: map[string]any{}}).Routes()
		mux.Handle("/", r)

		Convey("Then requests pass through the outer mux", func() {
			w := serve(mux, http.MethodGet, "/rating/player")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldStartWith, "{")
		})
	})
}
