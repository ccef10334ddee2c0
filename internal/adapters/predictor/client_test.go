package predictor_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/okian/agropredict/internal/adapters/predictor"
	"github.com/okian/agropredict/internal/adapters/predictor/stub"
	"github.com/okian/agropredict/internal/domain/model"
	"github.com/okian/agropredict/internal/domain/request"
	"github.com/okian/agropredict/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func growthRequest(t *testing.T, id model.ModelID) model.Request {
	t.Helper()
	req, err := request.NewBuilder().Build(model.DomainGrowth,
		model.InputRecord{"root_length": 30, "yield": 400, "c7g_content": 0.03}, id)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return req
}

func newClient(t *testing.T, url string, opts ...predictor.Option) *predictor.Client {
	t.Helper()
	c, err := predictor.NewClient(url, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func fixed(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func TestClient_Invoke(t *testing.T) {
	_ = logger.Init()

	Convey("Given a client against the stub service", t, func() {
		svc := stub.New(
			stub.WithLatencyRange(0, time.Millisecond),
			stub.WithFailure("RandomForest", stub.FailErrorField),
		)
		srv := httptest.NewServer(svc)
		defer srv.Close()
		c := newClient(t, srv.URL)

		Convey("When a model answers", func() {
			res, ok := c.Invoke(context.Background(), growthRequest(t, "KNN"))

			Convey("Then the confidence and raw payload are kept", func() {
				So(ok, ShouldBeTrue)
				So(res.OK(), ShouldBeTrue)
				So(res.ModelID, ShouldEqual, model.ModelID("KNN"))
				So(res.Confidence, ShouldEqual, 0.64)
				So(string(res.Value), ShouldContainSubstring, `"model_used":"KNN"`)
				So(res.Elapsed, ShouldBeGreaterThan, time.Duration(0))
			})
		})

		Convey("When the service answers 200 with an error field", func() {
			res, ok := c.Invoke(context.Background(), growthRequest(t, "RandomForest"))

			Convey("Then it is a service error", func() {
				So(ok, ShouldBeTrue)
				So(res.Kind, ShouldEqual, model.KindServiceError)
				So(res.Message, ShouldEqual, "prediction failed")
			})
		})

		Convey("When the catalog is requested", func() {
			cat, err := c.Models(context.Background())
			So(err, ShouldBeNil)
			So(cat.Models, ShouldResemble, []string{"XGBoost", "RandomForest", "KNN", "ANN"})
			So(cat.Default, ShouldEqual, "XGBoost")

			rows, err := c.ModelMetrics(context.Background())
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 4)
			So(rows[0].Model, ShouldEqual, "XGBoost")
		})
	})

	Convey("Given malformed service responses", t, func() {
		cases := []struct {
			name    string
			handler http.Handler
			want    string
		}{
			{"non-2xx", fixed(http.StatusInternalServerError, `{"error":"model crashed"}`), "status 500: model crashed"},
			{"invalid json", fixed(http.StatusOK, `<html>`), "not valid JSON"},
			{"missing confidence", fixed(http.StatusOK, `{"model_used":"KNN"}`), "no numeric confidence"},
			{"string confidence", fixed(http.StatusOK, `{"confidence":"high"}`), "no numeric confidence"},
			{"out of range", fixed(http.StatusOK, `{"confidence":1.5}`), "outside [0,1]"},
		}

		for _, tc := range cases {
			srv := httptest.NewServer(tc.handler)
			res, ok := newClient(t, srv.URL).Invoke(context.Background(), growthRequest(t, "KNN"))
			srv.Close()

			So(ok, ShouldBeTrue)
			So(res.Kind, ShouldEqual, model.KindServiceError)
			So(res.Message, ShouldContainSubstring, tc.want)
		}
	})

	Convey("Given a service that never answers in time", t, func() {
		svc := stub.New(stub.WithFailure("KNN", stub.FailHang))
		srv := httptest.NewServer(svc)
		defer srv.Close()
		c := newClient(t, srv.URL, predictor.WithTimeout(30*time.Millisecond))

		res, ok := c.Invoke(context.Background(), growthRequest(t, "KNN"))

		Convey("Then the call fails with a timeout", func() {
			So(ok, ShouldBeTrue)
			So(res.Kind, ShouldEqual, model.KindTimeout)
		})
	})

	Convey("Given an address nobody listens on", t, func() {
		srv := httptest.NewServer(fixed(http.StatusOK, `{}`))
		url := srv.URL
		srv.Close()

		res, ok := newClient(t, url).Invoke(context.Background(), growthRequest(t, "KNN"))

		Convey("Then the call fails with a network error", func() {
			So(ok, ShouldBeTrue)
			So(res.Kind, ShouldEqual, model.KindNetwork)
		})
	})

	Convey("Given a caller that cancels while the call is in flight", t, func() {
		svc := stub.New(stub.WithFailure("KNN", stub.FailHang))
		srv := httptest.NewServer(svc)
		defer srv.Close()
		c := newClient(t, srv.URL)

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)
		_, ok := c.Invoke(ctx, growthRequest(t, "KNN"))

		Convey("Then no result is produced", func() {
			So(ok, ShouldBeFalse)
		})

		Convey("Then an already cancelled context makes no call at all", func() {
			before := svc.Calls()
			_, ok := c.Invoke(ctx, growthRequest(t, "KNN"))
			So(ok, ShouldBeFalse)
			So(svc.Calls(), ShouldEqual, before)
		})
	})

	Convey("Given a service that records request headers", t, func() {
		var mu sync.Mutex
		var ids []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			ids = append(ids, r.Header.Get(predictor.RequestIDHeader))
			mu.Unlock()
			fixed(http.StatusOK, `{"confidence":0.5}`).ServeHTTP(w, r)
		}))
		defer srv.Close()
		c := newClient(t, srv.URL)

		c.Invoke(context.Background(), growthRequest(t, "KNN"))
		c.Invoke(context.Background(), growthRequest(t, "ANN"))

		Convey("Then every call carries its own request id", func() {
			mu.Lock()
			defer mu.Unlock()
			So(ids, ShouldHaveLength, 2)
			So(ids[0], ShouldNotBeEmpty)
			So(ids[0], ShouldNotEqual, ids[1])
		})
	})
}

func TestClient_Catalog(t *testing.T) {
	_ = logger.Init()

	Convey("Given a metrics endpoint returning a bare list", t, func() {
		srv := httptest.NewServer(fixed(http.StatusOK, `[{"Model":"ANN","Train_R2_mean":0.9,"Test_R2_mean":0.7}]`))
		defer srv.Close()

		rows, err := newClient(t, srv.URL).ModelMetrics(context.Background())

		Convey("Then it is accepted", func() {
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 1)
			So(rows[0].TestR2Mean, ShouldEqual, 0.7)
		})
	})

	Convey("Given a catalog endpoint that fails", t, func() {
		srv := httptest.NewServer(fixed(http.StatusOK, `{"error":"models not loaded"}`))
		defer srv.Close()

		_, err := newClient(t, srv.URL).Models(context.Background())

		Convey("Then the error wraps ErrCatalog", func() {
			So(errors.Is(err, predictor.ErrCatalog), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "models not loaded")
		})
	})

	Convey("Given an invalid base url", t, func() {
		_, err := predictor.NewClient("localhost:5000")

		Convey("Then construction fails", func() {
			So(errors.Is(err, predictor.ErrInvalidBaseURL), ShouldBeTrue)
		})
	})
}
