package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/agropredict/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.BaseURL, convey.ShouldEqual, "http://localhost:5000")
			convey.So(cfg.InvokeTimeout(), convey.ShouldEqual, 15*time.Second)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*4)
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1_024)
			convey.So(cfg.ClimateModel, convey.ShouldEqual, "default")
			convey.So(cfg.ClimateFields, convey.ShouldResemble, []string{"bio1", "bio2", "bio3", "bio4", "bio5"})
			convey.So(cfg.GrowthModels, convey.ShouldBeEmpty)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with a single invalid field", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":        func(c *config.Config) { c.Addr = " " },
			"relative base url": func(c *config.Config) { c.BaseURL = "localhost:5000/api" },
			"zero timeout":      func(c *config.Config) { c.InvokeTimeoutMS = 0 },
			"no climate model":  func(c *config.Config) { c.ClimateModel = "" },
			"no climate fields": func(c *config.Config) { c.ClimateFields = nil },
		}

		convey.Convey("Then each of them should be rejected", func() {
			for _, mutate := range cases {
				cfg := config.New()
				mutate(cfg)

				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			}
		})
	})
}
