package risk_test

import (
	"errors"
	"testing"

	"github.com/okian/crowdews/internal/domain/model"
	"github.com/okian/crowdews/internal/domain/risk"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDefaultConfig(t *testing.T) {
	Convey("The default config is valid", t, func() {
		cfg := risk.DefaultConfig()
		So(cfg.Validate(), ShouldBeNil)
		So(cfg.AlertSource(), ShouldEqual, risk.AlertSourceComposite)
		So(cfg.StepwiseDescent(), ShouldBeTrue)
		So(cfg.Thresholds(), ShouldResemble, risk.Thresholds{Yellow: 0.40, Orange: 0.60, Red: 0.75})

		var sum float64
		for _, v := range cfg.Weights() {
			sum += v
		}
		So(sum, ShouldAlmostEqual, 1, 1e-3)
	})

	Convey("Accessors hand out copies", t, func() {
		cfg := risk.DefaultConfig()
		w := cfg.Weights()
		w[risk.IndexCAI] = 5
		up := cfg.Up()
		up[model.Transition{From: model.Green, To: model.Yellow}] = 9

		So(cfg.Weights()[risk.IndexCAI], ShouldEqual, 0.18841)
		So(cfg.Up().Required(model.Transition{From: model.Green, To: model.Yellow}), ShouldEqual, 2)
	})

	Convey("Options do not alias caller tables", t, func() {
		w := risk.DefaultWeights()
		cfg, err := risk.NewConfig(risk.WithWeights(w))
		So(err, ShouldBeNil)
		w[risk.IndexEI] = 0
		So(cfg.Weights()[risk.IndexEI], ShouldEqual, 0.24063)
	})
}

func TestConfigValidation(t *testing.T) {
	Convey("Given weight tables", t, func() {
		Convey("A missing key is rejected", func() {
			w := risk.DefaultWeights()
			delete(w, risk.IndexTI)
			_, err := risk.NewConfig(risk.WithWeights(w))
			So(errors.Is(err, risk.ErrInvalidWeights), ShouldBeTrue)
			So(errors.Is(err, risk.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("An extra key is rejected", func() {
			w := risk.DefaultWeights()
			w["FOO"] = 0
			_, err := risk.NewConfig(risk.WithWeights(w))
			So(errors.Is(err, risk.ErrInvalidWeights), ShouldBeTrue)
		})

		Convey("A negative weight is rejected", func() {
			w := risk.Weights{risk.IndexCAI: -0.2, risk.IndexCDI: 0.4, risk.IndexTHI: 0.2, risk.IndexTI: 0.3, risk.IndexEI: 0.3}
			_, err := risk.NewConfig(risk.WithWeights(w))
			So(errors.Is(err, risk.ErrInvalidWeights), ShouldBeTrue)
		})

		Convey("A sum outside tolerance is rejected", func() {
			w := risk.DefaultWeights()
			w[risk.IndexEI] += 0.01
			_, err := risk.NewConfig(risk.WithWeights(w))
			So(errors.Is(err, risk.ErrInvalidWeights), ShouldBeTrue)
		})

		Convey("A sum within tolerance is accepted", func() {
			w := risk.DefaultWeights()
			w[risk.IndexEI] += 0.0005
			_, err := risk.NewConfig(risk.WithWeights(w))
			So(err, ShouldBeNil)
		})

		Convey("String keys are matched case-insensitively", func() {
			w := risk.WeightsFromMap(map[string]float64{"cai": 0.2, "CDI": 0.2, "thi": 0.2, "Ti": 0.2, "ei": 0.2})
			So(w.Validate(), ShouldBeNil)
		})
	})

	Convey("Thresholds must be strictly increasing inside (0,1)", t, func() {
		bad := []risk.Thresholds{
			{Yellow: 0.6, Orange: 0.4, Red: 0.75},
			{Yellow: 0.4, Orange: 0.4, Red: 0.75},
			{Yellow: 0, Orange: 0.6, Red: 0.75},
			{Yellow: 0.4, Orange: 0.6, Red: 1},
		}
		for _, th := range bad {
			_, err := risk.NewConfig(risk.WithThresholds(th))
			So(errors.Is(err, risk.ErrInvalidThresholds), ShouldBeTrue)
		}
		_, err := risk.NewConfig(risk.WithThresholds(risk.Thresholds{Yellow: 0.3, Orange: 0.5, Red: 0.9}))
		So(err, ShouldBeNil)
	})

	Convey("Hysteresis tables", t, func() {
		Convey("A zero count is rejected", func() {
			up := risk.DefaultUp()
			up[model.Transition{From: model.Orange, To: model.Red}] = 0
			_, err := risk.NewConfig(risk.WithUpHysteresis(up))
			So(errors.Is(err, risk.ErrInvalidHysteresis), ShouldBeTrue)
		})

		Convey("A downward pair in the up table is rejected", func() {
			up := risk.Hysteresis{{From: model.Red, To: model.Orange}: 2}
			_, err := risk.NewConfig(risk.WithUpHysteresis(up))
			So(errors.Is(err, risk.ErrInvalidHysteresis), ShouldBeTrue)
		})

		Convey("An upward pair in the down table is rejected", func() {
			down := risk.Hysteresis{{From: model.Green, To: model.Red}: 2}
			_, err := risk.NewConfig(risk.WithDownHysteresis(down))
			So(errors.Is(err, risk.ErrInvalidHysteresis), ShouldBeTrue)
		})

		Convey("A level-skipping down pair is rejected under stepwise descent", func() {
			down := risk.DefaultDown()
			down[model.Transition{From: model.Red, To: model.Green}] = 3
			_, err := risk.NewConfig(risk.WithDownHysteresis(down))
			So(errors.Is(err, risk.ErrInvalidHysteresis), ShouldBeTrue)

			_, err = risk.NewConfig(risk.WithDownHysteresis(down), risk.WithStepwiseDescent(false))
			So(err, ShouldBeNil)
		})

		Convey("Tables parse from configuration strings", func() {
			h, err := risk.ParseHysteresis(map[string]int{"green->orange": 3, "Yellow->RED": 1})
			So(err, ShouldBeNil)
			So(h.Required(model.Transition{From: model.Green, To: model.Orange}), ShouldEqual, 3)
			So(h.Required(model.Transition{From: model.Yellow, To: model.Red}), ShouldEqual, 1)
			So(h.StringMap(), ShouldContainKey, "green->orange")

			_, err = risk.ParseHysteresis(map[string]int{"green-orange": 3})
			So(errors.Is(err, risk.ErrInvalidHysteresis), ShouldBeTrue)
		})

		Convey("Absent pairs need a single tick", func() {
			So(risk.DefaultUp().Required(model.Transition{From: model.Green, To: model.Orange}), ShouldEqual, 1)
		})
	})

	Convey("Windows must satisfy 0 <= start < end <= 24", t, func() {
		for _, w := range []risk.Window{{Name: "x", Start: 5, End: 5}, {Name: "y", Start: -1, End: 3}, {Name: "z", Start: 20, End: 25}} {
			_, err := risk.NewConfig(risk.WithWindows([]risk.Window{w}))
			So(errors.Is(err, risk.ErrInvalidWindow), ShouldBeTrue)
		}
		_, err := risk.NewConfig(risk.WithWindows(nil))
		So(err, ShouldBeNil)
	})

	Convey("Alert source must be known", t, func() {
		src, err := risk.ParseAlertSource(" Extended ")
		So(err, ShouldBeNil)
		So(src, ShouldEqual, risk.AlertSourceExtended)

		src, err = risk.ParseAlertSource("")
		So(err, ShouldBeNil)
		So(src, ShouldEqual, risk.AlertSourceComposite)

		_, err = risk.ParseAlertSource("bayesian")
		So(errors.Is(err, risk.ErrInvalidAlertSource), ShouldBeTrue)

		_, err = risk.NewConfig(risk.WithAlertSource("bayesian"))
		So(errors.Is(err, risk.ErrInvalidAlertSource), ShouldBeTrue)
	})
}
