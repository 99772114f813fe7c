package risk_test

import (
	"math"
	"testing"

	"github.com/okian/crowdews/internal/domain/risk"
	. "github.com/smartystreets/goconvey/convey"
)

const eps = 1e-9

func TestClamp01(t *testing.T) {
	Convey("Clamp01 bounds values to [0,1]", t, func() {
		So(risk.Clamp01(-3), ShouldEqual, 0)
		So(risk.Clamp01(0.42), ShouldEqual, 0.42)
		So(risk.Clamp01(7), ShouldEqual, 1)
		So(risk.Clamp01(math.NaN()), ShouldEqual, 0)
		So(risk.Clamp01(math.Inf(1)), ShouldEqual, 1)

		Convey("and is idempotent", func() {
			for _, x := range []float64{-1, 0, 0.3, 1, 2, math.NaN()} {
				once := risk.Clamp01(x)
				So(risk.Clamp01(once), ShouldEqual, once)
			}
		})
	})
}

func TestTHI(t *testing.T) {
	Convey("Given a warm humid reading", t, func() {
		raw := risk.THIRaw(30, 50)

		So(raw, ShouldAlmostEqual, 25.7375, eps)
		So(risk.NormalizeTHI(raw), ShouldAlmostEqual, 0.37375, eps)
	})

	Convey("NormalizeTHI saturates at both ends", t, func() {
		So(risk.NormalizeTHI(10), ShouldEqual, 0)
		So(risk.NormalizeTHI(22), ShouldEqual, 0)
		So(risk.NormalizeTHI(32), ShouldEqual, 1)
		So(risk.NormalizeTHI(45), ShouldEqual, 1)
	})

	Convey("Out-of-domain temperature and humidity still normalize into range", t, func() {
		for _, tc := range [][2]float64{{-40, 0}, {60, 150}, {25, -20}} {
			n := risk.NormalizeTHI(risk.THIRaw(tc[0], tc[1]))
			So(n, ShouldBeBetweenOrEqual, 0, 1)
		}
	})
}

func TestNormalizeDensity(t *testing.T) {
	Convey("Density bands are continuous at their edges", t, func() {
		So(risk.NormalizeDensity(0), ShouldEqual, 0)
		So(risk.NormalizeDensity(1), ShouldAlmostEqual, 0.15, eps)
		So(risk.NormalizeDensity(1.5), ShouldAlmostEqual, 0.275, eps)
		So(risk.NormalizeDensity(2), ShouldAlmostEqual, 0.40, eps)
		So(risk.NormalizeDensity(3.5), ShouldAlmostEqual, 0.75, eps)
		So(risk.NormalizeDensity(5), ShouldAlmostEqual, 1.0, eps)
		So(risk.NormalizeDensity(9), ShouldAlmostEqual, 1.0, eps)
	})

	Convey("Density is monotone non-decreasing", t, func() {
		prev := risk.NormalizeDensity(0)
		for d := 0.05; d <= 7; d += 0.05 {
			cur := risk.NormalizeDensity(d)
			So(cur, ShouldBeGreaterThanOrEqualTo, prev-eps)
			prev = cur
		}
	})

	Convey("Negative and NaN densities map to zero", t, func() {
		So(risk.NormalizeDensity(-2), ShouldEqual, 0)
		So(risk.NormalizeDensity(math.NaN()), ShouldEqual, 0)
	})
}

func TestNormalizeSpeedAndVariance(t *testing.T) {
	Convey("Slower crowds are riskier", t, func() {
		So(risk.NormalizeSpeed(0), ShouldEqual, 1)
		So(risk.NormalizeSpeed(0.6), ShouldAlmostEqual, 0.5, eps)
		So(risk.NormalizeSpeed(1.2), ShouldEqual, 0)
		So(risk.NormalizeSpeed(3), ShouldEqual, 0)
		So(risk.NormalizeSpeed(-1), ShouldEqual, 1)
	})

	Convey("Speed variance saturates at 0.5", t, func() {
		So(risk.NormalizeSpeedVariance(0.25), ShouldAlmostEqual, 0.5, eps)
		So(risk.NormalizeSpeedVariance(0.5), ShouldEqual, 1)
		So(risk.NormalizeSpeedVariance(2), ShouldEqual, 1)
		So(risk.NormalizeSpeedVariance(-1), ShouldEqual, 0)
	})
}

func TestAnxietyAndIndices(t *testing.T) {
	Convey("Anxiety weights push, shout and near falls", t, func() {
		So(risk.NormalizeAnxiety(0, 0, 0), ShouldEqual, 0)
		So(risk.NormalizeAnxiety(5, 10, 5), ShouldAlmostEqual, 0.5, eps)
		So(risk.NormalizeAnxiety(100, 100, 100), ShouldAlmostEqual, 1, eps)
	})

	Convey("CAI adds a quarter of density risk", t, func() {
		So(risk.CAI(5, 10, 5, 2), ShouldAlmostEqual, 0.5+0.25*0.40, eps)
		So(risk.CAI(100, 100, 100, 5), ShouldEqual, 1)
	})

	Convey("CDI blends density, turbulence and low speed", t, func() {
		So(risk.CDI(2, 0.6, 0.25), ShouldAlmostEqual, 0.5*0.40+0.3*0.5+0.2*0.5, eps)
		So(risk.CDI(0, 1.2, 0), ShouldEqual, 0)
	})
}

func TestTI(t *testing.T) {
	windows := risk.DefaultWindows()

	Convey("Given the default risk windows", t, func() {
		Convey("Hours inside a window score 0.6 plus an optional shoulder", func() {
			So(risk.TI(8, windows), ShouldAlmostEqual, 0.6, eps)
			So(risk.TI(6, windows), ShouldAlmostEqual, 0.6, eps)
			So(risk.TI(4, windows), ShouldAlmostEqual, 0.7, eps)
			So(risk.TI(5, windows), ShouldAlmostEqual, 0.7, eps)
			So(risk.TI(18, windows), ShouldAlmostEqual, 0.7, eps)
		})

		Convey("Windows are half-open", func() {
			So(risk.TI(10, windows), ShouldAlmostEqual, 0.1, eps)
			So(risk.TI(20, windows), ShouldAlmostEqual, 0.1, eps)
		})

		Convey("Hours next to a boundary get the shoulder bump once", func() {
			So(risk.TI(2, windows), ShouldAlmostEqual, 0.2, eps)
			So(risk.TI(11, windows), ShouldAlmostEqual, 0.2, eps)
			So(risk.TI(21, windows), ShouldAlmostEqual, 0.2, eps)
		})

		Convey("Quiet hours score the base", func() {
			So(risk.TI(0, windows), ShouldAlmostEqual, 0.1, eps)
			So(risk.TI(13, windows), ShouldAlmostEqual, 0.1, eps)
		})

		Convey("Every hour stays in range", func() {
			for h := -5; h < 30; h++ {
				So(risk.TI(h, windows), ShouldBeBetweenOrEqual, 0, 1)
			}
		})
	})

	Convey("Overlapping custom windows stack but stay clamped", t, func() {
		ws := []risk.Window{{Name: "a", Start: 0, End: 12}, {Name: "b", Start: 6, End: 12}, {Name: "c", Start: 8, End: 9}}
		So(risk.TI(8, ws), ShouldEqual, 1)
	})
}

func TestEI(t *testing.T) {
	Convey("EI looks phases up case-insensitively", t, func() {
		So(risk.EI("SHAHI_SNAN"), ShouldEqual, 0.9)
		So(risk.EI("shahi_snan"), ShouldEqual, 0.9)
		So(risk.EI("Procession"), ShouldEqual, 0.7)
		So(risk.EI("emergency_situation"), ShouldEqual, 0.95)
		So(risk.EI("normal"), ShouldEqual, 0.15)
	})

	Convey("Unknown labels resolve to the default", t, func() {
		So(risk.EI("unrecognized_phase"), ShouldEqual, 0.2)
		So(risk.EI(""), ShouldEqual, 0.2)
	})

	Convey("Surrounding whitespace is not ignored", t, func() {
		So(risk.EI(" shahi_snan "), ShouldEqual, 0.2)
	})

	Convey("KnownPhases returns a private copy", t, func() {
		phases := risk.KnownPhases()
		So(phases, ShouldContainKey, "festival_peak")
		phases["festival_peak"] = 0
		So(risk.EI("festival_peak"), ShouldEqual, 0.8)
	})
}
