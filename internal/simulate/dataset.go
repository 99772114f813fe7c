package simulate

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/crowdews/internal/domain/model"
	"github.com/okian/crowdews/internal/domain/risk"
)

// Columns is the header of exported datasets.
var Columns = []string{
	"timestamp", "phase", "temp_c", "rh", "THI_raw", "THI",
	"density_p_m2", "speed_mps", "speed_var", "push_rate", "shout_rate", "near_falls",
	"CAI", "CDI", "TI", "EI", "ATI", "SNI", "PCI", "BI", "Risk", "RiskExtended", "Alert",
}

// Evaluator runs readings of a single zone through the model in order.
type Evaluator struct {
	calc   *risk.Calculator
	engine *risk.Engine
	source risk.AlertSource
}

// NewEvaluator creates an evaluator with a fresh engine at green.
func NewEvaluator(cfg risk.Config) *Evaluator {
	return &Evaluator{
		calc:   risk.NewCalculator(cfg),
		engine: risk.NewEngine(cfg),
		source: cfg.AlertSource(),
	}
}

// Evaluate scores r and steps the engine.
func (e *Evaluator) Evaluate(r *model.SignalReading) model.Record {
	a := e.calc.Assess(r)
	prev := e.engine.Level()
	e.engine.Step(a.Risk(e.source))
	return a.Record(uuid.NewString(), r, e.source, prev, e.engine.State())
}

// Dataset generates n consecutive readings with g and evaluates them.
func Dataset(g *Generator, cfg risk.Config, n int) []model.Record {
	ev := NewEvaluator(cfg)
	out := make([]model.Record, 0, n)
	for range n {
		r := g.Next()
		out = append(out, ev.Evaluate(&r))
	}
	return out
}

// Distribution counts records per alert level.
func Distribution(recs []model.Record) map[model.Level]int {
	out := make(map[model.Level]int, len(model.Levels()))
	for i := range recs {
		out[recs[i].Alert]++
	}
	return out
}

// WriteCSV writes recs with the dataset header. Values are rounded the way
// the published datasets are.
func WriteCSV(w io.Writer, recs []model.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range recs {
		if err := cw.Write(row(&recs[i])); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func row(r *model.Record) []string {
	return []string{
		r.Timestamp.Format(time.DateTime),
		r.Phase,
		f(r.TempC, 2), f(r.RH, 1), f(r.THIRaw, 2), f(r.THI, 3),
		f(r.Density, 2), f(r.Speed, 2), f(r.SpeedVariance, 3),
		f(r.PushRate, 2), f(r.ShoutRate, 2), f(r.NearFalls, 2),
		f(r.CAI, 3), f(r.CDI, 3), f(r.TI, 3), f(r.EI, 3),
		f(r.ATI, 3), f(r.SNI, 3), f(r.PCI, 3), f(r.BI, 3),
		f(r.Risk, 3), f(r.RiskExtended, 3),
		r.Alert.String(),
	}
}

func f(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
