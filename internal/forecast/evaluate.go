package forecast

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"StockCast/internal/domain/models"
)

// mapeEps guards the percentage error against zero actuals.
const mapeEps = 2.220446049250313e-16

// Scores are the three error measures in price units; MAPE is a percentage.
type Scores struct {
	RMSE float64
	MAE  float64
	MAPE float64
}

// Evaluate compares predictions against actuals.
func Evaluate(actual, predicted []float64) (Scores, error) {
	if len(actual) == 0 {
		return Scores{}, fmt.Errorf("evaluate: %w: no samples", models.ErrInsufficientData)
	}
	if len(actual) != len(predicted) {
		return Scores{}, fmt.Errorf("evaluate: %d actuals but %d predictions", len(actual), len(predicted))
	}
	diff := make([]float64, len(actual))
	floats.SubTo(diff, actual, predicted)

	n := float64(len(actual))
	var sq, abs, pct float64
	for i, d := range diff {
		sq += d * d
		abs += math.Abs(d)
		pct += math.Abs(d) / math.Max(math.Abs(actual[i]), mapeEps)
	}
	return Scores{
		RMSE: math.Sqrt(sq / n),
		MAE:  abs / n,
		MAPE: pct / n * 100,
	}, nil
}

// Rank ranks every metric ascending (ties share the average position), averages
// the three ranks and sorts ascending. The first entry is the best model.
func Rank(entries []models.Metrics) []models.RankedModel {
	if len(entries) == 0 {
		return nil
	}
	pick := func(f func(models.Metrics) float64) []float64 {
		v := make([]float64, len(entries))
		for i, e := range entries {
			v[i] = f(e)
		}
		return averageRanks(v)
	}
	rmse := pick(func(m models.Metrics) float64 { return m.RMSE })
	mae := pick(func(m models.Metrics) float64 { return m.MAE })
	mape := pick(func(m models.Metrics) float64 { return m.MAPE })

	out := make([]models.RankedModel, len(entries))
	for i, e := range entries {
		out[i] = models.RankedModel{
			Model:    e.Model,
			Metrics:  e,
			RMSERank: rmse[i],
			MAERank:  mae[i],
			MAPERank: mape[i],
			AvgRank:  (rmse[i] + mae[i] + mape[i]) / 3,
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AvgRank < out[j].AvgRank })
	return out
}

// averageRanks returns 1-based ranks where equal values share their mean rank.
func averageRanks(v []float64) []float64 {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return v[idx[a]] < v[idx[b]] })

	ranks := make([]float64, len(v))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && v[idx[j+1]] == v[idx[i]] {
			j++
		}
		r := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = r
		}
		i = j + 1
	}
	return ranks
}

// BestVsWorst reports how much worse the last ranked model is than the first,
// per metric, in percent of the best value. Nil with fewer than two models.
func BestVsWorst(ranked []models.RankedModel) *models.MetricDiff {
	if len(ranked) < 2 {
		return nil
	}
	best, worst := ranked[0].Metrics, ranked[len(ranked)-1].Metrics
	pct := func(b, w float64) float64 {
		if b == 0 {
			return 0
		}
		return (w - b) / b * 100
	}
	return &models.MetricDiff{
		RMSE: pct(best.RMSE, worst.RMSE),
		MAE:  pct(best.MAE, worst.MAE),
		MAPE: pct(best.MAPE, worst.MAPE),
	}
}
