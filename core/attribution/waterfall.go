package attribution

import "github.com/kilianp07/salesintel/core/model"

// Measure tells a chart how to draw a waterfall bar.
type Measure string

const (
	Absolute Measure = "absolute"
	Relative Measure = "relative"
	Total    Measure = "total"
)

// Bar is one step of a waterfall chart.
type Bar struct {
	Label   string  `json:"label"`
	Value   float64 `json:"value"`
	Measure Measure `json:"measure"`
}

// Waterfall breaks a prediction into baseline, top drivers, the remaining
// features and the predicted total.
type Waterfall struct {
	Baseline  float64  `json:"baseline"`
	Predicted float64  `json:"predicted"`
	Drivers   []Driver `json:"drivers"`
	AllElse   float64  `json:"all_else"`
	Bars      []Bar    `json:"bars"`
}

// BuildWaterfall builds the chart data for one prediction.
func BuildWaterfall(names []string, contributions, featureValues []float64, baseline, predicted float64, k int) Waterfall {
	drivers := TopDrivers(names, contributions, featureValues, k)
	var total, top float64
	for _, c := range contributions {
		total += c
	}
	for _, d := range drivers {
		top += d.Contribution
	}
	w := Waterfall{Baseline: baseline, Predicted: predicted, Drivers: drivers, AllElse: total - top}
	w.Bars = append(w.Bars, Bar{Label: "Baseline", Value: baseline, Measure: Absolute})
	for _, d := range drivers {
		w.Bars = append(w.Bars, Bar{Label: model.Title(d.Feature), Value: d.Contribution, Measure: Relative})
	}
	w.Bars = append(w.Bars,
		Bar{Label: "All Other Features", Value: w.AllElse, Measure: Relative},
		Bar{Label: "Predicted Value", Value: predicted, Measure: Total},
	)
	return w
}
