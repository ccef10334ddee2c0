// Package types contains common types used across the application
package types

// Catalog lists the models the prediction service exposes for growth.
type Catalog struct {
	Models  []string `json:"models"`
	Default string   `json:"default"`
}

// ModelMetric is one row of the service's model comparison table.
type ModelMetric struct {
	Model         string  `json:"Model"`
	TrainR2Mean   float64 `json:"Train_R2_mean"`
	TestR2Mean    float64 `json:"Test_R2_mean"`
	TrainRMSEMean float64 `json:"Train_RMSE_mean,omitempty"`
	TestRMSEMean  float64 `json:"Test_RMSE_mean,omitempty"`
}

// Overview combines the catalog with the comparison metrics.
type Overview struct {
	Catalog
	Metrics []ModelMetric `json:"metrics"`
}
