package domain

// RunReport summarizes one pipeline run for callers and logs.
type RunReport struct {
	SpecID         string           `json:"spec_id"`
	RunID          string           `json:"run_id"`
	Status         ProcessingStatus `json:"processing_status"`
	SketchStatus   SketchStatus     `json:"sketch_generation_status"`
	AnalysisMode   AnalysisMode     `json:"analysis_mode"`
	FieldsApplied  int              `json:"fields_applied"`
	FieldsRejected int              `json:"fields_rejected"`
	ImagesFound    int              `json:"images_found"`
	Error          string           `json:"error,omitempty"`
}
