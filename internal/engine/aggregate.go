package engine

// Aggregate derives a RunResult from the finished records of a run. It
// depends only on records, so calling it again yields an equal result.
//
// Terminal steps are those no other record lists as a dependency. Their raw
// outputs, when succeeded, become the final outputs in ascending index order.
// OverallError is set iff a terminal step did not succeed or any record
// carries the cancellation kind.
func Aggregate(records []StepRecord) RunResult {
	depended := make(map[int]bool, len(records))
	for _, rec := range records {
		for _, d := range rec.Dependencies {
			depended[d] = true
		}
	}

	res := RunResult{
		FinalOutputs: []Output{},
		Records:      make([]StepRecord, len(records)),
	}
	copy(res.Records, records)

	var failed []int
	cancelled := false
	for _, rec := range records {
		if rec.Kind == KindCancellationRequested {
			cancelled = true
		}
		if depended[rec.Index] {
			continue
		}
		if rec.Status == StatusSucceeded {
			res.FinalOutputs = append(res.FinalOutputs, Output{
				Index:     rec.Index,
				HandlerID: rec.HandlerID,
				RawOutput: rec.RawOutput,
			})
			continue
		}
		failed = append(failed, rec.Index)
	}

	if cancelled || len(failed) > 0 {
		res.OverallError = &RunError{Failed: failed, Cancelled: cancelled}
	}
	return res
}
