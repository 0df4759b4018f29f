package pipeline

// Observer receives per-batch observability events. Implementations must be
// safe for concurrent use since every partition worker reports to it.
type Observer interface {
	StateChanged(partitionID int, from, to State)
	BatchFinished(report BatchReport)
	FetchFailed(partitionID int, err error)
	CheckpointFailed(partitionID int, err error)
}

type nopObserver struct{}

func (nopObserver) StateChanged(int, State, State) {}
func (nopObserver) BatchFinished(BatchReport) {}
func (nopObserver) FetchFailed(int, error) {}
func (nopObserver) CheckpointFailed(int, error) {}
