package ui

// quietPresenter waits for the job and produces no output.
type quietPresenter struct{}

func (quietPresenter) Run(src Source) error {
	<-src.Done
	return nil
}
