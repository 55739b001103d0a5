package pipeline

// Progress receives stage updates. Step may be called from several
// goroutines at once.
type Progress interface {
	Stage(name string, total int)
	Step()
	Done()
}

type noProgress struct{}

func (noProgress) Stage(string, int) {}
func (noProgress) Step()             {}
func (noProgress) Done()             {}
