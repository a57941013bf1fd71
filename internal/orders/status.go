package orders

type Status string

const (
	StatusProcessing Status = "Processing"
	StatusFailed     Status = "Failed"
	StatusCancelled  Status = "Cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusProcessing: {StatusCancelled: true, StatusFailed: true},
	StatusFailed:     {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}
