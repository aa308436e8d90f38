package processor

// Kind is the result category of one page.
type Kind string

// Page result categories.
const (
	// KindRecorded means the page was transcribed and stored.
	KindRecorded Kind = "recorded"
	// KindClassifiedError means the page was stored as an error page.
	KindClassifiedError Kind = "classified_error"
	// KindUnexpected means nothing was stored; the page is retried next run.
	KindUnexpected Kind = "unexpected"
	// KindSkipped means another run already stored the page.
	KindSkipped Kind = "skipped"
)

// PageOutcome is what happened to one page.
type PageOutcome struct {
	Page  int
	Kind  Kind
	Class string
	Err   error
}

// Summary totals the page outcomes of one document.
type Summary struct {
	Missing         int
	Recorded        int
	ClassifiedError int
	Unexpected      int
	Skipped         int
	WithoutImage    int
}

func (s *Summary) add(o PageOutcome) {
	switch o.Kind {
	case KindRecorded:
		s.Recorded++
	case KindClassifiedError:
		s.ClassifiedError++
	case KindSkipped:
		s.Skipped++
	default:
		s.Unexpected++
	}
}

// Stats totals a processor run.
type Stats struct {
	Documents       int
	Complete        int
	Failed          int
	PagesRecorded   int
	PagesErrored    int
	PagesUnexpected int
}

// MissingPages returns the page numbers in 1..declared that are not in recorded, ascending.
func MissingPages(declared int, recorded []int) []int {
	if declared <= 0 {
		return nil
	}
	have := make(map[int]struct{}, len(recorded))
	for _, n := range recorded {
		have[n] = struct{}{}
	}
	var missing []int
	for n := 1; n <= declared; n++ {
		if _, ok := have[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}
