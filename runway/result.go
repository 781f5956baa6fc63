package runway

import "fmt"

// Status is the overall outcome of a run.
type Status int

const (
	StatusFailed Status = iota
	StatusNothingNew
	StatusPosted
	StatusPartial
	StatusBusy
	// StatusUndelivered means new images were recorded but none could be
	// posted. They will not be offered again.
	StatusUndelivered
)

func (s Status) String() string {
	switch s {
	case StatusNothingNew:
		return "nothing_new"
	case StatusPosted:
		return "posted"
	case StatusPartial:
		return "partial"
	case StatusBusy:
		return "busy"
	case StatusUndelivered:
		return "undelivered"
	default:
		return "failed"
	}
}

// Result is the outcome of a single run for one season.
type Result struct {
	Status  Status
	Season  int
	New     int
	Posted  int
	Failed  int
	Threads []ThreadReport
	Err     error
}

// Message renders the result as the short text shown to the user.
func (r Result) Message() string {
	switch r.Status {
	case StatusNothingNew:
		return fmt.Sprintf("No new runway images for Season %d.", r.Season)
	case StatusPosted:
		return fmt.Sprintf("Posted %d new %s for Season %d (grouped by runway theme).",
			r.Posted, plural(r.Posted, "image", "images"), r.Season)
	case StatusPartial:
		return fmt.Sprintf("Posted %d of %d new images for Season %d (grouped by runway theme); %d failed.",
			r.Posted, r.New, r.Season, r.Failed)
	case StatusBusy:
		return fmt.Sprintf("Already checking Season %d, try again in a moment.", r.Season)
	case StatusUndelivered:
		return fmt.Sprintf("Found %d new %s for Season %d but couldn't post %s; %s won't be offered again.",
			r.New, plural(r.New, "image", "images"), r.Season, plural(r.New, "it", "them"), plural(r.New, "it", "they"))
	default:
		return fmt.Sprintf("Couldn't fetch runway images for Season %d. Please try again later.", r.Season)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
