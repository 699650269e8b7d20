package detail

type Kind int

const (
	Enriched Kind = iota
	Unavailable
)

// Result is what a detail-page fetch produced. Unavailable carries the reason in Err.
type Result struct {
	Kind        Kind
	Description string
	Err         error
}
