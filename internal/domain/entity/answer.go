package entity

// Answer is the solver's candidate for one quiz page. Answers are never
// reused across links; each question is independent.
type Answer struct {
	Value      string
	Confidence *float64
	Rationale  string
}

// Verdict is the submission outcome read back from the quiz page.
// Invariants: Terminal implies NextURL is empty; !Correct implies !Terminal.
type Verdict struct {
	Correct  bool
	Terminal bool
	NextURL  string
	Message  string
}
