package flows

// Deps groups flow dependency sets. The root engine builds this once and
// delegates each request to the matching Run* function.
type Deps struct {
	Login     LoginDeps
	Lifecycle LifecycleDeps
	StepUp    StepUpDeps
}
