package light

// nextVerificationHeight picks the pivot height for bisection between a
// trusted height and a target height that could not be verified in one
// skipping step.
//
// The midpoint is computed with floor division, so for any target at least
// two heights above the trusted one the pivot lands strictly between them.
// Halving the interval keeps the number of verification steps logarithmic in
// the height difference, whatever the rate of validator set change.
func nextVerificationHeight(trustedHeight, targetHeight int64) int64 {
	return trustedHeight + (targetHeight-trustedHeight)/2
}
