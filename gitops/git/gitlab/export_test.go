package gitlab

// MergeableFromStatusForTest exposes
// mergeableFromStatus.
var MergeableFromStatusForTest = mergeableFromStatus

// NumberRoundTripForTest converts number to a merge
// request IID and back.
func NumberRoundTripForTest(number int) int {
	ref := mergeRequestRef(number)

	return toPullRequest(
		ref.IID, "", "", "", "", "",
	).Number
}
