// Package merge drives a single source to target promotion on a remote
// repository: it locates or opens the pull request, waits for the remote to
// compute mergeability, retries the merge within a bounded Policy and tags the
// production branch once the merge is confirmed.
//
// All waits go through an injected SleepFunc so tests run with zero delays.
package merge
