// Package git defines the remote repository capability used by branch
// promotions, independent of the hosting platform.
//
// The RemoteRepo interface covers pull-request lookup, creation and merging,
// branch commit resolution, and branch/tag creation. Implementations exist for
// GitHub, GitLab, and Bitbucket Server in sub-packages, plus an in-memory fake
// for tests. RemoteRepoFuncs is a convenience adapter that lets plain
// functions satisfy the interface.
//
// Failures of the transport itself are reported as *RemoteError; a refused
// pull-request creation wraps ErrCreateFailed.
package git
