// Package gitlab implements git.RemoteRepo on GitLab. Merge requests play the
// role of pull requests: the project-scoped IID is the pull request number and
// the detailed merge status drives mergeability.
package gitlab
