// Package promote sequences branch promotions. A Workflow maps each promotion
// Kind onto one or two merge stages and gates the second stage on the first;
// CutRelease opens a new release branch and its pull request to production.
package promote
