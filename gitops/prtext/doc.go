// Package prtext renders pull request titles, release branch names and pull
// request bodies. Bodies carry a promotion metadata block between marker
// lines so later stages can recover what an earlier stage intended, such as
// the tag version of a cut release.
package prtext
