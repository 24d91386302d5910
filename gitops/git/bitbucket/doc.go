// Package bitbucket implements git.RemoteRepo on Bitbucket Server (Data
// Center) through its REST API 1.0, authenticating with basic auth.
package bitbucket
