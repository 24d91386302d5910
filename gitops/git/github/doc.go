// Package github implements git.RemoteRepo on GitHub (cloud or enterprise)
// through go-github. Configure with a Config containing the repository owner,
// name, and access token. Set EnterpriseHost for GitHub Enterprise
// installations, or BaseURL to point the client at any API root.
package github
