package prtext

import (
	"fmt"
	"time"

	"github.com/valyala/fasttemplate"
)

// TimestampLayout formats the {timestamp} placeholder
// of release branch names.
const TimestampLayout = "2006.01.02.150405"

// Templates holds the fasttemplate sources used to
// render promotion text. Placeholders are written
// {name}; unknown placeholders are kept as-is.
type Templates struct {
	// PullRequestTitle accepts {source}, {target} and
	// {kind}.
	PullRequestTitle string
	// ReleaseTitle accepts {branch}.
	ReleaseTitle string
	// ReleaseBranch accepts {timestamp}.
	ReleaseBranch string
}

// DefaultTemplates returns the stock templates.
func DefaultTemplates() Templates {
	return Templates{
		PullRequestTitle: "Auto PR: {source} → {target}",
		ReleaseTitle:     "Automated Release {branch}",
		ReleaseBranch:    "release/{timestamp}",
	}
}

// Renderer renders promotion text from parsed
// templates. It is safe for concurrent use.
type Renderer struct {
	prTitle       *fasttemplate.Template
	releaseTitle  *fasttemplate.Template
	releaseBranch *fasttemplate.Template
}

// New parses t. Empty templates fall back to their
// default.
func New(t Templates) (*Renderer, error) {
	const errCtx = "parsing text templates"

	def := DefaultTemplates()

	prTitle, err := parse(t.PullRequestTitle, def.PullRequestTitle)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: pull request title: %w", errCtx, err,
		)
	}

	releaseTitle, err := parse(t.ReleaseTitle, def.ReleaseTitle)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: release title: %w", errCtx, err,
		)
	}

	releaseBranch, err := parse(t.ReleaseBranch, def.ReleaseBranch)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: release branch: %w", errCtx, err,
		)
	}

	return &Renderer{
		prTitle:       prTitle,
		releaseTitle:  releaseTitle,
		releaseBranch: releaseBranch,
	}, nil
}

// Default returns a Renderer over DefaultTemplates.
func Default() *Renderer {
	r, err := New(DefaultTemplates())
	if err != nil {
		panic(err)
	}

	return r
}

func parse(src, fallback string) (*fasttemplate.Template, error) {
	if src == "" {
		src = fallback
	}

	return fasttemplate.NewTemplate(src, "{", "}")
}

// PullRequestTitle renders the title of a promotion
// pull request.
func (r *Renderer) PullRequestTitle(
	source string,
	target string,
	kind string,
) string {
	return r.prTitle.ExecuteStringStd(map[string]interface{}{
		"source": source,
		"target": target,
		"kind":   kind,
	})
}

// ReleaseTitle renders the title of the pull request
// opened for a freshly cut release branch.
func (r *Renderer) ReleaseTitle(branch string) string {
	return r.releaseTitle.ExecuteStringStd(
		map[string]interface{}{"branch": branch},
	)
}

// ReleaseBranch renders the name of a release branch
// cut at now, expressed in UTC.
func (r *Renderer) ReleaseBranch(now time.Time) string {
	return r.releaseBranch.ExecuteStringStd(
		map[string]interface{}{
			"timestamp": now.UTC().Format(TimestampLayout),
		},
	)
}
