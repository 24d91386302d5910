package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"

	"github.com/byte4ever/branch_promoter/gitops/merge"
	"github.com/byte4ever/branch_promoter/gitops/promote"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// printer renders command results for humans or as
// JSON.
type printer struct {
	out  io.Writer
	json bool

	green  func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
	red    func(a ...interface{}) string
}

func newPrinter(out io.Writer, format string) (*printer, error) {
	switch format {
	case outputText, "":
	case outputJSON:
	default:
		return nil, fmt.Errorf(
			"unknown output format %q (want text or json)",
			format,
		)
	}

	return &printer{
		out:    out,
		json:   format == outputJSON,
		green:  color.New(color.FgGreen, color.Bold).SprintFunc(),
		yellow: color.New(color.FgYellow).SprintFunc(),
		cyan:   color.New(color.FgCyan).SprintFunc(),
		red:    color.New(color.FgRed, color.Bold).SprintFunc(),
	}, nil
}

type stageView struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Succeeded   bool   `json:"succeeded"`
	Reason      string `json:"reason"`
	PullRequest int    `json:"pull_request,omitempty"`
	URL         string `json:"url,omitempty"`
	Created     bool   `json:"created"`
	Attempts    int    `json:"attempts"`
	Tag         string `json:"tag,omitempty"`
	Tagged      bool   `json:"tagged"`
	TagFailed   bool   `json:"tag_failed"`
	Error       string `json:"error,omitempty"`
}

type resultView struct {
	Kind      string      `json:"kind"`
	Source    string      `json:"source"`
	Succeeded bool        `json:"succeeded"`
	Stages    []stageView `json:"stages"`
	Error     string      `json:"error,omitempty"`
}

type releaseView struct {
	Branch      string `json:"branch,omitempty"`
	Commit      string `json:"commit,omitempty"`
	PullRequest int    `json:"pull_request,omitempty"`
	URL         string `json:"url,omitempty"`
	Version     string `json:"version,omitempty"`
	Succeeded   bool   `json:"succeeded"`
	Error       string `json:"error,omitempty"`
}

func errorText(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}

func newStageView(s promote.StageResult) stageView {
	o := s.Outcome
	v := stageView{
		Source:    s.Source,
		Target:    s.Target,
		Succeeded: o.Succeeded,
		Reason:    string(o.Reason),
		Created:   o.Created,
		Attempts:  o.Attempts,
		Tag:       o.Tag,
		Tagged:    o.Tagged,
		TagFailed: o.TagFailed,
		Error:     errorText(o.Err),
	}

	if o.PullRequest != nil {
		v.PullRequest = o.PullRequest.Number
		v.URL = o.PullRequest.URL
	}

	return v
}

func newResultView(res promote.Result) resultView {
	v := resultView{
		Kind:      string(res.Request.Kind),
		Source:    res.Request.Source,
		Succeeded: res.Succeeded,
		Stages:    make([]stageView, 0, len(res.Stages)),
		Error:     errorText(res.Err),
	}

	for _, s := range res.Stages {
		v.Stages = append(v.Stages, newStageView(s))
	}

	return v
}

func (p *printer) encode(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func (p *printer) result(res promote.Result) error {
	v := newResultView(res)

	if p.json {
		return p.encode(v)
	}

	for _, s := range v.Stages {
		p.stage(s)
	}

	if v.Error != "" {
		fmt.Fprintf(p.out, "%s %s\n", p.red("error:"), v.Error)
	}

	if v.Succeeded {
		fmt.Fprintf(
			p.out, "%s %s %s\n",
			p.green("✔"), v.Kind, p.cyan(v.Source),
		)
	} else {
		fmt.Fprintf(
			p.out, "%s %s %s\n",
			p.red("✘"), v.Kind, p.cyan(v.Source),
		)
	}

	return nil
}

func (p *printer) stage(s stageView) {
	mark := p.green("merged")
	if !s.Succeeded {
		mark = p.red(s.Reason)
	}

	fmt.Fprintf(
		p.out, "%s → %s: %s",
		p.cyan(s.Source), p.cyan(s.Target), mark,
	)

	if s.PullRequest != 0 {
		fmt.Fprintf(p.out, " (#%d, %d attempt(s))", s.PullRequest, s.Attempts)
	}

	fmt.Fprintln(p.out)

	switch {
	case s.Tagged:
		fmt.Fprintf(p.out, "  tagged %s\n", p.green(s.Tag))
	case s.TagFailed:
		fmt.Fprintf(p.out, "  %s %s\n", p.yellow("tag failed:"), s.Error)
	case !s.Succeeded && s.Error != "" &&
		s.Reason != string(merge.ReasonMergeExhausted):
		fmt.Fprintf(p.out, "  %s\n", s.Error)
	}
}

func (p *printer) release(
	res promote.ReleaseResult,
	version string,
	err error,
) error {
	v := releaseView{
		Branch:    res.Branch,
		Commit:    res.Commit,
		Version:   version,
		Succeeded: err == nil,
		Error:     errorText(err),
	}

	if res.PullRequest != nil {
		v.PullRequest = res.PullRequest.Number
		v.URL = res.PullRequest.URL
	}

	if p.json {
		return p.encode(v)
	}

	if err != nil {
		fmt.Fprintf(p.out, "%s %s\n", p.red("✘"), v.Error)

		return nil
	}

	fmt.Fprintf(
		p.out, "%s created %s at %s\n",
		p.green("✔"), p.cyan(v.Branch), v.Commit,
	)

	if v.PullRequest != 0 {
		fmt.Fprintf(p.out, "  pull request #%d %s\n", v.PullRequest, v.URL)
	}

	if v.Version != "" {
		fmt.Fprintf(
			p.out, "  %s will be tagged once promoted\n",
			p.yellow(v.Version),
		)
	}

	return nil
}
