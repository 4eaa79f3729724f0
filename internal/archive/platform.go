package archive

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// GitLabCIFile is the pipeline definition GitLab Pages needs.
	GitLabCIFile = ".gitlab-ci.yml"
	// RedirectsFile holds platform-level redirect rules.
	RedirectsFile = "_redirects"
	// HeadersFile holds platform-level header rules.
	HeadersFile = "_headers"
)

type gitlabCI struct {
	Pages gitlabPagesJob `yaml:"pages"`
}

type gitlabPagesJob struct {
	Stage     string          `yaml:"stage"`
	Script    []string        `yaml:"script"`
	Artifacts gitlabArtifacts `yaml:"artifacts"`
	Only      []string        `yaml:"only"`
}

type gitlabArtifacts struct {
	Paths []string `yaml:"paths"`
}

// WriteGitLabCI writes a Pages pipeline that publishes the repository root
// from branch.
func WriteGitLabCI(a Archive, branch string) error {
	if strings.TrimSpace(branch) == "" {
		branch = "master"
	}
	doc := gitlabCI{Pages: gitlabPagesJob{
		Stage: "deploy",
		Script: []string{
			"mkdir .public",
			"cp -r * .public",
			"mv .public public",
		},
		Artifacts: gitlabArtifacts{Paths: []string{"public"}},
		Only:      []string{branch},
	}}
	body, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal gitlab ci: %w", err)
	}
	return a.WriteFile(GitLabCIFile, body)
}

// WritePlatformFiles writes _redirects and _headers when rules are given.
// Each rule is written as one line.
func WritePlatformFiles(a Archive, redirects, headers []string) error {
	if body := joinLines(redirects); body != "" {
		if err := a.WriteFile(RedirectsFile, []byte(body)); err != nil {
			return err
		}
	}
	if body := joinLines(headers); body != "" {
		if err := a.WriteFile(HeadersFile, []byte(body)); err != nil {
			return err
		}
	}
	return nil
}

func joinLines(lines []string) string {
	var b strings.Builder
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}
