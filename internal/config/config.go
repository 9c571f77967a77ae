// Package config loads and validates pipeline definition files.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads a pipeline definition from the given path. Environment variables
// referenced as ${VAR} in the file are expanded after .env loading, so secrets
// never need to live in the definition itself.
func Load(path string) (*Pipeline, error) {
	// Load .env / .env.local if present; existing process env wins.
	loadEnvFiles()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("pipeline definition not found: %s", path)
	}

	data, err := os.ReadFile(path) // #nosec G304 - user supplied config path
	if err != nil {
		return nil, fmt.Errorf("read pipeline definition: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var p Pipeline
	if err := yaml.Unmarshal([]byte(expanded), &p); err != nil {
		return nil, fmt.Errorf("unmarshal pipeline definition: %w", err)
	}

	applyDefaults(&p)

	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// loadEnvFiles loads the first .env file found. Process environment is never
// overridden, matching godotenv.Load semantics.
func loadEnvFiles() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err == nil {
			if err := godotenv.Load(name); err == nil {
				return
			}
		}
	}
}

// applyDefaults fills omitted fields with their documented defaults.
func applyDefaults(p *Pipeline) {
	if p.Name == "" {
		p.Name = "docs"
	}
	if p.MainBranch == "" {
		p.MainBranch = "main"
	}
	for i := range p.Jobs {
		job := &p.Jobs[i]
		for j := range job.Steps {
			st := &job.Steps[j]
			if st.Uses == StepBuildDocs && st.With == nil {
				st.With = map[string]string{}
			}
		}
	}
}

// Init writes a commented example pipeline definition.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("pipeline definition already exists: %s (use --force to overwrite)", path)
	}
	return os.WriteFile(path, []byte(examplePipeline), 0o600)
}

const examplePipeline = `# docspipe pipeline definition
name: docs
main_branch: main

triggers:
  push:
    branches: [main]
  pull_request: true
  dispatch: true

env:
  DOCS_SOURCE: docs/source
  DOCS_OUTPUT: docs/build/html

# Env var names injected into every step and masked in logs.
secrets:
  - DOCS_DEPLOY_TOKEN

jobs:
  - name: build_docs
    matrix:
      vars:
        os: [linux]
        python: ["3.9"]
    steps:
      - name: Checkout
        uses: checkout
      - name: Install dependencies
        run: ./scripts/install_deps.sh
      - name: Smoke test imports
        run: python -c "import mypkg"
      - name: Build documentation
        uses: build-docs
        with:
          source: docs/source
          output: docs/build/html
      - name: Upload docs artifact
        uses: upload-artifact
        with:
          name: html-docs
          path: docs/build/html
      - name: Deploy to hosting branch
        if: event == push && branch == main
        uses: deploy-pages
        with:
          branch: gh-pages
          path: docs/build/html
          token_env: DOCS_DEPLOY_TOKEN

  - name: doc_preview
    needs: [build_docs]
    if: event == pull_request
    steps:
      - name: Download docs artifact
        uses: download-artifact
        with:
          name: html-docs
          path: docs/build/html
      - name: Add noindex meta tags
        uses: noindex
        with:
          path: docs/build/html
      - name: Publish preview
        uses: preview-bucket
        with:
          path: docs/build/html
          prefix: previews/docs
`
