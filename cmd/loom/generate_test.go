package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const generateProject = `
module: acme/server

packages:
  - import_path: github.com/acme/app
    id: acme-app
    version: 1.0.0

functions:
  - path: github.com/acme/app.BuildFoo
    output: github.com/acme/app.Foo
  - path: github.com/acme/app.Handle
    inputs: ["github.com/acme/app.Foo"]
    output: github.com/alexisbeaulieu97/loom/runtime.Response

blueprint:
  components:
    - kind: constructor
      callable: github.com/acme/app.BuildFoo
      lifecycle: request_scoped
    - kind: route
      methods: [GET]
      path: /foo
      handler: github.com/acme/app.Handle
`

const conflictingProject = `
module: acme/server

packages:
  - import_path: github.com/acme/app
    id: acme-app
    version: 1.0.0

functions:
  - path: github.com/acme/app.HandleA
    output: github.com/alexisbeaulieu97/loom/runtime.Response
  - path: github.com/acme/app.HandleB
    output: github.com/alexisbeaulieu97/loom/runtime.Response

blueprint:
  components:
    - kind: route
      methods: [GET]
      path: /x
      handler: github.com/acme/app.HandleA
    - kind: route
      methods: [GET]
      path: /x
      handler: github.com/acme/app.HandleB
`

func runGenerate(t *testing.T, project string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	projectPath := filepath.Join(dir, "loom.yaml")
	require.NoError(t, os.WriteFile(projectPath, []byte(project), 0644))
	outputDir := filepath.Join(dir, "generated")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"generate", "-b", projectPath, "-o", outputDir})
	return outputDir, cmd.Execute()
}

func TestGenerateWritesCrate(t *testing.T) {
	outputDir, err := runGenerate(t, generateProject)
	require.NoError(t, err)

	source, err := os.ReadFile(filepath.Join(outputDir, "server.go"))
	require.NoError(t, err)
	assert.Contains(t, string(source), "package server")
	assert.Contains(t, string(source), "func RouteRequest(")
	assert.Contains(t, string(source), "BuildFoo()")

	manifest, err := os.ReadFile(filepath.Join(outputDir, "go.mod"))
	require.NoError(t, err)
	assert.Contains(t, string(manifest), "module acme/server")
	assert.Contains(t, string(manifest), "github.com/acme/app v1.0.0")
}

func TestGenerateFailsOnDiagnostics(t *testing.T) {
	outputDir, err := runGenerate(t, conflictingProject)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(outputDir, "server.go"))
	assert.True(t, os.IsNotExist(statErr), "no source file is written when compilation fails")
}

func TestInspectPrintsRoutes(t *testing.T) {
	dir := t.TempDir()
	projectPath := filepath.Join(dir, "loom.yaml")
	require.NoError(t, os.WriteFile(projectPath, []byte(generateProject), 0644))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"inspect", "-b", projectPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "/foo")
	assert.Contains(t, out.String(), "github.com/acme/app.Handle")
	assert.Contains(t, out.String(), "PIPELINES")
}
