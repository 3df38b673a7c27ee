package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `
resources:
  - kind: aws.vpc
    name: main
    attrs:
      cidrBlock: 10.0.0.0/16
      tags:
        env: prod
  - kind: aws.subnet
    name: a
    attrs:
      vpcId: ref://aws.vpc/main/vpcId
      cidrBlock: 10.0.1.0/24
    dependsOn:
      - aws.vpc.main
  - kind: null.resource
    name: gate
    before:
      - aws.subnet
`

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)
	require.Len(t, doc.Resources, 3)

	vpc := doc.Resources[0]
	assert.Equal(t, "aws.vpc", vpc.Kind)
	assert.Equal(t, "main", vpc.Name)
	assert.Equal(t, "10.0.0.0/16", vpc.Attrs["cidrBlock"])
	tags, ok := vpc.Attrs["tags"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "prod", tags["env"])

	subnet := doc.Resources[1]
	assert.Equal(t, []string{"aws.vpc.main"}, subnet.DependsOn)
	assert.Equal(t, "ref://aws.vpc/main/vpcId", subnet.Attrs["vpcId"])

	gate := doc.Resources[2]
	assert.Equal(t, []string{"aws.subnet"}, gate.Before)
}

func TestParse_MissingKind(t *testing.T) {
	_, err := Parse([]byte("resources:\n  - name: nameless\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kind and name are required")
}

func TestParse_DuplicateIdentity(t *testing.T) {
	_, err := Parse([]byte(`
resources:
  - kind: aws.vpc
    name: main
  - kind: aws.vpc
    name: main
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate resource identity aws.vpc.main")
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("resources: [unclosed"))
	assert.Error(t, err)
}

func TestParse_EmptyDocument(t *testing.T) {
	doc, err := Parse([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, doc.Resources)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gantry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, doc.Resources, 3)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
