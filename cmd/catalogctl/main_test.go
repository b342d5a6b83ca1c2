package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CATALOG_PATH", "")
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestResolve(t *testing.T) {
	out, err := execute(t, "resolve", "Customer")
	require.NoError(t, err)
	assert.Contains(t, out, "tier: known")
	assert.Contains(t, out, "API_BUSINESS_PARTNER/A_Customer")

	out, err = execute(t, "resolve", "nothing", "like", "this")
	require.NoError(t, err)
	assert.Contains(t, out, `No services found for "nothing like this"`)
}

func TestMapField(t *testing.T) {
	out, err := execute(t, "map-field", "API_GLACCOUNTLINEITEM", "GLAccountLineItem", "GL", "Account")
	require.NoError(t, err)
	assert.Equal(t, "GLAccount\n", out)

	out, err = execute(t, "map-field", "API_GLACCOUNTLINEITEM", "GLAccountLineItem", "Whatever")
	require.NoError(t, err)
	assert.Contains(t, out, "no mapping")
}

func TestParams(t *testing.T) {
	out, err := execute(t, "params", "API_CUSTOMER_RETURNS_DELIVERY_SRV")
	require.NoError(t, err)
	assert.Contains(t, out, "mandatory: CustomerID")
	assert.Contains(t, out, "pattern:   function_import")

	out, err = execute(t, "params", "API_BUSINESS_PARTNER")
	require.NoError(t, err)
	assert.Contains(t, out, "has no mandatory filters")
}

func TestValidate(t *testing.T) {
	out, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "catalog OK")

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
services:
  - name: API_BUSINESS_PARTNER
    entities: [A_Customer]
knownEntities:
  - {name: Supplier, service: API_MISSING, entity: A_Supplier}
`), 0o644))

	out, err = execute(t, "validate", "--catalog", path)
	require.Error(t, err)
	assert.Contains(t, out, "known entity Supplier references unknown service API_MISSING")
}
