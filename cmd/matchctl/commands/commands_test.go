package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pds-match-service/internal/app"
	"github.com/pds-match-service/internal/domain"
)

type MockRegistryClient struct {
	mock.Mock
}

func (m *MockRegistryClient) Search(ctx context.Context, variant domain.QueryVariant) (domain.RegistrySearchResult, error) {
	args := m.Called(ctx, variant)
	return args.Get(0).(domain.RegistrySearchResult), args.Error(1)
}

func (m *MockRegistryClient) Fetch(ctx context.Context, identifier string) (*domain.PatientRecord, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PatientRecord), args.Error(1)
}

// writeConfig points the version store at a file in a temporary directory.
func writeConfig(t *testing.T) (configPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	configPath = filepath.Join(dir, "config.yaml")

	content := fmt.Sprintf(`version_store:
  backend: file
  path: %s
cache:
  enabled: true
logging:
  level: error
  format: text
`, filepath.Join(dir, "algorithm-version.json"))
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))
	return configPath, dir
}

func runCommand(t *testing.T, opts []app.Option, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand(opts...)

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	stdout, _, err := runCommand(t, nil)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Usage:")
	assert.Contains(t, stdout, "reconcile-file")
}

func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	_, _, err := runCommand(t, nil, "--unknown-flag", "value")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestStrategiesCommand(t *testing.T) {
	stdout, _, err := runCommand(t, nil, "strategies",
		"--family", "Smith", "--birthdate", "1980-01-02", "--gender", "Female", "--postcode", "LS1 6AE")
	require.NoError(t, err)

	var variants []domain.QueryVariant
	require.NoError(t, json.Unmarshal([]byte(stdout), &variants))
	require.Len(t, variants, 4)

	assert.True(t, variants[0].FuzzyMatch)
	assert.Equal(t, "Smith", variants[0].Family)
	assert.Equal(t, "female", variants[0].Gender)
	assert.True(t, variants[1].ExactMatch)
	assert.Empty(t, variants[2].Gender)
	assert.Equal(t, "1980-02-01", variants[3].BirthDate[0].Date)
}

func TestStrategiesCommand_RejectsArguments(t *testing.T) {
	_, _, err := runCommand(t, nil, "strategies", "Smith")
	assert.Error(t, err)
}

func TestVersionCommands(t *testing.T) {
	configPath, _ := writeConfig(t)
	opts := []app.Option{app.WithRegistryClient(new(MockRegistryClient))}

	stdout, stderr, err := runCommand(t, opts, "--config", configPath, "version", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "version:       0")
	assert.Contains(t, stderr, "matchctl version bump")

	stdout, _, err = runCommand(t, opts, "--config", configPath, "version", "bump")
	require.NoError(t, err)
	assert.Contains(t, stdout, "algorithm version 0 -> 1")

	stdout, _, err = runCommand(t, opts, "--config", configPath, "version", "bump")
	require.NoError(t, err)
	assert.Contains(t, stdout, "algorithm version unchanged at 1")

	stdout, stderr, err = runCommand(t, opts, "--config", configPath, "version", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "version:       1")
	assert.NotContains(t, stderr, "matchctl version bump")
}

func TestVersionCommand_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("version_store:\n  backend: etcd\n"), 0o600))

	_, _, err := runCommand(t, nil, "--config", configPath, "version", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

func TestReconcileFileCommand(t *testing.T) {
	configPath, dir := writeConfig(t)

	input := filepath.Join(dir, "patients.csv")
	require.NoError(t, os.WriteFile(input, []byte(strings.Join([]string{
		"identifier,given,family,birthdate",
		"9000000009,Jane,Smith,1980-01-02",
		"9000000017,John,Jones,1975-06-30",
		"1234567890,Ann,Brown,1990-03-04",
		",Bob,Green,1985-07-08",
		"9000000009,Jane,Smyth,1980-01-03",
	}, "\n")+"\n"), 0o600))
	output := filepath.Join(dir, "results.csv")

	registry := new(MockRegistryClient)
	registry.On("Fetch", mock.Anything, "9000000009").Return(&domain.PatientRecord{
		ID:         "9000000009",
		GivenNames: []string{"Jane"},
		FamilyName: "Smith",
		BirthDate:  "1980-01-02",
	}, nil)
	registry.On("Fetch", mock.Anything, "9000000017").Return(nil, domain.ErrRecordNotFound)

	_, stderr, err := runCommand(t, []app.Option{app.WithRegistryClient(registry)},
		"--config", configPath, "reconcile-file", input, "--output", output, "--workers", "2")
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 6)

	assert.True(t, strings.HasPrefix(lines[1], "2,9000000009,NoDifferences,"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "3,9000000017,RecordNotFound,"), lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "4,1234567890,InvalidIdentifier,"), lines[3])
	assert.True(t, strings.HasPrefix(lines[4], "5,,MissingIdentifier,"), lines[4])
	assert.True(t, strings.HasPrefix(lines[5], "6,9000000009,ManyDifferences,,"), lines[5])

	assert.Contains(t, stderr, "reconciled 5 rows")
	assert.Contains(t, stderr, "RecordNotFound")
}

func TestReconcileFileCommand_InvalidHeader(t *testing.T) {
	configPath, dir := writeConfig(t)
	input := filepath.Join(dir, "patients.csv")
	require.NoError(t, os.WriteFile(input, []byte("nhs_number,family\n9000000009,Smith\n"), 0o600))

	_, _, err := runCommand(t, nil, "--config", configPath, "reconcile-file", input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid batch header")
}

func TestReconcileFileCommand_MissingFile(t *testing.T) {
	_, _, err := runCommand(t, nil, "reconcile-file", filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open input")
}
