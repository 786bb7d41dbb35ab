package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// IntegrationTestSuite runs end-to-end conversions against a real temporary
// directory.
type IntegrationTestSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	tempDir   string
	fs        afero.Fs
	startTime time.Time
}

// SetupSuite runs before all tests in the suite
func (s *IntegrationTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)
	s.startTime = time.Now()
	s.fs = afero.NewOsFs()
}

// SetupTest gives every test its own directory.
func (s *IntegrationTestSuite) SetupTest() {
	s.tempDir = s.T().TempDir()
}

// TearDownSuite runs after all tests in the suite
func (s *IntegrationTestSuite) TearDownSuite() {
	s.cancel()
	s.T().Logf("Integration test suite completed in %v", time.Since(s.startTime))
}

// Context returns the test context
func (s *IntegrationTestSuite) Context() context.Context {
	return s.ctx
}

// TempDir returns the temporary directory of the current test.
func (s *IntegrationTestSuite) TempDir() string {
	return s.tempDir
}

// Fs returns the OS filesystem.
func (s *IntegrationTestSuite) Fs() afero.Fs {
	return s.fs
}

// CreateTempFile writes content below the test directory, compressing it
// according to the name suffix.
func (s *IntegrationTestSuite) CreateTempFile(name, content string) string {
	return WriteFile(s.T(), s.fs, filepath.Join(s.tempDir, name), content)
}

// IntegrationTest marks a test as an integration test
func IntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// CreateTestData writes numFiles CSV files named part-<i>.csv below dir with
// the header id,name,value. Ids are consecutive across files.
func CreateTestData(t *testing.T, fs afero.Fs, dir string, numFiles, recordsPerFile int) []string {
	t.Helper()
	require.Greater(t, numFiles, 0)

	var files []string
	for i := 0; i < numFiles; i++ {
		var sb strings.Builder
		sb.WriteString("id,name,value\n")
		for j := 0; j < recordsPerFile; j++ {
			fmt.Fprintf(&sb, "%d,record_%d_%d,%.2f\n", i*recordsPerFile+j, i, j, float64(j)*1.25)
		}
		files = append(files, WriteFile(t, fs, filepath.Join(dir, fmt.Sprintf("part-%d.csv", i)), sb.String()))
	}
	return files
}
