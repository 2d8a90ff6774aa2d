package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gliding-club-api/internal/dto"
	"github.com/noah-isme/gliding-club-api/internal/models"
	"github.com/noah-isme/gliding-club-api/internal/service"
)

type stubDigest struct {
	result *models.DigestResult
	err    error
}

func (s *stubDigest) SendWeeklyDigest(context.Context) (*models.DigestResult, error) {
	return s.result, s.err
}

type stubImporter struct {
	catalog   dto.CatalogImport
	briefings dto.BriefingTopicImport
}

func (s *stubImporter) ImportInitialData(_ context.Context, data dto.CatalogImport) (map[string]service.ImportResult, error) {
	s.catalog = data
	return map[string]service.ImportResult{
		models.TableGliders:   {Created: len(data.Gliders)},
		models.TableExercises: {Updated: len(data.Exercises)},
	}, nil
}

func (s *stubImporter) ImportBriefingTopics(_ context.Context, data dto.BriefingTopicImport) (service.ImportResult, error) {
	s.briefings = data
	return service.ImportResult{Created: len(data.Topics)}, nil
}

type stubAdmins struct {
	username, email, password string
}

func (s *stubAdmins) CreateAdmin(_ context.Context, username, email, password string) (*models.User, error) {
	s.username, s.email, s.password = username, email, password
	return &models.User{ID: "adm-1", Username: username}, nil
}

func newTestCLI(files map[string]string) (*commandLine, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &commandLine{
		digest:  &stubDigest{result: &models.DigestResult{}},
		catalog: &stubImporter{},
		admins:  &stubAdmins{},
		migrate: func(context.Context) error { return nil },
		out:     out,
		readFile: func(name string) ([]byte, error) {
			content, ok := files[name]
			if !ok {
				return nil, os.ErrNotExist
			}
			return []byte(content), nil
		},
	}, out
}

func TestRunWithoutCommandPrintsUsage(t *testing.T) {
	cli, out := newTestCLI(nil)

	err := cli.run(context.Background(), []string{"clubctl"})

	assert.ErrorIs(t, err, errHelp)
	assert.Contains(t, out.String(), "import-initial-data")

	err = cli.run(context.Background(), []string{"clubctl", "import-initial-data"})
	assert.ErrorIs(t, err, errHelp)
}

func TestImportInitialData(t *testing.T) {
	cli, out := newTestCLI(map[string]string{
		"seed.json": `{"gliders":[{"tail_number":"D-0001","model":"ASK 13"}],"exercises":[{"name":"Stalls","category":"pre_solo","number":"7"}]}`,
	})

	require.NoError(t, cli.run(context.Background(), []string{"clubctl", "import-initial-data", "seed.json"}))

	importer := cli.catalog.(*stubImporter)
	require.Len(t, importer.catalog.Gliders, 1)
	assert.Equal(t, "D-0001", importer.catalog.Gliders[0].TailNumber)
	assert.Equal(t, "exercises: 0 created, 1 updated\ngliders: 1 created, 0 updated\n", out.String())
}

func TestImportRejectsUnknownFields(t *testing.T) {
	cli, _ := newTestCLI(map[string]string{"briefings.json": `{"topics":[],"extra":true}`})

	err := cli.run(context.Background(), []string{"clubctl", "import-ground-briefings", "briefings.json"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode briefings.json")
}

func TestImportMissingFile(t *testing.T) {
	cli, _ := newTestCLI(nil)

	err := cli.run(context.Background(), []string{"clubctl", "import-ground-briefings", "missing.json"})

	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCreateAdminPromptsForPassword(t *testing.T) {
	original := readPasswordFunc
	t.Cleanup(func() { readPasswordFunc = original })
	readPasswordFunc = func(int) ([]byte, error) { return []byte("s3cret-pass"), nil }

	cli, out := newTestCLI(nil)
	require.NoError(t, cli.run(context.Background(), []string{"clubctl", "create-admin", " root ", "root@example.org"}))

	admins := cli.admins.(*stubAdmins)
	assert.Equal(t, "root", admins.username)
	assert.Equal(t, "root@example.org", admins.email)
	assert.Equal(t, "s3cret-pass", admins.password)
	assert.Contains(t, out.String(), "admin root created (adm-1)")
}

func TestCreateAdminEmptyPassword(t *testing.T) {
	original := readPasswordFunc
	t.Cleanup(func() { readPasswordFunc = original })
	readPasswordFunc = func(int) ([]byte, error) { return nil, nil }

	cli, _ := newTestCLI(nil)
	err := cli.run(context.Background(), []string{"clubctl", "create-admin", "root", "root@example.org"})

	assert.ErrorIs(t, err, errHelp)
	assert.Empty(t, cli.admins.(*stubAdmins).username)
}

func TestSendWeeklyDigestReportsFailures(t *testing.T) {
	cli, out := newTestCLI(nil)
	cli.digest = &stubDigest{result: &models.DigestResult{SentCount: 2, ErrorCount: 1, TotalInstructors: 3}}

	err := cli.run(context.Background(), []string{"clubctl", "send-weekly-digest"})

	require.Error(t, err)
	assert.Contains(t, out.String(), "2 sent, 0 skipped, 1 failed (3 instructors)")

	cli.digest = &stubDigest{err: errors.New("db down")}
	assert.EqualError(t, cli.run(context.Background(), []string{"clubctl", "send-weekly-digest"}), "db down")
}

func TestMigrateCommand(t *testing.T) {
	cli, out := newTestCLI(nil)
	called := false
	cli.migrate = func(context.Context) error {
		called = true
		return nil
	}

	require.NoError(t, cli.run(context.Background(), []string{"clubctl", "migrate"}))
	assert.True(t, called)
	assert.Contains(t, out.String(), "migrations applied")
}
