package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkharmony/inkharmony/pkg/domain"
	"github.com/inkharmony/inkharmony/pkg/workflow"
)

// runCLI executes the command tree against an isolated storage root.
func runCLI(t *testing.T, storageDir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("INKHARMONY_STORAGE_DIR", storageDir)

	cmd := BuildCLI()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCreateRequiresFlags(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "create", "--title", "Starfall")
	require.Error(t, err)
}

func TestStatusUnknownBook(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "status", "book_nope")
	require.Error(t, err)
}

func TestStatusShowsWorkflow(t *testing.T) {
	root := t.TempDir()
	books := workflow.NewManager(root, []string{"outline", "drafting"})
	bookID, err := books.Create(domain.Payload{"title": "Starfall"})
	require.NoError(t, err)
	books.Start(bookID)

	_, err = runCLI(t, root, "status", bookID)
	require.NoError(t, err)
}

func TestExportUnknownBook(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "export", "book_nope", t.TempDir())
	require.Error(t, err)
}

func TestExportProducesFiles(t *testing.T) {
	root := t.TempDir()
	books := workflow.NewManager(root, []string{"outline"})
	bookID, err := books.Create(domain.Payload{"title": "Starfall"})
	require.NoError(t, err)
	_, err = books.Get(bookID).Storage().SaveComponent("outline", "acts", "")
	require.NoError(t, err)

	_, err = runCLI(t, root, "export", bookID, t.TempDir())
	require.NoError(t, err)
}

func TestListEmpty(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "list")
	require.NoError(t, err)
}
