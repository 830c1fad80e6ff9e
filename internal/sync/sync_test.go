package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lettersync/lettersync/internal/driver"
	"github.com/lettersync/lettersync/internal/letter"
	"github.com/lettersync/lettersync/internal/progress"
	"github.com/lettersync/lettersync/internal/status"
	"github.com/lettersync/lettersync/internal/storage"
	"github.com/lettersync/lettersync/internal/table"
	"github.com/lettersync/lettersync/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockTable implements Table for testing.
type mockTable struct {
	name       string
	rows       []letter.Info
	remote     map[string]string // unique name -> template
	customized map[string]bool
	openErrs   map[string][]error
	putErr     error

	opened []string
	puts   map[string]string
	closed int
}

func newMockTable(name string, rows ...letter.Info) *mockTable {
	return &mockTable{
		name:       name,
		rows:       rows,
		remote:     make(map[string]string),
		customized: make(map[string]bool),
		openErrs:   make(map[string][]error),
		puts:       make(map[string]string),
	}
}

func (m *mockTable) Name() string                 { return m.name }
func (m *mockTable) Open(_ context.Context) error { return nil }

func (m *mockTable) Read(_ context.Context) ([]letter.Info, error) {
	return append([]letter.Info(nil), m.rows...), nil
}

func (m *mockTable) OpenLetter(_ context.Context, info letter.Info) (letter.Content, error) {
	id := info.UniqueName()
	m.opened = append(m.opened, id)
	if errs := m.openErrs[id]; len(errs) > 0 {
		m.openErrs[id] = errs[1:]
		return letter.Content{}, errs[0]
	}
	return letter.NewContent(m.remote[id], info.Filename()), nil
}

func (m *mockTable) CloseLetter(_ context.Context) error {
	m.closed++
	return nil
}

func (m *mockTable) PutContents(_ context.Context, info letter.Info, content letter.Content) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.puts[info.UniqueName()] = content.Text
	m.remote[info.UniqueName()] = content.Text
	return nil
}

func (m *mockTable) IsCustomized(_ context.Context, info letter.Info) (bool, error) {
	return m.customized[info.UniqueName()], nil
}

func (m *mockTable) openCount(id string) int {
	n := 0
	for _, o := range m.opened {
		if o == id {
			n++
		}
	}
	return n
}

// mockPrompter implements Prompter for testing.
type mockPrompter struct {
	confirm   bool
	resolve   bool
	confirms  []string
	conflicts []letter.Conflict
}

func (m *mockPrompter) Confirm(_ context.Context, msg string) (bool, error) {
	m.confirms = append(m.confirms, msg)
	return m.confirm, nil
}

func (m *mockPrompter) ResolveConflict(_ context.Context, c letter.Conflict) (bool, error) {
	m.conflicts = append(m.conflicts, c)
	return m.resolve, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	root     string
	ledger   *status.Ledger
	store    *storage.Local
	prompter *mockPrompter
	events   *progress.Recorder
	engine   *Engine
}

func newFixture(t *testing.T, exclude letter.Exclusion) *fixture {
	t.Helper()
	root := t.TempDir()
	ledger, err := status.Open(filepath.Join(root, "status.json"))
	require.NoError(t, err)

	f := &fixture{
		root:     root,
		ledger:   ledger,
		prompter: &mockPrompter{},
		events:   &progress.Recorder{},
	}
	f.store = storage.NewLocal(root, ledger, f.prompter, testLogger())
	f.engine = NewEngine(ledger, f.store, f.prompter, f.events, exclude, testLogger())
	return f
}

func (f *fixture) writeLocal(t *testing.T, info letter.Info, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.store.Path(info), []byte(text), 0644))
}

func (f *fixture) readLocal(t *testing.T, info letter.Info) string {
	t.Helper()
	data, err := os.ReadFile(f.store.Path(info))
	require.NoError(t, err)
	return string(data)
}

func (f *fixture) writeLatin1(t *testing.T, info letter.Info) []byte {
	t.Helper()
	data := testutil.ReadFixture(t, "letters/latin1.xsl")
	require.NoError(t, os.WriteFile(f.store.Path(info), data, 0644))
	return data
}

func hashOf(text string) string {
	return letter.NewContent(text, "").Hash()
}

func finalMessages(r *progress.Recorder) []string {
	var out []string
	for _, e := range r.Finals() {
		out = append(out, fmt.Sprintf("%s: %s", e.Item, e.Message))
	}
	return out
}

var (
	invoice = letter.Info{Name: "Invoice", Index: 0}
	overdue = letter.Info{Name: "Overdue Notice", Index: 1, Channel: "Email"}
	fine    = letter.Info{Name: "Fine", Index: 2}
)

func TestPull_NewChangedUnchanged(t *testing.T) {
	f := newFixture(t, nil)
	tbl := newMockTable("Letters Configuration", invoice, overdue, fine)
	tbl.remote["Invoice"] = "<invoice/>"
	tbl.remote["Overdue Notice-Email"] = "<overdue version=\"2\"/>"
	tbl.remote["Fine"] = "<fine/>"

	require.NoError(t, f.ledger.SetChecksum("Overdue Notice-Email", hashOf("<overdue/>")))
	require.NoError(t, f.ledger.SetChecksum("Fine", hashOf("<fine/>")))
	f.writeLocal(t, overdue, "<overdue/>")

	res, err := f.engine.Pull(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, PullResult{New: 1, Changed: 1, Unchanged: 1}, res)
	assert.Equal(t, 3, res.Total())

	assert.Equal(t, "<invoice/>", f.readLocal(t, invoice))
	assert.Equal(t, "<overdue version=\"2\"/>", f.readLocal(t, overdue))
	assert.Equal(t, hashOf("<invoice/>"), f.ledger.Checksum("Invoice"))
	assert.NotEmpty(t, f.ledger.Modified("Invoice"))
	assert.Equal(t, 3, tbl.closed)
	assert.Empty(t, f.prompter.conflicts)

	assert.Equal(t, []string{
		"./Invoice.xsl: fetched new letter @ " + hashOf("<invoice/>")[:7],
		"./Overdue_Notice-Email.xsl: updated from " + hashOf("<overdue/>")[:7] + " to " + hashOf("<overdue version=\"2\"/>")[:7],
		"./Fine.xsl: no changes",
	}, finalMessages(f.events))
}

func TestPull_UnchangedLeavesLocalEdits(t *testing.T) {
	f := newFixture(t, nil)
	tbl := newMockTable("Letters Configuration", invoice)
	tbl.remote["Invoice"] = "<invoice/>"
	require.NoError(t, f.ledger.SetChecksum("Invoice", hashOf("<invoice/>")))
	f.writeLocal(t, invoice, "<invoice edited=\"yes\"/>")

	res, err := f.engine.Pull(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unchanged)
	assert.Equal(t, "<invoice edited=\"yes\"/>", f.readLocal(t, invoice))
	assert.Empty(t, f.prompter.conflicts, "storage must not be consulted for unchanged letters")
}

func TestPull_ConflictRejected(t *testing.T) {
	f := newFixture(t, nil)
	tbl := newMockTable("Letters Configuration", invoice)
	tbl.remote["Invoice"] = "<remote/>"
	require.NoError(t, f.ledger.SetChecksum("Invoice", hashOf("<synced/>")))
	require.NoError(t, f.ledger.SetModified("Invoice", "01/01/2020"))
	f.writeLocal(t, invoice, "<local/>")
	f.prompter.resolve = false

	res, err := f.engine.Pull(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, PullResult{Skipped: 1}, res)

	require.Len(t, f.prompter.conflicts, 1)
	c := f.prompter.conflicts[0]
	assert.Equal(t, "<local/>", c.Local.Text)
	assert.Equal(t, "<remote/>", c.Remote.Text)
	assert.Equal(t, "Pulling in this file would cause local changes to be overwritten.", c.Message)

	assert.Equal(t, "<local/>", f.readLocal(t, invoice))
	assert.Equal(t, hashOf("<synced/>"), f.ledger.Checksum("Invoice"))
	assert.Equal(t, "01/01/2020", f.ledger.Modified("Invoice"))
	assert.Equal(t, []string{"./Invoice.xsl: skipped due to conflict"}, finalMessages(f.events))
}

func TestPull_ConflictAccepted(t *testing.T) {
	f := newFixture(t, nil)
	tbl := newMockTable("Letters Configuration", invoice)
	tbl.remote["Invoice"] = "<remote/>"
	require.NoError(t, f.ledger.SetChecksum("Invoice", hashOf("<synced/>")))
	f.writeLocal(t, invoice, "<local/>")
	f.prompter.resolve = true

	res, err := f.engine.Pull(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, PullResult{Changed: 1}, res)
	assert.Equal(t, "<remote/>", f.readLocal(t, invoice))
	assert.Equal(t, hashOf("<remote/>"), f.ledger.Checksum("Invoice"))
}

func TestPull_RetriesOnceOnTimeout(t *testing.T) {
	f := newFixture(t, nil)
	tbl := newMockTable("Letters Configuration", invoice, fine)
	tbl.remote["Invoice"] = "<invoice/>"
	tbl.remote["Fine"] = "<fine/>"
	tbl.openErrs["Invoice"] = []error{fmt.Errorf("wait: %w", driver.ErrTimeout)}

	res, err := f.engine.Pull(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, 2, res.New)
	assert.Equal(t, 2, tbl.openCount("Invoice"))

	var retried bool
	for _, e := range f.events.Events {
		if e.Item == "./Invoice.xsl" && e.Message == "retrying..." {
			retried = true
		}
	}
	assert.True(t, retried)
}

func TestPull_SecondTimeoutAborts(t *testing.T) {
	f := newFixture(t, nil)
	tbl := newMockTable("Letters Configuration", invoice, fine)
	tbl.remote["Fine"] = "<fine/>"
	tbl.openErrs["Invoice"] = []error{driver.ErrTimeout, driver.ErrTimeout, nil}

	_, err := f.engine.Pull(context.Background(), tbl)
	require.Error(t, err)
	assert.ErrorIs(t, err, driver.ErrTimeout)
	assert.Equal(t, 2, tbl.openCount("Invoice"))
	assert.Equal(t, 0, tbl.openCount("Fine"), "the run stops at the failing letter")
}

func TestPull_WrongPageFailsOnlyThatLetter(t *testing.T) {
	f := newFixture(t, nil)
	tbl := newMockTable("Letters Configuration", invoice, fine)
	tbl.remote["Fine"] = "<fine/>"
	tbl.openErrs["Invoice"] = []error{fmt.Errorf("%w: \"Other\" != \"Invoice\"", table.ErrWrongPage)}

	res, err := f.engine.Pull(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, PullResult{New: 1, Failed: 1}, res)
	assert.Equal(t, 1, tbl.openCount("Invoice"), "wrong page is not retried")
	assert.Equal(t, "", f.ledger.Checksum("Invoice"))
}

func TestPull_InvalidLocalUTF8IsLeftAlone(t *testing.T) {
	f := newFixture(t, nil)
	tbl := newMockTable("Letters Configuration", invoice, fine)
	tbl.remote["Invoice"] = "<invoice changed=\"1\"/>"
	tbl.remote["Fine"] = "<fine/>"
	require.NoError(t, f.ledger.SetChecksum("Invoice", hashOf("<invoice/>")))
	data := f.writeLatin1(t, invoice)

	res, err := f.engine.Pull(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, PullResult{New: 1, Failed: 1}, res)
	assert.Equal(t, string(data), f.readLocal(t, invoice))
	assert.Equal(t, hashOf("<invoice/>"), f.ledger.Checksum("Invoice"))
	assert.Empty(t, f.prompter.conflicts)
}

func TestPull_Exclusion(t *testing.T) {
	fax := letter.Info{Name: "Overdue Notice", Index: 0, Channel: "Fax"}
	f := newFixture(t, letter.ExcludeSuffixes([]string{"-Fax"}))
	tbl := newMockTable("Letters Configuration", fax, invoice)
	tbl.remote["Invoice"] = "<invoice/>"

	res, err := f.engine.Pull(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, PullResult{New: 1, Excluded: 1}, res)
	assert.Equal(t, 0, tbl.openCount("Overdue Notice-Fax"))
	assert.Equal(t, "Fetched 1 new, 0 changed letters, 1 excluded", res.String())
}

func TestPullResult_String(t *testing.T) {
	tests := []struct {
		res  PullResult
		want string
	}{
		{res: PullResult{New: 2, Changed: 1, Unchanged: 4}, want: "Fetched 2 new, 1 changed letters"},
		{res: PullResult{Changed: 1, Skipped: 1, Failed: 2}, want: "Fetched 0 new, 1 changed letters (1 skipped, 2 failed)"},
		{res: PullResult{Excluded: 3}, want: "Fetched 0 new, 0 changed letters, 3 excluded"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.res.String(), "%+v", tt.res)
	}
}

func TestPull_AggregatesTables(t *testing.T) {
	f := newFixture(t, nil)
	header := letter.Info{Name: "header.xsl", Index: 0}
	components := newMockTable("Components Configuration", header)
	components.remote["header.xsl"] = "<header/>"
	letters := newMockTable("Letters Configuration", invoice)
	letters.remote["Invoice"] = "<invoice/>"

	res, err := f.engine.Pull(context.Background(), components, letters)
	require.NoError(t, err)
	assert.Equal(t, 2, res.New)
	assert.Equal(t, "<header/>", f.readLocal(t, header))
	assert.Equal(t, "Fetched 2 new, 0 changed letters", res.String())
}

func TestPull_CancelledContext(t *testing.T) {
	f := newFixture(t, nil)
	tbl := newMockTable("Letters Configuration", invoice)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Pull(ctx, tbl)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, tbl.opened)
}

func TestPullDefaults(t *testing.T) {
	f := newFixture(t, nil)
	tbl := newMockTable("Letters Configuration", invoice, fine)
	tbl.remote["Invoice"] = "<default-invoice/>"
	tbl.remote["Fine"] = "<my-fine/>"
	tbl.customized["Fine"] = true
	f.writeLocal(t, invoice, "<local-invoice/>")

	res, err := f.engine.PullDefaults(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, PullResult{New: 1, Skipped: 1}, res)
	assert.Equal(t, 0, tbl.openCount("Fine"))

	data, err := os.ReadFile(f.store.DefaultPath(invoice))
	require.NoError(t, err)
	assert.Equal(t, "<default-invoice/>", string(data))
	assert.Equal(t, hashOf("<default-invoice/>"), f.ledger.DefaultChecksum("Invoice"))
	assert.Equal(t, "", f.ledger.Checksum("Invoice"), "defaults do not touch the synced checksum")
	assert.Equal(t, "<local-invoice/>", f.readLocal(t, invoice))

	// Second run: nothing changed
	res, err = f.engine.PullDefaults(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, PullResult{Unchanged: 1, Skipped: 1}, res)
}

func TestPush_NothingModified(t *testing.T) {
	f := newFixture(t, nil)
	tbl := newMockTable("Letters Configuration", invoice)
	f.writeLocal(t, invoice, "<invoice/>")
	require.NoError(t, f.ledger.SetChecksum("Invoice", hashOf("<invoice/>")))

	res, err := f.engine.Push(context.Background(), []Table{tbl}, nil)
	require.NoError(t, err)
	assert.Equal(t, PushResult{}, res)
	assert.Empty(t, f.prompter.confirms)
	assert.Empty(t, tbl.opened)
	require.NotEmpty(t, f.events.Events)
	assert.Equal(t, "Found no modified files.", f.events.Events[0].Message)
}

func TestPush_ConfirmDeclined(t *testing.T) {
	f := newFixture(t, nil)
	tbl := newMockTable("Letters Configuration", invoice)
	f.writeLocal(t, invoice, "<edited/>")
	require.NoError(t, f.ledger.SetChecksum("Invoice", hashOf("<invoice/>")))
	f.prompter.confirm = false

	res, err := f.engine.Push(context.Background(), []Table{tbl}, nil)
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.Equal(t, []string{"Push the file(s) to Alma?"}, f.prompter.confirms)
	assert.Empty(t, tbl.puts)
}

func TestPush_ModifiedFiles(t *testing.T) {
	f := newFixture(t, nil)
	tbl := newMockTable("Letters Configuration", invoice, fine)
	tbl.remote["Invoice"] = "<invoice/>"
	tbl.remote["Fine"] = "<fine/>"
	require.NoError(t, f.ledger.SetChecksum("Invoice", hashOf("<invoice/>")))
	require.NoError(t, f.ledger.SetChecksum("Fine", hashOf("<fine/>")))
	require.NoError(t, f.ledger.SetModified("Invoice", "01/01/2020"))
	f.writeLocal(t, invoice, "<invoice edited=\"1\"/>\r\n")
	f.writeLocal(t, fine, "<fine/>")
	f.prompter.confirm = true

	res, err := f.engine.Push(context.Background(), []Table{tbl}, nil)
	require.NoError(t, err)
	assert.Equal(t, PushResult{Pushed: 1}, res)
	assert.Equal(t, map[string]string{"Invoice": "<invoice edited=\"1\"/>"}, tbl.puts)
	assert.Empty(t, f.prompter.conflicts)

	assert.Equal(t, hashOf("<invoice edited=\"1\"/>"), f.ledger.Checksum("Invoice"))
	assert.NotEqual(t, "01/01/2020", f.ledger.Modified("Invoice"))

	var listed []string
	for _, e := range f.events.Events {
		if e.Phase == progress.Info {
			listed = append(listed, e.Message)
		}
	}
	assert.Equal(t, []string{"Found 1 modified file(s):", " - Invoice.xsl"}, listed)
	assert.Equal(t, []string{
		"./Invoice.xsl: updated from " + hashOf("<invoice/>")[:7] + " to " + hashOf("<invoice edited=\"1\"/>")[:7],
	}, finalMessages(f.events))
}

func TestPush_NeverSyncedShowsNew(t *testing.T) {
	f := newFixture(t, nil)
	tbl := newMockTable("Letters Configuration", invoice)
	tbl.remote["Invoice"] = "<vendor/>"
	f.writeLocal(t, invoice, "<mine/>")
	f.prompter.resolve = true

	res, err := f.engine.Push(context.Background(), []Table{tbl}, []string{"Invoice.xsl"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed)
	require.Len(t, f.prompter.conflicts, 1, "unknown remote state must be confirmed")
	assert.Equal(t, []string{"./Invoice.xsl: updated from new to " + hashOf("<mine/>")[:7]}, finalMessages(f.events))
}

func TestPush_RemoteChangedRejected(t *testing.T) {
	f := newFixture(t, nil)
	tbl := newMockTable("Letters Configuration", invoice)
	tbl.remote["Invoice"] = "<changed-in-alma/>"
	require.NoError(t, f.ledger.SetChecksum("Invoice", hashOf("<invoice/>")))
	f.writeLocal(t, invoice, "<mine/>")
	f.prompter.resolve = false

	res, err := f.engine.Push(context.Background(), []Table{tbl}, []string{"./Invoice.xsl"})
	require.NoError(t, err)
	assert.Equal(t, PushResult{Skipped: 1}, res)
	assert.Empty(t, tbl.puts)
	assert.Equal(t, 1, tbl.closed)
	assert.Equal(t, hashOf("<invoice/>"), f.ledger.Checksum("Invoice"))

	require.Len(t, f.prompter.conflicts, 1)
	assert.Equal(t, "The remote version has changed. Overwrite remote version?", f.prompter.conflicts[0].Message)
	assert.Equal(t, "<changed-in-alma/>", f.prompter.conflicts[0].Remote.Text)
}

func TestPush_FileNotFound(t *testing.T) {
	f := newFixture(t, nil)
	tbl := newMockTable("Letters Configuration", invoice)
	tbl.remote["Invoice"] = "<invoice/>"
	require.NoError(t, f.ledger.SetChecksum("Invoice", hashOf("<invoice/>")))
	f.writeLocal(t, invoice, "<mine/>")

	res, err := f.engine.Push(context.Background(), []Table{tbl}, []string{"Unknown.xsl", filepath.Join(f.root, "Invoice.xsl")})
	require.NoError(t, err)
	assert.Equal(t, PushResult{Pushed: 1, NotFound: 1}, res)
	assert.Equal(t, []string{
		"./Unknown.xsl: file not found",
		"./Invoice.xsl: updated from " + hashOf("<invoice/>")[:7] + " to " + hashOf("<mine/>")[:7],
	}, finalMessages(f.events))
}

func TestPush_EmptyLocalFile(t *testing.T) {
	f := newFixture(t, nil)
	tbl := newMockTable("Letters Configuration", invoice)

	res, err := f.engine.Push(context.Background(), []Table{tbl}, []string{"Invoice.xsl"})
	require.NoError(t, err)
	assert.Equal(t, PushResult{Failed: 1}, res)
	assert.Empty(t, tbl.opened)
}

func TestPush_InvalidUTF8FailsOnlyThatFile(t *testing.T) {
	f := newFixture(t, nil)
	tbl := newMockTable("Letters Configuration", invoice, fine)
	tbl.remote["Invoice"] = "<invoice/>"
	tbl.remote["Fine"] = "<fine/>"
	require.NoError(t, f.ledger.SetChecksum("Invoice", hashOf("<invoice/>")))
	require.NoError(t, f.ledger.SetChecksum("Fine", hashOf("<fine/>")))
	f.writeLatin1(t, invoice)
	f.writeLocal(t, fine, "<fine edited=\"1\"/>")
	f.prompter.confirm = true

	res, err := f.engine.Push(context.Background(), []Table{tbl}, nil)
	require.NoError(t, err)
	assert.Equal(t, PushResult{Pushed: 1, Failed: 1}, res)
	assert.Equal(t, map[string]string{"Fine": "<fine edited=\"1\"/>"}, tbl.puts)
	assert.Equal(t, 0, tbl.openCount("Invoice"))
	assert.Equal(t, hashOf("<invoice/>"), f.ledger.Checksum("Invoice"))
	assert.Contains(t, finalMessages(f.events), "./Invoice.xsl: local file is not valid UTF-8")
}

func TestPush_TimeoutIsNotRetried(t *testing.T) {
	f := newFixture(t, nil)
	tbl := newMockTable("Letters Configuration", invoice)
	tbl.openErrs["Invoice"] = []error{driver.ErrTimeout}
	f.writeLocal(t, invoice, "<mine/>")

	_, err := f.engine.Push(context.Background(), []Table{tbl}, []string{"Invoice.xsl"})
	assert.ErrorIs(t, err, driver.ErrTimeout)
	assert.Equal(t, 1, tbl.openCount("Invoice"))
}

func TestFileKey(t *testing.T) {
	f := newFixture(t, nil)
	rel := NewEngine(f.ledger, storage.NewLocal("letters", f.ledger, f.prompter, testLogger()), f.prompter, nil, nil, testLogger())

	tests := []struct {
		engine *Engine
		in     string
		want   string
	}{
		{engine: f.engine, in: "Invoice.xsl", want: "./Invoice.xsl"},
		{engine: f.engine, in: "./Invoice.xsl", want: "./Invoice.xsl"},
		{engine: f.engine, in: filepath.Join(f.root, "Invoice.xsl"), want: "./Invoice.xsl"},
		{engine: rel, in: "letters/Invoice.xsl", want: "./Invoice.xsl"},
		{engine: rel, in: "Invoice.xsl", want: "./Invoice.xsl"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.engine.fileKey(tt.in), "input %q", tt.in)
	}
}

func TestLocalStatus(t *testing.T) {
	f := newFixture(t, nil)
	gone := letter.Info{Name: "Gone"}

	f.writeLocal(t, invoice, "<invoice/>")
	f.writeLocal(t, overdue, "<overdue edited=\"1\"/>")
	f.writeLocal(t, fine, "<fine/>")
	require.NoError(t, f.ledger.SetChecksum("Invoice", hashOf("<invoice/>")))
	require.NoError(t, f.ledger.SetChecksum("Overdue Notice-Email", hashOf("<overdue/>")))
	require.NoError(t, f.ledger.SetChecksum("Gone", hashOf("<gone/>")))
	require.NoError(t, f.ledger.SetDefaultChecksum("Defaults Only", hashOf("<d/>")))
	require.NoError(t, f.store.StoreDefault(invoice, letter.NewContent("<default/>", "")))
	latin := letter.Info{Name: "Latin"}
	f.writeLatin1(t, latin)
	require.NoError(t, f.ledger.SetChecksum("Latin", hashOf("<latin/>")))

	got, err := f.engine.LocalStatus()
	require.NoError(t, err)
	assert.Equal(t, []FileStatus{
		{File: "./Fine.xsl", State: StateUntracked},
		{File: "./Invoice.xsl", ID: "Invoice", State: StateClean},
		{File: "./Latin.xsl", ID: "Latin", State: StateInvalid},
		{File: "./Overdue_Notice-Email.xsl", ID: "Overdue Notice-Email", State: StateModified},
		{File: gone.Filename(), ID: "Gone", State: StateMissing},
	}, got)
}
