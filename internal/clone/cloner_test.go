package clone

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbp1/dbclone/internal/lock"
	"github.com/vbp1/dbclone/internal/process"
	"github.com/vbp1/dbclone/internal/settings"
)

var errExists = errors.New("database exists")

// fakeBackend records administrative statements and answers them from
// results in order.
type fakeBackend struct {
	mu      sync.Mutex
	stmts   []string
	results []error
	openErr error
	opened  int
	closed  int

	restoreFlags []string
}

type fakeAdmin struct{ b *fakeBackend }

func (a fakeAdmin) Exec(_ context.Context, sql string) error {
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	i := len(a.b.stmts)
	a.b.stmts = append(a.b.stmts, sql)
	if i < len(a.b.results) {
		return a.b.results[i]
	}
	return nil
}

func (a fakeAdmin) Close() error {
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	a.b.closed++
	return nil
}

func (b *fakeBackend) Engine() string               { return settings.EngineMySQL }
func (b *fakeBackend) QuoteName(name string) string { return "`" + name + "`" }
func (b *fakeBackend) DumpProgram() string          { return "dumper" }
func (b *fakeBackend) RestoreFlags() []string       { return b.restoreFlags }
func (b *fakeBackend) IsExists(err error) bool      { return errors.Is(err, errExists) }

func (b *fakeBackend) CreateSuffix(s settings.ConnectionSettings) string {
	if s.Test.Charset == "" {
		return ""
	}
	return "CHARACTER SET " + s.Test.Charset
}

func (b *fakeBackend) OpenAdmin(context.Context, settings.ConnectionSettings) (AdminConn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.opened++
	return fakeAdmin{b: b}, nil
}

func (b *fakeBackend) ClientArgs(s settings.ConnectionSettings) ([]string, []string) {
	return []string{"client", "--host=db", s.Name}, []string{"FAKE_PWD=secret"}
}

func (b *fakeBackend) statements() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.stmts...)
}

func (b *fakeBackend) adminClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened > 0 && b.opened == b.closed
}

// fakeTools maps the dump and client programs to shell scripts.
type fakeTools struct {
	mu          sync.Mutex
	dump        string
	load        string
	calls       [][]string
	adminClosed []bool
	backend     *fakeBackend
}

func (f *fakeTools) command(ctx context.Context, name string, args ...string) *exec.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.adminClosed = append(f.adminClosed, f.backend.adminClosed())
	script := f.load
	if name == "dumper" {
		script = f.dump
	}
	// $1 is the database name, the last argument.
	return exec.CommandContext(ctx, "sh", "-c", script, "sh", args[len(args)-1])
}

func sourceSettings() settings.ConnectionSettings {
	return settings.ConnectionSettings{
		Alias:  "default",
		Engine: settings.EngineMySQL,
		Name:   "app_db",
		Host:   "db",
		Test:   settings.TestSettings{Charset: "utf8mb4"},
	}
}

func newTestCloner(t *testing.T, b *fakeBackend, tools *fakeTools, notices *bytes.Buffer) *Cloner {
	t.Helper()
	tools.backend = b
	cfg := Config{
		Backend:  b,
		Settings: sourceSettings(),
		Command:  tools.command,
	}
	if notices != nil {
		cfg.Notices = notices
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestCloneCreatesAndPipes(t *testing.T) {
	out := filepath.Join(t.TempDir(), "restored")
	b := &fakeBackend{}
	tools := &fakeTools{
		dump: `printf 'dump of %s with %s' "$1" "$FAKE_PWD"`,
		load: `cat > ` + out,
	}
	c := newTestCloner(t, b, tools, nil)

	err := c.Clone(context.Background(), Request{Number: 1, Verbosity: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"CREATE DATABASE `app_db_1` CHARACTER SET utf8mb4"}, b.statements())
	assert.Equal(t, [][]string{
		{"dumper", "--host=db", "app_db"},
		{"client", "--host=db", "app_db_1"},
	}, tools.calls)
	assert.Equal(t, []bool{true, true}, tools.adminClosed, "admin connection must be released before the pipeline")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "dump of app_db with secret", string(data))
	assert.Equal(t, int64(len(data)), c.Stats().Bytes)
	assert.Equal(t, StateCompleted, c.State())
}

func TestCloneKeepExisting(t *testing.T) {
	b := &fakeBackend{results: []error{errExists}}
	tools := &fakeTools{dump: "exit 99", load: "exit 99"}
	var notices bytes.Buffer
	c := newTestCloner(t, b, tools, &notices)

	err := c.Clone(context.Background(), Request{Number: 1, Verbosity: 2, KeepExisting: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"CREATE DATABASE `app_db_1` CHARACTER SET utf8mb4"}, b.statements())
	assert.Empty(t, tools.calls)
	assert.Empty(t, notices.String())
	assert.True(t, b.adminClosed())
	assert.Equal(t, StateCompleted, c.State())
}

func TestCloneRecreatesExisting(t *testing.T) {
	out := filepath.Join(t.TempDir(), "restored")
	b := &fakeBackend{results: []error{errExists, nil, nil}}
	tools := &fakeTools{dump: `printf rows`, load: `cat > ` + out}
	var notices bytes.Buffer
	c := newTestCloner(t, b, tools, &notices)

	err := c.Clone(context.Background(), Request{Number: 1, Verbosity: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"CREATE DATABASE `app_db_1` CHARACTER SET utf8mb4",
		"DROP DATABASE `app_db_1`",
		"CREATE DATABASE `app_db_1` CHARACTER SET utf8mb4",
	}, b.statements())
	assert.Equal(t, "Destroying old test database 'default'...\n", notices.String())
	require.Len(t, tools.calls, 2)
	assert.Equal(t, "app_db", tools.calls[0][len(tools.calls[0])-1])
	assert.Equal(t, "app_db_1", tools.calls[1][len(tools.calls[1])-1])

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "rows", string(data))
}

func TestCloneRecreateQuietBelowVerbosityOne(t *testing.T) {
	b := &fakeBackend{results: []error{errExists}}
	tools := &fakeTools{dump: "true", load: "cat > /dev/null"}
	var notices bytes.Buffer
	c := newTestCloner(t, b, tools, &notices)

	require.NoError(t, c.Clone(context.Background(), Request{Number: 3}))
	assert.Empty(t, notices.String())
	assert.Len(t, b.statements(), 3)
}

func TestCloneRecreateFailureIsFatal(t *testing.T) {
	errDenied := errors.New("access denied")
	cases := map[string][]error{
		"drop fails":     {errExists, errDenied},
		"recreate fails": {errExists, nil, errDenied},
	}
	for name, results := range cases {
		t.Run(name, func(t *testing.T) {
			b := &fakeBackend{results: results}
			tools := &fakeTools{dump: "true", load: "cat > /dev/null"}
			c := newTestCloner(t, b, tools, nil)

			err := c.Clone(context.Background(), Request{Number: 1, Verbosity: 1})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFatal)
			assert.ErrorIs(t, err, errDenied)

			var fe *FatalError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, "app_db_1", fe.Target)
			assert.Contains(t, err.Error(), "access denied")

			assert.Empty(t, tools.calls, "no pipeline after a fatal error")
			assert.True(t, b.adminClosed())
			assert.Equal(t, StateFailed, c.State())
		})
	}
}

func TestCloneEmptySource(t *testing.T) {
	out := filepath.Join(t.TempDir(), "restored")
	b := &fakeBackend{}
	tools := &fakeTools{dump: "true", load: "cat > " + out}
	c := newTestCloner(t, b, tools, nil)

	require.NoError(t, c.Clone(context.Background(), Request{Number: 1}))
	assert.Zero(t, c.Stats().Bytes)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestClonePipelineFailures(t *testing.T) {
	cases := []struct {
		name  string
		dump  string
		load  string
		stage string
	}{
		{"dump fails", "printf partial; exit 2", "cat > /dev/null", "dump"},
		{"restore fails", "printf rows", "cat > /dev/null; echo 'ERROR 1049' >&2; exit 1", "restore"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &fakeBackend{}
			tools := &fakeTools{dump: tc.dump, load: tc.load}
			c := newTestCloner(t, b, tools, nil)

			err := c.Clone(context.Background(), Request{Number: 1})
			require.Error(t, err)
			assert.False(t, errors.Is(err, ErrFatal))

			var se *process.StageError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tc.stage, se.Stage)
			assert.Equal(t, StateFailed, c.State())
		})
	}
}

func TestCloneOpenAdminError(t *testing.T) {
	errConn := errors.New("connection refused")
	b := &fakeBackend{openErr: errConn}
	tools := &fakeTools{dump: "true", load: "true"}
	c := newTestCloner(t, b, tools, nil)

	err := c.Clone(context.Background(), Request{Number: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, errConn)
	assert.False(t, errors.Is(err, ErrFatal))
	assert.Empty(t, tools.calls)
}

func TestCloneLocked(t *testing.T) {
	b := &fakeBackend{}
	tools := &fakeTools{dump: "true", load: "true"}
	c := newTestCloner(t, b, tools, nil)

	held := lock.New(lockKey(c.Target(7)))
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = held.Unlock() }()

	err = c.Clone(context.Background(), Request{Number: 7})
	assert.ErrorIs(t, err, ErrLocked)
	assert.Empty(t, b.statements())
}

func TestCloneLockWaitCanceled(t *testing.T) {
	b := &fakeBackend{}
	tools := &fakeTools{dump: "true", load: "true"}
	tools.backend = b
	c, err := New(Config{
		Backend:  b,
		Settings: sourceSettings(),
		Command:  tools.command,
		LockWait: 10 * time.Second,
	})
	require.NoError(t, err)

	held := lock.New(lockKey(c.Target(8)))
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = held.Unlock() }()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(150*time.Millisecond, cancel)

	err = c.Clone(ctx, Request{Number: 8})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrLocked)
	assert.Empty(t, b.statements())
}

func TestCloneRestoreFlags(t *testing.T) {
	b := &fakeBackend{restoreFlags: []string{"-v", "ON_ERROR_STOP=1"}}
	tools := &fakeTools{dump: "true", load: "cat > /dev/null"}
	c := newTestCloner(t, b, tools, nil)

	require.NoError(t, c.Clone(context.Background(), Request{Number: 4}))
	assert.Equal(t, [][]string{
		{"dumper", "--host=db", "app_db"},
		{"client", "--host=db", "-v", "ON_ERROR_STOP=1", "app_db_4"},
	}, tools.calls)
}

func TestCloneConcurrentNumbers(t *testing.T) {
	dir := t.TempDir()
	b := &fakeBackend{}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		tools := &fakeTools{dump: `printf "$1"`, load: `cat > ` + dir + `/"$1"`}
		c := newTestCloner(t, b, tools, nil)
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs[n-1] = c.Clone(context.Background(), Request{Number: n})
		}(i + 1)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	for _, n := range []string{"1", "2", "3"} {
		data, err := os.ReadFile(filepath.Join(dir, "app_db_"+n))
		require.NoError(t, err)
		assert.Equal(t, "app_db", string(data))
	}
	stmts := b.statements()
	assert.Len(t, stmts, 3)
	for _, s := range stmts {
		assert.True(t, strings.HasPrefix(s, "CREATE DATABASE `app_db_"), s)
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Settings: sourceSettings()})
	assert.Error(t, err)

	s := sourceSettings()
	s.Engine = settings.EnginePostgres
	_, err = New(Config{Backend: &fakeBackend{}, Settings: s})
	assert.Error(t, err)

	s = sourceSettings()
	s.Name = ""
	_, err = New(Config{Backend: &fakeBackend{}, Settings: s})
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "dump-restore-in-flight", StateDumpRestoreInFlight.String())
	assert.Equal(t, "unknown", State(42).String())
}
