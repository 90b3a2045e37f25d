package taskcache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type warnings struct {
	errs []error
}

func (w *warnings) sink(err error) { w.errs = append(w.errs, err) }

func newTestStore(t *testing.T) (*Store, *warnings) {
	t.Helper()
	w := &warnings{}
	return ForBuildDir(t.TempDir(), w.sink), w
}

func ordersLink(deps ...Dependency) RpcLinkTask {
	return RpcLinkTask{ComponentName: "orders", Dependencies: deps}
}

// runTask mimics the pipeline: skip when up to date, otherwise run work and
// record the outcome. It reports whether work ran.
func runTask(t *testing.T, store *Store, task Task, work func() error) (bool, error) {
	t.Helper()
	m, err := NewMarker(store, task)
	require.NoError(t, err)
	if m.IsUpToDate() {
		return false, nil
	}
	_, err = Result(m, struct{}{}, work())
	return true, err
}

func TestMarker_FirstRunIsStale(t *testing.T) {
	store, _ := newTestStore(t)

	m, err := NewMarker(store, ordersLink(Dependency{"inventory", "rpc"}))
	require.NoError(t, err)
	assert.False(t, m.IsUpToDate())
	assert.Nil(t, m.Previous())
	assert.False(t, store.Exists(m.Path()))
}

func TestMarker_SuccessThenUpToDate(t *testing.T) {
	store, _ := newTestStore(t)
	task := ComponentGeneratorTask{ComponentName: "orders", Generator: "wasm-rpc-stubs"}

	calls := 0
	work := func() error { calls++; return nil }

	ran, err := runTask(t, store, task, work)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = runTask(t, store, task, work)
	require.NoError(t, err)
	assert.False(t, ran, "second run should be skipped")
	assert.Equal(t, 1, calls)
}

func TestMarker_RecordContents(t *testing.T) {
	store, _ := newTestStore(t)
	task := AddMetadataTask{ComponentName: "orders", RootPackageName: "shop:orders"}

	m, err := NewMarker(store, task)
	require.NoError(t, err)
	require.NoError(t, m.Success())

	rec := store.Load(m.Path())
	require.NotNil(t, rec)
	assert.Equal(t, "AddMetadata", rec.Kind)
	assert.Equal(t, `{"component_name":"orders"}`, rec.ID)
	assert.Equal(t, `{"component_name":"orders","root_package_name":"shop:orders"}`, rec.HashInput)
	assert.Equal(t, m.Hash(), rec.HashHex)
	assert.True(t, rec.Success)
}

func TestMarker_InputChangeInvalidates(t *testing.T) {
	store, _ := newTestStore(t)
	spec := ExternalCommand{Command: "cargo component build", Dir: "."}
	task := ExternalCommandTask{BuildDir: "/b", Command: spec}

	ran, err := runTask(t, store, task, func() error { return nil })
	require.NoError(t, err)
	require.True(t, ran)

	changed := task
	changed.Command.Sources = []string{"src/**/*.rs"}
	m, err := NewMarker(store, changed)
	require.NoError(t, err)
	assert.False(t, m.IsUpToDate())

	// ExternalCommand has no identity, so the changed task has its own marker
	// and the original one is untouched.
	orig, err := NewMarker(store, task)
	require.NoError(t, err)
	assert.NotEqual(t, orig.Path(), m.Path())
	assert.True(t, orig.IsUpToDate())
}

func TestMarker_FailureIsNotUpToDate(t *testing.T) {
	store, _ := newTestStore(t)
	task := ComponentGeneratorTask{ComponentName: "orders", Generator: "wasm-rpc-stubs"}
	boom := errors.New("boom")

	ran, err := runTask(t, store, task, func() error { return boom })
	require.True(t, ran)
	require.ErrorIs(t, err, boom)

	m, err := NewMarker(store, task)
	require.NoError(t, err)
	assert.False(t, m.IsUpToDate())
	require.NotNil(t, m.Previous())
	assert.False(t, m.Previous().Success)
	assert.Equal(t, m.Hash(), m.Previous().HashHex, "hash matches, only success flag differs")
}

func TestMarker_StaleMarkerDeletedOnConstruction(t *testing.T) {
	store, _ := newTestStore(t)
	task := ComponentGeneratorTask{ComponentName: "orders", Generator: "wasm-rpc-stubs"}

	m, err := NewMarker(store, task)
	require.NoError(t, err)
	require.NoError(t, m.Failure())
	require.True(t, store.Exists(m.Path()))

	// Constructing again classifies the failed record as stale and removes it
	// before any work happens. Never finishing simulates a crash mid-task.
	m2, err := NewMarker(store, task)
	require.NoError(t, err)
	assert.False(t, m2.IsUpToDate())
	assert.False(t, store.Exists(m2.Path()))

	m3, err := NewMarker(store, task)
	require.NoError(t, err)
	assert.False(t, m3.IsUpToDate())
	assert.Nil(t, m3.Previous())
}

func TestMarker_UpToDateMarkerKept(t *testing.T) {
	store, _ := newTestStore(t)
	task := ComponentGeneratorTask{ComponentName: "orders", Generator: "g"}

	m, err := NewMarker(store, task)
	require.NoError(t, err)
	require.NoError(t, m.Success())

	m2, err := NewMarker(store, task)
	require.NoError(t, err)
	assert.True(t, m2.IsUpToDate())
	assert.True(t, store.Exists(m2.Path()))
}

func TestMarker_CrashAfterStaleLeavesNoSuccess(t *testing.T) {
	store, _ := newTestStore(t)
	v1 := AddMetadataTask{ComponentName: "orders", RootPackageName: "shop:orders"}
	v2 := AddMetadataTask{ComponentName: "orders", RootPackageName: "shop:orders-v2"}

	m, err := NewMarker(store, v1)
	require.NoError(t, err)
	require.NoError(t, m.Success())

	// v2 shares the marker slot; constructing it deletes the v1 success record.
	m2, err := NewMarker(store, v2)
	require.NoError(t, err)
	require.False(t, m2.IsUpToDate())
	assert.Equal(t, m.Path(), m2.Path())
	assert.False(t, store.Exists(m2.Path()))

	// Going back to v1 after the interrupted v2 run must re-run v1.
	m3, err := NewMarker(store, v1)
	require.NoError(t, err)
	assert.False(t, m3.IsUpToDate())
}

func TestMarker_RpcLinkScenario(t *testing.T) {
	store, _ := newTestStore(t)

	first := ordersLink(Dependency{"inventory", "rpc"}, Dependency{"billing", "rpc"})
	m1, err := NewMarker(store, first)
	require.NoError(t, err)
	require.False(t, m1.IsUpToDate())
	require.NoError(t, m1.Success())
	h1 := m1.Hash()

	reordered := ordersLink(Dependency{"billing", "rpc"}, Dependency{"inventory", "rpc"}, Dependency{"billing", "rpc"})
	m2, err := NewMarker(store, reordered)
	require.NoError(t, err)
	assert.True(t, m2.IsUpToDate())
	assert.Equal(t, h1, m2.Hash())

	retyped := ordersLink(Dependency{"inventory", "rpc"}, Dependency{"billing", "http"})
	m3, err := NewMarker(store, retyped)
	require.NoError(t, err)
	assert.False(t, m3.IsUpToDate())
	assert.NotEqual(t, h1, m3.Hash())
	assert.Equal(t, m1.Path(), m3.Path(), "same logical task keeps its marker file")
	require.NoError(t, m3.Success())

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, m3.Hash(), entries[0].Record.HashHex)
}

func TestMarker_CorruptMarkerTreatedAsMissing(t *testing.T) {
	store, w := newTestStore(t)
	task := ComponentGeneratorTask{ComponentName: "orders", Generator: "g"}

	m, err := NewMarker(store, task)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(store.Dir(), 0o755))
	require.NoError(t, os.WriteFile(m.Path(), []byte("{not json"), 0o644))

	m2, err := NewMarker(store, task)
	require.NoError(t, err)
	assert.False(t, m2.IsUpToDate())
	assert.Nil(t, m2.Previous())
	assert.False(t, store.Exists(m2.Path()), "corrupt marker is removed")

	require.Len(t, w.errs, 1)
	assert.ErrorIs(t, w.errs[0], ErrReadMarker)
	var cerr *Error
	require.ErrorAs(t, w.errs[0], &cerr)
	assert.Equal(t, CodeReadMarker, cerr.Code)

	require.NoError(t, m2.Success())
	m3, err := NewMarker(store, task)
	require.NoError(t, err)
	assert.True(t, m3.IsUpToDate())
}

func TestMarker_ForeignFieldsIgnored(t *testing.T) {
	store, w := newTestStore(t)
	task := ComponentGeneratorTask{ComponentName: "orders", Generator: "g"}

	m, err := NewMarker(store, task)
	require.NoError(t, err)
	body := `{"hash_hex":"` + m.Hash() + `","success":true,"extra":[1,2]}`
	require.NoError(t, os.MkdirAll(store.Dir(), 0o755))
	require.NoError(t, os.WriteFile(m.Path(), []byte(body), 0o644))

	m2, err := NewMarker(store, task)
	require.NoError(t, err)
	assert.True(t, m2.IsUpToDate())
	assert.Empty(t, w.errs)
}

func TestMarker_FinalizeTwice(t *testing.T) {
	store, _ := newTestStore(t)
	m, err := NewMarker(store, ComponentGeneratorTask{ComponentName: "a", Generator: "g"})
	require.NoError(t, err)

	require.NoError(t, m.Success())
	err = m.Failure()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFinalized)
	assert.ErrorIs(t, err, ErrWriteMarker)

	// The first outcome stands.
	rec := store.Load(m.Path())
	require.NotNil(t, rec)
	assert.True(t, rec.Success)
}

func TestResult_ReturnsValue(t *testing.T) {
	store, _ := newTestStore(t)
	m, err := NewMarker(store, ComponentGeneratorTask{ComponentName: "a", Generator: "g"})
	require.NoError(t, err)

	got, err := Result(m, "linked.wasm", nil)
	require.NoError(t, err)
	assert.Equal(t, "linked.wasm", got)
	assert.True(t, m.IsUpToDate())
}

func TestResult_WriteFailures(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	store := NewStore(blocker, nil)
	task := RpcLinkTask{ComponentName: "orders"}

	t.Run("success write fails", func(t *testing.T) {
		m, err := NewMarker(store, task)
		require.NoError(t, err)
		_, err = Result(m, 1, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrWriteMarker)
		var cerr *Error
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, KindRpcLink, cerr.Kind)
		assert.Contains(t, cerr.Error(), "orders")
	})

	t.Run("failure write fails keeps task error primary", func(t *testing.T) {
		m, err := NewMarker(store, task)
		require.NoError(t, err)
		boom := errors.New("link failed")
		_, err = Result(m, 0, boom)
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, ErrWriteMarker)
		var terr *TaskError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, boom, terr.TaskErr)
		assert.True(t, len(err.Error()) > len(boom.Error()))
		assert.Equal(t, boom.Error(), err.Error()[:len(boom.Error())])
	})
}

func TestNewMarker_NilTask(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := NewMarker(store, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSerializeInput)
}

func TestNewMarker_PointerTask(t *testing.T) {
	store, _ := newTestStore(t)
	v := AddMetadataTask{ComponentName: "orders", RootPackageName: "p"}

	byValue, err := NewMarker(store, v)
	require.NoError(t, err)
	byPointer, err := NewMarker(store, &v)
	require.NoError(t, err)
	assert.Equal(t, byValue.Hash(), byPointer.Hash())
	assert.Equal(t, byValue.Path(), byPointer.Path())
}
