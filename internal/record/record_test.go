package record

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *Record {
	b := NewBuilder()
	_ = b.Set(FieldTime, t0.Add(d))
	return b.Build()
}

func TestBuild_FillsRequiredFields(t *testing.T) {
	b := NewBuilder().WithClock(func() time.Time { return t0 })
	require.NoError(t, b.Set(FieldMessage, "kek"))

	r := b.Build()

	ts, ok := r.Time()
	require.True(t, ok)
	assert.Equal(t, t0, ts)
	assert.Equal(t, 0, r.Level())
	assert.False(t, r.Auto())
	assert.True(t, r.Success(), "records without success count as successful")
	assert.Equal(t, "kek", r.Message())
	assert.Equal(t, []string{FieldMessage, FieldTime, FieldLevel, FieldAuto}, r.Keys())
}

func TestBuild_KeepsExplicitFields(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Set(FieldLevel, 30))
	require.NoError(t, b.Set(FieldAuto, true))
	require.NoError(t, b.Set(FieldSuccess, false))
	require.NoError(t, b.Set(FieldServiceName, "billing"))

	r := b.Build()
	assert.Equal(t, 30, r.Level())
	assert.True(t, r.Auto())
	assert.False(t, r.Success())
	assert.Equal(t, "billing", r.ServiceName())
}

func TestBuilder_SetKeepsPosition(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Set("a", 1))
	require.NoError(t, b.Set("b", 2))
	require.NoError(t, b.Set("a", 3))

	r := b.BuildRaw()
	assert.Equal(t, []string{"a", "b"}, r.Keys())
	assert.Equal(t, int64(3), r.Value("a"))
}

func TestBuilder_SetDefaultAndUnset(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Set(FieldMessage, "user"))
	require.NoError(t, b.SetDefault(FieldMessage, "auto"))
	require.NoError(t, b.SetDefault(FieldFunction, "f"))

	v, _ := b.Get(FieldMessage)
	assert.Equal(t, "user", v)
	assert.True(t, b.Has(FieldFunction))

	b.Unset(FieldFunction)
	b.Unset("never-set")
	assert.False(t, b.Has(FieldFunction))
	assert.Equal(t, []string{FieldMessage}, b.BuildRaw().Keys())
}

func TestBuilder_NormalizesValues(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Set("i8", int8(3)))
	require.NoError(t, b.Set("u", uint32(4)))
	require.NoError(t, b.Set("f", float32(1.5)))
	require.NoError(t, b.Set("d", 1500*time.Millisecond))
	require.NoError(t, b.Set("j", JSON(`{"a":1}`)))

	r := b.BuildRaw()
	assert.Equal(t, int64(3), r.Value("i8"))
	assert.Equal(t, int64(4), r.Value("u"))
	assert.Equal(t, 1.5, r.Value("f"))
	assert.Equal(t, 1.5, r.Value("d"))
	assert.Equal(t, JSON(`{"a":1}`), r.Value("j"))
}

func TestBuilder_RejectsUnsupportedValues(t *testing.T) {
	b := NewBuilder()

	err := b.Set("ch", make(chan int))
	require.Error(t, err)
	assert.True(t, IsValueError(err))

	assert.True(t, IsValueError(b.Set("nil", nil)))
	assert.False(t, b.Has("ch"))
}

func TestBuilder_BuildIsolatesRecord(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Set("a", 1))
	r := b.Build()

	require.NoError(t, b.Set("a", 2))
	require.NoError(t, b.Set("b", 3))

	assert.Equal(t, int64(1), r.Value("a"))
	assert.False(t, r.Has("b"))
}

func TestRecord_ReadOnly(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Set(FieldMessage, "kek"))
	r := b.Build()

	err := r.Set(FieldMessage, "other")
	require.Error(t, err)
	assert.True(t, IsRewriteError(err))

	err = r.Delete(FieldMessage)
	require.Error(t, err)
	var re *RewriteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "delete", re.Op)

	assert.Equal(t, "kek", r.Message())
}

func TestRecord_ReadAccess(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Set("x", "1"))
	require.NoError(t, b.Set("y", true))
	r := b.BuildRaw()

	v, ok := r.Get("x")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = r.Get("z")
	assert.False(t, ok)
	assert.Nil(t, r.Value("z"))
	assert.True(t, r.Has("y"))
	assert.Equal(t, 2, r.Len())

	var seen []string
	for k := range r.All() {
		seen = append(seen, k)
	}
	assert.Equal(t, []string{"x", "y"}, seen)

	fields := r.Fields()
	fields["x"] = "changed"
	assert.Equal(t, "1", r.Value("x"))
}

func TestRecord_Ordering(t *testing.T) {
	early, late := at(0), at(time.Second)
	same := at(0)

	less, err := early.Less(late)
	require.NoError(t, err)
	assert.True(t, less)

	greater, err := late.Greater(early)
	require.NoError(t, err)
	assert.True(t, greater)

	assert.True(t, early.Equal(same))
	assert.False(t, early.Equal(late))
	assert.False(t, early.Equal("not a record"))
	assert.False(t, early.Equal(nil))

	// Exactly one relation holds.
	c, err := early.Compare(late)
	require.NoError(t, err)
	assert.Equal(t, -1, c)
}

func TestRecord_NoTimeIsIncomparable(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Set(FieldMessage, "no time"))
	a := b.BuildRaw()
	other := NewBuilder().BuildRaw()
	timed := at(0)

	_, err := a.Less(timed)
	assert.ErrorIs(t, err, ErrIncomparable)
	_, err = timed.Greater(a)
	assert.ErrorIs(t, err, ErrIncomparable)
	_, err = timed.Compare(nil)
	assert.ErrorIs(t, err, ErrIncomparable)

	assert.False(t, a.Equal(other))
	assert.True(t, a.Equal(a))
}

func TestSort(t *testing.T) {
	records := []*Record{at(3 * time.Second), at(time.Second), at(2 * time.Second)}
	require.NoError(t, Sort(records))

	for i := 1; i < len(records); i++ {
		less, err := records[i-1].Less(records[i])
		require.NoError(t, err)
		assert.True(t, less)
	}

	withUntimed := []*Record{at(time.Second), NewBuilder().BuildRaw()}
	assert.ErrorIs(t, Sort(withUntimed), ErrIncomparable)
}

func TestExecute_FanOutSurvivesFailures(t *testing.T) {
	var calls atomic.Int32
	ok := HandlerFunc(func(*Record) error { calls.Add(1); return nil })
	failing := HandlerFunc(func(*Record) error { calls.Add(1); return errors.New("boom") })
	panicking := HandlerFunc(func(*Record) error { calls.Add(1); panic("worse") })

	r := NewBuilder().Handlers(failing, panicking, ok, nil).Build()
	assert.NotPanics(t, r.Execute)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecute_HandlerCannotRewrite(t *testing.T) {
	var seen []string
	rewriter := HandlerFunc(func(r *Record) error {
		return r.Set(FieldMessage, "hijacked")
	})
	reader := HandlerFunc(func(r *Record) error {
		seen = append(seen, r.Message())
		return nil
	})

	b := NewBuilder().Handlers(rewriter, reader)
	require.NoError(t, b.Set(FieldMessage, "original"))
	b.Build().Execute()

	assert.Equal(t, []string{"original"}, seen)
}

func TestExecute_Extractors(t *testing.T) {
	var got *Record
	capture := HandlerFunc(func(r *Record) error { got = r; return nil })

	b := NewBuilder().
		Handlers(capture).
		Extract("host", func(*Record) (any, error) { return "web-1", nil }).
		Extract("broken", func(*Record) (any, error) { return nil, errors.New("nope") }).
		Extract("panicky", func(*Record) (any, error) { panic("x") }).
		Extract(FieldMessage, func(*Record) (any, error) { return "from extractor", nil }).
		Extract("weird", func(*Record) (any, error) { return make(chan int), nil })
	require.NoError(t, b.Set(FieldMessage, "explicit"))

	b.Build().Execute()

	require.NotNil(t, got)
	assert.Equal(t, "web-1", got.Value("host"))
	assert.False(t, got.Has("broken"))
	assert.False(t, got.Has("panicky"))
	assert.False(t, got.Has("weird"))
	assert.Equal(t, "explicit", got.Message(), "extractors never overwrite present fields")
}

func TestExecute_ConcurrentSameRecord(t *testing.T) {
	var calls, handled atomic.Int32
	r := NewBuilder().
		Handlers(HandlerFunc(func(r *Record) error {
			if r.Value("seq") == int64(1) {
				handled.Add(1)
			}
			return nil
		})).
		Extract("seq", func(*Record) (any, error) { return int(calls.Add(1)), nil }).
		Extract("host", func(r *Record) (any, error) { return r.Message() + "-web", nil }).
		Build()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Execute()
		}()
	}
	for range 100 {
		_ = r.Level()
		_ = r.Keys()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "extractors run once per record")
	assert.Equal(t, int32(8), handled.Load())
	assert.Equal(t, "-web", r.Value("host"))
	assert.Equal(t, 5, r.Len())
}

func TestInputAndHandlers(t *testing.T) {
	h := HandlerFunc(func(*Record) error { return nil })
	args := []any{2, 3}
	r := NewBuilder().Input(args, map[string]any{"k": "v"}).Handlers(h).Build()

	args[0] = 99
	require.NotNil(t, r.Input())
	assert.Equal(t, []any{2, 3}, r.Input().Args)
	assert.Equal(t, "v", r.Input().Kwargs["k"])
	assert.Len(t, r.Handlers(), 1)
	assert.True(t, r.HasHandlers())
	assert.False(t, NewBuilder().Build().HasHandlers())
}

func TestKnownAndInternalNames(t *testing.T) {
	assert.True(t, IsKnown(FieldTraceback))
	assert.False(t, IsKnown("user_id"))
	assert.True(t, IsInternal("_secret"))
	assert.False(t, IsInternal("public"))
}

func TestRecord_String(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Set("a", 1))
	assert.Equal(t, "Record{a: 1}", b.BuildRaw().String())
}
