package envelope

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/reglet-dev/nativeabi/domain/ports"
	"github.com/reglet-dev/nativeabi/infrastructure/arena"
	"github.com/reglet-dev/nativeabi/internal/testutil"
	"github.com/reglet-dev/nativeabi/wireformat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type EnvelopeSuite struct {
	suite.Suite
	mem  *testutil.TrackingMemory
	prod *Producer
	cons *Consumer
}

func (s *EnvelopeSuite) SetupTest() {
	s.mem = testutil.NewTrackingMemory()
	s.prod = NewProducer(s.mem, WithTerminator(failTest(s.T())))
	s.cons = NewConsumer(s.mem)
}

func (s *EnvelopeSuite) TearDownTest() {
	testutil.AssertBalanced(s.T(), s.mem)
}

func failTest(t *testing.T) ports.Terminator {
	return ports.TerminatorFunc(func(reason error) {
		t.Fatalf("unexpected termination: %v", reason)
	})
}

func (s *EnvelopeSuite) TestVoid() {
	s.NoError(s.cons.Void(s.prod.Void(nil)))

	err := s.cons.Void(s.prod.Void(errors.New("disk full")))
	testutil.RequireNativeError(s.T(), err, "disk full")
}

func (s *EnvelopeSuite) TestString() {
	for _, in := range []string{"", "hello", "héllo 😀"} {
		got, err := s.cons.String(s.prod.String(entities.Ok(in)))
		s.Require().NoError(err)
		s.Equal(in, got)
	}

	_, err := s.cons.String(s.prod.String(entities.Fail[string]("no greeting")))
	testutil.RequireNativeError(s.T(), err, "no greeting")
}

func (s *EnvelopeSuite) TestScalarFidelity() {
	for _, v := range []int32{math.MinInt32, -1, 0, 1, math.MaxInt32} {
		got, err := s.cons.Int32(s.prod.Int32(entities.Ok(v)))
		s.Require().NoError(err)
		s.Equal(v, got)
	}
	for _, v := range []uint32{0, 1, math.MaxUint32} {
		got, err := s.cons.Uint32(s.prod.Uint32(entities.Ok(v)))
		s.Require().NoError(err)
		s.Equal(v, got)
	}
	for _, v := range []bool{true, false} {
		got, err := s.cons.Bool(s.prod.Bool(entities.Ok(v)))
		s.Require().NoError(err)
		s.Equal(v, got)
	}
}

func (s *EnvelopeSuite) TestScalarErrors() {
	_, err := s.cons.Int32(s.prod.Int32(entities.Fail[int32](`invalid integer: "abc"`)))
	testutil.RequireNativeError(s.T(), err, `invalid integer: "abc"`)

	_, err = s.cons.Uint32(s.prod.Uint32(entities.Fail[uint32]("negative")))
	testutil.RequireNativeError(s.T(), err, "negative")

	_, err = s.cons.Bool(s.prod.Bool(entities.Fail[bool]("")))
	testutil.RequireNativeError(s.T(), err, "")
}

func (s *EnvelopeSuite) TestHandleStaysWithCaller() {
	block, err := s.mem.Alloc(16)
	s.Require().NoError(err)

	got, err := s.cons.Handle(s.prod.Handle(entities.Ok(block)))
	s.Require().NoError(err)
	s.Equal(block, got)

	_, err = s.mem.Size(got)
	s.Require().NoError(err, "consumer must not release the handle")
	s.Require().NoError(s.mem.Free(got))
}

func (s *EnvelopeSuite) TestMutualExclusivity() {
	ok := s.prod.String(entities.Ok("value"))
	env, err := s.cons.Open(ok, entities.KindString)
	s.Require().NoError(err)
	s.False(env.Failed())
	payload, err := env.ValueAddr()
	s.Require().NoError(err)
	s.False(payload.IsNull())
	s.Require().NoError(s.mem.Free(ok))
	s.Require().NoError(s.mem.Free(payload), "payload and envelope release independently")

	bad := s.prod.String(entities.Fail[string]("boom"))
	env, err = s.cons.Open(bad, entities.KindString)
	s.Require().NoError(err)
	s.True(env.Failed())
	value, err := env.ValueAddr()
	s.Require().NoError(err)
	s.True(value.IsNull(), "value must be zero on the error path")
	msg, err := env.ErrorText()
	s.Require().NoError(err)
	s.Equal("boom", msg)
	s.Require().NoError(s.mem.Free(env.Error))
	s.Require().NoError(s.mem.Free(bad))
}

func (s *EnvelopeSuite) TestEmbeddedNULInValue() {
	_, err := s.cons.String(s.prod.String(entities.Ok("a\x00b")))
	callErr := testutil.RequireNativeError(s.T(), err, "invalid value: wire format encode failed for string at 0x0: string contains embedded NUL")
	s.Empty(callErr.Function)
}

func (s *EnvelopeSuite) TestEmbeddedNULInError() {
	err := s.cons.Void(s.prod.Void(errors.New("bad\x00tail")))
	testutil.RequireNativeError(s.T(), err, "bad\uFFFDtail")
}

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (s *EnvelopeSuite) TestTextValue() {
	var p point
	s.Require().NoError(s.cons.TextInto(s.prod.TextValue(point{X: 1, Y: -2}, nil), &p))
	s.Equal(point{X: 1, Y: -2}, p)

	raw, err := s.cons.Text(s.prod.Text(entities.Ok([]byte(`{"a":1}`))))
	s.Require().NoError(err)
	testutil.AssertJSONEqual(s.T(), `{"a":1}`, string(raw))

	err = s.cons.TextInto(s.prod.TextValue(nil, errors.New("no data")), &p)
	testutil.RequireNativeError(s.T(), err, "no data")

	_, err = s.cons.Text(s.prod.TextValue(make(chan int), nil))
	s.ErrorContains(err, "failed to serialize chan int")
}

func (s *EnvelopeSuite) TestTextIntoDecodeError() {
	addr := s.prod.Text(entities.Ok([]byte(`{"x":"one"}`)))
	err := s.cons.For("get_point").TextInto(addr, &point{})

	var decodeErr *abierrors.DecodeError
	s.Require().ErrorAs(err, &decodeErr)
	s.Equal("get_point", decodeErr.Caller)
	s.Equal("*envelope.point", decodeErr.Type)
	s.Equal(`{"x":"one"}`, decodeErr.Text)
}

func (s *EnvelopeSuite) TestForNamesFunction() {
	_, err := s.cons.For("parse_int").Int32(s.prod.Int32(entities.Fail[int32]("bad")))
	callErr := testutil.RequireNativeError(s.T(), err, "bad")
	s.Equal("parse_int", callErr.Function)
}

func (s *EnvelopeSuite) TestNullEnvelope() {
	s.ErrorIs(s.cons.Void(entities.Null), abierrors.ErrNullAddress)
}

func TestEnvelopeSuite(t *testing.T) {
	suite.Run(t, new(EnvelopeSuite))
}

func TestLayout32(t *testing.T) {
	mem := testutil.NewTrackingMemory(arena.WithPtrSize(4))
	prod := NewProducer(mem, WithTerminator(failTest(t)))
	cons := NewConsumer(mem)

	addr := prod.Bool(entities.Ok(true))
	size, err := mem.Size(addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), size)

	v, err := cons.Bool(addr)
	require.NoError(t, err)
	assert.True(t, v)

	s, err := cons.String(prod.String(entities.Ok("thirty-two")))
	require.NoError(t, err)
	assert.Equal(t, "thirty-two", s)
	testutil.AssertBalanced(t, mem)
}

func TestPayloadAllocationFailureBecomesError(t *testing.T) {
	tracking := testutil.NewTrackingMemory()
	// 1: envelope, 2: payload (fails), 3: error message.
	mem := testutil.FailNth(tracking, 2)
	prod := NewProducer(mem, WithTerminator(failTest(t)))

	_, err := NewConsumer(mem).String(prod.String(entities.Ok("payload")))
	var callErr *abierrors.NativeCallError
	require.ErrorAs(t, err, &callErr)
	assert.True(t, strings.HasPrefix(callErr.Message, "allocation failed"), callErr.Message)
	testutil.AssertBalanced(t, tracking)
}

func TestEnvelopeAllocationFailureTerminates(t *testing.T) {
	tracking := testutil.NewTrackingMemory()
	var reasons []error
	prod := NewProducer(testutil.FailNth(tracking, 1), WithTerminator(ports.TerminatorFunc(func(reason error) {
		reasons = append(reasons, reason)
	})))

	assert.Panics(t, func() { prod.Int32(entities.Ok(int32(1))) })
	require.Len(t, reasons, 1)
	assert.ErrorContains(t, reasons[0], "allocate return_value_int32")
	testutil.AssertBalanced(t, tracking)
}

func TestErrorStringAllocationFailureTerminates(t *testing.T) {
	tracking := testutil.NewTrackingMemory()
	var reasons []error
	prod := NewProducer(testutil.FailNth(tracking, 2), WithTerminator(ports.TerminatorFunc(func(reason error) {
		reasons = append(reasons, reason)
	})))

	assert.Panics(t, func() { prod.Void(errors.New("cannot report")) })
	require.Len(t, reasons, 1)
	assert.ErrorIs(t, reasons[0], testutil.ErrInjected)
	testutil.AssertBalanced(t, tracking, "the envelope is released before terminating")
}

const fatalEnv = "NATIVEABI_ENVELOPE_FATAL"

func TestExitTerminator(t *testing.T) {
	if os.Getenv(fatalEnv) == "1" {
		prod := NewProducer(arena.New(arena.WithMaxTotalBytes(1)))
		prod.Void(nil)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestExitTerminator$") //nolint:gosec // G204: re-executes the test binary
	cmd.Env = append(os.Environ(), fatalEnv+"=1")
	err := cmd.Run()

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, DefaultExitCode, exitErr.ExitCode())
}

func TestFailErrLogsDetail(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	mem := testutil.NewTrackingMemory()
	p := NewProducer(mem, WithTerminator(failTest(t)), WithLogger(logger))

	err := abierrors.Operational("parse", errors.New("bad digit"))
	_, got := NewConsumer(mem).Int32(p.FailErr(entities.KindInt32, err))
	testutil.RequireNativeError(t, got, err.Error())

	assert.Contains(t, buf.String(), "type="+entities.ErrorTypeOperational)
	assert.Contains(t, buf.String(), "code=parse")
	testutil.AssertBalanced(t, mem)
}

func TestFailErrLogsCause(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	mem := testutil.NewTrackingMemory()
	p := NewProducer(mem, WithTerminator(failTest(t)), WithLogger(logger))

	err := abierrors.Operational("reverse",
		&abierrors.AllocationError{Requested: 64, Current: 100, Limit: 128, Err: abierrors.ErrLimitExceeded})
	_, got := NewConsumer(mem).String(p.FailErr(entities.KindString, err))
	testutil.RequireNativeError(t, got, err.Error())

	assert.Contains(t, buf.String(), "code=reverse")
	assert.Contains(t, buf.String(), "cause_type="+entities.ErrorTypeAllocation)
	assert.Contains(t, buf.String(), "current:100 limit:128 requested:64")
	testutil.AssertBalanced(t, mem)
}

func TestProducerMemory(t *testing.T) {
	mem := arena.New()
	assert.Same(t, mem, NewProducer(mem).Memory().(*arena.Arena))
}

func TestDecodeOwnedErrorDirectly(t *testing.T) {
	mem := arena.New()
	addr := NewProducer(mem).Fail(entities.KindHandle, "direct")
	env, err := NewConsumer(mem).Open(addr, entities.KindHandle)
	require.NoError(t, err)
	msg, err := wireformat.DecodeString(mem, env.Error)
	require.NoError(t, err)
	assert.Equal(t, "direct", msg)
}

func TestWithStatic(t *testing.T) {
	mem := testutil.NewTrackingMemory()
	static := NewProducer(mem).Void(nil)
	cons := NewConsumer(mem, WithStatic(static))

	require.NoError(t, cons.Void(static))
	require.NoError(t, cons.For("dealloc").Void(static))
	assert.Equal(t, []entities.Addr{static}, mem.Live())

	require.NoError(t, mem.Free(static))
	testutil.AssertBalanced(t, mem)
}
