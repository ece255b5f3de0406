package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/fileops/pkg/job"
	"github.com/vulntor/fileops/pkg/loop"
	"github.com/vulntor/fileops/pkg/wire"
)

// pipeConn is an in-memory Conn. Every ReadMessage call announces itself on
// reading, which lets tests know the previous frame has been posted.
type pipeConn struct {
	in      chan []byte
	readErr chan error
	reading chan struct{}
	closed  chan struct{}

	mu         sync.Mutex
	written    [][]byte
	closeCalls int
	closeCode  int
	closeOnce  sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		in:      make(chan []byte),
		readErr: make(chan error, 1),
		reading: make(chan struct{}, 64),
		closed:  make(chan struct{}),
	}
}

func (c *pipeConn) ReadMessage(ctx context.Context) ([]byte, error) {
	c.reading <- struct{}{}
	select {
	case data := <-c.in:
		return data, nil
	case err := <-c.readErr:
		return nil, err
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (c *pipeConn) WriteMessage(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, data)
	return nil
}

func (c *pipeConn) Close(code int, reason string) error {
	c.mu.Lock()
	c.closeCalls++
	c.closeCode = code
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *pipeConn) push(t *testing.T, frame string) {
	t.Helper()
	select {
	case c.in <- []byte(frame):
	case <-time.After(time.Second):
		t.Fatalf("read pump did not accept frame %s", frame)
	}
	select {
	case <-c.reading:
	case <-time.After(time.Second):
		t.Fatalf("read pump did not return for next frame")
	}
}

func (c *pipeConn) stats() (int, int, [][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls, c.closeCode, append([][]byte(nil), c.written...)
}

type pipeDialer struct {
	dials atomic.Int32
	conns chan *pipeConn
	delay time.Duration
}

func newPipeDialer() *pipeDialer {
	return &pipeDialer{conns: make(chan *pipeConn, 8)}
}

func (d *pipeDialer) Dial(ctx context.Context, jobID string, kind job.Kind) (Conn, error) {
	d.dials.Add(1)
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	c := newPipeConn()
	d.conns <- c
	return c, nil
}

type recorder struct {
	mu   sync.Mutex
	msgs []wire.Message
}

func (r *recorder) handle(m wire.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recorder) all() []wire.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wire.Message(nil), r.msgs...)
}

type fixture struct {
	loop   *loop.Loop
	hub    *Hub
	dialer *pipeDialer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	lp := loop.New()
	require.NoError(t, lp.Start(context.Background()))
	t.Cleanup(func() { _ = lp.Stop(context.Background()) })

	d := newPipeDialer()
	return &fixture{loop: lp, hub: NewHub(d, lp), dialer: d}
}

func (f *fixture) open(t *testing.T, jobID string) (*JobChannel, *pipeConn) {
	t.Helper()
	ch, err := f.hub.Open(context.Background(), jobID, job.KindCopy)
	require.NoError(t, err)
	conn := <-f.dialer.conns
	<-conn.reading
	return ch.(*JobChannel), conn
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.loop.Flush(ctx))
}

func waitDone(t *testing.T, ch *JobChannel) {
	t.Helper()
	select {
	case <-ch.Done():
	case <-time.After(time.Second):
		t.Fatal("channel pumps did not exit")
	}
}

func TestJobChannel_DispatchesInArrivalOrder(t *testing.T) {
	f := newFixture(t)
	ch, conn := f.open(t, "job-1")
	rec := &recorder{}
	ch.OnMessage(rec.handle)

	conn.push(t, `{"type":"start","totalBytes":100}`)
	conn.push(t, `{"type":"progress","processed":10,"total":100}`)
	conn.push(t, `{"type":"progress","processed":60,"total":100}`)
	f.flush(t)

	msgs := rec.all()
	require.Len(t, msgs, 3)
	assert.Equal(t, wire.Start{TotalBytes: 100}, msgs[0])
	assert.Equal(t, int64(10), msgs[1].(wire.Progress).Processed)
	assert.Equal(t, int64(60), msgs[2].(wire.Progress).Processed)
}

func TestJobChannel_ReplaysBacklogToLateHandler(t *testing.T) {
	f := newFixture(t)
	ch, conn := f.open(t, "job-1")

	conn.push(t, `{"type":"start","totalBytes":5}`)
	f.flush(t)

	rec := &recorder{}
	ch.OnMessage(rec.handle)
	f.flush(t)

	require.Len(t, rec.all(), 1)
}

func TestJobChannel_SkipsUndecodableFrames(t *testing.T) {
	f := newFixture(t)
	ch, conn := f.open(t, "job-1")
	rec := &recorder{}
	ch.OnMessage(rec.handle)

	conn.push(t, `garbage`)
	conn.push(t, `{"type":"cancelled"}`)
	f.flush(t)

	msgs := rec.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, wire.Cancelled{}, msgs[0])
}

func TestJobChannel_SendAndCloseOnce(t *testing.T) {
	f := newFixture(t)
	ch, conn := f.open(t, "job-1")

	require.NoError(t, ch.Send(context.Background(), wire.NewOverwriteResponse("p1", "skip-this", "")))

	require.NoError(t, ch.Close(ReasonFinished))
	require.NoError(t, ch.Close(ReasonCancelled))
	require.NoError(t, ch.Close(ReasonShutdown))
	waitDone(t, ch)

	closes, code, written := conn.stats()
	assert.Equal(t, 1, closes)
	assert.Equal(t, CloseNormal, code)
	require.Len(t, written, 1)
	assert.JSONEq(t, `{"type":"overwrite_response","decision":"skip-this","promptId":"p1"}`, string(written[0]))

	assert.ErrorIs(t, ch.Send(context.Background(), wire.NewOverwriteResponse("p2", "skip-this", "")), ErrClosed)
}

func TestJobChannel_UnexpectedCloseYieldsOneDisconnect(t *testing.T) {
	f := newFixture(t)
	ch, conn := f.open(t, "job-1")
	rec := &recorder{}
	ch.OnMessage(rec.handle)

	conn.push(t, `{"type":"progress","processed":1}`)
	conn.readErr <- errors.New("connection reset by peer")
	waitDone(t, ch)
	f.flush(t)

	msgs := rec.all()
	require.Len(t, msgs, 2)
	disc, ok := msgs[1].(wire.Disconnected)
	require.True(t, ok)
	assert.EqualError(t, disc.Err, "connection reset by peer")
	assert.False(t, f.hub.IsOpen("job-1"))
}

func TestJobChannel_CloseAfterTerminalIsSilent(t *testing.T) {
	f := newFixture(t)
	ch, conn := f.open(t, "job-1")
	rec := &recorder{}
	ch.OnMessage(rec.handle)

	conn.push(t, `{"type":"complete"}`)
	conn.readErr <- errors.New("EOF")
	waitDone(t, ch)
	f.flush(t)

	msgs := rec.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, wire.TypeComplete, msgs[0].Type())
}

func TestJobChannel_DropsFramesAfterTerminal(t *testing.T) {
	f := newFixture(t)
	ch, conn := f.open(t, "job-1")
	rec := &recorder{}
	ch.OnMessage(rec.handle)

	conn.push(t, `{"type":"error","message":"disk full"}`)
	conn.push(t, `{"type":"complete"}`)
	conn.push(t, `{"type":"progress","processed":99}`)
	f.flush(t)

	msgs := rec.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, wire.Error{Message: "disk full"}, msgs[0])
}

func TestJobChannel_NormalLocalCloseIsSilent(t *testing.T) {
	f := newFixture(t)
	ch, _ := f.open(t, "job-1")
	rec := &recorder{}
	ch.OnMessage(rec.handle)

	require.NoError(t, ch.Close(ReasonCancelled))
	waitDone(t, ch)
	f.flush(t)

	assert.Empty(t, rec.all())
}

func TestJobChannel_AbnormalLocalCloseSurfaces(t *testing.T) {
	f := newFixture(t)
	ch, _ := f.open(t, "job-1")
	rec := &recorder{}
	ch.OnMessage(rec.handle)

	require.NoError(t, ch.Close(ReasonShutdown))
	waitDone(t, ch)
	f.flush(t)

	msgs := rec.all()
	require.Len(t, msgs, 1)
	_, ok := msgs[0].(wire.Disconnected)
	assert.True(t, ok)
}

func TestHub_OpenIsIdempotentWhileOpen(t *testing.T) {
	f := newFixture(t)
	first, _ := f.open(t, "job-1")

	again, err := f.hub.Open(context.Background(), "job-1", job.KindCopy)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, int32(1), f.dialer.dials.Load())
	assert.True(t, f.hub.IsOpen("job-1"))

	require.NoError(t, first.Close(ReasonFinished))
	assert.False(t, f.hub.IsOpen("job-1"))
	waitDone(t, first)

	reopened, _ := f.open(t, "job-1")
	assert.NotSame(t, first, reopened)
	assert.Equal(t, int32(2), f.dialer.dials.Load())
}

func TestHub_ConcurrentOpensShareOneDial(t *testing.T) {
	f := newFixture(t)
	f.dialer.delay = 20 * time.Millisecond

	var wg sync.WaitGroup
	results := make([]Channel, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ch, err := f.hub.Open(context.Background(), "job-1", job.KindCopy)
			assert.NoError(t, err)
			results[i] = ch
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.dialer.dials.Load())
	for _, ch := range results[1:] {
		assert.Same(t, results[0], ch)
	}
	f.hub.CloseAll(ReasonShutdown)
}

func TestHub_RejectsEmptyJobID(t *testing.T) {
	f := newFixture(t)
	_, err := f.hub.Open(context.Background(), "", job.KindCopy)
	require.Error(t, err)
}
