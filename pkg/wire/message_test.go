package wire_test

import (
	"errors"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isuhao/minisphere/pkg/dvalue"
	"github.com/isuhao/minisphere/pkg/protoerr"
	"github.com/isuhao/minisphere/pkg/wire"
)

// pipePair returns a client Framer and the raw net.Conn standing in
// for the target end of the TCP connection described in spec §6, so
// tests can act as the target by writing raw Values.
func pipePair(t *testing.T) (client *wire.Framer, target net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return wire.NewFramer(a), b
}

func TestSendRequestWritesReqAndReturnsCommandID(t *testing.T) {
	client, target := pipePair(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		head, _ := dvalue.Decode(target)
		require.Equal(t, dvalue.TagReqClass, head.Tag)
		cmd, _ := dvalue.Decode(target)
		require.Equal(t, int32(7), cmd.Int)
		for { // drain remaining argument value(s) and EOM
			v, err := dvalue.Decode(target)
			if err != nil || v.Tag == dvalue.TagEOM {
				break
			}
		}
	}()

	reqID, err := client.SendRequest(7, []dvalue.Value{dvalue.String("main.js:42")})
	require.NoError(t, err)
	require.Equal(t, int32(7), reqID)
	<-done
}

func TestFramerPairing(t *testing.T) {
	client, target := pipePair(t)

	replied := make(chan int32, 1)
	go func() {
		drainMessage(target) // the REQ just sent
		sendRaw(target, dvalue.TagNfyClass, 99, dvalue.String("log line"))
		sendRaw(target, dvalue.TagRepClass, <-replied, dvalue.Int32(7))
	}()

	reqID, err := client.SendRequest(7, nil)
	require.NoError(t, err)
	replied <- reqID

	// A notification arrives before the reply and must not consume
	// the pending request.
	msg, err := client.Poll()
	require.NoError(t, err)
	require.Equal(t, wire.ClassNfy, msg.Class)
	require.True(t, client.Busy(), "framer should still be awaiting its reply after a notification")

	msg, err = client.Poll()
	require.NoError(t, err)
	require.Equal(t, wire.ClassRep, msg.Class)
	id, ok := msg.CommandID()
	require.True(t, ok)
	require.Equal(t, reqID, id)
	require.False(t, client.Busy())
}

func TestBusyRejectsSecondOutstandingRequest(t *testing.T) {
	client, target := pipePair(t)
	go io.Copy(io.Discard, target) // nobody inspects the REQ bytes in this test

	_, err := client.SendRequest(1, nil)
	require.NoError(t, err)

	_, err = client.SendRequest(2, nil)
	var busy *protoerr.Busy
	require.True(t, errors.As(err, &busy))
}

func TestPollRejectsReplyWithNoPendingRequest(t *testing.T) {
	client, target := pipePair(t)

	go sendRaw(target, dvalue.TagRepClass, 0, dvalue.Int32(0))

	_, err := client.Poll()
	var protoErr *protoerr.ProtocolError
	require.True(t, errors.As(err, &protoErr))
}

func TestPollRejectsReqFromServer(t *testing.T) {
	client, target := pipePair(t)

	go sendRaw(target, dvalue.TagReqClass, 1, dvalue.Int32(0))

	_, err := client.Poll()
	var protoErr *protoerr.ProtocolError
	require.True(t, errors.As(err, &protoErr))
}

// sendRaw writes a complete message: classTag, commandID, a single
// argument value, EOM.
func sendRaw(conn net.Conn, classTag dvalue.Tag, commandID int32, arg dvalue.Value) {
	dvalue.Encode(dvalue.Value{Tag: classTag}, conn)
	dvalue.Encode(dvalue.Int32(commandID), conn)
	dvalue.Encode(arg, conn)
	dvalue.Encode(dvalue.Value{Tag: dvalue.TagEOM}, conn)
}

// drainMessage reads and discards one complete message's values.
func drainMessage(conn net.Conn) {
	dvalue.Decode(conn) // class marker
	for {
		v, err := dvalue.Decode(conn)
		if err != nil || v.Tag == dvalue.TagEOM {
			return
		}
	}
}
