package net

import (
	"io/ioutil"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samnetworks/samcore/src/common"
	"github.com/samnetworks/samcore/src/packet"
)

func logrusTestEntry(t testing.TB) *logrus.Entry {
	return common.NewTestEntry(t, logrus.DebugLevel)
}

func testFrame() *Frame {
	p := packet.New("alice", "samcore", "helloWorld", map[string]interface{}{
		"text": "there",
	})
	p.SetReturnCode(1234)

	return &Frame{
		Key:    packet.APIKey("samcore", "helloWorld"),
		Packet: p,
	}
}

func checkFrame(t *testing.T, sent, received *Frame) {
	t.Helper()

	if received.Key != sent.Key {
		t.Fatalf("key should be %q, not %q", sent.Key, received.Key)
	}
	if received.Packet.Sender != sent.Packet.Sender {
		t.Fatalf("sender should be %q, not %q", sent.Packet.Sender, received.Packet.Sender)
	}
	if received.Packet.ReturnCode == nil || *received.Packet.ReturnCode != *sent.Packet.ReturnCode {
		t.Fatalf("return code not preserved: %v", received.Packet.ReturnCode)
	}
	if !reflect.DeepEqual(received.Packet.Args, sent.Packet.Args) {
		t.Fatalf("args should be %v, not %v", sent.Packet.Args, received.Packet.Args)
	}
}

func TestFrameMarshal(t *testing.T) {
	sent := testFrame()

	data, err := sent.Marshal()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	received := new(Frame)
	if err := received.Unmarshal(data); err != nil {
		t.Fatalf("err: %v", err)
	}

	checkFrame(t, sent, received)
}

func TestUnixStreamLayer(t *testing.T) {
	dir, err := ioutil.TempDir("", "samcore")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	path := SocketPath(dir, "samcore")

	layer, err := NewUnixStreamLayer(path)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer layer.Close()

	acceptedCh := make(chan Conn, 1)
	go func() {
		conn, err := layer.Accept()
		if err != nil {
			t.Error(err)
			return
		}
		acceptedCh <- conn
	}()

	client, err := UnixDialer(path)(time.Second)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer client.Close()

	var server Conn
	select {
	case server = <-acceptedCh:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for accept")
	}
	defer server.Close()

	sent := testFrame()
	if err := client.WriteFrame(sent); err != nil {
		t.Fatalf("err: %v", err)
	}

	received, err := server.ReadFrame()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	checkFrame(t, sent, received)

	// And the reverse direction.
	if err := server.WriteFrame(sent); err != nil {
		t.Fatalf("err: %v", err)
	}
	received, err = client.ReadFrame()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	checkFrame(t, sent, received)
}

func TestWSStreamLayer(t *testing.T) {
	layer, err := NewWSStreamLayer("127.0.0.1:0")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer layer.Close()

	acceptedCh := make(chan Conn, 1)
	go func() {
		conn, err := layer.Accept()
		if err != nil {
			t.Error(err)
			return
		}
		acceptedCh <- conn
	}()

	client, err := WSDialer("ws://" + layer.Addr() + "/")(time.Second)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer client.Close()

	var server Conn
	select {
	case server = <-acceptedCh:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for accept")
	}
	defer server.Close()

	sent := testFrame()
	if err := client.WriteFrame(sent); err != nil {
		t.Fatalf("err: %v", err)
	}

	received, err := server.ReadFrame()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	checkFrame(t, sent, received)
}

func TestDialRetry(t *testing.T) {
	dir, err := ioutil.TempDir("", "samcore")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	path := SocketPath(dir, "samcore")

	// Bring the listener up only after the client has started dialing.
	layerCh := make(chan *UnixStreamLayer, 1)
	go func() {
		time.Sleep(100 * time.Millisecond)
		layer, err := NewUnixStreamLayer(path)
		if err != nil {
			t.Error(err)
			return
		}
		go layer.Accept()
		layerCh <- layer
	}()

	shutdownCh := make(chan struct{})
	logger := logrusTestEntry(t)

	conn, err := DialRetry(UnixDialer(path), time.Second, shutdownCh, logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	conn.Close()

	layer := <-layerCh
	layer.Close()
}

func TestDialRetryShutdown(t *testing.T) {
	shutdownCh := make(chan struct{})
	close(shutdownCh)

	_, err := DialRetry(UnixDialer("/nonexistent/samcore.sock"), time.Second, shutdownCh, logrusTestEntry(t))
	if err != ErrLayerClosed {
		t.Fatalf("DialRetry should stop on shutdown, got %v", err)
	}
}
