package pvlib

import (
	"errors"
	"testing"
	"time"

	"github.com/wwhai/pvlib-go/smanet"
	"github.com/wwhai/pvlib-go/tagfile"
	"github.com/wwhai/pvlib-go/transport"
)

func TestRegisterConnectionPanicsOnDuplicate(t *testing.T) {
	const handle ConnectionHandle = "test-duplicate-connection"
	RegisterConnection(handle, func(addr string, timeout time.Duration) (transport.ReadWriter, error) {
		return nil, nil
	})

	defer func() {
		if recover() == nil {
			t.Error("expected panic registering a duplicate connection handle")
		}
	}()
	RegisterConnection(handle, func(addr string, timeout time.Duration) (transport.ReadWriter, error) {
		return nil, nil
	})
}

func TestRegisterProtocolPanicsOnDuplicate(t *testing.T) {
	const handle ProtocolHandle = "test-duplicate-protocol"
	RegisterProtocol(handle, func(net *smanet.Conn, local [6]byte, tags tagfile.Table) protocolAPI {
		return nil
	})

	defer func() {
		if recover() == nil {
			t.Error("expected panic registering a duplicate protocol handle")
		}
	}()
	RegisterProtocol(handle, func(net *smanet.Conn, local [6]byte, tags tagfile.Table) protocolAPI {
		return nil
	})
}

func TestOpenConnectionUnregisteredHandle(t *testing.T) {
	_, err := openConnection("does-not-exist", "", time.Second)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("openConnection with unregistered handle: err = %v, want ErrUnsupported", err)
	}
}

func TestOpenProtocolUnregisteredHandle(t *testing.T) {
	_, err := openProtocol("does-not-exist", nil, [6]byte{}, nil)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("openProtocol with unregistered handle: err = %v, want ErrUnsupported", err)
	}
}

func TestDataTwoPlusProtocolRegisteredByDefault(t *testing.T) {
	registryMu.RLock()
	_, ok := protocols["data2plus"]
	registryMu.RUnlock()
	if !ok {
		t.Error(`expected "data2plus" to be registered by init()`)
	}
}
