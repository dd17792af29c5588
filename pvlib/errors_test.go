package pvlib

import (
	"errors"
	"fmt"
	"testing"

	"github.com/wwhai/pvlib-go/data2plus"
	"github.com/wwhai/pvlib-go/l2"
	"github.com/wwhai/pvlib-go/smanet"
	"github.com/wwhai/pvlib-go/transport"
)

func TestWrapErrClassifiesByLayer(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"transport timeout", transport.ErrTimeout, ErrTransport},
		{"transport not connected", transport.ErrNotConnected, ErrTransport},
		{"l2 checksum", l2.ErrChecksum, ErrFrame},
		{"l2 enumeration timeout", l2.ErrEnumerationTimeout, ErrFrame},
		{"smanet fcs", smanet.ErrFCS, ErrFrame},
		{"smanet stuffing", smanet.ErrStuffing, ErrFrame},
		{"data2plus auth", data2plus.ErrAuth, ErrAuth},
		{"data2plus protocol", data2plus.ErrProtocol, ErrProtocolViolation},
		{"data2plus unknown device", data2plus.ErrUnknownDevice, ErrProtocolViolation},
		{"unrecognized error", errors.New("boom"), ErrProtocolViolation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := wrapErr(fmt.Errorf("context: %w", tc.err))
			if !errors.Is(wrapped, tc.want) {
				t.Errorf("wrapErr(%v) = %v, want errors.Is match on %v", tc.err, wrapped, tc.want)
			}
			if !errors.Is(wrapped, tc.err) {
				t.Errorf("wrapErr(%v) = %v, lost original error for errors.Is", tc.err, wrapped)
			}
		})
	}
}

func TestWrapErrNilPassesThrough(t *testing.T) {
	if wrapErr(nil) != nil {
		t.Error("wrapErr(nil) should return nil")
	}
}
