//go:build !linux

package capture

import "errors"

// OpenAFPacket is only available on Linux.
func OpenAFPacket(o LiveOptions) (*PacketSource, error) {
	return nil, errors.New("capture: afpacket engine requires linux")
}
