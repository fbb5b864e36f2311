/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package dscp sets the DSCP (Differentiated Services Code Point) marking
// on outgoing PTP traffic so network gear can prioritize it.
package dscp

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Enable sets the DSCP value on a socket identified by fd. dscp carries the
// 6-bit codepoint; it is shifted into the ToS/Traffic Class byte the same
// way the kernel reports it via IP_TOS/IPV6_TCLASS.
func Enable(fd int, ip net.IP, dscp int) error {
	if dscp == 0 {
		return nil
	}
	tos := dscp << 2
	if ip.To4() != nil {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, tos); err != nil {
			return fmt.Errorf("setting IP_TOS to %d: %w", tos, err)
		}
		return nil
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos); err != nil {
		return fmt.Errorf("setting IPV6_TCLASS to %d: %w", tos, err)
	}
	return nil
}
