// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package sys

import "net"

// GetGlobalUnicastIP returns the first global unicast IP of this host, or an empty string.
func GetGlobalUnicastIP() string {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, address := range addrs {
			ipnet, ok := address.(*net.IPNet)
			if ok && ipnet.IP.IsGlobalUnicast() {
				return ipnet.IP.String()
			}
		}
	}
	return ""
}

// AdvertiseAddr replaces an unspecified listening host with the IP of this host
// so that the address is reachable by others.
func AdvertiseAddr(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return listenAddr
	}
	if ip := net.ParseIP(host); host != "" && (ip == nil || !ip.IsUnspecified()) {
		return listenAddr
	}
	if ip := GetGlobalUnicastIP(); ip != "" {
		return net.JoinHostPort(ip, port)
	}
	return listenAddr
}
