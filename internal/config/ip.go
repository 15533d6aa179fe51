package config

import "net"

func parseIP(s string) bool {
	return net.ParseIP(s) != nil
}
