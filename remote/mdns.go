package remote

import (
	"fmt"
	"net"

	"github.com/hashicorp/mdns"

	"go-midiplay/debug"
)

const serviceType = "_midiplay._tcp"

// advertise announces the remote on the LAN until stop is called
func advertise(name string, port int) (stop func(), err error) {
	ips, err := localIPs()
	if err != nil {
		return nil, fmt.Errorf("local ips: %w", err)
	}

	service, err := mdns.NewMDNSService(name, serviceType, "", "", port, ips, []string{"path=/ws"})
	if err != nil {
		return nil, fmt.Errorf("mdns service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("mdns server: %w", err)
	}

	debug.Log("remote", "advertising %s as %s on port %d", name, serviceType, port)
	return func() { server.Shutdown() }, nil
}

// localIPs returns the IPv4 addresses of up, non-loopback interfaces
func localIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}
