package tr064

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// Service is one controllable endpoint taken from the device description.
type Service struct {
	Type       string // urn:dslforum-org:service:WANPPPConnection:1
	ControlURL string // /upnp/control/wanpppconn1
}

type descRoot struct {
	XMLName xml.Name   `xml:"root"`
	Device  descDevice `xml:"device"`
}

type descDevice struct {
	DeviceType string        `xml:"deviceType"`
	Services   []descService `xml:"serviceList>service"`
	SubDevices []descDevice  `xml:"deviceList>device"`
}

type descService struct {
	ServiceType string `xml:"serviceType"`
	ControlURL  string `xml:"controlURL"`
}

// parseDescription maps service names to endpoints. Names follow the
// conventional short form: the bare type name plus a 1-based occurrence
// number, so urn:dslforum-org:service:WANPPPConnection:1 becomes
// WANPPPConnection1.
func parseDescription(data []byte) (map[string]Service, error) {
	var doc descRoot
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse device description: %w", err)
	}

	services := make(map[string]Service)
	counts := make(map[string]int)
	collectServices(doc.Device, services, counts)
	if len(services) == 0 {
		return nil, errors.New("device description lists no services")
	}
	return services, nil
}

func collectServices(dev descDevice, services map[string]Service, counts map[string]int) {
	for _, s := range dev.Services {
		base := serviceBase(s.ServiceType)
		if base == "" {
			continue
		}
		counts[base]++
		name := fmt.Sprintf("%s%d", base, counts[base])
		services[name] = Service{Type: s.ServiceType, ControlURL: s.ControlURL}
	}
	for _, sub := range dev.SubDevices {
		collectServices(sub, services, counts)
	}
}

// serviceBase extracts the bare name from a UPnP service type:
// urn:dslforum-org:service:WANPPPConnection:1 -> WANPPPConnection.
func serviceBase(serviceType string) string {
	parts := strings.Split(serviceType, ":")
	if len(parts) < 5 || parts[0] != "urn" || parts[2] != "service" {
		return ""
	}
	return parts[3]
}
